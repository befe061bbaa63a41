// Package catalog loads the product dataset and derives the budget
// scenarios a negotiation runs under.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Product is one catalog entry. Field names mirror the dataset JSON so a
// transcript embeds the product exactly as loaded.
type Product struct {
	ID             int    `json:"id"`
	Name           string `json:"Product Name"`
	RetailPrice    string `json:"Retail Price"`
	WholesalePrice string `json:"Wholesale Price"`
	Features       string `json:"Features"`
}

var priceRe = regexp.MustCompile(`^\$?[0-9][0-9,]*(\.[0-9]+)?$`)

// ParsePrice converts a catalog price string like "$1,299.99" to a float.
func ParsePrice(s string) (float64, error) {
	trimmed := strings.TrimSpace(s)
	if !priceRe.MatchString(trimmed) {
		return 0, fmt.Errorf("unparsable price %q", s)
	}
	trimmed = strings.TrimPrefix(trimmed, "$")
	trimmed = strings.ReplaceAll(trimmed, ",", "")
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("unparsable price %q: %w", s, err)
	}
	return v, nil
}

// Validate reports whether the product carries everything a negotiation
// needs. A failing product is skipped by the sweep; it never aborts the run.
func (p Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("product %d: missing product name", p.ID)
	}
	if _, err := ParsePrice(p.RetailPrice); err != nil {
		return fmt.Errorf("product %d: retail price: %w", p.ID, err)
	}
	if _, err := ParsePrice(p.WholesalePrice); err != nil {
		return fmt.Errorf("product %d: wholesale price: %w", p.ID, err)
	}
	return nil
}

// Retail returns the parsed retail price. Call Validate first.
func (p Product) Retail() (float64, error) {
	return ParsePrice(p.RetailPrice)
}

// Wholesale returns the parsed wholesale price. Call Validate first.
func (p Product) Wholesale() (float64, error) {
	return ParsePrice(p.WholesalePrice)
}

// productRecord distinguishes an absent id from an explicit zero: the
// shallower RawID field shadows the embedded ID during unmarshaling.
type productRecord struct {
	Product
	RawID *int `json:"id"`
}

// Load reads a JSON array of products from path. Entries without an id
// field get positional ids (index + 1); explicit ids, including 0, are
// kept as-is.
func Load(path string) ([]Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read products file: %w", err)
	}
	var records []productRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse products file %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("products file %s contains no products", path)
	}
	products := make([]Product, len(records))
	for i, r := range records {
		p := r.Product
		if r.RawID != nil {
			p.ID = *r.RawID
		} else {
			p.ID = i + 1
		}
		products[i] = p
	}
	return products, nil
}
