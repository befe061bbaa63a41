// Package anomaly post-processes persisted negotiation transcripts: it
// derives bargaining metrics and anomaly flags, patches them into each
// transcript file in place, and summarizes the corpus as a CSV report.
package anomaly

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"haggle/internal/catalog"
)

// Stats accumulates counters over one scan. It is owned by a single
// Scanner instance, never shared, so independent scans cannot interfere.
type Stats struct {
	TotalFiles       int
	ModifiedFiles    int
	Errors           int
	OutOfBudget      int
	OutOfWholesale   int
	IrrationalRefuse int
	Overpayment      int
}

// Scanner walks a results tree, backs each transcript up, and augments it
// with derived metrics. All derived fields are recomputable, so running
// the scanner twice over the same tree is a no-op the second time.
type Scanner struct {
	baseDir   string
	backupDir string
	logPath   string
	log       *zap.Logger
	stats     Stats
}

func NewScanner(baseDir, backupDir, logPath string, log *zap.Logger) *Scanner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scanner{
		baseDir:   baseDir,
		backupDir: backupDir,
		logPath:   logPath,
		log:       log,
	}
}

// Stats returns the counters accumulated so far.
func (s *Scanner) Stats() Stats { return s.stats }

// ProcessAll scans every .json file under the base directory. Per-file
// failures are counted and logged; they never abort the walk.
func (s *Scanner) ProcessAll() (Stats, error) {
	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return s.stats, fmt.Errorf("create backup directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.logPath), 0o755); err != nil {
		return s.stats, fmt.Errorf("create log directory: %w", err)
	}
	logFile, err := os.Create(s.logPath)
	if err != nil {
		return s.stats, fmt.Errorf("open scan log: %w", err)
	}
	defer logFile.Close()
	fmt.Fprintf(logFile, "Processing transcript files for anomalies and statistics\n%s\n\n", strings.Repeat("=", 80))

	err = filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		s.stats.TotalFiles++
		if perr := s.processFile(path); perr != nil {
			s.stats.Errors++
			fmt.Fprintf(logFile, "Error processing %s: %v\n\n", path, perr)
			s.log.Warn("transcript scan failed", zap.String("path", path), zap.Error(perr))
		}
		return nil
	})
	if err != nil {
		return s.stats, fmt.Errorf("walk results directory: %w", err)
	}

	fmt.Fprintf(logFile, "\nSummary:\n")
	fmt.Fprintf(logFile, "total_files: %d\n", s.stats.TotalFiles)
	fmt.Fprintf(logFile, "modified_files: %d\n", s.stats.ModifiedFiles)
	fmt.Fprintf(logFile, "errors: %d\n", s.stats.Errors)
	fmt.Fprintf(logFile, "out_of_budget: %d\n", s.stats.OutOfBudget)
	fmt.Fprintf(logFile, "out_of_wholesale: %d\n", s.stats.OutOfWholesale)
	fmt.Fprintf(logFile, "irrational_refuse: %d\n", s.stats.IrrationalRefuse)
	fmt.Fprintf(logFile, "overpayment: %d\n", s.stats.Overpayment)
	fmt.Fprintf(logFile, "\nBackup created at: %s\n", s.backupDir)

	s.log.Info("scan complete",
		zap.Int("total_files", s.stats.TotalFiles),
		zap.Int("modified_files", s.stats.ModifiedFiles),
		zap.Int("errors", s.stats.Errors))
	return s.stats, nil
}

// processFile backs up, patches, and rewrites one transcript. The decoded
// document stays a generic map so fields this package does not know about
// survive the round trip.
func (s *Scanner) processFile(path string) error {
	if err := s.backupFile(path); err != nil {
		return err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("parse transcript: %w", err)
	}

	metrics := deriveMetrics(data)
	modified := false
	for key, value := range metrics {
		if existing, ok := data[key]; !ok || existing != value {
			data[key] = value
			modified = true
		}
	}
	if !modified {
		return nil
	}

	s.stats.ModifiedFiles++
	if metrics["out_of_budget"] == true {
		s.stats.OutOfBudget++
	}
	if metrics["out_of_wholesale"] == true {
		s.stats.OutOfWholesale++
	}
	if metrics["irrational_refuse"] == true {
		s.stats.IrrationalRefuse++
	}
	if metrics["overpayment"] == true {
		s.stats.Overpayment++
	}

	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	return os.WriteFile(path, out, 0o644)
}

func (s *Scanner) backupFile(path string) error {
	rel, err := filepath.Rel(s.baseDir, path)
	if err != nil {
		return err
	}
	dst := filepath.Join(s.backupDir, rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// deriveMetrics computes the derived fields for one decoded transcript.
// Documents without a usable price ledger (missing, empty, or a zero
// baseline) yield no metrics at all.
func deriveMetrics(data map[string]any) map[string]any {
	offers := floatSlice(data["seller_price_offers"])
	if len(offers) == 0 || offers[0] <= 0 {
		return nil
	}
	first, last := offers[0], offers[len(offers)-1]

	metrics := map[string]any{
		"bargaining_rate": (first - last) / first,
		"overpayment":     last > first,
	}

	if budget, ok := data["budget"].(float64); ok {
		metrics["out_of_budget"] = last > budget
		if data["negotiation_result"] == "rejected" {
			metrics["irrational_refuse"] = last < budget
		}
	}

	if product, ok := data["product_data"].(map[string]any); ok {
		if raw, ok := product["Wholesale Price"].(string); ok {
			if wholesale, err := catalog.ParsePrice(raw); err == nil {
				metrics["out_of_wholesale"] = last < wholesale
			}
		}
	}

	if len(offers) > 1 {
		diffs := make([]float64, len(offers)-1)
		for i := range diffs {
			diffs[i] = offers[i+1] - offers[i]
		}
		metrics["price_volatility"] = populationStdDev(diffs)
		metrics["max_price_change"] = maxAbs(diffs)
	}
	return metrics
}

func floatSlice(v any) []float64 {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(raw))
	for _, e := range raw {
		f, ok := e.(float64)
		if !ok {
			return nil
		}
		out = append(out, f)
	}
	return out
}

// populationStdDev is the uncorrected standard deviation (divide by N).
func populationStdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var sum float64
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}

func maxAbs(xs []float64) float64 {
	var m float64
	for _, x := range xs {
		if a := math.Abs(x); a > m {
			m = a
		}
	}
	return m
}
