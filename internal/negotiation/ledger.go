package negotiation

// Ledger is the ordered record of the seller's asking price per turn.
// Index 0 is the product's retail price: a baseline, not a real offer.
// Turns with no extractable price carry the previous value forward, so the
// ledger reads as a step function over the best known seller ask.
type Ledger struct {
	offers []float64
}

// NewLedger seeds the ledger with the retail-price baseline.
func NewLedger(retail float64) *Ledger {
	return &Ledger{offers: []float64{retail}}
}

// Record appends the turn's price. When extracted is false the last known
// value is carried forward unchanged.
func (l *Ledger) Record(price float64, extracted bool) {
	if !extracted {
		price = l.Last()
	}
	l.offers = append(l.offers, price)
}

// Last returns the most recent known asking price.
func (l *Ledger) Last() float64 {
	return l.offers[len(l.offers)-1]
}

// Len returns the number of recorded entries including the baseline.
func (l *Ledger) Len() int {
	return len(l.offers)
}

// Offers returns a copy of the ledger contents.
func (l *Ledger) Offers() []float64 {
	out := make([]float64, len(l.offers))
	copy(out, l.offers)
	return out
}
