package negotiation

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

var quotedPriceRe = regexp.MustCompile(`\$([0-9,]+(\.[0-9]+)?)`)

// ParseQuotedPrice pulls a dollar amount out of raw model output. The
// output contract is a bare "$1234.56" or the literal "None", but models
// wander, so any "None" mention wins and otherwise the first $-prefixed
// number in the text is taken. Thousands separators are tolerated.
func ParseQuotedPrice(raw string) (float64, bool) {
	if strings.Contains(raw, "None") {
		return 0, false
	}
	m := quotedPriceRe.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Extractor asks a summary model for the price quoted in a seller message,
// then parses the reply deterministically.
type Extractor struct {
	agent AgentInvoker
	log   *zap.Logger
}

func NewExtractor(agent AgentInvoker, log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{agent: agent, log: log}
}

// Extract returns the quoted price and whether one was found. A message
// with no recognizable offer is not an error; the ledger carries forward.
func (e *Extractor) Extract(ctx context.Context, sellerMessage string) (float64, bool) {
	raw := e.agent.Respond(ctx, extractionPrompt(sellerMessage))
	price, ok := ParseQuotedPrice(raw)
	if !ok {
		e.log.Debug("no price extracted", zap.String("raw", raw))
		return 0, false
	}
	return price, true
}
