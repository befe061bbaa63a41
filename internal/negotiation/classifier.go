package negotiation

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Verdict is the classifier's reading of the buyer's latest message.
type Verdict string

const (
	VerdictAcceptance Verdict = "acceptance"
	VerdictRejection  Verdict = "rejection"
	VerdictContinue   Verdict = "continue"
)

// Classifier asks a summary model whether the buyer's latest message
// concludes the negotiation.
type Classifier struct {
	agent AgentInvoker
	log   *zap.Logger
}

func NewClassifier(agent AgentInvoker, log *zap.Logger) *Classifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Classifier{agent: agent, log: log}
}

// Classify maps the model's answer onto a Verdict. ACCEPTANCE is checked
// before REJECTION so a reply mentioning both reads as acceptance; anything
// unrecognized means the negotiation continues. An empty buyer message is
// CONTINUE without consulting the model.
func (c *Classifier) Classify(ctx context.Context, buyerMessage, sellerMessage string) Verdict {
	if strings.TrimSpace(buyerMessage) == "" {
		return VerdictContinue
	}
	raw := c.agent.Respond(ctx, evaluationPrompt(buyerMessage, sellerMessage))
	switch {
	case strings.Contains(raw, labelAcceptance):
		return VerdictAcceptance
	case strings.Contains(raw, labelRejection):
		return VerdictRejection
	default:
		if !strings.Contains(raw, labelContinue) {
			c.log.Debug("unrecognized verdict, continuing", zap.String("raw", raw))
		}
		return VerdictContinue
	}
}
