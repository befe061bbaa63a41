// Package negotiation implements the buyer/seller conversation driver, the
// price-offer ledger, and the secondary passes that extract a price signal
// and classify the negotiation outcome from generated text.
package negotiation

import (
	"context"

	"haggle/internal/catalog"
	"haggle/internal/llm"
)

// AgentInvoker produces the next utterance for a role. Implementations
// retry transparently and substitute a filler utterance on sustained
// failure, so neither method can fail.
type AgentInvoker interface {
	Respond(ctx context.Context, prompt string) string
	RespondChat(ctx context.Context, messages []llm.Message) string
}

// Speaker identifies who authored a turn.
type Speaker string

const (
	SpeakerBuyer  Speaker = "Buyer"
	SpeakerSeller Speaker = "Seller"
)

// Turn is one utterance in the conversation history. The history order is
// the negotiation's chronology and is replayed verbatim as prompt context.
type Turn struct {
	Speaker Speaker `json:"speaker"`
	Message string  `json:"message"`
}

// Outcome is the terminal result of a negotiation.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
	OutcomeMaxTurns Outcome = "max_turns_reached"
)

// Models records which model served each role.
type Models struct {
	Buyer   string `json:"buyer"`
	Seller  string `json:"seller"`
	Summary string `json:"summary"`
}

// Parameters records the run parameters persisted with a transcript.
type Parameters struct {
	MaxTurns int `json:"max_turns"`
}

// Transcript is the persisted record of one completed (or capped)
// negotiation. The sweep owns it after the driver returns it; the driver
// never persists directly.
type Transcript struct {
	ProductID            int             `json:"product_id"`
	ExperimentNum        int             `json:"experiment_num"`
	ProductData          catalog.Product `json:"product_data"`
	ConversationHistory  []Turn          `json:"conversation_history"`
	SellerPriceOffers    []float64       `json:"seller_price_offers"`
	Budget               *float64        `json:"budget,omitempty"`
	BudgetScenario       string          `json:"budget_scenario,omitempty"`
	CompletedTurns       int             `json:"completed_turns"`
	NegotiationCompleted bool            `json:"negotiation_completed"`
	NegotiationResult    Outcome         `json:"negotiation_result,omitempty"`
	Models               Models          `json:"models"`
	Parameters           Parameters      `json:"parameters"`
}
