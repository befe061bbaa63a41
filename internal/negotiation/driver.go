package negotiation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"haggle/internal/catalog"
	"haggle/internal/llm"
)

// State is the driver's lifecycle phase.
type State string

const (
	StateNotStarted  State = "not_started"
	StateNegotiating State = "negotiating"
	StateAccepted    State = "accepted"
	StateRejected    State = "rejected"
	StateMaxTurns    State = "max_turns_reached"
)

// Agents bundles the three role invokers and their model names.
type Agents struct {
	Buyer        AgentInvoker
	Seller       AgentInvoker
	Summary      AgentInvoker
	BuyerModel   string
	SellerModel  string
	SummaryModel string
}

// DriverConfig parameterizes a single negotiation.
type DriverConfig struct {
	Product       catalog.Product
	Budget        float64
	Scenario      string
	ExperimentNum int
	MaxTurns      int
	Agents        Agents
	Logger        *zap.Logger
}

// Driver runs one buyer/seller negotiation to a terminal state. It is not
// safe for concurrent use; the sweep creates one driver per experiment.
type Driver struct {
	cfg        DriverConfig
	log        *zap.Logger
	extractor  *Extractor
	classifier *Classifier

	state          State
	history        []Turn
	ledger         *Ledger
	completedTurns int
}

// NewDriver validates the configuration and returns a driver in the
// not-started state.
func NewDriver(cfg DriverConfig) (*Driver, error) {
	if err := cfg.Product.Validate(); err != nil {
		return nil, fmt.Errorf("invalid product: %w", err)
	}
	if cfg.Budget <= 0 {
		return nil, fmt.Errorf("budget must be positive, got %v", cfg.Budget)
	}
	if cfg.MaxTurns < 1 {
		return nil, fmt.Errorf("max turns must be at least 1, got %d", cfg.MaxTurns)
	}
	if cfg.Agents.Buyer == nil || cfg.Agents.Seller == nil || cfg.Agents.Summary == nil {
		return nil, fmt.Errorf("buyer, seller, and summary agents are all required")
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(
		zap.Int("product_id", cfg.Product.ID),
		zap.String("scenario", cfg.Scenario),
		zap.Int("experiment", cfg.ExperimentNum),
	)
	return &Driver{
		cfg:        cfg,
		log:        log,
		extractor:  NewExtractor(cfg.Agents.Summary, log),
		classifier: NewClassifier(cfg.Agents.Summary, log),
		state:      StateNotStarted,
	}, nil
}

// State returns the driver's current lifecycle phase.
func (d *Driver) State() State { return d.state }

// History returns a copy of the conversation so far.
func (d *Driver) History() []Turn {
	out := make([]Turn, len(d.history))
	copy(out, d.history)
	return out
}

// Initialize seeds the ledger with the retail baseline and opens the
// conversation with the buyer's generated first message.
func (d *Driver) Initialize(ctx context.Context) error {
	if d.state != StateNotStarted {
		return fmt.Errorf("initialize called in state %s", d.state)
	}
	retail, err := d.cfg.Product.Retail()
	if err != nil {
		return err
	}
	d.ledger = NewLedger(retail)

	opening := d.cfg.Agents.Buyer.Respond(ctx, openingPrompt(d.cfg.Product, d.cfg.Budget))
	d.history = append(d.history, Turn{Speaker: SpeakerBuyer, Message: opening})
	d.state = StateNegotiating
	d.log.Debug("negotiation opened", zap.String("opening", opening))
	return nil
}

// sellerView maps the full history into the seller's chat frame: buyer
// turns are the user, the seller's own turns are the assistant.
func (d *Driver) sellerView() []llm.Message {
	msgs := []llm.Message{{Role: llm.RoleSystem, Content: sellerSystemPrompt(d.cfg.Product)}}
	for _, t := range d.history {
		role := llm.RoleUser
		if t.Speaker == SpeakerSeller {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: t.Message})
	}
	return msgs
}

// buyerView maps the history into the buyer's chat frame, skipping the
// seeded opening turn: the buyer generated it from a separate prompt, so
// replaying it as conversation would double it. Seller turns are the user,
// buyer turns are the assistant.
func (d *Driver) buyerView() []llm.Message {
	msgs := []llm.Message{{Role: llm.RoleSystem, Content: buyerSystemPrompt(d.cfg.Product, d.cfg.Budget)}}
	for _, t := range d.history[1:] {
		role := llm.RoleUser
		if t.Speaker == SpeakerBuyer {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: t.Message})
	}
	return msgs
}

// Step runs one full round: seller reply, price extraction, buyer reply,
// outcome classification. It returns the state after the round.
func (d *Driver) Step(ctx context.Context) (State, error) {
	if d.state != StateNegotiating {
		return d.state, fmt.Errorf("step called in state %s", d.state)
	}

	sellerMsg := d.cfg.Agents.Seller.RespondChat(ctx, d.sellerView())
	d.history = append(d.history, Turn{Speaker: SpeakerSeller, Message: sellerMsg})

	price, ok := d.extractor.Extract(ctx, sellerMsg)
	d.ledger.Record(price, ok)
	if ok {
		d.log.Debug("price extracted", zap.Float64("price", price))
	}

	buyerMsg := d.cfg.Agents.Buyer.RespondChat(ctx, d.buyerView())
	d.history = append(d.history, Turn{Speaker: SpeakerBuyer, Message: buyerMsg})

	switch d.classifier.Classify(ctx, buyerMsg, sellerMsg) {
	case VerdictAcceptance:
		d.state = StateAccepted
	case VerdictRejection:
		d.state = StateRejected
	}
	d.completedTurns++
	return d.state, nil
}

// Run drives the negotiation to a terminal state and assembles the
// transcript. If the turn cap is reached without a verdict the outcome is
// max_turns_reached.
func (d *Driver) Run(ctx context.Context) (*Transcript, error) {
	if err := d.Initialize(ctx); err != nil {
		return nil, err
	}
	for turn := 1; turn <= d.cfg.MaxTurns && d.state == StateNegotiating; turn++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := d.Step(ctx); err != nil {
			return nil, err
		}
		d.log.Debug("turn completed",
			zap.Int("turn", turn),
			zap.String("state", string(d.state)),
			zap.Float64("last_offer", d.ledger.Last()),
		)
	}
	if d.state == StateNegotiating {
		d.state = StateMaxTurns
	}
	d.log.Info("negotiation finished",
		zap.String("outcome", string(d.outcome())),
		zap.Int("completed_turns", d.completedTurns),
		zap.Float64("final_offer", d.ledger.Last()),
	)
	return d.transcript(), nil
}

func (d *Driver) outcome() Outcome {
	switch d.state {
	case StateAccepted:
		return OutcomeAccepted
	case StateRejected:
		return OutcomeRejected
	default:
		return OutcomeMaxTurns
	}
}

func (d *Driver) transcript() *Transcript {
	budget := d.cfg.Budget
	return &Transcript{
		ProductID:            d.cfg.Product.ID,
		ExperimentNum:        d.cfg.ExperimentNum,
		ProductData:          d.cfg.Product,
		ConversationHistory:  d.History(),
		SellerPriceOffers:    d.ledger.Offers(),
		Budget:               &budget,
		BudgetScenario:       d.cfg.Scenario,
		CompletedTurns:       d.completedTurns,
		NegotiationCompleted: d.state != StateNotStarted && d.state != StateNegotiating,
		NegotiationResult:    d.outcome(),
		Models: Models{
			Buyer:   d.cfg.Agents.BuyerModel,
			Seller:  d.cfg.Agents.SellerModel,
			Summary: d.cfg.Agents.SummaryModel,
		},
		Parameters: Parameters{MaxTurns: d.cfg.MaxTurns},
	}
}
