// Package sweep runs the budget-scenario experiment grid over a product
// catalog and persists one transcript file per negotiation.
package sweep

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"haggle/internal/catalog"
	"haggle/internal/negotiation"
)

// Options controls one sweep run.
type Options struct {
	OutputDir   string
	MaxTurns    int
	Experiments int
	// Append numbers new runs past the highest existing experiment file
	// instead of skipping scenarios that already meet the target.
	Append bool
	// Parallel bounds how many (product, scenario) units run at once.
	// Experiments inside one unit stay sequential so file numbering
	// within a scenario directory never races.
	Parallel int
}

// Runner executes negotiations across products, scenarios, and repeats.
// The agent invokers are shared across all negotiations; they serialize
// their own outbound calls.
type Runner struct {
	agents negotiation.Agents
	opts   Options
	log    *zap.Logger
}

func New(agents negotiation.Agents, opts Options, log *zap.Logger) (*Runner, error) {
	if opts.OutputDir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if opts.MaxTurns < 1 {
		return nil, fmt.Errorf("max turns must be at least 1, got %d", opts.MaxTurns)
	}
	if opts.Experiments < 1 {
		return nil, fmt.Errorf("experiments must be at least 1, got %d", opts.Experiments)
	}
	if opts.Parallel < 1 {
		opts.Parallel = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{agents: agents, opts: opts, log: log}, nil
}

// Run sweeps every scenario of every product. Invalid products are logged
// and skipped; a persistence failure aborts the sweep but leaves already
// written transcripts intact.
func (r *Runner) Run(ctx context.Context, products []catalog.Product) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Parallel)

	for _, product := range products {
		if err := product.Validate(); err != nil {
			r.log.Warn("skipping invalid product", zap.Error(err))
			continue
		}
		scenarios, err := catalog.Scenarios(product)
		if err != nil {
			r.log.Warn("skipping product with unusable prices",
				zap.Int("product_id", product.ID), zap.Error(err))
			continue
		}
		for _, sc := range scenarios {
			g.Go(func() error {
				return r.runScenario(ctx, product, sc)
			})
		}
	}
	return g.Wait()
}

// RunOne sweeps a single product by its zero-based catalog index.
func (r *Runner) RunOne(ctx context.Context, products []catalog.Product, index int) error {
	if index < 0 || index >= len(products) {
		return fmt.Errorf("product index %d out of range [0, %d)", index, len(products))
	}
	return r.Run(ctx, products[index:index+1])
}

func (r *Runner) scenarioDir(product catalog.Product, scenario string) string {
	return filepath.Join(
		r.opts.OutputDir,
		"seller_"+r.agents.SellerModel,
		r.agents.BuyerModel,
		fmt.Sprintf("product_%d", product.ID),
		"budget_"+scenario,
	)
}

func (r *Runner) runScenario(ctx context.Context, product catalog.Product, sc catalog.Scenario) error {
	log := r.log.With(
		zap.Int("product_id", product.ID),
		zap.String("scenario", sc.Name),
		zap.Float64("budget", sc.Budget),
	)
	dir := r.scenarioDir(product, sc.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create scenario directory: %w", err)
	}

	existing, err := existingExperiments(dir, product.ID)
	if err != nil {
		return err
	}
	if len(existing) >= r.opts.Experiments && !r.opts.Append {
		log.Info("scenario already complete",
			zap.Int("existing", len(existing)),
			zap.Int("target", r.opts.Experiments))
		return nil
	}

	remaining := r.opts.Experiments - len(existing)
	if remaining < 0 {
		remaining = 0
	}
	start := len(existing)
	if r.opts.Append && len(existing) > 0 {
		start = maxInt(existing) + 1
	}
	log.Info("running scenario",
		zap.Int("existing", len(existing)),
		zap.Int("remaining", remaining))

	for i := 0; i < remaining; i++ {
		expNum := start + i
		driver, err := negotiation.NewDriver(negotiation.DriverConfig{
			Product:       product,
			Budget:        sc.Budget,
			Scenario:      sc.Name,
			ExperimentNum: expNum,
			MaxTurns:      r.opts.MaxTurns,
			Agents:        r.agents,
			Logger:        r.log,
		})
		if err != nil {
			return err
		}
		transcript, err := driver.Run(ctx)
		if err != nil {
			return err
		}
		if err := writeTranscript(dir, transcript); err != nil {
			return err
		}
		log.Info("experiment saved",
			zap.Int("experiment", expNum),
			zap.String("result", string(transcript.NegotiationResult)),
			zap.Int("completed_turns", transcript.CompletedTurns))
	}
	return nil
}

func writeTranscript(dir string, t *negotiation.Transcript) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("product_%d_exp_%d.json", t.ProductID, t.ExperimentNum))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

// existingExperiments returns the experiment numbers already present in
// dir for the product, parsed from product_{id}_exp_{n}.json filenames.
func existingExperiments(dir string, productID int) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list scenario directory: %w", err)
	}
	prefix := fmt.Sprintf("product_%d_exp_", productID)
	var nums []int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".json"))
		if err != nil {
			continue
		}
		nums = append(nums, n)
	}
	return nums, nil
}

func maxInt(nums []int) int {
	m := nums[0]
	for _, n := range nums[1:] {
		if n > m {
			m = n
		}
	}
	return m
}
