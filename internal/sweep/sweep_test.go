package sweep

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"haggle/internal/catalog"
	"haggle/internal/llm"
	"haggle/internal/negotiation"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// Background worker started by go.opencensus.io's package init
		// (pulled in transitively); it is not stoppable from test code.
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

// scriptedAgent answers every prompt with the same string.
type scriptedAgent struct{ reply string }

func (s scriptedAgent) Respond(context.Context, string) string           { return s.reply }
func (s scriptedAgent) RespondChat(context.Context, []llm.Message) string { return s.reply }

func testProducts() []catalog.Product {
	return []catalog.Product{
		{ID: 1, Name: "Espresso Machine", RetailPrice: "$1,000", WholesalePrice: "$600", Features: "15-bar pump"},
		{ID: 2, Name: "Road Bike", RetailPrice: "$2,499.99", WholesalePrice: "$1,500", Features: "carbon frame"},
	}
}

func testAgents() negotiation.Agents {
	// The seller always quotes $950 and the summary model never concludes,
	// so every negotiation runs to the turn cap deterministically.
	return negotiation.Agents{
		Buyer:        scriptedAgent{"Can we talk price?"},
		Seller:       scriptedAgent{"It's $950, firm."},
		Summary:      scriptedAgent{"$950"},
		BuyerModel:   "buyer-model",
		SellerModel:  "seller-model",
		SummaryModel: "summary-model",
	}
}

func newRunner(t *testing.T, dir string, opts Options) *Runner {
	t.Helper()
	opts.OutputDir = dir
	if opts.MaxTurns == 0 {
		opts.MaxTurns = 2
	}
	if opts.Experiments == 0 {
		opts.Experiments = 2
	}
	r, err := New(testAgents(), opts, nil)
	require.NoError(t, err)
	return r
}

func scenarioDir(root string, productID int, scenario string) string {
	return filepath.Join(root, "seller_seller-model", "buyer-model",
		fmt.Sprintf("product_%d", productID), "budget_"+scenario)
}

func TestRunWritesFullGrid(t *testing.T) {
	dir := t.TempDir()
	r := newRunner(t, dir, Options{})

	require.NoError(t, r.Run(context.Background(), testProducts()))

	for _, id := range []int{1, 2} {
		for _, sc := range catalog.ScenarioNames {
			for exp := 0; exp < 2; exp++ {
				path := filepath.Join(scenarioDir(dir, id, sc),
					fmt.Sprintf("product_%d_exp_%d.json", id, exp))
				data, err := os.ReadFile(path)
				require.NoError(t, err, "missing transcript %s", path)

				var tr negotiation.Transcript
				require.NoError(t, json.Unmarshal(data, &tr))
				assert.Equal(t, id, tr.ProductID)
				assert.Equal(t, exp, tr.ExperimentNum)
				assert.Equal(t, sc, tr.BudgetScenario)
				assert.Equal(t, negotiation.OutcomeMaxTurns, tr.NegotiationResult)
				assert.Equal(t, 2, tr.CompletedTurns)
				require.NotNil(t, tr.Budget)
			}
		}
	}
}

func TestRunScenarioBudgets(t *testing.T) {
	dir := t.TempDir()
	r := newRunner(t, dir, Options{Experiments: 1})

	require.NoError(t, r.RunOne(context.Background(), testProducts(), 0))

	want := map[string]float64{
		"high": 1200, "retail": 1000, "mid": 800, "wholesale": 600, "low": 480,
	}
	for sc, budget := range want {
		data, err := os.ReadFile(filepath.Join(scenarioDir(dir, 1, sc), "product_1_exp_0.json"))
		require.NoError(t, err)
		var tr negotiation.Transcript
		require.NoError(t, json.Unmarshal(data, &tr))
		assert.InDelta(t, budget, *tr.Budget, 1e-9, "scenario %s", sc)
	}
}

func TestRunSkipsCompleteScenario(t *testing.T) {
	dir := t.TempDir()
	r := newRunner(t, dir, Options{Experiments: 1})
	products := testProducts()[:1]

	require.NoError(t, r.Run(context.Background(), products))
	stamp := modTimes(t, dir)

	// A second run finds every scenario at target and writes nothing.
	require.NoError(t, r.Run(context.Background(), products))
	assert.Equal(t, stamp, modTimes(t, dir))
}

func TestRunAppendNumbersPastExisting(t *testing.T) {
	dir := t.TempDir()
	products := testProducts()[:1]

	r := newRunner(t, dir, Options{Experiments: 1})
	require.NoError(t, r.Run(context.Background(), products))

	// Simulate a gap: rename exp_0 to exp_4 in one scenario.
	sd := scenarioDir(dir, 1, "mid")
	require.NoError(t, os.Rename(
		filepath.Join(sd, "product_1_exp_0.json"),
		filepath.Join(sd, "product_1_exp_4.json")))

	r = newRunner(t, dir, Options{Experiments: 2, Append: true})
	require.NoError(t, r.Run(context.Background(), products))

	// Append numbers past the highest existing file, not the count.
	_, err := os.Stat(filepath.Join(sd, "product_1_exp_5.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(sd, "product_1_exp_0.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunSkipsInvalidProduct(t *testing.T) {
	dir := t.TempDir()
	r := newRunner(t, dir, Options{Experiments: 1})
	products := []catalog.Product{
		{ID: 1, Name: "Broken", RetailPrice: "call us", WholesalePrice: "$1"},
		testProducts()[0],
	}
	products[1].ID = 2

	require.NoError(t, r.Run(context.Background(), products))

	_, err := os.Stat(filepath.Join(dir, "seller_seller-model", "buyer-model", "product_1"))
	assert.True(t, os.IsNotExist(err), "invalid product must produce no output")
	_, err = os.Stat(filepath.Join(scenarioDir(dir, 2, "retail"), "product_2_exp_0.json"))
	assert.NoError(t, err)
}

func TestRunParallel(t *testing.T) {
	dir := t.TempDir()
	r := newRunner(t, dir, Options{Experiments: 1, Parallel: 4})

	require.NoError(t, r.Run(context.Background(), testProducts()))

	count := 0
	err := filepath.WalkDir(dir, func(_ string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			count++
		}
		return err
	})
	require.NoError(t, err)
	// 2 products x 5 scenarios x 1 experiment.
	assert.Equal(t, 10, count)
}

func TestRunOneIndexOutOfRange(t *testing.T) {
	r := newRunner(t, t.TempDir(), Options{})
	err := r.RunOne(context.Background(), testProducts(), 5)
	assert.ErrorContains(t, err, "out of range")
}

func TestNewValidation(t *testing.T) {
	_, err := New(testAgents(), Options{MaxTurns: 1, Experiments: 1}, nil)
	assert.ErrorContains(t, err, "output directory")

	_, err = New(testAgents(), Options{OutputDir: "x", Experiments: 1}, nil)
	assert.ErrorContains(t, err, "max turns")

	_, err = New(testAgents(), Options{OutputDir: "x", MaxTurns: 1}, nil)
	assert.ErrorContains(t, err, "experiments")
}

func modTimes(t *testing.T, root string) map[string]int64 {
	t.Helper()
	out := map[string]int64{}
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out[path] = info.ModTime().UnixNano()
		return nil
	})
	require.NoError(t, err)
	return out
}
