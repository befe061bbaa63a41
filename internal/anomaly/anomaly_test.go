package anomaly

import (
	"encoding/csv"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTranscript(t *testing.T, dir, name string, doc map[string]any) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	data, err := json.MarshalIndent(doc, "", "  ")
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func readJSON(t *testing.T, path string) map[string]any {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var data map[string]any
	require.NoError(t, json.Unmarshal(raw, &data))
	return data
}

func sampleTranscript() map[string]any {
	return map[string]any{
		"product_id": 1,
		"product_data": map[string]any{
			"Product Name":    "Espresso Machine",
			"Retail Price":    "$1,000",
			"Wholesale Price": "$600",
		},
		"seller_price_offers": []any{1000.0, 950.0, 800.0},
		"budget":              800.0,
		"budget_scenario":     "mid",
		"negotiation_result":  "accepted",
		"models": map[string]any{
			"buyer": "buyer-model", "seller": "seller-model", "summary": "summary-model",
		},
	}
}

func newScanner(t *testing.T, base string) *Scanner {
	t.Helper()
	root := filepath.Dir(base)
	return NewScanner(base,
		filepath.Join(root, "backup"),
		filepath.Join(root, "logs", "scan.txt"),
		nil)
}

func TestDeriveMetrics(t *testing.T) {
	metrics := deriveMetrics(sampleTranscript())

	assert.InDelta(t, 0.2, metrics["bargaining_rate"].(float64), 1e-9)
	assert.Equal(t, false, metrics["overpayment"])
	assert.Equal(t, false, metrics["out_of_budget"])
	assert.Equal(t, false, metrics["out_of_wholesale"])
	assert.NotContains(t, metrics, "irrational_refuse", "only computed for rejected runs")

	// Diffs are [-50, -150]: population std dev 50, max abs change 150.
	assert.InDelta(t, 50, metrics["price_volatility"].(float64), 1e-9)
	assert.InDelta(t, 150, metrics["max_price_change"].(float64), 1e-9)
}

func TestDeriveMetricsRejectedUnderBudget(t *testing.T) {
	doc := sampleTranscript()
	doc["negotiation_result"] = "rejected"
	doc["seller_price_offers"] = []any{1000.0, 750.0}

	metrics := deriveMetrics(doc)
	assert.Equal(t, true, metrics["irrational_refuse"])
	assert.Equal(t, false, metrics["out_of_budget"])
}

func TestDeriveMetricsAnomalousRun(t *testing.T) {
	doc := sampleTranscript()
	// Seller talked the buyer up past retail, budget, and below wholesale
	// is impossible at once; check the upward flags.
	doc["seller_price_offers"] = []any{1000.0, 1200.0}

	metrics := deriveMetrics(doc)
	assert.Equal(t, true, metrics["overpayment"])
	assert.Equal(t, true, metrics["out_of_budget"])
	assert.Equal(t, false, metrics["out_of_wholesale"])
	assert.InDelta(t, -0.2, metrics["bargaining_rate"].(float64), 1e-9)
}

func TestDeriveMetricsBelowWholesale(t *testing.T) {
	doc := sampleTranscript()
	doc["seller_price_offers"] = []any{1000.0, 550.0}
	metrics := deriveMetrics(doc)
	assert.Equal(t, true, metrics["out_of_wholesale"])
}

func TestDeriveMetricsNoLedger(t *testing.T) {
	assert.Nil(t, deriveMetrics(map[string]any{"product_id": 1.0}))
	assert.Nil(t, deriveMetrics(map[string]any{"seller_price_offers": []any{}}))
	assert.Nil(t, deriveMetrics(map[string]any{"seller_price_offers": []any{0.0, 100.0}}))
}

func TestPopulationStdDev(t *testing.T) {
	assert.Equal(t, 0.0, populationStdDev(nil))
	assert.Equal(t, 0.0, populationStdDev([]float64{5}))
	assert.InDelta(t, 2.0, populationStdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-9)
	assert.False(t, math.IsNaN(populationStdDev([]float64{1, 1})))
}

func TestProcessAllPatchesInPlace(t *testing.T) {
	root := t.TempDir()
	base := filepath.Join(root, "results")
	path := writeTranscript(t, filepath.Join(base, "seller_m", "b", "product_1", "budget_mid"),
		"product_1_exp_0.json", sampleTranscript())

	s := newScanner(t, base)
	stats, err := s.ProcessAll()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalFiles)
	assert.Equal(t, 1, stats.ModifiedFiles)
	assert.Equal(t, 0, stats.Errors)

	patched := readJSON(t, path)
	assert.InDelta(t, 0.2, patched["bargaining_rate"].(float64), 1e-9)
	assert.Equal(t, false, patched["overpayment"])
	// Original fields survive untouched.
	assert.Equal(t, "mid", patched["budget_scenario"])
	assert.Equal(t, "accepted", patched["negotiation_result"])

	// Backup holds the pre-patch document.
	backup := readJSON(t, filepath.Join(root, "backup",
		"seller_m", "b", "product_1", "budget_mid", "product_1_exp_0.json"))
	assert.NotContains(t, backup, "bargaining_rate")

	logData, err := os.ReadFile(filepath.Join(root, "logs", "scan.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(logData), "total_files: 1")
}

func TestProcessAllIdempotent(t *testing.T) {
	root := t.TempDir()
	base := filepath.Join(root, "results")
	path := writeTranscript(t, base, "product_1_exp_0.json", sampleTranscript())

	_, err := newScanner(t, base).ProcessAll()
	require.NoError(t, err)
	first := readJSON(t, path)

	stats, err := newScanner(t, base).ProcessAll()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ModifiedFiles, "second scan must not rewrite anything")

	if diff := cmp.Diff(first, readJSON(t, path)); diff != "" {
		t.Errorf("transcript changed on rescan (-first +second):\n%s", diff)
	}
}

func TestProcessAllCountsMalformedFile(t *testing.T) {
	root := t.TempDir()
	base := filepath.Join(root, "results")
	require.NoError(t, os.MkdirAll(base, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "broken.json"), []byte("{not json"), 0o644))
	writeTranscript(t, base, "product_1_exp_0.json", sampleTranscript())

	stats, err := newScanner(t, base).ProcessAll()
	require.NoError(t, err, "a malformed file must not abort the scan")
	assert.Equal(t, 2, stats.TotalFiles)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 1, stats.ModifiedFiles)
}

func TestReport(t *testing.T) {
	root := t.TempDir()
	base := filepath.Join(root, "results")
	writeTranscript(t, base, "product_1_exp_0.json", sampleTranscript())

	s := newScanner(t, base)
	_, err := s.ProcessAll()
	require.NoError(t, err)

	out := filepath.Join(root, "analysis", "summary_report.csv")
	require.NoError(t, s.Report(out))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 2)
	assert.Equal(t, reportColumns, rows[0])
	row := rows[1]
	assert.Equal(t, "seller-model_vs_buyer-model", row[1])
	assert.Equal(t, "mid", row[2])
	assert.Equal(t, "accepted", row[3])
	assert.Equal(t, "0.2", row[4])
	assert.Equal(t, "false", row[5])
	assert.Equal(t, "false", row[8])
}
