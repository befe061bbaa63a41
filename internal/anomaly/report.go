package anomaly

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

var reportColumns = []string{
	"file_path",
	"model_combination",
	"budget_scenario",
	"negotiation_result",
	"bargaining_rate",
	"out_of_budget",
	"out_of_wholesale",
	"irrational_refuse",
	"overpayment",
	"price_volatility",
	"max_price_change",
}

// Report walks the results tree and writes one CSV row per transcript,
// reading the derived fields a prior ProcessAll pass patched in. Files
// that fail to parse are logged and skipped.
func (s *Scanner) Report(outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(reportColumns); err != nil {
		return err
	}

	walkErr := filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		row, rerr := reportRow(path)
		if rerr != nil {
			s.log.Warn("skipping transcript in report", zap.String("path", path), zap.Error(rerr))
			return nil
		}
		return w.Write(row)
	})
	if walkErr != nil {
		return fmt.Errorf("walk results directory: %w", walkErr)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	s.log.Info("summary report written", zap.String("path", outputPath))
	return nil
}

func reportRow(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}

	var sellerModel, buyerModel string
	if models, ok := data["models"].(map[string]any); ok {
		sellerModel, _ = models["seller"].(string)
		buyerModel, _ = models["buyer"].(string)
	}

	return []string{
		path,
		sellerModel + "_vs_" + buyerModel,
		stringField(data, "budget_scenario"),
		stringField(data, "negotiation_result"),
		numberField(data, "bargaining_rate"),
		boolField(data, "out_of_budget"),
		boolField(data, "out_of_wholesale"),
		boolField(data, "irrational_refuse"),
		boolField(data, "overpayment"),
		numberField(data, "price_volatility"),
		numberField(data, "max_price_change"),
	}, nil
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

// numberField renders a numeric field, empty when absent.
func numberField(data map[string]any, key string) string {
	f, ok := data[key].(float64)
	if !ok {
		return ""
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// boolField renders a boolean field, false when absent.
func boolField(data map[string]any, key string) string {
	b, _ := data[key].(bool)
	return strconv.FormatBool(b)
}
