package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"haggle/internal/anomaly"
	"haggle/internal/catalog"
	"haggle/internal/config"
	"haggle/internal/llm"
	"haggle/internal/negotiation"
	"haggle/internal/sweep"
)

var (
	// Global flags
	verbose    bool
	configPath string

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "haggle",
	Short: "haggle - LLM buyer/seller price-negotiation simulator",
	Long: `haggle pits two language-model agents against each other in a price
negotiation over a product catalog: a seller defending its margin and a
buyer constrained by a hard budget ceiling.

Each product is negotiated under five budget scenarios derived from its
retail and wholesale prices. Transcripts are persisted as JSON, and a
post-hoc scanner marks anomalies (overpayment, budget violations,
irrational refusals) and summarizes the corpus as CSV.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}

		zcfg := zap.NewProductionConfig()
		if cfg.Logging.Format == "text" {
			zcfg = zap.NewDevelopmentConfig()
		}
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var (
	productIndex int
	appendRuns   bool
)

// runCmd executes the negotiation sweep
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the budget-scenario negotiation sweep",
	Long: `Runs negotiations for every product in the catalog (or one product by
index) across the five budget scenarios, repeating each the configured
number of times. Scenario directories that already hold the target
number of transcripts are skipped unless --append is set.`,
	RunE: runSweep,
}

// markCmd runs the anomaly scanner
var markCmd = &cobra.Command{
	Use:   "mark",
	Short: "Mark anomalies in persisted transcripts",
	Long: `Walks the results tree, backs every transcript up, and patches derived
metrics into each file in place: bargaining rate, overpayment, budget
and wholesale violations, irrational refusals, and price volatility.
Re-running over an already marked tree changes nothing.`,
	RunE: runMark,
}

// reportCmd writes the CSV summary
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write a CSV summary of all transcripts",
	RunE:  runReport,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "haggle.yaml", "path to config file")

	runCmd.Flags().IntVar(&productIndex, "product", -1, "zero-based product index to run (default: all products)")
	runCmd.Flags().BoolVar(&appendRuns, "append", false, "number new runs past existing transcripts instead of skipping")
	runCmd.Flags().String("products", "", "path to the product catalog JSON")
	runCmd.Flags().String("output", "", "output directory for transcripts")
	runCmd.Flags().String("buyer", "", "buyer model")
	runCmd.Flags().String("seller", "", "seller model")
	runCmd.Flags().String("summary", "", "summary model for extraction and classification")
	runCmd.Flags().Int("max-turns", 0, "safety cap on negotiation rounds")
	runCmd.Flags().Int("experiments", 0, "repeats per (product, scenario)")
	runCmd.Flags().Int("parallel", 0, "concurrent (product, scenario) units")

	markCmd.Flags().String("results", "", "results directory to scan")
	reportCmd.Flags().String("results", "", "results directory to summarize")
	reportCmd.Flags().String("output", "", "CSV report path")

	rootCmd.AddCommand(runCmd, markCmd, reportCmd)
}

// applyRunFlags lets explicit flags win over the config file.
func applyRunFlags(cmd *cobra.Command) {
	flagString := func(name string, dst *string) {
		if v, _ := cmd.Flags().GetString(name); v != "" {
			*dst = v
		}
	}
	flagInt := func(name string, dst *int) {
		if v, _ := cmd.Flags().GetInt(name); v > 0 {
			*dst = v
		}
	}
	flagString("products", &cfg.ProductsFile)
	flagString("output", &cfg.OutputDir)
	flagString("buyer", &cfg.Models.Buyer)
	flagString("seller", &cfg.Models.Seller)
	flagString("summary", &cfg.Models.Summary)
	flagInt("max-turns", &cfg.MaxTurns)
	flagInt("experiments", &cfg.Experiments)
	flagInt("parallel", &cfg.Parallel)
	if appendRuns {
		cfg.Append = true
	}
}

func runSweep(cmd *cobra.Command, args []string) error {
	applyRunFlags(cmd)
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	products, err := catalog.Load(cfg.ProductsFile)
	if err != nil {
		return err
	}
	logger.Info("catalog loaded",
		zap.String("path", cfg.ProductsFile),
		zap.Int("products", len(products)))

	opts, err := cfg.ClientOptions()
	if err != nil {
		return err
	}
	agents, err := buildAgents(ctx, cfg.Models, opts)
	if err != nil {
		return err
	}

	runner, err := sweep.New(agents, sweep.Options{
		OutputDir:   cfg.OutputDir,
		MaxTurns:    cfg.MaxTurns,
		Experiments: cfg.Experiments,
		Append:      cfg.Append,
		Parallel:    cfg.Parallel,
	}, logger)
	if err != nil {
		return err
	}

	if productIndex >= 0 {
		return runner.RunOne(ctx, products, productIndex)
	}
	return runner.Run(ctx, products)
}

func buildAgents(ctx context.Context, models config.ModelsConfig, opts llm.Options) (negotiation.Agents, error) {
	buyer, err := llm.NewInvoker(ctx, models.Buyer, opts, logger)
	if err != nil {
		return negotiation.Agents{}, fmt.Errorf("buyer agent: %w", err)
	}
	seller, err := llm.NewInvoker(ctx, models.Seller, opts, logger)
	if err != nil {
		return negotiation.Agents{}, fmt.Errorf("seller agent: %w", err)
	}
	summary, err := llm.NewInvoker(ctx, models.Summary, opts, logger)
	if err != nil {
		return negotiation.Agents{}, fmt.Errorf("summary agent: %w", err)
	}
	return negotiation.Agents{
		Buyer:        buyer,
		Seller:       seller,
		Summary:      summary,
		BuyerModel:   models.Buyer,
		SellerModel:  models.Seller,
		SummaryModel: models.Summary,
	}, nil
}

func resultsDir(cmd *cobra.Command) string {
	if v, _ := cmd.Flags().GetString("results"); v != "" {
		return v
	}
	return cfg.OutputDir
}

func runMark(cmd *cobra.Command, args []string) error {
	scanner := anomaly.NewScanner(resultsDir(cmd), cfg.Scan.BackupDir, cfg.Scan.LogFile, logger)
	stats, err := scanner.ProcessAll()
	if err != nil {
		return err
	}
	fmt.Printf("Processed %d files, modified %d, %d errors.\n",
		stats.TotalFiles, stats.ModifiedFiles, stats.Errors)
	fmt.Printf("Backup created at: %s\n", cfg.Scan.BackupDir)
	fmt.Printf("See %s for details.\n", cfg.Scan.LogFile)
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	out := cfg.Scan.ReportFile
	if v, _ := cmd.Flags().GetString("output"); v != "" {
		out = v
	}
	scanner := anomaly.NewScanner(resultsDir(cmd), cfg.Scan.BackupDir, cfg.Scan.LogFile, logger)
	if err := scanner.Report(out); err != nil {
		return err
	}
	fmt.Printf("Summary report saved to %s\n", out)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
