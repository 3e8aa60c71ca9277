package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"chatintent/adapters/tabular"
	"chatintent/app"
	"chatintent/domain/intent"
	"chatintent/internal/artifact"
	"chatintent/internal/config"
	"chatintent/internal/container"
	"chatintent/internal/corpus"
	"chatintent/internal/inference"
	"chatintent/internal/migration"
	"chatintent/internal/telemetry"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	var configPath string
	rootCmd := &cobra.Command{
		Use:          "chatintent",
		Short:        "Train, evaluate and serve the restaurant chatbot intent classifier",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (INTENT_* environment variables override it)")

	rootCmd.AddCommand(
		newGenerateCmd(&configPath),
		newTrainCmd(&configPath),
		newScoreCmd(&configPath),
		newMigrateCmd(&configPath),
		newRunsCmd(&configPath),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newGenerateCmd(configPath *string) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write the labeled training corpus to a CSV, XLSX or JSON file",
		Long: `Generate the synthetic corpus from the taxonomy (or re-read corpus.input_file)
and write it with columns text, intent, user_type.

Example: chatintent generate --out restaurant_chatbot_training_data.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return runGenerate(cfg, out)
		},
	}

	cmd.Flags().StringVar(&out, "out", "restaurant_chatbot_training_data.csv", "Output file (.csv, .xlsx or .json)")
	return cmd
}

func runGenerate(cfg *config.Config, out string) error {
	c, err := container.New(cfg)
	if err != nil {
		return err
	}
	samples, err := app.NewTrainingService(cfg, nil, c.Logger).BuildCorpus()
	if err != nil {
		return err
	}
	if err := tabular.Write(out, samples); err != nil {
		return err
	}

	summary, err := corpus.Summarize(samples)
	if err != nil {
		return err
	}
	fmt.Printf("✅ Generated %d training samples\n", summary.Total)
	fmt.Printf("📊 Unique intents: %d\n", summary.Intents)
	fmt.Printf("👥 User types: admin=%d customer=%d\n", summary.PerUserType["admin"], summary.PerUserType["customer"])
	fmt.Printf("⚖️  Per intent: min=%.0f max=%.0f mean=%.1f (imbalance %.2f)\n",
		summary.Min, summary.Max, summary.Mean, summary.ImbalanceRatio)
	fmt.Printf("💾 Saved to %s\n", out)
	return nil
}

func newTrainCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run the full pipeline: corpus, split, train, evaluate, package",
		Long: `Train the intent classifier and write the model bundle to output.dir.

Example: chatintent train --config training.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return runTrain(cmd.Context(), cfg)
		},
	}
	return cmd
}

func runTrain(ctx context.Context, cfg *config.Config) error {
	c, err := container.New(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	shutdown, err := telemetry.InitTracer(cfg.Telemetry, c.Logger)
	if err != nil {
		return err
	}
	defer shutdown(context.Background())

	if err := c.InitWithDatabase(ctx); err != nil {
		return err
	}
	c.InitTraining()

	fmt.Println("🚀 Starting training...")
	out, err := c.Training.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\n📊 Classification report (eval split, %d samples)\n\n", out.Split.EvalSize)
	fmt.Println(out.Report.Text())
	fmt.Printf("🏆 Best epoch: %d (weighted F1 %.4f)\n", out.Result.Best.Epoch, out.Result.Best.Metric)
	fmt.Printf("🆔 Run: %s\n", out.Manifest.RunID)
	fmt.Printf("🔏 Fingerprint: %s\n", out.Manifest.Fingerprint.Fingerprint.Short())
	fmt.Printf("💾 Bundle: %s\n", out.BundleDir)
	if out.ArchivePath != "" {
		fmt.Printf("📦 Archive: %s\n", out.ArchivePath)
	}
	fmt.Printf("⏱️  Took %s\n", out.Duration)
	return nil
}

func newScoreCmd(configPath *string) *cobra.Command {
	var bundleDir string
	var userType string

	cmd := &cobra.Command{
		Use:   "score [text...]",
		Short: "Classify utterances with a packaged model",
		Long: `Load a model bundle (directory or .zip) and classify each argument.
With --user-type the acceptance policy is applied as well.

Example: chatintent score --bundle ./chatbot_model --user-type admin "Show all restaurants"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if bundleDir == "" {
				bundleDir = cfg.Inference.BundleDir
			}
			return runScore(cmd.Context(), cfg, bundleDir, userType, args)
		},
	}

	cmd.Flags().StringVar(&bundleDir, "bundle", "", "Bundle directory or zip (default inference.bundle_dir)")
	cmd.Flags().StringVar(&userType, "user-type", "", "Apply the policy for admin or customer")
	return cmd
}

func runScore(ctx context.Context, cfg *config.Config, bundlePath, userType string, texts []string) error {
	var bundle *artifact.Bundle
	var err error
	if strings.HasSuffix(bundlePath, ".zip") {
		bundle, err = artifact.LoadArchive(bundlePath)
	} else {
		bundle, err = artifact.Load(bundlePath)
	}
	if err != nil {
		return err
	}
	scorer, err := bundle.Scorer(inference.WithConcurrency(cfg.Inference.BatchConcurrency))
	if err != nil {
		return err
	}
	preds, err := scorer.ScoreBatch(ctx, texts)
	if err != nil {
		return err
	}

	if userType == "" {
		for _, p := range preds {
			fmt.Printf("Text: '%s' -> Intent: %s (Confidence: %.4f)\n", p.Text, p.Intent, p.Confidence)
		}
		return nil
	}

	ut, err := intent.ParseUserType(userType)
	if err != nil {
		return err
	}
	policy, err := inference.NewPolicy(cfg.Inference.Policy, cfg.Inference.ConfidenceThreshold)
	if err != nil {
		return err
	}
	for _, p := range preds {
		d, err := policy.Apply(p, ut)
		if err != nil {
			return err
		}
		mark := "✅"
		if !d.Accepted {
			mark = "⛔"
		}
		fmt.Printf("%s Text: '%s' -> Intent: %s (predicted %s, confidence %.4f)\n", mark, p.Text, d.Intent, p.Intent, p.Confidence)
	}
	return nil
}

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the run registry schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Storage.Driver == "none" {
				return fmt.Errorf("storage.driver is none; nothing to migrate")
			}
			c, err := container.New(cfg)
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.InitWithDatabase(cmd.Context()); err != nil {
				return err
			}
			fmt.Printf("✅ Run registry schema at version %s (%s)\n", migration.NewRunner().Version(), cfg.Storage.Driver)
			return nil
		},
	}
}

func newRunsCmd(configPath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent training runs from the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			c, err := container.New(cfg)
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.InitWithDatabase(cmd.Context()); err != nil {
				return err
			}
			if c.RunRepo == nil {
				return fmt.Errorf("storage.driver is none; no run registry")
			}

			records, err := c.RunRepo.ListRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("No runs recorded yet")
				return nil
			}
			for _, r := range records {
				fmt.Printf("%s  %-9s  f1=%.4f  acc=%.4f  fp=%s  %s\n",
					r.ID(), r.Status, r.F1, r.Accuracy, r.Manifest.Fingerprint.Fingerprint.Short(),
					r.Manifest.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list")
	return cmd
}
