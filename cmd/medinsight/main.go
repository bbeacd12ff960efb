package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"medinsight/internal/config"
	"medinsight/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	configPath string
	ephemeral  bool
	timeout    time.Duration

	// Loaded in PersistentPreRunE
	cfg *config.Config

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "medinsight",
	Short: "MedInsight - disease risk prediction from the terminal",
	Long: `MedInsight predicts disease risk from clinical measurements, generates
personalized recommendations and lets you discuss the result with an assistant.

Supported diseases: liver, lung, diabetes, parkinsons, heart.

Run without arguments to start the interactive interface.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.DefaultConfigPath()
		}
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded

		if err := logging.Initialize(logging.Options{
			Dir:        cfg.DataDir(),
			DebugMode:  cfg.Logging.DebugMode,
			Level:      cfg.Logging.Level,
			Categories: cfg.Logging.Categories,
		}); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}

		// The interactive root owns the terminal; it only logs to file.
		if !cmd.HasParent() {
			logger = zap.NewNop()
			return nil
		}

		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
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
		logging.CloseAll()
	},
	RunE: runInteractive,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ~/.medinsight/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "Keep client state in memory only")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Timeout for one-shot commands")

	// Auth
	registerCmd.Flags().String("name", "", "Display name")
	registerCmd.Flags().String("email", "", "Email address (required)")
	registerCmd.Flags().String("password", "", "Password (or MEDINSIGHT_PASSWORD)")
	registerCmd.Flags().String("confirm", "", "Repeat the password")
	loginCmd.Flags().String("email", "", "Email address (required)")
	loginCmd.Flags().String("password", "", "Password (or MEDINSIGHT_PASSWORD)")

	// Prediction
	for _, c := range []*cobra.Command{predictCmd, recommendCmd} {
		c.Flags().StringArrayP("field", "f", nil, "Form value as name=value (repeatable)")
		c.Flags().String("session", "", "Continue an existing session")
	}
	chatCmd.Flags().String("session", "", "Continue an existing session")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	historyCmd.AddCommand(historyShowCmd)

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(loginGoogleCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(diseasesCmd)
	rootCmd.AddCommand(fieldsCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(pageCmd)
	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(recommendCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
