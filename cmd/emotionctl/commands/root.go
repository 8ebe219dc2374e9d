// Package commands implements the emotionctl subcommands.
package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/maauso/voice-emotion-api/internal/bootstrap"
	"github.com/maauso/voice-emotion-api/internal/config"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	cnnModel string
	mlpModel string
	jsonOut  bool
	verbose  bool
}

// Execute runs the root command against os.Args.
func Execute() error {
	return NewRootCmd().ExecuteContext(context.Background())
}

// NewRootCmd builds a fresh command tree.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "emotionctl",
		Short: "Classify the emotion of recorded speech",
		Long: `emotionctl decodes an audio file (WAV, MP3, OGG or FLAC), extracts
40 averaged MFCC coefficients and classifies them with the CNN or MLP model
into one of eight emotions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.cnnModel, "cnn-model", "", "CNN artifact path or key (overrides CNN_MODEL_PATH)")
	pf.StringVar(&flags.mlpModel, "mlp-model", "", "MLP artifact path or key (overrides MLP_MODEL_PATH)")
	pf.BoolVar(&flags.jsonOut, "json", false, "print JSON instead of a table")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "log pipeline details to stderr")

	root.AddCommand(
		newClassifyCmd(flags),
		newFeaturesCmd(flags),
		newModelsCmd(flags),
	)
	return root
}

// loadDeps builds the pipeline the way the server does, with lazy model
// loading and metrics off.
func loadDeps(ctx context.Context, flags *globalFlags) (*bootstrap.Dependencies, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flags.cnnModel != "" {
		cfg.CNNModelPath = flags.cnnModel
	}
	if flags.mlpModel != "" {
		cfg.MLPModelPath = flags.mlpModel
	}
	cfg.MetricsEnabled = false

	if flags.verbose {
		cfg.LogLevel = "debug"
	} else if os.Getenv("LOG_LEVEL") == "" {
		cfg.LogLevel = "warn"
	}
	logger := cfg.NewLoggerTo(os.Stderr)

	deps, err := bootstrap.NewDependencies(ctx, cfg, logger, bootstrap.WithoutPreload())
	if err != nil {
		return nil, fmt.Errorf("initialize dependencies: %w", err)
	}
	return deps, nil
}

// readAudio reads the file named on the command line.
func readAudio(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return data, nil
}
