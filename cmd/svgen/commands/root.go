package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sharo-jef/webllm-svg/pkg/cli"
)

const appName = "svgen"

var (
	// Global flags
	verbose     bool
	contextName string
	configPath  string
	outputFmt   string

	// Global configuration (loaded at init time)
	globalConfig *cli.Config
)

var rootCmd = &cobra.Command{
	Use:   "svgen",
	Short: "Generate SVG icons with a local language model",
	Long: `svgen - generate SVG icons with a locally hosted language model.

The model is reached through an OpenAI-compatible endpoint (Ollama,
llama.cpp server, LM Studio). Each generation retries up to 10 times until
the reply contains a well-formed <svg> block.

Configuration is stored in ~/.svgen/svgen/config.yaml. Environment
variables SVGEN_BASE_URL, SVGEN_API_KEY, SVGEN_MODEL and SVGEN_SIZE
override the current context; .env.local and .env are loaded first.

Examples:
  # Point svgen at a local Ollama and pick a model
  svgen config add-context local --model llama3.2:3b

  # Generate a 64x64 icon
  svgen generate "a paper plane" -o plane.svg

  # Serve live previews on :8080
  svgen serve --addr :8080`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	pf.StringVarP(&contextName, "context", "c", "", "context to use (default: current context)")
	pf.StringVar(&configPath, "config", "", "config file (default: ~/.svgen/svgen/config.yaml)")
	pf.StringVar(&outputFmt, "output", "", "output format for listings: yaml, json")
}

// configLoadErr stores the error from LoadConfig for deferred reporting.
var configLoadErr error

func initConfig() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := cli.LoadEnv(); err != nil {
		slog.Warn("svgen: load env files", "error", err)
	}

	cfg, err := cli.LoadConfigWithPath(appName, configPath)
	if err != nil {
		configLoadErr = err
		return
	}
	globalConfig = cfg
}

// GetConfig returns the global configuration.
func GetConfig() (*cli.Config, error) {
	if globalConfig == nil {
		if configLoadErr != nil {
			return nil, fmt.Errorf("config not available: %w", configLoadErr)
		}
		cfg, err := cli.LoadConfigWithPath(appName, configPath)
		if err != nil {
			return nil, fmt.Errorf("config not available: %w", err)
		}
		globalConfig = cfg
	}
	return globalConfig, nil
}

// GetSettings resolves the selected context against the environment.
func GetSettings() (cli.Settings, error) {
	cfg, err := GetConfig()
	if err != nil {
		return cli.Settings{}, err
	}
	return cfg.Resolve(contextName, os.Getenv)
}

func newPrinter() *cli.Printer {
	return cli.NewPrinter(verbose)
}

// printList writes v in the --output format, defaulting to yaml.
func printList(v any) error {
	format, err := cli.ParseFormat(outputFmt)
	if err != nil {
		return err
	}
	return cli.Output(v, cli.OutputOptions{Format: format})
}
