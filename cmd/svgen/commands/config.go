package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sharo-jef/webllm-svg/pkg/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long: `Manage contexts. A context names an inference endpoint, a model and
generation defaults.

Examples:
  svgen config add-context local --model llama3.2:3b
  svgen config add-context lab --base-url http://gpu-box:8080/v1 --size 32
  svgen config use-context lab
  svgen config list-contexts
  svgen config show`,
}

var configListContextsCmd = &cobra.Command{
	Use:     "list-contexts",
	Aliases: []string{"ls", "list"},
	Short:   "List all contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		names := cfg.ListContexts()
		if len(names) == 0 {
			fmt.Println("No contexts configured.")
			fmt.Println("Create one with: svgen config add-context <name>")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CURRENT\tNAME\tBASE URL\tMODEL")
		for _, name := range names {
			current := ""
			if name == cfg.CurrentContext {
				current = "*"
			}
			c := cfg.Contexts[name]
			baseURL := c.BaseURL
			if baseURL == "" {
				baseURL = cli.DefaultBaseURL
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", current, name, baseURL, c.Model)
		}
		return w.Flush()
	},
}

var addContextFlags struct {
	cli.Context
	bucket   string
	prefix   string
	region   string
	endpoint string
}

var configAddContextCmd = &cobra.Command{
	Use:   "add-context <name>",
	Short: "Create or replace a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		c := addContextFlags.Context
		if addContextFlags.bucket != "" {
			c.Export = &cli.S3Export{
				Bucket:   addContextFlags.bucket,
				Prefix:   addContextFlags.prefix,
				Region:   addContextFlags.region,
				Endpoint: addContextFlags.endpoint,
			}
		}
		if err := cfg.AddContext(args[0], &c); err != nil {
			return err
		}
		fmt.Printf("Context %q saved.\n", args[0])
		if cfg.CurrentContext == args[0] {
			fmt.Printf("Context %q is the current context.\n", args[0])
		}
		return nil
	},
}

var configDeleteContextCmd = &cobra.Command{
	Use:   "delete-context <name>",
	Short: "Delete a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if err := cfg.DeleteContext(args[0]); err != nil {
			return err
		}
		fmt.Printf("Context %q deleted.\n", args[0])
		return nil
	},
}

var configUseContextCmd = &cobra.Command{
	Use:   "use-context <name>",
	Short: "Set the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if err := cfg.UseContext(args[0]); err != nil {
			return err
		}
		fmt.Printf("Switched to context %q.\n", args[0])
		return nil
	},
}

var configCurrentContextCmd = &cobra.Command{
	Use:   "current-context",
	Short: "Display the current context name",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if cfg.CurrentContext == "" {
			fmt.Println("No current context set.")
			return nil
		}
		fmt.Println(cfg.CurrentContext)
		return nil
	},
}

var configViewCmd = &cobra.Command{
	Use:     "show",
	Aliases: []string{"view"},
	Short:   "Show the effective settings after environment overrides",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := GetSettings()
		if err != nil {
			return err
		}
		s.APIKey = cli.MaskAPIKey(s.APIKey)
		return printList(s)
	},
}

func init() {
	f := configAddContextCmd.Flags()
	c := &addContextFlags.Context
	f.StringVar(&c.BaseURL, "base-url", "", "OpenAI-compatible endpoint (default "+cli.DefaultBaseURL+")")
	f.StringVar(&c.APIKey, "api-key", "", "API key, if the server requires one")
	f.StringVar(&c.Model, "model", "", "default model id")
	f.Float32Var(&c.Temperature, "temperature", 0, "default sampling temperature")
	f.IntVar(&c.MaxTokens, "max-tokens", 0, "default token budget per attempt")
	f.IntVar(&c.Size, "size", 0, "default icon size")
	f.BoolVar(&c.CurrentColor, "current-color", false, "draw with currentColor by default")
	f.IntVar(&c.MaxAttempts, "max-attempts", 0, "attempt budget per generation")
	f.BoolVar(&c.SkipFree, "skip-free", false, "skipped attempts do not use the budget")
	f.BoolVar(&c.WarmUp, "warm-up", false, "send a one-token request after loading a model")
	f.StringVar(&addContextFlags.bucket, "export-bucket", "", "S3 bucket for exported icons")
	f.StringVar(&addContextFlags.prefix, "export-prefix", "", "key prefix inside the export bucket")
	f.StringVar(&addContextFlags.region, "export-region", "", "export bucket region")
	f.StringVar(&addContextFlags.endpoint, "export-endpoint", "", "S3-compatible endpoint (MinIO, R2)")

	configCmd.AddCommand(configListContextsCmd)
	configCmd.AddCommand(configAddContextCmd)
	configCmd.AddCommand(configDeleteContextCmd)
	configCmd.AddCommand(configUseContextCmd)
	configCmd.AddCommand(configCurrentContextCmd)
	configCmd.AddCommand(configViewCmd)

	rootCmd.AddCommand(configCmd)
}
