package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sharo-jef/webllm-svg/pkg/cache"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect and delete locally cached models",
	Long: `Inspect and delete the models of the inference server.

Deleting a model also removes the artifacts generated with it.

Examples:
  svgen models list
  svgen models has llama3.2:3b
  svgen models rm llama3.2:3b
  svgen models purge --include-models`,
}

var modelsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List cached models",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		models, err := a.adapter.ListCached(cmd.Context())
		if err != nil {
			return err
		}
		a.cache.Seed(models...)
		last, _ := a.prefs.LastModel(cmd.Context())

		// The remembered model is listed even after it was deleted.
		ids := a.cache.IDs()
		if last != "" && !a.cache.Resident(last) {
			ids = append(ids, last)
		}
		if len(ids) == 0 {
			fmt.Println("No models cached.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "LAST\tMODEL\tCACHED\tARTIFACTS")
		for _, m := range ids {
			recs, err := a.artifacts.List(cmd.Context(), m)
			if err != nil {
				return err
			}
			mark := ""
			if m == last {
				mark = "*"
			}
			cached := "no"
			if a.cache.Resident(m) {
				cached = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", mark, m, cached, len(recs))
		}
		return w.Flush()
	},
}

var modelsHasCmd = &cobra.Command{
	Use:   "has <model>",
	Short: "Report whether a model is cached",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ok, err := a.cache.Has(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		p := newPrinter()
		if ok {
			p.Success("%s is cached", args[0])
		} else {
			p.Warning("%s is not cached", args[0])
		}
		return nil
	},
}

var modelsRmCmd = &cobra.Command{
	Use:     "rm <model>",
	Aliases: []string{"delete"},
	Short:   "Delete a cached model and its artifacts",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.cache.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		newPrinter().Success("Deleted %s", args[0])
		return nil
	},
}

var purgeIncludeModels bool

var modelsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete saved artifacts and preferences",
	Long: `Delete every saved artifact, the prompt history, the draft and the
remembered model. With --include-models the inference server's models are
deleted too.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if purgeIncludeModels {
			a.cache.Register(&cache.ModelCategory{Label: "models", Lister: a.adapter, Backend: a.adapter})
		}
		p := newPrinter()
		err = a.cache.DeleteAll(cmd.Context())
		for _, name := range a.cache.Categories() {
			p.Debug("purged %s", name)
		}
		if err != nil {
			return err
		}
		p.Success("Purged %d categories", len(a.cache.Categories()))
		return nil
	},
}

func init() {
	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsHasCmd)
	modelsCmd.AddCommand(modelsRmCmd)

	modelsPurgeCmd.Flags().BoolVar(&purgeIncludeModels, "include-models", false, "also delete the server's models")
	modelsCmd.AddCommand(modelsPurgeCmd)

	rootCmd.AddCommand(modelsCmd)
}
