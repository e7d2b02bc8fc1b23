package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sharo-jef/webllm-svg/pkg/artifacts"
	"github.com/sharo-jef/webllm-svg/pkg/cli"
)

var artifactsModel string

var artifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "List, show and export saved icons",
}

var artifactsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List saved icons, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		recs, err := a.artifacts.List(cmd.Context(), artifactsModel)
		if err != nil {
			return err
		}
		if outputFmt != "" {
			for i := range recs {
				recs[i].SVG = ""
			}
			return printList(recs)
		}
		if len(recs) == 0 {
			fmt.Println("No artifacts saved.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tMODEL\tSIZE\tCREATED\tPROMPT")
		for _, r := range recs {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", r.ID, r.Model, r.Size, r.CreatedAt.Format("2006-01-02 15:04"), r.Prompt)
		}
		return w.Flush()
	},
}

var artifactsShowCmd = &cobra.Command{
	Use:   "show <model> <id>",
	Short: "Print a saved SVG",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.artifacts.Get(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		return cli.Output(rec.SVG+"\n", cli.OutputOptions{Format: cli.FormatRaw})
	},
}

var artifactsExportCmd = &cobra.Command{
	Use:   "export <model> <id>",
	Short: "Upload a saved SVG to the context's export bucket",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.artifacts.Get(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		dst, err := a.exportStore()
		if err != nil {
			return err
		}
		path, err := artifacts.Export(cmd.Context(), rec, dst)
		if err != nil {
			return err
		}
		newPrinter().Success("Exported to s3://%s/%s", a.settings.Export.Bucket, joinKey(a.settings.Export.Prefix, path))
		return nil
	},
}

func init() {
	artifactsListCmd.Flags().StringVarP(&artifactsModel, "model", "m", "", "only artifacts of this model")

	artifactsCmd.AddCommand(artifactsListCmd)
	artifactsCmd.AddCommand(artifactsShowCmd)
	artifactsCmd.AddCommand(artifactsExportCmd)

	rootCmd.AddCommand(artifactsCmd)
}
