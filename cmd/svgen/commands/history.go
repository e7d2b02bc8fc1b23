package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show or edit the prompt history",
}

var historyListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recent prompts, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.prefs.History().List(cmd.Context())
		if err != nil {
			return err
		}
		if outputFmt != "" {
			return printList(entries)
		}
		if len(entries) == 0 {
			fmt.Println("No prompts yet.")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%s  %s\n", e.At.Format("2006-01-02 15:04"), e.Prompt)
		}
		return nil
	},
}

var historyRmCmd = &cobra.Command{
	Use:   "rm <prompt...>",
	Short: "Remove one prompt",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return a.prefs.History().Remove(cmd.Context(), strings.Join(args, " "))
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget every prompt",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.prefs.History().Clear(cmd.Context()); err != nil {
			return err
		}
		newPrinter().Success("History cleared")
		return nil
	},
}

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Show or edit the unsent prompt",
	Long: `The draft is the prompt of the last generation that did not succeed.
'svgen generate' without a prompt uses it.`,
}

var draftShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the draft",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		d, err := a.prefs.Draft(cmd.Context())
		if err != nil {
			return err
		}
		if d == "" {
			fmt.Println("No draft.")
			return nil
		}
		fmt.Println(d)
		return nil
	},
}

var draftSetCmd = &cobra.Command{
	Use:   "set <prompt...>",
	Short: "Replace the draft",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return a.prefs.SetDraft(cmd.Context(), strings.Join(args, " "))
	},
}

var draftClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard the draft",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return a.prefs.ClearDraft(cmd.Context())
	},
}

func init() {
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyRmCmd)
	historyCmd.AddCommand(historyClearCmd)

	draftCmd.AddCommand(draftShowCmd)
	draftCmd.AddCommand(draftSetCmd)
	draftCmd.AddCommand(draftClearCmd)

	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(draftCmd)
}
