package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/elon-ai/dialogue-gateway/internal/chat"
	"github.com/elon-ai/dialogue-gateway/internal/completion"
	"github.com/elon-ai/dialogue-gateway/internal/thinking"
)

func newModesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "modes",
		Short: "List thinking modes in tie-break order",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "MODE\tSUMMARY")
			for _, m := range thinking.DefaultClassifier().Modes() {
				fmt.Fprintf(tw, "%s\t%s\n", m, completion.ModeSummary(m))
			}
			fmt.Fprintf(tw, "%s\t%s\n", chat.ModeStandard, completion.ModeSummary(chat.ModeStandard))
			_ = tw.Flush()
		},
	}
}

func newClassifyCmd() *cobra.Command {
	var showScores bool
	cmd := &cobra.Command{
		Use:   "classify <message>",
		Short: "Show which thinking mode a message selects",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			msg := strings.Join(args, " ")
			c := thinking.DefaultClassifier()
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, c.DetectMode(msg))
			if showScores {
				for _, s := range c.Scores(msg) {
					fmt.Fprintf(out, "  %-18s %d\n", s.Mode, s.Hits)
				}
			}
		},
	}
	cmd.Flags().BoolVarP(&showScores, "scores", "s", false, "also print keyword hits per mode")
	return cmd
}
