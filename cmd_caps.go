package main

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var capsCmd = &cobra.Command{
	Use:   "caps",
	Short: "Show the models refact-lsp offers",
	Args:  cobra.NoArgs,
	RunE:  showCaps,
}

func showCaps(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	caps, err := newLSPClient().Caps(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "cloud: %s\ndefault model: %s\n\n", caps.CloudName, caps.CodeChatDefaultModel)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tCONTEXT\tTOOLS\tAGENT")
	for _, name := range slices.Sorted(maps.Keys(caps.CodeChatModels)) {
		m := caps.CodeChatModels[name]
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", name, m.NCtx, yesNo(m.SupportsTools), yesNo(m.SupportsAgent))
	}
	return tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
