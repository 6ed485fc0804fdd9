package cmd

import (
	"fmt"

	"github.com/agentic-research/cdmctl/internal/uuidcodec"
	"github.com/spf13/cobra"
)

var uuidCount int

func init() {
	uuidGenCmd.Flags().IntVarP(&uuidCount, "count", "n", 1, "Number of ids to generate")
	uuidCmd.AddCommand(uuidGenCmd, uuidCanonicalCmd, uuidCompactCmd)
	rootCmd.AddCommand(uuidCmd)
}

var uuidCmd = &cobra.Command{
	Use:   "uuid",
	Short: "Generate and convert identifiers",
}

var uuidGenCmd = &cobra.Command{
	Use:   "gen",
	Short: "Print fresh ids as canonical and compact pairs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for range uuidCount {
			canonical, compact := uuidcodec.Generate()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", canonical, compact)
		}
		return nil
	},
}

var uuidCanonicalCmd = &cobra.Command{
	Use:   "canonical [id...]",
	Short: "Convert ids of either form to canonical form",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return convertIDs(cmd, args, uuidcodec.EnsureCanonical)
	},
}

var uuidCompactCmd = &cobra.Command{
	Use:   "compact [id...]",
	Short: "Convert ids of either form to compact form",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return convertIDs(cmd, args, uuidcodec.EnsureCompact)
	},
}

func convertIDs(cmd *cobra.Command, ids []string, conv func(string) (string, error)) error {
	for _, id := range ids {
		out, err := conv(uuidcodec.IDFromLink(id))
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), out)
	}
	return nil
}
