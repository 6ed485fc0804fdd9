package cmd

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/agentic-research/cdmctl/internal/cdmfile"
	"github.com/agentic-research/cdmctl/internal/report"
	"github.com/spf13/cobra"
)

var infoJSON bool

func init() {
	infoCmd.Flags().BoolVar(&infoJSON, "json", false, "Print the full report as JSON")
	rootCmd.AddCommand(infoCmd, validateCmd, queryCmd)
}

var infoCmd = &cobra.Command{
	Use:   "info [dir]",
	Short: "Summarize a configuration directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := loadModel(cmd, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if infoJSON {
			_, err := fmt.Fprintln(out, report.JSON(report.Build(m)))
			return err
		}

		kinds := make(map[string]int)
		for _, f := range m.Files() {
			kinds[f.Kind()]++
		}
		names := make([]string, 0, len(kinds))
		for k := range kinds {
			names = append(names, k)
		}
		slices.Sort(names)

		versions := m.Versions()
		for i, v := range versions {
			if v == "" {
				versions[i] = "(none)"
			}
		}
		_, _ = fmt.Fprintf(out, "directory: %s\n", args[0])
		_, _ = fmt.Fprintf(out, "versions:  %s\n", strings.Join(versions, ", "))
		_, _ = fmt.Fprintf(out, "files:     %d (%d excluded)\n", len(m.Files()), len(m.LoadErrors()))
		for _, k := range names {
			_, _ = fmt.Fprintf(out, "  %-24s %d\n", k, kinds[k])
		}
		_, _ = fmt.Fprintf(out, "elements:  %d in %d trees\n", len(m.Elements()), len(m.Roots()))
		_, _ = fmt.Fprintf(out, "activities: %d, scripts: %d, mappings: %d\n",
			len(m.Activities()), len(m.Scripts()), len(m.Mappings()))
		for _, r := range m.Roots() {
			printTree(out, r, 0, make(map[string]bool))
		}
		return nil
	},
}

func printTree(w io.Writer, e *cdmfile.Element, depth int, seen map[string]bool) {
	if seen[e.ID()] {
		return
	}
	seen[e.ID()] = true
	_, _ = fmt.Fprintf(w, "%s%s (%d activities)\n", strings.Repeat("  ", depth), e.Name(), len(e.Activities()))
	for c := range e.Children() {
		// Children shared with a later parent are printed under that parent.
		if p := c.Parent(); p != nil && p.ID() != e.ID() {
			continue
		}
		printTree(w, c, depth+1, seen)
	}
}

var validateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Check versions, prefixes and references of a configuration directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := loadModel(cmd, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, err := range m.LoadErrors() {
			_, _ = fmt.Fprintf(out, "excluded: %v\n", err)
		}
		n, msgs := m.CheckValidity()
		for _, msg := range msgs {
			_, _ = fmt.Fprintln(out, msg)
		}
		if n > 0 {
			return fmt.Errorf("%d problem(s) found", n)
		}
		_, _ = fmt.Fprintln(out, "ok")
		return nil
	},
}

var queryCmd = &cobra.Command{
	Use:   "query [dir] [jsonpath]",
	Short: "Run a JSONPath expression against the configuration report",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := loadModel(cmd, args[0])
		if err != nil {
			return err
		}
		results, err := report.Query(report.Build(m), args[1])
		if err != nil {
			return err
		}
		if len(results) == 0 {
			return errors.New("no match")
		}
		for _, r := range results {
			if s, ok := r.(string); ok {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), s)
				continue
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), report.JSON(r))
		}
		return nil
	},
}
