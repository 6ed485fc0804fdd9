package cmd

import (
	"fmt"
	"strings"

	"github.com/agentic-research/cdmctl/internal/export"
	"github.com/agentic-research/cdmctl/internal/migrate"
	"github.com/agentic-research/cdmctl/internal/model"
	"github.com/agentic-research/cdmctl/internal/uuidcodec"
	"github.com/spf13/cobra"
)

var (
	targetVersion string
	targetPrefix  string
	dryRun        bool
	templateName  string

	elementID   string
	activityID  string
	scriptID    string
	newName     string
	newAlias    string
	isProcedure bool
)

func init() {
	migrateCmd.Flags().StringVar(&targetVersion, "to", "", "Target version (default from config)")
	migrateCmd.Flags().StringVar(&targetPrefix, "prefix", "", "Target namespace prefix (default: canonical for the version)")
	migrateCmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Migrate in memory and validate without saving")

	newCmd.Flags().StringVar(&targetVersion, "version", "", "Version of the new configuration (default from config)")
	newCmd.Flags().StringVar(&targetPrefix, "prefix", "", "Namespace prefix (default: canonical for the version)")
	newCmd.Flags().StringVarP(&templateName, "template", "t", "", "Template: "+strings.Join(model.Templates, ", "))

	addActivityCmd.Flags().StringVarP(&elementID, "element", "e", "", "Id of the containing element")
	addActivityCmd.Flags().StringVar(&newName, "name", "", "Activity name")
	addActivityCmd.Flags().StringVar(&newAlias, "alias", "", "Activity alias")
	_ = addActivityCmd.MarkFlagRequired("element")
	_ = addActivityCmd.MarkFlagRequired("name")

	mapCmd.Flags().StringVarP(&scriptID, "script", "s", "", "Id of the script or procedure")
	mapCmd.Flags().StringVarP(&activityID, "activity", "a", "", "Id of the activity")
	mapCmd.Flags().BoolVarP(&isProcedure, "procedure", "p", false, "Map a procedure instead of a script")
	_ = mapCmd.MarkFlagRequired("script")
	_ = mapCmd.MarkFlagRequired("activity")

	rootCmd.AddCommand(migrateCmd, newCmd, addActivityCmd, mapCmd, exportCmd)
}

func orConfig(flag, fromConfig string) string {
	if flag != "" {
		return flag
	}
	return fromConfig
}

var migrateCmd = &cobra.Command{
	Use:   "migrate [dir]",
	Short: "Migrate every configuration item of a directory to another version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		to := orConfig(targetVersion, cfg.TargetVersion)
		if !migrate.Known(to) {
			return fmt.Errorf("unknown version %q, known: %s", to, strings.Join(migrate.Versions, ", "))
		}
		m, err := loadModel(cmd, args[0])
		if err != nil {
			return err
		}
		if err := m.Migrate(cmd.Context(), to, orConfig(targetPrefix, cfg.TargetPrefix)); err != nil {
			return err
		}
		n, msgs := m.CheckValidity()
		for _, msg := range msgs {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), msg)
		}
		if dryRun {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "dry run: %d file(s) would be written, %d problem(s)\n", len(m.Files()), n)
			return nil
		}
		if err := m.Save(cmd.Context()); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "migrated %d file(s) to %s\n", len(m.Files()), to)
		return nil
	},
}

var newCmd = &cobra.Command{
	Use:   "new [dir]",
	Short: "Create a configuration from a built-in template in an existing directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, name, err := dirFS(args[0])
		if err != nil {
			return err
		}
		m := model.New(fs)
		version := orConfig(targetVersion, cfg.TargetVersion)
		tmpl := orConfig(templateName, cfg.Template)
		if err := m.CreateNewCdm(cmd.Context(), name, version, orConfig(targetPrefix, cfg.TargetPrefix), tmpl); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created %s/%s (%s, %s)\n", args[0], model.NewCdmFileName, tmpl, version)
		return nil
	},
}

// findByID looks id up as given, then in its other encoding, so an entity
// can be named either way whichever form its file uses.
func findByID[T any](find func(string) (T, error), id string) (T, error) {
	v, err := find(id)
	if err == nil {
		return v, nil
	}
	for _, conv := range []func(string) (string, error){uuidcodec.EnsureCompact, uuidcodec.EnsureCanonical} {
		alt, cerr := conv(id)
		if cerr != nil || alt == id {
			continue
		}
		if v, aerr := find(alt); aerr == nil {
			return v, nil
		}
	}
	return v, err
}

var addActivityCmd = &cobra.Command{
	Use:   "add-activity [dir]",
	Short: "Add an activity to an element and save",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := loadModel(cmd, args[0])
		if err != nil {
			return err
		}
		el, err := findByID(m.Element, elementID)
		if err != nil {
			return fmt.Errorf("element %s: %w", elementID, err)
		}
		a, err := m.AddActivity(cmd.Context(), newName, newAlias, el)
		if err != nil {
			return err
		}
		if err := m.Save(cmd.Context()); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "added activity %s (%s) to %s\n", a.Name(), a.ID(), el.Path())
		return nil
	},
}

var mapCmd = &cobra.Command{
	Use:   "map [dir]",
	Short: "Map a script or procedure onto an activity and save",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := loadModel(cmd, args[0])
		if err != nil {
			return err
		}
		src, err := findByID(m.Script, scriptID)
		if err != nil {
			return fmt.Errorf("script %s: %w", scriptID, err)
		}
		act, err := findByID(m.Activity, activityID)
		if err != nil {
			return fmt.Errorf("activity %s: %w", activityID, err)
		}

		add := m.AddScriptToActivityMapping
		if isProcedure {
			add = m.AddProcedureToActivityMapping
		}
		mp, err := add(cmd.Context(), src, act)
		if err != nil {
			return err
		}
		if err := m.Save(cmd.Context()); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "added mapping %s in %s\n", mp.Name(), mp.File().Path)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export [dir] [out.db]",
	Short: "Write the loaded configuration to a SQLite database",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := loadModel(cmd, args[0])
		if err != nil {
			return err
		}
		c, err := export.Model(cmd.Context(), m, args[1])
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d files, %d elements, %d activities, %d scripts, %d mappings to %s\n",
			c.Files, c.Elements, c.Activities, c.Scripts, c.Mappings, args[1])
		return nil
	},
}
