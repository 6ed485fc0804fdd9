package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/agentic-research/cdmctl/api"
	"github.com/agentic-research/cdmctl/internal/ctxlog"
	"github.com/agentic-research/cdmctl/internal/model"
	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	logFormat  string
	quiet      bool

	cfg = api.DefaultConfig()
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", api.ConfigFileName, "Path to project config (HCL)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Do not report load progress")
}

var rootCmd = &cobra.Command{
	Use:           "cdmctl",
	Short:         "cdmctl: inspect, validate and migrate CDM configuration directories",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := api.LoadConfig(configPath, cmd.Flags().Changed("config"))
		if err != nil {
			return err
		}
		if logLevel != "" {
			c.LogLevel = logLevel
		}
		if logFormat != "" {
			c.LogFormat = logFormat
		}
		cfg = c

		logger := ctxlog.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		cmd.SetContext(ctxlog.WithLogger(ctx, logger))
		return nil
	},
}

// dirFS roots an OS filesystem at dir's parent so that dir itself shows up
// by name in messages.
func dirFS(dir string) (billy.Filesystem, string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, "", fmt.Errorf("resolve %s: %w", dir, err)
	}
	return osfs.New(filepath.Dir(abs)), filepath.Base(abs), nil
}

// loadModel loads dir on a separate goroutine while progress is rendered.
func loadModel(cmd *cobra.Command, dir string) (*model.Model, error) {
	fs, name, err := dirFS(dir)
	if err != nil {
		return nil, err
	}
	m := model.New(fs)
	m.MappingCIName = cfg.MappingCIName

	var p model.Progress
	if !quiet {
		p = &progressBar{w: cmd.ErrOrStderr()}
	}
	errc := make(chan error, 1)
	go func() { errc <- m.LoadDirectory(cmd.Context(), name, p) }()
	if err := <-errc; err != nil {
		return nil, err
	}
	return m, nil
}

type progressBar struct {
	w    io.Writer
	last int
}

func (p *progressBar) SetProgress(f float64) {
	pct := int(f * 100)
	if pct == p.last {
		return
	}
	p.last = pct
	_, _ = fmt.Fprintf(p.w, "\rloading %3d%%", pct)
}

func (p *progressBar) Done() {
	if p.last > 0 {
		_, _ = fmt.Fprintln(p.w)
	}
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
