package main

import (
	"context"
	errs "errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-stdlog/stdlog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/heyvito/reportvault"
	"github.com/heyvito/reportvault/errors"
)

// Exit codes
const (
	exitFailure   = 1
	exitNotFound  = 2
	exitFormat    = 3
	exitLocked    = 4
	exitCancelled = 130
)

func exitCode(err error) int {
	switch {
	case errs.Is(err, context.Canceled):
		return exitCancelled
	case errs.As(err, &errors.ReportNotFound{}), errs.Is(err, os.ErrNotExist):
		return exitNotFound
	case errs.As(err, &errors.FormatError{}):
		return exitFormat
	case errs.As(err, &errors.CannotAcquireAuditLockError{}):
		return exitLocked
	default:
		return exitFailure
	}
}

// settings is the resolved configuration of a CLI run: defaults, then the
// config file, then REPORTVAULT_* environment variables, then flags.
type settings struct {
	ArchiveRoot    string        `mapstructure:"archive_root"`
	Catalog        string        `mapstructure:"catalog"`
	Workers        int           `mapstructure:"workers"`
	UseMmap        bool          `mapstructure:"mmap"`
	OpenAttempts   uint          `mapstructure:"open_attempts"`
	OpenRetryDelay time.Duration `mapstructure:"open_retry_delay"`
	Output         string        `mapstructure:"output"`
	Out            string        `mapstructure:"out"`
	MetricsFile    string        `mapstructure:"metrics_file"`
	Quiet          bool          `mapstructure:"quiet"`
	Probes         []string      `mapstructure:"probes"`
}

type cli struct {
	v       *viper.Viper
	cfgFile string
	stdout  io.Writer
	cfg     settings
	metrics *promMetrics
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	c := &cli{v: viper.New(), stdout: stdout}

	root := &cobra.Command{
		Use:   "reportvault",
		Short: "Query and audit archived fixed-layout reports",
		Long: `reportvault finds report lines by indexed field values in archived
index files and page stores, honouring section-level access rules.

Archives are <REPORT>_<REVISION>.idx / .pag pairs under an archive root;
report structures come from a YAML or JSON catalog.`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return c.load(cmd) },
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default: ./config.yaml or ~/.reportvault/config.yaml)")
	flags.String("root", "", "archive root directory")
	flags.String("catalog", "", "report catalog file (YAML or JSON)")
	flags.Int("workers", 0, "parallel workers (default: number of CPUs)")
	flags.Bool("mmap", false, "map archive files into memory")
	flags.StringP("output", "o", "json", "output format: json, yaml or csv")
	flags.String("out", "", "write output to this file instead of stdout")
	flags.String("metrics-file", "", "write Prometheus metrics to this textfile on exit")
	flags.BoolP("quiet", "q", false, "disable logging")

	for key, flag := range map[string]string{
		"archive_root": "root",
		"catalog":      "catalog",
		"workers":      "workers",
		"mmap":         "mmap",
		"output":       "output",
		"out":          "out",
		"metrics_file": "metrics-file",
		"quiet":        "quiet",
	} {
		_ = c.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(
		newQueryCmd(c),
		newInspectCmd(c),
		newAuditCmd(c),
		newVersionCmd(c),
	)

	// Metrics are exported after every subcommand, failed ones included.
	for _, sub := range root.Commands() {
		if run := sub.RunE; run != nil {
			sub.RunE = func(cmd *cobra.Command, args []string) error {
				return errs.Join(run(cmd, args), c.writeMetrics())
			}
		}
	}
	return root
}

func (c *cli) load(cmd *cobra.Command) error {
	v := c.v
	v.SetDefault("output", "json")
	v.SetDefault("open_attempts", 3)
	v.SetDefault("open_retry_delay", 50*time.Millisecond)

	v.SetEnvPrefix("REPORTVAULT")
	v.AutomaticEnv()

	if c.cfgFile != "" {
		v.SetConfigFile(c.cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.reportvault")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errs.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(&c.cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if _, err := parseFormat(c.cfg.Output); err != nil {
		return err
	}

	if c.cfg.MetricsFile != "" {
		c.metrics = installPromMetrics()
	}
	return nil
}

func (c *cli) logger() stdlog.Logger {
	if c.cfg.Quiet {
		return stdlog.Discard
	}
	return stdlog.NewStd(os.Stderr)
}

// engine builds a query engine from the resolved settings.
func (c *cli) engine() (*reportvault.Engine, error) {
	if c.cfg.ArchiveRoot == "" {
		return nil, fmt.Errorf("an archive root is required (--root or REPORTVAULT_ARCHIVE_ROOT)")
	}
	if c.cfg.Catalog == "" {
		return nil, fmt.Errorf("a catalog is required (--catalog or REPORTVAULT_CATALOG)")
	}
	cat, err := reportvault.LoadCatalog(c.cfg.Catalog)
	if err != nil {
		return nil, err
	}
	return reportvault.New(reportvault.Config{
		ArchiveRoot:    c.cfg.ArchiveRoot,
		Catalog:        cat,
		Workers:        c.cfg.Workers,
		UseMmap:        c.cfg.UseMmap,
		OpenAttempts:   c.cfg.OpenAttempts,
		OpenRetryDelay: c.cfg.OpenRetryDelay,
		Logger:         c.logger(),
	})
}

// emit writes data in the configured format to --out, or to stdout.
func (c *cli) emit(data any) error {
	format, err := parseFormat(c.cfg.Output)
	if err != nil {
		return err
	}
	if c.cfg.Out == "" {
		return outputTo(c.stdout, format, data)
	}
	f, err := os.Create(c.cfg.Out)
	if err != nil {
		return err
	}
	if err = outputTo(f, format, data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (c *cli) writeMetrics() error {
	if c.metrics == nil {
		return nil
	}
	return c.metrics.writeTextfile(c.cfg.MetricsFile)
}
