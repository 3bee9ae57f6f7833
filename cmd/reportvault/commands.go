package main

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/heyvito/reportvault"
)

// Set through -ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
)

func newQueryCmd(c *cli) *cobra.Command {
	var (
		revision string
		sections []string
		allLines bool
	)
	cmd := &cobra.Command{
		Use:   "query REPORT FIELD VALUE",
		Short: "Find the lines of a report where a field holds a value",
		Long: `Looks VALUE up in the index of FIELD, reads the authorized pages it points
to, and prints the matching lines. Only pages inside the sections given with
--section are read, unless the report has no sections at all.

No matches is not an error: an empty result is printed.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.engine()
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			res, err := e.Query(cmd.Context(), reportvault.Request{
				Report:             args[0],
				Revision:           revision,
				Field:              args[1],
				Value:              args[2],
				AuthorizedSections: sections,
				AllLines:           allLines,
			})
			if err != nil {
				return err
			}
			return c.emit(res)
		},
	}
	cmd.Flags().StringVar(&revision, "revision", "", "revision or revision prefix (default: latest)")
	cmd.Flags().StringSliceVarP(&sections, "section", "s", nil, "authorized section (repeatable)")
	cmd.Flags().BoolVar(&allLines, "all-lines", false, "emit every classified line of matching pages")
	return cmd
}

func newInspectCmd(c *cli) *cobra.Command {
	var revision string
	cmd := &cobra.Command{
		Use:   "inspect REPORT",
		Short: "Describe the index file and page store of a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.engine()
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			in, err := e.Inspect(cmd.Context(), args[0], revision)
			if err != nil {
				return err
			}
			return c.emit(in)
		},
	}
	cmd.Flags().StringVar(&revision, "revision", "", "revision or revision prefix (default: latest)")
	return cmd
}

func newAuditCmd(c *cli) *cobra.Command {
	var (
		outputDir string
		reports   []string
		probes    []string
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Check every archive pair under the archive root",
		Long: `Audits every index file and page store pair under the archive root. One
JSON document per pair and a summary.json are written to --dir, which is
locked for the duration of the run.

Probes are FIELD=VALUE queries, optionally followed by @SECTION,SECTION and
prefixed by REPORT: to restrict them to one report.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			all := append(append([]string{}, c.cfg.Probes...), probes...)
			parsed := make([]reportvault.Probe, 0, len(all))
			for _, p := range all {
				probe, err := parseProbe(p)
				if err != nil {
					return err
				}
				parsed = append(parsed, probe)
			}

			e, err := c.engine()
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			summary, err := e.Audit(cmd.Context(), reportvault.AuditOptions{
				OutputDir: outputDir,
				Reports:   reports,
				Probes:    parsed,
				Workers:   c.cfg.Workers,
			})
			if summary != nil {
				if emitErr := c.emit(summary); emitErr != nil && err == nil {
					err = emitErr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&outputDir, "dir", "", "directory receiving audit results")
	cmd.Flags().StringSliceVar(&reports, "report", nil, "audit only this report (repeatable)")
	cmd.Flags().StringArrayVar(&probes, "probe", nil, "probe query, [REPORT:]FIELD=VALUE[@SECTION,...] (repeatable)")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

// parseProbe decodes [REPORT:]FIELD=VALUE[@SECTION,...].
func parseProbe(s string) (reportvault.Probe, error) {
	var p reportvault.Probe
	spec := s
	if i := strings.LastIndex(spec, "@"); i >= 0 {
		for _, name := range strings.Split(spec[i+1:], ",") {
			if name = strings.TrimSpace(name); name != "" {
				p.AuthorizedSections = append(p.AuthorizedSections, name)
			}
		}
		spec = spec[:i]
	}
	field, value, ok := strings.Cut(spec, "=")
	if !ok || field == "" {
		return p, fmt.Errorf("invalid probe %q: expected [REPORT:]FIELD=VALUE[@SECTION,...]", s)
	}
	if report, name, found := strings.Cut(field, ":"); found {
		p.Report, field = report, name
	}
	p.Field = field
	p.Value = value
	return p, nil
}

func newVersionCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(c.stdout, "reportvault %s\n", version)
			_, _ = fmt.Fprintf(c.stdout, "  Go:     %s\n", runtime.Version())
			_, _ = fmt.Fprintf(c.stdout, "  Commit: %s\n", commit)
		},
	}
}
