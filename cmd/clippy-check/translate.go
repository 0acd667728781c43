package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dkoosis/clippycheck/pkg/annotate"
	"github.com/dkoosis/clippycheck/pkg/cargo"
	"github.com/dkoosis/clippycheck/pkg/config"
	"github.com/dkoosis/clippycheck/pkg/report"
	"github.com/dkoosis/clippycheck/pkg/sarif"
)

func newTranslateCmd(opts *rootOptions, stdout io.Writer, getenv env) *cobra.Command {
	return &cobra.Command{
		Use:   "translate [file]",
		Short: "Convert saved clippy --message-format=json output into a report",
		Long: "Reads clippy JSON lines from a file (or stdin when omitted or \"-\") and\n" +
			"prints the check-run report as JSON or SARIF without calling the API.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				in = f
			}

			if opts.format != config.FormatJSON && opts.format != config.FormatSARIF {
				return fmt.Errorf("%w: unknown format %q", config.ErrInvalid, opts.format)
			}

			name := opts.name
			if name == "" {
				name = report.DefaultName
			}
			sha := opts.sha
			if sha == "" {
				sha = getenv("GITHUB_SHA")
			}

			startedAt := time.Now()
			annotations, err := annotate.Collect(cargo.Stream(in))
			if err != nil {
				return err
			}

			a := report.Assembler{NewID: uuid.NewString}
			r := a.Assemble(name, sha, startedAt, annotations)
			return writeReport(stdout, opts.output, opts.format, r)
		},
	}
}

func sarifEncode(w io.Writer, r report.Report) error {
	return sarif.NewEncoder(w).Encode(r.SARIF())
}
