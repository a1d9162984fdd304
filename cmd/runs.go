package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/sparkify/lake/boltdb"
	"github.com/spf13/cobra"
)

// NewRunsCommand returns a new cobra command listing the runs in a ledger.
func NewRunsCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var ledger string
	var last int
	runsCommand := &cobra.Command{
		Use:   "runs",
		Short: "List the runs recorded in a ledger.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if ledger == "" {
				return errors.New("a ledger file is required")
			}
			l, err := boltdb.OpenLedger(ledger)
			if err != nil {
				return err
			}
			defer l.Close()
			runs, err := l.Runs(last)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tSTARTED\tTOOK\tSONGS\tEVENTS\tSKIPPED\tSONGPLAYS\tRESULT")
			for _, r := range runs {
				result := "ok"
				if !r.Succeeded() {
					result = r.Error
				}
				var plays int64
				if t, ok := r.Table("songplays"); ok {
					plays = t.Rows
				}
				fmt.Fprintf(tw, "%s\t%s\t%v\t%d\t%d\t%d\t%d\t%s\n",
					r.RunID, r.Started.Format(time.RFC3339), r.Finished.Sub(r.Started).Round(time.Millisecond),
					r.SongRecords, r.EventRecords, r.ParseErrors+r.InvalidTimestamps, plays, result)
			}
			return tw.Flush()
		},
	}
	flags := runsCommand.Flags()
	flags.StringVarP(&ledger, "ledger", "l", "", "Bolt ledger file runs were recorded in.")
	flags.IntVarP(&last, "last", "n", 20, "Number of most recent runs to list. 0 lists all of them.")
	return runsCommand
}

func init() {
	subcommandFns["runs"] = NewRunsCommand
}
