package cmd

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/sparkify/lake"
	"github.com/sparkify/lake/aws/s3"
	"github.com/sparkify/lake/etl"
	"github.com/spf13/cobra"
)

// NewInspectCommand returns a new cobra command which reads back written
// tables and reports their partitions.
func NewInspectCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var output string
	var c s3.Config
	inspectCommand := &cobra.Command{
		Use:   "inspect [table...]",
		Short: "Count the rows in each partition of written tables.",
		Long: `Reads back every data file of the named tables (all of them if none
are named), checks each row against its partition, and prints row
counts per partition.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := etl.OpenStore(output, c)
			if err != nil {
				return errors.Wrap(err, "opening output")
			}
			if len(args) == 0 {
				for _, t := range lake.Tables {
					args = append(args, t.Name)
				}
			}
			for _, table := range args {
				rep, err := etl.Inspect(cmd.Context(), store, table)
				if err != nil {
					return errors.Wrapf(err, "inspecting %s", table)
				}
				state := "complete"
				if !rep.Complete {
					state = "INCOMPLETE"
				}
				fmt.Fprintf(stdout, "%s: %d rows in %d partitions (%s)\n", table, rep.Rows, len(rep.Partitions), state)
				for _, p := range rep.Partitions {
					name := p.Path
					if name == "" {
						name = "."
					}
					fmt.Fprintf(stdout, "  %s: %d rows in %d files\n", name, p.Rows, p.Files)
				}
			}
			return nil
		},
	}
	flags := inspectCommand.Flags()
	flags.StringVarP(&output, "output", "o", "lake", "Output root the tables were written to: a directory, or s3://bucket/prefix.")
	flags.StringVar(&c.Region, "region", "us-west-2", "AWS region.")
	flags.StringVar(&c.AccessKeyID, "access-key-id", "", "AWS access key ID.")
	flags.StringVar(&c.SecretAccessKey, "secret-access-key", "", "AWS secret access key.")
	flags.StringVar(&c.Endpoint, "endpoint", "", "Endpoint of an S3-compatible service.")
	return inspectCommand
}

func init() {
	subcommandFns["inspect"] = NewInspectCommand
}
