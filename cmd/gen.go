package cmd

import (
	"fmt"
	"io"

	"github.com/jaffee/commandeer"
	"github.com/sparkify/lake/etl"
	"github.com/spf13/cobra"
)

// GenMain is wrapped by NewGenCommand and only exported for testing purposes.
var GenMain *etl.GenMain

// NewGenCommand returns a new cobra command wrapping GenMain.
func NewGenCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var err error
	GenMain = etl.NewGenMain()
	genCommand := &cobra.Command{
		Use:   "gen",
		Short: "Generate a fake song catalog and activity log.",
		RunE: func(cmd *cobra.Command, args []string) error {
			sum, err := GenMain.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "wrote %v to %s\n", sum, GenMain.Output)
			return nil
		},
	}
	flags := genCommand.Flags()
	err = commandeer.Flags(flags, GenMain)
	if err != nil {
		panic(err)
	}
	return genCommand
}

func init() {
	subcommandFns["gen"] = NewGenCommand
}
