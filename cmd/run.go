package cmd

import (
	"io"

	"github.com/jaffee/commandeer"
	"github.com/sparkify/lake/etl"
	"github.com/spf13/cobra"
)

// RunMain is wrapped by NewRunCommand and only exported for testing purposes.
var RunMain *etl.Main

// NewRunCommand returns a new cobra command wrapping RunMain.
func NewRunCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var err error
	RunMain = etl.NewMain()
	runCommand := &cobra.Command{
		Use:   "run",
		Short: "Run the ETL once, replacing every output table.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := RunMain.Run(cmd.Context())
			return err
		},
	}
	flags := runCommand.Flags()
	err = commandeer.Flags(flags, RunMain)
	if err != nil {
		panic(err)
	}
	return runCommand
}

func init() {
	subcommandFns["run"] = NewRunCommand
}
