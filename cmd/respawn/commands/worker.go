package commands

import (
	"os"

	"github.com/spf13/cobra"
	"go.trai.ch/respawn/internal/core/domain"
	"go.trai.ch/respawn/internal/worker"
)

func (c *CLI) newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:    domain.WorkerCommand,
		Short:  "Run the program inside a worker process (internal use)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// The coordinator passes the control channel as the first extra file.
			control := os.NewFile(uintptr(worker.ControlFD), "control")
			return c.app.RunWorker(cmd.Context(), control)
		},
	}
}
