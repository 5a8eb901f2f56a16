package commands

import (
	"github.com/spf13/cobra"
)

func (c *CLI) newCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove the persistent compile cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, _ := cmd.Flags().GetString("cache-directory")
			if !cmd.Flags().Changed("cache-directory") {
				opts, err := c.app.LoadOptions(".")
				if err != nil {
					return err
				}
				dir = opts.CacheDir
			}
			return c.app.Clean(cmd.Context(), dir)
		},
	}

	cmd.Flags().String("cache-directory", "", "Directory of the persistent compile cache")

	return cmd
}
