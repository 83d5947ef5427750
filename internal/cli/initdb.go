package cli

import (
	"github.com/spf13/cobra"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create the database and the indexes the queries rely on",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.close()

		if err := rt.store.EnsureSchema(cmd.Context()); err != nil {
			return err
		}

		rt.log.WithField("driver", rt.store.Driver()).Info("database initialised")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initDBCmd)
}
