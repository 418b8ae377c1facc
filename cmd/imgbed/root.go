package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var (
		settingsPath string
		jsonOutput   bool
	)
	a := &app{}

	cmd := &cobra.Command{
		Use:           "imgbed",
		Short:         "Image hosting over a bot relay and an R2 bucket",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(settingsPath)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "settings file (yaml)")
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")

	cmd.AddCommand(
		newServeCmd(a),
		newUploadCmd(a, &jsonOutput),
		newListCmd(a, &jsonOutput),
		newDeleteCmd(a, &jsonOutput),
		newStatsCmd(a, &jsonOutput),
		newSyncCmd(a, &jsonOutput),
		newProbeCmd(a, &jsonOutput),
		newConfigCmd(a, &jsonOutput),
	)

	return cmd
}
