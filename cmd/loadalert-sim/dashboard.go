package main

import (
	"github.com/spf13/cobra"

	"loadalert-sim/internal/dashboard"
	"loadalert-sim/internal/logging"
)

var dashboardOut string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render Grafana dashboards for the database sinks",
	Long:  "dashboard renders Grafana dashboard JSON using GREPTIMEDB_DATASOURCE_UID and POSTGRES_DATASOURCE_UID.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := dashboard.Render(dashboardOut); err != nil {
			return err
		}
		logging.FromContext(cmd.Context()).Info().Str("dir", dashboardOut).Msg("dashboards rendered")
		return nil
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardOut, "out", "build", "Output directory for rendered dashboards")
}
