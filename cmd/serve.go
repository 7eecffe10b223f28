package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kilianp07/ghsdash/app"
	"github.com/kilianp07/ghsdash/config"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(func(c *config.Config) {
			setIf(&c.Server.Addr, serveAddr)
		}, func(ctx context.Context, rt *app.Runtime) error {
			svc, err := app.New(rt)
			if err != nil {
				return err
			}
			return svc.Run(ctx)
		})
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}
