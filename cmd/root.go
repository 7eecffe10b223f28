package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/ghsdash/app"
	"github.com/kilianp07/ghsdash/config"
	coremon "github.com/kilianp07/ghsdash/core/monitoring"
	"github.com/kilianp07/ghsdash/infra/logger"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "ghsdash",
	Short:         "Green Healthy Schools dashboard and data pipelines",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (yaml or json)")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

// withRuntime loads the configuration, opens the shared runtime and runs fn
// with a context cancelled on SIGINT or SIGTERM.
func withRuntime(override func(*config.Config), fn func(ctx context.Context, rt *app.Runtime) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if override != nil {
		override(cfg)
	}
	rt, err := app.NewRuntime(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.New("main").Errorf("runtime close: %v", err)
		}
	}()
	defer coremon.Recover()
	return fn(ctx, rt)
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
