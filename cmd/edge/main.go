package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/postcraft/edge/internal/config"
	"github.com/postcraft/edge/pkg/server"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/spf13/cobra"
)

var (
	configPath string
	envFiles   []string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "edge",
		Short:         "Edge functions for the postcraft scheduler",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env.local", ".env.development", ".env"}, "env files to load, first wins")

	root.AddCommand(newServeCmd(), newAutoPostCmd())
	return root
}

func loadConfig() (*config.Config, error) {
	config.LoadEnvFiles(envFiles)
	return config.LoadFromFile(configPath)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return server.New(cfg).Run(ctx)
		},
	}
}

func newAutoPostCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "autopost",
		Short: "Publish due scheduled posts once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := server.New(cfg).RunAutoPost(ctx)
			if err != nil {
				fiberlog.Errorf("auto-post sweep failed: %v", err)
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(res)
		},
	}
}

// executeContext is used by tests to run a command tree with args
func executeContext(ctx context.Context, args ...string) error {
	root := newRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
