package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tokenbot/internal/app"
	"tokenbot/internal/config"
)

func main() {
	root := &cobra.Command{
		Use:          "tokenbot",
		Short:        "Telegram notifier for newly initialized tokens",
		SilenceUsage: true,
		RunE:         runBot,
	}

	root.PersistentFlags().String("config", "", "config file path (json or yaml); env vars override it")
	root.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	root.Flags().String("health-addr", "", "status server listen address, empty disables it")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Watch the database and deliver notifications (default)",
		RunE:  runBot,
	}
	runCmd.Flags().String("health-addr", "", "status server listen address, empty disables it")
	root.AddCommand(runCmd)

	root.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate config and verify database and Telegram connectivity",
		RunE:  runCheck,
	})

	previewCmd := &cobra.Command{
		Use:   "preview",
		Short: "Print the notification for one stored record without sending it",
		RunE:  runPreview,
	}
	previewCmd.Flags().Int64("vid", 0, "record vid to render")
	_ = previewCmd.MarkFlagRequired("vid")
	root.AddCommand(previewCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newApp(cmd *cobra.Command) (*app.App, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}

func runBot(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Run(ctx)
}

func runCheck(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := a.Check(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "OK")
	return nil
}

func runPreview(cmd *cobra.Command, _ []string) error {
	vid, _ := cmd.Flags().GetInt64("vid")
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Preview(ctx, vid, cmd.OutOrStdout())
}
