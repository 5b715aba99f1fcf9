package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tapedeck/internal/daemon"
	"tapedeck/internal/notifications"
	"tapedeck/internal/refresher"
	"tapedeck/internal/statestore"
)

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the appliance daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			d, err := daemon.New(cfg, ctx.ensureLogger())
			if err != nil {
				return err
			}
			defer d.Close()

			if err := d.Start(signalCtx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "tapedeck daemon running; Ctrl-C to stop")
			<-signalCtx.Done()
			d.Stop()
			return nil
		},
	}
	return cmd
}

func newRefreshCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch newly added tapes and rebuild the catalog once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cat, err := daemon.NewCatalog(cfg, ctx.ensureLogger())
			if err != nil {
				return err
			}
			if err := cat.Build(cmd.Context(), false); err != nil {
				return fmt.Errorf("build catalog: %w", err)
			}

			store, err := statestore.Open(filepath.Join(cfg.Paths.StateDir, "tapedeck.db"))
			if err != nil {
				return err
			}
			defer store.Close()

			var outcome refresher.Result
			r := refresher.New(cat, filepath.Join(cfg.Paths.StateDir, "refresh.lock"), refresher.Options{
				LockTimeout: time.Duration(cfg.Refresh.LockTimeoutSeconds) * time.Second,
				OnResult:    func(res refresher.Result) { outcome = res },
				Logger:      ctx.ensureLogger(),
			})
			runErr := r.Force(cmd.Context())
			if outcome.RunID != "" {
				if err := store.RecordRefresh(cmd.Context(), outcome); err != nil {
					return fmt.Errorf("record refresh: %w", err)
				}
			}
			if runErr != nil {
				if errors.Is(runErr, refresher.ErrStaleLock) {
					return errors.New("another refresh is in progress")
				}
				return runErr
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Refresh complete: %d new tapes, %d dates in catalog.\n",
				outcome.Added, len(cat.Dates()))
			return nil
		},
	}
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent refresh runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := statestore.Open(filepath.Join(cfg.Paths.StateDir, "tapedeck.db"))
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.RecentRefreshes(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No refresh runs recorded.")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				status := "ok"
				if run.Error != "" {
					status = run.Error
				}
				rows = append(rows, []string{
					run.Finished.Local().Format("2006-01-02 15:04:05"),
					strconv.Itoa(run.Added),
					run.Finished.Sub(run.Started).Round(time.Second).String(),
					status,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]tableColumn{col("Finished"), numCol("Added"), numCol("Elapsed"), col("Status")},
				rows))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to show")
	return cmd
}

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification to the configured ntfy topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Notifications.NtfyTopic == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "No ntfy topic configured; nothing sent.")
				return nil
			}

			svc := notifications.NewService(cfg.Notifications.NtfyTopic, cfg.Notifications.RequestTimeout)
			sendCtx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := svc.TestNotification(sendCtx); err != nil {
				return fmt.Errorf("send test notification: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent.")
			return nil
		},
	}
	return cmd
}
