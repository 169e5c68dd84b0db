package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"logrelay/internal/app"
	logx "logrelay/pkg/logx"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the relay until interrupted (or until stdin closes)",
	RunE:  runRelay,
}

func init() {
	runCmd.Flags().Bool("stdin", false, "read log lines from standard input; exit when it closes")
	runCmd.Flags().StringSlice("follow", nil, "follow a log file (repeatable)")
	runCmd.Flags().Duration("stop-timeout", 5*time.Second, "upper bound for graceful shutdown")

	rootCmd.AddCommand(runCmd)
}

func runRelay(cmd *cobra.Command, args []string) error {
	stdin, _ := cmd.Flags().GetBool("stdin")
	follow, _ := cmd.Flags().GetStringSlice("follow")
	stopTimeout, _ := cmd.Flags().GetDuration("stop-timeout")

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(app.Options{ConfigPath: configPath(cmd), Stdin: stdin, Follow: follow})
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Stop(context.Background(), app.StopFatalError)
		return err
	}
	notifySystemd(a.Logger(), daemon.SdNotifyReady)

	reason := app.StopUnknown
	select {
	case <-ctx.Done():
		reason = app.StopSignal
	case <-a.StdinDone():
		reason = app.StopInputEOF
	case <-a.Done():
		reason = app.StopFatalError
	}
	runErr := a.Err()

	notifySystemd(a.Logger(), daemon.SdNotifyStopping)
	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	stopErr := a.Stop(stopCtx, reason)

	if reason == app.StopFatalError && runErr != nil {
		return runErr
	}
	if errors.Is(stopErr, context.DeadlineExceeded) {
		return stopErr
	}
	return nil
}

// notifySystemd is a no-op outside a systemd unit with NOTIFY_SOCKET set.
func notifySystemd(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify sent", logx.String("state", state))
	}
}
