package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"logrelay/internal/app"
	"logrelay/internal/relay"
)

var emitCmd = &cobra.Command{
	Use:   "emit [flags] message...",
	Short: "Route a single log event through the relay and exit",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runEmit,
}

func init() {
	emitCmd.Flags().StringP("level", "l", "ERROR", "severity: DEBUG, INFO, WARNING, ERROR or CRITICAL")
	emitCmd.Flags().String("logger", "cli", "logger name shown in the notification")
	emitCmd.Flags().String("trace", "", "failure context rendered as a preformatted block")

	rootCmd.AddCommand(emitCmd)
}

func runEmit(cmd *cobra.Command, args []string) error {
	levelName, _ := cmd.Flags().GetString("level")
	loggerName, _ := cmd.Flags().GetString("logger")
	trace, _ := cmd.Flags().GetString("trace")

	sev := relay.ParseSeverity(levelName, 0)
	if sev == 0 {
		return fmt.Errorf("unknown level %q", levelName)
	}

	a, err := app.New(app.Options{ConfigPath: configPath(cmd)})
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Stop(ctx, app.StopCommand)
	}()

	a.Router().Logger(loggerName).Log(sev, strings.Join(args, " "), relay.WithTrace(trace))

	st := a.Stats()
	if st.SendFailed > 0 {
		return errors.New("telegram send failed")
	}
	return nil
}
