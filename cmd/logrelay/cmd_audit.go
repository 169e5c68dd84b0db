package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"logrelay/internal/config"
	"logrelay/internal/storage"
	logx "logrelay/pkg/logx"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List the most recent delivery outcomes from the audit store",
	RunE:  runAudit,
}

func init() {
	auditCmd.Flags().IntP("limit", "n", 20, "number of outcomes to show")

	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.NewManager(configPath(cmd)).Parse()
	if err != nil {
		return err
	}
	driver := cfg.StorageDriver()
	if driver == "" {
		return errors.New("storage is not configured")
	}
	busy, err := cfg.Storage.BusyTimeoutDuration()
	if err != nil {
		return err
	}
	st, err := storage.Open(storage.Config{Driver: driver, Path: cfg.Storage.Path, BusyTimeout: busy}, logx.NewStderr("WARN"))
	if err != nil {
		return err
	}
	defer st.Close()

	outcomes, err := st.RecentOutcomes(context.Background(), limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tOUTCOME\tSINK\tSEVERITY\tLOGGER\tIN_WINDOW\tERROR")
	for _, o := range outcomes {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			o.At.Local().Format("2006-01-02 15:04:05"), o.Kind, o.Sink, dash(o.Severity), dash(o.Logger), o.InWindow, dash(o.Error))
	}
	return w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
