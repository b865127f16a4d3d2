package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// SyncResult is the sync command's output payload.
type SyncResult struct {
	Cycle          string `json:"cycle"`
	Created        int    `json:"created"`
	Updated        int    `json:"updated"`
	Pulled         int    `json:"pulled"`
	Skipped        int    `json:"skipped"`
	DeferredPush   int    `json:"deferred_push"`
	DeferredPull   int    `json:"deferred_pull"`
	Failures       int    `json:"failures"`
	CursorAdvanced bool   `json:"cursor_advanced"`
	Cursor         string `json:"cursor"`
	DurationMs     int64  `json:"duration_ms"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a single sync cycle and exit",
		Long: `Run one full sync cycle (push creates, push updates, pull) and
report what happened. Exits non-zero when the backend was unreachable or any
table failed.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSyncOnce(rootOpts, cmd)
		},
	}
	return cmd
}

func runSyncOnce(opts *RootOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	cfg, st, err := openStore(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "startup failed", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	eng, err := buildEngine(cfg, st, nil)
	if err != nil {
		return WrapExitError(ExitCommandError, "startup failed", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	report, err := eng.RunCycle(ctx)
	if err != nil {
		_ = formatter.Error("sync cycle failed", err.Error())
		return WrapExitError(ExitFailure, "sync cycle failed", err)
	}

	result := SyncResult{
		Cycle:          report.Cycle,
		Created:        report.Created,
		Updated:        report.Updated,
		Pulled:         report.Pulled,
		Skipped:        report.Skipped,
		DeferredPush:   report.DeferredPush,
		DeferredPull:   report.DeferredPull,
		Failures:       len(report.Failures),
		CursorAdvanced: report.CursorAdvanced,
		Cursor:         report.Cursor.Format(time.RFC3339Nano),
		DurationMs:     report.Finished.Sub(report.Started).Milliseconds(),
	}

	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		fmt.Fprint(cmd.OutOrStdout(), formatSyncResult(result))
	}

	if len(report.Failures) > 0 {
		return WrapExitError(ExitFailure,
			fmt.Sprintf("%d table(s) failed during the cycle", len(report.Failures)), nil)
	}
	return nil
}

func formatSyncResult(r SyncResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sync cycle %s finished in %dms\n", r.Cycle, r.DurationMs)
	fmt.Fprintf(&b, "  pushed:   %d created, %d updated\n", r.Created, r.Updated)
	fmt.Fprintf(&b, "  pulled:   %d applied, %d kept local\n", r.Pulled, r.Skipped)
	if r.DeferredPush+r.DeferredPull > 0 {
		fmt.Fprintf(&b, "  deferred: %d outbound, %d inbound (retried next cycle)\n",
			r.DeferredPush, r.DeferredPull)
	}
	if r.Failures > 0 {
		fmt.Fprintf(&b, "  failures: %d table(s), see log\n", r.Failures)
	}
	if r.CursorAdvanced {
		fmt.Fprintf(&b, "  cursor:   advanced to %s\n", r.Cursor)
	} else {
		fmt.Fprintf(&b, "  cursor:   held at %s\n", r.Cursor)
	}
	return b.String()
}
