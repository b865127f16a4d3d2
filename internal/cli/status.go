package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tillsync/tillsync/internal/store"
)

// EntityStatus describes one entity's sync backlog.
type EntityStatus struct {
	Entity        string `json:"entity"`
	PendingCreate int    `json:"pending_create"`
	PendingUpdate int    `json:"pending_update"`
	Synced        int    `json:"synced"`
}

// StatusResult is the status command's output payload.
type StatusResult struct {
	Entities []EntityStatus `json:"entities"`
	Cursor   string         `json:"cursor"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pending sync work per table",
		Long: `Show how many rows of each table are waiting to be created or
updated remotely, and the timestamp of the last fully applied pull.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
	return cmd
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	_, st, err := openStore(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "startup failed", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	result := StatusResult{}
	for _, entity := range st.Registry().EntitiesInDependencyOrder() {
		es := EntityStatus{Entity: entity.Name}
		if es.PendingCreate, err = st.CountByStatus(ctx, entity.Name, store.StatusPendingCreate); err != nil {
			return WrapExitError(ExitCommandError, "counting rows", err)
		}
		if es.PendingUpdate, err = st.CountByStatus(ctx, entity.Name, store.StatusPendingUpdate); err != nil {
			return WrapExitError(ExitCommandError, "counting rows", err)
		}
		if es.Synced, err = st.CountByStatus(ctx, entity.Name, store.StatusSynced); err != nil {
			return WrapExitError(ExitCommandError, "counting rows", err)
		}
		result.Entities = append(result.Entities, es)
	}

	cursor, err := st.LastSyncTimestamp(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "reading sync cursor", err)
	}
	result.Cursor = cursor.Format(time.RFC3339Nano)

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprint(cmd.OutOrStdout(), formatStatus(result))
	return nil
}

func formatStatus(r StatusResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %8s %8s %8s\n", "TABLE", "CREATE", "UPDATE", "SYNCED")
	for _, es := range r.Entities {
		fmt.Fprintf(&b, "%-20s %8d %8d %8d\n",
			es.Entity, es.PendingCreate, es.PendingUpdate, es.Synced)
	}
	fmt.Fprintf(&b, "\nLast pull cursor: %s\n", r.Cursor)
	return b.String()
}
