package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jdziat/swipe-sync/pkg/app"
	"github.com/jdziat/swipe-sync/pkg/core"
)

type statusOutput struct {
	QueueLength int                  `json:"queueLength"`
	Actions     []*core.QueuedAction `json:"actions"`
}

// NewStatusCommand prints the persisted queue.
func NewStatusCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queued actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, closeFn, err := root.openQueue(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeFn()

			out := statusOutput{QueueLength: q.Len(), Actions: q.Pending()}
			if out.Actions == nil {
				out.Actions = []*core.QueuedAction{}
			}
			return writeStatus(cmd.OutOrStdout(), root.Format, out)
		},
	}
}

func writeStatus(w io.Writer, format string, out statusOutput) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Fprintf(w, "queued=%d\n", out.QueueLength)
	for _, a := range out.Actions {
		fmt.Fprintf(w, "%s\t%s\t%s\tretries=%d\tqueued=%s\n",
			a.ID, a.Type, a.Payload.JobID, a.Retries, a.CreatedAt().UTC().Format(time.RFC3339))
	}
	return nil
}

// NewEnqueueCommand appends an action to the persisted queue.
func NewEnqueueCommand(root *RootOptions) *cobra.Command {
	var (
		reason   string
		decision string
	)

	cmd := &cobra.Command{
		Use:   "enqueue <type> <job-id>",
		Short: "Queue an action for delivery",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseActionType(args[0])
			if err != nil {
				return err
			}
			q, closeFn, err := root.openQueue(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeFn()

			id, err := q.Enqueue(cmd.Context(), t, core.Payload{
				JobID:  args[1],
				Reason: reason,
				Action: core.Decision(decision),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "report reason")
	cmd.Flags().StringVar(&decision, "decision", "", "decision being undone (rollback only)")
	return cmd
}

// NewProcessCommand delivers the persisted queue once and exits.
func NewProcessCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Deliver queued actions to the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			a, err := app.New(ctx, cfg, app.WithLogger(logger))
			if err != nil {
				return err
			}
			defer a.Close()

			if !a.Monitor.Check(ctx) {
				return fmt.Errorf("backend %s is unreachable", cfg.APIURL)
			}
			a.Start(ctx)
			a.Queue.Wait()

			fmt.Fprintf(cmd.OutOrStdout(), "remaining=%d\n", a.Queue.Len())
			return nil
		},
	}
}

// NewClearCommand drops every queued action.
func NewClearCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop all queued actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, closeFn, err := root.openQueue(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeFn()

			n := q.Len()
			q.Clear(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "cleared=%d\n", n)
			return nil
		},
	}
}
