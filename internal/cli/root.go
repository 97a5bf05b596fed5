// Package cli implements the swipesync command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jdziat/swipe-sync/pkg/app"
	"github.com/jdziat/swipe-sync/pkg/config"
	"github.com/jdziat/swipe-sync/pkg/core"
	"github.com/jdziat/swipe-sync/pkg/queue"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the swipesync root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "swipesync",
		Short:         "Offline action queue and sync daemon for job swiping",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range ValidFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewEnqueueCommand(opts))
	cmd.AddCommand(NewProcessCommand(opts))
	cmd.AddCommand(NewClearCommand(opts))

	return cmd
}

func (o *RootOptions) load(w io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, app.NewLogger(cfg, w), nil
}

// openQueue opens the configured storage and restores the persisted queue
// without processing it.
func (o *RootOptions) openQueue(ctx context.Context, w io.Writer) (*queue.Queue, func() error, error) {
	cfg, logger, err := o.load(w)
	if err != nil {
		return nil, nil, err
	}
	s, closer, err := app.OpenStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, err
	}
	q := queue.New(s,
		queue.StorageKey(cfg.Queue.StorageKey),
		queue.WithRetry(cfg.Retry()),
		queue.AutoProcess(false),
		queue.WithLogger(logger),
	)
	q.Restore(ctx)

	closeFn := func() error {
		if closer == nil {
			return nil
		}
		return closer.Close()
	}
	return q, closeFn, nil
}

func parseActionType(s string) (core.ActionType, error) {
	t := core.ActionType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown action type %q: must be one of %v", s, core.ActionTypes)
	}
	return t, nil
}
