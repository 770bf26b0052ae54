package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/riskibarqy/fpl-combination-analysis/internal/app"
	"github.com/riskibarqy/fpl-combination-analysis/internal/config"
	"github.com/riskibarqy/fpl-combination-analysis/internal/observability"
	"github.com/riskibarqy/fpl-combination-analysis/internal/platform/logging"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// runtime holds what PersistentPreRunE builds for the subcommands. It is torn
// down by execute, since cobra skips post-run hooks when a command fails.
type runtime struct {
	out      io.Writer
	cfg      config.Config
	logger   *logging.Logger
	engine   *app.Engine
	shutdown []func(context.Context) error
	span     trace.Span
}

func newRootCommand(out io.Writer) (*cobra.Command, *runtime) {
	rt := &runtime{out: out}

	root := &cobra.Command{
		Use:           "fplcombo",
		Short:         "Find which managers in an FPL classic league own a combination of players",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.start(cmd.Context()); err != nil {
				return err
			}
			// Root span so usecase spans of this run share one trace.
			ctx := observability.LabelCommand(cmd.Context(), cmd.CommandPath())
			ctx, span := otel.Tracer("fplcombo").Start(ctx, "fplcombo "+cmd.CommandPath())
			rt.span = span
			cmd.SetContext(ctx)
			return nil
		},
	}
	root.SetOut(out)

	root.AddCommand(
		newLoadCommand(rt),
		newSearchCommand(rt),
		newComboCommand(rt),
		newCacheCommand(rt),
		newPlayersCommand(rt),
	)
	return root, rt
}

// execute runs the command tree and always releases the runtime, whether or
// not the command succeeded.
func execute(ctx context.Context, root *cobra.Command, rt *runtime) error {
	runErr := root.ExecuteContext(ctx)
	stopErr := rt.stop(ctx, runErr)
	if runErr != nil {
		return runErr
	}
	return stopErr
}

func (rt *runtime) start(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	rt.cfg = cfg

	rt.logger = logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logging.SetDefault(rt.logger)

	shutdownUptrace, err := observability.InitUptrace(cfg, rt.logger)
	if err != nil {
		return fmt.Errorf("init uptrace: %w", err)
	}
	rt.shutdown = append(rt.shutdown, shutdownUptrace)

	stopProfiler, err := observability.InitPyroscope(cfg, rt.logger)
	if err != nil {
		return fmt.Errorf("init pyroscope: %w", err)
	}
	rt.shutdown = append(rt.shutdown, func(context.Context) error { return stopProfiler() })

	engine, err := app.NewEngine(ctx, cfg, rt.logger)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	rt.engine = engine
	return nil
}

func (rt *runtime) stop(ctx context.Context, runErr error) error {
	if rt.span != nil {
		if runErr != nil {
			rt.span.RecordError(runErr)
		}
		rt.span.End()
		rt.span = nil
	}

	var firstErr error
	if rt.engine != nil {
		if err := rt.engine.Close(); err != nil {
			firstErr = fmt.Errorf("close cache: %w", err)
		}
		rt.engine = nil
	}

	// Flush telemetry even when the command was interrupted.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	for i := len(rt.shutdown) - 1; i >= 0; i-- {
		if err := rt.shutdown[i](shutdownCtx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	rt.shutdown = nil
	if rt.logger != nil {
		_ = rt.logger.Sync()
	}
	return firstErr
}
