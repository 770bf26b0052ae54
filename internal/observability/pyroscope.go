package observability

import (
	"context"
	"runtime/pprof"

	"github.com/grafana/pyroscope-go"
	"github.com/riskibarqy/fpl-combination-analysis/internal/config"
	"github.com/riskibarqy/fpl-combination-analysis/internal/platform/logging"
)

// cliProfiles skips the in-use heap views: a CLI run is too short for them to
// show anything the allocation profiles do not.
var cliProfiles = []pyroscope.ProfileType{
	pyroscope.ProfileCPU,
	pyroscope.ProfileAllocObjects,
	pyroscope.ProfileAllocSpace,
	pyroscope.ProfileGoroutines,
}

// InitPyroscope starts the profiler for one CLI run. The returned stop
// uploads what was collected, so it must run before the process exits.
func InitPyroscope(cfg config.Config, logger *logging.Logger) (func() error, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if !cfg.PyroscopeEnabled {
		return func() error { return nil }, nil
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName:   cfg.PyroscopeAppName,
		ServerAddress:     cfg.PyroscopeServerAddress,
		AuthToken:         cfg.PyroscopeAuthToken,
		BasicAuthUser:     cfg.PyroscopeBasicAuthUser,
		BasicAuthPassword: cfg.PyroscopeBasicAuthPassword,
		UploadRate:        cfg.PyroscopeUploadRate,
		Tags:              profileTags(cfg),
		ProfileTypes:      cliProfiles,
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("profiling run", "server_address", cfg.PyroscopeServerAddress)
	return profiler.Stop, nil
}

func profileTags(cfg config.Config) map[string]string {
	return map[string]string{
		"env":           cfg.AppEnv,
		"fetch_mode":    cfg.FetchMode,
		"cache_backend": cfg.CacheBackend,
	}
}

// LabelCommand tags samples taken on the calling goroutine, and on goroutines
// started from the returned context, with the CLI command being run.
func LabelCommand(ctx context.Context, command string) context.Context {
	ctx = pprof.WithLabels(ctx, pyroscope.Labels("command", command))
	pprof.SetGoroutineLabels(ctx)
	return ctx
}
