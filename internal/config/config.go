package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/riskibarqy/fpl-combination-analysis/internal/platform/logging"
)

const (
	CacheBackendFile   = "file"
	CacheBackendSQLite = "sqlite"
	CacheBackendMemory = "memory"
)

// Config stores runtime configuration for the engine and the CLI.
type Config struct {
	AppEnv         string `validate:"oneof=dev stage prod"`
	ServiceName    string `validate:"required"`
	ServiceVersion string
	LogLevel       logging.Level
	LogFormat      logging.Format

	FPLBaseURL                 string        `validate:"required,url"`
	FPLUserAgent               string        `validate:"required"`
	FPLTimeout                 time.Duration `validate:"gt=0"`
	FPLMaxRetries              int           `validate:"gte=0"`
	FPLCircuitEnabled          bool
	FPLCircuitFailureCount     int           `validate:"gte=1"`
	FPLCircuitOpenTimeout      time.Duration `validate:"gt=0"`
	FPLCircuitHalfOpenMaxReq   int           `validate:"gte=1"`
	FetchMode                  string        `validate:"oneof=conservative moderate aggressive maximum"`
	FetchWorkers               int           `validate:"gte=1,lte=64"`
	FetchMaxAttempts           int           `validate:"gte=1"`
	FetchBackoffInitial        time.Duration `validate:"gt=0"`
	FetchBackoffMax            time.Duration `validate:"gtefield=FetchBackoffInitial"`
	FetchManagerTimeout        time.Duration `validate:"gt=0"`
	StandingsPageDelay         time.Duration `validate:"gte=0"`
	StandingsMaxPages          int           `validate:"gte=1"`
	CacheBackend               string        `validate:"oneof=file sqlite memory"`
	CacheDir                   string        `validate:"required_if=CacheBackend file"`
	CacheSQLitePath            string        `validate:"required_if=CacheBackend sqlite"`
	CacheCompress              bool
	CacheLeagueTTL             time.Duration `validate:"gte=0"`
	MemoryCacheTTL             time.Duration `validate:"gt=0"`
	MemoryCacheMaxLeagues      int           `validate:"gte=1"`
	SearchDefaultLimit         int           `validate:"gte=1"`
	UptraceEnabled             bool
	UptraceDSN                 string
	PyroscopeEnabled           bool
	PyroscopeServerAddress     string
	PyroscopeAppName           string
	PyroscopeAuthToken         string
	PyroscopeBasicAuthUser     string
	PyroscopeBasicAuthPassword string
	PyroscopeUploadRate        time.Duration `validate:"gt=0"`
}

// FetchPreset is a named speed profile for picks fetching.
type FetchPreset struct {
	Workers   int
	PageDelay time.Duration
}

var FetchPresets = map[string]FetchPreset{
	"conservative": {Workers: 3, PageDelay: 500 * time.Millisecond},
	"moderate":     {Workers: 8, PageDelay: 200 * time.Millisecond},
	"aggressive":   {Workers: 15, PageDelay: 100 * time.Millisecond},
	"maximum":      {Workers: 25, PageDelay: 0},
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

func Load() (Config, error) {
	appEnv, err := parseAppEnv(getEnv("APP_ENV", EnvDev))
	if err != nil {
		return Config{}, err
	}

	logFormatDefault := string(logging.FormatJSON)
	if appEnv == EnvDev {
		logFormatDefault = string(logging.FormatConsole)
	}

	fetchMode := strings.ToLower(strings.TrimSpace(getEnv("FETCH_MODE", "moderate")))
	preset, ok := FetchPresets[fetchMode]
	if !ok {
		return Config{}, fmt.Errorf("invalid FETCH_MODE %q: valid values are conservative, moderate, aggressive, maximum", fetchMode)
	}
	fetchWorkers, err := getEnvAsInt("FETCH_WORKERS", preset.Workers)
	if err != nil {
		return Config{}, fmt.Errorf("parse FETCH_WORKERS: %w", err)
	}
	fetchMaxAttempts, err := getEnvAsInt("FETCH_MAX_ATTEMPTS", 3)
	if err != nil {
		return Config{}, fmt.Errorf("parse FETCH_MAX_ATTEMPTS: %w", err)
	}
	fetchBackoffInitial, err := getEnvAsDuration("FETCH_BACKOFF_INITIAL", "500ms")
	if err != nil {
		return Config{}, fmt.Errorf("parse FETCH_BACKOFF_INITIAL: %w", err)
	}
	fetchBackoffMax, err := getEnvAsDuration("FETCH_BACKOFF_MAX", "10s")
	if err != nil {
		return Config{}, fmt.Errorf("parse FETCH_BACKOFF_MAX: %w", err)
	}
	fetchManagerTimeout, err := getEnvAsDuration("FETCH_MANAGER_TIMEOUT", "10s")
	if err != nil {
		return Config{}, fmt.Errorf("parse FETCH_MANAGER_TIMEOUT: %w", err)
	}
	standingsPageDelay, err := getEnvAsDuration("STANDINGS_PAGE_DELAY", preset.PageDelay.String())
	if err != nil {
		return Config{}, fmt.Errorf("parse STANDINGS_PAGE_DELAY: %w", err)
	}
	standingsMaxPages, err := getEnvAsInt("STANDINGS_MAX_PAGES", 2000)
	if err != nil {
		return Config{}, fmt.Errorf("parse STANDINGS_MAX_PAGES: %w", err)
	}

	fplTimeout, err := getEnvAsDuration("FPL_TIMEOUT", "10s")
	if err != nil {
		return Config{}, fmt.Errorf("parse FPL_TIMEOUT: %w", err)
	}
	fplMaxRetries, err := getEnvAsInt("FPL_MAX_RETRIES", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse FPL_MAX_RETRIES: %w", err)
	}
	fplCircuitEnabled, err := strconv.ParseBool(getEnv("FPL_CIRCUIT_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse FPL_CIRCUIT_ENABLED: %w", err)
	}
	fplCircuitFailureCount, err := getEnvAsInt("FPL_CIRCUIT_FAILURE_COUNT", 5)
	if err != nil {
		return Config{}, fmt.Errorf("parse FPL_CIRCUIT_FAILURE_COUNT: %w", err)
	}
	fplCircuitOpenTimeout, err := getEnvAsDuration("FPL_CIRCUIT_OPEN_TIMEOUT", "15s")
	if err != nil {
		return Config{}, fmt.Errorf("parse FPL_CIRCUIT_OPEN_TIMEOUT: %w", err)
	}
	fplCircuitHalfOpenMaxReq, err := getEnvAsInt("FPL_CIRCUIT_HALF_OPEN_MAX_REQ", 1)
	if err != nil {
		return Config{}, fmt.Errorf("parse FPL_CIRCUIT_HALF_OPEN_MAX_REQ: %w", err)
	}

	cacheDir := strings.TrimSpace(getEnv("CACHE_DIR", defaultCacheDir()))
	cacheCompress, err := strconv.ParseBool(getEnv("CACHE_COMPRESS", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse CACHE_COMPRESS: %w", err)
	}
	cacheLeagueTTL, err := getEnvAsDuration("CACHE_LEAGUE_TTL", "24h")
	if err != nil {
		return Config{}, fmt.Errorf("parse CACHE_LEAGUE_TTL: %w", err)
	}
	memoryCacheTTL, err := getEnvAsDuration("MEMORY_CACHE_TTL", "24h")
	if err != nil {
		return Config{}, fmt.Errorf("parse MEMORY_CACHE_TTL: %w", err)
	}
	memoryCacheMaxLeagues, err := getEnvAsInt("MEMORY_CACHE_MAX_LEAGUES", 5)
	if err != nil {
		return Config{}, fmt.Errorf("parse MEMORY_CACHE_MAX_LEAGUES: %w", err)
	}
	searchDefaultLimit, err := getEnvAsInt("SEARCH_DEFAULT_LIMIT", 10)
	if err != nil {
		return Config{}, fmt.Errorf("parse SEARCH_DEFAULT_LIMIT: %w", err)
	}

	uptraceEnabled, err := strconv.ParseBool(getEnv("UPTRACE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse UPTRACE_ENABLED: %w", err)
	}
	uptraceDSN := strings.TrimSpace(getEnv("UPTRACE_DSN", ""))
	if uptraceDSN == "" {
		uptraceDSN = parseUptraceDSNFromOTLPHeaders(getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""))
	}
	if uptraceEnabled && uptraceDSN == "" {
		return Config{}, fmt.Errorf("UPTRACE_DSN is required when UPTRACE_ENABLED=true")
	}

	pyroscopeEnabled, err := strconv.ParseBool(getEnv("PYROSCOPE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PYROSCOPE_ENABLED: %w", err)
	}
	pyroscopeServerAddress := strings.TrimSpace(getEnv("PYROSCOPE_SERVER_ADDRESS", ""))
	if pyroscopeEnabled && pyroscopeServerAddress == "" {
		return Config{}, fmt.Errorf("PYROSCOPE_SERVER_ADDRESS is required when PYROSCOPE_ENABLED=true")
	}
	pyroscopeUploadRate, err := getEnvAsDuration("PYROSCOPE_UPLOAD_RATE", "15s")
	if err != nil {
		return Config{}, fmt.Errorf("parse PYROSCOPE_UPLOAD_RATE: %w", err)
	}

	cfg := Config{
		AppEnv:                     appEnv,
		ServiceName:                getEnv("APP_SERVICE_NAME", "fplcombo"),
		ServiceVersion:             getEnv("APP_SERVICE_VERSION", "dev"),
		LogLevel:                   parseLogLevel(getEnv("APP_LOG_LEVEL", "info")),
		LogFormat:                  logging.ParseFormat(getEnv("LOG_FORMAT", logFormatDefault)),
		FPLBaseURL:                 strings.TrimRight(strings.TrimSpace(getEnv("FPL_BASE_URL", "https://fantasy.premierleague.com/api")), "/"),
		FPLUserAgent:               getEnv("FPL_USER_AGENT", "FPL League Analysis Tool"),
		FPLTimeout:                 fplTimeout,
		FPLMaxRetries:              fplMaxRetries,
		FPLCircuitEnabled:          fplCircuitEnabled,
		FPLCircuitFailureCount:     fplCircuitFailureCount,
		FPLCircuitOpenTimeout:      fplCircuitOpenTimeout,
		FPLCircuitHalfOpenMaxReq:   fplCircuitHalfOpenMaxReq,
		FetchMode:                  fetchMode,
		FetchWorkers:               fetchWorkers,
		FetchMaxAttempts:           fetchMaxAttempts,
		FetchBackoffInitial:        fetchBackoffInitial,
		FetchBackoffMax:            fetchBackoffMax,
		FetchManagerTimeout:        fetchManagerTimeout,
		StandingsPageDelay:         standingsPageDelay,
		StandingsMaxPages:          standingsMaxPages,
		CacheBackend:               strings.ToLower(strings.TrimSpace(getEnv("CACHE_BACKEND", CacheBackendFile))),
		CacheDir:                   cacheDir,
		CacheSQLitePath:            strings.TrimSpace(getEnv("CACHE_SQLITE_PATH", filepath.Join(cacheDir, "cache.db"))),
		CacheCompress:              cacheCompress,
		CacheLeagueTTL:             cacheLeagueTTL,
		MemoryCacheTTL:             memoryCacheTTL,
		MemoryCacheMaxLeagues:      memoryCacheMaxLeagues,
		SearchDefaultLimit:         searchDefaultLimit,
		UptraceEnabled:             uptraceEnabled,
		UptraceDSN:                 uptraceDSN,
		PyroscopeEnabled:           pyroscopeEnabled,
		PyroscopeServerAddress:     pyroscopeServerAddress,
		PyroscopeAuthToken:         strings.TrimSpace(getEnv("PYROSCOPE_AUTH_TOKEN", "")),
		PyroscopeBasicAuthUser:     strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_USER", "")),
		PyroscopeBasicAuthPassword: strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_PASSWORD", "")),
		PyroscopeUploadRate:        pyroscopeUploadRate,
	}
	cfg.PyroscopeAppName = strings.TrimSpace(getEnv("PYROSCOPE_APP_NAME", cfg.ServiceName))
	if cfg.PyroscopeEnabled && cfg.PyroscopeAppName == "" {
		return Config{}, fmt.Errorf("PYROSCOPE_APP_NAME cannot be empty when PYROSCOPE_ENABLED=true")
	}

	if err := configValidator.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil && dir != "" {
		return filepath.Join(dir, "fplcombo")
	}
	return ".fpl-cache"
}

func parseLogLevel(v string) logging.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return logging.LevelDebug
	case "warn", "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}

	return out, nil
}

func getEnvAsDuration(key, fallback string) (time.Duration, error) {
	return time.ParseDuration(strings.TrimSpace(getEnv(key, fallback)))
}

func parseUptraceDSNFromOTLPHeaders(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	items := strings.Split(raw, ",")
	for _, item := range items {
		parts := strings.SplitN(strings.TrimSpace(item), "=", 2)
		if len(parts) != 2 {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(parts[0]), "uptrace-dsn") {
			value := strings.TrimSpace(parts[1])
			return strings.Trim(value, "\"'")
		}
	}

	return ""
}

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

func parseAppEnv(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case EnvDev, EnvStage, EnvProd:
		return value, nil
	default:
		return "", fmt.Errorf("invalid APP_ENV %q: valid values are %s, %s, %s", v, EnvDev, EnvStage, EnvProd)
	}
}
