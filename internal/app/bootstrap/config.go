// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"time"

	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for Juntos.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_name, etc.
//   - Environment variables: JUNTOS_MONGO_URI, JUNTOS_SESSION_NAME, etc.
//   - Command-line flags: --mongo_uri, --session_name, etc.
var appConfigKeys = []config.AppKey{
	{Name: "docstore_backend", Default: BackendMongo, Desc: "Document service backend: 'mongo' or 'memory'"},
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "juntos", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size"},
	{Name: "mongo_min_pool_size", Default: 5, Desc: "MongoDB min connection pool size"},

	{Name: "redis_addr", Default: "", Desc: "Redis address for the profile cache (blank keeps it in memory)"},
	{Name: "redis_ttl", Default: "720h", Desc: "Expiry of cached profiles in Redis"},

	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "juntos-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_idle_timeout", Default: "2h", Desc: "Client sessions idle longer than this are closed"},
	{Name: "session_cleanup_interval", Default: "5m", Desc: "How often idle client sessions are swept"},

	{Name: "profile_fetch_attempts", Default: 3, Desc: "Profile load attempts after sign-in"},
	{Name: "profile_fetch_delay", Default: "500ms", Desc: "Delay between profile load attempts"},

	{Name: "latest_items_limit", Default: 15, Desc: "Number of items in the latest-activity view"},
	{Name: "gratitude_timezone", Default: "UTC", Desc: "IANA time zone whose midnight starts a gratitude day"},

	{Name: "signin_attempt_limit", Default: 5, Desc: "Failed sign-ins allowed per email within the window"},
	{Name: "signin_attempt_window", Default: "15m", Desc: "Window for signin_attempt_limit"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles .env files, config files,
// environment variables (WAFFLE_* for core, JUNTOS_* for app) and flags,
// merged with precedence flags > env > files > defaults.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "JUNTOS", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		DocstoreBackend:  appValues.String("docstore_backend"),
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		RedisAddr: appValues.String("redis_addr"),
		RedisTTL:  appValues.Duration("redis_ttl", 30*24*time.Hour),

		SessionKey:             appValues.String("session_key"),
		SessionName:            appValues.String("session_name"),
		SessionDomain:          appValues.String("session_domain"),
		SessionIdleTimeout:     appValues.Duration("session_idle_timeout", 2*time.Hour),
		SessionCleanupInterval: appValues.Duration("session_cleanup_interval", 5*time.Minute),

		ProfileFetchAttempts: appValues.Int("profile_fetch_attempts"),
		ProfileFetchDelay:    appValues.Duration("profile_fetch_delay", 500*time.Millisecond),

		LatestItemsLimit:  appValues.Int("latest_items_limit"),
		GratitudeTimezone: appValues.String("gratitude_timezone"),

		SigninAttemptLimit:  appValues.Int("signin_attempt_limit"),
		SigninAttemptWindow: appValues.Duration("signin_attempt_window", 15*time.Minute),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation so that bad
// settings abort startup before any backend is contacted.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	switch appCfg.DocstoreBackend {
	case BackendMongo:
		if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
			logger.Error("invalid MongoDB URI", zap.Error(err))
			return fmt.Errorf("invalid MongoDB URI: %w", err)
		}
		if appCfg.MongoDatabase == "" {
			return fmt.Errorf("mongo_database is required with the mongo backend")
		}
	case BackendMemory:
		logger.Warn("memory document backend selected; data is lost on restart")
	default:
		return fmt.Errorf("docstore_backend must be %q or %q, got %q", BackendMongo, BackendMemory, appCfg.DocstoreBackend)
	}

	if _, err := time.LoadLocation(appCfg.GratitudeTimezone); err != nil {
		return fmt.Errorf("invalid gratitude_timezone %q: %w", appCfg.GratitudeTimezone, err)
	}
	if appCfg.ProfileFetchAttempts < 1 {
		return fmt.Errorf("profile_fetch_attempts must be at least 1")
	}
	if appCfg.LatestItemsLimit < 1 {
		return fmt.Errorf("latest_items_limit must be at least 1")
	}
	if appCfg.SigninAttemptLimit < 1 || appCfg.SigninAttemptWindow <= 0 {
		return fmt.Errorf("signin_attempt_limit and signin_attempt_window must be positive")
	}
	if appCfg.SessionIdleTimeout <= 0 || appCfg.SessionCleanupInterval <= 0 {
		return fmt.Errorf("session_idle_timeout and session_cleanup_interval must be positive")
	}
	if coreCfg != nil && coreCfg.Env == "prod" && len(appCfg.SessionKey) < 32 {
		return fmt.Errorf("session_key must be at least 32 characters in prod")
	}
	return nil
}
