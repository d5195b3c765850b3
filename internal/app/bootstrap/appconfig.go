// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// Document service backends.
const (
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables (JUNTOS_*), configuration
// files, or command-line flags (loaded in LoadConfig). Framework-level
// settings such as ports, TLS and log level live in WAFFLE's CoreConfig.
type AppConfig struct {
	// Document service
	DocstoreBackend  string // "mongo" or "memory"
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Durable local cache (profile mirror). Empty address keeps it in memory.
	RedisAddr string
	RedisTTL  time.Duration

	// Session cookie and client session lifetime
	SessionKey             string // Secret key for signing session cookies (must be strong in production)
	SessionName            string // Cookie name (default: juntos-session)
	SessionDomain          string // Cookie domain (blank means current host)
	SessionIdleTimeout     time.Duration
	SessionCleanupInterval time.Duration

	// Profile load after sign-in
	ProfileFetchAttempts int
	ProfileFetchDelay    time.Duration

	// Content
	LatestItemsLimit  int
	GratitudeTimezone string // IANA zone whose midnight starts a gratitude day

	// Sign-in throttling per email
	SigninAttemptLimit  int
	SigninAttemptWindow time.Duration
}
