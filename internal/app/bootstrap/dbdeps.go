// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/juntos/internal/app/system/clientsession"
	"github.com/dalemusser/juntos/internal/app/system/docstore"
	"github.com/dalemusser/juntos/internal/app/system/localcache"
	"github.com/dalemusser/juntos/internal/app/system/ratelimit"
	"github.com/dalemusser/juntos/internal/app/system/workers"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database/back-end dependencies for the app. Mongo and Redis
// fields are nil when the memory backends are selected.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database
	Redis         *redis.Client

	Docs  docstore.Service
	Cache localcache.Cache

	// Runtime is allocated by ConnectDB and filled in by Startup.
	Runtime *Runtime
}

// Runtime holds the process-wide objects built at startup.
type Runtime struct {
	Limiter  *ratelimit.Limiter
	Registry *clientsession.Registry
	Cleanup  *workers.SessionCleanup
}
