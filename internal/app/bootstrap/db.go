// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"

	"github.com/dalemusser/juntos/internal/app/system/docstore/memdocs"
	"github.com/dalemusser/juntos/internal/app/system/docstore/mongodocs"
	"github.com/dalemusser/juntos/internal/app/system/indexes"
	"github.com/dalemusser/juntos/internal/app/system/localcache"
	"github.com/dalemusser/juntos/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// redisKeyPrefix namespaces every cache key this app writes.
const redisKeyPrefix = "juntos:"

// ConnectDB opens the document service and the durable cache selected in
// appCfg.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	deps := DBDeps{Runtime: &Runtime{}}

	switch appCfg.DocstoreBackend {
	case BackendMemory:
		deps.Docs = memdocs.New()
		logger.Info("using in-memory document service")
	default:
		opts := options.Client().
			ApplyURI(appCfg.MongoURI).
			SetMaxPoolSize(appCfg.MongoMaxPoolSize).
			SetMinPoolSize(appCfg.MongoMinPoolSize)
		client, err := mongo.Connect(ctx, opts)
		if err != nil {
			return DBDeps{}, fmt.Errorf("connect mongo: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, timeouts.Ping())
		defer cancel()
		if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
			_ = client.Disconnect(ctx)
			return DBDeps{}, fmt.Errorf("ping mongo: %w", err)
		}
		deps.MongoClient = client
		deps.MongoDatabase = client.Database(appCfg.MongoDatabase)
		deps.Docs = mongodocs.New(deps.MongoDatabase, logger)
		logger.Info("connected to MongoDB", zap.String("database", appCfg.MongoDatabase))
	}

	if appCfg.RedisAddr == "" {
		deps.Cache = localcache.NewMemory()
		return deps, nil
	}

	rc := localcache.NewRedisClient(appCfg.RedisAddr)
	cache := localcache.NewRedis(rc, redisKeyPrefix, appCfg.RedisTTL)
	pingCtx, cancel := context.WithTimeout(ctx, timeouts.Ping())
	defer cancel()
	if err := cache.Ping(pingCtx); err != nil {
		_ = rc.Close()
		if deps.MongoClient != nil {
			_ = deps.MongoClient.Disconnect(ctx)
		}
		return DBDeps{}, fmt.Errorf("ping redis: %w", err)
	}
	deps.Redis = rc
	deps.Cache = cache
	logger.Info("connected to Redis", zap.String("addr", appCfg.RedisAddr))
	return deps, nil
}

// EnsureSchema creates the MongoDB indexes. The memory backend has none.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.MongoDatabase == nil {
		return nil
	}
	return indexes.EnsureAll(ctx, deps.MongoDatabase, logger)
}
