// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/juntos/internal/app/system/docstore"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

/*
EnsureAll is called at startup when the mongo backend is selected. Each
collection's set is reconciled idempotently; problems are aggregated so
startup can fail with the full picture.
*/
func EnsureAll(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	var problems []string
	for _, set := range Sets() {
		if err := ensureIndexSet(ctx, db.Collection(set.Collection), set.Models, logger); err != nil {
			problems = append(problems, set.Collection+": "+err.Error())
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// Set is the desired index list of one collection.
type Set struct {
	Collection string
	Models     []mongo.IndexModel
}

// Sets returns every collection's desired indexes.
func Sets() []Set {
	return []Set{
		{docstore.Accounts, []mongo.IndexModel{
			// Sign-in looks accounts up by folded email; one account per email.
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("uniq_accounts_email"),
			},
		}},
		{docstore.Profiles, []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetName("idx_profiles_email"),
			},
			{
				Keys:    bson.D{{Key: "community_ids", Value: 1}},
				Options: options.Index().SetName("idx_profiles_communityids"),
			},
		}},
		{docstore.Communities, []mongo.IndexModel{
			// Backstop for the name check done before create.
			{
				Keys:    bson.D{{Key: "name_ci", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("uniq_communities_nameci"),
			},
		}},
		{docstore.Entries, []mongo.IndexModel{
			// Board lists filter by community and status.
			{
				Keys:    bson.D{{Key: "community_id", Value: 1}, {Key: "status", Value: 1}},
				Options: options.Index().SetName("idx_entries_community_status"),
			},
		}},
		{docstore.Comments, []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "entry_id", Value: 1}},
				Options: options.Index().SetName("idx_comments_entry"),
			},
		}},
		{docstore.Votes, []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "entry_id", Value: 1}},
				Options: options.Index().SetName("idx_votes_entry"),
			},
		}},
		{docstore.GratitudeVotes, []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "community_id", Value: 1}},
				Options: options.Index().SetName("idx_gratitude_community"),
			},
		}},
		{docstore.CheckIns, []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "entry_id", Value: 1}, {Key: "community_id", Value: 1}},
				Options: options.Index().SetName("idx_checkins_entry_community"),
			},
		}},
	}
}

/* -------------------------------------------------------------------------- */
/* Reconciling one collection                                                  */
/* -------------------------------------------------------------------------- */

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func isUnique(b *bool) bool { return b != nil && *b }

// Works against MongoDB and DocumentDB error shapes.
func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if mongo.IsDuplicateKeyError(err) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "E11000") || strings.Contains(strings.ToLower(s), "duplicate key")
}

func listIndexes(ctx context.Context, coll *mongo.Collection, log *zap.Logger) (map[string]existingIndex, error) {
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := map[string]existingIndex{} // key signature -> index
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			log.Warn("failed to decode existing index", zap.String("collection", coll.Name()), zap.Error(err))
			continue
		}
		out[keySig(idx.Key)] = idx
	}
	return out, cur.Err()
}

// ensureIndexSet creates missing indexes, renames ones whose keys match
// under another name, and recreates ones whose uniqueness differs.
func ensureIndexSet(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel, log *zap.Logger) error {
	existing, err := listIndexes(ctx, coll, log)
	if err != nil {
		// A collection that does not exist yet has nothing to reconcile.
		existing = map[string]existingIndex{}
	}

	var errs []string
	for _, m := range models {
		name := *m.Options.Name
		unique := isUnique(m.Options.Unique)
		sig := keySig(m.Keys.(bson.D))
		start := time.Now()
		fields := []zap.Field{
			zap.String("collection", coll.Name()),
			zap.String("name", name),
			zap.String("keys", sig),
			zap.Bool("unique", unique),
		}

		ex, found := existing[sig]
		switch {
		case found && ex.Name == name && isUnique(ex.Unique) == unique:
			log.Debug("reusing existing index", fields...)
			continue
		case found:
			log.Info("replacing index", append(fields, zap.String("existing", ex.Name))...)
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				errs = append(errs, fmt.Sprintf("%s: drop %s failed: %v", name, ex.Name, err))
				continue
			}
		}

		if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
			if unique && isDuplicateKeyErr(err) {
				errs = append(errs, fmt.Sprintf("%s: cannot create unique index on %s (duplicates present)", name, sig))
			} else {
				errs = append(errs, fmt.Sprintf("%s: %v", name, err))
			}
			log.Warn("index ensure failed", append(fields, zap.Error(err))...)
			continue
		}
		log.Info("index ensured", append(fields, zap.Duration("took", time.Since(start)))...)
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
