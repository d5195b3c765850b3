// Package mongodocs implements docstore.Service on MongoDB.
//
// Document ids are stored as string _id values. Subscriptions are backed by
// change streams filtered on the document key, which requires a replica set
// (a single-node replica set is enough for development).
package mongodocs

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/dalemusser/juntos/internal/app/system/docstore"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Store implements docstore.Service over a mongo.Database.
type Store struct {
	db  *mongo.Database
	log *zap.Logger
}

// New wraps db.
func New(db *mongo.Database, logger *zap.Logger) *Store {
	return &Store{db: db, log: logger}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, readpref.Primary())
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Snapshot, error) {
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if err == mongo.ErrNoDocuments {
		return docstore.Snapshot{ID: id}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Snapshot{ID: id}, err
	}
	return toSnapshot(raw), nil
}

func (s *Store) Query(ctx context.Context, collection string, filters ...docstore.Filter) ([]docstore.Snapshot, error) {
	filter := bson.M{}
	for _, f := range filters {
		filter[f.Field] = f.Value
	}
	cur, err := s.db.Collection(collection).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []docstore.Snapshot
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, err
		}
		out = append(out, toSnapshot(raw))
	}
	return out, cur.Err()
}

func (s *Store) Set(ctx context.Context, collection, id string, data docstore.Document) error {
	doc := bson.M{}
	for k, v := range data {
		doc[k] = toBSON(v)
	}
	doc["_id"] = id
	_, err := s.db.Collection(collection).ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	return mapWriteErr(err)
}

func (s *Store) Update(ctx context.Context, collection, id string, fields docstore.Document) error {
	set := bson.M{}
	addToSet := bson.M{}
	for k, v := range fields {
		if u, ok := v.(docstore.ArrayUnionOp); ok {
			addToSet[k] = bson.M{"$each": toBSON(u.Values)}
			continue
		}
		set[k] = toBSON(v)
	}
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(addToSet) > 0 {
		update["$addToSet"] = addToSet
	}
	if len(update) == 0 {
		return nil
	}

	res, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return mapWriteErr(err)
	}
	if res.MatchedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (s *Store) Add(ctx context.Context, collection string, data docstore.Document) (string, error) {
	id := primitive.NewObjectID().Hex()
	doc := bson.M{"_id": id}
	for k, v := range data {
		doc[k] = toBSON(v)
	}
	if _, err := s.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		return "", mapWriteErr(err)
	}
	return id, nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// Subscribe opens a change stream on one document. The current state is
// delivered before Subscribe returns; later events are delivered on a
// dedicated goroutine that exits on Unsubscribe or when ctx is done.
func (s *Store) Subscribe(ctx context.Context, collection, id string, fn docstore.SubscribeFunc) (docstore.Subscription, error) {
	coll := s.db.Collection(collection)
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"documentKey._id": id}}},
	}

	watchCtx, cancel := context.WithCancel(ctx)
	cs, err := coll.Watch(watchCtx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, err
	}

	initial, err := s.Get(ctx, collection, id)
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		cancel()
		_ = cs.Close(context.Background())
		return nil, err
	}
	fn(initial)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cs.Close(context.Background())
		for cs.Next(watchCtx) {
			var ev changeEvent
			if err := cs.Decode(&ev); err != nil {
				s.log.Warn("change stream decode failed",
					zap.String("collection", collection),
					zap.String("id", id),
					zap.Error(err))
				continue
			}
			switch ev.OperationType {
			case "delete":
				fn(docstore.Snapshot{ID: id})
			case "insert", "replace", "update":
				if ev.FullDocument == nil {
					// Deleted between the event and the lookup.
					fn(docstore.Snapshot{ID: id})
					continue
				}
				fn(toSnapshot(ev.FullDocument))
			}
		}
		if err := cs.Err(); err != nil && watchCtx.Err() == nil {
			s.log.Error("change stream ended",
				zap.String("collection", collection),
				zap.String("id", id),
				zap.Error(err))
		}
	}()

	var once sync.Once
	return docstore.SubscriptionFunc(func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}), nil
}

type changeEvent struct {
	OperationType string `bson:"operationType"`
	FullDocument  bson.M `bson:"fullDocument"`
}

func toSnapshot(raw bson.M) docstore.Snapshot {
	id, _ := fromBSON(raw["_id"]).(string)
	data := make(docstore.Document, len(raw))
	for k, v := range raw {
		if k == "_id" {
			continue
		}
		data[k] = fromBSON(v)
	}
	return docstore.Snapshot{ID: id, Exists: true, Data: data}
}

// toBSON rewrites maps as key-sorted bson.D so that embedded documents
// compare equal in $addToSet regardless of Go map iteration order.
func toBSON(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case docstore.Document:
		return sortedDoc(map[string]any(t))
	case map[string]any:
		return sortedDoc(t)
	case []any:
		out := make(bson.A, len(t))
		for i, e := range t {
			out[i] = toBSON(e)
		}
		return out
	case []string:
		out := make(bson.A, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	case time.Time:
		return t.UTC()
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Map {
		out := make(bson.A, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = toBSON(rv.Index(i).Interface())
		}
		return out
	}
	return v
}

func sortedDoc(m map[string]any) bson.D {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	d := make(bson.D, 0, len(m))
	for _, k := range keys {
		d = append(d, bson.E{Key: k, Value: toBSON(m[k])})
	}
	return d
}

// fromBSON converts driver types into the plain shapes docstore callers
// decode: map[string]any, []any, time.Time and string ids.
func fromBSON(v any) any {
	switch t := v.(type) {
	case primitive.M:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = fromBSON(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = fromBSON(e)
		}
		return out
	case primitive.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case primitive.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = fromBSON(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = fromBSON(e)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	case time.Time:
		return t.UTC()
	case primitive.ObjectID:
		return t.Hex()
	case int32:
		return int64(t)
	}
	return v
}

func mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	if wafflemongo.IsDup(err) {
		return errors.Join(docstore.ErrDuplicate, err)
	}
	return err
}

var _ docstore.Service = (*Store)(nil)
