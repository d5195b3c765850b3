// Package memdocs is an in-process docstore.Service.
//
// Documents are held per collection in maps guarded by a single RWMutex.
// Values are normalised on write (slices to []any, nested maps to
// map[string]any, times to UTC) and deep-copied on read, so callers never
// share memory with the store. Subscribers are notified after the write
// has been committed and the lock released.
package memdocs

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/dalemusser/juntos/internal/app/system/docstore"
	"github.com/google/uuid"
)

type listener struct {
	id uint64
	fn docstore.SubscribeFunc
}

// Store implements docstore.Service in memory.
type Store struct {
	mu        sync.RWMutex
	colls     map[string]map[string]docstore.Document
	listeners map[string][]listener // key: collection + "/" + id
	nextLis   uint64

	// FailNext, when set, makes the next call to the named operation
	// return the given error. Tests use it to simulate remote failures.
	failMu   sync.Mutex
	failures map[string][]error
}

// New returns an empty store.
func New() *Store {
	return &Store{
		colls:     make(map[string]map[string]docstore.Document),
		listeners: make(map[string][]listener),
		failures:  make(map[string][]error),
	}
}

// FailNext queues err to be returned by the next call of op ("get",
// "query", "set", "update", "add", "delete", "subscribe", "ping").
func (s *Store) FailNext(op string, err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.failures[op] = append(s.failures[op], err)
}

func (s *Store) takeFailure(op string) error {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	q := s.failures[op]
	if len(q) == 0 {
		return nil
	}
	s.failures[op] = q[1:]
	return q[0]
}

// Len returns the number of documents in a collection.
func (s *Store) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.colls[collection])
}

func (s *Store) Ping(ctx context.Context) error {
	return s.precheck(ctx, "ping")
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Snapshot, error) {
	if err := s.precheck(ctx, "get"); err != nil {
		return docstore.Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.colls[collection][id]
	if !ok {
		return docstore.Snapshot{ID: id}, docstore.ErrNotFound
	}
	return docstore.Snapshot{ID: id, Exists: true, Data: copyDoc(doc)}, nil
}

func (s *Store) Query(ctx context.Context, collection string, filters ...docstore.Filter) ([]docstore.Snapshot, error) {
	if err := s.precheck(ctx, "query"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []docstore.Snapshot
	for id, doc := range s.colls[collection] {
		if matches(doc, filters) {
			out = append(out, docstore.Snapshot{ID: id, Exists: true, Data: copyDoc(doc)})
		}
	}
	// Map iteration is random; keep results stable for callers and tests.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, data docstore.Document) error {
	if err := s.precheck(ctx, "set"); err != nil {
		return err
	}
	s.put(collection, id, data)
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields docstore.Document) error {
	if err := s.precheck(ctx, "update"); err != nil {
		return err
	}
	s.mu.Lock()
	doc, ok := s.colls[collection][id]
	if !ok {
		s.mu.Unlock()
		return docstore.ErrNotFound
	}
	for k, v := range fields {
		if u, isUnion := v.(docstore.ArrayUnionOp); isUnion {
			doc[k] = union(doc[k], u.Values)
			continue
		}
		doc[k] = normalize(v)
	}
	snap := docstore.Snapshot{ID: id, Exists: true, Data: copyDoc(doc)}
	fns := s.listenersFor(collection, id)
	s.mu.Unlock()

	notify(fns, snap)
	return nil
}

func (s *Store) Add(ctx context.Context, collection string, data docstore.Document) (string, error) {
	if err := s.precheck(ctx, "add"); err != nil {
		return "", err
	}
	id := uuid.NewString()
	s.put(collection, id, data)
	return id, nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := s.precheck(ctx, "delete"); err != nil {
		return err
	}
	s.mu.Lock()
	_, existed := s.colls[collection][id]
	delete(s.colls[collection], id)
	fns := s.listenersFor(collection, id)
	s.mu.Unlock()

	if existed {
		notify(fns, docstore.Snapshot{ID: id})
	}
	return nil
}

// Subscribe delivers the current snapshot synchronously, then every later
// write on the caller's goroutine that performed it.
func (s *Store) Subscribe(ctx context.Context, collection, id string, fn docstore.SubscribeFunc) (docstore.Subscription, error) {
	if err := s.precheck(ctx, "subscribe"); err != nil {
		return nil, err
	}
	key := collection + "/" + id

	s.mu.Lock()
	s.nextLis++
	lid := s.nextLis
	s.listeners[key] = append(s.listeners[key], listener{id: lid, fn: fn})
	initial := docstore.Snapshot{ID: id}
	if doc, ok := s.colls[collection][id]; ok {
		initial = docstore.Snapshot{ID: id, Exists: true, Data: copyDoc(doc)}
	}
	s.mu.Unlock()

	fn(initial)

	var once sync.Once
	return docstore.SubscriptionFunc(func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			ls := s.listeners[key]
			for i, l := range ls {
				if l.id == lid {
					s.listeners[key] = append(ls[:i:i], ls[i+1:]...)
					break
				}
			}
			if len(s.listeners[key]) == 0 {
				delete(s.listeners, key)
			}
		})
	}), nil
}

// Listeners returns the number of active subscriptions on a document.
func (s *Store) Listeners(collection, id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners[collection+"/"+id])
}

// put writes data under id and notifies subscribers.
func (s *Store) put(collection, id string, data docstore.Document) {
	s.mu.Lock()
	coll := s.collection(collection)
	coll[id] = normalizeDoc(data)
	snap := docstore.Snapshot{ID: id, Exists: true, Data: copyDoc(coll[id])}
	fns := s.listenersFor(collection, id)
	s.mu.Unlock()

	notify(fns, snap)
}

func (s *Store) precheck(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.takeFailure(op)
}

func (s *Store) collection(name string) map[string]docstore.Document {
	c, ok := s.colls[name]
	if !ok {
		c = make(map[string]docstore.Document)
		s.colls[name] = c
	}
	return c
}

func (s *Store) listenersFor(collection, id string) []docstore.SubscribeFunc {
	ls := s.listeners[collection+"/"+id]
	fns := make([]docstore.SubscribeFunc, 0, len(ls))
	for _, l := range ls {
		fns = append(fns, l.fn)
	}
	return fns
}

func notify(fns []docstore.SubscribeFunc, snap docstore.Snapshot) {
	for _, fn := range fns {
		fn(docstore.Snapshot{ID: snap.ID, Exists: snap.Exists, Data: copyDoc(snap.Data)})
	}
}

func matches(doc docstore.Document, filters []docstore.Filter) bool {
	for _, f := range filters {
		v, ok := doc[f.Field]
		if !ok {
			if f.Value != nil {
				return false
			}
			continue
		}
		if !reflect.DeepEqual(v, normalize(f.Value)) {
			return false
		}
	}
	return true
}

func union(existing any, values []any) []any {
	arr, _ := existing.([]any)
	out := make([]any, 0, len(arr)+len(values))
	out = append(out, arr...)
	for _, v := range values {
		nv := normalize(v)
		dup := false
		for _, e := range out {
			if reflect.DeepEqual(e, nv) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, nv)
		}
	}
	return out
}

func normalizeDoc(d docstore.Document) docstore.Document {
	out := make(docstore.Document, len(d))
	for k, v := range d {
		out[k] = normalize(v)
	}
	return out
}

// normalize converts v into the shapes a document database hands back:
// map[string]any for objects, []any for arrays, UTC times, int64/float64
// for numbers.
func normalize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		return t.UTC()
	case docstore.Document:
		return map[string]any(normalizeDoc(t))
	case map[string]any:
		return map[string]any(normalizeDoc(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case string, bool, int64, float64:
		return t
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	case reflect.Float32:
		return rv.Float()
	case reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		return normalize(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = normalize(iter.Value().Interface())
		}
		return out
	case reflect.String:
		return rv.String()
	}
	return v
}

func copyDoc(d docstore.Document) docstore.Document {
	if d == nil {
		return nil
	}
	out := make(docstore.Document, len(d))
	for k, v := range d {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(copyDoc(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	}
	return v
}

var _ docstore.Service = (*Store)(nil)
