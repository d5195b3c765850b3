// internal/app/store/entries/entrystore.go
package entrystore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dalemusser/juntos/internal/app/system/apperr"
	"github.com/dalemusser/juntos/internal/app/system/docstore"
	"github.com/dalemusser/juntos/internal/app/system/generation"
	"github.com/dalemusser/juntos/internal/app/system/htmlsanitize"
	"github.com/dalemusser/juntos/internal/domain/models"
	"go.uber.org/zap"
)

// DefaultLatestLimit is how many items the latest-activity view shows.
const DefaultLatestLimit = 15

// Generation keys, one per local list.
const (
	genMember   = "member"
	genVisible  = "leader_visible"
	genArchived = "leader_archived"
)

var errMissingCommunity = apperr.Validation("Invalid community ID.")

// Store holds the entries fetched for one client session.
type Store struct {
	docs        docstore.Service
	log         *zap.Logger
	latestLimit int
	gens        generation.Counter

	mu             sync.RWMutex
	member         []models.Entry
	leaderVisible  []models.Entry
	leaderArchived []models.Entry
}

func New(docs docstore.Service, logger *zap.Logger, latestLimit int) *Store {
	if latestLimit <= 0 {
		latestLimit = DefaultLatestLimit
	}
	return &Store{docs: docs, log: logger, latestLimit: latestLimit}
}

// FetchMemberEntries loads the visible entries of a community that a plain
// member may see and replaces the member list.
func (s *Store) FetchMemberEntries(ctx context.Context, communityID string) ([]models.Entry, error) {
	if communityID == "" {
		return nil, errMissingCommunity
	}
	gen := s.gens.Begin(genMember)
	all, err := s.query(ctx, communityID, models.EntryStatusVisible)
	if err != nil {
		s.log.Error("fetch member entries failed", zap.String("community_id", communityID), zap.Error(err))
		return nil, apperr.Remote("Failed to fetch member entries.", err)
	}
	visible := make([]models.Entry, 0, len(all))
	for _, e := range all {
		if e.VisibleToMember() {
			visible = append(visible, e)
		}
	}
	s.replace(genMember, gen, &s.member, visible)
	return visible, nil
}

// FetchLeaderVisibleEntries loads every visible entry of a community.
func (s *Store) FetchLeaderVisibleEntries(ctx context.Context, communityID string) ([]models.Entry, error) {
	if communityID == "" {
		return nil, errMissingCommunity
	}
	gen := s.gens.Begin(genVisible)
	all, err := s.query(ctx, communityID, models.EntryStatusVisible)
	if err != nil {
		s.log.Error("fetch leader visible entries failed", zap.String("community_id", communityID), zap.Error(err))
		return nil, apperr.Remote("Failed to fetch leader visible entries.", err)
	}
	s.replace(genVisible, gen, &s.leaderVisible, all)
	return all, nil
}

// FetchLeaderArchivedEntries loads every archived entry of a community.
func (s *Store) FetchLeaderArchivedEntries(ctx context.Context, communityID string) ([]models.Entry, error) {
	if communityID == "" {
		return nil, errMissingCommunity
	}
	gen := s.gens.Begin(genArchived)
	all, err := s.query(ctx, communityID, models.EntryStatusArchived)
	if err != nil {
		s.log.Error("fetch leader archived entries failed", zap.String("community_id", communityID), zap.Error(err))
		return nil, apperr.Remote("Failed to fetch leader archived entries.", err)
	}
	s.replace(genArchived, gen, &s.leaderArchived, all)
	return all, nil
}

// RoleView is what FetchForRole returns. Archived is only set for leaders.
type RoleView struct {
	Visible  []models.Entry `json:"visible"`
	Archived []models.Entry `json:"archived,omitempty"`
}

// FetchForRole loads the member view for members and both leader lists for
// leaders.
func (s *Store) FetchForRole(ctx context.Context, communityID string, role models.Role) (RoleView, error) {
	if role != models.RoleLeader {
		v, err := s.FetchMemberEntries(ctx, communityID)
		return RoleView{Visible: v}, err
	}
	visible, err := s.FetchLeaderVisibleEntries(ctx, communityID)
	if err != nil {
		return RoleView{}, err
	}
	archived, err := s.FetchLeaderArchivedEntries(ctx, communityID)
	if err != nil {
		return RoleView{}, err
	}
	return RoleView{Visible: visible, Archived: archived}, nil
}

// GetByID loads one entry from the document service.
func (s *Store) GetByID(ctx context.Context, entryID string) (*models.Entry, error) {
	if entryID == "" {
		return nil, apperr.Validation("Invalid entry ID.")
	}
	snap, err := s.docs.Get(ctx, docstore.Entries, entryID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "Entry not found.")
	}
	if err != nil {
		s.log.Error("fetch entry failed", zap.String("entry_id", entryID), zap.Error(err))
		return nil, apperr.Remote("Failed to fetch entry.", err)
	}
	e, err := decode(snap)
	if err != nil {
		s.log.Error("stored entry is malformed", zap.String("entry_id", entryID), zap.Error(err))
		return nil, apperr.Remote("Failed to fetch entry.", err)
	}
	return e, nil
}

// Add stores a new entry and returns it with its generated id. String
// payload values are sanitized. The entry is added to every local list it
// belongs in.
func (s *Store) Add(ctx context.Context, e models.Entry) (*models.Entry, error) {
	if e.Status == "" {
		e.Status = models.EntryStatusVisible
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.Payload = sanitizePayload(e.Payload)
	if err := e.Validate(); err != nil {
		return nil, apperr.Validation("Invalid entry.")
	}
	if e.UserID == "" {
		return nil, apperr.Validation("Invalid entry.")
	}

	id, err := s.docs.Add(ctx, docstore.Entries, e.ToDocument())
	if err != nil {
		s.log.Error("add entry failed", zap.String("community_id", e.CommunityID), zap.Error(err))
		return nil, apperr.Remote("Failed to add new entry.", err)
	}
	e.ID = id

	s.mu.Lock()
	switch e.Status {
	case models.EntryStatusVisible:
		s.leaderVisible = append(s.leaderVisible, e)
		if e.VisibleToMember() {
			s.member = append(s.member, e)
		}
	case models.EntryStatusArchived:
		s.leaderArchived = append(s.leaderArchived, e)
	}
	s.mu.Unlock()

	s.log.Info("entry added", zap.String("entry_id", id), zap.String("community_id", e.CommunityID))
	return &e, nil
}

// MemberEntries returns a copy of the member list.
func (s *Store) MemberEntries() []models.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Entry(nil), s.member...)
}

// LeaderVisibleEntries returns a copy of the leader's visible list.
func (s *Store) LeaderVisibleEntries() []models.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Entry(nil), s.leaderVisible...)
}

// LeaderArchivedEntries returns a copy of the leader's archived list.
func (s *Store) LeaderArchivedEntries() []models.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Entry(nil), s.leaderArchived...)
}

// CombinedLatestItems is the latest-activity view over the member list.
func (s *Store) CombinedLatestItems() []models.Entry {
	return LatestItems(s.MemberEntries(), s.latestLimit)
}

// LatestItems returns up to limit entries, newest first. entries is not
// modified.
func LatestItems(entries []models.Entry, limit int) []models.Entry {
	out := append([]models.Entry(nil), entries...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// CombineWithComments merges entries and comments into one feed, newest
// first, truncated to limit. Comments take the stage of their entry.
func CombineWithComments(entries []models.Entry, comments []models.Comment, limit int) []models.FeedItem {
	stages := make(map[string]string, len(entries))
	items := make([]models.FeedItem, 0, len(entries)+len(comments))
	for i := range entries {
		e := entries[i]
		stages[e.ID] = e.StageID
		items = append(items, models.FeedItem{
			ID:              e.ID,
			ContentCategory: models.ContentEntry,
			StageID:         e.StageID,
			CreatedAt:       e.CreatedAt,
			Entry:           &e,
		})
	}
	for i := range comments {
		c := comments[i]
		items = append(items, models.FeedItem{
			ID:              c.ID,
			ContentCategory: models.ContentComment,
			StageID:         stages[c.EntryID],
			CreatedAt:       c.CreatedAt,
			Comment:         &c,
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	if limit >= 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func (s *Store) query(ctx context.Context, communityID, status string) ([]models.Entry, error) {
	snaps, err := s.docs.Query(ctx, docstore.Entries,
		docstore.Where("community_id", communityID),
		docstore.Where("status", status))
	if err != nil {
		return nil, err
	}
	out := make([]models.Entry, 0, len(snaps))
	for _, snap := range snaps {
		e, err := decode(snap)
		if err != nil {
			s.log.Warn("skipping malformed entry", zap.String("entry_id", snap.ID), zap.Error(err))
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

// replace swaps in a fetched list unless a newer fetch of the same list
// has started since.
func (s *Store) replace(key string, gen uint64, dst *[]models.Entry, list []models.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.gens.Current(key, gen) {
		s.log.Debug("discarding stale entry fetch", zap.String("list", key))
		return
	}
	*dst = list
}

func decode(snap docstore.Snapshot) (*models.Entry, error) {
	var e models.Entry
	if err := docstore.DecodeSnapshot(snap, &e); err != nil {
		return nil, err
	}
	e.ID = snap.ID
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}

func sanitizePayload(p map[string]any) map[string]any {
	if len(p) == 0 {
		return p
	}
	out := make(map[string]any, len(p))
	for k, v := range p {
		if str, ok := v.(string); ok {
			out[k] = htmlsanitize.Sanitize(str)
			continue
		}
		out[k] = v
	}
	return out
}
