// Package store persists Group and Member records with optimistic
// concurrency. Every write is a compare-and-set on the record's version
// counter; Update wraps the read-validate-apply-write cycle in a bounded
// retry loop so concurrent writers never silently overwrite each other.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/groupquest/server/apperr"
	"github.com/groupquest/server/model"
	"gorm.io/gorm"
)

// ErrNoChange can be returned by an Update mutate function to signal that the
// operation decided not to write; Update then returns the freshly read record
// with no error.
var ErrNoChange = errors.New("store: no change")

// DefaultMaxRetries bounds the CAS retry loop when no explicit value is
// configured.
const DefaultMaxRetries = 3

// GroupStore persists Group records.
type GroupStore struct {
	db         *gorm.DB
	maxRetries int
}

// NewGroupStore creates a GroupStore. maxRetries <= 0 selects the default.
func NewGroupStore(db *gorm.DB, maxRetries int) *GroupStore {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &GroupStore{db: db, maxRetries: maxRetries}
}

// Get fetches a group by ID.
func (s *GroupStore) Get(ctx context.Context, id string) (*model.Group, error) {
	var g model.Group
	err := s.db.WithContext(ctx).First(&g, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "group %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreUnavailable, err, "group %s: read failed", id)
	}
	return &g, nil
}

// Create inserts a new group, assigning an ID if empty.
func (s *GroupStore) Create(ctx context.Context, g *model.Group) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(g).Error; err != nil {
		return apperr.Wrap(apperr.KindStoreUnavailable, err, "group %s: create failed", g.ID)
	}
	return nil
}

// PutIfVersion writes g if its version column still equals g.Version.
// On success g.Version is advanced to the committed value; on a version
// mismatch it returns a Conflict error and leaves g untouched.
func (s *GroupStore) PutIfVersion(ctx context.Context, g *model.Group) error {
	expected := g.Version
	g.Version = expected + 1
	res := s.db.WithContext(ctx).Model(&model.Group{}).
		Where("id = ? AND version = ?", g.ID, expected).
		Select("*").Omit("id", "created_at").
		Updates(g)
	if res.Error != nil {
		g.Version = expected
		return apperr.Wrap(apperr.KindStoreUnavailable, res.Error, "group %s: write failed", g.ID)
	}
	if res.RowsAffected == 0 {
		g.Version = expected
		return apperr.New(apperr.KindConflict, "group %s: version %d is stale", g.ID, expected)
	}
	return nil
}

// Update runs the read-validate-apply-write cycle for one group under the
// bounded CAS retry policy. mutate sees a fresh snapshot on every attempt;
// any error it returns aborts immediately without a write (validation errors
// are detected before the first write), except ErrNoChange which makes Update
// return the snapshot as-is.
func (s *GroupStore) Update(ctx context.Context, id string, mutate func(*model.Group) error) (*model.Group, error) {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		g, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := mutate(g); err != nil {
			if errors.Is(err, ErrNoChange) {
				return g, nil
			}
			return nil, err
		}
		err = s.PutIfVersion(ctx, g)
		if err == nil {
			return g, nil
		}
		if !apperr.Is(err, apperr.KindConflict) {
			return nil, err
		}
	}
	return nil, apperr.New(apperr.KindConflict, "group %s: retries exhausted", id)
}

// FindPartyOf returns the party group containing memberID, or nil if the
// member is not in any party.
func (s *GroupStore) FindPartyOf(ctx context.Context, memberID string) (*model.Group, error) {
	var groups []model.Group
	err := s.db.WithContext(ctx).Where("type = ?", model.GroupTypeParty).Find(&groups).Error
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreUnavailable, err, "party lookup failed")
	}
	for i := range groups {
		if groups[i].HasMember(memberID) {
			return &groups[i], nil
		}
	}
	return nil, nil
}

// ActiveQuestGroups returns every group whose quest is currently active.
// Used by the mirror reconciliation pass.
func (s *GroupStore) ActiveQuestGroups(ctx context.Context) ([]*model.Group, error) {
	var groups []model.Group
	err := s.db.WithContext(ctx).Where("type = ?", model.GroupTypeParty).Find(&groups).Error
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreUnavailable, err, "active quest scan failed")
	}
	var out []*model.Group
	for i := range groups {
		if qs := groups[i].QuestState(); qs != nil && qs.Active {
			out = append(out, &groups[i])
		}
	}
	return out, nil
}
