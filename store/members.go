package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/groupquest/server/apperr"
	"github.com/groupquest/server/model"
	"gorm.io/gorm"
)

// MemberStore persists Member records with the same CAS contract as
// GroupStore.
type MemberStore struct {
	db         *gorm.DB
	maxRetries int
}

// NewMemberStore creates a MemberStore. maxRetries <= 0 selects the default.
func NewMemberStore(db *gorm.DB, maxRetries int) *MemberStore {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &MemberStore{db: db, maxRetries: maxRetries}
}

// Get fetches a member by ID.
func (s *MemberStore) Get(ctx context.Context, id string) (*model.Member, error) {
	var m model.Member
	err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "member %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreUnavailable, err, "member %s: read failed", id)
	}
	return &m, nil
}

// GetByUsername fetches a member by username.
func (s *MemberStore) GetByUsername(ctx context.Context, username string) (*model.Member, error) {
	var m model.Member
	err := s.db.WithContext(ctx).First(&m, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "member %q not found", username)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreUnavailable, err, "member %q: read failed", username)
	}
	return &m, nil
}

// Create inserts a new member, assigning an ID if empty.
func (s *MemberStore) Create(ctx context.Context, m *model.Member) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return apperr.Wrap(apperr.KindStoreUnavailable, err, "member %s: create failed", m.ID)
	}
	return nil
}

// PutIfVersion writes m if its version column still equals m.Version.
// Same contract as GroupStore.PutIfVersion.
func (s *MemberStore) PutIfVersion(ctx context.Context, m *model.Member) error {
	expected := m.Version
	m.Version = expected + 1
	res := s.db.WithContext(ctx).Model(&model.Member{}).
		Where("id = ? AND version = ?", m.ID, expected).
		Select("*").Omit("id", "created_at").
		Updates(m)
	if res.Error != nil {
		m.Version = expected
		return apperr.Wrap(apperr.KindStoreUnavailable, res.Error, "member %s: write failed", m.ID)
	}
	if res.RowsAffected == 0 {
		m.Version = expected
		return apperr.New(apperr.KindConflict, "member %s: version %d is stale", m.ID, expected)
	}
	return nil
}

// Update runs the bounded CAS retry loop for one member record.
func (s *MemberStore) Update(ctx context.Context, id string, mutate func(*model.Member) error) (*model.Member, error) {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		m, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := mutate(m); err != nil {
			if errors.Is(err, ErrNoChange) {
				return m, nil
			}
			return nil, err
		}
		err = s.PutIfVersion(ctx, m)
		if err == nil {
			return m, nil
		}
		if !apperr.Is(err, apperr.KindConflict) {
			return nil, err
		}
	}
	return nil, apperr.New(apperr.KindConflict, "member %s: retries exhausted", id)
}
