// Package fanout applies group-level quest transitions to each member record.
// The group row is the authoritative write; fan-out is best-effort and
// retryable, so every delta is an idempotent set-to-value. The one
// non-idempotent write — scroll consumption — carries a dedup event ID
// recorded in the member's ledger.
package fanout

import (
	"context"
	"sync"

	"github.com/groupquest/server/model"
	"github.com/groupquest/server/store"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// ScrollCharge consumes one quest scroll from a member. EventID identifies
// the quest-start event so a retried propagate never double-charges.
type ScrollCharge struct {
	QuestKey string
	EventID  string
}

// Delta is the typed per-member change produced by a group transition.
// Zero-value fields mean "leave alone".
type Delta struct {
	// Mirror, when non-nil, sets the member's quest mirror to a copy of
	// this value.
	Mirror *model.QuestMirror
	// ClearMirror clears the member's quest mirror. When ClearIfKey is
	// non-empty the clear only applies if the mirror references that quest
	// key, so a mirror belonging to the member's next party is never wiped.
	ClearMirror bool
	ClearIfKey  string
	// Scroll, when non-nil, consumes one scroll (deduplicated by EventID).
	Scroll *ScrollCharge
}

// Failure reports one member whose delta could not be applied.
type Failure struct {
	MemberID string
	Err      error
}

// FailedIDs extracts the member IDs from a failure list.
func FailedIDs(failures []Failure) []string {
	ids := make([]string, len(failures))
	for i, f := range failures {
		ids[i] = f.MemberID
	}
	return ids
}

// Driver propagates per-member deltas to the member store.
type Driver struct {
	members *store.MemberStore
	logger  *zap.Logger
}

// NewDriver creates a fan-out Driver.
func NewDriver(members *store.MemberStore, logger *zap.Logger) *Driver {
	return &Driver{members: members, logger: logger}
}

// Propagate attempts every delta concurrently and never aborts early: one
// member's failure must not block the others. It returns the failures for
// the caller to surface as a PartialFailure; each failed delta is safe to
// retry verbatim.
func (d *Driver) Propagate(ctx context.Context, groupID string, deltas map[string]Delta) []Failure {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures []Failure
	)
	for id, delta := range deltas {
		wg.Add(1)
		go func(memberID string, delta Delta) {
			defer wg.Done()
			_, err := d.members.Update(ctx, memberID, func(m *model.Member) error {
				return applyDelta(m, delta)
			})
			if err != nil {
				mu.Lock()
				failures = append(failures, Failure{MemberID: memberID, Err: err})
				mu.Unlock()
				d.logger.Warn("fanout delta failed",
					zap.String("group_id", groupID),
					zap.String("member_id", memberID),
					zap.Error(err))
			}
		}(id, delta)
	}
	wg.Wait()
	return failures
}

func applyDelta(m *model.Member, delta Delta) error {
	changed := false

	if delta.Mirror != nil {
		m.SetMirror(&model.QuestMirror{
			Key:      delta.Mirror.Key,
			Progress: delta.Mirror.Progress.Clone(),
		})
		changed = true
	} else if delta.ClearMirror {
		cur := m.Mirror()
		if cur != nil && (delta.ClearIfKey == "" || cur.Key == delta.ClearIfKey) {
			m.SetMirror(nil)
			changed = true
		}
	}

	if delta.Scroll != nil {
		ledger := m.Ledger()
		if _, consumed := ledger[delta.Scroll.EventID]; !consumed {
			scrolls := m.Scrolls()
			scrolls[delta.Scroll.QuestKey]--
			ledger[delta.Scroll.EventID] = delta.Scroll.QuestKey
			m.QuestScrolls = datatypes.NewJSONType(scrolls)
			m.ScrollLedger = datatypes.NewJSONType(ledger)
			changed = true
		}
	}

	if !changed {
		return store.ErrNoChange
	}
	return nil
}

// MirrorDeltas computes the member deltas that make every mirror agree with
// the group's active quest state: accepted current members get a mirror copy,
// every other current member gets a clear. Used by quest start, progress
// refresh, and the reconciliation pass.
func MirrorDeltas(g *model.Group) map[string]Delta {
	qs := g.QuestState()
	deltas := make(map[string]Delta, len(g.Members))
	for _, id := range g.Members {
		if qs != nil && qs.Active && qs.Members[id] == model.VoteAccepted {
			deltas[id] = Delta{Mirror: &model.QuestMirror{Key: qs.Key, Progress: qs.Progress}}
		} else {
			deltas[id] = Delta{ClearMirror: true}
		}
	}
	return deltas
}
