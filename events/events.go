// Package events publishes group lifecycle events over pub/sub. The SSE
// endpoint subscribes per group so clients see votes, starts and progress
// without polling.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/groupquest/server/cache"
	"github.com/groupquest/server/model"
	"go.uber.org/zap"
)

const (
	TypeMemberInvited = "member_invited"
	TypeMemberJoined  = "member_joined"
	TypeMemberLeft    = "member_left"
	TypeMemberRemoved = "member_removed"
	TypeQuestInvited  = "quest_invited"
	TypeQuestVote     = "quest_vote"
	TypeQuestStarted  = "quest_started"
	TypeQuestProgress = "quest_progress"
	TypeQuestComplete = "quest_completed"
	TypeQuestAborted  = "quest_aborted"
)

// Event is one group lifecycle notification.
type Event struct {
	Type     string                `json:"type"`
	GroupID  string                `json:"group_id"`
	MemberID string                `json:"member_id,omitempty"`
	QuestKey string                `json:"quest_key,omitempty"`
	// Votes carries the current vote map on quest events so the UI can
	// distinguish "hasn't responded" from "declined".
	Votes map[string]model.Vote `json:"votes,omitempty"`
	At    time.Time             `json:"at"`
}

// Channel returns the pub/sub channel name for a group's event stream.
func Channel(groupID string) string {
	return "group_events:" + groupID
}

// Publisher publishes events best-effort: a failed publish is logged, never
// surfaced, since events are advisory.
type Publisher struct {
	ps     cache.PubSub
	logger *zap.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(ps cache.PubSub, logger *zap.Logger) *Publisher {
	return &Publisher{ps: ps, logger: logger}
}

// Publish emits ev on its group's channel.
func (p *Publisher) Publish(ctx context.Context, ev Event) {
	if p == nil || p.ps == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("event marshal failed", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	if err := p.ps.Publish(ctx, Channel(ev.GroupID), string(payload)); err != nil {
		p.logger.Warn("event publish failed",
			zap.String("type", ev.Type),
			zap.String("group_id", ev.GroupID),
			zap.Error(err))
	}
}
