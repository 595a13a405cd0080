package model

import (
	"time"

	"gorm.io/datatypes"
)

// GroupType distinguishes parties from guilds.
type GroupType = string

const (
	GroupTypeParty GroupType = "party"
	GroupTypeGuild GroupType = "guild"
)

// Vote is a member's answer to a quest invitation.
type Vote string

const (
	VoteAccepted Vote = "accepted"
	VoteRejected Vote = "rejected"
	VotePending  Vote = "pending"
)

// QuestProgress holds exactly one progress representation, selected by the
// catalog definition: boss HP (counts down) or collection counts (count up).
type QuestProgress struct {
	HP      *float64       `json:"hp,omitempty"`
	Collect map[string]int `json:"collect,omitempty"`
}

// Clone returns a deep copy so mirrors never alias the group's progress.
func (p *QuestProgress) Clone() *QuestProgress {
	if p == nil {
		return nil
	}
	cp := &QuestProgress{}
	if p.HP != nil {
		hp := *p.HP
		cp.HP = &hp
	}
	if p.Collect != nil {
		cp.Collect = make(map[string]int, len(p.Collect))
		for k, v := range p.Collect {
			cp.Collect[k] = v
		}
	}
	return cp
}

// QuestState is the group-level quest coordination state. A nil QuestState
// means no quest is pending or in progress.
type QuestState struct {
	Key    string          `json:"key"`
	Active bool            `json:"active"`
	// Members maps member ID → vote. Entries exist only for members present
	// in the group at invitation time; quorum checks filter by current
	// membership rather than pruning this map on leave.
	Members  map[string]Vote `json:"members"`
	Progress *QuestProgress  `json:"progress,omitempty"`
	// EventID is minted once at invitation and identifies the scroll
	// consumption for this quest run, so a retried fan-out never
	// double-charges the initiator.
	EventID string `json:"event_id"`
}

// Group is a party or guild record. Members and Invites are ID sets; Quest is
// the embedded coordination state. Version backs optimistic compare-and-set:
// every write goes through the store's PutIfVersion.
type Group struct {
	ID        string                           `gorm:"primaryKey;size:36" json:"id"`
	Type      string                           `gorm:"size:8;index;not null" json:"type"`
	Name      string                           `gorm:"size:64;not null" json:"name"`
	LeaderID  string                           `gorm:"size:36;not null" json:"leader_id"`
	Members   datatypes.JSONSlice[string]      `json:"members"`
	Invites   datatypes.JSONSlice[string]      `json:"invites"`
	Quest     datatypes.JSONType[*QuestState]  `json:"quest"`
	Version   int64                            `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time                        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time                        `gorm:"autoUpdateTime" json:"updated_at"`
}

// HasMember reports whether id is in the member set.
func (g *Group) HasMember(id string) bool {
	for _, m := range g.Members {
		if m == id {
			return true
		}
	}
	return false
}

// HasInvite reports whether id has an outstanding group invitation.
func (g *Group) HasInvite(id string) bool {
	for _, m := range g.Invites {
		if m == id {
			return true
		}
	}
	return false
}

// QuestState returns the embedded quest state, or nil when no quest is set.
func (g *Group) QuestState() *QuestState {
	return g.Quest.Data()
}

// SetQuestState replaces the embedded quest state (nil clears it).
func (g *Group) SetQuestState(qs *QuestState) {
	g.Quest = datatypes.NewJSONType(qs)
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// RemoveMemberID removes id from the member set (no-op if absent).
func (g *Group) RemoveMemberID(id string) {
	g.Members = datatypes.NewJSONSlice(removeID([]string(g.Members), id))
}

// RemoveInviteID removes id from the invite set (no-op if absent).
func (g *Group) RemoveInviteID(id string) {
	g.Invites = datatypes.NewJSONSlice(removeID([]string(g.Invites), id))
}
