package model

import (
	"time"

	"gorm.io/datatypes"
)

// GroupRef points at a group from a member's invitation list.
type GroupRef struct {
	GroupID   string `json:"group_id"`
	GroupName string `json:"group_name"`
}

// Invitations holds a member's pending group invitations: at most one party
// invitation, any number of guild invitations.
type Invitations struct {
	Party  *GroupRef  `json:"party,omitempty"`
	Guilds []GroupRef `json:"guilds,omitempty"`
}

// QuestMirror is the member-side cached copy of the party's active quest.
// It exists so member-facing views never need to fetch the group; the group
// record stays authoritative and the mirror is repaired by fan-out.
type QuestMirror struct {
	Key      string         `json:"key"`
	Progress *QuestProgress `json:"progress,omitempty"`
}

// Member is a user record. Version backs optimistic compare-and-set, the same
// contract as Group.
type Member struct {
	ID           string                              `gorm:"primaryKey;size:36" json:"id"`
	Username     string                              `gorm:"uniqueIndex;size:32;not null" json:"username"`
	PasswordHash string                              `gorm:"size:64;not null" json:"-"`
	Invitations  datatypes.JSONType[Invitations]     `json:"invitations"`
	QuestMirror  datatypes.JSONType[*QuestMirror]    `json:"quest_mirror"`
	QuestScrolls datatypes.JSONType[map[string]int]  `json:"quest_scrolls"`
	// ScrollLedger records consumed scroll events (event ID → quest key).
	// It is the dedup record that makes scroll consumption idempotent
	// under fan-out retries.
	ScrollLedger datatypes.JSONType[map[string]string] `json:"-"`
	Version      int64                                 `gorm:"not null;default:0" json:"version"`
	CreatedAt    time.Time                             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time                             `gorm:"autoUpdateTime" json:"updated_at"`
}

// GuildInviteIndex returns the index of the guild invitation referencing
// groupID, or -1.
func (inv Invitations) GuildInviteIndex(groupID string) int {
	for i, ref := range inv.Guilds {
		if ref.GroupID == groupID {
			return i
		}
	}
	return -1
}

// Mirror returns the member's quest mirror, or nil when cleared.
func (m *Member) Mirror() *QuestMirror {
	return m.QuestMirror.Data()
}

// SetMirror replaces the quest mirror (nil clears it).
func (m *Member) SetMirror(qm *QuestMirror) {
	m.QuestMirror = datatypes.NewJSONType(qm)
}

// Scrolls returns the quest scroll counts, never nil.
func (m *Member) Scrolls() map[string]int {
	s := m.QuestScrolls.Data()
	if s == nil {
		s = make(map[string]int)
	}
	return s
}

// Ledger returns the consumed scroll event ledger, never nil.
func (m *Member) Ledger() map[string]string {
	l := m.ScrollLedger.Data()
	if l == nil {
		l = make(map[string]string)
	}
	return l
}
