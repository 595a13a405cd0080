// Package group implements membership management: invitations, joins,
// leaves and removals, with the invariant that a member belongs to at most
// one party at a time.
package group

import (
	"context"

	"github.com/groupquest/server/apperr"
	"github.com/groupquest/server/events"
	"github.com/groupquest/server/fanout"
	"github.com/groupquest/server/hook"
	"github.com/groupquest/server/model"
	"github.com/groupquest/server/store"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Service coordinates membership changes between the group record and the
// member records. Group and member rows are written separately; the retry
// policy of the stores keeps each write safe under concurrent callers.
type Service struct {
	groups  *store.GroupStore
	members *store.MemberStore
	driver  *fanout.Driver
	events  *events.Publisher
	hooks   *hook.Center
	logger  *zap.Logger
}

// NewService creates a membership Service.
func NewService(groups *store.GroupStore, members *store.MemberStore, driver *fanout.Driver,
	pub *events.Publisher, hooks *hook.Center, logger *zap.Logger) *Service {
	return &Service{
		groups:  groups,
		members: members,
		driver:  driver,
		events:  pub,
		hooks:   hooks,
		logger:  logger,
	}
}

// Invite invites targetID to the group. All validation happens before the
// first write. The target's invitation entry is written first, then the
// group's invite set, matching the order the join path consumes them in.
func (svc *Service) Invite(ctx context.Context, groupID, inviterID, targetID string) (*model.Group, error) {
	g, err := svc.groups.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !g.HasMember(inviterID) {
		return nil, apperr.New(apperr.KindUnauthorized, "only group members can invite")
	}
	if g.HasMember(targetID) {
		return nil, apperr.New(apperr.KindAlreadyMember, "member %s already in group", targetID)
	}

	_, err = svc.members.Update(ctx, targetID, func(m *model.Member) error {
		inv := m.Invitations.Data()
		switch g.Type {
		case model.GroupTypeParty:
			if inv.Party != nil {
				return apperr.New(apperr.KindAlreadyInvited, "member %s already has a pending party invitation", targetID)
			}
			party, err := svc.groups.FindPartyOf(ctx, targetID)
			if err != nil {
				return err
			}
			if party != nil {
				return apperr.New(apperr.KindAlreadyInParty, "member %s already in a party", targetID)
			}
			inv.Party = &model.GroupRef{GroupID: g.ID, GroupName: g.Name}
		default:
			if inv.GuildInviteIndex(g.ID) >= 0 {
				return apperr.New(apperr.KindAlreadyInvited, "member %s already invited to this guild", targetID)
			}
			inv.Guilds = append(inv.Guilds, model.GroupRef{GroupID: g.ID, GroupName: g.Name})
		}
		m.Invitations = datatypes.NewJSONType(inv)
		return nil
	})
	if err != nil {
		return nil, err
	}

	g, err = svc.groups.Update(ctx, groupID, func(g *model.Group) error {
		if g.HasMember(targetID) {
			return apperr.New(apperr.KindAlreadyMember, "member %s already in group", targetID)
		}
		if g.HasInvite(targetID) {
			return store.ErrNoChange
		}
		g.Invites = append(g.Invites, targetID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	svc.events.Publish(ctx, events.Event{Type: events.TypeMemberInvited, GroupID: g.ID, MemberID: targetID})
	return g, nil
}

// Join adds memberID to the group and consumes the matching invitation.
// Idempotent: joining a group the member already belongs to is a membership
// no-op but still clears any stray invitation.
func (svc *Service) Join(ctx context.Context, groupID, memberID string) (*model.Group, error) {
	g, err := svc.groups.Update(ctx, groupID, func(g *model.Group) error {
		if g.HasMember(memberID) {
			if !g.HasInvite(memberID) {
				return store.ErrNoChange
			}
			g.RemoveInviteID(memberID)
			return nil
		}
		if g.Type == model.GroupTypeParty {
			existing, err := svc.groups.FindPartyOf(ctx, memberID)
			if err != nil {
				return err
			}
			if existing != nil && existing.ID != g.ID {
				return apperr.New(apperr.KindAlreadyInParty, "member %s already in a party", memberID)
			}
		}
		g.Members = append(g.Members, memberID)
		g.RemoveInviteID(memberID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	_, err = svc.members.Update(ctx, memberID, func(m *model.Member) error {
		return clearInvitation(m, g)
	})
	if err != nil {
		return nil, err
	}

	svc.events.Publish(ctx, events.Event{Type: events.TypeMemberJoined, GroupID: g.ID, MemberID: memberID})
	svc.hooks.Trigger(ctx, hook.OnMemberJoined, map[string]string{"group_id": g.ID, "member_id": memberID})
	return g, nil
}

// Leave removes memberID from the group, without validating that the member
// was present. The member's quest mirror is cleared when it references the
// group's current quest.
func (svc *Service) Leave(ctx context.Context, groupID, memberID string) (*model.Group, error) {
	questKey := ""
	g, err := svc.groups.Update(ctx, groupID, func(g *model.Group) error {
		if qs := g.QuestState(); qs != nil {
			questKey = qs.Key
		}
		if !g.HasMember(memberID) {
			return store.ErrNoChange
		}
		g.RemoveMemberID(memberID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if questKey != "" {
		failures := svc.driver.Propagate(ctx, g.ID, map[string]fanout.Delta{
			memberID: {ClearMirror: true, ClearIfKey: questKey},
		})
		if len(failures) > 0 {
			return g, apperr.Partial(fanout.FailedIDs(failures))
		}
	}

	svc.events.Publish(ctx, events.Event{Type: events.TypeMemberLeft, GroupID: g.ID, MemberID: memberID})
	svc.hooks.Trigger(ctx, hook.OnMemberLeft, map[string]string{"group_id": g.ID, "member_id": memberID})
	return g, nil
}

// RemoveMember is the leader-only removal: a present member is removed from
// the member set; an invited member loses both the group's invite entry and
// their own invitation entry.
func (svc *Service) RemoveMember(ctx context.Context, groupID, requesterID, targetID string) (*model.Group, error) {
	g, err := svc.groups.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g.LeaderID != requesterID {
		return nil, apperr.New(apperr.KindUnauthorized, "only the group leader can remove a member")
	}

	switch {
	case g.HasMember(targetID):
		questKey := ""
		g, err = svc.groups.Update(ctx, groupID, func(g *model.Group) error {
			if qs := g.QuestState(); qs != nil {
				questKey = qs.Key
			}
			if !g.HasMember(targetID) {
				return store.ErrNoChange
			}
			g.RemoveMemberID(targetID)
			return nil
		})
		if err != nil {
			return nil, err
		}
		if questKey != "" {
			failures := svc.driver.Propagate(ctx, g.ID, map[string]fanout.Delta{
				targetID: {ClearMirror: true, ClearIfKey: questKey},
			})
			if len(failures) > 0 {
				return g, apperr.Partial(fanout.FailedIDs(failures))
			}
		}

	case g.HasInvite(targetID):
		g, err = svc.groups.Update(ctx, groupID, func(g *model.Group) error {
			if !g.HasInvite(targetID) {
				return store.ErrNoChange
			}
			g.RemoveInviteID(targetID)
			return nil
		})
		if err != nil {
			return nil, err
		}
		if _, err := svc.members.Update(ctx, targetID, func(m *model.Member) error {
			return clearInvitation(m, g)
		}); err != nil {
			return nil, err
		}

	default:
		return nil, apperr.New(apperr.KindNotFound, "member %s not found among group members or invites", targetID)
	}

	svc.events.Publish(ctx, events.Event{Type: events.TypeMemberRemoved, GroupID: g.ID, MemberID: targetID})
	return g, nil
}

// clearInvitation removes the invitation entry referencing g from m, for
// whichever group type applies. Returns store.ErrNoChange when nothing
// referenced the group.
func clearInvitation(m *model.Member, g *model.Group) error {
	inv := m.Invitations.Data()
	changed := false
	if g.Type == model.GroupTypeParty {
		if inv.Party != nil && inv.Party.GroupID == g.ID {
			inv.Party = nil
			changed = true
		}
	} else if i := inv.GuildInviteIndex(g.ID); i >= 0 {
		inv.Guilds = append(inv.Guilds[:i], inv.Guilds[i+1:]...)
		changed = true
	}
	if !changed {
		return store.ErrNoChange
	}
	m.Invitations = datatypes.NewJSONType(inv)
	return nil
}
