// Package quest implements the party quest lifecycle: invitation, voting,
// start, progress, completion and abort. All coordination state lives on the
// group row; member records only hold a read-optimized mirror maintained by
// the fanout driver.
package quest

import (
	"context"

	"github.com/google/uuid"
	"github.com/groupquest/server/apperr"
	"github.com/groupquest/server/catalog"
	"github.com/groupquest/server/events"
	"github.com/groupquest/server/fanout"
	"github.com/groupquest/server/hook"
	"github.com/groupquest/server/model"
	"github.com/groupquest/server/store"
	"go.uber.org/zap"
)

// ProgressDelta is one batch of quest progress. Damage applies to boss
// quests, Collect to collection quests; the coordinator ignores whichever
// side the quest definition does not use.
type ProgressDelta struct {
	Damage  float64        `json:"damage"`
	Collect map[string]int `json:"collect,omitempty"`
}

// Outcome is the payload passed to the completion and abort hooks. Reward
// granting is the economy subsystem's job; the coordinator only reports who
// finished what.
type Outcome struct {
	GroupID     string
	QuestKey    string
	AcceptedIDs []string
	Reward      catalog.Reward
}

// Service is the quest coordinator.
type Service struct {
	groups  *store.GroupStore
	members *store.MemberStore
	catalog *catalog.Catalog
	driver  *fanout.Driver
	events  *events.Publisher
	hooks   *hook.Center
	logger  *zap.Logger
}

// NewService creates a quest Service.
func NewService(groups *store.GroupStore, members *store.MemberStore, cat *catalog.Catalog,
	driver *fanout.Driver, pub *events.Publisher, hooks *hook.Center, logger *zap.Logger) *Service {
	return &Service{
		groups:  groups,
		members: members,
		catalog: cat,
		driver:  driver,
		events:  pub,
		hooks:   hooks,
		logger:  logger,
	}
}

// Invite starts a quest invitation round: the inviter is recorded as
// accepted, every other current member as pending. Quests run in parties
// only; a guild would fan mirror writes into records owned by the members'
// parties. One scroll is consumed from the inviter, deduplicated by the
// event ID minted here, and the balance may go negative rather than fail
// the invitation.
func (svc *Service) Invite(ctx context.Context, groupID, inviterID, questKey string) (*model.Group, error) {
	if _, err := svc.catalog.Lookup(questKey); err != nil {
		return nil, err
	}

	g, err := svc.groups.Update(ctx, groupID, func(g *model.Group) error {
		if g.Type != model.GroupTypeParty {
			return apperr.New(apperr.KindNotFound, "quests can only run in a party")
		}
		if !g.HasMember(inviterID) {
			return apperr.New(apperr.KindUnauthorized, "only group members can start a quest invitation")
		}
		if qs := g.QuestState(); qs != nil && qs.Key != "" {
			return apperr.New(apperr.KindQuestInProgress, "group already has quest %q pending or active", qs.Key)
		}
		votes := make(map[string]model.Vote, len(g.Members))
		for _, id := range g.Members {
			if id == inviterID {
				votes[id] = model.VoteAccepted
			} else {
				votes[id] = model.VotePending
			}
		}
		g.SetQuestState(&model.QuestState{
			Key:     questKey,
			Members: votes,
			EventID: uuid.NewString(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	qs := g.QuestState()
	failures := svc.driver.Propagate(ctx, g.ID, map[string]fanout.Delta{
		inviterID: {Scroll: &fanout.ScrollCharge{QuestKey: questKey, EventID: qs.EventID}},
	})

	svc.events.Publish(ctx, events.Event{
		Type: events.TypeQuestInvited, GroupID: g.ID,
		MemberID: inviterID, QuestKey: questKey, Votes: qs.Members,
	})
	svc.hooks.Trigger(ctx, hook.OnQuestInvited, &Outcome{GroupID: g.ID, QuestKey: questKey})

	if len(failures) > 0 {
		return g, apperr.Partial(fanout.FailedIDs(failures))
	}
	return g, nil
}

// Vote records a member's answer to the pending invitation. Re-voting
// overwrites the previous answer; voting after the quest started, or when no
// invitation exists, is NoPendingInvitation.
func (svc *Service) Vote(ctx context.Context, groupID, memberID string, accept bool) (*model.Group, error) {
	want := model.VoteRejected
	if accept {
		want = model.VoteAccepted
	}

	g, err := svc.groups.Update(ctx, groupID, func(g *model.Group) error {
		qs := g.QuestState()
		if qs == nil || qs.Key == "" {
			return apperr.New(apperr.KindNoPendingInvitation, "no quest invitation to vote on")
		}
		if qs.Active {
			return apperr.New(apperr.KindNoPendingInvitation, "quest %q already started", qs.Key)
		}
		if !g.HasMember(memberID) {
			return apperr.New(apperr.KindUnauthorized, "only group members can vote")
		}
		if qs.Members == nil {
			qs.Members = make(map[string]model.Vote)
		}
		if qs.Members[memberID] == want {
			return store.ErrNoChange
		}
		qs.Members[memberID] = want
		g.SetQuestState(qs)
		return nil
	})
	if err != nil {
		return nil, err
	}

	svc.events.Publish(ctx, events.Event{
		Type: events.TypeQuestVote, GroupID: g.ID,
		MemberID: memberID, QuestKey: g.QuestState().Key, Votes: g.QuestState().Members,
	})
	return g, nil
}

// TryStart activates the pending quest once no current member is still
// pending. Votes of members who have since left do not count. Without
// quorum the call is a soft no-op (started=false); with force, which only
// the leader may use, remaining pending votes are marked rejected and the
// quest starts anyway. Calling on an already active quest returns
// started=false without error.
func (svc *Service) TryStart(ctx context.Context, groupID, requesterID string, force bool) (*model.Group, bool, error) {
	var (
		started bool
		def     *catalog.QuestDef
	)
	g, err := svc.groups.Update(ctx, groupID, func(g *model.Group) error {
		started = false
		qs := g.QuestState()
		if qs == nil || qs.Key == "" {
			return apperr.New(apperr.KindNoPendingInvitation, "no quest invitation to start")
		}
		if qs.Active {
			return store.ErrNoChange
		}
		if requesterID != "" && !g.HasMember(requesterID) {
			return apperr.New(apperr.KindUnauthorized, "only group members can start the quest")
		}
		if force && requesterID != "" && requesterID != g.LeaderID {
			return apperr.New(apperr.KindUnauthorized, "only the group leader can force-start")
		}

		var err error
		def, err = svc.catalog.Lookup(qs.Key)
		if err != nil {
			return err
		}

		if !force {
			for _, id := range g.Members {
				if qs.Members[id] == model.VotePending {
					return store.ErrNoChange
				}
			}
		}
		for id, v := range qs.Members {
			if v == model.VotePending {
				qs.Members[id] = model.VoteRejected
			}
		}

		if def.IsBoss() {
			hp := def.Boss.HP
			qs.Progress = &model.QuestProgress{HP: &hp}
		} else {
			collect := make(map[string]int, len(def.Collect))
			for k := range def.Collect {
				collect[k] = 0
			}
			qs.Progress = &model.QuestProgress{Collect: collect}
		}
		qs.Active = true
		g.SetQuestState(qs)
		started = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !started {
		return g, false, nil
	}

	failures := svc.driver.Propagate(ctx, g.ID, fanout.MirrorDeltas(g))

	qs := g.QuestState()
	svc.events.Publish(ctx, events.Event{
		Type: events.TypeQuestStarted, GroupID: g.ID, QuestKey: qs.Key, Votes: qs.Members,
	})
	svc.hooks.Trigger(ctx, hook.OnQuestStarted, &Outcome{
		GroupID: g.ID, QuestKey: qs.Key, AcceptedIDs: acceptedIDs(qs), Reward: def.Reward,
	})

	if len(failures) > 0 {
		return g, true, apperr.Partial(fanout.FailedIDs(failures))
	}
	return g, true, nil
}

// ApplyProgress applies one progress batch to the active quest. Boss HP
// floors at zero; collection counts cap at their goals and unknown item keys
// are ignored. When the batch reaches the completion condition, completion
// runs immediately as part of this call.
func (svc *Service) ApplyProgress(ctx context.Context, groupID, memberID string, delta ProgressDelta) (*model.Group, error) {
	var completed bool
	g, err := svc.groups.Update(ctx, groupID, func(g *model.Group) error {
		completed = false
		qs := g.QuestState()
		if qs == nil || !qs.Active {
			return apperr.New(apperr.KindNoPendingInvitation, "no active quest to progress")
		}
		if memberID != "" && !g.HasMember(memberID) {
			return apperr.New(apperr.KindUnauthorized, "only group members can report progress")
		}
		def, err := svc.catalog.Lookup(qs.Key)
		if err != nil {
			return err
		}

		p := qs.Progress
		if p == nil {
			p = &model.QuestProgress{}
		}
		if def.IsBoss() {
			hp := def.Boss.HP
			if p.HP != nil {
				hp = *p.HP
			}
			hp -= delta.Damage
			if hp > def.Boss.HP {
				hp = def.Boss.HP
			}
			if hp < 0 {
				hp = 0
			}
			p.HP = &hp
			p.Collect = nil
			completed = hp == 0
		} else {
			if p.Collect == nil {
				p.Collect = make(map[string]int, len(def.Collect))
			}
			for k, n := range delta.Collect {
				goal, known := def.Collect[k]
				if !known {
					continue
				}
				c := p.Collect[k] + n
				if c > goal {
					c = goal
				}
				if c < 0 {
					c = 0
				}
				p.Collect[k] = c
			}
			p.HP = nil
			completed = true
			for k, goal := range def.Collect {
				if p.Collect[k] < goal {
					completed = false
					break
				}
			}
		}
		qs.Progress = p
		g.SetQuestState(qs)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if completed {
		return svc.Complete(ctx, groupID)
	}

	failures := svc.driver.Propagate(ctx, g.ID, fanout.MirrorDeltas(g))
	svc.events.Publish(ctx, events.Event{
		Type: events.TypeQuestProgress, GroupID: g.ID, MemberID: memberID, QuestKey: g.QuestState().Key,
	})
	if len(failures) > 0 {
		return g, apperr.Partial(fanout.FailedIDs(failures))
	}
	return g, nil
}

// Complete clears the quest from the group and fans out mirror clears to
// every member who had accepted, then fires the completion hook carrying the
// reward metadata.
func (svc *Service) Complete(ctx context.Context, groupID string) (*model.Group, error) {
	var snap *model.QuestState
	g, err := svc.groups.Update(ctx, groupID, func(g *model.Group) error {
		qs := g.QuestState()
		if qs == nil || qs.Key == "" {
			return apperr.New(apperr.KindNoPendingInvitation, "no quest to complete")
		}
		snap = qs
		g.SetQuestState(nil)
		return nil
	})
	if err != nil {
		return nil, err
	}

	deltas := make(map[string]fanout.Delta)
	for id, v := range snap.Members {
		if v == model.VoteAccepted {
			deltas[id] = fanout.Delta{ClearMirror: true, ClearIfKey: snap.Key}
		}
	}
	failures := svc.driver.Propagate(ctx, g.ID, deltas)

	outcome := &Outcome{GroupID: g.ID, QuestKey: snap.Key, AcceptedIDs: acceptedIDs(snap)}
	if def, err := svc.catalog.Lookup(snap.Key); err == nil {
		outcome.Reward = def.Reward
	}
	svc.hooks.Trigger(ctx, hook.OnQuestComplete, outcome)
	svc.events.Publish(ctx, events.Event{
		Type: events.TypeQuestComplete, GroupID: g.ID, QuestKey: snap.Key, Votes: snap.Members,
	})

	if len(failures) > 0 {
		return g, apperr.Partial(fanout.FailedIDs(failures))
	}
	return g, nil
}

// Abort cancels the quest whether pending or active. Mirror clears fan out
// to the union of current members and everyone recorded in the vote map, so
// a member who accepted and then left is still cleaned up.
func (svc *Service) Abort(ctx context.Context, groupID, requesterID string) (*model.Group, error) {
	var snap *model.QuestState
	g, err := svc.groups.Update(ctx, groupID, func(g *model.Group) error {
		qs := g.QuestState()
		if qs == nil || qs.Key == "" {
			return apperr.New(apperr.KindNoPendingInvitation, "no quest to abort")
		}
		if requesterID != "" && requesterID != g.LeaderID {
			return apperr.New(apperr.KindUnauthorized, "only the group leader can abort the quest")
		}
		snap = qs
		g.SetQuestState(nil)
		return nil
	})
	if err != nil {
		return nil, err
	}

	deltas := make(map[string]fanout.Delta)
	for _, id := range g.Members {
		deltas[id] = fanout.Delta{ClearMirror: true, ClearIfKey: snap.Key}
	}
	for id := range snap.Members {
		deltas[id] = fanout.Delta{ClearMirror: true, ClearIfKey: snap.Key}
	}
	failures := svc.driver.Propagate(ctx, g.ID, deltas)

	svc.hooks.Trigger(ctx, hook.OnQuestAborted, &Outcome{
		GroupID: g.ID, QuestKey: snap.Key, AcceptedIDs: acceptedIDs(snap),
	})
	svc.events.Publish(ctx, events.Event{
		Type: events.TypeQuestAborted, GroupID: g.ID, QuestKey: snap.Key,
	})

	if len(failures) > 0 {
		return g, apperr.Partial(fanout.FailedIDs(failures))
	}
	return g, nil
}

func acceptedIDs(qs *model.QuestState) []string {
	ids := make([]string, 0, len(qs.Members))
	for id, v := range qs.Members {
		if v == model.VoteAccepted {
			ids = append(ids, id)
		}
	}
	return ids
}
