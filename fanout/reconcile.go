package fanout

import (
	"context"

	"github.com/groupquest/server/store"
	"go.uber.org/zap"
)

// Reconciler is the read-repair pass: it re-derives mirror deltas for every
// group with an active quest and re-propagates them, healing members whose
// fan-out failed or who crashed mid-propagate. Runs on a scheduler ticker.
type Reconciler struct {
	groups *store.GroupStore
	driver *Driver
	logger *zap.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(groups *store.GroupStore, driver *Driver, logger *zap.Logger) *Reconciler {
	return &Reconciler{groups: groups, driver: driver, logger: logger}
}

// Run performs one reconciliation sweep. Failures are logged and retried on
// the next sweep; a sweep never fails hard.
func (r *Reconciler) Run(ctx context.Context) {
	groups, err := r.groups.ActiveQuestGroups(ctx)
	if err != nil {
		r.logger.Warn("reconcile: active quest scan failed", zap.Error(err))
		return
	}
	repaired := 0
	for _, g := range groups {
		failures := r.driver.Propagate(ctx, g.ID, MirrorDeltas(g))
		repaired += len(g.Members) - len(failures)
		if len(failures) > 0 {
			r.logger.Warn("reconcile: group left partially repaired",
				zap.String("group_id", g.ID),
				zap.Strings("failed_members", FailedIDs(failures)))
		}
	}
	if len(groups) > 0 {
		r.logger.Debug("reconcile sweep complete",
			zap.Int("groups", len(groups)),
			zap.Int("member_writes", repaired))
	}
}
