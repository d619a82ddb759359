package autorepair

import (
	"context"

	"github.com/tinkerbelle-io/tb-repair/internal/audit"
)

// ProcessPending checks the jobs of a pending repair. While any of them
// is still active the data is returned unchanged. Once all are terminal
// the instance moves to Healthy if every job succeeded and to
// FailedRepair otherwise, and the new state is committed. Instances
// that are not pending are returned as is.
func (c *Controller) ProcessPending(ctx context.Context, d InstanceData) (InstanceData, error) {
	pending, ok := d.State.(PendingRepair)
	if !ok {
		return d, nil
	}
	name := d.Instance.Name

	statuses, err := c.jobs.QueryStatus(ctx, pending.Data.JobIDs)
	if err != nil {
		return d, fatal("querying repair jobs of", name, err)
	}

	succeeded := true
	for _, st := range statuses {
		if st.Active() {
			c.log.Debug("repair still running", "instance", name, "attempt", pending.Data.AttemptID)
			return d, nil
		}
		if !st.Succeeded() {
			succeeded = false
		}
	}

	finished := pending.Data.Clone()
	finished.CreatedAt = c.opts.Now()

	var next State
	if succeeded {
		finished.Result = ResultSuccess
		finished.Tag = c.diag.EncodeTag(finished)
		next = HealthyAfter(finished)
	} else {
		finished.Result = ResultFailure
		finished.Tag = c.diag.EncodeTag(finished)
		next = FailedRepair{Data: finished}
	}

	c.printf("Moving %s from %q to %q", name, d.State.Name(), next.Name())
	c.log.Info("repair finished",
		"instance", name, "type", finished.Type, "result", finished.Result, "attempt", finished.AttemptID)
	c.record(audit.AuditEntry{
		EventType:  audit.EventStateChange,
		Instance:   name,
		JobIDs:     jobIDsForAudit(finished.JobIDs),
		RepairType: finished.Type.String(),
		FromState:  d.State.Name(),
		ToState:    next.Name(),
	})

	return c.Commit(ctx, d.Supersede(next))
}
