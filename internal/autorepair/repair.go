package autorepair

import (
	"context"
	"errors"

	"github.com/tinkerbelle-io/tb-repair/internal/audit"
	"github.com/tinkerbelle-io/tb-repair/internal/jobs"
)

// AttemptRepair acts on a repair proposal for a healthy instance. With
// repairs not enabled by policy nothing happens. A proposal more severe
// than the policy allows is recorded as denied and the instance moves
// to NeedsRepair without any job being submitted. Otherwise the repair
// batch is submitted as one job and the instance moves to PendingRepair.
//
// In dry-run mode an allowed repair is only reported; the instance
// stays Healthy.
func (c *Controller) AttemptRepair(ctx context.Context, d InstanceData, p Proposal, policy Policy) (InstanceData, error) {
	if _, ok := d.State.(Healthy); !ok {
		return d, nil
	}
	name := d.Instance.Name

	if policy.Mode != PolicyEnabled {
		c.log.Debug("auto-repair not enabled", "instance", name, "policy", policy)
		return d, nil
	}

	if !policy.Permits(p.Type) {
		denied := Data{
			Type:      p.Type,
			AttemptID: c.opts.NewAttemptID(),
			CreatedAt: c.opts.Now(),
			Result:    ResultPolicyDenied,
		}
		denied.Tag = c.diag.EncodeTag(denied)

		c.printf("Not performing a repair of type %s on %s because only repairs up to %s are allowed",
			p.Type, name, policy.MaxType)
		c.stats.repairsDenied++
		c.record(audit.AuditEntry{
			EventType:  audit.EventRepairDenied,
			Instance:   name,
			RepairType: p.Type.String(),
			FromState:  d.State.Name(),
			ToState:    NameNeedsRepair,
			Reason:     policy.String(),
		})
		return c.Commit(ctx, d.Supersede(NeedsRepair{Data: denied}))
	}

	batch := p.Batch
	if c.opts.JobDelay > 0 {
		batch = batch.Prepend(jobs.TestDelay{Duration: c.opts.JobDelay, OnMaster: true, NoLocks: true})
	}
	batch = c.annotate(batch)

	c.printf("Executing %s repair on %s", p.Type, name)
	if c.opts.DryRun {
		c.log.Info("[DRY RUN] would submit repair", "instance", name, "type", p.Type, "ops", batch.OpIDs())
		c.printf("Dry run, not submitting %s", batch)
		return d, nil
	}

	ids, err := c.jobs.Submit(ctx, batch)
	if err != nil {
		return d, fatal("submitting repair for", name, err)
	}
	if len(ids) == 0 {
		return d, fatal("submitting repair for", name, errors.New("job service returned no job ids"))
	}
	c.printf("Submitted job(s) %s for %s", jobs.JoinIDs(ids, ", "), name)

	pending := Data{
		Type:      p.Type,
		AttemptID: c.opts.NewAttemptID(),
		CreatedAt: c.opts.Now(),
		JobIDs:    ids,
	}
	pending.Tag = c.diag.EncodeTag(pending)

	c.stats.jobsSubmitted += len(ids)
	c.record(audit.AuditEntry{
		EventType:  audit.EventJobSubmit,
		Instance:   name,
		JobIDs:     jobIDsForAudit(ids),
		RepairType: p.Type.String(),
		FromState:  d.State.Name(),
		ToState:    NamePendingRepair,
		Reason:     c.opts.Reason,
	})
	return c.Commit(ctx, d.Supersede(PendingRepair{Data: pending}))
}
