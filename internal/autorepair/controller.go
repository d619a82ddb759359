package autorepair

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tinkerbelle-io/tb-repair/internal/audit"
	"github.com/tinkerbelle-io/tb-repair/internal/inventory"
	"github.com/tinkerbelle-io/tb-repair/internal/jobs"
)

// ReasonSource identifies this controller in the reason trail of every
// job it submits.
const ReasonSource = "gnt:watcher:autorepair"

// JobService is the part of a job service session the controller uses.
type JobService interface {
	Submit(ctx context.Context, batch jobs.Batch) ([]jobs.JobID, error)
	SubmitAndWait(ctx context.Context, batch jobs.Batch) error
	QueryStatus(ctx context.Context, ids []jobs.JobID) ([]jobs.Status, error)
}

// Proposal is a repair suggested for a broken instance.
type Proposal struct {
	Type  RepairType
	Batch jobs.Batch
}

// Diagnostics knows the tag grammar and how to tell broken instances.
type Diagnostics interface {
	// ParseExistingState rebuilds an instance's repair state from its tags.
	ParseExistingState(inst inventory.Instance) (InstanceData, error)
	// DetectBroken proposes a repair if inst needs one.
	DetectBroken(c *inventory.Cluster, inst inventory.Instance) (Proposal, bool)
	// Policy resolves the auto-repair policy that applies to inst.
	Policy(c *inventory.Cluster, inst inventory.Instance, now time.Time) Policy
	// EncodeTag renders the tag an attempt is stored under.
	EncodeTag(d Data) string
}

// Recorder receives an audit entry for every durable change.
type Recorder interface {
	Log(entry audit.AuditEntry) error
}

// Options configures a Controller.
type Options struct {
	// DryRun logs the jobs and tag changes a pass would make without
	// submitting anything.
	DryRun bool
	// JobDelay is the number of seconds a repair job sleeps before its
	// first real opcode. Zero disables the delay.
	JobDelay float64
	// Reason is attached to the reason trail of submitted jobs.
	Reason string
	// Out receives the operator report. Defaults to io.Discard.
	Out io.Writer
	// Recorder, if set, receives audit entries.
	Recorder Recorder
	// Now and NewAttemptID default to time.Now and random UUIDs.
	Now          func() time.Time
	NewAttemptID func() string
}

type counters struct {
	tagsAdded     int
	tagsRemoved   int
	jobsSubmitted int
	repairsDenied int
}

// Controller runs reconciliation passes. It is not safe for concurrent
// use; each pass runs instances one after the other.
type Controller struct {
	jobs  JobService
	diag  Diagnostics
	opts  Options
	runID string
	stats counters
	log   *slog.Logger
}

// NewController returns a controller submitting through js.
func NewController(js JobService, diag Diagnostics, opts Options) *Controller {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewAttemptID == nil {
		opts.NewAttemptID = uuid.NewString
	}
	return &Controller{
		jobs:  js,
		diag:  diag,
		opts:  opts,
		runID: uuid.NewString(),
		log:   slog.Default().With("component", "autorepair"),
	}
}

// Run performs one reconciliation pass over every instance of c:
// it rebuilds each instance's state from its tags, resolves pending
// repairs, starts new repairs on healthy broken instances and removes
// superseded tags. The first error aborts the pass; changes already
// committed stay in place.
func (c *Controller) Run(ctx context.Context, cluster *inventory.Cluster) (*Summary, error) {
	c.runID = uuid.NewString()
	c.stats = counters{}
	c.log.Info("starting repair pass",
		"run_id", c.runID, "instances", len(cluster.Instances), "dry_run", c.opts.DryRun)

	all := make([]InstanceData, 0, len(cluster.Instances))
	for _, inst := range cluster.Instances {
		d, err := c.diag.ParseExistingState(inst)
		if err != nil {
			return nil, fatal("parsing repair state of", inst.Name, err)
		}
		all = append(all, d)
	}

	for i := range all {
		d, err := c.ProcessPending(ctx, all[i])
		if err != nil {
			return nil, err
		}
		all[i] = d
	}

	for i := range all {
		if _, ok := all[i].State.(Healthy); !ok {
			continue
		}
		proposal, ok := c.diag.DetectBroken(cluster, all[i].Instance)
		if !ok {
			continue
		}
		policy := c.diag.Policy(cluster, all[i].Instance, c.opts.Now())
		d, err := c.AttemptRepair(ctx, all[i], proposal, policy)
		if err != nil {
			return nil, err
		}
		all[i] = d
	}

	for i := range all {
		if len(all[i].TagsToRemove) == 0 {
			continue
		}
		d, err := c.Commit(ctx, all[i])
		if err != nil {
			return nil, err
		}
		all[i] = d
	}

	summary := c.summarize(all)
	c.log.Info("repair pass complete",
		"run_id", c.runID,
		"jobs_submitted", summary.JobsSubmitted,
		"tags_added", summary.TagsAdded,
		"tags_removed", summary.TagsRemoved)
	return summary, nil
}

// annotate appends this controller's reason trail entry to batch.
func (c *Controller) annotate(batch jobs.Batch) jobs.Batch {
	return batch.Annotate(ReasonSource, c.opts.Reason, c.opts.Now())
}

func (c *Controller) printf(format string, args ...any) {
	fmt.Fprintf(c.opts.Out, format+"\n", args...)
}

// record writes an audit entry. Audit failures are logged and do not
// stop the pass.
func (c *Controller) record(entry audit.AuditEntry) {
	if c.opts.Recorder == nil {
		return
	}
	entry.RunID = c.runID
	entry.DryRun = c.opts.DryRun
	if entry.Timestamp.IsZero() {
		entry.Timestamp = c.opts.Now().UTC()
	}
	if err := c.opts.Recorder.Log(entry); err != nil {
		c.log.Warn("failed to write audit entry", "event", entry.EventType, "error", err)
	}
}

func jobIDsForAudit(ids []jobs.JobID) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}
