package autorepair

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/tinkerbelle-io/tb-repair/internal/audit"
	"github.com/tinkerbelle-io/tb-repair/internal/inventory"
	"github.com/tinkerbelle-io/tb-repair/internal/jobs"
)

var testNow = time.Unix(1700000000, 0).UTC()

type call struct {
	kind  string // "submit", "wait" or "query"
	batch jobs.Batch
	ids   []jobs.JobID
}

// fakeJobs records every call in order and answers from canned state.
type fakeJobs struct {
	calls    []call
	statuses map[jobs.JobID]jobs.Status
	nextID   jobs.JobID

	submitErr error
	waitErr   error
	queryErr  error
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{statuses: map[jobs.JobID]jobs.Status{}, nextID: 100}
}

func (f *fakeJobs) Submit(_ context.Context, batch jobs.Batch) ([]jobs.JobID, error) {
	f.calls = append(f.calls, call{kind: "submit", batch: batch})
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.nextID++
	return []jobs.JobID{f.nextID}, nil
}

func (f *fakeJobs) SubmitAndWait(_ context.Context, batch jobs.Batch) error {
	f.calls = append(f.calls, call{kind: "wait", batch: batch})
	return f.waitErr
}

func (f *fakeJobs) QueryStatus(_ context.Context, ids []jobs.JobID) ([]jobs.Status, error) {
	f.calls = append(f.calls, call{kind: "query", ids: ids})
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	out := make([]jobs.Status, len(ids))
	for i, id := range ids {
		st, ok := f.statuses[id]
		if !ok {
			return nil, fmt.Errorf("unknown job %s", id)
		}
		out[i] = st
	}
	return out, nil
}

func (f *fakeJobs) kinds() []string {
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.kind
		if c.batch.Len() > 0 {
			out[i] += ":" + c.batch.Ops[len(c.batch.Ops)-1].OpID()
		}
	}
	return out
}

// fakeDiag serves canned states, proposals and policies per instance.
type fakeDiag struct {
	states    map[string]InstanceData
	parseErr  map[string]error
	proposals map[string]Proposal
	policies  map[string]Policy
}

func newFakeDiag() *fakeDiag {
	return &fakeDiag{
		states:    map[string]InstanceData{},
		parseErr:  map[string]error{},
		proposals: map[string]Proposal{},
		policies:  map[string]Policy{},
	}
}

func (f *fakeDiag) ParseExistingState(inst inventory.Instance) (InstanceData, error) {
	if err := f.parseErr[inst.Name]; err != nil {
		return InstanceData{}, err
	}
	if d, ok := f.states[inst.Name]; ok {
		d.Instance = inst
		return d, nil
	}
	return NewInstanceData(inst), nil
}

func (f *fakeDiag) DetectBroken(_ *inventory.Cluster, inst inventory.Instance) (Proposal, bool) {
	p, ok := f.proposals[inst.Name]
	return p, ok
}

func (f *fakeDiag) Policy(_ *inventory.Cluster, inst inventory.Instance, _ time.Time) Policy {
	return f.policies[inst.Name]
}

func (f *fakeDiag) EncodeTag(d Data) string {
	return fmt.Sprintf("ar:%s:%s:%d:%s:%s", d.Type, d.AttemptID, d.CreatedAt.Unix(), d.Result, jobs.JoinIDs(d.JobIDs, "+"))
}

type memRecorder struct {
	entries []audit.AuditEntry
}

func (r *memRecorder) Log(e audit.AuditEntry) error {
	r.entries = append(r.entries, e)
	return nil
}

func (r *memRecorder) events() []string {
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.EventType
	}
	return out
}

type harness struct {
	jobs *fakeJobs
	diag *fakeDiag
	rec  *memRecorder
	out  *bytes.Buffer
	ctrl *Controller
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		jobs: newFakeJobs(),
		diag: newFakeDiag(),
		rec:  &memRecorder{},
		out:  &bytes.Buffer{},
	}
	seq := 0
	opts := Options{
		JobDelay: 10,
		Reason:   "automated repair",
		Out:      h.out,
		Recorder: h.rec,
		Now:      func() time.Time { return testNow },
		NewAttemptID: func() string {
			seq++
			return fmt.Sprintf("attempt-%d", seq)
		},
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.ctrl = NewController(h.jobs, h.diag, opts)
	return h
}

func failoverProposal(name string) Proposal {
	return Proposal{
		Type:  RepairFailover,
		Batch: jobs.NewBatch(jobs.InstanceFailover{InstanceName: name, IgnoreConsistency: true}),
	}
}

func migrateProposal(name string) Proposal {
	return Proposal{
		Type:  RepairMigrate,
		Batch: jobs.NewBatch(jobs.InstanceFailover{InstanceName: name, IAllocator: "hail"}),
	}
}

func pendingData(d *fakeDiag, ids ...jobs.JobID) Data {
	data := Data{
		Type:      RepairFailover,
		AttemptID: "old-attempt",
		CreatedAt: testNow.Add(-time.Hour),
		JobIDs:    ids,
	}
	data.Tag = d.EncodeTag(data)
	return data
}
