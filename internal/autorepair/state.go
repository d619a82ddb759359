// Package autorepair carries detected instance breakage through a
// policy-gated repair and records its progress as instance tags, so a
// pass can be interrupted at any point and resumed by the next one.
package autorepair

import (
	"fmt"
	"slices"
	"time"

	"github.com/tinkerbelle-io/tb-repair/internal/inventory"
	"github.com/tinkerbelle-io/tb-repair/internal/jobs"
)

// RepairType is the severity of a repair. Types are ordered: a policy
// allowing one type allows every lower one too.
type RepairType int

const (
	RepairFixStorage RepairType = iota
	RepairMigrate
	RepairFailover
	RepairReinstall
)

var repairTypeNames = [...]string{
	RepairFixStorage: "fix-storage",
	RepairMigrate:    "migrate",
	RepairFailover:   "failover",
	RepairReinstall:  "reinstall",
}

func (t RepairType) String() string {
	if t < 0 || int(t) >= len(repairTypeNames) {
		return fmt.Sprintf("repair(%d)", int(t))
	}
	return repairTypeNames[t]
}

// ParseRepairType converts the name produced by String back.
func ParseRepairType(s string) (RepairType, error) {
	for i, name := range repairTypeNames {
		if name == s {
			return RepairType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown repair type %q", s)
}

// Result is the outcome of a repair attempt. The zero value means the
// attempt has no outcome yet.
type Result int

const (
	ResultNone Result = iota
	ResultSuccess
	ResultFailure
	ResultPolicyDenied
)

var resultNames = [...]string{
	ResultNone:         "",
	ResultSuccess:      "success",
	ResultFailure:      "failure",
	ResultPolicyDenied: "enoperm",
}

func (r Result) String() string {
	if r < 0 || int(r) >= len(resultNames) {
		return fmt.Sprintf("result(%d)", int(r))
	}
	return resultNames[r]
}

// ParseResult converts a result name back. The empty string is not a
// valid result name.
func ParseResult(s string) (Result, error) {
	for i, name := range resultNames {
		if name != "" && name == s {
			return Result(i), nil
		}
	}
	return ResultNone, fmt.Errorf("unknown repair result %q", s)
}

// Data describes one repair attempt. Tag is the encoded form the
// attempt is stored under on the instance.
type Data struct {
	Type      RepairType
	AttemptID string
	CreatedAt time.Time
	JobIDs    []jobs.JobID
	Result    Result
	Tag       string
}

// Clone returns a copy of d that shares no slices with it.
func (d Data) Clone() Data {
	d.JobIDs = slices.Clone(d.JobIDs)
	return d
}

// State names used in reports.
const (
	NameHealthy       = "Healthy"
	NameNeedsRepair   = "Needs repair"
	NamePendingRepair = "Pending repair"
	NameFailedRepair  = "Failed repair"
)

// StateNames lists every state name in report order.
var StateNames = []string{NameHealthy, NameNeedsRepair, NamePendingRepair, NameFailedRepair}

// State is the repair state of one instance. It is one of Healthy,
// NeedsRepair, PendingRepair or FailedRepair.
type State interface {
	// Name is the human readable state name.
	Name() string
	// Current returns the attempt the state is built on, if any.
	Current() (Data, bool)

	isState()
}

// Healthy means no repair is in progress. Last optionally carries the
// most recent finished attempt.
type Healthy struct {
	Last *Data
}

// NeedsRepair means a repair was proposed but not allowed to run.
type NeedsRepair struct {
	Data Data
}

// PendingRepair means a repair job was submitted and has not finished.
type PendingRepair struct {
	Data Data
}

// FailedRepair means the jobs of a repair finished and not all of them
// succeeded.
type FailedRepair struct {
	Data Data
}

func (Healthy) Name() string       { return NameHealthy }
func (NeedsRepair) Name() string   { return NameNeedsRepair }
func (PendingRepair) Name() string { return NamePendingRepair }
func (FailedRepair) Name() string  { return NameFailedRepair }

func (s Healthy) Current() (Data, bool) {
	if s.Last == nil {
		return Data{}, false
	}
	return *s.Last, true
}
func (s NeedsRepair) Current() (Data, bool)   { return s.Data, true }
func (s PendingRepair) Current() (Data, bool) { return s.Data, true }
func (s FailedRepair) Current() (Data, bool)  { return s.Data, true }

func (Healthy) isState()       {}
func (NeedsRepair) isState()   {}
func (PendingRepair) isState() {}
func (FailedRepair) isState()  {}

// HealthyAfter returns a Healthy state remembering d.
func HealthyAfter(d Data) Healthy {
	return Healthy{Last: &d}
}

// InstanceData is an instance together with its repair state and the
// tags that are superseded and must be removed on the next commit.
type InstanceData struct {
	Instance     inventory.Instance
	State        State
	TagsToRemove []string
}

// NewInstanceData returns inst in state Healthy without history.
func NewInstanceData(inst inventory.Instance) InstanceData {
	return InstanceData{Instance: inst, State: Healthy{}}
}

// CurrentTag returns the tag of the current attempt, if any.
func (d InstanceData) CurrentTag() (string, bool) {
	cur, ok := d.State.Current()
	if !ok || cur.Tag == "" {
		return "", false
	}
	return cur.Tag, true
}

// Supersede returns a copy of d moved to next, with the tag of the
// attempt being replaced scheduled for removal.
func (d InstanceData) Supersede(next State) InstanceData {
	out := InstanceData{
		Instance:     d.Instance,
		State:        next,
		TagsToRemove: slices.Clone(d.TagsToRemove),
	}
	old, ok := d.CurrentTag()
	if !ok {
		return out
	}
	if nextTag, ok := out.CurrentTag(); ok && nextTag == old {
		return out
	}
	if !slices.Contains(out.TagsToRemove, old) {
		out.TagsToRemove = append(out.TagsToRemove, old)
	}
	return out
}

// ScheduleRemoval returns a copy of d with tags added to the removal
// list.
func (d InstanceData) ScheduleRemoval(tags ...string) InstanceData {
	out := d
	out.TagsToRemove = slices.Clone(d.TagsToRemove)
	for _, t := range tags {
		if !slices.Contains(out.TagsToRemove, t) {
			out.TagsToRemove = append(out.TagsToRemove, t)
		}
	}
	return out
}
