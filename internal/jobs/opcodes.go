package jobs

import (
	"fmt"
	"strings"
	"time"
)

// OpCode is a single operation executed by the job service. Concrete
// opcodes are plain value structs; a job is an ordered Batch of them.
type OpCode interface {
	OpID() string
}

// TagKind selects the object a tag opcode applies to.
type TagKind string

const TagKindInstance TagKind = "instance"

// TagsSet adds tags to an object.
type TagsSet struct {
	Kind TagKind  `cbor:"kind"`
	Name string   `cbor:"name"`
	Tags []string `cbor:"tags"`
}

func (TagsSet) OpID() string { return "OP_TAGS_SET" }

// TagsDel removes tags from an object.
type TagsDel struct {
	Kind TagKind  `cbor:"kind"`
	Name string   `cbor:"name"`
	Tags []string `cbor:"tags"`
}

func (TagsDel) OpID() string { return "OP_TAGS_DEL" }

// TestDelay sleeps for Duration seconds. With NoLocks set it holds no
// cluster locks while sleeping.
type TestDelay struct {
	Duration float64 `cbor:"duration"`
	OnMaster bool    `cbor:"on_master"`
	NoLocks  bool    `cbor:"no_locks"`
}

func (TestDelay) OpID() string { return "OP_TEST_DELAY" }

// InstanceFailover moves an instance to its secondary node, or to a
// node chosen by IAllocator for externally mirrored disks.
type InstanceFailover struct {
	InstanceName      string `cbor:"instance_name"`
	IgnoreConsistency bool   `cbor:"ignore_consistency"`
	IAllocator        string `cbor:"iallocator,omitempty"`
}

func (InstanceFailover) OpID() string { return "OP_INSTANCE_FAILOVER" }

// ReplaceDisksMode selects what InstanceReplaceDisks replaces.
type ReplaceDisksMode string

const ReplaceNewSecondary ReplaceDisksMode = "replace_new_secondary"

// InstanceReplaceDisks rebuilds an instance's mirrored disks.
type InstanceReplaceDisks struct {
	InstanceName string           `cbor:"instance_name"`
	Mode         ReplaceDisksMode `cbor:"mode"`
	IAllocator   string           `cbor:"iallocator,omitempty"`
}

func (InstanceReplaceDisks) OpID() string { return "OP_INSTANCE_REPLACE_DISKS" }

// InstanceRecreateDisks recreates an instance's disks, possibly on new
// nodes picked by IAllocator.
type InstanceRecreateDisks struct {
	InstanceName string `cbor:"instance_name"`
	IAllocator   string `cbor:"iallocator,omitempty"`
}

func (InstanceRecreateDisks) OpID() string { return "OP_INSTANCE_RECREATE_DISKS" }

// InstanceReinstall reinstalls the operating system of an instance.
type InstanceReinstall struct {
	InstanceName string `cbor:"instance_name"`
}

func (InstanceReinstall) OpID() string { return "OP_INSTANCE_REINSTALL" }

// ReasonEntry is one hop of the reason trail attached to submitted
// opcodes. Timestamp is in nanoseconds since the epoch.
type ReasonEntry struct {
	Source    string `cbor:"source"`
	Reason    string `cbor:"reason"`
	Timestamp int64  `cbor:"timestamp"`
}

// Batch is the ordered list of opcodes that make up one job. Batches
// are values: every modifier returns a new Batch and leaves the
// receiver untouched.
type Batch struct {
	Ops    []OpCode
	Reason []ReasonEntry
}

// NewBatch returns a batch of the given opcodes.
func NewBatch(ops ...OpCode) Batch {
	return Batch{Ops: append([]OpCode(nil), ops...)}
}

// Prepend returns a copy of b with op in front of the existing opcodes.
func (b Batch) Prepend(op OpCode) Batch {
	ops := make([]OpCode, 0, len(b.Ops)+1)
	ops = append(ops, op)
	ops = append(ops, b.Ops...)
	return Batch{Ops: ops, Reason: append([]ReasonEntry(nil), b.Reason...)}
}

// Annotate returns a copy of b with a reason trail entry appended.
func (b Batch) Annotate(source, reason string, now time.Time) Batch {
	trail := make([]ReasonEntry, 0, len(b.Reason)+1)
	trail = append(trail, b.Reason...)
	trail = append(trail, ReasonEntry{Source: source, Reason: reason, Timestamp: now.UnixNano()})
	return Batch{Ops: append([]OpCode(nil), b.Ops...), Reason: trail}
}

// Len returns the number of opcodes in the batch.
func (b Batch) Len() int { return len(b.Ops) }

// OpIDs lists the opcode identifiers in execution order.
func (b Batch) OpIDs() []string {
	ids := make([]string, len(b.Ops))
	for i, op := range b.Ops {
		ids[i] = op.OpID()
	}
	return ids
}

func (b Batch) String() string {
	parts := make([]string, len(b.Ops))
	for i, op := range b.Ops {
		parts[i] = fmt.Sprintf("%s%+v", op.OpID(), op)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// wireOp is the encoded form of one opcode. The batch's reason trail is
// copied onto every opcode.
type wireOp struct {
	ID     string        `cbor:"OP_ID"`
	Reason []ReasonEntry `cbor:"reason,omitempty"`
	Params OpCode        `cbor:"params"`
}

func (b Batch) wire() []wireOp {
	ops := make([]wireOp, len(b.Ops))
	for i, op := range b.Ops {
		ops[i] = wireOp{ID: op.OpID(), Reason: b.Reason, Params: op}
	}
	return ops
}
