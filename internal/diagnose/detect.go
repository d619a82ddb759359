package diagnose

import (
	"github.com/tinkerbelle-io/tb-repair/internal/autorepair"
	"github.com/tinkerbelle-io/tb-repair/internal/inventory"
	"github.com/tinkerbelle-io/tb-repair/internal/jobs"
)

// IAllocator picks replacement nodes for relocating repairs.
const IAllocator = "hail"

// DetectBroken proposes a repair for an instance whose nodes are
// offline. What is proposed depends on where the instance's disk data
// survives.
func DetectBroken(c *inventory.Cluster, inst inventory.Instance) (autorepair.Proposal, bool) {
	primaryDown := c.NodeOffline(inst.PrimaryNode)

	switch inst.DiskTemplate.Mirror() {
	case inventory.MirrorInternal:
		secondaryDown := false
		for _, n := range inst.SecondaryNodes {
			if c.NodeOffline(n) {
				secondaryDown = true
			}
		}
		switch {
		case primaryDown && secondaryDown:
			return reinstall(inst), true
		case primaryDown:
			return autorepair.Proposal{
				Type: autorepair.RepairFailover,
				Batch: jobs.NewBatch(jobs.InstanceFailover{
					InstanceName:      inst.Name,
					IgnoreConsistency: true,
				}),
			}, true
		case secondaryDown:
			return autorepair.Proposal{
				Type: autorepair.RepairFixStorage,
				Batch: jobs.NewBatch(jobs.InstanceReplaceDisks{
					InstanceName: inst.Name,
					Mode:         jobs.ReplaceNewSecondary,
					IAllocator:   IAllocator,
				}),
			}, true
		}

	case inventory.MirrorExternal:
		if primaryDown {
			return autorepair.Proposal{
				Type: autorepair.RepairFailover,
				Batch: jobs.NewBatch(jobs.InstanceFailover{
					InstanceName: inst.Name,
					IAllocator:   IAllocator,
				}),
			}, true
		}

	default:
		if inst.DiskTemplate != inventory.DiskDiskless && primaryDown {
			return reinstall(inst), true
		}
	}
	return autorepair.Proposal{}, false
}

// reinstall recreates the disks on nodes picked by the allocator and
// reinstalls the operating system on them.
func reinstall(inst inventory.Instance) autorepair.Proposal {
	return autorepair.Proposal{
		Type: autorepair.RepairReinstall,
		Batch: jobs.NewBatch(
			jobs.InstanceRecreateDisks{InstanceName: inst.Name, IAllocator: IAllocator},
			jobs.InstanceReinstall{InstanceName: inst.Name},
		),
	}
}
