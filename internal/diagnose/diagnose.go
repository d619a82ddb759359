// Package diagnose reads and writes the auto-repair tags on instances
// and decides which instances are broken and how to repair them.
package diagnose

import (
	"time"

	"github.com/tinkerbelle-io/tb-repair/internal/autorepair"
	"github.com/tinkerbelle-io/tb-repair/internal/inventory"
)

// Diagnostics bundles the functions of this package for the repair
// controller.
type Diagnostics struct{}

var _ autorepair.Diagnostics = Diagnostics{}

// New returns the default diagnostics.
func New() Diagnostics { return Diagnostics{} }

func (Diagnostics) ParseExistingState(inst inventory.Instance) (autorepair.InstanceData, error) {
	return ParseExistingState(inst)
}

func (Diagnostics) DetectBroken(c *inventory.Cluster, inst inventory.Instance) (autorepair.Proposal, bool) {
	return DetectBroken(c, inst)
}

func (Diagnostics) Policy(c *inventory.Cluster, inst inventory.Instance, now time.Time) autorepair.Policy {
	return ResolvePolicy(c, inst, now)
}

func (Diagnostics) EncodeTag(d autorepair.Data) string {
	return EncodeTag(d)
}
