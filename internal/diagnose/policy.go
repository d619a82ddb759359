package diagnose

import (
	"strconv"
	"strings"
	"time"

	"github.com/tinkerbelle-io/tb-repair/internal/autorepair"
	"github.com/tinkerbelle-io/tb-repair/internal/inventory"
)

// ResolvePolicy returns the auto-repair policy of inst. The instance's
// own tags are consulted first, then those of its primary node's group,
// then the cluster's; the first level carrying any policy tag decides.
func ResolvePolicy(c *inventory.Cluster, inst inventory.Instance, now time.Time) autorepair.Policy {
	levels := [][]string{inst.Tags}
	if g, ok := c.GroupOf(inst.PrimaryNode); ok {
		levels = append(levels, g.Tags)
	}
	levels = append(levels, c.Tags)

	for _, tags := range levels {
		if p, ok := policyFromTags(tags, now); ok {
			return p
		}
	}
	return autorepair.Policy{}
}

// policyFromTags reads the policy tags of one level. Suspension wins
// over enablement; among several enabled types the least severe wins;
// among several timed suspensions the one ending last wins, and those
// already over are ignored.
func policyFromTags(tags []string, now time.Time) (autorepair.Policy, bool) {
	var (
		enabled bool
		maxType autorepair.RepairType
		forever bool
		until   time.Time
	)
	for _, tag := range tags {
		key, ok := strings.CutPrefix(tag, TagPrefix)
		if !ok {
			continue
		}
		switch {
		case key == suspendKey:
			forever = true
		case strings.HasPrefix(key, suspendKey+":"):
			secs, err := strconv.ParseInt(strings.TrimPrefix(key, suspendKey+":"), 10, 64)
			if err != nil {
				continue
			}
			if t := time.Unix(secs, 0).UTC(); t.After(now) && t.After(until) {
				until = t
			}
		default:
			rt, err := autorepair.ParseRepairType(key)
			if err != nil {
				continue
			}
			if !enabled || rt < maxType {
				maxType = rt
			}
			enabled = true
		}
	}

	switch {
	case forever:
		return autorepair.Suspended(time.Time{}), true
	case !until.IsZero():
		return autorepair.Suspended(until), true
	case enabled:
		return autorepair.Enabled(maxType), true
	}
	return autorepair.Policy{}, false
}
