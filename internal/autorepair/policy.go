package autorepair

import (
	"fmt"
	"time"
)

// PolicyMode says whether automated repairs may run on an instance.
type PolicyMode int

const (
	PolicyNotEnabled PolicyMode = iota
	PolicyEnabled
	PolicySuspended
)

// Policy is the effective auto-repair setting of one instance.
type Policy struct {
	Mode PolicyMode
	// MaxType is the most severe repair allowed when Mode is PolicyEnabled.
	MaxType RepairType
	// Until is the end of a suspension. Zero means suspended forever.
	Until time.Time
}

// Enabled returns a policy allowing repairs up to maxType.
func Enabled(maxType RepairType) Policy {
	return Policy{Mode: PolicyEnabled, MaxType: maxType}
}

// Suspended returns a policy suspending repairs until t.
func Suspended(until time.Time) Policy {
	return Policy{Mode: PolicySuspended, Until: until}
}

// Permits reports whether a repair of type t may run unattended.
func (p Policy) Permits(t RepairType) bool {
	return p.Mode == PolicyEnabled && t <= p.MaxType
}

func (p Policy) String() string {
	switch p.Mode {
	case PolicyEnabled:
		return "enabled up to " + p.MaxType.String()
	case PolicySuspended:
		if p.Until.IsZero() {
			return "suspended"
		}
		return fmt.Sprintf("suspended until %s", p.Until.UTC().Format(time.RFC3339))
	default:
		return "not enabled"
	}
}
