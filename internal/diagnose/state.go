package diagnose

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/tinkerbelle-io/tb-repair/internal/autorepair"
	"github.com/tinkerbelle-io/tb-repair/internal/inventory"
)

// ParseExistingState rebuilds the repair state of inst from its pending
// and result tags.
//
// Tags are grouped by attempt and the groups replayed oldest first.
// Within an attempt only the most advanced record counts; the others
// are scheduled for removal. A healthy instance takes on the state of
// each attempt in turn. Needs-repair and failed states are sticky: the
// records of later attempts are scheduled for removal. Finding a second
// attempt while one is pending is an error.
func ParseExistingState(inst inventory.Instance) (autorepair.InstanceData, error) {
	groups := make(map[string][]autorepair.Data)
	for _, tag := range inst.Tags {
		d, ok, err := ParseTag(tag)
		if err != nil {
			return autorepair.InstanceData{}, fmt.Errorf("instance %s: %w", inst.Name, err)
		}
		if ok {
			groups[d.AttemptID] = append(groups[d.AttemptID], d)
		}
	}

	attempts := make([][]autorepair.Data, 0, len(groups))
	for _, records := range groups {
		slices.SortStableFunc(records, compareRecords)
		attempts = append(attempts, records)
	}
	slices.SortFunc(attempts, func(a, b []autorepair.Data) int {
		return cmp.Or(
			earliest(a).Compare(earliest(b)),
			cmp.Compare(pendingRank(a), pendingRank(b)),
			cmp.Compare(a[0].AttemptID, b[0].AttemptID),
		)
	})

	data := autorepair.NewInstanceData(inst)
	for _, records := range attempts {
		newest := records[len(records)-1]
		for _, r := range records[:len(records)-1] {
			data = data.ScheduleRemoval(r.Tag)
		}

		switch data.State.(type) {
		case autorepair.Healthy:
			data = data.Supersede(stateOf(newest))
		case autorepair.NeedsRepair, autorepair.FailedRepair:
			data = data.ScheduleRemoval(newest.Tag)
		case autorepair.PendingRepair:
			return autorepair.InstanceData{}, fmt.Errorf("instance %s: two repairs in progress", inst.Name)
		}
	}
	return data, nil
}

// compareRecords orders records of one attempt by how far the attempt
// had progressed: no result, success, failure, denied; then by time.
func compareRecords(a, b autorepair.Data) int {
	return cmp.Or(
		cmp.Compare(a.Result, b.Result),
		a.CreatedAt.Compare(b.CreatedAt),
	)
}

// pendingRank puts an attempt still waiting for its jobs after one
// started in the same second. A repair is only submitted from a healthy
// state, so the pending attempt is the newer one.
func pendingRank(records []autorepair.Data) int {
	if records[len(records)-1].Result == autorepair.ResultNone {
		return 1
	}
	return 0
}

func earliest(records []autorepair.Data) time.Time {
	first := records[0].CreatedAt
	for _, r := range records[1:] {
		if r.CreatedAt.Before(first) {
			first = r.CreatedAt
		}
	}
	return first
}

func stateOf(d autorepair.Data) autorepair.State {
	switch d.Result {
	case autorepair.ResultSuccess:
		return autorepair.HealthyAfter(d)
	case autorepair.ResultPolicyDenied:
		return autorepair.NeedsRepair{Data: d}
	case autorepair.ResultFailure:
		return autorepair.FailedRepair{Data: d}
	default:
		return autorepair.PendingRepair{Data: d}
	}
}
