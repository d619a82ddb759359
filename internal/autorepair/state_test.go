package autorepair

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinkerbelle-io/tb-repair/internal/inventory"
)

func TestRepairTypeOrderAndNames(t *testing.T) {
	assert.Less(t, RepairFixStorage, RepairMigrate)
	assert.Less(t, RepairMigrate, RepairFailover)
	assert.Less(t, RepairFailover, RepairReinstall)

	for _, rt := range []RepairType{RepairFixStorage, RepairMigrate, RepairFailover, RepairReinstall} {
		parsed, err := ParseRepairType(rt.String())
		require.NoError(t, err)
		assert.Equal(t, rt, parsed)
	}
	_, err := ParseRepairType("reboot")
	assert.Error(t, err)
}

func TestParseResult(t *testing.T) {
	r, err := ParseResult("enoperm")
	require.NoError(t, err)
	assert.Equal(t, ResultPolicyDenied, r)

	_, err = ParseResult("")
	assert.Error(t, err)
	_, err = ParseResult("maybe")
	assert.Error(t, err)
}

func TestPolicyPermits(t *testing.T) {
	p := Enabled(RepairMigrate)
	assert.True(t, p.Permits(RepairFixStorage))
	assert.True(t, p.Permits(RepairMigrate))
	assert.False(t, p.Permits(RepairFailover))

	assert.False(t, Policy{}.Permits(RepairFixStorage))
	assert.False(t, Suspended(testNow).Permits(RepairFixStorage))

	assert.Equal(t, "enabled up to migrate", p.String())
	assert.Equal(t, "suspended", Suspended(time.Time{}).String())
	assert.Equal(t, "suspended until 2023-11-14T22:13:20Z", Suspended(testNow).String())
	assert.Equal(t, "not enabled", Policy{}.String())
}

func TestStateCurrent(t *testing.T) {
	data := Data{Tag: "t1"}
	states := []State{NeedsRepair{Data: data}, PendingRepair{Data: data}, FailedRepair{Data: data}, HealthyAfter(data)}
	for _, s := range states {
		cur, ok := s.Current()
		require.True(t, ok, s.Name())
		assert.Equal(t, "t1", cur.Tag)
	}

	_, ok := Healthy{}.Current()
	assert.False(t, ok)
}

func TestSupersedeSchedulesOldTag(t *testing.T) {
	d := InstanceData{
		Instance:     inventory.Instance{Name: "inst1"},
		State:        FailedRepair{Data: Data{Tag: "old"}},
		TagsToRemove: []string{"stale"},
	}

	next := d.Supersede(NeedsRepair{Data: Data{Tag: "new"}})
	assert.Equal(t, []string{"stale", "old"}, next.TagsToRemove)
	assert.Equal(t, []string{"stale"}, d.TagsToRemove)

	same := d.Supersede(PendingRepair{Data: Data{Tag: "old"}})
	assert.Equal(t, []string{"stale"}, same.TagsToRemove)

	fromEmpty := NewInstanceData(inventory.Instance{Name: "inst2"}).Supersede(PendingRepair{Data: Data{Tag: "new"}})
	assert.Empty(t, fromEmpty.TagsToRemove)
}

func TestScheduleRemovalDeduplicates(t *testing.T) {
	d := NewInstanceData(inventory.Instance{Name: "inst1"}).ScheduleRemoval("a", "b", "a")
	assert.Equal(t, []string{"a", "b"}, d.TagsToRemove)
}

func TestFatalErrorUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := fatal("querying repair jobs of", "inst1", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "querying repair jobs of inst1: boom", err.Error())
	assert.Equal(t, "loading inventory: boom", fatal("loading inventory", "", cause).Error())
}
