package autorepair

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Summary reports the outcome of one pass.
type Summary struct {
	// Counts maps every state name to the number of instances in it.
	Counts        map[string]int
	Instances     []InstanceData
	TagsAdded     int
	TagsRemoved   int
	JobsSubmitted int
	RepairsDenied int
	DryRun        bool
}

func (c *Controller) summarize(all []InstanceData) *Summary {
	s := &Summary{
		Counts:        make(map[string]int, len(StateNames)),
		Instances:     all,
		TagsAdded:     c.stats.tagsAdded,
		TagsRemoved:   c.stats.tagsRemoved,
		JobsSubmitted: c.stats.jobsSubmitted,
		RepairsDenied: c.stats.repairsDenied,
		DryRun:        c.opts.DryRun,
	}
	for _, name := range StateNames {
		s.Counts[name] = 0
	}
	for _, d := range all {
		s.Counts[d.State.Name()]++
	}
	return s
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	countStyle  = cellStyle.Align(lipgloss.Right)
)

// Render writes the per-state table and the change counters to w.
func (s *Summary) Render(w io.Writer) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("State", "Instances").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 1:
				return countStyle
			default:
				return cellStyle
			}
		})
	for _, name := range StateNames {
		t.Row(name, strconv.Itoa(s.Counts[name]))
	}

	prefix := ""
	if s.DryRun {
		prefix = "[DRY RUN] "
	}
	_, err := fmt.Fprintf(w, "%s\n%stags added: %d, tags removed: %d, jobs submitted: %d, repairs denied: %d\n",
		t.Render(), prefix, s.TagsAdded, s.TagsRemoved, s.JobsSubmitted, s.RepairsDenied)
	return err
}
