package autorepair

import (
	"context"

	"github.com/tinkerbelle-io/tb-repair/internal/audit"
	"github.com/tinkerbelle-io/tb-repair/internal/jobs"
)

// Commit makes d durable on the instance: the current attempt's tag is
// added if the instance does not carry it yet, then every tag in
// TagsToRemove is removed. Each change is a separate job waited for
// before the next one starts, and the add always goes first, so an
// interruption leaves too many tags rather than too few.
//
// The returned data has an updated tag set and an empty removal list.
func (c *Controller) Commit(ctx context.Context, d InstanceData) (InstanceData, error) {
	name := d.Instance.Name

	var add []string
	if tag, ok := d.CurrentTag(); ok && !d.Instance.HasTag(tag) {
		add = []string{tag}
	}
	remove := d.TagsToRemove

	if len(add) > 0 {
		c.printf(">>> Adding the following tag to %s:\n%q", name, add[0])
		if c.opts.DryRun {
			c.log.Info("[DRY RUN] would add tag", "instance", name, "tag", add[0])
		} else {
			op := jobs.TagsSet{Kind: jobs.TagKindInstance, Name: name, Tags: add}
			if err := c.jobs.SubmitAndWait(ctx, c.annotate(jobs.NewBatch(op))); err != nil {
				return d, fatal("adding repair tag to", name, err)
			}
		}
		c.stats.tagsAdded += len(add)
		c.record(audit.AuditEntry{EventType: audit.EventTagAdd, Instance: name, Tags: add})
	}

	if len(remove) > 0 {
		c.printf(">>> Removing the following tags from %s:", name)
		for _, tag := range remove {
			c.printf("%q", tag)
		}
		if c.opts.DryRun {
			c.log.Info("[DRY RUN] would remove tags", "instance", name, "tags", remove)
		} else {
			op := jobs.TagsDel{Kind: jobs.TagKindInstance, Name: name, Tags: remove}
			if err := c.jobs.SubmitAndWait(ctx, c.annotate(jobs.NewBatch(op))); err != nil {
				return d, fatal("removing repair tags from", name, err)
			}
		}
		c.stats.tagsRemoved += len(remove)
		c.record(audit.AuditEntry{EventType: audit.EventTagRemove, Instance: name, Tags: remove})
	}

	out := d
	out.Instance = d.Instance.WithTags(add, remove)
	out.TagsToRemove = nil
	return out, nil
}
