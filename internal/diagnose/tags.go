package diagnose

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tinkerbelle-io/tb-repair/internal/autorepair"
	"github.com/tinkerbelle-io/tb-repair/internal/jobs"
)

// TagPrefix starts every tag this package reads or writes.
const TagPrefix = "ganeti:watcher:autorepair:"

const (
	pendingPrefix = TagPrefix + "pending:"
	resultPrefix  = TagPrefix + "result:"
	suspendKey    = "suspend"
	jobSeparator  = "+"
)

// EncodeTag renders d as a pending tag when it has no result yet and as
// a result tag otherwise:
//
//	<prefix>pending:<type>:<uuid>:<unix-ts>:<jobs>
//	<prefix>result:<type>:<uuid>:<unix-ts>:<result>:<jobs>
func EncodeTag(d autorepair.Data) string {
	ts := strconv.FormatInt(d.CreatedAt.Unix(), 10)
	ids := jobs.JoinIDs(d.JobIDs, jobSeparator)
	if d.Result == autorepair.ResultNone {
		return pendingPrefix + strings.Join([]string{d.Type.String(), d.AttemptID, ts, ids}, ":")
	}
	return resultPrefix + strings.Join([]string{d.Type.String(), d.AttemptID, ts, d.Result.String(), ids}, ":")
}

// ParseTag decodes a pending or result tag. It returns false for tags
// that are neither, and an error for malformed ones.
func ParseTag(tag string) (autorepair.Data, bool, error) {
	var (
		fields  []string
		pending bool
	)
	switch {
	case strings.HasPrefix(tag, pendingPrefix):
		pending = true
		fields = strings.Split(strings.TrimPrefix(tag, pendingPrefix), ":")
		if len(fields) != 4 {
			return autorepair.Data{}, true, fmt.Errorf("malformed pending tag %q", tag)
		}
	case strings.HasPrefix(tag, resultPrefix):
		fields = strings.Split(strings.TrimPrefix(tag, resultPrefix), ":")
		if len(fields) != 5 {
			return autorepair.Data{}, true, fmt.Errorf("malformed result tag %q", tag)
		}
	default:
		return autorepair.Data{}, false, nil
	}

	rt, err := autorepair.ParseRepairType(fields[0])
	if err != nil {
		return autorepair.Data{}, true, fmt.Errorf("tag %q: %w", tag, err)
	}
	id, err := uuid.Parse(fields[1])
	if err != nil {
		return autorepair.Data{}, true, fmt.Errorf("tag %q: invalid attempt id: %w", tag, err)
	}
	secs, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return autorepair.Data{}, true, fmt.Errorf("tag %q: invalid timestamp %q", tag, fields[2])
	}

	d := autorepair.Data{
		Type:      rt,
		AttemptID: id.String(),
		CreatedAt: time.Unix(secs, 0).UTC(),
		Tag:       tag,
	}

	rawJobs := fields[len(fields)-1]
	if !pending {
		if d.Result, err = autorepair.ParseResult(fields[3]); err != nil {
			return autorepair.Data{}, true, fmt.Errorf("tag %q: %w", tag, err)
		}
	} else if rawJobs == "" {
		return autorepair.Data{}, true, fmt.Errorf("pending tag %q has no jobs", tag)
	}

	if rawJobs != "" {
		for _, raw := range strings.Split(rawJobs, jobSeparator) {
			jid, err := jobs.ParseJobID(raw)
			if err != nil {
				return autorepair.Data{}, true, fmt.Errorf("tag %q: %w", tag, err)
			}
			d.JobIDs = append(d.JobIDs, jid)
		}
	}
	return d, true, nil
}
