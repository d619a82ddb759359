// Package jobs speaks to the cluster job service: it defines the opcode
// vocabulary, job identifiers and statuses, and a session client over
// the master's Unix socket.
package jobs

import (
	"fmt"
	"strconv"
	"strings"
)

// JobID identifies a job accepted by the job service.
type JobID int64

func (id JobID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseJobID parses the decimal form produced by String.
func ParseJobID(s string) (JobID, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid job id %q", s)
	}
	return JobID(n), nil
}

// Status is the lifecycle state of a job. The order is significant:
// every status up to and including StatusRunning means the job is
// still active, everything after it is terminal.
type Status int

const (
	StatusQueued Status = iota
	StatusWaiting
	StatusCanceling
	StatusRunning
	StatusCanceled
	StatusSuccess
	StatusError
)

var statusNames = [...]string{
	StatusQueued:    "queued",
	StatusWaiting:   "waiting",
	StatusCanceling: "canceling",
	StatusRunning:   "running",
	StatusCanceled:  "canceled",
	StatusSuccess:   "success",
	StatusError:     "error",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// ParseStatus converts a wire status name to a Status.
func ParseStatus(s string) (Status, error) {
	for i, name := range statusNames {
		if name == s {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("unknown job status %q", s)
}

// Active reports whether the job has not reached a terminal status yet.
func (s Status) Active() bool { return s <= StatusRunning }

// Succeeded reports whether the job finished successfully.
func (s Status) Succeeded() bool { return s == StatusSuccess }

func (s Status) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(statusNames) {
		return nil, fmt.Errorf("invalid job status %d", int(s))
	}
	return []byte(statusNames[s]), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// JoinIDs renders ids as a separator-joined list of decimal ids.
func JoinIDs(ids []JobID, sep string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, sep)
}
