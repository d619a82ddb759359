package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Wire method names understood by the job service.
const (
	MethodSubmitJob        = "SubmitJob"
	MethodQueryJobs        = "QueryJobs"
	MethodQueryNodes       = "QueryNodes"
	MethodQueryInstances   = "QueryInstances"
	MethodQueryGroups      = "QueryGroups"
	MethodQueryClusterInfo = "QueryClusterInfo"
)

// dialTimeout bounds only the connect phase of Dial.
const dialTimeout = 5 * time.Second

// ErrJobFailed is wrapped by SubmitAndWait when a job finishes with a
// status other than success.
var ErrJobFailed = errors.New("job did not succeed")

// ErrClosed is returned by calls on a client that was closed or whose
// stream broke during an earlier call.
var ErrClosed = errors.New("job service session closed")

// ServiceError is returned when the job service answers a request with
// success=false.
type ServiceError struct {
	Method  string
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("job service error on %q: %s", e.Method, e.Message)
}

// Request is the wire envelope of every call.
type Request struct {
	Method string `cbor:"method"`
	Args   any    `cbor:"args,omitempty"`
}

// Response is the wire envelope of every reply.
type Response struct {
	Success bool            `cbor:"success"`
	Result  cbor.RawMessage `cbor:"result,omitempty"`
	Error   string          `cbor:"error,omitempty"`
}

// SubmitArgs are the arguments of SubmitJob.
type SubmitArgs struct {
	Ops []wireOp `cbor:"ops"`
}

// QueryJobsArgs are the arguments of QueryJobs.
type QueryJobsArgs struct {
	IDs    []JobID  `cbor:"ids"`
	Fields []string `cbor:"fields"`
}

// JobInfo is one row of a QueryJobs reply.
type JobInfo struct {
	ID     JobID  `cbor:"id"`
	Status Status `cbor:"status"`
}

// Options tunes a session.
type Options struct {
	// Timeout bounds every single request/response exchange.
	Timeout time.Duration
	// WaitTimeout bounds SubmitAndWait as a whole.
	WaitTimeout time.Duration
	// PollInterval is the delay between status polls in SubmitAndWait.
	PollInterval time.Duration
}

// DefaultOptions returns the options used when a field is left zero.
func DefaultOptions() Options {
	return Options{
		Timeout:      60 * time.Second,
		WaitTimeout:  10 * time.Minute,
		PollInterval: time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.WaitTimeout <= 0 {
		o.WaitTimeout = d.WaitTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	return o
}

// Client is one session with the job service. It keeps a single stream
// connection open; requests are CBOR values written back to back and
// every request is answered by exactly one response. Calls are
// serialized, so a Client may be shared between goroutines.
//
// A Client must be closed when the caller is done with it.
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	enc     *cbor.Encoder
	dec     *cbor.Decoder
	closers []io.Closer
	broken  bool
	opts    Options
	log     *slog.Logger
}

// Dial opens a session to the job service at endpoint. The endpoint is
// either a local socket path or ssh://user@host[:port]/socket/path.
func Dial(ctx context.Context, endpoint string, opts Options) (*Client, error) {
	ep, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	if ep.SSH == nil {
		dialer := net.Dialer{Timeout: dialTimeout}
		conn, err := dialer.DialContext(ctx, "unix", ep.Path)
		if err != nil {
			return nil, fmt.Errorf("connecting to job service at %s: %w", ep.Path, err)
		}
		return NewClient(conn, opts), nil
	}

	conn, tunnel, err := dialSSH(ctx, ep)
	if err != nil {
		return nil, err
	}
	c := NewClient(conn, opts)
	c.closers = append(c.closers, tunnel)
	return c, nil
}

// NewClient wraps an established connection in a session.
func NewClient(conn net.Conn, opts Options) *Client {
	return &Client{
		conn: conn,
		enc:  newEncoder(conn),
		dec:  newDecoder(conn),
		opts: opts.withDefaults(),
		log:  slog.Default().With("component", "job-client"),
	}
}

// Close releases the connection and any tunnel underneath it.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.broken = true
	err := c.conn.Close()
	for i := len(c.closers) - 1; i >= 0; i-- {
		if cerr := c.closers[i].Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	c.closers = nil
	return err
}

// Call sends one request and decodes the reply's result into result
// (if non-nil). A reply with success=false is returned as a
// *ServiceError. Transport failures and timeouts break the session:
// the stream position is unknown afterwards, so later calls fail with
// ErrClosed.
func (c *Client) Call(ctx context.Context, method string, args any, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken {
		return fmt.Errorf("calling %q: %w", method, ErrClosed)
	}

	deadline := time.Now().Add(c.opts.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		c.broken = true
		return fmt.Errorf("calling %q: setting deadline: %w", method, err)
	}
	// Unblock the read or write below when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if err := c.enc.Encode(Request{Method: method, Args: args}); err != nil {
		c.broken = true
		return fmt.Errorf("calling %q: writing request: %w", method, ctxErr(ctx, err))
	}

	var response Response
	if err := c.dec.Decode(&response); err != nil {
		c.broken = true
		return fmt.Errorf("calling %q: reading response: %w", method, ctxErr(ctx, err))
	}

	if !response.Success {
		return &ServiceError{Method: method, Message: response.Error}
	}

	if result != nil && len(response.Result) > 0 {
		if err := unmarshal(response.Result, result); err != nil {
			return fmt.Errorf("decoding result of %q: %w", method, err)
		}
	}
	return nil
}

// ctxErr prefers the context's error over the I/O error it caused.
func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	// The socket deadline may fire just before the context's own timer.
	if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) && errors.Is(err, os.ErrDeadlineExceeded) {
		return context.DeadlineExceeded
	}
	return err
}

// Submit submits batch as one job and returns its id.
func (c *Client) Submit(ctx context.Context, batch Batch) ([]JobID, error) {
	if batch.Len() == 0 {
		return nil, fmt.Errorf("submitting job: empty opcode batch")
	}
	var id JobID
	if err := c.Call(ctx, MethodSubmitJob, SubmitArgs{Ops: batch.wire()}, &id); err != nil {
		return nil, err
	}
	c.log.Debug("job submitted", "job_id", id, "ops", batch.OpIDs())
	return []JobID{id}, nil
}

// QueryStatus returns the status of every job in ids, in the same order.
func (c *Client) QueryStatus(ctx context.Context, ids []JobID) ([]Status, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []JobInfo
	args := QueryJobsArgs{IDs: ids, Fields: []string{"id", "status"}}
	if err := c.Call(ctx, MethodQueryJobs, args, &rows); err != nil {
		return nil, err
	}

	byID := make(map[JobID]Status, len(rows))
	for _, row := range rows {
		byID[row.ID] = row.Status
	}
	statuses := make([]Status, len(ids))
	for i, id := range ids {
		st, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("job service did not report job %s", id)
		}
		statuses[i] = st
	}
	return statuses, nil
}

// SubmitAndWait submits batch as one job and blocks until every
// resulting job is terminal. Any job ending in a status other than
// success makes it fail with ErrJobFailed.
func (c *Client) SubmitAndWait(ctx context.Context, batch Batch) error {
	ids, err := c.Submit(ctx, batch)
	if err != nil {
		return err
	}
	statuses, err := c.WaitForJobs(ctx, ids)
	if err != nil {
		return err
	}
	for i, st := range statuses {
		if !st.Succeeded() {
			return fmt.Errorf("job %s finished with status %s: %w", ids[i], st, ErrJobFailed)
		}
	}
	return nil
}

// WaitForJobs polls the status of ids until none is active any more,
// bounded by the session's wait timeout.
func (c *Client) WaitForJobs(ctx context.Context, ids []JobID) ([]Status, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.WaitTimeout)
	defer cancel()

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		statuses, err := c.QueryStatus(ctx, ids)
		if err != nil {
			return nil, err
		}
		if !anyActive(statuses) {
			return statuses, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for jobs %s: %w", JoinIDs(ids, ","), ctx.Err())
		case <-ticker.C:
		}
	}
}

func anyActive(statuses []Status) bool {
	for _, st := range statuses {
		if st.Active() {
			return true
		}
	}
	return false
}
