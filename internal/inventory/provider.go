package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/tinkerbelle-io/tb-repair/internal/jobs"
)

// Querier issues a single call on a job service session.
type Querier interface {
	Call(ctx context.Context, method string, args any, result any) error
}

type queryArgs struct {
	Fields []string `cbor:"fields"`
}

type clusterInfo struct {
	Name string   `cbor:"name"`
	Tags []string `cbor:"tags"`
}

var (
	nodeFields     = []string{"name", "group", "offline", "drained", "tags"}
	instanceFields = []string{"name", "pnode", "snodes", "disk_template", "tags"}
	groupFields    = []string{"name", "tags"}
)

// Provider loads the cluster inventory through a job service session.
type Provider struct {
	q   Querier
	log *slog.Logger
}

// NewProvider returns a provider reading through q.
func NewProvider(q Querier) *Provider {
	return &Provider{
		q:   q,
		log: slog.Default().With("component", "inventory"),
	}
}

// Load fetches cluster info, groups, nodes and instances. Instances are
// sorted by name so passes visit them in a stable order.
func (p *Provider) Load(ctx context.Context) (*Cluster, error) {
	var info clusterInfo
	if err := p.q.Call(ctx, jobs.MethodQueryClusterInfo, nil, &info); err != nil {
		return nil, fmt.Errorf("querying cluster info: %w", err)
	}

	c := &Cluster{Name: info.Name, Tags: info.Tags}
	if err := p.q.Call(ctx, jobs.MethodQueryGroups, queryArgs{Fields: groupFields}, &c.Groups); err != nil {
		return nil, fmt.Errorf("querying groups: %w", err)
	}
	if err := p.q.Call(ctx, jobs.MethodQueryNodes, queryArgs{Fields: nodeFields}, &c.Nodes); err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	if err := p.q.Call(ctx, jobs.MethodQueryInstances, queryArgs{Fields: instanceFields}, &c.Instances); err != nil {
		return nil, fmt.Errorf("querying instances: %w", err)
	}

	slices.SortFunc(c.Instances, func(a, b Instance) int {
		return strings.Compare(a.Name, b.Name)
	})

	for _, inst := range c.Instances {
		if _, ok := c.Node(inst.PrimaryNode); !ok {
			p.log.Warn("instance references unknown primary node",
				"instance", inst.Name, "node", inst.PrimaryNode)
		}
	}

	p.log.Debug("inventory loaded",
		"cluster", c.Name,
		"groups", len(c.Groups),
		"nodes", len(c.Nodes),
		"instances", len(c.Instances))
	return c, nil
}
