// Package inventory models the cluster objects a repair pass looks at
// and loads them from the job service.
package inventory

import "slices"

// DiskTemplate is the storage layout of an instance's disks.
type DiskTemplate string

const (
	DiskDiskless   DiskTemplate = "diskless"
	DiskPlain      DiskTemplate = "plain"
	DiskFile       DiskTemplate = "file"
	DiskDRBD       DiskTemplate = "drbd"
	DiskSharedFile DiskTemplate = "sharedfile"
	DiskBlockDev   DiskTemplate = "blockdev"
	DiskRBD        DiskTemplate = "rbd"
	DiskExt        DiskTemplate = "ext"
	DiskGluster    DiskTemplate = "gluster"
)

// MirrorType says where the redundant copy of an instance's disks lives.
type MirrorType int

const (
	// MirrorNone: the data exists only on the primary node.
	MirrorNone MirrorType = iota
	// MirrorInternal: the data is mirrored to the secondary node.
	MirrorInternal
	// MirrorExternal: the data lives on storage reachable from any node.
	MirrorExternal
)

// Mirror returns the mirroring class of the template.
func (d DiskTemplate) Mirror() MirrorType {
	switch d {
	case DiskDRBD:
		return MirrorInternal
	case DiskSharedFile, DiskBlockDev, DiskRBD, DiskExt, DiskGluster:
		return MirrorExternal
	default:
		return MirrorNone
	}
}

// Node is a physical host of the cluster.
type Node struct {
	Name    string   `cbor:"name"`
	Group   string   `cbor:"group"`
	Offline bool     `cbor:"offline"`
	Drained bool     `cbor:"drained"`
	Tags    []string `cbor:"tags"`
}

// Instance is a virtual machine.
type Instance struct {
	Name           string       `cbor:"name"`
	PrimaryNode    string       `cbor:"pnode"`
	SecondaryNodes []string     `cbor:"snodes"`
	DiskTemplate   DiskTemplate `cbor:"disk_template"`
	Tags           []string     `cbor:"tags"`
}

// HasTag reports whether the instance carries tag.
func (i Instance) HasTag(tag string) bool {
	return slices.Contains(i.Tags, tag)
}

// WithTags returns a copy of i whose tags are i's tags plus add, minus
// remove. The receiver's tag slice is not modified.
func (i Instance) WithTags(add []string, remove []string) Instance {
	tags := make([]string, 0, len(i.Tags)+len(add))
	for _, t := range i.Tags {
		if !slices.Contains(remove, t) {
			tags = append(tags, t)
		}
	}
	for _, t := range add {
		if !slices.Contains(tags, t) && !slices.Contains(remove, t) {
			tags = append(tags, t)
		}
	}
	i.Tags = tags
	i.SecondaryNodes = slices.Clone(i.SecondaryNodes)
	return i
}

// Group is a node group.
type Group struct {
	Name string   `cbor:"name"`
	Tags []string `cbor:"tags"`
}

// Cluster is a snapshot of the whole inventory.
type Cluster struct {
	Name      string
	Tags      []string
	Nodes     []Node
	Instances []Instance
	Groups    []Group
}

// Node looks up a node by name.
func (c *Cluster) Node(name string) (Node, bool) {
	for _, n := range c.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return Node{}, false
}

// NodeOffline reports whether the named node is marked offline. Unknown
// nodes are reported as online.
func (c *Cluster) NodeOffline(name string) bool {
	n, ok := c.Node(name)
	return ok && n.Offline
}

// GroupOf returns the group the named node belongs to.
func (c *Cluster) GroupOf(node string) (Group, bool) {
	n, ok := c.Node(node)
	if !ok {
		return Group{}, false
	}
	for _, g := range c.Groups {
		if g.Name == n.Group {
			return g, true
		}
	}
	return Group{}, false
}

// SetOffline marks the named node offline. It reports whether the node
// exists and was online before.
func (c *Cluster) SetOffline(name string) bool {
	for i := range c.Nodes {
		if c.Nodes[i].Name == name {
			if c.Nodes[i].Offline {
				return false
			}
			c.Nodes[i].Offline = true
			return true
		}
	}
	return false
}
