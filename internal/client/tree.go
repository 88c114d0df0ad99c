package client

import (
	"github.com/danmuck/amulectl/internal/protocol/schema"
	"github.com/danmuck/amulectl/internal/protocol/tlv"
)

// Bookkeeping tags the daemon attaches to stats tree nodes. Skipped by name so
// a registry that does not know them leaves the tree untouched.
var skipNames = map[string]struct{}{
	"EC_TAG_STATTREE_NODEID": {},
	"EC_TAG_STAT_VALUE_TYPE": {},
}

// Node is a named view of one reply tag, children in wire order.
type Node struct {
	ID       uint16
	Name     string
	Type     tlv.Type
	Value    string
	Children []Node
}

// Tree names tags through r and renders their values. Duplicate names stay
// as separate siblings.
func Tree(tags []tlv.Tag, r schema.Registry) []Node {
	if r == nil {
		r = schema.DefaultTable()
	}
	nodes := make([]Node, 0, len(tags))
	for _, t := range tags {
		name := r.TagName(t.ID)
		if _, skip := skipNames[name]; skip {
			continue
		}
		nodes = append(nodes, Node{
			ID:       t.ID,
			Name:     name,
			Type:     t.Type,
			Value:    t.Text(),
			Children: Tree(t.Children, r),
		})
	}
	return nodes
}

// Find returns the first node with the given name, searching depth first.
func Find(nodes []Node, name string) (Node, bool) {
	for _, n := range nodes {
		if n.Name == name {
			return n, true
		}
		if found, ok := Find(n.Children, name); ok {
			return found, true
		}
	}
	return Node{}, false
}
