// Package document models a loaded Figma file as id-indexed node
// storage. Children and parents are held as id references rather than
// owning pointers, and traversal uses an explicit stack, so arbitrarily
// deep trees neither recurse nor form ownership cycles.
package document

import (
	"github.com/hellenic-development/figma-publisher/pkg/figma"
)

// Node is one element of the document tree. Parent is a lookup
// reference only; the Document owns all nodes.
type Node struct {
	ID       string
	Name     string
	Type     string
	Visible  bool
	Parent   string   // empty for the root
	Children []string // in document order
}

// Document is an immutable view of a Figma file. Build it once per run
// and treat it as read-only afterwards.
type Document struct {
	FileKey      string
	Name         string
	Version      string
	LastModified string

	root  string
	nodes map[string]*Node
}

// Build flattens the wire-format tree into a Document. The input tree
// is walked iteratively; node order within Children matches the
// API's document order.
func Build(fileKey string, resp *figma.FileResponse) *Document {
	d := &Document{
		FileKey:      fileKey,
		Name:         resp.Name,
		Version:      resp.Version,
		LastModified: resp.LastModified,
		root:         resp.Document.ID,
		nodes:        make(map[string]*Node),
	}

	type frame struct {
		node   *figma.Node
		parent string
	}
	stack := []frame{{node: &resp.Document}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := &Node{
			ID:      f.node.ID,
			Name:    f.node.Name,
			Type:    f.node.Type,
			Visible: !f.node.Hidden(),
			Parent:  f.parent,
		}
		for i := range f.node.Children {
			n.Children = append(n.Children, f.node.Children[i].ID)
		}
		d.nodes[n.ID] = n

		// Push children in reverse so they pop in document order.
		for i := len(f.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: &f.node.Children[i], parent: n.ID})
		}
	}

	return d
}

// Root returns the document root node.
func (d *Document) Root() *Node {
	return d.nodes[d.root]
}

// Node looks up a node by id.
func (d *Document) Node(id string) (*Node, bool) {
	n, ok := d.nodes[id]
	return n, ok
}

// Len returns the number of nodes in the document.
func (d *Document) Len() int {
	return len(d.nodes)
}

// Walk visits every node in depth-first pre-order starting at the root.
// Returning false from fn skips the node's subtree.
func (d *Document) Walk(fn func(*Node) bool) {
	if d.root == "" {
		return
	}
	stack := []string{d.root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n, ok := d.nodes[id]
		if !ok {
			continue
		}
		if !fn(n) {
			continue
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
}

// Path returns the node names from the root's first child level down to
// the node itself, excluding the root. Used to derive destination keys.
func (d *Document) Path(id string) []string {
	var rev []string
	for cur := id; cur != "" && cur != d.root; {
		n, ok := d.nodes[cur]
		if !ok {
			break
		}
		rev = append(rev, n.Name)
		cur = n.Parent
	}

	path := make([]string, 0, len(rev))
	for i := len(rev) - 1; i >= 0; i-- {
		path = append(path, rev[i])
	}
	return path
}
