package viewer

import "strings"

// Node types and roles found in a translated document's derivative tree.
const (
	NodeTypeGeometry = "geometry"
	NodeTypeFolder   = "folder"
	NodeTypeView     = "view"
	NodeTypeResource = "resource"

	Role3D = "3d"
	Role2D = "2d"
)

// Document is a translated model package as returned by a document load.
type Document struct {
	URN  string
	Root *Node
}

// Node is one entry of a document's derivative tree.
type Node struct {
	GUID         string
	Name         string
	Type         string
	Role         string
	URN          string
	IsMasterView bool
	Children     []*Node
}

// Walk visits n and its descendants depth-first, stopping early when fn
// returns false.
func (n *Node) Walk(fn func(*Node) bool) bool {
	if n == nil {
		return true
	}
	if !fn(n) {
		return false
	}
	for _, c := range n.Children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}

func (n *Node) isGeometry(role string) bool {
	return strings.EqualFold(n.Type, NodeTypeGeometry) && strings.EqualFold(n.Role, role)
}

// DefaultGeometry picks the node a viewer shows when asked for the default
// geometric representation: a master 3D view if the document has one, else
// the first 3D geometry, else the first 2D geometry. It returns nil for
// documents without geometry.
func (n *Node) DefaultGeometry() *Node {
	var master, first3D, first2D *Node
	n.Walk(func(c *Node) bool {
		switch {
		case c.isGeometry(Role3D):
			if c.IsMasterView && master == nil {
				master = c
			}
			if first3D == nil {
				first3D = c
			}
		case c.isGeometry(Role2D):
			if first2D == nil {
				first2D = c
			}
		}
		return master == nil
	})
	switch {
	case master != nil:
		return master
	case first3D != nil:
		return first3D
	default:
		return first2D
	}
}
