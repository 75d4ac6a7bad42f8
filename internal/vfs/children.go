package vfs

import (
	"github.com/google/btree"
)

const childrenDegree = 8

type child struct {
	name string
	node Node
}

func childLess(a, b child) bool { return a.name < b.name }

// Children is a name-ordered set of directory entries. It is not safe for
// concurrent use; directories guard it with their own lock.
type Children struct {
	tree *btree.BTreeG[child]
}

func NewChildren() *Children {
	return &Children{tree: btree.NewG(childrenDegree, childLess)}
}

// Get returns the node stored under name.
func (c *Children) Get(name string) (Node, bool) {
	item, ok := c.tree.Get(child{name: name})
	if !ok {
		return nil, false
	}
	return item.node, true
}

// Set stores node under name and returns the node it replaced, if any.
func (c *Children) Set(name string, node Node) (Node, bool) {
	old, replaced := c.tree.ReplaceOrInsert(child{name: name, node: node})
	return old.node, replaced
}

// Delete removes name and returns the node that was stored there.
func (c *Children) Delete(name string) (Node, bool) {
	old, ok := c.tree.Delete(child{name: name})
	return old.node, ok
}

func (c *Children) Len() int { return c.tree.Len() }

// Names returns every name in order.
func (c *Children) Names() []string {
	names := make([]string, 0, c.tree.Len())
	c.tree.Ascend(func(item child) bool {
		names = append(names, item.name)
		return true
	})
	return names
}

// Range calls fn for each entry in order after skipping the first skip
// entries. Iteration stops when fn returns false.
func (c *Children) Range(skip int, fn func(name string, node Node) bool) {
	i := 0
	c.tree.Ascend(func(item child) bool {
		if i < skip {
			i++
			return true
		}
		return fn(item.name, item.node)
	})
}

// Clear drops every entry.
func (c *Children) Clear() {
	c.tree.Clear(false)
}

// FillDirEntries implements the ReadDir layout shared by the directory
// backends: "." and ".." at indices 0 and 1, then children in order. ty
// reports the type of a child node.
func FillDirEntries(c *Children, start int, dirents []DirEntry, ty func(Node) NodeType) int {
	if start < 0 {
		start = 0
	}
	n := 0
	for idx := start; idx < 2 && n < len(dirents); idx++ {
		if idx == 0 {
			dirents[n] = NewDirEntry(".", TypeDir)
		} else {
			dirents[n] = NewDirEntry("..", TypeDir)
		}
		n++
	}
	if n == len(dirents) {
		return n
	}

	skip := start - 2
	if skip < 0 {
		skip = 0
	}
	c.Range(skip, func(name string, node Node) bool {
		dirents[n] = NewDirEntry(name, ty(node))
		n++
		return n < len(dirents)
	})
	return n
}

// TypeOf returns a node's type from its attributes, or TypeFile when the
// node cannot report them.
func TypeOf(node Node) NodeType {
	attr, err := node.GetAttr()
	if err != nil {
		return TypeFile
	}
	return attr.Type
}
