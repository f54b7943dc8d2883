// Package thread turns a flat list of comments into a reply tree and pages
// through its roots. Everything here is pure: no I/O, no errors.
package thread

import (
	"zhutalk/internal/models"
)

// Node is a comment placed in the reply tree. It only lives for the
// duration of one read response.
type Node struct {
	Comment  *models.Comment
	Depth    int
	Children []*Node

	parent  *Node
	reached bool
}

// BuildStats describes structural repairs made while building.
type BuildStats struct {
	Nodes   int
	Orphans int // replies whose parent is not in the input
	Cycles  int // corrupt parent chains broken to reach a root
}

// Build links comments into a forest. Siblings and roots keep the relative
// order of the input. A reply whose parent is absent from the input is
// promoted to a root instead of being dropped.
//
// The nodes point into the comments slice; it must not be modified while the
// result is in use.
func Build(comments []models.Comment) ([]*Node, BuildStats) {
	var stats BuildStats
	if len(comments) == 0 {
		return []*Node{}, stats
	}

	byID := make(map[string]*Node, len(comments))
	ordered := make([]*Node, 0, len(comments))
	for i := range comments {
		c := &comments[i]
		if _, dup := byID[c.ID]; dup {
			continue
		}
		n := &Node{Comment: c}
		byID[c.ID] = n
		ordered = append(ordered, n)
	}
	stats.Nodes = len(ordered)

	roots := make([]*Node, 0)
	for _, n := range ordered {
		pid := n.Comment.ParentID
		if pid == nil {
			roots = append(roots, n)
			continue
		}
		parent, ok := byID[*pid]
		if !ok || parent == n {
			// 父评论不可见（被过滤或数据异常），提升为根
			roots = append(roots, n)
			stats.Orphans++
			continue
		}
		n.parent = parent
		parent.Children = append(parent.Children, n)
	}

	reached := 0
	for _, r := range roots {
		reached += assignDepths(r)
	}

	// Anything not reached hangs off a parent cycle. Only corrupt data can
	// produce one, but every comment must still come out exactly once.
	if reached < len(ordered) {
		for _, n := range ordered {
			if n.reached {
				continue
			}
			entry := cycleEntry(n)
			entry.detach()
			roots = append(roots, entry)
			stats.Cycles++
			reached += assignDepths(entry)
		}
	}

	return roots, stats
}

// assignDepths walks the subtree under root iteratively and returns the
// number of nodes visited. Reply chains can be arbitrarily deep, so no
// recursion.
func assignDepths(root *Node) int {
	root.Depth = 0
	count := 0
	stack := []*Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n.reached = true
		count++
		for _, child := range n.Children {
			child.Depth = n.Depth + 1
			stack = append(stack, child)
		}
	}
	return count
}

// cycleEntry follows parent links from an unreached node until a node
// repeats. That node sits on the cycle.
func cycleEntry(n *Node) *Node {
	seen := make(map[*Node]bool)
	cur := n
	for !seen[cur] {
		seen[cur] = true
		cur = cur.parent
	}
	return cur
}

func (n *Node) detach() {
	p := n.parent
	if p == nil {
		return
	}
	for i, child := range p.Children {
		if child == n {
			p.Children = append(p.Children[:i:i], p.Children[i+1:]...)
			break
		}
	}
	n.parent = nil
}

// Walk visits every node in pre-order (parent before children, siblings in
// order). Returning false from fn skips that node's children.
func Walk(roots []*Node, fn func(*Node) bool) {
	stack := make([]*Node, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, roots[i])
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(n) {
			continue
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
}

// Count returns the number of nodes in the forest.
func Count(roots []*Node) int {
	total := 0
	Walk(roots, func(*Node) bool {
		total++
		return true
	})
	return total
}
