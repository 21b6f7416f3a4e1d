package lineage

// Node is one level of the lineage trie built by BuildTree. Children are
// keyed by (rank, name); a node with more than one child marks the point
// where the folded lineages disagree.
type Node struct {
	children map[Pair]*Node
}

// Children returns the number of children, the branching degree at this node.
func (n *Node) Children() int { return len(n.children) }

// Child returns the subtree under the given pair, or nil.
func (n *Node) Child(p Pair) *Node { return n.children[p] }

func (n *Node) add(l Lineage) {
	cur := n
	for _, p := range l {
		if cur.children == nil {
			cur.children = make(map[Pair]*Node)
		}
		next, ok := cur.children[p]
		if !ok {
			next = &Node{}
			cur.children[p] = next
		}
		cur = next
	}
}

// BuildTree folds lineages into a trie, collapsing shared prefixes.
func BuildTree(lineages []Lineage) *Node {
	root := &Node{}
	for _, l := range lineages {
		root.add(l)
	}
	return root
}

// FindLCA descends single-child chains from the root, accumulating the
// agreed path. It returns the path and 0 at a leaf (all folded lineages
// agree to their deepest rank), or the path and the branching degree at the
// first node with more than one child (taxonomic resolution stops there).
//
// An empty tree is a programmer error and panics: the caller is expected to
// only build trees from at least one lineage.
func FindLCA(root *Node) (Lineage, int) {
	if root == nil || len(root.children) == 0 {
		panic("lineage: FindLCA on empty tree")
	}

	var path Lineage
	cur := root
	for {
		if len(cur.children) > 1 {
			return path, len(cur.children)
		}
		if len(cur.children) == 0 {
			return path, 0
		}
		for p, child := range cur.children {
			path = append(path, p)
			cur = child
		}
	}
}
