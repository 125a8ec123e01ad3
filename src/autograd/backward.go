package autograd

// topoOrder returns every node reachable from root in postorder, so that a
// node always appears after all of its children. Computed fresh on every
// call rather than cached on the node, so that distinct roots sharing
// sub-DAGs can each run their own backward pass reentrantly.
func topoOrder(root *Value) []*Value {
	var order []*Value
	visited := make(map[*Value]bool)

	var visit func(*Value)
	visit = func(n *Value) {
		if visited[n] {
			return
		}
		visited[n] = true
		for _, child := range n.Prev {
			visit(child)
		}
		order = append(order, n)
	}
	visit(root)
	return order
}

// Backward performs one reverse-mode sweep rooted at v: zeroes gradients on
// the reachable subgraph, seeds v.Grad = 1, then visits nodes in reverse
// topological order distributing each node's accumulated Grad to its
// parents via the operator's partial-derivative rule (rules.go Partials).
// Contributions are additive, so a node reachable via multiple paths
// receives the sum of all incoming gradients in this single pass.
func (v *Value) Backward() {
	order := topoOrder(v)
	for _, n := range order {
		n.Grad = 0
	}
	v.Grad = 1

	childData := make([]float64, 3)
	partials := make([]float64, 3)
	for i := len(order) - 1; i >= 0; i-- {
		n := order[i]
		if n.IsLeaf() || n.Grad == 0 {
			continue
		}
		childData = childData[:len(n.Prev)]
		for j, c := range n.Prev {
			childData[j] = c.Data
		}
		p := Partials(n.Op, childData, n.Data, n.IntK, partials[:len(n.Prev)])
		for j, c := range n.Prev {
			c.Grad += p[j] * n.Grad
		}
	}
}
