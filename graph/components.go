package graph

// Components returns the connected components of g via BFS. Components are
// ordered by their lowest node and each lists its nodes in visit order.
// Isolated nodes form singleton components.
func Components(g *Graph) [][]int {
	visited := make([]bool, g.Len())
	var components [][]int

	for i := range g.Adj {
		if visited[i] {
			continue
		}
		var comp []int
		queue := []int{i}
		visited[i] = true
		for len(queue) > 0 {
			node := queue[0]
			queue = queue[1:]
			comp = append(comp, node)
			for _, e := range g.Adj[node] {
				if !visited[e.To] {
					visited[e.To] = true
					queue = append(queue, e.To)
				}
			}
		}
		components = append(components, comp)
	}
	return components
}

// LargestComponent returns the size of the biggest component.
func LargestComponent(components [][]int) int {
	max := 0
	for _, c := range components {
		if len(c) > max {
			max = len(c)
		}
	}
	return max
}
