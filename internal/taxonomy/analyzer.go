package taxonomy

// Analyze walks a dimension once and returns its maximum root-to-leaf node count
// and, for each depth, the first non-empty level label met in traversal order.
// A dimension with no categories yields zero and an empty slice.
func Analyze(d *Dimension) (int, []string) {
	maxDepth := 0
	titles := []string{}

	var walk func(ids []string, depth int)
	walk = func(ids []string, depth int) {
		for _, id := range ids {
			c := d.nodes[id]
			if depth > maxDepth {
				maxDepth = depth
			}
			for len(titles) < depth {
				titles = append(titles, "")
			}
			if titles[depth-1] == "" && c.LevelLabel != "" {
				titles[depth-1] = c.LevelLabel
			}
			walk(c.Children, depth+1)
		}
	}
	walk(d.Roots, 1)

	return maxDepth, titles
}
