package graph

// UnionFind implements union-find with path compression and union by rank
type UnionFind[K comparable] struct {
	parent map[K]K
	rank   map[K]int
	size   map[K]int
}

// NewUnionFind creates a UnionFind where each key is its own component
func NewUnionFind[K comparable](keys []K) *UnionFind[K] {
	uf := &UnionFind[K]{
		parent: make(map[K]K, len(keys)),
		rank:   make(map[K]int, len(keys)),
		size:   make(map[K]int, len(keys)),
	}
	for _, k := range keys {
		uf.parent[k] = k
		uf.size[k] = 1
	}
	return uf
}

// Find returns the root of the component containing k
func (uf *UnionFind[K]) Find(k K) K {
	root := k
	for {
		p, ok := uf.parent[root]
		if !ok || p == root {
			break
		}
		root = p
	}
	for k != root {
		next := uf.parent[k]
		uf.parent[k] = root
		k = next
	}
	return root
}

// Union merges the components containing a and b. Returns true if they were separate.
func (uf *UnionFind[K]) Union(a, b K) bool {
	ra, rb := uf.Find(a), uf.Find(b)
	if ra == rb {
		return false
	}
	if uf.rank[ra] < uf.rank[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	uf.size[ra] += uf.size[rb]
	if uf.rank[ra] == uf.rank[rb] {
		uf.rank[ra]++
	}
	return true
}

// Size returns the number of keys in k's component.
func (uf *UnionFind[K]) Size(k K) int {
	return uf.size[uf.Find(k)]
}

// Components returns every connected component as a slice of keys
func (uf *UnionFind[K]) Components() [][]K {
	groups := make(map[K][]K)
	for k := range uf.parent {
		root := uf.Find(k)
		groups[root] = append(groups[root], k)
	}
	out := make([][]K, 0, len(groups))
	for _, members := range groups {
		out = append(out, members)
	}
	return out
}
