package topic

import "sync"

// Index maps subscription patterns to values and finds every value whose
// pattern matches a concrete topic. It is a trie keyed by segment and is
// safe for concurrent use.
type Index[V comparable] struct {
	mu    sync.RWMutex
	root  *node[V]
	count int
}

type node[V comparable] struct {
	children map[string]*node[V]
	values   []V
}

func newNode[V comparable]() *node[V] {
	return &node[V]{children: make(map[string]*node[V])}
}

// NewIndex creates an empty index.
func NewIndex[V comparable]() *Index[V] {
	return &Index[V]{root: newNode[V]()}
}

// Add registers v under pattern. Adding the same pair twice is a no-op.
func (x *Index[V]) Add(pattern Topic, v V) {
	if pattern == "" {
		return
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	n := x.root
	for _, seg := range pattern.Segments() {
		child := n.children[seg]
		if child == nil {
			child = newNode[V]()
			n.children[seg] = child
		}
		n = child
	}

	for _, existing := range n.values {
		if existing == v {
			return
		}
	}
	n.values = append(n.values, v)
	x.count++
}

// Remove unregisters v from pattern and prunes empty branches.
func (x *Index[V]) Remove(pattern Topic, v V) bool {
	if pattern == "" {
		return false
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	segs := pattern.Segments()
	path := make([]*node[V], 0, len(segs)+1)
	n := x.root
	path = append(path, n)
	for _, seg := range segs {
		n = n.children[seg]
		if n == nil {
			return false
		}
		path = append(path, n)
	}

	removed := false
	for i, existing := range n.values {
		if existing == v {
			n.values = append(n.values[:i], n.values[i+1:]...)
			removed = true
			break
		}
	}
	if !removed {
		return false
	}
	x.count--

	for i := len(segs); i > 0; i-- {
		cur := path[i]
		if len(cur.values) > 0 || len(cur.children) > 0 {
			break
		}
		delete(path[i-1].children, segs[i-1])
	}
	return true
}

// Match returns every value whose pattern matches the concrete topic t.
// Each value appears at most once even when several of its paths match.
func (x *Index[V]) Match(t Topic) []V {
	if t == "" {
		return nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	seen := make(map[V]struct{})
	var out []V
	collect := func(n *node[V]) {
		for _, v := range n.values {
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	x.match(x.root, t.Segments(), collect)
	return out
}

func (x *Index[V]) match(n *node[V], segs []string, collect func(*node[V])) {
	if len(segs) == 0 {
		collect(n)
		if child := n.children[WildcardMulti]; child != nil {
			x.match(child, segs, collect)
		}
		return
	}

	if child := n.children[segs[0]]; child != nil {
		x.match(child, segs[1:], collect)
	}
	if child := n.children[WildcardSingle]; child != nil {
		x.match(child, segs[1:], collect)
	}
	if child := n.children[WildcardMulti]; child != nil {
		for i := 0; i <= len(segs); i++ {
			x.match(child, segs[i:], collect)
		}
	}
}

// Len returns the number of registered pattern/value pairs.
func (x *Index[V]) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.count
}
