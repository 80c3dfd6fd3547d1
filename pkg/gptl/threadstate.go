package gptl

import "fmt"

// rootName is the sentinel region every real region's parent chain
// eventually bottoms out at, per spec §3: "element 0 is always a sentinel
// root region so that every real region has a parent."
const rootName = "(root)"

// regionSet holds everything one logical thread owns: its interned
// regions (both the hash index and the insertion-ordered arena), and its
// currently-open call stack. No field here is ever touched by a goroutine
// other than the one the thread index identifies — see SPEC_FULL.md §5.
type regionSet struct {
	tablesize   int
	maxStack    int
	buckets     [][]*region
	arena       []*region // insertion order == arena order
	root        *region
	stack       []*region
	maxNameLen  int
	handleCount uint64

	// logicalDepth counts every Start not yet matched by a Stop,
	// including ones suppressed by depthlimit (which never reach the real
	// stack). Comparing it against depthlimit is what lets the matching
	// Stop know whether to suppress too, per spec §4.5 steps 2 of both
	// Start and Stop.
	logicalDepth int
}

func newRegionSet(tablesize, maxStack int) *regionSet {
	root := &region{name: rootName, onflg: true}
	rs := &regionSet{
		tablesize: tablesize,
		maxStack:  maxStack,
		buckets:   make([][]*region, tablesize),
		arena:     []*region{root},
		root:      root,
		stack:     make([]*region, 1, maxStack+1),
	}
	rs.stack[0] = root
	return rs
}

// find locates an existing region by name without creating one.
func (rs *regionSet) find(name string) *region {
	name = truncateName(name)
	bucket := rs.buckets[hashName(name, rs.tablesize)]
	for _, r := range bucket {
		if r.name == name {
			return r
		}
	}
	return nil
}

// findAddr locates an existing region by instrumentation address.
func (rs *regionSet) findAddr(addr uintptr) *region {
	name := instrName(addr)
	bucket := rs.buckets[hashAddr(addr, rs.tablesize)]
	for _, r := range bucket {
		if r.name == name {
			return r
		}
	}
	return nil
}

// intern returns the existing region for name, or creates, arenas, and
// buckets a new one. This is the library's only allocation point on a
// region's first start; every subsequent call for the same name is
// allocation-free.
func (rs *regionSet) intern(name string) *region {
	name = truncateName(name)
	idx := hashName(name, rs.tablesize)
	bucket := rs.buckets[idx]
	for _, r := range bucket {
		if r.name == name {
			return r
		}
	}

	rs.handleCount++
	r := &region{name: name, seq: len(rs.arena), handleTag: rs.handleCount}
	rs.arena = append(rs.arena, r)
	rs.buckets[idx] = append(bucket, r)
	if len(name) > rs.maxNameLen {
		rs.maxNameLen = len(name)
	}
	return r
}

func instrName(addr uintptr) string {
	return fmt.Sprintf("0x%x", addr)
}

func (rs *regionSet) internAddr(addr uintptr) *region {
	name := instrName(addr)
	idx := hashAddr(addr, rs.tablesize)
	bucket := rs.buckets[idx]
	for _, r := range bucket {
		if r.name == name {
			return r
		}
	}

	rs.handleCount++
	r := &region{name: name, seq: len(rs.arena), handleTag: rs.handleCount}
	rs.arena = append(rs.arena, r)
	rs.buckets[idx] = append(bucket, r)
	if len(name) > rs.maxNameLen {
		rs.maxNameLen = len(name)
	}
	return r
}

// depth returns the current call-stack depth (0 == only the sentinel root
// is on the stack).
func (rs *regionSet) depth() int {
	return len(rs.stack) - 1
}

// push records r as newly open, one level deeper than the current top,
// and applies the parent-tracking rule against the region now below it.
func (rs *regionSet) push(r *region) error {
	if rs.depth() >= rs.maxStack {
		return errStackOverflow
	}
	parent := rs.stack[len(rs.stack)-1]
	r.recordParent(parent, parent == rs.root)
	rs.stack = append(rs.stack, r)
	return nil
}

// pop removes the top of the stack, failing if only the sentinel remains.
func (rs *regionSet) pop() (*region, error) {
	if rs.depth() == 0 {
		return nil, errUnbalancedStop
	}
	top := rs.stack[len(rs.stack)-1]
	rs.stack = rs.stack[:len(rs.stack)-1]
	return top, nil
}

// top returns the currently innermost open region (the sentinel root if
// nothing is open).
func (rs *regionSet) top() *region {
	return rs.stack[len(rs.stack)-1]
}

// reset clears every region's statistics in place, preserving identity,
// and restores the call stack to just the sentinel root.
func (rs *regionSet) reset() {
	for _, r := range rs.arena {
		if r == rs.root {
			continue
		}
		r.reset()
	}
	rs.stack = rs.stack[:1]
	rs.logicalDepth = 0
}

// collisionStats computes the reporter's hash-collision diagnostics: the
// occupancy histogram (buckets with 0/1/2/>2 entries), the total number of
// collisions (entries beyond the first in a bucket), and the longest
// chain.
type collisionStats struct {
	empty, single, double, more int
	totalCollisions             int
	maxChain                    int
	crowded                     []bucketNames
}

type bucketNames struct {
	bucket int
	names  []string
}

func (rs *regionSet) collisionStats() collisionStats {
	var cs collisionStats
	for i, bucket := range rs.buckets {
		switch len(bucket) {
		case 0:
			cs.empty++
		case 1:
			cs.single++
		case 2:
			cs.double++
		default:
			if len(bucket) > 2 {
				cs.more++
			}
		}
		if len(bucket) > 1 {
			cs.totalCollisions += len(bucket) - 1
			names := make([]string, len(bucket))
			for j, r := range bucket {
				names[j] = r.name
			}
			cs.crowded = append(cs.crowded, bucketNames{bucket: i, names: names})
		}
		if len(bucket) > cs.maxChain {
			cs.maxChain = len(bucket)
		}
	}
	return cs
}
