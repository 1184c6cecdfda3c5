package pathfinding

import (
	"container/heap"

	"terrainroute/internal/terrain"
)

// searchNode is one arena record. parent indexes an earlier arena entry, or
// is -1 for the start node. Entries are never modified after they are
// appended, so following parent always terminates.
type searchNode struct {
	node      terrain.Node
	given     float64
	heuristic float64
	parent    int32
}

func (n *searchNode) total() float64 {
	return n.given + n.heuristic
}

type openItem struct {
	node  int32
	total float64
	index int
}

// openQueue orders arena entries by total cost. Equal totals pop in arena
// order, so the earliest inserted entry wins.
type openQueue []*openItem

func (q openQueue) Len() int { return len(q) }

func (q openQueue) Less(i, j int) bool {
	if q[i].total != q[j].total {
		return q[i].total < q[j].total
	}
	return q[i].node < q[j].node
}

func (q openQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *openQueue) Push(x any) {
	item := x.(*openItem)
	item.index = len(*q)
	*q = append(*q, item)
}

func (q *openQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}

// replace points an open item at a better arena entry and restores heap
// order in place.
func (q *openQueue) replace(item *openItem, node int32, total float64) {
	item.node = node
	item.total = total
	heap.Fix(q, item.index)
}

// slot records where a cell currently lives during one search. item is set
// while the cell is open.
type slot struct {
	node int32
	item *openItem
}

func (s *slot) closed() bool { return s.item == nil }
