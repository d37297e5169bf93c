package mempool

// feeRateHeap is a max-heap of pending entries ordered by descending fee
// rate (ties broken by earlier arrival), kept in step with the pool's
// entries; eviction itself scans byTxID for the lowest fee rate rather
// than reading this heap. It is a container/heap.Interface implementation in the
// teacher's txPriorityQueue shape (mining/mining.go), generalized with an
// index field so heap.Remove can drop an arbitrary entry when a
// transaction is replaced or evicted.
type feeRateHeap []*entry

func (h feeRateHeap) Len() int { return len(h) }

func (h feeRateHeap) Less(i, j int) bool {
	if h[i].feeRate != h[j].feeRate {
		return h[i].feeRate > h[j].feeRate
	}
	return h[i].arrivedAt.Before(h[j].arrivedAt)
}

func (h feeRateHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *feeRateHeap) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *feeRateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// miningHeap is a throwaway max-heap over the same ordering, used only
// while computing MiningOrder; it never touches entry.index so it can
// share *entry pointers with the pool's live feeRateHeap without
// corrupting it.
type miningHeap []*entry

func (h miningHeap) Len() int { return len(h) }
func (h miningHeap) Less(i, j int) bool {
	if h[i].feeRate != h[j].feeRate {
		return h[i].feeRate > h[j].feeRate
	}
	return h[i].arrivedAt.Before(h[j].arrivedAt)
}
func (h miningHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *miningHeap) Push(x interface{}) {
	*h = append(*h, x.(*entry))
}
func (h *miningHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}
