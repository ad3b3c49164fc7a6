package bufferpool

import (
	"sync"

	"github.com/Blackdeer1524/RelDB/src/pkg/assert"
	"github.com/Blackdeer1524/RelDB/src/pkg/common"
)

// Replacer picks eviction victims among the frames that are marked
// evictable. Contract violations (unknown frames, removing a pinned
// frame) are bugs in the pool and panic.
type Replacer interface {
	RecordAccess(frameID common.FrameID)
	SetEvictable(frameID common.FrameID, evictable bool)
	// Evict returns the victim frame, or false when nothing is evictable.
	Evict() (common.FrameID, bool)
	// Remove erases a known evictable frame; unknown frames are a no-op.
	Remove(frameID common.FrameID)
	// Size is the number of currently evictable frames.
	Size() uint64
}

type lrukNode struct {
	// access timestamps, most recent first, at most k entries
	history     []uint64
	isEvictable bool
}

// LRUKReplacer evicts the evictable frame with the largest backward
// k-distance: the gap between now and the k-th most recent access. Frames
// with fewer than k recorded accesses have infinite k-distance and are
// preferred as victims; among those, the one with the oldest overall
// access goes first.
//
// Timestamps come from a single monotonic logical counter, never from the
// wall clock, so distances are totally ordered within one process.
type LRUKReplacer struct {
	mu sync.Mutex

	nodes    map[common.FrameID]*lrukNode
	poolSize uint64
	k        uint64

	currSize uint64
	clock    uint64
}

var _ Replacer = &LRUKReplacer{}

func NewLRUKReplacer(poolSize uint64, k uint64) *LRUKReplacer {
	assert.Assert(poolSize > 0, "replacer pool size must be greater than zero")
	assert.Assert(k > 0, "replacer k must be greater than zero")

	return &LRUKReplacer{
		nodes:    make(map[common.FrameID]*lrukNode, poolSize),
		poolSize: poolSize,
		k:        k,
	}
}

func (r *LRUKReplacer) RecordAccess(frameID common.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	assert.Assert(uint64(frameID) < r.poolSize,
		"frame %d out of range for pool of %d frames", frameID, r.poolSize)

	r.clock++

	node, ok := r.nodes[frameID]
	if !ok {
		node = &lrukNode{history: make([]uint64, 0, r.k)}
		r.nodes[frameID] = node
	}

	node.history = append([]uint64{r.clock}, node.history...)
	if uint64(len(node.history)) > r.k {
		node.history = node.history[:r.k]
	}
}

func (r *LRUKReplacer) SetEvictable(frameID common.FrameID, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[frameID]
	assert.Assert(ok, "SetEvictable on unknown frame %d", frameID)

	if node.isEvictable == evictable {
		return
	}

	if evictable {
		assert.Assert(r.currSize < r.poolSize,
			"evictable count would exceed pool size %d", r.poolSize)
		r.currSize++
	} else {
		r.currSize--
	}
	node.isEvictable = evictable
}

func (r *LRUKReplacer) Evict() (common.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		victim         common.FrameID
		found          bool
		victimInfinite bool
		victimOldest   uint64 // oldest recorded access, infinite class
		victimKth      uint64 // k-th most recent access, finite class
	)

	for frameID, node := range r.nodes {
		if !node.isEvictable {
			continue
		}

		infinite := uint64(len(node.history)) < r.k
		oldest := node.history[len(node.history)-1]

		if !found {
			victim, found = frameID, true
			victimInfinite = infinite
			victimOldest = oldest
			if !infinite {
				victimKth = node.history[r.k-1]
			}
			continue
		}

		switch {
		case infinite && victimInfinite:
			// LRU among the infinite class: oldest single access wins,
			// frame id breaks exact ties.
			if oldest < victimOldest ||
				(oldest == victimOldest && frameID < victim) {
				victim, victimOldest = frameID, oldest
			}
		case infinite && !victimInfinite:
			victim, victimInfinite, victimOldest = frameID, true, oldest
		case !infinite && victimInfinite:
			// the infinite class always dominates
		default:
			// larger k-distance == smaller k-th most recent timestamp
			kth := node.history[r.k-1]
			if kth < victimKth || (kth == victimKth && frameID < victim) {
				victim, victimKth = frameID, kth
			}
		}
	}

	if !found {
		return 0, false
	}

	delete(r.nodes, victim)
	r.currSize--
	return victim, true
}

func (r *LRUKReplacer) Remove(frameID common.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[frameID]
	if !ok {
		return
	}
	assert.Assert(node.isEvictable, "removing non-evictable frame %d", frameID)

	delete(r.nodes, frameID)
	r.currSize--
}

func (r *LRUKReplacer) Size() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currSize
}
