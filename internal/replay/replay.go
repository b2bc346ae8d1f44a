// Package replay implements the prioritized-sampling layer described by
// the buffer's replay component: priority-to-weight conversion, stratified
// weighted sampling with importance-sampling correction, the prefetch
// pipeline, and the sample/update_priority handshake. It wraps an
// internal/ring.Store and never touches the store's head/tail bookkeeping
// directly.
package replay

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cartridge/prioreplay/internal/metrics"
	"github.com/cartridge/prioreplay/internal/ring"
)

// Payload is the external interface the core requires of a sample type:
// cheap copy semantics for the element type T, plus the ability to pack a
// slice of elements into one aggregate batch value of a distinct type B
// and unpack a batch back into its elements. T and B are kept separate
// because the original's DataType (a recursive Nest<Tensor>) can stand in
// for both an element and a packed batch of elements at once — a Go
// struct generally cannot.
type Payload[T, B any] interface {
	Pack(items []T) B
	Unpack(batch B) []T
}

// DeviceTransferFunc moves a computed importance-sampling weight vector to
// a non-CPU device. The core does not mandate a tensor library (see
// SPEC_FULL.md §6.2); callers that sample for an accelerator supply this
// hook, and CPU-only callers leave it nil.
type DeviceTransferFunc func(weights []float32, device string) []float32

// Config holds the five construction-time options fixed for the lifetime
// of a PrioritizedReplay.
type Config struct {
	// Capacity is the nominal population target. Physical storage is
	// sized to int(1.25 * Capacity) so transient overfill during
	// sampling is representable.
	Capacity int
	// Seed seeds the sampler's PRNG for reproducibility.
	Seed int64
	// Alpha is the priority exponent: priority^Alpha is the stored weight.
	Alpha float32
	// Beta is the importance-sampling correction exponent.
	Beta float32
	// Prefetch is the number of sample batches to prepare ahead of the
	// caller; 0 disables the pipeline.
	Prefetch int
}

func (c Config) validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("replay: capacity must be positive, got %d", c.Capacity)
	}
	if c.Prefetch < 0 {
		return fmt.Errorf("replay: prefetch must be non-negative, got %d", c.Prefetch)
	}
	return nil
}

type sampleResult[B any] struct {
	batch   B
	weights []float32
	ids     []int
}

// PrioritizedReplay wraps a concurrent ring store with priority-weighted
// sampling. One instance serves one logical consumer at a time: the
// sample -> update_priority cycle is not meant to be interleaved across
// callers (prefetch workers aside, which serialize on the sampler mutex).
type PrioritizedReplay[T, B any] struct {
	alpha, beta float32
	prefetch    int
	capacity    int // nominal, not the physical ring capacity

	storage  *ring.Store[T]
	pack     Payload[T, B]
	metrics  *metrics.Collector
	transfer DeviceTransferFunc

	numAdd int64 // atomic

	samplerMu  sync.Mutex
	rng        *rand.Rand
	sampledIDs []int
	lastQuery  int
	futures    []chan sampleResult[B]
}

// New constructs a PrioritizedReplay. collector and transfer may both be
// nil. Physical storage is sized to int(1.25 * cfg.Capacity), truncating
// rather than rounding up, matching the original source's
// storage_(int(1.25 * capacity)) (see spec.md §8 boundary scenario 4,
// which depends on capacity=10 yielding physical capacity 12, not 13).
func New[T, B any](cfg Config, pack Payload[T, B], collector *metrics.Collector, transfer DeviceTransferFunc) (*PrioritizedReplay[T, B], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	physicalCapacity := int(1.25 * float64(cfg.Capacity))
	return &PrioritizedReplay[T, B]{
		alpha:    cfg.Alpha,
		beta:     cfg.Beta,
		prefetch: cfg.Prefetch,
		capacity: cfg.Capacity,
		storage:  ring.New[T](physicalCapacity, collector),
		pack:     pack,
		metrics:  collector,
		transfer: transfer,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Add transforms priorities by priority^alpha and admits samples with the
// resulting weights.
func (r *PrioritizedReplay[T, B]) Add(samples []T, priorities []float32) {
	if len(priorities) != len(samples) {
		r.metrics.Fatal("add", map[string]interface{}{
			"samples": len(samples), "priorities": len(priorities),
		})
		panic(fmt.Sprintf("replay: add: priority length %d does not match batch length %d",
			len(priorities), len(samples)))
	}

	weights := make([]float32, len(priorities))
	for i, p := range priorities {
		weights[i] = power(p, r.alpha)
	}

	r.storage.BlockAppend(samples, weights)
	atomic.AddInt64(&r.numAdd, int64(len(samples)))
}

// AddOne is the degenerate singleton form of Add.
func (r *PrioritizedReplay[T, B]) AddOne(sample T, priority float32) {
	r.Add([]T{sample}, []float32{priority})
}

// AddBatch unpacks a packed batch into individual records and adds them
// one by one.
func (r *PrioritizedReplay[T, B]) AddBatch(batch B, priorities []float32) {
	items := r.pack.Unpack(batch)
	for i, item := range items {
		r.AddOne(item, priorities[i])
	}
}

// AddBatchAsync runs AddBatch on a worker goroutine and returns a channel
// that closes once it completes. A panic inside AddBatch (a contract
// violation) propagates by crashing the goroutine, same as the rest of
// this package's fatal paths.
func (r *PrioritizedReplay[T, B]) AddBatchAsync(batch B, priorities []float32) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.AddBatch(batch, priorities)
	}()
	return done
}

// Size returns the current safe (fully-committed) size.
func (r *PrioritizedReplay[T, B]) Size() int {
	size, _ := r.storage.SafeSize()
	return size
}

// NumAdd returns the total number of elements ever admitted.
func (r *PrioritizedReplay[T, B]) NumAdd() int64 {
	return atomic.LoadInt64(&r.numAdd)
}

// Sample returns a prioritized batch and its importance-sampling weights,
// stashing the sampled physical ids for the next UpdatePriority call.
// Calling Sample again before the previous batch's priorities have been
// updated (or explicitly kept) is a fatal contract violation.
func (r *PrioritizedReplay[T, B]) Sample(batchSize int, device string) (B, []float32) {
	if len(r.sampledIDs) != 0 {
		r.metrics.Fatal("sample", map[string]interface{}{"pending_ids": len(r.sampledIDs)})
		panic("replay: sample called before the previous batch's priorities were updated")
	}

	var res sampleResult[B]
	if r.prefetch == 0 || len(r.futures) == 0 {
		res = r.sampleOnce(batchSize, device)
	} else {
		fut := r.futures[0]
		r.futures = r.futures[1:]
		res = <-fut
	}

	r.sampledIDs = res.ids

	for len(r.futures) < r.prefetch {
		fut := make(chan sampleResult[B], 1)
		go func() {
			fut <- r.sampleOnce(batchSize, device)
		}()
		r.futures = append(r.futures, fut)
	}
	r.metrics.PrefetchDepth(len(r.futures))

	return res.batch, res.weights
}

// UpdatePriority reapplies priority^alpha and forwards the result to the
// store for the ids returned by the most recent Sample call, then clears
// the pending id set.
func (r *PrioritizedReplay[T, B]) UpdatePriority(newPriorities []float32) {
	if len(newPriorities) != len(r.sampledIDs) {
		r.metrics.Fatal("update_priority", map[string]interface{}{
			"got": len(newPriorities), "want": len(r.sampledIDs),
		})
		panic(fmt.Sprintf("replay: update_priority: got %d priorities, want %d",
			len(newPriorities), len(r.sampledIDs)))
	}

	weights := make([]float32, len(newPriorities))
	for i, p := range newPriorities {
		weights[i] = power(p, r.alpha)
	}

	r.samplerMu.Lock()
	r.storage.Update(r.sampledIDs, weights)
	r.samplerMu.Unlock()

	r.sampledIDs = nil
}

// KeepPriority discards the pending sampled ids without updating them.
func (r *PrioritizedReplay[T, B]) KeepPriority() {
	r.sampledIDs = nil
}

// sampleOnce runs one stratified sampling pass under the sampler mutex,
// then computes importance-sampling weights outside it.
func (r *PrioritizedReplay[T, B]) sampleOnce(batchSize int, device string) sampleResult[B] {
	start := time.Now()
	defer func() { r.metrics.Sampled(batchSize, time.Since(start)) }()

	r.samplerMu.Lock()

	safeSize, sum := r.storage.SafeSize()
	if safeSize == 0 {
		r.samplerMu.Unlock()
		r.metrics.Fatal("sample", map[string]interface{}{"safe_size": 0, "sum": sum})
		panic("replay: sample called on an empty buffer")
	}

	segment := sum / float64(batchSize)
	clampTo := sum - 0.2

	samples := make([]T, 0, batchSize)
	weights := make([]float32, batchSize)
	ids := make([]int, batchSize)

	var accSum float64
	nextIdx := 0
	var w float32
	var id int
	for i := 0; i < batchSize; i++ {
		randVal := float64(i)*segment + r.rng.Float64()*segment
		if randVal > clampTo {
			randVal = clampTo
		}

		for {
			if accSum > 0 && accSum >= randVal {
				samples = append(samples, r.storage.GetElementAndMark(nextIdx-1))
				weights[i] = w
				ids[i] = id
				break
			}
			if nextIdx == safeSize {
				r.metrics.Fatal("sample_scan", map[string]interface{}{
					"next_idx": nextIdx, "safe_size": safeSize, "acc_sum": accSum,
					"sum": sum, "rand": randVal,
				})
				panic(fmt.Sprintf(
					"replay: sampler scan exhausted region (next_idx=%d safe_size=%d acc_sum=%v sum=%v rand=%v)",
					nextIdx, safeSize, accSum, sum, randVal))
			}
			w, id = r.storage.GetWeight(nextIdx)
			accSum += float64(w)
			nextIdx++
		}
	}

	// Sampling is the one place the priority path triggers eviction: pop
	// the oldest slots until the reserved size is back at the nominal
	// capacity, restoring the overflow headroom.
	if curSize := r.storage.Size(); curSize > r.capacity {
		r.storage.BlockPop(curSize - r.capacity)
	}

	r.samplerMu.Unlock()

	// Safe to operate without the lock: samples holds copies.
	for i := range weights {
		weights[i] = weights[i] / float32(sum)
	}
	for i := range weights {
		weights[i] = power(float32(safeSize)*weights[i], -r.beta)
	}
	normalizeInPlace(weights, maxOf(weights))

	if device != "cpu" && r.transfer != nil {
		weights = r.transfer(weights, device)
	}

	batch := r.pack.Pack(samples)
	return sampleResult[B]{batch: batch, weights: weights, ids: ids}
}

// GetNewContent drains all records added since the previous call and pops
// them from the store, returning them with unit weights. Intended for an
// on-policy consumer that wants strictly-new data rather than a
// prioritized sample.
//
// This reproduces the original implementation's indexing verbatim,
// including its questionable assumption that offsets [0, sampleSize) from
// head correspond to "new" additions — see SPEC_FULL.md §9.1. That
// assumption only holds if nothing has been popped since the last call;
// it is flagged there as an open question this port declines to resolve,
// not a bug to be quietly fixed here.
func (r *PrioritizedReplay[T, B]) GetNewContent() (int, B, []float32) {
	r.samplerMu.Lock()
	defer r.samplerMu.Unlock()

	sampleSize := int(r.NumAdd()) - r.lastQuery
	weights := make([]float32, sampleSize)
	for i := range weights {
		weights[i] = 1.0
	}

	var zero B
	if sampleSize == 0 {
		return 0, zero, weights
	}

	samples := make([]T, 0, sampleSize)
	for cur := 0; cur < sampleSize; cur++ {
		samples = append(samples, r.storage.GetElementAndMark(cur))
		r.lastQuery++
	}
	r.storage.BlockPop(sampleSize)

	batch := r.pack.Pack(samples)
	return sampleSize, batch, weights
}
