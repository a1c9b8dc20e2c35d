package atomic_float

import (
	"math"
	"sync/atomic"
)

// AtomicFloat64 encapsulates a float64 for non-locking atomic operations.
// The float is stored as its IEEE-754 bits, so every operation is a load or
// compare-and-swap on a uint64.
type AtomicFloat64 struct {
	bits atomic.Uint64
}

// NewAtomicFloat64 encapsulates a float64 for atomic operations.
func NewAtomicFloat64(val float64) *AtomicFloat64 {
	af := &AtomicFloat64{}
	af.bits.Store(math.Float64bits(val))
	return af
}

// AtomicRead atomically reads the float64.
func (af *AtomicFloat64) AtomicRead() float64 {
	return math.Float64frombits(af.bits.Load())
}

// AtomicSet stores val unconditionally.
func (af *AtomicFloat64) AtomicSet(val float64) {
	af.bits.Store(math.Float64bits(val))
}

// AtomicAdd attempts to add addend once. If the value changed between the read and
// the swap the add is not applied and succeeded is false; the caller decides
// whether to retry.
func (af *AtomicFloat64) AtomicAdd(addend float64) (newVal float64, succeeded bool) {
	old := af.bits.Load()
	newVal = math.Float64frombits(old) + addend
	succeeded = af.bits.CompareAndSwap(old, math.Float64bits(newVal))
	return
}

// AtomicMax raises the value to candidate if candidate is larger, retrying until
// either the swap lands or another writer has stored something at least as large.
// NaN candidates are ignored.
func (af *AtomicFloat64) AtomicMax(candidate float64) (max float64) {
	for {
		old := af.bits.Load()
		current := math.Float64frombits(old)
		if !(candidate > current) {
			return current
		}
		if af.bits.CompareAndSwap(old, math.Float64bits(candidate)) {
			return candidate
		}
	}
}
