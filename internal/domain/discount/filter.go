package discount

import (
	"context"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

const minFilterCapacity = 1024

// CodeLister lists every issued discount code.
type CodeLister interface {
	ListCodes(ctx context.Context) ([]string, error)
}

// CodeFilter is a bloom filter over issued codes. A negative answer means
// the code was definitely never issued; a positive answer still needs a
// repository lookup. Until the first Rebuild succeeds every code is
// considered possible.
//
// A nil *CodeFilter is valid and admits every code.
type CodeFilter struct {
	source   CodeLister
	capacity uint
	fpr      float64

	mu     sync.RWMutex
	filter *bloom.BloomFilter
	// pending collects codes added while a rebuild is listing the source.
	pending  []string
	tracking bool
}

// NewCodeFilter creates a filter sized for capacity codes at the given false
// positive rate. Call Rebuild or Run to populate it.
func NewCodeFilter(source CodeLister, capacity uint, fpr float64) *CodeFilter {
	return &CodeFilter{source: source, capacity: capacity, fpr: fpr}
}

// MayContain reports whether code might have been issued.
func (f *CodeFilter) MayContain(code string) bool {
	if f == nil {
		return true
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.filter == nil {
		return true
	}
	return f.filter.TestString(code)
}

// Ready reports whether the filter has been built at least once.
func (f *CodeFilter) Ready() bool {
	if f == nil {
		return true
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.filter != nil
}

// Add records a newly issued code.
func (f *CodeFilter) Add(code string) {
	if f == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.filter != nil {
		f.filter.AddString(code)
	}
	if f.tracking {
		f.pending = append(f.pending, code)
	}
}

// Rebuild replaces the filter contents with the current list of codes.
func (f *CodeFilter) Rebuild(ctx context.Context) error {
	f.mu.Lock()
	f.pending = nil
	f.tracking = true
	f.mu.Unlock()

	codes, err := f.source.ListCodes(ctx)
	if err != nil {
		f.mu.Lock()
		f.pending = nil
		f.tracking = false
		f.mu.Unlock()
		return errors.Wrap(err, "list codes")
	}

	capacity := max(f.capacity, minFilterCapacity)
	if n := uint(len(codes)) * 2; n > capacity {
		capacity = n
	}
	next := bloom.NewWithEstimates(capacity, f.fpr)
	for _, c := range codes {
		next.AddString(NormalizeCode(c))
	}

	f.mu.Lock()
	for _, c := range f.pending {
		next.AddString(c)
	}
	f.pending = nil
	f.tracking = false
	f.filter = next
	f.mu.Unlock()
	return nil
}

// Run rebuilds the filter immediately and then every interval until ctx is
// cancelled. Rebuild failures are logged and keep the previous filter.
func (f *CodeFilter) Run(ctx context.Context, interval time.Duration) {
	lg := zctx.From(ctx)

	rebuild := func() {
		if err := f.Rebuild(ctx); err != nil && ctx.Err() == nil {
			lg.Warn("Discount code filter rebuild failed", zap.Error(err))
		}
	}

	rebuild()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rebuild()
		}
	}
}
