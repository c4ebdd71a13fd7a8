// Package dispatch runs a batch of work items with a fixed concurrency cap.
//
// Each item must acquire a permit before its goroutine starts, so the
// admission loop itself blocks once maxConcurrent units are in flight.
// Results are collected in admission order, which is input order.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
	"k8s.io/klog/v2"
)

var (
	// ErrInvalidConfig is returned by New for non-positive sizes.
	ErrInvalidConfig = errors.New("invalid dispatcher config")
	// ErrPoolClosed is reported when the permit pool has been shut down.
	ErrPoolClosed = errors.New("permit pool closed")
)

// AcquisitionError means a permit could not be obtained. The whole
// Process call fails with it.
type AcquisitionError struct {
	Index int
	Err   error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquire permit for item %d: %v", e.Index, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// UnitError wraps the failure of one item's worker.
type UnitError struct {
	Index int
	Err   error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e *UnitError) Unwrap() error { return e.Err }

// Worker computes the result for one item.
type Worker[T, R any] func(ctx context.Context, item T) (R, error)

// Dispatcher owns the permit pool shared by every Process call made on it.
type Dispatcher struct {
	batchSize     int
	maxConcurrent int
	sem           *semaphore.Weighted

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// New creates a Dispatcher. Both arguments must be positive.
func New(batchSize, maxConcurrent int) (*Dispatcher, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidConfig, batchSize)
	}
	if maxConcurrent <= 0 {
		return nil, fmt.Errorf("%w: max concurrent must be positive, got %d", ErrInvalidConfig, maxConcurrent)
	}
	return &Dispatcher{
		batchSize:     batchSize,
		maxConcurrent: maxConcurrent,
		sem:           semaphore.NewWeighted(int64(maxConcurrent)),
		done:          make(chan struct{}),
	}, nil
}

// BatchSize returns the admission chunk size.
func (d *Dispatcher) BatchSize() int { return d.batchSize }

// MaxConcurrent returns the permit pool size.
func (d *Dispatcher) MaxConcurrent() int { return d.maxConcurrent }

// Close shuts the permit pool. Pending and future acquisitions fail with
// ErrPoolClosed; units already running are not interrupted.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.closed {
		d.closed = true
		close(d.done)
	}
}

func (d *Dispatcher) isClosed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed
}

// acquire blocks until a permit is free, ctx is done or the pool closes.
func (d *Dispatcher) acquire(ctx context.Context) error {
	if d.isClosed() {
		return ErrPoolClosed
	}

	acqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-d.done:
			cancel()
		case <-acqCtx.Done():
		}
	}()

	if err := d.sem.Acquire(acqCtx, 1); err != nil {
		if d.isClosed() {
			return ErrPoolClosed
		}
		return err
	}
	return nil
}

type outcome[R any] struct {
	value R
	err   error
}

// Process runs worker over items with at most d.MaxConcurrent() units in
// flight and returns the results in input order. Every unit must succeed:
// the first failing unit in input order is returned as a *UnitError and no
// partial results are reported. Once any unit has failed, no further items
// are admitted.
func Process[T, R any](ctx context.Context, d *Dispatcher, items []T, worker Worker[T, R]) ([]R, error) {
	if len(items) == 0 {
		return []R{}, nil
	}

	var (
		failedOnce sync.Once
		failed     = make(chan struct{})
	)
	pending := make([]chan outcome[R], 0, len(items))

admission:
	for start := 0; start < len(items); start += d.batchSize {
		end := min(start+d.batchSize, len(items))
		for i := start; i < end; i++ {
			select {
			case <-failed:
				klog.V(4).InfoS("Stopping admission after unit failure", "admitted", len(pending), "total", len(items))
				break admission
			default:
			}

			if err := d.acquire(ctx); err != nil {
				return nil, &AcquisitionError{Index: i, Err: err}
			}

			ch := make(chan outcome[R], 1)
			pending = append(pending, ch)
			go func(item T) {
				defer d.sem.Release(1)
				v, err := worker(ctx, item)
				if err != nil {
					failedOnce.Do(func() { close(failed) })
				}
				ch <- outcome[R]{value: v, err: err}
			}(items[i])
		}
	}

	results := make([]R, 0, len(pending))
	for i, ch := range pending {
		out := <-ch
		if out.err != nil {
			return nil, &UnitError{Index: i, Err: out.err}
		}
		results = append(results, out.value)
	}
	return results, nil
}
