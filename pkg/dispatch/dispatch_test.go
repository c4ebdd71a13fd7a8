package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsInvalidSizes(t *testing.T) {
	_, err := New(0, 1)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(1, 0)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	d, err := New(8, 2)
	require.NoError(t, err)
	assert.Equal(t, 8, d.BatchSize())
	assert.Equal(t, 2, d.MaxConcurrent())
}

func TestProcessEmpty(t *testing.T) {
	d, err := New(4, 2)
	require.NoError(t, err)

	out, err := Process(context.Background(), d, []int{}, func(ctx context.Context, i int) (int, error) {
		t.Fatal("worker must not run")
		return 0, nil
	})
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestProcessPreservesOrderAndBoundsConcurrency(t *testing.T) {
	cases := []struct {
		n, batch, k int
	}{
		{n: 1, batch: 1, k: 1},
		{n: 10, batch: 3, k: 1},
		{n: 37, batch: 4, k: 3},
		{n: 100, batch: 10, k: 8},
		{n: 5, batch: 2, k: 16},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("n=%d/batch=%d/k=%d", tc.n, tc.batch, tc.k), func(t *testing.T) {
			d, err := New(tc.batch, tc.k)
			require.NoError(t, err)

			var inFlight, peak atomic.Int32
			items := make([]int, tc.n)
			for i := range items {
				items[i] = i
			}

			out, err := Process(context.Background(), d, items, func(ctx context.Context, i int) (string, error) {
				cur := inFlight.Add(1)
				for {
					p := peak.Load()
					if cur <= p || peak.CompareAndSwap(p, cur) {
						break
					}
				}
				// Random sleeps make completion order differ from input order.
				time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
				inFlight.Add(-1)
				return fmt.Sprintf("out-%d", i), nil
			})
			require.NoError(t, err)
			require.Len(t, out, tc.n)
			for i, v := range out {
				assert.Equal(t, fmt.Sprintf("out-%d", i), v)
			}
			assert.LessOrEqual(t, int(peak.Load()), tc.k)
		})
	}
}

func TestAdmissionBlocksUntilPermitFrees(t *testing.T) {
	d, err := New(10, 2)
	require.NoError(t, err)

	release := make(chan struct{})
	var started atomic.Int32

	done := make(chan struct{})
	var out []int
	go func() {
		defer close(done)
		out, err = Process(context.Background(), d, []int{1, 2, 3, 4}, func(ctx context.Context, i int) (int, error) {
			started.Add(1)
			<-release
			return i * 10, nil
		})
	}()

	require.Eventually(t, func() bool { return started.Load() == 2 }, time.Second, time.Millisecond)
	// Two permits are held; the remaining items must wait for admission.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), started.Load())

	close(release)
	<-done
	require.NoError(t, err)
	assert.Equal(t, []int{10, 20, 30, 40}, out)
}

func TestUnitFailureFailsWholeBatch(t *testing.T) {
	d, err := New(2, 2)
	require.NoError(t, err)

	boom := errors.New("boom")
	out, err := Process(context.Background(), d, []int{0, 1, 2, 3}, func(ctx context.Context, i int) (int, error) {
		if i == 1 {
			return 0, boom
		}
		return i, nil
	})

	assert.Nil(t, out)
	var ue *UnitError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, 1, ue.Index)
	assert.ErrorIs(t, err, boom)
}

func TestFirstFailureInInputOrderWins(t *testing.T) {
	d, err := New(4, 4)
	require.NoError(t, err)

	_, err = Process(context.Background(), d, []int{0, 1, 2, 3}, func(ctx context.Context, i int) (int, error) {
		if i == 1 {
			time.Sleep(20 * time.Millisecond)
			return 0, errors.New("slow failure")
		}
		if i == 3 {
			return 0, errors.New("fast failure")
		}
		return i, nil
	})

	var ue *UnitError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, 1, ue.Index)
}

func TestCancelledContextFailsAcquisition(t *testing.T) {
	d, err := New(1, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	hold := make(chan struct{})
	var once sync.Once

	_, err = Process(ctx, d, []int{0, 1}, func(ctx context.Context, i int) (int, error) {
		once.Do(func() {
			cancel()
		})
		<-hold
		return i, nil
	})
	close(hold)

	var ae *AcquisitionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 1, ae.Index)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClosedPool(t *testing.T) {
	d, err := New(2, 1)
	require.NoError(t, err)
	d.Close()
	d.Close()

	_, err = Process(context.Background(), d, []int{1}, func(ctx context.Context, i int) (int, error) {
		return i, nil
	})
	var ae *AcquisitionError
	require.ErrorAs(t, err, &ae)
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestCloseUnblocksPendingAdmission(t *testing.T) {
	d, err := New(4, 1)
	require.NoError(t, err)

	release := make(chan struct{})
	started := make(chan struct{}, 4)
	errCh := make(chan error, 1)
	go func() {
		_, err := Process(context.Background(), d, []int{0, 1, 2}, func(ctx context.Context, i int) (int, error) {
			started <- struct{}{}
			<-release
			return i, nil
		})
		errCh <- err
	}()

	<-started
	d.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrPoolClosed)
	case <-time.After(time.Second):
		t.Fatal("Process did not return after Close")
	}
	close(release)
}
