package dbpool

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xapiand/xapiand/endpoint"
)

func testEndpoints(path string) *endpoint.Endpoints {
	return endpoint.Of(endpoint.Endpoint{Path: path})
}

// §8 property 1: count == idle + checked_out at any instant, and at most
// one writable handle checked out per key.
func TestPoolAccounting(t *testing.T) {
	p := New(8, nil)
	eps := testEndpoints("docs")

	db1, err := p.Checkout(eps, true, time.Time{})
	require.NoError(t, err)
	st := p.StatsFor(eps, true)
	require.Equal(t, 1, st.Count)
	require.Equal(t, 1, st.CheckedOut)
	require.Equal(t, 0, st.Idle)

	p.Checkin(db1, false)
	st = p.StatsFor(eps, true)
	require.Equal(t, 1, st.Count)
	require.Equal(t, 0, st.CheckedOut)
	require.Equal(t, 1, st.Idle)
}

func TestWritableQueueBlocksSecondCheckout(t *testing.T) {
	p := New(8, nil)
	eps := testEndpoints("docs")

	db1, err := p.Checkout(eps, true, time.Time{})
	require.NoError(t, err)

	done := make(chan *Database, 1)
	go func() {
		db2, err := p.Checkout(eps, true, time.Time{})
		require.NoError(t, err)
		done <- db2
	}()

	select {
	case <-done:
		t.Fatal("second writable checkout should have blocked")
	case <-time.After(50 * time.Millisecond):
	}

	p.Checkin(db1, false)
	select {
	case db2 := <-done:
		require.NotNil(t, db2)
		p.Checkin(db2, false)
	case <-time.After(time.Second):
		t.Fatal("second checkout never unblocked")
	}
}

func TestCheckoutTimesOut(t *testing.T) {
	p := New(8, nil)
	eps := testEndpoints("docs")
	db1, err := p.Checkout(eps, true, time.Time{})
	require.NoError(t, err)
	defer p.Checkin(db1, false)

	_, err = p.Checkout(eps, true, time.Now().Add(20*time.Millisecond))
	require.Error(t, err)
}

func TestReadableQueueAllowsMultiple(t *testing.T) {
	p := New(8, nil)
	eps := testEndpoints("docs")
	db1, err := p.Checkout(eps, false, time.Time{})
	require.NoError(t, err)
	db2, err := p.Checkout(eps, false, time.Time{})
	require.NoError(t, err)
	require.NotSame(t, db1, db2)
	p.Checkin(db1, false)
	p.Checkin(db2, false)
}

func TestFinishRejectsNewCheckouts(t *testing.T) {
	p := New(8, nil)
	eps := testEndpoints("docs")
	p.Finish()
	_, err := p.Checkout(eps, true, time.Time{})
	require.Error(t, err)
}

func TestConcurrentWritesSerializeButAllSucceed(t *testing.T) {
	p := New(32, nil)
	eps := testEndpoints("docs")

	var wg sync.WaitGroup
	var succeeded int32
	var mu sync.Mutex
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.With(eps, true, time.Time{}, func(h *Handler) error {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.EqualValues(t, 20, succeeded)
}
