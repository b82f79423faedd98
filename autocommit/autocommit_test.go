package autocommit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xapiand/xapiand/cmn"
	"github.com/xapiand/xapiand/dbpool"
	"github.com/xapiand/xapiand/endpoint"
)

func newTestScheduler(delay, maxWait time.Duration) (*Scheduler, *dbpool.Pool) {
	pool := dbpool.New(4, nil)
	cfg := &cmn.Config{AutocommitDelay: delay, AutocommitMaxDelay: maxWait}
	return New(pool, cfg), pool
}

func TestNotifySchedulesAndFires(t *testing.T) {
	sched, pool := newTestScheduler(20*time.Millisecond, 200*time.Millisecond)
	eps := endpoint.Of(endpoint.Endpoint{Path: "twig"})

	h, err := pool.Checkout(eps, true, time.Time{})
	require.NoError(t, err)
	pool.Checkin(h, false)

	require.NoError(t, pool.With(eps, true, time.Time{}, func(hh *dbpool.Handler) error {
		sched.Notify(eps, hh.Database())
		return nil
	}))
	require.True(t, sched.Pending(eps))

	require.Eventually(t, func() bool { return !sched.Pending(eps) }, time.Second, 5*time.Millisecond)
}

func TestNotifyCoalescesRepeatedCalls(t *testing.T) {
	sched, pool := newTestScheduler(30*time.Millisecond, 500*time.Millisecond)
	eps := endpoint.Of(endpoint.Endpoint{Path: "coalesce"})

	require.NoError(t, pool.With(eps, true, time.Time{}, func(hh *dbpool.Handler) error {
		sched.Notify(eps, hh.Database())
		sched.Notify(eps, hh.Database())
		sched.Notify(eps, hh.Database())
		return nil
	}))
	require.True(t, sched.Pending(eps))
}

func TestNotifyClampsToMaxWakeup(t *testing.T) {
	sched, pool := newTestScheduler(100*time.Millisecond, 10*time.Millisecond)
	eps := endpoint.Of(endpoint.Endpoint{Path: "clamped"})

	require.NoError(t, pool.With(eps, true, time.Time{}, func(hh *dbpool.Handler) error {
		sched.Notify(eps, hh.Database())
		return nil
	}))
	require.Eventually(t, func() bool { return !sched.Pending(eps) }, 80*time.Millisecond, 5*time.Millisecond)
}

func TestCancelStopsPendingTimer(t *testing.T) {
	sched, pool := newTestScheduler(50*time.Millisecond, 500*time.Millisecond)
	eps := endpoint.Of(endpoint.Endpoint{Path: "cancelled"})

	require.NoError(t, pool.With(eps, true, time.Time{}, func(hh *dbpool.Handler) error {
		sched.Notify(eps, hh.Database())
		return nil
	}))
	sched.Cancel(eps)
	require.False(t, sched.Pending(eps))
}
