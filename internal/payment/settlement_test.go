package payment_test

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-payments/internal/lock"
	"github.com/noah-isme/toko-payments/internal/payment"
)

func TestSettleWithRedisLock(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture()
	f.settler.Locker = lock.Locker{R: client, RetryBackoff: 2 * time.Millisecond}
	f.settler.LockTTL = time.Second
	f.putUnpaid("ORD1", "u1", 10)

	var wg sync.WaitGroup
	results := make(chan payment.Outcome, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.settler.Settle(context.Background(), payment.SettleRequest{
				OrderID: "ORD1", ProviderOrderID: "order_X", ProviderPaymentID: "pay_Y", Source: payment.SourceVerify,
			})
			if err == nil {
				results <- res.Outcome
			}
		}()
	}
	wg.Wait()
	close(results)

	counts := map[payment.Outcome]int{}
	for o := range results {
		counts[o]++
	}
	require.Equal(t, 1, counts[payment.OutcomeSettled])
	require.Equal(t, 7, counts[payment.OutcomeAlreadyPaid])
	require.False(t, mr.Exists(lock.SettlementKey("ORD1")), "lease released")
}

func TestSettleFallsBackWhenLockStoreUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	f := newFixture()
	f.settler.Locker = lock.Locker{R: client}
	f.putUnpaid("ORD1", "u1", 10)

	res, err := f.settler.Settle(context.Background(), payment.SettleRequest{OrderID: "ORD1", ProviderPaymentID: "pay_Y"})
	require.NoError(t, err)
	require.Equal(t, payment.OutcomeSettled, res.Outcome)
}

func TestSettleLockTimeoutIsSettlementError(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, mr.Set(lock.SettlementKey("ORD1"), "held"))

	f := newFixture()
	f.settler.Locker = lock.Locker{R: client, RetryBackoff: 2 * time.Millisecond}
	f.putUnpaid("ORD1", "u1", 10)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = f.settler.Settle(ctx, payment.SettleRequest{OrderID: "ORD1", ProviderPaymentID: "pay_Y"})
	require.ErrorIs(t, err, payment.ErrSettlement)
	require.ErrorIs(t, err, lock.ErrNotAcquired)
	require.Zero(t, f.store.writes())
}

func TestReconcileSourceDoesNotReenqueue(t *testing.T) {
	f := newFixture()
	res, err := f.settler.Settle(context.Background(), payment.SettleRequest{
		OrderID: "ORD404", ProviderPaymentID: "pay_Y", Source: payment.SourceReconcile,
	})
	require.NoError(t, err)
	require.Equal(t, payment.OutcomeOrderNotFound, res.Outcome)
	require.Empty(t, f.reconciler.reqs)
	require.Empty(t, f.emitter.all(), "reconcile retries do not re-announce the miss")
	require.Empty(t, f.store.Events(), "reconcile retries do not append audit rows")
}

func TestReconcileSourceSettlesLateOrder(t *testing.T) {
	f := newFixture()
	f.putUnpaid("ORD7", "u1", 10)
	res, err := f.settler.Settle(context.Background(), payment.SettleRequest{
		OrderID: "ORD7", UserID: "u1", ProviderPaymentID: "pay_Y", Source: payment.SourceReconcile,
	})
	require.NoError(t, err)
	require.Equal(t, payment.OutcomeSettled, res.Outcome)
	require.Equal(t, []string{"order.paid"}, f.emitter.all())
	require.Len(t, f.store.Events(), 1)
}

func TestSettleRequiresStore(t *testing.T) {
	_, err := (&payment.Settler{}).Settle(context.Background(), payment.SettleRequest{OrderID: "ORD1"})
	require.ErrorIs(t, err, payment.ErrSettlement)
}
