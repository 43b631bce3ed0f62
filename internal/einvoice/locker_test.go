package einvoice_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/factura/internal/einvoice"
)

func TestKeyedLocker_Serialises(t *testing.T) {
	l := einvoice.NewKeyedLocker()
	id := uuid.New()

	var inside, peak atomic.Int32

	done := make(chan struct{})

	for range 8 {
		go func() {
			defer func() { done <- struct{}{} }()

			unlock, err := l.Lock(context.Background(), id)
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			n := inside.Add(1)
			if n > peak.Load() {
				peak.Store(n)
			}

			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}

	for range 8 {
		<-done
	}

	assert.Equal(t, int32(1), peak.Load())
}

func TestKeyedLocker_OtherIDsDoNotWait(t *testing.T) {
	l := einvoice.NewKeyedLocker()

	unlock, err := l.Lock(context.Background(), uuid.New())
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	other, err := l.Lock(ctx, uuid.New())
	require.NoError(t, err)
	other()
}

func TestKeyedLocker_HonoursContext(t *testing.T) {
	l := einvoice.NewKeyedLocker()
	id := uuid.New()

	unlock, err := l.Lock(context.Background(), id)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = l.Lock(ctx, id)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()

	again, err := l.Lock(context.Background(), id)
	require.NoError(t, err)
	again()
}

func TestChain(t *testing.T) {
	var order []string

	locker := func(name string, err error) einvoice.Locker {
		return einvoice.LockerFunc(func(context.Context, uuid.UUID) (func(), error) {
			if err != nil {
				return nil, err
			}

			order = append(order, "lock "+name)

			return func() { order = append(order, "unlock "+name) }, nil
		})
	}

	t.Run("ReleasesInReverse", func(t *testing.T) {
		order = nil

		unlock, err := einvoice.Chain(locker("local", nil), locker("postgres", nil)).Lock(context.Background(), uuid.New())
		require.NoError(t, err)
		unlock()

		assert.Equal(t, []string{"lock local", "lock postgres", "unlock postgres", "unlock local"}, order)
	})

	t.Run("FailureReleasesAcquired", func(t *testing.T) {
		order = nil
		boom := errors.New("connection refused")

		_, err := einvoice.Chain(locker("local", nil), locker("postgres", boom)).Lock(context.Background(), uuid.New())
		require.ErrorIs(t, err, boom)

		assert.Equal(t, []string{"lock local", "unlock local"}, order)
	})
}
