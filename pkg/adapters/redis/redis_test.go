package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/mobility/pkg/adapters/redis"
	"github.com/aretw0/mobility/pkg/domain"
	"github.com/aretw0/mobility/pkg/ports"
	"github.com/aretw0/mobility/pkg/ports/tests"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisRepository_Contract(t *testing.T) {
	_, client := newClient(t)
	ports.RunFactRepositoryContract(t, redis.NewFromClient(client))
}

func TestRedisRepository_KeyLayout(t *testing.T) {
	mr, client := newClient(t)
	repo := redis.NewFromClient(client, redis.WithPrefix("node1:"))
	ctx := context.Background()

	id := domain.UID{Owner: "alpha", Seq: 7}
	require.NoError(t, repo.Save(ctx, ports.Record{Kind: domain.FactProc, ID: id, Data: []byte(`{}`)}))

	assert.True(t, mr.Exists("node1:proc:alpha/7"))
	members, err := mr.Members("node1:proc:index")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha/7"}, members)

	// A key that vanished behind the index's back is skipped.
	mr.Del("node1:proc:alpha/7")
	recs, err := repo.List(ctx, domain.FactProc)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRedisLocker_LockUnlock(t *testing.T) {
	mr, client := newClient(t)
	locker := redis.NewLocker(client, "test:")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "agent:alpha", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:lock:agent:alpha"), "Lock key should be set in Redis")

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("test:lock:agent:alpha"), "Lock key should be removed after unlock")
}

func TestRedisLocker_Contention(t *testing.T) {
	_, client := newClient(t)
	locker1 := redis.NewLocker(client, "test:")
	locker2 := redis.NewLocker(client, "test:")
	ctx := context.Background()

	unlock1, err := locker1.Lock(ctx, "agent:alpha", 5*time.Second)
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, err = locker2.Lock(short, "agent:alpha", 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "second holder must wait")

	require.NoError(t, unlock1(ctx))

	unlock2, err := locker2.Lock(ctx, "agent:alpha", 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, unlock2(ctx))
}

func TestRedisLocker_ForeignUnlockIsNoop(t *testing.T) {
	mr, client := newClient(t)
	locker := redis.NewLocker(client, "test:")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "agent:alpha", 5*time.Second)
	require.NoError(t, err)

	// The lease expired and someone else took it.
	require.NoError(t, mr.Set("test:lock:agent:alpha", "someone-else"))
	require.NoError(t, unlock(ctx))
	assert.True(t, mr.Exists("test:lock:agent:alpha"))
}

func TestRedisMessenger_Contract(t *testing.T) {
	_, client := newClient(t)
	m := redis.NewMessenger(client, "test:", redis.WithBlockTimeout(time.Second))
	tests.MessengerContractTest(t, m)
}

func TestRedisMessenger_KeepsMailWhileOffline(t *testing.T) {
	_, client := newClient(t)
	m := redis.NewMessenger(client, "test:", redis.WithBlockTimeout(time.Second))
	ctx := context.Background()

	env := domain.Envelope{Type: domain.EnvelopeRemove, RelayKind: "step", RequestID: domain.UID{Owner: "a", Seq: 1}, From: "a", To: "b"}
	require.NoError(t, m.Send(ctx, env))

	inbox, err := m.Subscribe(ctx, "b")
	require.NoError(t, err)
	defer inbox.Close()

	deadline := time.After(2 * time.Second)
	for {
		if got := inbox.Drain(); len(got) > 0 {
			assert.Equal(t, env.RequestID, got[0].RequestID)
			return
		}
		select {
		case <-inbox.Ready():
		case <-deadline:
			t.Fatal("envelope sent before subscribing was not delivered")
		}
	}
}
