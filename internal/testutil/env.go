// Package testutil provides an isolated Redis-backed environment for tests of
// the packages built on the ledger and the collaboration channel.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/tally/pkg/collab"
	"github.com/dyluth/tally/pkg/ledger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// Env represents an isolated test environment on a private miniredis server.
type Env struct {
	T         *testing.T
	Redis     *miniredis.Miniredis
	Ledger    *ledger.Client
	Channel   *collab.Channel
	Namespace string
	Ctx       context.Context
}

// Setup starts miniredis and connects a ledger client and a collaboration
// channel to it. Everything is torn down with the test.
func Setup(t *testing.T, opts ...collab.Option) *Env {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start(), "Failed to start miniredis")
	t.Cleanup(mr.Close)

	namespace := fmt.Sprintf("test-%s", uuid.New().String()[:8])
	client, err := ledger.NewClient(&redis.Options{Addr: mr.Addr()}, namespace)
	require.NoError(t, err, "Failed to create ledger client")
	t.Cleanup(func() { client.Close() })

	channel, err := collab.NewChannel(client.RedisClient(), namespace, opts...)
	require.NoError(t, err, "Failed to create collaboration channel")

	return &Env{
		T:         t,
		Redis:     mr,
		Ledger:    client,
		Channel:   channel,
		Namespace: namespace,
		Ctx:       context.Background(),
	}
}

// AddLocation registers a location and returns it.
func (env *Env) AddLocation(name string, active bool) *ledger.Location {
	env.T.Helper()
	loc := &ledger.Location{ID: uuid.New().String(), Name: name, IsActive: active}
	require.NoError(env.T, env.Ledger.CreateLocation(env.Ctx, loc), "Failed to create location %s", name)
	return loc
}

// Eventually fails the test unless cond holds within two seconds.
func (env *Env) Eventually(cond func() bool, msg string, args ...interface{}) {
	env.T.Helper()
	require.Eventuallyf(env.T, cond, 2*time.Second, 5*time.Millisecond, msg, args...)
}
