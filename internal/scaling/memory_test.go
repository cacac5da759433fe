package scaling

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPubSubFansOut(t *testing.T) {
	ps := NewMemoryPubSub()
	ctx := context.Background()

	var got []Envelope
	_, err := ps.Subscribe(ctx, func(env Envelope) {
		got = append(got, env)
	})
	require.NoError(t, err)

	env := Envelope{
		NodeID: "node-a",
		Room:   "form:1",
		Event:  "resource-updated",
		Data:   json.RawMessage(`{"fieldId":"f1"}`),
	}
	require.NoError(t, ps.Publish(ctx, env))

	require.Len(t, got, 1)
	assert.Equal(t, env, got[0])
}

func TestMemoryPubSubMultipleSubscribers(t *testing.T) {
	ps := NewMemoryPubSub()
	ctx := context.Background()

	a, b := 0, 0
	_, err := ps.Subscribe(ctx, func(Envelope) { a++ })
	require.NoError(t, err)
	_, err = ps.Subscribe(ctx, func(Envelope) { b++ })
	require.NoError(t, err)

	require.NoError(t, ps.Publish(ctx, Envelope{NodeID: "n"}))
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
}

func TestMemoryPubSubUnsubscribe(t *testing.T) {
	ps := NewMemoryPubSub()
	ctx := context.Background()

	count := 0
	closer, err := ps.Subscribe(ctx, func(Envelope) { count++ })
	require.NoError(t, err)
	require.NoError(t, closer.Close())

	require.NoError(t, ps.Publish(ctx, Envelope{NodeID: "n"}))
	assert.Equal(t, 0, count)
}
