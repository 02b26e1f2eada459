package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandonline/filebridge/internal/fault"
	"github.com/brandonline/filebridge/internal/protocol"
)

func TestCorrelatorDeliver(t *testing.T) {
	c := NewCorrelator(0)

	p, err := c.register(protocol.ActionList)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Pending())

	c.Deliver(&protocol.Response{ID: p.id, Path: "docs"})

	select {
	case res := <-p.done:
		require.NoError(t, res.err)
		assert.Equal(t, "docs", res.resp.Path)
	case <-time.After(time.Second):
		t.Fatal("waiter was never resolved")
	}
	assert.Equal(t, 0, c.Pending())
}

func TestCorrelatorUnknownIDDiscarded(t *testing.T) {
	c := NewCorrelator(0)

	p, err := c.register(protocol.ActionPing)
	require.NoError(t, err)

	c.Deliver(&protocol.Response{ID: "no-such-id"})
	assert.Equal(t, 1, c.Pending())

	select {
	case <-p.done:
		t.Fatal("mismatched response reached a waiter")
	default:
	}
}

func TestCorrelatorDuplicateDeliver(t *testing.T) {
	c := NewCorrelator(0)

	p, err := c.register(protocol.ActionRead)
	require.NoError(t, err)

	c.Deliver(&protocol.Response{ID: p.id, Content: "first"})
	c.Deliver(&protocol.Response{ID: p.id, Content: "second"})

	res := <-p.done
	assert.Equal(t, "first", res.resp.Content)

	select {
	case <-p.done:
		t.Fatal("slot resolved twice")
	default:
	}
}

func TestCorrelatorDropDiscardsLateResponse(t *testing.T) {
	c := NewCorrelator(0)

	p, err := c.register(protocol.ActionDownload)
	require.NoError(t, err)

	c.drop(p.id)
	assert.Equal(t, 0, c.Pending())

	c.Deliver(&protocol.Response{ID: p.id})
	select {
	case <-p.done:
		t.Fatal("dropped slot was resolved")
	default:
	}
}

func TestCorrelatorCancelAll(t *testing.T) {
	c := NewCorrelator(0)

	var slots []*pendingRequest
	for i := 0; i < 3; i++ {
		p, err := c.register(protocol.ActionList)
		require.NoError(t, err)
		slots = append(slots, p)
	}

	reason := fault.New(fault.AgentOffline, "agent disconnected")
	c.CancelAll(reason)
	assert.Equal(t, 0, c.Pending())

	for _, p := range slots {
		select {
		case res := <-p.done:
			assert.True(t, fault.Is(res.err, fault.AgentOffline))
		case <-time.After(time.Second):
			t.Fatal("cancelled waiter was never resolved")
		}
	}
}

func TestCorrelatorPendingBound(t *testing.T) {
	c := NewCorrelator(2)

	_, err := c.register(protocol.ActionList)
	require.NoError(t, err)
	_, err = c.register(protocol.ActionList)
	require.NoError(t, err)

	_, err = c.register(protocol.ActionList)
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.OperationFailed))
}
