package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	registry := NewRegistry()
	ws := &WebSocket{id: "ST-1"}

	superseded := registry.Register(ws)
	assert.Nil(t, superseded)
	assert.Equal(t, ws, registry.Get("ST-1"))
	assert.Equal(t, 1, registry.Count())
}

func TestRegistryRegisterReturnsSuperseded(t *testing.T) {
	registry := NewRegistry()
	first := &WebSocket{id: "ST-1"}
	second := &WebSocket{id: "ST-1"}

	registry.Register(first)
	superseded := registry.Register(second)
	assert.Equal(t, first, superseded)
	assert.Equal(t, second, registry.Get("ST-1"))
	assert.Equal(t, 1, registry.Count())
}

func TestRegistryRegisterSameConnectionTwice(t *testing.T) {
	registry := NewRegistry()
	ws := &WebSocket{id: "ST-1"}

	registry.Register(ws)
	assert.Nil(t, registry.Register(ws))
}

func TestRegistrySupersededCannotEvictReplacement(t *testing.T) {
	registry := NewRegistry()
	first := &WebSocket{id: "ST-1"}
	second := &WebSocket{id: "ST-1"}

	registry.Register(first)
	registry.Register(second)
	assert.False(t, registry.Remove(first))
	assert.Equal(t, second, registry.Get("ST-1"))

	assert.True(t, registry.Remove(second))
	assert.Nil(t, registry.Get("ST-1"))
	assert.Equal(t, 0, registry.Count())
}

func TestWebSocketProbeArming(t *testing.T) {
	ws := &WebSocket{id: "ST-1", alive: true}

	if ws.Expired() {
		t.Fatalf("first probe must arm the check, not expire the link")
	}
	if !ws.Expired() {
		t.Fatalf("second probe without a pong must report the link as dead")
	}

	ws.MarkAlive()
	assert.False(t, ws.Expired())
}
