package xhub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func stateEvent(entity string, oldV, newV string) *Event {
	id, _ := ParseEntityID(entity)
	return NewEvent("hass.state", StateChange{
		Entity: id,
		Old:    State{Value: oldV},
		New:    State{Value: newV},
	})
}

func TestForEntity(t *testing.T) {
	ev := stateEvent("light.kitchen", "off", "on")

	assert.True(t, ForEntity("light.kitchen")(ev))
	assert.True(t, ForEntity("switch.fan", "light.kitchen")(ev))
	assert.True(t, ForEntity("light.*")(ev))
	assert.False(t, ForEntity("light.porch")(ev))
	assert.False(t, ForEntity("light.kitchen")(NewEvent("t", "no entity here")))
}

func TestForDomain(t *testing.T) {
	ev := stateEvent("sensor.hallway_temp", "20", "21")

	assert.True(t, ForDomain("sensor")(ev))
	assert.True(t, ForDomain("light", "sensor")(ev))
	assert.False(t, ForDomain("light")(ev))
}

func TestToFromState(t *testing.T) {
	ev := stateEvent("light.kitchen", "off", "on")

	assert.True(t, ToState("on")(ev))
	assert.True(t, ToState("dim", "on")(ev))
	assert.False(t, ToState("off")(ev))

	assert.True(t, FromState("off")(ev))
	assert.False(t, FromState("on")(ev))
}

func TestToState_MapPayload(t *testing.T) {
	id, _ := ParseEntityID("light.kitchen")
	ev := NewEvent("hass.state", StateChange{
		Entity: id,
		New:    map[string]any{"state": "on"},
	})
	assert.True(t, ToState("on")(ev))
}

func TestStateChangedOnly(t *testing.T) {
	assert.True(t, StateChangedOnly()(stateEvent("light.kitchen", "off", "on")))
	assert.False(t, StateChangedOnly()(stateEvent("light.kitchen", "on", "on")))
	// Non-state payloads pass through untouched.
	assert.True(t, StateChangedOnly()(NewEvent("t", Status{Source: "core"})))
}

func TestAttrEquals(t *testing.T) {
	id, _ := ParseEntityID("light.kitchen")
	ev := NewEvent("hass.state", StateChange{
		Entity: id,
		New:    State{Value: "on", Attributes: map[string]any{"brightness": 255}},
	})

	assert.True(t, AttrEquals("brightness", 255)(ev))
	assert.False(t, AttrEquals("brightness", 100)(ev))
	assert.False(t, AttrEquals("color", "red")(ev))
}

func TestPredicateCombinators(t *testing.T) {
	ev := stateEvent("light.kitchen", "off", "on")

	assert.True(t, And(ForDomain("light"), ToState("on"))(ev))
	assert.False(t, And(ForDomain("light"), ToState("off"))(ev))
	assert.True(t, Or(ForDomain("sensor"), ToState("on"))(ev))
	assert.False(t, Or(ForDomain("sensor"), ToState("off"))(ev))
	assert.True(t, Not(ForDomain("sensor"))(ev))
	assert.True(t, And()(ev), "empty conjunction passes")
}
