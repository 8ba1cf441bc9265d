package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/runway-dev/runway/internal/model"
)

func TestIsEventActive_Untagged(t *testing.T) {
	ev := model.ProjectionEvent{ID: "e1"}

	assert.True(t, IsEventActive(ev, nil))
	assert.True(t, IsEventActive(ev, State{"p1": false}))
}

func TestIsEventActive_TaggedFollowsFlag(t *testing.T) {
	ev := model.ProjectionEvent{ID: "e1", DecisionPathID: "p1"}

	assert.True(t, IsEventActive(ev, State{"p1": true}))
	assert.False(t, IsEventActive(ev, State{"p1": false}))
}

func TestIsEventActive_UnknownPathDefaultsEnabled(t *testing.T) {
	// A path the saved scenario has never heard of must not drop events.
	ev := model.ProjectionEvent{ID: "e1", DecisionPathID: "p-new"}

	assert.True(t, IsEventActive(ev, State{"p-old": false}))
}

func TestBuildState_DefaultsAllEnabled(t *testing.T) {
	paths := []model.DecisionPath{{ID: "p1"}, {ID: "p2"}}

	state := BuildState(paths, nil)
	assert.Equal(t, State{"p1": true, "p2": true}, state)
}

func TestBuildState_ScenarioOverridesDefaults(t *testing.T) {
	paths := []model.DecisionPath{{ID: "p1"}, {ID: "p2"}}
	set := &model.ScenarioSet{Name: "no house", Flags: map[string]bool{"p2": false}}

	state := BuildState(paths, set)
	assert.Equal(t, State{"p1": true, "p2": false}, state)
}

func TestBuildState_ScenarioMayReferenceRemovedPath(t *testing.T) {
	paths := []model.DecisionPath{{ID: "p1"}}
	set := &model.ScenarioSet{Flags: map[string]bool{"p-gone": false}}

	state := BuildState(paths, set)
	assert.False(t, state["p-gone"])
	assert.True(t, state["p1"])
}
