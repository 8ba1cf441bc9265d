// Package scenario decides which projection events count under the
// currently active what-if scenario.
package scenario

import "github.com/runway-dev/runway/internal/model"

// State maps decision path IDs to enabled flags for one scenario run.
// It is built once per computation and passed down explicitly, keeping the
// balance fold a pure function of its inputs.
type State map[string]bool

// BuildState merges the full set of known decision paths, all enabled by
// default, with a scenario set's explicit flags. set may be nil (the
// everything-enabled baseline).
func BuildState(paths []model.DecisionPath, set *model.ScenarioSet) State {
	state := make(State, len(paths))
	for _, p := range paths {
		state[p.ID] = true
	}
	if set != nil {
		for id, enabled := range set.Flags {
			state[id] = enabled
		}
	}
	return state
}

// IsEventActive reports whether an event counts under the given scenario
// state. Untagged events are always active. A decision path missing from
// the state defaults to enabled, so events on paths unknown to an older
// saved scenario are never silently dropped.
func IsEventActive(event model.ProjectionEvent, state State) bool {
	if event.DecisionPathID == "" {
		return true
	}
	enabled, known := state[event.DecisionPathID]
	if !known {
		return true
	}
	return enabled
}
