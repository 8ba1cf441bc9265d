package model

// DecisionPath is a named toggle representing a hypothetical choice
// ("take the job", "buy the house"). It is a tag on rules and events,
// not an owner of anything.
type DecisionPath struct {
	ID   string
	Name string
}

// ScenarioSet is a saved combination of decision-path flags for exploring
// alternate futures without touching the underlying data. A path missing
// from Flags is treated as enabled.
type ScenarioSet struct {
	ID      string
	Name    string
	Default bool
	Flags   map[string]bool // decision path ID -> enabled
}
