package intake

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid intake transition")

type State int

const (
	Idle State = iota
	FilesQueued
	Analyzing
	DraftReady
	Committing
	Committed
)

var stateNames = map[State]string{
	Idle:        "idle",
	FilesQueued: "files_queued",
	Analyzing:   "analyzing",
	DraftReady:  "draft_ready",
	Committing:  "committing",
	Committed:   "committed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for state, name := range stateNames {
		if name == string(b) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown intake state %q", b)
}

var transitions = map[State][]State{
	Idle:        {FilesQueued},
	FilesQueued: {Analyzing, DraftReady},
	Analyzing:   {DraftReady},
	DraftReady:  {Committing},
	Committing:  {Committed, DraftReady},
	Committed:   {FilesQueued},
}

// canTransition reports whether s may move to next. Every state may return to Idle.
func (s State) canTransition(next State) bool {
	if next == Idle {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
