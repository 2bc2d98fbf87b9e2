// Package requests tracks at most one in-flight query per structural path of
// the cohort tree.
package requests

import "strings"

// Path addresses a group or item position, e.g. ["includes", groupID, itemID].
type Path []string

func (p Path) Key() string {
	return strings.Join(p, "/")
}

func ParsePath(key string) Path {
	if key == "" {
		return nil
	}
	return Path(strings.Split(strings.Trim(key, "/"), "/"))
}

type ActionType string

const (
	StartRequest   ActionType = "START_REQUEST"
	CancelRequest  ActionType = "CANCEL_REQUEST"
	CleanupRequest ActionType = "CLEANUP_REQUEST"
)

type Action struct {
	Type ActionType
	Path Path
}

// State is the set of path keys with an outstanding request.
type State map[string]struct{}

func (s State) Has(p Path) bool {
	_, ok := s[p.Key()]
	return ok
}

func (s State) clone() State {
	out := make(State, len(s)+1)
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// Reduce applies one action and returns the next state. The input is never
// modified. CANCEL does not change the state; its cleanup is a separate action.
func Reduce(state State, action Action) State {
	switch action.Type {
	case StartRequest:
		if state.Has(action.Path) {
			return state
		}
		next := state.clone()
		next[action.Path.Key()] = struct{}{}
		return next
	case CleanupRequest:
		if !state.Has(action.Path) {
			return state
		}
		next := state.clone()
		delete(next, action.Path.Key())
		return next
	case CancelRequest:
		return state
	}
	return state
}
