package job

import "fmt"

// Action is a user-initiated lifecycle operation on a job
type Action string

const (
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
	ActionCancel Action = "cancel"
)

// ParseAction converts a command name into an Action
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionPause, ActionResume, ActionCancel:
		return Action(s), nil
	}
	return "", fmt.Errorf("unknown action %q (must be pause, resume or cancel)", s)
}

// Allowed reports whether the action may be offered for a job in the
// given status. This is a client-side guard only; the server decides.
func Allowed(s Status, a Action) bool {
	switch a {
	case ActionPause:
		return s == StatusActive
	case ActionResume:
		return s == StatusPaused
	case ActionCancel:
		return !s.Terminal()
	}
	return false
}

// AvailableActions returns the actions that may be offered for status s
func AvailableActions(s Status) []Action {
	var actions []Action
	for _, a := range []Action{ActionPause, ActionResume, ActionCancel} {
		if Allowed(s, a) {
			actions = append(actions, a)
		}
	}
	return actions
}
