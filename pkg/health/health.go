// Package health provides the health states reported by the counter and renewal services.
package health

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// State represents the health state of a service or of the whole function.
type State int

const (
	// StateHealthy indicates the service is fully operational
	StateHealthy State = iota

	// StateDegraded indicates at least one dependency is not healthy
	StateDegraded

	// StateUnhealthy indicates the service cannot reach its backend
	StateUnhealthy
)

// String returns the string representation of a health state
func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the state as its string form.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a state from its string form.
func (s *State) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	switch str {
	case "healthy":
		*s = StateHealthy
	case "degraded":
		*s = StateDegraded
	case "unhealthy":
		*s = StateUnhealthy
	default:
		return fmt.Errorf("unknown health state %q", str)
	}
	return nil
}

// HTTPStatus returns 200 for a healthy state and 503 otherwise.
func (s State) HTTPStatus() int {
	if s == StateHealthy {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}

// FromStatusCode derives a state from the status code a health check responded with.
func FromStatusCode(code int) State {
	if code == http.StatusOK {
		return StateHealthy
	}
	return StateUnhealthy
}

// Combine folds several states into one: healthy only when every state is
// healthy, degraded otherwise. No states at all counts as healthy.
func Combine(states ...State) State {
	for _, s := range states {
		if s != StateHealthy {
			return StateDegraded
		}
	}
	return StateHealthy
}
