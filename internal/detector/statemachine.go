package detector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// State is the detector lifecycle state.
type State string

const (
	StateStopped  State = "STOPPED"
	StateStarting State = "STARTING"
	StateRunning  State = "RUNNING"
	StateStopping State = "STOPPING"
	StateError    State = "ERROR"
)

// ErrInvalidTransition is returned when start/stop is attempted from a state
// that does not allow it.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines the allowed lifecycle edges. ERROR is reachable
// from STARTING or STOPPING on failure and recoverable only via stop.
var validTransitions = map[State][]State{
	StateStopped:  {StateStarting},
	StateStarting: {StateRunning, StateError},
	StateRunning:  {StateStopping},
	StateStopping: {StateStopped, StateError},
	StateError:    {StateStopping},
}

// canTransition reports whether from -> to is an allowed edge.
func canTransition(from, to State) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// defaultTransitionTimeout turns a hung start or stop into ERROR.
const defaultTransitionTimeout = 30 * time.Second

// StateMachine serializes lifecycle transitions. A start attempt is rejected
// unless the current state is STOPPED; stop unless RUNNING or ERROR.
type StateMachine struct {
	mu                sync.Mutex
	state             State
	transitionTimeout time.Duration
}

// NewStateMachine creates a machine in STOPPED.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		state:             StateStopped,
		transitionTimeout: defaultTransitionTimeout,
	}
}

// State returns the current lifecycle state.
func (s *StateMachine) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsRunning reports whether the machine is in RUNNING.
func (s *StateMachine) IsRunning() bool {
	return s.State() == StateRunning
}

// ExecuteStart runs fn inside the STOPPED -> STARTING -> RUNNING transition.
// A failed or timed-out fn lands the machine in ERROR.
func (s *StateMachine) ExecuteStart(ctx context.Context, fn func(context.Context) error) error {
	return s.transition(ctx, StateStarting, StateRunning, fn)
}

// ExecuteStop runs fn inside the RUNNING/ERROR -> STOPPING -> STOPPED
// transition. fn errors land in ERROR but resources should already be
// released by then; fn is expected to always attempt release.
func (s *StateMachine) ExecuteStop(ctx context.Context, fn func(context.Context) error) error {
	return s.transition(ctx, StateStopping, StateStopped, fn)
}

func (s *StateMachine) transition(ctx context.Context, via, to State, fn func(context.Context) error) error {
	s.mu.Lock()
	from := s.state
	if !canTransition(from, via) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, via)
	}
	s.state = via
	s.mu.Unlock()

	transitionCtx, cancel := context.WithTimeout(ctx, s.transitionTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- fn(transitionCtx) }()

	var err error
	select {
	case err = <-errCh:
	case <-transitionCtx.Done():
		err = fmt.Errorf("transition %s timed out after %s", via, s.transitionTimeout)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateError
		log.Error().Err(err).Str("from", string(from)).Str("via", string(via)).Msg("Lifecycle transition failed")
		return err
	}
	s.state = to
	return nil
}
