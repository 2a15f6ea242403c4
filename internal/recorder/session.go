package recorder

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/trackid-go/internal/errors"
)

// State is the phase of one capture attempt.
type State int

const (
	StateIdle State = iota
	StateSettingUpGraph
	StateRecording
	StateEncoding
	StateSubmitting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSettingUpGraph:
		return "settingUpGraph"
	case StateRecording:
		return "recording"
	case StateEncoding:
		return "encoding"
	case StateSubmitting:
		return "submitting"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

var validStateTransitions = map[State][]State{
	StateIdle:           {StateSettingUpGraph, StateFailed},
	StateSettingUpGraph: {StateRecording, StateFailed},
	StateRecording:      {StateEncoding, StateFailed},
	StateEncoding:       {StateSubmitting, StateFailed},
	StateSubmitting:     {StateDone, StateFailed},
	StateDone:           {},
	StateFailed:         {},
}

func isValidTransition(from, to State) bool {
	allowed, ok := validStateTransitions[from]
	return ok && slices.Contains(allowed, to)
}

// StateTransition records one state change.
type StateTransition struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}

// SessionInfo is a point-in-time copy of a session.
type SessionInfo struct {
	ID        string    `json:"id"`
	State     State     `json:"state"`
	StartedAt time.Time `json:"startedAt"`
	Encoding  string    `json:"encoding,omitempty"`
	Bytes     int       `json:"bytes"`
	Error     string    `json:"error,omitempty"`
}

// Session is the ephemeral state of one identify attempt. It is owned by a
// single attempt and discarded once terminal.
type Session struct {
	id        string
	startedAt time.Time

	mu          sync.Mutex
	state       State
	encoding    string
	bytes       int
	err         error
	transitions []StateTransition
	onChange    func(SessionInfo)
}

// NewSession creates an idle session. onChange, when set, is called after
// every transition without the session lock held.
func NewSession(onChange func(SessionInfo)) *Session {
	return &Session{
		id:        uuid.NewString(),
		startedAt: time.Now(),
		onChange:  onChange,
	}
}

func (s *Session) ID() string { return s.id }

// Transition moves the session to the given state. Invalid transitions are
// rejected and leave the state unchanged.
func (s *Session) Transition(to State, reason string) error {
	s.mu.Lock()
	from := s.state
	if !isValidTransition(from, to) {
		s.mu.Unlock()
		return errors.Newf("invalid session transition %s -> %s", from, to).
			Component("recorder").
			Category(errors.CategoryState).
			Context("session_id", s.id).
			Build()
	}
	s.state = to
	s.transitions = append(s.transitions, StateTransition{From: from, To: to, Timestamp: time.Now(), Reason: reason})
	info := s.infoLocked()
	onChange := s.onChange
	s.mu.Unlock()

	if onChange != nil {
		onChange(info)
	}
	return nil
}

// Fail moves a non-terminal session to StateFailed and records err.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.err = err
	s.mu.Unlock()

	reason := ""
	if err != nil {
		reason = err.Error()
	}
	_ = s.Transition(StateFailed, reason)
}

func (s *Session) setEncoding(enc string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encoding = enc
}

func (s *Session) setBytes(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bytes = n
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Active reports whether the session is between idle and a terminal state.
func (s *Session) Active() bool {
	st := s.State()
	return st != StateIdle && !st.Terminal()
}

func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infoLocked()
}

func (s *Session) infoLocked() SessionInfo {
	info := SessionInfo{
		ID:        s.id,
		State:     s.state,
		StartedAt: s.startedAt,
		Encoding:  s.encoding,
		Bytes:     s.bytes,
	}
	if s.err != nil {
		info.Error = s.err.Error()
	}
	return info
}

// Transitions returns the recorded transitions in order.
func (s *Session) Transitions() []StateTransition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.transitions)
}
