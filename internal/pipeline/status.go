package pipeline

import (
	"sync"
	"time"
)

const DefaultStatusClearAfter = 5 * time.Second

// Level is the severity of a status message.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Status is the single user-facing status line.
type Status struct {
	Message   string    `json:"message"`
	Level     Level     `json:"level,omitempty"`
	Category  string    `json:"category,omitempty"`
	Busy      bool      `json:"busy"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StatusBoard holds the status line. Non-busy messages are cleared after
// clearAfter unless inFlight reports an operation in progress, in which
// case the clear is postponed by another clearAfter.
type StatusBoard struct {
	clearAfter time.Duration
	inFlight   func() bool
	onChange   func(Status)

	mu      sync.Mutex
	current Status
	gen     uint64
	timer   *time.Timer
	closed  bool
}

// NewStatusBoard creates a board. inFlight and onChange may be nil; onChange
// runs without the board lock held.
func NewStatusBoard(clearAfter time.Duration, inFlight func() bool, onChange func(Status)) *StatusBoard {
	if clearAfter <= 0 {
		clearAfter = DefaultStatusClearAfter
	}
	if inFlight == nil {
		inFlight = func() bool { return false }
	}
	return &StatusBoard{clearAfter: clearAfter, inFlight: inFlight, onChange: onChange}
}

// Set replaces the status line and schedules its clearing.
func (b *StatusBoard) Set(level Level, category, message string) {
	b.update(Status{Message: message, Level: level, Category: category})
}

// Busy shows a message that stays until replaced.
func (b *StatusBoard) Busy(message string) {
	b.update(Status{Message: message, Level: LevelInfo, Busy: true})
}

// Clear empties the status line.
func (b *StatusBoard) Clear() {
	b.update(Status{})
}

func (b *StatusBoard) Current() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// ClearAfter returns the auto-clear delay.
func (b *StatusBoard) ClearAfter() time.Duration { return b.clearAfter }

// Close stops pending clears. Later updates are ignored.
func (b *StatusBoard) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.stopTimerLocked()
}

func (b *StatusBoard) update(s Status) {
	s.UpdatedAt = time.Now()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.gen++
	b.stopTimerLocked()
	b.current = s
	if !s.Busy && s.Message != "" {
		b.scheduleLocked(b.gen)
	}
	onChange := b.onChange
	b.mu.Unlock()

	if onChange != nil {
		onChange(s)
	}
}

func (b *StatusBoard) scheduleLocked(gen uint64) {
	b.timer = time.AfterFunc(b.clearAfter, func() { b.expire(gen) })
}

// expire clears the message set at gen if nothing replaced it.
func (b *StatusBoard) expire(gen uint64) {
	b.mu.Lock()
	if b.closed || gen != b.gen {
		b.mu.Unlock()
		return
	}
	if b.inFlight() {
		b.scheduleLocked(gen)
		b.mu.Unlock()
		return
	}
	b.gen++
	b.timer = nil
	b.current = Status{UpdatedAt: time.Now()}
	cleared := b.current
	onChange := b.onChange
	b.mu.Unlock()

	if onChange != nil {
		onChange(cleared)
	}
}

func (b *StatusBoard) stopTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}
