package proctor

import (
	"sync"
	"time"

	"github.com/yoockh/yooproctor/internal/models"
)

const (
	// ViolationDebounce drops any signal arriving this soon after the last
	// logged violation.
	ViolationDebounce = time.Second
	// ViolationLimit is the count at which the session is rejected.
	ViolationLimit = 2
)

type SignalKind string

const (
	SignalVisibilityHidden  SignalKind = "visibility_hidden"
	SignalVisibilityVisible SignalKind = "visibility_visible"
	SignalWindowBlur        SignalKind = "window_blur"
	SignalWindowFocus       SignalKind = "window_focus"
	SignalFullscreenExit    SignalKind = "fullscreen_exit"
	SignalFullscreenEnter   SignalKind = "fullscreen_enter"
	SignalBeforeUnload      SignalKind = "before_unload"
	SignalKeyDown           SignalKind = "keydown"
	SignalContextMenu       SignalKind = "contextmenu"
	SignalMouseDown         SignalKind = "mousedown"
)

var violationReasons = map[SignalKind]string{
	SignalVisibilityHidden: "Switched tabs or minimized the browser window",
	SignalWindowBlur:       "Interview window lost focus",
	SignalFullscreenExit:   "Exited fullscreen mode",
	SignalBeforeUnload:     "Attempted to close or leave the interview page",
}

// Signal is one raw client event. A zero At is stamped on arrival.
type Signal struct {
	Kind   SignalKind `json:"kind"`
	Key    KeyEvent   `json:"key,omitempty"`
	Button int        `json:"button,omitempty"`
	At     time.Time  `json:"at,omitempty"`
}

// Verdict tells the caller what happened to a signal. Prevent means the
// client must cancel the event's default action.
type Verdict struct {
	Prevent   bool
	Violation *models.Violation
	Count     int
}

// ViolationEngine scores signals while armed. It keeps the log and the
// counter in lockstep; len(Log()) == Count() always holds.
type ViolationEngine struct {
	now func() time.Time

	mu    sync.Mutex
	armed bool
	last  time.Time
	log   []models.Violation
}

func NewViolationEngine(now func() time.Time) *ViolationEngine {
	if now == nil {
		now = time.Now
	}
	return &ViolationEngine{now: now}
}

func (e *ViolationEngine) Arm() {
	e.mu.Lock()
	e.armed = true
	e.mu.Unlock()
}

func (e *ViolationEngine) Disarm() {
	e.mu.Lock()
	e.armed = false
	e.mu.Unlock()
}

func (e *ViolationEngine) Armed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.armed
}

func (e *ViolationEngine) Handle(sig Signal) Verdict {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.armed {
		return Verdict{Count: len(e.log)}
	}

	switch sig.Kind {
	case SignalKeyDown:
		return Verdict{Prevent: IsBlockedKey(sig.Key), Count: len(e.log)}
	case SignalContextMenu:
		return Verdict{Prevent: true, Count: len(e.log)}
	case SignalMouseDown:
		return Verdict{Prevent: IsBlockedMouseButton(sig.Button), Count: len(e.log)}
	}

	reason, scored := violationReasons[sig.Kind]
	if !scored {
		return Verdict{Count: len(e.log)}
	}

	at := sig.At
	if at.IsZero() {
		at = e.now()
	}
	if !e.last.IsZero() && at.Sub(e.last) < ViolationDebounce {
		return Verdict{Prevent: sig.Kind == SignalBeforeUnload, Count: len(e.log)}
	}

	v := models.Violation{Timestamp: at.UTC(), Reason: reason}
	e.last = at
	e.log = append(e.log, v)
	return Verdict{
		Prevent:   sig.Kind == SignalBeforeUnload,
		Violation: &v,
		Count:     len(e.log),
	}
}

func (e *ViolationEngine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.log)
}

// Log returns a copy of the violations logged so far.
func (e *ViolationEngine) Log() []models.Violation {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.Violation, len(e.log))
	copy(out, e.log)
	return out
}
