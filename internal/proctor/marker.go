package proctor

import (
	"context"
	"time"

	"github.com/yoockh/yooproctor/internal/cache"
)

const (
	keyActiveInterview     = "activeInterviewId"
	keyInterviewPhase      = "interviewPhase"
	keyCancellationReason  = "cancellationReason"
	keyCancellationMessage = "cancellationMessage"
	keyCancelledInterview  = "cancelledInterviewId"
)

// Cancellation reasons written for the host page.
const (
	ReasonHardRefresh   = "hard-refresh"
	ReasonUserCancelled = "user-cancelled"
	ReasonBrowserExit   = "browser-exit"
)

type SessionMarker struct {
	InterviewID string
	Phase       Phase
}

// Stale reports whether the marker proves an earlier load of the same
// interview ended without a clean teardown.
func (m SessionMarker) Stale(interviewID string) bool {
	return m.InterviewID == interviewID && (m.Phase == PhaseSetup || m.Phase == PhaseInterview)
}

type Cancellation struct {
	Reason      string `json:"reason"`
	Message     string `json:"message"`
	InterviewID string `json:"interviewId"`
}

// MarkerStore keeps the per-candidate session marker and cancellation notice.
type MarkerStore struct {
	c      cache.Cache
	prefix string
	ttl    time.Duration
}

func NewMarkerStore(c cache.Cache, candidateID string, ttl time.Duration) *MarkerStore {
	return &MarkerStore{c: c, prefix: "proctor:" + candidateID + ":", ttl: ttl}
}

func (s *MarkerStore) key(k string) string { return s.prefix + k }

func (s *MarkerStore) Load(ctx context.Context) (SessionMarker, bool, error) {
	id, hit, err := s.c.GetString(ctx, s.key(keyActiveInterview))
	if err != nil || !hit {
		return SessionMarker{}, false, err
	}
	phase, _, err := s.c.GetString(ctx, s.key(keyInterviewPhase))
	if err != nil {
		return SessionMarker{}, false, err
	}
	return SessionMarker{InterviewID: id, Phase: Phase(phase)}, true, nil
}

func (s *MarkerStore) Save(ctx context.Context, m SessionMarker) error {
	if err := s.c.SetString(ctx, s.key(keyActiveInterview), m.InterviewID, s.ttl); err != nil {
		return err
	}
	return s.c.SetString(ctx, s.key(keyInterviewPhase), string(m.Phase), s.ttl)
}

func (s *MarkerStore) Clear(ctx context.Context) error {
	return s.c.Del(ctx, s.key(keyActiveInterview), s.key(keyInterviewPhase))
}

func (s *MarkerStore) WriteCancellation(ctx context.Context, c Cancellation) error {
	for k, v := range map[string]string{
		keyCancellationReason:  c.Reason,
		keyCancellationMessage: c.Message,
		keyCancelledInterview:  c.InterviewID,
	} {
		if err := s.c.SetString(ctx, s.key(k), v, s.ttl); err != nil {
			return err
		}
	}
	return nil
}

// TakeCancellation reads and clears the cancellation notice.
func (s *MarkerStore) TakeCancellation(ctx context.Context) (Cancellation, bool, error) {
	reason, hit, err := s.c.GetString(ctx, s.key(keyCancellationReason))
	if err != nil || !hit {
		return Cancellation{}, false, err
	}
	msg, _, err := s.c.GetString(ctx, s.key(keyCancellationMessage))
	if err != nil {
		return Cancellation{}, false, err
	}
	id, _, err := s.c.GetString(ctx, s.key(keyCancelledInterview))
	if err != nil {
		return Cancellation{}, false, err
	}
	if err := s.c.Del(ctx, s.key(keyCancellationReason), s.key(keyCancellationMessage), s.key(keyCancelledInterview)); err != nil {
		return Cancellation{}, false, err
	}
	return Cancellation{Reason: reason, Message: msg, InterviewID: id}, true, nil
}
