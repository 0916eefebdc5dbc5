package proctor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/yoockh/yooproctor/internal/cache"
	"github.com/yoockh/yooproctor/internal/models"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeHost struct {
	mu      sync.Mutex
	states  []State
	notices []Notice
	exits   []ExitReason
}

func (h *fakeHost) StateChanged(s State) {
	h.mu.Lock()
	h.states = append(h.states, s)
	h.mu.Unlock()
}

func (h *fakeHost) Notify(n Notice) {
	h.mu.Lock()
	h.notices = append(h.notices, n)
	h.mu.Unlock()
}

func (h *fakeHost) Exit(r ExitReason) {
	h.mu.Lock()
	h.exits = append(h.exits, r)
	h.mu.Unlock()
}

func (h *fakeHost) Exits() []ExitReason {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ExitReason(nil), h.exits...)
}

func (h *fakeHost) NoticeCodes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.notices))
	for _, n := range h.notices {
		out = append(out, n.Code)
	}
	return out
}

type fakeStream struct {
	mu      sync.Mutex
	stopped int
}

func (s *fakeStream) ID() string { return "stream-1" }

func (s *fakeStream) VideoActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped == 0
}

func (s *fakeStream) AudioActive() bool { return s.VideoActive() }

func (s *fakeStream) Stop() {
	s.mu.Lock()
	s.stopped++
	s.mu.Unlock()
}

func (s *fakeStream) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type fakeDevices struct {
	err    error
	stream *fakeStream
	calls  int
}

func (d *fakeDevices) GetUserMedia(context.Context, MediaConstraints) (CaptureStream, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	d.stream = &fakeStream{}
	return d.stream, nil
}

type fakeDisplay struct {
	mu       sync.Mutex
	deny     bool
	requests int
	exits    int
}

func (d *fakeDisplay) RequestFullscreen(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests++
	if d.deny {
		return errors.New("NotAllowedError")
	}
	return nil
}

func (d *fakeDisplay) ExitFullscreen(context.Context) error {
	d.mu.Lock()
	d.exits++
	d.mu.Unlock()
	return nil
}

type fakeRecorder struct {
	mu        sync.Mutex
	sink      ChunkSink
	profile   RecorderProfile
	started   bool
	stops     int
	final     []byte
	timeslice time.Duration
	stall     bool
}

func (r *fakeRecorder) Start(_ context.Context, timeslice time.Duration) error {
	r.mu.Lock()
	r.started = true
	r.timeslice = timeslice
	r.mu.Unlock()
	return nil
}

func (r *fakeRecorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	r.stops++
	final, stall := r.final, r.stall
	r.mu.Unlock()
	if stall {
		<-ctx.Done()
		return ctx.Err()
	}
	if len(final) > 0 {
		r.sink(final)
	}
	return nil
}

func (r *fakeRecorder) Emit(b []byte) { r.sink(b) }

type fakeRecorders struct {
	mu        sync.Mutex
	supported map[string]bool
	newErr    error
	recorders []*fakeRecorder
	final     []byte
	// stall makes every recorder's Stop hang until its context ends.
	stall bool
}

func newFakeRecorders(mimes ...string) *fakeRecorders {
	f := &fakeRecorders{supported: map[string]bool{}, final: []byte("final")}
	for _, m := range mimes {
		f.supported[m] = true
	}
	return f
}

func (f *fakeRecorders) IsTypeSupported(m string) bool { return f.supported[m] }

func (f *fakeRecorders) NewRecorder(_ CaptureStream, p RecorderProfile, sink ChunkSink) (MediaRecorder, error) {
	if f.newErr != nil {
		return nil, f.newErr
	}
	r := &fakeRecorder{sink: sink, profile: p, final: f.final, stall: f.stall}
	f.mu.Lock()
	f.recorders = append(f.recorders, r)
	f.mu.Unlock()
	return r, nil
}

func (f *fakeRecorders) Last() *fakeRecorder {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.recorders) == 0 {
		return nil
	}
	return f.recorders[len(f.recorders)-1]
}

type fakeUploader struct {
	mu    sync.Mutex
	err   error
	calls int
	sizes []int
}

func (u *fakeUploader) UploadRecording(_ context.Context, interviewID string, a Asset) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	u.sizes = append(u.sizes, a.Size())
	if u.err != nil {
		return "", u.err
	}
	return "https://storage.example/recordings/" + interviewID + ".webm", nil
}

func (u *fakeUploader) Calls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls
}

type fakeResults struct {
	mu          sync.Mutex
	completeErr error
	completions []models.CompletionRecord
	rejections  []models.RejectionRecord
	rejectErrs  []error
}

func (r *fakeResults) PostCompletion(_ context.Context, interviewID string, rec models.CompletionRecord) (*models.InterviewResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completeErr != nil {
		return nil, r.completeErr
	}
	r.completions = append(r.completions, rec)
	return &models.InterviewResult{
		InterviewID:      interviewID,
		Status:           models.ResultCompleted,
		VideoURL:         rec.VideoURL,
		ViolationCount:   rec.ViolationCount,
		ForcedSubmission: rec.ForcedSubmission,
	}, nil
}

func (r *fakeResults) PostRejection(ctx context.Context, _ string, rec models.RejectionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejectErrs = append(r.rejectErrs, ctx.Err())
	if ctx.Err() != nil {
		return ctx.Err()
	}
	r.rejections = append(r.rejections, rec)
	return nil
}

// RejectionContextErrs reports ctx.Err() as seen by each PostRejection call.
func (r *fakeResults) RejectionContextErrs() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.rejectErrs...)
}

func (r *fakeResults) Rejections() []models.RejectionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.RejectionRecord(nil), r.rejections...)
}

func (r *fakeResults) Completions() []models.CompletionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.CompletionRecord(nil), r.completions...)
}

func nullLog() *logrus.Entry {
	l, _ := test.NewNullLogger()
	return logrus.NewEntry(l)
}

type harness struct {
	t         *testing.T
	clock     *fakeClock
	host      *fakeHost
	devices   *fakeDevices
	display   *fakeDisplay
	recorders *fakeRecorders
	uploader  *fakeUploader
	results   *fakeResults
	cache     *cache.MemoryCache
	markers   *MarkerStore
	completed []*models.InterviewResult
	started   int
	session   *Session
}

func questions(n int) []models.Question {
	out := make([]models.Question, n)
	for i := range out {
		out[i] = models.Question{ID: "q" + string(rune('1'+i)), Position: i, Text: "Tell us about yourself"}
	}
	return out
}

func newHarness(t *testing.T, nQuestions int) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		clock:     newFakeClock(),
		host:      &fakeHost{},
		devices:   &fakeDevices{},
		display:   &fakeDisplay{},
		recorders: newFakeRecorders(RecorderLadder[0].MimeType),
		uploader:  &fakeUploader{},
		results:   &fakeResults{},
		cache:     cache.NewMemoryCache(),
	}
	h.markers = NewMarkerStore(h.cache, "cand-1", 0)
	h.session = h.build(nQuestions)
	return h
}

func (h *harness) build(nQuestions int) *Session {
	s, err := NewSession(Config{
		InterviewID: "iv-1",
		CandidateID: "cand-1",
		Questions:   questions(nQuestions),
		Now:         h.clock.Now,
		Logger:      nullLog(),
	}, Deps{
		Host:      h.host,
		Media:     h.devices,
		Display:   h.display,
		Recorders: h.recorders,
		Markers:   h.markers,
		Uploader:  h.uploader,
		Results:   h.results,
		OnStart:   func() { h.started++ },
		OnComplete: func(r *models.InterviewResult) {
			h.completed = append(h.completed, r)
		},
	})
	if err != nil {
		h.t.Fatalf("NewSession: %v", err)
	}
	return s
}

// startInterview drives a fresh session from device check into the interview.
func (h *harness) startInterview() {
	h.t.Helper()
	ctx := context.Background()
	s := h.session
	if s.Open(ctx) {
		h.t.Fatal("unexpected crash recovery")
	}
	s.UpdateDevice(1440, "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) AppleWebKit/605.1.15")
	mustNoErr(h.t, s.AdvanceToSetup(ctx))
	mustNoErr(h.t, s.AcquireMedia(ctx))
	mustNoErr(h.t, s.EnterFullscreen(ctx))
	mustNoErr(h.t, s.BeginInterview(ctx))
	if s.State().Phase != PhaseInterview {
		h.t.Fatalf("phase = %s, want interview", s.State().Phase)
	}
}

func mustNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
