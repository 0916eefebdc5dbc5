package proctor

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/yooproctor/internal/models"
	"github.com/yoockh/yooproctor/internal/utils"
)

const (
	msgHardRefresh  = "Your interview was cancelled because the page was reloaded or closed during the interview."
	msgUserCancel   = "You cancelled the interview."
	msgRejected     = "Your interview has been terminated due to multiple proctoring violations."
	msgWarning      = "Proctoring violation recorded. One more violation will cancel your interview."
	msgFullscreen   = "You left fullscreen mode. Return to fullscreen to continue your interview."
	msgNotDesktop   = "This interview must be taken on a desktop or laptop computer."
	msgNotReady     = "Camera, microphone and fullscreen mode must all be active before the interview can start."
)

// Terminal paths budget server writes and client teardown separately.
var (
	storeTimeout    = 10 * time.Second
	teardownTimeout = 10 * time.Second
)

type Config struct {
	InterviewID string
	CandidateID string
	Questions   []models.Question
	// RedirectDelay postpones Host.Exit after a rejection so the candidate
	// can read the notice. Zero exits immediately.
	RedirectDelay time.Duration
	Now           func() time.Time
	Logger        *logrus.Entry
}

type Deps struct {
	Host      Host
	Media     MediaDevices
	Display   Display
	Recorders RecorderFactory
	Markers   *MarkerStore
	Uploader  Uploader
	Results   ResultPoster
	// Archiver is optional.
	Archiver ChunkArchiver
	// OnStart runs once when the interview phase begins.
	OnStart func()
	// OnComplete runs once after a successful normal completion.
	OnComplete func(*models.InterviewResult)
}

// Session is the proctoring state machine for one candidate connection.
type Session struct {
	cfg        Config
	host       Host
	markers    *MarkerStore
	onStart    func()
	onComplete func(*models.InterviewResult)
	log        *logrus.Entry
	now        func() time.Time

	media      *MediaEngine
	screen     *FullscreenController
	violations *ViolationEngine
	recording  *RecordingPipeline
	submission *SubmissionPipeline

	mu          sync.Mutex
	opened      bool
	closed      bool
	phase       Phase
	termination Termination
	questionIdx int
	desktop     bool
	starting    bool
	startedAt   time.Time
	// submitting is set once, when a terminal path begins, and never reset.
	// Every violation callback and question action is a no-op afterwards.
	submitting   bool
	submitFailed bool
	elapsed      time.Duration
	asset        *Asset
	videoURL     string
	uploaded     bool

	exitOnce  sync.Once
	exitTimer *time.Timer
}

func NewSession(cfg Config, deps Deps) (*Session, error) {
	const op = "proctor.NewSession"

	if cfg.InterviewID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "interview id is required", nil)
	}
	if len(cfg.Questions) == 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "interview has no questions", nil)
	}
	if deps.Host == nil || deps.Media == nil || deps.Display == nil || deps.Recorders == nil ||
		deps.Markers == nil || deps.Uploader == nil || deps.Results == nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "missing session dependency", nil)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	log := cfg.Logger.WithFields(logrus.Fields{
		"interview_id": cfg.InterviewID,
		"candidate_id": cfg.CandidateID,
	})

	s := &Session{
		cfg:         cfg,
		host:        deps.Host,
		markers:     deps.Markers,
		onStart:     deps.OnStart,
		onComplete:  deps.OnComplete,
		log:         log,
		now:         cfg.Now,
		media:       NewMediaEngine(deps.Media),
		screen:      NewFullscreenController(deps.Display),
		violations:  NewViolationEngine(cfg.Now),
		recording:   NewRecordingPipeline(deps.Recorders, deps.Archiver, log),
		phase:       PhaseDeviceCheck,
		termination: TerminationActive,
	}
	s.submission = NewSubmissionPipeline(deps.Uploader, deps.Results, s.notify, log, cfg.Now)
	return s, nil
}

// Open runs crash recovery and must be called before anything else. It
// reports whether the session was cancelled because a marker from an
// earlier, abnormally ended load of this interview was found.
func (s *Session) Open(ctx context.Context) bool {
	m, found, err := s.markers.Load(ctx)
	if err != nil {
		s.log.WithError(err).Warn("session marker unavailable")
	}

	s.mu.Lock()
	s.opened = true
	if !found || !m.Stale(s.cfg.InterviewID) {
		s.unlockAndEmit()
		return false
	}
	s.submitting = true
	s.termination = TerminationCancelled
	s.unlockAndEmit()

	s.log.WithField("marker_phase", m.Phase).Warn("stale session marker, cancelling interview")
	if err := s.markers.Clear(ctx); err != nil {
		s.log.WithError(err).Error("failed to clear session marker")
	}
	if err := s.markers.WriteCancellation(ctx, Cancellation{
		Reason:      ReasonHardRefresh,
		Message:     msgHardRefresh,
		InterviewID: s.cfg.InterviewID,
	}); err != nil {
		s.log.WithError(err).Error("failed to write cancellation notice")
	}
	s.scheduleExit(ExitReason{Kind: ExitHardRefresh, Message: msgHardRefresh}, 0)
	return true
}

// UpdateDevice re-evaluates the device gate, e.g. on resize.
func (s *Session) UpdateDevice(viewportWidth int, userAgent string) {
	s.mu.Lock()
	s.desktop = IsDesktopClass(viewportWidth, userAgent)
	s.unlockAndEmit()
}

func (s *Session) AdvanceToSetup(ctx context.Context) error {
	s.mu.Lock()
	if !s.activeLocked() || s.phase != PhaseDeviceCheck {
		s.mu.Unlock()
		return nil
	}
	if !s.desktop {
		s.mu.Unlock()
		s.notify(Notice{Level: NoticeError, Code: CodeDeviceUnsupported, Message: msgNotDesktop})
		return utils.E(utils.CodeForbidden, "Session.AdvanceToSetup", msgNotDesktop, nil)
	}
	s.phase = PhaseSetup
	s.mu.Unlock()

	s.saveMarker(ctx, PhaseSetup)
	s.emitState()
	return nil
}

func (s *Session) AcquireMedia(ctx context.Context) error {
	s.mu.Lock()
	ok := s.activeLocked() && s.phase == PhaseSetup
	s.mu.Unlock()
	if !ok {
		return nil
	}

	if _, err := s.media.Acquire(ctx); err != nil {
		s.log.WithError(err).Warn("media acquisition failed")
		s.notify(Notice{Level: NoticeError, Code: CodePermissionDenied, Message: utils.MessageOf(err) + ". Allow access in your browser and try again."})
		return err
	}
	s.emitState()
	return nil
}

// EnterFullscreen serves both the setup step and re-entry during the
// interview. Re-entry never changes the violation count.
func (s *Session) EnterFullscreen(ctx context.Context) error {
	s.mu.Lock()
	ok := s.activeLocked() && (s.phase == PhaseSetup || s.phase == PhaseInterview)
	s.mu.Unlock()
	if !ok {
		return nil
	}

	if err := s.screen.Enter(ctx); err != nil {
		s.log.WithError(err).Warn("fullscreen request failed")
		s.notify(Notice{Level: NoticeError, Code: CodeFullscreenFailed, Message: utils.MessageOf(err) + ". Click the button to try again."})
		return err
	}
	s.emitState()
	return nil
}

func (s *Session) BeginInterview(ctx context.Context) error {
	const op = "Session.BeginInterview"

	s.mu.Lock()
	if !s.activeLocked() || s.phase != PhaseSetup || s.starting {
		s.mu.Unlock()
		return nil
	}
	if !s.media.CameraActive() || !s.media.MicrophoneActive() || !s.screen.Active() {
		s.mu.Unlock()
		return utils.E(utils.CodeInvalidArgument, op, msgNotReady, nil)
	}
	s.starting = true
	s.mu.Unlock()

	s.saveMarker(ctx, PhaseInterview)
	err := s.recording.Start(ctx, s.media.Stream())

	s.mu.Lock()
	s.starting = false
	stillActive := s.activeLocked()
	if err != nil {
		s.mu.Unlock()
		s.log.WithError(err).Error("recording failed to start")
		if stillActive {
			s.saveMarker(ctx, PhaseSetup)
		}
		s.notify(Notice{Level: NoticeError, Code: CodeRecordingFailed, Message: utils.MessageOf(err)})
		return err
	}
	if !stillActive {
		s.mu.Unlock()
		s.recording.Discard(ctx)
		return nil
	}
	s.phase = PhaseInterview
	s.startedAt = s.now()
	s.violations.Arm()
	s.unlockAndEmit()

	s.log.Info("interview started")
	if s.onStart != nil {
		s.onStart()
	}
	return nil
}

// HandleSignal feeds one client event through the violation engine and
// escalates on the second logged violation.
func (s *Session) HandleSignal(ctx context.Context, sig Signal) Verdict {
	s.mu.Lock()

	change := FullscreenUnchanged
	switch sig.Kind {
	case SignalFullscreenEnter:
		change = s.screen.Observe(true)
	case SignalFullscreenExit:
		change = s.screen.Observe(false)
	}

	if !s.activeLocked() || s.phase != PhaseInterview ||
		(sig.Kind == SignalFullscreenExit && change != FullscreenUserExited) {
		st := s.snapshotLocked()
		count := s.violations.Count()
		s.mu.Unlock()
		if change != FullscreenUnchanged {
			s.host.StateChanged(st)
		}
		return Verdict{Count: count}
	}

	v := s.violations.Handle(sig)

	var notices []Notice
	reject := false
	if v.Violation != nil {
		s.log.WithFields(logrus.Fields{
			"violation_count": v.Count,
			"reason":          v.Violation.Reason,
		}).Warn("proctoring violation")
		if v.Count >= ViolationLimit {
			reject = s.beginRejectionLocked()
		} else {
			notices = append(notices, Notice{Level: NoticeWarning, Code: CodeViolationWarning, Message: msgWarning})
		}
	}
	if change == FullscreenUserExited && !reject {
		notices = append(notices, Notice{Level: NoticeModal, Code: CodeFullscreenRequired, Message: msgFullscreen})
	}
	s.unlockAndEmit()

	for _, n := range notices {
		s.notify(n)
	}
	if reject {
		s.finishRejection(ctx)
	}
	return v
}

// beginRejectionLocked flips the session to Rejected. It returns false if a
// terminal path already started.
func (s *Session) beginRejectionLocked() bool {
	if s.submitting {
		return false
	}
	s.submitting = true
	s.termination = TerminationRejected
	s.violations.Disarm()
	s.elapsed = s.sinceStartLocked()
	return true
}

func (s *Session) finishRejection(ctx context.Context) {
	base := context.WithoutCancel(ctx)
	s.log.Warn("violation limit reached, rejecting interview")

	s.mu.Lock()
	elapsed := s.elapsed
	s.mu.Unlock()

	rctx, cancel := context.WithTimeout(base, storeTimeout)
	if err := s.submission.Reject(rctx, s.cfg.InterviewID, elapsed, s.violations.Log()); err != nil {
		s.log.WithError(err).Error("rejection record was not accepted")
	}
	cancel()
	s.clearMarker(base)

	tctx, cancel := context.WithTimeout(base, teardownTimeout)
	s.teardown(tctx)
	cancel()

	s.notify(Notice{Level: NoticeError, Code: CodeRejected, Message: msgRejected})
	s.scheduleExit(ExitReason{Kind: ExitRejected, Message: msgRejected}, s.cfg.RedirectDelay)
}

// NextQuestion advances the question index, or submits after the last one.
func (s *Session) NextQuestion(ctx context.Context) error {
	s.mu.Lock()
	if !s.activeLocked() || s.phase != PhaseInterview {
		s.mu.Unlock()
		return nil
	}
	if s.questionIdx < len(s.cfg.Questions)-1 {
		s.questionIdx++
		s.unlockAndEmit()
		return nil
	}

	s.submitting = true
	s.violations.Disarm()
	s.elapsed = s.sinceStartLocked()
	s.unlockAndEmit()

	s.log.Info("last question answered, submitting interview")
	return s.submit(ctx)
}

// RetrySubmission re-attempts a failed normal completion. An asset that was
// already uploaded is not uploaded again.
func (s *Session) RetrySubmission(ctx context.Context) error {
	s.mu.Lock()
	if s.termination != TerminationActive || !s.submitFailed || s.closed {
		s.mu.Unlock()
		return nil
	}
	s.submitFailed = false
	s.unlockAndEmit()
	return s.submit(ctx)
}

func (s *Session) submit(ctx context.Context) error {
	s.mu.Lock()
	asset, uploaded, url, elapsed := s.asset, s.uploaded, s.videoURL, s.elapsed
	s.mu.Unlock()

	if asset == nil {
		if err := s.recording.Stop(ctx); err != nil {
			s.log.WithError(err).Warn("recorder stop failed, submitting buffered chunks")
		}
		a := s.recording.Assemble()
		s.recording.Discard(ctx)
		asset = &a

		s.mu.Lock()
		s.asset = asset
		s.mu.Unlock()
	}

	if !uploaded {
		u, err := s.submission.Upload(ctx, s.cfg.InterviewID, *asset, elapsed)
		if err != nil {
			return s.failSubmission(err)
		}
		url = u

		s.mu.Lock()
		s.videoURL = u
		s.uploaded = true
		s.mu.Unlock()
	}

	res, err := s.submission.Complete(ctx, s.cfg.InterviewID, url, elapsed, s.violations.Log())
	if err != nil {
		return s.failSubmission(err)
	}

	if err := s.markers.Clear(ctx); err != nil {
		s.log.WithError(err).Error("failed to clear session marker")
	}
	s.teardown(ctx)

	s.mu.Lock()
	s.phase = PhaseComplete
	s.asset = nil
	s.unlockAndEmit()

	s.log.WithField("duration_seconds", seconds(elapsed)).Info("interview completed")
	if s.onComplete != nil {
		s.onComplete(res)
	}
	return nil
}

func (s *Session) failSubmission(err error) error {
	s.log.WithError(err).Error("submission failed")
	s.mu.Lock()
	s.submitFailed = true
	s.unlockAndEmit()
	s.notify(Notice{Level: NoticeError, Code: CodeSubmissionFailed, Message: UserMessage(err)})
	return err
}

// Cancel ends the session without uploading or posting anything. The
// cancellation notice it writes keeps the next load's crash check quiet.
func (s *Session) Cancel(ctx context.Context, reason, message string) error {
	s.mu.Lock()
	if !s.activeLocked() {
		s.mu.Unlock()
		return nil
	}
	s.submitting = true
	s.termination = TerminationCancelled
	s.violations.Disarm()
	s.unlockAndEmit()

	if reason == "" {
		reason = ReasonUserCancelled
	}
	if message == "" {
		message = msgUserCancel
	}
	s.log.WithField("reason", reason).Info("interview cancelled")

	base := context.WithoutCancel(ctx)
	s.clearMarker(base)
	wctx, cancel := context.WithTimeout(base, storeTimeout)
	if err := s.markers.WriteCancellation(wctx, Cancellation{Reason: reason, Message: message, InterviewID: s.cfg.InterviewID}); err != nil {
		s.log.WithError(err).Error("failed to write cancellation notice")
	}
	cancel()

	tctx, cancel := context.WithTimeout(base, teardownTimeout)
	defer cancel()
	s.teardown(tctx)
	s.scheduleExit(ExitReason{Kind: ExitCancelled, Message: message}, 0)
	return nil
}

// Close releases client resources when the connection goes away. A clean
// close also clears the session marker; an unclean one leaves it so the
// next load detects the abnormal end.
func (s *Session) Close(ctx context.Context, clean bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.violations.Disarm()
	if s.exitTimer != nil {
		s.exitTimer.Stop()
	}
	s.mu.Unlock()

	s.recording.Discard(ctx)
	s.media.Release()
	if clean {
		if err := s.markers.Clear(ctx); err != nil {
			s.log.WithError(err).Error("failed to clear session marker")
		}
	}
}

// teardown stops the recorder, the capture tracks and fullscreen.
func (s *Session) teardown(ctx context.Context) {
	s.recording.Discard(ctx)
	s.media.Release()
	if err := s.screen.Exit(ctx); err != nil {
		s.log.WithError(err).Warn("fullscreen exit failed")
	}
	s.emitState()
}

func (s *Session) scheduleExit(reason ExitReason, delay time.Duration) {
	s.exitOnce.Do(func() {
		s.log.WithField("exit", reason.Kind).Info("leaving proctored session")
		if delay <= 0 {
			s.host.Exit(reason)
			return
		}
		s.mu.Lock()
		s.exitTimer = time.AfterFunc(delay, func() { s.host.Exit(reason) })
		s.mu.Unlock()
	})
}

func (s *Session) clearMarker(base context.Context) {
	ctx, cancel := context.WithTimeout(base, storeTimeout)
	defer cancel()
	if err := s.markers.Clear(ctx); err != nil {
		s.log.WithError(err).Error("failed to clear session marker")
	}
}

func (s *Session) saveMarker(ctx context.Context, p Phase) {
	if err := s.markers.Save(ctx, SessionMarker{InterviewID: s.cfg.InterviewID, Phase: p}); err != nil {
		s.log.WithError(err).WithField("phase", p).Error("failed to save session marker")
	}
}

func (s *Session) activeLocked() bool {
	return s.opened && !s.closed && s.termination == TerminationActive && !s.submitting
}

func (s *Session) sinceStartLocked() time.Duration {
	if s.startedAt.IsZero() {
		return 0
	}
	return s.now().Sub(s.startedAt)
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) ViolationLog() []models.Violation { return s.violations.Log() }

func (s *Session) CurrentQuestion() models.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Questions[s.questionIdx]
}

func (s *Session) snapshotLocked() State {
	st := State{
		InterviewID:    s.cfg.InterviewID,
		Phase:          s.phase,
		Termination:    s.termination,
		QuestionIndex:  s.questionIdx,
		QuestionCount:  len(s.cfg.Questions),
		DesktopClass:   s.desktop,
		CameraActive:   s.media.CameraActive(),
		MicActive:      s.media.MicrophoneActive(),
		Fullscreen:     s.screen.Active(),
		Recording:      s.recording.Recording(),
		Monitoring:     s.violations.Armed(),
		ViolationCount: s.violations.Count(),
		Submitting:     s.submitting && s.termination == TerminationActive,
		SubmitFailed:   s.submitFailed,
	}
	if st.Monitoring {
		p := DefaultInputPolicy()
		st.InputPolicy = &p
	}
	return st
}

func (s *Session) unlockAndEmit() {
	st := s.snapshotLocked()
	s.mu.Unlock()
	s.host.StateChanged(st)
}

func (s *Session) emitState() {
	s.mu.Lock()
	s.unlockAndEmit()
}

func (s *Session) notify(n Notice) { s.host.Notify(n) }
