package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/yooproctor/internal/models"
	"github.com/yoockh/yooproctor/internal/proctor"
	"github.com/yoockh/yooproctor/internal/utils"
)

// DefaultCommandTimeout bounds how long a browser command may go unanswered.
const DefaultCommandTimeout = 30 * time.Second

// Controller is the session surface the bridge drives. *proctor.Session
// satisfies it.
type Controller interface {
	Open(ctx context.Context) bool
	UpdateDevice(viewportWidth int, userAgent string)
	AdvanceToSetup(ctx context.Context) error
	AcquireMedia(ctx context.Context) error
	EnterFullscreen(ctx context.Context) error
	BeginInterview(ctx context.Context) error
	HandleSignal(ctx context.Context, sig proctor.Signal) proctor.Verdict
	NextQuestion(ctx context.Context) error
	RetrySubmission(ctx context.Context) error
	Cancel(ctx context.Context, reason, message string) error
	Close(ctx context.Context, clean bool)
	State() proctor.State
	CurrentQuestion() models.Question
}

type Options struct {
	CommandTimeout time.Duration
	Logger         *logrus.Entry
	Now            func() time.Time
}

// Bridge connects one browser to one session. It implements the browser
// capabilities the session needs (proctor.Host, proctor.MediaDevices,
// proctor.Display and proctor.RecorderFactory) as commands over the
// transport.
//
// A reader goroutine routes replies, chunks and track updates directly so
// that session calls blocked on a command can always make progress; every
// other frame is queued for the dispatcher, which is the only caller of the
// controller.
type Bridge struct {
	t       Transport
	timeout time.Duration
	log     *logrus.Entry
	now     func() time.Time

	writeMu sync.Mutex

	mu           sync.Mutex
	ctrl         Controller
	pending      map[string]chan ReplyPayload
	recorders    map[string]*clientRecorder
	streams      map[string]*clientStream
	supported    map[string]bool
	userAgent    string
	lastQuestion int
	exited       bool
	left         bool

	inbox    []Envelope
	inboxSig chan struct{}
	done     chan struct{}
	readErr  error
}

func New(t Transport, opts Options) *Bridge {
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Bridge{
		t:            t,
		timeout:      opts.CommandTimeout,
		log:          opts.Logger,
		now:          opts.Now,
		pending:      map[string]chan ReplyPayload{},
		recorders:    map[string]*clientRecorder{},
		streams:      map[string]*clientStream{},
		supported:    map[string]bool{},
		lastQuestion: -1,
		inboxSig:     make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
}

// Serve runs crash recovery, then pumps frames until the browser
// disconnects, sends leave, or ctx ends. It always closes the session and
// the transport before returning.
func (b *Bridge) Serve(ctx context.Context, ctrl Controller) error {
	b.mu.Lock()
	b.ctrl = ctrl
	b.mu.Unlock()

	go b.readLoop()

	ctrl.Open(ctx)

	var err error
loop:
	for {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break loop
		case <-b.done:
			// handle whatever arrived before the disconnect
			if b.drain(ctx) {
				break loop
			}
			err = b.readErr
			break loop
		case <-b.inboxSig:
			if b.drain(ctx) {
				break loop
			}
		}
	}

	clean := b.cleanClose(ctrl.State())
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	defer cancel()
	ctrl.Close(closeCtx, clean)
	_ = b.t.Close()

	b.log.WithField("clean", clean).Info("proctor connection closed")
	if isNormalClose(err) {
		return nil
	}
	return err
}

// cleanClose decides whether the session marker may be cleared. A drop in
// setup or interview without a terminal outcome counts as an abnormal end.
func (b *Bridge) cleanClose(st proctor.State) bool {
	b.mu.Lock()
	left, exited := b.left, b.exited
	b.mu.Unlock()
	if left || exited {
		return true
	}
	if st.Termination != proctor.TerminationActive || st.Phase == proctor.PhaseComplete {
		return true
	}
	return st.Phase == proctor.PhaseDeviceCheck
}

// drain dispatches queued frames. It reports true once the browser has left.
func (b *Bridge) drain(ctx context.Context) bool {
	for {
		b.mu.Lock()
		if len(b.inbox) == 0 {
			b.mu.Unlock()
			return false
		}
		env := b.inbox[0]
		b.inbox = b.inbox[1:]
		b.mu.Unlock()

		if b.dispatch(ctx, env) {
			return true
		}
	}
}

func (b *Bridge) enqueue(env Envelope) {
	b.mu.Lock()
	b.inbox = append(b.inbox, env)
	b.mu.Unlock()
	select {
	case b.inboxSig <- struct{}{}:
	default:
	}
}

func (b *Bridge) readLoop() {
	defer close(b.done)
	for {
		var env Envelope
		if err := b.t.ReadJSON(&env); err != nil {
			var se *json.SyntaxError
			var te *json.UnmarshalTypeError
			if errors.As(err, &se) || errors.As(err, &te) {
				b.sendError(utils.E(utils.CodeInvalidArgument, "Bridge.readLoop", "invalid json", err))
				continue
			}
			b.readErr = err
			return
		}

		switch env.Type {
		case MsgReply:
			b.resolve(env)
		case MsgChunk:
			b.routeChunk(env)
		case MsgTracks:
			b.routeTracks(env)
		case MsgSignal:
			b.enqueue(b.stampSignal(env))
		case MsgHello, MsgResize, MsgAction:
			b.enqueue(env)
		default:
			b.sendError(utils.E(utils.CodeInvalidArgument, "Bridge.readLoop", "unknown message type", nil))
		}
	}
}

// stampSignal records arrival time so debounce is measured on the server
// clock, not on queue position or a client-supplied timestamp.
func (b *Bridge) stampSignal(env Envelope) Envelope {
	var sig proctor.Signal
	if err := json.Unmarshal(env.Payload, &sig); err != nil {
		return env
	}
	sig.At = b.now()
	raw, err := json.Marshal(sig)
	if err != nil {
		return env
	}
	env.Payload = raw
	return env
}

func (b *Bridge) dispatch(ctx context.Context, env Envelope) (left bool) {
	const op = "Bridge.dispatch"
	b.mu.Lock()
	ctrl := b.ctrl
	b.mu.Unlock()
	log := b.log.WithField("msg_type", env.Type)

	switch env.Type {
	case MsgHello:
		var p HelloPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			b.sendError(utils.E(utils.CodeInvalidArgument, op, "invalid hello payload", err))
			return false
		}
		b.mu.Lock()
		b.userAgent = p.UserAgent
		b.supported = make(map[string]bool, len(p.SupportedMimeTypes))
		for _, m := range p.SupportedMimeTypes {
			b.supported[m] = true
		}
		b.mu.Unlock()
		ctrl.UpdateDevice(p.ViewportWidth, p.UserAgent)

	case MsgResize:
		var p ResizePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			b.sendError(utils.E(utils.CodeInvalidArgument, op, "invalid resize payload", err))
			return false
		}
		b.mu.Lock()
		ua := b.userAgent
		b.mu.Unlock()
		ctrl.UpdateDevice(p.ViewportWidth, ua)

	case MsgSignal:
		var sig proctor.Signal
		if err := json.Unmarshal(env.Payload, &sig); err != nil {
			b.sendError(utils.E(utils.CodeInvalidArgument, op, "invalid signal payload", err))
			return false
		}
		v := ctrl.HandleSignal(ctx, sig)
		if env.ID != "" {
			b.send(outbound{Type: MsgVerdict, ID: env.ID, Payload: VerdictPayload{Prevent: v.Prevent, Count: v.Count}})
		}

	case MsgAction:
		var a ActionPayload
		if err := json.Unmarshal(env.Payload, &a); err != nil {
			b.sendError(utils.E(utils.CodeInvalidArgument, op, "invalid action payload", err))
			return false
		}
		log = log.WithField("action", a.Name)
		var err error
		switch a.Name {
		case ActAdvanceSetup:
			err = ctrl.AdvanceToSetup(ctx)
		case ActAcquireMedia:
			err = ctrl.AcquireMedia(ctx)
		case ActEnterFullscreen, ActReenterFullscreen:
			err = ctrl.EnterFullscreen(ctx)
		case ActBeginInterview:
			err = ctrl.BeginInterview(ctx)
		case ActNextQuestion:
			err = ctrl.NextQuestion(ctx)
		case ActRetrySubmission:
			err = ctrl.RetrySubmission(ctx)
		case ActCancel:
			err = ctrl.Cancel(ctx, a.Reason, a.Message)
		case ActLeave:
			st := ctrl.State()
			if st.Phase == proctor.PhaseInterview && st.Termination == proctor.TerminationActive && !st.Submitting {
				err = ctrl.Cancel(ctx, proctor.ReasonBrowserExit, "")
			}
			b.mu.Lock()
			b.left = true
			b.mu.Unlock()
			if err != nil {
				log.WithError(err).Warn("cancel on leave failed")
			}
			return true
		default:
			err = utils.E(utils.CodeInvalidArgument, op, "unknown action", nil)
		}
		if err != nil {
			log.WithError(err).Debug("action failed")
			b.sendError(err)
		}
	}
	return false
}
