package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/yooproctor/internal/models"
	"github.com/yoockh/yooproctor/internal/proctor"
	"github.com/yoockh/yooproctor/internal/utils"
)

func (b *Bridge) send(m outbound) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if err := b.t.WriteJSON(m); err != nil {
		b.log.WithError(err).WithField("msg_type", m.Type).Debug("write to browser failed")
	}
}

func (b *Bridge) sendError(err error) {
	msg := utils.MessageOf(err)
	if msg == "" {
		msg = err.Error()
	}
	b.send(outbound{Type: MsgError, Payload: errorPayload{Code: string(utils.CodeOf(err)), Message: msg}})
}

// call sends a correlated command and waits for the browser's reply.
func (b *Bridge) call(ctx context.Context, name string, args any, out any) error {
	op := "Bridge." + name
	id := uuid.NewString()
	ch := make(chan ReplyPayload, 1)

	b.mu.Lock()
	b.pending[id] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	b.send(outbound{Type: MsgCommand, ID: id, Payload: CommandPayload{Name: name, Args: args}})

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	select {
	case r := <-ch:
		if !r.OK {
			return replyError(op, r.Error)
		}
		if out != nil && len(r.Data) > 0 {
			if err := json.Unmarshal(r.Data, out); err != nil {
				return utils.E(utils.CodeInternal, op, "malformed reply from browser", err)
			}
		}
		return nil
	case <-ctx.Done():
		return utils.E(utils.CodeTimeout, op, "the browser did not respond in time", ctx.Err())
	case <-b.done:
		return utils.E(utils.CodeUnavailable, op, "the browser disconnected", nil)
	}
}

// notify sends an uncorrelated command.
func (b *Bridge) notify(name string, args any) {
	b.send(outbound{Type: MsgCommand, Payload: CommandPayload{Name: name, Args: args}})
}

func (b *Bridge) resolve(env Envelope) {
	var r ReplyPayload
	if err := json.Unmarshal(env.Payload, &r); err != nil {
		b.log.WithError(err).Warn("malformed reply")
		return
	}
	b.mu.Lock()
	ch, ok := b.pending[env.ID]
	b.mu.Unlock()
	if !ok {
		b.log.WithField("id", env.ID).Debug("reply for unknown command")
		return
	}
	select {
	case ch <- r:
	default:
	}
}

func replyError(op string, e *ReplyError) error {
	if e == nil {
		return utils.E(utils.CodeInternal, op, "the browser reported a failure", nil)
	}
	msg := e.Message
	if msg == "" {
		msg = e.Name
	}
	code := utils.CodeInternal
	switch e.Name {
	case "NotAllowedError", "SecurityError", "PermissionDeniedError":
		code = utils.CodeForbidden
	case "NotFoundError", "NotReadableError", "OverconstrainedError", "NotSupportedError", "AbortError":
		code = utils.CodeUnavailable
	case "TypeError", "InvalidStateError":
		code = utils.CodeInvalidArgument
	}
	return utils.E(code, op, msg, errors.New(e.Name))
}

func (b *Bridge) routeChunk(env Envelope) {
	var c ChunkPayload
	if err := json.Unmarshal(env.Payload, &c); err != nil {
		b.log.WithError(err).Warn("malformed chunk")
		return
	}
	b.mu.Lock()
	rec, ok := b.recorders[c.RecorderID]
	b.mu.Unlock()
	if !ok {
		b.log.WithField("recorder_id", c.RecorderID).Debug("chunk for unknown recorder")
		return
	}
	rec.deliver(c.Seq, c.Data)
}

func (b *Bridge) routeTracks(env Envelope) {
	var t TracksPayload
	if err := json.Unmarshal(env.Payload, &t); err != nil {
		b.log.WithError(err).Warn("malformed tracks update")
		return
	}
	b.mu.Lock()
	s, ok := b.streams[t.StreamID]
	b.mu.Unlock()
	if ok {
		s.set(t.Video, t.Audio)
	}
}

func isNormalClose(err error) bool {
	return err == nil ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, context.Canceled) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

// proctor.Host

func (b *Bridge) StateChanged(st proctor.State) {
	b.send(outbound{Type: MsgState, Payload: st})

	if st.Phase != proctor.PhaseInterview || st.Termination != proctor.TerminationActive {
		return
	}
	b.mu.Lock()
	changed := st.QuestionIndex != b.lastQuestion
	b.lastQuestion = st.QuestionIndex
	ctrl := b.ctrl
	b.mu.Unlock()
	if !changed || ctrl == nil {
		return
	}
	q := ctrl.CurrentQuestion()
	b.send(outbound{Type: MsgQuestion, Payload: QuestionPayload{
		Index:    st.QuestionIndex,
		Count:    st.QuestionCount,
		ID:       q.ID,
		Text:     q.Text,
		Category: q.Category,
	}})
}

func (b *Bridge) Notify(n proctor.Notice) {
	b.send(outbound{Type: MsgNotice, Payload: n})
}

func (b *Bridge) Exit(r proctor.ExitReason) {
	b.mu.Lock()
	b.exited = true
	b.mu.Unlock()
	b.send(outbound{Type: MsgExit, Payload: r})
}

// Completed forwards the finalized record; wire it as the session's
// completion callback.
func (b *Bridge) Completed(res *models.InterviewResult) {
	b.send(outbound{Type: MsgCompleted, Payload: res})
}

// proctor.MediaDevices

type mediaReply struct {
	StreamID string `json:"streamId"`
	Video    bool   `json:"video"`
	Audio    bool   `json:"audio"`
}

func (b *Bridge) GetUserMedia(ctx context.Context, c proctor.MediaConstraints) (proctor.CaptureStream, error) {
	var r mediaReply
	if err := b.call(ctx, CmdGetUserMedia, c, &r); err != nil {
		return nil, err
	}
	if r.StreamID == "" {
		return nil, utils.E(utils.CodeUnavailable, "Bridge.GetUserMedia", "the browser returned no stream", nil)
	}
	s := &clientStream{b: b, id: r.StreamID, video: r.Video, audio: r.Audio}
	b.mu.Lock()
	b.streams[s.id] = s
	b.mu.Unlock()
	return s, nil
}

type clientStream struct {
	b  *Bridge
	id string

	mu      sync.Mutex
	video   bool
	audio   bool
	stopped bool
}

func (s *clientStream) ID() string { return s.id }

func (s *clientStream) VideoActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.video && !s.stopped
}

func (s *clientStream) AudioActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audio && !s.stopped
}

func (s *clientStream) set(video, audio bool) {
	s.mu.Lock()
	s.video, s.audio = video, audio
	s.mu.Unlock()
}

func (s *clientStream) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.b.mu.Lock()
	delete(s.b.streams, s.id)
	s.b.mu.Unlock()
	s.b.notify(CmdStopTracks, streamArgs{StreamID: s.id})
}

// proctor.Display

func (b *Bridge) RequestFullscreen(ctx context.Context) error {
	return b.call(ctx, CmdRequestFullscreen, nil, nil)
}

func (b *Bridge) ExitFullscreen(ctx context.Context) error {
	return b.call(ctx, CmdExitFullscreen, nil, nil)
}

// proctor.RecorderFactory

func (b *Bridge) IsTypeSupported(mimeType string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.supported[mimeType]
}

func (b *Bridge) NewRecorder(stream proctor.CaptureStream, p proctor.RecorderProfile, sink proctor.ChunkSink) (proctor.MediaRecorder, error) {
	if stream == nil {
		return nil, utils.E(utils.CodeInvalidArgument, "Bridge.NewRecorder", "no stream to record", nil)
	}
	return &clientRecorder{b: b, id: uuid.NewString(), streamID: stream.ID(), profile: p, sink: sink}, nil
}

type clientRecorder struct {
	b        *Bridge
	id       string
	streamID string
	profile  proctor.RecorderProfile
	sink     proctor.ChunkSink

	mu      sync.Mutex
	lastSeq int64
}

func (r *clientRecorder) Start(ctx context.Context, timeslice time.Duration) error {
	r.b.mu.Lock()
	r.b.recorders[r.id] = r
	r.b.mu.Unlock()

	err := r.b.call(ctx, CmdStartRecorder, startRecorderArgs{
		RecorderID:  r.id,
		StreamID:    r.streamID,
		Profile:     r.profile,
		TimesliceMs: durationMs(timeslice),
	}, nil)
	if err != nil {
		r.forget()
	}
	return err
}

// Stop returns once the browser confirms the recorder stopped. The browser
// sends its final chunk before that reply, and the reader delivers frames
// in order, so the sink already holds every chunk.
func (r *clientRecorder) Stop(ctx context.Context) error {
	defer r.forget()
	return r.b.call(ctx, CmdStopRecorder, recorderArgs{RecorderID: r.id}, nil)
}

func (r *clientRecorder) forget() {
	r.b.mu.Lock()
	delete(r.b.recorders, r.id)
	r.b.mu.Unlock()
}

func (r *clientRecorder) deliver(seq int64, data []byte) {
	r.mu.Lock()
	if seq != 0 && seq <= r.lastSeq {
		r.mu.Unlock()
		r.b.log.WithField("seq", seq).Warn("duplicate recorder chunk dropped")
		return
	}
	if seq > r.lastSeq+1 && r.lastSeq != 0 {
		r.b.log.WithFields(logrus.Fields{"seq": seq, "last_seq": r.lastSeq}).Warn("recorder chunk gap")
	}
	if seq != 0 {
		r.lastSeq = seq
	}
	r.mu.Unlock()
	r.sink(data)
}
