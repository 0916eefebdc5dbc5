package bridge

import (
	"encoding/json"
	"time"

	"github.com/yoockh/yooproctor/internal/proctor"
)

// Client -> server message types.
const (
	MsgHello  = "hello"
	MsgResize = "resize"
	MsgSignal = "signal"
	MsgReply  = "reply"
	MsgChunk  = "chunk"
	MsgTracks = "tracks"
	MsgAction = "action"
)

// Server -> client message types.
const (
	MsgCommand   = "command"
	MsgState     = "state"
	MsgQuestion  = "question"
	MsgNotice    = "notice"
	MsgVerdict   = "verdict"
	MsgExit      = "exit"
	MsgCompleted = "completed"
	MsgError     = "error"
)

// Commands the server asks the browser to perform.
const (
	CmdGetUserMedia      = "get_user_media"
	CmdRequestFullscreen = "request_fullscreen"
	CmdExitFullscreen    = "exit_fullscreen"
	CmdStartRecorder     = "start_recorder"
	CmdStopRecorder      = "stop_recorder"
	CmdStopTracks        = "stop_tracks"
)

// Candidate actions.
const (
	ActAdvanceSetup      = "advance_setup"
	ActAcquireMedia      = "acquire_media"
	ActEnterFullscreen   = "enter_fullscreen"
	ActReenterFullscreen = "reenter_fullscreen"
	ActBeginInterview    = "begin_interview"
	ActNextQuestion      = "next_question"
	ActRetrySubmission   = "retry_submission"
	ActCancel            = "cancel"
	ActLeave             = "leave"
)

// Envelope is the inbound frame.
type Envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outbound struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

type HelloPayload struct {
	ViewportWidth      int      `json:"viewportWidth"`
	UserAgent          string   `json:"userAgent"`
	SupportedMimeTypes []string `json:"supportedMimeTypes"`
}

type ResizePayload struct {
	ViewportWidth int `json:"viewportWidth"`
}

type ActionPayload struct {
	Name    string `json:"name"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

type CommandPayload struct {
	Name string `json:"name"`
	Args any    `json:"args,omitempty"`
}

type ReplyError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

type ReplyPayload struct {
	OK    bool            `json:"ok"`
	Error *ReplyError     `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ChunkPayload carries one recorder timeslice; Data is base64 on the wire.
type ChunkPayload struct {
	RecorderID string `json:"recorderId"`
	Seq        int64  `json:"seq"`
	Data       []byte `json:"data"`
}

type TracksPayload struct {
	StreamID string `json:"streamId"`
	Video    bool   `json:"video"`
	Audio    bool   `json:"audio"`
}

type streamArgs struct {
	StreamID string `json:"streamId"`
}

type startRecorderArgs struct {
	RecorderID  string                  `json:"recorderId"`
	StreamID    string                  `json:"streamId"`
	Profile     proctor.RecorderProfile `json:"profile"`
	TimesliceMs int64                   `json:"timesliceMs"`
}

type recorderArgs struct {
	RecorderID string `json:"recorderId"`
}

type VerdictPayload struct {
	Prevent bool `json:"prevent"`
	Count   int  `json:"count"`
}

type QuestionPayload struct {
	Index    int    `json:"index"`
	Count    int    `json:"count"`
	ID       string `json:"id"`
	Text     string `json:"text"`
	Category string `json:"category,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func durationMs(d time.Duration) int64 { return d.Milliseconds() }
