package proctor

type Phase string

const (
	PhaseDeviceCheck Phase = "device-check"
	PhaseSetup       Phase = "setup"
	PhaseInterview   Phase = "interview"
	PhaseComplete    Phase = "complete"
)

// Termination is orthogonal to Phase. Once it leaves TerminationActive no
// further phase transition happens.
type Termination string

const (
	TerminationActive    Termination = "active"
	TerminationCancelled Termination = "cancelled"
	TerminationRejected  Termination = "rejected"
)

type ExitKind string

const (
	ExitRejected    ExitKind = "rejected"
	ExitCancelled   ExitKind = "cancelled"
	ExitHardRefresh ExitKind = "hard-refresh"
)

// ExitReason is the single navigation instruction handed to the Host.
type ExitReason struct {
	Kind    ExitKind `json:"kind"`
	Message string   `json:"message"`
}

type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
	NoticeModal   NoticeLevel = "modal"
)

type Notice struct {
	Level   NoticeLevel `json:"level"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
}

// Notice codes.
const (
	CodeDeviceUnsupported  = "device_unsupported"
	CodeViolationWarning   = "violation_warning"
	CodeFullscreenRequired = "fullscreen_required"
	CodePermissionDenied   = "permission_denied"
	CodeFullscreenFailed   = "fullscreen_failed"
	CodeRecordingFailed    = "recording_failed"
	CodeUploadProgress     = "upload_progress"
	CodeUploadSkipped      = "upload_skipped"
	CodeSubmissionFailed   = "submission_failed"
	CodeRejected           = "rejected"
)

// State is a read-only snapshot pushed to the Host after every transition.
type State struct {
	InterviewID    string       `json:"interviewId"`
	Phase          Phase        `json:"phase"`
	Termination    Termination  `json:"termination"`
	QuestionIndex  int          `json:"questionIndex"`
	QuestionCount  int          `json:"questionCount"`
	DesktopClass   bool         `json:"desktopClass"`
	CameraActive   bool         `json:"cameraActive"`
	MicActive      bool         `json:"microphoneActive"`
	Fullscreen     bool         `json:"fullscreen"`
	Recording      bool         `json:"recording"`
	Monitoring     bool         `json:"monitoring"`
	InputPolicy    *InputPolicy `json:"inputPolicy,omitempty"`
	ViolationCount int          `json:"violationCount"`
	Submitting     bool         `json:"submitting"`
	SubmitFailed   bool         `json:"submitFailed"`
}

// Host receives everything the candidate should see.
type Host interface {
	StateChanged(State)
	Notify(Notice)
	// Exit is called at most once per session.
	Exit(ExitReason)
}
