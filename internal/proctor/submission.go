package proctor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/yooproctor/internal/models"
	"github.com/yoockh/yooproctor/internal/utils"
)

const (
	// MaxUploadBytes is the hard ceiling for a recording upload.
	MaxUploadBytes = 200 << 20
	// LargeRecordingBytes triggers a slow-upload notice.
	LargeRecordingBytes = 50 << 20
)

type Uploader interface {
	UploadRecording(ctx context.Context, interviewID string, asset Asset) (url string, err error)
}

type ResultPoster interface {
	PostCompletion(ctx context.Context, interviewID string, rec models.CompletionRecord) (*models.InterviewResult, error)
	PostRejection(ctx context.Context, interviewID string, rec models.RejectionRecord) error
}

type SubmissionPipeline struct {
	uploader Uploader
	results  ResultPoster
	notify   func(Notice)
	log      *logrus.Entry
	now      func() time.Time
}

func NewSubmissionPipeline(uploader Uploader, results ResultPoster, notify func(Notice), log *logrus.Entry, now func() time.Time) *SubmissionPipeline {
	if notify == nil {
		notify = func(Notice) {}
	}
	if now == nil {
		now = time.Now
	}
	return &SubmissionPipeline{uploader: uploader, results: results, notify: notify, log: log, now: now}
}

// Upload sends the asset and returns its reference. An empty asset is not
// uploaded. An asset over MaxUploadBytes is refused before any request is
// made; both cases return an empty reference and no error.
func (p *SubmissionPipeline) Upload(ctx context.Context, interviewID string, asset Asset, elapsed time.Duration) (string, error) {
	size := asset.Size()
	if size == 0 {
		p.log.Warn("recording is empty, skipping upload")
		return "", nil
	}
	if size > MaxUploadBytes {
		p.log.WithField("size_bytes", size).Warn("recording exceeds upload ceiling")
		p.notify(Notice{
			Level:   NoticeError,
			Code:    CodeUploadSkipped,
			Message: fmt.Sprintf("Your recording is %s, above the %s limit, so it was not uploaded. Your answers are still being submitted.", formatMB(size), formatMB(MaxUploadBytes)),
		})
		return "", nil
	}

	msg := fmt.Sprintf("Uploading %s of video (%s recorded)...", formatMB(size), formatDuration(elapsed))
	if size > LargeRecordingBytes {
		msg = fmt.Sprintf("Uploading a large recording (%s, %s). This may take several minutes, please keep this page open.", formatMB(size), formatDuration(elapsed))
	}
	p.notify(Notice{Level: NoticeInfo, Code: CodeUploadProgress, Message: msg})

	start := p.now()
	url, err := p.uploader.UploadRecording(ctx, interviewID, asset)
	if err != nil {
		return "", err
	}
	p.log.WithFields(logrus.Fields{
		"size_bytes": size,
		"upload_ms":  p.now().Sub(start).Milliseconds(),
		"asset_mime": asset.MimeType,
	}).Info("recording uploaded")
	return url, nil
}

func (p *SubmissionPipeline) Complete(ctx context.Context, interviewID, videoURL string, elapsed time.Duration, log []models.Violation) (*models.InterviewResult, error) {
	return p.results.PostCompletion(ctx, interviewID, models.CompletionRecord{
		TotalDurationSeconds: seconds(elapsed),
		VideoURL:             videoURL,
		ViolationLog:         nonNil(log),
		ViolationCount:       len(log),
		ForcedSubmission:     false,
	})
}

// Reject posts the rejection record immediately; no recording is kept.
func (p *SubmissionPipeline) Reject(ctx context.Context, interviewID string, elapsed time.Duration, log []models.Violation) error {
	return p.results.PostRejection(ctx, interviewID, models.RejectionRecord{
		Status:               models.ResultRejected,
		RejectionReason:      rejectionReason(log),
		TotalDurationSeconds: seconds(elapsed),
		ViolationLog:         nonNil(log),
		ViolationCount:       len(log),
		CompletedAt:          p.now().UTC().Format(time.RFC3339),
	})
}

func rejectionReason(log []models.Violation) string {
	reasons := make([]string, 0, len(log))
	for _, v := range log {
		reasons = append(reasons, v.Reason)
	}
	return fmt.Sprintf("Interview terminated after %d proctoring violations: %s", len(log), strings.Join(reasons, "; "))
}

// UserMessage turns a submission error into wording for the candidate,
// keeping the server's own message when it sent one.
func UserMessage(err error) string {
	server := utils.MessageOf(err)
	var base string
	switch utils.CodeOf(err) {
	case utils.CodeTooLarge:
		base = fmt.Sprintf("The recording is too large to upload (limit %s).", formatMB(MaxUploadBytes))
	case utils.CodeTimeout:
		base = "The upload timed out. Check your connection and try submitting again."
	case utils.CodeUnavailable:
		base = "The server is busy right now. Please wait a moment and try submitting again."
	default:
		if server != "" {
			return "Submission failed: " + server
		}
		return "We could not reach the server. Check your internet connection and try submitting again."
	}
	if server != "" {
		return base + " (" + server + ")"
	}
	return base
}

func seconds(d time.Duration) int64 {
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

func nonNil(v []models.Violation) []models.Violation {
	if v == nil {
		return []models.Violation{}
	}
	return v
}

func formatMB(n int) string {
	return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	m := int(d / time.Minute)
	s := int((d % time.Minute) / time.Second)
	if m == 0 {
		return fmt.Sprintf("%ds", s)
	}
	return fmt.Sprintf("%dm %02ds", m, s)
}
