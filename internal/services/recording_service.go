package services

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yoockh/yooproctor/internal/proctor"
	"github.com/yoockh/yooproctor/internal/storage"
	"github.com/yoockh/yooproctor/internal/utils"
)

const recordingPrefix = "recordings/"

// RecordingService stores assembled interview recordings. It satisfies
// proctor.Uploader.
type RecordingService interface {
	UploadRecording(ctx context.Context, interviewID string, asset proctor.Asset) (string, error)
	// PlaybackURL returns a short-lived signed URL for a stored recording URL.
	PlaybackURL(ctx context.Context, videoURL string, ttl time.Duration) (string, error)
}

type recordingService struct {
	store storage.Store
}

func NewRecordingService(store storage.Store) RecordingService {
	return &recordingService{store: store}
}

func (s *recordingService) UploadRecording(ctx context.Context, interviewID string, asset proctor.Asset) (string, error) {
	const op = "RecordingService.UploadRecording"

	if interviewID == "" {
		return "", utils.E(utils.CodeInvalidArgument, op, "interview_id is required", nil)
	}
	if asset.Size() == 0 {
		return "", utils.E(utils.CodeInvalidArgument, op, "recording is empty", nil)
	}
	if asset.Size() > proctor.MaxUploadBytes {
		return "", utils.E(utils.CodeTooLarge, op, "recording exceeds the 200 MB limit", nil)
	}
	if s.store == nil {
		return "", utils.E(utils.CodeInternal, op, "recording storage is not configured", nil)
	}

	contentType := asset.MimeType
	if contentType == "" {
		contentType = "video/webm"
	}
	object := ObjectName(interviewID, contentType)

	stored, err := s.store.Upload(ctx, object, contentType, bytes.NewReader(asset.Data))
	if err != nil {
		if utils.MessageOf(err) != "" {
			return "", err
		}
		return "", utils.E(utils.CodeUnavailable, op, "failed to upload recording", err)
	}
	return stored, nil
}

func (s *recordingService) PlaybackURL(ctx context.Context, videoURL string, ttl time.Duration) (string, error) {
	const op = "RecordingService.PlaybackURL"

	object, ok := ObjectFromURL(videoURL)
	if !ok {
		return "", utils.E(utils.CodeNotFound, op, "no recording stored for this interview", nil)
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	signed, err := s.store.SignedGetURL(ctx, object, ttl)
	if err != nil {
		if utils.MessageOf(err) != "" {
			return "", err
		}
		return "", utils.E(utils.CodeUnavailable, op, "failed to sign recording url", err)
	}
	return signed, nil
}

// ObjectName builds recordings/<interview>/<uuid>.<ext>.
func ObjectName(interviewID, contentType string) string {
	ext := "webm"
	if base, _, _ := strings.Cut(contentType, ";"); base == "video/mp4" {
		ext = "mp4"
	}
	return recordingPrefix + interviewID + "/" + uuid.NewString() + "." + ext
}

// ObjectFromURL recovers the object name from a stored recording URL.
func ObjectFromURL(videoURL string) (string, bool) {
	if videoURL == "" {
		return "", false
	}
	u, err := url.Parse(videoURL)
	if err != nil {
		return "", false
	}
	i := strings.Index(u.Path, "/"+recordingPrefix)
	if i < 0 {
		return "", false
	}
	return u.Path[i+1:], true
}
