package services

import (
	"context"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yoockh/yooproctor/internal/models"
	"github.com/yoockh/yooproctor/internal/proctor"
	"github.com/yoockh/yooproctor/internal/utils"
)

// ChunkStream is the Redis stream recorder chunks are queued on.
const ChunkStream = "recording:chunks"

// ChunkArchive queues recorder chunks for the archive workers.
type ChunkArchive struct {
	rdb    redis.Cmdable
	stream string
	maxLen int64
}

func NewChunkArchive(rdb redis.Cmdable, stream string) *ChunkArchive {
	if stream == "" {
		stream = ChunkStream
	}
	return &ChunkArchive{rdb: rdb, stream: stream, maxLen: 100_000}
}

// For returns the archiver for one proctoring session.
func (a *ChunkArchive) For(interviewID, candidateID string) proctor.ChunkArchiver {
	return &sessionArchiver{a: a, interviewID: interviewID, candidateID: candidateID}
}

type sessionArchiver struct {
	a           *ChunkArchive
	interviewID string
	candidateID string
}

func (s *sessionArchiver) Archive(ctx context.Context, seq int64, mimeType string, data []byte) error {
	const op = "ChunkArchive.Archive"

	err := s.a.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.a.stream,
		MaxLen: s.a.maxLen,
		Approx: true,
		Values: EncodeChunk(s.interviewID, s.candidateID, seq, mimeType, data, time.Now().UTC()),
	}).Err()
	if err != nil {
		return utils.E(utils.CodeUnavailable, op, "failed to enqueue recording chunk", err)
	}
	return nil
}

// EncodeChunk builds stream fields for one chunk.
func EncodeChunk(interviewID, candidateID string, seq int64, mimeType string, data []byte, at time.Time) map[string]any {
	return map[string]any{
		"interview_id": interviewID,
		"candidate_id": candidateID,
		"seq":          strconv.FormatInt(seq, 10),
		"mime_type":    mimeType,
		"data_base64":  base64.StdEncoding.EncodeToString(data),
		"ts_unix_ms":   strconv.FormatInt(at.UnixMilli(), 10),
	}
}

// DecodeChunk parses stream fields written by EncodeChunk.
func DecodeChunk(values map[string]any, ttl time.Duration) (*models.RecordingChunk, error) {
	const op = "DecodeChunk"

	get := func(k string) string {
		v, ok := values[k]
		if !ok || v == nil {
			return ""
		}
		s, _ := v.(string)
		return s
	}

	interviewID := get("interview_id")
	seqStr := get("seq")
	if interviewID == "" || seqStr == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "interview_id and seq are required", nil)
	}
	seq, err := strconv.ParseInt(seqStr, 10, 64)
	if err != nil || seq <= 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "seq must be a positive integer", err)
	}

	raw := get("data_base64")
	if i := strings.Index(raw, ","); i >= 0 {
		raw = raw[i+1:] // strip data:...;base64,
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "invalid chunk data", err)
	}
	if len(data) == 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "empty chunk", nil)
	}

	at := time.Now().UTC()
	if ms, err := strconv.ParseInt(get("ts_unix_ms"), 10, 64); err == nil {
		at = time.UnixMilli(ms).UTC()
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}

	return &models.RecordingChunk{
		InterviewID: interviewID,
		CandidateID: get("candidate_id"),
		Seq:         seq,
		MimeType:    get("mime_type"),
		Data:        data,
		Size:        len(data),
		Timestamp:   at,
		ExpiresAt:   at.Add(ttl),
	}, nil
}
