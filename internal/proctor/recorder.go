package proctor

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/yooproctor/internal/utils"
)

// ChunkInterval is the recorder timeslice.
const ChunkInterval = 3 * time.Second

const archiveQueueSize = 64

// archiveTimeout bounds one archive write.
var archiveTimeout = 5 * time.Second

type archiveItem struct {
	seq  int64
	mime string
	data []byte
}

type RecorderProfile struct {
	MimeType           string `json:"mimeType"`
	VideoBitsPerSecond int    `json:"videoBitsPerSecond"`
	AudioBitsPerSecond int    `json:"audioBitsPerSecond"`
}

// RecorderLadder is tried in order; the first supported entry wins.
var RecorderLadder = []RecorderProfile{
	{MimeType: "video/webm;codecs=vp9,opus", VideoBitsPerSecond: 1_000_000, AudioBitsPerSecond: 64_000},
	{MimeType: "video/webm;codecs=vp8,opus", VideoBitsPerSecond: 1_500_000, AudioBitsPerSecond: 96_000},
	{MimeType: "video/webm", VideoBitsPerSecond: 2_500_000, AudioBitsPerSecond: 128_000},
}

type ChunkSink func(data []byte)

type MediaRecorder interface {
	Start(ctx context.Context, timeslice time.Duration) error
	// Stop returns after the final chunk has been handed to the sink.
	Stop(ctx context.Context) error
}

type RecorderFactory interface {
	IsTypeSupported(mimeType string) bool
	NewRecorder(stream CaptureStream, p RecorderProfile, sink ChunkSink) (MediaRecorder, error)
}

// ChunkArchiver optionally copies chunks to durable storage as they arrive.
type ChunkArchiver interface {
	Archive(ctx context.Context, seq int64, mimeType string, data []byte) error
}

// Asset is the assembled recording.
type Asset struct {
	Data     []byte
	MimeType string
}

func (a Asset) Size() int { return len(a.Data) }

type RecordingPipeline struct {
	factory  RecorderFactory
	archiver ChunkArchiver
	log      *logrus.Entry

	mu        sync.Mutex
	rec       MediaRecorder
	profile   RecorderProfile
	recording bool
	chunks    [][]byte
	size      int
	seq       int64
	// archiveQ feeds the archive writer; nil when archiving is off or the
	// pipeline was discarded.
	archiveQ chan archiveItem
}

func NewRecordingPipeline(factory RecorderFactory, archiver ChunkArchiver, log *logrus.Entry) *RecordingPipeline {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &RecordingPipeline{factory: factory, archiver: archiver, log: log}
}

// SelectProfile walks RecorderLadder.
func (p *RecordingPipeline) SelectProfile() (RecorderProfile, error) {
	for _, prof := range RecorderLadder {
		if p.factory.IsTypeSupported(prof.MimeType) {
			return prof, nil
		}
	}
	return RecorderProfile{}, utils.E(utils.CodeUnavailable, "RecordingPipeline.SelectProfile", "this browser cannot record video in a supported format", nil)
}

func (p *RecordingPipeline) Start(ctx context.Context, stream CaptureStream) error {
	const op = "RecordingPipeline.Start"

	if stream == nil {
		return utils.E(utils.CodeInvalidArgument, op, "no camera stream is available to record", nil)
	}

	p.mu.Lock()
	if p.recording {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	prof, err := p.SelectProfile()
	if err != nil {
		return err
	}

	rec, err := p.factory.NewRecorder(stream, prof, p.appendChunk)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "could not create the recorder", err)
	}

	// chunks may arrive before Start returns
	p.mu.Lock()
	p.rec = rec
	p.profile = prof
	p.chunks = nil
	p.size = 0
	p.seq = 0
	if p.archiver != nil && p.archiveQ == nil {
		p.archiveQ = make(chan archiveItem, archiveQueueSize)
		go p.runArchive(p.archiveQ)
	}
	p.mu.Unlock()

	if err := rec.Start(ctx, ChunkInterval); err != nil {
		p.mu.Lock()
		p.rec = nil
		p.chunks = nil
		p.size = 0
		p.mu.Unlock()
		return utils.E(utils.CodeInternal, op, "could not start recording", err)
	}

	p.mu.Lock()
	p.recording = true
	p.mu.Unlock()

	p.log.WithField("mime_type", prof.MimeType).Info("recording started")
	return nil
}

// appendChunk runs on the transport reader, so archive writes are queued
// rather than made inline.
func (p *RecordingPipeline) appendChunk(data []byte) {
	if len(data) == 0 {
		return
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rec == nil {
		return
	}
	p.chunks = append(p.chunks, buf)
	p.size += len(buf)
	p.seq++

	if p.archiveQ == nil {
		return
	}
	select {
	case p.archiveQ <- archiveItem{seq: p.seq, mime: p.profile.MimeType, data: buf}:
	default:
		p.log.WithField("seq", p.seq).Warn("chunk archive queue full, dropping chunk")
	}
}

func (p *RecordingPipeline) runArchive(q <-chan archiveItem) {
	for it := range q {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		if err := p.archiver.Archive(ctx, it.seq, it.mime, it.data); err != nil {
			p.log.WithError(err).WithField("seq", it.seq).Warn("chunk archive failed")
		}
		cancel()
	}
}

// Stop ends recording and waits for the final chunk.
func (p *RecordingPipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	rec := p.rec
	if rec == nil || !p.recording {
		p.mu.Unlock()
		return nil
	}
	p.recording = false
	p.mu.Unlock()

	if err := rec.Stop(ctx); err != nil {
		return utils.E(utils.CodeUnavailable, "RecordingPipeline.Stop", "the recorder did not stop cleanly", err)
	}
	return nil
}

// Assemble concatenates buffered chunks into one asset.
func (p *RecordingPipeline) Assemble() Asset {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Asset{Data: bytes.Join(p.chunks, nil), MimeType: p.profile.MimeType}
}

// Discard stops the recorder if needed and drops the buffer.
func (p *RecordingPipeline) Discard(ctx context.Context) {
	if err := p.Stop(ctx); err != nil {
		p.log.WithError(err).Warn("recorder stop during discard failed")
	}
	p.mu.Lock()
	p.rec = nil
	p.chunks = nil
	p.size = 0
	if p.archiveQ != nil {
		// the writer drains what is already queued
		close(p.archiveQ)
		p.archiveQ = nil
	}
	p.mu.Unlock()
}

func (p *RecordingPipeline) Recording() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recording
}

func (p *RecordingPipeline) Buffered() (chunks, size int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.chunks), p.size
}

func (p *RecordingPipeline) Profile() RecorderProfile {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.profile
}
