package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/yoockh/yooproctor/internal/models"
	"github.com/yoockh/yooproctor/internal/proctor"
	"github.com/yoockh/yooproctor/internal/services"
	"github.com/yoockh/yooproctor/internal/utils"
)

type fakeInterviews struct {
	mu      sync.Mutex
	items   map[string]*models.Interview
	started []string
}

func newFakeInterviews(ivs ...*models.Interview) *fakeInterviews {
	f := &fakeInterviews{items: map[string]*models.Interview{}}
	for _, iv := range ivs {
		f.items[iv.ID] = iv
	}
	return f
}

func (f *fakeInterviews) Get(_ context.Context, id string) (*models.Interview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	iv, ok := f.items[id]
	if !ok {
		return nil, utils.E(utils.CodeNotFound, "fake", "interview not found", nil)
	}
	cp := *iv
	return &cp, nil
}

func (f *fakeInterviews) GetForCandidate(ctx context.Context, candidateID, id string) (*models.Interview, error) {
	iv, err := f.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if iv.CandidateID != candidateID {
		return nil, utils.E(utils.CodeForbidden, "fake", "forbidden", nil)
	}
	return iv, nil
}

func (f *fakeInterviews) MarkStarted(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, id)
	return nil
}

func (f *fakeInterviews) MarkFinished(context.Context, string, string) error { return nil }

type fakeResults struct {
	mu    sync.Mutex
	items map[string]*models.InterviewResult
}

func newFakeResults(rs ...*models.InterviewResult) *fakeResults {
	f := &fakeResults{items: map[string]*models.InterviewResult{}}
	for _, r := range rs {
		f.items[r.InterviewID] = r
	}
	return f
}

func (f *fakeResults) Complete(_ context.Context, candidateID, interviewID string, rec models.CompletionRecord) (*models.InterviewResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := &models.InterviewResult{
		InterviewID:          interviewID,
		CandidateID:          candidateID,
		Status:               services.InterviewCompleted,
		TotalDurationSeconds: rec.TotalDurationSeconds,
		VideoURL:             rec.VideoURL,
		ViolationCount:       rec.ViolationCount,
		CompletedAt:          time.Now(),
	}
	f.items[interviewID] = res
	return res, nil
}

func (f *fakeResults) Reject(_ context.Context, candidateID, interviewID string, rec models.RejectionRecord) (*models.InterviewResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := &models.InterviewResult{
		InterviewID:      interviewID,
		CandidateID:      candidateID,
		Status:           services.InterviewRejected,
		ViolationCount:   rec.ViolationCount,
		ForcedSubmission: true,
	}
	f.items[interviewID] = res
	return res, nil
}

func (f *fakeResults) Get(_ context.Context, interviewID string) (*models.InterviewResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.items[interviewID]
	if !ok {
		return nil, utils.E(utils.CodeNotFound, "fake", "result not found", nil)
	}
	return r, nil
}

func (f *fakeResults) ListByCandidate(_ context.Context, candidateID string, limit int64) ([]models.InterviewResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.InterviewResult
	for _, r := range f.items {
		if r.CandidateID == candidateID && int64(len(out)) < limit {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeResults) Poster(candidateID string) proctor.ResultPoster {
	return fakePoster{f: f, candidateID: candidateID}
}

type fakePoster struct {
	f           *fakeResults
	candidateID string
}

func (p fakePoster) PostCompletion(ctx context.Context, interviewID string, rec models.CompletionRecord) (*models.InterviewResult, error) {
	return p.f.Complete(ctx, p.candidateID, interviewID, rec)
}

func (p fakePoster) PostRejection(ctx context.Context, interviewID string, rec models.RejectionRecord) error {
	_, err := p.f.Reject(ctx, p.candidateID, interviewID, rec)
	return err
}

type fakeRecordings struct {
	signErr error
}

func (f *fakeRecordings) UploadRecording(_ context.Context, interviewID string, _ proctor.Asset) (string, error) {
	return "https://storage.example.com/recordings/" + interviewID + "/a.webm", nil
}

func (f *fakeRecordings) PlaybackURL(_ context.Context, videoURL string, _ time.Duration) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}
	return videoURL + "?signed=1", nil
}
