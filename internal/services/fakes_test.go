package services

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/yoockh/yooproctor/internal/models"
	"github.com/yoockh/yooproctor/internal/utils"
)

type fakeResultRepo struct {
	mu      sync.Mutex
	byID    map[string]models.InterviewResult
	failErr error
}

func newFakeResultRepo() *fakeResultRepo {
	return &fakeResultRepo{byID: map[string]models.InterviewResult{}}
}

func (r *fakeResultRepo) Insert(_ context.Context, res *models.InterviewResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return r.failErr
	}
	if _, ok := r.byID[res.InterviewID]; ok {
		return utils.ErrConflict
	}
	r.byID[res.InterviewID] = *res
	return nil
}

func (r *fakeResultRepo) GetByInterviewID(_ context.Context, id string) (*models.InterviewResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.byID[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return &res, nil
}

func (r *fakeResultRepo) ListByCandidate(_ context.Context, candidateID string, _ int64) ([]models.InterviewResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.InterviewResult
	for _, res := range r.byID {
		if res.CandidateID == candidateID {
			out = append(out, res)
		}
	}
	return out, nil
}

type fakeInterviewRepo struct {
	mu         sync.Mutex
	interviews map[string]*models.Interview
}

func newFakeInterviewRepo(ivs ...*models.Interview) *fakeInterviewRepo {
	r := &fakeInterviewRepo{interviews: map[string]*models.Interview{}}
	for _, iv := range ivs {
		r.interviews[iv.ID] = iv
	}
	return r
}

func (r *fakeInterviewRepo) GetByID(_ context.Context, id string) (*models.Interview, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	iv, ok := r.interviews[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	cp := *iv
	return &cp, nil
}

func (r *fakeInterviewRepo) SetStatus(_ context.Context, id, status string, from ...string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	iv, ok := r.interviews[id]
	if !ok {
		return false, nil
	}
	if len(from) > 0 {
		allowed := false
		for _, f := range from {
			if iv.Status == f {
				allowed = true
			}
		}
		if !allowed {
			return false, nil
		}
	}
	iv.Status = status
	return true, nil
}

func (r *fakeInterviewRepo) UpsertQuestions(context.Context, []models.Question) error { return nil }

func (r *fakeInterviewRepo) status(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interviews[id].Status
}

type fakeStore struct {
	mu      sync.Mutex
	err     error
	objects map[string][]byte
	types   map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *fakeStore) Upload(_ context.Context, object, contentType string, r io.Reader) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.objects[object] = b
	s.types[object] = contentType
	s.mu.Unlock()
	return "https://storage.googleapis.com/bucket/" + object, nil
}

func (s *fakeStore) SignedGetURL(_ context.Context, object string, ttl time.Duration) (string, error) {
	if _, ok := s.objects[object]; !ok {
		return "", errors.New("no such object")
	}
	return "https://signed.example/" + object + "?ttl=" + ttl.String(), nil
}

func (s *fakeStore) Close() error { return nil }
