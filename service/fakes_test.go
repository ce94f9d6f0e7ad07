package service

import (
	"context"
	"io"
	"strings"
	"time"
)

// scriptedService replays statuses in order; the last one repeats.
type scriptedService struct {
	handle    JobHandle
	statuses  []JobStatus
	startErr  error
	statusErr error

	started []QueryRequest
	polls   int
}

func (s *scriptedService) StartQuery(_ context.Context, req QueryRequest) (JobHandle, error) {
	s.started = append(s.started, req)
	if s.startErr != nil {
		return "", s.startErr
	}
	return s.handle, nil
}

func (s *scriptedService) GetStatus(_ context.Context, handle JobHandle) (JobStatus, error) {
	s.polls++
	if s.statusErr != nil {
		return JobStatus{}, s.statusErr
	}
	i := s.polls - 1
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	st := s.statuses[i]
	st.Handle = handle
	return st, nil
}

func running(n int, final JobStatus) []JobStatus {
	out := make([]JobStatus, 0, n+1)
	for range n {
		out = append(out, JobStatus{State: StateRunning})
	}
	return append(out, final)
}

// fakeClock advances only when the runner sleeps.
type fakeClock struct {
	now    time.Time
	sleeps int
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps++
	c.now = c.now.Add(d)
	return nil
}

func newTestRunner(svc QueryService, clock *fakeClock, opts ...RunnerOption) *Runner {
	r := NewRunner(svc, opts...)
	r.now = clock.Now
	r.sleep = clock.Sleep
	return r
}

// memStore serves objects from memory, keyed by "bucket/key".
type memStore struct {
	objects   map[string]string
	requested []string
}

func (m *memStore) Download(_ context.Context, bucket, key string, w io.Writer) error {
	m.requested = append(m.requested, bucket+"/"+key)
	body, ok := m.objects[bucket+"/"+key]
	if !ok {
		return ErrObjectNotFound
	}
	_, err := io.Copy(w, strings.NewReader(body))
	return err
}
