package worker

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/models"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/queue"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/store"
)

// memStore keys properties by location and, like a primary key, refuses a
// record id it has already stored.
type memStore struct {
	mu    sync.Mutex
	props map[string]models.NormalizedProperty
	ids   map[string]bool
	order []string
	err   error
}

func newMemStore(seed ...models.NormalizedProperty) *memStore {
	s := &memStore{
		props: make(map[string]models.NormalizedProperty),
		ids:   make(map[string]bool),
	}
	for _, p := range seed {
		_ = s.InsertProperty(context.Background(), p)
	}
	return s
}

func locationKey(p models.NormalizedProperty) string {
	return strings.Join([]string{p.NormalizedAddress, p.City, p.State, p.ZipCode}, "|")
}

func (s *memStore) PropertyExists(_ context.Context, p models.NormalizedProperty) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	_, ok := s.props[locationKey(p)]
	return ok, nil
}

func (s *memStore) InsertProperty(_ context.Context, p models.NormalizedProperty) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := locationKey(p)
	if _, ok := s.props[key]; ok {
		return fmt.Errorf("insert: %w", store.ErrPropertyExists)
	}
	if s.ids[p.ID] {
		return fmt.Errorf("insert %s: duplicate record id", p.ID)
	}
	s.ids[p.ID] = true
	s.props[key] = p
	s.order = append(s.order, key)
	return nil
}

func (s *memStore) ListProperties(_ context.Context, city, state, propertyType string, _ int) ([]models.NormalizedProperty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.NormalizedProperty
	for _, key := range s.order {
		p := s.props[key]
		if strings.EqualFold(p.City, city) && p.State == state && (propertyType == "" || p.PropertyType == propertyType) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) storedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.props[key].ID)
	}
	return out
}

type countingLimiter struct {
	mu    sync.Mutex
	calls map[string]int
}

func (l *countingLimiter) Wait(_ context.Context, source string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.calls == nil {
		l.calls = make(map[string]int)
	}
	l.calls[source]++
	return nil
}

type milestones struct {
	mu    sync.Mutex
	steps []string
	pcts  []int
}

func (m *milestones) report() queue.ReportFunc {
	return func(progress int, _ string, step string) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.pcts = append(m.pcts, progress)
		m.steps = append(m.steps, step)
	}
}

func sequentialIDs(prefix string) func() string {
	n := 0
	var mu sync.Mutex
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

type recordingRegistrar map[models.JobType]queue.Executor

func (r recordingRegistrar) RegisterExecutor(t models.JobType, exec queue.Executor) {
	r[t] = exec
}
