package interest

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type MemStore struct {
	mu       sync.RWMutex
	projects map[uuid.UUID]Project
	records  []Record
}

func NewMemStore() *MemStore {
	return &MemStore{projects: make(map[uuid.UUID]Project)}
}

// PutProject creates or replaces a project.
func (s *MemStore) PutProject(p Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.SkillsRequired = append([]string(nil), p.SkillsRequired...)
	s.projects[p.ID] = p
}

func (s *MemStore) GetProject(ctx context.Context, projectID uuid.UUID) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[projectID]
	if !ok {
		return nil, nil
	}
	p.SkillsRequired = append([]string(nil), p.SkillsRequired...)
	return &p, nil
}

func (s *MemStore) HasInterest(ctx context.Context, projectID, teamID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasInterest(projectID, teamID), nil
}

func (s *MemStore) hasInterest(projectID, teamID uuid.UUID) bool {
	for _, r := range s.records {
		if r.ProjectID == projectID && r.TeamID == teamID {
			return true
		}
	}
	return false
}

func (s *MemStore) InsertInterest(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasInterest(rec.ProjectID, rec.TeamID) {
		return ErrAlreadyInterested
	}
	s.records = append(s.records, *rec)
	return nil
}

func (s *MemStore) ListByAdvisor(ctx context.Context, advisorID uuid.UUID) ([]Record, error) {
	out := s.filter(func(r Record) bool { return r.AdvisorID == advisorID })
	sortNewestFirst(out)
	return out, nil
}

func (s *MemStore) ListByProject(ctx context.Context, projectID uuid.UUID) ([]Record, error) {
	out := s.filter(func(r Record) bool { return r.ProjectID == projectID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].TeamScore > out[j].TeamScore })
	return out, nil
}

func (s *MemStore) ListByTeam(ctx context.Context, teamID uuid.UUID) ([]Record, error) {
	out := s.filter(func(r Record) bool { return r.TeamID == teamID })
	sortNewestFirst(out)
	return out, nil
}

func (s *MemStore) filter(match func(Record) bool) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0)
	for _, r := range s.records {
		if match(r) {
			out = append(out, r)
		}
	}
	return out
}

func sortNewestFirst(records []Record) {
	sort.SliceStable(records, func(i, j int) bool { return records[i].CreatedAt.After(records[j].CreatedAt) })
}
