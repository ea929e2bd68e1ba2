package internal

import (
	"context"
	"sort"
	"sync"
	"time"

	"pangalink/entity"
	"pangalink/services"
)

// MemoryStore keeps everything in process memory. It backs the service when
// MongoDB is disabled and is used by tests.
type MemoryStore struct {
	mutex    sync.RWMutex
	projects map[string]*entity.Project
	payments map[string]*entity.Payment
	errors   []*entity.PaymentError
	logs     []services.Data
	counters map[string]int64
	pageSize int64
}

func NewMemoryStore(pageSize int64) *MemoryStore {
	if pageSize <= 0 {
		pageSize = 30
	}
	return &MemoryStore{
		projects: make(map[string]*entity.Project),
		payments: make(map[string]*entity.Payment),
		counters: make(map[string]int64),
		pageSize: pageSize,
	}
}

func (s *MemoryStore) WriteLogMessage(data services.Data) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.logs = append(s.logs, data)
	return nil
}

func (s *MemoryStore) GetProject(_ context.Context, id string) (*entity.Project, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	project, ok := s.projects[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	copied := *project
	return &copied, nil
}

func (s *MemoryStore) GetProjectByUID(_ context.Context, uid string) (*entity.Project, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	for _, project := range s.projects {
		if project.Uid == uid {
			copied := *project
			return &copied, nil
		}
	}
	return nil, services.ErrNotFound
}

func (s *MemoryStore) SaveProject(_ context.Context, project *entity.Project) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	copied := *project
	s.projects[project.Id] = &copied
	return nil
}

func (s *MemoryStore) TouchProject(_ context.Context, id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if project, ok := s.projects[id]; ok {
		project.UpdatedDate = time.Now()
	}
	return nil
}

func (s *MemoryStore) DeleteProject(_ context.Context, id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	project, ok := s.projects[id]
	if !ok {
		return services.ErrNotFound
	}
	for key, payment := range s.payments {
		if payment.Project == id {
			delete(s.payments, key)
		}
	}
	kept := s.errors[:0]
	for _, e := range s.errors {
		if e.Project != id {
			kept = append(kept, e)
		}
	}
	s.errors = kept
	delete(s.counters, "trans:"+project.Uid)
	delete(s.projects, id)
	return nil
}

func (s *MemoryStore) ListProjects(_ context.Context, owner string, page int64) ([]*entity.Project, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	var list []*entity.Project
	for _, project := range s.projects {
		if owner == "" || project.IsAuthorized(owner) {
			copied := *project
			list = append(list, &copied)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return paged(list, page, s.pageSize), nil
}

func (s *MemoryStore) GetPayment(_ context.Context, id string) (*entity.Payment, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	payment, ok := s.payments[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	copied := *payment
	return &copied, nil
}

func (s *MemoryStore) SavePayment(_ context.Context, payment *entity.Payment) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	copied := *payment
	s.payments[payment.Id] = &copied
	return nil
}

func (s *MemoryStore) CompletePayment(_ context.Context, payment *entity.Payment) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	stored, ok := s.payments[payment.Id]
	if !ok || stored.State != entity.StateInProcess {
		return services.ErrConflict
	}
	copied := *payment
	s.payments[payment.Id] = &copied
	return nil
}

func (s *MemoryStore) ListPayments(_ context.Context, projectId string, page int64) ([]*entity.Payment, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	var list []*entity.Payment
	for _, payment := range s.payments {
		if payment.Project == projectId {
			copied := *payment
			list = append(list, &copied)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Date.After(list[j].Date)
	})
	return paged(list, page, s.pageSize), nil
}

func (s *MemoryStore) CountPayments(_ context.Context, projectId string) (int64, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	var count int64
	for _, payment := range s.payments {
		if payment.Project == projectId {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) SavePaymentError(_ context.Context, paymentError *entity.PaymentError) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	copied := *paymentError
	s.errors = append(s.errors, &copied)
	return nil
}

// PaymentErrors returns the stored ERROR audit entries.
func (s *MemoryStore) PaymentErrors() []*entity.PaymentError {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return append([]*entity.PaymentError(nil), s.errors...)
}

func (s *MemoryStore) Increment(_ context.Context, key string) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.counters[key]++
	return s.counters[key], nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.counters, key)
	return nil
}

func paged[T any](list []T, page, size int64) []T {
	if page < 1 {
		page = 1
	}
	start := (page - 1) * size
	if start >= int64(len(list)) {
		return nil
	}
	end := start + size
	if end > int64(len(list)) {
		end = int64(len(list))
	}
	return list[start:end]
}
