package temporal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type mockSchedule struct {
	input    ExportLedgerInput
	interval time.Duration
}

// MockScheduler is an in-memory Scheduler for tests.
type MockScheduler struct {
	mu        sync.Mutex
	schedules map[string]mockSchedule
	createErr error
	deleteErr error
}

func NewMockScheduler() *MockScheduler {
	return &MockScheduler{schedules: make(map[string]mockSchedule)}
}

// CreateExportSchedule fails if the address already has a schedule.
func (m *MockScheduler) CreateExportSchedule(ctx context.Context, input ExportLedgerInput, interval time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	id := scheduleID(input.Address)
	if _, exists := m.schedules[id]; exists {
		return fmt.Errorf("schedule %q already exists", id)
	}
	m.schedules[id] = mockSchedule{input: input, interval: interval}
	return nil
}

func (m *MockScheduler) UpsertExportSchedule(ctx context.Context, input ExportLedgerInput, interval time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.schedules[scheduleID(input.Address)] = mockSchedule{input: input, interval: interval}
	return nil
}

func (m *MockScheduler) DeleteExportSchedule(ctx context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	id := scheduleID(address)
	if _, exists := m.schedules[id]; !exists {
		return fmt.Errorf("schedule %q not found", id)
	}
	delete(m.schedules, id)
	return nil
}

func (m *MockScheduler) SetCreateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createErr = err
}

func (m *MockScheduler) SetDeleteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteErr = err
}

func (m *MockScheduler) ScheduleExists(address string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.schedules[scheduleID(address)]
	return exists
}

// GetSchedule returns the stored export parameters and interval.
func (m *MockScheduler) GetSchedule(address string) (ExportLedgerInput, time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, exists := m.schedules[scheduleID(address)]
	return s.input, s.interval, exists
}

func (m *MockScheduler) ScheduleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.schedules)
}
