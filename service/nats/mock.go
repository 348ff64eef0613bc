package nats

import (
	"context"
	"sync"
)

// MockPublisher records events in memory.
type MockPublisher struct {
	mu                sync.RWMutex
	published         []*SplitEvent
	publishError      error
	publishBatchError error
	closed            bool
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// PublishSplit records the event and returns any configured error.
func (m *MockPublisher) PublishSplit(ctx context.Context, event *SplitEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishError != nil {
		return m.publishError
	}
	m.published = append(m.published, event)
	return nil
}

// PublishSplitBatch records the events and returns any configured error.
func (m *MockPublisher) PublishSplitBatch(ctx context.Context, events []*SplitEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishBatchError != nil {
		return m.publishBatchError
	}
	m.published = append(m.published, events...)
	return nil
}

func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetPublishedEvents returns a copy of everything published so far.
func (m *MockPublisher) GetPublishedEvents() []*SplitEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := make([]*SplitEvent, len(m.published))
	copy(events, m.published)
	return events
}

func (m *MockPublisher) GetPublishedEventCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.published)
}

// GetPublishedEventsForAddress filters by the lowercase hex address.
func (m *MockPublisher) GetPublishedEventsForAddress(address string) []*SplitEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var events []*SplitEvent
	for _, e := range m.published {
		if e.Address == address {
			events = append(events, e)
		}
	}
	return events
}

func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

func (m *MockPublisher) SetPublishBatchError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishBatchError = err
}

func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
