package output

import (
	"errors"
	"fmt"

	"codeownerscan/internal/metrics"
	"codeownerscan/internal/models"
)

// Sink defines a destination for records.
type Sink interface {
	Write(r models.OwnershipRecord) error
	Close() error
}

// Manager coordinates writing records to multiple sinks.
type Manager struct {
	sinks []Sink
}

func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) AddSink(s Sink) error {
	if m == nil {
		return fmt.Errorf("output manager is nil")
	}
	if s == nil {
		return fmt.Errorf("sink must not be nil")
	}
	m.sinks = append(m.sinks, s)
	return nil
}

// Write hands r to every sink in order. The first sink is the durable one:
// if it fails the others are not told about a record that was not persisted.
func (m *Manager) Write(r models.OwnershipRecord) error {
	if m == nil {
		return fmt.Errorf("output manager is nil")
	}
	var errs []error
	for i, s := range m.sinks {
		if err := s.Write(r); err != nil {
			errs = append(errs, fmt.Errorf("write %T: %w", s, err))
			if i == 0 {
				break
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors writing to sinks: %w", errors.Join(errs...))
	}
	return nil
}

func (m *Manager) Close() error {
	if m == nil {
		return fmt.Errorf("output manager is nil")
	}
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %T: %w", s, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing sinks: %w", errors.Join(errs...))
	}
	return nil
}

// MetricsSink counts written records by status.
type MetricsSink struct {
	m *metrics.Metrics
}

func NewMetricsSink(m *metrics.Metrics) *MetricsSink {
	return &MetricsSink{m: m}
}

func (s *MetricsSink) Write(r models.OwnershipRecord) error {
	s.m.ObserveRecord(string(r.Status()))
	return nil
}

func (s *MetricsSink) Close() error { return nil }
