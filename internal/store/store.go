// Package store provides storage backends for cardiovoice.
//
// The Store interface is the repository abstraction injected into the
// conversation engine: call contexts, risk assessments, bookings, and patient
// records live behind it. Backends: in-memory (default), SQLite, Postgres.
package store

import (
	"context"
	"sync"

	"github.com/medagg/cardiovoice/internal/models"
)

// Opts holds shared configuration options for store backends.
type Opts struct {
	// DSN is the database connection string (file path for SQLite).
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// Store is the repository contract for all persistent core state.
type Store interface {
	// Call contexts. The map is keyed by call id and must support
	// concurrent insert/lookup/update without cross-call interference.
	SaveCall(ctx context.Context, call models.CallContext) error
	GetCall(ctx context.Context, callID string) (*models.CallContext, error)
	DeleteCall(ctx context.Context, callID string) error
	ListActiveCalls(ctx context.Context) ([]models.CallContext, error)

	// Patient registry read model.
	SavePatient(ctx context.Context, phone string, p models.PatientRef) error
	GetPatient(ctx context.Context, phone string) (*models.PatientRef, error)

	// Risk assessments (immutable once created).
	SaveAssessment(ctx context.Context, a models.RiskAssessment) error
	ListAssessmentsByCall(ctx context.Context, callID string) ([]models.RiskAssessment, error)

	// Appointment bookings.
	SaveBooking(ctx context.Context, b models.AppointmentBooking) error
	GetBooking(ctx context.Context, id string) (*models.AppointmentBooking, error)
	GetBookingByCall(ctx context.Context, callID string) (*models.AppointmentBooking, error)
	ListBookings(ctx context.Context) ([]models.AppointmentBooking, error)

	// Close releases backend resources.
	Close() error
}

// InMemoryStore is a mutex-guarded in-memory Store. It is the default backend
// and the one used in tests.
type InMemoryStore struct {
	mu          sync.RWMutex
	calls       map[string]models.CallContext
	patients    map[string]models.PatientRef
	assessments map[string][]models.RiskAssessment
	bookings    map[string]models.AppointmentBooking
	byCall      map[string]string // call id -> booking id
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		calls:       make(map[string]models.CallContext),
		patients:    make(map[string]models.PatientRef),
		assessments: make(map[string][]models.RiskAssessment),
		bookings:    make(map[string]models.AppointmentBooking),
		byCall:      make(map[string]string),
	}
}

// SaveCall inserts or replaces a call context.
func (s *InMemoryStore) SaveCall(ctx context.Context, call models.CallContext) error {
	if call.CallID == "" {
		return models.ErrEmptyCallID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[call.CallID] = call
	return nil
}

// GetCall retrieves a call context by id.
func (s *InMemoryStore) GetCall(ctx context.Context, callID string) (*models.CallContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	call, ok := s.calls[callID]
	if !ok {
		return nil, models.ErrCallNotFound
	}
	return &call, nil
}

// DeleteCall releases a call context from the active map.
func (s *InMemoryStore) DeleteCall(ctx context.Context, callID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calls[callID]; !ok {
		return models.ErrCallNotFound
	}
	delete(s.calls, callID)
	return nil
}

// ListActiveCalls returns all calls that have not been closed.
func (s *InMemoryStore) ListActiveCalls(ctx context.Context) ([]models.CallContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var active []models.CallContext
	for _, call := range s.calls {
		if call.CompletedAt == nil {
			active = append(active, call)
		}
	}
	return active, nil
}

// SavePatient stores a patient registry record keyed by phone number.
func (s *InMemoryStore) SavePatient(ctx context.Context, phone string, p models.PatientRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients[phone] = p
	return nil
}

// GetPatient resolves a patient record by phone number.
func (s *InMemoryStore) GetPatient(ctx context.Context, phone string) (*models.PatientRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[phone]
	if !ok {
		return nil, models.ErrPatientNotFound
	}
	return &p, nil
}

// SaveAssessment appends an immutable assessment record.
func (s *InMemoryStore) SaveAssessment(ctx context.Context, a models.RiskAssessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assessments[a.CallID] = append(s.assessments[a.CallID], a)
	return nil
}

// ListAssessmentsByCall returns all assessments attached to a call, oldest
// first.
func (s *InMemoryStore) ListAssessmentsByCall(ctx context.Context, callID string) ([]models.RiskAssessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.RiskAssessment(nil), s.assessments[callID]...), nil
}

// SaveBooking stores a booking record.
func (s *InMemoryStore) SaveBooking(ctx context.Context, b models.AppointmentBooking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ID] = b
	if b.CallID != "" {
		s.byCall[b.CallID] = b.ID
	}
	return nil
}

// GetBooking retrieves a booking by id.
func (s *InMemoryStore) GetBooking(ctx context.Context, id string) (*models.AppointmentBooking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, models.ErrBookingNotFound
	}
	return &b, nil
}

// GetBookingByCall retrieves the booking created for a call, if any.
func (s *InMemoryStore) GetBookingByCall(ctx context.Context, callID string) (*models.AppointmentBooking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCall[callID]
	if !ok {
		return nil, models.ErrBookingNotFound
	}
	b := s.bookings[id]
	return &b, nil
}

// ListBookings returns all booking records.
func (s *InMemoryStore) ListBookings(ctx context.Context) ([]models.AppointmentBooking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AppointmentBooking, 0, len(s.bookings))
	for _, b := range s.bookings {
		out = append(out, b)
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
