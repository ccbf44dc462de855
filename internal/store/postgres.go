// Package store provides storage backends for cardiovoice.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	_ "embed"

	_ "github.com/lib/pq"
	"github.com/medagg/cardiovoice/internal/models"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// SaveCall inserts or replaces a call context.
func (s *PostgresStore) SaveCall(ctx context.Context, call models.CallContext) error {
	if call.CallID == "" {
		return models.ErrEmptyCallID
	}
	patient, findings, transcript, err := marshalCall(call)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO calls
		(call_id, stage, language, patient, findings, transcript, escalated, booking_id, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (call_id) DO UPDATE SET
		stage=EXCLUDED.stage, language=EXCLUDED.language, patient=EXCLUDED.patient,
		findings=EXCLUDED.findings, transcript=EXCLUDED.transcript, escalated=EXCLUDED.escalated,
		booking_id=EXCLUDED.booking_id, completed_at=EXCLUDED.completed_at`,
		call.CallID, string(call.Stage), string(call.Language), patient, findings, transcript,
		call.Escalated, nullable(call.BookingID), call.CreatedAt, call.CompletedAt)
	if err != nil {
		slog.Error("PostgresStore.SaveCall failed", "error", err, "callID", call.CallID)
		return fmt.Errorf("failed to save call %s: %w", call.CallID, err)
	}
	return nil
}

// GetCall retrieves a call context by id.
func (s *PostgresStore) GetCall(ctx context.Context, callID string) (*models.CallContext, error) {
	row := s.db.QueryRowContext(ctx, `SELECT call_id, stage, language, patient, findings, transcript,
		escalated, booking_id, created_at, completed_at FROM calls WHERE call_id = $1`, callID)
	call, err := scanCallPg(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrCallNotFound
	}
	if err != nil {
		slog.Error("PostgresStore.GetCall failed", "error", err, "callID", callID)
		return nil, fmt.Errorf("failed to get call %s: %w", callID, err)
	}
	return call, nil
}

// DeleteCall removes a call context.
func (s *PostgresStore) DeleteCall(ctx context.Context, callID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM calls WHERE call_id = $1`, callID)
	if err != nil {
		return fmt.Errorf("failed to delete call %s: %w", callID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrCallNotFound
	}
	return nil
}

// ListActiveCalls returns calls without a completed_at timestamp.
func (s *PostgresStore) ListActiveCalls(ctx context.Context) ([]models.CallContext, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT call_id, stage, language, patient, findings, transcript,
		escalated, booking_id, created_at, completed_at FROM calls WHERE completed_at IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active calls: %w", err)
	}
	defer rows.Close()
	var calls []models.CallContext
	for rows.Next() {
		call, err := scanCallPg(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, *call)
	}
	return calls, rows.Err()
}

// SavePatient stores a patient registry record.
func (s *PostgresStore) SavePatient(ctx context.Context, phone string, p models.PatientRef) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO patients
		(phone, name, medical_category, problem_description, language_preference)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (phone) DO UPDATE SET name=EXCLUDED.name, medical_category=EXCLUDED.medical_category,
		problem_description=EXCLUDED.problem_description, language_preference=EXCLUDED.language_preference`,
		phone, p.Name, p.MedicalCategory, p.ProblemDescription, string(p.LanguagePreference))
	if err != nil {
		return fmt.Errorf("failed to save patient %s: %w", phone, err)
	}
	return nil
}

// GetPatient resolves a patient by phone number.
func (s *PostgresStore) GetPatient(ctx context.Context, phone string) (*models.PatientRef, error) {
	var p models.PatientRef
	var lang string
	err := s.db.QueryRowContext(ctx, `SELECT name, phone, medical_category, problem_description, language_preference
		FROM patients WHERE phone = $1`, phone).
		Scan(&p.Name, &p.Phone, &p.MedicalCategory, &p.ProblemDescription, &lang)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get patient %s: %w", phone, err)
	}
	p.LanguagePreference = models.Language(lang)
	return &p, nil
}

// SaveAssessment appends an immutable assessment record.
func (s *PostgresStore) SaveAssessment(ctx context.Context, a models.RiskAssessment) error {
	inputs, err := json.Marshal(a.Inputs)
	if err != nil {
		return fmt.Errorf("failed to marshal assessment inputs: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO assessments
		(id, call_id, type, inputs, risk_score, risk_level, recommendation, priority, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.CallID, string(a.Type), string(inputs), a.RiskScore, string(a.RiskLevel),
		a.Recommendation, string(a.Priority), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save assessment %s: %w", a.ID, err)
	}
	return nil
}

// ListAssessmentsByCall returns a call's assessments, oldest first.
func (s *PostgresStore) ListAssessmentsByCall(ctx context.Context, callID string) ([]models.RiskAssessment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, call_id, type, inputs, risk_score, risk_level,
		recommendation, priority, created_at FROM assessments WHERE call_id = $1 ORDER BY created_at`, callID)
	if err != nil {
		return nil, fmt.Errorf("failed to query assessments for %s: %w", callID, err)
	}
	defer rows.Close()
	var out []models.RiskAssessment
	for rows.Next() {
		var a models.RiskAssessment
		var typ, level, priority, inputs string
		if err := rows.Scan(&a.ID, &a.CallID, &typ, &inputs, &a.RiskScore, &level,
			&a.Recommendation, &priority, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Type = models.AssessmentType(typ)
		a.RiskLevel = models.RiskLevel(level)
		a.Priority = models.Priority(priority)
		if err := json.Unmarshal([]byte(inputs), &a.Inputs); err != nil {
			slog.Warn("PostgresStore.ListAssessmentsByCall: malformed inputs JSON", "assessmentID", a.ID, "error", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveBooking stores a booking record.
func (s *PostgresStore) SaveBooking(ctx context.Context, b models.AppointmentBooking) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO bookings
		(id, call_id, patient_name, phone_number, appointment_type, urgency, preferred_time,
		 scheduled_window, duration, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET status=EXCLUDED.status`,
		b.ID, b.CallID, b.PatientName, b.PhoneNumber, b.AppointmentType, b.Urgency,
		b.PreferredTime, b.ScheduledWindow, b.Duration, string(b.Status), b.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save booking %s: %w", b.ID, err)
	}
	return nil
}

// GetBooking retrieves a booking by id.
func (s *PostgresStore) GetBooking(ctx context.Context, id string) (*models.AppointmentBooking, error) {
	return s.getBooking(ctx, `id = $1`, id)
}

// GetBookingByCall retrieves the booking created for a call.
func (s *PostgresStore) GetBookingByCall(ctx context.Context, callID string) (*models.AppointmentBooking, error) {
	return s.getBooking(ctx, `call_id = $1`, callID)
}

func (s *PostgresStore) getBooking(ctx context.Context, where, arg string) (*models.AppointmentBooking, error) {
	var b models.AppointmentBooking
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT id, call_id, patient_name, phone_number, appointment_type,
		urgency, preferred_time, scheduled_window, duration, status, created_at FROM bookings WHERE `+where, arg).
		Scan(&b.ID, &b.CallID, &b.PatientName, &b.PhoneNumber, &b.AppointmentType,
			&b.Urgency, &b.PreferredTime, &b.ScheduledWindow, &b.Duration, &status, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	b.Status = models.BookingStatus(status)
	return &b, nil
}

// ListBookings returns all booking records, newest first.
func (s *PostgresStore) ListBookings(ctx context.Context) ([]models.AppointmentBooking, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, call_id, patient_name, phone_number, appointment_type,
		urgency, preferred_time, scheduled_window, duration, status, created_at
		FROM bookings ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()
	var out []models.AppointmentBooking
	for rows.Next() {
		var b models.AppointmentBooking
		var status string
		if err := rows.Scan(&b.ID, &b.CallID, &b.PatientName, &b.PhoneNumber, &b.AppointmentType,
			&b.Urgency, &b.PreferredTime, &b.ScheduledWindow, &b.Duration, &status, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.Status = models.BookingStatus(status)
		out = append(out, b)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// scanCallPg deserializes one call row. Postgres returns booleans natively,
// unlike the SQLite integer column.
func scanCallPg(row rowScanner) (*models.CallContext, error) {
	var call models.CallContext
	var stage, language, patient, findings, transcript string
	var bookingID sql.NullString
	var completedAt sql.NullTime
	if err := row.Scan(&call.CallID, &stage, &language, &patient, &findings, &transcript,
		&call.Escalated, &bookingID, &call.CreatedAt, &completedAt); err != nil {
		return nil, err
	}
	call.Stage = models.Stage(stage)
	call.Language = models.Language(language)
	if bookingID.Valid {
		call.BookingID = bookingID.String
	}
	if completedAt.Valid {
		t := completedAt.Time
		call.CompletedAt = &t
	}
	if err := json.Unmarshal([]byte(patient), &call.Patient); err != nil {
		return nil, fmt.Errorf("failed to unmarshal patient: %w", err)
	}
	if err := json.Unmarshal([]byte(findings), &call.Findings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal findings: %w", err)
	}
	if err := json.Unmarshal([]byte(transcript), &call.Transcript); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transcript: %w", err)
	}
	return &call, nil
}
