// Package store provides storage backends for cardiovoice.
//
// This file implements the SQLite-backed store.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/medagg/cardiovoice/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database
// directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a Store backed by a local SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN. The DSN is a
// file path to the database file; its directory is created if missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// SaveCall inserts or replaces a call context.
func (s *SQLiteStore) SaveCall(ctx context.Context, call models.CallContext) error {
	if call.CallID == "" {
		return models.ErrEmptyCallID
	}
	patient, findings, transcript, err := marshalCall(call)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO calls
		(call_id, stage, language, patient, findings, transcript, escalated, booking_id, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(call_id) DO UPDATE SET
		stage=excluded.stage, language=excluded.language, patient=excluded.patient,
		findings=excluded.findings, transcript=excluded.transcript, escalated=excluded.escalated,
		booking_id=excluded.booking_id, completed_at=excluded.completed_at`,
		call.CallID, string(call.Stage), string(call.Language), patient, findings, transcript,
		boolToInt(call.Escalated), nullable(call.BookingID), call.CreatedAt, call.CompletedAt)
	if err != nil {
		slog.Error("SQLiteStore.SaveCall failed", "error", err, "callID", call.CallID)
		return fmt.Errorf("failed to save call %s: %w", call.CallID, err)
	}
	return nil
}

// GetCall retrieves a call context by id.
func (s *SQLiteStore) GetCall(ctx context.Context, callID string) (*models.CallContext, error) {
	row := s.db.QueryRowContext(ctx, `SELECT call_id, stage, language, patient, findings, transcript,
		escalated, booking_id, created_at, completed_at FROM calls WHERE call_id = ?`, callID)
	call, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrCallNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore.GetCall failed", "error", err, "callID", callID)
		return nil, fmt.Errorf("failed to get call %s: %w", callID, err)
	}
	return call, nil
}

// DeleteCall removes a call context.
func (s *SQLiteStore) DeleteCall(ctx context.Context, callID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM calls WHERE call_id = ?`, callID)
	if err != nil {
		return fmt.Errorf("failed to delete call %s: %w", callID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrCallNotFound
	}
	return nil
}

// ListActiveCalls returns calls without a completed_at timestamp.
func (s *SQLiteStore) ListActiveCalls(ctx context.Context) ([]models.CallContext, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT call_id, stage, language, patient, findings, transcript,
		escalated, booking_id, created_at, completed_at FROM calls WHERE completed_at IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active calls: %w", err)
	}
	defer rows.Close()
	var calls []models.CallContext
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, *call)
	}
	return calls, rows.Err()
}

// SavePatient stores a patient registry record.
func (s *SQLiteStore) SavePatient(ctx context.Context, phone string, p models.PatientRef) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO patients
		(phone, name, medical_category, problem_description, language_preference)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(phone) DO UPDATE SET name=excluded.name, medical_category=excluded.medical_category,
		problem_description=excluded.problem_description, language_preference=excluded.language_preference`,
		phone, p.Name, p.MedicalCategory, p.ProblemDescription, string(p.LanguagePreference))
	if err != nil {
		return fmt.Errorf("failed to save patient %s: %w", phone, err)
	}
	return nil
}

// GetPatient resolves a patient by phone number.
func (s *SQLiteStore) GetPatient(ctx context.Context, phone string) (*models.PatientRef, error) {
	var p models.PatientRef
	var lang string
	err := s.db.QueryRowContext(ctx, `SELECT name, phone, medical_category, problem_description, language_preference
		FROM patients WHERE phone = ?`, phone).
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
func (s *SQLiteStore) SaveAssessment(ctx context.Context, a models.RiskAssessment) error {
	inputs, err := json.Marshal(a.Inputs)
	if err != nil {
		return fmt.Errorf("failed to marshal assessment inputs: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO assessments
		(id, call_id, type, inputs, risk_score, risk_level, recommendation, priority, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.CallID, string(a.Type), string(inputs), a.RiskScore, string(a.RiskLevel),
		a.Recommendation, string(a.Priority), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save assessment %s: %w", a.ID, err)
	}
	return nil
}

// ListAssessmentsByCall returns a call's assessments, oldest first.
func (s *SQLiteStore) ListAssessmentsByCall(ctx context.Context, callID string) ([]models.RiskAssessment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, call_id, type, inputs, risk_score, risk_level,
		recommendation, priority, created_at FROM assessments WHERE call_id = ? ORDER BY created_at`, callID)
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
			slog.Warn("SQLiteStore.ListAssessmentsByCall: malformed inputs JSON", "assessmentID", a.ID, "error", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveBooking stores a booking record.
func (s *SQLiteStore) SaveBooking(ctx context.Context, b models.AppointmentBooking) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO bookings
		(id, call_id, patient_name, phone_number, appointment_type, urgency, preferred_time,
		 scheduled_window, duration, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status=excluded.status`,
		b.ID, b.CallID, b.PatientName, b.PhoneNumber, b.AppointmentType, b.Urgency,
		b.PreferredTime, b.ScheduledWindow, b.Duration, string(b.Status), b.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save booking %s: %w", b.ID, err)
	}
	return nil
}

// GetBooking retrieves a booking by id.
func (s *SQLiteStore) GetBooking(ctx context.Context, id string) (*models.AppointmentBooking, error) {
	return s.getBooking(ctx, `id = ?`, id)
}

// GetBookingByCall retrieves the booking created for a call.
func (s *SQLiteStore) GetBookingByCall(ctx context.Context, callID string) (*models.AppointmentBooking, error) {
	return s.getBooking(ctx, `call_id = ?`, callID)
}

func (s *SQLiteStore) getBooking(ctx context.Context, where, arg string) (*models.AppointmentBooking, error) {
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
func (s *SQLiteStore) ListBookings(ctx context.Context) ([]models.AppointmentBooking, error) {
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
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// marshalCall serializes the JSON-typed columns of a call row.
func marshalCall(call models.CallContext) (patient, findings, transcript string, err error) {
	p, err := json.Marshal(call.Patient)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to marshal patient: %w", err)
	}
	f, err := json.Marshal(call.Findings)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to marshal findings: %w", err)
	}
	t, err := json.Marshal(call.Transcript)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to marshal transcript: %w", err)
	}
	return string(p), string(f), string(t), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanCall deserializes one call row.
func scanCall(row rowScanner) (*models.CallContext, error) {
	var call models.CallContext
	var stage, language, patient, findings, transcript string
	var escalated int
	var bookingID sql.NullString
	var completedAt sql.NullTime
	if err := row.Scan(&call.CallID, &stage, &language, &patient, &findings, &transcript,
		&escalated, &bookingID, &call.CreatedAt, &completedAt); err != nil {
		return nil, err
	}
	call.Stage = models.Stage(stage)
	call.Language = models.Language(language)
	call.Escalated = escalated != 0
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

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
