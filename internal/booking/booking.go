// Package booking implements the appointment negotiator.
//
// Once the risk level of a call is established, the negotiator maps urgency
// to a scheduling window and emits the initial booking record. The record is
// owned by the appointment registry after creation.
package booking

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/medagg/cardiovoice/internal/models"
)

// Repository is the slice of the store the negotiator needs.
type Repository interface {
	SaveBooking(ctx context.Context, b models.AppointmentBooking) error
	GetBookingByCall(ctx context.Context, callID string) (*models.AppointmentBooking, error)
}

// ScheduleRequest holds the typed inputs for scheduling an appointment.
type ScheduleRequest struct {
	CallID          string `json:"call_id"`
	PatientName     string `json:"patient_name"`
	PhoneNumber     string `json:"phone_number"`
	AppointmentType string `json:"appointment_type"`
	Urgency         string `json:"urgency"`
	PreferredTime   string `json:"preferred_time,omitempty"`
}

// Negotiator creates appointment bookings keyed by call id.
type Negotiator struct {
	repo Repository
}

// NewNegotiator creates a Negotiator backed by a booking repository.
func NewNegotiator(repo Repository) *Negotiator {
	return &Negotiator{repo: repo}
}

// Schedule creates a booking for the call. Scheduling is deduplicated by call
// id: a second request for the same call returns the existing booking rather
// than minting a duplicate.
func (n *Negotiator) Schedule(ctx context.Context, req ScheduleRequest) (models.AppointmentBooking, error) {
	if req.CallID == "" {
		return models.AppointmentBooking{}, models.ErrEmptyCallID
	}

	if existing, err := n.repo.GetBookingByCall(ctx, req.CallID); err == nil && existing != nil {
		slog.Info("Negotiator.Schedule: booking already exists for call, returning it",
			"callID", req.CallID, "bookingID", existing.ID)
		return *existing, nil
	}

	window, duration := windowFor(req.Urgency)
	if req.PreferredTime != "" && !strings.EqualFold(req.Urgency, "emergency") {
		window = fmt.Sprintf("%s - %s", req.PreferredTime, window)
	}

	appointmentType := req.AppointmentType
	if appointmentType == "" {
		appointmentType = "cardiology consultation"
	}

	b := models.AppointmentBooking{
		ID:              uuid.NewString(),
		CallID:          req.CallID,
		PatientName:     req.PatientName,
		PhoneNumber:     req.PhoneNumber,
		AppointmentType: appointmentType,
		Urgency:         req.Urgency,
		PreferredTime:   req.PreferredTime,
		ScheduledWindow: window,
		Duration:        duration,
		Status:          models.BookingScheduled,
		CreatedAt:       time.Now().UTC(),
	}

	if err := n.repo.SaveBooking(ctx, b); err != nil {
		slog.Error("Negotiator.Schedule: failed to persist booking", "error", err, "callID", req.CallID)
		return models.AppointmentBooking{}, fmt.Errorf("failed to save booking: %w", err)
	}

	slog.Info("Negotiator.Schedule: booking created",
		"bookingID", b.ID, "callID", req.CallID, "urgency", req.Urgency, "window", window)
	return b, nil
}

// windowFor maps urgency to the scheduling window and duration label.
func windowFor(urgency string) (window, duration string) {
	switch strings.ToLower(strings.TrimSpace(urgency)) {
	case "emergency":
		return "Immediate - Emergency Department", "Emergency consultation"
	case "high":
		return "Within 24-48 hours", "Urgent consultation (30-45 minutes)"
	case "medium":
		return "Within 1 week", "Standard consultation (30 minutes)"
	default:
		return "Within 2-4 weeks", "Routine consultation (20-30 minutes)"
	}
}
