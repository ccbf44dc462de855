// Package api provides HTTP handlers for cardiovoice endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/medagg/cardiovoice/internal/models"
)

// createCallRequest starts a new conversation. When Dial is set and a
// telephony client is configured, the greeting is also spoken over an
// outbound voice call.
type createCallRequest struct {
	Patient      models.PatientRef `json:"patient"`
	LanguageHint string            `json:"language_hint,omitempty"`
	Dial         bool              `json:"dial,omitempty"`
}

type createCallResponse struct {
	CallID   string          `json:"call_id"`
	Reply    string          `json:"response_text"`
	Stage    models.Stage    `json:"stage"`
	Language models.Language `json:"language"`
}

type turnRequest struct {
	Utterance    string `json:"utterance"`
	LanguageHint string `json:"language_hint,omitempty"`
}

func (s *Server) createCallHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	var req createCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.createCallHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	call, greeting, err := s.engine.StartCall(r.Context(), req.Patient, req.LanguageHint)
	if err != nil {
		if errors.Is(err, models.ErrMissingPatientContext) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Patient name and phone are required"))
			return
		}
		slog.Error("Server.createCallHandler: failed to start call", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to start call"))
		return
	}

	if req.Dial && s.dialer != nil {
		if err := s.dialer.Say(r.Context(), call.Patient.Phone, greeting, string(call.Language)); err != nil {
			// The conversation is still usable over the API.
			slog.Error("Server.createCallHandler: outbound dial failed", "error", err, "callID", call.CallID)
		}
	}

	slog.Info("Server.createCallHandler: call started", "callID", call.CallID, "language", call.Language)
	writeJSONResponse(w, http.StatusCreated, createCallResponse{
		CallID:   call.CallID,
		Reply:    greeting,
		Stage:    call.Stage,
		Language: call.Language,
	})
}

func (s *Server) turnHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	callID := r.PathValue("id")

	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.turnHandler: failed to decode JSON", "error", err, "callID", callID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	result, err := s.engine.ProcessTurn(r.Context(), callID, req.Utterance, req.LanguageHint)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrCallNotFound):
			writeJSONResponse(w, http.StatusNotFound, models.Error("Call not found"))
		case errors.Is(err, models.ErrCallClosed):
			writeJSONResponse(w, http.StatusConflict, models.Error("Call is already closed"))
		case errors.Is(err, models.ErrEmptyUtterance), errors.Is(err, models.ErrEmptyCallID):
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		default:
			slog.Error("Server.turnHandler: turn failed", "error", err, "callID", callID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process turn"))
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, result)
}

func (s *Server) terminateCallHandler(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("id")
	call, err := s.engine.Terminate(r.Context(), callID)
	if err != nil {
		if errors.Is(err, models.ErrCallNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Call not found"))
			return
		}
		slog.Error("Server.terminateCallHandler: failed", "error", err, "callID", callID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to terminate call"))
		return
	}
	writeJSONResponse(w, http.StatusOK, call)
}

func (s *Server) getCallHandler(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("id")
	call, err := s.st.GetCall(r.Context(), callID)
	if err != nil {
		if errors.Is(err, models.ErrCallNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Call not found"))
			return
		}
		slog.Error("Server.getCallHandler: failed", "error", err, "callID", callID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load call"))
		return
	}
	writeJSONResponse(w, http.StatusOK, call)
}

func (s *Server) listBookingsHandler(w http.ResponseWriter, r *http.Request) {
	bookings, err := s.st.ListBookings(r.Context())
	if err != nil {
		slog.Error("Server.listBookingsHandler: failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list bookings"))
		return
	}
	if bookings == nil {
		bookings = []models.AppointmentBooking{}
	}
	writeJSONResponse(w, http.StatusOK, bookings)
}

func (s *Server) getBookingHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	b, err := s.st.GetBooking(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrBookingNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Booking not found"))
			return
		}
		slog.Error("Server.getBookingHandler: failed", "error", err, "bookingID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load booking"))
		return
	}
	writeJSONResponse(w, http.StatusOK, b)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}
