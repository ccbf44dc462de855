package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/medagg/cardiovoice/internal/models"
	"github.com/medagg/cardiovoice/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	s, err := NewServer(WithStore(st))
	if err != nil {
		t.Fatalf("failed to build server: %v", err)
	}
	return s, st
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func getPath(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func testPatient() models.PatientRef {
	return models.PatientRef{
		Name:               "Asha",
		Phone:              "+919876543210",
		MedicalCategory:    "cardiology",
		ProblemDescription: "chest discomfort",
		LanguagePreference: models.LanguageEnglish,
	}
}

func startCall(t *testing.T, handler http.Handler) createCallResponse {
	t.Helper()
	rec := postJSON(t, handler, "/calls", createCallRequest{Patient: testPatient()})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create call status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp createCallResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode create response: %v", err)
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec := getPath(t, s.routes(), "/health")
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("health body = %s", rec.Body.String())
	}
}

func TestCreateCall(t *testing.T) {
	s, _ := newTestServer(t)
	resp := startCall(t, s.routes())
	if resp.CallID == "" {
		t.Error("create call should return a call id")
	}
	if resp.Stage != models.StageIdentityVerification {
		t.Errorf("stage = %s, want identity_verification", resp.Stage)
	}
	if !strings.Contains(resp.Reply, "Asha") {
		t.Errorf("greeting should be personalized: %q", resp.Reply)
	}
}

func TestCreateCallMissingPatient(t *testing.T) {
	s, _ := newTestServer(t)
	rec := postJSON(t, s.routes(), "/calls", createCallRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCreateCallInvalidJSON(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/calls", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestTurnEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	handler := s.routes()
	created := startCall(t, handler)

	rec := postJSON(t, handler, "/calls/"+created.CallID+"/turn", turnRequest{Utterance: "yes that's correct"})
	if rec.Code != http.StatusOK {
		t.Fatalf("turn status = %d, body %s", rec.Code, rec.Body.String())
	}
	var result models.TurnResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode turn result: %v", err)
	}
	if result.Stage != models.StageSymptomInquiry {
		t.Errorf("stage = %s, want symptom_inquiry", result.Stage)
	}
	if result.Terminal {
		t.Error("identity confirmation must not be terminal")
	}
}

func TestTurnUnknownCall(t *testing.T) {
	s, _ := newTestServer(t)
	rec := postJSON(t, s.routes(), "/calls/nope/turn", turnRequest{Utterance: "hello"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestTurnEmptyUtterance(t *testing.T) {
	s, _ := newTestServer(t)
	handler := s.routes()
	created := startCall(t, handler)
	rec := postJSON(t, handler, "/calls/"+created.CallID+"/turn", turnRequest{Utterance: "  "})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestTurnAfterTerminateConflicts(t *testing.T) {
	s, _ := newTestServer(t)
	handler := s.routes()
	created := startCall(t, handler)

	rec := postJSON(t, handler, "/calls/"+created.CallID+"/terminate", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("terminate status = %d", rec.Code)
	}
	var call models.CallContext
	if err := json.Unmarshal(rec.Body.Bytes(), &call); err != nil {
		t.Fatalf("failed to decode call: %v", err)
	}
	if call.Stage != models.StageTerminated {
		t.Errorf("stage = %s, want terminated", call.Stage)
	}

	rec = postJSON(t, handler, "/calls/"+created.CallID+"/turn", turnRequest{Utterance: "hello"})
	if rec.Code != http.StatusConflict {
		t.Errorf("turn on closed call status = %d, want 409", rec.Code)
	}
}

func TestGetCall(t *testing.T) {
	s, _ := newTestServer(t)
	handler := s.routes()
	created := startCall(t, handler)

	rec := getPath(t, handler, "/calls/"+created.CallID)
	if rec.Code != http.StatusOK {
		t.Fatalf("get call status = %d", rec.Code)
	}
	var call models.CallContext
	if err := json.Unmarshal(rec.Body.Bytes(), &call); err != nil {
		t.Fatalf("failed to decode call: %v", err)
	}
	if call.CallID != created.CallID || len(call.Transcript) != 1 {
		t.Errorf("unexpected call payload: %+v", call)
	}

	if rec := getPath(t, handler, "/calls/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown call status = %d, want 404", rec.Code)
	}
}

func TestBookingsEndpoints(t *testing.T) {
	s, st := newTestServer(t)
	handler := s.routes()

	rec := getPath(t, handler, "/bookings")
	if rec.Code != http.StatusOK {
		t.Fatalf("list bookings status = %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("empty bookings should serialize as [], got %s", rec.Body.String())
	}

	b := models.AppointmentBooking{ID: "b1", CallID: "c1", Status: models.BookingScheduled, ScheduledWindow: "Within 1 week"}
	if err := st.SaveBooking(context.Background(), b); err != nil {
		t.Fatalf("SaveBooking failed: %v", err)
	}

	rec = getPath(t, handler, "/bookings/b1")
	if rec.Code != http.StatusOK {
		t.Fatalf("get booking status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Within 1 week") {
		t.Errorf("booking payload missing window: %s", rec.Body.String())
	}

	if rec := getPath(t, handler, "/bookings/missing"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown booking status = %d, want 404", rec.Code)
	}
}

func TestCallEventsWebsocket(t *testing.T) {
	s, _ := newTestServer(t)
	handler := s.routes()
	created := startCall(t, handler)

	srv := httptest.NewServer(handler)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/calls/" + created.CallID + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer conn.Close()

	// The greeting is replayed on connect.
	var entry models.TranscriptEntry
	if err := conn.ReadJSON(&entry); err != nil {
		t.Fatalf("failed to read replayed entry: %v", err)
	}
	if entry.Speaker != models.SpeakerAssistant || !strings.Contains(entry.Text, "Asha") {
		t.Errorf("unexpected replayed entry: %+v", entry)
	}

	// A new turn streams both the utterance and the reply.
	rec := postJSON(t, handler, "/calls/"+created.CallID+"/turn", turnRequest{Utterance: "yes"})
	if rec.Code != http.StatusOK {
		t.Fatalf("turn status = %d", rec.Code)
	}
	if err := conn.ReadJSON(&entry); err != nil {
		t.Fatalf("failed to read streamed utterance: %v", err)
	}
	if entry.Speaker != models.SpeakerPatient || entry.Text != "yes" {
		t.Errorf("unexpected streamed utterance: %+v", entry)
	}
	if err := conn.ReadJSON(&entry); err != nil {
		t.Fatalf("failed to read streamed reply: %v", err)
	}
	if entry.Speaker != models.SpeakerAssistant {
		t.Errorf("unexpected streamed reply: %+v", entry)
	}

	if rec := getPath(t, handler, "/calls/nope/events"); rec.Code != http.StatusNotFound {
		t.Errorf("events for unknown call status = %d, want 404", rec.Code)
	}
}

func TestEventHubAttachOrdersBacklogBeforeLive(t *testing.T) {
	hub := newEventHub()
	backlog := []models.TranscriptEntry{
		{Speaker: models.SpeakerAssistant, Text: "first"},
		{Speaker: models.SpeakerPatient, Text: "second"},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		if err := hub.attach("c1", conn, backlog); err != nil {
			t.Errorf("attach failed: %v", err)
			return
		}
		// Published after attach, so it must arrive after the backlog.
		hub.Publish("c1", models.TranscriptEntry{Speaker: models.SpeakerAssistant, Text: "live"})
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer conn.Close()

	want := []string{"first", "second", "live"}
	for _, text := range want {
		var entry models.TranscriptEntry
		if err := conn.ReadJSON(&entry); err != nil {
			t.Fatalf("failed to read entry %q: %v", text, err)
		}
		if entry.Text != text {
			t.Errorf("entry = %q, want %q", entry.Text, text)
		}
	}
}
