package triage

import (
	"strings"
	"testing"

	"github.com/medagg/cardiovoice/internal/models"
)

func TestHandleEmergencyCritical(t *testing.T) {
	h := NewEmergencyHandler()

	cases := []struct {
		name     string
		symptoms string
		severity string
	}{
		{"heart attack in symptoms", "I think I'm having a heart attack", "high"},
		{"critical severity", "chest pain and sweating", "critical"},
		{"critical severity case insensitive", "chest pain", "CRITICAL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := h.HandleEmergency(tc.symptoms, tc.severity, "")
			if d.Priority != models.PriorityCritical {
				t.Errorf("priority = %s, want %s", d.Priority, models.PriorityCritical)
			}
			if len(d.ImmediateActions) != 4 {
				t.Fatalf("expected 4 critical actions, got %d", len(d.ImmediateActions))
			}
			if d.ImmediateActions[0] != "Call 108 (Emergency Services) immediately" {
				t.Errorf("unexpected first action: %q", d.ImmediateActions[0])
			}
			if !strings.Contains(d.Message, "CRITICAL EMERGENCY ALERT") {
				t.Errorf("critical message should carry the critical header, got %q", d.Message)
			}
		})
	}
}

func TestHandleEmergencyUrgent(t *testing.T) {
	h := NewEmergencyHandler()
	d := h.HandleEmergency("severe chest pain", "high", "Chennai")
	if d.Priority != models.PriorityUrgent {
		t.Errorf("priority = %s, want %s", d.Priority, models.PriorityUrgent)
	}
	if len(d.ImmediateActions) != 3 {
		t.Fatalf("expected 3 urgent actions, got %d", len(d.ImmediateActions))
	}
	if d.ImmediateActions[0] != "Call 108 (Emergency Services)" {
		t.Errorf("unexpected first action: %q", d.ImmediateActions[0])
	}
	if !strings.Contains(d.Message, "Chennai") {
		t.Errorf("message should include the patient location, got %q", d.Message)
	}
}

func TestHandleEmergencyLocationDefault(t *testing.T) {
	h := NewEmergencyHandler()
	d := h.HandleEmergency("unconscious", "high", "")
	if !strings.Contains(d.Message, "Location not provided") {
		t.Errorf("message should note missing location, got %q", d.Message)
	}
	if d.PatientLocation != "" {
		t.Errorf("directive should keep the raw empty location, got %q", d.PatientLocation)
	}
}

func TestHandleEmergencyActionListIsolated(t *testing.T) {
	h := NewEmergencyHandler()
	d := h.HandleEmergency("heart attack", "critical", "")
	d.ImmediateActions[0] = "mutated"
	again := h.HandleEmergency("heart attack", "critical", "")
	if again.ImmediateActions[0] != "Call 108 (Emergency Services) immediately" {
		t.Error("directives must not share the underlying action slice")
	}
}
