package triage

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/medagg/cardiovoice/internal/models"
)

// criticalImmediateActions is the fixed ordered action list for critical
// directives (patient conscious, caregiver present).
var criticalImmediateActions = []string{
	"Call 108 (Emergency Services) immediately",
	"If the patient is conscious, have them sit down and rest",
	"Do NOT give any medication unless prescribed",
	"Stay with the patient until emergency services arrive",
}

// urgentImmediateActions is the fixed ordered action list for urgent
// directives.
var urgentImmediateActions = []string{
	"Call 108 (Emergency Services)",
	"Go to nearest hospital emergency room",
	"Do not delay seeking medical attention",
}

// EmergencyHandler produces immediate-action directives when the normal flow
// is short-circuited. It takes precedence over the stage tracker: once
// triggered, its output replaces whatever reply the tracker would have
// produced for the turn.
type EmergencyHandler struct{}

// NewEmergencyHandler creates an emergency escalation handler.
func NewEmergencyHandler() *EmergencyHandler {
	return &EmergencyHandler{}
}

// HandleEmergency builds the directive for a detected emergency. Priority is
// critical when the symptoms mention a heart attack or severity is
// "critical"; urgent otherwise. The directive is delivered through the same
// voice channel as any normal stage reply.
func (h *EmergencyHandler) HandleEmergency(symptoms, severity, patientLocation string) models.EmergencyDirective {
	priority := models.PriorityUrgent
	actions := urgentImmediateActions
	if strings.EqualFold(strings.TrimSpace(severity), "critical") || strings.Contains(strings.ToLower(symptoms), "heart attack") {
		priority = models.PriorityCritical
		actions = criticalImmediateActions
	}

	location := patientLocation
	if location == "" {
		location = "Location not provided"
	}

	directive := models.EmergencyDirective{
		ID:               uuid.NewString(),
		Symptoms:         symptoms,
		Severity:         severity,
		PatientLocation:  patientLocation,
		Message:          directiveMessage(priority, location, symptoms, severity),
		Priority:         priority,
		ImmediateActions: append([]string(nil), actions...),
		CreatedAt:        time.Now().UTC(),
	}

	slog.Warn("EmergencyHandler.HandleEmergency: directive issued",
		"priority", priority, "severity", severity, "locationProvided", patientLocation != "")
	return directive
}

func directiveMessage(priority models.Priority, location, symptoms, severity string) string {
	var b strings.Builder
	if priority == models.PriorityCritical {
		b.WriteString("CRITICAL EMERGENCY ALERT\n\n")
	} else {
		b.WriteString("EMERGENCY ALERT\n\n")
	}
	fmt.Fprintf(&b, "Patient: %s\nSymptoms: %s\nSeverity: %s\n\nIMMEDIATE ACTION REQUIRED:\n", location, symptoms, severity)
	actions := urgentImmediateActions
	if priority == models.PriorityCritical {
		actions = criticalImmediateActions
	}
	for i, action := range actions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, action)
	}
	if priority == models.PriorityCritical {
		b.WriteString("\nThis is a medical emergency requiring immediate professional intervention.")
	} else {
		b.WriteString("\nPlease seek immediate medical care for these symptoms.")
	}
	return b.String()
}
