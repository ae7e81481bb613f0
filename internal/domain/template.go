package domain

import "strings"

// Template is an immutable snapshot of a notification template.
type Template struct {
	Name              string   `json:"name"`
	Channel           Channel  `json:"channel"`
	Subject           string   `json:"subject,omitempty"`
	Body              string   `json:"body"`
	RequiredVariables []string `json:"requiredVariables,omitempty"`
}

var baseTemplateNames = map[string]string{
	EventUserRegistered:      "welcome_user",
	EventSessionCompleted:    "session_completion",
	EventProctoringViolation: "proctoring_alert",
	EventAssessmentPublished: "new_assessment_assigned",
}

// BaseTemplateName maps an event type to its channel-independent template name.
func BaseTemplateName(eventType string) string {
	if name, ok := baseTemplateNames[eventType]; ok {
		return name
	}
	return strings.ReplaceAll(eventType, ".", "_")
}

// TemplateName is the lookup key for the (eventType, channel) template,
// e.g. "welcome_user_email".
func TemplateName(eventType string, channel Channel) string {
	return BaseTemplateName(eventType) + "_" + strings.ToLower(string(channel))
}
