package domain

import "time"

// Inbound event types.
const (
	EventUserRegistered      = "user.registered"
	EventSessionCompleted    = "session.completed"
	EventProctoringViolation = "proctoring.violation"
	EventAssessmentPublished = "assessment.published"
)

// Outbound outcome event types.
const (
	EventNotificationSent   = "notification.sent"
	EventNotificationFailed = "notification.failed"
	EventBulkCompleted      = "notification.bulk_completed"
)

// Envelope is the metadata every inbound event carries.
type Envelope struct {
	ID        string    `json:"eventId"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
}

// Event is implemented by every decoded inbound event.
type Event interface {
	Meta() Envelope
}

type UserRegistered struct {
	Envelope
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (e UserRegistered) Meta() Envelope { return e.Envelope }

type SessionCompleted struct {
	Envelope
	UserID         string  `json:"userId"`
	Username       string  `json:"username"`
	Email          string  `json:"email"`
	SessionID      string  `json:"sessionId"`
	AssessmentName string  `json:"assessmentName"`
	CompletionTime string  `json:"completionTime"`
	Score          float64 `json:"score"`
	Status         string  `json:"status"`
}

func (e SessionCompleted) Meta() Envelope { return e.Envelope }

type ProctoringViolation struct {
	Envelope
	UserID        string   `json:"userId"`
	Username      string   `json:"username"`
	SessionID     string   `json:"sessionId"`
	ViolationType string   `json:"violationType"`
	Severity      string   `json:"severity"`
	ProctorIDs    []string `json:"proctorIds"`
}

func (e ProctoringViolation) Meta() Envelope { return e.Envelope }

// AssignedUser is one recipient of a published assessment.
type AssignedUser struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type AssessmentPublished struct {
	Envelope
	AssessmentID   string         `json:"assessmentId"`
	AssessmentName string         `json:"assessmentName"`
	Duration       int            `json:"duration"`
	DueDate        string         `json:"dueDate"`
	AssignedUsers  []AssignedUser `json:"assignedUsers"`
}

func (e AssessmentPublished) Meta() Envelope { return e.Envelope }

// NotificationSent is emitted once a record reaches SENT.
type NotificationSent struct {
	NotificationID string `json:"notificationId"`
	RecipientID    string `json:"recipientId"`
	Channel        string `json:"channel"`
	Type           string `json:"type"`
	Status         string `json:"status"`
	DeliveryTime   string `json:"deliveryTime"`
}

// NotificationFailed is emitted on every failed attempt. WillRetry is false
// once the record is terminal.
type NotificationFailed struct {
	NotificationID string `json:"notificationId"`
	RecipientID    string `json:"recipientId"`
	Channel        string `json:"channel"`
	ErrorMessage   string `json:"errorMessage"`
	RetryCount     int    `json:"retryCount"`
	WillRetry      bool   `json:"willRetry"`
}

// BulkCompleted summarizes one bulk send.
type BulkCompleted struct {
	BatchID         string `json:"batchId"`
	TotalRecipients int    `json:"totalRecipients"`
	SuccessCount    int    `json:"successCount"`
	FailedCount     int    `json:"failedCount"`
	Type            string `json:"type"`
}

// Outcome wraps an outbound event with its envelope.
type Outcome struct {
	Envelope
	Payload any `json:"payload"`
}
