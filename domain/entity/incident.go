package entity

import "time"

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return Severity(s)
	}
	return SeverityMedium
}

type Status string

const (
	StatusDetected  Status = "detected"
	StatusAnalyzing Status = "analyzing"
	StatusResolving Status = "resolving"
	StatusResolved  Status = "resolved"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further automatic transition occurs.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusFailed
}

func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusDetected, StatusAnalyzing, StatusResolving, StatusResolved, StatusFailed:
		return Status(s), true
	}
	return "", false
}

type Incident struct {
	ID              string         `json:"id" dynamo:"id,hash"`
	Title           string         `json:"title" dynamo:"title"`
	Description     string         `json:"description" dynamo:"description"`
	Severity        Severity       `json:"severity" dynamo:"severity"`
	Status          Status         `json:"status" dynamo:"status"`
	Source          string         `json:"source" dynamo:"source"`
	ServiceName     string         `json:"service_name" dynamo:"service_name"`
	ErrorType       string         `json:"error_type" dynamo:"error_type"`
	Metadata        map[string]any `json:"metadata" dynamo:"metadata"`
	StackTrace      string         `json:"stack_trace,omitempty" dynamo:"stack_trace"`
	RootCause       string         `json:"root_cause,omitempty" dynamo:"root_cause"`
	ResolutionSteps []string       `json:"resolution_steps" dynamo:"resolution_steps"`
	DetectedAt      time.Time      `json:"detected_at" dynamo:"detected_at"`
	ResolvedAt      *time.Time     `json:"resolved_at,omitempty" dynamo:"resolved_at,omitempty"`
}

// ErrorPattern is the text the knowledge base is keyed on.
func (i *Incident) ErrorPattern() string {
	return i.ErrorType + ": " + i.Description
}

const (
	ActionPending = 0
	ActionSuccess = 1
	ActionFailed  = -1
)

type IncidentAction struct {
	ID          string         `json:"id" dynamo:"id,hash"`
	IncidentID  string         `json:"incident_id" dynamo:"incident_id"`
	ActionType  string         `json:"action_type" dynamo:"action_type"`
	Description string         `json:"description" dynamo:"description"`
	Result      map[string]any `json:"result" dynamo:"result"`
	Success     int            `json:"success" dynamo:"success"`
	CreatedAt   time.Time      `json:"created_at" dynamo:"created_at"`
}

type KnowledgeEntry struct {
	ID           string    `json:"id" dynamo:"id,hash"`
	IncidentID   string    `json:"incident_id" dynamo:"incident_id"`
	ErrorPattern string    `json:"error_pattern" dynamo:"error_pattern"`
	Solution     string    `json:"solution" dynamo:"solution"`
	Embedding    []float64 `json:"embedding" dynamo:"embedding"`
	SuccessRate  int       `json:"success_rate" dynamo:"success_rate"`
	CreatedAt    time.Time `json:"created_at" dynamo:"created_at"`
}
