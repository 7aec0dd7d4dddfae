package entity

// AnalysisResult is the structured output of an AI incident analysis.
// Every field is populated before it reaches the pipeline; a failed analysis
// yields a degraded result with Err set instead of an error.
type AnalysisResult struct {
	RootCause       string   `json:"root_cause"`
	Impact          string   `json:"impact"`
	ResolutionSteps []string `json:"resolution_steps"`
	PreventionSteps []string `json:"prevention_steps"`
	Confidence      string   `json:"confidence"`
	Err             string   `json:"error,omitempty"`
	RawResponse     string   `json:"raw_response,omitempty"`
}

// AsMap flattens the result for storage as an action payload.
func (a *AnalysisResult) AsMap() map[string]any {
	m := map[string]any{
		"root_cause":       a.RootCause,
		"impact":           a.Impact,
		"resolution_steps": a.ResolutionSteps,
		"prevention_steps": a.PreventionSteps,
		"confidence":       a.Confidence,
	}
	if a.Err != "" {
		m["error"] = a.Err
	}
	return m
}

type FixResult struct {
	Success      bool     `json:"success"`
	SuggestedFix string   `json:"suggested_fix,omitempty"`
	Explanation  string   `json:"explanation,omitempty"`
	Changes      []string `json:"changes,omitempty"`
	Confidence   string   `json:"confidence,omitempty"`
	TestingNotes []string `json:"testing_notes,omitempty"`
	Err          string   `json:"error,omitempty"`
	Suggestion   string   `json:"suggestion,omitempty"`
}

// SimilarMatch is a knowledge-base entry the model affirmed as both similar
// and applicable to the current incident.
type SimilarMatch struct {
	Entry      KnowledgeEntry `json:"similar_incident"`
	Confidence string         `json:"confidence"`
	Reasoning  string         `json:"reasoning"`
}

// ExecutionResult is the outcome of one remediation workflow execution.
type ExecutionResult struct {
	Success     bool           `json:"success"`
	ExecutionID string         `json:"execution_id,omitempty"`
	Outputs     map[string]any `json:"outputs,omitempty"`
	Duration    string         `json:"duration,omitempty"`
	Err         string         `json:"error,omitempty"`
}
