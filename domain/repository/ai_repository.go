package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/Songmu/retry"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/remedyops/remedy/domain/entity"
)

const (
	analysisSystemPrompt = "You are an expert DevOps incident response agent. Provide clear, actionable analysis in valid JSON format only."

	// Prompt inputs are capped so a runaway stack trace cannot blow up the
	// request payload or the token bill.
	maxStackTraceChars  = 1000
	maxDescriptionChars = 500

	aiMaxAttempts = 3
)

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

type SimilarityRanker interface {
	RankSimilar(ctx context.Context, query string, candidates []entity.KnowledgeEntry, topK int) ([]entity.KnowledgeEntry, error)
}

type AIRepository struct {
	client        *openai.Client
	model         string
	ranker        SimilarityRanker
	retryInterval time.Duration
}

func NewAIRepository(model string, ranker SimilarityRanker) (*AIRepository, error) {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}

	options := []option.RequestOption{
		option.WithAPIKey(key),
	}
	// OpenAI-compatible providers (Groq, Together) are selected by endpoint.
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	c := openai.NewClient(options...)
	return &AIRepository{
		client:        &c,
		model:         model,
		ranker:        ranker,
		retryInterval: 3 * time.Second,
	}, nil
}

// AnalyzeIncident produces a root cause and resolution plan for the incident.
// It never fails: when the endpoint is unreachable or the response is
// unusable, a degraded result with Err set is returned instead.
func (h *AIRepository) AnalyzeIncident(ctx context.Context, incident *entity.Incident) *entity.AnalysisResult {
	prompt := h.buildAnalysisPrompt(incident)

	response, err := h.callOpenAIWithRetry(ctx, prompt)
	if err != nil {
		slog.Error("incident analysis failed", slog.String("incident_id", incident.ID), slog.Any("error", err))
		return &entity.AnalysisResult{
			RootCause:       "Analysis failed - manual investigation required",
			Impact:          "Unknown",
			ResolutionSteps: []string{"Review logs manually", "Contact on-call engineer"},
			PreventionSteps: []string{"Add monitoring"},
			Confidence:      "low",
			Err:             err.Error(),
		}
	}

	return h.parseAnalysisResponse(response)
}

func (h *AIRepository) buildAnalysisPrompt(incident *entity.Incident) string {
	stackTrace := incident.StackTrace
	if stackTrace == "" {
		stackTrace = "Not available"
	}
	metadata, _ := json.MarshalIndent(incident.Metadata, "", "  ")

	return fmt.Sprintf(`You are a DevOps expert analyzing a production incident.

Incident Details:
- Title: %s
- Service: %s
- Error Type: %s
- Description: %s

Stack Trace:
%s

Metadata:
%s

Please provide a detailed analysis in JSON format with the following structure:
{
    "root_cause": "Clear explanation of what caused this incident",
    "impact": "Description of severity and affected systems",
    "resolution_steps": ["Step 1", "Step 2", "Step 3"],
    "prevention_steps": ["Prevention measure 1", "Prevention measure 2"],
    "confidence": "high/medium/low"
}

Be specific and actionable. Focus on technical root causes, not symptoms.`,
		incident.Title,
		incident.ServiceName,
		incident.ErrorType,
		truncate(incident.Description, maxDescriptionChars),
		truncate(stackTrace, maxStackTraceChars),
		string(metadata),
	)
}

func (h *AIRepository) callOpenAIWithRetry(ctx context.Context, prompt string) (string, error) {
	var result string
	err := retry.Retry(aiMaxAttempts, h.retryInterval, func() error {
		resp, err := h.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(analysisSystemPrompt),
				openai.UserMessage(prompt),
			},
			Model:       h.model,
			Temperature: openai.Float(0.3),
			MaxTokens:   openai.Int(1500),
		})
		if err != nil {
			return err
		}

		if len(resp.Choices) == 0 {
			return fmt.Errorf("no response from OpenAI")
		}

		result = resp.Choices[0].Message.Content
		return nil
	})

	return result, err
}

// parseAnalysisResponse tries the parse strategies in order: direct JSON,
// JSON object embedded in surrounding prose, then a hardcoded degraded result.
func (h *AIRepository) parseAnalysisResponse(response string) *entity.AnalysisResult {
	var data map[string]any
	if err := json.Unmarshal([]byte(response), &data); err != nil {
		slog.Warn("analysis response is not valid JSON", slog.Any("error", err))
		return h.extractFallbackAnalysis(response)
	}

	if _, ok := data["root_cause"]; !ok {
		return h.extractFallbackAnalysis(response)
	}
	if _, ok := data["resolution_steps"]; !ok {
		return h.extractFallbackAnalysis(response)
	}

	return normalizeAnalysis(data)
}

func (h *AIRepository) extractFallbackAnalysis(response string) *entity.AnalysisResult {
	if match := jsonObjectPattern.FindString(response); match != "" {
		var data map[string]any
		if err := json.Unmarshal([]byte(match), &data); err == nil {
			if _, ok := data["root_cause"]; ok {
				return normalizeAnalysis(data)
			}
		}
	}

	rootCause := truncate(response, maxDescriptionChars)
	if rootCause == "" {
		rootCause = "Analysis incomplete"
	}
	return &entity.AnalysisResult{
		RootCause: rootCause,
		Impact:    "Requires manual investigation",
		ResolutionSteps: []string{
			"Review application logs",
			"Check service dependencies",
			"Verify configuration changes",
			"Monitor system metrics",
		},
		PreventionSteps: []string{
			"Add automated monitoring",
			"Implement better error handling",
			"Add alerting thresholds",
		},
		Confidence:  "low",
		RawResponse: truncate(response, maxStackTraceChars),
	}
}

// normalizeAnalysis fills defaults so no partial result ever reaches the
// pipeline. Scalar step values are wrapped into single-element lists.
func normalizeAnalysis(data map[string]any) *entity.AnalysisResult {
	result := &entity.AnalysisResult{
		RootCause:       stringValue(data["root_cause"]),
		Impact:          stringValue(data["impact"]),
		ResolutionSteps: toStringList(data["resolution_steps"]),
		PreventionSteps: toStringList(data["prevention_steps"]),
		Confidence:      stringValue(data["confidence"]),
	}
	if len(result.ResolutionSteps) == 0 {
		result.ResolutionSteps = []string{"Review manually"}
	}
	if len(result.PreventionSteps) == 0 {
		result.PreventionSteps = []string{"Add monitoring", "Improve error handling"}
	}
	if result.Confidence == "" {
		result.Confidence = "medium"
	}
	if result.Impact == "" {
		result.Impact = "Service degradation detected"
	}
	return result
}

// SuggestCodeFix asks the model for a corrected version of the code that
// caused the incident. A missing snippet fails fast without an API call.
func (h *AIRepository) SuggestCodeFix(ctx context.Context, incident *entity.Incident, codeSnippet, filePath string) *entity.FixResult {
	if codeSnippet == "" {
		return &entity.FixResult{
			Success:    false,
			Err:        "no code snippet provided",
			Suggestion: "Please provide code snippet for analysis",
		}
	}

	prompt := h.buildCodeFixPrompt(incident, codeSnippet, filePath)

	response, err := h.callOpenAIWithRetry(ctx, prompt)
	if err != nil {
		slog.Error("code fix suggestion failed", slog.String("incident_id", incident.ID), slog.Any("error", err))
		return &entity.FixResult{
			Success:    false,
			Err:        err.Error(),
			Suggestion: "Manual code review required",
		}
	}

	var fix struct {
		FixedCode    string   `json:"fixed_code"`
		Explanation  string   `json:"explanation"`
		Changes      []string `json:"changes"`
		Confidence   string   `json:"confidence"`
		TestingNotes []string `json:"testing_notes"`
	}
	if err := json.Unmarshal([]byte(response), &fix); err != nil {
		if match := jsonObjectPattern.FindString(response); match != "" {
			err = json.Unmarshal([]byte(match), &fix)
		}
		if err != nil {
			return &entity.FixResult{
				Success:    false,
				Err:        fmt.Sprintf("unparseable fix response: %v", err),
				Suggestion: "Manual code review required",
			}
		}
	}

	confidence := fix.Confidence
	if confidence == "" {
		confidence = "medium"
	}
	return &entity.FixResult{
		Success:      true,
		SuggestedFix: fix.FixedCode,
		Explanation:  fix.Explanation,
		Changes:      fix.Changes,
		Confidence:   confidence,
		TestingNotes: fix.TestingNotes,
	}
}

func (h *AIRepository) buildCodeFixPrompt(incident *entity.Incident, codeSnippet, filePath string) string {
	if filePath == "" {
		filePath = "Unknown"
	}
	return fmt.Sprintf(`You are a senior software engineer reviewing code that caused a production incident.

Incident Information:
- Error Type: %s
- Description: %s
- File: %s

Stack Trace:
%s

Problematic Code:
%s

Please provide:
1. Fixed version of the code
2. Explanation of what was wrong
3. List of specific changes made
4. Testing recommendations

Respond in JSON format:
{
    "fixed_code": "complete fixed code here",
    "explanation": "detailed explanation of the root cause",
    "changes": ["change1", "change2"],
    "confidence": "high/medium/low",
    "testing_notes": ["test1", "test2"]
}`,
		incident.ErrorType,
		truncate(incident.Description, maxDescriptionChars),
		filePath,
		truncate(incident.StackTrace, maxStackTraceChars),
		codeSnippet,
	)
}

// CheckSimilarIncidents ranks the knowledge base for the error pattern and
// then asks the model to confirm the best candidate actually applies. A match
// is returned only when the model affirms both similarity and applicability.
func (h *AIRepository) CheckSimilarIncidents(ctx context.Context, errorPattern string, knowledgeBase []entity.KnowledgeEntry) (*entity.SimilarMatch, error) {
	if len(knowledgeBase) == 0 {
		return nil, nil
	}

	similar, err := h.ranker.RankSimilar(ctx, errorPattern, knowledgeBase, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to rank knowledge base: %w", err)
	}
	if len(similar) == 0 {
		return nil, nil
	}

	candidate := similar[0]
	prompt := fmt.Sprintf(`Compare these two incidents and determine if they are similar enough to reuse the solution.

Incident 1 (Current):
%s

Incident 2 (Past):
%s

Past Solution:
%s

Respond in JSON:
{
    "is_similar": true/false,
    "confidence": "high/medium/low",
    "reasoning": "Why they are or are not similar",
    "applicable": true/false
}`, errorPattern, candidate.ErrorPattern, candidate.Solution)

	response, err := h.callOpenAIWithRetry(ctx, prompt)
	if err != nil {
		slog.Warn("similarity verification failed", slog.Any("error", err))
		return nil, nil
	}

	var verification struct {
		IsSimilar  bool   `json:"is_similar"`
		Confidence string `json:"confidence"`
		Reasoning  string `json:"reasoning"`
		Applicable bool   `json:"applicable"`
	}
	if err := json.Unmarshal([]byte(response), &verification); err != nil {
		slog.Warn("unparseable similarity verification", slog.Any("error", err))
		return nil, nil
	}

	if !verification.IsSimilar || !verification.Applicable {
		return nil, nil
	}

	return &entity.SimilarMatch{
		Entry:      candidate,
		Confidence: verification.Confidence,
		Reasoning:  verification.Reasoning,
	}, nil
}

// truncate caps s at max bytes without splitting a multi-byte rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func toStringList(v any) []string {
	switch value := v.(type) {
	case nil:
		return nil
	case []string:
		return value
	case []any:
		steps := make([]string, 0, len(value))
		for _, item := range value {
			steps = append(steps, fmt.Sprint(item))
		}
		return steps
	default:
		return []string{fmt.Sprint(value)}
	}
}
