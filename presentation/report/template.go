package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/remedyops/remedy/domain/entity"
)

// Render produces the markdown body of a resolved-incident report.
func Render(incident *entity.Incident, result *entity.AnalysisResult) string {
	resolvedAt := "unresolved"
	duration := "n/a"
	if incident.ResolvedAt != nil {
		resolvedAt = incident.ResolvedAt.UTC().Format(time.RFC3339)
		duration = incident.ResolvedAt.Sub(incident.DetectedAt).Round(time.Second).String()
	}

	return fmt.Sprintf(`# %s

## Summary

%s

## Timeline

* Detected: %s
* Resolved: %s
* Time to resolution: %s

## Service

%s (%s, source: %s)

## Root Cause

%s

## Impact

%s

## Resolution Steps

%s

## Prevention

%s
`,
		incident.Title,
		incident.Description,
		incident.DetectedAt.UTC().Format(time.RFC3339),
		resolvedAt,
		duration,
		incident.ServiceName,
		strings.ToUpper(string(incident.Severity)),
		incident.Source,
		incident.RootCause,
		result.Impact,
		bulletList(incident.ResolutionSteps),
		bulletList(result.PreventionSteps),
	)
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return "* None recorded"
	}
	var b strings.Builder
	for _, item := range items {
		b.WriteString("* ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
