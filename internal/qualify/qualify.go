// Package qualify implements the LLM qualification stage: one completion
// round-trip per candidate, parsed into a structured verdict. The contract
// is that Qualify always resolves — transport failures, provider-reported
// errors, and malformed output all degrade to a REJECT/LOW verdict instead
// of surfacing an error, so a single bad response never stops a batch.
package qualify

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/leadpipe/internal/config"
	"github.com/sells-group/leadpipe/internal/model"
)

// Completer abstracts the language-model completion endpoint. Implementations
// return the raw completion text; failure handling stays in the Qualifier.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Qualifier turns candidates into qualification verdicts.
type Qualifier struct {
	completer Completer
	criteria  *config.Criteria
	system    string
}

// New builds a Qualifier. The system prompt is rendered once from the
// criteria since it is identical for every candidate in a run.
func New(completer Completer, criteria *config.Criteria) *Qualifier {
	if criteria == nil {
		criteria = config.DefaultCriteria()
	}
	return &Qualifier{
		completer: completer,
		criteria:  criteria,
		system:    buildSystemPrompt(criteria),
	}
}

// Qualify runs one candidate through the model. It never returns an error:
// any failure is encoded as a REJECT/LOW verdict with a diagnostic reasoning
// string. Retries are deliberately not performed here; failure policy belongs
// to the caller and the current policy is to accept the downgrade.
func (q *Qualifier) Qualify(ctx context.Context, c model.Candidate) model.QualificationVerdict {
	raw, err := q.completer.Complete(ctx, q.system, buildUserPrompt(c))
	if err != nil {
		zap.L().Warn("qualify: completion failed",
			zap.String("candidate", c.Name),
			zap.Error(err),
		)
		return fallbackVerdict("error: " + err.Error())
	}

	verdict, ok := parseVerdict(raw)
	if !ok {
		zap.L().Warn("qualify: unparseable completion",
			zap.String("candidate", c.Name),
			zap.String("raw", truncate(raw, 200)),
		)
		return fallbackVerdict("error: model returned unparseable response")
	}

	return verdict
}

// fallbackVerdict is the uniform soft-failure shape: both the transport
// failure path and the model-returned-error path funnel here.
func fallbackVerdict(diagnostic string) model.QualificationVerdict {
	return model.QualificationVerdict{
		Decision:   model.DecisionReject,
		Confidence: model.ConfidenceLow,
		Reasoning:  diagnostic,
	}
}

// verdictWire is the JSON shape requested from the model.
type verdictWire struct {
	Decision     string `json:"decision"`
	Confidence   string `json:"confidence"`
	Reasoning    string `json:"reasoning"`
	Company      string `json:"company"`
	Role         string `json:"role"`
	Seniority    string `json:"seniority"`
	SizeEstimate string `json:"size_estimate"`
}

// parseVerdict extracts a verdict from raw model output. The text may be
// wrapped in code fences or commentary; unparseable content reports ok=false
// rather than a partial verdict.
func parseVerdict(raw string) (model.QualificationVerdict, bool) {
	cleaned := cleanJSON(raw)
	if cleaned == "" {
		return model.QualificationVerdict{}, false
	}

	var wire verdictWire
	if err := json.Unmarshal([]byte(cleaned), &wire); err != nil {
		return model.QualificationVerdict{}, false
	}

	var decision model.Decision
	switch strings.ToUpper(strings.TrimSpace(wire.Decision)) {
	case "ACCEPT":
		decision = model.DecisionAccept
	case "REJECT":
		decision = model.DecisionReject
	default:
		return model.QualificationVerdict{}, false
	}

	confidence := model.ConfidenceLow
	switch strings.ToUpper(strings.TrimSpace(wire.Confidence)) {
	case "HIGH":
		confidence = model.ConfidenceHigh
	case "MEDIUM":
		confidence = model.ConfidenceMedium
	case "LOW":
		confidence = model.ConfidenceLow
	}

	verdict := model.QualificationVerdict{
		Decision:   decision,
		Confidence: confidence,
		Reasoning:  strings.TrimSpace(wire.Reasoning),
	}

	if wire.Company != "" || wire.Role != "" || wire.Seniority != "" || wire.SizeEstimate != "" {
		verdict.Extracted = &model.ExtractedFields{
			Company:      wire.Company,
			Role:         wire.Role,
			Seniority:    wire.Seniority,
			SizeEstimate: wire.SizeEstimate,
		}
	}

	return verdict, true
}

// cleanJSON attempts to extract a JSON object from text that may contain
// markdown code fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	// Find first { and last }.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
