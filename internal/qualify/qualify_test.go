package qualify

import (
	"context"
	"fmt"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadpipe/internal/model"
)

func testCandidate() model.Candidate {
	return model.Candidate{
		ID:          "cand-1",
		Source:      model.SourceTwitterCSV,
		Name:        "Jordan Ferris",
		Description: "Founder building a B2B SaaS analytics platform",
		Location:    "Austin, TX",
		Metric:      "2400",
	}
}

func TestQualify_Accept(t *testing.T) {
	t.Parallel()

	completer := new(mockCompleter)
	completer.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Return(`{"decision": "ACCEPT", "confidence": "HIGH", "reasoning": "Founder at a seed-stage B2B SaaS company", "company": "Ferris Analytics", "role": "Founder", "seniority": "C-level", "size_estimate": "11-50"}`, nil)

	q := New(completer, nil)
	verdict := q.Qualify(context.Background(), testCandidate())

	assert.Equal(t, model.DecisionAccept, verdict.Decision)
	assert.Equal(t, model.ConfidenceHigh, verdict.Confidence)
	assert.Equal(t, "Founder at a seed-stage B2B SaaS company", verdict.Reasoning)
	require.NotNil(t, verdict.Extracted)
	assert.Equal(t, "Ferris Analytics", verdict.Extracted.Company)
	assert.Equal(t, "Founder", verdict.Extracted.Role)
	assert.True(t, verdict.Accepted())
}

func TestQualify_FencedJSON(t *testing.T) {
	t.Parallel()

	completer := new(mockCompleter)
	completer.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Return("```json\n{\"decision\": \"REJECT\", \"confidence\": \"MEDIUM\", \"reasoning\": \"Agency owner, not SaaS\"}\n```", nil)

	q := New(completer, nil)
	verdict := q.Qualify(context.Background(), testCandidate())

	assert.Equal(t, model.DecisionReject, verdict.Decision)
	assert.Equal(t, model.ConfidenceMedium, verdict.Confidence)
	assert.Equal(t, "Agency owner, not SaaS", verdict.Reasoning)
	assert.Nil(t, verdict.Extracted)
}

func TestQualify_SurroundingCommentary(t *testing.T) {
	t.Parallel()

	completer := new(mockCompleter)
	completer.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Return(`Here is my assessment: {"decision": "accept", "confidence": "high", "reasoning": "Strong fit"} Let me know if you need more detail.`, nil)

	q := New(completer, nil)
	verdict := q.Qualify(context.Background(), testCandidate())

	assert.Equal(t, model.DecisionAccept, verdict.Decision)
	assert.Equal(t, model.ConfidenceHigh, verdict.Confidence)
}

func TestQualify_TransportError(t *testing.T) {
	t.Parallel()

	completer := new(mockCompleter)
	completer.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Return("", eris.New("send request: connection refused"))

	q := New(completer, nil)
	verdict := q.Qualify(context.Background(), testCandidate())

	assert.Equal(t, model.DecisionReject, verdict.Decision)
	assert.Equal(t, model.ConfidenceLow, verdict.Confidence)
	assert.Contains(t, verdict.Reasoning, "error:")
	assert.Contains(t, verdict.Reasoning, "connection refused")
	// Exactly one attempt: failures degrade, they do not retry.
	completer.AssertNumberOfCalls(t, "Complete", 1)
}

func TestQualify_MalformedJSON(t *testing.T) {
	t.Parallel()

	completer := new(mockCompleter)
	completer.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Return(`{"decision": "ACCEPT", "confidence": `, nil)

	q := New(completer, nil)
	verdict := q.Qualify(context.Background(), testCandidate())

	assert.Equal(t, model.DecisionReject, verdict.Decision)
	assert.Equal(t, model.ConfidenceLow, verdict.Confidence)
	assert.Contains(t, verdict.Reasoning, "error:")
}

func TestQualify_EmptyCompletion(t *testing.T) {
	t.Parallel()

	completer := new(mockCompleter)
	completer.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Return("", nil)

	q := New(completer, nil)
	verdict := q.Qualify(context.Background(), testCandidate())

	assert.Equal(t, model.DecisionReject, verdict.Decision)
	assert.Equal(t, model.ConfidenceLow, verdict.Confidence)
}

func TestQualify_InvalidDecision(t *testing.T) {
	t.Parallel()

	completer := new(mockCompleter)
	completer.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Return(`{"decision": "MAYBE", "confidence": "HIGH", "reasoning": "Unsure"}`, nil)

	q := New(completer, nil)
	verdict := q.Qualify(context.Background(), testCandidate())

	assert.Equal(t, model.DecisionReject, verdict.Decision)
	assert.Equal(t, model.ConfidenceLow, verdict.Confidence)
	assert.Contains(t, verdict.Reasoning, "error:")
}

func TestQualify_UnknownConfidenceDefaultsLow(t *testing.T) {
	t.Parallel()

	completer := new(mockCompleter)
	completer.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Return(`{"decision": "ACCEPT", "confidence": "certain", "reasoning": "Good fit"}`, nil)

	q := New(completer, nil)
	verdict := q.Qualify(context.Background(), testCandidate())

	assert.Equal(t, model.DecisionAccept, verdict.Decision)
	assert.Equal(t, model.ConfidenceLow, verdict.Confidence)
}

func TestQualify_AllFailuresDegrade(t *testing.T) {
	t.Parallel()

	completer := new(mockCompleter)
	completer.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Return("", eris.New("send request: dial tcp: connection refused"))

	q := New(completer, nil)
	for i := 0; i < 10; i++ {
		c := testCandidate()
		c.ID = fmt.Sprintf("cand-%d", i)
		verdict := q.Qualify(context.Background(), c)
		assert.Equal(t, model.DecisionReject, verdict.Decision, "candidate %d", i)
		assert.Equal(t, model.ConfidenceLow, verdict.Confidence, "candidate %d", i)
	}
	completer.AssertNumberOfCalls(t, "Complete", 10)
}

func TestParseVerdict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		raw          string
		wantOK       bool
		wantDecision model.Decision
		wantConf     model.Confidence
	}{
		{
			name:         "plain object",
			raw:          `{"decision": "ACCEPT", "confidence": "MEDIUM", "reasoning": "fit"}`,
			wantOK:       true,
			wantDecision: model.DecisionAccept,
			wantConf:     model.ConfidenceMedium,
		},
		{
			name:         "lowercase fields",
			raw:          `{"decision": "reject", "confidence": "low", "reasoning": "no fit"}`,
			wantOK:       true,
			wantDecision: model.DecisionReject,
			wantConf:     model.ConfidenceLow,
		},
		{
			name:         "whitespace padding",
			raw:          `{"decision": " ACCEPT ", "confidence": " HIGH ", "reasoning": "fit"}`,
			wantOK:       true,
			wantDecision: model.DecisionAccept,
			wantConf:     model.ConfidenceHigh,
		},
		{
			name:   "missing decision",
			raw:    `{"confidence": "HIGH", "reasoning": "fit"}`,
			wantOK: false,
		},
		{
			name:   "not json",
			raw:    "the lead looks qualified to me",
			wantOK: false,
		},
		{
			name:   "empty",
			raw:    "",
			wantOK: false,
		},
		{
			name:   "array not object",
			raw:    `["ACCEPT"]`,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			verdict, ok := parseVerdict(tt.raw)
			require.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantDecision, verdict.Decision)
				assert.Equal(t, tt.wantConf, verdict.Confidence)
			}
		})
	}
}

func TestCleanJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "bare object",
			input: `{"a": 1}`,
			want:  `{"a": 1}`,
		},
		{
			name:  "json fence",
			input: "```json\n{\"a\": 1}\n```",
			want:  `{"a": 1}`,
		},
		{
			name:  "plain fence",
			input: "```\n{\"a\": 1}\n```",
			want:  `{"a": 1}`,
		},
		{
			name:  "leading prose",
			input: `Sure thing: {"a": 1}`,
			want:  `{"a": 1}`,
		},
		{
			name:  "trailing prose",
			input: `{"a": 1} hope that helps`,
			want:  `{"a": 1}`,
		},
		{
			name:  "no object",
			input: "no json here",
			want:  "no json here",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, cleanJSON(tt.input))
		})
	}
}
