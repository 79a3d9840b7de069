package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCandidateSplitName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		wantFirst string
		wantLast  string
	}{
		{"Jane Doe", "Jane", "Doe"},
		{"Jane van der Berg", "Jane", "van der Berg"},
		{"Prince", "Prince", ""},
		{"  Ana  Maria  Silva ", "Ana", "Maria Silva"},
		{"", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := Candidate{Name: tt.name}
			assert.Equal(t, tt.wantFirst, c.FirstName())
			assert.Equal(t, tt.wantLast, c.LastName())
		})
	}
}

func TestPreFilterVerdictReason(t *testing.T) {
	t.Parallel()

	v := PreFilterVerdict{
		Passed: false,
		Checks: []SubVerdict{
			{Name: CheckLocation, Passed: true, Confident: true},
			{Name: CheckFollowers, Passed: false, Confident: true, Reason: "followers 9500 outside 100-5000"},
			{Name: CheckKeywords, Passed: false, Confident: true, Reason: "no ICP keywords matched"},
		},
	}

	assert.Equal(t, []string{CheckFollowers, CheckKeywords}, v.FailedChecks())
	assert.Equal(t, "followers 9500 outside 100-5000; no ICP keywords matched", v.Reason())
}

func TestContactCandidateEmailDomain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		contact ContactCandidate
		want    string
	}{
		{"plain", ContactCandidate{Type: ContactEmail, Value: "jane@Acme.COM"}, "acme.com"},
		{"phone", ContactCandidate{Type: ContactPhone, Value: "+1-555-0100"}, ""},
		{"no at", ContactCandidate{Type: ContactEmail, Value: "not-an-email"}, ""},
		{"trailing at", ContactCandidate{Type: ContactEmail, Value: "jane@"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.contact.EmailDomain())
		})
	}
}

func TestEnrichedLeadEmail(t *testing.T) {
	t.Parallel()

	lead := EnrichedLead{Status: EnrichmentPending}
	assert.Empty(t, lead.Email())

	lead.Contact = &ContactCandidate{Type: ContactPhone, Value: "+1-555-0100"}
	assert.Empty(t, lead.Email())

	lead.Contact = &ContactCandidate{Type: ContactEmail, Value: "jane@acme.com"}
	assert.Equal(t, "jane@acme.com", lead.Email())
}

func TestStageValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		stage Stage
		want  string
	}{
		{StageIdle, "idle"},
		{StageFetching, "fetching"},
		{StageFiltering, "filtering"},
		{StageEnriching, "enriching"},
		{StageComplete, "complete"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.stage))
		})
	}
}
