package qualify

import (
	"fmt"
	"strings"

	"github.com/sells-group/leadpipe/internal/config"
	"github.com/sells-group/leadpipe/internal/model"
)

const systemPromptTemplate = `You are a sales development analyst qualifying leads against an Ideal Customer Profile.

The ICP:
%s
Judge each lead on the profile text you are given. Do not invent facts that are not in the text; when the text is silent on a criterion, weigh the criteria that are present and lower your confidence.

Return a valid JSON object, nothing else:
{"decision": "ACCEPT" or "REJECT", "confidence": "HIGH" or "MEDIUM" or "LOW", "reasoning": "<one or two sentences>", "company": "<company name or empty>", "role": "<role or title or empty>", "seniority": "<seniority level or empty>", "size_estimate": "<estimated company size or empty>"}`

const userPromptTemplate = `Lead profile:
%s
Qualify this lead against the ICP. Return the JSON object only.`

// buildSystemPrompt renders the ICP criteria into the system prompt. It is
// computed once per run, not per candidate.
func buildSystemPrompt(criteria *config.Criteria) string {
	return fmt.Sprintf(systemPromptTemplate, formatCriteria(criteria))
}

// formatCriteria turns the criteria config into a bulleted ICP description.
// Sections with no configured values are omitted.
func formatCriteria(criteria *config.Criteria) string {
	var b strings.Builder
	if len(criteria.Titles) > 0 {
		fmt.Fprintf(&b, "- Decision-maker roles: %s\n", strings.Join(criteria.Titles, ", "))
	}
	if criteria.CompanySize.Min > 0 || criteria.CompanySize.Max > 0 {
		fmt.Fprintf(&b, "- Company size: %d-%d employees\n", criteria.CompanySize.Min, criteria.CompanySize.Max)
	}
	if len(criteria.FundingStages) > 0 {
		fmt.Fprintf(&b, "- Funding stage: %s\n", strings.Join(criteria.FundingStages, ", "))
	}
	if criteria.Region != "" {
		fmt.Fprintf(&b, "- Region: %s\n", criteria.Region)
	}
	if len(criteria.DisallowedOrgs) > 0 {
		fmt.Fprintf(&b, "- Reject anyone at these organizations: %s\n", strings.Join(criteria.DisallowedOrgs, ", "))
	}
	return b.String()
}

// buildUserPrompt renders one candidate into the per-call prompt. Only
// populated fields are included so sparse candidates do not carry empty
// labels into the model.
func buildUserPrompt(c model.Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", c.Name)
	if c.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", c.Title)
	}
	if c.Company != "" {
		fmt.Fprintf(&b, "Company: %s\n", c.Company)
	}
	if c.Description != "" {
		fmt.Fprintf(&b, "Bio: %s\n", c.Description)
	}
	if c.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", c.Location)
	}
	if c.Metric != "" {
		fmt.Fprintf(&b, "Followers: %s\n", c.Metric)
	}
	if c.ProfileURL != "" {
		fmt.Fprintf(&b, "Profile: %s\n", c.ProfileURL)
	}
	return fmt.Sprintf(userPromptTemplate, b.String())
}
