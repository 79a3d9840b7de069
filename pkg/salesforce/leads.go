package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Lead represents a Salesforce Lead record.
type Lead struct {
	ID          string `json:"Id" salesforce:"Id"`
	FirstName   string `json:"FirstName" salesforce:"FirstName"`
	LastName    string `json:"LastName" salesforce:"LastName"`
	Company     string `json:"Company" salesforce:"Company"`
	Title       string `json:"Title" salesforce:"Title"`
	Email       string `json:"Email" salesforce:"Email"`
	Website     string `json:"Website" salesforce:"Website"`
	LeadSource  string `json:"LeadSource" salesforce:"LeadSource"`
	Description string `json:"Description" salesforce:"Description"`
}

// LeadUpdate holds a lead ID and the fields to update.
type LeadUpdate struct {
	ID     string
	Fields map[string]any
}

// FindLeadIDsByEmail queries Salesforce for existing Leads matching any of the
// given email addresses. The returned map is keyed by lowercased email.
func FindLeadIDsByEmail(ctx context.Context, c Client, emails []string) (map[string]string, error) {
	if len(emails) == 0 {
		return map[string]string{}, nil
	}

	quoted := make([]string, len(emails))
	for i, e := range emails {
		quoted[i] = "'" + escapeSoql(e) + "'"
	}
	soql := fmt.Sprintf("SELECT Id, Email FROM Lead WHERE Email IN (%s)", strings.Join(quoted, ", "))

	var leads []Lead
	if err := c.Query(ctx, soql, &leads); err != nil {
		return nil, eris.Wrap(err, "sf: find leads by email")
	}

	ids := make(map[string]string, len(leads))
	for _, l := range leads {
		if l.Email == "" {
			continue
		}
		ids[strings.ToLower(l.Email)] = l.ID
	}
	return ids, nil
}

// record builds the insert payload for a lead. LastName and Company are
// required by Salesforce and always included; other fields are set only when
// non-empty.
func (l Lead) record() map[string]any {
	m := map[string]any{
		"LastName": l.LastName,
		"Company":  l.Company,
	}
	if l.FirstName != "" {
		m["FirstName"] = l.FirstName
	}
	if l.Title != "" {
		m["Title"] = l.Title
	}
	if l.Email != "" {
		m["Email"] = l.Email
	}
	if l.Website != "" {
		m["Website"] = l.Website
	}
	if l.LeadSource != "" {
		m["LeadSource"] = l.LeadSource
	}
	if l.Description != "" {
		m["Description"] = l.Description
	}
	return m
}

// InsertLeads creates Lead records in batches of 200 (SF Collections API
// limit). Results are positional: results[i] corresponds to leads[i].
func InsertLeads(ctx context.Context, c Client, leads []Lead) ([]CollectionResult, error) {
	if len(leads) == 0 {
		return nil, nil
	}

	var allResults []CollectionResult

	for start := 0; start < len(leads); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(leads) {
			end = len(leads)
		}
		batch := leads[start:end]

		records := make([]map[string]any, len(batch))
		for i, l := range batch {
			records[i] = l.record()
		}

		results, err := c.InsertCollection(ctx, "Lead", records)
		if err != nil {
			return allResults, eris.Wrap(err, fmt.Sprintf("sf: insert leads batch %d-%d", start, end))
		}
		allResults = append(allResults, results...)
	}

	return allResults, nil
}

// UpdateLeads splits updates into batches of 200 (SF Collections API limit)
// and sends them via UpdateCollection. Results are positional: results[i]
// corresponds to updates[i].
func UpdateLeads(ctx context.Context, c Client, updates []LeadUpdate) ([]CollectionResult, error) {
	if len(updates) == 0 {
		return nil, nil
	}

	var allResults []CollectionResult

	for start := 0; start < len(updates); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(updates) {
			end = len(updates)
		}
		batch := updates[start:end]

		records := make([]CollectionRecord, len(batch))
		for i, u := range batch {
			records[i] = CollectionRecord(u)
		}

		results, err := c.UpdateCollection(ctx, "Lead", records)
		if err != nil {
			return allResults, eris.Wrap(err, fmt.Sprintf("sf: update leads batch %d-%d", start, end))
		}
		allResults = append(allResults, results...)
	}

	return allResults, nil
}

// escapeSoql escapes single quotes in SOQL string literals to prevent injection.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
