// Package export renders finished runs as CSV and reads exported files back.
package export

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadpipe/internal/model"
)

// csvColumns defines the ordered output columns. Writers always emit this
// order; readers match columns by header name, so a reordered file still
// reads back correctly.
var csvColumns = []string{
	"name",
	"description",
	"location",
	"followers",
	"profile_url",
	"decision",
	"confidence",
	"reasoning",
	"company",
	"role",
	"email",
	"email_category",
	"email_rating",
	"company_domain",
	"status",
	"error",
}

// WriteCSV writes leads with a header row.
func WriteCSV(w io.Writer, leads []model.EnrichedLead) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvColumns); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for _, l := range leads {
		if err := cw.Write(buildRow(l)); err != nil {
			return eris.Wrap(err, "export: write row")
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush")
}

// WriteFile writes leads to a CSV file at path.
func WriteFile(path string, leads []model.EnrichedLead) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "export: create file")
	}
	defer f.Close() //nolint:errcheck

	return WriteCSV(f, leads)
}

// buildRow maps a lead to a CSV row in csvColumns order. The company and
// role cells prefer what the qualifier extracted and fall back to what the
// source already knew.
func buildRow(l model.EnrichedLead) []string {
	var company, role string
	if l.Verdict.Extracted != nil {
		company = l.Verdict.Extracted.Company
		role = l.Verdict.Extracted.Role
	}
	if company == "" {
		company = l.Candidate.Company
	}
	if role == "" {
		role = l.Candidate.Title
	}

	var email, category, rating string
	if l.Contact != nil && l.Contact.Type == model.ContactEmail {
		email = l.Contact.Value
		category = l.Contact.Category
		if l.Contact.Rating > 0 {
			rating = strconv.FormatFloat(l.Contact.Rating, 'f', -1, 64)
		}
	}

	return []string{
		l.Candidate.Name,
		l.Candidate.Description,
		l.Candidate.Location,
		l.Candidate.Metric,
		l.Candidate.ProfileURL,
		string(l.Verdict.Decision),
		string(l.Verdict.Confidence),
		l.Verdict.Reasoning,
		company,
		role,
		email,
		category,
		rating,
		l.CompanyDomain,
		string(l.Status),
		l.Error,
	}
}

// ReadCSV reads a previously exported file back into leads. Candidate ids are
// not part of the export format, so read-back leads carry empty ids; pushes
// and resumes work from the store, not from exported files.
func ReadCSV(r io.Reader) ([]model.EnrichedLead, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, eris.New("export: csv has no header row")
	}
	if err != nil {
		return nil, eris.Wrap(err, "export: read header")
	}

	idx := make(map[string]int, len(header))
	for i, c := range header {
		idx[strings.ToLower(strings.TrimSpace(c))] = i
	}
	get := func(record []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	var leads []model.EnrichedLead
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "export: read row")
		}

		lead := model.EnrichedLead{
			Candidate: model.Candidate{
				Name:        get(record, "name"),
				Description: get(record, "description"),
				Location:    get(record, "location"),
				Metric:      get(record, "followers"),
				ProfileURL:  get(record, "profile_url"),
				Company:     get(record, "company"),
				Title:       get(record, "role"),
			},
			Verdict: model.QualificationVerdict{
				Decision:   model.Decision(get(record, "decision")),
				Confidence: model.Confidence(get(record, "confidence")),
				Reasoning:  get(record, "reasoning"),
			},
			CompanyDomain: get(record, "company_domain"),
			Status:        model.EnrichmentStatus(get(record, "status")),
			Error:         get(record, "error"),
		}

		if email := get(record, "email"); email != "" {
			rating, _ := strconv.ParseFloat(get(record, "email_rating"), 64)
			lead.Contact = &model.ContactCandidate{
				Type:     model.ContactEmail,
				Value:    email,
				Category: get(record, "email_category"),
				Rating:   rating,
			}
		}

		leads = append(leads, lead)
	}

	return leads, nil
}

// ReadFile reads a CSV file at path back into leads.
func ReadFile(path string) ([]model.EnrichedLead, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "export: open file")
	}
	defer f.Close() //nolint:errcheck

	return ReadCSV(f)
}
