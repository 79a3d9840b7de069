package ingest

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/sells-group/leadpipe/internal/model"
)

// jobItem is the slice of an Apify job posting the pipeline cares about.
// The actor emits many more fields; unknown ones are ignored.
type jobItem struct {
	Title                 string `json:"title"`
	Link                  string `json:"link"`
	CompanyName           string `json:"companyName"`
	CompanyLinkedinURL    string `json:"companyLinkedinUrl"`
	CompanyWebsite        string `json:"companyWebsite"`
	CompanyDescription    string `json:"companyDescription"`
	CompanyEmployeesCount int    `json:"companyEmployeesCount"`
	Location              string `json:"location"`
	CompanyAddress        struct {
		AddressCountry  string `json:"addressCountry"`
		AddressRegion   string `json:"addressRegion"`
		AddressLocality string `json:"addressLocality"`
	} `json:"companyAddress"`
}

// JobItems maps job postings onto company-shaped candidates, one per company.
// Postings sharing a company domain collapse into the first occurrence, so a
// company hiring for five roles is enriched once. Postings without a website
// pass through undeduplicated; name-keyed enrichment can still resolve them.
func JobItems(items []json.RawMessage) *Result {
	res := newResult()
	seen := make(map[string]bool)

	for i, raw := range items {
		var job jobItem
		if err := json.Unmarshal(raw, &job); err != nil {
			res.drop(DropUnparseableItem)
			continue
		}

		name := strings.TrimSpace(job.CompanyName)
		if name == "" {
			res.drop(DropMissingCompany)
			continue
		}

		domain := extractDomain(job.CompanyWebsite)
		if domain != "" {
			if seen[domain] {
				res.drop(DropDuplicateCompany)
				continue
			}
			seen[domain] = true
		}

		location := strings.TrimSpace(job.CompanyAddress.AddressCountry)
		if location == "" {
			location = strings.TrimSpace(job.Location)
		}

		var metric string
		if job.CompanyEmployeesCount > 0 {
			metric = strconv.Itoa(job.CompanyEmployeesCount)
		}

		res.Candidates = append(res.Candidates, model.Candidate{
			ID:            candidateID(model.SourceLinkedInJobs, strconv.Itoa(i), name),
			Source:        model.SourceLinkedInJobs,
			Name:          name,
			Description:   strings.TrimSpace(job.CompanyDescription),
			Location:      location,
			Metric:        metric,
			ProfileURL:    strings.TrimSpace(job.CompanyLinkedinURL),
			Company:       name,
			CompanyDomain: domain,
			Title:         strings.TrimSpace(job.Title),
		})
	}

	return res
}

// extractDomain reduces a website URL to its bare lowercase host.
func extractDomain(url string) string {
	d := strings.TrimSpace(url)
	if d == "" {
		return ""
	}
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "www.")
	if i := strings.IndexByte(d, '/'); i >= 0 {
		d = d[:i]
	}
	return strings.ToLower(d)
}
