// Package prefilter implements the deterministic first pipeline stage: fast,
// rule-based accept/reject on location, follower count, and keyword presence.
// It makes no external calls, so it runs before any paid stage.
package prefilter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/leadpipe/internal/config"
	"github.com/sells-group/leadpipe/internal/model"
)

// Filter evaluates candidates against ICP criteria. Evaluate is a pure
// function of its input: no I/O, no hidden state, identical verdicts on
// identical candidates.
type Filter struct {
	criteria *config.Criteria
}

// New builds a Filter. Nil criteria fall back to the compiled-in defaults.
func New(criteria *config.Criteria) *Filter {
	if criteria == nil {
		criteria = config.DefaultCriteria()
	}
	return &Filter{criteria: criteria}
}

// Evaluate runs every sub-check and combines them. A candidate passes only
// when all sub-checks pass; failing checks are all reported rather than
// short-circuited, so operators see every failing dimension at once.
func (f *Filter) Evaluate(c model.Candidate) model.PreFilterVerdict {
	checks := []model.SubVerdict{
		f.checkLocation(c),
		f.checkFollowers(c),
		f.checkKeywords(c),
	}

	passed := true
	for _, sv := range checks {
		if !sv.Passed {
			passed = false
		}
	}

	return model.PreFilterVerdict{Passed: passed, Checks: checks}
}

// checkLocation rejects on any non-target-region marker before looking at
// target markers, so an ambiguous string containing both is rejected. A bare
// "remote" with no qualifying region also rejects. Missing location data is
// a rejection too, but flagged non-confident to distinguish it from a
// positive foreign-location signal.
func (f *Filter) checkLocation(c model.Candidate) model.SubVerdict {
	sv := model.SubVerdict{Name: model.CheckLocation, Confident: true}

	text := normalize(c.Location)
	if text == "" {
		sv.Passed = false
		sv.Confident = false
		sv.Reason = "no location data"
		return sv
	}

	// Negative markers win over positive ones.
	for _, marker := range f.criteria.Locations.Deny {
		if containsMarker(text, normalize(marker)) {
			sv.Passed = false
			sv.Reason = fmt.Sprintf("non-target location %q", marker)
			return sv
		}
	}

	var matched []string
	for _, marker := range f.criteria.Locations.Allow {
		if containsMarker(text, normalize(marker)) {
			matched = append(matched, marker)
		}
	}
	if len(matched) > 0 {
		sv.Passed = true
		sv.Matched = matched
		sv.Reason = fmt.Sprintf("target location %q", matched[0])
		return sv
	}

	if containsMarker(text, "remote") {
		sv.Passed = false
		sv.Reason = "remote with no target region"
		return sv
	}

	sv.Passed = false
	sv.Reason = fmt.Sprintf("no target-region marker in %q", c.Location)
	return sv
}

// checkFollowers parses the metric, which may be a bare number, a
// JSON-encoded object, or absent. Absent or unparsable data passes through
// so the downstream qualifier can use judgment; only a present value outside
// the configured band rejects. This asymmetry is deliberate: missing data is
// not evidence of a bad fit. Company-shaped candidates carry an employee
// count in the metric and are banded by company size instead of followers.
func (f *Filter) checkFollowers(c model.Candidate) model.SubVerdict {
	sv := model.SubVerdict{Name: model.CheckFollowers, Confident: true}

	band, unit := f.criteria.Followers, "followers"
	if c.Source == model.SourceLinkedInJobs {
		band, unit = f.criteria.CompanySize, "employees"
	}

	n, ok := parseMetric(c.Metric)
	if !ok {
		sv.Passed = true
		sv.Reason = fmt.Sprintf("no %s data, passing through", unit)
		return sv
	}

	if !band.Contains(n) {
		sv.Passed = false
		sv.Reason = fmt.Sprintf("%s %d outside %d-%d", unit, n, band.Min, band.Max)
		return sv
	}

	sv.Passed = true
	sv.Reason = fmt.Sprintf("%s %d within range", unit, n)
	return sv
}

// checkKeywords requires at least one positive-signal keyword in the bio or
// headline. Matches are listed even on accept so an operator can see what
// tripped the filter.
func (f *Filter) checkKeywords(c model.Candidate) model.SubVerdict {
	sv := model.SubVerdict{Name: model.CheckKeywords, Confident: true}

	text := normalize(c.Description)
	var matched []string
	for _, kw := range f.criteria.Keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(text, normalize(kw)) {
			matched = append(matched, kw)
		}
	}

	if len(matched) == 0 {
		sv.Passed = false
		sv.Reason = "no ICP keywords matched"
		return sv
	}

	sv.Passed = true
	sv.Matched = matched
	sv.Reason = fmt.Sprintf("matched %d keyword(s)", len(matched))
	return sv
}

// normalize lowercases, trims, and strips combining marks so that
// "São Paulo" matches a "sao paulo" marker.
func normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// containsMarker matches short markers (state/country codes like "us", "ca",
// "uk") only on token boundaries so "us" never fires inside "austin"; longer
// markers match as substrings.
func containsMarker(text, marker string) bool {
	if marker == "" {
		return false
	}
	if len(marker) > 3 {
		return strings.Contains(text, marker)
	}
	for _, tok := range strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if tok == marker {
			return true
		}
	}
	return false
}

// parseMetric extracts an integer from the raw metric value. The second
// return is false when the value is absent or unparsable.
func parseMetric(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}

	// Bare number, possibly with thousands separators.
	plain := strings.ReplaceAll(strings.ReplaceAll(s, ",", ""), " ", "")
	if n, err := strconv.Atoi(plain); err == nil {
		return n, true
	}
	if fv, err := strconv.ParseFloat(plain, 64); err == nil {
		return int(fv), true
	}

	// JSON-encoded object with a recognizable count field.
	if strings.HasPrefix(s, "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(s), &obj); err != nil {
			return 0, false
		}
		for _, key := range []string{"followers_count", "follower_count", "followers", "count", "value"} {
			if v, ok := obj[key]; ok {
				switch n := v.(type) {
				case float64:
					return int(n), true
				case string:
					if parsed, err := strconv.Atoi(strings.ReplaceAll(n, ",", "")); err == nil {
						return parsed, true
					}
				}
			}
		}
	}

	return 0, false
}
