// Package ingest maps raw source rows and items onto pipeline candidates.
// Every row that cannot become a candidate is counted under a drop reason,
// so a run can report exactly what it discarded and why.
package ingest

import (
	"crypto/sha256"
	"fmt"
	"io"
	"strings"

	"github.com/sells-group/leadpipe/internal/model"
)

// Drop reasons, reported per run alongside the candidate count.
const (
	DropMissingDescription = "missing description"
	DropMissingName        = "missing name"
	DropMissingCompany     = "missing company name"
	DropDuplicateProfile   = "duplicate profile"
	DropDuplicateCompany   = "duplicate company"
	DropUnparseableItem    = "unparseable item"
)

// Result carries the candidates that survived mapping plus a per-reason
// count of rows that did not.
type Result struct {
	Candidates []model.Candidate
	Drops      map[string]int
}

func newResult() *Result {
	return &Result{Drops: map[string]int{}}
}

func (r *Result) drop(reason string) {
	r.Drops[reason]++
}

// Dropped returns the total dropped-row count across all reasons.
func (r *Result) Dropped() int {
	n := 0
	for _, c := range r.Drops {
		n += c
	}
	return n
}

// candidateID derives a stable id from the source and the identifying parts
// of a row. The same input must yield the same ids on every parse: resume
// validates a checkpoint by hashing ordered candidate ids.
func candidateID(source model.Source, parts ...string) string {
	h := sha256.New()
	io.WriteString(h, string(source)) //nolint:errcheck
	for _, p := range parts {
		io.WriteString(h, "\n") //nolint:errcheck
		io.WriteString(h, p)    //nolint:errcheck
	}
	return fmt.Sprintf("%x", h.Sum(nil)[:16])
}

// normalizeHeader lowercases and strips spaces and underscores so "User Name",
// "username", and "user_name" all address the same column.
func normalizeHeader(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "_", "")
	return s
}

// mapHeader builds a normalized column name → index map.
func mapHeader(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, col := range header {
		m[normalizeHeader(col)] = i
	}
	return m
}

// col returns the named column of a record, trimmed, or "" when the column
// is absent from the header or the record is short.
func col(record []string, idx map[string]int, name string) string {
	i, ok := idx[normalizeHeader(name)]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
