package ingest

import (
	"strconv"
	"strings"

	"github.com/sells-group/leadpipe/internal/model"
	"github.com/sells-group/leadpipe/pkg/linkedin"
)

// Reactions maps post reactors onto candidates. The headline becomes the
// profile text; reactors repeated across target posts collapse into their
// first occurrence by profile URL.
func Reactions(items []linkedin.Reaction) *Result {
	res := newResult()
	seen := make(map[string]bool)

	for i, item := range items {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			res.drop(DropMissingName)
			continue
		}

		url := strings.TrimSpace(item.ProfileURL)
		if url != "" {
			if seen[url] {
				res.drop(DropDuplicateProfile)
				continue
			}
			seen[url] = true
		}

		res.Candidates = append(res.Candidates, model.Candidate{
			ID:          candidateID(model.SourceLinkedInPosts, strconv.Itoa(i), url, name),
			Source:      model.SourceLinkedInPosts,
			Name:        name,
			Description: strings.TrimSpace(item.Headline),
			ProfileURL:  url,
		})
	}

	return res
}
