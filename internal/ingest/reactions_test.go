package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadpipe/internal/model"
	"github.com/sells-group/leadpipe/pkg/linkedin"
)

func TestReactions_MapsReactorFields(t *testing.T) {
	t.Parallel()

	res := Reactions([]linkedin.Reaction{
		{Name: "Jane Doe", Headline: "Co-founder & CEO at Acme", ProfileURL: "https://linkedin.com/in/jane-doe"},
	})

	require.Len(t, res.Candidates, 1)
	c := res.Candidates[0]
	assert.Equal(t, model.SourceLinkedInPosts, c.Source)
	assert.Equal(t, "Jane Doe", c.Name)
	assert.Equal(t, "Co-founder & CEO at Acme", c.Description)
	assert.Equal(t, "https://linkedin.com/in/jane-doe", c.ProfileURL)
	assert.NotEmpty(t, c.ID)
}

func TestReactions_DropsMissingName(t *testing.T) {
	t.Parallel()

	res := Reactions([]linkedin.Reaction{
		{Name: "  ", Headline: "Ghost profile"},
		{Name: "Jane Doe", Headline: "CEO"},
	})

	require.Len(t, res.Candidates, 1)
	assert.Equal(t, 1, res.Drops[DropMissingName])
}

func TestReactions_DedupesByProfileURL(t *testing.T) {
	t.Parallel()

	res := Reactions([]linkedin.Reaction{
		{Name: "Jane Doe", Headline: "CEO", ProfileURL: "https://linkedin.com/in/jane-doe"},
		{Name: "Jane Doe", Headline: "CEO", ProfileURL: "https://linkedin.com/in/jane-doe"},
		{Name: "Bob Smith", Headline: "CTO", ProfileURL: "https://linkedin.com/in/bob-smith"},
	})

	require.Len(t, res.Candidates, 2)
	assert.Equal(t, 1, res.Drops[DropDuplicateProfile])
}

func TestReactions_EmptyURLsAreNeverDeduplicated(t *testing.T) {
	t.Parallel()

	res := Reactions([]linkedin.Reaction{
		{Name: "Jane Doe", Headline: "CEO"},
		{Name: "Bob Smith", Headline: "CTO"},
	})

	require.Len(t, res.Candidates, 2)
	assert.Zero(t, res.Dropped())
	assert.NotEqual(t, res.Candidates[0].ID, res.Candidates[1].ID)
}
