package notion

import (
	"context"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// leadDatabase builds a Database carrying the given property names.
func leadDatabase(names ...string) *notionapi.Database {
	props := make(notionapi.PropertyConfigs, len(names))
	for _, n := range names {
		props[n] = nil
	}
	return &notionapi.Database{ID: "db-1", Properties: props}
}

func TestEnsureLeadDatabase(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("GetDatabase", ctx, "db-1").Return(leadDatabase(leadPropertyNames...), nil)

	err := EnsureLeadDatabase(ctx, mc, "db-1")
	assert.NoError(t, err)
	mc.AssertExpectations(t)
}

func TestEnsureLeadDatabase_MissingProperties(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("GetDatabase", ctx, "db-1").Return(leadDatabase("Name", "Email"), nil)

	err := EnsureLeadDatabase(ctx, mc, "db-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing properties")
	assert.Contains(t, err.Error(), "Status")
	mc.AssertExpectations(t)
}

func TestEnsureLeadDatabase_GetError(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("GetDatabase", ctx, "db-err").Return(nil, assert.AnError)

	err := EnsureLeadDatabase(ctx, mc, "db-err")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion: ensure lead database")
	mc.AssertExpectations(t)
}

// emailFilter matches a query request filtering the Email property for the
// given address with a page size of one.
func emailFilter(email string) any {
	return mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		pf, ok := req.Filter.(notionapi.PropertyFilter)
		if !ok {
			return false
		}
		return pf.Property == "Email" &&
			pf.RichText != nil &&
			pf.RichText.Equals == email &&
			req.PageSize == 1
	})
}

func TestFindLeadPageByEmail(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", emailFilter("jane@acme.com")).
		Return(&notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{{ID: "page-1"}},
		}, nil).Once()

	pageID, err := FindLeadPageByEmail(ctx, mc, "db-1", "jane@acme.com")
	require.NoError(t, err)
	assert.Equal(t, "page-1", pageID)
	mc.AssertExpectations(t)
}

func TestFindLeadPageByEmail_NoMatch(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", emailFilter("nobody@acme.com")).
		Return(&notionapi.DatabaseQueryResponse{Results: []notionapi.Page{}}, nil).Once()

	pageID, err := FindLeadPageByEmail(ctx, mc, "db-1", "nobody@acme.com")
	require.NoError(t, err)
	assert.Empty(t, pageID)
	mc.AssertExpectations(t)
}

func TestFindLeadPageByEmail_Error(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", mock.AnythingOfType("*notionapi.DatabaseQueryRequest")).
		Return(nil, assert.AnError).Once()

	_, err := FindLeadPageByEmail(ctx, mc, "db-1", "jane@acme.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "find lead page by email")
	mc.AssertExpectations(t)
}

func TestCreateLeadPage(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("CreatePage", ctx, mock.MatchedBy(func(req *notionapi.PageCreateRequest) bool {
		if req.Parent.DatabaseID != notionapi.DatabaseID("db-1") {
			return false
		}
		_, hasName := req.Properties["Name"]
		_, hasEmail := req.Properties["Email"]
		return hasName && hasEmail
	})).Return(&notionapi.Page{ID: "page-new"}, nil).Once()

	pageID, err := CreateLeadPage(ctx, mc, "db-1", LeadPage{
		Name:  "Jane Doe",
		Email: "jane@acme.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "page-new", pageID)
	mc.AssertExpectations(t)
}

func TestUpdateLeadPage(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("UpdatePage", ctx, "page-1", mock.MatchedBy(func(req *notionapi.PageUpdateRequest) bool {
		_, hasStatus := req.Properties["Status"]
		return hasStatus
	})).Return(&notionapi.Page{ID: "page-1"}, nil).Once()

	err := UpdateLeadPage(ctx, mc, "page-1", LeadPage{Name: "Jane Doe", Status: "Pushed"})
	require.NoError(t, err)
	mc.AssertExpectations(t)
}

func TestUpsertLeadPage_UpdatesExisting(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", emailFilter("jane@acme.com")).
		Return(&notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{{ID: "page-1"}},
		}, nil).Once()
	mc.On("UpdatePage", ctx, "page-1", mock.AnythingOfType("*notionapi.PageUpdateRequest")).
		Return(&notionapi.Page{ID: "page-1"}, nil).Once()

	pageID, created, err := UpsertLeadPage(ctx, mc, "db-1", LeadPage{
		Name:  "Jane Doe",
		Email: "jane@acme.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "page-1", pageID)
	assert.False(t, created)
	mc.AssertExpectations(t)
	mc.AssertNotCalled(t, "CreatePage", mock.Anything, mock.Anything)
}

func TestUpsertLeadPage_CreatesWhenMissing(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", emailFilter("jane@acme.com")).
		Return(&notionapi.DatabaseQueryResponse{Results: []notionapi.Page{}}, nil).Once()
	mc.On("CreatePage", ctx, mock.AnythingOfType("*notionapi.PageCreateRequest")).
		Return(&notionapi.Page{ID: "page-new"}, nil).Once()

	pageID, created, err := UpsertLeadPage(ctx, mc, "db-1", LeadPage{
		Name:  "Jane Doe",
		Email: "jane@acme.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "page-new", pageID)
	assert.True(t, created)
	mc.AssertExpectations(t)
}

func TestUpsertLeadPage_NoEmailAlwaysCreates(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("CreatePage", ctx, mock.AnythingOfType("*notionapi.PageCreateRequest")).
		Return(&notionapi.Page{ID: "page-new"}, nil).Once()

	pageID, created, err := UpsertLeadPage(ctx, mc, "db-1", LeadPage{Name: "Acme Corp"})
	require.NoError(t, err)
	assert.Equal(t, "page-new", pageID)
	assert.True(t, created)
	mc.AssertExpectations(t)
	mc.AssertNotCalled(t, "QueryDatabase", mock.Anything, mock.Anything, mock.Anything)
}

func TestBuildLeadProperties_AllFields(t *testing.T) {
	props := buildLeadProperties(LeadPage{
		Name:     "Jane Doe",
		Email:    "jane@acme.com",
		Company:  "Acme",
		Role:     "CEO",
		Website:  "acme.com",
		Location: "Austin, TX",
		Source:   "twitter_csv",
		Status:   "Pushed",
	})

	tp, ok := props["Name"].(notionapi.TitleProperty)
	require.True(t, ok)
	require.Len(t, tp.Title, 1)
	assert.Equal(t, "Jane Doe", tp.Title[0].Text.Content)

	rt, ok := props["Email"].(notionapi.RichTextProperty)
	require.True(t, ok)
	assert.Equal(t, "jane@acme.com", rt.RichText[0].Text.Content)

	up, ok := props["Website"].(notionapi.URLProperty)
	require.True(t, ok)
	assert.Equal(t, "https://acme.com", up.URL)

	sp, ok := props["Status"].(notionapi.StatusProperty)
	require.True(t, ok)
	assert.Equal(t, "Pushed", sp.Status.Name)

	assert.Contains(t, props, "Company")
	assert.Contains(t, props, "Role")
	assert.Contains(t, props, "Location")
	assert.Contains(t, props, "Source")
}

func TestBuildLeadProperties_OmitsEmptyFields(t *testing.T) {
	props := buildLeadProperties(LeadPage{Name: "Acme Corp"})

	assert.Contains(t, props, "Name")
	assert.NotContains(t, props, "Email")
	assert.NotContains(t, props, "Company")
	assert.NotContains(t, props, "Website")
	assert.NotContains(t, props, "Status")
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"acme.com", "https://acme.com"},
		{"https://acme.com", "https://acme.com"},
		{"http://acme.com", "http://acme.com"},
		{"  acme.com  ", "https://acme.com"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizeURL(tt.input))
		})
	}
}
