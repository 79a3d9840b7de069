package notion

import (
	"context"
	"fmt"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// leadPropertyNames are the database properties the pusher writes. The target
// database must carry all of them or page writes will be rejected.
var leadPropertyNames = []string{
	"Name", "Email", "Company", "Role", "Website", "Location", "Source", "Status",
}

// LeadPage holds the property values written to a lead row in Notion.
type LeadPage struct {
	Name     string
	Email    string
	Company  string
	Role     string
	Website  string
	Location string
	Source   string
	Status   string
}

// EnsureLeadDatabase verifies the target database exists and carries every
// property the pusher writes.
func EnsureLeadDatabase(ctx context.Context, c Client, dbID string) error {
	db, err := c.GetDatabase(ctx, dbID)
	if err != nil {
		return eris.Wrap(err, "notion: ensure lead database")
	}

	var missing []string
	for _, name := range leadPropertyNames {
		if _, ok := db.Properties[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return eris.New(fmt.Sprintf("notion: database %s is missing properties: %s", dbID, strings.Join(missing, ", ")))
	}
	return nil
}

// FindLeadPageByEmail looks up an existing lead page by its Email property.
// Returns the page ID, or an empty string when no page matches.
func FindLeadPageByEmail(ctx context.Context, c Client, dbID string, email string) (string, error) {
	req := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Email",
			RichText: &notionapi.TextFilterCondition{
				Equals: email,
			},
		},
		PageSize: 1,
	}

	resp, err := c.QueryDatabase(ctx, dbID, req)
	if err != nil {
		return "", eris.Wrap(err, fmt.Sprintf("notion: find lead page by email %s", email))
	}
	if len(resp.Results) == 0 {
		return "", nil
	}
	return string(resp.Results[0].ID), nil
}

// CreateLeadPage creates a new lead page in the database and returns its ID.
func CreateLeadPage(ctx context.Context, c Client, dbID string, lead LeadPage) (string, error) {
	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: buildLeadProperties(lead),
	}

	page, err := c.CreatePage(ctx, req)
	if err != nil {
		return "", eris.Wrap(err, "notion: create lead page")
	}
	return string(page.ID), nil
}

// UpdateLeadPage overwrites the lead properties on an existing page.
func UpdateLeadPage(ctx context.Context, c Client, pageID string, lead LeadPage) error {
	req := &notionapi.PageUpdateRequest{
		Properties: buildLeadProperties(lead),
	}
	if _, err := c.UpdatePage(ctx, pageID, req); err != nil {
		return eris.Wrap(err, fmt.Sprintf("notion: update lead page %s", pageID))
	}
	return nil
}

// UpsertLeadPage updates the existing page matching the lead's email, or
// creates a new page when none matches. Leads without an email always create.
// Returns the page ID and whether a new page was created.
func UpsertLeadPage(ctx context.Context, c Client, dbID string, lead LeadPage) (string, bool, error) {
	if lead.Email != "" {
		pageID, err := FindLeadPageByEmail(ctx, c, dbID, lead.Email)
		if err != nil {
			return "", false, err
		}
		if pageID != "" {
			if err := UpdateLeadPage(ctx, c, pageID, lead); err != nil {
				return "", false, err
			}
			return pageID, false, nil
		}
	}

	pageID, err := CreateLeadPage(ctx, c, dbID, lead)
	if err != nil {
		return "", false, err
	}
	return pageID, true, nil
}

// buildLeadProperties converts a LeadPage to Notion page properties. Name
// becomes the title, Website a url property, Status a status property, and
// everything else rich_text. Empty optional values are omitted so an update
// leaves existing content alone.
func buildLeadProperties(lead LeadPage) notionapi.Properties {
	props := notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Type: notionapi.PropertyTypeTitle,
			Title: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: lead.Name}},
			},
		},
	}
	if lead.Email != "" {
		props["Email"] = richTextProperty(lead.Email)
	}
	if lead.Company != "" {
		props["Company"] = richTextProperty(lead.Company)
	}
	if lead.Role != "" {
		props["Role"] = richTextProperty(lead.Role)
	}
	if lead.Website != "" {
		props["Website"] = notionapi.URLProperty{
			Type: notionapi.PropertyTypeURL,
			URL:  normalizeURL(lead.Website),
		}
	}
	if lead.Location != "" {
		props["Location"] = richTextProperty(lead.Location)
	}
	if lead.Source != "" {
		props["Source"] = richTextProperty(lead.Source)
	}
	if lead.Status != "" {
		props["Status"] = notionapi.StatusProperty{
			Status: notionapi.Status{Name: lead.Status},
		}
	}
	return props
}

func richTextProperty(v string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		Type: notionapi.PropertyTypeRichText,
		RichText: []notionapi.RichText{
			{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: v}},
		},
	}
}

// normalizeURL ensures a bare domain has an https:// scheme prefix.
func normalizeURL(domain string) string {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return ""
	}
	if !strings.Contains(domain, "://") {
		return "https://" + domain
	}
	return domain
}
