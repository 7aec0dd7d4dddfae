package repository

import (
	"context"
	"fmt"

	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday/v2"
	goconfluence "github.com/virtomize/confluence-go-api"
)

type ConfluenceRepository struct {
	ancestorID string
	spaceKey   string
	client     *goconfluence.API
}

func NewConfluenceRepository(domain, user, password, spaceKey, ancestorID string) (*ConfluenceRepository, error) {
	api, err := goconfluence.NewAPI(
		fmt.Sprintf("https://%s.atlassian.net/wiki/rest/api", domain),
		user,
		password)
	if err != nil {
		return nil, fmt.Errorf("failed to create confluence api: %w", err)
	}

	return &ConfluenceRepository{
		ancestorID: ancestorID,
		spaceKey:   spaceKey,
		client:     api,
	}, nil
}

// ExportIncidentReport renders the markdown body to sanitized HTML and
// creates a Confluence page for it. Returns the page id.
func (c *ConfluenceRepository) ExportIncidentReport(ctx context.Context, title, body string) (string, error) {
	unsafe := blackfriday.Run([]byte(body))
	html := bluemonday.UGCPolicy().SanitizeBytes(unsafe)

	data := &goconfluence.Content{
		Type:  "page",
		Title: title,
		Body: goconfluence.Body{
			Storage: goconfluence.Storage{
				Value:          string(html),
				Representation: "storage",
			},
		},
		Version: &goconfluence.Version{ // mandatory
			Number: 1,
		},
	}
	if c.ancestorID != "" {
		data.Ancestors = append(data.Ancestors, goconfluence.Ancestor{
			ID: c.ancestorID,
		})
	}

	if c.spaceKey != "" {
		data.Space = &goconfluence.Space{
			Key: c.spaceKey,
		}
	}

	content, err := c.client.CreateContent(data)
	if err != nil {
		return "", fmt.Errorf("failed to create confluence page: %w", err)
	}

	return content.ID, nil
}
