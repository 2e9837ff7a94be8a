package confluence

import (
	"context"
	"net/url"
	"time"

	"github.com/takak2166/confluence2openwebui/internal/models"
)

// Provenance looks up the origin facts of a page or attachment
func (c *Client) Provenance(ctx context.Context, item models.ContentItem) (models.Provenance, error) {
	var raw content
	q := url.Values{"expand": {"space,ancestors,history,version,container"}}
	if err := c.get(ctx, "get provenance", "/rest/api/content/"+url.PathEscape(item.ID), q, &raw); err != nil {
		return models.Provenance{}, err
	}

	p := models.Provenance{
		SpaceKey:  raw.Space.Key,
		SpaceName: raw.Space.Name,
		ItemID:    raw.ID,
		URL:       c.link(raw.Links.WebUI),
		Created:   parseTime(raw.History.CreatedDate),
		Updated:   parseTime(raw.Version.When),
	}
	if p.SpaceKey == "" {
		p.SpaceKey = item.SpaceKey
	}
	if p.ItemID == "" {
		p.ItemID = item.ID
	}
	for _, a := range raw.Ancestors {
		p.Ancestors = append(p.Ancestors, a.Title)
	}

	author := raw.History.CreatedBy
	if author.DisplayName == "" {
		author = raw.Version.By
	}
	p.AuthorName = author.DisplayName
	p.AuthorEmail = author.Email

	if item.IsAttachment() {
		p.ParentID = raw.Container.ID
		if p.ParentID == "" {
			p.ParentID = item.ParentID
		}
		p.Size = raw.Extensions.FileSize
		if p.Size == 0 {
			p.Size = item.Size
		}
		p.MediaType = raw.Extensions.MediaType
		if p.MediaType == "" {
			p.MediaType = item.MediaType
		}
	}
	return p, nil
}

// parseTime accepts the timestamp layouts Confluence emits. Unparseable
// values yield the zero time, which the enricher omits.
func parseTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000Z0700", "2006-01-02T15:04:05Z0700"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
