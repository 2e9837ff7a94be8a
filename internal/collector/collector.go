// Package collector decides which Confluence content an export run covers.
package collector

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/takak2166/confluence2openwebui/internal/logger"
	"github.com/takak2166/confluence2openwebui/internal/models"
	"github.com/takak2166/confluence2openwebui/internal/syncerr"
)

//go:generate mockgen -source=collector.go -destination=mock_collector/mock_collector.go -package=mock_collector

// Source is the part of the Confluence client the collectors need
type Source interface {
	Space(ctx context.Context, key string) (*models.Space, error)
	PagesInSpace(ctx context.Context, key string) ([]models.ContentItem, error)
	Page(ctx context.Context, id string) (*models.ContentItem, error)
	Attachments(ctx context.Context, page models.ContentItem) ([]models.ContentItem, error)
	Search(ctx context.Context, cql string, limit int) ([]models.ContentItem, error)
}

// Collector produces the items of one export run
type Collector interface {
	// Collect returns pages, each followed by its attachments, in source order
	Collect(ctx context.Context) ([]models.ContentItem, error)
	// Containers returns the distinct space keys involved
	Containers(ctx context.Context) ([]string, error)
	Description() string
	// Validate checks the input before anything is exported
	Validate(ctx context.Context) error
}

// withAttachments interleaves each page with its attachments
func withAttachments(ctx context.Context, src Source, pages []models.ContentItem) ([]models.ContentItem, error) {
	items := make([]models.ContentItem, 0, len(pages))
	for _, page := range pages {
		items = append(items, page)
		atts, err := src.Attachments(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("failed to list attachments of page %s: %w", page.ID, err)
		}
		items = append(items, atts...)
	}
	return items, nil
}

// BySpace collects every page of one space
type BySpace struct {
	src Source
	key string
}

// NewBySpace creates a collector for the space with the given key
func NewBySpace(src Source, key string) *BySpace {
	return &BySpace{src: src, key: key}
}

// Collect lists the pages of the space, each followed by its attachments
func (c *BySpace) Collect(ctx context.Context) ([]models.ContentItem, error) {
	if _, err := c.src.Space(ctx, c.key); err != nil {
		return nil, err
	}
	pages, err := c.src.PagesInSpace(ctx, c.key)
	if err != nil {
		return nil, err
	}
	logger.Info("Collected space pages", map[string]interface{}{
		"space": c.key,
		"pages": len(pages),
	})
	return withAttachments(ctx, c.src, pages)
}

// Containers returns the single space key
func (c *BySpace) Containers(context.Context) ([]string, error) {
	return []string{c.key}, nil
}

// Description names the space
func (c *BySpace) Description() string {
	return "Space: " + c.key
}

// Validate checks that the space exists
func (c *BySpace) Validate(ctx context.Context) error {
	if strings.TrimSpace(c.key) == "" {
		return syncerr.New(syncerr.ErrValidation, "validate space", fmt.Errorf("space key must not be empty"))
	}
	if _, err := c.src.Space(ctx, c.key); err != nil {
		return fmt.Errorf("invalid or inaccessible space key %q: %w", c.key, err)
	}
	return nil
}

// ByPage collects a single page. Its space is discovered on first use.
type ByPage struct {
	src  Source
	id   string
	page *models.ContentItem
}

// NewByPage creates a collector for the page with the given id
func NewByPage(src Source, id string) *ByPage {
	return &ByPage{src: src, id: id}
}

func (c *ByPage) resolve(ctx context.Context) (*models.ContentItem, error) {
	if c.page != nil {
		return c.page, nil
	}
	if _, err := strconv.ParseUint(c.id, 10, 64); err != nil {
		return nil, syncerr.New(syncerr.ErrValidation, "resolve page", fmt.Errorf("invalid page ID format %q: must be a numeric ID", c.id))
	}
	page, err := c.src.Page(ctx, c.id)
	if err != nil {
		return nil, err
	}
	c.page = page
	return page, nil
}

// Collect returns the page followed by its attachments
func (c *ByPage) Collect(ctx context.Context) ([]models.ContentItem, error) {
	page, err := c.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return withAttachments(ctx, c.src, []models.ContentItem{*page})
}

// Containers returns the key of the page's space
func (c *ByPage) Containers(ctx context.Context) ([]string, error) {
	page, err := c.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return []string{page.SpaceKey}, nil
}

// Description names the page id
func (c *ByPage) Description() string {
	return "Page ID: " + c.id
}

// Validate checks that the page exists
func (c *ByPage) Validate(ctx context.Context) error {
	if _, err := c.resolve(ctx); err != nil {
		return fmt.Errorf("invalid or inaccessible page ID %q: %w", c.id, err)
	}
	return nil
}

// ByQuery collects the pages matching a CQL query, possibly across spaces
type ByQuery struct {
	src   Source
	cql   string
	limit int
	pages []models.ContentItem
	done  bool
}

// dryRunLimit caps the validation query
const dryRunLimit = 10

// NewByQuery creates a collector for a CQL query returning at most limit pages
func NewByQuery(src Source, cql string, limit int) *ByQuery {
	return &ByQuery{src: src, cql: cql, limit: limit}
}

func (c *ByQuery) search(ctx context.Context) ([]models.ContentItem, error) {
	if c.done {
		return c.pages, nil
	}
	if strings.TrimSpace(c.cql) == "" {
		return nil, syncerr.New(syncerr.ErrInvalidQuery, "search", fmt.Errorf("CQL query cannot be empty"))
	}
	pages, err := c.src.Search(ctx, c.cql, c.limit)
	if err != nil {
		return nil, err
	}
	c.pages, c.done = pages, true
	return pages, nil
}

// Collect runs the query and adds the attachments of every matched page
func (c *ByQuery) Collect(ctx context.Context) ([]models.ContentItem, error) {
	pages, err := c.search(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("Collected query results", map[string]interface{}{
		"cql":   c.cql,
		"pages": len(pages),
	})
	return withAttachments(ctx, c.src, pages)
}

// Containers returns the distinct space keys of the matched pages
func (c *ByQuery) Containers(ctx context.Context) ([]string, error) {
	pages, err := c.search(ctx)
	if err != nil {
		return nil, err
	}
	var keys []string
	seen := make(map[string]bool)
	for _, p := range pages {
		if !seen[p.SpaceKey] {
			seen[p.SpaceKey] = true
			keys = append(keys, p.SpaceKey)
		}
	}
	return keys, nil
}

// Description quotes the query
func (c *ByQuery) Description() string {
	return "CQL Query: " + c.cql
}

// Validate runs the query with a small limit. It fails with
// syncerr.ErrInvalidQuery when the query is empty, malformed or matches nothing.
func (c *ByQuery) Validate(ctx context.Context) error {
	if strings.TrimSpace(c.cql) == "" {
		return syncerr.New(syncerr.ErrInvalidQuery, "validate query", fmt.Errorf("CQL query cannot be empty"))
	}
	limit := c.limit
	if limit <= 0 || limit > dryRunLimit {
		limit = dryRunLimit
	}
	pages, err := c.src.Search(ctx, c.cql, limit)
	if err != nil {
		return fmt.Errorf("invalid CQL query %q: %w", c.cql, err)
	}
	if len(pages) == 0 {
		return syncerr.New(syncerr.ErrInvalidQuery, "validate query", fmt.Errorf("CQL query returned no results: %q", c.cql))
	}
	return nil
}
