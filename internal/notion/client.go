// Package notion implements target.Client on top of a Notion workspace.
// A knowledge base is an inline database under the parent page, a file is a
// child page of the parent page, and registering a file adds a database
// entry that points at it.
package notion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jomei/notionapi"

	"github.com/takak2166/confluence2openwebui/internal/filter"
	"github.com/takak2166/confluence2openwebui/internal/logger"
	"github.com/takak2166/confluence2openwebui/internal/models"
	"github.com/takak2166/confluence2openwebui/internal/syncerr"
	"github.com/takak2166/confluence2openwebui/internal/target"
)

const (
	propName   = "Name"
	propFileID = "File ID"
	propAdded  = "Added"

	maxBlocksPerRequest = 100
)

// Client wraps the Notion API client
type Client struct {
	client     NotionClient
	parentID   notionapi.PageID
	parentType notionapi.ParentType
	now        func() time.Time
}

var _ target.Client = (*Client)(nil)

// New creates a new Notion client writing below parentPageID
func New(apiKey, parentPageID string) (*Client, error) {
	if apiKey == "" {
		return nil, syncerr.New(syncerr.ErrValidation, "notion client", fmt.Errorf("NOTION_API_KEY is not set"))
	}
	if parentPageID == "" {
		return nil, syncerr.New(syncerr.ErrValidation, "notion client", fmt.Errorf("NOTION_PARENT_PAGE_ID is not set"))
	}

	notionClient := notionapi.NewClient(notionapi.Token(apiKey))
	return newWithClient(newNotionClientAdapter(notionClient), parentPageID), nil
}

func newWithClient(client NotionClient, parentPageID string) *Client {
	return &Client{
		client:     client,
		parentID:   notionapi.PageID(parentPageID),
		parentType: "page_id",
		now:        time.Now,
	}
}

// classify maps notionapi failures onto syncerr kinds
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) {
		return syncerr.FromStatus(op, apiErr.Status, apiErr.Message)
	}
	return syncerr.FromTransport(op, err)
}

// sameID compares Notion ids with or without dashes
func sameID(a, b string) bool {
	return strings.ReplaceAll(a, "-", "") == strings.ReplaceAll(b, "-", "")
}

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Text: &notionapi.Text{
				Content: content,
			},
		},
	}
}

func plainText(rt []notionapi.RichText) string {
	var b strings.Builder
	for _, t := range rt {
		if t.Text != nil {
			b.WriteString(t.Text.Content)
		} else {
			b.WriteString(t.PlainText)
		}
	}
	return b.String()
}

// pageTitle returns the text of the page's title property, whatever its key
func pageTitle(page *notionapi.Page) string {
	for _, p := range page.Properties {
		switch tp := p.(type) {
		case *notionapi.TitleProperty:
			return plainText(tp.Title)
		case notionapi.TitleProperty:
			return plainText(tp.Title)
		}
	}
	return ""
}

func (c *Client) TestConnection(ctx context.Context) error {
	if _, err := c.client.Page().Get(ctx, c.parentID); err != nil {
		return classify("test connection", err)
	}
	logger.Info("Connected to Notion", map[string]interface{}{"parent": string(c.parentID)})
	return nil
}

func (c *Client) FindKnowledgeBaseByName(ctx context.Context, name string) (*models.KnowledgeBase, error) {
	query := &notionapi.SearchRequest{
		Query: name,
		Filter: notionapi.SearchFilter{
			Property: "object",
			Value:    "database",
		},
	}

	results, err := c.client.Search().Do(ctx, query)
	if err != nil {
		return nil, classify("find knowledge base", err)
	}

	for _, result := range results.Results {
		if db, ok := result.(*notionapi.Database); ok && plainText(db.Title) == name {
			return &models.KnowledgeBase{ID: db.ID.String(), Name: name}, nil
		}
	}
	return nil, nil
}

// CreateKnowledgeBase creates an inline database under the parent page.
// Notion databases carry no description here, so it is only logged.
func (c *Client) CreateKnowledgeBase(ctx context.Context, name, description string) (*models.KnowledgeBase, error) {
	properties := notionapi.PropertyConfigs{
		propName: notionapi.TitlePropertyConfig{
			Type:  "title",
			Title: struct{}{},
		},
		propFileID: notionapi.RichTextPropertyConfig{
			Type:     "rich_text",
			RichText: struct{}{},
		},
		propAdded: notionapi.DatePropertyConfig{
			Type: "date",
			Date: struct{}{},
		},
	}

	dbParams := &notionapi.DatabaseCreateRequest{
		Parent: notionapi.Parent{
			Type:   c.parentType,
			PageID: c.parentID,
		},
		Title:      richText(name),
		Properties: properties,
		IsInline:   true,
	}

	db, err := c.client.Database().Create(ctx, dbParams)
	if err != nil {
		return nil, classify("create knowledge base", err)
	}

	logger.Info("Created knowledge base database", map[string]interface{}{
		"name":        name,
		"id":          db.ID.String(),
		"description": description,
	})
	return &models.KnowledgeBase{ID: db.ID.String(), Name: name, Description: description}, nil
}

// FindFileByName returns the child page of the parent page titled name
func (c *Client) FindFileByName(ctx context.Context, name string) (*models.RemoteFile, error) {
	query := &notionapi.SearchRequest{
		Query: name,
		Filter: notionapi.SearchFilter{
			Property: "object",
			Value:    "page",
		},
	}

	results, err := c.client.Search().Do(ctx, query)
	if err != nil {
		return nil, classify("find file", err)
	}

	for _, result := range results.Results {
		page, ok := result.(*notionapi.Page)
		if !ok || !sameID(string(page.Parent.PageID), string(c.parentID)) {
			continue
		}
		if pageTitle(page) == name {
			return &models.RemoteFile{ID: page.ID.String(), Filename: name}, nil
		}
	}
	return nil, nil
}

// CreateOrUpdateFile creates the page or replaces all of its blocks
func (c *Client) CreateOrUpdateFile(ctx context.Context, name string, content []byte, mediaType string) (*models.RemoteFile, error) {
	existing, err := c.FindFileByName(ctx, name)
	if err != nil {
		return nil, err
	}

	blocks := c.contentBlocks(name, content, mediaType)

	if existing != nil {
		pageID := notionapi.BlockID(existing.ID)
		if err := c.clearChildren(ctx, pageID); err != nil {
			return nil, err
		}
		if err := c.appendBlocks(ctx, pageID, blocks); err != nil {
			return nil, err
		}
		logger.Debug("Replaced Notion page content", map[string]interface{}{
			"title":  name,
			"blocks": len(blocks),
		})
		return &models.RemoteFile{ID: existing.ID, Filename: name, Updated: true}, nil
	}

	first := blocks
	if len(first) > maxBlocksPerRequest {
		first = first[:maxBlocksPerRequest]
	}
	pageParams := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:   c.parentType,
			PageID: c.parentID,
		},
		Properties: notionapi.Properties{
			"title": notionapi.TitleProperty{
				Title: richText(name),
			},
		},
		Children: first,
	}

	page, err := c.client.Page().Create(ctx, pageParams)
	if err != nil {
		return nil, classify("upload file", err)
	}
	if err := c.appendBlocks(ctx, notionapi.BlockID(page.ID), blocks[len(first):]); err != nil {
		return nil, err
	}

	logger.Debug("Created Notion page", map[string]interface{}{
		"title":  name,
		"blocks": len(blocks),
	})
	return &models.RemoteFile{ID: page.ID.String(), Filename: name}, nil
}

func (c *Client) contentBlocks(name string, content []byte, mediaType string) []notionapi.Block {
	if filter.IsText(name) || strings.HasPrefix(mediaType, "text/") {
		return c.convertMarkdownToBlocks(string(content))
	}
	return []notionapi.Block{
		c.createParagraphBlock(fmt.Sprintf("Binary attachment %s (%s, %d bytes)", name, mediaType, len(content))),
	}
}

func (c *Client) clearChildren(ctx context.Context, id notionapi.BlockID) error {
	var children []notionapi.Block
	var cursor notionapi.Cursor
	for {
		resp, err := c.client.Block().GetChildren(ctx, id, &notionapi.Pagination{
			StartCursor: cursor,
			PageSize:    maxBlocksPerRequest,
		})
		if err != nil {
			return classify("update file", err)
		}
		children = append(children, resp.Results...)
		if !resp.HasMore || resp.NextCursor == "" {
			break
		}
		cursor = notionapi.Cursor(resp.NextCursor)
	}

	for _, child := range children {
		if _, err := c.client.Block().Delete(ctx, child.GetID()); err != nil {
			return classify("update file", err)
		}
	}
	return nil
}

func (c *Client) appendBlocks(ctx context.Context, id notionapi.BlockID, blocks []notionapi.Block) error {
	for len(blocks) > 0 {
		n := len(blocks)
		if n > maxBlocksPerRequest {
			n = maxBlocksPerRequest
		}
		_, err := c.client.Block().AppendChildren(ctx, id, &notionapi.AppendBlockChildrenRequest{
			Children: blocks[:n],
		})
		if err != nil {
			return classify("update file", err)
		}
		blocks = blocks[n:]
	}
	return nil
}

// AddFileToKnowledgeBase adds a database entry for the file page. An entry
// that already exists is reported as syncerr.ErrDuplicate.
func (c *Client) AddFileToKnowledgeBase(ctx context.Context, kbID, fileID string) error {
	const op = "add file to knowledge base"

	existing, err := c.client.Database().Query(ctx, notionapi.DatabaseID(kbID), &notionapi.DatabaseQueryRequest{
		Filter: &notionapi.PropertyFilter{
			Property: propFileID,
			RichText: &notionapi.TextFilterCondition{
				Equals: fileID,
			},
		},
		PageSize: 1,
	})
	if err != nil {
		return classify(op, err)
	}
	if len(existing.Results) > 0 {
		return syncerr.New(syncerr.ErrDuplicate, op, fmt.Errorf("file %s is already in %s", fileID, kbID))
	}

	// Get page details to add to database
	page, err := c.client.Page().Get(ctx, notionapi.PageID(fileID))
	if err != nil {
		return classify(op, err)
	}

	added := notionapi.Date(c.now())
	pageParams := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       "database_id",
			DatabaseID: notionapi.DatabaseID(kbID),
		},
		Properties: notionapi.Properties{
			propName: notionapi.TitleProperty{
				Title: richText(pageTitle(page)),
			},
			propFileID: notionapi.RichTextProperty{
				RichText: richText(fileID),
			},
			propAdded: notionapi.DateProperty{
				Date: &notionapi.DateObject{
					Start: &added,
				},
			},
		},
	}

	if _, err := c.client.Page().Create(ctx, pageParams); err != nil {
		return classify(op, err)
	}
	return nil
}

// BatchAddFilesToKnowledgeBase adds entries one by one; Notion has no batch
// endpoint. Files already present are skipped.
func (c *Client) BatchAddFilesToKnowledgeBase(ctx context.Context, kbID string, fileIDs []string) error {
	var errs []error
	for _, id := range fileIDs {
		err := c.AddFileToKnowledgeBase(ctx, kbID, id)
		if err != nil && !errors.Is(err, syncerr.ErrDuplicate) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
