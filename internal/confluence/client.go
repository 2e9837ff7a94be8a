// Package confluence reads spaces, pages and attachments from the Confluence
// REST API and the rendered files a previous export left on disk.
package confluence

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/takak2166/confluence2openwebui/internal/logger"
	"github.com/takak2166/confluence2openwebui/internal/models"
	"github.com/takak2166/confluence2openwebui/internal/syncerr"
	"github.com/takak2166/confluence2openwebui/internal/transport"
)

const pageSize = 50

// Credentials selects basic auth (Username + APIToken) or a personal access token
type Credentials struct {
	Username string
	APIToken string
	PAT      string
}

// Client is a read-only Confluence REST client. Space lookups are cached.
type Client struct {
	baseURL string
	creds   Credentials
	http    *transport.Client

	mu     sync.Mutex
	spaces map[string]*models.Space
}

// New creates a client for the Confluence instance at baseURL
func New(baseURL string, creds Credentials, hc *transport.Client) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, syncerr.New(syncerr.ErrValidation, "confluence client", fmt.Errorf("CONFLUENCE_URL is not set"))
	}
	if creds.PAT == "" && (creds.Username == "" || creds.APIToken == "") {
		return nil, syncerr.New(syncerr.ErrValidation, "confluence client", fmt.Errorf("either a PAT or username and API token are required"))
	}
	return &Client{
		baseURL: baseURL,
		creds:   creds,
		http:    hc,
		spaces:  make(map[string]*models.Space),
	}, nil
}

type user struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

type content struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title"`
	Space struct {
		Key  string `json:"key"`
		Name string `json:"name"`
	} `json:"space"`
	Ancestors []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"ancestors"`
	History struct {
		CreatedBy   user   `json:"createdBy"`
		CreatedDate string `json:"createdDate"`
	} `json:"history"`
	Version struct {
		By   user   `json:"by"`
		When string `json:"when"`
	} `json:"version"`
	Container struct {
		ID string `json:"id"`
	} `json:"container"`
	Extensions struct {
		FileSize  int64  `json:"fileSize"`
		MediaType string `json:"mediaType"`
	} `json:"extensions"`
	Links struct {
		WebUI string `json:"webui"`
	} `json:"_links"`
}

type contentList struct {
	Results []content `json:"results"`
	Size    int       `json:"size"`
}

type spaceResponse struct {
	Key   string `json:"key"`
	Name  string `json:"name"`
	Links struct {
		WebUI string `json:"webui"`
	} `json:"_links"`
}

func (c *Client) get(ctx context.Context, op, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return syncerr.New(syncerr.ErrValidation, op, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.creds.PAT != "" {
		req.Header.Set("Authorization", "Bearer "+c.creds.PAT)
	} else {
		req.SetBasicAuth(c.creds.Username, c.creds.APIToken)
	}

	resp, err := c.http.Do(op, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return syncerr.FromTransport(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return syncerr.FromResponse(op, resp, string(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return syncerr.New(syncerr.ErrServer, op, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

func (c *Client) link(webui string) string {
	if webui == "" {
		return ""
	}
	return c.baseURL + webui
}

// Space returns the space with the given key
func (c *Client) Space(ctx context.Context, key string) (*models.Space, error) {
	c.mu.Lock()
	if s, ok := c.spaces[key]; ok {
		c.mu.Unlock()
		return s, nil
	}
	c.mu.Unlock()

	var resp spaceResponse
	if err := c.get(ctx, "get space", "/rest/api/space/"+url.PathEscape(key), nil, &resp); err != nil {
		return nil, err
	}
	s := &models.Space{Key: resp.Key, Name: resp.Name, URL: c.link(resp.Links.WebUI)}

	c.mu.Lock()
	c.spaces[key] = s
	c.mu.Unlock()
	return s, nil
}

func (c *Client) list(ctx context.Context, op, path string, query url.Values, limit int) ([]content, error) {
	var all []content
	start := 0
	for limit <= 0 || start < limit {
		n := pageSize
		if limit > 0 && limit-start < n {
			n = limit - start
		}
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("start", strconv.Itoa(start))
		q.Set("limit", strconv.Itoa(n))

		var page contentList
		if err := c.get(ctx, op, path, q, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Results...)
		if page.Size == 0 || page.Size < n {
			break
		}
		start += page.Size
	}
	return all, nil
}

func pageItem(p content) models.ContentItem {
	return models.ContentItem{
		ID:       p.ID,
		Kind:     models.KindPage,
		Title:    p.Title,
		SpaceKey: p.Space.Key,
	}
}

// PagesInSpace returns the space's pages in Confluence order
func (c *Client) PagesInSpace(ctx context.Context, key string) ([]models.ContentItem, error) {
	q := url.Values{
		"spaceKey": {key},
		"type":     {"page"},
		"expand":   {"space"},
	}
	pages, err := c.list(ctx, "list pages", "/rest/api/content", q, 0)
	if err != nil {
		return nil, err
	}
	items := make([]models.ContentItem, 0, len(pages))
	for _, p := range pages {
		if p.Space.Key == "" {
			p.Space.Key = key
		}
		items = append(items, pageItem(p))
	}
	return items, nil
}

// Page returns a single page
func (c *Client) Page(ctx context.Context, id string) (*models.ContentItem, error) {
	var p content
	q := url.Values{"expand": {"space"}}
	if err := c.get(ctx, "get page", "/rest/api/content/"+url.PathEscape(id), q, &p); err != nil {
		return nil, err
	}
	item := pageItem(p)
	return &item, nil
}

// Attachments returns the attachments of a page
func (c *Client) Attachments(ctx context.Context, page models.ContentItem) ([]models.ContentItem, error) {
	q := url.Values{"expand": {"version,container"}}
	atts, err := c.list(ctx, "list attachments", "/rest/api/content/"+url.PathEscape(page.ID)+"/child/attachment", q, 0)
	if err != nil {
		return nil, err
	}
	items := make([]models.ContentItem, 0, len(atts))
	for _, a := range atts {
		items = append(items, models.ContentItem{
			ID:        a.ID,
			Kind:      models.KindAttachment,
			Title:     a.Title,
			SpaceKey:  page.SpaceKey,
			Size:      a.Extensions.FileSize,
			MediaType: a.Extensions.MediaType,
			ParentID:  page.ID,
		})
	}
	return items, nil
}

// pageOnlyCQL restricts a query to pages
func pageOnlyCQL(cql string) string {
	lower := strings.ToLower(cql)
	switch {
	case strings.TrimSpace(cql) == "":
		return "type = page"
	case strings.Contains(lower, "type = page") || strings.Contains(lower, "type=page"):
		return cql
	default:
		return "(" + cql + ") AND type = page"
	}
}

// Search runs a CQL query and returns at most limit distinct pages.
// A query Confluence rejects as malformed fails with syncerr.ErrInvalidQuery.
func (c *Client) Search(ctx context.Context, cql string, limit int) ([]models.ContentItem, error) {
	query := pageOnlyCQL(cql)
	logger.Debug("Executing CQL query", map[string]interface{}{
		"cql":   query,
		"limit": limit,
	})

	q := url.Values{
		"cql":    {query},
		"expand": {"space"},
	}
	results, err := c.list(ctx, "search", "/rest/api/content/search", q, limit)
	if syncerr.StatusCode(err) == http.StatusBadRequest {
		return nil, syncerr.New(syncerr.ErrInvalidQuery, "search", err)
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(results))
	items := make([]models.ContentItem, 0, len(results))
	for _, r := range results {
		if r.Type != "" && r.Type != "page" {
			continue
		}
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		items = append(items, pageItem(r))
	}
	return items, nil
}
