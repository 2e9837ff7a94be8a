// Package openwebui implements target.Client against the Open WebUI REST API.
package openwebui

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/goccy/go-json"

	"github.com/takak2166/confluence2openwebui/internal/filter"
	"github.com/takak2166/confluence2openwebui/internal/logger"
	"github.com/takak2166/confluence2openwebui/internal/models"
	"github.com/takak2166/confluence2openwebui/internal/syncerr"
	"github.com/takak2166/confluence2openwebui/internal/target"
	"github.com/takak2166/confluence2openwebui/internal/transport"
)

const apiPrefix = "/api/v1"

// Client talks to one Open WebUI instance. It holds no mutable state and is
// safe to share between container groups.
type Client struct {
	baseURL string
	apiKey  string
	http    *transport.Client
}

var _ target.Client = (*Client)(nil)

// New creates a client for baseURL authenticated with an "sk-" API key
func New(baseURL, apiKey string, hc *transport.Client) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, syncerr.New(syncerr.ErrValidation, "open webui client", fmt.Errorf("URL must not be empty"))
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, syncerr.New(syncerr.ErrValidation, "open webui client", fmt.Errorf("URL must start with http:// or https://"))
	}
	if apiKey == "" {
		return nil, syncerr.New(syncerr.ErrAuth, "open webui client", fmt.Errorf("API key must not be empty"))
	}
	if !strings.HasPrefix(apiKey, "sk-") {
		return nil, syncerr.New(syncerr.ErrAuth, "open webui client", fmt.Errorf("API key must start with 'sk-'"))
	}
	return &Client{baseURL: baseURL, apiKey: apiKey, http: hc}, nil
}

type fileResponse struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Meta     struct {
		Name string `json:"name"`
	} `json:"meta"`
}

func (f fileResponse) name() string {
	if f.Filename != "" {
		return f.Filename
	}
	return f.Meta.Name
}

type healthResponse struct {
	Status  interface{} `json:"status"`
	Message string      `json:"message"`
}

// request sends one call and returns the body of a 2xx response
func (c *Client) request(ctx context.Context, op, method, path string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, syncerr.New(syncerr.ErrValidation, op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	logger.Debug("Open WebUI request", map[string]interface{}{
		"method": method,
		"path":   path,
	})

	resp, err := c.http.Do(op, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, syncerr.FromTransport(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, syncerr.FromResponse(op, resp, string(data))
	}
	return data, nil
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, in, out interface{}) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return syncerr.New(syncerr.ErrValidation, op, err)
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	}

	data, err := c.request(ctx, op, method, path, body, contentType)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return syncerr.New(syncerr.ErrServer, op, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// TestConnection checks /health and then an authenticated endpoint so a bad
// key fails here rather than mid-run.
func (c *Client) TestConnection(ctx context.Context) error {
	const op = "test connection"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return syncerr.New(syncerr.ErrValidation, op, err)
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
	if resp.StatusCode != http.StatusOK {
		return syncerr.FromResponse(op, resp, string(data))
	}

	// some deployments serve the frontend on /health
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		var health healthResponse
		if err := json.Unmarshal(data, &health); err != nil {
			return syncerr.New(syncerr.ErrServer, op, fmt.Errorf("failed to decode health response: %w", err))
		}
		switch health.Status {
		case true, "ok", "true":
		default:
			return syncerr.New(syncerr.ErrServer, op, fmt.Errorf("unhealthy: status=%v message=%q", health.Status, health.Message))
		}
	}

	if _, err := c.ListKnowledgeBases(ctx); err != nil {
		return err
	}
	logger.Info("Connected to Open WebUI", map[string]interface{}{"url": c.baseURL})
	return nil
}

// ListKnowledgeBases returns every knowledge base visible to the key
func (c *Client) ListKnowledgeBases(ctx context.Context) ([]models.KnowledgeBase, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, "list knowledge bases", http.MethodGet, apiPrefix+"/knowledge/", nil, &raw); err != nil {
		return nil, err
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	var kbs []models.KnowledgeBase
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &kbs); err != nil {
			return nil, syncerr.New(syncerr.ErrServer, "list knowledge bases", err)
		}
		return kbs, nil
	}

	var page struct {
		Items []models.KnowledgeBase `json:"items"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, syncerr.New(syncerr.ErrServer, "list knowledge bases", err)
	}
	return page.Items, nil
}

// FindKnowledgeBaseByName returns the knowledge base with the exact name, or
// nil when there is none
func (c *Client) FindKnowledgeBaseByName(ctx context.Context, name string) (*models.KnowledgeBase, error) {
	kbs, err := c.ListKnowledgeBases(ctx)
	if err != nil {
		return nil, err
	}
	for i := range kbs {
		if kbs[i].Name == name {
			return &kbs[i], nil
		}
	}
	return nil, nil
}

// CreateKnowledgeBase creates an empty knowledge base
func (c *Client) CreateKnowledgeBase(ctx context.Context, name, description string) (*models.KnowledgeBase, error) {
	in := map[string]string{"name": name, "description": description}
	var kb models.KnowledgeBase
	if err := c.doJSON(ctx, "create knowledge base", http.MethodPost, apiPrefix+"/knowledge/create", in, &kb); err != nil {
		return nil, err
	}
	if kb.ID == "" {
		return nil, syncerr.New(syncerr.ErrServer, "create knowledge base", fmt.Errorf("response has no id"))
	}
	logger.Info("Created knowledge base", map[string]interface{}{
		"name": kb.Name,
		"id":   kb.ID,
	})
	return &kb, nil
}

// FindFileByName returns the file whose name matches exactly, or nil
func (c *Client) FindFileByName(ctx context.Context, name string) (*models.RemoteFile, error) {
	path := apiPrefix + "/files/search?filename=" + url.QueryEscape(name)
	var files []fileResponse
	err := c.doJSON(ctx, "find file", http.MethodGet, path, nil, &files)
	if syncerr.StatusCode(err) == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if f.name() == name {
			return &models.RemoteFile{ID: f.ID, Filename: name}, nil
		}
	}
	return nil, nil
}

// CreateOrUpdateFile uploads a new file or replaces the content of the file
// already stored under name. Text content is updated in place; binary files
// are deleted and uploaded again.
func (c *Client) CreateOrUpdateFile(ctx context.Context, name string, content []byte, mediaType string) (*models.RemoteFile, error) {
	existing, err := c.FindFileByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return c.upload(ctx, name, content, mediaType)
	}

	if filter.IsText(name) {
		in := map[string]string{"content": string(content)}
		path := apiPrefix + "/files/" + url.PathEscape(existing.ID) + "/data/content/update"
		if err := c.doJSON(ctx, "update file", http.MethodPost, path, in, nil); err != nil {
			return nil, err
		}
		return &models.RemoteFile{ID: existing.ID, Filename: name, Updated: true}, nil
	}

	if err := c.deleteFile(ctx, existing.ID); err != nil {
		return nil, err
	}
	f, err := c.upload(ctx, name, content, mediaType)
	if err != nil {
		return nil, err
	}
	f.Updated = true
	return f, nil
}

func (c *Client) upload(ctx context.Context, name string, content []byte, mediaType string) (*models.RemoteFile, error) {
	const op = "upload file"
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", mediaType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, syncerr.New(syncerr.ErrValidation, op, err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, syncerr.New(syncerr.ErrValidation, op, err)
	}
	if err := w.Close(); err != nil {
		return nil, syncerr.New(syncerr.ErrValidation, op, err)
	}

	data, err := c.request(ctx, op, http.MethodPost, apiPrefix+"/files/", &buf, w.FormDataContentType())
	if err != nil {
		return nil, err
	}
	var f fileResponse
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, syncerr.New(syncerr.ErrServer, op, fmt.Errorf("failed to decode response: %w", err))
	}
	if f.ID == "" {
		return nil, syncerr.New(syncerr.ErrServer, op, fmt.Errorf("response has no id"))
	}
	return &models.RemoteFile{ID: f.ID, Filename: name}, nil
}

func (c *Client) deleteFile(ctx context.Context, id string) error {
	return c.doJSON(ctx, "delete file", http.MethodDelete, apiPrefix+"/files/"+url.PathEscape(id), nil, nil)
}

// AddFileToKnowledgeBase registers a file. A file the knowledge base already
// holds is reported as syncerr.ErrDuplicate.
func (c *Client) AddFileToKnowledgeBase(ctx context.Context, kbID, fileID string) error {
	const op = "add file to knowledge base"
	path := apiPrefix + "/knowledge/" + url.PathEscape(kbID) + "/file/add"
	err := c.doJSON(ctx, op, http.MethodPost, path, map[string]string{"file_id": fileID}, nil)
	return duplicateAware(op, err)
}

// BatchAddFilesToKnowledgeBase registers several files in one call
func (c *Client) BatchAddFilesToKnowledgeBase(ctx context.Context, kbID string, fileIDs []string) error {
	const op = "batch add files to knowledge base"
	in := make([]map[string]string, 0, len(fileIDs))
	for _, id := range fileIDs {
		in = append(in, map[string]string{"file_id": id})
	}
	path := apiPrefix + "/knowledge/" + url.PathEscape(kbID) + "/files/batch/add"
	err := c.doJSON(ctx, op, http.MethodPost, path, in, nil)
	return duplicateAware(op, err)
}

func duplicateAware(op string, err error) error {
	if err == nil || syncerr.StatusCode(err) != http.StatusBadRequest {
		return err
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "duplicate") || strings.Contains(msg, "already") {
		return &syncerr.Error{Kind: syncerr.ErrDuplicate, Op: op, StatusCode: http.StatusBadRequest, Err: err}
	}
	return err
}
