// Package exporter pushes collected Confluence content into a knowledge base.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/takak2166/confluence2openwebui/internal/collector"
	"github.com/takak2166/confluence2openwebui/internal/enricher"
	"github.com/takak2166/confluence2openwebui/internal/filter"
	"github.com/takak2166/confluence2openwebui/internal/logger"
	"github.com/takak2166/confluence2openwebui/internal/models"
	"github.com/takak2166/confluence2openwebui/internal/retry"
	"github.com/takak2166/confluence2openwebui/internal/syncerr"
	"github.com/takak2166/confluence2openwebui/internal/target"
)

// ProvenanceSource looks up space metadata and per-item origin facts
type ProvenanceSource interface {
	Space(ctx context.Context, key string) (*models.Space, error)
	Provenance(ctx context.Context, item models.ContentItem) (models.Provenance, error)
}

// ContentReader returns the rendered content of an item
type ContentReader interface {
	Read(ctx context.Context, item models.ContentItem) ([]byte, error)
}

// ProgressFunc is called after each item of a group completes
type ProgressFunc func(spaceKey string, done, total int)

// Options tunes an Engine
type Options struct {
	BatchAdd    bool
	Concurrency int // Container groups processed in parallel
	Progress    ProgressFunc
}

// Engine runs exports. Its dependencies are read-only, so one Engine can
// serve several runs.
type Engine struct {
	target   target.Client
	source   ProvenanceSource
	reader   ContentReader
	filter   *filter.Filter
	enricher *enricher.Enricher
	policy   *retry.Policy
	opts     Options
	now      func() time.Time
	newID    func() string

	// Groups whose spaces share a display name resolve one knowledge base
	resolving singleflight.Group
}

// New creates an Engine
func New(t target.Client, src ProvenanceSource, r ContentReader, f *filter.Filter, e *enricher.Enricher, p *retry.Policy, opts Options) *Engine {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Engine{
		target:   t,
		source:   src,
		reader:   r,
		filter:   f,
		enricher: e,
		policy:   p,
		opts:     opts,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// plannedItem is an item with its target filename
type plannedItem struct {
	models.ContentItem
	filename string
}

// plannedGroup is a container group after filtering and naming
type plannedGroup struct {
	group    models.ContainerGroup
	items    []plannedItem
	rejected []filter.Rejection
}

// Run collects items and exports every container group. It returns an error
// only when collection failed. A failed connection test yields a result whose
// groups are all aborted, so callers can still report it.
func (e *Engine) Run(ctx context.Context, c collector.Collector) (*Result, error) {
	runID := e.newID()
	result := &Result{RunID: runID, Description: c.Description()}

	items, err := c.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect content: %w", err)
	}
	if len(items) == 0 {
		logger.Info("Nothing to export", map[string]interface{}{
			"run_id":      runID,
			"description": result.Description,
		})
		return result, nil
	}

	plans := e.plan(models.GroupBySpace(items))

	if err := e.policy.Execute(ctx, "test connection", e.target.TestConnection); err != nil {
		logger.Error("Failed to connect to target", err, map[string]interface{}{
			"run_id": runID,
		})
		for _, p := range plans {
			summary := newSummary(runID, p.group, e.now())
			e.recordRejections(summary, p)
			e.abort(summary, p.items, "Connection test", err)
			summary.EndTime = e.now()
			result.Summaries = append(result.Summaries, summary)
		}
		result.Canceled = ctx.Err() != nil
		return result, nil
	}

	logger.Info("Starting export", map[string]interface{}{
		"run_id": runID,
		"items":  len(items),
		"groups": len(plans),
	})

	result.Summaries = make([]*Summary, len(plans))
	var g errgroup.Group
	g.SetLimit(e.opts.Concurrency)
	for i, p := range plans {
		g.Go(func() error {
			result.Summaries[i] = e.exportGroup(ctx, runID, p, result.Description)
			return nil
		})
	}
	_ = g.Wait()

	result.Canceled = ctx.Err() != nil
	return result, nil
}

// plan filters attachments and assigns filenames in collection order so the
// same collection always maps to the same names.
func (e *Engine) plan(groups []models.ContainerGroup) []plannedGroup {
	names := newNameRegistry()
	plans := make([]plannedGroup, 0, len(groups))
	for _, group := range groups {
		accepted, rejected := e.filter.FilterAll(group.Attachments())
		p := plannedGroup{group: group, rejected: rejected}
		for _, item := range append(group.Pages(), accepted...) {
			p.items = append(p.items, plannedItem{ContentItem: item, filename: names.claim(item)})
		}
		plans = append(plans, p)
	}
	return plans
}

func (e *Engine) exportGroup(ctx context.Context, runID string, p plannedGroup, description string) *Summary {
	summary := newSummary(runID, p.group, e.now())
	defer func() {
		summary.EndTime = e.now()
		logger.Info("Finished container group", map[string]interface{}{
			"run_id":       runID,
			"space":        summary.SpaceKey,
			"successful":   summary.TotalSuccessful(),
			"failed":       summary.TotalFailed(),
			"canceled":     summary.TotalCanceled(),
			"success_rate": fmt.Sprintf("%.1f", summary.SuccessRate()),
		})
	}()

	e.recordRejections(summary, p)

	kb, err := e.resolveKnowledgeBase(ctx, p.group.SpaceKey, description, summary)
	if err != nil {
		e.abort(summary, p.items, "Knowledge base", err)
		logger.Error("Failed to resolve knowledge base", err, map[string]interface{}{
			"run_id": runID,
			"space":  p.group.SpaceKey,
		})
		return summary
	}

	var uploaded []string
	for i, item := range p.items {
		if ctx.Err() != nil {
			e.cancelRemaining(summary, p.items[i:])
			break
		}

		fileID, err := e.exportItem(ctx, item)
		switch {
		case err == nil:
			summary.addSuccess(item.Kind)
			uploaded = append(uploaded, fileID)
		case errors.Is(err, syncerr.ErrCanceled):
			e.cancelRemaining(summary, p.items[i:])
		default:
			summary.addFailure(item.Kind, fmt.Sprintf("%s: %v", item.filename, err))
			logger.Error("Failed to export item", err, map[string]interface{}{
				"run_id": runID,
				"space":  p.group.SpaceKey,
				"item":   item.ID,
				"file":   item.filename,
			})
		}
		if errors.Is(err, syncerr.ErrCanceled) {
			break
		}

		if e.opts.Progress != nil {
			e.opts.Progress(p.group.SpaceKey, i+1, len(p.items))
		}
	}

	e.register(ctx, kb.ID, uploaded, summary)
	return summary
}

func (e *Engine) recordRejections(summary *Summary, p plannedGroup) {
	for _, r := range p.rejected {
		summary.addFiltered(r.Item.Title, r.Reason)
	}
}

// abort marks a group as not processed. Items count as canceled only when
// the run itself was canceled.
func (e *Engine) abort(summary *Summary, items []plannedItem, stage string, err error) {
	summary.Aborted = true
	if errors.Is(err, syncerr.ErrCanceled) {
		e.cancelRemaining(summary, items)
	}
	summary.addError(fmt.Sprintf("%s: %v", stage, err))
}

func (e *Engine) cancelRemaining(summary *Summary, items []plannedItem) {
	for _, item := range items {
		summary.addCanceled(item.Kind)
	}
}

func (e *Engine) resolveKnowledgeBase(ctx context.Context, spaceKey, description string, summary *Summary) (*models.KnowledgeBase, error) {
	space, err := e.source.Space(ctx, spaceKey)
	if err != nil {
		logger.Warn("Could not get space details", map[string]interface{}{
			"space": spaceKey,
			"error": err.Error(),
		})
		space = &models.Space{Key: spaceKey}
	}
	name := space.DisplayName()
	summary.KnowledgeBaseName = name

	v, err, _ := e.resolving.Do(name, func() (interface{}, error) {
		return e.findOrCreateKnowledgeBase(ctx, name, knowledgeBaseDescription(space, description))
	})
	if err != nil {
		return nil, err
	}
	kb := v.(*models.KnowledgeBase)

	summary.KnowledgeBaseID = kb.ID
	logger.Info("Using knowledge base", map[string]interface{}{
		"name": kb.Name,
		"id":   kb.ID,
	})
	return kb, nil
}

func (e *Engine) findOrCreateKnowledgeBase(ctx context.Context, name, description string) (*models.KnowledgeBase, error) {
	kb, err := retry.Do(ctx, e.policy, "find knowledge base", func(ctx context.Context) (*models.KnowledgeBase, error) {
		return e.target.FindKnowledgeBaseByName(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	if kb == nil {
		kb, err = retry.Do(ctx, e.policy, "create knowledge base", func(ctx context.Context) (*models.KnowledgeBase, error) {
			return e.target.CreateKnowledgeBase(ctx, name, description)
		})
		if err != nil {
			return nil, err
		}
	}
	if kb == nil || kb.ID == "" {
		return nil, syncerr.New(syncerr.ErrServer, "resolve knowledge base", fmt.Errorf("knowledge base %q has no id", name))
	}
	return kb, nil
}

func knowledgeBaseDescription(space *models.Space, description string) string {
	origin := space.URL
	if origin == "" {
		origin = "space " + space.Key
	}
	return fmt.Sprintf("Exported from Confluence %s (%s)", origin, description)
}

// exportItem uploads one item and returns the target file id
func (e *Engine) exportItem(ctx context.Context, item plannedItem) (string, error) {
	prov, err := e.source.Provenance(ctx, item.ContentItem)
	if err != nil {
		logger.Warn("Could not get provenance, exporting without it", map[string]interface{}{
			"item":  item.ID,
			"error": err.Error(),
		})
		prov = models.Provenance{SpaceKey: item.SpaceKey, ItemID: item.ID}
		if item.IsAttachment() {
			prov.ParentID, prov.Size, prov.MediaType = item.ParentID, item.Size, item.MediaType
		}
	}

	content, err := e.reader.Read(ctx, item.ContentItem)
	if err != nil {
		return "", err
	}

	mediaType := "text/markdown"
	if item.IsAttachment() {
		mediaType = item.MediaType
		if mediaType == "" {
			mediaType = filter.MediaType(item.Title)
		}
	}

	switch {
	case !item.IsAttachment():
		enriched, err := e.enricher.EnrichPage(string(content), prov)
		if err != nil {
			return "", syncerr.New(syncerr.ErrContentRead, "enrich page", err)
		}
		content = []byte(enriched)
	case filter.IsText(item.Title):
		enriched, err := e.enricher.EnrichAttachment(string(content), prov)
		if err != nil {
			return "", syncerr.New(syncerr.ErrContentRead, "enrich attachment", err)
		}
		content = []byte(enriched)
	}

	file, err := retry.Do(ctx, e.policy, "upload "+item.filename, func(ctx context.Context) (*models.RemoteFile, error) {
		return e.target.CreateOrUpdateFile(ctx, item.filename, content, mediaType)
	})
	if err != nil {
		return "", err
	}

	logger.Info("Uploaded file", map[string]interface{}{
		"file":    item.filename,
		"id":      file.ID,
		"updated": file.Updated,
	})
	return file.ID, nil
}

// register adds uploaded files to the knowledge base. Registration outcomes
// are tracked apart from upload outcomes.
func (e *Engine) register(ctx context.Context, kbID string, fileIDs []string, summary *Summary) {
	if len(fileIDs) == 0 {
		return
	}
	if ctx.Err() != nil {
		summary.RegistrationFails += len(fileIDs)
		summary.addError(fmt.Sprintf("Registration: skipped %d files after cancellation", len(fileIDs)))
		return
	}

	if e.opts.BatchAdd && len(fileIDs) > 1 {
		err := e.policy.Execute(ctx, "batch add files", func(ctx context.Context) error {
			return e.target.BatchAddFilesToKnowledgeBase(ctx, kbID, fileIDs)
		})
		switch {
		case err == nil:
			summary.Registered += len(fileIDs)
			return
		case errors.Is(err, syncerr.ErrDuplicate):
			// The batch may mix new and registered files; sort them out one by one
			logger.Debug("Batch hit registered files, adding individually", map[string]interface{}{
				"knowledge_base": kbID,
				"files":          len(fileIDs),
			})
		default:
			summary.RegistrationFails += len(fileIDs)
			summary.addError(fmt.Sprintf("Registration: batch of %d files: %v", len(fileIDs), err))
			logger.Error("Failed to register files", err, map[string]interface{}{
				"knowledge_base": kbID,
				"files":          len(fileIDs),
			})
			return
		}
	}

	for _, id := range fileIDs {
		err := e.policy.Execute(ctx, "add file", func(ctx context.Context) error {
			return e.target.AddFileToKnowledgeBase(ctx, kbID, id)
		})
		switch {
		case err == nil:
			summary.Registered++
		case errors.Is(err, syncerr.ErrDuplicate):
			summary.Duplicates++
		default:
			summary.RegistrationFails++
			summary.addError(fmt.Sprintf("Registration: file %s: %v", id, err))
			logger.Error("Failed to register file", err, map[string]interface{}{
				"knowledge_base": kbID,
				"file":           id,
			})
		}
	}
}

// nameRegistry hands out target filenames. The first item claiming a name
// keeps it; later distinct items get their id appended. Claims last for one
// run only.
type nameRegistry struct {
	owners map[string]string // lowercased filename -> item id
}

func newNameRegistry() *nameRegistry {
	return &nameRegistry{owners: make(map[string]string)}
}

func (r *nameRegistry) claim(item models.ContentItem) string {
	ext := ""
	if !item.IsAttachment() {
		ext = ".md"
	}
	name := target.SanitizeFilename(item.Title, ext)

	key := strings.ToLower(name)
	owner, taken := r.owners[key]
	if !taken || owner == item.ID {
		r.owners[key] = item.ID
		return name
	}

	name = target.Disambiguate(name, item.ID)
	r.owners[strings.ToLower(name)] = item.ID
	logger.Warn("Filename collision, disambiguating", map[string]interface{}{
		"item": item.ID,
		"file": name,
	})
	return name
}
