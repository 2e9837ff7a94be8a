// Package filter decides which attachments are uploaded to the knowledge base.
package filter

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/takak2166/confluence2openwebui/internal/logger"
	"github.com/takak2166/confluence2openwebui/internal/models"
)

const bytesPerMB = 1024 * 1024

// Rule is an immutable allow-list of lowercase extensions plus an optional size ceiling
type Rule struct {
	extensions map[string]struct{}
	maxBytes   int64 // 0 means unlimited
}

// NewRule parses a comma-separated extension list. Whitespace and leading dots
// are trimmed and duplicates collapse. maxSizeMB of 0 disables the size check.
func NewRule(extensions string, maxSizeMB int) (Rule, error) {
	if maxSizeMB < 0 {
		return Rule{}, fmt.Errorf("max attachment size must not be negative: %d", maxSizeMB)
	}

	set := make(map[string]struct{})
	for _, ext := range strings.Split(extensions, ",") {
		ext = strings.ToLower(strings.TrimLeft(strings.TrimSpace(ext), "."))
		if ext != "" {
			set[ext] = struct{}{}
		}
	}

	return Rule{extensions: set, maxBytes: int64(maxSizeMB) * bytesPerMB}, nil
}

// Extensions returns the allowed extensions in sorted order
func (r Rule) Extensions() []string {
	out := make([]string, 0, len(r.extensions))
	for ext := range r.extensions {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// MaxBytes returns the size ceiling, 0 when unlimited
func (r Rule) MaxBytes() int64 {
	return r.maxBytes
}

// Result is the outcome of a filter decision
type Result struct {
	Accept bool
	Reason string
}

// Evaluate is a pure function of the rule, filename and size.
// A size of 0 or less means unknown and skips the size check.
func (r Rule) Evaluate(filename string, size int64) Result {
	ext := Extension(filename)
	if ext == "" {
		return Result{Reason: "no file extension"}
	}
	if len(r.extensions) == 0 {
		return Result{Reason: "no attachment extensions allowed"}
	}
	if _, ok := r.extensions[ext]; !ok {
		return Result{Reason: fmt.Sprintf("extension %q not allowed", ext)}
	}
	if r.maxBytes > 0 && size > r.maxBytes {
		return Result{Reason: fmt.Sprintf("size %d bytes exceeds limit of %d bytes", size, r.maxBytes)}
	}
	return Result{Accept: true, Reason: fmt.Sprintf("extension %q allowed", ext)}
}

// Extension returns the lowercase text after the last dot of the base name
func Extension(filename string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	i := strings.LastIndex(base, ".")
	if i < 0 || i == len(base)-1 {
		return ""
	}
	return strings.ToLower(base[i+1:])
}

// Rejection records an item the filter dropped and why
type Rejection struct {
	Item   models.ContentItem
	Reason string
}

// Filter applies a Rule to attachments. The rule can be swapped at runtime.
type Filter struct {
	mu   sync.RWMutex
	rule Rule
}

// New creates a filter from a comma-separated extension list and a size ceiling in MB
func New(extensions string, maxSizeMB int) (*Filter, error) {
	rule, err := NewRule(extensions, maxSizeMB)
	if err != nil {
		return nil, err
	}
	return &Filter{rule: rule}, nil
}

// Rule returns the active rule
func (f *Filter) Rule() Rule {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.rule
}

// Update validates and then replaces the active rule. On error the old rule stays.
func (f *Filter) Update(extensions string, maxSizeMB int) error {
	rule, err := NewRule(extensions, maxSizeMB)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.rule = rule
	f.mu.Unlock()

	logger.Info("Updated attachment filter", map[string]interface{}{
		"extensions": rule.Extensions(),
		"max_bytes":  rule.maxBytes,
	})
	return nil
}

// ShouldProcess decides whether one attachment is uploaded
func (f *Filter) ShouldProcess(filename string, size int64) Result {
	return f.Rule().Evaluate(filename, size)
}

// FilterAll splits attachments into accepted and rejected lists, keeping
// relative order in both. Every rejection is logged with its reason.
func (f *Filter) FilterAll(items []models.ContentItem) ([]models.ContentItem, []Rejection) {
	rule := f.Rule()

	var accepted []models.ContentItem
	var rejected []Rejection
	for _, item := range items {
		res := rule.Evaluate(item.Title, item.Size)
		if res.Accept {
			accepted = append(accepted, item)
			continue
		}

		logger.Info("Skipping attachment", map[string]interface{}{
			"attachment": item.Title,
			"id":         item.ID,
			"space":      item.SpaceKey,
			"reason":     res.Reason,
		})
		rejected = append(rejected, Rejection{Item: item, Reason: res.Reason})
	}

	return accepted, rejected
}

// Summary describes the active configuration for diagnostics
func (f *Filter) Summary() map[string]interface{} {
	rule := f.Rule()
	return map[string]interface{}{
		"allowed_extensions": rule.Extensions(),
		"max_bytes":          rule.maxBytes,
	}
}
