package confluence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/takak2166/confluence2openwebui/internal/logger"
	"github.com/takak2166/confluence2openwebui/internal/models"
	"github.com/takak2166/confluence2openwebui/internal/syncerr"
	"github.com/takak2166/confluence2openwebui/internal/target"
)

// SpaceLookup resolves a space key to its metadata
type SpaceLookup interface {
	Space(ctx context.Context, key string) (*models.Space, error)
}

// LocalStore reads the rendered content of items from an export directory
type LocalStore struct {
	root   string
	spaces SpaceLookup
}

// NewLocalStore creates a store rooted at dir. spaces may be nil, in which
// case only space keys are used to build paths.
func NewLocalStore(dir string, spaces SpaceLookup) *LocalStore {
	return &LocalStore{root: dir, spaces: spaces}
}

// Candidates lists the paths tried for item, most specific first
func (s *LocalStore) Candidates(ctx context.Context, item models.ContentItem) []string {
	var paths []string
	if item.Path != "" {
		if filepath.IsAbs(item.Path) {
			paths = append(paths, item.Path)
		} else {
			paths = append(paths, filepath.Join(s.root, item.Path))
		}
	}

	key := item.SpaceKey
	name := key
	if s.spaces != nil && key != "" {
		if sp, err := s.spaces.Space(ctx, key); err == nil {
			name = target.SanitizeFilename(sp.DisplayName(), "")
		}
	}

	if item.IsAttachment() {
		names := []string{item.Title, target.SanitizeFilename(item.Title, "")}
		if ext := filepath.Ext(item.Title); ext != "" {
			names = append(names, item.ID+ext)
		}
		for _, n := range unique(names) {
			paths = append(paths,
				filepath.Join(s.root, name, "attachments", n),
				filepath.Join(s.root, key, "attachments", n),
				filepath.Join(s.root, "attachments", n),
				filepath.Join(s.root, n),
			)
		}
		return unique(paths)
	}

	for _, n := range unique([]string{target.SanitizeFilename(item.Title, ".md"), item.Title + ".md"}) {
		paths = append(paths,
			filepath.Join(s.root, name, name, n),
			filepath.Join(s.root, key, n),
			filepath.Join(s.root, key, item.Title, n),
			filepath.Join(s.root, name, n),
			filepath.Join(s.root, n),
		)
	}
	return unique(paths)
}

// Read returns the content of the first candidate path that exists
func (s *LocalStore) Read(ctx context.Context, item models.ContentItem) ([]byte, error) {
	candidates := s.Candidates(ctx, item)
	for _, p := range candidates {
		data, err := os.ReadFile(p)
		if err == nil {
			logger.Debug("Read local content", map[string]interface{}{
				"item": item.ID,
				"path": p,
			})
			return data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, syncerr.New(syncerr.ErrContentRead, "read content", fmt.Errorf("failed to read %s: %w", p, err))
		}
	}

	logger.Debug("No local file found", map[string]interface{}{
		"item":       item.ID,
		"candidates": candidates,
	})
	return nil, syncerr.New(syncerr.ErrContentRead, "read content", fmt.Errorf("no file found for %s %q", item.Kind, item.Title))
}

func unique(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
