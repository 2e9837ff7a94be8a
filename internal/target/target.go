// Package target defines the knowledge-base service consumed by the exporter.
package target

import (
	"context"

	"github.com/takak2166/confluence2openwebui/internal/models"
)

//go:generate mockgen -source=target.go -destination=mock_target/mock_target.go -package=mock_target

// Client is the knowledge-base and file surface of the target system.
// Implementations must be safe for concurrent use by several container groups.
//
// Errors carry a syncerr kind: ErrAuth is fatal, ErrRateLimit, ErrServer and
// ErrNetwork are transient.
type Client interface {
	TestConnection(ctx context.Context) error
	FindKnowledgeBaseByName(ctx context.Context, name string) (*models.KnowledgeBase, error)
	CreateKnowledgeBase(ctx context.Context, name, description string) (*models.KnowledgeBase, error)
	FindFileByName(ctx context.Context, name string) (*models.RemoteFile, error)
	CreateOrUpdateFile(ctx context.Context, name string, content []byte, mediaType string) (*models.RemoteFile, error)
	AddFileToKnowledgeBase(ctx context.Context, kbID, fileID string) error
	BatchAddFilesToKnowledgeBase(ctx context.Context, kbID string, fileIDs []string) error
}
