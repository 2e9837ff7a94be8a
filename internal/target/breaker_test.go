package target_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/takak2166/confluence2openwebui/internal/models"
	"github.com/takak2166/confluence2openwebui/internal/syncerr"
	"github.com/takak2166/confluence2openwebui/internal/target"
	"github.com/takak2166/confluence2openwebui/internal/target/mock_target"
)

func testSettings() target.BreakerSettings {
	return target.BreakerSettings{
		Name:             "test",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Hour,
		FailureThreshold: 2,
	}
}

func TestCircuitBreakerClientPassesThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	next := mock_target.NewMockClient(ctrl)
	next.EXPECT().FindKnowledgeBaseByName(gomock.Any(), "DOCS").Return(&models.KnowledgeBase{ID: "kb1", Name: "DOCS"}, nil)
	next.EXPECT().FindFileByName(gomock.Any(), "missing.md").Return(nil, nil)

	c := target.NewCircuitBreakerClient(next, testSettings())

	kb, err := c.FindKnowledgeBaseByName(context.Background(), "DOCS")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if kb == nil || kb.ID != "kb1" {
		t.Errorf("Expected kb1, got %+v", kb)
	}

	f, err := c.FindFileByName(context.Background(), "missing.md")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if f != nil {
		t.Errorf("Expected nil file, got %+v", f)
	}
}

func TestCircuitBreakerClientOpensOnTransientFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	next := mock_target.NewMockClient(ctrl)
	serverErr := syncerr.FromStatus("upload file", 503, "unavailable")
	next.EXPECT().CreateOrUpdateFile(gomock.Any(), "a.md", gomock.Any(), "text/markdown").Return(nil, serverErr).Times(2)

	c := target.NewCircuitBreakerClient(next, testSettings())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := c.CreateOrUpdateFile(ctx, "a.md", []byte("x"), "text/markdown"); !errors.Is(err, syncerr.ErrServer) {
			t.Fatalf("Expected server error, got %v", err)
		}
	}
	if c.State() != gobreaker.StateOpen {
		t.Fatalf("Expected open breaker, got %s", c.State())
	}

	_, err := c.CreateOrUpdateFile(ctx, "a.md", []byte("x"), "text/markdown")
	if !errors.Is(err, syncerr.ErrNetwork) {
		t.Errorf("Expected rejected call to be a network error, got %v", err)
	}
}

func TestCircuitBreakerClientIgnoresPermanentFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	next := mock_target.NewMockClient(ctrl)
	authErr := syncerr.FromStatus("add file to knowledge base", 401, "unauthorized")
	next.EXPECT().AddFileToKnowledgeBase(gomock.Any(), "kb1", "f1").Return(authErr).Times(3)

	c := target.NewCircuitBreakerClient(next, testSettings())
	for i := 0; i < 3; i++ {
		if err := c.AddFileToKnowledgeBase(context.Background(), "kb1", "f1"); !errors.Is(err, syncerr.ErrAuth) {
			t.Fatalf("Expected auth error, got %v", err)
		}
	}
	if c.State() != gobreaker.StateClosed {
		t.Errorf("Expected closed breaker, got %s", c.State())
	}
}
