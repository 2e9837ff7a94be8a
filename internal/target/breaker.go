package target

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/takak2166/confluence2openwebui/internal/logger"
	"github.com/takak2166/confluence2openwebui/internal/models"
	"github.com/takak2166/confluence2openwebui/internal/syncerr"
)

// BreakerSettings configures the circuit breaker wrapped around a Client.
type BreakerSettings struct {
	Name string

	// MaxRequests is the number of probes allowed while half-open.
	MaxRequests uint32

	// Interval is the cyclic reset period for counts while closed.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration

	// FailureThreshold is the number of consecutive transient failures that opens the breaker.
	FailureThreshold uint32
}

// DefaultBreakerSettings returns production defaults.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Name:             "target",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// CircuitBreakerClient stops calling the target after repeated transient
// failures. Rejected calls surface as ErrNetwork so the retry policy waits
// and probes again.
type CircuitBreakerClient struct {
	next Client
	cb   *gobreaker.CircuitBreaker[any]
}

var _ Client = (*CircuitBreakerClient)(nil)

// NewCircuitBreakerClient wraps next with a circuit breaker.
func NewCircuitBreakerClient(next Client, s BreakerSettings) *CircuitBreakerClient {
	settings := gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
		// only transient failures count against the target
		IsSuccessful: func(err error) bool {
			return err == nil || !isTransient(err)
		},
	}
	return &CircuitBreakerClient{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[any](settings),
	}
}

// State reports the current breaker state.
func (c *CircuitBreakerClient) State() gobreaker.State {
	return c.cb.State()
}

func isTransient(err error) bool {
	return errors.Is(err, syncerr.ErrNetwork) ||
		errors.Is(err, syncerr.ErrServer) ||
		errors.Is(err, syncerr.ErrRateLimit)
}

func (c *CircuitBreakerClient) execute(op string, fn func() (any, error)) (any, error) {
	result, err := c.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, syncerr.New(syncerr.ErrNetwork, op, err)
	}
	return result, err
}

func castResult[T any](result any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if result == nil {
		return zero, nil
	}
	v, ok := result.(T)
	if !ok {
		return zero, nil
	}
	return v, nil
}

func (c *CircuitBreakerClient) TestConnection(ctx context.Context) error {
	_, err := c.execute("test connection", func() (any, error) {
		return nil, c.next.TestConnection(ctx)
	})
	return err
}

func (c *CircuitBreakerClient) FindKnowledgeBaseByName(ctx context.Context, name string) (*models.KnowledgeBase, error) {
	return castResult[*models.KnowledgeBase](c.execute("find knowledge base", func() (any, error) {
		return c.next.FindKnowledgeBaseByName(ctx, name)
	}))
}

func (c *CircuitBreakerClient) CreateKnowledgeBase(ctx context.Context, name, description string) (*models.KnowledgeBase, error) {
	return castResult[*models.KnowledgeBase](c.execute("create knowledge base", func() (any, error) {
		return c.next.CreateKnowledgeBase(ctx, name, description)
	}))
}

func (c *CircuitBreakerClient) FindFileByName(ctx context.Context, name string) (*models.RemoteFile, error) {
	return castResult[*models.RemoteFile](c.execute("find file", func() (any, error) {
		return c.next.FindFileByName(ctx, name)
	}))
}

func (c *CircuitBreakerClient) CreateOrUpdateFile(ctx context.Context, name string, content []byte, mediaType string) (*models.RemoteFile, error) {
	return castResult[*models.RemoteFile](c.execute("upload file", func() (any, error) {
		return c.next.CreateOrUpdateFile(ctx, name, content, mediaType)
	}))
}

func (c *CircuitBreakerClient) AddFileToKnowledgeBase(ctx context.Context, kbID, fileID string) error {
	_, err := c.execute("add file to knowledge base", func() (any, error) {
		return nil, c.next.AddFileToKnowledgeBase(ctx, kbID, fileID)
	})
	return err
}

func (c *CircuitBreakerClient) BatchAddFilesToKnowledgeBase(ctx context.Context, kbID string, fileIDs []string) error {
	_, err := c.execute("batch add files to knowledge base", func() (any, error) {
		return nil, c.next.BatchAddFilesToKnowledgeBase(ctx, kbID, fileIDs)
	})
	return err
}
