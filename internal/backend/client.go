package backend

import (
	"context"
	"fmt"

	"latencyctl/internal/models"
)

// Client is the request/response surface of the test engine. Every call is
// a single round trip; none of them retries.
type Client interface {
	ImportFromText(ctx context.Context, text string) ([]models.Target, error)
	ImportFromFile(ctx context.Context) ([]models.Target, error)
	ImportFromSubscription(ctx context.Context, url string) ([]models.Target, error)
	ImportMultipleSubscriptions(ctx context.Context, urls []string) ([]models.Target, error)
	ImportMultipleFiles(ctx context.Context) ([]models.Target, error)
	ClearNodes(ctx context.Context) error
	DeleteNodes(ctx context.Context, indices []int) ([]models.Target, error)
	GetNodes(ctx context.Context) ([]models.Target, error)

	StartTest(ctx context.Context) error
	StopTest(ctx context.Context) error
	IsRunning(ctx context.Context) (bool, error)

	// Export calls return nil when the backend produced no payload.
	ExportClashYAML(ctx context.Context) (*string, error)
	ExportNodeLinks(ctx context.Context) (*string, error)
	ExportYAMLFlow(ctx context.Context) (*string, error)
	ExportYAMLFlowFiltered(ctx context.Context, typeFilter string) (*string, error)
	ExportNodeLinksFiltered(ctx context.Context, typeFilter string) (*string, error)
	GetAvailableProxyTypes(ctx context.Context) ([]string, error)

	UpdateSettings(ctx context.Context, settings models.Settings) error
	GetSettings(ctx context.Context) (models.Settings, error)
}

// Push-event topics emitted by the test engine.
const (
	TopicResult         = "result"
	TopicProgress       = "progress"
	TopicComplete       = "complete"
	TopicLog            = "log"
	TopicTargetsUpdated = "targets-updated"
	TopicLookupProgress = "lookup-progress"
)

// Topics lists every push topic the controller consumes.
var Topics = []string{
	TopicResult,
	TopicProgress,
	TopicComplete,
	TopicLog,
	TopicTargetsUpdated,
	TopicLookupProgress,
}

// APIError is a failure reported by the backend or its transport.
type APIError struct {
	Operation string
	Status    int
	Message   string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend %s failed with status %d", e.Operation, e.Status)
	}
	return fmt.Sprintf("backend %s: %s", e.Operation, e.Message)
}
