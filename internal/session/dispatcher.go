package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"latencyctl/internal/backend"
	"latencyctl/internal/models"
)

// ExportFormat names one of the backend's output encodings.
type ExportFormat string

const (
	FormatClashYAML ExportFormat = "clash-yaml"
	FormatLinks     ExportFormat = "links"
	FormatYAMLFlow  ExportFormat = "yaml-flow"
)

var (
	// ErrUnknownFormat is returned for an export format the backend lacks.
	ErrUnknownFormat = errors.New("unknown export format")
	// ErrNothingToExport is returned when saving an export with no content.
	ErrNothingToExport = errors.New("nothing to export")
	errNoWriter        = errors.New("no export writer configured")
)

// ParseExportFormat validates a format name.
func ParseExportFormat(name string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(strings.TrimSpace(name))); f {
	case FormatClashYAML, FormatLinks, FormatYAMLFlow:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}

// ExportWriter saves exported text under a file name and returns the path
// written.
type ExportWriter interface {
	Write(name, content string) (string, error)
}

// Dispatcher runs backend commands and applies their local effects only
// after the backend acknowledged them. A failed command leaves the Store
// untouched, with the documented exceptions of StartTest and
// UpdateSettings.
type Dispatcher struct {
	store  *Store
	client backend.Client
	writer ExportWriter
}

// NewDispatcher wires a dispatcher. writer may be nil when exports are
// never saved to disk.
func NewDispatcher(store *Store, client backend.Client, writer ExportWriter) *Dispatcher {
	return &Dispatcher{store: store, client: client, writer: writer}
}

type targetsCall func(ctx context.Context) ([]models.Target, error)

func (d *Dispatcher) replaceWith(ctx context.Context, op string, call targetsCall) error {
	targets, err := call(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	d.store.ReplaceTargets(targets)
	return nil
}

// ImportFromText imports targets parsed by the backend from text.
func (d *Dispatcher) ImportFromText(ctx context.Context, text string) error {
	return d.replaceWith(ctx, "import from text", func(ctx context.Context) ([]models.Target, error) {
		return d.client.ImportFromText(ctx, text)
	})
}

// ImportFromFile imports targets from a file the backend asks the user for.
func (d *Dispatcher) ImportFromFile(ctx context.Context) error {
	return d.replaceWith(ctx, "import from file", d.client.ImportFromFile)
}

// ImportFromSubscription imports targets from a subscription URL.
func (d *Dispatcher) ImportFromSubscription(ctx context.Context, url string) error {
	return d.replaceWith(ctx, "import subscription", func(ctx context.Context) ([]models.Target, error) {
		return d.client.ImportFromSubscription(ctx, url)
	})
}

// ImportMultipleSubscriptions imports targets from several subscription URLs.
func (d *Dispatcher) ImportMultipleSubscriptions(ctx context.Context, urls []string) error {
	return d.replaceWith(ctx, "import subscriptions", func(ctx context.Context) ([]models.Target, error) {
		return d.client.ImportMultipleSubscriptions(ctx, urls)
	})
}

// ImportMultipleFiles imports targets from several files.
func (d *Dispatcher) ImportMultipleFiles(ctx context.Context) error {
	return d.replaceWith(ctx, "import files", d.client.ImportMultipleFiles)
}

// ClearAllTargets empties the backend's target list and the local state.
func (d *Dispatcher) ClearAllTargets(ctx context.Context) error {
	return d.replaceWith(ctx, "clear targets", func(ctx context.Context) ([]models.Target, error) {
		return nil, d.client.ClearNodes(ctx)
	})
}

// DeleteSelectedTargets removes the selected targets. With nothing selected
// no request is made.
func (d *Dispatcher) DeleteSelectedTargets(ctx context.Context) error {
	indices := d.store.Selected()
	if len(indices) == 0 {
		return nil
	}
	return d.replaceWith(ctx, "delete targets", func(ctx context.Context) ([]models.Target, error) {
		return d.client.DeleteNodes(ctx, indices)
	})
}

// StartTest flags the session as running before the request is sent, since
// the backend starts pushing progress as soon as it accepts. A rejected
// start finishes the session again.
func (d *Dispatcher) StartTest(ctx context.Context) error {
	if err := d.store.BeginSession(); err != nil {
		return err
	}
	if err := d.client.StartTest(ctx); err != nil {
		d.store.Finish()
		return fmt.Errorf("start test: %w", err)
	}
	return nil
}

// StopTest asks the backend to cancel the session and marks it finished
// once acknowledged. Completion events still in flight are harmless.
func (d *Dispatcher) StopTest(ctx context.Context) error {
	stopping := d.store.BeginStop()
	if err := d.client.StopTest(ctx); err != nil {
		if stopping {
			d.store.AbortStop()
		}
		return fmt.Errorf("stop test: %w", err)
	}
	d.store.Finish()
	return nil
}

// Refresh rebuilds local state from the backend's current target list and
// running flag. Events missed while disconnected cannot be replayed, so
// results start empty. A list installed by another command during the
// fetch wins over the fetched one.
func (d *Dispatcher) Refresh(ctx context.Context) error {
	generation := d.store.Generation()
	targets, err := d.client.GetNodes(ctx)
	if err != nil {
		return fmt.Errorf("refresh targets: %w", err)
	}
	running, err := d.client.IsRunning(ctx)
	if err != nil {
		return fmt.Errorf("refresh running state: %w", err)
	}
	if !d.store.Resync(generation, targets, running) {
		log.Printf("refresh: target list changed while fetching, keeping the newer one")
	}
	return nil
}

// LoadSettings replaces the local mirror with the backend's settings.
func (d *Dispatcher) LoadSettings(ctx context.Context) error {
	settings, err := d.client.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	d.store.LoadSettings(settings)
	return nil
}

// UpdateSettings writes the mirror first and then pushes to the backend.
// The mirror is not rolled back when the push fails, so after an error it
// may be ahead of the backend until the next LoadSettings.
func (d *Dispatcher) UpdateSettings(ctx context.Context, settings models.Settings) error {
	d.store.WriteSettings(settings)
	if err := d.client.UpdateSettings(ctx, settings); err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	return nil
}

func orEmpty(op string, text *string, err error) (string, error) {
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if text == nil {
		return "", nil
	}
	return *text, nil
}

// ExportClashYAML returns the passing targets as a Clash configuration.
func (d *Dispatcher) ExportClashYAML(ctx context.Context) (string, error) {
	text, err := d.client.ExportClashYAML(ctx)
	return orEmpty("export clash yaml", text, err)
}

// ExportNodeLinks returns the passing targets as share links.
func (d *Dispatcher) ExportNodeLinks(ctx context.Context) (string, error) {
	text, err := d.client.ExportNodeLinks(ctx)
	return orEmpty("export links", text, err)
}

// ExportYAMLFlow returns the passing targets as inline YAML entries.
func (d *Dispatcher) ExportYAMLFlow(ctx context.Context) (string, error) {
	text, err := d.client.ExportYAMLFlow(ctx)
	return orEmpty("export yaml flow", text, err)
}

// ExportYAMLFlowFiltered is ExportYAMLFlow restricted to a comma-separated
// list of proxy types.
func (d *Dispatcher) ExportYAMLFlowFiltered(ctx context.Context, typeFilter string) (string, error) {
	text, err := d.client.ExportYAMLFlowFiltered(ctx, typeFilter)
	return orEmpty("export yaml flow", text, err)
}

// ExportNodeLinksFiltered is ExportNodeLinks restricted to a comma-separated
// list of proxy types.
func (d *Dispatcher) ExportNodeLinksFiltered(ctx context.Context, typeFilter string) (string, error) {
	text, err := d.client.ExportNodeLinksFiltered(ctx, typeFilter)
	return orEmpty("export links", text, err)
}

// Export picks the export call for format. The Clash format has no
// filtered variant and ignores typeFilter.
func (d *Dispatcher) Export(ctx context.Context, format ExportFormat, typeFilter string) (string, error) {
	typeFilter = strings.TrimSpace(typeFilter)
	switch format {
	case FormatClashYAML:
		return d.ExportClashYAML(ctx)
	case FormatLinks:
		if typeFilter != "" {
			return d.ExportNodeLinksFiltered(ctx, typeFilter)
		}
		return d.ExportNodeLinks(ctx)
	case FormatYAMLFlow:
		if typeFilter != "" {
			return d.ExportYAMLFlowFiltered(ctx, typeFilter)
		}
		return d.ExportYAMLFlow(ctx)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// SaveExport exports format and writes the result through the configured
// writer, returning the path written.
func (d *Dispatcher) SaveExport(ctx context.Context, format ExportFormat, typeFilter, name string) (string, error) {
	if d.writer == nil {
		return "", errNoWriter
	}
	text, err := d.Export(ctx, format, typeFilter)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", ErrNothingToExport
	}
	path, err := d.writer.Write(name, text)
	if err != nil {
		return "", fmt.Errorf("save export: %w", err)
	}
	return path, nil
}

// AvailableProxyTypes lists the proxy types among passing targets, sorted.
func (d *Dispatcher) AvailableProxyTypes(ctx context.Context) ([]string, error) {
	types, err := d.client.GetAvailableProxyTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list proxy types: %w", err)
	}
	out := append([]string{}, types...)
	sort.Strings(out)
	return out, nil
}
