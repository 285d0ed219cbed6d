// Package backendtest provides an in-memory backend for tests.
package backendtest

import (
	"context"
	"sync"

	"latencyctl/internal/backend"
	"latencyctl/internal/models"
)

// Fake is a scriptable in-memory backend. It keeps its own target list the
// way the real engine does: imports replace it, deletes re-index it.
type Fake struct {
	mu sync.Mutex

	// Imported is what the next import call returns and installs.
	Imported []models.Target
	// Errors fails the named operation with the given error.
	Errors map[string]error
	// Exports maps an export operation name to its payload; a missing key
	// answers with no payload.
	Exports    map[string]*string
	ProxyTypes []string

	nodes    []models.Target
	settings models.Settings
	running  bool
	calls    []string
	filters  []string
	deleted  [][]int

	// OnStart runs after a successful StartTest, outside the lock.
	OnStart func()
	// Before runs at the start of every call, outside the lock. It stands
	// in for the time the backend spends on the request.
	Before func(op string)
}

// New returns a fake seeded with default settings.
func New() *Fake {
	return &Fake{
		Errors:   make(map[string]error),
		Exports:  make(map[string]*string),
		settings: models.DefaultSettings(),
	}
}

// Fail makes every later call of op return err.
func (f *Fake) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[op] = err
}

// Calls returns the operation names invoked so far.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Filters returns the type filters passed to filtered exports.
func (f *Fake) Filters() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.filters...)
}

// Deleted returns the index lists passed to DeleteNodes.
func (f *Fake) Deleted() [][]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]int(nil), f.deleted...)
}

// SetNodes replaces the backend-side target list.
func (f *Fake) SetNodes(nodes []models.Target) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes = reindex(nodes)
}

// SetRunning forces the backend running flag.
func (f *Fake) SetRunning(running bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = running
}

// StoredSettings returns what the backend last accepted.
func (f *Fake) StoredSettings() models.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings.Clone()
}

// enter records op, runs the Before hook and then fails like a real
// transport would: a scripted error first, then a done ctx.
func (f *Fake) enter(ctx context.Context, op string) error {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	err := f.Errors[op]
	hook := f.Before
	f.mu.Unlock()

	if hook != nil {
		hook(op)
	}
	if err != nil {
		return err
	}
	return ctx.Err()
}

func (f *Fake) doImport(ctx context.Context, op string) ([]models.Target, error) {
	if err := f.enter(ctx, op); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes = reindex(f.Imported)
	if len(f.nodes) == 0 {
		return nil, nil
	}
	return models.CloneTargets(f.nodes), nil
}

func (f *Fake) ImportFromText(ctx context.Context, _ string) ([]models.Target, error) {
	return f.doImport(ctx, "ImportFromText")
}

func (f *Fake) ImportFromFile(ctx context.Context) ([]models.Target, error) {
	return f.doImport(ctx, "ImportFromFile")
}

func (f *Fake) ImportFromSubscription(ctx context.Context, _ string) ([]models.Target, error) {
	return f.doImport(ctx, "ImportFromSubscription")
}

func (f *Fake) ImportMultipleSubscriptions(ctx context.Context, _ []string) ([]models.Target, error) {
	return f.doImport(ctx, "ImportMultipleSubscriptions")
}

func (f *Fake) ImportMultipleFiles(ctx context.Context) ([]models.Target, error) {
	return f.doImport(ctx, "ImportMultipleFiles")
}

func (f *Fake) ClearNodes(ctx context.Context) error {
	if err := f.enter(ctx, "ClearNodes"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes = nil
	return nil
}

func (f *Fake) DeleteNodes(ctx context.Context, indices []int) ([]models.Target, error) {
	if err := f.enter(ctx, "DeleteNodes"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, append([]int(nil), indices...))

	drop := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		drop[i] = struct{}{}
	}
	var kept []models.Target
	for i, n := range f.nodes {
		if _, ok := drop[i]; !ok {
			kept = append(kept, n)
		}
	}
	f.nodes = reindex(kept)
	return models.CloneTargets(f.nodes), nil
}

func (f *Fake) GetNodes(ctx context.Context) ([]models.Target, error) {
	if err := f.enter(ctx, "GetNodes"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return models.CloneTargets(f.nodes), nil
}

func (f *Fake) StartTest(ctx context.Context) error {
	if err := f.enter(ctx, "StartTest"); err != nil {
		return err
	}
	f.mu.Lock()
	f.running = true
	hook := f.OnStart
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (f *Fake) StopTest(ctx context.Context) error {
	if err := f.enter(ctx, "StopTest"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	return nil
}

func (f *Fake) IsRunning(ctx context.Context) (bool, error) {
	if err := f.enter(ctx, "IsRunning"); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running, nil
}

func (f *Fake) export(ctx context.Context, op, filter string, filtered bool) (*string, error) {
	if err := f.enter(ctx, op); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if filtered {
		f.filters = append(f.filters, filter)
	}
	return f.Exports[op], nil
}

func (f *Fake) ExportClashYAML(ctx context.Context) (*string, error) {
	return f.export(ctx, "ExportClashYAML", "", false)
}

func (f *Fake) ExportNodeLinks(ctx context.Context) (*string, error) {
	return f.export(ctx, "ExportNodeLinks", "", false)
}

func (f *Fake) ExportYAMLFlow(ctx context.Context) (*string, error) {
	return f.export(ctx, "ExportYAMLFlow", "", false)
}

func (f *Fake) ExportYAMLFlowFiltered(ctx context.Context, typeFilter string) (*string, error) {
	return f.export(ctx, "ExportYAMLFlowFiltered", typeFilter, true)
}

func (f *Fake) ExportNodeLinksFiltered(ctx context.Context, typeFilter string) (*string, error) {
	return f.export(ctx, "ExportNodeLinksFiltered", typeFilter, true)
}

func (f *Fake) GetAvailableProxyTypes(ctx context.Context) ([]string, error) {
	if err := f.enter(ctx, "GetAvailableProxyTypes"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ProxyTypes...), nil
}

func (f *Fake) UpdateSettings(ctx context.Context, settings models.Settings) error {
	if err := f.enter(ctx, "UpdateSettings"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings = settings.Clone()
	return nil
}

func (f *Fake) GetSettings(ctx context.Context) (models.Settings, error) {
	if err := f.enter(ctx, "GetSettings"); err != nil {
		return models.Settings{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings.Clone(), nil
}

func reindex(nodes []models.Target) []models.Target {
	out := models.CloneTargets(nodes)
	for i := range out {
		out[i].Index = i
	}
	return out
}

// Targets builds one target per name, indexed in order.
func Targets(names ...string) []models.Target {
	out := make([]models.Target, len(names))
	for i, name := range names {
		out[i] = models.Target{Index: i, Name: name, Host: name + ".example", Port: 443, Scheme: "vless"}
	}
	return out
}

var _ backend.Client = (*Fake)(nil)
