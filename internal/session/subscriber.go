package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"latencyctl/internal/backend"
	"latencyctl/internal/eventbus"
	"latencyctl/internal/models"
)

// EventSource delivers pushed backend events per topic.
type EventSource interface {
	On(topic string, h eventbus.Handler) func()
}

var errMissingField = errors.New("missing required field")

// Subscriber binds backend push topics to Store mutations.
type Subscriber struct {
	store  *Store
	source EventSource

	mu  sync.Mutex
	sub *Subscription
}

// Subscription is the handle returned by Attach. Closing it is the only
// way to unregister the handlers it owns.
type Subscription struct {
	once  sync.Once
	offs  []func()
	owner *Subscriber
}

// NewSubscriber creates a subscriber for store fed by source.
func NewSubscriber(store *Store, source EventSource) *Subscriber {
	return &Subscriber{store: store, source: source}
}

// Attach registers one handler per topic. While attached, further calls
// return the live subscription instead of registering again.
func (s *Subscriber) Attach() *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		return s.sub
	}

	handlers := map[string]eventbus.Handler{
		backend.TopicResult:         s.onResult,
		backend.TopicProgress:       s.onProgress,
		backend.TopicComplete:       s.onComplete,
		backend.TopicLog:            s.onLog,
		backend.TopicTargetsUpdated: s.onTargetsUpdated,
		backend.TopicLookupProgress: s.onLookupProgress,
	}
	sub := &Subscription{owner: s}
	for _, topic := range backend.Topics {
		sub.offs = append(sub.offs, s.source.On(topic, handlers[topic]))
	}
	s.sub = sub
	return sub
}

// Detach closes the live subscription, if any.
func (s *Subscriber) Detach() {
	s.mu.Lock()
	sub := s.sub
	s.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
}

// Attached reports whether handlers are currently registered.
func (s *Subscriber) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub != nil
}

// Close unregisters every handler of the subscription. It is idempotent.
func (sub *Subscription) Close() {
	sub.once.Do(func() {
		for _, off := range sub.offs {
			off()
		}
		sub.owner.mu.Lock()
		if sub.owner.sub == sub {
			sub.owner.sub = nil
		}
		sub.owner.mu.Unlock()
	})
}

func (s *Subscriber) onResult(payload json.RawMessage) {
	var raw struct {
		Index      *int    `json:"index"`
		Done       bool    `json:"done"`
		Pass       bool    `json:"pass"`
		Err        string  `json:"err"`
		AvgMs      int64   `json:"avgMs"`
		MaxMs      int64   `json:"maxMs"`
		LatencyMs  []int64 `json:"latencyMs"`
		Attempts   int     `json:"attempts"`
		Successful int     `json:"successful"`
	}
	if err := decode(payload, &raw); err != nil {
		drop(backend.TopicResult, err)
		return
	}
	if raw.Index == nil {
		drop(backend.TopicResult, fmt.Errorf("%w: index", errMissingField))
		return
	}
	outcome := models.Outcome{
		Index:      *raw.Index,
		Done:       raw.Done,
		Pass:       raw.Pass,
		Err:        raw.Err,
		AvgMs:      raw.AvgMs,
		MaxMs:      raw.MaxMs,
		LatencyMs:  raw.LatencyMs,
		Attempts:   raw.Attempts,
		Successful: raw.Successful,
	}
	if !s.store.ApplyOutcome(outcome) {
		drop(backend.TopicResult, fmt.Errorf("index %d outside target list", outcome.Index))
	}
}

func (s *Subscriber) onProgress(payload json.RawMessage) {
	var raw struct {
		Total   *int `json:"total"`
		Done    *int `json:"done"`
		Passed  int  `json:"passed"`
		Running bool `json:"running"`
	}
	if err := decode(payload, &raw); err != nil {
		drop(backend.TopicProgress, err)
		return
	}
	if raw.Total == nil || raw.Done == nil {
		drop(backend.TopicProgress, fmt.Errorf("%w: total/done", errMissingField))
		return
	}
	s.store.ApplyProbeProgress(models.ProbeProgress{
		Total:   *raw.Total,
		Done:    *raw.Done,
		Passed:  raw.Passed,
		Running: raw.Running,
	})
}

func (s *Subscriber) onComplete(json.RawMessage) {
	s.store.Finish()
}

func (s *Subscriber) onLog(payload json.RawMessage) {
	var line string
	if err := decode(payload, &line); err != nil {
		drop(backend.TopicLog, err)
		return
	}
	s.store.AppendLog(line)
}

func (s *Subscriber) onTargetsUpdated(payload json.RawMessage) {
	var targets []models.Target
	if err := decode(payload, &targets); err != nil {
		drop(backend.TopicTargetsUpdated, err)
		return
	}
	if targets == nil {
		drop(backend.TopicTargetsUpdated, errors.New("expected an array"))
		return
	}
	s.store.RefreshTargets(targets)
}

func (s *Subscriber) onLookupProgress(payload json.RawMessage) {
	var raw models.LookupProgress
	if err := decode(payload, &raw); err != nil {
		drop(backend.TopicLookupProgress, err)
		return
	}
	s.store.ApplyLookupProgress(raw)
}

// decode rejects empty and null payloads in addition to invalid JSON.
func decode(payload json.RawMessage, dest any) error {
	if len(payload) == 0 || string(payload) == "null" {
		return errors.New("empty payload")
	}
	return json.Unmarshal(payload, dest)
}

func drop(topic string, err error) {
	log.Printf("drop %s event: %v", topic, err)
}
