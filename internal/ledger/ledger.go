// Package ledger records immutable task outcome events, runs the
// automated evaluator battery over them, and derives the violation
// metrics and rankings that drive the optimizer. Storage is in-memory
// and append-only; durability belongs to the caller via export/import.
package ledger

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrInvalidConfig is returned when ledger construction fails validation.
	ErrInvalidConfig = fmt.Errorf("ledger: invalid config")
	// ErrInvalidState is returned on operations invalid for the event's
	// lifecycle, e.g. finalizing an already finalized event.
	ErrInvalidState = fmt.Errorf("ledger: invalid state")
)

// Config configures the built-in evaluators.
type Config struct {
	// MaxViolations is the violation count above which the
	// violation-rate evaluator fails an event (default: 3).
	MaxViolations int `koanf:"max_violations"`

	// MaxReworkRatio is the rework/total diff ratio above which the
	// diff-quality evaluator fails an event (default: 0.3).
	MaxReworkRatio float64 `koanf:"max_rework_ratio"`

	// ForbiddenCommands are regex patterns scanned against the tools
	// used by an event.
	ForbiddenCommands []string `koanf:"forbidden_commands"`
}

// DefaultConfig returns the standard ledger configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxViolations:  3,
		MaxReworkRatio: 0.3,
		ForbiddenCommands: []string{
			`rm\s+-rf\s+/`,
			`git\s+push\s+.*--force`,
			`curl[^|]*\|\s*sh`,
		},
	}
}

// Validate checks configuration bounds.
func (c *Config) Validate() error {
	if c.MaxViolations < 0 {
		return fmt.Errorf("%w: max_violations must be non-negative, got %d", ErrInvalidConfig, c.MaxViolations)
	}
	if c.MaxReworkRatio <= 0 || c.MaxReworkRatio > 1 {
		return fmt.Errorf("%w: max_rework_ratio must be in (0, 1], got %g", ErrInvalidConfig, c.MaxReworkRatio)
	}
	return nil
}

// Ledger is the append-only run event log. A single instance may be
// shared across goroutines; appends are mutex-guarded. Composite
// read-then-write flows spanning multiple calls (such as an optimizer
// cycle) still need an external single-writer lock.
type Ledger struct {
	config     *Config
	logger     *zap.Logger
	evaluators []Evaluator

	mu     sync.RWMutex
	events []RunEvent
}

// New creates a Ledger with the built-in evaluator battery. A nil
// config uses defaults.
func New(cfg *Config, logger *zap.Logger) (*Ledger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	forbidden, err := NewForbiddenCommandEvaluator(cfg.ForbiddenCommands)
	if err != nil {
		return nil, err
	}

	return &Ledger{
		config: cfg,
		logger: logger.Named("ledger"),
		evaluators: []Evaluator{
			&TestsPassEvaluator{},
			forbidden,
			&ForbiddenDependencyEvaluator{},
			&ViolationRateEvaluator{MaxViolations: cfg.MaxViolations},
			&DiffQualityEvaluator{MaxReworkRatio: cfg.MaxReworkRatio},
		},
	}, nil
}

// CreateEvent builds a zero-valued event for a starting task. The
// caller mutates it during execution and hands it back to
// FinalizeEvent. An empty taskID gets a generated UUID.
func (l *Ledger) CreateEvent(taskID, intent, guidanceHash string) *RunEvent {
	if taskID == "" {
		taskID = uuid.NewString()
	}
	return &RunEvent{
		TaskID:       taskID,
		Intent:       intent,
		GuidanceHash: guidanceHash,
		StartedAt:    time.Now().UTC(),
	}
}

// FinalizeEvent stamps the event's end time and appends it. The stored
// copy is immutable; later mutation of the caller's struct does not
// reach the ledger. Finalizing twice is a state error.
func (l *Ledger) FinalizeEvent(event *RunEvent) error {
	if event == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidState)
	}
	if event.Finalized {
		return fmt.Errorf("%w: event %s already finalized", ErrInvalidState, event.TaskID)
	}

	event.EndedAt = time.Now().UTC()
	event.DurationMs = float64(event.EndedAt.Sub(event.StartedAt).Microseconds()) / 1000
	event.Finalized = true

	l.mu.Lock()
	l.events = append(l.events, cloneEvent(*event))
	l.mu.Unlock()

	l.logger.Debug("event finalized",
		zap.String("task_id", event.TaskID),
		zap.String("intent", event.Intent),
		zap.Int("violations", len(event.Violations)),
	)
	return nil
}

// Events returns a copy of all finalized events in append order.
func (l *Ledger) Events() []RunEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]RunEvent, len(l.events))
	for i, ev := range l.events {
		out[i] = cloneEvent(ev)
	}
	return out
}

// Len returns the number of finalized events.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Evaluate runs the ordered evaluator battery over one event. A panic
// inside an evaluator is not isolated here; an integrating layer that
// loads third-party evaluators must recover per-evaluator.
func (l *Ledger) Evaluate(event *RunEvent) []EvalResult {
	results := make([]EvalResult, 0, len(l.evaluators))
	for _, ev := range l.evaluators {
		results = append(results, ev.Evaluate(event))
	}
	return results
}

// ComputeMetrics aggregates quality metrics. With no argument it covers
// the full ledger; pass an event slice to scope the window.
func (l *Ledger) ComputeMetrics(events ...[]RunEvent) Metrics {
	window := l.window(events)
	if len(window) == 0 {
		return Metrics{}
	}

	totalViolations := 0
	autoCorrected := 0
	totalRework := 0
	for _, ev := range window {
		totalViolations += len(ev.Violations)
		for _, v := range ev.Violations {
			if v.AutoCorrected {
				autoCorrected++
			}
		}
		totalRework += ev.Diff.ReworkLines
	}

	m := Metrics{
		TaskCount:       len(window),
		ViolationRate:   float64(totalViolations) / float64(len(window)) * 10,
		MeanReworkLines: float64(totalRework) / float64(len(window)),
	}
	if totalViolations > 0 {
		m.SelfCorrectionRate = float64(autoCorrected) / float64(totalViolations)
	}
	return m
}

// RankViolations aggregates violations per rule: frequency, mean rework
// cost per occurrence, and score = frequency * cost, sorted descending
// by score with rule id as the deterministic tie-break.
func (l *Ledger) RankViolations(events ...[]RunEvent) []ViolationRanking {
	window := l.window(events)

	type agg struct {
		frequency int
		totalCost int
	}
	byRule := make(map[string]*agg)
	for _, ev := range window {
		for _, v := range ev.Violations {
			a := byRule[v.RuleID]
			if a == nil {
				a = &agg{}
				byRule[v.RuleID] = a
			}
			a.frequency++
			a.totalCost += ev.Diff.ReworkLines
		}
	}

	rankings := make([]ViolationRanking, 0, len(byRule))
	for ruleID, a := range byRule {
		cost := float64(a.totalCost) / float64(a.frequency)
		rankings = append(rankings, ViolationRanking{
			RuleID:    ruleID,
			Frequency: a.frequency,
			Cost:      cost,
			Score:     float64(a.frequency) * cost,
		})
	}
	sort.Slice(rankings, func(i, j int) bool {
		if rankings[i].Score != rankings[j].Score {
			return rankings[i].Score > rankings[j].Score
		}
		return rankings[i].RuleID < rankings[j].RuleID
	})
	return rankings
}

// ExportEvents snapshots the ledger as a JSON array of events.
func (l *Ledger) ExportEvents() ([]byte, error) {
	return json.Marshal(l.Events())
}

// ImportEvents appends events from a JSON snapshot. Existing events are
// kept; import never rewrites history.
func (l *Ledger) ImportEvents(data []byte) error {
	var imported []RunEvent
	if err := json.Unmarshal(data, &imported); err != nil {
		return fmt.Errorf("ledger: decoding events: %w", err)
	}

	l.mu.Lock()
	l.events = append(l.events, imported...)
	l.mu.Unlock()

	l.logger.Info("events imported", zap.Int("count", len(imported)))
	return nil
}

// window resolves the optional scoping argument of metric functions.
func (l *Ledger) window(events [][]RunEvent) []RunEvent {
	if len(events) > 0 {
		return events[0]
	}
	return l.Events()
}

// cloneEvent deep-copies an event so stored records cannot alias caller
// slices.
func cloneEvent(ev RunEvent) RunEvent {
	ev.RetrievedRuleIDs = append([]string(nil), ev.RetrievedRuleIDs...)
	ev.ToolsUsed = append([]string(nil), ev.ToolsUsed...)
	ev.FilesTouched = append([]string(nil), ev.FilesTouched...)
	ev.Violations = append([]Violation(nil), ev.Violations...)
	return ev
}
