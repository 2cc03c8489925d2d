// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/jeranaias/presence-chat/internal/session"
)

// =============================================================================
// TYPES
// =============================================================================

// MaxSlowest is how many of the slowest turns a Run keeps.
const MaxSlowest = 5

// runIDCounter keeps run ids unique within one process.
var runIDCounter uint64

// Outcome is how a turn ended.
type Outcome string

const (
	OutcomeCompleted   Outcome = "completed"
	OutcomeErrored     Outcome = "errored"
	OutcomeInterrupted Outcome = "interrupted"
)

// Turn is one recorded turn.
type Turn struct {
	Timestamp     time.Time     `json:"timestamp"`
	Outcome       Outcome       `json:"outcome"`
	Fallback      bool          `json:"fallback"`
	Duration      time.Duration `json:"duration"`
	QuestionChars int           `json:"question_chars"`
	DroppedFrames int           `json:"dropped_frames,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// Run aggregates the turns of one client process.
type Run struct {
	ID        string    `json:"id"`
	Widget    string    `json:"widget"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	Completed   int `json:"completed"`
	Errored     int `json:"errored"`
	Interrupted int `json:"interrupted"`
	Fallbacks   int `json:"fallbacks"`

	// DroppedFrames counts malformed frames skipped across all turns.
	DroppedFrames int `json:"dropped_frames"`

	TotalDuration time.Duration `json:"total_duration"`
	Slowest       []Turn        `json:"slowest"`
}

// Turns returns the number of recorded turns.
func (r *Run) Turns() int {
	return r.Completed + r.Errored + r.Interrupted
}

// AverageDuration returns the mean turn duration, or zero.
func (r *Run) AverageDuration() time.Duration {
	n := r.Turns()
	if n == 0 {
		return 0
	}
	return r.TotalDuration / time.Duration(n)
}

// SuccessRate returns the share of completed turns in [0, 1].
func (r *Run) SuccessRate() float64 {
	n := r.Turns()
	if n == 0 {
		return 0
	}
	return float64(r.Completed) / float64(n)
}

// Trends aggregates stored runs over a number of days.
type Trends struct {
	Days      int            `json:"days"`
	Turns     int            `json:"turns"`
	Completed int            `json:"completed"`
	Fallbacks int            `json:"fallbacks"`
	Daily     []DayStats     `json:"daily"`
	ByWidget  map[string]int `json:"by_widget"`
}

// DayStats is one day of Trends.
type DayStats struct {
	Date      time.Time `json:"date"`
	Turns     int       `json:"turns"`
	Completed int       `json:"completed"`
	Errored   int       `json:"errored"`
}

// =============================================================================
// TRACKER
// =============================================================================

// Tracker records turns into the current Run.
type Tracker struct {
	mu      sync.RWMutex
	current *Run
	storage *Storage
}

// NewTracker creates a tracker persisting runs under dir.
func NewTracker(dir, widget string) (*Tracker, error) {
	storage, err := NewStorage(dir)
	if err != nil {
		return nil, err
	}
	return &Tracker{current: newRun(widget), storage: storage}, nil
}

func newRun(widget string) *Run {
	return &Run{
		ID:        generateRunID(),
		Widget:    widget,
		StartTime: time.Now(),
		Slowest:   make([]Turn, 0, MaxSlowest),
	}
}

// RecordSession records a finished session. It has the signature of the
// client's turn hook.
func (t *Tracker) RecordSession(s *session.Session) {
	turn := Turn{
		Timestamp:     s.StartedAt,
		Outcome:       outcomeOf(s),
		Fallback:      s.UsedFallback(),
		Duration:      s.Duration(),
		QuestionChars: utf8.RuneCountInString(s.Text),
		DroppedFrames: s.Dropped(),
	}
	if err := s.Err(); err != nil && turn.Outcome == OutcomeErrored {
		turn.Error = err.Error()
	}
	t.Record(turn)
}

func outcomeOf(s *session.Session) Outcome {
	switch {
	case errors.Is(s.Err(), session.ErrInterrupted):
		return OutcomeInterrupted
	case s.State() == session.StateFinal:
		return OutcomeCompleted
	default:
		return OutcomeErrored
	}
}

// Record adds a turn to the current run.
func (t *Tracker) Record(turn Turn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	run := t.current
	switch turn.Outcome {
	case OutcomeCompleted:
		run.Completed++
	case OutcomeInterrupted:
		run.Interrupted++
	default:
		run.Errored++
	}
	if turn.Fallback {
		run.Fallbacks++
	}
	run.DroppedFrames += turn.DroppedFrames
	run.TotalDuration += turn.Duration

	run.Slowest = append(run.Slowest, turn)
	sort.SliceStable(run.Slowest, func(i, j int) bool {
		return run.Slowest[i].Duration > run.Slowest[j].Duration
	})
	if len(run.Slowest) > MaxSlowest {
		run.Slowest = run.Slowest[:MaxSlowest]
	}
}

// Current returns a copy of the current run.
func (t *Tracker) Current() *Run {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return copyRun(t.current)
}

// Save writes the current run without ending it.
func (t *Tracker) Save() error {
	t.mu.RLock()
	run := copyRun(t.current)
	t.mu.RUnlock()

	if run.Turns() == 0 {
		return nil
	}
	return t.storage.Save(run)
}

// Close ends the current run and saves it when it has turns.
func (t *Tracker) Close() error {
	t.mu.Lock()
	t.current.EndTime = time.Now()
	run := copyRun(t.current)
	t.mu.Unlock()

	if run.Turns() == 0 {
		return nil
	}
	return t.storage.Save(run)
}

// Trends aggregates the runs of the last days, including the current one.
func (t *Tracker) Trends(days int) (*Trends, error) {
	to := time.Now()
	from := to.AddDate(0, 0, -days)

	runs, err := t.storage.LoadRange(from, to)
	if err != nil {
		return nil, err
	}
	current := t.Current()
	if current.Turns() > 0 {
		runs = replaceOrAppend(runs, current)
	}
	return aggregate(days, runs), nil
}

func replaceOrAppend(runs []*Run, run *Run) []*Run {
	for i, r := range runs {
		if r.ID == run.ID {
			runs[i] = run
			return runs
		}
	}
	return append(runs, run)
}

func aggregate(days int, runs []*Run) *Trends {
	trends := &Trends{
		Days:     days,
		Daily:    make([]DayStats, 0),
		ByWidget: make(map[string]int),
	}

	byDay := make(map[string]*DayStats)
	for _, run := range runs {
		key := run.StartTime.Format("2006-01-02")
		day, ok := byDay[key]
		if !ok {
			y, m, d := run.StartTime.Date()
			day = &DayStats{Date: time.Date(y, m, d, 0, 0, 0, 0, run.StartTime.Location())}
			byDay[key] = day
		}
		day.Turns += run.Turns()
		day.Completed += run.Completed
		day.Errored += run.Errored + run.Interrupted

		trends.Turns += run.Turns()
		trends.Completed += run.Completed
		trends.Fallbacks += run.Fallbacks
		trends.ByWidget[run.Widget] += run.Turns()
	}

	for _, day := range byDay {
		trends.Daily = append(trends.Daily, *day)
	}
	sort.Slice(trends.Daily, func(i, j int) bool {
		return trends.Daily[i].Date.Before(trends.Daily[j].Date)
	})
	return trends
}

// =============================================================================
// HELPERS
// =============================================================================

func copyRun(src *Run) *Run {
	dst := *src
	dst.Slowest = make([]Turn, len(src.Slowest))
	copy(dst.Slowest, src.Slowest)
	return &dst
}

// generateRunID returns a timestamp-prefixed id that sorts chronologically.
func generateRunID() string {
	counter := atomic.AddUint64(&runIDCounter, 1)
	return time.Now().Format("20060102-150405") + "-" + fmt.Sprintf("%d", counter)
}
