package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/core"
)

// Tracker provides simple progress tracking for multi-phase CLI runs. It
// renders to stderr so that results written to stdout stay clean.
type Tracker struct {
	phases       []Phase
	currentPhase int
	startTime    time.Time
	mu           sync.Mutex
	enabled      bool
	out          io.Writer
}

// Phase represents a single phase of work
type Phase struct {
	Name        string
	Description string
	Status      PhaseStatus
	StartTime   time.Time
	EndTime     time.Time
	Progress    int // 0-100 percentage
	Done        int
	Total       int
}

// PhaseStatus represents the status of a phase
type PhaseStatus int

const (
	StatusPending PhaseStatus = iota
	StatusRunning
	StatusCompleted
	StatusFailed
)

// New creates a new progress tracker
func New(enabled bool) *Tracker {
	return NewWithWriter(enabled, os.Stderr)
}

func NewWithWriter(enabled bool, out io.Writer) *Tracker {
	return &Tracker{
		phases:    []Phase{},
		startTime: time.Now(),
		enabled:   enabled,
		out:       out,
	}
}

// AddPhase adds a new phase to track
func (t *Tracker) AddPhase(name, description string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.phases = append(t.phases, Phase{
		Name:        name,
		Description: description,
		Status:      StatusPending,
	})
}

// StartPhase marks a phase as started
func (t *Tracker) StartPhase(name string) {
	t.update(name, func(p *Phase, i int) {
		p.Status = StatusRunning
		p.StartTime = time.Now()
		t.currentPhase = i
	})
}

// SetTotal sets the number of work items a phase expects.
func (t *Tracker) SetTotal(name string, total int) {
	t.update(name, func(p *Phase, _ int) {
		p.Total = total
		p.Done = 0
		p.Progress = 0
	})
}

// Advance counts one finished work item against a phase.
func (t *Tracker) Advance(name string) {
	t.update(name, func(p *Phase, _ int) {
		p.Done++
		if p.Total > 0 {
			p.Progress = p.Done * 100 / p.Total
			if p.Progress > 100 {
				p.Progress = 100
			}
		}
	})
}

// UpdateProgress updates the progress percentage of a phase
func (t *Tracker) UpdateProgress(name string, progress int) {
	t.update(name, func(p *Phase, _ int) {
		p.Progress = progress
	})
}

// CompletePhase marks a phase as completed
func (t *Tracker) CompletePhase(name string) {
	t.update(name, func(p *Phase, _ int) {
		p.Status = StatusCompleted
		p.EndTime = time.Now()
		p.Progress = 100
	})
}

// FailPhase marks a phase as failed
func (t *Tracker) FailPhase(name string, err error) {
	t.update(name, func(p *Phase, _ int) {
		p.Status = StatusFailed
		p.EndTime = time.Now()
	})
	if t.enabled {
		fmt.Fprintln(t.out)
		color.New(color.FgRed).Fprintf(t.out, "Phase %s failed: %v\n", name, err)
	}
}

// Phase returns a copy of the named phase.
func (t *Tracker) Phase(name string) (Phase, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, phase := range t.phases {
		if phase.Name == name {
			return phase, true
		}
	}
	return Phase{}, false
}

// Recorder returns a core.Recorder that advances the named phase once per
// finished probe.
func (t *Tracker) Recorder(name string) core.Recorder {
	return phaseRecorder{tracker: t, phase: name}
}

type phaseRecorder struct {
	tracker *Tracker
	phase   string
}

func (r phaseRecorder) RecordProbe(context.Context, core.Result) {
	r.tracker.Advance(r.phase)
}

func (t *Tracker) update(name string, fn func(p *Phase, index int)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.phases {
		if t.phases[i].Name == name {
			fn(&t.phases[i], i)
			t.render()
			return
		}
	}
}

// render displays the current progress state
func (t *Tracker) render() {
	if !t.enabled {
		return
	}

	fmt.Fprint(t.out, "\r\033[K")

	totalPhases := len(t.phases)
	completedPhases := 0
	for _, phase := range t.phases {
		if phase.Status == StatusCompleted {
			completedPhases++
		}
	}

	overallProgress := 0
	if totalPhases > 0 {
		overallProgress = (completedPhases * 100) / totalPhases
		if t.currentPhase < len(t.phases) && t.phases[t.currentPhase].Status == StatusRunning {
			overallProgress += t.phases[t.currentPhase].Progress / totalPhases
		}
	}

	barWidth := 30
	filled := (overallProgress * barWidth) / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	currentPhaseInfo := ""
	if t.currentPhase < len(t.phases) {
		phase := t.phases[t.currentPhase]
		currentPhaseInfo = fmt.Sprintf("%s (%d%%)", phase.Description, phase.Progress)
		if phase.Total > 0 {
			currentPhaseInfo = fmt.Sprintf("%s (%d/%d)", phase.Description, phase.Done, phase.Total)
		}
	}

	elapsed := time.Since(t.startTime)
	eta := "calculating..."
	if overallProgress > 0 && overallProgress < 100 {
		totalEstimated := (elapsed * 100) / time.Duration(overallProgress)
		eta = formatDuration(totalEstimated - elapsed)
	}

	fmt.Fprintf(t.out, "[%s] %d%% | %s | ETA: %s",
		bar,
		overallProgress,
		currentPhaseInfo,
		eta,
	)
}

// Complete shows the final summary
func (t *Tracker) Complete() {
	if !t.enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprint(t.out, "\r\033[K")

	elapsed := time.Since(t.startTime)
	color.New(color.FgGreen).Fprintf(t.out, "\nRun completed in %s\n\n", formatDuration(elapsed))

	fmt.Fprintln(t.out, "Phase Summary:")
	for _, phase := range t.phases {
		status := color.GreenString("done")
		switch phase.Status {
		case StatusFailed:
			status = color.RedString("failed")
		case StatusPending:
			status = color.YellowString("skipped")
		}

		duration := ""
		if !phase.EndTime.IsZero() {
			duration = fmt.Sprintf(" (%s)", formatDuration(phase.EndTime.Sub(phase.StartTime)))
		}

		fmt.Fprintf(t.out, "  [%s] %s%s\n", status, phase.Name, duration)
	}
	fmt.Fprintln(t.out)
}

// formatDuration formats a duration in human-readable form
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "< 1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
