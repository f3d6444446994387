package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// ProgressReporter reports progress of a stream of tasks.
type ProgressReporter interface {
	// Start resets the counters. A zero total means the stream length is
	// unknown.
	Start(total int64)

	// Record counts one finished task under its terminal status.
	Record(status string)

	Finish()
	Error(err error)
}

// TaskProgress is a text progress reporter. It is safe for concurrent use
// by worker goroutines.
type TaskProgress struct {
	mu       sync.Mutex
	total    int64
	current  int64
	byStatus map[string]int64
	started  time.Time
	writer   io.Writer
}

// NewProgressReporter creates a new progress reporter that writes to w.
// If w is nil, it defaults to os.Stderr so progress never mixes with
// results on stdout.
func NewProgressReporter(w io.Writer) ProgressReporter {
	if w == nil {
		w = os.Stderr
	}
	return &TaskProgress{
		writer:   w,
		byStatus: make(map[string]int64),
	}
}

// Start initializes the reporter.
func (p *TaskProgress) Start(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.current = 0
	p.byStatus = make(map[string]int64)
	p.started = time.Now()

	p.render()
}

// Record counts a finished task.
func (p *TaskProgress) Record(status string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current++
	p.byStatus[status]++
	p.render()
}

// Counts returns a copy of the per-status counters.
func (p *TaskProgress) Counts() map[string]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]int64, len(p.byStatus))
	for k, v := range p.byStatus {
		out[k] = v
	}
	return out
}

// Finish renders the final line.
func (p *TaskProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.total > 0 {
		p.current = p.total
	}
	p.render()
	fmt.Fprintln(p.writer)
}

// Error reports an error during progress.
func (p *TaskProgress) Error(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.writer, "\n✗ Error: %v\n", err)
}

func (p *TaskProgress) render() {
	elapsed := time.Since(p.started)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(p.current) / elapsed.Seconds()
	}

	if p.total <= 0 {
		fmt.Fprintf(p.writer, "\rTasks: %d %s %.1f tasks/s", p.current, p.statusSummary(), rate)
		return
	}

	percent := float64(p.current) / float64(p.total) * 100
	if percent > 100 {
		percent = 100
	}
	barWidth := 40
	filled := int(float64(barWidth) * percent / 100)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	fmt.Fprintf(p.writer, "\rProgress: [%s] %.1f%% (%d/%d) %s %.1f tasks/s",
		bar, percent, p.current, p.total, p.statusSummary(), rate)
}

// statusSummary renders "[blocked=1 completed=3]" in sorted status order.
func (p *TaskProgress) statusSummary() string {
	if len(p.byStatus) == 0 {
		return "[]"
	}
	keys := make([]string, 0, len(p.byStatus))
	for k := range p.byStatus {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, p.byStatus[k])
	}
	return "[" + strings.Join(parts, " ") + "]"
}
