// Package schedule holds the supplier's delivery plan: the dates orders are
// delivered on and the deadline for sending each of them.
package schedule

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sisco70/tabacchi/internal/orders"
	"github.com/sisco70/tabacchi/internal/shared"
)

// Entry is one row of the delivery plan.
type Entry struct {
	Delivery time.Time
	Deadline time.Time
	OrderRef string
	Status   string
	Channel  string
	Kind     string
}

// Valid reports whether the supplier status means the order was accepted.
func (e Entry) Valid() bool { return orders.IsConfirmedStatus(e.Status) }

// List is an in-memory plan. It implements orders.ScheduleProvider.
type List struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewList builds a plan sorted by deadline.
func NewList(entries []Entry) *List {
	l := &List{}
	l.Replace(entries)
	return l
}

// Replace swaps the plan for a fresh copy of entries.
func (l *List) Replace(entries []Entry) {
	cp := append([]Entry(nil), entries...)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Deadline.Before(cp[j].Deadline) })
	l.mu.Lock()
	l.entries = cp
	l.mu.Unlock()
}

// Entries returns the plan sorted by deadline.
func (l *List) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Entry(nil), l.entries...)
}

// Next returns the first slot whose deadline is after ref. ok is false when
// the plan is exhausted.
func (l *List) Next(_ context.Context, ref time.Time) (orders.Slot, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.entries {
		if ref.Before(e.Deadline) {
			return orders.Slot{Deadline: e.Deadline, Delivery: orders.DateOnly(e.Delivery)}, true, nil
		}
	}
	return orders.Slot{}, false, nil
}

// SubmissionRows converts the plan into the rows used to confirm that an
// order was accepted.
func (l *List) SubmissionRows() []orders.SubmissionRow {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]orders.SubmissionRow, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, orders.SubmissionRow{Delivery: e.Delivery, Status: e.Status})
	}
	return out
}

type fileEntry struct {
	Delivery string `yaml:"delivery"`
	Deadline string `yaml:"deadline"`
	Order    string `yaml:"order"`
	Status   string `yaml:"status"`
	Channel  string `yaml:"channel"`
	Kind     string `yaml:"kind"`
}

type file struct {
	Entries []fileEntry `yaml:"entries"`
}

const (
	fileDateLayout      = "2006-01-02"
	fileDeadlineLayout  = "2006-01-02 15:04"
	tableDateLayout     = "02/01/2006"
	tableDeadlineLayout = "02/01/2006 - 15:04"
)

// LoadFile reads a YAML plan. Times are interpreted in loc.
func LoadFile(path string, loc *time.Location) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schedule: read %s: %w", path, err)
	}
	return Decode(data, loc)
}

// Decode parses a YAML plan.
func Decode(data []byte, loc *time.Location) ([]Entry, error) {
	if loc == nil {
		loc = time.Local
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: schedule: %v", shared.ErrValidation, err)
	}
	out := make([]Entry, 0, len(f.Entries))
	for i, fe := range f.Entries {
		delivery, err := time.ParseInLocation(fileDateLayout, fe.Delivery, loc)
		if err != nil {
			return nil, shared.Invalid("schedule entry %d: delivery %q", i, fe.Delivery)
		}
		deadline, err := time.ParseInLocation(fileDeadlineLayout, fe.Deadline, loc)
		if err != nil {
			return nil, shared.Invalid("schedule entry %d: deadline %q", i, fe.Deadline)
		}
		out = append(out, Entry{Delivery: delivery, Deadline: deadline, OrderRef: fe.Order, Status: fe.Status, Channel: fe.Channel, Kind: fe.Kind})
	}
	return out, nil
}

// ParseTable reads the plan as copied from the supplier portal: one row per
// line, six tab-separated columns. Rows with a different shape or unparsable
// dates are skipped.
func ParseTable(text string, loc *time.Location) []Entry {
	if loc == nil {
		loc = time.Local
	}
	var out []Entry
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		cols := strings.Split(sc.Text(), "\t")
		if len(cols) != 6 {
			continue
		}
		delivery, err := time.ParseInLocation(tableDateLayout, strings.TrimSpace(cols[0]), loc)
		if err != nil {
			continue
		}
		deadline, err := time.ParseInLocation(tableDeadlineLayout, strings.TrimSpace(cols[1]), loc)
		if err != nil {
			continue
		}
		out = append(out, Entry{
			Delivery: delivery,
			Deadline: deadline,
			OrderRef: strings.TrimSpace(cols[2]),
			Status:   strings.TrimSpace(cols[3]),
			Channel:  strings.TrimSpace(cols[4]),
			Kind:     strings.TrimSpace(cols[5]),
		})
	}
	return out
}
