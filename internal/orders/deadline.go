package orders

import (
	"context"
	"fmt"
	"time"
)

// Config is the ordering calendar of the shop. Weekdays count from
// Monday = 0 and only Monday to Friday are meaningful.
type Config struct {
	DeliveryWeekday int
	LeadDays        int
	CutoffHour      int
}

// DefaultConfig is delivery on Thursday with a Tuesday 11:00 cutoff.
func DefaultConfig() Config {
	return Config{DeliveryWeekday: 3, LeadDays: 2, CutoffHour: 11}
}

// Validate checks the calendar bounds.
func (c Config) Validate() error {
	if c.DeliveryWeekday < 0 || c.DeliveryWeekday > 4 {
		return fmt.Errorf("orders: delivery weekday %d outside monday..friday", c.DeliveryWeekday)
	}
	if c.LeadDays < 0 {
		return fmt.Errorf("orders: negative lead days %d", c.LeadDays)
	}
	if c.CutoffHour < 0 || c.CutoffHour > 23 {
		return fmt.Errorf("orders: cutoff hour %d out of range", c.CutoffHour)
	}
	return nil
}

// CutoffWeekday is the weekday the order must be sent by.
func (c Config) CutoffWeekday() int {
	return ((c.DeliveryWeekday-c.LeadDays)%5 + 5) % 5
}

// Slot pairs the send deadline with the delivery date it serves.
type Slot struct {
	Deadline time.Time
	Delivery time.Time
}

// ScheduleProvider exposes an externally maintained delivery schedule.
// Next returns the first slot whose deadline is after ref; ok is false once
// the schedule has no such slot.
type ScheduleProvider interface {
	Next(ctx context.Context, ref time.Time) (slot Slot, ok bool, err error)
}

// DeadlinePolicy computes send deadlines and delivery dates.
type DeadlinePolicy struct {
	cfg      Config
	schedule ScheduleProvider
}

// NewDeadlinePolicy builds a policy. schedule may be nil.
func NewDeadlinePolicy(cfg Config, schedule ScheduleProvider) *DeadlinePolicy {
	return &DeadlinePolicy{cfg: cfg, schedule: schedule}
}

// Compute returns the slot an order placed at ref belongs to.
func (p *DeadlinePolicy) Compute(ctx context.Context, ref time.Time) (Slot, error) {
	if p.schedule != nil {
		slot, ok, err := p.schedule.Next(ctx, ref)
		if err != nil {
			return Slot{}, fmt.Errorf("orders: delivery schedule: %w", err)
		}
		if ok {
			slot.Delivery = DateOnly(slot.Delivery)
			return slot, nil
		}
	}
	deadline := nextWeekdayAt(ref, p.cfg.CutoffWeekday(), p.cfg.CutoffHour)
	return Slot{Deadline: deadline, Delivery: nextWeekdayAfter(deadline, p.cfg.DeliveryWeekday)}, nil
}

func weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// nextWeekdayAt returns the next wd at hour:00, today only when ref is still
// before that time.
func nextWeekdayAt(ref time.Time, wd, hour int) time.Time {
	y, m, d := ref.Date()
	at := time.Date(y, m, d, hour, 0, 0, 0, ref.Location())
	days := wd - weekday(ref)
	if days < 0 || (days == 0 && !ref.Before(at)) {
		days += 7
	}
	return at.AddDate(0, 0, days)
}

// nextWeekdayAfter returns the date of the next wd strictly after ref's day.
func nextWeekdayAfter(ref time.Time, wd int) time.Time {
	days := wd - weekday(ref)
	if days <= 0 {
		days += 7
	}
	return DateOnly(ref).AddDate(0, 0, days)
}
