package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/agendaclin/agendaclin/internal/availability"
	"github.com/agendaclin/agendaclin/internal/model"
)

// Slot is one bookable start offered to a caller. Booking it is still subject
// to the full eligibility gate; a listed slot can be lost to a faster caller.
type Slot struct {
	Start            time.Time `json:"start"`
	PractitionerID   string    `json:"practitioner_id"`
	PractitionerName string    `json:"practitioner_name"`
	SpecialtyName    string    `json:"specialty_name,omitempty"`
}

type SlotQuery struct {
	PractitionerID string
	SpecialtyID    string
	From           time.Time
	To             time.Time
}

// ListAvailableSlots enumerates free slots across the query range, walking
// practitioners in stable name order and calendar days in sequence. The
// listing reads committed state only and is deterministic for a fixed
// database and clock.
func (e *Engine) ListAvailableSlots(ctx context.Context, q SlotQuery) ([]Slot, error) {
	now := e.now().In(e.loc)
	from := q.From
	if from.IsZero() {
		from = now
	}
	to := q.To
	if to.IsZero() {
		to = from.Add(30 * 24 * time.Hour)
	}
	if to.Before(from) {
		return nil, ErrInvalidInput
	}

	// Both horizon bounds are inclusive.
	minStart := now.Add(e.policy.MinAdvance)
	maxStart := now.Add(e.policy.MaxAdvance)

	practitioners, err := e.directory.ListActive(ctx, q.PractitionerID, q.SpecialtyID)
	if err != nil {
		return nil, fmt.Errorf("list practitioners: %w", err)
	}

	firstDay := e.dayStart(from)
	lastDay := e.dayStart(to)

	var slots []Slot
	for _, p := range practitioners {
		windows, err := e.calendar.WindowsFor(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("list windows: %w", err)
		}
		if len(windows) == 0 {
			continue
		}
		// One window per weekday: when several are active, the oldest wins.
		// WindowsFor orders by weekday then age, so first seen is first kept.
		byWeekday := make(map[time.Weekday]model.AvailabilityWindow, len(windows))
		for _, w := range windows {
			if _, ok := byWeekday[w.Weekday]; !ok {
				byWeekday[w.Weekday] = w
			}
		}

		blocking, err := e.appointments.ListBlockingInRange(ctx, p.ID, firstDay, lastDay.AddDate(0, 0, 1))
		if err != nil {
			return nil, fmt.Errorf("list blocking appointments: %w", err)
		}
		busy := make([]availability.Interval, 0, len(blocking))
		for _, a := range blocking {
			busy = append(busy, availability.Interval{Start: a.StartTime, End: a.EndTime()})
		}

		for day := firstDay; !day.After(lastDay); day = day.AddDate(0, 0, 1) {
			win, ok := byWeekday[day.Weekday()]
			if !ok {
				continue
			}
			winStart, winEnd := availability.WindowOnDay(day, win.Start, win.End, e.loc)
			for _, s := range availability.SlotStarts(winStart, winEnd, e.policy.SlotInterval) {
				if s.Before(minStart) || s.After(maxStart) {
					continue
				}
				if availability.OverlapsAny(s, s.Add(e.policy.DefaultDuration), busy) {
					continue
				}
				slots = append(slots, Slot{
					Start:            s,
					PractitionerID:   p.ID,
					PractitionerName: p.Name,
					SpecialtyName:    p.SpecialtyName,
				})
			}
		}
	}
	return slots, nil
}

func (e *Engine) dayStart(t time.Time) time.Time {
	local := t.In(e.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, e.loc)
}

