package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/agendaclin/agendaclin/internal/availability"
	"github.com/agendaclin/agendaclin/internal/storage"
)

// checkEligibility runs the ordered gate every booking and reschedule passes
// through. Checks short-circuit: the first failing one is reported and the
// rest are skipped. excludeID removes one appointment from conflict
// consideration (the row Create just committed).
func (e *Engine) checkEligibility(ctx context.Context, practitionerID string, start time.Time, duration time.Duration, excludeID string) (denyReason, error) {
	pract, err := e.directory.GetByID(ctx, practitionerID)
	if err != nil {
		if storage.IsNotFound(err) {
			return denyPractitionerUnknown, nil
		}
		return denyNone, fmt.Errorf("load practitioner: %w", err)
	}
	if !pract.Active {
		return denyPractitionerInactive, nil
	}

	now := e.now()
	if start.Before(now) {
		return denyStartInPast, nil
	}
	// Exactly the minimum advance is acceptable; anything earlier is not.
	if start.Before(now.Add(e.policy.MinAdvance)) {
		return denyTooSoon, nil
	}
	if start.After(now.Add(e.policy.MaxAdvance)) {
		return denyTooFar, nil
	}

	local := start.In(e.loc)
	win, err := e.calendar.WindowFor(ctx, practitionerID, local.Weekday())
	if err != nil {
		return denyNone, fmt.Errorf("load availability window: %w", err)
	}
	if win == nil {
		return denyNoWindow, nil
	}
	// Only the start is bound by the window; a consultation may run past the
	// window's end.
	if !availability.ClockWithin(local, win.Start, win.End) {
		return denyOutsideWindow, nil
	}

	conflict, err := e.hasConflict(ctx, practitionerID, start, duration, excludeID)
	if err != nil {
		return denyNone, err
	}
	if conflict {
		return denyConflict, nil
	}
	return denyNone, nil
}

// hasConflict reports whether any scheduled or confirmed appointment of the
// practitioner overlaps the candidate interval. Cancelled, rescheduled-away,
// completed and no-show rows never block.
func (e *Engine) hasConflict(ctx context.Context, practitionerID string, start time.Time, duration time.Duration, excludeID string) (bool, error) {
	end := start.Add(duration)
	blocking, err := e.appointments.ListBlocking(ctx, practitionerID, end)
	if err != nil {
		return false, fmt.Errorf("list blocking appointments: %w", err)
	}
	for _, a := range blocking {
		if excludeID != "" && a.ID == excludeID {
			continue
		}
		if availability.Overlaps(start, end, a.StartTime, a.EndTime()) {
			return true, nil
		}
	}
	return false, nil
}
