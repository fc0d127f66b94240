// Package scheduling holds the storage-free rules of session planning: the
// interval overlap predicate, session end resolution, the planned-duration
// invariant of tasks and the task status change caused by a first session.
package scheduling

import (
	"errors"
	"math"
	"time"

	"eigentask/backend/internal/models"
)

var (
	ErrEndOrDurationRequired   = errors.New("provide either scheduled_end_at or duration_minutes")
	ErrDurationNotPositive     = errors.New("duration_minutes must be positive when provided")
	ErrEndNotAfterStart        = errors.New("scheduled_end_at must be after scheduled_start_at")
	ErrPlannedEndBeforeStart   = errors.New("planned_end_at must be after planned_start_at")
	ErrPlannedDurationInvalid  = errors.New("planned_duration must be positive when provided")
	ErrPlannedDurationMismatch = errors.New("planned_duration must equal the difference between planned_start_at and planned_end_at")
)

// Interval is a closed-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether the two intervals share any instant. Intervals that
// only touch (a.End == b.Start) do not overlap.
func (a Interval) Overlaps(b Interval) bool {
	return a.Start.Before(b.End) && a.End.After(b.Start)
}

func (a Interval) Valid() bool {
	return a.End.After(a.Start)
}

func (a Interval) Duration() time.Duration {
	return a.End.Sub(a.Start)
}

// Normalize converts a timestamp to the form it is stored in: UTC with
// microsecond precision.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// ResolveInterval builds the scheduled interval of a new session from its start
// and either an explicit end or a duration in minutes. An explicit end wins
// when both are given.
func ResolveInterval(start time.Time, end *time.Time, durationMinutes *int) (Interval, error) {
	var iv Interval
	switch {
	case end != nil:
		iv = Interval{Start: start, End: *end}
	case durationMinutes != nil:
		if *durationMinutes <= 0 {
			return Interval{}, ErrDurationNotPositive
		}
		iv = Interval{Start: start, End: start.Add(time.Duration(*durationMinutes) * time.Minute)}
	default:
		return Interval{}, ErrEndOrDurationRequired
	}

	iv.Start = Normalize(iv.Start)
	iv.End = Normalize(iv.End)
	if !iv.Valid() {
		return Interval{}, ErrEndNotAfterStart
	}
	return iv, nil
}

// PlannedMinutes is the whole number of minutes between start and end, rounded
// to the nearest minute.
func PlannedMinutes(start, end time.Time) int {
	return int(math.Round(end.Sub(start).Minutes()))
}

// CoercePlannedDuration enforces the task planning invariant. When both start
// and end are set the duration is derived from them if it was not supplied,
// and a supplied duration must match. With only one or neither bound set the
// duration is returned as given.
func CoercePlannedDuration(start, end *time.Time, duration *int, supplied bool) (*int, error) {
	if duration != nil && supplied && *duration <= 0 {
		return nil, ErrPlannedDurationInvalid
	}
	if start == nil || end == nil {
		return duration, nil
	}
	if end.Before(*start) {
		return nil, ErrPlannedEndBeforeStart
	}

	minutes := PlannedMinutes(*start, *end)
	if !supplied || duration == nil {
		return &minutes, nil
	}
	if *duration != minutes {
		return nil, ErrPlannedDurationMismatch
	}
	return duration, nil
}

// TaskStatusChange records a status transition of a task that happened as a
// side effect of a session operation.
type TaskStatusChange struct {
	TaskID int64             `json:"task_id"`
	From   models.TaskStatus `json:"from"`
	To     models.TaskStatus `json:"to"`
}

// FirstSessionTransition returns the status change caused by adding a session
// to a task that already has existingSessions sessions. Only the first session
// moves a task to PLANNED; nil means the status stays as it is.
func FirstSessionTransition(task models.Task, existingSessions int64) *TaskStatusChange {
	if existingSessions > 0 || task.Status == models.TaskStatusPlanned {
		return nil
	}
	return &TaskStatusChange{
		TaskID: task.ID,
		From:   task.Status,
		To:     models.TaskStatusPlanned,
	}
}
