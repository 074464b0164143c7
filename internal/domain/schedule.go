package domain

import "time"

// Frequency of a time-scheduled automation.
type Frequency string

const (
	FrequencyOnce    Frequency = "once"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// Next returns the next execution time after the given one. For one-off
// automations it returns the zero time and false.
func (f Frequency) Next(from time.Time) (time.Time, bool) {
	switch f {
	case FrequencyWeekly:
		return from.AddDate(0, 0, 7), true
	case FrequencyMonthly:
		return from.AddDate(0, 1, 0), true
	case FrequencyYearly:
		return from.AddDate(1, 0, 0), true
	default:
		return time.Time{}, false
	}
}

// ScheduledAutomation is a time-based automation owned by the external store.
// The scheduler only reads it; rescheduling happens through the store.
type ScheduledAutomation struct {
	ID            string
	Active        bool
	NextExecuteAt *time.Time
	Frequency     Frequency
}

// Due reports whether the automation should fire at the given time.
func (a ScheduledAutomation) Due(now time.Time) bool {
	return a.Active && a.NextExecuteAt != nil && !a.NextExecuteAt.After(now)
}
