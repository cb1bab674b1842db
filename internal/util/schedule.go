package util

import (
	"time"
)

// RebalanceSchedule selects rebalance dates from the sorted union of trading
// dates present in a dataset. Every `every`-th date within [start, end] is a
// rebalance date, starting with the first in-range date. Using dataset dates
// rather than calendar arithmetic keeps the schedule aligned with days that
// actually traded.
func RebalanceSchedule(dates []time.Time, start, end time.Time, every int) []time.Time {
	if every <= 0 {
		every = 1
	}

	var schedule []time.Time
	count := 0
	for _, d := range dates {
		if d.Before(start) {
			continue
		}
		if !end.IsZero() && d.After(end) {
			break
		}
		if count%every == 0 {
			schedule = append(schedule, d)
		}
		count++
	}
	return schedule
}

// MonthEndSchedule selects the last trading date of each month within
// [start, end] from the sorted union of dataset dates.
func MonthEndSchedule(dates []time.Time, start, end time.Time) []time.Time {
	var schedule []time.Time
	for i, d := range dates {
		if d.Before(start) {
			continue
		}
		if !end.IsZero() && d.After(end) {
			break
		}
		last := i+1 == len(dates) ||
			dates[i+1].Month() != d.Month() ||
			dates[i+1].Year() != d.Year() ||
			(!end.IsZero() && dates[i+1].After(end))
		if last {
			schedule = append(schedule, d)
		}
	}
	return schedule
}
