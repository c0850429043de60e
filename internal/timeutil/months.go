package timeutil

import "time"

// AddMonths adds n calendar months to t, clamping the day-of-month to the
// last valid day of the target month. time.Time.AddDate normalizes instead:
// Jan 31 + 1 month becomes Mar 2/3, which silently shortens or lengthens a
// membership term for edge-of-month purchases.
func AddMonths(t time.Time, n int) time.Time {
	year, month, day := t.Date()

	totalMonths := int(month) - 1 + n
	targetYear := year + totalMonths/12
	targetMonth := time.Month(totalMonths%12 + 1)
	if totalMonths < 0 {
		// Go's integer division truncates toward zero; fix up negative offsets.
		targetYear = year + (totalMonths-11)/12
		targetMonth = time.Month((totalMonths%12+12)%12 + 1)
	}

	if last := daysIn(targetYear, targetMonth); day > last {
		day = last
	}

	h, m, s := t.Clock()
	return time.Date(targetYear, targetMonth, day, h, m, s, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this month.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
