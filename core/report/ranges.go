package report

import (
	"time"
)

// ResolveRange turns a preset into a concrete range ending at `now`.
// Unknown presets fall back to the last 30 days.
func ResolveRange(preset string, now time.Time, loc *time.Location) Range {
	lt := now.In(loc)
	r := Range{Preset: preset, To: now}
	switch preset {
	case RangeLast7Days:
		r.From = now.AddDate(0, 0, -7)
	case RangeLast90Days:
		r.From = now.AddDate(0, 0, -90)
	case RangeCurrentMonth:
		r.From = time.Date(lt.Year(), lt.Month(), 1, 0, 0, 0, 0, loc).UTC()
	case RangeCurrentYear:
		r.From = time.Date(lt.Year(), time.January, 1, 0, 0, 0, 0, loc).UTC()
	default:
		r.Preset = RangeLast30Days
		r.From = now.AddDate(0, 0, -30)
	}
	return r
}

// monthly counts `times` per calendar month (in loc) over r, oldest month first.
// Months without records are included so deltas compare consecutive months.
func monthly(times []time.Time, r Range, loc *time.Location) []MonthCount {
	counts := make(map[string]int)
	for _, t := range times {
		counts[t.In(loc).Format("2006-01")]++
	}

	from := r.From.In(loc)
	cur := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, loc)
	end := r.To.In(loc)
	var out []MonthCount
	prev := 0
	for !cur.After(end) {
		key := cur.Format("2006-01")
		n := counts[key]
		out = append(out, MonthCount{Month: key, Count: n, Delta: n - prev})
		prev = n
		cur = cur.AddDate(0, 1, 0)
	}
	return out
}
