package schedule

import (
	"slices"
	"time"
)

// Source tells where a slot's hour came from.
type Source string

const (
	SourceAnalytics Source = "analytics"
	SourceHeuristic Source = "heuristic"
)

// Slot is the optimal posting hour for one platform on one weekday.
type Slot struct {
	Hour       int
	Source     Source
	Confidence float64
}

// Posting is one platform's place in a timetable.
type Posting struct {
	Platform Platform
	At       time.Time
	Slot     Slot
}

// WeeklySlot is a recurring (weekday, hour) posting position.
type WeeklySlot struct {
	Weekday time.Weekday
	Hour    int
}

// OptimalHour returns the posting hour for platform on weekday.
func OptimalHour(platform Platform, weekday time.Weekday) Slot {
	if byDay, ok := analyticsHours[platform]; ok {
		if m, ok := byDay[weekday]; ok {
			return Slot{Hour: m.hour, Source: SourceAnalytics, Confidence: m.confidence}
		}
	}
	if hours, ok := heuristicHours[platform]; ok && weekday >= time.Sunday && weekday <= time.Saturday {
		return Slot{Hour: hours[weekday], Source: SourceHeuristic, Confidence: heuristicConfidence}
	}
	return fallbackSlot
}

// SameDayFanOut returns one posting per distinct platform, all on date's
// calendar day in loc, each at that platform's optimal hour for the weekday.
// Hours already in the past are returned unchanged. Postings are ordered by
// time, then by platform order in the input.
func SameDayFanOut(platforms []Platform, date time.Time, loc *time.Location) []Posting {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := date.In(loc).Date()
	weekday := time.Date(y, m, d, 0, 0, 0, 0, loc).Weekday()

	seen := make(map[Platform]struct{}, len(platforms))
	out := make([]Posting, 0, len(platforms))
	for _, p := range platforms {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		slot := OptimalHour(p, weekday)
		out = append(out, Posting{
			Platform: p,
			At:       time.Date(y, m, d, slot.Hour, 0, 0, 0, loc),
			Slot:     slot,
		})
	}
	slices.SortStableFunc(out, func(a, b Posting) int {
		return a.At.Compare(b.At)
	})
	return out
}

// WeeklySlots returns the three recurring slots for platform, ordered from
// Sunday through Saturday.
func WeeklySlots(platform Platform) [3]WeeklySlot {
	days, ok := weeklyDays[platform]
	if !ok {
		days = fallbackWeeklyDays
	}
	var out [3]WeeklySlot
	for i, day := range days {
		out[i] = WeeklySlot{Weekday: day, Hour: OptimalHour(platform, day).Hour}
	}
	slices.SortFunc(out[:], func(a, b WeeklySlot) int {
		return int(a.Weekday) - int(b.Weekday)
	})
	return out
}

// NextWeeklySlot returns the first weekly slot for platform strictly after
// now, evaluated in now's location.
func NextWeeklySlot(platform Platform, now time.Time) time.Time {
	slots := WeeklySlots(platform)
	y, m, d := now.Date()
	loc := now.Location()
	// eight days covers a slot that is earlier today and next occurs a week out
	for offset := 0; offset <= 7; offset++ {
		day := time.Date(y, m, d+offset, 0, 0, 0, 0, loc)
		for _, slot := range slots {
			if slot.Weekday != day.Weekday() {
				continue
			}
			candidate := time.Date(y, m, d+offset, slot.Hour, 0, 0, 0, loc)
			if candidate.After(now) {
				return candidate
			}
		}
	}
	// unreachable with three distinct weekdays
	return time.Date(y, m, d+7, fallbackSlot.Hour, 0, 0, 0, loc)
}

// WeeklyFanOut returns the next weekly slot for every distinct platform.
func WeeklyFanOut(platforms []Platform, now time.Time) []Posting {
	seen := make(map[Platform]struct{}, len(platforms))
	out := make([]Posting, 0, len(platforms))
	for _, p := range platforms {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		at := NextWeeklySlot(p, now)
		out = append(out, Posting{Platform: p, At: at, Slot: OptimalHour(p, at.Weekday())})
	}
	slices.SortStableFunc(out, func(a, b Posting) int {
		return a.At.Compare(b.At)
	})
	return out
}
