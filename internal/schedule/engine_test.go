package schedule_test

import (
	"testing"
	"time"

	"reelcast/internal/schedule"
)

func TestOptimalHourPrefersAnalytics(t *testing.T) {
	slot := schedule.OptimalHour(schedule.Instagram, time.Wednesday)
	if slot.Hour != 11 || slot.Source != schedule.SourceAnalytics || slot.Confidence != 0.85 {
		t.Fatalf("unexpected analytics slot %+v", slot)
	}
	slot = schedule.OptimalHour(schedule.Instagram, time.Sunday)
	if slot.Hour != 10 || slot.Source != schedule.SourceHeuristic {
		t.Fatalf("unexpected heuristic slot %+v", slot)
	}
	slot = schedule.OptimalHour(schedule.Platform("myspace"), time.Monday)
	if slot.Source != schedule.SourceHeuristic || slot.Hour < 0 || slot.Hour > 23 {
		t.Fatalf("unexpected fallback slot %+v", slot)
	}
}

func TestOptimalHourIsDeterministicAndCoversEveryDay(t *testing.T) {
	for _, p := range schedule.Platforms() {
		for day := time.Sunday; day <= time.Saturday; day++ {
			first := schedule.OptimalHour(p, day)
			for i := 0; i < 3; i++ {
				if again := schedule.OptimalHour(p, day); again != first {
					t.Fatalf("%s/%s changed between calls: %+v vs %+v", p, day, first, again)
				}
			}
			if first.Hour < 0 || first.Hour > 23 {
				t.Fatalf("%s/%s hour out of range: %d", p, day, first.Hour)
			}
			if first.Confidence <= 0 || first.Confidence > 1 {
				t.Fatalf("%s/%s confidence out of range: %v", p, day, first.Confidence)
			}
		}
	}
}

func TestSameDayFanOutOnePerPlatformOnDate(t *testing.T) {
	date := time.Date(2026, 3, 4, 23, 30, 0, 0, time.UTC)
	platforms := []schedule.Platform{schedule.TikTok, schedule.Instagram, schedule.LinkedIn, schedule.Instagram}

	postings := schedule.SameDayFanOut(platforms, date, time.UTC)
	if len(postings) != 3 {
		t.Fatalf("expected one posting per distinct platform, got %d", len(postings))
	}
	for _, posting := range postings {
		y, m, d := posting.At.Date()
		if y != 2026 || m != time.March || d != 4 {
			t.Fatalf("%s posting off date: %v", posting.Platform, posting.At)
		}
		if posting.At.Hour() != schedule.OptimalHour(posting.Platform, time.Wednesday).Hour {
			t.Fatalf("%s posting hour mismatch: %v", posting.Platform, posting.At)
		}
	}
	if postings[0].Platform != schedule.LinkedIn || postings[2].Platform != schedule.TikTok {
		t.Fatalf("expected postings ordered by time, got %+v", postings)
	}
}

func TestSameDayFanOutKeepsPastHours(t *testing.T) {
	// late evening: every slot on the date has already passed
	date := time.Date(2026, 3, 4, 23, 59, 0, 0, time.UTC)
	postings := schedule.SameDayFanOut([]schedule.Platform{schedule.Instagram}, date, time.UTC)
	if len(postings) != 1 {
		t.Fatalf("expected one posting, got %d", len(postings))
	}
	want := time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC)
	if !postings[0].At.Equal(want) {
		t.Fatalf("expected past timestamp %v, got %v", want, postings[0].At)
	}
}

func TestSameDayFanOutUsesLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 03:00 UTC on Monday is still Sunday evening in Chicago
	date := time.Date(2026, 3, 9, 3, 0, 0, 0, time.UTC)
	postings := schedule.SameDayFanOut([]schedule.Platform{schedule.Instagram}, date, loc)
	got := postings[0].At
	if got.Location() != loc || got.Weekday() != time.Sunday || got.Hour() != 10 {
		t.Fatalf("expected Sunday 10:00 Chicago, got %v", got)
	}
}

func TestWeeklySlotsHasThreeDistinctDays(t *testing.T) {
	for _, p := range schedule.Platforms() {
		slots := schedule.WeeklySlots(p)
		seen := map[time.Weekday]bool{}
		for i, slot := range slots {
			if seen[slot.Weekday] {
				t.Fatalf("%s repeats weekday %s", p, slot.Weekday)
			}
			seen[slot.Weekday] = true
			if i > 0 && slots[i-1].Weekday > slot.Weekday {
				t.Fatalf("%s slots out of order: %+v", p, slots)
			}
			if slot.Hour != schedule.OptimalHour(p, slot.Weekday).Hour {
				t.Fatalf("%s weekly hour disagrees with OptimalHour: %+v", p, slot)
			}
		}
	}
}

func TestNextWeeklySlot(t *testing.T) {
	cases := []struct {
		name     string
		platform schedule.Platform
		now      time.Time
		want     time.Time
	}{
		{
			name:     "later today",
			platform: schedule.Instagram,
			now:      time.Date(2026, 3, 6, 9, 0, 0, 0, time.UTC),
			want:     time.Date(2026, 3, 6, 10, 0, 0, 0, time.UTC),
		},
		{
			name:     "exactly at slot advances",
			platform: schedule.Instagram,
			now:      time.Date(2026, 3, 6, 10, 0, 0, 0, time.UTC),
			want:     time.Date(2026, 3, 9, 11, 0, 0, 0, time.UTC),
		},
		{
			name:     "rolls into next week",
			platform: schedule.TikTok,
			now:      time.Date(2026, 3, 7, 21, 0, 0, 0, time.UTC),
			want:     time.Date(2026, 3, 10, 19, 0, 0, 0, time.UTC),
		},
		{
			name:     "mid week",
			platform: schedule.LinkedIn,
			now:      time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC),
			want:     time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := schedule.NextWeeklySlot(tc.platform, tc.now)
			if !got.Equal(tc.want) {
				t.Fatalf("NextWeeklySlot = %v, want %v", got, tc.want)
			}
			if !got.After(tc.now) {
				t.Fatalf("slot %v not strictly after %v", got, tc.now)
			}
		})
	}
}

func TestWeeklyFanOutAlwaysFuture(t *testing.T) {
	now := time.Date(2026, 3, 7, 23, 0, 0, 0, time.UTC)
	postings := schedule.WeeklyFanOut(schedule.Platforms(), now)
	if len(postings) != len(schedule.Platforms()) {
		t.Fatalf("expected one posting per platform, got %d", len(postings))
	}
	for _, posting := range postings {
		if !posting.At.After(now) {
			t.Fatalf("%s posting not in the future: %v", posting.Platform, posting.At)
		}
		if posting.At.Sub(now) > 7*24*time.Hour {
			t.Fatalf("%s posting more than a week out: %v", posting.Platform, posting.At)
		}
	}
}

func TestParsePlatforms(t *testing.T) {
	got, bad, ok := schedule.ParsePlatforms([]string{"Instagram", " x ", "instagram", ""})
	if !ok || len(got) != 2 || got[0] != schedule.Instagram || got[1] != schedule.Twitter {
		t.Fatalf("unexpected parse %v %q %v", got, bad, ok)
	}
	if _, bad, ok := schedule.ParsePlatforms([]string{"tiktok", "myspace"}); ok || bad != "myspace" {
		t.Fatalf("expected myspace to be rejected, got %q %v", bad, ok)
	}
}
