package schedule

import "time"

type measured struct {
	hour       int
	confidence float64
}

// analyticsHours holds hours derived from engagement data. Gaps fall back to
// heuristicHours.
var analyticsHours = map[Platform]map[time.Weekday]measured{
	Instagram: {
		time.Monday:    {hour: 11, confidence: 0.82},
		time.Tuesday:   {hour: 10, confidence: 0.78},
		time.Wednesday: {hour: 11, confidence: 0.85},
		time.Thursday:  {hour: 12, confidence: 0.80},
		time.Friday:    {hour: 10, confidence: 0.76},
	},
	TikTok: {
		time.Tuesday:  {hour: 19, confidence: 0.74},
		time.Thursday: {hour: 19, confidence: 0.79},
		time.Friday:   {hour: 17, confidence: 0.70},
		time.Saturday: {hour: 20, confidence: 0.68},
	},
	YouTube: {
		time.Friday:   {hour: 15, confidence: 0.66},
		time.Saturday: {hour: 10, confidence: 0.72},
		time.Sunday:   {hour: 11, confidence: 0.70},
	},
	Facebook: {
		time.Wednesday: {hour: 13, confidence: 0.71},
	},
	LinkedIn: {
		time.Tuesday:   {hour: 8, confidence: 0.83},
		time.Wednesday: {hour: 9, confidence: 0.80},
		time.Thursday:  {hour: 8, confidence: 0.81},
	},
}

const heuristicConfidence = 0.5

// heuristicHours is indexed by time.Weekday (Sunday first).
var heuristicHours = map[Platform][7]int{
	Instagram: {10, 11, 11, 11, 12, 10, 10},
	TikTok:    {19, 18, 19, 19, 19, 17, 20},
	YouTube:   {11, 15, 15, 15, 15, 15, 10},
	Facebook:  {12, 13, 13, 13, 13, 11, 12},
	LinkedIn:  {10, 8, 8, 9, 8, 9, 10},
	Twitter:   {10, 9, 9, 12, 9, 9, 11},
	Threads:   {11, 10, 11, 11, 11, 10, 11},
}

// fallbackSlot answers for platforms missing from both tables.
var fallbackSlot = Slot{Hour: 12, Source: SourceHeuristic, Confidence: 0.1}

// weeklyDays lists the three posting days per platform for weekly fan-out.
var weeklyDays = map[Platform][3]time.Weekday{
	Instagram: {time.Monday, time.Wednesday, time.Friday},
	TikTok:    {time.Tuesday, time.Thursday, time.Saturday},
	YouTube:   {time.Wednesday, time.Friday, time.Sunday},
	Facebook:  {time.Monday, time.Wednesday, time.Friday},
	LinkedIn:  {time.Tuesday, time.Wednesday, time.Thursday},
	Twitter:   {time.Monday, time.Wednesday, time.Friday},
	Threads:   {time.Tuesday, time.Thursday, time.Saturday},
}

var fallbackWeeklyDays = [3]time.Weekday{time.Monday, time.Wednesday, time.Friday}
