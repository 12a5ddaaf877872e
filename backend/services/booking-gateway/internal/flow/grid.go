package flow

import (
	"sort"
	"time"
)

// Grid rows cover 8 AM up to the 9 PM slot.
const (
	FirstHour = 8
	LastHour  = 21
)

// CellStatus is how a single grid cell is presented.
type CellStatus string

const (
	CellEmpty     CellStatus = "empty"
	CellAvailable CellStatus = "available"
	CellBooked    CellStatus = "booked"
	CellPast      CellStatus = "past"
	CellSelected  CellStatus = "selected"
)

type cellKey struct {
	date Date
	hour int
}

// SlotGrid is a read-only date x hour view over a slot list.
type SlotGrid struct {
	dates []Date
	cells map[cellKey]SlotRecord
}

// BuildGrid groups slots by the local date and hour of their start time. Later records win
// when two share a cell. Past and booked slots are kept; the grid never computes flags itself.
func BuildGrid(slots []SlotRecord, loc *time.Location) SlotGrid {
	if loc == nil {
		loc = time.Local
	}

	cells := make(map[cellKey]SlotRecord, len(slots))
	seen := make(map[Date]struct{})
	dates := make([]Date, 0)
	for _, slot := range slots {
		start := slot.StartTime.In(loc)
		key := cellKey{date: DateOf(start, loc), hour: start.Hour()}
		cells[key] = slot
		if _, ok := seen[key.date]; !ok {
			seen[key.date] = struct{}{}
			dates = append(dates, key.date)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	return SlotGrid{dates: dates, cells: cells}
}

// Dates returns the grid columns in ascending order.
func (g SlotGrid) Dates() []Date {
	out := make([]Date, len(g.dates))
	copy(out, g.dates)
	return out
}

// Hours returns the fixed grid rows.
func (g SlotGrid) Hours() []int {
	hours := make([]int, 0, LastHour-FirstHour+1)
	for h := FirstHour; h <= LastHour; h++ {
		hours = append(hours, h)
	}
	return hours
}

// Empty is true when no slot was offered at all.
func (g SlotGrid) Empty() bool {
	return len(g.dates) == 0
}

// Cell returns the record offered at the given date and hour.
func (g SlotGrid) Cell(date Date, hour int) (SlotRecord, bool) {
	slot, ok := g.cells[cellKey{date: date, hour: hour}]
	return slot, ok
}

// Status classifies a cell. A cell matching the selected slot's start time is Selected;
// otherwise booked wins over past, and past over available.
func (g SlotGrid) Status(date Date, hour int, selected *SlotRecord) CellStatus {
	slot, ok := g.Cell(date, hour)
	switch {
	case !ok:
		return CellEmpty
	case selected != nil && selected.StartTime.Equal(slot.StartTime):
		return CellSelected
	case slot.Booked():
		return CellBooked
	case slot.Past:
		return CellPast
	default:
		return CellAvailable
	}
}

// HourLabel renders a row header such as "9:00 AM".
func HourLabel(hour int) string {
	return time.Date(2000, time.January, 1, hour, 0, 0, 0, time.UTC).Format("3:04 PM")
}

// TimeLabel renders the wall-clock time of t in loc, e.g. "2:00 PM".
func TimeLabel(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("3:04 PM")
}

// DateLabel renders a column header relative to today.
func DateLabel(d, today Date) string {
	switch d {
	case today:
		return "Today"
	case today.AddDays(1):
		return "Tomorrow"
	}
	return d.Midnight(time.UTC).Format("Mon, Jan 2")
}
