package flow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildGridGroupsByLocalDateAndHour(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	// 23:00 UTC on the 10th is already the 11th in Berlin
	late := time.Date(2026, time.March, 10, 23, 0, 0, 0, time.UTC)
	slots := []SlotRecord{
		{StartTime: late, EndTime: late.Add(time.Hour), Available: true},
		{StartTime: time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC), Available: true},
	}

	grid := BuildGrid(slots, berlin)

	assert.Equal(t, []Date{{2026, time.March, 10}, {2026, time.March, 11}}, grid.Dates())
	cell, ok := grid.Cell(Date{2026, time.March, 11}, 0)
	require.True(t, ok)
	assert.True(t, cell.StartTime.Equal(late))
	_, ok = grid.Cell(Date{2026, time.March, 10}, 10)
	assert.True(t, ok)
}

func TestBuildGridLastRecordWins(t *testing.T) {
	first := slotAt(11, 10, true, false)
	second := slotAt(11, 10, false, false)

	grid := BuildGrid([]SlotRecord{first, second}, time.UTC)

	assert.Equal(t, CellBooked, grid.Status(Date{2026, time.March, 11}, 10, nil))
}

func TestBuildGridSortsDates(t *testing.T) {
	grid := BuildGrid([]SlotRecord{slotAt(14, 9, true, false), slotAt(12, 9, true, false), slotAt(13, 9, true, false)}, time.UTC)

	dates := grid.Dates()
	require.Len(t, dates, 3)
	assert.Equal(t, 12, dates[0].Day)
	assert.Equal(t, 13, dates[1].Day)
	assert.Equal(t, 14, dates[2].Day)
}

func TestEmptyGrid(t *testing.T) {
	grid := BuildGrid(nil, time.UTC)

	assert.True(t, grid.Empty())
	assert.Empty(t, grid.Dates())
	assert.Len(t, grid.Hours(), 14)
	assert.Equal(t, CellEmpty, grid.Status(Date{2026, time.March, 11}, 10, nil))
}

func TestGridHours(t *testing.T) {
	hours := BuildGrid(nil, time.UTC).Hours()

	assert.Equal(t, FirstHour, hours[0])
	assert.Equal(t, LastHour, hours[len(hours)-1])
}

func TestCellStatus(t *testing.T) {
	grid := BuildGrid(testSlots(), time.UTC)
	day := Date{2026, time.March, 11}
	selected := slotAt(11, 14, true, false)

	tests := []struct {
		name string
		date Date
		hour int
		want CellStatus
	}{
		{"past", Date{2026, time.March, 10}, 8, CellPast},
		{"available", day, 10, CellAvailable},
		{"booked", day, 11, CellBooked},
		{"selected", day, 14, CellSelected},
		{"nothing offered", day, 15, CellEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, grid.Status(tt.date, tt.hour, &selected))
		})
	}
}

func TestUnavailablePastSlotIsPast(t *testing.T) {
	grid := BuildGrid([]SlotRecord{slotAt(10, 8, false, true)}, time.UTC)

	assert.Equal(t, CellPast, grid.Status(Date{2026, time.March, 10}, 8, nil))
}

func TestLabels(t *testing.T) {
	today := Date{2026, time.December, 31}

	assert.Equal(t, "Today", DateLabel(today, today))
	assert.Equal(t, "Tomorrow", DateLabel(Date{2027, time.January, 1}, today))
	assert.Equal(t, "Sat, Jan 2", DateLabel(Date{2027, time.January, 2}, today))

	assert.Equal(t, "8:00 AM", HourLabel(8))
	assert.Equal(t, "12:00 PM", HourLabel(12))
	assert.Equal(t, "9:00 PM", HourLabel(21))

	start := time.Date(2026, time.March, 11, 13, 0, 0, 0, time.UTC)
	assert.Equal(t, "2:00 PM", TimeLabel(start, time.FixedZone("CET", 3600)))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-03-11")
	require.NoError(t, err)
	assert.Equal(t, Date{2026, time.March, 11}, d)
	assert.Equal(t, "2026-03-11", d.String())

	_, err = ParseDate("11/03/2026")
	assert.Error(t, err)
}
