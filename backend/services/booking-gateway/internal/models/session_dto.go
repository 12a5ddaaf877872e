package models

import (
	"encoding/json"
	"time"

	"evbooking/backend/services/booking-gateway/internal/flow"
)

// SlotDTO is a slot as shown to the browser.
type SlotDTO struct {
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Available bool      `json:"available"`
	Past      bool      `json:"past"`
	Label     string    `json:"label"`
}

// GridCellDTO is one hour of one day.
type GridCellDTO struct {
	Hour   int      `json:"hour"`
	Status string   `json:"status"`
	Slot   *SlotDTO `json:"slot,omitempty"`
}

// GridDayDTO is one column of the slot grid.
type GridDayDTO struct {
	Date  string        `json:"date"`
	Label string        `json:"label"`
	Cells []GridCellDTO `json:"cells"`
}

// HourDTO is one row header of the slot grid.
type HourDTO struct {
	Hour  int    `json:"hour"`
	Label string `json:"label"`
}

// GridDTO is the date x hour slot grid.
type GridDTO struct {
	Hours []HourDTO    `json:"hours"`
	Days  []GridDayDTO `json:"days"`
	Empty bool         `json:"empty"`
}

// BookingDTO mirrors the booking created by the backend.
type BookingDTO struct {
	ID            int64     `json:"id"`
	PortID        int64     `json:"portId"`
	StartTime     time.Time `json:"startTime"`
	EndTime       time.Time `json:"endTime"`
	Amount        string    `json:"amount"`
	PaymentStatus string    `json:"paymentStatus"`
	PaymentMethod string    `json:"paymentMethod,omitempty"`
}

// ErrorDTO is the last failure of a flow.
type ErrorDTO struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// SessionDTO is the snapshot of a booking flow returned by every flow endpoint.
type SessionDTO struct {
	FlowID          string                 `json:"flowId"`
	Generation      uint64                 `json:"generation"`
	PortID          int64                  `json:"portId"`
	Phase           string                 `json:"phase"`
	Loading         bool                   `json:"loading"`
	Completed       bool                   `json:"completed"`
	Grid            GridDTO                `json:"grid"`
	SelectableCount int                    `json:"selectableCount"`
	Selected        *SlotDTO               `json:"selected,omitempty"`
	Booking         *BookingDTO            `json:"booking,omitempty"`
	Amount          string                 `json:"amount"`
	RatePerHour     string                 `json:"ratePerHour"`
	Subscription    *flow.SubscriptionInfo `json:"subscription,omitempty"`
	Action          string                 `json:"action"`
	PaymentMethod   string                 `json:"paymentMethod"`
	Error           *ErrorDTO              `json:"error,omitempty"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

// NewSessionDTO renders a snapshot for the browser. Labels are relative to now in loc.
func NewSessionDTO(flowID string, s flow.Session, grid flow.SlotGrid, loc *time.Location, prices flow.PriceCalculator, now time.Time) SessionDTO {
	selected := s.SelectedSlot()

	dto := SessionDTO{
		FlowID:          flowID,
		Generation:      s.Generation,
		PortID:          s.PortID,
		Phase:           string(s.Phase()),
		Loading:         s.Loading,
		Completed:       s.Completed,
		Grid:            newGridDTO(grid, selected, loc, now),
		SelectableCount: s.SelectableCount(),
		Amount:          prices.AmountFor(selected).StringFixed(2),
		RatePerHour:     prices.Rate().StringFixed(2),
		Subscription:    s.Subscription,
		Action:          string(s.Action()),
		PaymentMethod:   string(s.PaymentMethod),
		UpdatedAt:       s.UpdatedAt,
	}
	if selected != nil {
		slot := newSlotDTO(*selected, loc)
		dto.Selected = &slot
	}
	if st, ok := s.State.(flow.PaymentState); ok {
		dto.Amount = st.Amount.StringFixed(2)
	}
	if b := s.Booking(); b != nil {
		dto.Booking = &BookingDTO{
			ID:            b.ID,
			PortID:        b.PortID,
			StartTime:     b.StartTime,
			EndTime:       b.EndTime,
			Amount:        b.Amount.StringFixed(2),
			PaymentStatus: b.PaymentStatus,
			PaymentMethod: b.PaymentMethod,
		}
	}
	if s.LastError != nil {
		dto.Error = &ErrorDTO{Kind: string(s.LastError.Kind), Message: s.LastError.Message}
	}
	return dto
}

// NewSnapshotEncoder returns the encoder used for pushed snapshots. The grid is rebuilt from the
// session's own slots.
func NewSnapshotEncoder(loc *time.Location, prices flow.PriceCalculator, now func() time.Time) func(flow.Event, flow.Session) ([]byte, error) {
	if now == nil {
		now = time.Now
	}
	return func(ev flow.Event, s flow.Session) ([]byte, error) {
		return json.Marshal(NewSessionDTO(ev.FlowID, s, flow.BuildGrid(s.Slots, loc), loc, prices, now()))
	}
}

func newSlotDTO(slot flow.SlotRecord, loc *time.Location) SlotDTO {
	return SlotDTO{
		StartTime: slot.StartTime,
		EndTime:   slot.EndTime,
		Available: slot.Available,
		Past:      slot.Past,
		Label:     flow.TimeLabel(slot.StartTime, loc) + " - " + flow.TimeLabel(slot.EndTime, loc),
	}
}

func newGridDTO(grid flow.SlotGrid, selected *flow.SlotRecord, loc *time.Location, now time.Time) GridDTO {
	hours := grid.Hours()
	out := GridDTO{
		Hours: make([]HourDTO, 0, len(hours)),
		Days:  make([]GridDayDTO, 0, len(grid.Dates())),
		Empty: grid.Empty(),
	}
	for _, h := range hours {
		out.Hours = append(out.Hours, HourDTO{Hour: h, Label: flow.HourLabel(h)})
	}

	today := flow.DateOf(now, loc)
	for _, d := range grid.Dates() {
		day := GridDayDTO{Date: d.String(), Label: flow.DateLabel(d, today), Cells: make([]GridCellDTO, 0, len(hours))}
		for _, h := range hours {
			cell := GridCellDTO{Hour: h, Status: string(grid.Status(d, h, selected))}
			if slot, ok := grid.Cell(d, h); ok {
				dto := newSlotDTO(slot, loc)
				cell.Slot = &dto
			}
			day.Cells = append(day.Cells, cell)
		}
		out.Days = append(out.Days, day)
	}
	return out
}
