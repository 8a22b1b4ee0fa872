package availability

import (
	"time"
)

// Slot is one cell of a day's booking grid.
type Slot struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
}

// Day is the slot grid of one calendar date. Open is false when the resource
// does not accept bookings that weekday; an open day may still have no slots.
type Day struct {
	Date   time.Time
	Open   bool
	Window Window
	Slots  []Slot
}

// Summary counts a day's slots.
type Summary struct {
	TotalSlots     int `json:"total_slots"`
	AvailableSlots int `json:"available_slots"`
}

func (d Day) Summary() Summary {
	s := Summary{TotalSlots: len(d.Slots)}
	for _, slot := range d.Slots {
		if slot.Available {
			s.AvailableSlots++
		}
	}
	return s
}

// AvailableSlots returns the free slots of the day.
func (d Day) AvailableSlots() []Slot {
	out := make([]Slot, 0, len(d.Slots))
	for _, slot := range d.Slots {
		if slot.Available {
			out = append(out, slot)
		}
	}
	return out
}

// BookedSlots returns the taken slots of the day.
func (d Day) BookedSlots() []Slot {
	var out []Slot
	for _, slot := range d.Slots {
		if !slot.Available {
			out = append(out, slot)
		}
	}
	return out
}

type DayStatus string

const (
	DayUnavailable DayStatus = "unavailable"
	DayFullyBooked DayStatus = "fully_booked"
	DayHasSlots    DayStatus = "has_slots"
)

// DayAvailability is one entry of a multi-day overview.
type DayAvailability struct {
	Date      time.Time `json:"date"`
	Available bool      `json:"available"`
	Status    DayStatus `json:"status"`
	Summary
}

// Generator lays out fixed-size slots inside weekday windows.
type Generator struct {
	SlotDuration time.Duration
	LeadTime     time.Duration
	Default      Window
	Now          func() time.Time
}

func NewGenerator(slot, lead time.Duration, def Window) *Generator {
	if slot <= 0 {
		slot = 30 * time.Minute
	}
	if lead < 0 {
		lead = 0
	}
	if def.End <= def.Start {
		def = DefaultWindow
	}
	return &Generator{SlotDuration: slot, LeadTime: lead, Default: def, Now: time.Now}
}

func (g *Generator) now() time.Time {
	if g.Now == nil {
		return time.Now()
	}
	return g.Now()
}

func (g *Generator) window(rules Rules, day time.Weekday) (Window, bool) {
	if rules.Unrestricted() {
		return g.Default, true
	}
	return rules.WindowFor(day)
}

// Generate builds the grid for date in date's location. Slots that would run
// past the window end are not emitted. On today's date slots starting before
// now+LeadTime are left out entirely.
func (g *Generator) Generate(rules Rules, date time.Time, busy []Interval) Day {
	day := Day{Date: Clock(0).On(date)}

	w, ok := g.window(rules, date.Weekday())
	if !ok {
		return day
	}
	day.Open = true
	day.Window = w

	var cutoff time.Time
	if now := g.now().In(date.Location()); sameDate(now, date) {
		cutoff = now.Add(g.LeadTime)
	}

	end := w.End.On(date)
	for start := w.Start.On(date); !start.Add(g.SlotDuration).After(end); start = start.Add(g.SlotDuration) {
		if !cutoff.IsZero() && start.Before(cutoff) {
			continue
		}
		iv := Interval{Start: start, End: start.Add(g.SlotDuration)}
		day.Slots = append(day.Slots, Slot{
			Start:     iv.Start,
			End:       iv.End,
			Available: !overlapsAny(iv, busy),
		})
	}

	return day
}

// Summarize is Generate reduced to counts.
func (g *Generator) Summarize(rules Rules, date time.Time, busy []Interval) Summary {
	return g.Generate(rules, date, busy).Summary()
}

// GenerateRange summarizes days consecutive dates starting at start. A
// non-positive count yields nil.
func (g *Generator) GenerateRange(rules Rules, start time.Time, days int, busy []Interval) []DayAvailability {
	if days <= 0 {
		return nil
	}
	out := make([]DayAvailability, 0, days)
	for i := 0; i < days; i++ {
		date := Clock(0).On(start).AddDate(0, 0, i)
		day := g.Generate(rules, date, busy)
		entry := DayAvailability{Date: day.Date, Available: day.Open, Summary: day.Summary()}
		switch {
		case !day.Open:
			entry.Status = DayUnavailable
		case entry.AvailableSlots == 0:
			entry.Status = DayFullyBooked
		default:
			entry.Status = DayHasSlots
		}
		out = append(out, entry)
	}
	return out
}
