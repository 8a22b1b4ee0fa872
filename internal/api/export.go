package api

import (
	"fmt"
	"net/http"
	"slices"

	"campusbook/internal/availability"
	"campusbook/internal/models"

	"github.com/gosimple/slug"
	"github.com/xuri/excelize/v2"
)

const (
	scheduleSheet     = "Schedule"
	defaultExportDays = 7
	xlsxContentType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// handleScheduleExport streams a day x slot grid of the resource as XLSX.
func (s *HTTPServer) handleScheduleExport(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resource(w, r)
	if !ok {
		return
	}

	start := s.now()
	if raw := r.URL.Query().Get("start"); raw != "" {
		var err error
		if start, err = parseDate(raw, s.loc()); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	days, err := queryInt64(r, "days")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	maxDays := s.exports.MaxDays
	if maxDays <= 0 {
		maxDays = models.MaxRangeDays
	}
	switch {
	case days <= 0:
		days = defaultExportDays
	case days > int64(maxDays):
		days = int64(maxDays)
	}

	grid := make([]availability.Day, 0, days)
	date := availability.Clock(0).On(start.In(s.loc()))
	for i := 0; i < int(days); i++ {
		day, err := s.svc.Availability.Slots(r.Context(), res, date.AddDate(0, 0, i))
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		grid = append(grid, day)
	}

	f, err := buildScheduleWorkbook(res, grid)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer f.Close()

	filename := fmt.Sprintf("%s_%s.xlsx", slug.Make(res.Title), date.Format(dateLayout))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if err := f.Write(w); err != nil {
		s.logger.Error().Err(err).Int64("resource_id", res.ID).Msg("write schedule export")
	}
}

// buildScheduleWorkbook lays out dates as columns and slot start times as rows.
func buildScheduleWorkbook(res *models.Resource, grid []availability.Day) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(scheduleSheet)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	_ = f.SetCellValue(scheduleSheet, "A1", res.Title)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	freeStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
	})
	bookedStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#F8CBAD"}, Pattern: 1},
	})

	rows := slotRows(grid)
	for i, clock := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		_ = f.SetCellValue(scheduleSheet, cell, clock)
		_ = f.SetCellStyle(scheduleSheet, cell, cell, headerStyle)
	}

	for col, day := range grid {
		header, _ := excelize.CoordinatesToCellName(col+2, 2)
		_ = f.SetCellValue(scheduleSheet, header, day.Date.Format("Mon 02.01"))
		_ = f.SetCellStyle(scheduleSheet, header, header, headerStyle)

		if !day.Open {
			cell, _ := excelize.CoordinatesToCellName(col+2, 3)
			_ = f.SetCellValue(scheduleSheet, cell, "closed")
			continue
		}
		for _, slot := range day.Slots {
			row, ok := rows.index(availability.ClockOf(slot.Start).String())
			if !ok {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(col+2, row+3)
			if slot.Available {
				_ = f.SetCellValue(scheduleSheet, cell, "free")
				_ = f.SetCellStyle(scheduleSheet, cell, cell, freeStyle)
			} else {
				_ = f.SetCellValue(scheduleSheet, cell, "booked")
				_ = f.SetCellStyle(scheduleSheet, cell, cell, bookedStyle)
			}
		}
	}

	_ = f.SetColWidth(scheduleSheet, "A", "A", 10)
	if len(grid) > 0 {
		last, _ := excelize.ColumnNumberToName(len(grid) + 1)
		_ = f.SetColWidth(scheduleSheet, "B", last, 14)
	}
	return f, nil
}

type clockRows []string

func (c clockRows) index(clock string) (int, bool) {
	for i, v := range c {
		if v == clock {
			return i, true
		}
	}
	return 0, false
}

// slotRows collects the distinct slot start times of the grid in order.
func slotRows(grid []availability.Day) clockRows {
	seen := make(map[availability.Clock]bool)
	var clocks []availability.Clock
	for _, day := range grid {
		for _, slot := range day.Slots {
			c := availability.ClockOf(slot.Start)
			if !seen[c] {
				seen[c] = true
				clocks = append(clocks, c)
			}
		}
	}
	slices.Sort(clocks)

	out := make(clockRows, len(clocks))
	for i, c := range clocks {
		out[i] = c.String()
	}
	return out
}
