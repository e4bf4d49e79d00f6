package staffattendance

import (
	"context"
	"fmt"
	"strings"

	"github.com/cmlabs-hris/staff-attendance-go/internal/pkg/caltime"
	"github.com/cmlabs-hris/staff-attendance-go/internal/service/grid"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "Attendances"

// Export implements staffattendance.GridSessionService. The sheet has one
// row per owner and one column per operational day; rows that were not
// saved yet are exported as displayed.
func (s *SessionServiceImpl) Export(ctx context.Context, sessionID uuid.UUID) ([]byte, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	state := sess.state
	sess.mu.Unlock()

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	cellStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create cell style: %w", err)
	}

	header := []any{"Name"}
	for _, d := range state.OperationalDays {
		header = append(header, fmt.Sprintf("%s %s", d.Weekday().String()[:3], d.String()))
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(header))
	if err := f.SetCellStyle(exportSheet, "A1", lastCol+"1", headerStyle); err != nil {
		return nil, fmt.Errorf("failed to style header: %w", err)
	}

	for i, o := range sortedOwners(state) {
		line := []any{o.Name}
		for _, d := range state.OperationalDays {
			line = append(line, dayCell(o.Rows, d))
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(exportSheet, cell, &line); err != nil {
			return nil, fmt.Errorf("failed to write row: %w", err)
		}
	}

	lastRow := len(state.Owners) + 1
	if lastRow > 1 {
		if err := f.SetCellStyle(exportSheet, "A2", fmt.Sprintf("%s%d", lastCol, lastRow), cellStyle); err != nil {
			return nil, fmt.Errorf("failed to style rows: %w", err)
		}
	}
	if err := f.SetColWidth(exportSheet, "A", "A", 28); err != nil {
		return nil, err
	}
	if len(header) > 1 {
		if err := f.SetColWidth(exportSheet, "B", lastCol, 18); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// dayCell lists the rows arriving on day, one per line. Departures on a later
// day carry that day's date.
func dayCell(rows []grid.FormAttendance, day caltime.Date) string {
	var lines []string
	for _, r := range rows {
		if r.ArrivalDate != day || !r.HasText() {
			continue
		}
		end := r.EndTime
		if r.DepartureDate != nil && *r.DepartureDate != day && end != "" {
			end = fmt.Sprintf("%s %s", r.DepartureDate.String(), end)
		}
		lines = append(lines, fmt.Sprintf("%s-%s %s", r.StartTime, end, r.Type))
	}
	return strings.Join(lines, "\n")
}
