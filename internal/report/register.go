package report

import (
	"fmt"
	"time"

	"tradeproof/internal/score"
	"tradeproof/internal/utils"
	"tradeproof/pkg/types"

	"github.com/xuri/excelize/v2"
)

const (
	registerSheet = "Evidence Register"
	summarySheet  = "Summary"
)

type registerColumn struct {
	label string
	width float64
	value func(seq int, item *types.EvidenceItem) any
}

var registerColumns = []registerColumn{
	{"#", 6, func(seq int, _ *types.EvidenceItem) any { return seq }},
	{"Type", 22, func(_ int, i *types.EvidenceItem) any { return i.EvidenceType.Label() }},
	{"Description", 50, func(_ int, i *types.EvidenceItem) any { return i.Description }},
	{"Captured (server, UTC)", 22, func(_ int, i *types.EvidenceItem) any { return i.ServerTimestamp.UTC().Format("2006-01-02 15:04:05") }},
	{"Device time", 22, func(_ int, i *types.EvidenceItem) any {
		if i.DeviceTimestamp == nil {
			return ""
		}
		return i.DeviceTimestamp.UTC().Format("2006-01-02 15:04:05")
	}},
	{"File", 30, func(_ int, i *types.EvidenceItem) any { return utils.PtrString(i.FileName) }},
	{"Size (bytes)", 14, func(_ int, i *types.EvidenceItem) any { return i.FileSizeBytes }},
	{"SHA-256", 68, func(_ int, i *types.EvidenceItem) any { return utils.PtrString(i.FileHash) }},
	{"Blockchain timestamp", 22, func(_ int, i *types.EvidenceItem) any {
		switch {
		case i.IsAnchored():
			return "Anchored"
		case i.FileHash != nil:
			return "Pending"
		default:
			return "Not applicable"
		}
	}},
	{"Latitude", 12, func(_ int, i *types.EvidenceItem) any { return optionalFloat(i.GPSLatitude) }},
	{"Longitude", 12, func(_ int, i *types.EvidenceItem) any { return optionalFloat(i.GPSLongitude) }},
	{"GPS accuracy (m)", 16, func(_ int, i *types.EvidenceItem) any { return optionalFloat(i.GPSAccuracy) }},
	{"Client approval", 16, func(_ int, i *types.EvidenceItem) any {
		switch {
		case i.IsSignedApproval():
			return "Approved, signed"
		case i.ClientApproval == nil:
			return ""
		case *i.ClientApproval:
			return "Approved"
		default:
			return "Not approved"
		}
	}},
}

func optionalFloat(f *float64) any {
	if f == nil {
		return ""
	}
	return *f
}

// BuildRegister exports a job's evidence as a spreadsheet, one row per item
// in report order, plus a summary sheet.
func BuildRegister(job *types.Job, items []*types.EvidenceItem, generated time.Time, brand string) ([]byte, error) {

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(registerSheet)
	if err != nil {
		return nil, fmt.Errorf("create register sheet: %w", err)
	}
	f.SetActiveSheet(index)

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 16},
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center"},
	})
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#0D47A1"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
			WrapText:   true,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	dataStyle, _ := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
		Border: []excelize.Border{
			{Type: "left", Color: "CCCCCC", Style: 1},
			{Type: "right", Color: "CCCCCC", Style: 1},
			{Type: "top", Color: "CCCCCC", Style: 1},
			{Type: "bottom", Color: "CCCCCC", Style: 1},
		},
	})

	reportID := ReportID(job.ID)
	_ = f.SetCellValue(registerSheet, "A1", fmt.Sprintf("%s evidence register - %s", brand, job.ClientName))
	_ = f.SetCellStyle(registerSheet, "A1", "A1", titleStyle)
	_ = f.SetRowHeight(registerSheet, 1, 30)
	_ = f.SetCellValue(registerSheet, "A2", fmt.Sprintf("Report %s, generated %s", reportID, generated.UTC().Format("2006-01-02 15:04:05 UTC")))

	for col, c := range registerColumns {
		cell, _ := excelize.CoordinatesToCellName(col+1, 4)
		_ = f.SetCellValue(registerSheet, cell, c.label)
		_ = f.SetCellStyle(registerSheet, cell, cell, headerStyle)

		name, _ := excelize.ColumnNumberToName(col + 1)
		_ = f.SetColWidth(registerSheet, name, name, c.width)
	}

	ordered := orderEvidence(items)
	for row, item := range ordered {
		for col, c := range registerColumns {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+5)
			if err := f.SetCellValue(registerSheet, cell, c.value(row+1, item)); err != nil {
				return nil, fmt.Errorf("write register cell %s: %w", cell, err)
			}
			_ = f.SetCellStyle(registerSheet, cell, cell, dataStyle)
		}
	}

	if err := f.SetPanes(registerSheet, &excelize.Panes{Freeze: true, YSplit: 4, TopLeftCell: "A5", ActivePane: "bottomLeft"}); err != nil {
		return nil, fmt.Errorf("freeze register header: %w", err)
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("create summary sheet: %w", err)
	}

	factors := score.Breakdown(ordered)
	summary := [][2]any{
		{"Report ID", reportID},
		{"Client", job.ClientName},
		{"Job type", job.JobType.Label()},
		{"Evidence items", len(ordered)},
		{"Protection status", factors.Total},
	}
	for _, t := range types.EvidenceTypes {
		summary = append(summary, [2]any{t.Label(), factors.Counts[t]})
	}

	for i, kv := range summary {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+1), kv[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+1), kv[1])
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 28)

	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("remove default sheet: %w", err)
	}

	_ = f.SetDocProps(&excelize.DocProperties{
		Title:   reportID + " evidence register",
		Creator: brand,
		Created: generated.UTC().Format(time.RFC3339),
	})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write register: %w", err)
	}

	return buf.Bytes(), nil

}
