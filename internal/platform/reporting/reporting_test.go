package reporting

import (
	"bytes"
	"testing"
	"time"

	"github.com/360EntSecGroup-Skylar/excelize"
)

func TestCatalog_HasDescriptions(t *testing.T) {
	for _, d := range Catalog {
		if d.Name == "" || d.Description == "" {
			t.Errorf("report %s needs a name and description", d.ID)
		}
	}
}

func TestFind(t *testing.T) {
	if d := Find("revenue"); d == nil || d.Name != "Revenue Summary" {
		t.Errorf("expected revenue report, got %+v", d)
	}
	if Find("nonexistent") != nil {
		t.Error("expected nil for unknown report")
	}
}

func TestCell(t *testing.T) {
	tests := []struct {
		col, row int
		want     string
	}{
		{0, 1, "A1"},
		{2, 10, "C10"},
		{26, 3, "AA3"},
	}
	for _, tt := range tests {
		if got := cell(tt.col, tt.row); got != tt.want {
			t.Errorf("cell(%d, %d) = %s, want %s", tt.col, tt.row, got, tt.want)
		}
	}
}

func TestWriteXLSX(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	err := WriteXLSX(&buf,
		Table{Name: "Daily", Headers: []string{"Date", "Total"}, Rows: [][]interface{}{{day, 12}}},
		Table{Name: "By Doctor", Headers: []string{"Doctor", "Total"}, Rows: [][]interface{}{{"Dr. Rao", 7}}},
	)
	if err != nil {
		t.Fatalf("WriteXLSX: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	if got := f.GetCellValue("Daily", "A2"); got != "2024-03-01" {
		t.Errorf("expected date cell, got %q", got)
	}
	if got := f.GetCellValue("By Doctor", "A1"); got != "Doctor" {
		t.Errorf("expected header, got %q", got)
	}
	if got := f.GetCellValue("By Doctor", "B2"); got != "7" {
		t.Errorf("expected 7, got %q", got)
	}
	if idx := f.GetSheetIndex("Sheet1"); idx != 0 {
		t.Error("expected default sheet to be removed")
	}
}

func TestWriteXLSX_Empty(t *testing.T) {
	if err := WriteXLSX(&bytes.Buffer{}); err == nil {
		t.Error("expected error for no tables")
	}
}
