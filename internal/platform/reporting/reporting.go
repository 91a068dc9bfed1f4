// Package reporting holds the report catalog and renders tabular report
// output as Excel workbooks.
package reporting

import (
	"fmt"
	"io"
	"time"

	"github.com/360EntSecGroup-Skylar/excelize"
)

// ContentTypeXLSX is the media type of workbooks written by WriteXLSX.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Definition describes a report offered by the API.
type Definition struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Parameters  []string `json:"parameters"`
}

// Catalog is the list of available reports.
var Catalog = []Definition{
	{
		ID:          "op-summary",
		Name:        "OP Summary",
		Description: "Registrations in a date range by status, doctor, department and day",
		Parameters:  []string{"from", "to"},
	},
	{
		ID:          "revenue",
		Name:        "Revenue Summary",
		Description: "Paid bills by bill type, payment method and day",
		Parameters:  []string{"from", "to"},
	},
	{
		ID:          "dispensing",
		Name:        "Dispensing Summary",
		Description: "Medicines dispensed against prescriptions, by quantity",
		Parameters:  []string{"from", "to"},
	},
	{
		ID:          "treatments",
		Name:        "Treatment Summary",
		Description: "Physiotherapy prescriptions and sessions delivered per treatment",
		Parameters:  []string{"from", "to"},
	},
	{
		ID:          "stock",
		Name:        "Stock Status",
		Description: "Stock on hand against reorder level",
		Parameters:  []string{"low_only"},
	},
}

// Find looks up a report definition by ID.
func Find(id string) *Definition {
	for i := range Catalog {
		if Catalog[i].ID == id {
			return &Catalog[i]
		}
	}
	return nil
}

// Table is one worksheet of a report.
type Table struct {
	Name    string
	Headers []string
	Rows    [][]interface{}
}

// WriteXLSX writes tables as the sheets of a single workbook, in order.
// Header rows are bold; time values are written as dates.
func WriteXLSX(w io.Writer, tables ...Table) error {
	if len(tables) == 0 {
		return fmt.Errorf("no tables to write")
	}
	file := excelize.NewFile()
	bold, err := file.NewStyle(`{"font":{"bold":true}}`)
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	first := 0
	for i, t := range tables {
		idx := file.NewSheet(t.Name)
		if i == 0 {
			first = idx
		}
		for col, h := range t.Headers {
			file.SetCellValue(t.Name, cell(col, 1), h)
		}
		if len(t.Headers) > 0 {
			file.SetCellStyle(t.Name, cell(0, 1), cell(len(t.Headers)-1, 1), bold)
			file.SetColWidth(t.Name, excelize.ToAlphaString(0), excelize.ToAlphaString(len(t.Headers)-1), 18)
		}
		for r, row := range t.Rows {
			for col, v := range row {
				if ts, ok := v.(time.Time); ok {
					v = ts.Format("2006-01-02")
				}
				file.SetCellValue(t.Name, cell(col, r+2), v)
			}
		}
	}
	if tables[0].Name != "Sheet1" {
		file.DeleteSheet("Sheet1")
	}
	file.SetActiveSheet(first)
	return file.Write(w)
}

// cell returns the A1 reference of a zero-based column and one-based row.
func cell(col, row int) string {
	return fmt.Sprintf("%s%d", excelize.ToAlphaString(col), row)
}
