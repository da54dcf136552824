package chart

import (
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// DataSheet is the name of the worksheet holding the chart's values
const DataSheet = "Chart Data"

// ErrNothingToExport is returned for specifications that did not validate
var ErrNothingToExport = errors.New("no chart to export")

// Workbook builds a spreadsheet with the chart's labels and series and a
// native chart of the same type over them
func Workbook(spec *Spec) (*excelize.File, error) {
	if spec == nil || spec.Kind == KindNone || spec.Kind == KindInvalid || len(spec.Data.Datasets) == 0 {
		return nil, ErrNothingToExport
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", DataSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	labels := categoryLabels(spec.Data)

	if err := writeRow(f, 1, "Label", seriesNames(spec.Data)); err != nil {
		f.Close()
		return nil, err
	}
	for i, label := range labels {
		row := make([]interface{}, len(spec.Data.Datasets))
		for j, ds := range spec.Data.Datasets {
			if i < len(ds.Values) {
				row[j] = ds.Values[i]
			}
		}
		if err := writeRow(f, i+2, label, row); err != nil {
			f.Close()
			return nil, err
		}
	}

	if len(labels) > 0 {
		if err := f.AddChart(DataSheet, anchorCell(len(spec.Data.Datasets)), nativeChart(spec, len(labels))); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to add chart: %w", err)
		}
	}

	return f, nil
}

// WriteWorkbook writes the spreadsheet for spec to w
func WriteWorkbook(w io.Writer, spec *Spec) error {
	f, err := Workbook(spec)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, row int, first interface{}, rest []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	values := append([]interface{}{first}, rest...)
	if err := f.SetSheetRow(DataSheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}

func seriesNames(data Data) []interface{} {
	names := make([]interface{}, len(data.Datasets))
	for i, ds := range data.Datasets {
		name := ds.Label
		if name == "" {
			name = fmt.Sprintf("Series %d", i+1)
		}
		names[i] = name
	}
	return names
}

func anchorCell(datasets int) string {
	cell, err := excelize.CoordinatesToCellName(datasets+3, 2)
	if err != nil {
		return "E2"
	}
	return cell
}

func nativeChart(spec *Spec, rows int) *excelize.Chart {
	ref := fmt.Sprintf("'%s'", DataSheet)
	last := rows + 1

	c := &excelize.Chart{
		Legend: excelize.ChartLegend{Position: legendPosition(spec)},
	}
	if title := spec.Title(); title != "" {
		c.Title = []excelize.RichTextRun{{Text: title}}
	}

	switch spec.Kind {
	case KindLine:
		c.Type = excelize.Line
	case KindPie:
		c.Type = excelize.Pie
	default:
		c.Type = excelize.Col
	}

	datasets := spec.Data.Datasets
	if spec.Kind == KindPie {
		datasets = datasets[:1]
	}

	for j := range datasets {
		col, err := excelize.ColumnNumberToName(j + 2)
		if err != nil {
			continue
		}
		c.Series = append(c.Series, excelize.ChartSeries{
			Name:       fmt.Sprintf("%s!$%s$1", ref, col),
			Categories: fmt.Sprintf("%s!$A$2:$A$%d", ref, last),
			Values:     fmt.Sprintf("%s!$%s$2:$%s$%d", ref, col, col, last),
		})
	}

	return c
}

func legendPosition(spec *Spec) string {
	legend, _ := lookup(spec.Options, "plugins", "legend").(map[string]interface{})
	if display, ok := legend["display"]; ok && !truthy(display) {
		return "none"
	}

	switch pos := stringify(legend["position"]); pos {
	case "top", "bottom", "left", "right":
		return pos
	default:
		return "top"
	}
}
