package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/charlesng35/stomanager/internal/models"
)

// firstDataRow is the 1-based row number of the first row after the header.
const firstDataRow = 2

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"02-Jan-2006",
}

// Row is a validated SOH line together with its position in the source file.
type Row struct {
	Number int
	Record models.SOHRecord
}

// Result holds the outcome of validating every data row of a Table.
type Result struct {
	Total  int
	Valid  []Row
	Failed int
	Errors []string
}

// Validate converts table rows into SOH records, collecting one message per
// problem. Invalid rows are skipped and counted as failures.
func Validate(table *Table) Result {
	result := Result{}
	if table == nil {
		return result
	}

	for i, cells := range table.Rows {
		number := i + firstDataRow
		fields := make(map[string]string, len(table.Headers))
		for j, header := range table.Headers {
			fields[header] = cells[j]
		}

		record, errs := convertRow(fields, number)
		result.Total++
		if len(errs) > 0 {
			result.Failed++
			result.Errors = append(result.Errors, errs...)
			continue
		}
		result.Valid = append(result.Valid, Row{Number: number, Record: record})
	}
	return result
}

func convertRow(fields map[string]string, number int) (models.SOHRecord, []string) {
	var errs []string
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf("Row %d: ", number)+fmt.Sprintf(format, args...))
	}

	for _, col := range []string{ColFormNo, ColStorerkey, ColSKU, ColLoc, ColLot, ColID} {
		if fields[col] == "" {
			fail("%s is required", col)
		}
	}

	quantities := make(map[string]float64, 3)
	for _, col := range []string{ColQtyOnHand, ColQtyAllocated, ColQtyAvailable} {
		value, ok := parseNumber(fields[col])
		if !ok {
			fail("%s must be a valid number", col)
			continue
		}
		quantities[col] = value
	}

	var stdCube *float64
	if raw := fields[ColStdCube]; raw != "" {
		value, ok := parseNumber(raw)
		if ok {
			stdCube = &value
		} else {
			fail("%s must be a valid number", ColStdCube)
		}
	}

	var received *time.Time
	if raw := fields[ColReceivedDate]; raw != "" {
		parsed, ok := ParseDate(raw)
		if ok {
			received = &parsed
		} else {
			fail("%s must be a valid date", ColReceivedDate)
		}
	}

	if len(errs) > 0 {
		return models.SOHRecord{}, errs
	}

	return models.SOHRecord{
		FormNo:         fields[ColFormNo],
		Storerkey:      fields[ColStorerkey],
		SKU:            fields[ColSKU],
		Loc:            fields[ColLoc],
		Lot:            fields[ColLot],
		ItemID:         fields[ColID],
		QtyOnHand:      quantities[ColQtyOnHand],
		QtyAllocated:   quantities[ColQtyAllocated],
		QtyAvailable:   quantities[ColQtyAvailable],
		Lottable01:     fields[ColLottable01],
		ProjectScope:   fields[ColProjectScope],
		Lottable10:     fields[ColLottable10],
		ProjectID:      fields[ColProjectID],
		WBSElement:     fields[ColWBSElement],
		SKUDescription: fields[ColSKUDescription],
		SKUGroup:       fields[ColSKUGroup],
		ReceivedDate:   received,
		HUID:           fields[ColHUID],
		OwnerID:        fields[ColOwnerID],
		StdCube:        stdCube,
	}, nil
}

// parseNumber accepts an empty cell as zero. NaN and infinities are rejected.
func parseNumber(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, true
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || !isFinite(value) {
		return 0, false
	}
	return value, true
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ParseDate understands the common textual layouts plus Excel serial day numbers.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC(), true
		}
	}

	serial, err := strconv.ParseFloat(raw, 64)
	if err != nil || !isFinite(serial) || serial < 1 {
		return time.Time{}, false
	}
	parsed, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return time.Time{}, false
	}
	return parsed.UTC(), true
}
