package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	apperrors "github.com/charlesng35/stomanager/pkg/errors"
)

// DefaultMaxSize is the largest upload accepted when no limit is configured.
const DefaultMaxSize int64 = 10 << 20

// Format identifies the container of an uploaded SOH file.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
)

const (
	contentTypeCSV  = "text/csv"
	contentTypeXLS  = "application/vnd.ms-excel"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var (
	// ErrInvalidFileType rejects anything that is not CSV or an Excel workbook.
	ErrInvalidFileType = apperrors.New("INVALID_FILE_TYPE", "Invalid file type. Only CSV and Excel files are allowed", http.StatusBadRequest)
	// ErrFileTooLarge rejects uploads above the configured size limit.
	ErrFileTooLarge = apperrors.New("FILE_TOO_LARGE", "File too large. Maximum size is 10MB", http.StatusBadRequest)

	errTooFewRows = errors.New("File must contain a header row and at least one data row")
)

const parseErrorCode = "PARSE_ERROR"

// ParseError wraps a parse failure in the client-visible PARSE_ERROR shape.
func ParseError(err error) *apperrors.AppError {
	msg := "Unknown error"
	if err != nil {
		msg = err.Error()
	}
	return apperrors.New(parseErrorCode, "Failed to parse file: "+msg, http.StatusBadRequest).WithInternal(err)
}

// IsParseError reports whether err carries the PARSE_ERROR code.
func IsParseError(err error) bool {
	var appErr *apperrors.AppError
	return errors.As(err, &appErr) && appErr.Code == parseErrorCode
}

// DetectFormat picks the parser from the file extension, falling back to the
// declared content type.
func DetectFormat(fileName, contentType string) (Format, error) {
	switch strings.ToLower(filepath.Ext(strings.TrimSpace(fileName))) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".xls":
		return FormatXLS, nil
	}

	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	switch mediaType {
	case contentTypeCSV:
		return FormatCSV, nil
	case contentTypeXLSX:
		return FormatXLSX, nil
	case contentTypeXLS:
		return FormatXLS, nil
	}
	return "", ErrInvalidFileType
}

// CheckSize enforces the upload size limit. A non-positive max uses DefaultMaxSize.
func CheckSize(size, max int64) error {
	if max <= 0 {
		max = DefaultMaxSize
	}
	if size > max {
		if max == DefaultMaxSize {
			return ErrFileTooLarge
		}
		return ErrFileTooLarge.WithMessage(fmt.Sprintf("File too large. Maximum size is %dMB", max>>20))
	}
	return nil
}

// Table is a parsed sheet: canonical headers plus raw data rows. Rows are padded
// to the header width and fully blank rows are dropped.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Parse reads a CSV or Excel payload into a Table and checks the required columns.
func Parse(r io.Reader, format Format) (*Table, error) {
	var (
		raw [][]string
		err error
	)

	switch format {
	case FormatCSV:
		raw, err = readCSV(r)
	case FormatXLSX, FormatXLS:
		raw, err = readWorkbook(r, format)
	default:
		return nil, ErrInvalidFileType
	}
	if err != nil {
		return nil, ParseError(err)
	}

	return buildTable(raw)
}

func buildTable(raw [][]string) (*Table, error) {
	if len(raw) < 2 {
		return nil, ParseError(errTooFewRows)
	}

	headers := make([]string, len(raw[0]))
	for i, cell := range raw[0] {
		headers[i] = NormalizeHeader(cell)
	}

	if missing := MissingColumns(headers); len(missing) > 0 {
		return nil, ParseError(fmt.Errorf("Missing required columns: %s", strings.Join(missing, ", ")))
	}

	table := &Table{Headers: headers}
	for _, row := range raw[1:] {
		if blankRow(row) {
			continue
		}
		cells := make([]string, len(headers))
		for i := range cells {
			if i < len(row) {
				cells[i] = strings.TrimSpace(row[i])
			}
		}
		table.Rows = append(table.Rows, cells)
	}
	return table, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func readWorkbook(r io.Reader, format Format) ([][]string, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		if format == FormatXLS {
			return nil, errors.New("Legacy .xls workbooks are not supported, save the file as .xlsx or .csv")
		}
		return nil, err
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("Excel file contains no sheets")
	}

	rows, err := book.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
