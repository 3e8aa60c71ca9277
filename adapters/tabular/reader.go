package tabular

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chatintent/domain/intent"
	"chatintent/internal"
	"chatintent/internal/errors"

	"github.com/xuri/excelize/v2"
)

// Format is a corpus file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// SheetName is the worksheet read from and written to XLSX files
const SheetName = "Sheet1"

// Column headers, in the order writers emit them
const (
	ColumnText     = "text"
	ColumnIntent   = "intent"
	ColumnUserType = "user_type"
)

var columns = []string{ColumnText, ColumnIntent, ColumnUserType}

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", errors.Configuration("unsupported corpus file extension %q (want .csv, .xlsx or .json)", filepath.Ext(path))
	}
}

// CorpusReader reads labeled samples from CSV, XLSX or JSON files
type CorpusReader struct {
	filePath string
	format   Format
	logger   *internal.Logger
}

// NewCorpusReader creates a reader that dispatches on the file extension
func NewCorpusReader(filePath string, logger *internal.Logger) (*CorpusReader, error) {
	format, err := FormatFromPath(filePath)
	if err != nil {
		return nil, err
	}
	return &CorpusReader{filePath: filePath, format: format, logger: logger.Named("CorpusReader")}, nil
}

// Read is shorthand for NewCorpusReader(path, nil).Read().
func Read(path string) (*intent.Corpus, error) {
	r, err := NewCorpusReader(path, nil)
	if err != nil {
		return nil, err
	}
	return r.Read()
}

// Read loads the whole file. Cell text is kept exactly as stored.
func (r *CorpusReader) Read() (*intent.Corpus, error) {
	r.logger.Debug("reading %s file: %s", r.format, r.filePath)

	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, errors.Configuration("%s file not found: %s", strings.ToUpper(string(r.format)), r.filePath)
	}

	start := time.Now()
	var (
		corpus *intent.Corpus
		err    error
	)
	switch r.format {
	case FormatCSV:
		corpus, err = r.readCSV()
	case FormatXLSX:
		corpus, err = r.readXLSX()
	case FormatJSON:
		corpus, err = r.readJSON()
	}
	if err != nil {
		return nil, err
	}

	r.logger.Info("%s file read in %.2fms (%d samples)", strings.ToUpper(string(r.format)),
		float64(time.Since(start).Nanoseconds())/1e6, corpus.Len())
	return corpus, nil
}

func (r *CorpusReader) readCSV() (*intent.Corpus, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, errors.WithCode(errors.CodeConfiguration, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(errors.WithCode(errors.CodeConfiguration, err), "failed to parse CSV file %s", r.filePath)
	}
	return r.processRows(rows)
}

func (r *CorpusReader) readXLSX() (*intent.Corpus, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, errors.Wrapf(errors.WithCode(errors.CodeConfiguration, err), "failed to open Excel file %s", r.filePath)
	}
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	if err != nil {
		return nil, errors.Wrapf(errors.WithCode(errors.CodeConfiguration, err), "failed to read %s", SheetName)
	}
	return r.processRows(rows)
}

func (r *CorpusReader) readJSON() (*intent.Corpus, error) {
	data, err := os.ReadFile(r.filePath)
	if err != nil {
		return nil, errors.WithCode(errors.CodeConfiguration, err)
	}
	var samples []intent.Sample
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, errors.Wrapf(errors.WithCode(errors.CodeConfiguration, err), "failed to parse JSON file %s", r.filePath)
	}

	corpus := &intent.Corpus{}
	for i, s := range samples {
		if err := corpus.Append(s); err != nil {
			return nil, errors.Wrapf(err, "record %d", i)
		}
	}
	return corpus, nil
}

// processRows maps header names to positions and converts the data rows.
// Header cells are matched case-insensitively; data cells are not touched.
func (r *CorpusReader) processRows(rows [][]string) (*intent.Corpus, error) {
	if len(rows) == 0 {
		return nil, errors.Configuration("%s has no header row", r.filePath)
	}

	position := make(map[string]int)
	for i, header := range rows[0] {
		position[strings.ToLower(strings.TrimSpace(header))] = i
	}
	for _, col := range columns {
		if _, ok := position[col]; !ok {
			return nil, errors.Configuration("%s is missing required column %q", r.filePath, col)
		}
	}

	corpus := &intent.Corpus{}
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if isBlankRow(row) {
			continue
		}
		cell := func(col string) string {
			if p := position[col]; p < len(row) {
				return row[p]
			}
			return ""
		}

		userType, err := intent.ParseUserType(cell(ColumnUserType))
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i+1)
		}
		sample := intent.Sample{Text: cell(ColumnText), Intent: cell(ColumnIntent), UserType: userType}
		if err := corpus.Append(sample); err != nil {
			return nil, errors.Wrapf(err, "row %d", i+1)
		}
	}
	return corpus, nil
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}
