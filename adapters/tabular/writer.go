package tabular

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"chatintent/domain/intent"
	"chatintent/internal/errors"

	"github.com/xuri/excelize/v2"
)

// Write stores the corpus at path in the format chosen by its extension,
// creating parent directories as needed.
func Write(path string, corpus *intent.Corpus) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "failed to create %s", dir)
		}
	}

	switch format {
	case FormatCSV:
		return writeCSV(path, corpus)
	case FormatXLSX:
		return writeXLSX(path, corpus)
	default:
		return writeJSON(path, corpus)
	}
}

// writeCSV refuses text holding a carriage return: encoding/csv reads a
// quoted \r\n back as \n, so the file would not reproduce the corpus.
func writeCSV(path string, corpus *intent.Corpus) error {
	for i, s := range corpus.Samples() {
		if strings.ContainsRune(s.Text, '\r') {
			return errors.Configuration("sample %d contains a carriage return, which CSV cannot round-trip; write .xlsx or .json instead", i)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(columns); err != nil {
		return errors.Wrap(err, "failed to write CSV header")
	}
	for _, s := range corpus.Samples() {
		if err := w.Write([]string{s.Text, s.Intent, string(s.UserType)}); err != nil {
			return errors.Wrap(err, "failed to write CSV row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, "failed to flush CSV")
	}
	return file.Close()
}

func writeXLSX(path string, corpus *intent.Corpus) error {
	f := excelize.NewFile()
	defer f.Close()

	header := make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return errors.Wrap(err, "failed to write Excel header")
	}

	for i, s := range corpus.Samples() {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return errors.Wrap(err, "failed to address Excel row")
		}
		row := []interface{}{s.Text, s.Intent, string(s.UserType)}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return errors.Wrapf(err, "failed to write Excel row %d", i+2)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return errors.Wrapf(err, "failed to save %s", path)
	}
	return nil
}

func writeJSON(path string, corpus *intent.Corpus) error {
	data, err := json.MarshalIndent(corpus.Samples(), "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode corpus")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}
