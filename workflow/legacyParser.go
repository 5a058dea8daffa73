package workflow

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dsrph/registry_backend/models"
	"github.com/xuri/excelize/v2"
)

// LegacyParser turns legacy source files into raw record payloads for batch
// submission. The first row (or the object keys, for JSON) names the fields;
// cleaning and validation happen later in the pipeline, the parser only
// reshapes.
type LegacyParser struct{}

func NewLegacyParser() *LegacyParser {
	return &LegacyParser{}
}

// ParseFile dispatches on the file extension: .xlsx, .csv or .json.
func (p *LegacyParser) ParseFile(path string) ([]models.Metadata, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return p.ParseExcel(path)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return p.ParseCSV(f)
	case ".json":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return p.ParseJSON(f)
	default:
		return nil, fmt.Errorf("unsupported file type %q, expected .xlsx, .csv or .json", filepath.Ext(path))
	}
}

// ParseExcel reads the first sheet. Row one is the header; short rows pad to
// the header width with empty values, which cleaning drops later.
func (p *LegacyParser) ParseExcel(path string) ([]models.Metadata, error) {
	book, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", path)
	}
	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("sheet %s has no data rows", sheets[0])
	}

	header := normalizeHeader(rows[0])
	records := make([]models.Metadata, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if rowEmpty(row) {
			continue
		}
		record := models.NewMetadata()
		for i, key := range header {
			if key == "" {
				continue
			}
			if i < len(row) {
				record[key] = row[i]
			} else {
				record[key] = ""
			}
		}
		records = append(records, record)
	}
	return records, nil
}

// ParseCSV reads comma-separated data with a header row.
func (p *LegacyParser) ParseCSV(r io.Reader) ([]models.Metadata, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	headerRow, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}
	header := normalizeHeader(headerRow)

	var records []models.Metadata
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if rowEmpty(row) {
			continue
		}
		record := models.NewMetadata()
		for i, key := range header {
			if key == "" {
				continue
			}
			if i < len(row) {
				record[key] = row[i]
			} else {
				record[key] = ""
			}
		}
		records = append(records, record)
	}
	return records, nil
}

// ParseJSON accepts either a bare array of objects or an envelope with a
// top-level "records" array.
func (p *LegacyParser) ParseJSON(r io.Reader) ([]models.Metadata, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var list []map[string]any
	if err := json.Unmarshal(raw, &list); err != nil {
		var envelope struct {
			Records []map[string]any `json:"records"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Records == nil {
			return nil, fmt.Errorf("json input must be an array of objects or contain a records array")
		}
		list = envelope.Records
	}

	records := make([]models.Metadata, 0, len(list))
	for _, item := range list {
		records = append(records, models.Metadata(item))
	}
	return records, nil
}

// normalizeHeader lower-snake-cases column names so payload keys line up
// with the cleaner's field dispatch.
func normalizeHeader(row []string) []string {
	out := make([]string, len(row))
	for i, col := range row {
		key := strings.TrimSpace(strings.ToLower(col))
		key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
		out[i] = key
	}
	return out
}

func rowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
