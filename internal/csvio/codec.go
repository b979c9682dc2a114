// Package csvio encodes and decodes the trial directory's CSV exchange
// format.
//
// The format is comma-separated UTF-8 with double-quote field quoting
// and a header row. Header cells are matched case-insensitively against
// Chinese and English aliases, so column order does not matter and
// unrecognized columns are dropped.
//
// The parser tokenizes each physical line independently with a minimal
// quote-toggle scanner. It does not support line-feeds embedded inside
// quoted fields and does not detect malformed quoting; such inputs
// yield best-effort results. This is a known limitation carried over
// from the format's origin: existing exports in the wild never contain
// embedded newlines, and changing the behavior would change how those
// files re-import.
package csvio

import (
	"errors"
	"strconv"
	"strings"

	"trialdex/internal/trial"
)

// ErrEmptyFile is returned when the input contains no header row.
var ErrEmptyFile = errors.New("empty file")

// bom is the UTF-8 byte-order mark prepended to exports so spreadsheet
// applications detect the encoding of Chinese text correctly.
const bom = "\uFEFF"

// column identifies a recognized header column.
type column int

const (
	colUnknown column = iota
	colID
	colDepartment
	colPI
	colTitle
	colDisease
	colTags
	colCriteria
	colContact
)

// headerAliases maps lower-cased header cells to columns. Both the
// localized labels used by exports and plain English names are
// accepted.
var headerAliases = map[string]column{
	"id":      colID,
	"科室":      colDepartment,
	"department": colDepartment,
	"研究者(pi)": colPI,
	"研究者":     colPI,
	"pi":      colPI,
	"项目标题":    colTitle,
	"标题":      colTitle,
	"title":   colTitle,
	"适应症":     colDisease,
	"disease": colDisease,
	"标签":      colTags,
	"tags":    colTags,
	"详细标准":    colCriteria,
	"标准":      colCriteria,
	"criteria": colCriteria,
	"联系方式":    colContact,
	"联系":      colContact,
	"contact": colContact,
}

// exportHeader is the fixed header row for Serialize, in display order.
var exportHeader = []string{"ID", "科室", "研究者(PI)", "项目标题", "适应症", "标签", "详细标准", "联系方式"}

// Parse decodes CSV text into trial records.
//
// The first line is the header row. A data row is kept only when at
// least one of title, disease, or PI is non-empty after column mapping;
// everything else is silently dropped, as are blank lines. Missing
// trailing columns default to the empty string and tags default to an
// empty list. An ID column is recognized but informational only: parsed
// records are drafts and carry no ID.
func Parse(text string) ([]trial.Trial, error) {
	text = strings.TrimPrefix(text, bom)

	lines := strings.Split(text, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return nil, ErrEmptyFile
	}

	layout := mapHeader(splitLine(strings.TrimSuffix(lines[0], "\r")))

	var records []trial.Trial
	for _, line := range lines[1:] {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		cells := splitLine(line)
		t := trial.Trial{Tags: []string{}}
		for i, cell := range cells {
			if i >= len(layout) {
				break
			}
			switch layout[i] {
			case colDepartment:
				t.Department = cell
			case colPI:
				t.PI = cell
			case colTitle:
				t.Title = cell
			case colDisease:
				t.Disease = cell
			case colTags:
				t.Tags = splitTags(cell)
			case colCriteria:
				t.Criteria = cell
			case colContact:
				t.Contact = cell
			}
		}

		if t.Title == "" && t.Disease == "" && t.PI == "" {
			continue
		}
		records = append(records, t)
	}

	return records, nil
}

// Serialize encodes records as CSV with the fixed export header.
// Every cell is quoted, internal quotes are doubled, tags are joined
// with "; ", and a BOM is prepended.
func Serialize(records []trial.Trial) string {
	var b strings.Builder
	b.WriteString(bom)
	writeRow(&b, exportHeader)

	for _, t := range records {
		b.WriteByte('\n')
		id := ""
		if t.ID > 0 {
			id = strconv.FormatInt(t.ID, 10)
		}
		writeRow(&b, []string{
			id,
			t.Department,
			t.PI,
			t.Title,
			t.Disease,
			strings.Join(t.Tags, "; "),
			t.Criteria,
			t.Contact,
		})
	}

	return b.String()
}

// splitLine tokenizes one physical line. A double quote toggles the
// in-quote state, a comma separates fields only outside quotes, and a
// doubled quote inside a field decodes to one literal quote.
func splitLine(line string) []string {
	var fields []string
	var cur strings.Builder
	inQuotes := false

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		switch c := runes[i]; {
		case c == '"':
			if inQuotes && i+1 < len(runes) && runes[i+1] == '"' {
				cur.WriteByte('"')
				i++
			} else {
				inQuotes = !inQuotes
			}
		case c == ',' && !inQuotes:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(c)
		}
	}
	fields = append(fields, cur.String())
	return fields
}

// mapHeader resolves each header cell to a column, colUnknown for
// anything unrecognized.
func mapHeader(cells []string) []column {
	layout := make([]column, len(cells))
	for i, cell := range cells {
		layout[i] = headerAliases[strings.ToLower(strings.TrimSpace(cell))]
	}
	return layout
}

func splitTags(cell string) []string {
	if strings.TrimSpace(cell) == "" {
		return []string{}
	}
	parts := strings.Split(cell, ";")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

func writeRow(b *strings.Builder, cells []string) {
	for i, cell := range cells {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(cell, `"`, `""`))
		b.WriteByte('"')
	}
}
