// Package workbook reads grade sheets out of uploaded .xlsx files and writes
// computed results back into the same workbook without touching anything
// else in it.
package workbook

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/noah-isme/libreta-api/internal/grading"
)

// ErrNoSheets indicates a workbook without any worksheet.
var ErrNoSheets = errors.New("workbook has no sheets")

// ErrInvalidScore marks a bimester cell that is neither blank, a dash nor a number.
var ErrInvalidScore = errors.New("invalid score")

// ScoreError locates a bimester cell that could not be accepted.
type ScoreError struct {
	Sheet  string
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *ScoreError) Error() string {
	return fmt.Sprintf("sheet %q row %d column %s: %v", e.Sheet, e.Line, e.Column, e.Err)
}

func (e *ScoreError) Unwrap() error { return e.Err }

// Column identifies a logical column of the grade sheet.
type Column int

const (
	ColStudentID Column = iota
	ColStudent
	ColB1
	ColB2
	ColB3
	ColB4
	ColCourse
	ColAverage
	ColLetter
	ColComment
	columnCount
)

// Header is the canonical header row used for templates.
var Header = []string{"alumnoId", "alumno", "B1", "B2", "B3", "B4", "curso", "promedio", "letra", "comentario"}

var aliases = map[string]Column{
	"alumnoid":    ColStudentID,
	"idalumno":    ColStudentID,
	"studentid":   ColStudentID,
	"codigo":      ColStudentID,
	"alumno":      ColStudent,
	"estudiante":  ColStudent,
	"nombre":      ColStudent,
	"student":     ColStudent,
	"b1":          ColB1,
	"bimestre1":   ColB1,
	"b2":          ColB2,
	"bimestre2":   ColB2,
	"b3":          ColB3,
	"bimestre3":   ColB3,
	"b4":          ColB4,
	"bimestre4":   ColB4,
	"curso":       ColCourse,
	"course":      ColCourse,
	"promedio":    ColAverage,
	"prom":        ColAverage,
	"average":     ColAverage,
	"letra":       ColLetter,
	"letter":      ColLetter,
	"comentario":  ColComment,
	"comentarios": ColComment,
	"comment":     ColComment,
}

// Layout maps logical columns to zero-based sheet columns. Data starts on the
// row after HeaderRow.
type Layout struct {
	HeaderRow int
	columns   [columnCount]int
}

// DefaultLayout is the positional A..J layout of the UGEL template.
func DefaultLayout() Layout {
	var l Layout
	for i := range l.columns {
		l.columns[i] = i
	}
	return l
}

// Index returns the zero-based sheet column for c.
func (l Layout) Index(c Column) int {
	return l.columns[c]
}

// DetectLayout reads the header row and falls back to the default position
// for any column it cannot find.
func DetectLayout(header []string) Layout {
	layout := DefaultLayout()
	seen := map[Column]bool{}
	for idx, cell := range header {
		col, ok := aliases[normalizeHeader(cell)]
		if !ok || seen[col] {
			continue
		}
		seen[col] = true
		layout.columns[col] = idx
	}
	return layout
}

func normalizeHeader(value string) string {
	stripped, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), value)
	if err != nil {
		stripped = value
	}
	var b strings.Builder
	for _, r := range strings.ToLower(stripped) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Row is one student line of a grade sheet.
type Row struct {
	Line      int
	StudentID string
	Student   string
	Course    string
	Bimesters [4]decimal.NullDecimal
}

// Result is the computed output written back for one student.
type Result struct {
	StudentID string
	Average   decimal.Decimal
	Letter    string
	Comment   string
}

// Book wraps an open excelize file.
type Book struct {
	file *excelize.File
}

// Open parses workbook bytes from r.
func Open(r io.Reader) (*Book, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	if len(f.GetSheetList()) == 0 {
		_ = f.Close()
		return nil, ErrNoSheets
	}
	return &Book{file: f}, nil
}

// Close releases the workbook's temporary resources.
func (b *Book) Close() error {
	return b.file.Close()
}

// Sheets lists the sheet names in workbook order.
func (b *Book) Sheets() []string {
	return b.file.GetSheetList()
}

// ResolveSheet returns the sheet named exactly name, or the first sheet.
func (b *Book) ResolveSheet(name string) string {
	sheets := b.file.GetSheetList()
	name = strings.TrimSpace(name)
	if name != "" {
		for _, sheet := range sheets {
			if sheet == name {
				return sheet
			}
		}
	}
	return sheets[0]
}

// ReadRows returns the data rows of sheet together with the detected layout.
// Rows without a student id or name are skipped.
func (b *Book) ReadRows(sheet string) ([]Row, Layout, error) {
	raw, err := b.file.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, Layout{}, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(raw) == 0 {
		return nil, DefaultLayout(), nil
	}

	layout := DetectLayout(raw[0])
	rows := make([]Row, 0, len(raw)-1)
	for i := layout.HeaderRow + 1; i < len(raw); i++ {
		cells := raw[i]
		row := Row{
			Line:      i + 1,
			StudentID: NormalizeID(cellAt(cells, layout.Index(ColStudentID))),
			Student:   strings.TrimSpace(cellAt(cells, layout.Index(ColStudent))),
			Course:    strings.TrimSpace(cellAt(cells, layout.Index(ColCourse))),
		}
		if row.StudentID == "" || row.Student == "" {
			continue
		}
		for slot, col := range []Column{ColB1, ColB2, ColB3, ColB4} {
			cell := cellAt(cells, layout.Index(col))
			value, err := parseScore(cell)
			if err != nil {
				return nil, Layout{}, &ScoreError{Sheet: sheet, Line: row.Line, Column: Header[col], Value: strings.TrimSpace(cell), Err: err}
			}
			row.Bimesters[slot] = value
		}
		rows = append(rows, row)
	}
	return rows, layout, nil
}

// WriteResults writes average, letter and comment into the output columns of
// every row whose student id has a result. It returns how many rows changed.
func (b *Book) WriteResults(sheet string, layout Layout, results []Result) (int, error) {
	raw, err := b.file.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return 0, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	byStudent := make(map[string]Result, len(results))
	for _, r := range results {
		byStudent[NormalizeID(r.StudentID)] = r
	}

	written := 0
	for i := layout.HeaderRow + 1; i < len(raw); i++ {
		id := NormalizeID(cellAt(raw[i], layout.Index(ColStudentID)))
		result, ok := byStudent[id]
		if id == "" || !ok {
			continue
		}
		line := i + 1

		avgCell, err := excelize.CoordinatesToCellName(layout.Index(ColAverage)+1, line)
		if err != nil {
			return written, err
		}
		avg, _ := result.Average.Round(2).Float64()
		if err := b.file.SetCellFloat(sheet, avgCell, avg, 2, 64); err != nil {
			return written, fmt.Errorf("write average %s: %w", avgCell, err)
		}

		letterCell, err := excelize.CoordinatesToCellName(layout.Index(ColLetter)+1, line)
		if err != nil {
			return written, err
		}
		if err := b.file.SetCellStr(sheet, letterCell, result.Letter); err != nil {
			return written, fmt.Errorf("write letter %s: %w", letterCell, err)
		}

		commentCell, err := excelize.CoordinatesToCellName(layout.Index(ColComment)+1, line)
		if err != nil {
			return written, err
		}
		if err := b.file.SetCellStr(sheet, commentCell, result.Comment); err != nil {
			return written, fmt.Errorf("write comment %s: %w", commentCell, err)
		}
		written++
	}
	return written, nil
}

// Bytes serializes the whole workbook.
func (b *Book) Bytes() ([]byte, error) {
	buf, err := b.file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// Template returns an empty grade sheet carrying the canonical header.
func Template(sheet string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if strings.TrimSpace(sheet) != "" {
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			return nil, err
		}
	} else {
		sheet = "Sheet1"
	}

	header := make([]interface{}, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileName builds the deterministic export name {entity}_{level}_{grade}_{period}.xlsx.
// Callers depend on this shape; do not change it.
func FileName(entity, level, grade, period string) string {
	parts := []string{entity, level, grade, period}
	for i, p := range parts {
		parts[i] = strings.ReplaceAll(strings.TrimSpace(p), " ", "-")
	}
	return strings.Join(parts, "_") + ".xlsx"
}

func cellAt(cells []string, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return cells[idx]
}

// NormalizeID makes "1", "1.0" and " 1 " the same student id.
func NormalizeID(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if d, err := decimal.NewFromString(value); err == nil && d.Equal(d.Truncate(0)) {
		return d.Truncate(0).String()
	}
	return value
}

// parseScore reads a bimester cell. Blank cells and dashes are pending grades.
func parseScore(value string) (decimal.NullDecimal, error) {
	value = strings.TrimSpace(strings.ReplaceAll(value, ",", "."))
	switch value {
	case "", "-", "\u2013", "\u2014":
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("%w %q", ErrInvalidScore, value)
	}
	if err := grading.Validate(d); err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}
