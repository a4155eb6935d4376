// Package report renders monthly attendance reports as console tables and workbooks.
package report

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"schoolattendance/internal/model"
)

// ErrInvalidMonth is returned for month tokens that are not YYYY-MM.
var ErrInvalidMonth = errors.New("Invalid format. Use YYYY-MM (e.g., 2025-11)")

var monthRe = regexp.MustCompile(`^(\d{4})-(\d{1,2})$`)

// Headers are the report column titles.
var Headers = []string{"Student ID", "Name", "Class", "Total Days", "Present", "Absent", "Late", "Present %"}

// ParseMonth splits a YYYY-MM token. Months outside 1-12 are rejected.
func ParseMonth(token string) (year, month int, err error) {
	m := monthRe.FindStringSubmatch(token)
	if m == nil {
		return 0, 0, ErrInvalidMonth
	}
	year, _ = strconv.Atoi(m[1])
	month, _ = strconv.Atoi(m[2])
	if month < 1 || month > 12 {
		return 0, 0, ErrInvalidMonth
	}
	return year, month, nil
}

// Title names the month, e.g. "November 2025".
func Title(year, month int) string {
	return fmt.Sprintf("%s %d", time.Month(month), year)
}

// Percent formats a percentage without trailing zeros, e.g. "66.67%" or "100%".
func Percent(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64) + "%"
}

// Rows flattens a report into table cells in Headers order.
func Rows(r model.MonthlyReport) [][]string {
	rows := make([][]string, 0, len(r.Students))
	for _, s := range r.Students {
		rows = append(rows, []string{
			s.Student.StudentID,
			s.Student.Name,
			s.Student.Class + "-" + s.Student.Section,
			strconv.Itoa(s.TotalDays),
			strconv.Itoa(s.Present),
			strconv.Itoa(s.Absent),
			strconv.Itoa(s.Late),
			Percent(s.PresentPercentage),
		})
	}
	return rows
}

// WriteTable draws a bordered console table.
func WriteTable(w io.Writer, headers []string, rows [][]string) error {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && utf8.RuneCountInString(cell) > widths[i] {
				widths[i] = utf8.RuneCountInString(cell)
			}
		}
	}

	var b strings.Builder
	border := func() {
		b.WriteByte('+')
		for _, n := range widths {
			b.WriteString(strings.Repeat("-", n+2))
			b.WriteByte('+')
		}
		b.WriteByte('\n')
	}
	line := func(cells []string) {
		b.WriteByte('|')
		for i, n := range widths {
			var cell string
			if i < len(cells) {
				cell = cells[i]
			}
			b.WriteString(" " + cell + strings.Repeat(" ", n-utf8.RuneCountInString(cell)) + " |")
		}
		b.WriteByte('\n')
	}

	border()
	line(headers)
	border()
	for _, row := range rows {
		line(row)
	}
	border()
	_, err := io.WriteString(w, b.String())
	return err
}
