package report

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"schoolattendance/internal/model"
)

func sampleReport() model.MonthlyReport {
	return model.MonthlyReport{
		Year:  2025,
		Month: 11,
		Students: []model.StudentSummary{
			{
				Student:   model.Student{StudentID: "STU1001", Name: "Ada Lovelace", Class: "5", Section: "A"},
				TotalDays: 3, Present: 2, Absent: 1, PresentPercentage: 66.67,
			},
			{
				Student:   model.Student{StudentID: "STU1002", Name: "Alan Turing", Class: "6", Section: "B"},
				TotalDays: 2, Present: 2, PresentPercentage: 100,
			},
		},
	}
}

func TestParseMonth(t *testing.T) {
	for _, tc := range []struct {
		in          string
		year, month int
		ok          bool
	}{
		{"2025-11", 2025, 11, true},
		{"2025-1", 2025, 1, true},
		{"2025-00", 0, 0, false},
		{"2025-13", 0, 0, false},
		{"25-11", 0, 0, false},
		{"2025/11", 0, 0, false},
		{"2025-11-01", 0, 0, false},
	} {
		t.Run(tc.in, func(t *testing.T) {
			y, m, err := ParseMonth(tc.in)
			if !tc.ok {
				assert.ErrorIs(t, err, ErrInvalidMonth)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.year, y)
			assert.Equal(t, tc.month, m)
		})
	}
}

func TestTitleAndPercent(t *testing.T) {
	assert.Equal(t, "November 2025", Title(2025, 11))
	assert.Equal(t, "66.67%", Percent(66.67))
	assert.Equal(t, "100%", Percent(100))
	assert.Equal(t, "0%", Percent(0))
	assert.Equal(t, "87.5%", Percent(87.5))
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, Headers, Rows(sampleReport())))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")

	require.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[0], "+---"))
	assert.Contains(t, lines[1], "| Student ID |")
	assert.Contains(t, lines[3], "| STU1001    | Ada Lovelace | 5-A   |")
	assert.Contains(t, lines[3], "| 66.67%    |")
	assert.Contains(t, lines[4], "| 100%      |")
	for _, l := range lines {
		assert.Equal(t, len(lines[0]), len(l))
	}
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, WriteXLSX(path, sampleReport()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("November 2025")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Headers, rows[0])
	assert.Equal(t, "STU1001", rows[1][0])
	assert.Equal(t, "5-A", rows[1][2])
	assert.Equal(t, "3", rows[1][3])
	assert.Equal(t, "66.67", rows[1][7])
}
