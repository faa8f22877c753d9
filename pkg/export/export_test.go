package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() Dataset {
	return Dataset{
		Title:   "CS101 Gradebook",
		Headers: []string{"Student", "Final", "Letter"},
		Rows: []map[string]string{
			{"Student": "Ada Lovelace", "Final": "95.00", "Letter": "A"},
			{"Student": "Alan Turing", "Final": "", "Letter": ""},
		},
	}
}

func TestCSVExporter(t *testing.T) {
	out, err := NewCSVExporter().Render(sample())
	require.NoError(t, err)
	assert.Equal(t, "Student,Final,Letter\nAda Lovelace,95.00,A\nAlan Turing,,\n", string(out))

	_, err = NewCSVExporter().Render(Dataset{})
	assert.ErrorIs(t, err, errNoHeaders)
}

func TestCSVExporterDelimiterStreams(t *testing.T) {
	var buf bytes.Buffer
	data := Dataset{Headers: []string{"Student", "Letter"}, Rows: []map[string]string{{"Student": "Lovelace; Ada", "Letter": "A"}}}
	require.NoError(t, NewCSVExporter().WithDelimiter(';').Write(&buf, data))
	assert.Equal(t, "Student;Letter\n\"Lovelace; Ada\";A\n", buf.String())
}

func TestPDFExporter(t *testing.T) {
	out, err := NewPDFExporter().Render(sample())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat("pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", f.ContentType())

	_, err = ParseFormat("xlsx")
	assert.Error(t, err)
}
