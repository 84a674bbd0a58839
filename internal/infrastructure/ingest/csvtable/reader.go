package csvtable

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dreschagin/process-detector/internal/domain/service"
)

// ErrNoHeader is returned when the input has no header row.
var ErrNoHeader = errors.New("event log has no header row")

// candidate delimiters, in tie-break order
var delimiters = []rune{',', ';', '\t', '|'}

// Reader implements port.TableReader for delimited text exports.
// The delimiter is detected from the header line unless Comma is set.
type Reader struct {
	Comma rune
}

func NewReader() *Reader {
	return &Reader{}
}

// Read parses the whole input. Rows may have a different number of fields
// than the header; missing cells are treated as empty by the normalizer.
func (r *Reader) Read(in io.Reader) (service.RawTable, error) {
	br := bufio.NewReader(in)

	comma := r.Comma
	if comma == 0 {
		peek, _ := br.Peek(4096)
		comma = detectDelimiter(peek)
	}

	reader := csv.NewReader(br)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return service.RawTable{}, ErrNoHeader
	}
	if err != nil {
		return service.RawTable{}, fmt.Errorf("failed to read header: %w", err)
	}
	if isBlank(header) {
		return service.RawTable{}, ErrNoHeader
	}

	table := service.RawTable{Columns: header}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line, _ := reader.FieldPos(0)
			return service.RawTable{}, fmt.Errorf("failed to read row at line %d: %w", line, err)
		}
		if isBlank(row) {
			continue
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

// detectDelimiter picks the candidate that occurs most often in the first line
func detectDelimiter(sample []byte) rune {
	if i := bytes.IndexByte(sample, '\n'); i >= 0 {
		sample = sample[:i]
	}
	line := string(sample)

	best, bestCount := ',', 0
	for _, d := range delimiters {
		if n := strings.Count(line, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
