package tower

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ParseDelimiter converts a delimiter setting to a rune. The names tab and sp
// select the matching whitespace character; an empty value means tab. Line
// terminators (cr, nl) cannot separate fields and are rejected.
func ParseDelimiter(s string) (rune, error) {
	switch s {
	case "", "tab", "\t":
		return '\t', nil
	case "sp":
		return ' ', nil
	case "cr", "nl", "\r", "\n":
		return 0, fmt.Errorf("%w: delimiter %q is a line terminator", ErrInvalidConfig, s)
	}
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || size != len(s) || r == '"' {
		return 0, fmt.Errorf("%w: delimiter %q must be a single character", ErrInvalidConfig, s)
	}
	return r, nil
}

// newReader builds a csv.Reader that accepts ragged rows and unquoted text
func newReader(r io.Reader, delim rune) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true
	return cr
}

// LoadPoints reads one (lat, lon) pair per row from the first two fields of
// delimited text. Blank lines are ignored and duplicates are kept.
func LoadPoints(r io.Reader, delim rune) ([]Point, error) {
	cr := newReader(r, delim)

	var points []Point
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line, _ := cr.FieldPos(0)
		if err != nil {
			return nil, fmt.Errorf("reading line %d: %w", line, err)
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		if len(record) < 2 {
			return nil, fmt.Errorf("line %d: expected latitude and longitude, got %d field(s)", line, len(record))
		}

		lat, err := parseCoord(record[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: latitude: %w", line, err)
		}
		lon, err := parseCoord(record[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: longitude: %w", line, err)
		}
		points = append(points, Point{Lat: lat, Lon: lon})
	}
	return points, nil
}

// LoadPointsFile opens path and reads it with LoadPoints
func LoadPointsFile(path string, delim rune) ([]Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening points file: %w", err)
	}
	defer f.Close()

	points, err := LoadPoints(f, delim)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return points, nil
}

func parseCoord(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}
