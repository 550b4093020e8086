package tower

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// cdmaPrefixLen is the length of the "CDMA:" label in front of the tower number
const cdmaPrefixLen = 5

// instanceFilePattern matches extracted coordinate files, e.g. 385-2.txt
var instanceFilePattern = regexp.MustCompile(`^([0-9]+)-([0-9]+)\.txt$`)

// ExtractOptions selects the columns of a logged hand-off file.
// Column and line indexes are zero based.
type ExtractOptions struct {
	Delimiter  rune
	CDMAColumn int
	LatColumn  int
	LonColumn  int
	FirstLine  int
}

// ExtractOptionsFromConfig converts the input section of the config file
func ExtractOptionsFromConfig(cfg InputConfig) (ExtractOptions, error) {
	delim, err := ParseDelimiter(cfg.Delimiter)
	if err != nil {
		return ExtractOptions{}, err
	}
	opts := ExtractOptions{
		Delimiter:  delim,
		CDMAColumn: cfg.CDMAColumn,
		LatColumn:  cfg.LatColumn,
		LonColumn:  cfg.LonColumn,
		FirstLine:  cfg.FirstLine,
	}
	if opts.CDMAColumn < 0 || opts.LatColumn < 0 || opts.LonColumn < 0 || opts.FirstLine < 0 {
		return ExtractOptions{}, fmt.Errorf("%w: column and line indexes must not be negative", ErrInvalidConfig)
	}
	return opts, nil
}

// Extraction holds the fixes of a log grouped by tower CDMA number
type Extraction map[int][]Point

// CDMAs returns the tower numbers found, ascending
func (e Extraction) CDMAs() []int {
	out := make([]int, 0, len(e))
	for cdma := range e {
		out = append(out, cdma)
	}
	slices.Sort(out)
	return out
}

// ExtractCoords reads a logged hand-off file and groups its fixes by tower.
// The CDMA cell looks like "CDMA:385"; everything after the label is parsed as
// the tower number. Rows before FirstLine and rows that fail to parse are
// skipped.
func ExtractCoords(r io.Reader, opts ExtractOptions) (Extraction, error) {
	cr := newReader(r, opts.Delimiter)
	out := make(Extraction)

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				continue
			}
			return nil, fmt.Errorf("reading hand-off log: %w", err)
		}
		// FirstLine counts physical lines, blank ones included
		line, _ := cr.FieldPos(0)
		if line-1 < opts.FirstLine {
			continue
		}

		cdma, p, ok := parseHandoffRecord(record, opts)
		if !ok {
			continue
		}
		out[cdma] = append(out[cdma], p)
	}
	return out, nil
}

// ExtractCoordsFile opens path and reads it with ExtractCoords
func ExtractCoordsFile(path string, opts ExtractOptions) (Extraction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening hand-off log: %w", err)
	}
	defer f.Close()
	return ExtractCoords(f, opts)
}

func parseHandoffRecord(record []string, opts ExtractOptions) (int, Point, bool) {
	if opts.CDMAColumn >= len(record) || opts.LatColumn >= len(record) || opts.LonColumn >= len(record) {
		return 0, Point{}, false
	}
	cdma, ok := parseCDMA(record[opts.CDMAColumn])
	if !ok {
		return 0, Point{}, false
	}
	lat, err := parseCoord(record[opts.LatColumn])
	if err != nil {
		return 0, Point{}, false
	}
	lon, err := parseCoord(record[opts.LonColumn])
	if err != nil {
		return 0, Point{}, false
	}
	return cdma, Point{Lat: lat, Lon: lon}, true
}

// parseCDMA parses the tower number of a "CDMA:385" cell
func parseCDMA(cell string) (int, bool) {
	cell = strings.TrimSpace(cell)
	if len(cell) <= cdmaPrefixLen {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(cell[cdmaPrefixLen:]))
	if err != nil {
		return 0, false
	}
	return n, true
}

// NextInstancePath returns the path of the next unused coordinate file for a
// tower in dir: <cdma>-<n+1>.txt where n is the largest existing instance.
func NextInstancePath(dir string, cdma int) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("listing %s: %w", dir, err)
	}

	last := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := instanceFilePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		c, err1 := strconv.Atoi(m[1])
		n, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil || c != cdma {
			continue
		}
		last = max(last, n)
	}
	return filepath.Join(dir, fmt.Sprintf("%d-%d.txt", cdma, last+1)), nil
}

// WriteCoords writes one tab-delimited "lat<TAB>lon" line per point
func WriteCoords(w io.Writer, points []Point) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	for _, p := range points {
		record := []string{
			strconv.FormatFloat(p.Lat, 'f', -1, 64),
			strconv.FormatFloat(p.Lon, 'f', -1, 64),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing coordinates: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCoordsFile writes points to path with WriteCoords
func WriteCoordsFile(path string, points []Point) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := WriteCoords(f, points); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// SaveExtraction writes the fixes of each requested tower to the next instance
// file in dir and returns the paths written. An empty cdmas slice writes every
// tower found. A requested tower without fixes is an error.
func SaveExtraction(e Extraction, dir string, cdmas []int) ([]string, error) {
	if len(cdmas) == 0 {
		cdmas = e.CDMAs()
		if len(cdmas) == 0 {
			return nil, errors.New("no CDMA entries found")
		}
	}

	var written []string
	for _, cdma := range cdmas {
		points := e[cdma]
		if len(points) == 0 {
			return written, fmt.Errorf("no matching entries for CDMA %d", cdma)
		}
		path, err := NextInstancePath(dir, cdma)
		if err != nil {
			return written, err
		}
		if err := WriteCoordsFile(path, points); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}
