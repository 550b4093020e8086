package tower

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDelimiter(t *testing.T) {
	tests := []struct {
		in      string
		want    rune
		wantErr bool
	}{
		{in: "", want: '\t'},
		{in: "tab", want: '\t'},
		{in: "\t", want: '\t'},
		{in: "sp", want: ' '},
		{in: ",", want: ','},
		{in: ";", want: ';'},
		{in: "cr", wantErr: true},
		{in: "nl", wantErr: true},
		{in: "\n", wantErr: true},
		{in: "::", wantErr: true},
		{in: `"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDelimiter(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadPoints(t *testing.T) {
	tests := []struct {
		name  string
		input string
		delim rune
		want  []Point
	}{
		{
			name:  "tab delimited",
			input: "40.1\t-74.2\n40.3\t-74.4\n",
			delim: '\t',
			want:  []Point{{40.1, -74.2}, {40.3, -74.4}},
		},
		{
			name:  "blank lines and no trailing newline",
			input: "1\t2\n\n3\t4",
			delim: '\t',
			want:  []Point{{1, 2}, {3, 4}},
		},
		{
			name:  "duplicates kept",
			input: "1,2\n1,2\n",
			delim: ',',
			want:  []Point{{1, 2}, {1, 2}},
		},
		{
			name:  "extra columns ignored",
			input: "1 2 CDMA:385\n",
			delim: ' ',
			want:  []Point{{1, 2}},
		},
		{
			name:  "surrounding spaces trimmed",
			input: " 1.5 , -2.5 \n",
			delim: ',',
			want:  []Point{{1.5, -2.5}},
		},
		{
			name:  "empty input",
			input: "",
			delim: '\t',
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadPoints(strings.NewReader(tt.input), tt.delim)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("LoadPoints() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadPoints_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantMsg string
	}{
		{name: "bad latitude", input: "1\t2\nabc\t3\n", wantMsg: `line 2: latitude: invalid number "abc"`},
		{name: "bad longitude", input: "1\t\n", wantMsg: `line 1: longitude: invalid number ""`},
		{name: "single field", input: "1\t2\n3\t4\n5\n", wantMsg: "line 3: expected latitude and longitude, got 1 field(s)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadPoints(strings.NewReader(tt.input), '\t')
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoadPointsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "385.txt")
	require.NoError(t, os.WriteFile(path, []byte("1;2\n3;4\n"), 0644))

	got, err := LoadPointsFile(path, ';')
	require.NoError(t, err)
	assert.Equal(t, []Point{{1, 2}, {3, 4}}, got)

	_, err = LoadPointsFile(filepath.Join(dir, "missing.txt"), ';')
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
