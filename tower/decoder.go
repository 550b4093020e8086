package tower

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Handoff is a single fix reported for a tower
type Handoff struct {
	TowerID string  `json:"tower"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// Point returns the fix position
func (h Handoff) Point() Point {
	return Point{Lat: h.Lat, Lon: h.Lon}
}

// handoffJSON accepts the tower ID as a string or a number
type handoffJSON struct {
	Tower json.RawMessage `json:"tower"`
	Lat   *float64        `json:"lat"`
	Lon   *float64        `json:"lon"`
}

// DecodeHandoff decodes hand-off fixes from an MQTT payload in one of these
// formats:
//   - JSON object {"tower":"385","lat":..,"lon":..}
//   - JSON array of such objects
//   - delimited text lines "CDMA:385<TAB>lat<TAB>lon" (tab, comma or space)
//
// When a fix carries no tower ID the last segment of topic is used.
func DecodeHandoff(topic string, payload []byte) ([]Handoff, error) {
	data := bytes.TrimSpace(payload)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	fallback := topicTowerID(topic)

	var (
		fixes []Handoff
		err   error
	)
	switch data[0] {
	case '{':
		var h Handoff
		h, err = decodeHandoffObject(data, fallback)
		fixes = []Handoff{h}
	case '[':
		fixes, err = decodeHandoffArray(data, fallback)
	default:
		fixes, err = decodeHandoffText(string(data), fallback)
	}
	if err != nil {
		return nil, err
	}

	for i, h := range fixes {
		if h.TowerID == "" {
			return nil, fmt.Errorf("fix %d: no tower ID in payload or topic %q", i, topic)
		}
	}
	return fixes, nil
}

func decodeHandoffObject(data []byte, fallback string) (Handoff, error) {
	var raw handoffJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return Handoff{}, fmt.Errorf("parsing hand-off JSON: %w", err)
	}
	return raw.handoff(fallback)
}

func decodeHandoffArray(data []byte, fallback string) ([]Handoff, error) {
	var raws []handoffJSON
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("parsing hand-off JSON array: %w", err)
	}
	fixes := make([]Handoff, 0, len(raws))
	for i, raw := range raws {
		h, err := raw.handoff(fallback)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		fixes = append(fixes, h)
	}
	return fixes, nil
}

func (r handoffJSON) handoff(fallback string) (Handoff, error) {
	if r.Lat == nil || r.Lon == nil {
		return Handoff{}, fmt.Errorf("hand-off JSON needs lat and lon")
	}
	id := fallback
	if len(r.Tower) > 0 && string(r.Tower) != "null" {
		var s string
		if err := json.Unmarshal(r.Tower, &s); err == nil {
			id = s
		} else {
			var n json.Number
			if err := json.Unmarshal(r.Tower, &n); err != nil {
				return Handoff{}, fmt.Errorf("tower must be a string or number: %s", r.Tower)
			}
			id = n.String()
		}
	}
	return Handoff{TowerID: id, Lat: *r.Lat, Lon: *r.Lon}, nil
}

// decodeHandoffText parses "CDMA:385<sep>lat<sep>lon" lines. A line with only
// two fields is a bare "lat<sep>lon" pair for the topic's tower.
func decodeHandoffText(s, fallback string) ([]Handoff, error) {
	var fixes []Handoff
	for n, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == '\t' || r == ',' || r == ' ' || r == ';'
		})

		var id, latStr, lonStr string
		switch len(fields) {
		case 2:
			id, latStr, lonStr = fallback, fields[0], fields[1]
		case 3:
			id, latStr, lonStr = fields[0], fields[1], fields[2]
			if cdma, ok := parseCDMA(id); ok && strings.HasPrefix(strings.ToUpper(id), "CDMA") {
				id = fmt.Sprint(cdma)
			}
		default:
			return nil, fmt.Errorf("line %d: expected 2 or 3 fields, got %d", n+1, len(fields))
		}

		lat, err := parseCoord(latStr)
		if err != nil {
			return nil, fmt.Errorf("line %d: latitude: %w", n+1, err)
		}
		lon, err := parseCoord(lonStr)
		if err != nil {
			return nil, fmt.Errorf("line %d: longitude: %w", n+1, err)
		}
		fixes = append(fixes, Handoff{TowerID: id, Lat: lat, Lon: lon})
	}
	if len(fixes) == 0 {
		return nil, fmt.Errorf("no hand-off lines in payload")
	}
	return fixes, nil
}

// topicTowerID returns the last topic segment unless it is a wildcard
func topicTowerID(topic string) string {
	i := strings.LastIndexByte(topic, '/')
	id := topic[i+1:]
	if id == "#" || id == "+" {
		return ""
	}
	return id
}
