package tower

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"
)

// Point is a hand-off fix in a planar approximation of (latitude, longitude).
// Two points are the same fix only when both components compare equal.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Orb converts the point to an orb.Point (X = longitude, Y = latitude)
func (p Point) Orb() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

func (p Point) String() string {
	return fmt.Sprintf("(%f, %f)", p.Lat, p.Lon)
}

// PointSet is an ordered sequence of unique points produced by Dedup.
// It is read-only once built.
type PointSet []Point

// MultiPoint returns the set as an orb.MultiPoint for bounds and GeoJSON output
func (ps PointSet) MultiPoint() orb.MultiPoint {
	mp := make(orb.MultiPoint, len(ps))
	for i, p := range ps {
		mp[i] = p.Orb()
	}
	return mp
}

// Triple is an unordered selection of three points from a PointSet.
// Index holds the positions i<j<k the points were taken from.
type Triple struct {
	Points [3]Point `json:"points"`
	Index  [3]int   `json:"index"`
}

// Circle is the circumscribing circle of a triple
type Circle struct {
	Center Point   `json:"center"`
	Radius float64 `json:"radius"`
}

// Candidate is a scored triple held in a RankedCandidateList
type Candidate struct {
	Score  float64 `json:"score"`
	Triple Triple  `json:"triple"`
}

// Estimate is the final tower position.
// Count is the number of circles that contributed to it.
type Estimate struct {
	Center Point   `json:"center"`
	Radius float64 `json:"radius"`
	Count  int     `json:"count"`
}

// Method selects the estimation strategy
type Method string

const (
	// MethodThreshold picks the first triple (in index order) whose circle radius
	// falls within the centroid percentile bounds.
	MethodThreshold Method = "threshold"
	// MethodPerimeter averages the circles of the widest-perimeter triangles.
	MethodPerimeter Method = "perimeter"
)

// Result collects everything a single run produced. Renderers and the HTTP
// layer treat it as read-only.
type Result struct {
	TowerID   string        `json:"towerId,omitempty"`
	Method    Method        `json:"method"`
	RawCount  int           `json:"rawCount"`
	Points    PointSet      `json:"points"`
	Evaluated int64         `json:"evaluated"`
	Duration  time.Duration `json:"duration"`

	// Method A
	Centroid  *Point  `json:"centroid,omitempty"`
	MinRadius float64 `json:"minRadius,omitempty"`
	MaxRadius float64 `json:"maxRadius,omitempty"`

	// Method B
	Candidates []Candidate `json:"candidates,omitempty"`
	Circles    []Circle    `json:"circles,omitempty"`

	Estimate *Estimate `json:"estimate,omitempty"`
}

// TowerConfig defines optional per-tower display settings
type TowerConfig struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name,omitempty" json:"name,omitempty"`
	Color string `yaml:"color,omitempty" json:"color,omitempty"`
}

// EstimatorConfig holds the explicit parameters of the estimation engine
type EstimatorConfig struct {
	Method             Method  `yaml:"method" json:"method"`
	Percentile         float64 `yaml:"percentile" json:"percentile"`                 // Method A target fraction, (0, 1]
	Candidates         int     `yaml:"candidates" json:"candidates"`                 // Method B list capacity K
	RadiusBound        float64 `yaml:"radiusBound" json:"radiusBound"`               // Method B sanity bound, coordinate units
	CollinearTolerance float64 `yaml:"collinearTolerance" json:"collinearTolerance"` // relative determinant tolerance
	ProgressEvery      int64   `yaml:"progressEvery" json:"progressEvery"`           // combinations between reports, 0 selects the default
}

// InputConfig describes delimited input files
type InputConfig struct {
	Delimiter  string `yaml:"delimiter" json:"delimiter"`
	CDMAColumn int    `yaml:"cdmaColumn" json:"cdmaColumn"`
	LatColumn  int    `yaml:"latColumn" json:"latColumn"`
	LonColumn  int    `yaml:"lonColumn" json:"lonColumn"`
	FirstLine  int    `yaml:"firstLine" json:"firstLine"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	Topic         string `yaml:"topic" json:"topic"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// ServiceConfig controls re-estimation in service mode
type ServiceConfig struct {
	RecomputeEvery  int           `yaml:"recomputeEvery" json:"recomputeEvery"`
	EstimateTimeout time.Duration `yaml:"estimateTimeout" json:"estimateTimeout"`
	Database        string        `yaml:"database,omitempty" json:"database,omitempty"`
}

// Config represents the full configuration file
type Config struct {
	Estimator EstimatorConfig `yaml:"estimator" json:"estimator"`
	Input     InputConfig     `yaml:"input" json:"input"`
	MQTT      MQTTConfig      `yaml:"mqtt" json:"mqtt"`
	Service   ServiceConfig   `yaml:"service" json:"service"`
	Towers    []TowerConfig   `yaml:"towers,omitempty" json:"towers,omitempty"`
}

// GetTowerByID returns the tower config for the given ID
func (c *Config) GetTowerByID(id string) *TowerConfig {
	for i := range c.Towers {
		if c.Towers[i].ID == id {
			return &c.Towers[i]
		}
	}
	return nil
}
