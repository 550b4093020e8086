package tower

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfig returns the configuration used when no file is given
func DefaultConfig() *Config {
	return &Config{
		Estimator: DefaultEstimatorConfig(),
		Input: InputConfig{
			Delimiter:  "tab",
			CDMAColumn: 2,
			LatColumn:  3,
			LonColumn:  4,
		},
		MQTT: MQTTConfig{
			Topic:         "celltower/handoff/#",
			PublishPrefix: DefaultPublishPrefix,
			ClientID:      "celltower",
		},
		Service: ServiceConfig{
			RecomputeEvery:  10,
			EstimateTimeout: 30 * time.Second,
		},
	}
}

// DefaultEstimatorConfig returns the engine defaults
func DefaultEstimatorConfig() EstimatorConfig {
	return EstimatorConfig{
		Method:             MethodPerimeter,
		Percentile:         0.9,
		Candidates:         DefaultCandidates,
		RadiusBound:        DefaultRadiusBound,
		CollinearTolerance: DefaultCollinearTolerance,
		ProgressEvery:      DefaultProgressEvery,
	}
}

// LoadConfig loads the configuration from a YAML file. Keys missing from the
// file keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Validate checks the estimator and input sections
func (c *Config) Validate() error {
	if err := c.Estimator.Validate(); err != nil {
		return err
	}
	if _, err := ExtractOptionsFromConfig(c.Input); err != nil {
		return fmt.Errorf("input: %w", err)
	}
	for i, tc := range c.Towers {
		if tc.ID == "" {
			return fmt.Errorf("%w: towers[%d].id is required", ErrInvalidConfig, i)
		}
	}
	return nil
}

// ValidateService checks the settings service mode needs on top of Validate
func (c *Config) ValidateService(withMQTT bool) error {
	if withMQTT && c.MQTT.Broker == "" {
		return fmt.Errorf("%w: mqtt.broker is required", ErrInvalidConfig)
	}
	if withMQTT && c.MQTT.Topic == "" {
		return fmt.Errorf("%w: mqtt.topic is required", ErrInvalidConfig)
	}
	if c.Service.RecomputeEvery < 1 {
		return fmt.Errorf("%w: service.recomputeEvery must be at least 1", ErrInvalidConfig)
	}
	if c.Service.EstimateTimeout < 0 {
		return fmt.Errorf("%w: service.estimateTimeout must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Validate rejects out-of-range engine parameters
func (e EstimatorConfig) Validate() error {
	switch e.Method {
	case MethodPerimeter, MethodThreshold:
	default:
		return fmt.Errorf("%w: unknown method %q", ErrInvalidConfig, e.Method)
	}
	if !(e.Percentile > 0 && e.Percentile <= 1) {
		return fmt.Errorf("%w: percentile %v outside (0, 1]", ErrInvalidConfig, e.Percentile)
	}
	if e.Candidates < 1 {
		return fmt.Errorf("%w: candidates must be at least 1", ErrInvalidConfig)
	}
	if !(e.RadiusBound > 0) {
		return fmt.Errorf("%w: radiusBound must be positive", ErrInvalidConfig)
	}
	if e.CollinearTolerance < 0 {
		return fmt.Errorf("%w: collinearTolerance must not be negative", ErrInvalidConfig)
	}
	if e.ProgressEvery < 0 {
		return fmt.Errorf("%w: progressEvery must not be negative", ErrInvalidConfig)
	}
	return nil
}
