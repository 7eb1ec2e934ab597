package dock

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultFrameTimeout bounds the wait for the sensor-to-base transform.
	DefaultFrameTimeout = 10 * time.Second
	// DefaultGoalTimeout bounds the wait for a navigation result.
	DefaultGoalTimeout = 100 * time.Second
)

// DefaultConfig returns a configuration for the standard docking station with an
// unset broker, so MQTT stays disabled unless configured.
func DefaultConfig() *Config {
	est := DefaultEstimatorConfig()
	return &Config{
		MQTT: MQTTConfig{
			PublishPrefix: "dockfinder",
			ClientID:      "dockfinder",
			ScanTopic:     "dockfinder/scan",
		},
		Template:   DefaultTemplateConfig(),
		Candidates: est.Candidates,
		Scorer:     est.Scorer,
		Bridge: BridgeConfig{
			SensorFrame:  "base_laser_link",
			BaseFrame:    "base_link",
			FrameTimeout: DefaultFrameTimeout,
			GoalTimeout:  DefaultGoalTimeout,
		},
		Fetch:   DefaultFetchConfig(),
		Workers: est.Workers,
	}
}

// DefaultFetchConfig returns the --scan-url retry policy
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		Timeout: DefaultFetchTimeout,
		Retries: DefaultFetchRetries,
		Backoff: DefaultFetchBackoff,
	}
}

// LoadConfig loads the configuration from a YAML file. Keys missing from the file keep
// their defaults; the result is validated before it is returned.
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

// Validate checks every section. Errors are *ConfigurationError.
func (c *Config) Validate() error {
	if _, err := NewTemplateModel(c.Template); err != nil {
		return err
	}
	if err := c.EstimatorConfig().Validate(); err != nil {
		return err
	}

	if t := c.Bridge.GetThreshold(); t < 0 {
		return configErrorf("bridge.threshold", "must not be negative, got %v", t)
	}
	if c.Bridge.SensorFrame == "" {
		return configErrorf("bridge.sensorFrame", "is required")
	}
	if c.Bridge.BaseFrame == "" {
		return configErrorf("bridge.baseFrame", "is required")
	}
	if c.Bridge.FrameTimeout <= 0 {
		return configErrorf("bridge.frameTimeout", "must be positive, got %v", c.Bridge.FrameTimeout)
	}
	if c.Bridge.GoalTimeout <= 0 {
		return configErrorf("bridge.goalTimeout", "must be positive, got %v", c.Bridge.GoalTimeout)
	}

	if c.Fetch.Timeout <= 0 {
		return configErrorf("fetch.timeout", "must be positive, got %v", c.Fetch.Timeout)
	}
	if c.Fetch.Retries < 0 {
		return configErrorf("fetch.retries", "must not be negative, got %d", c.Fetch.Retries)
	}
	if c.Fetch.Backoff < 0 {
		return configErrorf("fetch.backoff", "must not be negative, got %v", c.Fetch.Backoff)
	}

	for i, f := range c.Frames {
		if f.Parent == "" || f.Child == "" {
			return configErrorf(fmt.Sprintf("frames[%d]", i), "parent and child are required")
		}
		if f.Parent == f.Child {
			return configErrorf(fmt.Sprintf("frames[%d]", i), "parent and child are both %q", f.Parent)
		}
	}

	return nil
}
