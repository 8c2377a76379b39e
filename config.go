package audition

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the engine and audition settings. Zero values are not
// meaningful; start from DefaultConfig.
type Config struct {
	SampleRate     int     `json:"sampleRate" yaml:"sampleRate"`
	MaxVoices      int     `json:"maxVoices" yaml:"maxVoices"`
	BlockSize      int     `json:"blockSize" yaml:"blockSize"`
	AttackSeconds  float64 `json:"attackSeconds" yaml:"attackSeconds"`
	ReleaseSeconds float64 `json:"releaseSeconds" yaml:"releaseSeconds"`
	MasterGain     float64 `json:"masterGain" yaml:"masterGain"`

	// CommandQueueSize bounds the number of control intents waiting for the
	// next render block.
	CommandQueueSize int `json:"commandQueueSize" yaml:"commandQueueSize"`
	// PreviewVolume is the 0..1 volume of drag and draw previews.
	PreviewVolume float64 `json:"previewVolume" yaml:"previewVolume"`
}

func DefaultConfig() Config {
	return Config{
		SampleRate:       44100,
		MaxVoices:        32,
		BlockSize:        512,
		AttackSeconds:    0.01,
		ReleaseSeconds:   0.03,
		MasterGain:       0.2,
		CommandQueueSize: 1024,
		PreviewVolume:    0.2,
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sampleRate must be positive, got %d", c.SampleRate))
	}
	if c.MaxVoices <= 0 {
		errs = append(errs, fmt.Errorf("maxVoices must be positive, got %d", c.MaxVoices))
	}
	if c.BlockSize <= 0 {
		errs = append(errs, fmt.Errorf("blockSize must be positive, got %d", c.BlockSize))
	}
	if !(c.AttackSeconds > 0) || math.IsInf(c.AttackSeconds, 0) {
		errs = append(errs, fmt.Errorf("attackSeconds must be positive, got %v", c.AttackSeconds))
	}
	if !(c.ReleaseSeconds > 0) || math.IsInf(c.ReleaseSeconds, 0) {
		errs = append(errs, fmt.Errorf("releaseSeconds must be positive, got %v", c.ReleaseSeconds))
	}
	if !(c.MasterGain >= 0 && c.MasterGain <= 1) {
		errs = append(errs, fmt.Errorf("masterGain must be in [0,1], got %v", c.MasterGain))
	}
	if c.CommandQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("commandQueueSize must be positive, got %d", c.CommandQueueSize))
	}
	if !(c.PreviewVolume >= 0 && c.PreviewVolume <= 1) {
		errs = append(errs, fmt.Errorf("previewVolume must be in [0,1], got %v", c.PreviewVolume))
	}
	return errors.Join(errs...)
}

// ParseConfig parses a .json or .yml config on top of the defaults, so keys
// missing from the data keep their default values.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if errJSON := json.Unmarshal(data, &cfg); errJSON != nil {
		cfg = DefaultConfig()
		if errYaml := yaml.Unmarshal(data, &cfg); errYaml != nil {
			return Config{}, fmt.Errorf("the config could not be parsed as .json (%v) or .yml (%v)", errJSON, errYaml)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads a config file. An empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("could not read config %v: %w", path, err)
	}
	return ParseConfig(data)
}
