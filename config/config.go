// Package config loads modem settings from YAML files.
//
// A file mirrors the engine's configuration types:
//
//	stream:
//	  sample_rate_in: 48000
//	  sample_rate_out: 48000
//	  samples_per_frame: 1024
//	  sample_size_in: 4
//	  sample_size_out: 2
//	protocol:
//	  freq_delta: 6
//	  freq_start: 40
//	  frames_per_tx: 6
//	  bytes_per_tx: 2
//	  volume: 10
//	tx_mode: variable
//	log_level: info
//
// Omitted fields keep the engine defaults.
package config

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/opd-ai/tonemodem/protocol"
)

// Stream is the YAML form of protocol.StreamConfig.
type Stream struct {
	SampleRateIn    int `yaml:"sample_rate_in"`
	SampleRateOut   int `yaml:"sample_rate_out"`
	SamplesPerFrame int `yaml:"samples_per_frame"`
	SampleSizeIn    int `yaml:"sample_size_in"`
	SampleSizeOut   int `yaml:"sample_size_out"`
}

// Protocol is the YAML form of protocol.Params.
type Protocol struct {
	FreqDelta   int `yaml:"freq_delta"`
	FreqStart   int `yaml:"freq_start"`
	FramesPerTx int `yaml:"frames_per_tx"`
	BytesPerTx  int `yaml:"bytes_per_tx"`
	Volume      int `yaml:"volume"`
}

// Config is a complete modem configuration.
type Config struct {
	Stream   Stream   `yaml:"stream"`
	Protocol Protocol `yaml:"protocol"`
	TxMode   string   `yaml:"tx_mode"`
	LogLevel string   `yaml:"log_level"`
}

// Default returns the configuration matching the engine defaults.
func Default() *Config {
	s := protocol.DefaultStreamConfig()
	p := protocol.DefaultParams()
	return &Config{
		Stream: Stream{
			SampleRateIn:    s.SampleRateIn,
			SampleRateOut:   s.SampleRateOut,
			SamplesPerFrame: s.SamplesPerFrame,
			SampleSizeIn:    s.SampleSizeBytesIn,
			SampleSizeOut:   s.SampleSizeBytesOut,
		},
		Protocol: Protocol{
			FreqDelta:   p.FreqDelta,
			FreqStart:   p.FreqStart,
			FramesPerTx: p.FramesPerTx,
			BytesPerTx:  p.BytesPerTx,
			Volume:      p.Volume,
		},
		TxMode:   protocol.FixedLength.String(),
		LogLevel: logrus.InfoLevel.String(),
	}
}

// Load reads and validates a configuration file.
func Load(filename string) (*Config, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Load",
			"file":     filename,
			"error":    err.Error(),
		}).Error("Configuration rejected")
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML from r over the defaults and validates the result.
// Unknown keys are rejected.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration describes a usable session.
func (c *Config) Validate() error {
	if _, err := protocol.Derive(c.StreamConfig(), c.Params()); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := c.Mode(); err != nil {
		return fmt.Errorf("invalid tx_mode: %w", err)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	return nil
}

// StreamConfig converts the stream section.
func (c *Config) StreamConfig() protocol.StreamConfig {
	return protocol.StreamConfig{
		SampleRateIn:       c.Stream.SampleRateIn,
		SampleRateOut:      c.Stream.SampleRateOut,
		SamplesPerFrame:    c.Stream.SamplesPerFrame,
		SampleSizeBytesIn:  c.Stream.SampleSizeIn,
		SampleSizeBytesOut: c.Stream.SampleSizeOut,
	}
}

// Params converts the protocol section.
func (c *Config) Params() protocol.Params {
	return protocol.Params{
		FreqDelta:   c.Protocol.FreqDelta,
		FreqStart:   c.Protocol.FreqStart,
		FramesPerTx: c.Protocol.FramesPerTx,
		BytesPerTx:  c.Protocol.BytesPerTx,
		Volume:      c.Protocol.Volume,
	}
}

// Mode parses the tx_mode value.
func (c *Config) Mode() (protocol.TxMode, error) {
	return protocol.ParseTxMode(c.TxMode)
}

// ApplyLogLevel sets the logrus standard logger level.
func (c *Config) ApplyLogLevel() error {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	return nil
}
