package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/norasector/pktlink/pkg/packet"
	"gopkg.in/yaml.v2"
)

const (
	DeviceLoopback = "loopback"
	DeviceFile     = "file"
	DeviceSerial   = "serial"

	ModulationNRZ = "nrz"
	ModulationFSK = "fsk"
)

type Config struct {
	AccessCode         string              `yaml:"access_code"`
	Threshold          *int                `yaml:"threshold"`
	UseWhitenerOffset  bool                `yaml:"use_whitener_offset"`
	SamplesPerSymbol   int                 `yaml:"samples_per_symbol"`
	BitsPerSymbol      int                 `yaml:"bits_per_symbol"`
	BlobPoolSize       int                 `yaml:"blob_pool_size"`
	BlobCapacity       int                 `yaml:"blob_capacity_bytes"`
	QueueCapacity      int                 `yaml:"queue_capacity"`
	ChunkSize          int                 `yaml:"chunk_size"`
	SymbolRate         int                 `yaml:"symbol_rate"`
	Device             string              `yaml:"device"`
	NoiseSigma         float64             `yaml:"noise_sigma"`
	NoiseSeed          uint64              `yaml:"noise_seed"`
	ChannelCutoff      float64             `yaml:"channel_cutoff_hz"`
	Modulation         string              `yaml:"modulation"`
	FrequencyOffset    float64             `yaml:"frequency_offset_hz"`
	RecordLocation     string              `yaml:"record_location"`
	PlaybackLocation   string              `yaml:"playback_location"`
	InputFile          string              `yaml:"input_file"`
	OutputDestinations []OutputDestination `yaml:"output_destinations"`
	Serial             struct {
		Port     string `yaml:"port"`
		BaudRate int    `yaml:"baud_rate"`
		// Zero keeps the device default, negative waits for shutdown.
		DrainTimeout time.Duration `yaml:"drain_timeout"`
	} `yaml:"serial"`
	StatusServer struct {
		Port int `yaml:"port"`
	} `yaml:"status_server"`
	InfluxDB struct {
		Host         string `yaml:"host"`
		Organization string `yaml:"organization"`
		Bucket       string `yaml:"bucket"`
	} `yaml:"influxdb"`
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
}

type OutputDestination struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

const (
	DefaultThreshold     = 12
	DefaultBlobPoolSize  = 64
	DefaultBlobCapacity  = 10000
	DefaultQueueCapacity = 4
	DefaultChunkSize     = 512
	DefaultSymbolRate    = 9600
	DefaultBaudRate      = 115200
	DefaultLogLevel      = "info"
)

// Load reads and parses a YAML file, then applies defaults and validates.
func Load(path string) (*Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(contents)
}

func Parse(contents []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(contents, &c); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) ApplyDefaults() {
	if c.Threshold == nil {
		t := DefaultThreshold
		c.Threshold = &t
	}
	if c.SamplesPerSymbol == 0 {
		c.SamplesPerSymbol = packet.DefaultSamplesPerSymbol
	}
	if c.BitsPerSymbol == 0 {
		c.BitsPerSymbol = packet.DefaultBitsPerSymbol
	}
	if c.BlobPoolSize == 0 {
		c.BlobPoolSize = DefaultBlobPoolSize
	}
	if c.BlobCapacity == 0 {
		c.BlobCapacity = DefaultBlobCapacity
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.SymbolRate == 0 {
		c.SymbolRate = DefaultSymbolRate
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = DefaultBaudRate
	}
	if c.Modulation == "" {
		c.Modulation = ModulationNRZ
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Device == "" {
		switch {
		case c.PlaybackLocation != "":
			c.Device = DeviceFile
		case c.Serial.Port != "":
			c.Device = DeviceSerial
		default:
			c.Device = DeviceLoopback
		}
	}
}

func (c *Config) Validate() error {
	var errs []error

	if _, err := packet.ParseAccessCode(c.AccessCode); err != nil {
		errs = append(errs, err)
	}
	if c.SamplesPerSymbol < 1 {
		errs = append(errs, fmt.Errorf("samples_per_symbol must be >= 1, got %d", c.SamplesPerSymbol))
	}
	if c.BitsPerSymbol < 1 || c.BitsPerSymbol > 8 {
		errs = append(errs, fmt.Errorf("bits_per_symbol must be in 1..8, got %d", c.BitsPerSymbol))
	}
	if c.Threshold != nil && *c.Threshold > packet.MaxAccessCodeLength {
		errs = append(errs, fmt.Errorf("threshold %d exceeds the access code length", *c.Threshold))
	}
	for name, v := range map[string]int{
		"blob_pool_size":      c.BlobPoolSize,
		"blob_capacity_bytes": c.BlobCapacity,
		"queue_capacity":      c.QueueCapacity,
		"chunk_size":          c.ChunkSize,
		"symbol_rate":         c.SymbolRate,
	} {
		if v < 1 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	if c.NoiseSigma < 0 {
		errs = append(errs, fmt.Errorf("noise_sigma must not be negative, got %f", c.NoiseSigma))
	}

	if nyquist := float64(c.SymbolRate*c.SamplesPerSymbol) / 2; c.ChannelCutoff < 0 || (c.ChannelCutoff > 0 && c.ChannelCutoff >= nyquist) {
		errs = append(errs, fmt.Errorf("channel_cutoff_hz must be in [0, %.0f), got %.0f", nyquist, c.ChannelCutoff))
	}

	switch c.Modulation {
	case ModulationNRZ:
		if c.FrequencyOffset != 0 {
			errs = append(errs, errors.New("frequency_offset_hz needs fsk modulation"))
		}
	case ModulationFSK:
		// the discriminator output changes sign past the deviation
		if deviation := float64(c.SymbolRate) / 4; math.Abs(c.FrequencyOffset) >= deviation {
			errs = append(errs, fmt.Errorf("frequency_offset_hz must be within ±%.0f, got %.0f", deviation, c.FrequencyOffset))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown modulation %q", c.Modulation))
	}

	switch c.Device {
	case DeviceLoopback:
	case DeviceFile:
		if c.PlaybackLocation == "" && c.RecordLocation == "" {
			errs = append(errs, errors.New("file device needs playback_location or record_location"))
		}
	case DeviceSerial:
		if c.Serial.Port == "" {
			errs = append(errs, errors.New("serial device needs serial.port"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown device %q", c.Device))
	}

	for _, dest := range c.OutputDestinations {
		if dest.Host == "" || dest.Port <= 0 {
			errs = append(errs, fmt.Errorf("bad output destination %s:%d", dest.Host, dest.Port))
		}
	}

	return errors.Join(errs...)
}

// CodecOptions is the frame format part of the config.
func (c *Config) CodecOptions() packet.Options {
	return packet.Options{
		AccessCode:       c.AccessCode,
		SamplesPerSymbol: c.SamplesPerSymbol,
		BitsPerSymbol:    c.BitsPerSymbol,
	}
}
