// Package config loads the fmtoy settings file. Command line flags are
// applied on top of it by the caller.
package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
)

// Output kinds.
const (
	OutputOto  = "oto"
	OutputWAV  = "wav"
	OutputNull = "null"
)

// Config holds every setting of the player.
type Config struct {
	Chip       string   `toml:"chip"`
	Clock      int      `toml:"clock"` // 0 = chip default
	SampleRate int      `toml:"sample_rate"`
	Buffer     int      `toml:"buffer"` // frames per render block
	Output     string   `toml:"output"`
	WAV        string   `toml:"wav"`
	Device     string   `toml:"device"` // MIDI input name
	BendRange  float64  `toml:"bend_range"`
	Gain       float64  `toml:"gain"`
	Verbose    bool     `toml:"verbose"`
	Voices     []string `toml:"voices"`
}

// Default returns the settings used when neither file nor flag sets a
// value.
func Default() Config {
	return Config{
		Chip:       "ym2151",
		SampleRate: 44100,
		Buffer:     1024,
		Output:     OutputOto,
		WAV:        "fmtoy.wav",
		BendRange:  2,
		Gain:       1,
	}
}

// Load reads a TOML file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fault.Wrap(err, fmsg.With("load config "+path))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fault.Wrap(err, fmsg.With("config "+path))
	}
	return cfg, nil
}

// Validate checks ranges and normalizes names.
func (c *Config) Validate() error {
	c.Chip = strings.ToLower(strings.TrimSpace(c.Chip))
	c.Output = strings.ToLower(strings.TrimSpace(c.Output))
	switch {
	case c.Chip == "":
		return fmt.Errorf("chip is empty")
	case c.Clock < 0:
		return fmt.Errorf("clock %d is negative", c.Clock)
	case c.SampleRate < 8000 || c.SampleRate > 192000:
		return fmt.Errorf("sample rate %d out of range 8000-192000", c.SampleRate)
	case c.Buffer < 16 || c.Buffer > 65536:
		return fmt.Errorf("buffer %d out of range 16-65536", c.Buffer)
	case c.BendRange <= 0 || c.BendRange > 48:
		return fmt.Errorf("bend range %g out of range", c.BendRange)
	case c.Gain <= 0 || c.Gain > 16:
		return fmt.Errorf("gain %g out of range", c.Gain)
	}
	switch c.Output {
	case OutputOto, OutputNull:
	case OutputWAV:
		if c.WAV == "" {
			return fmt.Errorf("wav output needs a file name")
		}
	default:
		return fmt.Errorf("unknown output %q", c.Output)
	}
	return nil
}

// Encode renders c as TOML, used to print the effective settings.
func (c Config) Encode() (string, error) {
	var b strings.Builder
	if err := toml.NewEncoder(&b).Encode(c); err != nil {
		return "", err
	}
	return b.String(), nil
}
