// File: internal/config/input_config.go
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// InputConfig holds the delays between synthesized input events. The
// defaults are the timings the automation has always used; they are exposed
// so slow pages can be given more room.
type InputConfig struct {
	// Between press and release of a single click.
	ClickHold time.Duration `mapstructure:"click_hold" yaml:"click_hold"`
	// Between the two clicks of a double click.
	DoubleClickGap time.Duration `mapstructure:"double_click_gap" yaml:"double_click_gap"`
	// After the press and after the move of a drag.
	DragStep time.Duration `mapstructure:"drag_step" yaml:"drag_step"`
	// After each key in a multi-key sequence.
	KeyInterval time.Duration `mapstructure:"key_interval" yaml:"key_interval"`
}

// DefaultInputConfig returns the standard delays.
func DefaultInputConfig() InputConfig {
	return InputConfig{
		ClickHold:      50 * time.Millisecond,
		DoubleClickGap: 150 * time.Millisecond,
		DragStep:       50 * time.Millisecond,
		KeyInterval:    10 * time.Millisecond,
	}
}

func setInputDefaults(v *viper.Viper) {
	d := DefaultInputConfig()
	v.SetDefault("input.click_hold", d.ClickHold)
	v.SetDefault("input.double_click_gap", d.DoubleClickGap)
	v.SetDefault("input.drag_step", d.DragStep)
	v.SetDefault("input.key_interval", d.KeyInterval)
}

// Validate rejects negative delays.
func (i InputConfig) Validate() error {
	if i.ClickHold < 0 || i.DoubleClickGap < 0 || i.DragStep < 0 || i.KeyInterval < 0 {
		return errors.New("input delays must not be negative")
	}
	return nil
}
