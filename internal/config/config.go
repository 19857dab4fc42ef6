// Package config is used to load the configuration file
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type trace struct {
	Output    string `json:"output"`
	Module    string `json:"module"`
	Watchlist string `json:"watchlist"`
	Short     bool   `json:"short"`
	Rdtsc     bool   `json:"rdtsc"`
	Follow    int    `json:"follow"`
	DB        string `json:"db"`
}

// Config is the configuration struct
type Config struct {
	Trace trace `json:"trace"`
}

func (c *Config) verify() error {
	if c.Trace.Output == "" {
		c.Trace.Output = "trace.log"
	}
	// anything past recursive means recursive
	if c.Trace.Follow < 0 || c.Trace.Follow > 2 {
		c.Trace.Follow = 2
	}
	return nil
}

// LoadConfig loads the configuration file
func LoadConfig() (*Config, error) {
	var c *Config

	if err := viper.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %v", err)
	}

	if err := c.verify(); err != nil {
		return nil, fmt.Errorf("config: failed to verify: %v", err)
	}

	return c, nil
}
