// Package config reads and updates flintdbg launch configurations. The
// file is plain JSON; unknown keys are preserved across saves.
package config

import (
	"fmt"
	"os"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/multierr"
)

// DefaultAddress is used when the file omits the agent address.
const DefaultAddress = "127.0.0.1:5555"

// LaunchConfig describes how flintdbg connects to and provisions a target.
type LaunchConfig struct {
	// Address is the agent's TCP address.
	Address string

	// MainClass is the class whose main method runs on restart.
	MainClass string

	// Install lists files uploaded to the device before running.
	Install []string

	// Watch re-installs entries of Install when they change on disk.
	Watch bool

	// StopOnException enables the device's exception breakpoint mode.
	StopOnException bool
}

// Load reads a launch configuration file. Field problems are collected so
// one pass reports everything wrong with the file.
func Load(path string) (*LaunchConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("config %s: not valid JSON", path)
	}

	root := gjson.ParseBytes(raw)
	cfg := &LaunchConfig{
		Address:         DefaultAddress,
		StopOnException: true,
	}

	var errs error
	if v := root.Get("address"); v.Exists() {
		cfg.Address = v.String()
	}
	if v := root.Get("mainClass"); v.Exists() {
		cfg.MainClass = v.String()
	} else {
		errs = multierr.Append(errs, fmt.Errorf("config %s: missing mainClass", path))
	}
	if v := root.Get("install"); v.Exists() {
		for _, item := range v.Array() {
			if item.Type != gjson.String {
				errs = multierr.Append(errs, fmt.Errorf("config %s: install entries must be strings", path))
				continue
			}
			cfg.Install = append(cfg.Install, item.String())
		}
	}
	if v := root.Get("watch"); v.Exists() {
		cfg.Watch = v.Bool()
	}
	if v := root.Get("stopOnException"); v.Exists() {
		cfg.StopOnException = v.Bool()
	}

	if errs != nil {
		return nil, errs
	}
	return cfg, nil
}

// Save writes cfg back into path, updating only the keys this package
// owns. Other keys in the file are left as they are.
func Save(path string, cfg *LaunchConfig) error {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		raw = []byte("{}")
	} else if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	out := string(raw)
	for _, set := range []struct {
		key   string
		value interface{}
	}{
		{"address", cfg.Address},
		{"mainClass", cfg.MainClass},
		{"install", cfg.Install},
		{"watch", cfg.Watch},
		{"stopOnException", cfg.StopOnException},
	} {
		out, err = sjson.Set(out, set.key, set.value)
		if err != nil {
			return fmt.Errorf("set %s: %w", set.key, err)
		}
	}

	if err := os.WriteFile(path, []byte(out), 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
