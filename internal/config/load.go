package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. VIDSAMPLE_TARGET_FPS.
const EnvPrefix = "VIDSAMPLE"

// Configuration keys shared by the config file, environment and CLI flags.
const (
	KeyInput              = "input"
	KeyOutputDir          = "output"
	KeyLogDir             = "log_dir"
	KeyStorePath          = "store"
	KeyPreset             = "preset"
	KeyTargetFPS          = "target_fps"
	KeyFirstFrame         = "first_frame"
	KeyQueueCapacity      = "queue_capacity"
	KeyCheckpointInterval = "checkpoint_interval"
	KeySeekThreshold      = "seek_threshold"
)

// NewViper returns a viper instance that reads VIDSAMPLE_* environment
// variables and an optional YAML config file. With an empty configPath,
// vidsample.yaml is looked up in the working directory and in
// $HOME/.config/vidsample; a missing file is not an error.
func NewViper(configPath string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("vidsample")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/vidsample")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return v, nil
}

// FromViper builds a validated Config. A preset is applied first; explicitly
// set keys override its values.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := NewConfig(v.GetString(KeyInput), v.GetString(KeyOutputDir), v.GetString(KeyLogDir))
	cfg.StorePath = v.GetString(KeyStorePath)

	if name := v.GetString(KeyPreset); name != "" {
		preset, err := ParsePreset(name)
		if err != nil {
			return nil, err
		}
		cfg.ApplyPreset(preset)
	}

	if v.IsSet(KeyTargetFPS) {
		cfg.TargetFPS = v.GetFloat64(KeyTargetFPS)
	}
	if v.IsSet(KeyFirstFrame) {
		cfg.FirstFrame = v.GetInt(KeyFirstFrame)
	}
	if v.IsSet(KeyQueueCapacity) {
		cfg.QueueCapacity = v.GetInt(KeyQueueCapacity)
	}
	if v.IsSet(KeyCheckpointInterval) {
		cfg.CheckpointInterval = v.GetInt(KeyCheckpointInterval)
	}
	if v.IsSet(KeySeekThreshold) {
		cfg.SeekThreshold = v.GetInt(KeySeekThreshold)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
