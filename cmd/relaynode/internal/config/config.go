// Package config loads the relaynode demo binary's configuration using
// viper, following the mapstructure-tagged-struct-plus-SetDefault idiom
// used by firestige-Otus/internal/config and marmos91-dittofs/pkg/config.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// NodeConfig configures one of the two demo engines.
type NodeConfig struct {
	// ID is this node's proto.NodeID.
	ID uint8 `mapstructure:"id"`
	// Dir is the directory the node serves content from.
	Dir string `mapstructure:"dir"`
}

// MQTTConfig configures the optional mqttsink events.Sink.
type MQTTConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Broker  string `mapstructure:"broker"`
	Topic   string `mapstructure:"topic"`
}

// TopologyConfig configures the optional topology.Server.
type TopologyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// ObservabilityConfig groups the optional peripheral sinks.
type ObservabilityConfig struct {
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Topology TopologyConfig `mapstructure:"topology"`
}

// Config is the top-level relaynode demo configuration.
type Config struct {
	FileNode      NodeConfig          `mapstructure:"file_node"`
	MediaNode     NodeConfig          `mapstructure:"media_node"`
	LogLevel      string              `mapstructure:"log_level"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// Load reads configuration from environment variables prefixed RELAYNODE_,
// the config file at path (if non-empty), and defaults, in that order of
// precedence: an environment variable overrides the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RELAYNODE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("file_node.id", 1)
	v.SetDefault("file_node.dir", "./public")
	v.SetDefault("media_node.id", 2)
	v.SetDefault("media_node.dir", "./media")
	v.SetDefault("log_level", "info")
	v.SetDefault("observability.mqtt.enabled", false)
	v.SetDefault("observability.mqtt.topic", "relaynode/events")
	v.SetDefault("observability.topology.enabled", false)
	v.SetDefault("observability.topology.addr", ":8090")
}
