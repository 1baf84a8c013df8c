// Package config loads the ground link's JSON configuration and exposes
// typed views of it. Defaults are registered up front so a minimal config
// file only needs the vehicle slots.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// VehicleConfig describes one configured vehicle slot.
type VehicleConfig struct {
	ID     string `json:"id" mapstructure:"id"`
	Name   string `json:"name" mapstructure:"name"`
	Listen string `json:"listen" mapstructure:"listen"`
}

// LinkConfig holds per-link connection and retry settings.
type LinkConfig struct {
	HeartbeatTimeout time.Duration `json:"heartbeatTimeout" mapstructure:"heartbeatTimeout"`
	ReadTimeout      time.Duration `json:"readTimeout" mapstructure:"readTimeout"`
	RetryBackoff     time.Duration `json:"retryBackoff" mapstructure:"retryBackoff"`
}

// MissionConfig holds mission transfer deadlines.
type MissionConfig struct {
	DownloadTimeout time.Duration `json:"downloadTimeout" mapstructure:"downloadTimeout"`
	UploadTimeout   time.Duration `json:"uploadTimeout" mapstructure:"uploadTimeout"`
}

// TelemetryConfig holds cache and fanout sizing.
type TelemetryConfig struct {
	Capacity         int `json:"capacity" mapstructure:"capacity"`
	SubscriberBuffer int `json:"subscriberBuffer" mapstructure:"subscriberBuffer"`
}

// Load reads configuration from a JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("link.heartbeatTimeout", "10s")
	viper.SetDefault("link.readTimeout", "1s")
	viper.SetDefault("link.retryBackoff", "1s")

	viper.SetDefault("mission.downloadTimeout", "8s")
	viper.SetDefault("mission.uploadTimeout", "12s")

	viper.SetDefault("telemetry.capacity", 500)
	viper.SetDefault("telemetry.subscriberBuffer", 64)

	viper.SetDefault("ws.listenAddr", ":8000")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "groundlink")
	viper.SetDefault("db.sqlitePath", "./groundlink.db")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "groundlink")
	viper.SetDefault("influx.bucket", "telemetry")

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.brokerUrl", "tcp://localhost:1883")
	viper.SetDefault("mqtt.clientId", "groundlink")
	viper.SetDefault("mqtt.qos", 1)

	viper.SetConfigName("groundlink.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetVehicles returns the configured vehicle slots.
func GetVehicles() []VehicleConfig {
	var vehicles []VehicleConfig
	_ = viper.UnmarshalKey("vehicles", &vehicles)
	return vehicles
}

// GetLinkConfig returns link timing settings.
func GetLinkConfig() LinkConfig {
	return LinkConfig{
		HeartbeatTimeout: viper.GetDuration("link.heartbeatTimeout"),
		ReadTimeout:      viper.GetDuration("link.readTimeout"),
		RetryBackoff:     viper.GetDuration("link.retryBackoff"),
	}
}

// GetMissionConfig returns mission transfer deadlines.
func GetMissionConfig() MissionConfig {
	return MissionConfig{
		DownloadTimeout: viper.GetDuration("mission.downloadTimeout"),
		UploadTimeout:   viper.GetDuration("mission.uploadTimeout"),
	}
}

// GetTelemetryConfig returns telemetry cache sizing.
func GetTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Capacity:         viper.GetInt("telemetry.capacity"),
		SubscriberBuffer: viper.GetInt("telemetry.subscriberBuffer"),
	}
}
