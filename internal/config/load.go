package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/berfenger/sdm220mqtt/pkg/sdm220_modbus"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Load reads the configuration from defaults, SDM220_* environment variables
// and the optional YAML file named by CONFIG_FILE.
func Load() (*Config, error) {

	// alias PORT => SDM220_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("SDM220_PORT", port)
	}

	v := viper.New()
	setConfigDefaults(v)

	v.SetEnvPrefix("sdm220")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			v.SetConfigFile(cfgFile)

			err = v.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	err := v.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	cfg.LogLevel = parseLogLevel(v.GetString("log_level"))

	// check and fix base topic
	baseTopic, err := CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check meter
	switch cfg.Meter.Mode {
	case sdm220_modbus.READER_MODE_DEVICE:
		if cfg.Meter.SerialPort == "" {
			return nil, errors.New("config param meter.serial_port is required in device mode")
		}
	case sdm220_modbus.READER_MODE_FAKE:
	default:
		return nil, fmt.Errorf("config param meter.mode should be %s or %s", sdm220_modbus.READER_MODE_DEVICE, sdm220_modbus.READER_MODE_FAKE)
	}
	if _, err := sdm220_modbus.ParseParity(cfg.Meter.Parity); err != nil {
		return nil, fmt.Errorf("config param meter.parity: %w", err)
	}
	if cfg.Meter.SlaveAddress < 1 || cfg.Meter.SlaveAddress > 247 {
		return nil, errors.New("config param meter.slave_address should be between 1 and 247")
	}

	// check bounds
	if cfg.MonitorConfig.PollIntervalMillis < 1000 {
		return nil, errors.New("config param monitor.poll_interval_millis should be >= 1000")
	}
	if cfg.Meter.TimeoutMillis == 0 {
		return nil, errors.New("config param meter.timeout_millis should be > 0")
	}

	return &cfg, nil
}

func parseLogLevel(level string) zapcore.Level {
	switch level {
	case "trace":
		return zap.DebugLevel
	case "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "error":
		return zap.ErrorLevel
	case "warn":
		return zap.WarnLevel
	case "fatal":
		return zap.FatalLevel
	default:
		return zap.InfoLevel
	}
}

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "warn")
	v.SetDefault("meter.mode", sdm220_modbus.READER_MODE_DEVICE)
	v.SetDefault("meter.serial_port", "/dev/ttyUSB0")
	v.SetDefault("meter.slave_address", sdm220_modbus.DEFAULT_SLAVE_ADDRESS)
	v.SetDefault("meter.baud_rate", sdm220_modbus.DEFAULT_BAUD_RATE)
	v.SetDefault("meter.parity", string(sdm220_modbus.PARITY_EVEN))
	v.SetDefault("meter.data_bits", sdm220_modbus.DEFAULT_DATA_BITS)
	v.SetDefault("meter.stop_bits", sdm220_modbus.DEFAULT_STOP_BITS)
	v.SetDefault("meter.timeout_millis", 100)
	v.SetDefault("mqtt.host", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.ha_discovery_enable", false)
	v.SetDefault("mqtt.base_topic", "sdm220")
	v.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	v.SetDefault("monitor.poll_interval_millis", 5000)
	v.SetDefault("monitor.staleness_window_millis", 1000)
	v.SetDefault("monitor.read_timeout_millis", 3000)
	v.SetDefault("port", 8080)
}

func SafePrintConfig(cfg Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
