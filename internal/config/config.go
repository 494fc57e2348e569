package config

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/berfenger/sdm220mqtt/pkg/sdm220_modbus"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel      zapcore.Level
	Meter         MeterConfig   `mapstructure:"meter"`
	MQTT          MQTTConfig    `mapstructure:"mqtt"`
	MonitorConfig MonitorConfig `mapstructure:"monitor"`
	Port          uint          `mapstructure:"port"`
	HttpLog       bool          `mapstructure:"http_log"`
}

type MeterConfig struct {
	Mode          string
	SerialPort    string `mapstructure:"serial_port"`
	SlaveAddress  uint8  `mapstructure:"slave_address"`
	BaudRate      uint   `mapstructure:"baud_rate"`
	Parity        string
	DataBits      uint   `mapstructure:"data_bits"`
	StopBits      uint   `mapstructure:"stop_bits"`
	TimeoutMillis uint32 `mapstructure:"timeout_millis"`
}

type MonitorConfig struct {
	PollIntervalMillis    uint32 `mapstructure:"poll_interval_millis"`
	StalenessWindowMillis uint32 `mapstructure:"staleness_window_millis"`
	ReadTimeoutMillis     uint32 `mapstructure:"read_timeout_millis"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func (c MeterConfig) DeviceConfig(validFor time.Duration) (sdm220_modbus.DeviceConfig, error) {
	parity, err := sdm220_modbus.ParseParity(c.Parity)
	if err != nil {
		return sdm220_modbus.DeviceConfig{}, err
	}
	return sdm220_modbus.DeviceConfig{
		SerialPort:   c.SerialPort,
		SlaveAddress: c.SlaveAddress,
		BaudRate:     c.BaudRate,
		Parity:       parity,
		DataBits:     c.DataBits,
		StopBits:     c.StopBits,
		Timeout:      time.Duration(c.TimeoutMillis) * time.Millisecond,
		ValidFor:     validFor,
	}, nil
}

func (c MonitorConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

func (c MonitorConfig) StalenessWindow() time.Duration {
	return time.Duration(c.StalenessWindowMillis) * time.Millisecond
}

func (c MonitorConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMillis) * time.Millisecond
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
