package util

import (
	"github.com/berfenger/sdm220mqtt/internal/config"
	"github.com/berfenger/sdm220mqtt/pkg/sdm220_modbus"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Meter: config.MeterConfig{
			Mode:          sdm220_modbus.READER_MODE_FAKE,
			SerialPort:    "/dev/null",
			SlaveAddress:  sdm220_modbus.DEFAULT_SLAVE_ADDRESS,
			BaudRate:      sdm220_modbus.DEFAULT_BAUD_RATE,
			Parity:        string(sdm220_modbus.PARITY_EVEN),
			DataBits:      sdm220_modbus.DEFAULT_DATA_BITS,
			StopBits:      sdm220_modbus.DEFAULT_STOP_BITS,
			TimeoutMillis: 100,
		},
		MQTT: config.MQTTConfig{
			Host:              "localhost",
			Port:              1883,
			BaseTopic:         "sdm220",
			HADiscoveryEnable: true,
			HADiscoveryTopic:  "homeassistant",
		},
		MonitorConfig: config.MonitorConfig{
			PollIntervalMillis:    1000,
			StalenessWindowMillis: 1000,
			ReadTimeoutMillis:     1000,
		},
		Port: 8080,
	}
}
