// Command demo reads the configured meter once and prints the voltage and
// then every measurement. Set SDM220_METER_MODE=fake to run without a meter.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/berfenger/sdm220mqtt/internal/config"
	"github.com/berfenger/sdm220mqtt/pkg/sdm220_modbus"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config errors", "error", err)
		os.Exit(1)
	}

	zapCfg := zap.NewDevelopmentConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	var reader sdm220_modbus.Reader
	if cfg.Meter.Mode == sdm220_modbus.READER_MODE_FAKE {
		reader = sdm220_modbus.CreateFakeReaderWithValidity(cfg.MonitorConfig.StalenessWindow())
	} else {
		deviceCfg, err := cfg.Meter.DeviceConfig(cfg.MonitorConfig.StalenessWindow())
		if err != nil {
			logger.Fatal("invalid meter config", zap.Error(err))
		}
		reader, err = sdm220_modbus.CreateDeviceReader(deviceCfg, logger, nil)
		if err != nil {
			logger.Fatal("could not create meter reader", zap.Error(err))
		}
	}

	meter := sdm220_modbus.NewMeter(reader)
	if err := meter.Open(); err != nil {
		logger.Fatal("could not open meter", zap.Error(err))
	}
	defer meter.Close()

	info := meter.Info()
	fmt.Printf("TESTING %s %s connection (%s)\n", info.Manufacturer, info.Model, info.Mode)

	voltage, _, err := meter.GetSingleValue("Voltage")
	if err != nil {
		logger.Error("could not read voltage", zap.Error(err))
	} else {
		fmt.Printf("U:      %v[V]\n", voltage)
	}

	readings, err := meter.GetAllValues()
	if err != nil {
		logger.Error("could not read all values", zap.Error(err))
		return
	}
	for _, r := range readings {
		fmt.Printf("%-24s %12.3f %s\n", r.Name, r.Value, r.Unit)
	}
}
