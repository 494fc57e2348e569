package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/sdm220mqtt/internal/adapter/actor"
	"github.com/berfenger/sdm220mqtt/internal/config"
	"github.com/berfenger/sdm220mqtt/internal/core/actor"
	"github.com/berfenger/sdm220mqtt/internal/core/domain"
	"github.com/berfenger/sdm220mqtt/internal/server"
	"github.com/berfenger/sdm220mqtt/internal/util/actorutil"
	"github.com/berfenger/sdm220mqtt/pkg/sdm220_modbus"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/coreos/go-systemd/daemon"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")
	daemon.SdNotify(false, daemon.SdNotifyStopping)

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

// systemdWatchdog pings the systemd watchdog while the actor tree reports healthy.
func systemdWatchdog(root *pactor.RootContext, master *pactor.PID, logger *zap.Logger) {
	interval, err := daemon.SdWatchdogEnabled(true)
	if err != nil || interval == 0 {
		return
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for range ticker.C {
		res, err := root.RequestFuture(master, domain.ActorHealthRequest{}, interval/3).Result()
		if err != nil {
			logger.Warn("watchdog health check failed", zap.Error(err))
			continue
		}
		if health, ok := res.(domain.ActorHealthResponse); ok && health.Healthy {
			daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}

func main() {

	// load and print config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	config.SafePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	// init Modbus actor provider
	modbusProv, err := modbusActorProvider(cfg, logger)
	if err != nil {
		logger.Error("could not create meter reader", zap.Error(err))
		return
	}

	es := &eventstream.EventStream{}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, es, modbusProv, mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		logger.Error("could not spawn master actor", zap.Error(err))
		return
	}

	server := server.NewServer(*cfg, ctx, pid, es, logger)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	daemon.SdNotify(false, daemon.SdNotifyReady)
	go systemdWatchdog(ctx, pid, logger)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func meterReader(cfg *config.Config, logger *zap.Logger) (sdm220_modbus.Reader, error) {
	switch cfg.Meter.Mode {
	case sdm220_modbus.READER_MODE_FAKE:
		return sdm220_modbus.CreateFakeReaderWithValidity(cfg.MonitorConfig.StalenessWindow()), nil
	default:
		deviceCfg, err := cfg.Meter.DeviceConfig(cfg.MonitorConfig.StalenessWindow())
		if err != nil {
			return nil, err
		}
		return sdm220_modbus.CreateDeviceReader(deviceCfg, logger, nil)
	}
}

func modbusActorProvider(cfg *config.Config, logger *zap.Logger) (actor.ModbusActorProvider, error) {

	reader, err := meterReader(cfg, logger)
	if err != nil {
		return nil, err
	}

	meter := sdm220_modbus.NewMeter(reader)

	return func() *adactor.ModbusActor {
		return adactor.NewModbusActor(meter, cfg.MonitorConfig.ReadTimeout(), logger)
	}, nil
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}
