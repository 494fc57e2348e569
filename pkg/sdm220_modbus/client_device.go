package sdm220_modbus

import (
	"errors"
	"fmt"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

const (
	DEFAULT_SLAVE_ADDRESS = 1
	DEFAULT_BAUD_RATE     = 9600
	DEFAULT_DATA_BITS     = 8
	DEFAULT_STOP_BITS     = 1
	DEFAULT_TIMEOUT       = 100 * time.Millisecond
)

type Parity string

const (
	PARITY_NONE Parity = "none"
	PARITY_EVEN Parity = "even"
	PARITY_ODD  Parity = "odd"
)

func ParseParity(s string) (Parity, error) {
	switch Parity(s) {
	case PARITY_NONE, PARITY_EVEN, PARITY_ODD:
		return Parity(s), nil
	}
	return "", fmt.Errorf("invalid parity %q. valid values are none, even, odd", s)
}

func (p Parity) modbusParity() uint {
	switch p {
	case PARITY_NONE:
		return modbus.PARITY_NONE
	case PARITY_ODD:
		return modbus.PARITY_ODD
	default:
		return modbus.PARITY_EVEN
	}
}

// DeviceConfig holds the serial link settings. They are fixed once the
// reader is created.
type DeviceConfig struct {
	SerialPort   string
	SlaveAddress uint8
	BaudRate     uint
	Parity       Parity
	DataBits     uint
	StopBits     uint
	Timeout      time.Duration
	ValidFor     time.Duration
}

func DefaultDeviceConfig(serialPort string) DeviceConfig {
	return DeviceConfig{
		SerialPort:   serialPort,
		SlaveAddress: DEFAULT_SLAVE_ADDRESS,
		BaudRate:     DEFAULT_BAUD_RATE,
		Parity:       PARITY_EVEN,
		DataBits:     DEFAULT_DATA_BITS,
		StopBits:     DEFAULT_STOP_BITS,
		Timeout:      DEFAULT_TIMEOUT,
		ValidFor:     DEFAULT_VALID_FOR,
	}
}

type DeviceReader struct {
	ModbusClient
	config    DeviceConfig
	registers *RegisterMap
	logger    *zap.Logger
	open      bool
}

func CreateDeviceReader(cfg DeviceConfig, logger *zap.Logger, instrumentation *ModbusInstrument) (*DeviceReader, error) {
	if cfg.SerialPort == "" {
		return nil, errors.New("sdm220: serial port is required")
	}
	if cfg.SlaveAddress == 0 {
		cfg.SlaveAddress = DEFAULT_SLAVE_ADDRESS
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:      fmt.Sprintf("rtu://%s", cfg.SerialPort),
		Speed:    cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   cfg.Parity.modbusParity(),
		StopBits: cfg.StopBits,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	err = client.SetUnitId(cfg.SlaveAddress)
	if err != nil {
		return nil, err
	}
	err = client.SetEncoding(modbus.BIG_ENDIAN, modbus.HIGH_WORD_FIRST)
	if err != nil {
		return nil, err
	}

	var inst []ModbusInstrument
	logInst := traceLoggerInstrumentation(logger.With(zap.String("target", "sdm220")).With(zap.Uint8("slave", cfg.SlaveAddress)))
	if logInst != nil {
		inst = append(inst, *logInst)
	}
	if instrumentation != nil {
		inst = append(inst, *instrumentation)
	}
	return NewDeviceReader(client, cfg, logger, inst...), nil
}

// NewDeviceReader builds a reader over an existing transport.
func NewDeviceReader(transport RegisterTransport, cfg DeviceConfig, logger *zap.Logger, instrumentation ...ModbusInstrument) *DeviceReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeviceReader{
		ModbusClient: ModbusClient{
			client:     transport,
			instrument: instrumentation,
		},
		config:    cfg,
		registers: NewRegisterMapWithValidity(cfg.ValidFor),
		logger:    logger,
	}
}

func (reader *DeviceReader) Open() error {
	if reader.open {
		return nil
	}
	if err := reader.client.Open(); err != nil {
		return err
	}
	reader.open = true
	return nil
}

func (reader *DeviceReader) Close() error {
	if !reader.open {
		return nil
	}
	reader.open = false
	return reader.client.Close()
}

func (reader *DeviceReader) Info() MeterInfo {
	return MeterInfo{
		Manufacturer: "Eastron",
		Model:        "SDM220",
		Mode:         READER_MODE_DEVICE,
		Port:         reader.config.SerialPort,
		SlaveAddress: reader.config.SlaveAddress,
	}
}

func (reader *DeviceReader) Registers() *RegisterMap {
	return reader.registers
}

func (reader *DeviceReader) RefreshOne(name string) error {
	def, ok := reader.registers.GetDefinition(name)
	if !ok {
		return nil
	}
	return reader.refresh(def)
}

// RefreshAll reads every measurement in table order and stops at the first
// failure. Measurements read before the failure keep their new values.
func (reader *DeviceReader) RefreshAll() error {
	for _, def := range reader.registers.Definitions() {
		if err := reader.refresh(def); err != nil {
			return err
		}
	}
	return nil
}

func (reader *DeviceReader) refresh(def MeasurementDefinition) error {
	value, err := reader.readFloat32(def.Address)
	if err != nil {
		reader.logger.Debug("sdm220: read failed", zap.String("measurement", def.Name), zap.Error(err))
		return &DeviceCommunicationError{
			Name:    def.Name,
			Address: def.Address,
			Err:     err,
		}
	}
	reader.registers.set(def.Name, float64(value))
	return nil
}

func traceLoggerInstrumentation(logger *zap.Logger) *ModbusInstrument {
	if !logger.Core().Enabled(zap.DebugLevel) {
		return nil
	}
	return &ModbusInstrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			logger.Debug("modbus timing", zap.String("fn", fnName), zap.Int64("millis", readTime.Milliseconds()))
		},
	}
}
