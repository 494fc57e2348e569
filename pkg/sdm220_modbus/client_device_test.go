package sdm220_modbus

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// stubTransport serves float values per address and can fail on the n-th read.
type stubTransport struct {
	values  map[uint16]float32
	failOn  int
	failErr error
	delay   time.Duration
	reads   []uint16
	regType []modbus.RegType
	opened  int
	closed  int
}

func (s *stubTransport) Open() error {
	s.opened++
	return nil
}

func (s *stubTransport) Close() error {
	s.closed++
	return nil
}

func (s *stubTransport) ReadFloat32(addr uint16, regType modbus.RegType) (float32, error) {
	s.reads = append(s.reads, addr)
	s.regType = append(s.regType, regType)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.failOn > 0 && len(s.reads) == s.failOn {
		return 0, s.failErr
	}
	return s.values[addr], nil
}

func testDeviceReader(transport RegisterTransport) *DeviceReader {
	return NewDeviceReader(transport, DefaultDeviceConfig("/dev/ttyUSB0"), zap.Must(zap.NewDevelopment()))
}

func TestDeviceRefreshOne(t *testing.T) {

	assert := assert.New(t)

	transport := &stubTransport{values: map[uint16]float32{0x0000: 230.5}}
	meter := NewMeter(testDeviceReader(transport))

	err := meter.Reader().RefreshOne("Voltage")
	assert.NoError(err)

	value, ok, err := meter.GetSingleValue("Voltage")
	assert.NoError(err)
	assert.True(ok)
	assert.Equal(230.5, value)

	assert.Equal([]uint16{0x0000}, transport.reads)
	for _, rt := range transport.regType {
		assert.Equal(modbus.INPUT_REGISTER, rt, "function code 4")
	}
}

func TestDeviceRefreshOneUnknown(t *testing.T) {

	assert := assert.New(t)

	transport := &stubTransport{}
	reader := testDeviceReader(transport)

	assert.NoError(reader.RefreshOne("Lorem ipsum"))
	assert.Empty(transport.reads, "no request for unknown measurement")

	value, ok, err := NewMeter(reader).GetSingleValue("Lorem ipsum")
	assert.NoError(err)
	assert.False(ok)
	assert.Equal(0.0, value)
	assert.Empty(transport.reads)
}

func TestDeviceRefreshAll(t *testing.T) {

	assert := assert.New(t)

	values := map[uint16]float32{}
	registers := NewRegisterMap()
	for i, def := range registers.Definitions() {
		values[def.Address] = float32(i) + 0.5
	}
	transport := &stubTransport{values: values}
	reader := testDeviceReader(transport)

	readings, err := NewMeter(reader).GetAllValues()
	assert.NoError(err)
	assert.Len(readings, 14)
	for i, r := range readings {
		assert.Equal(canonicalNames[i], r.Name)
		assert.Equal(float64(i)+0.5, r.Value)
	}

	// one request per definition, in table order, no batching
	var addresses []uint16
	for _, def := range registers.Definitions() {
		addresses = append(addresses, def.Address)
	}
	assert.Equal(addresses, transport.reads)
}

func TestDeviceRefreshAllPartialFailure(t *testing.T) {

	assert := assert.New(t)

	values := map[uint16]float32{}
	for _, def := range NewRegisterMap().Definitions() {
		values[def.Address] = 42
	}
	transport := &stubTransport{values: values, failOn: 5, failErr: modbus.ErrRequestTimedOut}
	reader := testDeviceReader(transport)

	err := reader.RefreshAll()
	assert.Error(err)

	var commErr *DeviceCommunicationError
	assert.True(errors.As(err, &commErr))
	assert.Equal("Reactive power", commErr.Name)
	assert.Equal(uint16(0x0018), commErr.Address)
	assert.True(errors.Is(err, modbus.ErrRequestTimedOut))

	for i, name := range reader.Registers().ListNames() {
		value, _ := reader.Registers().Value(name)
		if i < 4 {
			assert.Equal(42.0, value, "updated before failure: %s", name)
		} else {
			assert.Equal(0.0, value, "unchanged after failure: %s", name)
		}
	}
	assert.Len(transport.reads, 5, "no reads after the failure")
}

func TestDeviceCommunicationErrorOnSingle(t *testing.T) {

	assert := assert.New(t)

	transport := &stubTransport{failOn: 2, failErr: modbus.ErrBadCRC, values: map[uint16]float32{0x0046: 50}}
	meter := NewMeter(testDeviceReader(transport))

	value, ok, err := meter.GetSingleValue("Frequency")
	assert.NoError(err)
	assert.True(ok)
	assert.Equal(50.0, value)

	_, ok, err = meter.GetSingleValue("Frequency")
	assert.True(ok)
	assert.True(errors.Is(err, modbus.ErrBadCRC))
	assert.Contains(err.Error(), "Frequency")

	stored, _ := meter.Registers().Value("Frequency")
	assert.Equal(50.0, stored, "failed read keeps the previous value")
}

func TestDeviceOpenClose(t *testing.T) {

	assert := assert.New(t)

	transport := &stubTransport{}
	reader := testDeviceReader(transport)

	assert.NoError(reader.Open())
	assert.NoError(reader.Open())
	assert.Equal(1, transport.opened)

	assert.NoError(reader.Close())
	assert.NoError(reader.Close())
	assert.Equal(1, transport.closed)

	info := reader.Info()
	assert.Equal(READER_MODE_DEVICE, info.Mode)
	assert.Equal("/dev/ttyUSB0", info.Port)
	assert.Equal(uint8(1), info.SlaveAddress)
}

func TestInstrumentation(t *testing.T) {

	assert := assert.New(t)

	var calls []string
	inst := ModbusInstrument{RecordTime: func(fnName string, readTime time.Duration) {
		calls = append(calls, fnName)
	}}
	reader := NewDeviceReader(&stubTransport{}, DefaultDeviceConfig("/dev/ttyUSB0"), nil, inst)

	assert.NoError(reader.RefreshOne("Voltage"))
	assert.Equal([]string{"ReadFloat32"}, calls)
}

func TestParseParity(t *testing.T) {

	assert := assert.New(t)

	p, err := ParseParity("even")
	assert.NoError(err)
	assert.Equal(PARITY_EVEN, p)
	assert.Equal(uint(modbus.PARITY_EVEN), p.modbusParity())

	p, err = ParseParity("none")
	assert.NoError(err)
	assert.Equal(uint(modbus.PARITY_NONE), p.modbusParity())

	_, err = ParseParity("mark")
	assert.Error(err)
}

func TestCreateDeviceReaderRequiresPort(t *testing.T) {
	_, err := CreateDeviceReader(DeviceConfig{}, nil, nil)
	assert.Error(t, err)
}

func TestDeviceSlowReadAllIsFresh(t *testing.T) {

	assert := assert.New(t)

	cfg := DefaultDeviceConfig("/dev/ttyUSB0")
	cfg.ValidFor = 20 * time.Millisecond
	transport := &stubTransport{values: map[uint16]float32{0x0000: 230.5}, delay: 5 * time.Millisecond}
	meter := NewMeter(NewDeviceReader(transport, cfg, nil))

	// 14 reads take well over the staleness window
	readings, err := meter.ReadAll()
	assert.NoError(err)
	assert.Len(readings, 14)
	for _, r := range readings {
		assert.False(r.Stale, "read by this refresh: %s", r.Name)
	}
	assert.Equal(230.5, readings[0].Value)

	time.Sleep(2 * cfg.ValidFor)
	later, ok := meter.Registers().Reading("Voltage")
	assert.True(ok)
	assert.True(later.Stale, "ages once the window has passed")
}

// inputRegisterServer answers function code 4 only, for one unit id.
type inputRegisterServer struct {
	mu      sync.Mutex
	unitId  uint8
	regs    map[uint16]uint16
	unitIds []uint8
}

func (h *inputRegisterServer) HandleCoils(req *modbus.CoilsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (h *inputRegisterServer) HandleDiscreteInputs(req *modbus.DiscreteInputsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (h *inputRegisterServer) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	return nil, modbus.ErrIllegalFunction
}

func (h *inputRegisterServer) HandleInputRegisters(req *modbus.InputRegistersRequest) ([]uint16, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unitIds = append(h.unitIds, req.UnitId)
	if req.UnitId != h.unitId {
		return nil, modbus.ErrGWTargetFailedToRespond
	}
	res := make([]uint16, 0, req.Quantity)
	for i := uint16(0); i < req.Quantity; i++ {
		v, ok := h.regs[req.Addr+i]
		if !ok {
			return nil, modbus.ErrIllegalDataAddress
		}
		res = append(res, v)
	}
	return res, nil
}

func freeTCPPort(t *testing.T) int {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestDeviceReaderOverModbusServer(t *testing.T) {

	assert := assert.New(t)

	url := fmt.Sprintf("tcp://localhost:%d", freeTCPPort(t))
	// 230.5 = 0x43668000, high word first
	handler := &inputRegisterServer{unitId: 7, regs: map[uint16]uint16{0x0000: 0x4366, 0x0001: 0x8000}}
	server, err := modbus.NewServer(&modbus.ServerConfiguration{
		URL:        url,
		Timeout:    5 * time.Second,
		MaxClients: 2,
	}, handler)
	if !assert.NoError(err) {
		return
	}
	if !assert.NoError(server.Start()) {
		return
	}
	defer server.Stop()

	client, err := modbus.NewClient(&modbus.ClientConfiguration{URL: url, Timeout: time.Second})
	if !assert.NoError(err) {
		return
	}
	assert.NoError(client.SetUnitId(7))
	assert.NoError(client.SetEncoding(modbus.BIG_ENDIAN, modbus.HIGH_WORD_FIRST))

	cfg := DefaultDeviceConfig("/dev/ttyUSB0")
	cfg.SlaveAddress = 7
	reader := NewDeviceReader(client, cfg, nil)
	if !assert.NoError(reader.Open()) {
		return
	}
	defer reader.Close()

	meter := NewMeter(reader)
	value, ok, err := meter.GetSingleValue("Voltage")
	assert.NoError(err)
	assert.True(ok)
	assert.Equal(230.5, value)

	// Current at 0x0006 is not served
	_, _, err = meter.GetSingleValue("Current")
	var commErr *DeviceCommunicationError
	assert.True(errors.As(err, &commErr))
	assert.Equal(uint16(0x0006), commErr.Address)
	assert.True(errors.Is(err, modbus.ErrIllegalDataAddress))

	handler.mu.Lock()
	defer handler.mu.Unlock()
	assert.Equal([]uint8{7, 7}, handler.unitIds)
}
