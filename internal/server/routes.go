package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/berfenger/sdm220mqtt/internal/core/domain"
	"github.com/berfenger/sdm220mqtt/pkg/sdm220_modbus"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const WS_BUFFER_SIZE = 64

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type meterResponse struct {
	Manufacturer string                `json:"manufacturer"`
	Model        string                `json:"model"`
	Mode         string                `json:"mode"`
	Port         string                `json:"port,omitempty"`
	SlaveAddress uint8                 `json:"slave_address,omitempty"`
	Measurements []measurementResponse `json:"measurements"`
}

type measurementResponse struct {
	Name       string `json:"name"`
	Key        string `json:"key"`
	Address    uint16 `json:"address"`
	Unit       string `json:"unit"`
	ValidForMs int64  `json:"valid_for_ms"`
}

type readingResponse struct {
	Name   string     `json:"name"`
	Key    string     `json:"key"`
	Unit   string     `json:"unit"`
	Value  float64    `json:"value"`
	ReadAt *time.Time `json:"read_at,omitempty"`
	Stale  bool       `json:"stale"`
}

type errorResponse struct {
	Error    string            `json:"error"`
	Readings []readingResponse `json:"readings,omitempty"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/api/measurements", s.MeasurementsHandler)
	e.GET("/api/values", s.ValuesHandler)
	e.GET("/api/values/:key", s.ValueHandler)
	e.GET("/ws", s.WebSocketHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, REQUEST_TIMEOUT).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) MeasurementsHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetMeterInfoRequest{}, REQUEST_TIMEOUT).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	}
	response, ok := res.(domain.GetMeterInfoResponse)
	if !ok || response.Info == nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "unexpected response"})
	}
	meter := meterResponse{
		Manufacturer: response.Info.Manufacturer,
		Model:        response.Info.Model,
		Mode:         response.Info.Mode,
		Port:         response.Info.Port,
		SlaveAddress: response.Info.SlaveAddress,
	}
	for _, def := range response.Measurements {
		meter.Measurements = append(meter.Measurements, measurementResponse{
			Name:       def.Name,
			Key:        def.Key,
			Address:    def.Address,
			Unit:       def.Unit,
			ValidForMs: def.ValidFor.Milliseconds(),
		})
	}
	return c.JSON(http.StatusOK, meter)
}

func (s *Server) ValuesHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetMeterValuesRequest{}, REQUEST_TIMEOUT).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	}
	response, ok := res.(domain.GetMeterValuesResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "unexpected response"})
	}
	readings := toReadingResponses(response.Readings)
	if response.HasResponseError() {
		return c.JSON(errorStatus(response.GetResponseError()), errorResponse{
			Error:    response.GetResponseError().Error(),
			Readings: readings,
		})
	}
	return c.JSON(http.StatusOK, readings)
}

func (s *Server) ValueHandler(c echo.Context) error {
	key := c.Param("key")
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetMeterValueRequest{Name: key}, REQUEST_TIMEOUT).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	}
	response, ok := res.(domain.GetMeterValueResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "unexpected response"})
	}
	if !response.Found {
		return c.JSON(http.StatusNotFound, errorResponse{Error: sdm220_modbus.ErrUnknownMeasurement.Error() + ": " + key})
	}
	if response.HasResponseError() {
		return c.JSON(errorStatus(response.GetResponseError()), errorResponse{Error: response.GetResponseError().Error()})
	}
	return c.JSON(http.StatusOK, toReadingResponse(*response.Reading))
}

// WebSocketHandler streams every sensor update published on the event stream
// as a JSON text message until the client disconnects.
func (s *Server) WebSocketHandler(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("websocket upgrade error", zap.Error(err))
		return nil
	}
	defer conn.Close()

	updates := make(chan any, WS_BUFFER_SIZE)
	sub := s.eventStream.Subscribe(func(evt any) {
		if _, ok := evt.(domain.SensorUpdateEvent); !ok {
			return
		}
		select {
		case updates <- evt:
		default:
			// slow client, drop the update
		}
	})
	defer s.eventStream.Unsubscribe(sub)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return nil
		case evt := <-updates:
			data, err := json.Marshal(evt)
			if err != nil {
				s.logger.Error("websocket marshal error", zap.Error(err))
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return nil
			}
		}
	}
}

func errorStatus(err error) int {
	var devErr *sdm220_modbus.DeviceCommunicationError
	if errors.As(err, &devErr) {
		return http.StatusBadGateway
	}
	return http.StatusServiceUnavailable
}

func toReadingResponses(readings []sdm220_modbus.MeasurementReading) []readingResponse {
	out := make([]readingResponse, 0, len(readings))
	for _, r := range readings {
		out = append(out, toReadingResponse(r))
	}
	return out
}

func toReadingResponse(r sdm220_modbus.MeasurementReading) readingResponse {
	resp := readingResponse{
		Name:  r.Name,
		Key:   r.Key,
		Unit:  r.Unit,
		Value: r.Value,
		Stale: r.Stale,
	}
	if !r.ReadAt.IsZero() {
		readAt := r.ReadAt
		resp.ReadAt = &readAt
	}
	return resp
}
