package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"github.com/kirsrus/healing-garden/server/model"
	"github.com/kirsrus/healing-garden/server/pkg/metrics"
	"github.com/kirsrus/healing-garden/server/pkg/validator"
	"github.com/kirsrus/healing-garden/server/service"
)

const (
	requestTimeout  = 5 * time.Second
	maxResponseSize = 1 << 20
	// Шаблон точки управления устройством: /api/{устройство}/{on|off}
	commandUrlTemplate = "%s/api/%s/%s"
)

// Device клиент API устройств террариума (Raspberry Pi). Имплементирует DeviceSvc.
// Инициируется через NewDevice
type Device struct {
	ctx     context.Context
	log     *logrus.Entry
	address string
	client  *http.Client
}

// ConfigDevice конфигурация Device
type ConfigDevice struct {
	Log         *logrus.Logger
	TerrariumID string
	Address     string `conform:"trim" validate:"required,httpurl"`
	TimeOut     time.Duration
}

// NewDevice конструктор структуры Device
func NewDevice(ctx context.Context, config *ConfigDevice) (service.DeviceSvc, error) {
	if config == nil {
		return nil, errors.New("не задана конфигурация config")
	} else if err := validator.Get().ValidateWithConform(config); err != nil {
		return nil, errors.Annotate(err, "некорректное описание устройств")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	timeout := requestTimeout
	if config.TimeOut != 0 {
		timeout = config.TimeOut
	}

	return &Device{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module":  "device",
			"scope":   "service",
			"id":      config.TerrariumID,
			"address": config.Address,
		}),
		address: strings.TrimRight(config.Address, "/"),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Command отправляет команду устройству. Успехом считается любой статус 2xx
func (m Device) Command(ctx context.Context, cmd model.DeviceCommand) (*model.DeviceResponse, error) {
	state := "off"
	if cmd.On {
		state = "on"
	}
	URL := fmt.Sprintf(commandUrlTemplate, m.address, cmd.Device, state)

	var body []byte
	if cmd.On && cmd.Color != nil {
		body, _ = json.Marshal(cmd.Color)
	} else {
		body = []byte("{}")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, URL, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Trace(err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := m.client.Do(req)
	metrics.DeviceDuration.WithLabelValues(string(cmd.Device)).Observe(time.Since(start).Seconds())
	if err != nil {
		m.log.Warnf("команда %s/%s не отправлена: %v", cmd.Device, state, err)
		return nil, errors.Wrapf(err, service.ErrDeviceFailure, "%s/%s: %s", cmd.Device, state, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := ioutil.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, errors.Wrapf(err, service.ErrDeviceFailure, "%s/%s: %s", cmd.Device, state, err)
	}

	var res model.DeviceResponse
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &res); err != nil {
			// Тело ответа необязательно
			m.log.Debugf("ответ %s не JSON: %s", URL, err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		cause := errors.Errorf("%s/%s: статус %d", cmd.Device, state, resp.StatusCode)
		if res.Error != "" {
			cause = errors.Errorf("%s/%s: статус %d: %s", cmd.Device, state, resp.StatusCode, res.Error)
		}
		m.log.Warn(cause)
		return nil, errors.Wrapf(cause, service.ErrDeviceFailure, "%s", cause)
	}

	m.log.Debugf("команда %s/%s подтверждена", cmd.Device, state)
	return &res, nil
}
