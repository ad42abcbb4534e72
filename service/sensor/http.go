package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"github.com/kirsrus/healing-garden/server/pkg/breaker"
	"github.com/kirsrus/healing-garden/server/pkg/validator"
	"github.com/kirsrus/healing-garden/server/service"
)

const (
	requestTimeout  = 5 * time.Second
	maxResponseSize = 1 << 20
	// Шаблон запроса последних показаний
	latestUrlTemplate = "%s/sensors/%s/latest"
)

// Http опрос последних показаний сенсоров по HTTP. Имплементирует SensorSvc.
// Инициируется через NewHttp
type Http struct {
	ctx     context.Context
	log     *logrus.Entry
	address string
	client  *http.Client
	breaker *breaker.Breaker
}

// ConfigHttp конфигурация Http
type ConfigHttp struct {
	Log     *logrus.Logger
	Address string `conform:"trim" validate:"required,httpurl"`
	TimeOut time.Duration
}

// NewHttp конструктор структуры Http
func NewHttp(ctx context.Context, config *ConfigHttp) (service.SensorSvc, error) {
	if config == nil {
		return nil, errors.New("не задана конфигурация config")
	} else if err := validator.Get().ValidateWithConform(config); err != nil {
		return nil, errors.Annotate(err, "ошибка в конфигурации")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	timeout := requestTimeout
	if config.TimeOut != 0 {
		timeout = config.TimeOut
	}

	return &Http{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module":  "sensor",
			"scope":   "service",
			"address": config.Address,
		}),
		address: strings.TrimRight(config.Address, "/"),
		client:  &http.Client{Timeout: timeout},
		breaker: breaker.New("sensor", &breaker.Config{Log: config.Log}),
	}, nil
}

type latestResponse struct {
	Ok   bool                   `json:"ok"`
	Data map[string]interface{} `json:"data"`
}

// Latest последний документ сенсоров террариума. Если показаний ещё нет, возвращается NotFound
func (m Http) Latest(ctx context.Context, terrariumID string) (map[string]interface{}, error) {
	URL := fmt.Sprintf(latestUrlTemplate, m.address, url.PathEscape(terrariumID))

	var res latestResponse
	notFound := false
	err := m.breaker.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, URL, nil)
		if err != nil {
			return errors.Trace(err)
		}
		resp, err := m.client.Do(req)
		if err != nil {
			return errors.Trace(err)
		}
		defer func() { _ = resp.Body.Close() }()

		// Отсутствие показаний не считается отказом источника
		if resp.StatusCode == http.StatusNotFound {
			notFound = true
			return nil
		}
		if resp.StatusCode != http.StatusOK {
			return errors.Errorf("для %s возвращён статус %d", URL, resp.StatusCode)
		}
		data, err := ioutil.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return errors.Trace(err)
		}
		if err = json.Unmarshal(data, &res); err != nil {
			return errors.Annotate(err, "некорректный JSON показаний")
		}
		return nil
	})
	if err != nil {
		m.log.Debugf("ошибка получения показаний %s: %s", terrariumID, err)
		return nil, errors.Trace(err)
	}
	if notFound || (res.Ok && res.Data == nil) {
		return nil, errors.NotFoundf("показания террариума %q", terrariumID)
	}
	if !res.Ok {
		return nil, errors.Errorf("источник показаний ответил ok=false для %q", terrariumID)
	}
	return res.Data, nil
}
