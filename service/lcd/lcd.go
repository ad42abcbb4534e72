package lcd

import (
	"bytes"
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

	"github.com/kirsrus/healing-garden/server/model"
	"github.com/kirsrus/healing-garden/server/pkg/validator"
	"github.com/kirsrus/healing-garden/server/service"
)

const (
	requestTimeout  = 5 * time.Second
	maxResponseSize = 1 << 16
	// Шаблон точек ретранслятора: /lcd/{id}/{command|last|ack}
	lcdUrlTemplate = "%s/lcd/%s/%s"
)

// Lcd клиент ретранслятора команд LCD. Имплементирует LcdSvc. Инициируется через NewLcd
type Lcd struct {
	ctx     context.Context
	log     *logrus.Entry
	address string
	client  *http.Client
}

// ConfigLcd конфигурация Lcd
type ConfigLcd struct {
	Log     *logrus.Logger
	Address string `conform:"trim" validate:"required,httpurl"`
	TimeOut time.Duration
}

// NewLcd конструктор структуры Lcd
func NewLcd(ctx context.Context, config *ConfigLcd) (service.LcdSvc, error) {
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
	return &Lcd{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module":  "lcd",
			"scope":   "service",
			"address": config.Address,
		}),
		address: strings.TrimRight(config.Address, "/"),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type lastResponse struct {
	Ok      bool              `json:"ok"`
	Command *model.LcdCommand `json:"command"`
}

// Command ставит команду для LCD террариума
func (m Lcd) Command(ctx context.Context, terrariumID string, cmd model.LcdCommand) error {
	if err := cmd.Validate(); err != nil {
		return errors.Trace(err)
	}
	body, err := json.Marshal(cmd)
	if err != nil {
		return errors.Trace(err)
	}
	if _, _, err = m.do(ctx, http.MethodPost, terrariumID, "command", body); err != nil {
		return errors.Trace(err)
	}
	m.log.Debugf("команда %s для террариума %s отправлена", cmd.Action, terrariumID)
	return nil
}

// Last последняя команда LCD террариума. Если команды нет, возвращается NotFound
func (m Lcd) Last(ctx context.Context, terrariumID string) (*model.LcdCommand, error) {
	status, data, err := m.do(ctx, http.MethodGet, terrariumID, "last", nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if status == http.StatusNotFound {
		return nil, errors.NotFoundf("команда LCD террариума %q", terrariumID)
	}
	var res lastResponse
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, errors.Annotate(err, "некорректный JSON ретранслятора")
	}
	if res.Command == nil {
		return nil, errors.NotFoundf("команда LCD террариума %q", terrariumID)
	}
	return res.Command, nil
}

// Ack подтверждение выполнения последней команды
func (m Lcd) Ack(ctx context.Context, terrariumID string) error {
	_, _, err := m.do(ctx, http.MethodPost, terrariumID, "ack", []byte("{}"))
	return errors.Trace(err)
}

// Запрос к ретранслятору. Статус 404 ошибкой не считается
func (m Lcd) do(ctx context.Context, method, terrariumID, action string, body []byte) (int, []byte, error) {
	URL := fmt.Sprintf(lcdUrlTemplate, m.address, url.PathEscape(terrariumID), action)
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, URL, reader)
	if err != nil {
		return 0, nil, errors.Trace(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := m.client.Do(req)
	if err != nil {
		m.log.Warnf("ретранслятор недоступен: %s", err)
		return 0, nil, errors.Trace(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := ioutil.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, errors.Trace(err)
	}
	if resp.StatusCode != http.StatusNotFound && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		return resp.StatusCode, nil, errors.Errorf("для %s возвращён статус %d", URL, resp.StatusCode)
	}
	return resp.StatusCode, data, nil
}
