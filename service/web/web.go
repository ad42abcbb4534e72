package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/errors"
	"github.com/labstack/echo"
	"github.com/labstack/echo/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/kirsrus/healing-garden/server/controller"
	"github.com/kirsrus/healing-garden/server/pkg/metrics"
	"github.com/kirsrus/healing-garden/server/pkg/validator"
	"github.com/kirsrus/healing-garden/server/service"
	"github.com/kirsrus/healing-garden/server/store"
)

const (
	webPort         = 8080
	shutdownTimeout = 5 * time.Second
	videosPath      = "/static/videos"
	// Время хранения незабранной команды LCD
	lcdCommandTTL = 24 * time.Hour
	cacheCleared  = time.Hour
)

// ConfigWeb конфигурация структуры Web
type ConfigWeb struct {
	Log *logrus.Logger

	WebPort uint

	DbStore    store.DbStore
	Snapshots  controller.SnapshotCtl
	Evaluator  controller.EvaluatorCtl
	Dispatcher controller.DispatcherCtl
	Diary      controller.DiaryCtl
	// Внешний ретранслятор LCD. Без него команды террариумов ставятся во встроенный
	Lcd service.LcdSvc
	// Период опроса источника показаний, пока открыт поток террариума. 0 - без опроса
	StreamPoll time.Duration
}

// Web служба WEB-сервисов. Инициализируется через NewWeb
type Web struct {
	ctx       context.Context
	log       *logrus.Entry
	validator *validator.Validator
	e         *echo.Echo
	upgrader  websocket.Upgrader

	dbStore    store.DbStore
	snapshots  controller.SnapshotCtl
	evaluator  controller.EvaluatorCtl
	dispatcher controller.DispatcherCtl
	diary      controller.DiaryCtl
	lcd        service.LcdSvc

	// Команды LCD, ожидающие забора устройствами
	lcdCommands *cache.Cache

	webPort    uint
	videosPath string
	streamPoll time.Duration
}

// NewWeb конструктор структкуры Web
func NewWeb(ctx context.Context, config *ConfigWeb) (service.WebSvc, error) {
	return newWeb(ctx, config)
}

func newWeb(ctx context.Context, config *ConfigWeb) (*Web, error) {
	if config == nil {
		return nil, errors.New("не установлена конфигурация")
	}
	switch {
	case config.DbStore == nil:
		return nil, errors.New("не задано хранилище DbStore")
	case config.Snapshots == nil:
		return nil, errors.New("не задано хранилище показаний Snapshots")
	case config.Evaluator == nil:
		return nil, errors.New("не задан Evaluator")
	case config.Dispatcher == nil:
		return nil, errors.New("не задан Dispatcher")
	case config.Diary == nil:
		return nil, errors.New("не задан Diary")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	web := &Web{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "web",
			"scope":  "service",
		}),
		validator: validator.Get(),
		e:         echo.New(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},

		dbStore:    config.DbStore,
		snapshots:  config.Snapshots,
		evaluator:  config.Evaluator,
		dispatcher: config.Dispatcher,
		diary:      config.Diary,
		lcd:        config.Lcd,

		lcdCommands: cache.New(lcdCommandTTL, cacheCleared),

		webPort:    webPort,
		videosPath: videosPath,
		streamPoll: config.StreamPoll,
	}
	if config.WebPort != 0 {
		web.webPort = config.WebPort
	}

	web.e.HideBanner = true
	web.e.HidePort = true
	web.e.Use(middleware.Recover())
	web.e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	return web, nil
}

// ServeHTTP обработка запроса без запуска сервера
func (m *Web) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.e.ServeHTTP(w, r)
}

// Serve запускает HTTP-сервер и останавливает его по завершении ctx
func (m *Web) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		m.log.Infof("старт HTTP-сервера на порту :%d", m.webPort)
		errCh <- m.e.Start(fmt.Sprintf(":%d", m.webPort))
	}()

	select {
	case <-ctx.Done():
		m.log.Info("остановка HTTP-сервера")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := m.e.Shutdown(shutdownCtx); err != nil {
			return errors.Annotate(err, "ошибка остановки HTTP-сервера")
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		m.log.Errorf("сервер неожиданно завершил работу: %s", err)
		return errors.Annotate(err, "HTTP-сервер завершил работу")
	}
}

// Metrics метрики prometheus
func (m *Web) Metrics(path string) {
	m.e.GET(path, echo.WrapHandler(metrics.Handler()))
}

// Ответ с ошибкой. Тип ошибки определяет статус
func (m *Web) fail(c echo.Context, err error) error {
	status, message := http.StatusInternalServerError, "внутренняя ошибка сервера"
	cause := errors.Cause(err)
	switch {
	case errors.IsNotValid(err), errors.IsNotSupported(err):
		status, message = http.StatusBadRequest, err.Error()
	case errors.IsNotFound(err):
		status, message = http.StatusNotFound, err.Error()
	case cause == controller.ErrInProgress:
		status, message = http.StatusConflict, "команда устройству уже выполняется, повторите позже"
	case cause == controller.ErrStale:
		status, message = http.StatusConflict, "рекомендация устарела, выполните оценку заново"
	case cause == service.ErrDeviceFailure:
		status, message = http.StatusBadGateway, "устройство не подтвердило команду, повторите позже"
	}
	if status >= http.StatusInternalServerError {
		m.log.Warnf("%s %s: %s", c.Request().Method, c.Request().URL.Path, err)
	} else {
		m.log.Debugf("%s %s: %s", c.Request().Method, c.Request().URL.Path, err)
	}
	return c.JSON(status, map[string]interface{}{"ok": false, "message": message})
}

// Разбор JSON тела запроса. Параметры пути в структуру не попадают
func bindJSON(c echo.Context, v interface{}) error {
	return json.NewDecoder(c.Request().Body).Decode(v)
}

// Ответ на некорректное тело запроса
func (m *Web) badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, map[string]interface{}{"ok": false, "message": message})
}
