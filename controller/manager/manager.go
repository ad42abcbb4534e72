package manager

import (
	"context"
	"io/ioutil"
	"math"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kirsrus/healing-garden/server/controller"
	"github.com/kirsrus/healing-garden/server/service"
	"github.com/kirsrus/healing-garden/server/store"
)

const (
	pollInterval      = 5 * time.Second
	cleanBasePeriod   = time.Hour * 24 * 30
	cleanBaseInterval = time.Minute * 30
)

// ConfigManager конфигурация Manager
type ConfigManager struct {
	Log *logrus.Logger

	Snapshots controller.SnapshotCtl

	WebSvc service.WebSvc
	// Подписка на показания сенсоров. Без неё показания приходят опросом и через WEB
	SensorStreamSvc service.SensorStreamSvc
	JournalSvc      service.JournalSvc
	DbStore         store.DbStore

	// Террариумы, источник показаний которых опрашивается периодически
	Watch []string

	PollInterval      time.Duration
	CleanBasePeriod   time.Duration
	CleanBaseInterval time.Duration
}

// Manager основной менеджер работы со всеми сервисами. Инициируется через NewManager
type Manager struct {
	ctx context.Context
	log *logrus.Entry

	snapshots controller.SnapshotCtl

	webSvc          service.WebSvc
	sensorStreamSvc service.SensorStreamSvc
	journalSvc      service.JournalSvc
	dbStore         store.DbStore

	watch []string

	pollInterval      time.Duration
	cleanBasePeriod   time.Duration
	cleanBaseInterval time.Duration
}

// NewManager конструктор Manager
func NewManager(ctx context.Context, config *ConfigManager) (*Manager, error) {
	if config == nil {
		return nil, errors.New("не передана конфигурация")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	if config.Snapshots == nil {
		return nil, errors.New("не передано хранилище показаний")
	}
	if config.WebSvc == nil {
		return nil, errors.New("не передан сервис WEB")
	}
	if config.DbStore == nil {
		return nil, errors.New("не передан сервис базы данных")
	}

	manager := Manager{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "manager",
			"scope":  "controller",
		}),
		snapshots: config.Snapshots,

		webSvc:          config.WebSvc,
		sensorStreamSvc: config.SensorStreamSvc,
		journalSvc:      config.JournalSvc,
		dbStore:         config.DbStore,

		watch: config.Watch,

		pollInterval:      pollInterval,
		cleanBasePeriod:   cleanBasePeriod,
		cleanBaseInterval: cleanBaseInterval,
	}
	if config.PollInterval != 0 {
		manager.pollInterval = config.PollInterval
	}
	if config.CleanBasePeriod != 0 {
		manager.cleanBasePeriod = config.CleanBasePeriod
	}
	if config.CleanBaseInterval != 0 {
		manager.cleanBaseInterval = config.CleanBaseInterval
	}

	manager.configToLog()

	return &manager, nil
}

// Вывести значения конфигурациии в лог
func (m Manager) configToLog() {
	m.log.Debugf("pollInterval: %s", m.pollInterval)
	m.log.Debugf("cleanBasePeriod: %s", m.cleanBasePeriod)
	m.log.Debugf("cleanBaseInterval: %s", m.cleanBaseInterval)
	m.log.Debugf("watch: %v", m.watch)
	m.log.Debugf("sensorStream: %t", m.sensorStreamSvc != nil)
}

// Serve запускает WEB-сервер, подписку и опрос показаний, очистку архива. Работает до завершения
// контекста или первой ошибки одного из процессов
func (m Manager) Serve() error {
	g, ctx := errgroup.WithContext(m.ctx)

	g.Go(func() error {
		return errors.Trace(m.webSvc.Serve(ctx))
	})

	// Показания по подписке сходятся в то же хранилище, что и опрос
	if m.sensorStreamSvc != nil {
		g.Go(func() error {
			return errors.Trace(m.sensorStreamSvc.Run(ctx, m.ingest))
		})
	}

	for _, id := range m.watch {
		m.snapshots.Watch(id, m.pollInterval)
	}
	defer m.snapshots.StopAll()

	// Хоускипер очистки базы данных от старых записей
	g.Go(func() error {
		ticker := time.NewTicker(m.cleanBaseInterval)
		defer ticker.Stop()
		for {
			m.clean()
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	err := g.Wait()
	if m.journalSvc != nil {
		if err := m.journalSvc.Close(); err != nil {
			m.log.Warnf("ошибка закрытия журнала: %s", err)
		}
	}
	if err != nil && errors.Cause(err) != context.Canceled {
		return errors.Trace(err)
	}
	m.log.Info("завершение работы")
	return nil
}

// Обработчик документа сенсоров из подписки
func (m Manager) ingest(terrariumID string, raw map[string]interface{}) {
	if _, err := m.snapshots.Ingest(terrariumID, raw, false); err != nil {
		m.log.Warnf("показания террариума %s не приняты: %s", terrariumID, err)
	}
}

// Очистка архива не критична, только в лог
func (m Manager) clean() {
	days := int(math.Round(m.cleanBasePeriod.Hours() / 24))
	if err := m.dbStore.Clean(days); err != nil {
		m.log.Warnf("ошибка очистки архива: %s", err)
	}
}
