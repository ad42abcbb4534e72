package snapshot

import (
	"context"
	"io/ioutil"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/kirsrus/healing-garden/server/controller"
	"github.com/kirsrus/healing-garden/server/model"
	"github.com/kirsrus/healing-garden/server/pkg/metrics"
	"github.com/kirsrus/healing-garden/server/service"
	"github.com/kirsrus/healing-garden/server/store"
)

const (
	pollInterval   = 5 * time.Second
	refreshTimeout = 5 * time.Second
)

// Snapshot хранилище последних показаний сенсоров. Инициализируется через NewSnapshot.
// Показания приходят по подписке (Ingest), по опросу источника (Refresh, Watch) и из ответов
// устройств; все пути сходятся в Update
type Snapshot struct {
	ctx context.Context
	log *logrus.Entry

	dbStore store.DbStore
	source  service.SensorSvc

	mu          sync.RWMutex
	latest      map[string]model.SensorSnapshot
	subscribers map[string]map[string]func(model.SensorSnapshot)
	watchers    map[string]context.CancelFunc

	group        singleflight.Group
	pollInterval time.Duration
	now          func() time.Time
}

// ConfigSnapshot конфигурация Snapshot
type ConfigSnapshot struct {
	Log *logrus.Logger
	// Хранилище истории показаний. Без него история не ведётся
	DbStore store.DbStore
	// Источник показаний для опроса. Без него Refresh недоступен
	Source       service.SensorSvc
	PollInterval time.Duration
}

// NewSnapshot конструктор Snapshot
func NewSnapshot(ctx context.Context, config *ConfigSnapshot) (controller.SnapshotCtl, error) {
	return newSnapshot(ctx, config)
}

func newSnapshot(ctx context.Context, config *ConfigSnapshot) (*Snapshot, error) {
	if config == nil {
		return nil, errors.New("не установлен config")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	res := &Snapshot{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "snapshot",
			"scope":  "controller",
		}),
		dbStore:      config.DbStore,
		source:       config.Source,
		latest:       make(map[string]model.SensorSnapshot),
		subscribers:  make(map[string]map[string]func(model.SensorSnapshot)),
		watchers:     make(map[string]context.CancelFunc),
		pollInterval: pollInterval,
		now:          time.Now,
	}
	if config.PollInterval != 0 {
		res.pollInterval = config.PollInterval
	}
	return res, nil
}

// Latest последние известные показания террариума
func (m *Snapshot) Latest(terrariumID string) (model.SensorSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.latest[terrariumID]
	if !ok {
		return model.SensorSnapshot{}, errors.NotFoundf("показания террариума %q", terrariumID)
	}
	return s.Clone(), nil
}

// Refresh запрашивает показания у источника. Одновременные запросы одного террариума объединяются
func (m *Snapshot) Refresh(ctx context.Context, terrariumID string) (model.SensorSnapshot, error) {
	if m.source == nil {
		return model.SensorSnapshot{}, errors.NotSupportedf("опрос показаний без источника")
	}
	v, err, _ := m.group.Do(terrariumID, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
		defer cancel()
		raw, err := m.source.Latest(ctx, terrariumID)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return m.Ingest(terrariumID, raw, false)
	})
	if err != nil {
		return model.SensorSnapshot{}, errors.Trace(err)
	}
	return v.(model.SensorSnapshot), nil
}

// Ingest приводит документ сенсоров к SensorSnapshot и обновляет хранилище. Возвращает
// актуальные показания после обновления
func (m *Snapshot) Ingest(terrariumID string, raw map[string]interface{}, strict bool) (model.SensorSnapshot, error) {
	if terrariumID == "" {
		return model.SensorSnapshot{}, errors.NotValidf("пустой идентификатор террариума")
	}
	snapshot, invalid := Normalize(raw, m.now())
	if len(invalid) > 0 {
		if strict {
			metrics.SensorReadings.WithLabelValues("rejected").Inc()
			return model.SensorSnapshot{}, errors.NotValidf("поля %s", strings.Join(invalid, ", "))
		}
		m.log.Warnf("террариум %s: отброшены некорректные поля %s", terrariumID, strings.Join(invalid, ", "))
	}
	if snapshot.IsEmpty() {
		metrics.SensorReadings.WithLabelValues("rejected").Inc()
		return model.SensorSnapshot{}, errors.NotValidf("документ без показаний")
	}

	m.Update(terrariumID, snapshot)
	return m.Latest(terrariumID)
}

// Update обновляет показания по правилу "побеждает более поздний замер". Замер не новее
// текущего игнорируется, известные ранее величины, отсутствующие в замере, сохраняются
func (m *Snapshot) Update(terrariumID string, snapshot model.SensorSnapshot) bool {
	if snapshot.ObservedAt.IsZero() {
		snapshot.ObservedAt = m.now()
	}

	m.mu.Lock()
	cur, ok := m.latest[terrariumID]
	if ok && !snapshot.ObservedAt.After(cur.ObservedAt) {
		m.mu.Unlock()
		metrics.SensorReadings.WithLabelValues("stale").Inc()
		m.log.Debugf("террариум %s: замер %s не новее текущего", terrariumID, snapshot.ObservedAt)
		return false
	}
	merged := snapshot.Clone()
	if ok {
		merged = cur.Merge(snapshot)
	}
	m.latest[terrariumID] = merged
	subs := make([]func(model.SensorSnapshot), 0, len(m.subscribers[terrariumID]))
	for _, fn := range m.subscribers[terrariumID] {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	metrics.SensorReadings.WithLabelValues("accepted").Inc()
	metrics.LastReading.WithLabelValues(terrariumID).Set(float64(merged.ObservedAt.Unix()))

	// История не критична, только в лог
	if m.dbStore != nil {
		if err := m.dbStore.SetSnapshotLog(terrariumID, snapshot); err != nil {
			m.log.Warnf("показания террариума %s не записаны в историю: %s", terrariumID, err)
		}
	}

	for _, fn := range subs {
		fn(merged.Clone())
	}
	return true
}

// Subscribe подписка на обновления показаний террариума
func (m *Snapshot) Subscribe(terrariumID string, fn func(model.SensorSnapshot)) func() {
	id := uuid.New().String()
	m.mu.Lock()
	if m.subscribers[terrariumID] == nil {
		m.subscribers[terrariumID] = make(map[string]func(model.SensorSnapshot))
	}
	m.subscribers[terrariumID][id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subscribers[terrariumID], id)
			if len(m.subscribers[terrariumID]) == 0 {
				delete(m.subscribers, terrariumID)
			}
		})
	}
}

// Watch периодически опрашивает источник показаний террариума до вызова возвращённой функции,
// StopAll или завершения контекста хранилища
func (m *Snapshot) Watch(terrariumID string, interval time.Duration) func() {
	if interval <= 0 {
		interval = m.pollInterval
	}
	id := uuid.New().String()
	ctx, cancel := context.WithCancel(m.ctx)
	m.mu.Lock()
	m.watchers[id] = cancel
	m.mu.Unlock()

	go m.poll(ctx, terrariumID, interval)

	return func() {
		cancel()
		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
	}
}

// Цикл опроса источника
func (m *Snapshot) poll(ctx context.Context, terrariumID string, interval time.Duration) {
	m.log.Debugf("старт опроса террариума %s каждые %s", terrariumID, interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := m.Refresh(ctx, terrariumID); err != nil && !errors.IsNotFound(err) {
			m.log.Debugf("опрос террариума %s: %s", terrariumID, err)
		}
		select {
		case <-ctx.Done():
			m.log.Debugf("опрос террариума %s остановлен", terrariumID)
			return
		case <-ticker.C:
		}
	}
}

// StopAll останавливает все опросы
func (m *Snapshot) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, cancel := range m.watchers {
		cancel()
		delete(m.watchers, id)
	}
}

// History история показаний террариума
func (m *Snapshot) History(terrariumID string, days uint, offsetDays uint, compact bool) ([]model.SensorMetric, error) {
	if m.dbStore == nil {
		return nil, errors.NotSupportedf("история показаний без хранилища")
	}
	res, err := m.dbStore.SnapshotLog(terrariumID, days, offsetDays, compact)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return res, nil
}
