package dispatcher

import (
	"context"
	"io/ioutil"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"github.com/kirsrus/healing-garden/server/controller"
	"github.com/kirsrus/healing-garden/server/model"
	"github.com/kirsrus/healing-garden/server/pkg/colorcodec"
	"github.com/kirsrus/healing-garden/server/pkg/metrics"
	"github.com/kirsrus/healing-garden/server/service"
	"github.com/kirsrus/healing-garden/server/service/device"
	"github.com/kirsrus/healing-garden/server/service/journal"
	"github.com/kirsrus/healing-garden/server/store"
)

const (
	defaultColor   = "#FFC864"
	settleDelay    = 100 * time.Millisecond
	commandTimeout = 5 * time.Second
	journalTimeout = 5 * time.Second
)

// Dispatcher выполняет команды устройствам террариумов и ведёт их состояние. Каждое устройство
// находится в одном из состояний OFF, ON, PENDING; новая команда устройству в PENDING отклоняется.
// Инициализируется через NewDispatcher
type Dispatcher struct {
	ctx context.Context
	log *logrus.Entry

	dbStore   store.DbStore
	snapshots controller.SnapshotCtl
	journal   service.JournalSvc

	mu      sync.Mutex
	devices map[string]service.DeviceSvc
	states  map[string]*model.DeviceState

	deviceLog     *logrus.Logger
	deviceTimeOut time.Duration
	defaultColor  model.RGB
	settleDelay   time.Duration
	degraded      bool
	heater        bool

	now func() time.Time
}

// ConfigDispatcher конфигурация Dispatcher
type ConfigDispatcher struct {
	Log       *logrus.Logger
	DbStore   store.DbStore
	Snapshots controller.SnapshotCtl
	// Журнал команд. Без него события не публикуются
	Journal service.JournalSvc
	// Готовые клиенты API устройств по террариумам. Для остальных клиенты создаются по адресу
	// террариума из хранилища
	Devices       map[string]service.DeviceSvc
	DeviceTimeOut time.Duration
	// Пауза между выключением и включением матрицы
	SettleDelay time.Duration
	// Цвет подсветки, если он не выбран
	DefaultColor string
	// Режим деградации: при отказе устройства состояние и показания симулируются локально
	Degraded bool
	// Подключён нагреватель
	Heater bool
}

// NewDispatcher конструктор Dispatcher
func NewDispatcher(ctx context.Context, config *ConfigDispatcher) (controller.DispatcherCtl, error) {
	return newDispatcher(ctx, config)
}

func newDispatcher(ctx context.Context, config *ConfigDispatcher) (*Dispatcher, error) {
	if config == nil {
		return nil, errors.New("не установлен config")
	}
	if config.DbStore == nil {
		return nil, errors.New("не задано хранилище DbStore")
	}
	if config.Snapshots == nil {
		return nil, errors.New("не задано хранилище показаний Snapshots")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	if config.Journal == nil {
		config.Journal = journal.Noop{}
	}

	color := defaultColor
	if config.DefaultColor != "" {
		color = config.DefaultColor
	}
	rgb, err := colorcodec.HexToRgb(color)
	if err != nil {
		return nil, errors.Annotate(err, "цвет подсветки по умолчанию")
	}

	res := &Dispatcher{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "dispatcher",
			"scope":  "controller",
		}),
		dbStore:       config.DbStore,
		snapshots:     config.Snapshots,
		journal:       config.Journal,
		devices:       make(map[string]service.DeviceSvc),
		states:        make(map[string]*model.DeviceState),
		deviceLog:     config.Log,
		deviceTimeOut: config.DeviceTimeOut,
		defaultColor:  rgb,
		settleDelay:   settleDelay,
		degraded:      config.Degraded,
		heater:        config.Heater,
		now:           time.Now,
	}
	if config.SettleDelay != 0 {
		res.settleDelay = config.SettleDelay
	}
	for id, d := range config.Devices {
		res.devices[id] = d
	}
	return res, nil
}

// State текущее состояние устройств террариума
func (m *Dispatcher) State(terrariumID string) (*model.DeviceState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.state(terrariumID)
	if err != nil {
		return nil, err
	}
	return copyState(st), nil
}

// Dispatch выполняет команду key. Для ActionNone возвращается текущее состояние без обращения
// к устройствам
func (m *Dispatcher) Dispatch(ctx context.Context, terrariumID string, key model.ActionKey) (*model.DeviceState, error) {
	if !key.IsValid() {
		return nil, errors.NotValidf("команда %q", key)
	}
	if key == model.ActionNone {
		return m.State(terrariumID)
	}
	dev, on, _ := key.Target()
	if dev == model.DeviceHeater && !m.heater {
		m.publish(terrariumID, key, dev, model.ResultRejected, errors.New("нагреватель не подключён"))
		return nil, errors.NotSupportedf("команда %s без нагревателя", key)
	}

	var color *model.RGB
	if dev == model.DeviceLight && on {
		m.mu.Lock()
		st, err := m.state(terrariumID)
		if err != nil {
			m.mu.Unlock()
			return nil, err
		}
		c := st.LedColor
		color = &c
		m.mu.Unlock()
	}
	return m.execute(ctx, terrariumID, key, dev, on, color)
}

// SetColor выбирает цвет подсветки. Некорректный цвет отклоняется, выбранный ранее сохраняется.
// Включённая подсветка перезажигается новым цветом
func (m *Dispatcher) SetColor(ctx context.Context, terrariumID string, hex string) (*model.DeviceState, error) {
	rgb, err := colorcodec.HexToRgb(hex)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	st, err := m.state(terrariumID)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if st.Power[model.DeviceLight] == model.PowerPending {
		m.mu.Unlock()
		return nil, errors.Trace(controller.ErrInProgress)
	}
	if !st.GrowLight {
		st.LedColor = rgb
		snapshot := copyState(st)
		m.mu.Unlock()
		m.persist(*snapshot)
		return snapshot, nil
	}
	m.mu.Unlock()

	// Цвет включённой матрицы меняется только после подтверждения
	return m.execute(ctx, terrariumID, model.ActionGrowLightOn, model.DeviceLight, true, &rgb)
}

// Выполнение команды с переходами OFF/ON -> PENDING -> ON/OFF или откатом
func (m *Dispatcher) execute(ctx context.Context, terrariumID string, key model.ActionKey, dev model.Device, on bool, color *model.RGB) (*model.DeviceState, error) {
	svc, err := m.device(terrariumID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	st, err := m.state(terrariumID)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	prev := st.Power[dev]
	if prev == model.PowerPending {
		m.mu.Unlock()
		m.publish(terrariumID, key, dev, model.ResultRejected, controller.ErrInProgress)
		metrics.DeviceCommands.WithLabelValues(string(dev), model.ResultRejected).Inc()
		return nil, errors.Trace(controller.ErrInProgress)
	}
	st.Power[dev] = model.PowerPending
	m.mu.Unlock()

	timeout := commandTimeout
	if m.deviceTimeOut != 0 {
		timeout = m.deviceTimeOut
	}
	ctx, cancel := context.WithTimeout(ctx, 2*timeout+m.settleDelay)
	defer cancel()

	var (
		resp     *model.DeviceResponse
		lightOff bool
	)
	if dev == model.DeviceLight && on {
		resp, lightOff, err = m.lightOn(ctx, svc, *color)
	} else {
		resp, err = svc.Command(ctx, model.DeviceCommand{Device: dev, On: on})
	}

	if err != nil {
		return m.fail(terrariumID, key, dev, on, color, prev, lightOff, err)
	}

	m.mu.Lock()
	st.Power[dev] = powerState(on)
	setFlag(st, dev, on)
	if color != nil {
		st.LedColor = *color
	}
	st.Simulated = false
	st.UpdatedAt = m.now()
	res := copyState(st)
	m.mu.Unlock()

	m.log.Infof("террариум %s: %s подтверждено", terrariumID, key)
	metrics.DeviceCommands.WithLabelValues(string(dev), model.ResultAck).Inc()
	if resp != nil && len(resp.Updated) > 0 {
		if _, err := m.snapshots.Ingest(terrariumID, resp.Updated, false); err != nil {
			m.log.Warnf("террариум %s: показания из ответа устройства не приняты: %s", terrariumID, err)
		}
	}
	m.persist(*res)
	m.publish(terrariumID, key, dev, model.ResultAck, nil)
	return res, nil
}

// Отказ устройства: в режиме деградации состояние фиксируется как целевое и симулируется,
// иначе откатывается к прежнему
func (m *Dispatcher) fail(terrariumID string, key model.ActionKey, dev model.Device, on bool, color *model.RGB, prev model.PowerState, lightOff bool, cause error) (*model.DeviceState, error) {
	m.mu.Lock()
	st := m.states[terrariumID]
	if m.degraded {
		st.Power[dev] = powerState(on)
		setFlag(st, dev, on)
		if color != nil {
			st.LedColor = *color
		}
		st.Simulated = true
		st.UpdatedAt = m.now()
		res := copyState(st)
		m.mu.Unlock()

		m.log.Warnf("террариум %s: %s не подтверждено, состояние симулировано: %s", terrariumID, key, cause)
		metrics.DeviceCommands.WithLabelValues(string(dev), model.ResultSimulated).Inc()
		m.simulate(terrariumID, dev, on)
		m.persist(*res)
		m.publish(terrariumID, key, dev, model.ResultSimulated, cause)
		return res, nil
	}

	if lightOff {
		// Матрица выключена первым шагом и не включилась
		st.Power[dev] = model.PowerOff
		setFlag(st, dev, false)
	} else {
		st.Power[dev] = prev
	}
	res := copyState(st)
	m.mu.Unlock()

	m.log.Warnf("террариум %s: %s не подтверждено, откат: %s", terrariumID, key, cause)
	metrics.DeviceCommands.WithLabelValues(string(dev), model.ResultRollback).Inc()
	if lightOff {
		m.persist(*res)
	}
	m.publish(terrariumID, key, dev, model.ResultRollback, cause)
	return nil, errors.Annotatef(cause, "команда %s террариума %s", key, terrariumID)
}

// Смена цвета матрицы: выключение, пауза и включение с новым цветом. Включение повторяется
// один раз. lightOff=true, если матрица осталась выключенной
func (m *Dispatcher) lightOn(ctx context.Context, svc service.DeviceSvc, color model.RGB) (*model.DeviceResponse, bool, error) {
	if _, err := svc.Command(ctx, model.DeviceCommand{Device: model.DeviceLight, On: false}); err != nil {
		return nil, false, errors.Trace(err)
	}

	select {
	case <-ctx.Done():
		return nil, true, errors.Wrapf(ctx.Err(), service.ErrDeviceFailure, "%s", ctx.Err())
	case <-time.After(m.settleDelay):
	}

	cmd := model.DeviceCommand{Device: model.DeviceLight, On: true, Color: &color}
	resp, err := svc.Command(ctx, cmd)
	if err != nil {
		m.log.Debugf("повтор включения матрицы: %s", err)
		resp, err = svc.Command(ctx, cmd)
	}
	if err != nil {
		return nil, true, errors.Trace(err)
	}
	return resp, false, nil
}

// Состояние террариума. Вызывается под m.mu
func (m *Dispatcher) state(terrariumID string) (*model.DeviceState, error) {
	if st, ok := m.states[terrariumID]; ok {
		return st, nil
	}
	terrarium, err := m.dbStore.Terrarium(terrariumID)
	if err != nil {
		if m.dbStore.IsNotFound(err) {
			return nil, errors.NotFoundf("террариум %q", terrariumID)
		}
		return nil, errors.Trace(err)
	}

	st, err := m.dbStore.DeviceState(terrariumID)
	if err != nil {
		if !m.dbStore.IsNotFound(err) {
			return nil, errors.Trace(err)
		}
		color := m.defaultColor
		if terrarium.LedColor != "" {
			if c, err := colorcodec.HexToRgb(terrarium.LedColor); err == nil {
				color = c
			}
		}
		st = &model.DeviceState{
			TerrariumID: terrariumID,
			LedColor:    color,
			Power: map[model.Device]model.PowerState{
				model.DevicePump:  model.PowerOff,
				model.DeviceFan:   model.PowerOff,
				model.DeviceLight: model.PowerOff,
			},
		}
		if m.heater {
			st.Power[model.DeviceHeater] = model.PowerOff
		}
	}
	if st.Power == nil {
		st.Power = make(map[model.Device]model.PowerState)
	}
	if !m.heater {
		delete(st.Power, model.DeviceHeater)
	}
	m.states[terrariumID] = st
	return st, nil
}

// Клиент API устройств террариума
func (m *Dispatcher) device(terrariumID string) (service.DeviceSvc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.devices[terrariumID]; ok {
		return d, nil
	}
	terrarium, err := m.dbStore.Terrarium(terrariumID)
	if err != nil {
		if m.dbStore.IsNotFound(err) {
			return nil, errors.NotFoundf("террариум %q", terrariumID)
		}
		return nil, errors.Trace(err)
	}
	d, err := device.NewDevice(m.ctx, &device.ConfigDevice{
		Log:         m.deviceLog,
		TerrariumID: terrariumID,
		Address:     terrarium.Address,
		TimeOut:     m.deviceTimeOut,
	})
	if err != nil {
		return nil, errors.Annotatef(err, "клиент устройств террариума %s", terrariumID)
	}
	m.devices[terrariumID] = d
	return d, nil
}

// Сохранение состояния не критично для команды
func (m *Dispatcher) persist(state model.DeviceState) {
	if err := m.dbStore.SetDeviceState(state); err != nil {
		m.log.Warnf("состояние устройств террариума %s не сохранено: %s", state.TerrariumID, err)
	}
}

// Публикация в журнал без ожидания
func (m *Dispatcher) publish(terrariumID string, key model.ActionKey, dev model.Device, result string, cause error) {
	event := model.DeviceEvent{
		ID:          uuid.New().String(),
		TerrariumID: terrariumID,
		ActionKey:   key,
		Device:      dev,
		Result:      result,
		At:          m.now(),
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	go func() {
		ctx, cancel := context.WithTimeout(m.ctx, journalTimeout)
		defer cancel()
		if err := m.journal.Publish(ctx, event); err != nil {
			m.log.Warnf("событие %s не записано в журнал: %s", event.ID, err)
		}
	}()
}

func powerState(on bool) model.PowerState {
	if on {
		return model.PowerOn
	}
	return model.PowerOff
}

func setFlag(st *model.DeviceState, dev model.Device, on bool) {
	switch dev {
	case model.DevicePump:
		st.WaterPump = on
	case model.DeviceFan:
		st.Vent = on
	case model.DeviceLight:
		st.GrowLight = on
	case model.DeviceHeater:
		st.Heater = on
	}
}

func copyState(st *model.DeviceState) *model.DeviceState {
	res := *st
	res.Power = make(map[model.Device]model.PowerState, len(st.Power))
	for k, v := range st.Power {
		res.Power[k] = v
	}
	return &res
}
