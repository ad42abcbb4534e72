package breaker

import (
	"context"
	"io/ioutil"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

// State состояние предохранителя
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

const (
	defaultMaxFailures  = 3
	defaultResetTimeout = 30 * time.Second
)

// ErrOpen предохранитель разомкнут, обращение не выполнялось
var ErrOpen = errors.New("предохранитель разомкнут")

// Config конфигурация предохранителя
type Config struct {
	Log *logrus.Logger

	// Число подряд неудачных обращений до размыкания
	MaxFailures int

	// Время в разомкнутом состоянии до пробного обращения
	ResetTimeout time.Duration
}

// Breaker предохранитель обращений к внешнему сервису
type Breaker struct {
	name string
	cfg  Config
	log  *logrus.Entry

	mu          sync.Mutex
	state       State
	recentFails int
	openedAt    time.Time

	// Для тестов
	now func() time.Time
}

// New конструктор
func New(name string, config *Config) *Breaker {
	cfg := Config{}
	if config != nil {
		cfg = *config
	}
	if cfg.Log == nil {
		cfg.Log = logrus.New()
		cfg.Log.Out = ioutil.Discard
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = defaultMaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = defaultResetTimeout
	}

	return &Breaker{
		name: name,
		cfg:  cfg,
		log: cfg.Log.WithFields(map[string]interface{}{
			"module": "breaker",
			"scope":  name,
		}),
		state: Closed,
		now:   time.Now,
	}
}

// Execute выполняет op под защитой предохранителя. В разомкнутом состоянии сразу
// возвращает ErrOpen, по истечении ResetTimeout пропускает одно пробное обращение
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	b.mu.Lock()
	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = HalfOpen
		b.log.Debug("пробное обращение")
	case HalfOpen:
		// Пробное обращение уже выполняется
		b.mu.Unlock()
		return ErrOpen
	}
	b.mu.Unlock()

	if err := op(ctx); err != nil {
		b.onFailure(err)
		return errors.Trace(err)
	}
	b.onSuccess()
	return nil
}

// State текущее состояние
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Closed {
		b.log.Infof("предохранитель замкнут (был %s)", b.state)
	}
	b.state = Closed
	b.recentFails = 0
}

func (b *Breaker) onFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recentFails++
	b.log.Debugf("ошибка обращения %d/%d: %s", b.recentFails, b.cfg.MaxFailures, err)
	if b.state == HalfOpen || b.recentFails >= b.cfg.MaxFailures {
		b.state = Open
		b.openedAt = b.now()
		b.log.Warnf("предохранитель разомкнут после %d ошибок", b.recentFails)
	}
}
