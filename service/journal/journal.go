package journal

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"time"

	"github.com/juju/errors"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/kirsrus/healing-garden/server/model"
	"github.com/kirsrus/healing-garden/server/service"
)

const (
	defaultTopic = "garden.device-commands"
	writeTimeout = 5 * time.Second
)

// Kafka журнал команд устройствам в топике Kafka. Имплементирует JournalSvc.
// Инициируется через NewJournal
type Kafka struct {
	log    *logrus.Entry
	writer *kafka.Writer
}

// ConfigJournal конфигурация NewJournal
type ConfigJournal struct {
	Log     *logrus.Logger
	Brokers []string
	Topic   string
}

// NewJournal конструктор журнала. Без брокеров возвращается журнал, отбрасывающий события
func NewJournal(config *ConfigJournal) (service.JournalSvc, error) {
	if config == nil {
		return nil, errors.New("не задана конфигурация config")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	if len(config.Brokers) == 0 {
		return Noop{}, nil
	}
	topic := defaultTopic
	if config.Topic != "" {
		topic = config.Topic
	}

	return &Kafka{
		log: config.Log.WithFields(map[string]interface{}{
			"module": "journal",
			"scope":  "service",
			"topic":  topic,
		}),
		writer: &kafka.Writer{
			Addr:         kafka.TCP(config.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			WriteTimeout: writeTimeout,
		},
	}, nil
}

// Publish публикует событие. Ключ сообщения - идентификатор террариума
func (m *Kafka) Publish(ctx context.Context, event model.DeviceEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return errors.Trace(err)
	}
	err = m.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.TerrariumID),
		Value: value,
		Time:  event.At,
	})
	if err != nil {
		m.log.Warnf("событие %s не записано в журнал: %s", event.ID, err)
		return errors.Trace(err)
	}
	return nil
}

// Close закрытие писателя
func (m *Kafka) Close() error {
	return errors.Trace(m.writer.Close())
}

// Noop журнал, отбрасывающий события
type Noop struct{}

// Publish ничего не делает
func (Noop) Publish(context.Context, model.DeviceEvent) error { return nil }

// Close ничего не делает
func (Noop) Close() error { return nil }
