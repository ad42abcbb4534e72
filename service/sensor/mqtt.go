package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"github.com/kirsrus/healing-garden/server/pkg/metrics"
	"github.com/kirsrus/healing-garden/server/service"
)

const (
	defaultTopic         = "garden/+/sensors"
	connectRetryInterval = 5 * time.Second
	subscribeTimeout     = 10 * time.Second
	disconnectQuiesce    = 250 // мс
)

// Mqtt подписка на документы сенсоров в MQTT брокере. Имплементирует SensorStreamSvc.
// Инициируется через NewMqtt
type Mqtt struct {
	log      *logrus.Entry
	broker   string
	topic    string
	clientID string
	qos      byte
}

// ConfigMqtt конфигурация Mqtt
type ConfigMqtt struct {
	Log    *logrus.Logger
	Broker string
	// Шаблон топика. Идентификатор террариума берётся из позиции '+'
	Topic    string
	ClientID string
}

// NewMqtt конструктор структуры Mqtt
func NewMqtt(config *ConfigMqtt) (service.SensorStreamSvc, error) {
	if config == nil {
		return nil, errors.New("не задана конфигурация config")
	}
	if config.Broker == "" {
		return nil, errors.New("не указан адрес брокера")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	res := &Mqtt{
		log: config.Log.WithFields(map[string]interface{}{
			"module": "mqtt",
			"scope":  "service",
			"broker": config.Broker,
		}),
		broker:   config.Broker,
		topic:    defaultTopic,
		clientID: fmt.Sprintf("healing-garden-%d", time.Now().UnixNano()),
		qos:      1,
	}
	if config.Topic != "" {
		res.topic = config.Topic
	}
	if config.ClientID != "" {
		res.clientID = config.ClientID
	}
	return res, nil
}

// Run подключается к брокеру и доставляет документы в handler до завершения ctx
func (m Mqtt) Run(ctx context.Context, handler service.SensorHandler) error {
	opts := mqtt.NewClientOptions().
		AddBroker(m.broker).
		SetClientID(m.clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(connectRetryInterval).
		SetOnConnectHandler(func(c mqtt.Client) {
			m.log.Info("подключение к брокеру установлено")
			tok := c.Subscribe(m.topic, m.qos, m.messageHandler(handler))
			if ok := tok.WaitTimeout(subscribeTimeout); !ok {
				m.log.Warnf("таймаут подписки на %s", m.topic)
				return
			}
			if err := tok.Error(); err != nil {
				m.log.Errorf("ошибка подписки на %s: %s", m.topic, err)
				return
			}
			m.log.Infof("подписка на %s", m.topic)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			m.log.Warnf("соединение с брокером потеряно: %s", err)
		})

	client := mqtt.NewClient(opts)
	tok := client.Connect()
	select {
	case <-ctx.Done():
		client.Disconnect(disconnectQuiesce)
		return nil
	case <-tok.Done():
	}
	if err := tok.Error(); err != nil {
		return errors.Annotate(err, "ошибка подключения к брокеру")
	}

	<-ctx.Done()
	m.log.Info("завершение работы модуля")
	client.Disconnect(disconnectQuiesce)
	return nil
}

func (m Mqtt) messageHandler(handler service.SensorHandler) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		var raw map[string]interface{}
		if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
			metrics.SensorReadings.WithLabelValues("malformed").Inc()
			m.log.Warnf("некорректный JSON в %s: %s", msg.Topic(), err)
			return
		}
		id, ok := TerrariumFromTopic(m.topic, msg.Topic())
		if !ok {
			id, ok = documentID(raw)
		}
		if !ok {
			metrics.SensorReadings.WithLabelValues("malformed").Inc()
			m.log.Warnf("не удалось определить террариум для %s", msg.Topic())
			return
		}
		handler(id, raw)
	}
}

// TerrariumFromTopic идентификатор террариума из топика по позиции '+' в шаблоне
func TerrariumFromTopic(pattern, topic string) (string, bool) {
	p := strings.Split(pattern, "/")
	t := strings.Split(topic, "/")
	for i, seg := range p {
		if i >= len(t) {
			return "", false
		}
		if seg == "+" && t[i] != "" {
			return t[i], true
		}
	}
	return "", false
}

// Идентификатор террариума из поля id документа
func documentID(raw map[string]interface{}) (string, bool) {
	switch v := raw["id"].(type) {
	case string:
		return v, v != ""
	case float64:
		return fmt.Sprintf("%v", v), true
	}
	return "", false
}
