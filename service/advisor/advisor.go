package advisor

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
	"github.com/kirsrus/healing-garden/server/pkg/breaker"
	"github.com/kirsrus/healing-garden/server/pkg/validator"
	"github.com/kirsrus/healing-garden/server/service"
)

const (
	requestTimeout  = 10 * time.Second
	maxResponseSize = 1 << 20
	evaluatePath    = "/evaluate"
	cheerPath       = "/cheer"
)

// Advisor клиент удалённого вычислителя рекомендаций. Имплементирует AdvisorSvc.
// Инициируется конструктором NewAdvisor
type Advisor struct {
	ctx     context.Context
	log     *logrus.Entry
	address string
	client  *http.Client
	breaker *breaker.Breaker
}

// ConfigAdvisor конфигурация конструктора NewAdvisor
type ConfigAdvisor struct {
	Log     *logrus.Logger
	Address string `conform:"trim" validate:"required,httpurl"`
	TimeOut time.Duration
	// Число подряд неудачных обращений до размыкания предохранителя
	MaxFailures int
	// Время в разомкнутом состоянии
	ResetTimeout time.Duration
}

// NewAdvisor констурктор Advisor
func NewAdvisor(ctx context.Context, config *ConfigAdvisor) (service.AdvisorSvc, error) {
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

	return &Advisor{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module":  "advisor",
			"scope":   "service",
			"address": config.Address,
		}),
		address: strings.TrimRight(config.Address, "/"),
		client:  &http.Client{Timeout: timeout},
		breaker: breaker.New("advisor", &breaker.Config{
			Log:          config.Log,
			MaxFailures:  config.MaxFailures,
			ResetTimeout: config.ResetTimeout,
		}),
	}, nil
}

type evaluateRequest struct {
	Name      string   `json:"name"`
	PlantType string   `json:"plantType"`
	Temp      *float64 `json:"temp"`
	Hum       *float64 `json:"hum"`
	Lux       *float64 `json:"lux"`
}

func newEvaluateRequest(profile model.PlantProfile, snapshot model.SensorSnapshot) evaluateRequest {
	return evaluateRequest{
		Name:      profile.Name,
		PlantType: string(profile.PlantType),
		Temp:      snapshot.Temperature,
		Hum:       snapshot.Humidity,
		Lux:       snapshot.Light,
	}
}

type cheerRequest struct {
	evaluateRequest
	Mood  *int   `json:"mood"`
	Diary string `json:"diary"`
	Date  string `json:"date"`
}

type evaluateResponse struct {
	Recommendations *[]remoteRecommendation `json:"recommendations"`
}

type cheerResponse struct {
	Cheer           string                  `json:"cheer"`
	Recommendations *[]remoteRecommendation `json:"recommendations"`
}

// Evaluate рекомендации по текущим показаниям
func (m Advisor) Evaluate(ctx context.Context, profile model.PlantProfile, snapshot model.SensorSnapshot) ([]model.Recommendation, error) {
	var (
		resp evaluateResponse
		recs []model.Recommendation
	)
	err := m.post(ctx, evaluatePath, newEvaluateRequest(profile, snapshot), &resp, func() error {
		if resp.Recommendations == nil {
			return errors.New("в ответе нет поля recommendations")
		}
		var err error
		recs, err = parseRecommendations(*resp.Recommendations)
		return errors.Trace(err)
	})
	if err != nil {
		return nil, err
	}
	m.log.Debugf("получено %d рекомендаций для %q", len(recs), profile.Name)
	return recs, nil
}

// Cheer ободряющее сообщение с учётом записи дневника
func (m Advisor) Cheer(ctx context.Context, profile model.PlantProfile, snapshot model.SensorSnapshot, mood *model.MoodDiaryEntry) (*model.Cheer, error) {
	req := cheerRequest{evaluateRequest: newEvaluateRequest(profile, snapshot)}
	if mood != nil {
		req.Mood = &mood.Mood
		req.Diary = mood.Diary
		req.Date = mood.Date
	}

	var (
		resp cheerResponse
		recs []model.Recommendation
	)
	err := m.post(ctx, cheerPath, req, &resp, func() error {
		if strings.TrimSpace(resp.Cheer) == "" {
			return errors.New("в ответе нет поля cheer")
		}
		if resp.Recommendations == nil || len(*resp.Recommendations) == 0 {
			return nil
		}
		var err error
		recs, err = parseRecommendations(*resp.Recommendations)
		return errors.Trace(err)
	})
	if err != nil {
		return nil, err
	}
	return &model.Cheer{
		Message:         strings.TrimSpace(resp.Cheer),
		Source:          model.SourceRemote,
		Mood:            mood,
		Recommendations: recs,
	}, nil
}

// Запрос к вычислителю под защитой предохранителя. Ответ раскладывается в out и проверяется
// check. Некорректный ответ считается отказом вычислителя наравне с сетевой ошибкой
func (m Advisor) post(ctx context.Context, path string, body interface{}, out interface{}, check func() error) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Trace(err)
	}

	err = m.breaker.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.address+path, bytes.NewReader(payload))
		if err != nil {
			return errors.Trace(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := m.client.Do(req)
		if err != nil {
			return errors.Trace(err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := ioutil.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return errors.Trace(err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return errors.Errorf("%s вернул статус %d", path, resp.StatusCode)
		}
		if err = json.Unmarshal(data, out); err != nil {
			return errors.Annotatef(err, "некорректный JSON от %s", path)
		}
		if check != nil {
			return errors.Annotatef(check(), "некорректный ответ %s", path)
		}
		return nil
	})
	if err != nil {
		return m.fail(err)
	}
	return nil
}

func (m Advisor) fail(err error) error {
	m.log.Warnf("отказ вычислителя: %s", err)
	return errors.Wrapf(err, service.ErrRemoteFailure, "%s", err)
}

// remoteRecommendation рекомендация в ответе вычислителя
type remoteRecommendation struct {
	ID          string `json:"id"`
	Message     string `json:"message"`
	ActionKey   string `json:"actionKey"`
	ActionLabel string `json:"actionLabel"`
}

// Проверка и приведение рекомендаций вычислителя к model.Recommendation
func parseRecommendations(items []remoteRecommendation) ([]model.Recommendation, error) {
	if len(items) == 0 {
		return nil, errors.New("пустой список recommendations")
	}
	res := make([]model.Recommendation, 0, len(items))
	for i, v := range items {
		message := strings.TrimSpace(v.Message)
		if message == "" {
			return nil, errors.Errorf("рекомендация %d без message", i)
		}
		key := ParseActionKey(v.ActionKey)
		label := strings.TrimSpace(v.ActionLabel)
		if label == "" {
			label = key.Label()
		}
		id := strings.TrimSpace(v.ID)
		if id == "" {
			id = fmt.Sprintf("remote_%d", i+1)
		}
		res = append(res, model.Recommendation{
			ID:          id,
			Message:     message,
			ActionKey:   key,
			ActionLabel: label,
		})
	}
	return res, nil
}
