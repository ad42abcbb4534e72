package evaluator

import (
	"context"
	"io/ioutil"
	"strconv"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"github.com/kirsrus/healing-garden/server/controller"
	"github.com/kirsrus/healing-garden/server/model"
	"github.com/kirsrus/healing-garden/server/pkg/metrics"
	"github.com/kirsrus/healing-garden/server/pkg/validator"
	"github.com/kirsrus/healing-garden/server/service"
	"github.com/kirsrus/healing-garden/server/store"
)

// Evaluator оценка среды террариумов. Каждая оценка получает следующий номер поколения,
// рекомендации прежних поколений применить нельзя. Инициализируется через NewEvaluator
type Evaluator struct {
	ctx context.Context
	log *logrus.Entry

	dbStore   store.DbStore
	snapshots controller.SnapshotCtl
	advisor   service.AdvisorSvc
	rules     Rules
	chain     Chain

	mu          sync.Mutex
	generations map[string]uint64
	current     map[string]*model.Evaluation

	now func() time.Time
}

// ConfigEvaluator конфигурация Evaluator
type ConfigEvaluator struct {
	Log       *logrus.Logger
	DbStore   store.DbStore
	Snapshots controller.SnapshotCtl
	// Удалённый вычислитель. Без него оценка только локальная
	Advisor service.AdvisorSvc
	Ranges  model.RangeTable
	Heater  bool
}

// NewEvaluator конструктор Evaluator
func NewEvaluator(ctx context.Context, config *ConfigEvaluator) (controller.EvaluatorCtl, error) {
	return newEvaluator(ctx, config)
}

func newEvaluator(ctx context.Context, config *ConfigEvaluator) (*Evaluator, error) {
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

	rules := Rules{Ranges: config.Ranges, Heater: config.Heater}
	chain := Chain{}
	if config.Advisor != nil {
		chain = append(chain, remoteStrategy{advisor: config.Advisor})
	}
	chain = append(chain, localStrategy{rules: rules})

	return &Evaluator{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "evaluator",
			"scope":  "controller",
		}),
		dbStore:     config.DbStore,
		snapshots:   config.Snapshots,
		advisor:     config.Advisor,
		rules:       rules,
		chain:       chain,
		generations: make(map[string]uint64),
		current:     make(map[string]*model.Evaluation),
		now:         time.Now,
	}, nil
}

// Evaluate оценивает среду террариума. Отказ удалённого вычислителя не возвращается
// ошибкой: рекомендации берутся из локальных правил
func (m *Evaluator) Evaluate(ctx context.Context, terrariumID string) (*model.Evaluation, error) {
	terrarium, err := m.terrarium(terrariumID)
	if err != nil {
		return nil, err
	}
	snapshot := m.snapshot(ctx, terrariumID)

	res, err := m.chain.Run(ctx, terrarium.Profile(), snapshot)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if res.Fallback {
		m.log.Infof("террариум %s: оценка по локальным правилам (%s)", terrariumID, res.Failure)
	}
	metrics.Evaluations.WithLabelValues(res.Source, strconv.FormatBool(res.Fallback)).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.generations[terrariumID]++
	evaluation := &model.Evaluation{
		TerrariumID:     terrariumID,
		Generation:      m.generations[terrariumID],
		Source:          res.Source,
		Fallback:        res.Fallback,
		Snapshot:        snapshot,
		Recommendations: res.Recommendations,
		CreatedAt:       m.now(),
	}
	m.current[terrariumID] = evaluation
	return copyEvaluation(evaluation), nil
}

// Current последняя оценка террариума
func (m *Evaluator) Current(terrariumID string) (*model.Evaluation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	evaluation, ok := m.current[terrariumID]
	if !ok {
		return nil, errors.NotFoundf("оценка террариума %q", terrariumID)
	}
	return copyEvaluation(evaluation), nil
}

// Resolve рекомендация recommendationID оценки generation. Если с тех пор выполнена новая оценка,
// возвращается ErrStale
func (m *Evaluator) Resolve(terrariumID string, generation uint64, recommendationID string) (model.Recommendation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	evaluation, ok := m.current[terrariumID]
	if !ok {
		return model.Recommendation{}, errors.NotFoundf("оценка террариума %q", terrariumID)
	}
	if generation < evaluation.Generation {
		return model.Recommendation{}, errors.Trace(controller.ErrStale)
	}
	if generation > evaluation.Generation {
		return model.Recommendation{}, errors.NotFoundf("оценка %d террариума %q", generation, terrariumID)
	}
	rec, ok := evaluation.Find(recommendationID)
	if !ok {
		return model.Recommendation{}, errors.NotFoundf("рекомендация %q", recommendationID)
	}
	return rec, nil
}

// Cheer ободряющее сообщение с учётом записи дневника пользователя за дату. Пустая дата - сегодня
func (m *Evaluator) Cheer(ctx context.Context, terrariumID string, user string, date string) (*model.Cheer, error) {
	if date == "" {
		date = m.now().Format(validator.IsoDate)
	} else if _, err := time.Parse(validator.IsoDate, date); err != nil {
		return nil, errors.NotValidf("дата %q", date)
	}
	terrarium, err := m.terrarium(terrariumID)
	if err != nil {
		return nil, err
	}
	snapshot := m.snapshot(ctx, terrariumID)
	profile := terrarium.Profile()

	mood, err := m.dbStore.Mood(user, date)
	if err != nil {
		if !m.dbStore.IsNotFound(err) {
			return nil, errors.Trace(err)
		}
		mood = nil
	}

	if m.advisor != nil {
		cheer, err := m.advisor.Cheer(ctx, profile, snapshot, mood)
		if err == nil {
			cheer.TerrariumID = terrariumID
			if len(cheer.Recommendations) == 0 {
				cheer.Recommendations = m.rules.Evaluate(snapshot, profile)
			}
			metrics.Evaluations.WithLabelValues(model.SourceRemote, "false").Inc()
			return cheer, nil
		}
		m.log.Infof("террариум %s: сообщение по локальным правилам (%s)", terrariumID, err)
	}

	metrics.Evaluations.WithLabelValues(model.SourceLocal, strconv.FormatBool(m.advisor != nil)).Inc()
	return &model.Cheer{
		TerrariumID:     terrariumID,
		Message:         cheerMessage(mood),
		Source:          model.SourceLocal,
		Fallback:        m.advisor != nil,
		Mood:            mood,
		Recommendations: m.rules.Evaluate(snapshot, profile),
	}, nil
}

func (m *Evaluator) terrarium(terrariumID string) (*model.Terrarium, error) {
	terrarium, err := m.dbStore.Terrarium(terrariumID)
	if err != nil {
		if m.dbStore.IsNotFound(err) {
			return nil, errors.NotFoundf("террариум %q", terrariumID)
		}
		return nil, errors.Trace(err)
	}
	return terrarium, nil
}

// Последние показания. Если их ещё нет, делается попытка опросить источник, а при неудаче
// оценивается пустой снимок
func (m *Evaluator) snapshot(ctx context.Context, terrariumID string) model.SensorSnapshot {
	snapshot, err := m.snapshots.Latest(terrariumID)
	if err == nil {
		return snapshot
	}
	snapshot, err = m.snapshots.Refresh(ctx, terrariumID)
	if err != nil {
		m.log.Debugf("террариум %s: показаний нет (%s)", terrariumID, err)
		return model.SensorSnapshot{}
	}
	return snapshot
}

func copyEvaluation(e *model.Evaluation) *model.Evaluation {
	res := *e
	res.Snapshot = e.Snapshot.Clone()
	res.Recommendations = append([]model.Recommendation(nil), e.Recommendations...)
	return &res
}
