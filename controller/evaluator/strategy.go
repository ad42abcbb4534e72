package evaluator

import (
	"context"

	"github.com/juju/errors"

	"github.com/kirsrus/healing-garden/server/model"
	"github.com/kirsrus/healing-garden/server/service"
)

// Strategy способ получения рекомендаций
type Strategy interface {
	// Источник рекомендаций (model.SourceRemote, model.SourceLocal)
	Source() string
	Recommend(ctx context.Context, profile model.PlantProfile, snapshot model.SensorSnapshot) ([]model.Recommendation, error)
}

// Удалённый вычислитель
type remoteStrategy struct {
	advisor service.AdvisorSvc
}

func (m remoteStrategy) Source() string {
	return model.SourceRemote
}

func (m remoteStrategy) Recommend(ctx context.Context, profile model.PlantProfile, snapshot model.SensorSnapshot) ([]model.Recommendation, error) {
	return m.advisor.Evaluate(ctx, profile, snapshot)
}

// Локальные правила. Никогда не возвращает ошибку
type localStrategy struct {
	rules Rules
}

func (m localStrategy) Source() string {
	return model.SourceLocal
}

func (m localStrategy) Recommend(_ context.Context, profile model.PlantProfile, snapshot model.SensorSnapshot) ([]model.Recommendation, error) {
	return m.rules.Evaluate(snapshot, profile), nil
}

// Chain упорядоченный список стратегий, опрашиваемых до первого успеха
type Chain []Strategy

// Result итог опроса цепочки
type Result struct {
	Recommendations []model.Recommendation
	Source          string
	// Рекомендации получены не от первой стратегии
	Fallback bool
	// Последняя ошибка отказавших стратегий
	Failure error
}

// Run опрашивает стратегии по порядку. Ошибка возвращается только если отказали все
func (m Chain) Run(ctx context.Context, profile model.PlantProfile, snapshot model.SensorSnapshot) (Result, error) {
	var lastErr error
	for i, s := range m {
		recs, err := s.Recommend(ctx, profile, snapshot)
		if err != nil {
			lastErr = err
			continue
		}
		return Result{Recommendations: recs, Source: s.Source(), Fallback: i > 0, Failure: lastErr}, nil
	}
	if lastErr == nil {
		return Result{}, errors.New("не задано ни одной стратегии оценки")
	}
	return Result{}, errors.Annotate(lastErr, "все стратегии оценки отказали")
}
