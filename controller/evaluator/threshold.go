package evaluator

import (
	"fmt"

	"github.com/kirsrus/healing-garden/server/model"
)

// Идентификатор рекомендации "всё в порядке"
const okID = "ok"

// Правило проверки величины: идентификаторы, сообщения и команды выхода за диапазон
type dimensionRule struct {
	dimension   model.Dimension
	prefix      string
	lowMessage  string
	highMessage string
	lowAction   model.ActionKey
	highAction  model.ActionKey
}

// Порядок правил задаёт порядок рекомендаций
var dimensionRules = []dimensionRule{
	{
		dimension:   model.DimensionTemperature,
		prefix:      "temp",
		lowMessage:  "온도가 낮습니다 (%.1f°C). 온도를 올려주세요.",
		highMessage: "온도가 높습니다 (%.1f°C). 환기팬을 작동시켜 온도를 낮춰주세요.",
		lowAction:   model.ActionNone,
		highAction:  model.ActionVentOn,
	},
	{
		dimension:   model.DimensionHumidity,
		prefix:      "hum",
		lowMessage:  "습도가 낮습니다 (%.1f%%). 워터펌프를 작동시켜 습도를 올려보세요.",
		highMessage: "습도가 높습니다 (%.1f%%). 워터펌프를 멈추고 환기해주세요.",
		lowAction:   model.ActionWaterPumpOn,
		highAction:  model.ActionWaterPumpOff,
	},
	{
		dimension:   model.DimensionLight,
		prefix:      "lux",
		lowMessage:  "조도가 낮습니다 (%.0f lx). 조명을 높여주세요.",
		highMessage: "조도가 높습니다 (%.0f lx). 조명을 꺼주세요.",
		lowAction:   model.ActionGrowLightOn,
		highAction:  model.ActionGrowLightOff,
	},
}

const (
	okMessage        = "현재 환경은 양호합니다."
	heaterLowMessage = "온도가 낮습니다 (%.1f°C). 히터를 가동해 온도를 올려주세요."
)

// Rules локальная оценка среды по здоровым диапазонам. Оценка не выполняет ввода-вывода
// и для одинаковых входных данных всегда даёт одинаковый результат
type Rules struct {
	// Диапазоны по типам растений
	Ranges model.RangeTable
	// Подключён нагреватель: низкая температура исправляется командой heater_on
	Heater bool
}

// Evaluate рекомендации по показаниям. Неизвестные величины пропускаются. Если ни одна
// величина не вышла за диапазон, возвращается единственная рекомендация ok
func (m Rules) Evaluate(snapshot model.SensorSnapshot, profile model.PlantProfile) []model.Recommendation {
	ranges := m.Ranges.For(profile.PlantType)
	res := make([]model.Recommendation, 0, len(dimensionRules))

	for _, rule := range dimensionRules {
		v := snapshot.Get(rule.dimension)
		if v == nil {
			continue
		}
		r := ranges.For(rule.dimension)
		switch {
		case r.Below(*v):
			action, message := rule.lowAction, rule.lowMessage
			if rule.dimension == model.DimensionTemperature && m.Heater {
				action, message = model.ActionHeaterOn, heaterLowMessage
			}
			res = append(res, newRecommendation(rule.prefix+"_low", fmt.Sprintf(message, *v), action))
		case r.Above(*v):
			res = append(res, newRecommendation(rule.prefix+"_high", fmt.Sprintf(rule.highMessage, *v), rule.highAction))
		}
	}

	if len(res) == 0 {
		res = append(res, newRecommendation(okID, okMessage, model.ActionNone))
	}
	return res
}

func newRecommendation(id string, message string, action model.ActionKey) model.Recommendation {
	return model.Recommendation{
		ID:          id,
		Message:     message,
		ActionKey:   action,
		ActionLabel: action.Label(),
	}
}
