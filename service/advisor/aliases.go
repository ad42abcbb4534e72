package advisor

import (
	"strings"

	"github.com/kirsrus/healing-garden/server/model"
)

// Названия команд, встречающиеся в ответах вычислителя разных версий
var actionAliases = map[string]model.ActionKey{
	"water_pump_on":  model.ActionWaterPumpOn,
	"water_pump":     model.ActionWaterPumpOn,
	"pump":           model.ActionWaterPumpOn,
	"pump_on":        model.ActionWaterPumpOn,
	"water":          model.ActionWaterPumpOn,
	"water_pump_off": model.ActionWaterPumpOff,
	"pump_off":       model.ActionWaterPumpOff,
	"grow_light_on":  model.ActionGrowLightOn,
	"grow_light":     model.ActionGrowLightOn,
	"light":          model.ActionGrowLightOn,
	"light_on":       model.ActionGrowLightOn,
	"led_on":         model.ActionGrowLightOn,
	"matrix_on":      model.ActionGrowLightOn,
	"grow_light_off": model.ActionGrowLightOff,
	"light_off":      model.ActionGrowLightOff,
	"led_off":        model.ActionGrowLightOff,
	"matrix_off":     model.ActionGrowLightOff,
	"vent_on":        model.ActionVentOn,
	"vent":           model.ActionVentOn,
	"fan":            model.ActionVentOn,
	"fan_on":         model.ActionVentOn,
	"vent_off":       model.ActionVentOff,
	"fan_off":        model.ActionVentOff,
	"heater_on":      model.ActionHeaterOn,
	"heater":         model.ActionHeaterOn,
	"heater_off":     model.ActionHeaterOff,
	"none":           model.ActionNone,
}

// ParseActionKey приводит команду вычислителя к model.ActionKey. Неизвестная команда
// считается рекомендацией без действия
func ParseActionKey(s string) model.ActionKey {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	if k, ok := actionAliases[key]; ok {
		return k
	}
	return model.ActionNone
}
