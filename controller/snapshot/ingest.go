package snapshot

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kirsrus/healing-garden/server/model"
)

// Названия полей документа сенсоров в порядке предпочтения. Берётся первое заполненное поле
var fieldAliases = []struct {
	dimension model.Dimension
	keys      []string
}{
	{model.DimensionTemperature, []string{"temperature", "temp", "TEMP"}},
	{model.DimensionHumidity, []string{"humidity", "hum", "humid", "HUMID"}},
	{model.DimensionLight, []string{"light_level", "lux", "lightLevel", "light", "LIGHT"}},
}

var timestampAliases = []string{"timestamp", "observedAt", "observed_at", "time"}

// Допустимые значения величин
var validRanges = map[model.Dimension]model.IdealRange{
	model.DimensionTemperature: {Min: -40, Max: 85},
	model.DimensionHumidity:    {Min: 0, Max: 100},
	model.DimensionLight:       {Min: 0, Max: math.MaxFloat64},
}

// Граница, выше которой метка времени считается в миллисекундах
const millisecondsThreshold = 1e12

// Normalize приводит документ сенсоров к SensorSnapshot. Некорректные значения не попадают
// в результат и перечисляются в invalid. Метка времени без значения или некорректная
// заменяется на now
func Normalize(raw map[string]interface{}, now time.Time) (snapshot model.SensorSnapshot, invalid []string) {
	for _, f := range fieldAliases {
		for _, key := range f.keys {
			v, ok := raw[key]
			if !ok || v == nil {
				continue
			}
			if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
				continue
			}
			val, ok := toFloat(v)
			r := validRanges[f.dimension]
			if !ok || val < r.Min || val > r.Max {
				invalid = append(invalid, key)
			} else {
				snapshot.Set(f.dimension, &val)
			}
			break
		}
	}

	snapshot.ObservedAt = now
	for _, key := range timestampAliases {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		if t, ok := toTime(v); ok {
			snapshot.ObservedAt = t
		} else {
			invalid = append(invalid, key)
		}
		break
	}
	return snapshot, invalid
}

func toFloat(v interface{}) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int64:
		f = float64(val)
	case json.Number:
		n, err := val.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toTime(v interface{}) (time.Time, bool) {
	if s, ok := v.(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s)); err == nil {
			return t, true
		}
	}
	f, ok := toFloat(v)
	if !ok || f <= 0 {
		return time.Time{}, false
	}
	if f > millisecondsThreshold {
		return time.Unix(0, int64(f)*int64(time.Millisecond)), true
	}
	return time.Unix(int64(f), 0), true
}
