package model

import "time"

// Dimension измеряемая величина
type Dimension string

const (
	DimensionTemperature Dimension = "temperature"
	DimensionHumidity    Dimension = "humidity"
	DimensionLight       Dimension = "light"
)

// Dimensions фиксированный порядок проверки величин
var Dimensions = []Dimension{DimensionTemperature, DimensionHumidity, DimensionLight}

// SensorSnapshot последние известные показания сенсоров террариума. Значение, которое
// сенсор ещё не прислал, равно nil и никогда не трактуется как ноль
type SensorSnapshot struct {
	// Температура, °C
	Temperature *float64 `json:"temperature"`
	// Влажность, % (0-100)
	Humidity *float64 `json:"humidity"`
	// Освещённость, lux (>=0)
	Light *float64 `json:"light"`
	// Время замера
	ObservedAt time.Time `json:"observedAt"`
}

// Float указатель на копию значения
func Float(v float64) *float64 {
	return &v
}

// Get значение величины d или nil, если оно неизвестно
func (m SensorSnapshot) Get(d Dimension) *float64 {
	switch d {
	case DimensionTemperature:
		return m.Temperature
	case DimensionHumidity:
		return m.Humidity
	case DimensionLight:
		return m.Light
	}
	return nil
}

// Set устанавливает величину d
func (m *SensorSnapshot) Set(d Dimension, v *float64) {
	if v != nil {
		v = Float(*v)
	}
	switch d {
	case DimensionTemperature:
		m.Temperature = v
	case DimensionHumidity:
		m.Humidity = v
	case DimensionLight:
		m.Light = v
	}
}

// IsEmpty ни одна величина не известна
func (m SensorSnapshot) IsEmpty() bool {
	return m.Temperature == nil && m.Humidity == nil && m.Light == nil
}

// Clone глубокая копия
func (m SensorSnapshot) Clone() SensorSnapshot {
	res := SensorSnapshot{ObservedAt: m.ObservedAt}
	for _, d := range Dimensions {
		res.Set(d, m.Get(d))
	}
	return res
}

// Merge накладывает более новые показания newer на текущие. Известные в newer величины
// заменяют текущие, неизвестные остаются прежними
func (m SensorSnapshot) Merge(newer SensorSnapshot) SensorSnapshot {
	res := m.Clone()
	for _, d := range Dimensions {
		if v := newer.Get(d); v != nil {
			res.Set(d, v)
		}
	}
	res.ObservedAt = newer.ObservedAt
	return res
}

// Equal одинаковые показания и время замера
func (m SensorSnapshot) Equal(other SensorSnapshot) bool {
	if !m.ObservedAt.Equal(other.ObservedAt) {
		return false
	}
	for _, d := range Dimensions {
		a, b := m.Get(d), other.Get(d)
		if (a == nil) != (b == nil) {
			return false
		}
		if a != nil && *a != *b {
			return false
		}
	}
	return true
}

// SensorMetric элемент истории показаний (для отображения в графиках). В сжатом виде
// Min и Max содержат дневные минимумы и максимумы, а Snapshot пуст
type SensorMetric struct {
	Date     time.Time      `json:"date"`
	Snapshot SensorSnapshot `json:"snapshot"`
	Min      SensorSnapshot `json:"min"`
	Max      SensorSnapshot `json:"max"`
}
