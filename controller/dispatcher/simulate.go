package dispatcher

import (
	"math"

	"github.com/kirsrus/healing-garden/server/model"
)

// Изменение показаний при симуляции команды
type effect struct {
	dimension model.Dimension
	on        float64
	off       float64
}

var effects = map[model.Device]effect{
	model.DevicePump:   {dimension: model.DimensionHumidity, on: 10},
	model.DeviceLight:  {dimension: model.DimensionLight, on: 200, off: -200},
	model.DeviceFan:    {dimension: model.DimensionTemperature, on: -2},
	model.DeviceHeater: {dimension: model.DimensionTemperature, on: 2},
}

// Пределы симулируемых величин
var simulatedLimits = map[model.Dimension]model.IdealRange{
	model.DimensionTemperature: {Min: -40, Max: 85},
	model.DimensionHumidity:    {Min: 0, Max: 100},
	model.DimensionLight:       {Min: 0, Max: math.MaxFloat64},
}

// Симуляция влияния команды на показания. Неизвестная величина не симулируется
func (m *Dispatcher) simulate(terrariumID string, dev model.Device, on bool) {
	e, ok := effects[dev]
	if !ok {
		return
	}
	delta := e.off
	if on {
		delta = e.on
	}
	if delta == 0 {
		return
	}
	cur, err := m.snapshots.Latest(terrariumID)
	if err != nil {
		return
	}
	v := cur.Get(e.dimension)
	if v == nil {
		return
	}
	limit := simulatedLimits[e.dimension]
	next := math.Min(math.Max(*v+delta, limit.Min), limit.Max)

	update := model.SensorSnapshot{ObservedAt: m.now()}
	update.Set(e.dimension, &next)
	if !update.ObservedAt.After(cur.ObservedAt) {
		update.ObservedAt = cur.ObservedAt.Add(1)
	}
	m.snapshots.Update(terrariumID, update)
}
