package model

// IdealRange здоровый диапазон [Min, Max] величины
type IdealRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Below значение ниже диапазона
func (m IdealRange) Below(v float64) bool {
	return v < m.Min
}

// Above значение выше диапазона
func (m IdealRange) Above(v float64) bool {
	return v > m.Max
}

// IdealRanges диапазоны всех величин
type IdealRanges struct {
	Temperature IdealRange `json:"temperature"`
	Humidity    IdealRange `json:"humidity"`
	Light       IdealRange `json:"light"`
}

// For диапазон величины d
func (m IdealRanges) For(d Dimension) IdealRange {
	switch d {
	case DimensionHumidity:
		return m.Humidity
	case DimensionLight:
		return m.Light
	default:
		return m.Temperature
	}
}

// DefaultIdealRanges таблица диапазонов по умолчанию
func DefaultIdealRanges() IdealRanges {
	return IdealRanges{
		Temperature: IdealRange{Min: 20, Max: 26},
		Humidity:    IdealRange{Min: 40, Max: 70},
		Light:       IdealRange{Min: 50, Max: 800},
	}
}

// RangeTable диапазоны по типам растений
type RangeTable map[PlantType]IdealRanges

// For диапазоны для типа растения. Если тип не описан - диапазоны по умолчанию
func (m RangeTable) For(plantType PlantType) IdealRanges {
	if r, ok := m[plantType]; ok {
		return r
	}
	return DefaultIdealRanges()
}
