package model

import "time"

// ActionKey машинный идентификатор команды устройству
type ActionKey string

const (
	ActionWaterPumpOn  ActionKey = "water_pump_on"
	ActionWaterPumpOff ActionKey = "water_pump_off"
	ActionGrowLightOn  ActionKey = "grow_light_on"
	ActionGrowLightOff ActionKey = "grow_light_off"
	ActionVentOn       ActionKey = "vent_on"
	ActionVentOff      ActionKey = "vent_off"
	ActionHeaterOn     ActionKey = "heater_on"
	ActionHeaterOff    ActionKey = "heater_off"
	ActionNone         ActionKey = "none"
)

// Соответствие команды устройству и требуемому состоянию
var actionTargets = map[ActionKey]struct {
	device Device
	on     bool
}{
	ActionWaterPumpOn:  {DevicePump, true},
	ActionWaterPumpOff: {DevicePump, false},
	ActionGrowLightOn:  {DeviceLight, true},
	ActionGrowLightOff: {DeviceLight, false},
	ActionVentOn:       {DeviceFan, true},
	ActionVentOff:      {DeviceFan, false},
	ActionHeaterOn:     {DeviceHeater, true},
	ActionHeaterOff:    {DeviceHeater, false},
}

// Target устройство и требуемое состояние. ok=false для ActionNone и неизвестных команд
func (m ActionKey) Target() (device Device, on bool, ok bool) {
	t, ok := actionTargets[m]
	return t.device, t.on, ok
}

// IsValid команда из словаря
func (m ActionKey) IsValid() bool {
	_, ok := actionTargets[m]
	return ok || m == ActionNone
}

// Подписи кнопок по умолчанию
var actionLabels = map[ActionKey]string{
	ActionWaterPumpOn:  "워터펌프 ON",
	ActionWaterPumpOff: "워터펌프 OFF",
	ActionGrowLightOn:  "조명 ON",
	ActionGrowLightOff: "조명 OFF",
	ActionVentOn:       "환기팬 ON",
	ActionVentOff:      "환기팬 OFF",
	ActionHeaterOn:     "히터 가동",
	ActionHeaterOff:    "히터 OFF",
	ActionNone:         "문제 없음",
}

// Label подпись кнопки команды
func (m ActionKey) Label() string {
	if l, ok := actionLabels[m]; ok {
		return l
	}
	return actionLabels[ActionNone]
}

// Recommendation рекомендация по уходу с командой устройству
type Recommendation struct {
	// Стабильный ключ, например temp_low
	ID          string    `json:"id"`
	Message     string    `json:"message"`
	ActionKey   ActionKey `json:"actionKey"`
	ActionLabel string    `json:"actionLabel"`
}

// Источник рекомендаций
const (
	SourceRemote = "remote"
	SourceLocal  = "local"
)

// Evaluation результат оценки среды террариума. Каждая новая оценка получает следующий номер
// поколения, рекомендации прошлых поколений считаются устаревшими
type Evaluation struct {
	TerrariumID     string           `json:"terrariumId"`
	Generation      uint64           `json:"generation"`
	Source          string           `json:"source"`
	Fallback        bool             `json:"fallback"`
	Snapshot        SensorSnapshot   `json:"snapshot"`
	Recommendations []Recommendation `json:"recommendations"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// Find рекомендация по идентификатору
func (m Evaluation) Find(id string) (Recommendation, bool) {
	for _, r := range m.Recommendations {
		if r.ID == id {
			return r, true
		}
	}
	return Recommendation{}, false
}

// Cheer ободряющее сообщение с учётом настроения и рекомендации по уходу
type Cheer struct {
	TerrariumID     string           `json:"terrariumId"`
	Message         string           `json:"message"`
	Source          string           `json:"source"`
	Fallback        bool             `json:"fallback"`
	Mood            *MoodDiaryEntry  `json:"mood,omitempty"`
	Recommendations []Recommendation `json:"recommendations"`
}
