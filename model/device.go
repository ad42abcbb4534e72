package model

import "time"

// Device исполнительное устройство террариума
type Device string

const (
	DevicePump   Device = "pump"
	DeviceFan    Device = "fan"
	DeviceLight  Device = "matrix"
	DeviceHeater Device = "heater"
)

// PowerState состояние устройства
type PowerState string

const (
	PowerOff     PowerState = "OFF"
	PowerOn      PowerState = "ON"
	PowerPending PowerState = "PENDING"
)

// RGB цвет подсветки
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// DeviceState состояние устройств террариума, согласованное с последней подтверждённой командой
type DeviceState struct {
	TerrariumID string                `json:"terrariumId"`
	WaterPump   bool                  `json:"waterPump"`
	GrowLight   bool                  `json:"growLight"`
	Vent        bool                  `json:"vent"`
	Heater      bool                  `json:"heater"`
	LedColor    RGB                   `json:"ledColor"`
	Power       map[Device]PowerState `json:"power"`
	// Последнее изменение симулировано локально и не подтверждено устройством
	Simulated bool      `json:"simulated"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DeviceCommand команда API устройств террариума
type DeviceCommand struct {
	Device Device
	On     bool
	// Цвет для включения матрицы
	Color *RGB
}

// DeviceResponse ответ API устройств. Updated - обновлённые показания сенсоров, если есть
type DeviceResponse struct {
	Updated map[string]interface{} `json:"updated,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// Итог выполнения команды
const (
	ResultAck       = "ack"
	ResultSimulated = "simulated"
	ResultRollback  = "rollback"
	ResultRejected  = "rejected"
)

// DeviceEvent запись журнала команд устройствам
type DeviceEvent struct {
	ID          string    `json:"id"`
	TerrariumID string    `json:"terrariumId"`
	ActionKey   ActionKey `json:"actionKey"`
	Device      Device    `json:"device"`
	Result      string    `json:"result"`
	Error       string    `json:"error,omitempty"`
	At          time.Time `json:"at"`
}
