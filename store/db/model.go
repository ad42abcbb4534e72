package db

import (
	"time"

	"github.com/kirsrus/healing-garden/server/model"
)

type (
	// GormModelUnscoped модель эквивалент gorm.Model без сохранения удалений
	GormModelUnscoped struct {
		ID        int `gorm:"primaryKey"`
		CreatedAt time.Time
		UpdatedAt time.Time
	}
)

type (
	// Terrarium описание террариума
	Terrarium struct {
		GormModelUnscoped
		TerrariumID string `gorm:"uniqueIndex"`
		Name        string
		PlantType   string
		// Адрес API устройств, например http://192.168.0.10:5000
		Address     string
		LedColor    string
		Description string
	}
)

// TableName имя таблицы
func (Terrarium) TableName() string {
	return "terrariums"
}

// Update обновление данных текущего террариума из terrarium
func (m *Terrarium) Update(terrarium Terrarium) {
	m.Name = terrarium.Name
	m.PlantType = terrarium.PlantType
	m.Address = terrarium.Address
	m.LedColor = terrarium.LedColor
	m.Description = terrarium.Description
}

// ToTerrarium маппинг в model.Terrarium
func (m Terrarium) ToTerrarium() model.Terrarium {
	return model.Terrarium{
		ID:          m.TerrariumID,
		Name:        m.Name,
		PlantType:   model.PlantType(m.PlantType),
		Address:     m.Address,
		LedColor:    m.LedColor,
		Description: m.Description,
	}
}

// FromTerrarium заполняет текущую структуру из model.Terrarium
func (m *Terrarium) FromTerrarium(terrarium model.Terrarium) {
	*m = Terrarium{
		TerrariumID: terrarium.ID,
		Name:        terrarium.Name,
		PlantType:   string(terrarium.PlantType),
		Address:     terrarium.Address,
		LedColor:    terrarium.LedColor,
		Description: terrarium.Description,
	}
}

type (
	// SnapshotLog лог показаний сенсоров. Неизвестные значения хранятся как NULL
	SnapshotLog struct {
		GormModelUnscoped
		TerrariumID string `gorm:"index"`
		Temperature *float64
		Humidity    *float64
		Light       *float64
		ObservedAt  time.Time `gorm:"index"`
	}
)

// TableName имя таблицы
func (SnapshotLog) TableName() string {
	return "snapshot_log"
}

// ToSnapshot маппинг в model.SensorSnapshot
func (m SnapshotLog) ToSnapshot() model.SensorSnapshot {
	return model.SensorSnapshot{
		Temperature: m.Temperature,
		Humidity:    m.Humidity,
		Light:       m.Light,
		ObservedAt:  m.ObservedAt,
	}
}

type (
	// DeviceState последнее подтверждённое состояние устройств террариума
	DeviceState struct {
		GormModelUnscoped
		TerrariumID string `gorm:"uniqueIndex"`
		WaterPump   bool
		GrowLight   bool
		Vent        bool
		Heater      bool
		// Цвет в формате #RRGGBB
		LedColor  string
		Simulated bool
	}
)

// TableName имя таблицы
func (DeviceState) TableName() string {
	return "device_state"
}

type (
	// MoodDiary дневник настроения
	MoodDiary struct {
		GormModelUnscoped
		User  string `gorm:"uniqueIndex:idx_mood_user_date"`
		Date  string `gorm:"uniqueIndex:idx_mood_user_date"`
		Mood  int
		Diary string
	}
)

// TableName имя таблицы
func (MoodDiary) TableName() string {
	return "mood_diary"
}

// ToEntry маппинг в model.MoodDiaryEntry
func (m MoodDiary) ToEntry() model.MoodDiaryEntry {
	return model.MoodDiaryEntry{
		User:      m.User,
		Date:      m.Date,
		Mood:      m.Mood,
		Diary:     m.Diary,
		UpdatedAt: m.UpdatedAt,
	}
}
