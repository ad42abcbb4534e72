package model

import "time"

// Пользователь дневника по умолчанию
const DefaultUser = "default"

// MoodDiaryEntry запись дневника настроения. Одна запись на день для пользователя
type MoodDiaryEntry struct {
	User string `json:"user" conform:"trim"`
	// Дата в формате YYYY-MM-DD
	Date string `json:"date" conform:"trim" validate:"required,isodate"`
	// Настроение от 0 (очень плохо) до 4 (отлично)
	Mood      int       `json:"mood" validate:"min=0,max=4"`
	Diary     string    `json:"diary" conform:"trim"`
	UpdatedAt time.Time `json:"timestamp"`
}
