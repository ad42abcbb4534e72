package store

import (
	"github.com/kirsrus/healing-garden/server/model"
)

// DbStore репозирторий общения с БД
type DbStore interface {
	// Проверяет, что ошибка err обозначает, что записи не найдены
	IsNotFound(err error) bool

	// Список всех террариумов
	Terrariums() ([]model.Terrarium, error)
	// Террариум по идентификатору. Отсутствие проверяется через IsNotFound
	Terrarium(id string) (*model.Terrarium, error)
	// Добавляет террариум в БД. Если террариума не было, вернётся true, иначе он будет обновлён
	// и вернётся false
	SetTerrarium(model.Terrarium) (*model.Terrarium, bool, error)

	// Сохранение показаний сенсоров в лог замеров
	SetSnapshotLog(terrariumID string, snapshot model.SensorSnapshot) error
	// Показания сенсоров террариума за days дней (со смещением offsetDays). Если compact=true,
	// замеры сжимаются до дней с минимальными и максимальными значениями
	SnapshotLog(terrariumID string, days uint, offsetDays uint, compact bool) ([]model.SensorMetric, error)

	// Последнее сохранённое состояние устройств террариума
	DeviceState(terrariumID string) (*model.DeviceState, error)
	// Сохранение состояния устройств
	SetDeviceState(model.DeviceState) error

	// Запись дневника настроения пользователя за дату YYYY-MM-DD
	Mood(user string, date string) (*model.MoodDiaryEntry, error)
	// Записи дневника пользователя с from по to включительно (YYYY-MM-DD), по возрастанию даты.
	// Пустая граница не ограничивает выборку
	Moods(user string, from string, to string) ([]model.MoodDiaryEntry, error)
	// Добавляет или заменяет запись дневника (одна на пользователя и дату). Вернёт true для новой записи
	SetMood(model.MoodDiaryEntry) (*model.MoodDiaryEntry, bool, error)

	// Получает видео по имени файла
	Video(name string) ([]byte, error)
	// Сохраняет видео и возвращает имя созданного файла
	SetVideo(content []byte) (string, error)

	// Очищает записи лога замеров старше days дней
	Clean(days int) error
}
