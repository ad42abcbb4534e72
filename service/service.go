package service

import (
	"context"
	"net/http"

	"github.com/juju/errors"

	"github.com/kirsrus/healing-garden/server/model"
)

// ErrRemoteFailure удалённый вычислитель не дал пригодного ответа (сеть, таймаут, статус, формат)
var ErrRemoteFailure = errors.New("удалённый вычислитель недоступен")

// ErrDeviceFailure API устройств не подтвердило команду
var ErrDeviceFailure = errors.New("устройство не подтвердило команду")

// AdvisorSvc сервис общения с удалённым вычислителем рекомендаций (Garden AI)
type AdvisorSvc interface {
	// Рекомендации по текущим показаниям. Любая неудача возвращается как ErrRemoteFailure
	Evaluate(ctx context.Context, profile model.PlantProfile, snapshot model.SensorSnapshot) ([]model.Recommendation, error)
	// Ободряющее сообщение с учётом записи дневника. Рекомендации в ответе могут отсутствовать
	Cheer(ctx context.Context, profile model.PlantProfile, snapshot model.SensorSnapshot, mood *model.MoodDiaryEntry) (*model.Cheer, error)
}

// DeviceSvc сервис общения с API устройств одного террариума
type DeviceSvc interface {
	// Отправляет команду устройству. Неподтверждённая команда возвращается как ErrDeviceFailure
	Command(ctx context.Context, cmd model.DeviceCommand) (*model.DeviceResponse, error)
}

// SensorSvc источник последних показаний сенсоров по запросу
type SensorSvc interface {
	// Последний документ сенсоров террариума в исходном виде. Отсутствие проверяется через errors.IsNotFound
	Latest(ctx context.Context, terrariumID string) (map[string]interface{}, error)
}

// SensorHandler получатель документов сенсоров
type SensorHandler func(terrariumID string, raw map[string]interface{})

// SensorStreamSvc источник показаний сенсоров по подписке
type SensorStreamSvc interface {
	// Доставляет документы в handler до завершения ctx
	Run(ctx context.Context, handler SensorHandler) error
}

// LcdSvc сервис общения с ретранслятором команд LCD
type LcdSvc interface {
	// Ставит команду для LCD террариума
	Command(ctx context.Context, terrariumID string, cmd model.LcdCommand) error
	// Последняя команда. Отсутствие проверяется через errors.IsNotFound
	Last(ctx context.Context, terrariumID string) (*model.LcdCommand, error)
	// Подтверждение выполнения команды
	Ack(ctx context.Context, terrariumID string) error
}

// JournalSvc журнал команд устройствам
type JournalSvc interface {
	// Публикует событие. Ошибки журнала не влияют на выполнение команд
	Publish(ctx context.Context, event model.DeviceEvent) error
	Close() error
}

// WebSvc серис общения с WEB интерфейсом
type WebSvc interface {
	http.Handler

	// Приём и выдача показаний сенсоров (/sensors)
	Sensors(string)
	// API террариумов: снимки, оценка, команды устройствам, цвет, поток снимков
	Terrariums(string)
	// API дневника настроения
	Diary(string)
	// Ретранслятор команд LCD и загрузка видео
	Lcd(string)
	// Выдача загруженных видео. Имя файла ищется в параметре :name
	Videos(string)
	// Метрики prometheus
	Metrics(string)

	// Запуск сервера до завершения ctx
	Serve(ctx context.Context) error
}
