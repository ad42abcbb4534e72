package controller

import (
	"context"
	"time"

	"github.com/juju/errors"

	"github.com/kirsrus/healing-garden/server/model"
)

// ErrInProgress предыдущая команда устройству ещё не подтверждена
var ErrInProgress = errors.New("команда устройству уже выполняется")

// ErrStale рекомендация относится к устаревшей оценке
var ErrStale = errors.New("рекомендация устарела")

// SnapshotCtl хранилище последних показаний сенсоров террариумов
type SnapshotCtl interface {
	// Последние известные показания. Отсутствие проверяется через errors.IsNotFound
	Latest(terrariumID string) (model.SensorSnapshot, error)
	// Запрашивает показания у источника и обновляет хранилище
	Refresh(ctx context.Context, terrariumID string) (model.SensorSnapshot, error)
	// Приводит документ сенсоров к SensorSnapshot и обновляет хранилище. В строгом режиме
	// документ с некорректными полями отклоняется целиком, иначе такие поля отбрасываются
	Ingest(terrariumID string, raw map[string]interface{}, strict bool) (model.SensorSnapshot, error)
	// Обновление по правилу "побеждает более поздний замер". Возвращает true, если показания приняты
	Update(terrariumID string, snapshot model.SensorSnapshot) bool
	// Подписка на обновления. Возвращает функцию отписки
	Subscribe(terrariumID string, fn func(model.SensorSnapshot)) func()
	// Периодический опрос источника. Возвращает функцию остановки опроса
	Watch(terrariumID string, interval time.Duration) func()
	// Останавливает все опросы
	StopAll()
	// История показаний за days дней со смещением offsetDays
	History(terrariumID string, days uint, offsetDays uint, compact bool) ([]model.SensorMetric, error)
}

// EvaluatorCtl оценка среды террариумов
type EvaluatorCtl interface {
	// Оценивает среду террариума: удалённый вычислитель, при отказе локальные правила
	Evaluate(ctx context.Context, terrariumID string) (*model.Evaluation, error)
	// Последняя оценка террариума
	Current(terrariumID string) (*model.Evaluation, error)
	// Рекомендация recommendationID оценки generation. Для устаревшей оценки возвращается ErrStale
	Resolve(terrariumID string, generation uint64, recommendationID string) (model.Recommendation, error)
	// Ободряющее сообщение с учётом записи дневника пользователя за дату
	Cheer(ctx context.Context, terrariumID string, user string, date string) (*model.Cheer, error)
}

// DispatcherCtl выполнение команд устройствам террариумов
type DispatcherCtl interface {
	// Выполняет команду. Для ActionNone возвращается текущее состояние
	Dispatch(ctx context.Context, terrariumID string, key model.ActionKey) (*model.DeviceState, error)
	// Текущее состояние устройств
	State(terrariumID string) (*model.DeviceState, error)
	// Устанавливает цвет подсветки. Включённая подсветка перезажигается новым цветом
	SetColor(ctx context.Context, terrariumID string, hex string) (*model.DeviceState, error)
}

// DiaryCtl дневник настроения
type DiaryCtl interface {
	// Записывает (заменяет) запись за день
	Record(entry model.MoodDiaryEntry) (*model.MoodDiaryEntry, error)
	// Запись пользователя за дату
	Entry(user string, date string) (*model.MoodDiaryEntry, error)
	// Записи пользователя за период
	Entries(user string, from string, to string) ([]model.MoodDiaryEntry, error)
}
