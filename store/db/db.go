package db

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/kirsrus/healing-garden/server/model"
	"github.com/kirsrus/healing-garden/server/pkg/colorcodec"
	"github.com/kirsrus/healing-garden/server/pkg/tool"
	"github.com/kirsrus/healing-garden/server/pkg/validator"
	"github.com/kirsrus/healing-garden/server/store"
)

const (
	cacheDuration = 10 * time.Minute
	cacheCleared  = time.Hour
)

// Db обращение к базе данных. Инициируется через NewDb
type Db struct {
	ctx       context.Context
	log       *logrus.Entry
	db        *gorm.DB
	validator *validator.Validator
	VideoDir  string

	terrariumCache *cache.Cache
}

// ConfigDb конфигурацияи класса NewDb
type ConfigDb struct {
	Log    *logrus.Logger
	DbFile string
	// Директория хранения видео для LCD
	VideoDir string
}

// NewDb конструктор класса Db
func NewDb(ctx context.Context, config *ConfigDb) (store.DbStore, error) {
	if config == nil {
		return nil, errors.New("не указана конфигурация")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	if config.DbFile == "" {
		return nil, errors.New("в конфигурациине указана строка подлкючения")
	}
	if config.VideoDir == "" {
		return nil, errors.New("в конфигурации не указана директория видео")
	}

	// Подключаемся к БД и запускаем миграции
	conn, err := gorm.Open(sqlite.Open(config.DbFile), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, errors.Annotate(err, "ошибка подключения к файлу БД")
	}
	err = conn.AutoMigrate(Terrarium{}, SnapshotLog{}, DeviceState{}, MoodDiary{})
	if err != nil {
		return nil, errors.Annotate(err, "ошибка миграции БД")
	}

	db := Db{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "db",
			"scope":  "store",
		}),
		validator: validator.Get(),
		db:        conn,
		VideoDir:  config.VideoDir,

		terrariumCache: cache.New(cacheDuration, cacheCleared),
	}

	return &db, nil
}

// IsNotFound проверяет, что ошибка err обозначает, что записи не найдены
func (m Db) IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	return errors.IsNotFound(err) || errors.Cause(err) == gorm.ErrRecordNotFound
}

// Terrariums список всех террариумов
func (m Db) Terrariums() ([]model.Terrarium, error) {
	rows := make([]Terrarium, 0)
	if err := m.db.Order("terrarium_id").Find(&rows).Error; err != nil {
		m.log.Warn(err)
		return nil, errors.Trace(err)
	}
	result := make([]model.Terrarium, 0, len(rows))
	for _, v := range rows {
		result = append(result, v.ToTerrarium())
	}
	return result, nil
}

// Terrarium террариум по идентификатору. Отсутствие проверяется через IsNotFound
func (m Db) Terrarium(id string) (*model.Terrarium, error) {
	if t, found := m.terrariumCache.Get(id); found {
		res := t.(model.Terrarium)
		return &res, nil
	}

	var terrarium Terrarium
	if err := m.db.Where("terrarium_id = ?", id).Take(&terrarium).Error; err != nil {
		if m.IsNotFound(err) {
			return nil, errors.NotFoundf("террариум %q", id)
		}
		return nil, errors.Trace(err)
	}
	res := terrarium.ToTerrarium()
	m.terrariumCache.Set(id, res, cache.DefaultExpiration)
	return &res, nil
}

// SetTerrarium добавляет террариум в БД. Если террариума не было, вернётся true, иначе он будет
// обновлён и вернётся false
func (m Db) SetTerrarium(terrarium model.Terrarium) (*model.Terrarium, bool, error) {
	if err := m.validator.ValidateWithConform(&terrarium); err != nil {
		return nil, false, errors.NewNotValid(err, "ошибка валидации")
	}
	terrarium.PlantType = terrarium.Profile().PlantType
	m.terrariumCache.Delete(terrarium.ID)

	var isTerrarium Terrarium
	err := m.db.Where("terrarium_id = ?", terrarium.ID).Take(&isTerrarium).Error
	if err != nil && !m.IsNotFound(err) {
		return nil, false, errors.Trace(err)
	}
	newTerrarium := Terrarium{}
	newTerrarium.FromTerrarium(terrarium)
	if err != nil {
		// Добавляем новую запись
		if err := m.db.Create(&newTerrarium).Error; err != nil {
			return nil, false, errors.Annotate(err, "ошибка добавления в БД")
		}
		res := newTerrarium.ToTerrarium()
		return &res, true, nil
	}

	// Обновляем существующую
	isTerrarium.Update(newTerrarium)
	if err := m.db.Save(&isTerrarium).Error; err != nil {
		return nil, false, errors.Annotate(err, "ошибка обновления записи")
	}
	res := isTerrarium.ToTerrarium()
	return &res, false, nil
}

// SetSnapshotLog сохраняет показания сенсоров в лог замеров
func (m Db) SetSnapshotLog(terrariumID string, snapshot model.SensorSnapshot) error {
	if snapshot.IsEmpty() {
		return nil
	}
	observedAt := snapshot.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now()
	}
	row := SnapshotLog{
		TerrariumID: terrariumID,
		Temperature: snapshot.Temperature,
		Humidity:    snapshot.Humidity,
		Light:       snapshot.Light,
		ObservedAt:  observedAt.UTC(),
	}
	if err := m.db.Create(&row).Error; err != nil {
		m.log.Error(err)
		return errors.Trace(err)
	}
	return nil
}

// SnapshotLog возвращает показания сенсоров террариума за days дней (со смещением offsetDays) по
// каждому замеру. Если compact=true - данные замеров сжимаются до дней и для каждого дня показываются
// только минимальные и максимальные значения
func (m Db) SnapshotLog(terrariumID string, days uint, offsetDays uint, compact bool) ([]model.SensorMetric, error) {
	if _, err := m.Terrarium(terrariumID); err != nil {
		return nil, errors.Trace(err)
	}

	startDays, finishDays := m.calculateDate(days, offsetDays)
	rows := make([]SnapshotLog, 0)
	err := m.db.Where("terrarium_id = ? AND observed_at > ? AND observed_at < ?", terrariumID, startDays.UTC(), finishDays.UTC()).
		Order("observed_at").Find(&rows).Error
	if err != nil {
		m.log.Warn(err)
		return nil, errors.Trace(err)
	}

	result := make([]model.SensorMetric, 0, len(rows))
	for _, v := range rows {
		result = append(result, model.SensorMetric{
			Date:     v.ObservedAt,
			Snapshot: v.ToSnapshot(),
		})
	}

	if compact {
		result = compactSnapshots(result)
	}
	return result, nil
}

// Сжатие лога показаний до однодневного с минимальными и максимальными значениями каждой величины
func compactSnapshots(metrics []model.SensorMetric) []model.SensorMetric {
	cacheLoc := make(map[string]model.SensorMetric)
	for _, v := range metrics {
		date := tool.RoundToDate(v.Date)
		dateStr := tool.DayKey(v.Date)
		c, ok := cacheLoc[dateStr]
		if !ok {
			c = model.SensorMetric{Date: date}
		}
		for _, d := range model.Dimensions {
			val := v.Snapshot.Get(d)
			if val == nil {
				continue
			}
			if min := c.Min.Get(d); min == nil || *val < *min {
				c.Min.Set(d, val)
			}
			if max := c.Max.Get(d); max == nil || *val > *max {
				c.Max.Set(d, val)
			}
		}
		cacheLoc[dateStr] = c
	}

	result := make([]model.SensorMetric, 0, len(cacheLoc))
	for _, v := range cacheLoc {
		v.Min.ObservedAt = v.Date
		v.Max.ObservedAt = v.Date
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result
}

// Вычисляет, начиная с текущей даты колличество дней days со смещением offset дней. Возвращается начало
// периода в startDate до finishDate
func (m Db) calculateDate(days uint, offset uint) (startDate, finishDate time.Time) {
	return tool.DayWindow(time.Now(), days, offset)
}

// DeviceState последнее сохранённое состояние устройств террариума
func (m Db) DeviceState(terrariumID string) (*model.DeviceState, error) {
	var row DeviceState
	if err := m.db.Where("terrarium_id = ?", terrariumID).Take(&row).Error; err != nil {
		if m.IsNotFound(err) {
			return nil, errors.NotFoundf("состояние устройств террариума %q", terrariumID)
		}
		return nil, errors.Trace(err)
	}
	color, err := colorcodec.HexToRgb(row.LedColor)
	if err != nil {
		m.log.Warnf("в БД сохранён некорректный цвет %q террариума %s", row.LedColor, terrariumID)
	}
	res := model.DeviceState{
		TerrariumID: row.TerrariumID,
		WaterPump:   row.WaterPump,
		GrowLight:   row.GrowLight,
		Vent:        row.Vent,
		Heater:      row.Heater,
		LedColor:    color,
		Power: map[model.Device]model.PowerState{
			model.DevicePump:   powerState(row.WaterPump),
			model.DeviceLight:  powerState(row.GrowLight),
			model.DeviceFan:    powerState(row.Vent),
			model.DeviceHeater: powerState(row.Heater),
		},
		Simulated: row.Simulated,
		UpdatedAt: row.UpdatedAt,
	}
	return &res, nil
}

func powerState(on bool) model.PowerState {
	if on {
		return model.PowerOn
	}
	return model.PowerOff
}

// SetDeviceState сохранение состояния устройств
func (m Db) SetDeviceState(state model.DeviceState) error {
	if state.TerrariumID == "" {
		return errors.NotValidf("пустой идентификатор террариума")
	}
	var row DeviceState
	err := m.db.Where("terrarium_id = ?", state.TerrariumID).Take(&row).Error
	if err != nil && !m.IsNotFound(err) {
		return errors.Trace(err)
	}
	row.TerrariumID = state.TerrariumID
	row.WaterPump = state.WaterPump
	row.GrowLight = state.GrowLight
	row.Vent = state.Vent
	row.Heater = state.Heater
	row.LedColor = colorcodec.RgbToHex(state.LedColor)
	row.Simulated = state.Simulated
	if err := m.db.Save(&row).Error; err != nil {
		m.log.Error(err)
		return errors.Trace(err)
	}
	return nil
}

// Mood запись дневника настроения пользователя за дату
func (m Db) Mood(user string, date string) (*model.MoodDiaryEntry, error) {
	var row MoodDiary
	if err := m.db.Where("user = ? AND date = ?", moodUser(user), date).Take(&row).Error; err != nil {
		if m.IsNotFound(err) {
			return nil, errors.NotFoundf("запись дневника за %s", date)
		}
		return nil, errors.Trace(err)
	}
	res := row.ToEntry()
	return &res, nil
}

// Moods записи дневника пользователя с from по to включительно
func (m Db) Moods(user string, from string, to string) ([]model.MoodDiaryEntry, error) {
	query := m.db.Where("user = ?", moodUser(user))
	if from != "" {
		query = query.Where("date >= ?", from)
	}
	if to != "" {
		query = query.Where("date <= ?", to)
	}
	rows := make([]MoodDiary, 0)
	err := query.Order("date").Find(&rows).Error
	if err != nil {
		m.log.Warn(err)
		return nil, errors.Trace(err)
	}
	result := make([]model.MoodDiaryEntry, 0, len(rows))
	for _, v := range rows {
		result = append(result, v.ToEntry())
	}
	return result, nil
}

// SetMood добавляет или заменяет запись дневника. Для новой записи возвращается true
func (m Db) SetMood(entry model.MoodDiaryEntry) (*model.MoodDiaryEntry, bool, error) {
	if err := m.validator.ValidateWithConform(&entry); err != nil {
		return nil, false, errors.NewNotValid(err, "ошибка валидации")
	}
	entry.User = moodUser(entry.User)

	var row MoodDiary
	err := m.db.Where("user = ? AND date = ?", entry.User, entry.Date).Take(&row).Error
	if err != nil && !m.IsNotFound(err) {
		return nil, false, errors.Trace(err)
	}
	created := err != nil
	row.User = entry.User
	row.Date = entry.Date
	row.Mood = entry.Mood
	row.Diary = entry.Diary
	if err := m.db.Save(&row).Error; err != nil {
		return nil, false, errors.Annotate(err, "ошибка сохранения записи дневника")
	}
	res := row.ToEntry()
	return &res, created, nil
}

func moodUser(user string) string {
	if user = strings.TrimSpace(user); user == "" {
		return model.DefaultUser
	}
	return user
}

// Video получает видео по имени файла
func (m Db) Video(name string) ([]byte, error) {
	if name == "" || filepath.Base(name) != name || strings.HasPrefix(name, ".") {
		return nil, errors.NotValidf("имя файла %q", name)
	}
	fileName := filepath.Join(m.VideoDir, name)
	content, err := ioutil.ReadFile(fileName)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundf("файл %s", name)
		}
		m.log.Errorf("ошибка чтения файла: %s", fileName)
		return nil, errors.Annotatef(err, "ошибка чтения %s", fileName)
	}
	return content, nil
}

// SetVideo сохраняет видео в файловую базу данных. Возвращает имя сохранённого файла
func (m Db) SetVideo(content []byte) (string, error) {
	mime := mimetype.Detect(content)
	if !strings.HasPrefix(mime.String(), "video/") {
		return "", errors.NotValidf("тип файла %s", mime.String())
	}

	// Создаём директорию, если её нет
	if _, err := os.Stat(m.VideoDir); err != nil {
		if os.IsNotExist(err) {
			if err = os.MkdirAll(m.VideoDir, os.ModePerm); err != nil {
				m.log.Errorf("ошибка создания отсутсвующей директории %s: %s", m.VideoDir, err)
				return "", errors.Trace(err)
			}
		} else {
			m.log.Errorf("ошибка создания директории %s: %s", m.VideoDir, err)
			return "", errors.Trace(err)
		}
	}

	fName := uuid.New().String() + mime.Extension()
	if err := ioutil.WriteFile(filepath.Join(m.VideoDir, fName), content, 0644); err != nil {
		m.log.Errorf("ошибка сохранения файла %s: %s", filepath.Join(m.VideoDir, fName), err)
		return "", errors.Trace(err)
	}
	return fName, nil
}

// Clean очищает записи лога замеров старше days дней
func (m Db) Clean(days int) error {
	if days <= 0 {
		return errors.NotValidf("срок хранения %d дней", days)
	}
	m.log.Info("запуск процесса очистки старых данных архива")

	lastDate, _ := m.calculateDate(uint(days), 0)
	res := m.db.Where("observed_at < ?", lastDate.UTC()).Delete(&SnapshotLog{})
	if res.Error != nil {
		m.log.Warn(res.Error)
		return errors.Trace(res.Error)
	}
	m.log.Infof("удалено %d записей архива", res.RowsAffected)
	return nil
}
