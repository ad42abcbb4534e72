package diary

import (
	"context"
	"io/ioutil"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"github.com/kirsrus/healing-garden/server/controller"
	"github.com/kirsrus/healing-garden/server/model"
	"github.com/kirsrus/healing-garden/server/pkg/validator"
	"github.com/kirsrus/healing-garden/server/store"
)

// Diary дневник настроения. Инициализируется через NewDiary
type Diary struct {
	ctx     context.Context
	log     *logrus.Entry
	dbStore store.DbStore
}

// ConfigDiary конфигурация Diary
type ConfigDiary struct {
	Log     *logrus.Logger
	DbStore store.DbStore
}

// NewDiary конструктор Diary
func NewDiary(ctx context.Context, config *ConfigDiary) (controller.DiaryCtl, error) {
	if config == nil {
		return nil, errors.New("не установлен config")
	}
	if config.DbStore == nil {
		return nil, errors.New("не задано хранилище DbStore")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	return &Diary{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "diary",
			"scope":  "controller",
		}),
		dbStore: config.DbStore,
	}, nil
}

// Record записывает запись за день. Запись того же пользователя за ту же дату заменяется
func (m Diary) Record(entry model.MoodDiaryEntry) (*model.MoodDiaryEntry, error) {
	if err := validator.Get().ValidateWithConform(&entry); err != nil {
		return nil, errors.NewNotValid(err, "запись дневника")
	}
	res, created, err := m.dbStore.SetMood(entry)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if created {
		m.log.Debugf("новая запись дневника %s за %s", res.User, res.Date)
	} else {
		m.log.Debugf("запись дневника %s за %s заменена", res.User, res.Date)
	}
	return res, nil
}

// Entry запись пользователя за дату
func (m Diary) Entry(user string, date string) (*model.MoodDiaryEntry, error) {
	if err := checkDate(date); err != nil {
		return nil, err
	}
	res, err := m.dbStore.Mood(user, date)
	if err != nil {
		if m.dbStore.IsNotFound(err) {
			return nil, errors.NotFoundf("запись дневника за %s", date)
		}
		return nil, errors.Trace(err)
	}
	return res, nil
}

// Entries записи пользователя с from по to включительно. Пустая граница не ограничивает период
func (m Diary) Entries(user string, from string, to string) ([]model.MoodDiaryEntry, error) {
	if from != "" {
		if err := checkDate(from); err != nil {
			return nil, err
		}
	}
	if to != "" {
		if err := checkDate(to); err != nil {
			return nil, err
		}
	}
	if from != "" && to != "" && from > to {
		return nil, errors.NotValidf("период %s - %s", from, to)
	}
	res, err := m.dbStore.Moods(user, from, to)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return res, nil
}

func checkDate(date string) error {
	if _, err := time.Parse(validator.IsoDate, date); err != nil {
		return errors.NotValidf("дата %q", date)
	}
	return nil
}
