package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	diaryCtlMod "github.com/kirsrus/healing-garden/server/controller/diary"
	dispatcherCtlMod "github.com/kirsrus/healing-garden/server/controller/dispatcher"
	evaluatorCtlMod "github.com/kirsrus/healing-garden/server/controller/evaluator"
	"github.com/kirsrus/healing-garden/server/controller/manager"
	snapshotCtlMod "github.com/kirsrus/healing-garden/server/controller/snapshot"
	"github.com/kirsrus/healing-garden/server/model"
	"github.com/kirsrus/healing-garden/server/pkg/config"
	"github.com/kirsrus/healing-garden/server/pkg/logger"
	"github.com/kirsrus/healing-garden/server/service"
	advisorSvcMod "github.com/kirsrus/healing-garden/server/service/advisor"
	journalSvcMod "github.com/kirsrus/healing-garden/server/service/journal"
	lcdSvcMod "github.com/kirsrus/healing-garden/server/service/lcd"
	sensorSvcMod "github.com/kirsrus/healing-garden/server/service/sensor"
	webSvcMod "github.com/kirsrus/healing-garden/server/service/web"
	dbStoreMod "github.com/kirsrus/healing-garden/server/store/db"
)

var (
	cfg *config.Config
	log *logrus.Logger
)

func init() {
	cfg = config.Get()
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.WarnLevel
	}
	log = logger.GetWithConfig(logger.Config{
		Path:    cfg.Log.Path,
		File:    cfg.Log.Filename,
		Level:   level,
		Console: cfg.Log.Console,
	})
}

func main() {
	err := run()
	if err != nil {
		fmt.Printf("ОШИБКА: в процессе работы произошла ошибка: %v\n", err)
		fmt.Printf("Для подробностей смотри лог: %s/%s\n", cfg.Log.Path, cfg.Log.Filename)
		log.Fatal(errors.ErrorStack(err))
	}
}

func run() error {
	// Отлавливаем сигнал завершения работы программы
	chanInterrupt := make(chan os.Signal, 1)
	signal.Notify(chanInterrupt, os.Interrupt, syscall.SIGTERM)

	done := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// region Настройка БД

	dbStore, err := dbStoreMod.NewDb(ctx, &dbStoreMod.ConfigDb{
		Log:      log,
		DbFile:   cfg.Db.Filename,
		VideoDir: cfg.Db.VideoPath,
	})
	if err != nil {
		return errors.Trace(err)
	}

	// endregion
	// region Регистрация террариумов

	watch := make([]string, 0, len(cfg.Terrariums))
	for _, t := range cfg.Terrariums {
		terrarium := model.Terrarium{
			ID:          t.ID,
			Name:        t.Name,
			PlantType:   model.ParsePlantType(t.PlantType),
			Address:     t.Address,
			LedColor:    t.LedColor,
			Description: t.Description,
		}
		_, created, err := dbStore.SetTerrarium(terrarium)
		if err != nil {
			return errors.Annotatef(err, "террариум %s", t.ID)
		}
		if created {
			log.Infof("зарегистрирован террариум %s (%s, %s)", terrarium.ID, terrarium.Name, terrarium.PlantType)
		}
		watch = append(watch, terrarium.ID)
	}

	ranges := model.RangeTable{}
	for _, r := range cfg.Evaluator.Ranges {
		def := model.DefaultIdealRanges()
		ranges[model.ParsePlantType(r.PlantType)] = model.IdealRanges{
			Temperature: rangeOr(r.TemperatureMin, r.TemperatureMax, def.Temperature),
			Humidity:    rangeOr(r.HumidityMin, r.HumidityMax, def.Humidity),
			Light:       rangeOr(r.LightMin, r.LightMax, def.Light),
		}
	}

	// endregion
	// region Источники показаний сенсоров

	var sensorSvc service.SensorSvc
	if cfg.Sensors.Address != "" {
		sensorSvc, err = sensorSvcMod.NewHttp(ctx, &sensorSvcMod.ConfigHttp{
			Log:     log,
			Address: cfg.Sensors.Address,
		})
		if err != nil {
			return errors.Trace(err)
		}
	}
	if sensorSvc == nil || !cfg.Sensors.Background {
		watch = nil
	}
	var streamPoll time.Duration
	if sensorSvc != nil {
		streamPoll = cfg.Sensors.PollInterval
	}

	var sensorStreamSvc service.SensorStreamSvc
	if cfg.Sensors.Broker != "" {
		sensorStreamSvc, err = sensorSvcMod.NewMqtt(&sensorSvcMod.ConfigMqtt{
			Log:      log,
			Broker:   cfg.Sensors.Broker,
			Topic:    cfg.Sensors.Topic,
			ClientID: cfg.Sensors.ClientID,
		})
		if err != nil {
			return errors.Trace(err)
		}
	}

	snapshotCtl, err := snapshotCtlMod.NewSnapshot(ctx, &snapshotCtlMod.ConfigSnapshot{
		Log:          log,
		DbStore:      dbStore,
		Source:       sensorSvc,
		PollInterval: cfg.Sensors.PollInterval,
	})
	if err != nil {
		return errors.Trace(err)
	}

	// endregion
	// region Оценка среды

	var advisorSvc service.AdvisorSvc
	if cfg.Evaluator.Address != "" {
		advisorSvc, err = advisorSvcMod.NewAdvisor(ctx, &advisorSvcMod.ConfigAdvisor{
			Log:          log,
			Address:      cfg.Evaluator.Address,
			TimeOut:      cfg.Evaluator.TimeOut,
			MaxFailures:  cfg.Evaluator.MaxFailures,
			ResetTimeout: cfg.Evaluator.ResetTimeout,
		})
		if err != nil {
			return errors.Trace(err)
		}
	} else {
		log.Warn("адрес вычислителя не задан, рекомендации только по локальным правилам")
	}

	evaluatorCtl, err := evaluatorCtlMod.NewEvaluator(ctx, &evaluatorCtlMod.ConfigEvaluator{
		Log:       log,
		DbStore:   dbStore,
		Snapshots: snapshotCtl,
		Advisor:   advisorSvc,
		Ranges:    ranges,
		Heater:    cfg.Devices.Heater,
	})
	if err != nil {
		return errors.Trace(err)
	}

	// endregion
	// region Управление устройствами

	journalSvc, err := journalSvcMod.NewJournal(&journalSvcMod.ConfigJournal{
		Log:     log,
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
	})
	if err != nil {
		return errors.Trace(err)
	}

	dispatcherCtl, err := dispatcherCtlMod.NewDispatcher(ctx, &dispatcherCtlMod.ConfigDispatcher{
		Log:           log,
		DbStore:       dbStore,
		Snapshots:     snapshotCtl,
		Journal:       journalSvc,
		DeviceTimeOut: cfg.Devices.TimeOut,
		SettleDelay:   cfg.Devices.SettleDelay,
		DefaultColor:  cfg.Devices.DefaultColor,
		Degraded:      cfg.Devices.Degraded,
		Heater:        cfg.Devices.Heater,
	})
	if err != nil {
		return errors.Trace(err)
	}
	if cfg.Devices.Degraded {
		log.Warn("включён режим деградации: отказы устройств симулируются локально")
	}

	diaryCtl, err := diaryCtlMod.NewDiary(ctx, &diaryCtlMod.ConfigDiary{
		Log:     log,
		DbStore: dbStore,
	})
	if err != nil {
		return errors.Trace(err)
	}

	// endregion
	// region Контроллер WEB

	var lcdSvc service.LcdSvc
	if cfg.Lcd.Address != "" {
		lcdSvc, err = lcdSvcMod.NewLcd(ctx, &lcdSvcMod.ConfigLcd{
			Log:     log,
			Address: cfg.Lcd.Address,
		})
		if err != nil {
			return errors.Trace(err)
		}
	}

	webSvc, err := webSvcMod.NewWeb(ctx, &webSvcMod.ConfigWeb{
		Log:        log,
		WebPort:    cfg.Http.Port,
		DbStore:    dbStore,
		Snapshots:  snapshotCtl,
		Evaluator:  evaluatorCtl,
		Dispatcher: dispatcherCtl,
		Diary:      diaryCtl,
		Lcd:        lcdSvc,
		StreamPoll: streamPoll,
	})
	if err != nil {
		return errors.Trace(err)
	}

	webSvc.Sensors("/sensors")
	webSvc.Terrariums("/api/terrariums")
	webSvc.Diary("/api/diary")
	webSvc.Lcd("/lcd")
	webSvc.Videos("/static/videos")
	webSvc.Metrics("/metrics")

	// endregion
	// region Менеджер управления всеми

	managerCtl, err := manager.NewManager(ctx, &manager.ConfigManager{
		Log:               log,
		Snapshots:         snapshotCtl,
		WebSvc:            webSvc,
		SensorStreamSvc:   sensorStreamSvc,
		JournalSvc:        journalSvc,
		DbStore:           dbStore,
		Watch:             watch,
		PollInterval:      cfg.Sensors.PollInterval,
		CleanBasePeriod:   time.Hour * 24 * time.Duration(cfg.Db.ArchiveDays),
		CleanBaseInterval: time.Minute * time.Duration(cfg.Db.CleanArchiveInterval),
	})
	if err != nil {
		return errors.Trace(err)
	}

	go func() {
		done <- errors.Trace(managerCtl.Serve())
	}()

	// endregion

	// Процесс завершения работы
	select {
	case err := <-done:
		return errors.Trace(err)
	case <-chanInterrupt:
		log.Info("получена по каналу interrupt команда на завершение работы программы")
		cancel()
		select {
		case err := <-done:
			return errors.Trace(err)
		case <-time.After(5 * time.Second):
			return nil
		}
	}
}

// Диапазон из конфигурации. Незаданные границы берутся из def
func rangeOr(min, max float64, def model.IdealRange) model.IdealRange {
	res := def
	if min != 0 {
		res.Min = min
	}
	if max != 0 {
		res.Max = max
	}
	return res
}
