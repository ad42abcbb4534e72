package config

import "time"

type (

	// Config конфигурация программы
	Config struct {

		// Описание логирования
		Log struct {

			// Путь к файлу лога
			Path string

			// Имя файал логирования
			Filename string `required:"true" default:"garden.log"`

			// Уровень логирования
			Level string `required:"true" default:"warning"`

			// Выводить лог только на консоль
			Console bool `default:"false"`
		}

		// Описываем подключение к базе данных
		Db struct {

			// Имя файла базы данных
			Filename string `required:"true" default:"garden.sqlite"`

			// Колличество дней хранения архива замеров сенсоров
			ArchiveDays int `default:"30"`

			// Период очистки архива до ArchiveDays в минутах
			CleanArchiveInterval int `default:"30"`

			// Директория хранения загруженных видео для LCD
			VideoPath string `default:"./videodb"`
		}

		// Обслуживание WEB-сервера
		Http struct {

			// Порт WEB-сервера
			Port uint `required:"true" default:"8080"`
		}

		// Удалённый вычислитель рекомендаций (Garden AI)
		Evaluator struct {

			// Адрес сервера, например http://127.0.0.1:3000. Пустой - только локальные правила
			Address string

			// Таймаут ожидания ответа (в миллисекундах)
			TimeOut time.Duration `default:"10000"`

			// Число подряд неудачных обращений до размыкания предохранителя
			MaxFailures int `default:"3"`

			// Время в размокнутом состоянии (в секундах)
			ResetTimeout time.Duration `default:"30"`

			// Переопределение идеальных диапазонов по типу растения (herb, succulent, foliage, unspecified)
			Ranges []struct {
				PlantType      string `required:"true"`
				TemperatureMin float64
				TemperatureMax float64
				HumidityMin    float64
				HumidityMax    float64
				LightMin       float64
				LightMax       float64
			}
		}

		// Управление устройствами террариумов
		Devices struct {

			// Таймаут команды устройству (в миллисекундах)
			TimeOut time.Duration `default:"5000"`

			// Пауза между выключением и включением матрицы при смене цвета (в миллисекундах)
			SettleDelay time.Duration `default:"100"`

			// Цвет подсветки по умолчанию
			DefaultColor string `default:"#FFC864"`

			// Режим деградации: при недоступности железа состояние симулируется локально
			Degraded bool `default:"false"`

			// Установлен ли нагреватель
			Heater bool `default:"false"`
		}

		// Источники показаний сенсоров
		Sensors struct {

			// Период опроса (в секундах)
			PollInterval time.Duration `default:"5"`

			// Адрес сервера с GET /sensors/{id}/latest. Пустой - опрос отключён
			Address string

			// Опрашивать террариумы постоянно. Иначе только пока открыт поток показаний
			Background bool `default:"false"`

			// Адрес MQTT брокера, например tcp://127.0.0.1:1883. Пустой - подписка отключена
			Broker string

			// Шаблон топика документов сенсоров
			Topic string `default:"garden/+/sensors"`

			// Идентификатор клиента MQTT
			ClientID string `default:"healing-garden-server"`
		}

		// Журнал команд устройствам
		Kafka struct {
			Brokers []string
			Topic   string `default:"garden.device-commands"`
		}

		// Ретранслятор команд LCD
		Lcd struct {
			// Адрес ретранслятора. Пустой - используется собственный WEB-сервер
			Address string
		}

		// Описание террариумов
		Terrariums []struct {

			// Идентификатор террариума
			ID string `required:"true"`

			// Имя растения
			Name string `required:"true"`

			// Тип растения
			PlantType string

			// Адрес API устройств террариума (Raspberry Pi)
			Address string `required:"true"`

			// Цвет подсветки, например #FFC864
			LedColor string

			// Описание террариума
			Description string
		}
	}
)
