package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Оценки среды по источнику рекомендаций (remote, local) и признаку перехода на запасной
	Evaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "garden_evaluations_total",
		Help: "Оценки среды террариумов",
	}, []string{"source", "fallback"})

	// Команды устройствам по устройству и итогу (ack, simulated, rollback, rejected)
	DeviceCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "garden_device_commands_total",
		Help: "Команды устройствам террариумов",
	}, []string{"device", "result"})

	// Длительность обращений к API устройств
	DeviceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "garden_device_request_duration_seconds",
		Help:    "Длительность обращений к API устройств",
		Buckets: prometheus.DefBuckets,
	}, []string{"device"})

	// Принятые и отклонённые показания сенсоров
	SensorReadings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "garden_sensor_readings_total",
		Help: "Показания сенсоров",
	}, []string{"status"})

	// Время последнего принятого показания (unix)
	LastReading = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "garden_sensor_last_reading_timestamp",
		Help: "Время последнего показания сенсоров террариума",
	}, []string{"terrarium"})
)

// Handler обработчик /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
