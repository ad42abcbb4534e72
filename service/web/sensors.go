package web

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo"

	"github.com/kirsrus/healing-garden/server/model"
)

// Поля документа сенсоров с идентификатором террариума
var sensorIDKeys = []string{"id", "terrariumId", "terrarium_id"}

// Sensors приём показаний от устройств (POST {path}/update) и выдача последних
// показаний (GET {path}/:id/latest)
func (m *Web) Sensors(path string) {
	m.e.POST(path+"/update", func(c echo.Context) error {
		raw := make(map[string]interface{})
		if err := bindJSON(c, &raw); err != nil {
			return m.badRequest(c, "некорректный JSON")
		}
		id := sensorID(raw)
		if id == "" {
			return m.badRequest(c, "не передан id")
		}
		snapshot, err := m.snapshots.Ingest(id, raw, true)
		if err != nil {
			return m.fail(c, err)
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"ok": true, "data": sensorData(snapshot)})
	})

	m.e.GET(path+"/:id/latest", func(c echo.Context) error {
		snapshot, err := m.snapshots.Latest(c.Param("id"))
		if err != nil {
			return m.fail(c, err)
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"ok": true, "data": sensorData(snapshot)})
	})
}

func sensorID(raw map[string]interface{}) string {
	for _, key := range sensorIDKeys {
		switch v := raw[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return fmt.Sprintf("%v", v)
		}
	}
	return ""
}

// Показания в формате устройств: {temp, hum, lux, timestamp (мс)}
func sensorData(s model.SensorSnapshot) map[string]interface{} {
	return map[string]interface{}{
		"temp":      s.Temperature,
		"hum":       s.Humidity,
		"lux":       s.Light,
		"timestamp": millis(s.ObservedAt),
	}
}
