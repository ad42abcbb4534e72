package web

import (
	"io"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/juju/errors"
	"github.com/labstack/echo"
	"github.com/patrickmn/go-cache"

	"github.com/kirsrus/healing-garden/server/model"
)

// Предельный размер загружаемого видео
const maxVideoSize = 200 << 20

// Lcd встроенный ретранслятор команд LCD: постановка команды, забор последней команды
// устройством и подтверждение, а также загрузка видео для проигрывания
func (m *Web) Lcd(path string) {
	m.e.POST(path+"/:id/command", func(c echo.Context) error {
		var cmd model.LcdCommand
		if err := bindJSON(c, &cmd); err != nil {
			return m.badRequest(c, "некорректный JSON")
		}
		if err := m.relayCommand(c.Param("id"), cmd); err != nil {
			return m.fail(c, err)
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
	})

	// Команда не снимается при заборе, только по подтверждению
	m.e.GET(path+"/:id/last", func(c echo.Context) error {
		cmd, found := m.lcdCommands.Get(c.Param("id"))
		if !found {
			return c.JSON(http.StatusNotFound, map[string]interface{}{"ok": false, "error": "no_command"})
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"ok": true, "command": cmd})
	})

	m.e.POST(path+"/:id/ack", func(c echo.Context) error {
		m.lcdCommands.Delete(c.Param("id"))
		return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
	})

	m.e.POST(path+"/:id/upload", func(c echo.Context) error {
		file, err := c.FormFile("video")
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]interface{}{"ok": false, "error": "no_file"})
		}
		src, err := file.Open()
		if err != nil {
			return m.fail(c, errors.Trace(err))
		}
		defer func() { _ = src.Close() }()
		content, err := ioutil.ReadAll(io.LimitReader(src, maxVideoSize+1))
		if err != nil {
			return m.fail(c, errors.Trace(err))
		}
		if len(content) > maxVideoSize {
			return m.fail(c, errors.NotValidf("видео больше %d МБ", maxVideoSize>>20))
		}
		name, err := m.dbStore.SetVideo(content)
		if err != nil {
			return m.fail(c, err)
		}
		m.log.Infof("загружено видео %s (%d байт) для террариума %s", name, len(content), c.Param("id"))
		return c.JSON(http.StatusOK, map[string]interface{}{"ok": true, "url": m.videosPath + "/" + name})
	})
}

// Videos выдача загруженных видео. Имя файла ищется в параметре :name
func (m *Web) Videos(path string) {
	m.videosPath = path
	m.e.GET(path+"/:name", func(c echo.Context) error {
		content, err := m.dbStore.Video(c.Param("name"))
		if err != nil {
			return m.fail(c, err)
		}
		return c.Blob(http.StatusOK, mimetype.Detect(content).String(), content)
	})
}

// Постановка команды во встроенный ретранслятор
func (m *Web) relayCommand(terrariumID string, cmd model.LcdCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	cmd.Timestamp = millis(time.Now())
	m.lcdCommands.Set(terrariumID, cmd, cache.DefaultExpiration)
	m.log.Debugf("команда LCD %s для террариума %s", cmd.Action, terrariumID)
	return nil
}

// Команда LCD террариума: во внешний ретранслятор, если он задан, иначе во встроенный
func (m *Web) lcdCommand(c echo.Context, terrariumID string, cmd model.LcdCommand) error {
	if _, err := m.dbStore.Terrarium(terrariumID); err != nil {
		return err
	}
	if m.lcd == nil {
		return m.relayCommand(terrariumID, cmd)
	}
	if err := cmd.Validate(); err != nil {
		return err
	}
	cmd.Timestamp = millis(time.Now())
	return m.lcd.Command(c.Request().Context(), terrariumID, cmd)
}

// Последняя незабранная команда LCD террариума
func (m *Web) lcdLast(c echo.Context, terrariumID string) (*model.LcdCommand, error) {
	if m.lcd != nil {
		return m.lcd.Last(c.Request().Context(), terrariumID)
	}
	cmd, found := m.lcdCommands.Get(terrariumID)
	if !found {
		return nil, errors.NotFoundf("команда LCD террариума %q", terrariumID)
	}
	res := cmd.(model.LcdCommand)
	return &res, nil
}
