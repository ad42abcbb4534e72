package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/labstack/echo"

	"github.com/kirsrus/healing-garden/server/model"
	"github.com/kirsrus/healing-garden/server/pkg/colorcodec"
)

type applyRequest struct {
	Generation uint64 `json:"generation" validate:"required"`
	ID         string `json:"id" conform:"trim" validate:"required"`
}

type dispatchRequest struct {
	ActionKey model.ActionKey `json:"actionKey"`
}

type colorRequest struct {
	Hex string   `json:"hex"`
	H   *float64 `json:"h"`
	S   *float64 `json:"s"`
	V   *float64 `json:"v"`
}

type cheerRequest struct {
	User string `json:"user" conform:"trim"`
	Date string `json:"date" conform:"trim"`
}

// Terrariums API террариумов
func (m *Web) Terrariums(path string) {
	m.e.GET(path, func(c echo.Context) error {
		res, err := m.dbStore.Terrariums()
		if err != nil {
			return m.fail(c, err)
		}
		return c.JSON(http.StatusOK, res)
	})

	m.e.GET(path+"/:id/snapshot", func(c echo.Context) error {
		res, err := m.snapshots.Latest(c.Param("id"))
		if err != nil {
			return m.fail(c, err)
		}
		return c.JSON(http.StatusOK, res)
	})

	m.e.POST(path+"/:id/refresh", func(c echo.Context) error {
		res, err := m.snapshots.Refresh(c.Request().Context(), c.Param("id"))
		if err != nil {
			return m.fail(c, err)
		}
		return c.JSON(http.StatusOK, res)
	})

	m.e.GET(path+"/:id/history", func(c echo.Context) error {
		days, err := queryUint(c, "days", 1)
		if err != nil {
			return m.fail(c, err)
		}
		offset, err := queryUint(c, "offset", 0)
		if err != nil {
			return m.fail(c, err)
		}
		compact := false
		if v := c.QueryParam("compact"); v != "" {
			if compact, err = strconv.ParseBool(v); err != nil {
				return m.fail(c, errors.NotValidf("параметр compact %q", v))
			}
		}
		res, err := m.snapshots.History(c.Param("id"), days, offset, compact)
		if err != nil {
			return m.fail(c, err)
		}
		return c.JSON(http.StatusOK, res)
	})

	m.e.POST(path+"/:id/evaluate", func(c echo.Context) error {
		res, err := m.evaluator.Evaluate(c.Request().Context(), c.Param("id"))
		if err != nil {
			return m.fail(c, err)
		}
		return c.JSON(http.StatusOK, res)
	})

	m.e.GET(path+"/:id/evaluation", func(c echo.Context) error {
		res, err := m.evaluator.Current(c.Param("id"))
		if err != nil {
			return m.fail(c, err)
		}
		return c.JSON(http.StatusOK, res)
	})

	// Применение рекомендации оценки
	m.e.POST(path+"/:id/apply", func(c echo.Context) error {
		var req applyRequest
		if err := bindJSON(c, &req); err != nil {
			return m.badRequest(c, "некорректный JSON")
		}
		if err := m.validator.ValidateWithConform(&req); err != nil {
			return m.fail(c, errors.NewNotValid(err, "запрос"))
		}
		id := c.Param("id")
		rec, err := m.evaluator.Resolve(id, req.Generation, req.ID)
		if err != nil {
			return m.fail(c, err)
		}
		state, err := m.dispatcher.Dispatch(c.Request().Context(), id, rec.ActionKey)
		if err != nil {
			return m.fail(c, err)
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"recommendation": rec, "state": state})
	})

	m.e.POST(path+"/:id/dispatch", func(c echo.Context) error {
		var req dispatchRequest
		if err := bindJSON(c, &req); err != nil {
			return m.badRequest(c, "некорректный JSON")
		}
		res, err := m.dispatcher.Dispatch(c.Request().Context(), c.Param("id"), req.ActionKey)
		if err != nil {
			return m.fail(c, err)
		}
		return c.JSON(http.StatusOK, res)
	})

	m.e.GET(path+"/:id/devices", func(c echo.Context) error {
		res, err := m.dispatcher.State(c.Param("id"))
		if err != nil {
			return m.fail(c, err)
		}
		return c.JSON(http.StatusOK, res)
	})

	// Цвет подсветки в виде {hex} или {h, s, v}
	m.e.POST(path+"/:id/color", func(c echo.Context) error {
		var req colorRequest
		if err := bindJSON(c, &req); err != nil {
			return m.badRequest(c, "некорректный JSON")
		}
		hex := strings.TrimSpace(req.Hex)
		if hex == "" && req.H != nil {
			s, v := 1.0, 1.0
			if req.S != nil {
				s = *req.S
			}
			if req.V != nil {
				v = *req.V
			}
			hex = colorcodec.HsvToHex(*req.H, s, v)
		}
		res, err := m.dispatcher.SetColor(c.Request().Context(), c.Param("id"), hex)
		if err != nil {
			return m.fail(c, err)
		}
		return c.JSON(http.StatusOK, res)
	})

	m.e.POST(path+"/:id/cheer", func(c echo.Context) error {
		var req cheerRequest
		if c.Request().ContentLength > 0 {
			if err := bindJSON(c, &req); err != nil {
				return m.badRequest(c, "некорректный JSON")
			}
		}
		if err := m.validator.ValidateWithConform(&req); err != nil {
			return m.fail(c, errors.NewNotValid(err, "запрос"))
		}
		res, err := m.evaluator.Cheer(c.Request().Context(), c.Param("id"), req.User, req.Date)
		if err != nil {
			return m.fail(c, err)
		}
		return c.JSON(http.StatusOK, res)
	})

	m.e.GET(path+"/:id/stream", m.stream)

	// Команды LCD террариума через ретранслятор
	m.e.POST(path+"/:id/lcd", func(c echo.Context) error {
		var cmd model.LcdCommand
		if err := bindJSON(c, &cmd); err != nil {
			return m.badRequest(c, "некорректный JSON")
		}
		if err := m.lcdCommand(c, c.Param("id"), cmd); err != nil {
			return m.fail(c, err)
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
	})

	m.e.GET(path+"/:id/lcd", func(c echo.Context) error {
		res, err := m.lcdLast(c, c.Param("id"))
		if err != nil {
			return m.fail(c, err)
		}
		return c.JSON(http.StatusOK, res)
	})
}

func queryUint(c echo.Context, name string, def uint) (uint, error) {
	v := c.QueryParam(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, errors.NotValidf("параметр %s %q", name, v)
	}
	return uint(n), nil
}

// Время в миллисекундах
func millis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}
