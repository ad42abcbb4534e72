package web

import (
	"net/http"

	"github.com/labstack/echo"

	"github.com/kirsrus/healing-garden/server/model"
)

type diaryRequest struct {
	User  string `json:"user"`
	Mood  *int   `json:"mood"`
	Diary string `json:"diary"`
}

// Diary API дневника настроения. Пользователь передаётся в параметре user, по умолчанию default
func (m *Web) Diary(path string) {
	m.e.PUT(path+"/:date", func(c echo.Context) error {
		var req diaryRequest
		if err := bindJSON(c, &req); err != nil {
			return m.badRequest(c, "некорректный JSON")
		}
		if req.Mood == nil {
			return m.badRequest(c, "не передано настроение mood")
		}
		entry := model.MoodDiaryEntry{
			User:  req.User,
			Date:  c.Param("date"),
			Mood:  *req.Mood,
			Diary: req.Diary,
		}
		if entry.User == "" {
			entry.User = c.QueryParam("user")
		}
		res, err := m.diary.Record(entry)
		if err != nil {
			return m.fail(c, err)
		}
		return c.JSON(http.StatusOK, res)
	})

	m.e.GET(path+"/:date", func(c echo.Context) error {
		res, err := m.diary.Entry(c.QueryParam("user"), c.Param("date"))
		if err != nil {
			return m.fail(c, err)
		}
		return c.JSON(http.StatusOK, res)
	})

	m.e.GET(path, func(c echo.Context) error {
		res, err := m.diary.Entries(c.QueryParam("user"), c.QueryParam("from"), c.QueryParam("to"))
		if err != nil {
			return m.fail(c, err)
		}
		return c.JSON(http.StatusOK, res)
	})
}
