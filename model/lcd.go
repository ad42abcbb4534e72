package model

import "github.com/juju/errors"

// LcdAction команда видеоплееру террариума
type LcdAction string

const (
	LcdPlay   LcdAction = "play"
	LcdPause  LcdAction = "pause"
	LcdStop   LcdAction = "stop"
	LcdSetUrl LcdAction = "set_url"
)

// LcdCommand команда LCD, ожидающая забора устройством
type LcdCommand struct {
	Action LcdAction `json:"action"`
	URL    string    `json:"url,omitempty"`
	// Время постановки команды, мс
	Timestamp int64 `json:"timestamp"`
}

// Validate валидация
func (m LcdCommand) Validate() error {
	switch m.Action {
	case LcdPause, LcdStop:
		return nil
	case LcdPlay, LcdSetUrl:
		if m.URL == "" {
			return errors.NotValidf("команда %s без url", m.Action)
		}
		return nil
	case "":
		return errors.NotValidf("не задан параметр action")
	}
	return errors.NotValidf("команда %q", m.Action)
}
