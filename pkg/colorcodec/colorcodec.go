package colorcodec

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/juju/errors"

	"github.com/kirsrus/healing-garden/server/model"
)

// NormalizeHex приводит цвет к виду #RRGGBB. Допускается запись без '#' и в нижнем регистре
func NormalizeHex(hex string) (string, error) {
	s := strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(s) != 6 {
		return "", errors.NotValidf("цвет %q", hex)
	}
	if _, err := strconv.ParseUint(s, 16, 32); err != nil {
		return "", errors.NotValidf("цвет %q", hex)
	}
	return "#" + strings.ToUpper(s), nil
}

// HexToRgb разбирает цвет #RRGGBB
func HexToRgb(hex string) (model.RGB, error) {
	norm, err := NormalizeHex(hex)
	if err != nil {
		return model.RGB{}, err
	}
	v, _ := strconv.ParseUint(norm[1:], 16, 32)
	return model.RGB{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
	}, nil
}

// RgbToHex цвет в виде #RRGGBB (заглавные буквы)
func RgbToHex(c model.RGB) string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// HsvToHex переводит цвет из HSV (h в градусах, s и v от 0 до 1) в #RRGGBB.
// Выход за пределы диапазонов ограничивается, h берётся по модулю 360
func HsvToHex(h, s, v float64) string {
	if math.IsNaN(h) || math.IsInf(h, 0) {
		h = 0
	}
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	s = clamp(s, 0, 1)
	v = clamp(v, 0, 1)

	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}

	return RgbToHex(model.RGB{
		R: channel(r + m),
		G: channel(g + m),
		B: channel(b + m),
	})
}

func channel(f float64) uint8 {
	return uint8(clamp(math.Round(f*255), 0, 255))
}

func clamp(f, min, max float64) float64 {
	if math.IsNaN(f) || f < min {
		return min
	}
	if f > max {
		return max
	}
	return f
}
