package colorcodec

import (
	"testing"

	"github.com/juju/errors"

	"github.com/kirsrus/healing-garden/server/model"
)

func TestHexToRgb(t *testing.T) {
	tests := []struct {
		name    string
		hex     string
		want    model.RGB
		wantErr bool
	}{
		{"стандартный", "#FFC864", model.RGB{R: 255, G: 200, B: 100}, false},
		{"нижний регистр", "#00ff00", model.RGB{G: 255}, false},
		{"без решётки", "0000FF", model.RGB{B: 255}, false},
		{"короткий", "#FFF", model.RGB{}, true},
		{"не hex", "#GGGGGG", model.RGB{}, true},
		{"пустой", "", model.RGB{}, true},
		{"со знаком", "#+FFFFF", model.RGB{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HexToRgb(tt.hex)
			if (err != nil) != tt.wantErr {
				t.Fatalf("HexToRgb() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.IsNotValid(err) {
				t.Errorf("ожидалась ошибка NotValid, получено %v", err)
			}
			if got != tt.want {
				t.Errorf("HexToRgb() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	// Сетка с шагом 15 (0..255) и соседи границ
	levels := []uint8{1, 254}
	for v := 0; v <= 255; v += 15 {
		levels = append(levels, uint8(v))
	}
	for _, r := range levels {
		for _, g := range levels {
			for _, b := range levels {
				c := model.RGB{R: r, G: g, B: b}
				got, err := HexToRgb(RgbToHex(c))
				if err != nil {
					t.Fatalf("HexToRgb(RgbToHex(%v)) error = %v", c, err)
				}
				if got != c {
					t.Errorf("HexToRgb(RgbToHex(%v)) = %v", c, got)
				}
			}
		}
	}
	for _, hex := range []string{"#FFC864", "#00FF00", "#0A0B0C"} {
		c, err := HexToRgb(hex)
		if err != nil {
			t.Fatal(err)
		}
		if got := RgbToHex(c); got != hex {
			t.Errorf("RgbToHex(HexToRgb(%s)) = %s", hex, got)
		}
	}
}

func TestHsvToHex(t *testing.T) {
	tests := []struct {
		name    string
		h, s, v float64
		want    string
	}{
		{"красный", 0, 1, 1, "#FF0000"},
		{"зелёный", 120, 1, 1, "#00FF00"},
		{"синий", 240, 1, 1, "#0000FF"},
		{"белый", 0, 0, 1, "#FFFFFF"},
		{"чёрный", 200, 1, 0, "#000000"},
		{"полный круг", 360, 1, 1, "#FF0000"},
		{"отрицательный угол", -120, 1, 1, "#0000FF"},
		{"ограничение насыщенности", 60, 2, 1, "#FFFF00"},
		{"половина яркости", 0, 1, 0.5, "#800000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HsvToHex(tt.h, tt.s, tt.v); got != tt.want {
				t.Errorf("HsvToHex(%v, %v, %v) = %s, want %s", tt.h, tt.s, tt.v, got, tt.want)
			}
		})
	}
}
