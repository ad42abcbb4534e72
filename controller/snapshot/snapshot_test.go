package snapshot

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/k0kubun/pp"

	"github.com/kirsrus/healing-garden/server/model"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name        string
		raw         map[string]interface{}
		wantTemp    *float64
		wantHum     *float64
		wantLight   *float64
		wantTime    time.Time
		wantInvalid int
	}{
		{
			name:      "каноничные поля",
			raw:       map[string]interface{}{"temperature": 21.5, "humidity": 55.0, "light_level": 300.0},
			wantTemp:  model.Float(21.5),
			wantHum:   model.Float(55),
			wantLight: model.Float(300),
			wantTime:  base,
		},
		{
			name:      "короткие поля",
			raw:       map[string]interface{}{"temp": 18.0, "hum": "42", "lux": 10.0, "timestamp": 1714564800000.0},
			wantTemp:  model.Float(18),
			wantHum:   model.Float(42),
			wantLight: model.Float(10),
			wantTime:  time.Unix(1714564800, 0),
		},
		{
			name:     "приоритет первого заполненного",
			raw:      map[string]interface{}{"temperature": nil, "temp": 25.0, "TEMP": 99.0},
			wantTemp: model.Float(25),
			wantTime: base,
		},
		{
			name:      "lightLevel и секунды",
			raw:       map[string]interface{}{"lightLevel": 700.0, "observedAt": 1714564800.0},
			wantLight: model.Float(700),
			wantTime:  time.Unix(1714564800, 0),
		},
		{
			name:        "нечисловое и вне диапазона",
			raw:         map[string]interface{}{"temp": "жарко", "hum": 140.0, "lux": -1.0},
			wantTime:    base,
			wantInvalid: 3,
		},
		{
			name:     "RFC3339",
			raw:      map[string]interface{}{"temp": 20.0, "timestamp": "2024-05-01T10:00:00Z"},
			wantTemp: model.Float(20),
			wantTime: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, invalid := Normalize(tt.raw, base)
			want := model.SensorSnapshot{Temperature: tt.wantTemp, Humidity: tt.wantHum, Light: tt.wantLight, ObservedAt: tt.wantTime}
			if !got.Equal(want) {
				t.Errorf("Normalize() = %s, want %s", pp.Sprint(got), pp.Sprint(want))
			}
			if len(invalid) != tt.wantInvalid {
				t.Errorf("invalid = %v, want %d", invalid, tt.wantInvalid)
			}
		})
	}
}

func newTestSnapshot(t *testing.T, source *fakeSource) *Snapshot {
	t.Helper()
	config := &ConfigSnapshot{PollInterval: 10 * time.Millisecond}
	if source != nil {
		config.Source = source
	}
	s, err := newSnapshot(context.Background(), config)
	if err != nil {
		t.Fatal(err)
	}
	s.now = func() time.Time { return base }
	return s
}

func TestSnapshot_Update(t *testing.T) {
	s := newTestSnapshot(t, nil)
	if _, err := s.Latest("0"); !errors.IsNotFound(err) {
		t.Fatalf("ожидалась ошибка NotFound, получено %v", err)
	}

	var notified []model.SensorSnapshot
	cancel := s.Subscribe("0", func(snapshot model.SensorSnapshot) { notified = append(notified, snapshot) })

	steps := []struct {
		name     string
		snapshot model.SensorSnapshot
		want     bool
	}{
		{"первый замер", model.SensorSnapshot{Temperature: model.Float(20), Humidity: model.Float(50), ObservedAt: base}, true},
		{"повтор", model.SensorSnapshot{Temperature: model.Float(20), Humidity: model.Float(50), ObservedAt: base}, false},
		{"более старый", model.SensorSnapshot{Temperature: model.Float(10), ObservedAt: base.Add(-time.Minute)}, false},
		{"частичный новый", model.SensorSnapshot{Temperature: model.Float(23), ObservedAt: base.Add(time.Minute)}, true},
	}
	for _, st := range steps {
		if got := s.Update("0", st.snapshot); got != st.want {
			t.Errorf("%s: Update() = %v, want %v", st.name, got, st.want)
		}
	}

	got, err := s.Latest("0")
	if err != nil {
		t.Fatal(err)
	}
	if *got.Temperature != 23 || got.Humidity == nil || *got.Humidity != 50 || got.Light != nil {
		t.Errorf("Latest() = %s", pp.Sprint(got))
	}
	if len(notified) != 2 {
		t.Errorf("подписчик получил %d обновлений, want 2", len(notified))
	}

	cancel()
	cancel()
	s.Update("0", model.SensorSnapshot{Light: model.Float(100), ObservedAt: base.Add(time.Hour)})
	if len(notified) != 2 {
		t.Error("после отписки обновления приходить не должны")
	}
}

func TestSnapshot_Ingest(t *testing.T) {
	s := newTestSnapshot(t, nil)
	tests := []struct {
		name    string
		raw     map[string]interface{}
		strict  bool
		wantErr bool
	}{
		{"строгий с ошибкой", map[string]interface{}{"temp": 20.0, "hum": "много"}, true, true},
		{"нестрогий с ошибкой", map[string]interface{}{"temp": 20.0, "hum": "много"}, false, false},
		{"без показаний", map[string]interface{}{"timestamp": 1714564900000.0}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Ingest("0", tt.raw, tt.strict)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Ingest() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.IsNotValid(err) {
				t.Errorf("ожидалась ошибка NotValid, получено %v", err)
			}
		})
	}
	got, err := s.Latest("0")
	if err != nil || got.Humidity != nil || *got.Temperature != 20 {
		t.Errorf("Latest() = %s, error = %v", pp.Sprint(got), err)
	}
}

type fakeSource struct {
	calls int32
	delay time.Duration
	raw   map[string]interface{}
	err   error
}

func (f *fakeSource) Latest(ctx context.Context, terrariumID string) (map[string]interface{}, error) {
	atomic.AddInt32(&f.calls, 1)
	time.Sleep(f.delay)
	return f.raw, f.err
}

func TestSnapshot_Refresh(t *testing.T) {
	if _, err := newTestSnapshot(t, nil).Refresh(context.Background(), "0"); !errors.IsNotSupported(err) {
		t.Errorf("без источника ожидалась ошибка NotSupported, получено %v", err)
	}

	source := &fakeSource{delay: 50 * time.Millisecond, raw: map[string]interface{}{"temp": 22.0, "hum": 45.0, "lux": 120.0}}
	s := newTestSnapshot(t, source)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Refresh(context.Background(), "0"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if calls := atomic.LoadInt32(&source.calls); calls >= 5 {
		t.Errorf("одновременные запросы не объединены: %d обращений", calls)
	}

	got, err := s.Latest("0")
	if err != nil || *got.Light != 120 {
		t.Errorf("Latest() = %s, error = %v", pp.Sprint(got), err)
	}

	missing := newTestSnapshot(t, &fakeSource{err: errors.NotFoundf("показания")})
	if _, err := missing.Refresh(context.Background(), "0"); !errors.IsNotFound(err) {
		t.Errorf("ожидалась ошибка NotFound, получено %v", err)
	}
}

func TestSnapshot_Watch(t *testing.T) {
	source := &fakeSource{raw: map[string]interface{}{"temp": 22.0}}
	s := newTestSnapshot(t, source)

	stop := s.Watch("0", 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	stop()
	time.Sleep(20 * time.Millisecond)
	calls := atomic.LoadInt32(&source.calls)
	if calls < 2 {
		t.Errorf("опрос не выполнялся: %d обращений", calls)
	}
	time.Sleep(30 * time.Millisecond)
	if after := atomic.LoadInt32(&source.calls); after != calls {
		t.Errorf("опрос продолжился после остановки: %d -> %d", calls, after)
	}

	s.Watch("0", 5*time.Millisecond)
	s.Watch("1", 5*time.Millisecond)
	s.StopAll()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.watchers) != 0 {
		t.Errorf("StopAll() оставил %d опросов", len(s.watchers))
	}
}
