package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/errors"
	"github.com/k0kubun/pp"

	"github.com/kirsrus/healing-garden/server/controller"
	"github.com/kirsrus/healing-garden/server/controller/diary"
	"github.com/kirsrus/healing-garden/server/controller/dispatcher"
	"github.com/kirsrus/healing-garden/server/controller/evaluator"
	"github.com/kirsrus/healing-garden/server/controller/snapshot"
	"github.com/kirsrus/healing-garden/server/model"
	"github.com/kirsrus/healing-garden/server/service"
	"github.com/kirsrus/healing-garden/server/store/db"
)

// Поддельное API устройств террариума
type fakeDevice struct {
	mu   sync.Mutex
	fail bool
}

func (f *fakeDevice) Command(ctx context.Context, cmd model.DeviceCommand) (*model.DeviceResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		cause := errors.New("статус 500")
		return nil, errors.Wrapf(cause, service.ErrDeviceFailure, "%s", cause)
	}
	return &model.DeviceResponse{}, nil
}

func (f *fakeDevice) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

type fixture struct {
	web       *Web
	device    *fakeDevice
	snapshots controller.SnapshotCtl
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	dir := t.TempDir()

	dbStore, err := db.NewDb(ctx, &db.ConfigDb{DbFile: filepath.Join(dir, "test.sqlite"), VideoDir: filepath.Join(dir, "video")})
	if err != nil {
		t.Fatal(err)
	}
	_, _, err = dbStore.SetTerrarium(model.Terrarium{ID: "0", Name: "로즈마리", PlantType: model.PlantHerb, Address: "http://127.0.0.1:5000"})
	if err != nil {
		t.Fatal(err)
	}
	snapshots, err := snapshot.NewSnapshot(ctx, &snapshot.ConfigSnapshot{DbStore: dbStore})
	if err != nil {
		t.Fatal(err)
	}
	eval, err := evaluator.NewEvaluator(ctx, &evaluator.ConfigEvaluator{DbStore: dbStore, Snapshots: snapshots})
	if err != nil {
		t.Fatal(err)
	}
	device := &fakeDevice{}
	disp, err := dispatcher.NewDispatcher(ctx, &dispatcher.ConfigDispatcher{
		DbStore:     dbStore,
		Snapshots:   snapshots,
		Devices:     map[string]service.DeviceSvc{"0": device},
		SettleDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	dia, err := diary.NewDiary(ctx, &diary.ConfigDiary{DbStore: dbStore})
	if err != nil {
		t.Fatal(err)
	}

	web, err := newWeb(ctx, &ConfigWeb{
		DbStore:    dbStore,
		Snapshots:  snapshots,
		Evaluator:  eval,
		Dispatcher: disp,
		Diary:      dia,
	})
	if err != nil {
		t.Fatal(err)
	}
	web.Sensors("/sensors")
	web.Terrariums("/api/terrariums")
	web.Diary("/api/diary")
	web.Lcd("/lcd")
	web.Videos("/static/videos")
	web.Metrics("/metrics")
	return fixture{web: web, device: device, snapshots: snapshots}
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type step struct {
	name       string
	method     string
	path       string
	body       string
	wantStatus int
	wantBody   string
}

func runSteps(t *testing.T, h http.Handler, steps []step) {
	t.Helper()
	for _, tt := range steps {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, tt.method, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("%s %s: статус %d, want %d: %s", tt.method, tt.path, rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantBody != "" && !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("%s %s: в ответе нет %s: %s", tt.method, tt.path, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestWeb_Sensors(t *testing.T) {
	f := newFixture(t)
	runSteps(t, f.web, []step{
		{"нет показаний", http.MethodGet, "/sensors/0/latest", "", http.StatusNotFound, `"ok":false`},
		{"без id", http.MethodPost, "/sensors/update", `{"temp":21}`, http.StatusBadRequest, ""},
		{"некорректный JSON", http.MethodPost, "/sensors/update", `{"temp":`, http.StatusBadRequest, ""},
		{"некорректное поле", http.MethodPost, "/sensors/update", `{"id":"0","temp":21,"hum":"сыро"}`, http.StatusBadRequest, ""},
		{"показания", http.MethodPost, "/sensors/update", `{"id":"0","temp":21.5,"humidity":55,"lux":300}`, http.StatusOK, `"ok":true`},
		{"числовой id", http.MethodPost, "/sensors/update", `{"id":1,"temp":20}`, http.StatusOK, ""},
		{"последние показания", http.MethodGet, "/sensors/0/latest", "", http.StatusOK, `"temp":21.5`},
		{"снимок террариума", http.MethodGet, "/api/terrariums/0/snapshot", "", http.StatusOK, `"humidity":55`},
		{"история", http.MethodGet, "/api/terrariums/0/history?days=1", "", http.StatusOK, `"temperature":21.5`},
		{"история сжатая", http.MethodGet, "/api/terrariums/0/history?compact=true", "", http.StatusOK, `"max"`},
		{"история с ошибкой", http.MethodGet, "/api/terrariums/0/history?days=много", "", http.StatusBadRequest, ""},
		{"опрос без источника", http.MethodPost, "/api/terrariums/0/refresh", "", http.StatusBadRequest, ""},
		{"список террариумов", http.MethodGet, "/api/terrariums", "", http.StatusOK, `"name":"로즈마리"`},
		{"метрики", http.MethodGet, "/metrics", "", http.StatusOK, "garden_sensor_readings_total"},
	})
}

func TestWeb_EvaluateAndDispatch(t *testing.T) {
	f := newFixture(t)
	f.snapshots.Update("0", model.SensorSnapshot{
		Temperature: model.Float(15),
		Humidity:    model.Float(80),
		Light:       model.Float(30),
		ObservedAt:  time.Now(),
	})

	runSteps(t, f.web, []step{
		{"нет оценки", http.MethodGet, "/api/terrariums/0/evaluation", "", http.StatusNotFound, ""},
		{"оценка", http.MethodPost, "/api/terrariums/0/evaluate", "", http.StatusOK, `"id":"hum_high"`},
		{"неизвестный террариум", http.MethodPost, "/api/terrariums/9/evaluate", "", http.StatusNotFound, ""},
		{"применение", http.MethodPost, "/api/terrariums/0/apply", `{"generation":1,"id":"lux_low"}`, http.StatusOK, `"growLight":true`},
		{"повторная оценка", http.MethodPost, "/api/terrariums/0/evaluate", "", http.StatusOK, `"generation":2`},
		{"устаревшая рекомендация", http.MethodPost, "/api/terrariums/0/apply", `{"generation":1,"id":"hum_high"}`, http.StatusConflict, ""},
		{"применение без id", http.MethodPost, "/api/terrariums/0/apply", `{"generation":2}`, http.StatusBadRequest, ""},
		{"текущая оценка", http.MethodGet, "/api/terrariums/0/evaluation", "", http.StatusOK, `"generation":2`},
		{"команда вентилятору", http.MethodPost, "/api/terrariums/0/dispatch", `{"actionKey":"vent_on"}`, http.StatusOK, `"vent":true`},
		{"без нагревателя", http.MethodPost, "/api/terrariums/0/dispatch", `{"actionKey":"heater_on"}`, http.StatusBadRequest, ""},
		{"неизвестная команда", http.MethodPost, "/api/terrariums/0/dispatch", `{"actionKey":"sprinkler"}`, http.StatusBadRequest, ""},
		{"некорректный цвет", http.MethodPost, "/api/terrariums/0/color", `{"hex":"#12345"}`, http.StatusBadRequest, ""},
		{"цвет HSV", http.MethodPost, "/api/terrariums/0/color", `{"h":120}`, http.StatusOK, `"ledColor":{"r":0,"g":255,"b":0}`},
		{"цвет hex", http.MethodPost, "/api/terrariums/0/color", `{"hex":"0000ff"}`, http.StatusOK, `"b":255`},
		{"состояние устройств", http.MethodGet, "/api/terrariums/0/devices", "", http.StatusOK, `"matrix":"ON"`},
		{"ободрение", http.MethodPost, "/api/terrariums/0/cheer", `{"date":"2024-05-01"}`, http.StatusOK, `"source":"local"`},
		{"ободрение без тела", http.MethodPost, "/api/terrariums/0/cheer", "", http.StatusOK, `"message"`},
	})

	f.device.setFail(true)
	runSteps(t, f.web, []step{
		{"устройство недоступно", http.MethodPost, "/api/terrariums/0/dispatch", `{"actionKey":"water_pump_on"}`, http.StatusBadGateway, `"ok":false`},
		{"откат состояния", http.MethodGet, "/api/terrariums/0/devices", "", http.StatusOK, `"pump":"OFF"`},
	})
}

func TestWeb_Diary(t *testing.T) {
	f := newFixture(t)
	runSteps(t, f.web, []step{
		{"запись", http.MethodPut, "/api/diary/2024-05-01", `{"mood":3,"diary":"맑음"}`, http.StatusOK, `"mood":3`},
		{"замена", http.MethodPut, "/api/diary/2024-05-01", `{"mood":2,"diary":"흐림"}`, http.StatusOK, `"diary":"흐림"`},
		{"вторая запись", http.MethodPut, "/api/diary/2024-05-02", `{"mood":0}`, http.StatusOK, ""},
		{"настроение вне шкалы", http.MethodPut, "/api/diary/2024-05-03", `{"mood":7}`, http.StatusBadRequest, ""},
		{"без настроения", http.MethodPut, "/api/diary/2024-05-03", `{"diary":"..."}`, http.StatusBadRequest, ""},
		{"дата не в формате", http.MethodPut, "/api/diary/03.05.2024", `{"mood":1}`, http.StatusBadRequest, ""},
		{"чтение", http.MethodGet, "/api/diary/2024-05-01", "", http.StatusOK, `"mood":2`},
		{"нет записи", http.MethodGet, "/api/diary/2024-05-09", "", http.StatusNotFound, ""},
		{"период", http.MethodGet, "/api/diary?from=2024-05-02&to=2024-05-31", "", http.StatusOK, `"date":"2024-05-02"`},
		{"другой пользователь", http.MethodGet, "/api/diary?user=minji", "", http.StatusOK, "[]"},
	})
}

func TestWeb_Lcd(t *testing.T) {
	f := newFixture(t)
	runSteps(t, f.web, []step{
		{"нет команды", http.MethodGet, "/lcd/0/last", "", http.StatusNotFound, "no_command"},
		{"без action", http.MethodPost, "/lcd/0/command", `{}`, http.StatusBadRequest, ""},
		{"play без url", http.MethodPost, "/lcd/0/command", `{"action":"play"}`, http.StatusBadRequest, ""},
		{"play", http.MethodPost, "/lcd/0/command", `{"action":"play","url":"/static/videos/a.mp4"}`, http.StatusOK, `"ok":true`},
		{"забор", http.MethodGet, "/lcd/0/last", "", http.StatusOK, `"action":"play"`},
		{"забор повторно", http.MethodGet, "/lcd/0/last", "", http.StatusOK, `"action":"play"`},
		{"подтверждение", http.MethodPost, "/lcd/0/ack", "", http.StatusOK, ""},
		{"после подтверждения", http.MethodGet, "/lcd/0/last", "", http.StatusNotFound, ""},
		{"команда террариума", http.MethodPost, "/api/terrariums/0/lcd", `{"action":"pause"}`, http.StatusOK, ""},
		{"команда неизвестного террариума", http.MethodPost, "/api/terrariums/9/lcd", `{"action":"pause"}`, http.StatusNotFound, ""},
		{"последняя команда террариума", http.MethodGet, "/api/terrariums/0/lcd", "", http.StatusOK, `"action":"pause"`},
	})
}

func TestWeb_Video(t *testing.T) {
	f := newFixture(t)
	video := append([]byte("FLV\x01\x05\x00\x00\x00\x09"), make([]byte, 64)...)

	upload := func(field string, content []byte) *httptest.ResponseRecorder {
		body := new(bytes.Buffer)
		w := multipart.NewWriter(body)
		part, _ := w.CreateFormFile(field, "clip.flv")
		_, _ = part.Write(content)
		_ = w.Close()
		req := httptest.NewRequest(http.MethodPost, "/lcd/0/upload", body)
		req.Header.Set("Content-Type", w.FormDataContentType())
		rec := httptest.NewRecorder()
		f.web.ServeHTTP(rec, req)
		return rec
	}

	if rec := upload("file", video); rec.Code != http.StatusBadRequest {
		t.Errorf("без поля video: статус %d", rec.Code)
	}
	if rec := upload("video", []byte("не видео")); rec.Code != http.StatusBadRequest {
		t.Errorf("не видео: статус %d", rec.Code)
	}

	rec := upload("video", video)
	if rec.Code != http.StatusOK {
		t.Fatalf("загрузка: статус %d: %s", rec.Code, rec.Body.String())
	}
	var res struct {
		Ok  bool   `json:"ok"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil || !res.Ok || !strings.HasPrefix(res.URL, "/static/videos/") {
		t.Fatalf("ответ загрузки %s, error = %v", pp.Sprint(res), err)
	}

	got := do(f.web, http.MethodGet, res.URL, "")
	if got.Code != http.StatusOK || !bytes.Equal(got.Body.Bytes(), video) {
		t.Errorf("выдача видео: статус %d, %d байт", got.Code, got.Body.Len())
	}
	if got := do(f.web, http.MethodGet, "/static/videos/missing.flv", ""); got.Code != http.StatusNotFound {
		t.Errorf("нет видео: статус %d", got.Code)
	}
}

func TestWeb_Stream(t *testing.T) {
	f := newFixture(t)
	f.snapshots.Update("0", model.SensorSnapshot{Temperature: model.Float(20), ObservedAt: time.Now().Add(-time.Minute)})

	srv := httptest.NewServer(f.web)
	defer srv.Close()

	if rec := do(f.web, http.MethodGet, "/api/terrariums/9/stream", ""); rec.Code != http.StatusNotFound {
		t.Errorf("неизвестный террариум: статус %d", rec.Code)
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/terrariums/0/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = conn.Close() }()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first model.SensorSnapshot
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatal(err)
	}
	if first.Temperature == nil || *first.Temperature != 20 {
		t.Errorf("первый снимок %s", pp.Sprint(first))
	}

	// Подписка оформляется после подключения, даём ей время
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f.snapshots.Update("0", model.SensorSnapshot{Humidity: model.Float(66), ObservedAt: time.Now()})
		var next model.SensorSnapshot
		if err := conn.ReadJSON(&next); err != nil {
			t.Fatal(err)
		}
		if next.Humidity != nil && *next.Humidity == 66 && *next.Temperature == 20 {
			return
		}
	}
	t.Error("обновление не пришло в поток")
}

// Считает запуски и остановки опроса источника
type watchCounter struct {
	controller.SnapshotCtl
	mu      sync.Mutex
	started int
	stopped int
}

func (w *watchCounter) Watch(terrariumID string, interval time.Duration) func() {
	w.mu.Lock()
	w.started++
	w.mu.Unlock()
	return func() {
		w.mu.Lock()
		w.stopped++
		w.mu.Unlock()
	}
}

func (w *watchCounter) counts() (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started, w.stopped
}

func TestWeb_StreamPolling(t *testing.T) {
	tests := []struct {
		name        string
		poll        time.Duration
		wantStarted int
	}{
		{"без опроса", 0, 0},
		{"опрос на время потока", time.Second, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			counter := &watchCounter{SnapshotCtl: f.snapshots}
			f.web.snapshots = counter
			f.web.streamPoll = tt.poll
			f.snapshots.Update("0", model.SensorSnapshot{Temperature: model.Float(20), ObservedAt: time.Now()})

			srv := httptest.NewServer(f.web)
			defer srv.Close()

			conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/terrariums/0/stream", nil)
			if err != nil {
				t.Fatal(err)
			}
			_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			var first model.SensorSnapshot
			if err := conn.ReadJSON(&first); err != nil {
				t.Fatal(err)
			}
			// Первый снимок отправляется после запуска опроса
			if started, stopped := counter.counts(); started != tt.wantStarted || stopped != 0 {
				t.Errorf("при открытом потоке started=%d stopped=%d", started, stopped)
			}
			_ = conn.Close()

			deadline := time.Now().Add(2 * time.Second)
			for time.Now().Before(deadline) {
				if _, stopped := counter.counts(); stopped == tt.wantStarted {
					return
				}
				time.Sleep(10 * time.Millisecond)
			}
			started, stopped := counter.counts()
			t.Errorf("после закрытия потока started=%d stopped=%d", started, stopped)
		})
	}
}
