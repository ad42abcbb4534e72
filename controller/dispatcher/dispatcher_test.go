package dispatcher

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/k0kubun/pp"

	"github.com/kirsrus/healing-garden/server/controller"
	"github.com/kirsrus/healing-garden/server/controller/snapshot"
	"github.com/kirsrus/healing-garden/server/model"
	"github.com/kirsrus/healing-garden/server/service"
	"github.com/kirsrus/healing-garden/server/store/db"
)

// Поддельное API устройств: запоминает команды, отказывает по номеру вызова
type fakeDevice struct {
	mu       sync.Mutex
	commands []model.DeviceCommand
	failOn   map[int]bool
	failAll  bool
	delay    time.Duration
	updated  map[string]interface{}
}

func (f *fakeDevice) Command(ctx context.Context, cmd model.DeviceCommand) (*model.DeviceResponse, error) {
	f.mu.Lock()
	n := len(f.commands)
	if cmd.Color != nil {
		c := *cmd.Color
		cmd.Color = &c
	}
	f.commands = append(f.commands, cmd)
	fail := f.failAll || f.failOn[n]
	f.mu.Unlock()

	time.Sleep(f.delay)
	if fail {
		cause := errors.New("статус 500")
		return nil, errors.Wrapf(cause, service.ErrDeviceFailure, "%s", cause)
	}
	return &model.DeviceResponse{Updated: f.updated}, nil
}

func (f *fakeDevice) sent() []model.DeviceCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.DeviceCommand(nil), f.commands...)
}

type fixture struct {
	dispatcher *Dispatcher
	device     *fakeDevice
	snapshots  controller.SnapshotCtl
}

func newFixture(t *testing.T, device *fakeDevice, config ConfigDispatcher) fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	dbStore, err := db.NewDb(ctx, &db.ConfigDb{DbFile: filepath.Join(dir, "test.sqlite"), VideoDir: dir})
	if err != nil {
		t.Fatal(err)
	}
	_, _, err = dbStore.SetTerrarium(model.Terrarium{ID: "0", Name: "스투키", PlantType: model.PlantSucculent, Address: "http://127.0.0.1:5000"})
	if err != nil {
		t.Fatal(err)
	}
	snapshots, err := snapshot.NewSnapshot(ctx, &snapshot.ConfigSnapshot{})
	if err != nil {
		t.Fatal(err)
	}
	config.DbStore = dbStore
	config.Snapshots = snapshots
	config.Devices = map[string]service.DeviceSvc{"0": device}
	config.SettleDelay = time.Millisecond
	d, err := newDispatcher(ctx, &config)
	if err != nil {
		t.Fatal(err)
	}
	return fixture{dispatcher: d, device: device, snapshots: snapshots}
}

func TestDispatcher_LightOn(t *testing.T) {
	f := newFixture(t, &fakeDevice{}, ConfigDispatcher{})

	if _, err := f.dispatcher.SetColor(context.Background(), "0", "#00FF00"); err != nil {
		t.Fatal(err)
	}
	if len(f.device.sent()) != 0 {
		t.Fatal("выключенная подсветка не должна перезажигаться")
	}

	st, err := f.dispatcher.Dispatch(context.Background(), "0", model.ActionGrowLightOn)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	sent := f.device.sent()
	if len(sent) != 2 {
		t.Fatalf("отправлено %s", pp.Sprint(sent))
	}
	if sent[0].Device != model.DeviceLight || sent[0].On {
		t.Errorf("первая команда %s, want matrix off", pp.Sprint(sent[0]))
	}
	if sent[1].Device != model.DeviceLight || !sent[1].On || sent[1].Color == nil || *sent[1].Color != (model.RGB{R: 0, G: 255, B: 0}) {
		t.Errorf("вторая команда %s, want matrix on {0,255,0}", pp.Sprint(sent[1]))
	}
	if !st.GrowLight || st.Power[model.DeviceLight] != model.PowerOn || st.Simulated {
		t.Errorf("Dispatch() = %s", pp.Sprint(st))
	}

	// Включённая подсветка перезажигается новым цветом
	st, err = f.dispatcher.SetColor(context.Background(), "0", "ff0000")
	if err != nil {
		t.Fatal(err)
	}
	sent = f.device.sent()
	if len(sent) != 4 || *sent[3].Color != (model.RGB{R: 255}) || st.LedColor != (model.RGB{R: 255}) {
		t.Errorf("после смены цвета %s", pp.Sprint(sent))
	}
}

func TestDispatcher_DefaultColor(t *testing.T) {
	f := newFixture(t, &fakeDevice{}, ConfigDispatcher{})
	if _, err := f.dispatcher.Dispatch(context.Background(), "0", model.ActionGrowLightOn); err != nil {
		t.Fatal(err)
	}
	sent := f.device.sent()
	if *sent[1].Color != (model.RGB{R: 0xFF, G: 0xC8, B: 0x64}) {
		t.Errorf("цвет по умолчанию %s", pp.Sprint(sent[1].Color))
	}
}

func TestDispatcher_SetColorInvalid(t *testing.T) {
	f := newFixture(t, &fakeDevice{}, ConfigDispatcher{})
	before, _ := f.dispatcher.State("0")
	for _, hex := range []string{"", "#12345", "#GGGGGG", "1234567"} {
		t.Run(hex, func(t *testing.T) {
			if _, err := f.dispatcher.SetColor(context.Background(), "0", hex); !errors.IsNotValid(err) {
				t.Errorf("SetColor(%q) error = %v", hex, err)
			}
		})
	}
	after, _ := f.dispatcher.State("0")
	if after.LedColor != before.LedColor {
		t.Errorf("цвет изменился: %s -> %s", pp.Sprint(before.LedColor), pp.Sprint(after.LedColor))
	}
}

func TestDispatcher_Pending(t *testing.T) {
	f := newFixture(t, &fakeDevice{delay: 100 * time.Millisecond}, ConfigDispatcher{})

	done := make(chan error, 1)
	go func() {
		_, err := f.dispatcher.Dispatch(context.Background(), "0", model.ActionWaterPumpOn)
		done <- err
	}()
	time.Sleep(30 * time.Millisecond)

	st, err := f.dispatcher.State("0")
	if err != nil || st.Power[model.DevicePump] != model.PowerPending {
		t.Errorf("State() = %s, error = %v", pp.Sprint(st), err)
	}
	if _, err := f.dispatcher.Dispatch(context.Background(), "0", model.ActionWaterPumpOn); errors.Cause(err) != controller.ErrInProgress {
		t.Errorf("повторная команда: error = %v, want ErrInProgress", err)
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if n := len(f.device.sent()); n != 1 {
		t.Errorf("устройству отправлено %d команд, want 1", n)
	}
	st, _ = f.dispatcher.State("0")
	if !st.WaterPump || st.Power[model.DevicePump] != model.PowerOn {
		t.Errorf("State() = %s", pp.Sprint(st))
	}
}

func TestDispatcher_Failure(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name          string
		device        *fakeDevice
		degraded      bool
		key           model.ActionKey
		wantErr       bool
		wantOn        bool
		wantSimulated bool
		wantSent      int
		wantHumidity  float64
		wantLight     float64
	}{
		{
			name:         "строгий режим, откат",
			device:       &fakeDevice{failAll: true},
			key:          model.ActionWaterPumpOn,
			wantErr:      true,
			wantSent:     1,
			wantHumidity: 50,
			wantLight:    300,
		},
		{
			name:          "режим деградации, насос",
			device:        &fakeDevice{failAll: true},
			degraded:      true,
			key:           model.ActionWaterPumpOn,
			wantOn:        true,
			wantSimulated: true,
			wantSent:      1,
			wantHumidity:  60,
			wantLight:     300,
		},
		{
			name:          "режим деградации, подсветка",
			device:        &fakeDevice{failAll: true},
			degraded:      true,
			key:           model.ActionGrowLightOn,
			wantOn:        true,
			wantSimulated: true,
			wantSent:      1,
			wantHumidity:  50,
			wantLight:     500,
		},
		{
			name:         "повтор включения матрицы",
			device:       &fakeDevice{failOn: map[int]bool{1: true}},
			key:          model.ActionGrowLightOn,
			wantOn:       true,
			wantSent:     3,
			wantHumidity: 50,
			wantLight:    300,
		},
		{
			name:         "матрица не включилась",
			device:       &fakeDevice{failOn: map[int]bool{1: true, 2: true}},
			key:          model.ActionGrowLightOn,
			wantErr:      true,
			wantSent:     3,
			wantHumidity: 50,
			wantLight:    300,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.device, ConfigDispatcher{Degraded: tt.degraded})
			f.snapshots.Update("0", model.SensorSnapshot{Humidity: model.Float(50), Light: model.Float(300), ObservedAt: base})

			st, err := f.dispatcher.Dispatch(context.Background(), "0", tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Dispatch() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && errors.Cause(err) != service.ErrDeviceFailure {
				t.Errorf("ожидалась ошибка ErrDeviceFailure, получено %v", err)
			}
			if n := len(tt.device.sent()); n != tt.wantSent {
				t.Errorf("устройству отправлено %d команд, want %d", n, tt.wantSent)
			}

			st, _ = f.dispatcher.State("0")
			dev, _, _ := tt.key.Target()
			wantPower := model.PowerOff
			if tt.wantOn {
				wantPower = model.PowerOn
			}
			if st.Power[dev] != wantPower || st.Simulated != tt.wantSimulated {
				t.Errorf("State() = %s", pp.Sprint(st))
			}

			snap, _ := f.snapshots.Latest("0")
			if *snap.Humidity != tt.wantHumidity || *snap.Light != tt.wantLight {
				t.Errorf("показания %s", pp.Sprint(snap))
			}
		})
	}
}

func TestDispatcher_SetColorFailure(t *testing.T) {
	amber := model.RGB{R: 0xFF, G: 0xC8, B: 0x64}
	tests := []struct {
		name          string
		degraded      bool
		wantErr       bool
		wantColor     model.RGB
		wantSimulated bool
	}{
		{"строгий режим, цвет не меняется", false, true, amber, false},
		{"режим деградации, цвет фиксируется", true, false, model.RGB{R: 0xFF}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := &fakeDevice{}
			f := newFixture(t, device, ConfigDispatcher{Degraded: tt.degraded})
			if _, err := f.dispatcher.Dispatch(context.Background(), "0", model.ActionGrowLightOn); err != nil {
				t.Fatal(err)
			}

			device.mu.Lock()
			device.failAll = true
			device.mu.Unlock()

			_, err := f.dispatcher.SetColor(context.Background(), "0", "#FF0000")
			if (err != nil) != tt.wantErr {
				t.Fatalf("SetColor() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && errors.Cause(err) != service.ErrDeviceFailure {
				t.Errorf("ожидалась ошибка ErrDeviceFailure, получено %v", err)
			}

			st, err := f.dispatcher.State("0")
			if err != nil {
				t.Fatal(err)
			}
			if st.LedColor != tt.wantColor || st.Simulated != tt.wantSimulated {
				t.Errorf("State() = %s", pp.Sprint(st))
			}
			if !st.GrowLight || st.Power[model.DeviceLight] != model.PowerOn {
				t.Errorf("подсветка должна остаться включённой: %s", pp.Sprint(st))
			}
		})
	}
}

func TestDispatcher_Misc(t *testing.T) {
	f := newFixture(t, &fakeDevice{updated: map[string]interface{}{"temp": 24.5, "hum": 61.0}}, ConfigDispatcher{})

	tests := []struct {
		name  string
		key   model.ActionKey
		check func(error) bool
	}{
		{"без действия", model.ActionNone, func(err error) bool { return err == nil }},
		{"неизвестная команда", model.ActionKey("sprinkler_on"), errors.IsNotValid},
		{"нагреватель не подключён", model.ActionHeaterOn, errors.IsNotSupported},
		{"вентилятор", model.ActionVentOn, func(err error) bool { return err == nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.dispatcher.Dispatch(context.Background(), "0", tt.key)
			if !tt.check(err) {
				t.Errorf("Dispatch(%s) error = %v", tt.key, err)
			}
		})
	}
	if n := len(f.device.sent()); n != 1 {
		t.Errorf("устройству отправлено %d команд, want 1", n)
	}

	snap, err := f.snapshots.Latest("0")
	if err != nil || *snap.Temperature != 24.5 || *snap.Humidity != 61 {
		t.Errorf("показания из ответа устройства не приняты: %s, %v", pp.Sprint(snap), err)
	}

	if _, err := f.dispatcher.Dispatch(context.Background(), "9", model.ActionVentOn); !errors.IsNotFound(err) {
		t.Errorf("неизвестный террариум: error = %v", err)
	}
}

func TestDispatcher_Heater(t *testing.T) {
	f := newFixture(t, &fakeDevice{}, ConfigDispatcher{Heater: true})
	st, err := f.dispatcher.Dispatch(context.Background(), "0", model.ActionHeaterOn)
	if err != nil {
		t.Fatal(err)
	}
	if !st.Heater || st.Power[model.DeviceHeater] != model.PowerOn {
		t.Errorf("Dispatch() = %s", pp.Sprint(st))
	}
}
