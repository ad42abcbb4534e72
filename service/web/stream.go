package web

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo"

	"github.com/kirsrus/healing-garden/server/model"
)

const (
	streamBuffer = 10
	pingInterval = 10 * time.Second
	writeTimeout = 5 * time.Second
)

// Поток показаний террариума по WebSocket. Первым отправляется последний известный снимок
func (m *Web) stream(c echo.Context) error {
	id := c.Param("id")
	if _, err := m.dbStore.Terrarium(id); err != nil {
		return m.fail(c, err)
	}

	conn, err := m.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Ответ клиенту уже отправлен
		m.log.Debugf("ошибка подключения WebSocket: %s", err)
		return nil
	}
	defer func() { _ = conn.Close() }()
	log := m.log.WithField("terrarium", id)
	log.Debug("подключён поток показаний")

	updates := make(chan model.SensorSnapshot, streamBuffer)
	cancel := m.snapshots.Subscribe(id, func(snapshot model.SensorSnapshot) {
		select {
		case updates <- snapshot:
		default:
			log.Warn("очередь потока показаний переполнена")
		}
	})
	defer cancel()

	// Источник опрашивается только пока поток открыт
	if m.streamPoll > 0 {
		stop := m.snapshots.Watch(id, m.streamPoll)
		defer stop()
	}

	// Чтение нужно только для обнаружения закрытия соединения
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if snapshot, err := m.snapshots.Latest(id); err == nil {
		if err := m.write(conn, snapshot); err != nil {
			return nil
		}
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeTimeout))
			return nil
		case <-closed:
			log.Debug("поток показаний закрыт клиентом")
			return nil
		case snapshot := <-updates:
			if err := m.write(conn, snapshot); err != nil {
				log.Debugf("ошибка записи в WebSocket: %s", err)
				return nil
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return nil
			}
		}
	}
}

func (m *Web) write(conn *websocket.Conn, snapshot model.SensorSnapshot) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(snapshot)
}
