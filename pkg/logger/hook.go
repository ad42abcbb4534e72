package logger

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// Глубина поиска вызывающего кода в стеке
const maxCallerDepth = 15

// LogrusContextHook добавляет в запись лога поле source с местом вызова (файл:строка)
type LogrusContextHook struct{}

// Levels уровни, на которых срабатывает хук
func (hook LogrusContextHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire заполнение поля source
func (hook LogrusContextHook) Fire(entry *logrus.Entry) error {
	if source := callerSource(); source != "" {
		entry.Data["source"] = source
	}
	return nil
}

// Ищем первый кадр стека за пределами logrus и этого пакета
func callerSource() string {
	pcs := make([]uintptr, maxCallerDepth)
	n := runtime.Callers(4, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "github.com/sirupsen/logrus") && !strings.Contains(frame.Function, "pkg/logger.LogrusContextHook") {
			return fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
		}
		if !more {
			return ""
		}
	}
}
