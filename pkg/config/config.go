package config

import (
	"log"
	"os"
	"sync"
	"time"

	"github.com/jinzhu/configor"
)

var (
	config Config
	once   sync.Once
)

const (
	FileName  = "config.yaml"
	EnvPrefix = "GARDEN"
)

// Get единажды читает и возвращает конфигурацию
func Get() *Config {
	return GetWithPath(FileName)
}

// GetWithPath единожды читает и возвращает конфигурацию
func GetWithPath(filepath string) *Config {
	once.Do(func() {
		if _, err := os.Stat(filepath); err != nil {
			log.Fatalf("файл конфигурации недоступен: %s", err)
		}
		if err := Load(&config, filepath); err != nil {
			log.Fatalf("ошибка чтения файла конфигурации %s: %s", filepath, err)
		}
	})
	return &config
}

// Load читает конфигурацию из файла в cfg без кеширования
func Load(cfg *Config, filepath string) error {
	err := configor.New(&configor.Config{ENVPrefix: EnvPrefix}).Load(cfg, filepath)
	if err != nil {
		return err
	}
	normalize(cfg)
	return nil
}

// Корректировки значений
func normalize(cfg *Config) {
	cfg.Evaluator.TimeOut = cfg.Evaluator.TimeOut * time.Millisecond
	cfg.Evaluator.ResetTimeout = cfg.Evaluator.ResetTimeout * time.Second
	cfg.Devices.TimeOut = cfg.Devices.TimeOut * time.Millisecond
	cfg.Devices.SettleDelay = cfg.Devices.SettleDelay * time.Millisecond
	cfg.Sensors.PollInterval = cfg.Sensors.PollInterval * time.Second
}
