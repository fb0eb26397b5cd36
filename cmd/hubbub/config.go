/*
LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean)

  This is free software: you can redistribute it and/or modify it
  under the terms of the GNU General Public License as published by
  the Free Software Foundation, either version 3 of the License, or
  (at your option) any later version.

  It is distributed in the hope that it will be useful,
  but WITHOUT ANY WARRANTY; without even the implied warranty of
  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
  GNU General Public License for more details.

  You should have received a copy of the GNU General Public License
  in gpl.txt. If not, see http://www.gnu.org/licenses/.
*/

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ausocean/utils/logging"
)

// config holds the runtime configurable settings of the service.
// Settings absent from the file are left unchanged.
type config struct {
	LogLevel         string   `json:"LogLevel"`
	LogSuppress      *bool    `json:"LogSuppress"`
	LogCallerFilters []string `json:"LogCallerFilters"`
}

var logLevels = map[string]int8{
	"debug":   logging.Debug,
	"info":    logging.Info,
	"warning": logging.Warning,
	"error":   logging.Error,
	"fatal":   logging.Fatal,
}

// logConfigurer is the part of *logging.JSONLogger that config applies to.
type logConfigurer interface {
	SetLevel(int8)
	SetSuppress(bool)
	SetCallerFilters(...string)
}

// loadConfig loads the config file and applies its logging settings.
func (svc *service) loadConfig() error {
	svc.configMutex.Lock()
	defer svc.configMutex.Unlock()

	svc.log.Info("loading config file", "file", svc.configFile)
	data, err := os.ReadFile(svc.configFile)
	if err != nil {
		return fmt.Errorf("could not read config file: %w", err)
	}

	var cfg config
	err = json.Unmarshal(data, &cfg)
	if err != nil {
		return fmt.Errorf("could not unmarshal config file: %w", err)
	}
	svc.log.Debug("config loaded", "cfg", cfg)

	l, ok := svc.log.(*logging.JSONLogger)
	if !ok {
		return fmt.Errorf("cannot configure logger of type %T", svc.log)
	}
	return applyConfig(l, cfg)
}

// applyConfig applies cfg to l. SetSuppress reinitializes a JSONLogger
// at its previous level, so the level is set last.
func applyConfig(l logConfigurer, cfg config) error {
	var level int8
	if cfg.LogLevel != "" {
		var ok bool
		level, ok = logLevels[strings.ToLower(cfg.LogLevel)]
		if !ok {
			return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
		}
	}
	if cfg.LogSuppress != nil {
		l.SetSuppress(*cfg.LogSuppress)
	}
	if cfg.LogCallerFilters != nil {
		l.SetCallerFilters(cfg.LogCallerFilters...)
	}
	if cfg.LogLevel != "" {
		l.SetLevel(level)
	}
	return nil
}

// onConfigChange reloads the config file when it is modified.
func (svc *service) onConfigChange() {
	err := svc.loadConfig()
	if err != nil {
		svc.log.Error("could not load config", "error", err)
	}
}
