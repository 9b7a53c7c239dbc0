package cfg

import (
	"context"
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var (
	cfgIns     *Config
	cfgInsOnce sync.Once
	cfgMutex   sync.RWMutex
)

// reloadLogger is the narrow logging surface ViperLoader needs for
// watch-driven reloads. It mirrors pkg/log.Logger's Info/Error methods
// rather than importing that package directly, so cfg has no
// dependency on the rest of the module's logging stack and a caller
// can plug in its own *log.CslLogger without a wrapper type.
type reloadLogger interface {
	Info(ctx context.Context, format string, args ...interface{})
	Error(ctx context.Context, format string, args ...interface{})
}

type ViperLoader struct {
	logger                reloadLogger
	configChangeCallbacks []func(*Config)
}

func NewViperLoader() (*ViperLoader, error) {
	return &ViperLoader{
		configChangeCallbacks: make([]func(*Config), 0),
	}, nil
}

// SetLogger routes config-reload notifications through the caller's
// structured logger instead of the bare stdout fallback, so a reload
// in a long-running process (the worker, the intake consumer) shows up
// alongside its other operational logs rather than on a separate
// stream.
func (yl *ViperLoader) SetLogger(logger reloadLogger) {
	yl.logger = logger
}

func (yl *ViperLoader) logInfo(format string, args ...interface{}) {
	if yl.logger != nil {
		yl.logger.Info(context.Background(), format, args...)
		return
	}
	fmt.Printf("[INFO][CONFIG] "+format+"\n", args...)
}

func (yl *ViperLoader) logError(format string, args ...interface{}) {
	if yl.logger != nil {
		yl.logger.Error(context.Background(), format, args...)
		return
	}
	fmt.Printf("[ERROR][CONFIG] "+format+"\n", args...)
}

func (yl *ViperLoader) Load() (*Config, error) {
	var err error
	cfgInsOnce.Do(func() {
		err = yl.loadConfig()
		if err == nil && yl.IsWatchChange() {
			viper.WatchConfig()
			viper.OnConfigChange(func(e fsnotify.Event) {
				yl.logInfo("config file changed: %s", e.Name)
				if errReload := yl.reloadConfig(); errReload != nil {
					yl.logError("failed to reload config: %v", errReload)
				}
			})
		}
	})

	if err != nil {
		return nil, err
	}

	cfgMutex.RLock()
	defer cfgMutex.RUnlock()
	return cfgIns, nil
}

func (yl *ViperLoader) IsWatchChange() bool {
	return true
}

func (yl *ViperLoader) RegisterConfigChangeCallback(callback func(*Config)) {
	cfgMutex.Lock()
	yl.configChangeCallbacks = append(yl.configChangeCallbacks, callback)
	cfgMutex.Unlock()
}

func (yl *ViperLoader) loadConfig() error {
	viper.AddConfigPath("cfg/yaml")
	viper.SetConfigName("mode")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("[ERROR][CONFIG] failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("[ERROR][CONFIG] failed to unmarshal config: %w", err)
	}

	cfgMutex.Lock()
	cfgIns = cfg
	cfgMutex.Unlock()

	return nil
}

func (yl *ViperLoader) reloadConfig() error {
	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("[ERROR][CONFIG] failed to unmarshal config during reload: %w", err)
	}

	cfgMutex.Lock()
	cfgIns = cfg

	callbacks := make([]func(*Config), len(yl.configChangeCallbacks))
	copy(callbacks, yl.configChangeCallbacks)
	cfgMutex.Unlock()
	for _, callback := range callbacks {
		go callback(cfg)
	}

	yl.logInfo("configuration reloaded successfully, %d callback(s) notified", len(callbacks))
	return nil
}
