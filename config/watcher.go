package config

import (
	"sync/atomic"

	"github.com/knadh/koanf/providers/file"

	"github.com/tomo-delivery/dispatchd/core/dispatch"
	"github.com/tomo-delivery/dispatchd/core/logger"
)

// Watcher reloads the configuration file on change and serves the
// latest valid snapshot. A reload that fails to parse or validate is
// logged and the previous snapshot stays in effect. Dispatch decisions
// read one snapshot at start, so a reload never alters an offer already
// in flight.
type Watcher struct {
	path string
	log  logger.Logger
	f    *file.File
	cur  atomic.Value // *Config
}

// NewWatcher loads the file and starts watching it.
func NewWatcher(path string, log logger.Logger) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	w := &Watcher{path: path, log: log, f: file.Provider(path)}
	w.cur.Store(cfg)
	if err := w.f.Watch(func(_ interface{}, err error) {
		if err != nil {
			w.log.Errorf("config watch: %v", err)
			return
		}
		w.reload()
	}); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Errorf("config reload rejected: %v", err)
		return
	}
	w.cur.Store(cfg)
	w.log.Infof("config reloaded")
}

// Config returns the current snapshot.
func (w *Watcher) Config() *Config {
	return w.cur.Load().(*Config)
}

// DispatchConfig implements dispatch.ConfigSource.
func (w *Watcher) DispatchConfig() dispatch.Config {
	return w.Config().Dispatch
}

// Close stops watching the file.
func (w *Watcher) Close() error {
	return w.f.Unwatch()
}
