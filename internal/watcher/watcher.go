// Package watcher reloads the engine credential when its file changes.
package watcher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"lanehud/internal/engine"
	"lanehud/internal/logging"
)

const debounceInterval = 500 * time.Millisecond

// ErrEmptyCredential is returned when the file has no access key id.
var ErrEmptyCredential = errors.New("credential file has no access_key_id")

// UpdateCallback is called with each newly loaded credential.
type UpdateCallback func(cred engine.Credential)

// LoadCredential reads a YAML credential file:
//
//	access_key_id: ...
//	access_key_secret: ...
func LoadCredential(path string) (engine.Credential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return engine.Credential{}, err
	}
	var cred engine.Credential
	if err := yaml.Unmarshal(data, &cred); err != nil {
		return engine.Credential{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if cred.AccessKeyID == "" {
		return engine.Credential{}, ErrEmptyCredential
	}
	return cred, nil
}

// CredentialWatcher monitors one credential file. It watches the parent
// directory so editors that replace the file by rename are still seen.
type CredentialWatcher struct {
	path     string
	callback UpdateCallback
	log      *logging.Logger
	debounce time.Duration

	fsWatcher *fsnotify.Watcher
	cancel    chan struct{}
	done      chan struct{}
	stopOnce  sync.Once

	mu   sync.Mutex
	last engine.Credential
}

// Option configures a CredentialWatcher.
type Option func(*CredentialWatcher)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *CredentialWatcher) { w.log = l.WithComponent("watcher") }
}

// WithDebounce overrides the quiet period before a change is applied.
func WithDebounce(d time.Duration) Option {
	return func(w *CredentialWatcher) { w.debounce = d }
}

// New creates a watcher for path. Call Start to load the file and begin
// watching.
func New(path string, callback UpdateCallback, opts ...Option) *CredentialWatcher {
	w := &CredentialWatcher{
		path:     filepath.Clean(path),
		callback: callback,
		debounce: debounceInterval,
		cancel:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Start loads the credential once, delivers it, then watches for changes.
// A missing or invalid file at start is an error.
func (w *CredentialWatcher) Start() error {
	cred, err := LoadCredential(w.path)
	if err != nil {
		return err
	}

	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsW.Add(filepath.Dir(w.path)); err != nil {
		fsW.Close()
		return err
	}
	w.fsWatcher = fsW

	w.mu.Lock()
	w.last = cred
	w.mu.Unlock()
	if w.callback != nil {
		w.callback(cred)
	}

	go w.watchLoop()
	return nil
}

// Stop ends watching. It is safe to call more than once.
func (w *CredentialWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.cancel)
		if w.fsWatcher != nil {
			w.fsWatcher.Close()
			<-w.done
		}
	})
}

// watchLoop processes fsnotify events with debouncing.
func (w *CredentialWatcher) watchLoop() {
	defer close(w.done)
	var timer *time.Timer

	for {
		select {
		case <-w.cancel:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			// Debounce: reset timer on each event.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("credential watcher error", "path", w.path, "error", err)
		}
	}
}

// reload re-reads the file and notifies if the credential changed.
func (w *CredentialWatcher) reload() {
	select {
	case <-w.cancel:
		return
	default:
	}

	cred, err := LoadCredential(w.path)
	if err != nil {
		w.log.Warn("credential reload failed", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	changed := cred != w.last
	if changed {
		w.last = cred
	}
	w.mu.Unlock()

	if changed && w.callback != nil {
		w.log.Info("credential changed", "path", w.path)
		w.callback(cred)
	}
}
