package external

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// FileProvider serves values from a YAML file of key/value pairs. Nested
// maps are flattened with dots. The file is reloaded when it changes.
type FileProvider struct {
	name   string
	path   string
	logger zerolog.Logger

	mu     sync.RWMutex
	values map[string]string

	watcher   *fsnotify.Watcher
	done      chan struct{}
	closeOnce sync.Once
}

// NewFileProvider creates a file provider. The "path" subkey is required;
// a relative path is resolved against the blueprint.home property when set.
// Set "watch" to "false" to disable reloading.
func NewFileProvider(ctx Context, name string, config map[string]string) (Provider, error) {
	path := config["path"]
	if path == "" {
		return nil, fmt.Errorf("file provider requires a path")
	}
	if !filepath.IsAbs(path) {
		if home, ok := ctx.Property("blueprint.home"); ok && home != "" {
			path = filepath.Join(home, path)
		}
	}

	p := &FileProvider{
		name:   name,
		path:   path,
		logger: ctx.Logger().With().Str("provider", name).Str("path", path).Logger(),
	}
	if err := p.reload(); err != nil {
		return nil, err
	}

	if config["watch"] != "false" {
		if err := p.watch(); err != nil {
			return nil, fmt.Errorf("failed to watch %s: %w", path, err)
		}
	}
	return p, nil
}

// Name returns the provider name.
func (p *FileProvider) Name() string { return p.name }

// Get returns the value for key from the last successful load.
func (p *FileProvider) Get(key string) (string, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.values[key]
	return v, ok, nil
}

// Close stops watching the file.
func (p *FileProvider) Close() error {
	if p.watcher == nil {
		return nil
	}
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		err = p.watcher.Close()
	})
	return err
}

func (p *FileProvider) reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", p.path, err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse %s: %w", p.path, err)
	}

	values := make(map[string]string)
	flatten("", raw, values)

	p.mu.Lock()
	p.values = values
	p.mu.Unlock()
	return nil
}

// watch observes the parent directory so editors that replace the file
// atomically are still noticed.
func (p *FileProvider) watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		_ = watcher.Close()
		return err
	}

	p.watcher = watcher
	p.done = make(chan struct{})
	go p.loop()
	return nil
}

func (p *FileProvider) loop() {
	target := filepath.Clean(p.path)
	for {
		select {
		case <-p.done:
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := p.reload(); err != nil {
				// Keep serving the previous values.
				p.logger.Warn().Err(err).Msg("Failed to reload external config file")
				continue
			}
			p.logger.Info().Msg("Reloaded external config file")
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn().Err(err).Msg("External config file watcher error")
		}
	}
}

func flatten(prefix string, in map[string]interface{}, out map[string]string) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch typed := v.(type) {
		case map[string]interface{}:
			flatten(key, typed, out)
		case nil:
			out[key] = ""
		default:
			out[key] = fmt.Sprint(typed)
		}
	}
}
