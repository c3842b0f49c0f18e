package thinking

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/elon-ai/dialogue-gateway/internal/config"
)

// Watcher reloads prompt overrides into a Composer when files in the
// override directory change. A reload that fails keeps the previous texts.
type Watcher struct {
	dir      string
	composer *Composer
	watcher  *fsnotify.Watcher
	debounce time.Duration
}

// NewWatcher creates a watcher for dir. Call Run to start it.
func NewWatcher(dir string, composer *Composer) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("prompt watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("prompt watcher: watch %s: %w", dir, err)
	}
	return &Watcher{
		dir:      dir,
		composer: composer,
		watcher:  fw,
		debounce: config.DefaultPromptWatchDebounce,
	}, nil
}

// SetDebounce changes how long rapid saves are coalesced. Call before Run.
func (w *Watcher) SetDebounce(d time.Duration) { w.debounce = d }

// Run processes events until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.watcher.Close() }()

	log.Info().Str("dir", w.dir).Msg("watching prompt overrides")

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			log.Debug().Str("file", filepath.Base(ev.Name)).Str("op", ev.Op.String()).Msg("prompt file changed")
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Str("dir", w.dir).Msg("prompt watcher error")
		}
	}
}

func (w *Watcher) reload() {
	set, err := LoadPrompts(w.dir)
	if err != nil {
		log.Warn().Err(err).Msg("prompt reload failed, keeping previous prompts")
		return
	}
	w.composer.SetPrompts(set)
	log.Info().Str("dir", w.dir).Msg("prompts reloaded")
}

func relevant(ev fsnotify.Event) bool {
	if !strings.HasSuffix(ev.Name, ".md") {
		return false
	}
	return ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}
