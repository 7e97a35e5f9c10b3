package molviz

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/singleflight"
)

// PresetLibrary owns the preset filesystem and catalogue and implements
// Decoder for both preset paths and inline uploads. Concurrent decodes of the
// same preset share one parse.
type PresetLibrary struct {
	mu      sync.RWMutex
	fsys    fs.FS
	dir     string
	catFile string
	cat     *Catalogue
	decoder *PDBDecoder
	group   singleflight.Group
	logger  Logger
}

// NewPresetLibrary loads the catalogue catFile (CatalogueFile when empty)
// from fsys.
func NewPresetLibrary(fsys fs.FS, catFile string, logger Logger) (*PresetLibrary, error) {
	if logger == nil {
		logger = NewNoOpLogger()
	}
	cat, err := LoadCatalogue(fsys, catFile)
	if err != nil {
		return nil, err
	}
	return &PresetLibrary{
		fsys:    fsys,
		catFile: catFile,
		cat:     cat,
		decoder: NewPDBDecoder(fsys),
		logger:  logger,
	}, nil
}

// OpenPresetLibrary uses dir on disk, or the embedded presets when dir is empty.
func OpenPresetLibrary(dir, catFile string, logger Logger) (*PresetLibrary, error) {
	if dir == "" {
		return NewPresetLibrary(EmbeddedPresets(), catFile, logger)
	}
	lib, err := NewPresetLibrary(os.DirFS(dir), catFile, logger)
	if err != nil {
		return nil, err
	}
	lib.dir = dir
	return lib, nil
}

// Catalogue returns the current catalogue.
func (l *PresetLibrary) Catalogue() *Catalogue {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cat
}

// Reload re-reads the catalogue. On error the previous catalogue stays.
func (l *PresetLibrary) Reload() error {
	cat, err := LoadCatalogue(l.fsys, l.catFile)
	if err != nil {
		l.logger.Warnf("Preset catalogue reload failed, keeping previous: error=%v", err)
		return err
	}
	l.mu.Lock()
	l.cat = cat
	l.mu.Unlock()
	l.logger.Infof("Preset catalogue reloaded: presets=%d", len(cat.Entries()))
	return nil
}

// Decode implements Decoder.
func (l *PresetLibrary) Decode(ctx context.Context, ref Reference) (*Molecule, error) {
	if ref.Kind != RefPath {
		return l.decoder.Decode(ctx, ref)
	}

	ch := l.group.DoChan(ref.Path, func() (any, error) {
		return l.decoder.Decode(context.WithoutCancel(ctx), ref)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			l.logger.Debugf("Preset decode shared: path=%s", ref.Path)
		}
		return res.Val.(*Molecule), nil
	}
}

// Watch reloads the catalogue whenever something in the preset directory
// changes. It blocks until ctx is done and is a no-op for embedded presets.
func (l *PresetLibrary) Watch(ctx context.Context, debounce time.Duration) error {
	if l.dir == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(l.dir); err != nil {
		return err
	}
	l.logger.Infof("Watching preset directory: dir=%s", l.dir)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op.Has(fsnotify.Chmod) && !ev.Op.Has(fsnotify.Write) {
				continue
			}
			l.logger.Debugf("Preset directory event: file=%s op=%s", filepath.Base(ev.Name), ev.Op)
			pending = time.After(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Warnf("Preset watcher error: %v", err)
		case <-pending:
			pending = nil
			_ = l.Reload()
		}
	}
}
