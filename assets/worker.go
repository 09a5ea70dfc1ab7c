// Package assets keeps the client shell available when its origin is not.
// A Worker holds versioned cache stores and moves through three idempotent
// transitions: Install fills the current store from the manifest, Activate
// drops every other store, and Fetch serves network first with the cache as
// fallback. The same behaviour is shipped to browsers as a service worker.
package assets

import (
	"context"
	"crypto/rand"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/oklog/ulid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ErrNoResponse means neither the origin nor any cache store had the asset.
var ErrNoResponse = errors.New("asset unavailable offline")

// CacheName is the store key for a build version.
func CacheName(version string) string {
	return "cache-" + version
}

// NewVersion returns a fresh build version for processes started without one.
func NewVersion() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

type Worker struct {
	origin Origin
	log    zerolog.Logger

	mu       sync.RWMutex
	version  string
	manifest []string
	stores   map[string]*lru.Cache
}

func NewWorker(version string, manifest []string, origin Origin, log zerolog.Logger) *Worker {
	if version == "" {
		version = NewVersion()
	}
	return &Worker{
		origin:   origin,
		log:      log,
		version:  version,
		manifest: append([]string(nil), manifest...),
		stores:   make(map[string]*lru.Cache),
	}
}

func (w *Worker) Version() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.version
}

func (w *Worker) Manifest() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]string(nil), w.manifest...)
}

// Keys lists the names of the existing cache stores.
func (w *Worker) Keys() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	keys := make([]string, 0, len(w.stores))
	for k := range w.stores {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Install fetches every manifest asset and adds them all to the current
// store. Nothing is added unless every fetch succeeds.
func (w *Worker) Install(ctx context.Context) error {
	w.mu.RLock()
	name, manifest := CacheName(w.version), w.manifest
	w.mu.RUnlock()

	fetched := make([]*Asset, 0, len(manifest))
	for _, p := range manifest {
		asset, err := w.origin.Fetch(ctx, p)
		if err != nil {
			return errors.Wrapf(err, "install %s", name)
		}
		fetched = append(fetched, asset)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	store, err := w.openLocked(name, len(manifest))
	if err != nil {
		return err
	}
	for _, asset := range fetched {
		store.Add(asset.Path, asset)
	}
	w.log.Info().Str("cache", name).Int("assets", len(fetched)).Msg("installed")
	return nil
}

func (w *Worker) openLocked(name string, size int) (*lru.Cache, error) {
	if size < 1 {
		size = 1
	}
	if store, ok := w.stores[name]; ok {
		store.Resize(size)
		return store, nil
	}
	store, err := lru.New(size)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", name)
	}
	w.stores[name] = store
	return store, nil
}

// Activate deletes every store except the current version's and returns the
// deleted names.
func (w *Worker) Activate() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	current := CacheName(w.version)
	var deleted []string
	for name := range w.stores {
		if name != current {
			delete(w.stores, name)
			deleted = append(deleted, name)
		}
	}
	sort.Strings(deleted)
	if len(deleted) > 0 {
		w.log.Info().Strs("deleted", deleted).Str("cache", current).Msg("activated")
	}
	return deleted
}

// Upgrade switches to a new version and manifest, installs it and activates
// it. The previous store keeps serving until the install has succeeded.
func (w *Worker) Upgrade(ctx context.Context, version string, manifest []string) error {
	w.mu.Lock()
	prevVersion, prevManifest := w.version, w.manifest
	w.version = version
	w.manifest = append([]string(nil), manifest...)
	w.mu.Unlock()

	if err := w.Install(ctx); err != nil {
		w.mu.Lock()
		w.version, w.manifest = prevVersion, prevManifest
		w.mu.Unlock()
		return err
	}
	w.Activate()
	return nil
}

// Fetch asks the origin first. When that fails the asset is served from the
// current store, then from any other store, and ErrNoResponse otherwise.
func (w *Worker) Fetch(ctx context.Context, p string) (asset *Asset, fromCache bool, err error) {
	name := cleanName(p)
	if name == "" {
		return nil, false, ErrNoResponse
	}

	asset, fetchErr := w.origin.Fetch(ctx, name)
	if fetchErr == nil {
		return asset, false, nil
	}
	if cached, ok := w.match(name); ok {
		w.log.Debug().Err(fetchErr).Str("asset", name).Msg("served from cache")
		return cached, true, nil
	}
	return nil, false, errors.Wrap(ErrNoResponse, fetchErr.Error())
}

func (w *Worker) match(name string) (*Asset, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	current := CacheName(w.version)
	if store, ok := w.stores[current]; ok {
		if v, ok := store.Get(name); ok {
			return v.(*Asset), true
		}
	}
	for key, store := range w.stores {
		if key == current {
			continue
		}
		if v, ok := store.Get(name); ok {
			return v.(*Asset), true
		}
	}
	return nil, false
}
