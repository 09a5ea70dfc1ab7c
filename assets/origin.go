package assets

import (
	"context"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Asset is one cached or fetched file of the client shell.
type Asset struct {
	Path        string
	ContentType string
	Body        []byte
	FetchedAt   time.Time
}

// Origin is the live source of assets, the "network" of the worker.
type Origin interface {
	Fetch(ctx context.Context, name string) (*Asset, error)
}

// FSOrigin reads assets from a file system, normally the build output dir.
type FSOrigin struct {
	fsys fs.FS
}

func NewDirOrigin(dir string) *FSOrigin {
	return &FSOrigin{fsys: os.DirFS(dir)}
}

func NewFSOrigin(fsys fs.FS) *FSOrigin {
	return &FSOrigin{fsys: fsys}
}

func (o *FSOrigin) Fetch(_ context.Context, name string) (*Asset, error) {
	body, err := fs.ReadFile(o.fsys, name)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", name)
	}
	return newAsset(name, body, ""), nil
}

// HTTPOrigin fetches assets from an upstream such as a CDN.
type HTTPOrigin struct {
	base   *url.URL
	client *http.Client
}

func NewHTTPOrigin(baseURL string, client *http.Client) (*HTTPOrigin, error) {
	base, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
	if err != nil {
		return nil, errors.Wrap(err, "invalid upstream url")
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPOrigin{base: base, client: client}, nil
}

func (o *HTTPOrigin) Fetch(ctx context.Context, name string) (*Asset, error) {
	target := o.base.ResolveReference(&url.URL{Path: name})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s", name)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("fetch %s: upstream returned %s", name, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", name)
	}
	return newAsset(name, body, resp.Header.Get("Content-Type")), nil
}

func newAsset(name string, body []byte, contentType string) *Asset {
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(name))
	}
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	return &Asset{
		Path:        name,
		ContentType: contentType,
		Body:        body,
		FetchedAt:   time.Now(),
	}
}

// BuildManifest lists every regular file in fsys, sorted.
func BuildManifest(fsys fs.FS) ([]string, error) {
	var manifest []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			manifest = append(manifest, p)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to build asset manifest")
	}
	sort.Strings(manifest)
	return manifest, nil
}

// cleanName turns a request path into a manifest name, or "" if it escapes
// the asset root.
func cleanName(p string) string {
	name := strings.TrimPrefix(path.Clean("/"+p), "/")
	if name == "" || !fs.ValidPath(name) {
		return ""
	}
	return name
}
