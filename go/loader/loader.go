// Package loader turns image files in the store into runnable programs.
package loader

import (
	"sort"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/lucos-os/lucos/go/lua"
	"github.com/lucos-os/lucos/go/models"
	"github.com/lucos-os/lucos/go/store"
)

// Registry maps the entry names of native images to Go programs.
type Registry struct {
	mu    sync.RWMutex
	progs map[string]models.Program
}

func NewRegistry() *Registry {
	return &Registry{progs: make(map[string]models.Program)}
}

func (r *Registry) Register(name string, prog models.Program) {
	r.mu.Lock()
	r.progs[name] = prog
	r.mu.Unlock()
}

func (r *Registry) Lookup(name string) (models.Program, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	prog, ok := r.progs[name]
	return prog, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.progs))
	for name := range r.progs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type Loader struct {
	Store    store.Store
	Registry *Registry
	Log      hclog.Logger
}

func New(s store.Store, r *Registry, log hclog.Logger) *Loader {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Loader{Store: s, Registry: r, Log: log}
}

func (l *Loader) Load(path string) (*models.Image, error) {
	data, err := store.ReadFile(l.Store, path)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}
	img, err := Decode(data)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	img.Path = path
	switch img.Kind {
	case models.KindNative:
		prog, ok := l.Registry.Lookup(img.Entry)
		if !ok {
			return nil, errors.Wrapf(models.ErrBadImage, "%s: no program %q", path, img.Entry)
		}
		img.Main = prog
	case models.KindLua:
		sec := img.Section(lua.SectionName)
		if sec == nil {
			return nil, errors.Wrapf(models.ErrBadImage, "%s: missing %s section", path, lua.SectionName)
		}
		img.Main = lua.Program(string(sec.Data), path)
	default:
		return nil, errors.Wrapf(models.ErrBadImage, "%s: unknown image kind %d", path, img.Kind)
	}
	l.Log.Debug("loaded", "path", path, "entry", img.Entry, "pages", img.Pages())
	return img, nil
}

// NativeImage builds a one-page image that runs a registered program.
func NativeImage(entry string) *models.Image {
	return &models.Image{
		Kind:  models.KindNative,
		Entry: entry,
		Sections: []models.Section{
			{Name: ".text", FirstVPN: 0, Pages: 1, ReadOnly: true, Data: []byte(entry)},
		},
	}
}

// LuaImage builds an image carrying script, sized to the page size.
func LuaImage(script string, pageSize int) *models.Image {
	pages := (len(script) + pageSize - 1) / pageSize
	if pages == 0 {
		pages = 1
	}
	return &models.Image{
		Kind:  models.KindLua,
		Entry: "main",
		Sections: []models.Section{
			{Name: lua.SectionName, FirstVPN: 0, Pages: pages, ReadOnly: true, Data: []byte(script)},
		},
	}
}

// Install encodes img and writes it to the store under name.
func Install(s store.Store, name string, img *models.Image) error {
	data, err := Encode(img)
	if err != nil {
		return err
	}
	return store.WriteFile(s, name, data)
}
