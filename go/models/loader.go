package models

// Section is a loadable piece of an executable image, placed at FirstVPN and
// spanning Pages pages. Data shorter than the section is zero-filled.
type Section struct {
	Name     string
	FirstVPN int
	Pages    int
	ReadOnly bool
	Data     []byte
}

// ImageKind says how an image's entry point is resolved.
type ImageKind uint8

const (
	// KindNative names a Go program registered with the loader.
	KindNative ImageKind = 1
	// KindLua runs the script held in the image's .lua section.
	KindLua ImageKind = 2
)

// Image is a decoded executable, ready to be mapped into a new address space.
type Image struct {
	Path     string
	Kind     ImageKind
	Entry    string
	Sections []Section
	// Main runs the program once its address space is set up.
	Main Program
}

// Pages returns the number of pages covered by the image sections.
func (i *Image) Pages() int {
	n := 0
	for _, s := range i.Sections {
		n += s.Pages
	}
	return n
}

// Section returns the named section, or nil.
func (i *Image) Section(name string) *Section {
	for k := range i.Sections {
		if i.Sections[k].Name == name {
			return &i.Sections[k]
		}
	}
	return nil
}

type Loader interface {
	Load(path string) (*Image, error)
}
