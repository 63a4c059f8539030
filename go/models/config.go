package models

import (
	"io"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/shibukawa/configdir"
)

// ConfigName is the file searched for in the user and system config folders.
const ConfigName = "lucos.toml"

type Config struct {
	PageSize     int `toml:"page_size"`
	PhysPages    int `toml:"phys_pages"`
	StackPages   int `toml:"stack_pages"`
	HeapPages    int `toml:"heap_pages"`
	MaxOpenFiles int `toml:"max_open_files"`
	MaxNameLen   int `toml:"max_name_len"`
	MaxProcesses int `toml:"max_processes"`
	MaxFileSize  int `toml:"max_file_size"`

	// StoreDir backs the named-file store with a host directory. Empty
	// means an in-memory store.
	StoreDir string `toml:"store_dir"`
	Shell    string `toml:"shell"`

	LogLevel  string `toml:"log_level"`
	Color     bool   `toml:"color"`
	TraceSys  bool   `toml:"trace_sys"`
	TraceFile string `toml:"trace_file"`

	Output io.Writer `toml:"-"`
	Input  io.Reader `toml:"-"`
}

func DefaultConfig() *Config {
	return &Config{
		PageSize:     0x400,
		PhysPages:    512,
		StackPages:   8,
		HeapPages:    16,
		MaxOpenFiles: 16,
		MaxNameLen:   256,
		MaxProcesses: 64,
		MaxFileSize:  1 << 20,
		Shell:        "execTest.coff",
		LogLevel:     "info",
		Output:       os.Stdout,
		Input:        os.Stdin,
	}
}

// LoadConfig reads a TOML config over the defaults. An empty path searches
// the config folders for ConfigName and falls back to the defaults.
func LoadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	var data []byte
	var err error
	if path == "" {
		folder := configdir.New("lucos", "lucos").QueryFolderContainsFile(ConfigName)
		if folder == nil {
			return c, nil
		}
		data, err = folder.ReadFile(ConfigName)
		path = ConfigName
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}
	return c, c.Validate()
}

func (c *Config) Validate() error {
	switch {
	case c.PageSize <= 0 || c.PageSize&(c.PageSize-1) != 0:
		return errors.Errorf("page_size must be a power of two, got %d", c.PageSize)
	case c.PhysPages <= 0:
		return errors.Errorf("phys_pages must be positive, got %d", c.PhysPages)
	case c.StackPages < 0 || c.HeapPages < 0:
		return errors.New("stack_pages and heap_pages must not be negative")
	case c.MaxOpenFiles < 2:
		return errors.Errorf("max_open_files must leave room for the console, got %d", c.MaxOpenFiles)
	case c.MaxNameLen <= 0:
		return errors.Errorf("max_name_len must be positive, got %d", c.MaxNameLen)
	case c.MaxProcesses <= 0:
		return errors.Errorf("max_processes must be positive, got %d", c.MaxProcesses)
	}
	return nil
}
