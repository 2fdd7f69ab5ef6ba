package models

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/shibukawa/configdir"
	"gopkg.in/yaml.v3"
)

const ConfigFile = "exeload.yaml"

type Config struct {
	Color      bool   `yaml:"color"`
	Verbose    bool   `yaml:"verbose"`
	Psx        bool   `yaml:"psx"`
	Container  string `yaml:"container"`
	LoadPrefix string `yaml:"prefix"`

	Output io.Writer `yaml:"-"`
}

// LoadConfig merges the first exeload.yaml found in the user/system config
// folders into a copy of base. A missing file is not an error.
func LoadConfig(base Config) (*Config, error) {
	dirs := configdir.New("psxcorn", "exeload")
	folder := dirs.QueryFolderContainsFile(ConfigFile)
	if folder == nil {
		return &base, nil
	}
	data, err := folder.ReadFile(ConfigFile)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", filepath.Join(folder.Path, ConfigFile))
	}
	return ParseConfig(base, data)
}

func ParseConfig(base Config, data []byte) (*Config, error) {
	c := base
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return &c, nil
}

func (c *Config) Out() io.Writer {
	if c.Output == nil {
		return os.Stderr
	}
	return c.Output
}

// PrefixPath roots absolute image paths under LoadPrefix.
func (c *Config) PrefixPath(path string) string {
	if c.LoadPrefix == "" || !filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.LoadPrefix, path)
}
