package internal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFile = "/etc/nslcd.yml"
	DefaultPidFile    = "/run/nslcd/nslcd.pid"
	DefaultSocket     = "/run/nslcd/socket"
)

// Config is the struct representation of the YAML configuration file.
//
// For each field's meaning, please consider the nslcd.yml file in this
// repository as it serves both as an example as well as documentation.
type Config struct {
	User  string `yaml:"uid"`
	Group string `yaml:"gid"`

	PidFile string `yaml:"pidfile"`
	Socket  string `yaml:"socket"`

	Capabilities []string `yaml:"capabilities"`

	Audit struct {
		Path      string   `yaml:"path"`
		Retention Duration `yaml:"retention"`
	} `yaml:"audit"`

	Hardening struct {
		Landlock bool     `yaml:"landlock"`
		Seccomp  bool     `yaml:"seccomp"`
		ReadOnly []string `yaml:"read_only"`
	} `yaml:"hardening"`
}

// DefaultConfig is used for missing configuration values.
func DefaultConfig() Config {
	conf := Config{
		PidFile: DefaultPidFile,
		Socket:  DefaultSocket,
	}
	conf.Audit.Retention = Duration(durationWeek)
	return conf
}

// LoadConfig from a YAML file at the path.
//
// A missing file is only an error if required is set. Otherwise, or for an
// empty file, the DefaultConfig is returned.
func LoadConfig(path string, required bool) (Config, error) {
	conf := DefaultConfig()

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) && !required {
		return conf, conf.normalizePaths()
	} else if err != nil {
		return conf, err
	}
	defer func() { _ = f.Close() }()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(&conf); err != nil && err != io.EOF {
		return conf, fmt.Errorf("cannot parse %s: %w", path, err)
	}

	if conf.PidFile == "" {
		return conf, errors.New("pidfile must not be empty")
	} else if conf.Socket == "" {
		return conf, errors.New("socket must not be empty")
	}

	return conf, conf.normalizePaths()
}

// normalizePaths to absolute ones.
func (conf *Config) normalizePaths() error {
	pathObjs := []*string{&conf.PidFile, &conf.Socket}
	if conf.Audit.Path != "" {
		pathObjs = append(pathObjs, &conf.Audit.Path)
	}
	for i := range conf.Hardening.ReadOnly {
		pathObjs = append(pathObjs, &conf.Hardening.ReadOnly[i])
	}

	for _, pathObj := range pathObjs {
		absPathObj, err := filepath.Abs(*pathObj)
		if err != nil {
			return fmt.Errorf("cannot create an absolute path for %s: %w", *pathObj, err)
		}
		*pathObj = absPathObj
	}
	return nil
}

// Identity resolves the configured user and group.
//
// Both might either be names or numeric IDs. Unset values become NoID.
func (conf Config) Identity() (ProcessIdentity, error) {
	identity := ProcessIdentity{UID: NoID, GID: NoID}

	if conf.User != "" {
		uid, err := resolveID(conf.User, func(name string) (string, error) {
			u, err := user.Lookup(name)
			if err != nil {
				return "", err
			}
			return u.Uid, nil
		})
		if err != nil {
			return identity, fmt.Errorf("cannot find user %s: %w", conf.User, err)
		}
		identity.UID = uid
	}

	if conf.Group != "" {
		gid, err := resolveID(conf.Group, func(name string) (string, error) {
			g, err := user.LookupGroup(name)
			if err != nil {
				return "", err
			}
			return g.Gid, nil
		})
		if err != nil {
			return identity, fmt.Errorf("cannot find group %s: %w", conf.Group, err)
		}
		identity.GID = gid
	}

	return identity, nil
}

// resolveID accepts a numeric ID or uses lookup for a name.
func resolveID(nameOrID string, lookup func(string) (string, error)) (int, error) {
	idStr := nameOrID
	if _, err := strconv.ParseUint(nameOrID, 10, 32); err != nil {
		if idStr, err = lookup(nameOrID); err != nil {
			return NoID, err
		}
	}

	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		return NoID, err
	}
	return int(id), nil
}
