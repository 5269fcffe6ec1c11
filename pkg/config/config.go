// Package config holds the build settings shared by the stackc command:
// which assembler and linker to run, where to put the executable and how
// big each INPUT buffer is.
package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up next to a source file.
const FileName = "stackc.yaml"

// DefaultInputBufferSize matches the code generator's default.
const DefaultInputBufferSize = 256

// Tool is an external program and the arguments placed before the
// file operands.
type Tool struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
}

// Config is the full set of build settings.
type Config struct {
	Assembler       Tool   `yaml:"assembler"`
	Linker          Tool   `yaml:"linker"`
	InputBufferSize int    `yaml:"input_buffer_size"`
	KeepAsm         bool   `yaml:"keep_asm"`
	Output          string `yaml:"output,omitempty"`
}

// Default returns the built-in settings: nasm -felf64, ld, 256-byte INPUT
// buffers.
func Default() *Config {
	return &Config{
		Assembler:       Tool{Command: "nasm", Args: []string{"-felf64"}},
		Linker:          Tool{Command: "ld"},
		InputBufferSize: DefaultInputBufferSize,
	}
}

// Decode overlays the YAML document in r onto c. Keys c does not know
// about are an error.
func (c *Config) Decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return nil
}

// Validate reports settings no build can run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Assembler.Command) == "" {
		return errors.New("assembler command is empty")
	}
	if strings.TrimSpace(c.Linker.Command) == "" {
		return errors.New("linker command is empty")
	}
	if c.InputBufferSize <= 0 {
		return errors.Errorf("input_buffer_size must be positive, got %d", c.InputBufferSize)
	}
	return nil
}

// OutputFor returns the executable path for source: the configured output,
// or the source path without its extension.
func (c *Config) OutputFor(source string) string {
	if c.Output != "" {
		return c.Output
	}
	ext := filepath.Ext(source)
	if ext == "" {
		return source + ".out"
	}
	return strings.TrimSuffix(source, ext)
}

// Load builds the configuration for a source living in dir. An explicit
// path must exist; otherwise stackc.yaml in dir is read when present.
func Load(explicit, dir string) (*Config, error) {
	cfg := Default()

	path := explicit
	if path == "" {
		path = filepath.Join(dir, FileName)
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.Decode(bytes.NewReader(data)); err != nil {
			return nil, errors.Wrapf(err, "could not parse %s", path)
		}
		glog.V(3).Infof("loaded configuration from %s", path)
	case explicit == "" && os.IsNotExist(err):
		glog.V(5).Infof("no %s in %s, using defaults", FileName, dir)
	default:
		return nil, errors.Wrapf(err, "could not read configuration %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid configuration %s", path)
	}
	return cfg, nil
}
