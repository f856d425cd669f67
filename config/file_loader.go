// Package config reads client configuration files. The loader plugs into
// core.CfgxConfigProvider so file values layer over the defaults.
package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/goliatone/go-clientkit/core"
	goerrors "github.com/goliatone/go-errors"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FileLoader reads a YAML or JSON file. Only keys present in the file end
// up in the raw map.
type FileLoader struct {
	Path   string
	Format Format
}

func NewFileLoader(path string) *FileLoader {
	return &FileLoader{Path: strings.TrimSpace(path)}
}

// NewProvider returns a config provider backed by the file at path.
func NewProvider(path string) *core.CfgxConfigProvider {
	return core.NewCfgxConfigProvider(NewFileLoader(path))
}

func (l *FileLoader) LoadRaw(context.Context) (map[string]any, error) {
	if l == nil || l.Path == "" {
		return nil, loadError(nil, "config: file path is required", "")
	}
	format := l.Format
	if format == "" {
		detected, err := DetectFormat(l.Path)
		if err != nil {
			return nil, err
		}
		format = detected
	}
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, loadError(err, "config: read file", l.Path)
	}
	cfg, err := Parse(data, format)
	if err != nil {
		return nil, loadError(err, "config: parse file", l.Path)
	}
	return core.ConfigToMap(cfg, false), nil
}

// Parse decodes data into a Config. Durations accept Go duration strings
// such as "30s".
func Parse(data []byte, format Format) (core.Config, error) {
	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return core.Config{}, loadError(nil, "config: unsupported format "+string(format), "")
	}

	k := koanf.New(".")
	if len(data) > 0 {
		if err := k.Load(rawbytes.Provider(data), parser); err != nil {
			return core.Config{}, err
		}
	}
	var cfg core.Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return core.Config{}, err
	}
	return cfg, nil
}

func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", loadError(nil, "config: unknown file extension", path)
	}
}

func loadError(source error, message, path string) error {
	metadata := map[string]any{}
	if path != "" {
		metadata["path"] = path
	}
	if source == nil {
		return core.NewError(message, goerrors.CategoryBadInput, core.ErrorBadInput, metadata)
	}
	return core.WrapError(source, goerrors.CategoryBadInput, message, core.ErrorBadInput, metadata)
}

var _ core.RawConfigLoader = (*FileLoader)(nil)
