package config

import (
	"fmt"
	"path/filepath"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/sgtv/livestatus/internal/classify"
)

// LoadSignals reads a detection-signals document. The format follows the
// file extension; lists omitted from the document keep their built-in
// defaults when the detector merges them.
func LoadSignals(path string) (classify.Signals, error) {
	parser, err := signalsParser(path)
	if err != nil {
		return classify.Signals{}, err
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return classify.Signals{}, fmt.Errorf("config: load signals %s: %w", path, err)
	}

	var signals classify.Signals
	if err := k.Unmarshal("", &signals); err != nil {
		return classify.Signals{}, fmt.Errorf("config: unmarshal signals %s: %w", path, err)
	}
	return signals, nil
}

func signalsParser(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return kjson.Parser(), nil
	case ".toml", ".tml":
		return toml.Parser(), nil
	default:
		return nil, fmt.Errorf("config: unsupported signals file extension: %s", path)
	}
}
