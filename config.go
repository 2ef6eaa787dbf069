package autover

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFiles are read, when present, before flags and env vars apply
var DefaultConfigFiles = []string{".autover.yaml", ".autover.yml", "~/.config/autover/config.yaml"}

// YAMLConfig is a kong.ConfigurationLoader for YAML files. Keys are flag
// names; "patch-limit", "patch_limit" and "patchLimit" are all accepted.
func YAMLConfig(r io.Reader) (kong.Resolver, error) {
	values := map[string]any{}
	if err := yaml.NewDecoder(r).Decode(&values); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding yaml config: %w", err)
	}

	normalised := make(map[string]any, len(values))
	for k, v := range values {
		normalised[strings.ReplaceAll(k, "-", "_")] = v
	}

	raw, err := json.Marshal(normalised)
	if err != nil {
		return nil, fmt.Errorf("transcoding yaml config: %w", err)
	}
	return kong.JSON(bytes.NewReader(raw))
}

// LoadEnvFile loads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}
