package identity

import (
	"bytes"
	"errors"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"devflow/internal/platform/config"
	perr "devflow/internal/platform/errors"
)

// Config is the on-disk identity registry
type Config struct {
	BotPatterns []string          `yaml:"bot_patterns"`
	Developers  []Developer       `yaml:"developers"`
	Overrides   map[string]string `yaml:"overrides"`
}

// Parse decodes an identity document, rejecting unknown keys
func Parse(b []byte) (Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return Config{}, nil
		}
		return Config{}, perr.Wrapf(err, perr.ErrorCodeValidation, "identity: decode")
	}
	return c, nil
}

// Load reads and parses the identity file at path
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "identity: read %s", path)
	}
	return Parse(b)
}

// FromConfig reads CORE_IDENTITY_FILE and CORE_IDENTITY_BOT_PATTERNS.
// Env bot patterns are appended to the file's, and the built-in defaults apply
// only when neither source names any
func FromConfig(cfg config.Conf) (Config, error) {
	c := cfg.Prefix("CORE_IDENTITY_")
	var out Config
	if path := c.MayString("FILE", ""); path != "" {
		loaded, err := Load(path)
		if err != nil {
			return Config{}, err
		}
		out = loaded
	}
	out.BotPatterns = append(out.BotPatterns, c.MayList("BOT_PATTERNS", ";;", nil)...)
	return out, nil
}

// Open builds a Resolver from configuration
func Open(cfg config.Conf) (*Resolver, error) {
	c, err := FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return New(c), nil
}
