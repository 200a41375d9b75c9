// Package secrets loads the credentials glance needs at process start.
//
// Values are looked up in order from a TOML secrets file (the same layout as
// a Streamlit .streamlit/secrets.toml), a dotenv file and finally the process
// environment. The first non-empty value wins.
package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const KeyOpenRouter = "OPENROUTER_API_KEY"

var ErrMissingCredential = errors.New("missing credential")

// Sources names the files consulted by Load. Empty paths and missing files
// are skipped.
type Sources struct {
	TOMLFile string
	EnvFile  string

	// Lookup defaults to os.LookupEnv.
	Lookup func(string) (string, bool)
}

// Secrets is immutable once loaded. Its formatting methods never reveal the
// key.
type Secrets struct {
	apiKey string
	source string
}

func (s Secrets) APIKey() string { return s.apiKey }

// Source reports where the key was found, e.g. "secrets.toml".
func (s Secrets) Source() string { return s.source }

func (s Secrets) String() string {
	return fmt.Sprintf("%s=<redacted> (from %s)", KeyOpenRouter, s.source)
}

func (s Secrets) GoString() string { return s.String() }

// Load resolves the OpenRouter API key. An absent key is reported as
// ErrMissingCredential.
func Load(src Sources) (Secrets, error) {
	if src.TOMLFile != "" {
		v, err := fromTOML(src.TOMLFile)
		if err != nil {
			return Secrets{}, err
		}
		if v != "" {
			return Secrets{apiKey: v, source: src.TOMLFile}, nil
		}
	}

	if src.EnvFile != "" {
		env, err := godotenv.Read(src.EnvFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Secrets{}, fmt.Errorf("reading %s: %w", src.EnvFile, err)
		}
		if v := env[KeyOpenRouter]; v != "" {
			return Secrets{apiKey: v, source: src.EnvFile}, nil
		}
	}

	lookup := src.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(KeyOpenRouter); ok && v != "" {
		return Secrets{apiKey: v, source: "environment"}, nil
	}

	return Secrets{}, fmt.Errorf("%w: %s not found in secrets file, env file or environment", ErrMissingCredential, KeyOpenRouter)
}

func fromTOML(path string) (string, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return v.GetString(KeyOpenRouter), nil
}
