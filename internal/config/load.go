package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are skipped and
// ./.env is tried when files is empty. It returns the files that were read.
func LoadDotEnv(log *slog.Logger, files ...string) ([]string, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var loaded []string
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return loaded, fmt.Errorf("config: failed to load %s: %w", f, err)
		}
		loaded = append(loaded, f)
		log.Debug("config: loaded env file", slog.String("path", f))
	}
	return loaded, nil
}

// Load parses the YAML file found for explicitPath and exports its non-zero
// values to unset env vars. It returns the path read, or "" when none exists.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := findConfig(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, kv := range envPairs(&cfg) {
		if os.Getenv(kv.key) != "" {
			continue
		}
		if err := os.Setenv(kv.key, kv.value); err != nil {
			return "", fmt.Errorf("config: set %s: %w", kv.key, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config", slog.String("path", path), slog.Int("keys_applied", applied))
	return path, nil
}

type envPair struct{ key, value string }

// envPairs flattens cfg into env assignments in field order, skipping zero
// values.
func envPairs(cfg *Config) []envPair {
	var out []envPair
	var walk func(v reflect.Value)
	walk = func(v reflect.Value) {
		t := v.Type()
		for i := range t.NumField() {
			f, fv := t.Field(i), v.Field(i)
			if fv.Kind() == reflect.Struct {
				walk(fv)
				continue
			}
			key := f.Tag.Get("env")
			if key == "" {
				continue
			}
			if s := envString(fv); s != "" {
				out = append(out, envPair{key, s})
			}
		}
	}
	walk(reflect.ValueOf(cfg).Elem())
	return out
}

// envString renders a leaf field as an env value; zero values render empty.
func envString(v reflect.Value) string {
	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Int:
		if v.Int() == 0 {
			return ""
		}
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Float32, reflect.Float64:
		return floatStr(v.Float())
	case reflect.Bool:
		if v.Bool() {
			return "true"
		}
	case reflect.Slice:
		if s, ok := v.Interface().([]string); ok {
			return strings.Join(s, ",")
		}
	}
	return ""
}

// floatStr keeps four decimals, enough for float32 YAML values like 0.3
// to round-trip.
func floatStr(v float64) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(strconv.FormatFloat(v, 'f', 4, 64), "0"), ".")
}

// findConfig returns the first candidate config path that exists. An
// explicit path that does not exist disables the search.
func findConfig(explicit string) string {
	if explicit != "" {
		if exists(explicit) {
			return explicit
		}
		return ""
	}

	candidates := []string{os.Getenv("PHARMABOT_CONFIG")}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".pharmabot", "config.yaml"))
	}
	candidates = append(candidates, "pharmabot.yaml")

	for _, p := range candidates {
		if p != "" && exists(p) {
			return p
		}
	}
	return ""
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
