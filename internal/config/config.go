package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/proapi/proapi/pkg/api"
)

// ProviderEntry is one (provider account, model alias) pairing produced by
// expanding a provider block's model list. Entries are immutable once built;
// a reload replaces the whole table.
type ProviderEntry struct {
	Name          string
	Type          string // openai, gemini, vertexai-gemini, vertexai-claude, cohere, cloudflare, merlin
	MappedModel   string // model identifier sent upstream
	OriginalModel string // model alias clients request
	BaseURL       string
	APIKey        string
	Weight        int // 0 means never selected

	// Extra carries every non-reserved provider field, keyed lowercase
	// (account_id, project_id, client_id, ...).
	Extra map[string]string
}

// Key returns the provider instance identity: one instance per account,
// shared by all of its model aliases.
func (e ProviderEntry) Key() string {
	return e.Type + "_" + e.Name
}

type TokenConfig struct {
	APIKey string   `mapstructure:"api_key"`
	Models []string `mapstructure:"model"`
}

type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	Env          string `mapstructure:"env"`
	DefaultModel string `mapstructure:"default_model"`
	Debug        bool   `mapstructure:"debug"`
	DBCache      bool   `mapstructure:"db_cache"`
	AdminServer  bool   `mapstructure:"admin_server"`
	DBPath       string `mapstructure:"db_path"`
	RedisAddr    string `mapstructure:"redis_addr"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type Config struct {
	Providers []ProviderEntry
	Tokens    []TokenConfig
	Server    ServerConfig
	RateLimit RateLimitConfig
}

// rawFile mirrors the YAML manifest shape before expansion. Provider blocks
// keep their loose typing so unknown fields survive into Extra.
type rawFile struct {
	Providers []map[string]interface{} `mapstructure:"providers"`
	Tokens    []TokenConfig            `mapstructure:"tokens"`
	Server    ServerConfig             `mapstructure:"server"`
	RateLimit RateLimitConfig          `mapstructure:"rate_limit"`
}

// reserved provider fields that do not pass through into Extra.
var reservedFields = map[string]bool{
	"name":     true,
	"provider": true,
	"model":    true,
	"base_url": true,
	"api_key":  true,
	"balance":  true,
}

// Parse decodes a raw YAML manifest into a normalized Config.
func Parse(raw []byte) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(raw)); err != nil {
		return nil, api.ConfigError("manifest is not valid YAML", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var file rawFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, api.ConfigError("unable to decode manifest", err)
	}

	if len(file.Providers) == 0 {
		return nil, api.ConfigError("manifest section `providers` is missing or empty", nil)
	}
	if len(file.Tokens) == 0 {
		return nil, api.ConfigError("manifest section `tokens` is missing or empty", nil)
	}
	if !v.IsSet("server") {
		return nil, api.ConfigError("manifest section `server` is missing", nil)
	}

	entries, err := expandProviders(file.Providers)
	if err != nil {
		return nil, err
	}

	if file.Server.Port == "" {
		file.Server.Port = "8000"
	}
	if file.RateLimit.RequestsPerSecond == 0 {
		file.RateLimit.RequestsPerSecond = 50
	}
	if file.RateLimit.Burst == 0 {
		file.RateLimit.Burst = 100
	}

	return &Config{
		Providers: entries,
		Tokens:    file.Tokens,
		Server:    file.Server,
		RateLimit: file.RateLimit,
	}, nil
}

// expandProviders flattens every provider block's model list into individual
// ProviderEntry rows. Model entries are either a bare string (original ==
// mapped) or a single-key mapping {mappedModel: originalModel}. An optional
// `balance` list of {originalModel: weight} overrides the default weight 1.
func expandProviders(blocks []map[string]interface{}) ([]ProviderEntry, error) {
	var entries []ProviderEntry

	for i, block := range blocks {
		name := stringField(block, "name")
		ptype := stringField(block, "provider")
		if ptype == "" {
			return nil, api.ConfigError(fmt.Sprintf("provider block %d has no `provider` type", i), nil)
		}

		models, ok := block["model"].([]interface{})
		if !ok || len(models) == 0 {
			return nil, api.ConfigError(fmt.Sprintf("provider %q has no `model` list", name), nil)
		}

		weights := balanceWeights(block["balance"])

		// viper lowercases keys, so Extra is keyed lowercase throughout.
		extra := map[string]string{}
		for k, val := range block {
			k = strings.ToLower(k)
			if !reservedFields[k] {
				extra[k] = fmt.Sprint(val)
			}
		}

		for _, m := range models {
			mapped, original, err := modelPair(m)
			if err != nil {
				return nil, api.ConfigError(fmt.Sprintf("provider %q: %v", name, err), nil)
			}

			weight := 1
			if w, ok := weights[original]; ok {
				weight = w
			}

			entries = append(entries, ProviderEntry{
				Name:          name,
				Type:          ptype,
				MappedModel:   mapped,
				OriginalModel: original,
				BaseURL:       strings.TrimRight(stringField(block, "base_url"), "/"),
				APIKey:        resolveEnvRef(stringField(block, "api_key")),
				Weight:        weight,
				Extra:         extra,
			})
		}
	}

	return entries, nil
}

func modelPair(m interface{}) (mapped, original string, err error) {
	switch val := m.(type) {
	case string:
		return val, val, nil
	case map[string]interface{}:
		for k, v := range val {
			return k, fmt.Sprint(v), nil
		}
		return "", "", fmt.Errorf("empty model mapping")
	default:
		return "", "", fmt.Errorf("model entry must be a string or a single-key mapping, got %T", m)
	}
}

func balanceWeights(raw interface{}) map[string]int {
	weights := map[string]int{}
	list, ok := raw.([]interface{})
	if !ok {
		return weights
	}
	for _, item := range list {
		pair, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		for model, w := range pair {
			switch n := w.(type) {
			case int:
				weights[model] = n
			case float64:
				weights[model] = int(n)
			}
		}
	}
	return weights
}

// resolveEnvRef expands `ENV:NAME` api key values from the environment.
func resolveEnvRef(key string) string {
	if strings.HasPrefix(key, "ENV:") {
		return os.Getenv(strings.TrimPrefix(key, "ENV:"))
	}
	return key
}

func stringField(block map[string]interface{}, key string) string {
	if v, ok := block[key]; ok {
		return fmt.Sprint(v)
	}
	return ""
}

// Loader reads the manifest from disk (or a remote URL, see remote.go) and
// can watch the on-disk file for changes.
type Loader struct {
	path string
	v    *viper.Viper
}

func NewLoader(path string) *Loader {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	return &Loader{path: path, v: v}
}

// Load reads and normalizes the manifest. When CONFIG_URL is set the
// manifest is fetched remotely instead of from disk.
func (l *Loader) Load() (*Config, error) {
	if url := os.Getenv("CONFIG_URL"); url != "" {
		raw, err := FetchRemote(url, os.Getenv("CONFIG_SECRET"))
		if err != nil {
			return nil, err
		}
		return Parse(raw)
	}

	if err := l.v.ReadInConfig(); err != nil {
		return nil, api.ConfigError(fmt.Sprintf("unable to read manifest %s", l.path), err)
	}
	return decode(l.v)
}

// Watch invokes onChange with the freshly parsed config every time the
// manifest file changes. Parse failures keep the previous table in place;
// the callback is only invoked on success.
func (l *Loader) Watch(onChange func(*Config)) {
	l.v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := decode(l.v)
		if err != nil {
			return
		}
		onChange(cfg)
	})
	l.v.WatchConfig()
}
