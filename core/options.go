package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

// StaticRawConfigLoader serves a fixed map, mostly for tests and embedding.
type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults.Clone()),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver merges defaults, loaded and runtime configs. Later layers
// win; zero values in the loaded and runtime layers are ignored.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			ConfigToMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			ConfigToMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			ConfigToMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults.Clone()),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// ConfigToMap renders cfg as a layer map keyed by the config tags. When
// includeZero is false only populated fields are emitted.
func ConfigToMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	putString(layer, "client_name", cfg.ClientName, includeZero)

	credentials := map[string]any{}
	putString(credentials, "client_id", cfg.Credentials.ClientID, includeZero)
	putString(credentials, "client_secret", cfg.Credentials.ClientSecret, includeZero)
	putString(credentials, "redirect_url", cfg.Credentials.RedirectURL, includeZero)
	putString(credentials, "user_agent", cfg.Credentials.UserAgent, includeZero)
	putString(credentials, "default_auth_token", cfg.Credentials.DefaultAuthToken, includeZero)
	putMap(layer, "credentials", credentials)

	if includeZero || len(cfg.EnabledModules) > 0 {
		layer["enabled_modules"] = append([]string{}, cfg.EnabledModules...)
	}
	putInt(layer, "request_queue_size", cfg.RequestQueueSize, includeZero)
	putDuration(layer, "timeout", cfg.Timeout, includeZero)
	putDuration(layer, "queue_drain_timeout", cfg.QueueDrainTimeout, includeZero)
	putMap(layer, "rate_limit", rateLimitToMap(cfg.RateLimit, includeZero))

	chat := map[string]any{}
	putInt(chat, "queue_size", cfg.Chat.QueueSize, includeZero)
	putDuration(chat, "queue_timeout", cfg.Chat.QueueTimeout, includeZero)
	putMap(chat, "rate_limit", rateLimitToMap(cfg.Chat.RateLimit, includeZero))
	putString(chat, "server", cfg.Chat.Server, includeZero)
	if includeZero || len(cfg.Chat.BotOwnerIDs) > 0 {
		chat["bot_owner_ids"] = append([]string{}, cfg.Chat.BotOwnerIDs...)
	}
	if includeZero || len(cfg.Chat.CommandPrefixes) > 0 {
		chat["command_prefixes"] = append([]string{}, cfg.Chat.CommandPrefixes...)
	}
	putMap(layer, "chat", chat)

	putDuration(layer, "helper_delay", cfg.HelperDelay, includeZero)
	if includeZero || len(cfg.Endpoints) > 0 {
		endpoints := make(map[string]any, len(cfg.Endpoints))
		for key, value := range cfg.Endpoints {
			endpoints[key] = value
		}
		layer["endpoints"] = endpoints
	}
	return layer
}

func rateLimitToMap(limit RateLimitConfig, includeZero bool) map[string]any {
	out := map[string]any{}
	putInt(out, "capacity", limit.Capacity, includeZero)
	putInt(out, "refill_quantity", limit.RefillQuantity, includeZero)
	putDuration(out, "refill_period", limit.RefillPeriod, includeZero)
	return out
}

func putString(layer map[string]any, key, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		layer[key] = value
	}
}

func putInt(layer map[string]any, key string, value int, includeZero bool) {
	if includeZero || value != 0 {
		layer[key] = value
	}
}

func putDuration(layer map[string]any, key string, value time.Duration, includeZero bool) {
	if includeZero || value != 0 {
		layer[key] = value
	}
}

func putMap(layer map[string]any, key string, value map[string]any) {
	if len(value) > 0 {
		layer[key] = value
	}
}
