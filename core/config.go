package core

import (
	"fmt"
	"strings"
	"time"
)

// UnboundedQueue disables the request queue capacity check.
const UnboundedQueue = -1

type RateLimitConfig struct {
	Capacity       int           `koanf:"capacity" mapstructure:"capacity"`
	RefillQuantity int           `koanf:"refill_quantity" mapstructure:"refill_quantity"`
	RefillPeriod   time.Duration `koanf:"refill_period" mapstructure:"refill_period"`
}

func (c RateLimitConfig) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("core: rate limit capacity must be positive")
	}
	if c.RefillQuantity <= 0 {
		return fmt.Errorf("core: rate limit refill_quantity must be positive")
	}
	if c.RefillPeriod <= 0 {
		return fmt.Errorf("core: rate limit refill_period must be positive")
	}
	return nil
}

func (c RateLimitConfig) IsZero() bool {
	return c.Capacity == 0 && c.RefillQuantity == 0 && c.RefillPeriod == 0
}

type ChatConfig struct {
	QueueSize       int             `koanf:"queue_size" mapstructure:"queue_size"`
	QueueTimeout    time.Duration   `koanf:"queue_timeout" mapstructure:"queue_timeout"`
	RateLimit       RateLimitConfig `koanf:"rate_limit" mapstructure:"rate_limit"`
	Server          string          `koanf:"server" mapstructure:"server"`
	BotOwnerIDs     []string        `koanf:"bot_owner_ids" mapstructure:"bot_owner_ids"`
	CommandPrefixes []string        `koanf:"command_prefixes" mapstructure:"command_prefixes"`
}

type Config struct {
	ClientName        string            `koanf:"client_name" mapstructure:"client_name"`
	Credentials       Credentials       `koanf:"credentials" mapstructure:"credentials"`
	EnabledModules    []string          `koanf:"enabled_modules" mapstructure:"enabled_modules"`
	RequestQueueSize  int               `koanf:"request_queue_size" mapstructure:"request_queue_size"`
	Timeout           time.Duration     `koanf:"timeout" mapstructure:"timeout"`
	QueueDrainTimeout time.Duration     `koanf:"queue_drain_timeout" mapstructure:"queue_drain_timeout"`
	RateLimit         RateLimitConfig   `koanf:"rate_limit" mapstructure:"rate_limit"`
	Chat              ChatConfig        `koanf:"chat" mapstructure:"chat"`
	HelperDelay       time.Duration     `koanf:"helper_delay" mapstructure:"helper_delay"`
	Endpoints         map[string]string `koanf:"endpoints" mapstructure:"endpoints"`
}

const (
	DefaultHelixEndpoint      = "https://api.twitch.tv/helix"
	DefaultKrakenEndpoint     = "https://api.twitch.tv/kraken"
	DefaultExtensionsEndpoint = "https://api.twitch.tv/extensions"
	DefaultTMIEndpoint        = "https://tmi.twitch.tv"
	DefaultGraphQLEndpoint    = "https://gql.twitch.tv/gql"
	DefaultChatServer         = "wss://irc-ws.chat.twitch.tv:443"
	DefaultPubSubEndpoint     = "wss://pubsub-edge.twitch.tv:443"
)

func DefaultConfig() Config {
	return Config{
		ClientName: "clientkit",
		Credentials: Credentials{
			RedirectURL: "http://localhost",
			UserAgent:   "go-clientkit",
		},
		EnabledModules:    []string{},
		RequestQueueSize:  UnboundedQueue,
		Timeout:           5 * time.Second,
		QueueDrainTimeout: time.Second,
		RateLimit: RateLimitConfig{
			Capacity:       800,
			RefillQuantity: 800,
			RefillPeriod:   time.Minute,
		},
		Chat: ChatConfig{
			QueueSize:    200,
			QueueTimeout: time.Second,
			RateLimit: RateLimitConfig{
				Capacity:       20,
				RefillQuantity: 20,
				RefillPeriod:   30 * time.Second,
			},
			Server:          DefaultChatServer,
			BotOwnerIDs:     []string{},
			CommandPrefixes: []string{},
		},
		HelperDelay: 10 * time.Second,
		Endpoints: map[string]string{
			string(ModuleHelix):      DefaultHelixEndpoint,
			string(ModuleKraken):     DefaultKrakenEndpoint,
			string(ModuleExtensions): DefaultExtensionsEndpoint,
			string(ModuleTMI):        DefaultTMIEndpoint,
			string(ModuleGraphQL):    DefaultGraphQLEndpoint,
			string(ModulePubSub):     DefaultPubSubEndpoint,
			string(ModuleChat):       DefaultChatServer,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ClientName) == "" {
		return fmt.Errorf("core: client_name is required")
	}
	if _, err := ParseModules(c.EnabledModules); err != nil {
		return err
	}
	if c.RequestQueueSize == 0 || c.RequestQueueSize < UnboundedQueue {
		return fmt.Errorf("core: request_queue_size must be positive or %d for unbounded", UnboundedQueue)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("core: timeout must be positive")
	}
	if c.QueueDrainTimeout <= 0 {
		return fmt.Errorf("core: queue_drain_timeout must be positive")
	}
	if c.HelperDelay <= 0 {
		return fmt.Errorf("core: helper_delay must be positive")
	}
	if err := c.RateLimit.Validate(); err != nil {
		return err
	}
	if c.Chat.QueueSize == 0 || c.Chat.QueueSize < UnboundedQueue {
		return fmt.Errorf("core: chat queue_size must be positive or %d for unbounded", UnboundedQueue)
	}
	if c.Chat.QueueTimeout <= 0 {
		return fmt.Errorf("core: chat queue_timeout must be positive")
	}
	if err := c.Chat.RateLimit.Validate(); err != nil {
		return fmt.Errorf("core: chat: %w", err)
	}
	return nil
}

// Modules returns the parsed enabled module set. Invalid names are dropped;
// Validate reports them.
func (c Config) Modules() []ModuleKind {
	modules, err := ParseModules(c.EnabledModules)
	if err != nil {
		return []ModuleKind{}
	}
	return modules
}

func (c Config) IsEnabled(kind ModuleKind) bool {
	for _, enabled := range c.Modules() {
		if enabled == NormalizeModuleKind(string(kind)) {
			return true
		}
	}
	return false
}

func (c Config) Endpoint(kind ModuleKind) string {
	if value := strings.TrimSpace(c.Endpoints[string(kind)]); value != "" {
		return value
	}
	return strings.TrimSpace(DefaultConfig().Endpoints[string(kind)])
}

// QueueSettings returns the queue capacity and drain timeout a module uses.
func (c Config) QueueSettings(kind ModuleKind) (capacity int, drainTimeout time.Duration) {
	if kind == ModuleChat {
		return c.Chat.QueueSize, c.Chat.QueueTimeout
	}
	return c.RequestQueueSize, c.QueueDrainTimeout
}

func (c Config) RateLimitFor(kind ModuleKind) RateLimitConfig {
	if kind == ModuleChat && !c.Chat.RateLimit.IsZero() {
		return c.Chat.RateLimit
	}
	return c.RateLimit
}

// Clone returns a deep copy so callers never share slices or maps.
func (c Config) Clone() Config {
	out := c
	out.EnabledModules = append([]string{}, c.EnabledModules...)
	out.Chat.BotOwnerIDs = append([]string{}, c.Chat.BotOwnerIDs...)
	out.Chat.CommandPrefixes = append([]string{}, c.Chat.CommandPrefixes...)
	out.Endpoints = make(map[string]string, len(c.Endpoints))
	for key, value := range c.Endpoints {
		out.Endpoints[key] = value
	}
	return out
}
