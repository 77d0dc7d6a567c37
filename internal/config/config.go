// Package config loads and validates the gateway's runtime configuration:
// API credentials, model identifiers, sandbox and rate-limit settings, and
// the feature flags spec.md §6/§9 name (AGENT_PROVIDER, TRACE_STORE,
// HISTORY_MODE). Values are read from the process environment with an
// optional .env file overlay, and API keys are masked whenever the config
// is logged.
//
// Grounded on original_source/config.py's Config/load_config/get_config/
// validate_config singleton pattern and its masked-secret string
// formatting, reimplemented as a constructor-validated struct rather than
// a package-level global, matching the teacher's preference for explicit
// dependency construction over package-level singletons.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// AgentProvider selects which internal/agentrt adapter backs the gateway.
type AgentProvider string

// Supported providers.
const (
	ProviderAnthropic AgentProvider = "anthropic"
	ProviderOpenAI    AgentProvider = "openai"
)

// HistoryMode selects how prior-turn context is presented to the runtime,
// per SPEC_FULL.md §9's "History flattening" decision.
type HistoryMode string

// Supported history modes.
const (
	HistoryReplay  HistoryMode = "replay"
	HistoryFlatten HistoryMode = "flatten"
)

// TraceStoreKind selects the internal/trace.Store backend.
type TraceStoreKind string

// Supported trace store backends.
const (
	TraceStoreFile  TraceStoreKind = "file"
	TraceStoreMongo TraceStoreKind = "mongo"
)

// Config is the gateway's complete runtime configuration, populated by
// Load and validated by Validate before the service starts handling
// requests.
type Config struct {
	// AnthropicAPIKey / AnthropicBaseURL / AnthropicModel configure the
	// primary agentrt adapter.
	AnthropicAPIKey   string
	AnthropicBaseURL  string
	AnthropicModel    string
	AnthropicThinking string

	// OpenAIAPIKey / OpenAIModel configure the secondary agentrt adapter.
	OpenAIAPIKey string
	OpenAIModel  string

	AgentProvider AgentProvider
	HistoryMode   HistoryMode
	TraceStore    TraceStoreKind
	MongoURI      string
	MongoDatabase string

	// TavilyAPIKey / SearchAPIURL configure the A3 search fallback proxy.
	TavilyAPIKey string
	SearchAPIURL string

	SandboxRoot string
	TraceDir    string
	ListenAddr  string
	CORSOrigin  string

	MaxTurns   int
	ContextMax int

	MaxOpsPerMin    int
	MaxWritesPerMin int
	MaxShellPerMin  int

	// BroadcastEnabled / RedisURL / RedisStreamMaxLen configure the
	// optional Pulse-backed hook-event fanout sink (internal/broadcast).
	// Disabled by default; the gateway serves turns over its per-turn SSE
	// stream regardless of this setting.
	BroadcastEnabled  bool
	RedisURL          string
	RedisStreamMaxLen int64
}

// Load reads configuration from the process environment, optionally
// overlaid with a .env file at envFile (if non-empty and present), and
// returns a populated Config. Environment variables already set take
// precedence over the .env file, matching original_source/config.py's
// override order.
func Load(envFile string) (*Config, error) {
	overlay := map[string]string{}
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			ov, err := parseDotenv(envFile)
			if err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", envFile, err)
			}
			overlay = ov
		}
	}
	get := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		if v, ok := overlay[key]; ok && v != "" {
			return v
		}
		return def
	}
	getInt := func(key string, def int) int {
		v := get(key, "")
		if v == "" {
			return def
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return def
		}
		return n
	}
	getInt64 := func(key string, def int64) int64 {
		v := get(key, "")
		if v == "" {
			return def
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return def
		}
		return n
	}
	getBool := func(key string, def bool) bool {
		v := get(key, "")
		if v == "" {
			return def
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return def
		}
		return b
	}

	cfg := &Config{
		AnthropicAPIKey:   get("ANTHROPIC_API_KEY", ""),
		AnthropicBaseURL:  get("ANTHROPIC_BASE_URL", ""),
		AnthropicModel:    get("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
		AnthropicThinking: get("ANTHROPIC_MODEL_THINKING", "claude-sonnet-4-5-20250929"),
		OpenAIAPIKey:      get("OPENAI_API_KEY", ""),
		OpenAIModel:       get("OPENAI_MODEL", "gpt-4o"),
		AgentProvider:     AgentProvider(get("AGENT_PROVIDER", string(ProviderAnthropic))),
		HistoryMode:       HistoryMode(get("HISTORY_MODE", string(HistoryReplay))),
		TraceStore:        TraceStoreKind(get("TRACE_STORE", string(TraceStoreFile))),
		MongoURI:          get("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:     get("MONGO_DATABASE", "agentgateway"),
		TavilyAPIKey:      get("TAVILY_API_KEY", ""),
		SearchAPIURL:      get("SEARCH_API_URL", "https://api.tavily.com/search"),
		SandboxRoot:       get("SANDBOX_ROOT", "./sandbox"),
		TraceDir:          get("TRACE_DIR", "./traces"),
		ListenAddr:        get("LISTEN_ADDR", ":8080"),
		CORSOrigin:        get("CORS_ORIGIN", "http://localhost:3000"),
		MaxTurns:          getInt("MAX_TURNS", 25),
		ContextMax:        getInt("CONTEXT_MAX", 200000),
		MaxOpsPerMin:      getInt("MAX_OPS_PER_MIN", 60),
		MaxWritesPerMin:   getInt("MAX_WRITES_PER_MIN", 20),
		MaxShellPerMin:    getInt("MAX_SHELL_PER_MIN", 10),
		BroadcastEnabled:  getBool("BROADCAST_ENABLED", false),
		RedisURL:          get("REDIS_URL", "redis://localhost:6379/0"),
		RedisStreamMaxLen: getInt64("REDIS_STREAM_MAX_LEN", 1000),
	}
	return cfg, nil
}

// Validate fails fast on missing required credentials for the selected
// provider, matching original_source/config.py's validate_config.
func (c *Config) Validate() error {
	switch c.AgentProvider {
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("config: ANTHROPIC_API_KEY is required when AGENT_PROVIDER=anthropic")
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("config: OPENAI_API_KEY is required when AGENT_PROVIDER=openai")
		}
	default:
		return fmt.Errorf("config: unknown AGENT_PROVIDER %q", c.AgentProvider)
	}
	if c.TraceStore != TraceStoreFile && c.TraceStore != TraceStoreMongo {
		return fmt.Errorf("config: unknown TRACE_STORE %q", c.TraceStore)
	}
	if c.HistoryMode != HistoryReplay && c.HistoryMode != HistoryFlatten {
		return fmt.Errorf("config: unknown HISTORY_MODE %q", c.HistoryMode)
	}
	if c.BroadcastEnabled && c.RedisURL == "" {
		return fmt.Errorf("config: REDIS_URL is required when BROADCAST_ENABLED=true")
	}
	return nil
}

// String renders the configuration with API keys masked, matching
// original_source/config.py's __repr__ masking (first 8 / last 4 chars
// visible, "***" for short keys, "not configured" for empty).
func (c *Config) String() string {
	return fmt.Sprintf(
		"Configuration:\n  Provider: %s\n  Anthropic Key: %s\n  Anthropic Model: %s\n  OpenAI Key: %s\n  OpenAI Model: %s\n  Trace Store: %s\n  History Mode: %s",
		c.AgentProvider, mask(c.AnthropicAPIKey), c.AnthropicModel, mask(c.OpenAIAPIKey), c.OpenAIModel, c.TraceStore, c.HistoryMode,
	)
}

func mask(key string) string {
	if key == "" {
		return "not configured"
	}
	if len(key) > 12 {
		return key[:8] + "..." + key[len(key)-4:]
	}
	return "***"
}

func parseDotenv(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		out[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
