// Package config assembles the single janus configuration document from
// defaults, the user file, the workspace file, and environment variables
// (spec.md §6). Configuration is loaded once at startup and passed by value.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

type LLMConfig struct {
	Provider  string           `json:"provider"`
	APIKey    string           `json:"apiKey" env:"JANUS_LLM_API_KEY"`
	APIBase   string           `json:"apiBase,omitempty" env:"JANUS_LLM_API_BASE"`
	Model     string           `json:"model" env:"JANUS_LLM_MODEL"`
	MaxTokens int              `json:"maxTokens"`
	Temp      float64          `json:"temperature"`
	// UseOAuth routes the "claude" provider kind through a stored OAuth
	// credential (see internal/auth.CredentialStore) instead of APIKey, for
	// Claude Max/Pro subscriptions. Set by `janus setup --oauth`.
	UseOAuth  bool             `json:"useOAuth,omitempty" env:"JANUS_LLM_USE_OAUTH"`
	Providers []ProviderConfig `json:"providers,omitempty"`
}

// ProviderConfig describes one entry in the Provider Registry (spec.md §4.6).
type ProviderConfig struct {
	Name         string   `json:"name"`
	Kind         string   `json:"kind"` // "claude" or "openai-compat"
	APIKey       string   `json:"apiKey,omitempty"`
	APIBase      string   `json:"apiBase,omitempty"`
	DefaultModel string   `json:"defaultModel"`
	PurposeTags  []string `json:"purposeTags,omitempty"`
	Priority     int      `json:"priority"`
	UseOAuth     bool     `json:"useOAuth,omitempty"`
}

type AgentConfig struct {
	MaxIterations          int    `json:"maxIterations"`
	SummarizationThreshold int    `json:"summarizationThreshold"`
	TokenBudget            int    `json:"tokenBudget"`
	ContextWindow          int    `json:"contextWindow"`
	ToolRetries            int    `json:"toolRetries"`
	OnLLMError             string `json:"onLLMError"` // "stop" | "retry"
	MaxSubagentIterations  int    `json:"maxSubagentIterations"`
	MaxSkillsInPrompt      int    `json:"maxSkillsInPrompt"`
	MaxSkillsPromptChars   int    `json:"maxSkillsPromptChars"`
}

type WorkspaceConfig struct {
	Dir         string `json:"dir"`
	MemoryDir   string `json:"memoryDir"`
	SessionsDir string `json:"sessionsDir"`
	SkillsDir   string `json:"skillsDir"`
}

type ToolsConfig struct {
	ExecTimeoutMS     int      `json:"execTimeout"`
	ExecDenyPatterns  []string `json:"execDenyPatterns"`
	MaxFileSize       int64    `json:"maxFileSize"`
}

type DatabaseConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type HeartbeatConfig struct {
	Enabled         bool `json:"enabled"`
	CheckIntervalMS int  `json:"checkIntervalMs"`
}

type StreamingConfig struct {
	Enabled             bool `json:"enabled"`
	TelegramThrottleMS  int  `json:"telegramThrottleMs"`
}

type GatesConfig struct {
	Enabled      bool     `json:"enabled"`
	ExecPatterns []string `json:"execPatterns"`
}

type MemoryConfig struct {
	VectorSearch bool `json:"vectorSearch"`
}

type UserConfig struct {
	ID          string          `json:"id"`
	DisplayName string          `json:"displayName"`
	Identities  []UserIdentity  `json:"identities"`
	ProfileDoc  string          `json:"profileDoc,omitempty"`
	Tools       AllowDenyConfig `json:"tools"`
	Skills      AllowDenyConfig `json:"skills"`
	ContentPolicy string        `json:"contentPolicy,omitempty"`
}

type UserIdentity struct {
	Channel         string `json:"channel"`
	ChannelUserID   string `json:"channelUserId,omitempty"`
	ChannelUsername string `json:"channelUsername,omitempty"`
}

type AllowDenyConfig struct {
	Allow []string `json:"allow,omitempty"`
	Deny  []string `json:"deny,omitempty"`
}

type FamilyConfig struct {
	ID            string   `json:"id"`
	GroupChatIDs  []string `json:"groupChatIds,omitempty"`
}

// MCPServerConfig describes one externally hosted MCP tool server the
// agent bridges to over a websocket connection (spec.md §6 editor
// integration, expanded to network-hosted servers).
type MCPServerConfig struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Enabled bool   `json:"enabled"`
}

type Config struct {
	LLM       LLMConfig         `json:"llm"`
	Agent     AgentConfig       `json:"agent"`
	Workspace WorkspaceConfig   `json:"workspace"`
	Tools     ToolsConfig       `json:"tools"`
	Database  DatabaseConfig    `json:"database"`
	Heartbeat HeartbeatConfig   `json:"heartbeat"`
	Streaming StreamingConfig   `json:"streaming"`
	Gates     GatesConfig       `json:"gates"`
	Memory    MemoryConfig      `json:"memory"`
	Users     []UserConfig      `json:"users,omitempty"`
	Family    FamilyConfig      `json:"family,omitempty"`
	MCPServers []MCPServerConfig `json:"mcpServers,omitempty"`
}

// Defaults returns the configuration defaults named in spec.md §6.
func Defaults() Config {
	return Config{
		LLM: LLMConfig{
			Provider:  "anthropic",
			Model:     "claude-sonnet-4-5-20250929",
			MaxTokens: 4096,
			Temp:      0.7,
		},
		Agent: AgentConfig{
			MaxIterations:          20,
			SummarizationThreshold: 20,
			TokenBudget:            100000,
			ContextWindow:          128000,
			ToolRetries:            2,
			OnLLMError:             "retry",
			MaxSubagentIterations:  5,
			MaxSkillsInPrompt:      150,
			MaxSkillsPromptChars:   30000,
		},
		Workspace: WorkspaceConfig{
			Dir:         ".",
			MemoryDir:   "memory",
			SessionsDir: "sessions",
			SkillsDir:   "skills",
		},
		Tools: ToolsConfig{
			ExecTimeoutMS:    30000,
			ExecDenyPatterns: baselineDangerousPatterns,
			MaxFileSize:      1048576,
		},
		Database: DatabaseConfig{
			Enabled: true,
			Path:    ".janus/janus.db",
		},
		Heartbeat: HeartbeatConfig{
			Enabled:         false,
			CheckIntervalMS: 60000,
		},
		Streaming: StreamingConfig{
			Enabled:            true,
			TelegramThrottleMS: 500,
		},
		Gates: GatesConfig{
			Enabled:      true,
			ExecPatterns: baselineDestructivePatterns,
		},
		Memory: MemoryConfig{VectorSearch: false},
	}
}

var baselineDangerousPatterns = []string{
	`(?i)rm\s+-rf\s+/(\s|$)`,
	`(?i)mkfs\.`,
	`(?i):\(\)\{.*:\|:.*\};:`, // fork bomb
}

var baselineDestructivePatterns = []string{
	`(?i)\brm\s+-rf\b`,
	`(?i)\bdd\s+if=`,
	`(?i)\bshutdown\b`,
	`(?i)\breboot\b`,
	`(?i)\bmkfs\b`,
}

// providerEnvPrecedence is the order spec.md §6 names for resolving the
// active provider from environment variables when llm.apiKey is absent.
var providerEnvPrecedence = []struct {
	envVar   string
	provider string
}{
	{"OPENROUTER_API_KEY", "openrouter"},
	{"ANTHROPIC_API_KEY", "anthropic"},
	{"OPENAI_API_KEY", "openai"},
	{"DEEPSEEK_API_KEY", "deepseek"},
	{"GROQ_API_KEY", "groq"},
}

// Load assembles configuration from (defaults) <- (user file) <- (workspace
// file) <- (environment variables) <- (explicit overrides).
func Load(userFile, workspaceFile string, overrides func(*Config)) (Config, error) {
	cfg := Defaults()

	if err := mergeFile(&cfg, userFile); err != nil {
		return cfg, fmt.Errorf("load user config %s: %w", userFile, err)
	}
	if err := mergeFile(&cfg, workspaceFile); err != nil {
		return cfg, fmt.Errorf("load workspace config %s: %w", workspaceFile, err)
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env overrides: %w", err)
	}

	if cfg.LLM.APIKey == "" {
		for _, p := range providerEnvPrecedence {
			if v := os.Getenv(p.envVar); v != "" {
				cfg.LLM.APIKey = v
				cfg.LLM.Provider = p.provider
				break
			}
		}
	}

	if overrides != nil {
		overrides(&cfg)
	}

	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, cfg)
}

// WorkspacePath returns the absolute workspace directory.
func (c Config) WorkspacePath() string {
	abs, err := filepath.Abs(c.Workspace.Dir)
	if err != nil {
		return c.Workspace.Dir
	}
	return abs
}

// UserHomeConfigDir returns ~/.janus.
func UserHomeConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".janus")
}
