package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DefaultAPIKeyPath = "/run/secrets/api_keys/openrouter"
	APIKeyPathEnvVar  = "OPENROUTER_API_KEY_FILE"
	APIKeyEnvVar      = "OPENROUTER_API_KEY"
	ConfigPathEnvVar  = "SCREEN_ASK_LLM"

	DefaultModel   = "google/gemini-2.0-flash-001"
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultHotkey  = "Ctrl+Alt+1"
	DefaultStopKey = "Esc"

	SurfaceConsole = "console"
	SurfaceGUI     = "gui"

	HotkeyPolicyDrop  = "drop"
	HotkeyPolicyQueue = "queue"

	ConversationContinue = "continue"
	ConversationFresh    = "fresh"

	MaxQueryAttempts = 5

	DefaultInstancePortStart = 49500
	DefaultInstancePortEnd   = 49550
)

type LoadOptions struct {
	APIKeyPathOverride string
	SurfaceOverride    string
	HotkeyOverride     string
}

type Config struct {
	APIKey     string
	APIKeyPath string
	Model      string
	BaseURL    string
	Providers  []string

	Temperature float64
	TopP        float64
	TopK        int
	MaxTokens   int

	Hotkey           string
	StopKey          string
	Surface          string
	HotkeyPolicy     string
	ConversationMode string

	QueryTimeoutSec  int
	QueryMaxAttempts int
	ArtifactDir      string

	EnableFileLogging bool
	LogDir            string
	EnableTelemetry   bool
	EnableTray        bool
	CopyAnswer        bool
	StartupCheck      bool

	InstancePortStart int
	InstancePortEnd   int
}

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	// Sources in priority order:
	// 1) .env in the executable directory
	// 2) otherwise the file named by SCREEN_ASK_LLM
	envPath := resolveEnvPath()
	dotenvValues := readDotenvValues(envPath)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}

	var providers []string
	if providersStr := os.Getenv("PROVIDERS"); providersStr != "" {
		for _, provider := range strings.Split(providersStr, ",") {
			if trimmed := strings.TrimSpace(provider); trimmed != "" {
				providers = append(providers, trimmed)
			}
		}
	}

	apiKeyPath := resolveAPIKeyPath(opts, dotenvValues)

	hotkey := getEnvWithDefault("HOTKEY", DefaultHotkey)
	if override := strings.TrimSpace(opts.HotkeyOverride); override != "" {
		hotkey = override
	}

	surface := os.Getenv("SURFACE")
	if override := strings.TrimSpace(opts.SurfaceOverride); override != "" {
		surface = override
	}

	cfg := &Config{
		APIKey:     resolveAPIKey(apiKeyPath),
		APIKeyPath: apiKeyPath,
		Model:      getEnvWithDefault("MODEL", DefaultModel),
		BaseURL:    strings.TrimRight(getEnvWithDefault("API_BASE_URL", DefaultBaseURL), "/"),
		Providers:  providers,

		Temperature: getFloat("TEMPERATURE", 0.7),
		TopP:        getFloat("TOP_P", 0.95),
		TopK:        getPositiveInt("TOP_K", 64),
		MaxTokens:   getPositiveInt("MAX_TOKENS", 8192),

		Hotkey:           hotkey,
		StopKey:          getEnvWithDefault("STOP_KEY", DefaultStopKey),
		Surface:          resolveChoice(surface, SurfaceConsole, SurfaceGUI),
		HotkeyPolicy:     resolveChoice(os.Getenv("HOTKEY_POLICY"), HotkeyPolicyDrop, HotkeyPolicyQueue),
		ConversationMode: resolveChoice(os.Getenv("CONVERSATION_MODE"), ConversationContinue, ConversationFresh),

		QueryTimeoutSec:  getNonNegativeInt("QUERY_TIMEOUT_SEC", 0),
		QueryMaxAttempts: clamp(getPositiveInt("QUERY_MAX_ATTEMPTS", 1), 1, MaxQueryAttempts),
		ArtifactDir:      getEnvWithDefault("ARTIFACT_DIR", os.TempDir()),

		EnableFileLogging: getBool("ENABLE_FILE_LOGGING"),
		LogDir:            getEnvWithDefault("LOG_DIR", "."),
		EnableTelemetry:   getBool("ENABLE_TELEMETRY"),
		EnableTray:        getBool("ENABLE_TRAY"),
		CopyAnswer:        getBool("COPY_ANSWER"),
		StartupCheck:      getBool("STARTUP_CHECK"),

		InstancePortStart: getPositiveInt("SINGLEINSTANCE_PORT_START", DefaultInstancePortStart),
		InstancePortEnd:   getPositiveInt("SINGLEINSTANCE_PORT_END", DefaultInstancePortEnd),
	}

	return cfg, nil
}

func resolveEnvPath() string {
	if execPath, err := os.Executable(); err == nil {
		exeEnv := filepath.Join(filepath.Dir(execPath), ".env")
		if _, err := os.Stat(exeEnv); err == nil {
			return exeEnv
		}
	}

	if alt := os.Getenv(ConfigPathEnvVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	return ""
}

func readDotenvValues(envPath string) map[string]string {
	if envPath == "" {
		return map[string]string{}
	}

	values, err := godotenv.Read(envPath)
	if err != nil {
		return map[string]string{}
	}

	return values
}

func resolveAPIKeyPath(opts LoadOptions, dotenvValues map[string]string) string {
	keyPath := DefaultAPIKeyPath

	if envPath := strings.TrimSpace(os.Getenv(APIKeyPathEnvVar)); envPath != "" {
		keyPath = envPath
	}

	if dotenvPath := strings.TrimSpace(dotenvValues[APIKeyPathEnvVar]); dotenvPath != "" {
		keyPath = dotenvPath
	}

	if overridePath := strings.TrimSpace(opts.APIKeyPathOverride); overridePath != "" {
		keyPath = overridePath
	}

	return keyPath
}

func resolveAPIKey(keyPath string) string {
	if data, err := os.ReadFile(keyPath); err == nil {
		if fileKey := strings.TrimSpace(string(data)); fileKey != "" {
			return fileKey
		}
	}

	return strings.TrimSpace(os.Getenv(APIKeyEnvVar))
}

// resolveChoice returns value when it is one of the allowed choices, otherwise
// the first choice.
func resolveChoice(value string, choices ...string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	for _, c := range choices {
		if v == c {
			return c
		}
	}
	return choices[0]
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string) bool {
	return strings.ToLower(strings.TrimSpace(os.Getenv(key))) == "true"
}

func getFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f >= 0 {
			return f
		}
	}
	return defaultValue
}

func getPositiveInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func getNonNegativeInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
			return n
		}
	}
	return defaultValue
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
