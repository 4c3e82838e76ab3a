package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/spf13/viper"
)

// 运行环境
const (
	EnvDevelopment = "development"
	EnvTesting     = "testing"
	EnvProduction  = "production"
)

const (
	ProviderOpenAI = "openai"
	ProviderArk    = "ark"
)

const (
	defaultAdminUsername = "admin"
	defaultAdminPassword = "admin123"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	AI       AIConfig
	Storage  StorageConfig
	Auth     AuthConfig
	Features FeatureConfig
}

// Load 从环境变量（以及可选的 config.yaml / config.json）加载配置。
func Load() (*Config, error) {
	v, err := newSource()
	if err != nil {
		return nil, err
	}
	return LoadFrom(v)
}

// LoadFrom 使用给定的 viper 实例加载配置，测试中可注入隔离的数据源。
func LoadFrom(v *viper.Viper) (*Config, error) {
	server, err := loadServerConfig(v)
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig(v)
	if err != nil {
		return nil, err
	}

	storage, err := loadStorageConfig(v)
	if err != nil {
		return nil, err
	}

	auth, err := loadAuthConfig(v, server.Env)
	if err != nil {
		return nil, err
	}

	features, err := loadFeatureConfig(v)
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, Storage: storage, Auth: auth, Features: features}, nil
}

// newSource 构造 viper 数据源：环境变量优先，其次是可选的配置文件。
func newSource() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", EnvDevelopment)
	v.SetDefault("AI_PROVIDER", ProviderOpenAI)
	v.SetDefault("LOG_DIR", "logs")
	v.SetDefault("ASSESSMENT_DATA_FILE", "assessment_data.json")
	v.SetDefault("SESSION_COOKIE_NAME", "apt_session")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return v, nil
}

// Validate 对生产环境做额外检查。
func (c *Config) Validate() error {
	if c.Server.Env != EnvProduction {
		return nil
	}

	var errs []error
	if !c.AI.Enabled() {
		errs = append(errs, errors.New("model credentials are not set"))
	}
	if c.Auth.Enabled && (c.Auth.Username == defaultAdminUsername || c.Auth.Password == defaultAdminPassword) {
		errs = append(errs, errors.New("default admin credentials must not be used in production"))
	}
	for _, origin := range c.Server.CORSOrigins {
		if strings.Contains(origin, "localhost") {
			errs = append(errs, errors.New("localhost must not be in CORS_ORIGINS in production"))
			break
		}
	}
	return errors.Join(errs...)
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr             string
	Env              string
	Debug            bool
	LogLevel         string
	LogJSON          bool
	CORSOrigins      []string
	SecurityHeaders  bool
	CSP              string
	MaxMessageLength int
	MinMessageLength int
	CookieName       string
	CookieSecure     bool
}

// loadServerConfig 解析服务器监听地址与 HTTP 相关设置。
func loadServerConfig(v *viper.Viper) (ServerConfig, error) {
	addr, err := resolveAddr(v)
	if err != nil {
		return ServerConfig{}, err
	}

	env := strings.ToLower(getEnvOrDefault(v, "APP_ENV", EnvDevelopment))
	switch env {
	case EnvDevelopment, EnvTesting, EnvProduction:
	default:
		return ServerConfig{}, fmt.Errorf("invalid APP_ENV value %q", env)
	}

	debug, err := parseBoolEnv(v, "DEBUG", env == EnvDevelopment)
	if err != nil {
		return ServerConfig{}, err
	}

	logJSON, err := parseBoolEnv(v, "LOG_JSON", env == EnvProduction)
	if err != nil {
		return ServerConfig{}, err
	}

	securityHeaders, err := parseBoolEnv(v, "SECURITY_HEADERS_ENABLED", env != EnvDevelopment)
	if err != nil {
		return ServerConfig{}, err
	}

	cookieSecure, err := parseBoolEnv(v, "SESSION_COOKIE_SECURE", env == EnvProduction)
	if err != nil {
		return ServerConfig{}, err
	}

	maxLen := 1000
	if override, err := parseOptionalIntEnv(v, "MAX_MESSAGE_LENGTH"); err != nil {
		return ServerConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return ServerConfig{}, fmt.Errorf("invalid MAX_MESSAGE_LENGTH value %d", *override)
		}
		maxLen = *override
	}

	minLen := 1
	if override, err := parseOptionalIntEnv(v, "MIN_MESSAGE_LENGTH"); err != nil {
		return ServerConfig{}, err
	} else if override != nil {
		minLen = *override
	}

	origins := []string{"*"}
	if raw := getEnvOrDefault(v, "CORS_ORIGINS", ""); raw != "" {
		origins = splitList(raw)
	}

	defaultLevel := "info"
	if env == EnvProduction {
		defaultLevel = "warning"
	}

	return ServerConfig{
		Addr:             addr,
		Env:              env,
		Debug:            debug,
		LogLevel:         getEnvOrDefault(v, "LOG_LEVEL", defaultLevel),
		LogJSON:          logJSON,
		CORSOrigins:      origins,
		SecurityHeaders:  securityHeaders,
		CSP:              getEnvOrDefault(v, "CONTENT_SECURITY_POLICY", "default-src 'self'"),
		MaxMessageLength: maxLen,
		MinMessageLength: minLen,
		CookieName:       getEnvOrDefault(v, "SESSION_COOKIE_NAME", "apt_session"),
		CookieSecure:     cookieSecure,
	}, nil
}

func resolveAddr(v *viper.Viper) (string, error) {
	port := getEnvOrDefault(v, "PORT", "8000")

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8000" 或 "127.0.0.1:8000"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return getEnvOrDefault(v, "HOST", "") + ":" + port, nil
}

// AIConfig 描述大模型相关配置，按部署固定，不随请求协商。
type AIConfig struct {
	Provider         string
	APIKey           string
	AccessKey        string
	SecretKey        string
	Model            string
	BaseURL          string
	Region           string
	Temperature      float64
	TopP             float64
	MaxTokens        int
	FrequencyPenalty float64
	PresencePenalty  float64
	Timeout          time.Duration
	MaxRetries       int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	if c.Model == "" {
		return false
	}
	if c.Provider == ProviderArk {
		return c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != "")
	}
	return c.APIKey != ""
}

// NewChatModel 使用配置创建一个 Ark 模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if c.Provider != ProviderArk {
		return nil, fmt.Errorf("provider %q has no eino chat model", c.Provider)
	}
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	temperature := float32(c.Temperature)
	topP := float32(c.TopP)
	frequencyPenalty := float32(c.FrequencyPenalty)
	presencePenalty := float32(c.PresencePenalty)
	maxTokens := c.MaxTokens
	timeout := c.Timeout
	retries := c.MaxRetries

	cfg := &ark.ChatModelConfig{
		BaseURL:          c.BaseURL,
		Region:           c.Region,
		APIKey:           c.APIKey,
		AccessKey:        c.AccessKey,
		SecretKey:        c.SecretKey,
		Model:            c.Model,
		MaxTokens:        &maxTokens,
		Temperature:      &temperature,
		TopP:             &topP,
		FrequencyPenalty: &frequencyPenalty,
		PresencePenalty:  &presencePenalty,
		Timeout:          &timeout,
		RetryTimes:       &retries,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig(v *viper.Viper) (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault(v, "AI_PROVIDER", ProviderOpenAI))
	if provider != ProviderOpenAI && provider != ProviderArk {
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value %q", provider)
	}

	cfg := AIConfig{
		Provider:    provider,
		Temperature: 0.7,
		TopP:        1.0,
		MaxTokens:   2000,
		Timeout:     30 * time.Second,
		MaxRetries:  3,
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"OPENAI_TEMPERATURE", &cfg.Temperature},
		{"OPENAI_TOP_P", &cfg.TopP},
		{"OPENAI_FREQUENCY_PENALTY", &cfg.FrequencyPenalty},
		{"OPENAI_PRESENCE_PENALTY", &cfg.PresencePenalty},
	}
	for _, f := range floats {
		val, err := parseOptionalFloatEnv(v, f.key)
		if err != nil {
			return AIConfig{}, err
		}
		if val != nil {
			*f.dst = *val
		}
	}

	if maxTokens, err := parseOptionalIntEnv(v, "OPENAI_MAX_TOKENS"); err != nil {
		return AIConfig{}, err
	} else if maxTokens != nil {
		cfg.MaxTokens = *maxTokens
	}

	if timeout, err := parseOptionalIntEnv(v, "OPENAI_TIMEOUT"); err != nil {
		return AIConfig{}, err
	} else if timeout != nil {
		cfg.Timeout = time.Duration(*timeout) * time.Second
	}

	if retries, err := parseOptionalIntEnv(v, "OPENAI_MAX_RETRIES"); err != nil {
		return AIConfig{}, err
	} else if retries != nil {
		if *retries < 0 {
			return AIConfig{}, fmt.Errorf("invalid OPENAI_MAX_RETRIES value %d", *retries)
		}
		cfg.MaxRetries = *retries
	}

	if provider == ProviderArk {
		cfg.APIKey = getEnvOrDefault(v, "ARK_API_KEY", "")
		cfg.AccessKey = getEnvOrDefault(v, "ARK_ACCESS_KEY", "")
		cfg.SecretKey = getEnvOrDefault(v, "ARK_SECRET_KEY", "")
		cfg.Model = getEnvOrDefault(v, "ARK_MODEL", "")
		cfg.BaseURL = getEnvOrDefault(v, "ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3")
		cfg.Region = getEnvOrDefault(v, "ARK_REGION", "cn-beijing")
		return cfg, nil
	}

	cfg.APIKey = getEnvOrDefault(v, "OPENAI_API_KEY", "")
	cfg.Model = getEnvOrDefault(v, "OPENAI_DEFAULT_MODEL", "gpt-3.5-turbo")
	cfg.BaseURL = getEnvOrDefault(v, "OPENAI_BASE_URL", "")
	return cfg, nil
}

// StorageConfig 描述会话日志与平面日志的存放位置。
type StorageConfig struct {
	LogDir      string
	SessionDir  string
	FlatLogPath string
	RedisURL    string
	LockTimeout time.Duration
}

func loadStorageConfig(v *viper.Viper) (StorageConfig, error) {
	logDir := getEnvOrDefault(v, "LOG_DIR", "logs")

	lockTimeout := 2 * time.Second
	if override, err := parseOptionalIntEnv(v, "SESSION_LOCK_TIMEOUT"); err != nil {
		return StorageConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return StorageConfig{}, fmt.Errorf("invalid SESSION_LOCK_TIMEOUT value %d", *override)
		}
		lockTimeout = time.Duration(*override) * time.Second
	}

	return StorageConfig{
		LogDir:      logDir,
		SessionDir:  getEnvOrDefault(v, "SESSION_LOG_DIR", filepath.Join(logDir, "session_logs")),
		FlatLogPath: filepath.Join(logDir, "conversations.log"),
		RedisURL:    getEnvOrDefault(v, "REDIS_URL", ""),
		LockTimeout: lockTimeout,
	}, nil
}

// AuthConfig 描述管理端 Basic Auth 凭证。Password 可以是明文或 bcrypt 哈希。
type AuthConfig struct {
	Enabled  bool
	Username string
	Password string
}

func loadAuthConfig(v *viper.Viper, env string) (AuthConfig, error) {
	enabled, err := parseBoolEnv(v, "AUTH_ENABLED", env != EnvTesting)
	if err != nil {
		return AuthConfig{}, err
	}

	return AuthConfig{
		Enabled:  enabled,
		Username: getEnvOrDefault(v, "ADMIN_USERNAME", defaultAdminUsername),
		Password: getEnvOrDefault(v, "ADMIN_PASSWORD", defaultAdminPassword),
	}, nil
}

// FeatureConfig 功能开关。
type FeatureConfig struct {
	Assessment     bool
	AssessmentFile string
	SessionExport  bool
}

func loadFeatureConfig(v *viper.Viper) (FeatureConfig, error) {
	assessment, err := parseBoolEnv(v, "FEATURE_ASSESSMENT", true)
	if err != nil {
		return FeatureConfig{}, err
	}

	export, err := parseBoolEnv(v, "FEATURE_SESSION_EXPORT", true)
	if err != nil {
		return FeatureConfig{}, err
	}

	return FeatureConfig{
		Assessment:     assessment,
		AssessmentFile: getEnvOrDefault(v, "ASSESSMENT_DATA_FILE", "assessment_data.json"),
		SessionExport:  export,
	}, nil
}

func getEnvOrDefault(v *viper.Viper, key, defaultValue string) string {
	if value := strings.TrimSpace(v.GetString(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(v *viper.Viper, key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(v *viper.Viper, key string) (*float64, error) {
	value := strings.TrimSpace(v.GetString(key))
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(v *viper.Viper, key string) (*int, error) {
	value := strings.TrimSpace(v.GetString(key))
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
