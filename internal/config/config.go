package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server     ServerConfig
	AI         AIConfig
	Assessment AssessmentConfig
	Store      StoreConfig
	Handoff    HandoffConfig
	Log        LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	assessment, err := loadAssessmentConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:     server,
		AI:         ai,
		Assessment: assessment,
		Store:      store,
		Handoff:    loadHandoffConfig(),
		Log:        logCfg,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// AssessmentConfig 控制面试状态机的窗口、超时与轮次上限。
type AssessmentConfig struct {
	HistoryWindow      int
	StageTimeout       time.Duration
	SessionTTL         time.Duration
	ProfileMaxTurns    int
	TechnicalMaxTurns  int
	BehavioralMaxTurns int
}

// StoreConfig 选择会话与报告的存储后端。
type StoreConfig struct {
	Backend   string
	RedisURL  string
	KeyPrefix string
}

// HandoffConfig 描述报告交接给 HR 的消息通道。
type HandoffConfig struct {
	NATSURL string
	Subject string
}

// LogConfig 控制日志格式与级别。
type LogConfig struct {
	JSON  bool
	Debug bool
}

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

func loadAssessmentConfig() (AssessmentConfig, error) {
	window, err := parseIntEnvWithMin("ASSESSMENT_HISTORY_WINDOW", 10, 1)
	if err != nil {
		return AssessmentConfig{}, err
	}

	timeoutSeconds, err := parseIntEnvWithMin("ASSESSMENT_STAGE_TIMEOUT", 20, 1)
	if err != nil {
		return AssessmentConfig{}, err
	}

	ttlMinutes, err := parseIntEnvWithMin("ASSESSMENT_SESSION_TTL", 120, 1)
	if err != nil {
		return AssessmentConfig{}, err
	}

	profileTurns, err := parseIntEnvWithMin("ASSESSMENT_PROFILE_MAX_TURNS", 2, 1)
	if err != nil {
		return AssessmentConfig{}, err
	}

	technicalTurns, err := parseIntEnvWithMin("ASSESSMENT_TECHNICAL_MAX_TURNS", 4, 1)
	if err != nil {
		return AssessmentConfig{}, err
	}

	behavioralTurns, err := parseIntEnvWithMin("ASSESSMENT_BEHAVIORAL_MAX_TURNS", 4, 1)
	if err != nil {
		return AssessmentConfig{}, err
	}

	return AssessmentConfig{
		HistoryWindow:      window,
		StageTimeout:       time.Duration(timeoutSeconds) * time.Second,
		SessionTTL:         time.Duration(ttlMinutes) * time.Minute,
		ProfileMaxTurns:    profileTurns,
		TechnicalMaxTurns:  technicalTurns,
		BehavioralMaxTurns: behavioralTurns,
	}, nil
}

func loadStoreConfig() (StoreConfig, error) {
	backend := strings.ToLower(getEnvOrDefault("STORE_BACKEND", StoreMemory))
	redisURL := strings.TrimSpace(os.Getenv("REDIS_URL"))

	switch backend {
	case StoreMemory:
	case StoreRedis:
		if redisURL == "" {
			return StoreConfig{}, fmt.Errorf("REDIS_URL is required when STORE_BACKEND=%s", StoreRedis)
		}
	default:
		return StoreConfig{}, fmt.Errorf("invalid STORE_BACKEND value %q", backend)
	}

	return StoreConfig{
		Backend:   backend,
		RedisURL:  redisURL,
		KeyPrefix: getEnvOrDefault("REDIS_KEY_PREFIX", "assess"),
	}, nil
}

func loadHandoffConfig() HandoffConfig {
	return HandoffConfig{
		NATSURL: strings.TrimSpace(os.Getenv("NATS_URL")),
		Subject: getEnvOrDefault("HANDOFF_SUBJECT", "assessment.handoff"),
	}
}

func loadLogConfig() (LogConfig, error) {
	jsonLogs, err := parseBoolEnv("LOG_JSON", false)
	if err != nil {
		return LogConfig{}, err
	}

	debug, err := parseBoolEnv("LOG_DEBUG", false)
	if err != nil {
		return LogConfig{}, err
	}

	return LogConfig{JSON: jsonLogs, Debug: debug}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseIntEnvWithMin(key string, defaultValue, min int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	if *val < min {
		return min, nil
	}
	return *val, nil
}
