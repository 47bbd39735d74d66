package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/hirestream/backend/internal/service/ai"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	AI      AIConfig
	Session SessionConfig
	Auth    AuthConfig
	Search  SearchConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	aiCfg, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	auth, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}

	search, err := loadSearchConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: aiCfg, Session: session, Auth: auth, Search: search}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	var addr string
	switch {
	case strings.Contains(port, ":"):
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		addr = port
	case strings.Contains(port, " "):
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	default:
		addr = ":" + port
	}

	return ServerConfig{Addr: addr, AllowedOrigins: parseListEnv("CORS_ALLOWED_ORIGINS")}, nil
}

const (
	ProviderArk    = "ark"
	ProviderGemini = "gemini"
)

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider     string
	APIKey       string
	AccessKey    string
	SecretKey    string
	Model        string
	BaseURL      string
	Region       string
	GeminiAPIKey string
	GeminiModel  string
	// Timeout 限制单次生成的总时长，0 表示不限制。
	Timeout time.Duration
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	if c.Provider == ProviderGemini {
		return c.GeminiAPIKey != ""
	}
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		if c.Provider == ProviderGemini {
			return nil, fmt.Errorf("Gemini 凭证缺失，请提供 GEMINI_API_KEY")
		}
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	if c.Provider == ProviderGemini {
		return ai.NewGeminiChatModel(ctx, c.GeminiAPIKey, c.GeminiModel)
	}

	// 采样参数由各 Profile 在每次调用时传入
	cfg := &ark.ChatModelConfig{
		BaseURL:   c.BaseURL,
		Region:    c.Region,
		APIKey:    c.APIKey,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Model:     c.Model,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("LLM_PROVIDER", ProviderArk))
	if provider != ProviderArk && provider != ProviderGemini {
		return AIConfig{}, fmt.Errorf("invalid LLM_PROVIDER value %q", provider)
	}

	timeout, err := parseDurationEnv("LLM_TIMEOUT", 2*time.Minute)
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		Provider:     provider,
		APIKey:       strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:    strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:    strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:        strings.TrimSpace(os.Getenv("Model")),
		BaseURL:      getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:       getEnvOrDefault("ARK_REGION", "cn-beijing"),
		GeminiAPIKey: strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:  getEnvOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),
		Timeout:      timeout,
	}, nil
}

// SessionConfig 描述会话存储配置。
type SessionConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

func loadSessionConfig() (SessionConfig, error) {
	ttl, err := parseDurationEnv("SESSION_TTL", 30*time.Minute)
	if err != nil {
		return SessionConfig{}, err
	}
	sweep, err := parseDurationEnv("SESSION_SWEEP_INTERVAL", time.Minute)
	if err != nil {
		return SessionConfig{}, err
	}
	return SessionConfig{TTL: ttl, SweepInterval: sweep}, nil
}

// AuthConfig 描述账号存储与令牌配置。
type AuthConfig struct {
	Driver    string
	DSN       string
	JWTSecret string
	TokenTTL  time.Duration
}

// Enabled 表示是否配置了令牌签名密钥。
func (c AuthConfig) Enabled() bool {
	return c.JWTSecret != ""
}

func loadAuthConfig() (AuthConfig, error) {
	ttl, err := parseDurationEnv("JWT_TTL", time.Hour)
	if err != nil {
		return AuthConfig{}, err
	}

	driver := getEnvOrDefault("AUTH_DB_DRIVER", "sqlite3")
	if driver != "sqlite3" && driver != "postgres" {
		return AuthConfig{}, fmt.Errorf("invalid AUTH_DB_DRIVER value %q", driver)
	}

	return AuthConfig{
		Driver:    driver,
		DSN:       getEnvOrDefault("AUTH_DB_DSN", "file:hirestream.db?_busy_timeout=5000"),
		JWTSecret: strings.TrimSpace(os.Getenv("JWT_SECRET")),
		TokenTTL:  ttl,
	}, nil
}

// SearchConfig 描述候选人检索配置。
type SearchConfig struct {
	QdrantURL        string
	Collection       string
	OllamaURL        string
	EmbedModel       string
	CandidatesSource string
	TopK             int
	S3               S3Config
}

// VectorEnabled 表示是否使用 Qdrant 向量检索；否则退化为内存检索。
func (c SearchConfig) VectorEnabled() bool {
	return c.QdrantURL != ""
}

func loadSearchConfig() (SearchConfig, error) {
	topK := 1
	if override, err := parseOptionalIntEnv("SEARCH_TOP_K"); err != nil {
		return SearchConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return SearchConfig{}, fmt.Errorf("invalid SEARCH_TOP_K value %d", *override)
		}
		topK = *override
	}

	return SearchConfig{
		QdrantURL:        strings.TrimRight(strings.TrimSpace(os.Getenv("QDRANT_URL")), "/"),
		Collection:       getEnvOrDefault("QDRANT_COLLECTION", "candidates"),
		OllamaURL:        strings.TrimRight(getEnvOrDefault("OLLAMA_URL", "http://localhost:11434"), "/"),
		EmbedModel:       getEnvOrDefault("EMBED_MODEL", "nomic-embed-text"),
		CandidatesSource: strings.TrimSpace(os.Getenv("CANDIDATES_SOURCE")),
		TopK:             topK,
		S3: S3Config{
			Endpoint:  strings.TrimSpace(os.Getenv("S3_ENDPOINT")),
			Region:    getEnvOrDefault("S3_REGION", "auto"),
			AccessKey: strings.TrimSpace(os.Getenv("S3_ACCESS_KEY")),
			SecretKey: strings.TrimSpace(os.Getenv("S3_SECRET_KEY")),
		},
	}, nil
}

// S3Config 描述候选人语料所在的对象存储（S3 或兼容服务，如 R2）。
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// Enabled 表示是否提供了访问密钥。
func (c S3Config) Enabled() bool {
	return c.AccessKey != "" && c.SecretKey != ""
}

// NewClient 创建对象存储客户端。
func (c S3Config) NewClient(ctx context.Context) (*s3.Client, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("对象存储凭证缺失，请提供 S3_ACCESS_KEY 与 S3_SECRET_KEY")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")),
		awsconfig.WithRegion(c.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseListEnv(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
	}
	return val, nil
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
