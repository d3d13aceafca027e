package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"hivox/internal/validation"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	App      AppConfig
	Rewards  RewardsConfig
	Chain    ChainConfig
	Twitter  TwitterConfig
	Passport PassportConfig
	Gemini   GeminiConfig
	Log      LogConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver   string
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port    string
	GinMode string
}

// AppConfig holds application-specific settings
type AppConfig struct {
	JWTSecret           string
	JWTExpire           time.Duration
	FrontendURL         string
	AllowedOrigins      []string
	StrictReferralCodes bool
}

// RewardsConfig holds referral reward processing settings
type RewardsConfig struct {
	LevelsFile        string
	ProcessorInterval time.Duration
	MaxAttempts       int
}

// ChainConfig holds RPC endpoints keyed by chain id and the airdrop contracts
type ChainConfig struct {
	RPCURLs                map[int64]string
	AirdropContractAddress string
	TokenContractAddress   string
}

// TwitterConfig holds Twitter API v2 settings for the tweet task
type TwitterConfig struct {
	BearerToken   string
	APIURL        string
	CampaignText  string
	CampaignStart time.Time
}

// PassportConfig holds Gitcoin Passport settings
type PassportConfig struct {
	APIKey   string
	ScorerID string
	APIURL   string
}

// GeminiConfig holds the AI chat settings
type GeminiConfig struct {
	APIKey string
	Model  string
	APIURL string
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Format string
}

const (
	defaultCampaignText  = "Eth is Bullish..  Good for eth developers fam!"
	defaultCampaignStart = "2024-01-01"
)

// Chain ids of the networks a claim may be recorded on.
const (
	ChainIDEthereum int64 = 1
	ChainIDOptimism int64 = 10
	ChainIDBSC      int64 = 56
	ChainIDPolygon  int64 = 137
	ChainIDArbitrum int64 = 42161
)

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	jwtExpire, err := getEnvDuration("JWT_EXPIRE", 30*24*time.Hour)
	if err != nil {
		return nil, err
	}

	processorInterval, err := getEnvDuration("REWARD_PROCESSOR_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, err
	}

	maxAttempts, err := getEnvInt("REWARD_MAX_ATTEMPTS", 5)
	if err != nil {
		return nil, err
	}

	strictCodes, err := getEnvBool("STRICT_REFERRAL_CODES", false)
	if err != nil {
		return nil, err
	}

	campaignStart, err := parseDate(getEnv("TWEET_CAMPAIGN_START", defaultCampaignStart))
	if err != nil {
		return nil, fmt.Errorf("invalid TWEET_CAMPAIGN_START: %w", err)
	}

	config := &Config{
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "hivox"),
		},
		Server: ServerConfig{
			Port:    getEnv("SERVER_PORT", "5000"),
			GinMode: getEnv("GIN_MODE", "debug"),
		},
		App: AppConfig{
			JWTSecret:           getEnv("JWT_SECRET", ""),
			JWTExpire:           jwtExpire,
			FrontendURL:         strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
			AllowedOrigins:      splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
			StrictReferralCodes: strictCodes,
		},
		Rewards: RewardsConfig{
			LevelsFile:        getEnv("REWARD_LEVELS_FILE", ""),
			ProcessorInterval: processorInterval,
			MaxAttempts:       maxAttempts,
		},
		Chain: ChainConfig{
			RPCURLs:                map[int64]string{},
			AirdropContractAddress: strings.ToLower(getEnv("AIRDROP_CONTRACT_ADDRESS", "")),
			TokenContractAddress:   strings.ToLower(getEnv("TOKEN_CONTRACT_ADDRESS", "")),
		},
		Twitter: TwitterConfig{
			BearerToken:   getEnv("TWITTER_BEARER_TOKEN", ""),
			APIURL:        getEnv("TWITTER_API_URL", "https://api.twitter.com"),
			CampaignText:  getEnv("TWEET_CAMPAIGN_TEXT", defaultCampaignText),
			CampaignStart: campaignStart,
		},
		Passport: PassportConfig{
			APIKey:   getEnv("PASSPORT_API_KEY", ""),
			ScorerID: getEnv("PASSPORT_SCORER_ID", ""),
			APIURL:   getEnv("PASSPORT_API_URL", "https://api.passport.xyz"),
		},
		Gemini: GeminiConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
			Model:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			APIURL: getEnv("GEMINI_API_URL", "https://generativelanguage.googleapis.com"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	rpcEnv := map[int64]string{
		ChainIDEthereum: "ETHEREUM_RPC_URL",
		ChainIDPolygon:  "POLYGON_RPC_URL",
		ChainIDBSC:      "BSC_RPC_URL",
		ChainIDArbitrum: "ARBITRUM_RPC_URL",
		ChainIDOptimism: "OPTIMISM_RPC_URL",
	}
	for chainID, key := range rpcEnv {
		if url := getEnv(key, ""); url != "" {
			config.Chain.RPCURLs[chainID] = url
		}
	}

	if frontendURL := config.App.FrontendURL; frontendURL != "" && !contains(config.App.AllowedOrigins, frontendURL) {
		config.App.AllowedOrigins = append(config.App.AllowedOrigins, frontendURL)
	}

	// Validate required fields
	if config.App.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if config.Database.Driver != "postgres" && config.Database.Driver != "sqlite" {
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", config.Database.Driver)
	}

	if config.Rewards.MaxAttempts <= 0 {
		return nil, fmt.Errorf("REWARD_MAX_ATTEMPTS must be positive, got %d", config.Rewards.MaxAttempts)
	}

	for key, address := range map[string]string{
		"AIRDROP_CONTRACT_ADDRESS": config.Chain.AirdropContractAddress,
		"TOKEN_CONTRACT_ADDRESS":   config.Chain.TokenContractAddress,
	} {
		if address != "" && !validation.IsWalletAddress(address) {
			return nil, fmt.Errorf("%s is not a valid address: %q", key, address)
		}
	}

	if config.Rewards.ProcessorInterval <= 0 {
		return nil, fmt.Errorf("REWARD_PROCESSOR_INTERVAL must be positive, got %s", config.Rewards.ProcessorInterval)
	}

	return config, nil
}

// GetDSN returns the database connection string
func (c *Config) GetDSN() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	if c.Database.Driver == "sqlite" {
		return c.Database.DBName + ".db"
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// parseDate accepts either RFC3339 or a bare YYYY-MM-DD date (UTC midnight)
func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.TrimRight(part, "/"))
		}
	}
	return out
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
