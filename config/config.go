package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Interests InterestConfig
	Channel   ChannelConfig
}

type ServerConfig struct {
	Port           string
	AllowedOrigins []string
}

type StoreConfig struct {
	// UseMemory swaps DynamoDB for the in-process store (local runs).
	UseMemory bool
	AWSRegion string
	Timeout   time.Duration
}

type InterestConfig struct {
	DailyLimit    int
	TTL           time.Duration
	SweepInterval time.Duration // 0 disables the optional expiry sweep
}

type ChannelConfig struct {
	FeedSize       int
	EventBacklog   int
	PublishRetries int
}

// Load reads configuration from environment variables or a .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	// The .env file is optional.
	_ = viper.ReadInConfig()

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("ALLOWED_ORIGINS", []string{"*"})
	viper.SetDefault("USE_MEMORY_STORE", false)
	viper.SetDefault("STORE_TIMEOUT_MS", 5000)
	viper.SetDefault("DAILY_INTEREST_LIMIT", 5)
	viper.SetDefault("INTEREST_TTL_DAYS", 30)
	viper.SetDefault("EXPIRY_SWEEP_MINUTES", 0)
	viper.SetDefault("FEED_SIZE", 100)
	viper.SetDefault("EVENT_BACKLOG", 50)
	viper.SetDefault("PUBLISH_RETRIES", 3)

	cfg := &Config{
		Server: ServerConfig{
			Port:           viper.GetString("PORT"),
			AllowedOrigins: viper.GetStringSlice("ALLOWED_ORIGINS"),
		},
		Store: StoreConfig{
			UseMemory: viper.GetBool("USE_MEMORY_STORE"),
			AWSRegion: viper.GetString("AWS_REGION"),
			Timeout:   time.Duration(viper.GetInt("STORE_TIMEOUT_MS")) * time.Millisecond,
		},
		Interests: InterestConfig{
			DailyLimit:    viper.GetInt("DAILY_INTEREST_LIMIT"),
			TTL:           time.Duration(viper.GetInt("INTEREST_TTL_DAYS")) * 24 * time.Hour,
			SweepInterval: time.Duration(viper.GetInt("EXPIRY_SWEEP_MINUTES")) * time.Minute,
		},
		Channel: ChannelConfig{
			FeedSize:       viper.GetInt("FEED_SIZE"),
			EventBacklog:   viper.GetInt("EVENT_BACKLOG"),
			PublishRetries: viper.GetInt("PUBLISH_RETRIES"),
		},
	}
	return cfg, nil
}
