package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

func NewConfigRepository(path string) (*Config, error) {
	viper.SetConfigFile(path)

	viper.AutomaticEnv()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("listen_addr", ":8080")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("openai.model", "gpt-4o-mini")
	viper.SetDefault("openai.embedding_model", "text-embedding-3-small")
	viper.SetDefault("kestra.workflow_id", "incident-resolution")
	viper.SetDefault("kestra.poll_interval", 5*time.Second)
	viper.SetDefault("kestra.max_wait", 300*time.Second)
	viper.SetDefault("pipeline.workers", 4)
	viper.SetDefault("pipeline.queue_size", 64)

	err := viper.ReadInConfig()
	if err != nil {
		return nil, fmt.Errorf("read config error: %w", err)
	}

	var c Config
	err = viper.Unmarshal(&c)
	if err != nil {
		return nil, fmt.Errorf("unmarshal config error: %w", err)
	}
	valid := validator.New()
	if err = valid.Struct(c); err != nil {
		return nil, fmt.Errorf("validate config error: %w", err)
	}

	return &c, nil
}

type Config struct {
	ListenAddr string           `mapstructure:"listen_addr"`
	Redis      RedisConfig      `mapstructure:"redis"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Kestra     KestraConfig     `mapstructure:"kestra" validate:"required"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Confluence ConfluenceConfig `mapstructure:"confluence"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type OpenAIConfig struct {
	Model          string `mapstructure:"model" validate:"required"`
	EmbeddingModel string `mapstructure:"embedding_model" validate:"required"`
}

type KestraConfig struct {
	URL          string        `mapstructure:"url" validate:"required,url"`
	WorkflowID   string        `mapstructure:"workflow_id" validate:"required"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	MaxWait      time.Duration `mapstructure:"max_wait" validate:"gt=0"`
}

type PipelineConfig struct {
	Workers   int `mapstructure:"workers" validate:"gt=0"`
	QueueSize int `mapstructure:"queue_size" validate:"gt=0"`
}

type ConfluenceConfig struct {
	AncestorID string `mapstructure:"ancestor_id"`
	Space      string `mapstructure:"space"`
	Domain     string `mapstructure:"domain"`
}
