package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — настройки процессов stencil.
//
// Источники в порядке приоритета: переменные окружения (STENCIL_*,
// а также LOG_LEVEL, LOG_FORMAT, DB_URL, RABBITMQ_URL), файл
// stencil.yaml, значения по умолчанию.
type Config struct {
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	API struct {
		Port int `mapstructure:"port"`

		// URL — адрес API для CLI-команд template и execution.
		URL string `mapstructure:"url"`
	} `mapstructure:"api"`

	DB struct {
		// URL — DSN Postgres. Пусто — хранилища в памяти.
		URL string `mapstructure:"url"`
	} `mapstructure:"db"`

	RabbitMQ struct {
		// URL — адрес брокера. Пусто — записи лога не пересылаются.
		URL string `mapstructure:"url"`
	} `mapstructure:"rabbitmq"`

	Flows struct {
		// Dir — каталог с YAML flow и шаблонами, загружаемый при старте.
		Dir string `mapstructure:"dir"`
	} `mapstructure:"flows"`

	Runner struct {
		Timeout           time.Duration `mapstructure:"timeout"`
		Parallelism       int           `mapstructure:"parallelism"`
		ContinueOnFailure bool          `mapstructure:"continue_on_failure"`

		// Retention — сколько завершённых execution runner держит в памяти.
		Retention int `mapstructure:"retention"`
	} `mapstructure:"runner"`

	Bus struct {
		Buffer int `mapstructure:"buffer"`
	} `mapstructure:"bus"`

	Scheduler struct {
		Enabled  bool          `mapstructure:"enabled"`
		Interval time.Duration `mapstructure:"interval"`
	} `mapstructure:"scheduler"`
}

// legacyEnv — переменные без префикса, которые читаются наравне с STENCIL_*.
var legacyEnv = map[string]string{
	"log.level":    "LOG_LEVEL",
	"log.format":   "LOG_FORMAT",
	"db.url":       "DB_URL",
	"rabbitmq.url": "RABBITMQ_URL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.url", "http://localhost:8080")
	v.SetDefault("db.url", "")
	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("flows.dir", "")
	v.SetDefault("runner.timeout", 60*time.Second)
	v.SetDefault("runner.parallelism", 1)
	v.SetDefault("runner.continue_on_failure", false)
	v.SetDefault("runner.retention", 1000)
	v.SetDefault("bus.buffer", 256)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", 10*time.Second)
}

// Load читает конфигурацию.
//
// path — явный путь к файлу; если пуст, stencil.yaml ищется в текущем
// каталоге и в ./config, а его отсутствие не ошибка.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("STENCIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		envKey := "STENCIL_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, legacy); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("stencil")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет значения.
func (c *Config) Validate() error {
	var errs []error
	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api.port out of range: %d", c.API.Port))
	}
	if c.Runner.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("runner.timeout must be positive: %s", c.Runner.Timeout))
	}
	if c.Runner.Parallelism <= 0 {
		errs = append(errs, fmt.Errorf("runner.parallelism must be positive: %d", c.Runner.Parallelism))
	}
	if c.Runner.Retention <= 0 {
		errs = append(errs, fmt.Errorf("runner.retention must be positive: %d", c.Runner.Retention))
	}
	if c.Bus.Buffer <= 0 {
		errs = append(errs, fmt.Errorf("bus.buffer must be positive: %d", c.Bus.Buffer))
	}
	if c.Scheduler.Interval <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.interval must be positive: %s", c.Scheduler.Interval))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// ErrInvalidConfig — значение вне допустимого диапазона.
var ErrInvalidConfig = errors.New("invalid config")
