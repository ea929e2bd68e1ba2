// Package config provides configuration management for the pangalink banklink simulator.
// Configuration can be loaded from YAML files and overridden by environment variables.
package config

import (
	"fmt"
	"github.com/ilyakaznacheev/cleanenv"
	"sync"
	"time"
)

// Config holds all configuration for the banklink service.
// Environment variables take precedence over YAML values.
type Config struct {
	IsDebug    bool  `yaml:"is_debug" env:"DEBUG" env-default:"false"`
	LogRecords int64 `yaml:"log_records" env:"LOG_RECORDS" env-default:"0"`
	Listen     struct {
		BindIP   string `yaml:"bind_ip" env:"BIND_IP" env-default:"0.0.0.0"`
		Port     string `yaml:"port" env:"PORT" env-default:"3480"`
		TLS      bool   `yaml:"tls_enabled" env:"TLS_ENABLED" env-default:"false"`
		CertFile string `yaml:"cert_file" env:"TLS_CERT_FILE" env-default:""`
		KeyFile  string `yaml:"key_file" env:"TLS_KEY_FILE" env-default:""`
	} `yaml:"listen"`
	Mongo struct {
		Enabled  bool   `yaml:"enabled" env:"MONGO_ENABLED" env-default:"false"`
		Host     string `yaml:"host" env:"MONGO_HOST" env-default:"127.0.0.1"`
		Port     string `yaml:"port" env:"MONGO_PORT" env-default:"27017"`
		User     string `yaml:"user" env:"MONGO_USER" env-default:""`
		Password string `yaml:"password" env:"MONGO_PASSWORD" env-default:""`
		Database string `yaml:"database" env:"MONGO_DATABASE" env-default:"pangalink"`
	} `yaml:"mongo"`
	Redis struct {
		Enabled  bool   `yaml:"enabled" env:"REDIS_ENABLED" env-default:"false"`
		Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"127.0.0.1:6379"`
		Password string `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
		DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	} `yaml:"redis"`
	Banklink struct {
		Hostname        string        `yaml:"hostname" env:"PANGALINK_HOSTNAME" env-default:"localhost:3480"`
		Proto           string        `yaml:"proto" env:"PANGALINK_PROTO" env-default:"http"`
		AutoPay         string        `yaml:"autopay" env:"PANGALINK_AUTOPAY" env-default:""`
		SenderName      string        `yaml:"sender_name" env:"PANGALINK_NAME" env-default:"Tõõger Leõpäöld"`
		SenderAccount   string        `yaml:"sender_account" env:"PANGALINK_ACCOUNT" env-default:""`
		KeyBitsize      int           `yaml:"key_bitsize" env:"PANGALINK_KEY_BITSIZE" env-default:"2048"`
		CertDays        int           `yaml:"cert_days" env:"PANGALINK_CERT_DAYS" env-default:"181"`
		KeyWorkers      int           `yaml:"key_workers" env:"PANGALINK_KEY_WORKERS" env-default:"2"`
		CallbackTimeout time.Duration `yaml:"callback_timeout" env:"PANGALINK_CALLBACK_TIMEOUT" env-default:"10s"`
		PagingCount     int64         `yaml:"paging_count" env:"PANGALINK_PAGING" env-default:"30"`
		BanksFile       string        `yaml:"banks_file" env:"PANGALINK_BANKS_FILE" env-default:""`
	} `yaml:"banklink"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" env:"METRICS_ENABLED" env-default:"true"`
		Path    string `yaml:"path" env:"METRICS_PATH" env-default:"/metrics"`
	} `yaml:"metrics"`
}

var instance *Config
var once sync.Once

// GetConfig loads configuration from the specified YAML file path.
// This function uses a singleton pattern and only loads the config once.
//
// Example:
//
//	cfg, err := config.GetConfig("config.yml")
//	if err != nil {
//	    log.Fatal(err)
//	}
func GetConfig(path string) (*Config, error) {
	var err error
	once.Do(func() {
		instance = &Config{}
		if err = cleanenv.ReadConfig(path, instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			err = fmt.Errorf("load config: %w; %s", err, desc)
			instance = nil
		}
	})
	return instance, err
}

// Default returns a configuration populated only from defaults and environment.
func Default() (*Config, error) {
	conf := &Config{}
	if err := cleanenv.ReadEnv(conf); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	return conf, nil
}

// BaseURL is the public address of the service, used for sample requests.
func (c *Config) BaseURL() string {
	return fmt.Sprintf("%s://%s", c.Banklink.Proto, c.Banklink.Hostname)
}
