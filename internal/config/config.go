// Package config loads the viewer configuration. Values come from the defaults, then from the optional YAML file
// pointed by VIEWER_CONFIG_FILE and at last from the VIEWER_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/relistan/rubberneck"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix = "VIEWER"
	envFile   = envPrefix + "_CONFIG_FILE"
	redacted  = "[REDACTED]"
)

// Config contains the application configuration parameters.
type Config struct {
	HTTPAddr            string        `envconfig:"HTTP_ADDR" yaml:"httpAddr"`
	AnnotationBaseURL   string        `envconfig:"ANNOTATION_BASE_URL" yaml:"annotationBaseUrl"`
	URLSigningSecret    string        `envconfig:"URL_SIGNING_SECRET" yaml:"urlSigningSecret"`
	ProxyBinaries       bool          `envconfig:"PROXY_BINARIES" yaml:"proxyBinaries"`
	StorageBucketRegion string        `envconfig:"STORAGE_BUCKET_REGION" yaml:"storageBucketRegion"`
	DefaultRegion       string        `envconfig:"AWS_REGION" yaml:"awsRegion"`
	BinaryCacheSize     int           `envconfig:"BINARY_CACHE_SIZE" yaml:"binaryCacheSize"`
	BinaryCacheMaxBytes int64         `envconfig:"BINARY_CACHE_MAX_BYTES" yaml:"binaryCacheMaxBytes"`
	SessionCacheSize    int           `envconfig:"SESSION_CACHE_SIZE" yaml:"sessionCacheSize"`
	SessionTTL          time.Duration `envconfig:"SESSION_TTL" yaml:"sessionTTL"`
	SessionSecret       string        `envconfig:"SESSION_SECRET" yaml:"sessionSecret"`
	SessionBucket       string        `envconfig:"SESSION_BUCKET" yaml:"sessionBucket"`
	SerializeSaves      bool          `envconfig:"SERIALIZE_SAVES" yaml:"serializeSaves"`
	RedisURL            string        `envconfig:"REDIS_URL" yaml:"redisUrl"`
	RedisUsername       string        `envconfig:"REDIS_USERNAME" yaml:"redisUsername"`
	RedisPassword       string        `envconfig:"REDIS_PASSWORD" yaml:"redisPassword"`
	EnableDatadog       bool          `envconfig:"ENABLE_DATADOG" yaml:"enableDatadog"`
	LoggingLevel        string        `envconfig:"LOGGING_LEVEL" yaml:"loggingLevel"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		HTTPAddr:            ":8080",
		DefaultRegion:       "eu-west-2",
		BinaryCacheSize:     64,
		BinaryCacheMaxBytes: 256 << 20,
		SessionCacheSize:    1024,
		SessionTTL:          24 * time.Hour,
		LoggingLevel:        "info",
	}
}

// Load the configuration.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv(envFile); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	// The fields have no default tag, so envconfig only touches what is set at the environment.
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("fail to parse the environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("fail to read the configuration file: %w", err)
	}
	if err := yaml.Unmarshal(payload, c); err != nil {
		return fmt.Errorf("fail to parse the configuration file: %w", err)
	}
	return nil
}

// Validate checks the parameters that have no sensible default.
func (c Config) Validate() error {
	if c.AnnotationBaseURL == "" {
		return errors.New("the annotation base url can't be empty")
	}
	if _, err := url.ParseRequestURI(c.AnnotationBaseURL); err != nil {
		return fmt.Errorf("invalid annotation base url: %w", err)
	}
	if c.BinaryCacheSize <= 0 {
		return errors.New("the binary cache size must be bigger than zero")
	}
	if c.BinaryCacheMaxBytes <= 0 {
		return errors.New("the binary cache max bytes must be bigger than zero")
	}
	if c.SessionCacheSize <= 0 {
		return errors.New("the session cache size must be bigger than zero")
	}
	if c.SessionTTL <= 0 {
		return errors.New("the session ttl must be bigger than zero")
	}
	if c.ProxyBinaries && c.URLSigningSecret == "" {
		return errors.New("the url signing secret can't be empty when proxying binaries")
	}
	if _, err := c.BucketRegions(); err != nil {
		return err
	}
	if _, err := zerolog.ParseLevel(c.LoggingLevel); err != nil {
		return fmt.Errorf("invalid logging level: %w", err)
	}
	return nil
}

// Level returns the logging level, info when it can't be parsed.
func (c Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LoggingLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// BucketRegions parses the bucket regions, formatted as 'region:bucket1,bucket2;region2:bucket3'.
func (c Config) BucketRegions() (map[string]string, error) {
	result := make(map[string]string)
	if strings.TrimSpace(c.StorageBucketRegion) == "" {
		return result, nil
	}
	for _, segment := range strings.Split(c.StorageBucketRegion, ";") {
		fragments := strings.Split(segment, ":")
		if len(fragments) != 2 {
			return nil, errors.New("invalid storage bucket region payload")
		}

		region := strings.TrimSpace(fragments[0])
		for _, bucket := range strings.Split(fragments[1], ",") {
			bucket = strings.TrimSpace(bucket)
			if region == "" || bucket == "" {
				return nil, errors.New("invalid storage bucket region payload")
			}
			result[bucket] = region
		}
	}
	return result, nil
}

// Print writes the configuration at the logger, with the secrets redacted.
func (c Config) Print(logger zerolog.Logger) {
	printer := rubberneck.NewPrinter(func(format string, v ...interface{}) {
		logger.Info().Msgf(format, v...)
	}, rubberneck.NoAddLineFeed)
	printer.Print(c.redacted())
}

func (c Config) redacted() Config {
	for _, secret := range []*string{&c.URLSigningSecret, &c.SessionSecret, &c.RedisPassword} {
		if *secret != "" {
			*secret = redacted
		}
	}
	return c
}
