/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package config loads docstore settings from the environment and .env files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the settings shared by the DynamoDB store and docctl.
type Config struct {
	Env string `mapstructure:"DOCSTORE_ENV" validate:"required,oneof=dev test prod"`

	AWS   AWSConfig   `mapstructure:",squash"`
	Store StoreConfig `mapstructure:",squash"`
}

// AWSConfig selects the region, credentials and endpoint of the DynamoDB client.
// Without static credentials the default AWS credential chain is used.
type AWSConfig struct {
	Region          string `mapstructure:"DOCSTORE_AWS_REGION" validate:"required"`
	AccessKeyID     string `mapstructure:"DOCSTORE_AWS_ACCESS_KEY_ID" validate:"required_with=SecretAccessKey"`
	SecretAccessKey string `mapstructure:"DOCSTORE_AWS_SECRET_ACCESS_KEY" validate:"required_with=AccessKeyID"`
	// Endpoint overrides the service endpoint, e.g. for DynamoDB Local.
	Endpoint string `mapstructure:"DOCSTORE_AWS_ENDPOINT" validate:"omitempty,url"`
}

// StoreConfig holds the per-store defaults.
type StoreConfig struct {
	Table             string        `mapstructure:"DOCSTORE_TABLE" validate:"required"`
	ConsistentRead    bool          `mapstructure:"DOCSTORE_CONSISTENT_READ"`
	BulkEnabled       bool          `mapstructure:"DOCSTORE_BULK_ENABLED"`
	BulkConcurrency   int           `mapstructure:"DOCSTORE_BULK_CONCURRENCY" validate:"gte=1,lte=256"`
	PageSize          int32         `mapstructure:"DOCSTORE_PAGE_SIZE" validate:"gte=1,lte=1000"`
	BatchRetries      int           `mapstructure:"DOCSTORE_BATCH_RETRIES" validate:"gte=0,lte=20"`
	BatchRetryBackoff time.Duration `mapstructure:"DOCSTORE_BATCH_RETRY_BACKOFF"`
}

var defaults = map[string]any{
	"DOCSTORE_ENV":                   "dev",
	"DOCSTORE_AWS_REGION":            "us-east-1",
	"DOCSTORE_AWS_ACCESS_KEY_ID":     "",
	"DOCSTORE_AWS_SECRET_ACCESS_KEY": "",
	"DOCSTORE_AWS_ENDPOINT":          "",
	"DOCSTORE_TABLE":                 "",
	"DOCSTORE_CONSISTENT_READ":       false,
	"DOCSTORE_BULK_ENABLED":          true,
	"DOCSTORE_BULK_CONCURRENCY":      16,
	"DOCSTORE_PAGE_SIZE":             100,
	"DOCSTORE_BATCH_RETRIES":         5,
	"DOCSTORE_BATCH_RETRY_BACKOFF":   "100ms",
}

func loadDotEnvFiles(paths ...string) {
	seen := make(map[string]struct{})
	for _, path := range paths {
		abs := path
		if resolved, err := filepath.Abs(path); err == nil {
			abs = resolved
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}

		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path) // variables already set take precedence
		}
	}
}

// Load reads the configuration from the environment after loading any of the
// given .env files that exist (".env" when none are given), then validates it.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env", filepath.Join("..", ".env")}
	}
	loadDotEnvFiles(envFiles...)

	v := viper.New()
	v.SetConfigType("env")
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the struct tags of c.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

func (c *Config) IsProd() bool {
	return c.Env == "prod"
}

// HasStaticCredentials reports whether an access key pair is configured.
func (c *AWSConfig) HasStaticCredentials() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}
