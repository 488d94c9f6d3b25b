// Package config loads the gateway's typed settings from the environment.
// The teacher (one-api) rolls its own common/env wrapper; this gateway uses
// github.com/spf13/viper's AutomaticEnv/SetDefault instead (grounded in the
// NGOClaw example's config loader), while keeping the teacher's style of one
// doc comment per setting and a single Load() entry point that validates
// cross-field constraints before the server starts.
package config

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/spf13/viper"
)

// Config is the fully resolved, validated set of gateway settings. Every
// field here corresponds to one row of spec.md §6's configuration table.
type Config struct {
	// Credential source for the bearer key this gateway itself requires
	// (internal/credential resolves whichever of these is set).
	APIKey                         string
	APIKeySSMParameter             string
	APIKeySecretsManagerSecret     string
	APIKeySecretsManagerKey        string

	AWSS3Bucket            string
	AWSS3RegionalBuckets   map[string]string
	AWSS3Accelerate        bool

	AWSBedrockRegions                    []string
	AWSBedrockCrossRegionInference       bool
	AWSBedrockCrossRegionInferenceGlobal bool
	AWSBedrockLegacy                     bool
	AWSBedrockMarketplaceAutoSubscribe   bool

	AWSBedrockGuardrailIdentifier string
	AWSBedrockGuardrailVersion    string
	AWSBedrockGuardrailTrace      string

	OpenAIRoutesPrefix string
	Timezone           string
	DefaultModelParams map[string]map[string]any
	DefaultTTSModel    string

	TokensEstimation        bool
	TokensEstimationDefaultEncoding string

	ModelCacheSeconds time.Duration

	LogLevel         string
	LogRequestParams bool
	LogClientIP      bool

	StrictInputValidation bool

	EnableDocs         bool
	EnableRedoc        bool
	EnableOpenAPIJSON  bool
	EnableGzip         bool
	EnableProxyHeaders bool
	CORSAllowOrigins   []string
	TrustedHosts       []string

	SSRFProtectionBlockPrivateNetworks bool

	OTelEnabled        bool
	OTelExporterOTLPEndpoint string
	OTelServiceName    string
}

func registerDefaults(v *viper.Viper) {
	v.SetDefault("aws_bedrock_regions", []string{"us-east-1"})
	v.SetDefault("aws_bedrock_cross_region_inference", true)
	v.SetDefault("aws_bedrock_cross_region_inference_global", false)
	v.SetDefault("aws_bedrock_legacy", false)
	v.SetDefault("aws_bedrock_marketplace_auto_subscribe", false)
	v.SetDefault("aws_bedrock_guardrail_trace", "disabled")
	v.SetDefault("aws_s3_accelerate", false)
	v.SetDefault("openai_routes_prefix", "/v1")
	v.SetDefault("timezone", "UTC")
	v.SetDefault("default_tts_model", "amazon.polly")
	v.SetDefault("tokens_estimation", true)
	v.SetDefault("tokens_estimation_default_encoding", "cl100k_base")
	v.SetDefault("model_cache_seconds", 300)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_request_params", false)
	v.SetDefault("log_client_ip", false)
	v.SetDefault("strict_input_validation", false)
	v.SetDefault("enable_docs", false)
	v.SetDefault("enable_redoc", false)
	v.SetDefault("enable_openapi_json", false)
	v.SetDefault("enable_gzip", true)
	v.SetDefault("enable_proxy_headers", false)
	v.SetDefault("ssrf_protection_block_private_networks", true)
	v.SetDefault("otel_enabled", false)
	v.SetDefault("otel_service_name", "bedrock-gateway")
}

// Load reads the environment into a Config and validates it. Each call
// builds a fresh viper instance, so calling it again re-reads the
// environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	registerDefaults(v)
	return build(v)
}

func build(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		APIKey:                      v.GetString("api_key"),
		APIKeySSMParameter:          v.GetString("api_key_ssm_parameter"),
		APIKeySecretsManagerSecret:  v.GetString("api_key_secretsmanager_secret"),
		APIKeySecretsManagerKey:     v.GetString("api_key_secretsmanager_key"),

		AWSS3Bucket:     v.GetString("aws_s3_bucket"),
		AWSS3Accelerate: v.GetBool("aws_s3_accelerate"),

		AWSBedrockRegions:                    splitNonEmpty(v.GetString("aws_bedrock_regions"), v.GetStringSlice("aws_bedrock_regions")),
		AWSBedrockCrossRegionInference:       v.GetBool("aws_bedrock_cross_region_inference"),
		AWSBedrockCrossRegionInferenceGlobal: v.GetBool("aws_bedrock_cross_region_inference_global"),
		AWSBedrockLegacy:                     v.GetBool("aws_bedrock_legacy"),
		AWSBedrockMarketplaceAutoSubscribe:    v.GetBool("aws_bedrock_marketplace_auto_subscribe"),

		AWSBedrockGuardrailIdentifier: v.GetString("aws_bedrock_guardrail_identifier"),
		AWSBedrockGuardrailVersion:    v.GetString("aws_bedrock_guardrail_version"),
		AWSBedrockGuardrailTrace:      v.GetString("aws_bedrock_guardrail_trace"),

		OpenAIRoutesPrefix: v.GetString("openai_routes_prefix"),
		Timezone:           v.GetString("timezone"),
		DefaultTTSModel:    v.GetString("default_tts_model"),

		TokensEstimation:                v.GetBool("tokens_estimation"),
		TokensEstimationDefaultEncoding: v.GetString("tokens_estimation_default_encoding"),

		ModelCacheSeconds: time.Duration(v.GetInt64("model_cache_seconds")) * time.Second,

		LogLevel:         v.GetString("log_level"),
		LogRequestParams: v.GetBool("log_request_params"),
		LogClientIP:      v.GetBool("log_client_ip"),

		StrictInputValidation: v.GetBool("strict_input_validation"),

		EnableDocs:         v.GetBool("enable_docs"),
		EnableRedoc:        v.GetBool("enable_redoc"),
		EnableOpenAPIJSON:  v.GetBool("enable_openapi_json"),
		EnableGzip:         v.GetBool("enable_gzip"),
		EnableProxyHeaders: v.GetBool("enable_proxy_headers"),
		CORSAllowOrigins:   splitCSV(v.GetString("cors_allow_origins")),
		TrustedHosts:       splitCSV(v.GetString("trusted_hosts")),

		SSRFProtectionBlockPrivateNetworks: v.GetBool("ssrf_protection_block_private_networks"),

		OTelEnabled:              v.GetBool("otel_enabled"),
		OTelExporterOTLPEndpoint: v.GetString("otel_exporter_otlp_endpoint"),
		OTelServiceName:          v.GetString("otel_service_name"),
	}

	if raw := v.GetString("aws_s3_regional_buckets"); raw != "" {
		m := make(map[string]string)
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, errors.Wrap(err, "parse aws_s3_regional_buckets")
		}
		cfg.AWSS3RegionalBuckets = m
	}

	if raw := v.GetString("default_model_params"); raw != "" {
		m := make(map[string]map[string]any)
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, errors.Wrap(err, "parse default_model_params")
		}
		cfg.DefaultModelParams = m
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitNonEmpty prefers a viper-decoded slice (e.g. from a JSON array env
// value) and falls back to CSV-splitting the raw string form, since
// aws_bedrock_regions is commonly set as a plain comma list.
func splitNonEmpty(raw string, decoded []string) []string {
	if len(decoded) > 0 {
		return decoded
	}
	return splitCSV(raw)
}

func (c *Config) validate() error {
	sources := 0
	if c.APIKey != "" {
		sources++
	}
	if c.APIKeySSMParameter != "" {
		sources++
	}
	if c.APIKeySecretsManagerSecret != "" {
		sources++
	}
	if sources > 1 {
		return errors.New("at most one of api_key, api_key_ssm_parameter, api_key_secretsmanager_secret may be set")
	}

	if len(c.AWSBedrockRegions) == 0 {
		return errors.New("aws_bedrock_regions must name at least one region")
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return errors.Wrapf(err, "invalid timezone %q", c.Timezone)
	}

	if c.ModelCacheSeconds < 0 {
		return errors.New("model_cache_seconds must not be negative")
	}

	return nil
}
