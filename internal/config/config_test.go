package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper(env map[string]string) *viper.Viper {
	v := viper.New()
	registerDefaults(v)
	for k, val := range env {
		v.Set(k, val)
	}
	return v
}

func TestBuild_Defaults(t *testing.T) {
	v := newTestViper(nil)
	cfg, err := build(v)
	require.NoError(t, err)
	assert.Equal(t, []string{"us-east-1"}, cfg.AWSBedrockRegions)
	assert.True(t, cfg.AWSBedrockCrossRegionInference)
	assert.Equal(t, "/v1", cfg.OpenAIRoutesPrefix)
	assert.Equal(t, "cl100k_base", cfg.TokensEstimationDefaultEncoding)
}

func TestBuild_RejectsMultipleAPIKeySources(t *testing.T) {
	v := newTestViper(map[string]string{
		"api_key":             "sk-abc",
		"api_key_ssm_parameter": "/prod/key",
	})
	_, err := build(v)
	assert.Error(t, err)
}

func TestBuild_RejectsEmptyRegionList(t *testing.T) {
	v := newTestViper(nil)
	v.Set("aws_bedrock_regions", []string{})
	_, err := build(v)
	assert.Error(t, err)
}

func TestBuild_RejectsInvalidTimezone(t *testing.T) {
	v := newTestViper(map[string]string{"timezone": "Not/AZone"})
	_, err := build(v)
	assert.Error(t, err)
}

func TestBuild_ParsesRegionalBucketsJSON(t *testing.T) {
	v := newTestViper(nil)
	v.Set("aws_s3_regional_buckets", `{"us-east-1":"bucket-a","us-west-2":"bucket-b"}`)
	cfg, err := build(v)
	require.NoError(t, err)
	assert.Equal(t, "bucket-a", cfg.AWSS3RegionalBuckets["us-east-1"])
	assert.Equal(t, "bucket-b", cfg.AWSS3RegionalBuckets["us-west-2"])
}

func TestBuild_ParsesDefaultModelParamsJSON(t *testing.T) {
	v := newTestViper(nil)
	v.Set("default_model_params", `{"anthropic.claude-3-5-sonnet":{"temperature":0.7}}`)
	cfg, err := build(v)
	require.NoError(t, err)
	assert.Equal(t, 0.7, cfg.DefaultModelParams["anthropic.claude-3-5-sonnet"]["temperature"])
}

func TestBuild_RejectsNegativeModelCacheSeconds(t *testing.T) {
	v := newTestViper(nil)
	v.Set("model_cache_seconds", -1)
	_, err := build(v)
	assert.Error(t, err)
}

func TestBuild_GuardrailTraceDefaultsToDisabledString(t *testing.T) {
	v := newTestViper(nil)
	cfg, err := build(v)
	require.NoError(t, err)
	assert.Equal(t, "disabled", cfg.AWSBedrockGuardrailTrace)
}

func TestBuild_GuardrailTraceAcceptsEnabledFull(t *testing.T) {
	v := newTestViper(map[string]string{"aws_bedrock_guardrail_trace": "enabled_full"})
	cfg, err := build(v)
	require.NoError(t, err)
	assert.Equal(t, "enabled_full", cfg.AWSBedrockGuardrailTrace)
}

func TestBuild_WiresObservabilityAndTransportKnobs(t *testing.T) {
	v := newTestViper(map[string]string{
		"aws_s3_accelerate":    "true",
		"tokens_estimation":    "false",
		"log_request_params":   "true",
		"log_client_ip":        "true",
		"strict_input_validation": "true",
		"otel_enabled":         "true",
		"otel_service_name":    "my-gateway",
	})
	cfg, err := build(v)
	require.NoError(t, err)
	assert.True(t, cfg.AWSS3Accelerate)
	assert.False(t, cfg.TokensEstimation)
	assert.True(t, cfg.LogRequestParams)
	assert.True(t, cfg.LogClientIP)
	assert.True(t, cfg.StrictInputValidation)
	assert.True(t, cfg.OTelEnabled)
	assert.Equal(t, "my-gateway", cfg.OTelServiceName)
}
