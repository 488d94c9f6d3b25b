// Command gateway starts the Bedrock-backed OpenAI-compatible HTTP API.
// It follows the teacher's startup idiom (main.go: init global state, wire
// a gin.New() router with a Laisky/gin-middlewares logger, call Run) pruned
// to what this gateway actually needs: no SQL/Redis/session store, since the
// gateway is a stateless translation layer rather than a multi-tenant
// billing system.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/Laisky/zap"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	"github.com/aws/aws-sdk-go-v2/service/translate"

	"github.com/relaybridge/bedrock-gateway/internal/adapters/embeddings"
	"github.com/relaybridge/bedrock-gateway/internal/adapters/images"
	"github.com/relaybridge/bedrock-gateway/internal/adapters/speech"
	"github.com/relaybridge/bedrock-gateway/internal/adapters/transcription"
	"github.com/relaybridge/bedrock-gateway/internal/adapters/translation"
	"github.com/relaybridge/bedrock-gateway/internal/asyncjob"
	"github.com/relaybridge/bedrock-gateway/internal/awsclients"
	"github.com/relaybridge/bedrock-gateway/internal/buildinfo"
	"github.com/relaybridge/bedrock-gateway/internal/catalog"
	"github.com/relaybridge/bedrock-gateway/internal/chat"
	"github.com/relaybridge/bedrock-gateway/internal/config"
	"github.com/relaybridge/bedrock-gateway/internal/credential"
	"github.com/relaybridge/bedrock-gateway/internal/httpapi"
	"github.com/relaybridge/bedrock-gateway/internal/media"
	"github.com/relaybridge/bedrock-gateway/internal/obslog"
	"github.com/relaybridge/bedrock-gateway/internal/reqctx"
	"github.com/relaybridge/bedrock-gateway/internal/tracing"
)

func main() {
	ctx := context.Background()

	logger, err := glog.NewConsoleWithName(buildinfo.ServerName, glog.LevelInfo)
	if err != nil {
		panic(err)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	_ = logger.ChangeLevel(cfg.LogLevel)
	obslog.SetLevel(cfg.LogLevel)
	if loc, err := time.LoadLocation(cfg.Timezone); err == nil {
		obslog.SetLocation(loc)
		reqctx.SetLocation(loc)
	}
	chat.SetEstimationEnabled(cfg.TokensEstimation)
	chat.SetDefaultEncoding(cfg.TokensEstimationDefaultEncoding)

	shutdownTracing, err := tracing.Init(ctx, tracing.Options{
		Enabled:          cfg.OTelEnabled,
		ServiceName:      cfg.OTelServiceName,
		ExporterEndpoint: cfg.OTelExporterOTLPEndpoint,
	})
	if err != nil {
		logger.Fatal("initialize tracing", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown error", zap.Error(err))
		}
	}()

	homeRegion := cfg.AWSBedrockRegions[0]
	pool, err := awsclients.Open(ctx, cfg.AWSBedrockRegions, map[awsclients.Service]string{
		awsclients.ServiceS3:             homeRegion,
		awsclients.ServiceSecretsManager: homeRegion,
		awsclients.ServiceSSM:            homeRegion,
		awsclients.ServicePolly:          homeRegion,
		awsclients.ServiceTranscribe:     homeRegion,
		awsclients.ServiceTranslate:      homeRegion,
		awsclients.ServiceComprehend:     homeRegion,
	}, awsclients.Options{S3Accelerate: cfg.AWSS3Accelerate})
	if err != nil {
		logger.Fatal("open aws client pool", zap.Error(err))
	}
	defer pool.Close()

	credStore, armed, err := credential.Initialize(ctx, credentialSource(logger, cfg, pool, homeRegion))
	if err != nil {
		logger.Fatal("initialize credential store", zap.Error(err))
	}
	if !armed {
		logger.Warn("no API key source configured; authentication is disabled")
	}

	cat := catalog.New(catalog.Options{
		Pool:               pool,
		LegacyEnabled:      cfg.AWSBedrockLegacy,
		CrossRegionEnabled: cfg.AWSBedrockCrossRegionInference,
		CrossRegionGlobal:  cfg.AWSBedrockCrossRegionInferenceGlobal,
		MarketplaceAuto:    cfg.AWSBedrockMarketplaceAutoSubscribe,
		TTL:                cfg.ModelCacheSeconds,
	})
	if err := cat.Refresh(ctx, time.Now()); err != nil {
		logger.Warn("initial catalog refresh failed", zap.Error(err))
	}

	fetcher := media.NewFetcher(cfg.SSRFProtectionBlockPrivateNetworks)

	s3Client, err := awsclients.Get[*s3.Client](pool, awsclients.ServiceS3, homeRegion)
	if err != nil {
		logger.Fatal("resolve s3 client", zap.Error(err))
	}
	bedrockClient, err := awsclients.Get[*bedrockruntime.Client](pool, awsclients.ServiceBedrockRuntime, homeRegion)
	if err != nil {
		logger.Fatal("resolve bedrock runtime client", zap.Error(err))
	}
	pollyClient, err := awsclients.Get[*polly.Client](pool, awsclients.ServicePolly, homeRegion)
	if err != nil {
		logger.Fatal("resolve polly client", zap.Error(err))
	}
	comprehendClient, err := awsclients.Get[*comprehend.Client](pool, awsclients.ServiceComprehend, homeRegion)
	if err != nil {
		logger.Fatal("resolve comprehend client", zap.Error(err))
	}
	transcribeClient, err := awsclients.Get[*transcribe.Client](pool, awsclients.ServiceTranscribe, homeRegion)
	if err != nil {
		logger.Fatal("resolve transcribe client", zap.Error(err))
	}
	translateClient, err := awsclients.Get[*translate.Client](pool, awsclients.ServiceTranslate, homeRegion)
	if err != nil {
		logger.Fatal("resolve translate client", zap.Error(err))
	}

	bucketResolver := asyncjob.BucketResolver{
		RegionalBuckets: cfg.AWSS3RegionalBuckets,
		PrimaryBucket:   cfg.AWSS3Bucket,
	}
	asyncRunner := asyncjob.Runner{Bedrock: bedrockClient, S3: s3Client, Region: homeRegion}

	embeddingsAdapter := embeddings.New(bedrockClient, s3Client, asyncRunner, bucketResolver, homeRegion, fetcher,
		"amazon.titan-embed", "cohere.embed")
	imagesAdapter := images.New(bedrockClient, s3Client, cfg.AWSS3Bucket,
		"amazon.titan-image", "amazon.nova-canvas")
	speechAdapter := speech.New(pollyClient, comprehendClient, "amazon.polly")
	transcriptionAdapter := transcription.New(transcribeClient, s3Client, cfg.AWSS3Bucket, cfg.OpenAIRoutesPrefix,
		"amazon.transcribe")
	translationAdapter := translation.New(transcriptionAdapter, translateClient, "amazon.translate")

	deps := httpapi.Deps{
		Credentials: credStore,
		Catalog:     cat,
		Chat: &httpapi.ChatHandler{
			Pool:               pool,
			Catalog:            cat,
			Fetcher:            fetcher,
			DefaultModelParams: cfg.DefaultModelParams,
			CrossRegionEnabled: cfg.AWSBedrockCrossRegionInference,
			DefaultGuardrail: chat.GuardrailDefaults{
				Identifier: cfg.AWSBedrockGuardrailIdentifier,
				Version:    cfg.AWSBedrockGuardrailVersion,
				Trace:      cfg.AWSBedrockGuardrailTrace,
			},
			Speech: speechAdapter,
		},
		Embeddings:    &httpapi.EmbeddingsHandler{Catalog: cat, Adapter: embeddingsAdapter},
		Images:        &httpapi.ImagesHandler{Catalog: cat, Adapter: imagesAdapter},
		Speech:        &httpapi.SpeechHandler{Catalog: cat, Adapter: speechAdapter, DefaultModel: cfg.DefaultTTSModel},
		Transcription: &httpapi.TranscriptionHandler{Catalog: cat, Adapter: transcriptionAdapter},
		Translation:   &httpapi.TranslationHandler{Catalog: cat, Adapter: translationAdapter},
		RoutesPrefix:  cfg.OpenAIRoutesPrefix,

		LogRequestParams: cfg.LogRequestParams,
		LogClientIP:      cfg.LogClientIP,

		StrictInputValidation: cfg.StrictInputValidation,
	}

	router := httpapi.NewRouter(deps, logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	addr := ":" + port

	srv := &http.Server{Addr: addr, Handler: router}
	obslog.Start(addr)
	logger.Info("gateway started", zap.String("address", "http://localhost"+addr))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("run http server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown error", zap.Error(err))
	}
	obslog.Stop("signal")
}

// credentialSource resolves which credential.Source to use from the
// configured api_key/api_key_ssm_parameter/api_key_secretsmanager_secret
// settings; config.validate() already guarantees at most one is set.
func credentialSource(logger glog.Logger, cfg *config.Config, pool *awsclients.Pool, region string) credential.Source {
	switch {
	case cfg.APIKey != "":
		return credential.InlineSource(cfg.APIKey)
	case cfg.APIKeySSMParameter != "":
		client, err := awsclients.Get[*ssm.Client](pool, awsclients.ServiceSSM, region)
		if err != nil {
			logger.Fatal("resolve ssm client", zap.Error(err))
		}
		return credential.SSMSource{Client: client, Parameter: cfg.APIKeySSMParameter}
	case cfg.APIKeySecretsManagerSecret != "":
		client, err := awsclients.Get[*secretsmanager.Client](pool, awsclients.ServiceSecretsManager, region)
		if err != nil {
			logger.Fatal("resolve secretsmanager client", zap.Error(err))
		}
		return credential.SecretsManagerSource{
			Client: client, SecretID: cfg.APIKeySecretsManagerSecret, Key: cfg.APIKeySecretsManagerKey,
		}
	default:
		return nil
	}
}
