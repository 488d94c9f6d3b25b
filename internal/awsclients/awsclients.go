// Package awsclients is the provider client pool (C3): a map of
// service-name -> region -> client, opened once at startup with adaptive
// retry and a bounded connection pool, matching the teacher's pattern of
// building one aws-sdk-go-v2 client per backing service
// (relay/adaptor/aws/adaptor.go) generalized here to every AWS service this
// gateway depends on and to every configured Bedrock region.
package awsclients

import (
	"context"
	"net/http"
	"sync"

	"github.com/Laisky/errors/v2"
	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	"github.com/aws/aws-sdk-go-v2/service/translate"
)

const (
	maxRetryAttempts  = 10
	maxConnsPerClient = 50
)

// Service names the pool indexes by, matching spec.md §4.2's "inference
// service in every configured region, plus TTS/STT/translate/object-store/
// metadata in their home regions".
type Service string

const (
	ServiceBedrockRuntime   Service = "bedrockruntime"
	ServiceBedrockControl   Service = "bedrock"
	ServiceS3               Service = "s3"
	ServiceSecretsManager   Service = "secretsmanager"
	ServiceSSM              Service = "ssm"
	ServicePolly            Service = "polly"
	ServiceTranscribe       Service = "transcribe"
	ServiceTranslate        Service = "translate"
	ServiceComprehend       Service = "comprehend"
)

// Pool is the process-scoped singleton of regional AWS clients.
type Pool struct {
	mu      sync.RWMutex
	clients map[Service]map[string]any
	order   []poolKey // acquisition order, for reverse-order teardown
}

type poolKey struct {
	service Service
	region  string
}

// Options configures Open beyond the region plan, with fields that only
// apply to a single service.
type Options struct {
	// S3Accelerate enables the S3 transfer-acceleration endpoint, used for
	// presigned download URLs per spec.md §6's aws_s3_accelerate knob.
	S3Accelerate bool
}

// Open builds clients for ServiceBedrockRuntime and ServiceBedrockControl in
// every region listed in bedrockRegions, plus one client per homeRegion
// service for the remaining services. Each homeRegion entry whose value is
// "" is skipped (that service is not needed by this deployment).
func Open(ctx context.Context, bedrockRegions []string, homeRegions map[Service]string, opts Options) (*Pool, error) {
	p := &Pool{clients: make(map[Service]map[string]any)}

	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxConnsPerHost:     maxConnsPerClient,
			MaxIdleConnsPerHost: maxConnsPerClient,
		},
	}

	loadRegional := func(region string) (awssdk.Config, error) {
		return awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
			awsconfig.WithHTTPClient(httpClient),
			awsconfig.WithRetryer(func() awssdk.Retryer {
				return retry.AddWithMaxAttempts(retry.NewAdaptiveMode(), maxRetryAttempts)
			}),
		)
	}

	for _, region := range bedrockRegions {
		cfg, err := loadRegional(region)
		if err != nil {
			return nil, errors.Wrapf(err, "load aws config for region %q", region)
		}
		p.put(ServiceBedrockRuntime, region, bedrockruntime.NewFromConfig(cfg))
		p.put(ServiceBedrockControl, region, bedrock.NewFromConfig(cfg))
	}

	for svc, region := range homeRegions {
		if region == "" {
			continue
		}
		cfg, err := loadRegional(region)
		if err != nil {
			return nil, errors.Wrapf(err, "load aws config for %s in region %q", svc, region)
		}
		switch svc {
		case ServiceS3:
			p.put(svc, region, s3.NewFromConfig(cfg, func(o *s3.Options) {
				o.UseAccelerate = opts.S3Accelerate
			}))
		case ServiceSecretsManager:
			p.put(svc, region, secretsmanager.NewFromConfig(cfg))
		case ServiceSSM:
			p.put(svc, region, ssm.NewFromConfig(cfg))
		case ServicePolly:
			p.put(svc, region, polly.NewFromConfig(cfg))
		case ServiceTranscribe:
			p.put(svc, region, transcribe.NewFromConfig(cfg))
		case ServiceTranslate:
			p.put(svc, region, translate.NewFromConfig(cfg))
		case ServiceComprehend:
			p.put(svc, region, comprehend.NewFromConfig(cfg))
		default:
			return nil, errors.Errorf("awsclients: unknown service %q", svc)
		}
	}

	return p, nil
}

func (p *Pool) put(svc Service, region string, client any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clients[svc] == nil {
		p.clients[svc] = make(map[string]any)
	}
	p.clients[svc][region] = client
	p.order = append(p.order, poolKey{svc, region})
}

// Get returns the pooled client for (service, region). When only one region
// is pooled for the service, region is ignored, matching spec.md §4.2.
func Get[T any](p *Pool, svc Service, region string) (T, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var zero T
	regions, ok := p.clients[svc]
	if !ok {
		return zero, errors.Errorf("awsclients: no clients pooled for service %q", svc)
	}
	if len(regions) == 1 {
		for _, c := range regions {
			typed, ok := c.(T)
			if !ok {
				return zero, errors.Errorf("awsclients: client for %q has unexpected type", svc)
			}
			return typed, nil
		}
	}
	c, ok := regions[region]
	if !ok {
		return zero, errors.Errorf("awsclients: no client pooled for service %q region %q", svc, region)
	}
	typed, ok := c.(T)
	if !ok {
		return zero, errors.Errorf("awsclients: client for %q region %q has unexpected type", svc, region)
	}
	return typed, nil
}

// Regions reports which regions are pooled for a service, in no particular
// order, used by the catalog to fan out region-scoped discovery calls.
func (p *Pool) Regions(svc Service) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	regions := make([]string, 0, len(p.clients[svc]))
	for r := range p.clients[svc] {
		regions = append(regions, r)
	}
	return regions
}

// Close releases pooled clients in reverse acquisition order. The AWS SDK v2
// clients hold no explicit handles to close, so this mainly exists to make
// teardown ordering explicit and to support future clients that do.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.order) - 1; i >= 0; i-- {
		k := p.order[i]
		delete(p.clients[k.service], k.region)
	}
	p.order = nil
}
