// Package catalog implements the model catalog (C4): a single-flight,
// TTL-gated, multi-region snapshot of which Bedrock models this deployment
// can actually use, plus the per-model capability table that resolves
// spec.md §9's "reject unsupported parameters" decision. Grounded on the
// teacher's registry pattern (relay/adaptor/aws/registry.go's AwsModelType
// enum + init()-populated map) generalized from a static compile-time table
// into a live, refreshable snapshot fanned out across regions, and on
// relay/adaptor/aws/adaptor.go's ProviderCapabilities/GetModelCapabilities
// for the capability-table shape.
package catalog

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrock/types"
	"golang.org/x/sync/singleflight"

	"github.com/relaybridge/bedrock-gateway/internal/awsclients"
)

// ModelDescriptor is an indexed, immutable catalog entry.
type ModelDescriptor struct {
	ID                  string
	Name                string
	Provider            string
	Region              string
	Service             string
	InputModalities     []string
	OutputModalities    []string
	ResponseStreaming   bool
	Legacy              bool
	InferenceProfileID  string
}

// EffectiveRoutingID returns the id the gateway should actually invoke:
// the inference profile id when cross-region inference is enabled and one
// is set, otherwise the plain model id (spec.md §3).
func (d ModelDescriptor) EffectiveRoutingID(crossRegionEnabled bool) string {
	if crossRegionEnabled && d.InferenceProfileID != "" {
		return d.InferenceProfileID
	}
	return d.ID
}

// Capabilities describes which inference-request fields a model family
// accepts, used to reject unsupported parameters per spec.md §9 decision 1
// instead of silently dropping or forwarding them.
type Capabilities struct {
	Tools            bool
	Thinking         bool
	ResponseFormat   bool
	Stop             bool
	Logprobs         bool
	TopK             bool
	AnthropicBeta    bool
}

// unavailabilityReport records, per candidate model and region, why it was
// excluded from the latest snapshot — surfaced for operational debugging,
// never returned to API callers directly.
type unavailabilityReport map[string]map[string]string // model id -> region -> reason

type snapshot struct {
	foundation map[string]ModelDescriptor
	extra      map[string]ModelDescriptor
	all        map[string]ModelDescriptor
	byInputModality  map[string]map[string]bool
	byOutputModality map[string]map[string]bool
	unavailable      unavailabilityReport
}

func emptySnapshot() *snapshot {
	return &snapshot{
		foundation:       make(map[string]ModelDescriptor),
		extra:            make(map[string]ModelDescriptor),
		all:              make(map[string]ModelDescriptor),
		byInputModality:  make(map[string]map[string]bool),
		byOutputModality: make(map[string]map[string]bool),
		unavailable:      make(unavailabilityReport),
	}
}

// Catalog is the process-scoped singleton model catalog.
type Catalog struct {
	pool               *awsclients.Pool
	legacyEnabled      bool
	crossRegionEnabled bool
	crossRegionGlobal  bool
	marketplaceAuto    bool
	ttl                time.Duration
	deprecations       map[string]string // id -> "use X instead"

	mu               sync.RWMutex
	current          *snapshot
	nextRefreshAfter time.Time

	flight singleflight.Group
}

// Options configures a new Catalog.
type Options struct {
	Pool               *awsclients.Pool
	LegacyEnabled      bool
	CrossRegionEnabled bool
	CrossRegionGlobal  bool
	MarketplaceAuto    bool
	TTL                time.Duration
	Deprecations       map[string]string
}

// New constructs a Catalog with an empty snapshot; callers should call
// Refresh once before serving traffic.
func New(opts Options) *Catalog {
	return &Catalog{
		pool:               opts.Pool,
		legacyEnabled:       opts.LegacyEnabled,
		crossRegionEnabled:  opts.CrossRegionEnabled,
		crossRegionGlobal:   opts.CrossRegionGlobal,
		marketplaceAuto:     opts.MarketplaceAuto,
		ttl:                 opts.TTL,
		deprecations:        opts.Deprecations,
		current:             emptySnapshot(),
	}
}

// RegisterExtra adds a non-foundation-model descriptor (TTS/STT/etc) to the
// unified view. Extra modality sets are merged, never overwritten, per spec.md §3's
// ModelCatalog invariant.
func (c *Catalog) RegisterExtra(d ModelDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := cloneSnapshot(c.current)
	next.extra[d.ID] = d
	next.all[d.ID] = d
	indexModalities(next, d)
	c.current = next
}

func cloneSnapshot(s *snapshot) *snapshot {
	n := emptySnapshot()
	for k, v := range s.foundation {
		n.foundation[k] = v
	}
	for k, v := range s.extra {
		n.extra[k] = v
	}
	for k, v := range s.all {
		n.all[k] = v
	}
	for m, ids := range s.byInputModality {
		n.byInputModality[m] = cloneSet(ids)
	}
	for m, ids := range s.byOutputModality {
		n.byOutputModality[m] = cloneSet(ids)
	}
	for id, regions := range s.unavailable {
		rc := make(map[string]string, len(regions))
		for r, reason := range regions {
			rc[r] = reason
		}
		n.unavailable[id] = rc
	}
	return n
}

func cloneSet(s map[string]bool) map[string]bool {
	n := make(map[string]bool, len(s))
	for k, v := range s {
		n[k] = v
	}
	return n
}

func indexModalities(s *snapshot, d ModelDescriptor) {
	for _, m := range d.InputModalities {
		m = strings.ToUpper(m)
		if s.byInputModality[m] == nil {
			s.byInputModality[m] = make(map[string]bool)
		}
		s.byInputModality[m][d.ID] = true
	}
	for _, m := range d.OutputModalities {
		m = strings.ToUpper(m)
		if s.byOutputModality[m] == nil {
			s.byOutputModality[m] = make(map[string]bool)
		}
		s.byOutputModality[m][d.ID] = true
	}
}

// Refresh runs the single-flight, TTL-gated refresh algorithm of spec.md
// §4.3. A no-op call when the TTL has not yet elapsed is cheap (a single
// RLock + time comparison).
func (c *Catalog) Refresh(ctx context.Context, now time.Time) error {
	c.mu.RLock()
	stale := now.Before(c.nextRefreshAfter) == false
	c.mu.RUnlock()
	if !stale {
		return nil
	}

	_, err, _ := c.flight.Do("refresh", func() (any, error) {
		c.mu.RLock()
		recheck := now.Before(c.nextRefreshAfter)
		c.mu.RUnlock()
		if recheck {
			return nil, nil
		}
		return nil, c.doRefresh(ctx, now)
	})
	return err
}

type regionResult struct {
	region      string
	foundation  []bedrocktypes.FoundationModelSummary
	provisioned []bedrocktypes.ProvisionedModelSummary
	profiles    []bedrocktypes.InferenceProfileSummary
	err         error
}

func (c *Catalog) doRefresh(ctx context.Context, now time.Time) error {
	regions := c.pool.Regions(awsclients.ServiceBedrockControl)
	results := make([]regionResult, len(regions))

	var wg sync.WaitGroup
	for i, region := range regions {
		wg.Add(1)
		go func(i int, region string) {
			defer wg.Done()
			results[i] = c.fetchRegion(ctx, region)
		}(i, region)
	}
	wg.Wait()

	next := emptySnapshot()
	for _, r := range results {
		if r.err != nil {
			next.unavailable.record("*", r.region, r.err.Error())
			continue
		}
		c.indexRegion(ctx, next, r)
	}

	// Preserve registered extras across the refresh, per the "merged, not
	// overwritten" invariant in spec.md §3.
	c.mu.Lock()
	for id, d := range c.current.extra {
		next.extra[id] = d
		next.all[id] = d
		indexModalities(next, d)
	}
	if !reflect.DeepEqual(next, c.current) {
		c.current = next
	}
	c.nextRefreshAfter = now.Add(c.ttl)
	c.mu.Unlock()
	return nil
}

func (c *Catalog) fetchRegion(ctx context.Context, region string) regionResult {
	client, err := awsclients.Get[*bedrock.Client](c.pool, awsclients.ServiceBedrockControl, region)
	if err != nil {
		return regionResult{region: region, err: err}
	}

	var wg sync.WaitGroup
	var foundation []bedrocktypes.FoundationModelSummary
	var provisioned []bedrocktypes.ProvisionedModelSummary
	var profiles []bedrocktypes.InferenceProfileSummary
	var fErr, pErr, iErr error

	wg.Add(3)
	go func() {
		defer wg.Done()
		out, err := client.ListFoundationModels(ctx, &bedrock.ListFoundationModelsInput{})
		if err != nil {
			fErr = err
			return
		}
		foundation = out.ModelSummaries
	}()
	go func() {
		defer wg.Done()
		out, err := client.ListProvisionedModelThroughputs(ctx, &bedrock.ListProvisionedModelThroughputsInput{})
		if err != nil {
			pErr = err
			return
		}
		provisioned = out.ProvisionedModelSummaries
	}()
	go func() {
		defer wg.Done()
		out, err := client.ListInferenceProfiles(ctx, &bedrock.ListInferenceProfilesInput{})
		if err != nil {
			iErr = err
			return
		}
		profiles = out.InferenceProfileSummaries
	}()
	wg.Wait()

	if fErr != nil {
		return regionResult{region: region, err: errors.Wrap(fErr, "list foundation models")}
	}
	// Provisioned-throughput and inference-profile listing are best-effort:
	// a region lacking either permission still yields usable on-demand models.
	_ = pErr
	_ = iErr

	return regionResult{region: region, foundation: foundation, provisioned: provisioned, profiles: profiles}
}

func (c *Catalog) indexRegion(ctx context.Context, next *snapshot, r regionResult) {
	provisionedIDs := make(map[string]bool, len(r.provisioned))
	for _, p := range r.provisioned {
		if p.FoundationModelArn != nil {
			provisionedIDs[*p.FoundationModelArn] = true
		}
	}

	profileFor := c.selectProfiles(r.profiles)

	client, err := awsclients.Get[*bedrock.Client](c.pool, awsclients.ServiceBedrockControl, r.region)
	if err != nil {
		next.unavailable.record("*", r.region, "resolve bedrock control client: "+err.Error())
		return
	}

	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, m := range r.foundation {
		if m.ModelId == nil {
			continue
		}
		id := *m.ModelId

		legacy := m.ModelLifecycle != nil && m.ModelLifecycle.Status == bedrocktypes.FoundationModelLifecycleStatusLegacy
		if legacy && !c.legacyEnabled {
			next.unavailable.record(id, r.region, "legacy model, legacy disabled")
			continue
		}

		onDemand := false
		for _, it := range m.InferenceTypesSupported {
			if it == bedrocktypes.InferenceTypeOnDemand || it == bedrocktypes.InferenceTypeInferenceProfile {
				onDemand = true
			}
		}
		viaProvisioned := m.ModelArn != nil && provisionedIDs[*m.ModelArn]
		if !onDemand && !viaProvisioned {
			next.unavailable.record(id, r.region, "not supported on-demand and no provisioned throughput")
			continue
		}

		wg.Add(1)
		go func(m bedrocktypes.FoundationModelSummary, id string, legacy bool) {
			defer wg.Done()

			available, reason := c.checkAvailability(ctx, client, id)

			mu.Lock()
			defer mu.Unlock()

			if !available {
				next.unavailable.record(id, r.region, reason)
				return
			}

			d := ModelDescriptor{
				ID:                 id,
				Name:               derefStr(m.ModelName),
				Provider:           derefStr(m.ProviderName),
				Region:             r.region,
				Service:            "bedrock",
				InputModalities:    modalityStrings(m.InputModalities),
				OutputModalities:   modalityStrings(m.OutputModalities),
				ResponseStreaming:  m.ResponseStreamingSupported != nil && *m.ResponseStreamingSupported,
				Legacy:             legacy,
				InferenceProfileID: profileFor[id],
			}

			if existing, ok := next.foundation[id]; ok && existing.Region != "" {
				// Keep the first region indexed; the pool lists regions in no
				// particular order, so which region wins is not defined.
				return
			}
			next.foundation[id] = d
			next.all[id] = d
			indexModalities(next, d)
		}(m, id, legacy)
	}
	wg.Wait()
}

// checkAvailability runs spec.md §4.3 step 5's per-candidate availability
// query (GetFoundationModelAvailability), gating catalog inclusion on
// authorization, entitlement, region availability, and — unless
// aws_bedrock_marketplace_auto_subscribe is set — an accepted marketplace
// agreement. Grounded on the original implementation's _filter_model
// (stdapi/models/__init__.py), which checks exactly these four fields and
// treats marketplace auto-subscribe as a bypass for the agreement check
// alone.
func (c *Catalog) checkAvailability(ctx context.Context, client *bedrock.Client, modelID string) (available bool, reason string) {
	out, err := client.GetFoundationModelAvailability(ctx, &bedrock.GetFoundationModelAvailabilityInput{
		ModelId: aws.String(modelID),
	})
	if err != nil {
		return false, "availability check failed: " + err.Error()
	}

	var reasons []string
	if out.AuthorizationStatus != bedrocktypes.AuthorizationStatusAuthorized {
		reasons = append(reasons, "unauthorized")
	}
	if out.EntitlementAvailability != bedrocktypes.EntitlementAvailabilityAvailable {
		reasons = append(reasons, "unentitled")
	}
	if out.RegionAvailability != bedrocktypes.RegionAvailabilityAvailable {
		reasons = append(reasons, "unavailable")
	}
	if !c.marketplaceAuto {
		status := bedrocktypes.AgreementStatus("")
		if out.AgreementAvailability != nil {
			status = out.AgreementAvailability.Status
		}
		if status != bedrocktypes.AgreementStatusAvailable {
			reasons = append(reasons, "no_agreement")
		}
	}

	if len(reasons) > 0 {
		return false, strings.Join(reasons, ",")
	}
	return true, ""
}

// selectProfiles filters cross-region inference profiles per spec.md §4.3
// step 6: prefer "global" profiles when global cross-region is enabled,
// otherwise pick any regional profile. Returns a map from the underlying
// foundation model id to the chosen profile id.
func (c *Catalog) selectProfiles(profiles []bedrocktypes.InferenceProfileSummary) map[string]string {
	out := make(map[string]string)
	if !c.crossRegionEnabled {
		return out
	}
	for _, p := range profiles {
		if p.InferenceProfileId == nil {
			continue
		}
		isGlobal := strings.HasPrefix(strings.ToLower(*p.InferenceProfileId), "global.")
		if isGlobal && !c.crossRegionGlobal {
			continue
		}
		for _, m := range p.Models {
			if m.ModelArn == nil {
				continue
			}
			modelID := arnToModelID(*m.ModelArn)
			if _, ok := out[modelID]; ok && !isGlobal {
				continue
			}
			out[modelID] = *p.InferenceProfileId
		}
	}
	return out
}

func arnToModelID(arn string) string {
	idx := strings.LastIndex(arn, "/")
	if idx == -1 {
		return arn
	}
	return arn[idx+1:]
}

func modalityStrings(ms []bedrocktypes.ModelModality) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, strings.ToUpper(string(m)))
	}
	return out
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r unavailabilityReport) record(id, region, reason string) {
	if r[id] == nil {
		r[id] = make(map[string]string)
	}
	r[id][region] = reason
}

// ErrModelNotFound is returned by Validate/Get when a model id is unknown
// even after an opportunistic refresh.
var ErrModelNotFound = errors.New("model not found")

// ErrModalityMismatch is returned by Validate when a model exists but lacks
// a required input/output modality.
type ErrModalityMismatch struct {
	Modality    string
	MatchingIDs []string
}

func (e *ErrModalityMismatch) Error() string {
	return "no model matches the required modality " + e.Modality
}

// Get returns the descriptor for id, or ErrModelNotFound.
func (c *Catalog) Get(id string) (ModelDescriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.current.all[id]
	if !ok {
		return ModelDescriptor{}, ErrModelNotFound
	}
	return d, nil
}

// Validate implements spec.md §4.3's validate operation: a missing id
// triggers one opportunistic refresh before reporting not-found; a modality
// mismatch reports the set of ids that do match.
func (c *Catalog) Validate(ctx context.Context, id, requiredInput, requiredOutput string, bedrockOnly bool) (ModelDescriptor, string, error) {
	d, err := c.Get(id)
	if errors.Is(err, ErrModelNotFound) {
		_ = c.Refresh(ctx, time.Now())
		d, err = c.Get(id)
	}
	if err != nil {
		return ModelDescriptor{}, "", err
	}

	if bedrockOnly && d.Service != "bedrock" {
		return ModelDescriptor{}, "", errors.Errorf("model %q is not served by bedrock", id)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if requiredInput != "" && !c.current.byInputModality[strings.ToUpper(requiredInput)][id] {
		return ModelDescriptor{}, "", &ErrModalityMismatch{
			Modality:    requiredInput,
			MatchingIDs: setKeys(c.current.byInputModality[strings.ToUpper(requiredInput)]),
		}
	}
	if requiredOutput != "" && !c.current.byOutputModality[strings.ToUpper(requiredOutput)][id] {
		return ModelDescriptor{}, "", &ErrModalityMismatch{
			Modality:    requiredOutput,
			MatchingIDs: setKeys(c.current.byOutputModality[strings.ToUpper(requiredOutput)]),
		}
	}

	hint := c.deprecations[id]
	return d, hint, nil
}

func setKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ListForResponse returns every catalog entry sorted by id, for the
// GET /v1/models OpenAI payload.
func (c *Catalog) ListForResponse() []ModelDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ModelDescriptor, 0, len(c.current.all))
	for _, d := range c.current.all {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
