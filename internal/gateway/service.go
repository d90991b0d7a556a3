// Package gateway ties resolution, balancing and the provider registry into
// the dispatch path behind the HTTP handlers.
package gateway

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/proapi/proapi/internal/analytics"
	"github.com/proapi/proapi/internal/balance"
	"github.com/proapi/proapi/internal/config"
	"github.com/proapi/proapi/internal/httpclient"
	"github.com/proapi/proapi/internal/routing"
	"github.com/proapi/proapi/internal/store/cache"
	"github.com/proapi/proapi/internal/store/model"
	"github.com/proapi/proapi/internal/upstream"
	"github.com/proapi/proapi/pkg/api"
)

const cacheTTL = 30 * time.Minute

// Service is the dispatch core: it resolves a (token, model) pair to a
// provider entry, forwards the exchange, and records the outcome.
type Service struct {
	logger    *zap.Logger
	snapshots *routing.Holder
	balancers *balance.Cache
	registry  *registry
	ingestor  analytics.Ingestor
	cache     cache.Service // nil disables response caching
}

func NewService(logger *zap.Logger, holder *routing.Holder, ingestor analytics.Ingestor, respCache cache.Service, client httpclient.HTTPClient) *Service {
	return &Service{
		logger:    logger,
		snapshots: holder,
		balancers: balance.NewCache(),
		registry:  newRegistry(client),
		ingestor:  ingestor,
		cache:     respCache,
	}
}

// Reload swaps in a fresh routing snapshot and clears all derived state so
// no stale provider list is ever served.
func (s *Service) Reload(cfg *config.Config) {
	s.snapshots.Swap(routing.NewSnapshot(cfg))
	s.balancers.Reset()
	s.registry.reset()
	s.logger.Info("routing table reloaded",
		zap.Int("provider_entries", len(cfg.Providers)),
		zap.Int("tokens", len(cfg.Tokens)))
}

// Snapshot returns the live routing table.
func (s *Service) Snapshot() *routing.Snapshot {
	return s.snapshots.Load()
}

// ListModels returns the models visible to a token.
func (s *Service) ListModels(token string) []api.Model {
	names := s.snapshots.Load().ListModels(token)
	models := make([]api.Model, 0, len(names))
	for _, name := range names {
		models = append(models, api.Model{ID: name, Object: "model", OwnedBy: "proapi"})
	}
	return models
}

// pick resolves and load-balances one request to a concrete provider entry.
func (s *Service) pick(token string, req *api.ChatRequest) (upstream.Provider, upstream.Call, config.ProviderEntry, error) {
	entries, resolvedModel, err := s.snapshots.Load().Resolve(token, req.Model)
	if err != nil {
		return nil, upstream.Call{}, config.ProviderEntry{}, err
	}

	balancer := s.balancers.Get(balance.Key{Token: token, Model: resolvedModel}, entries)
	entry, ok := balancer.Next()
	if !ok {
		return nil, upstream.Call{}, config.ProviderEntry{}, api.NoChannelError(resolvedModel)
	}

	provider, err := s.registry.providerFor(entry)
	if err != nil {
		return nil, upstream.Call{}, config.ProviderEntry{}, api.ConfigError("provider construction failed", err)
	}

	call := upstream.Call{
		Body:          req,
		UpstreamModel: entry.MappedModel,
		ClientModel:   resolvedModel,
	}
	return provider, call, entry, nil
}

// Chat performs one buffered exchange.
func (s *Service) Chat(ctx context.Context, token, requestID string, req *api.ChatRequest) (*api.ChatResponse, error) {
	provider, call, entry, err := s.pick(token, req)
	if err != nil {
		return nil, err
	}
	call.RequestID = requestID

	cacheKey := s.cacheKey(call)
	if s.cache != nil {
		var cached api.ChatResponse
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			s.logger.Debug("response cache hit", zap.String("request_id", requestID))
			return &cached, nil
		}
	}

	start := time.Now()
	resp, err := provider.Chat(ctx, call)
	if err != nil {
		s.record(entry, call, token, upstream.Stats{}, time.Since(start), false, err)
		return nil, translateErr(err)
	}

	stats := statsFromResponse(resp)
	s.record(entry, call, token, stats, time.Since(start), false, nil)

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, resp, cacheTTL); err != nil {
			s.logger.Warn("response cache write failed", zap.Error(err))
		}
	}
	return resp, nil
}

// Stream opens one streaming exchange. A nil error means the upstream
// accepted the call and chunks will arrive on the channel; the request
// record is written when the terminal stats item passes through.
func (s *Service) Stream(ctx context.Context, token, requestID string, req *api.ChatRequest) (<-chan upstream.StreamResult, error) {
	provider, call, entry, err := s.pick(token, req)
	if err != nil {
		return nil, err
	}
	call.RequestID = requestID

	start := time.Now()
	results, err := provider.Stream(ctx, call)
	if err != nil {
		s.record(entry, call, token, upstream.Stats{}, time.Since(start), true, err)
		return nil, translateErr(err)
	}

	out := make(chan upstream.StreamResult)
	go func() {
		defer close(out)
		for r := range results {
			if r.Stats != nil {
				s.record(entry, call, token, *r.Stats, time.Since(start), true, nil)
			}
			if r.Err != nil {
				s.record(entry, call, token, upstream.Stats{}, time.Since(start), true, r.Err)
				r.Err = translateErr(r.Err)
			}
			select {
			case out <- r:
			case <-ctx.Done():
				// consumer is gone; stop forwarding so the pump can
				// unwind and release the upstream connection
				return
			}
		}
	}()
	return out, nil
}

func (s *Service) cacheKey(call upstream.Call) string {
	body, _ := json.Marshal(call.Body)
	sum := md5.Sum(append([]byte(call.UpstreamModel+"|"), body...))
	return "chat:" + hex.EncodeToString(sum[:])
}

func (s *Service) record(entry config.ProviderEntry, call upstream.Call, token string, stats upstream.Stats, latency time.Duration, stream bool, err error) {
	log := &model.RequestLog{
		ID:               call.RequestID,
		TokenPrefix:      tokenPrefix(token),
		Model:            call.ClientModel,
		UpstreamModel:    call.UpstreamModel,
		ProviderName:     entry.Name,
		ProviderType:     entry.Type,
		Stream:           stream,
		Status:           "ok",
		FinishReason:     stats.FinishReason,
		PromptTokens:     stats.PromptTokens,
		CompletionTokens: stats.CompletionTokens,
		TotalTokens:      stats.TotalTokens,
		LatencyMS:        latency.Milliseconds(),
		CreatedAt:        time.Now(),
	}
	if err != nil {
		log.Status = "error"
		log.ErrorDetail.String = err.Error()
		log.ErrorDetail.Valid = true
	}
	s.ingestor.Log(log)
}

func statsFromResponse(resp *api.ChatResponse) upstream.Stats {
	var stats upstream.Stats
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		if choice.Message != nil {
			stats.Content = choice.Message.Content.Text
			stats.ToolCalls = choice.Message.ToolCalls
		}
		if choice.FinishReason != nil {
			stats.FinishReason = *choice.FinishReason
		}
	}
	if resp.Usage != nil {
		stats.PromptTokens = resp.Usage.PromptTokens
		stats.CompletionTokens = resp.Usage.CompletionTokens
		stats.TotalTokens = resp.Usage.TotalTokens
	}
	return stats
}

// translateErr converts transport failures into client-facing problems.
func translateErr(err error) error {
	var ue *httpclient.UpstreamError
	if errors.As(err, &ue) {
		return api.UpstreamProblem(ue.StatusCode, ue.Domain, string(ue.Body))
	}
	var p *api.Problem
	if errors.As(err, &p) {
		return err
	}
	return api.InternalError("upstream call failed", err)
}

func tokenPrefix(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8]
}
