package retrieval

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/entity"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/knowledge"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/service"
)

// oversampleFactor widens the nearest-neighbour search so domain filtering
// still leaves enough survivors to fill k.
const oversampleFactor = 3

// DomainSource provides the current domain declarations. The classifier
// satisfies this, so hot-reloaded declarations reach the retriever too.
type DomainSource interface {
	Domains() []service.Domain
}

// Retriever answers queries from the knowledge store with domain filtering
// and priority boosting. Failures never surface to the caller: they are
// recorded on the rag_search breaker and yield an empty result.
type Retriever struct {
	embedder knowledge.EmbeddingProvider
	store    knowledge.VectorStore
	domains  DomainSource
	breakers *service.BreakerRegistry
	logger   *zap.Logger
}

func NewRetriever(embedder knowledge.EmbeddingProvider, store knowledge.VectorStore, domains DomainSource, breakers *service.BreakerRegistry, logger *zap.Logger) *Retriever {
	return &Retriever{
		embedder: embedder,
		store:    store,
		domains:  domains,
		breakers: breakers,
		logger:   logger.With(zap.String("component", "retriever")),
	}
}

// Retrieve returns up to k chunks for the query text. Overrides always
// precede regular chunks; within each group chunks order by boosted
// distance. A nil domainFilter skips the tag filter but still boosts
// chunks by the owning domain's priority.
func (r *Retriever) Retrieve(ctx context.Context, queryText string, domainFilter *service.Domain, k int) []*entity.Chunk {
	if k <= 0 {
		return nil
	}
	if !r.breakers.Allow(service.ServiceRAGSearch) {
		r.logger.Info("retrieval skipped, breaker open")
		return nil
	}

	vector, err := r.embedder.Embed(ctx, queryText)
	if err != nil {
		r.breakers.RecordFailure(service.ServiceRAGSearch)
		r.logger.Warn("query embedding failed", zap.Error(err))
		return nil
	}

	raw, err := r.store.Search(ctx, vector, oversampleFactor*k)
	if err != nil {
		r.breakers.RecordFailure(service.ServiceRAGSearch)
		r.logger.Warn("vector search failed", zap.Error(err))
		return nil
	}
	r.breakers.RecordSuccess(service.ServiceRAGSearch)

	chunks := r.rank(raw, domainFilter, k)
	r.logger.Debug("retrieval complete",
		zap.Int("raw", len(raw)),
		zap.Int("returned", len(chunks)),
		zap.String("domain", domainName(domainFilter)),
	)
	return chunks
}

type rankedChunk struct {
	chunk *entity.Chunk
	score float64
}

// rank filters, boosts and orders the raw candidates: overrides first,
// then regular chunks, each group ascending by distance divided by the
// owning domain's priority boost.
func (r *Retriever) rank(raw []*entity.Chunk, domainFilter *service.Domain, k int) []*entity.Chunk {
	declarations := r.domains.Domains()

	var overrides, regular []rankedChunk
	for _, chunk := range raw {
		if chunk == nil {
			continue
		}
		if !admit(chunk, domainFilter, declarations) {
			continue
		}
		ranked := rankedChunk{chunk: chunk, score: chunk.Distance() / boostFor(chunk, declarations)}
		if chunk.IsOverride() {
			overrides = append(overrides, ranked)
		} else {
			regular = append(regular, ranked)
		}
	}

	sortRanked(overrides)
	sortRanked(regular)

	out := make([]*entity.Chunk, 0, k)
	for _, rc := range overrides {
		if len(out) == k {
			return out
		}
		out = append(out, rc.chunk)
	}
	for _, rc := range regular {
		if len(out) == k {
			return out
		}
		out = append(out, rc.chunk)
	}
	return out
}

func sortRanked(chunks []rankedChunk) {
	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].score != chunks[j].score {
			return chunks[i].score < chunks[j].score
		}
		return chunks[i].chunk.ID() < chunks[j].chunk.ID()
	})
}

// admit applies domain filtering. Regular chunks pass an active filter by
// source_type tag and pass freely without one. An override carries its
// domain in the source prefix: claimed by the active domain or by no
// declared domain it passes; a foreign domain's override never reaches
// the prompt, with or without a filter.
func admit(chunk *entity.Chunk, domainFilter *service.Domain, declarations []service.Domain) bool {
	if chunk.IsOverride() {
		owner := overrideOwner(chunk.Source(), declarations)
		if owner == "" {
			return true
		}
		return domainFilter != nil && owner == domainFilter.Name
	}
	if domainFilter == nil {
		return true
	}
	sourceType := string(chunk.Metadata().SourceType)
	for _, tag := range domainFilter.SourceTypeTags {
		if sourceType == tag {
			return true
		}
	}
	return false
}

// overrideOwner returns the domain whose override prefix claims the
// source, or "" when no declaration claims it.
func overrideOwner(source string, declarations []service.Domain) string {
	for _, d := range declarations {
		for _, prefix := range d.OverridePrefixes {
			if prefix != "" && strings.HasPrefix(source, prefix) {
				return d.Name
			}
		}
	}
	return ""
}

// boostFor resolves the chunk's owning domain by source_type tag, falling
// back to override prefixes, and returns that domain's priority boost.
// Unclaimed chunks get the neutral boost 1.0.
func boostFor(chunk *entity.Chunk, declarations []service.Domain) float64 {
	sourceType := string(chunk.Metadata().SourceType)
	source := chunk.Source()
	for _, d := range declarations {
		for _, tag := range d.SourceTypeTags {
			if sourceType == tag {
				return d.PriorityBoost
			}
		}
		for _, prefix := range d.OverridePrefixes {
			if prefix != "" && strings.HasPrefix(source, prefix) {
				return d.PriorityBoost
			}
		}
	}
	return 1.0
}

func domainName(d *service.Domain) string {
	if d == nil {
		return ""
	}
	return d.Name
}
