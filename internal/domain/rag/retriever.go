package rag

import (
	"context"
	"fmt"
	"sync"
	"time"

	applog "docqa/internal/platform/log"
)

// Retriever 检索门面：生成查询向量，分发到向量/词法索引并融合排序
type Retriever struct {
	vec      VectorIndex
	text     TextIndex
	embedder Embedder
	config   *Config
}

// NewRetriever 创建检索门面
func NewRetriever(vec VectorIndex, text TextIndex, embedder Embedder, config *Config) *Retriever {
	if config == nil {
		config = DefaultConfig()
	}
	return &Retriever{
		vec:      vec,
		text:     text,
		embedder: embedder,
		config:   config,
	}
}

// Retrieve 执行检索。hybrid=false 走纯向量检索；hybrid=true 两路各取 2×topK
// 候选后融合。Embedding 或索引层错误原样上抛，由调用方降级为空上下文。
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, hybrid bool) ([]RetrievedChunk, error) {
	start := time.Now()

	if topK <= 0 {
		topK = r.config.DefaultTopK
	}

	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	if !hybrid {
		hits, err := r.vec.VectorSearch(ctx, queryVec, topK, nil)
		if err != nil {
			return nil, fmt.Errorf("vector search: %w", err)
		}
		results := make([]RetrievedChunk, len(hits))
		for i, h := range hits {
			results[i] = RetrievedChunk{Chunk: h.Chunk, Score: h.Score}
		}
		applog.Info("[RAG] Vector search done",
			"query", query,
			"top_k", topK,
			"results", len(results),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return results, nil
	}

	// 并行执行两路检索，各取 2×topK 候选给融合层重排
	fetchK := topK * 2

	var (
		wg        sync.WaitGroup
		vecHits   []ScoredChunk
		vecErr    error
		textHits  []Chunk
		textErr   error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		vecHits, vecErr = r.vec.VectorSearch(ctx, queryVec, fetchK, nil)
	}()
	go func() {
		defer wg.Done()
		textHits, textErr = r.text.TextSearch(ctx, query, fetchK)
	}()
	wg.Wait()

	if vecErr != nil {
		return nil, fmt.Errorf("vector search: %w", vecErr)
	}
	if textErr != nil {
		return nil, fmt.Errorf("text search: %w", textErr)
	}

	merged, err := Fuse(vecHits, textHits, topK, r.config.VectorWeight, r.config.TextWeight)
	if err != nil {
		// 融合失败降级为纯向量结果
		applog.Warn("[RAG] Fusion failed, degrading to vector-only results", "error", err)
		if len(vecHits) > topK {
			vecHits = vecHits[:topK]
		}
		merged = make([]RetrievedChunk, len(vecHits))
		for i, h := range vecHits {
			merged[i] = RetrievedChunk{Chunk: h.Chunk, Score: h.Score}
		}
	}

	applog.Info("[RAG] Hybrid search done",
		"query", query,
		"top_k", topK,
		"vector_hits", len(vecHits),
		"text_hits", len(textHits),
		"results", len(merged),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return merged, nil
}
