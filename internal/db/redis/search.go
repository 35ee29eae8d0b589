package redisdb

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	domainrag "docqa/internal/domain/rag"
	applog "docqa/internal/platform/log"
)

var chunkReturnFields = []goredis.FTSearchReturn{
	{FieldName: "doc_id"},
	{FieldName: "chunk_id"},
	{FieldName: "text"},
	{FieldName: "source_url"},
	{FieldName: "filename"},
	{FieldName: "last_modified"},
}

// VectorSearch 向量相似度检索。能力可用时走 RediSearch KNN，否则暴力扫描。
// 返回结果按相似度降序，Score 统一为 [0,1] 相似度（加速路径的余弦距离已换算）。
func (s *Store) VectorSearch(ctx context.Context, query []float32, topK int, filters map[string]string) ([]domainrag.ScoredChunk, error) {
	if topK <= 0 {
		return nil, nil
	}
	if s.searchAvailable {
		return s.knnSearch(ctx, query, topK, filters)
	}
	return s.fallbackVectorSearch(ctx, query, topK, filters)
}

// TextSearch 词法检索。能力可用时走全文索引，否则子串线性扫描。
func (s *Store) TextSearch(ctx context.Context, query string, topK int) ([]domainrag.Chunk, error) {
	if topK <= 0 {
		return nil, nil
	}
	if s.searchAvailable {
		return s.fullTextSearch(ctx, query, topK)
	}
	return s.fallbackTextSearch(ctx, query, topK)
}

// knnSearch RediSearch KNN 查询（余弦距离，dialect 2）
func (s *Store) knnSearch(ctx context.Context, query []float32, topK int, filters map[string]string) ([]domainrag.ScoredChunk, error) {
	base := "(*)"
	if len(filters) > 0 {
		clauses := make([]string, 0, len(filters))
		for field, value := range filters {
			clauses = append(clauses, fmt.Sprintf("@%s:%s", field, escapeQuery(value)))
		}
		base = "(" + strings.Join(clauses, " ") + ")"
	}
	queryStr := fmt.Sprintf("%s=>[KNN %d @embedding $query_vector AS vector_score]", base, topK)

	returns := append([]goredis.FTSearchReturn{}, chunkReturnFields...)
	returns = append(returns, goredis.FTSearchReturn{FieldName: "vector_score"})

	res, err := s.rdb.FTSearchWithArgs(ctx, indexName, queryStr, &goredis.FTSearchOptions{
		Return:         returns,
		SortBy:         []goredis.FTSearchSortBy{{FieldName: "vector_score", Asc: true}},
		LimitOffset:    0,
		Limit:          topK,
		Params:         map[string]interface{}{"query_vector": encodeVector(query)},
		DialectVersion: 2,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("knn search: %w", err)
	}

	hits := make([]domainrag.ScoredChunk, 0, len(res.Docs))
	for _, doc := range res.Docs {
		chunk, err := parseChunk(doc.Fields)
		if err != nil {
			applog.Warn("[Store] Skipping malformed search hit", "key", doc.ID, "error", err)
			continue
		}

		// 引擎返回余弦距离（越小越近），换算为相似度
		distance, err := strconv.ParseFloat(doc.Fields["vector_score"], 64)
		if err != nil {
			applog.Warn("[Store] Search hit missing vector score", "key", doc.ID)
			continue
		}
		similarity := 1 - distance
		if similarity < 0 {
			similarity = 0
		} else if similarity > 1 {
			similarity = 1
		}

		hits = append(hits, domainrag.ScoredChunk{Chunk: *chunk, Score: similarity})
	}
	return hits, nil
}

// fullTextSearch RediSearch 全文查询（保留字符已转义）
func (s *Store) fullTextSearch(ctx context.Context, query string, topK int) ([]domainrag.Chunk, error) {
	queryStr := fmt.Sprintf("@text:(%s)", escapeQuery(query))

	res, err := s.rdb.FTSearchWithArgs(ctx, indexName, queryStr, &goredis.FTSearchOptions{
		Return:      chunkReturnFields,
		LimitOffset: 0,
		Limit:       topK,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}

	chunks := make([]domainrag.Chunk, 0, len(res.Docs))
	for _, doc := range res.Docs {
		chunk, err := parseChunk(doc.Fields)
		if err != nil {
			applog.Warn("[Store] Skipping malformed search hit", "key", doc.ID, "error", err)
			continue
		}
		chunks = append(chunks, *chunk)
	}
	return chunks, nil
}
