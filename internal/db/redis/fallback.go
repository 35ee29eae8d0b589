package redisdb

import (
	"context"
	"fmt"
	"sort"
	"strings"

	domainrag "docqa/internal/domain/rag"
	applog "docqa/internal/platform/log"
)

// 回退检索：RediSearch 不可用时对全局成员集合做线性扫描。
// 代价 O(N·D)/查询，只适用于单租户文档问答的语料规模，是文档化的扩展性上限。

// fallbackVectorSearch 枚举 all_chunks，逐条解码并计算余弦相似度
func (s *Store) fallbackVectorSearch(ctx context.Context, query []float32, topK int, filters map[string]string) ([]domainrag.ScoredChunk, error) {
	chunks, err := s.scanAllChunks(ctx)
	if err != nil {
		return nil, err
	}
	return rankByCosine(chunks, query, topK, filters), nil
}

// fallbackTextSearch 大小写不敏感的子串包含扫描
func (s *Store) fallbackTextSearch(ctx context.Context, query string, topK int) ([]domainrag.Chunk, error) {
	chunks, err := s.scanAllChunks(ctx)
	if err != nil {
		return nil, err
	}
	return matchSubstring(chunks, query, topK), nil
}

// scanAllChunks 加载全局集合登记的全部记录，损坏记录跳过不中断扫描
func (s *Store) scanAllChunks(ctx context.Context) ([]domainrag.Chunk, error) {
	keys, err := s.rdb.SMembers(ctx, allChunksKey).Result()
	if err != nil {
		return nil, fmt.Errorf("enumerate chunks: %w", err)
	}

	chunks := make([]domainrag.Chunk, 0, len(keys))
	for _, key := range keys {
		fields, err := s.rdb.HGetAll(ctx, key).Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		chunk, err := parseChunk(fields)
		if err != nil {
			applog.Warn("[Store] Skipping malformed chunk record", "key", key, "error", err)
			continue
		}
		chunks = append(chunks, *chunk)
	}
	return chunks, nil
}

// rankByCosine 对候选分块计算余弦相似度并降序截断。
// 维度不符或零范数向量按不匹配跳过；filters 为字段等值过滤。
func rankByCosine(chunks []domainrag.Chunk, query []float32, topK int, filters map[string]string) []domainrag.ScoredChunk {
	results := make([]domainrag.ScoredChunk, 0, len(chunks))

	for i := range chunks {
		chunk := &chunks[i]
		if !matchesFilters(chunk, filters) {
			continue
		}
		similarity, ok := cosineSimilarity(query, chunk.Embedding)
		if !ok {
			continue
		}
		results = append(results, domainrag.ScoredChunk{Chunk: *chunk, Score: similarity})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}

// matchSubstring 大小写不敏感的子串匹配，保持扫描顺序
func matchSubstring(chunks []domainrag.Chunk, query string, topK int) []domainrag.Chunk {
	needle := strings.ToLower(query)
	var results []domainrag.Chunk
	for i := range chunks {
		if strings.Contains(strings.ToLower(chunks[i].Text), needle) {
			results = append(results, chunks[i])
			if topK > 0 && len(results) >= topK {
				break
			}
		}
	}
	return results
}

func matchesFilters(c *domainrag.Chunk, filters map[string]string) bool {
	for field, want := range filters {
		if chunkField(c, field) != want {
			return false
		}
	}
	return true
}
