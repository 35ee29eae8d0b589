package redisdb

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	domainrag "docqa/internal/domain/rag"
	applog "docqa/internal/platform/log"
)

const (
	indexName     = "doc_chunks_idx"
	chunkPrefix   = "doc_chunk:"
	docSetPrefix  = "doc_chunks:"
	docMetaPrefix = "document:"
	allChunksKey  = "all_chunks"
)

// Store Redis 分块存储。哈希记录按 doc_chunk:<doc_id>:<chunk_id> 存放，
// 每文档集合与全局集合登记同一批键供回退扫描枚举。
// RediSearch 能力在构造时探测一次，进程生命周期内固定，读路径按标志分支。
type Store struct {
	rdb  *goredis.Client
	dims int

	searchAvailable bool

	indexOnce sync.Once
	indexErr  error
}

// New 创建 Store：探活连接并探测 RediSearch 能力
func New(ctx context.Context, rdb *goredis.Client, dims int) (*Store, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("invalid vector dims: %d", dims)
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	s := &Store{rdb: rdb, dims: dims}
	s.searchAvailable = s.probeSearch(ctx)
	if s.searchAvailable {
		applog.Info("[Store] RediSearch available, using accelerated indexes")
	} else {
		applog.Warn("[Store] RediSearch unavailable, using fallback scans")
	}
	return s, nil
}

// SearchAvailable 返回加速检索能力标志
func (s *Store) SearchAvailable() bool {
	return s.searchAvailable
}

// probeSearch 探测 RediSearch 是否可用（仅构造时调用一次）
func (s *Store) probeSearch(ctx context.Context) bool {
	err := s.rdb.FT_List(ctx).Err()
	if err == nil {
		return true
	}
	if strings.Contains(strings.ToLower(err.Error()), "unknown command") {
		return false
	}
	applog.Warn("[Store] Could not verify RediSearch availability", "error", err)
	return false
}

// ensureIndex 懒创建检索索引：覆盖全部分块字段 + 余弦距离 HNSW 向量字段
func (s *Store) ensureIndex(ctx context.Context) error {
	err := s.rdb.FTInfo(ctx, indexName).Err()
	if err == nil {
		applog.Info("[Store] Index already exists", "index", indexName)
		return nil
	}
	if !strings.Contains(strings.ToLower(err.Error()), "unknown index") {
		return fmt.Errorf("check index: %w", err)
	}

	applog.Info("[Store] Creating index", "index", indexName, "dims", s.dims)
	err = s.rdb.FTCreate(ctx, indexName,
		&goredis.FTCreateOptions{
			OnHash: true,
			Prefix: []interface{}{chunkPrefix},
		},
		&goredis.FieldSchema{FieldName: "doc_id", FieldType: goredis.SearchFieldTypeText},
		&goredis.FieldSchema{FieldName: "chunk_id", FieldType: goredis.SearchFieldTypeText},
		&goredis.FieldSchema{FieldName: "text", FieldType: goredis.SearchFieldTypeText},
		&goredis.FieldSchema{FieldName: "source_url", FieldType: goredis.SearchFieldTypeText},
		&goredis.FieldSchema{FieldName: "filename", FieldType: goredis.SearchFieldTypeText},
		&goredis.FieldSchema{FieldName: "last_modified", FieldType: goredis.SearchFieldTypeNumeric},
		&goredis.FieldSchema{
			FieldName: "embedding",
			FieldType: goredis.SearchFieldTypeVector,
			VectorArgs: &goredis.FTVectorArgs{
				HNSWOptions: &goredis.FTHNSWOptions{
					Type:           "FLOAT32",
					Dim:            s.dims,
					DistanceMetric: "COSINE",
				},
			},
		},
	).Err()
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	applog.Info("[Store] Index created", "index", indexName)
	return nil
}

// StoreChunk 写入分块记录并登记两级成员集合。
// 向量维度不符直接拒绝。底层不提供跨结构原子写，
// 任一步出错即返回，调用方按可能的部分写入处理。
func (s *Store) StoreChunk(ctx context.Context, chunk *domainrag.Chunk) error {
	if chunk.Text == "" {
		return fmt.Errorf("chunk %s: text is empty", chunk.Key())
	}
	if len(chunk.Embedding) != s.dims {
		return fmt.Errorf("chunk %s: embedding dims %d, want %d", chunk.Key(), len(chunk.Embedding), s.dims)
	}

	if s.searchAvailable {
		s.indexOnce.Do(func() {
			s.indexErr = s.ensureIndex(ctx)
		})
		if s.indexErr != nil {
			return fmt.Errorf("ensure index: %w", s.indexErr)
		}
	}

	key := chunkPrefix + chunk.Key()
	if err := s.rdb.HSet(ctx, key, chunkFields(chunk)).Err(); err != nil {
		return fmt.Errorf("store chunk %s: %w", key, err)
	}
	if err := s.rdb.SAdd(ctx, docSetPrefix+chunk.DocID, key).Err(); err != nil {
		return fmt.Errorf("register chunk %s in document set: %w", key, err)
	}
	if err := s.rdb.SAdd(ctx, allChunksKey, key).Err(); err != nil {
		return fmt.Errorf("register chunk %s in global set: %w", key, err)
	}

	applog.Debug("[Store] Stored chunk", "key", key)
	return nil
}

// DocumentChunks 返回文档全部分块（按 chunk 序号排序），不存在时返回空
func (s *Store) DocumentChunks(ctx context.Context, docID string) ([]domainrag.Chunk, error) {
	keys, err := s.rdb.SMembers(ctx, docSetPrefix+docID).Result()
	if err != nil {
		return nil, fmt.Errorf("list document chunks: %w", err)
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

	sortChunks(chunks)
	return chunks, nil
}

// DeleteChunk 删除单个分块记录并从成员集合移除
func (s *Store) DeleteChunk(ctx context.Context, docID, chunkID string) error {
	key := chunkPrefix + docID + ":" + chunkID
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete chunk %s: %w", key, err)
	}
	s.rdb.SRem(ctx, docSetPrefix+docID, key)
	s.rdb.SRem(ctx, allChunksKey, key)
	applog.Info("[Store] Deleted chunk", "key", key)
	return nil
}

// DeleteDocumentMeta 仅删除文档级元数据记录
func (s *Store) DeleteDocumentMeta(ctx context.Context, docID string) error {
	if err := s.rdb.Del(ctx, docMetaPrefix+docID).Err(); err != nil {
		return fmt.Errorf("delete document meta %s: %w", docID, err)
	}
	applog.Info("[Store] Deleted document metadata", "doc_id", docID)
	return nil
}

// DeleteDocumentData 删除文档的全部分块、成员集合与元数据。
// 返回成功移除的分块数；单条删除失败不会中断其余删除（部分失败以计数体现）。
func (s *Store) DeleteDocumentData(ctx context.Context, docID string) (int, error) {
	docSet := docSetPrefix + docID
	keys, err := s.rdb.SMembers(ctx, docSet).Result()
	if err != nil {
		return 0, fmt.Errorf("list document chunks: %w", err)
	}

	removed := 0
	for _, key := range keys {
		if err := s.rdb.Del(ctx, key).Err(); err != nil {
			applog.Warn("[Store] Failed to delete chunk record", "key", key, "error", err)
			continue
		}
		s.rdb.SRem(ctx, allChunksKey, key)
		removed++
	}

	s.rdb.Del(ctx, docSet)
	s.rdb.Del(ctx, docMetaPrefix+docID)

	applog.Info("[Store] Deleted document data", "doc_id", docID, "chunks_removed", removed, "chunks_total", len(keys))
	return removed, nil
}

// HealthCheck 存储连接探活
func (s *Store) HealthCheck(ctx context.Context) bool {
	return s.rdb.Ping(ctx).Err() == nil
}

// sortChunks 按 chunk_<n> 的序号排序，保持稳定的分块次序
func sortChunks(chunks []domainrag.Chunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		a, aok := chunkOrdinal(chunks[i].ChunkID)
		b, bok := chunkOrdinal(chunks[j].ChunkID)
		if aok && bok {
			return a < b
		}
		return chunks[i].ChunkID < chunks[j].ChunkID
	})
}

func chunkOrdinal(chunkID string) (int, bool) {
	idx := strings.LastIndex(chunkID, "_")
	if idx < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(chunkID[idx+1:])
	if err != nil {
		return 0, false
	}
	return n, true
}
