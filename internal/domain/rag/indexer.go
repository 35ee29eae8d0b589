package rag

import (
	"context"
	"crypto/md5"
	"fmt"
	"sync"
	"time"

	applog "docqa/internal/platform/log"
)

// Indexer 文档入库 Pipeline：doc_id 派生 → 分块 → 批量 Embedding → 写入存储。
// 同一 doc_id 的删除重建序列由每文档互斥锁串行化（单写者假设，跨进程并发写不在范围内）。
type Indexer struct {
	store    Store
	mappings MappingStore
	embedder Embedder
	chunker  *Chunker
	config   *Config

	mu       sync.Mutex
	docLocks map[string]*sync.Mutex
}

// NewIndexer 创建入库 Pipeline
func NewIndexer(store Store, mappings MappingStore, embedder Embedder, config *Config) *Indexer {
	if config == nil {
		config = DefaultConfig()
	}
	return &Indexer{
		store:    store,
		mappings: mappings,
		embedder: embedder,
		chunker:  NewChunker(config.ChunkSize, config.ChunkOverlap),
		config:   config,
		docLocks: make(map[string]*sync.Mutex),
	}
}

// DeriveDocID 根据正文与来源派生文档标识：
// md5(source)[:8] + md5(content)[:8] + 粗粒度日期，定长 24 字符。
// 同一内容在不同日期重新入库会得到不同 doc_id（追加式入库）；
// 携带 DriveID 的来源通过映射查找 + 先删后建实现幂等刷新。
func DeriveDocID(content, sourceURL string, now time.Time) string {
	contentHash := fmt.Sprintf("%x", md5.Sum([]byte(content)))
	sourceHash := fmt.Sprintf("%x", md5.Sum([]byte(sourceURL)))
	return fmt.Sprintf("%s%s%s", sourceHash[:8], contentHash[:8], now.UTC().Format("20060102"))
}

// Ingest 入库单个文档。来自云盘的请求先做变更检测：
// modified_time 未变则跳过；已变则删除旧文档数据后重建并更新映射。
func (idx *Indexer) Ingest(ctx context.Context, req *IngestRequest) (*IngestResult, error) {
	if req.Content == "" {
		return nil, fmt.Errorf("content is empty")
	}

	docID := DeriveDocID(req.Content, req.SourceURL, time.Now())

	// 云盘来源按 DriveID 串行化：重建前后 doc_id 会变化，锁必须跟随资源本身
	lockKey := docID
	if req.DriveID != "" {
		lockKey = "drive:" + req.DriveID
	}
	lock := idx.lockFor(lockKey)
	lock.Lock()
	defer lock.Unlock()

	if req.DriveID != "" && idx.mappings != nil {
		prior, err := idx.mappings.DriveMapping(ctx, req.DriveID)
		if err != nil {
			applog.Warn("[RAG/Indexer] Drive mapping lookup failed", "drive_id", req.DriveID, "error", err)
		} else if prior != nil {
			if prior.ModifiedTime != "" && prior.ModifiedTime == req.ModifiedTime {
				applog.Info("[RAG/Indexer] Drive file unchanged, skipping", "drive_id", req.DriveID, "doc_id", prior.DocID)
				return &IngestResult{DocID: prior.DocID, Skipped: true}, nil
			}
			// 远端已变更：覆盖式重建，先清除旧文档数据
			removed, err := idx.store.DeleteDocumentData(ctx, prior.DocID)
			if err != nil {
				applog.Warn("[RAG/Indexer] Failed to delete prior document data", "doc_id", prior.DocID, "error", err)
			} else {
				applog.Info("[RAG/Indexer] Prior document replaced", "doc_id", prior.DocID, "chunks_removed", removed)
			}
		}
	}

	texts := idx.chunker.Chunk(req.Content)
	if len(texts) == 0 {
		return nil, fmt.Errorf("document produced no chunks")
	}

	vectors, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(texts))
	}

	lastModified := req.LastModified
	if lastModified == 0 {
		lastModified = float64(time.Now().Unix())
	}

	stored := 0
	for i, text := range texts {
		chunk := &Chunk{
			DocID:        docID,
			ChunkID:      fmt.Sprintf("chunk_%d", i),
			Text:         text,
			Embedding:    vectors[i],
			SourceURL:    req.SourceURL,
			Filename:     req.Filename,
			LastModified: lastModified,
		}
		if err := idx.store.StoreChunk(ctx, chunk); err != nil {
			applog.Warn("[RAG/Indexer] Failed to store chunk", "key", chunk.Key(), "error", err)
			continue
		}
		stored++
	}

	if req.DriveID != "" && idx.mappings != nil {
		mapping := &DriveMapping{
			DriveID:      req.DriveID,
			DocID:        docID,
			Name:         req.Filename,
			CreatedAt:    time.Now().UTC().Format(time.RFC3339),
			ModifiedTime: req.ModifiedTime,
		}
		if err := idx.mappings.StoreDriveMapping(ctx, mapping); err != nil {
			applog.Warn("[RAG/Indexer] Failed to store drive mapping", "drive_id", req.DriveID, "error", err)
		}
	}

	applog.Info("[RAG] Document indexed",
		"doc_id", docID,
		"chunks", len(texts),
		"stored", stored,
	)

	return &IngestResult{
		DocID:       docID,
		ChunkCount:  len(texts),
		StoredCount: stored,
	}, nil
}

// DeleteDocument 删除文档的全部数据，返回移除的分块数
func (idx *Indexer) DeleteDocument(ctx context.Context, docID string) (int, error) {
	lock := idx.lockFor(docID)
	lock.Lock()
	defer lock.Unlock()

	return idx.store.DeleteDocumentData(ctx, docID)
}

// DeleteDriveDocument 按云盘资源 ID 删除其映射的文档与映射本身（远端文件被删除时调用），
// 返回移除的分块数。无映射时视为已删除。
func (idx *Indexer) DeleteDriveDocument(ctx context.Context, driveID string) (int, error) {
	if idx.mappings == nil {
		return 0, fmt.Errorf("drive mappings not configured")
	}

	lock := idx.lockFor("drive:" + driveID)
	lock.Lock()
	defer lock.Unlock()

	mapping, err := idx.mappings.DriveMapping(ctx, driveID)
	if err != nil {
		return 0, fmt.Errorf("lookup drive mapping: %w", err)
	}
	if mapping == nil {
		return 0, nil
	}

	removed, err := idx.store.DeleteDocumentData(ctx, mapping.DocID)
	if err != nil {
		return removed, err
	}
	if err := idx.mappings.DeleteDriveMapping(ctx, driveID); err != nil {
		applog.Warn("[RAG/Indexer] Failed to delete drive mapping", "drive_id", driveID, "error", err)
	}

	applog.Info("[RAG/Indexer] Drive document deleted",
		"drive_id", driveID,
		"doc_id", mapping.DocID,
		"chunks_removed", removed,
	)
	return removed, nil
}

func (idx *Indexer) lockFor(key string) *sync.Mutex {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	lock, ok := idx.docLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		idx.docLocks[key] = lock
	}
	return lock
}
