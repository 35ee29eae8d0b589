package rag

import "context"

// Store 分块持久化存储
type Store interface {
	StoreChunk(ctx context.Context, chunk *Chunk) error
	DocumentChunks(ctx context.Context, docID string) ([]Chunk, error)
	DeleteChunk(ctx context.Context, docID, chunkID string) error
	// DeleteDocumentMeta 仅删除文档级元数据，不触碰分块
	DeleteDocumentMeta(ctx context.Context, docID string) error
	// DeleteDocumentData 删除文档的全部分块与元数据，返回成功移除的分块数
	DeleteDocumentData(ctx context.Context, docID string) (int, error)
	HealthCheck(ctx context.Context) bool
}

// VectorIndex 向量相似度检索（加速路径与暴力回退共用同一签名）
type VectorIndex interface {
	VectorSearch(ctx context.Context, query []float32, topK int, filters map[string]string) ([]ScoredChunk, error)
}

// TextIndex 词法检索（全文索引或线性扫描）
type TextIndex interface {
	TextSearch(ctx context.Context, query string, topK int) ([]Chunk, error)
}

// Embedder 向量生成协作方
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch 批量生成，保持输入顺序；整体失败必须报错而非返回错长向量
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dims() int
}

// MappingStore 云盘资源映射存储
type MappingStore interface {
	StoreDriveMapping(ctx context.Context, m *DriveMapping) error
	DriveMapping(ctx context.Context, driveID string) (*DriveMapping, error)
	DeleteDriveMapping(ctx context.Context, driveID string) error
}
