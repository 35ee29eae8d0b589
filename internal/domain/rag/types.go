package rag

// Chunk 文档分块：检索的原子单位
type Chunk struct {
	DocID        string    `json:"doc_id"`
	ChunkID      string    `json:"chunk_id"`
	Text         string    `json:"text"`
	Embedding    []float32 `json:"embedding,omitempty"`
	SourceURL    string    `json:"source_url,omitempty"`
	Filename     string    `json:"filename,omitempty"`
	LastModified float64   `json:"last_modified"`
}

// Key 返回 doc_id:chunk_id 组合键
func (c *Chunk) Key() string {
	return c.DocID + ":" + c.ChunkID
}

// ScoredChunk 向量检索结果：Score 为余弦相似度，越大越近
// （加速路径返回的引擎距离在索引边界统一换算为相似度）
type ScoredChunk struct {
	Chunk
	Score float64 `json:"score"`
}

// RetrievedChunk 检索门面返回的单条结果
type RetrievedChunk struct {
	Chunk
	Score         float64 `json:"score,omitempty"`
	CombinedScore float64 `json:"combined_score,omitempty"`
	TextMatch     bool    `json:"text_match,omitempty"`
}

// DriveMapping 云盘资源与文档的关联记录，用于检测远端文件变更
type DriveMapping struct {
	DriveID      string `json:"drive_id"`
	DocID        string `json:"doc_id"`
	Name         string `json:"name,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	ModifiedTime string `json:"modified_time,omitempty"`
}

// IngestRequest 文档入库请求（正文已由上游抽取为纯文本）
type IngestRequest struct {
	Content      string  `json:"content"`
	SourceURL    string  `json:"source_url,omitempty"`
	Filename     string  `json:"filename,omitempty"`
	LastModified float64 `json:"last_modified,omitempty"`
	// 云盘来源（可选）：携带时启用变更检测与覆盖式重建
	DriveID      string `json:"drive_id,omitempty"`
	ModifiedTime string `json:"modified_time,omitempty"`
}

// IngestResult 入库结果
type IngestResult struct {
	DocID      string `json:"doc_id"`
	ChunkCount int    `json:"chunk_count"`
	// StoredCount < ChunkCount 表示发生了部分写入
	StoredCount int  `json:"stored_count"`
	Skipped     bool `json:"skipped,omitempty"`
}
