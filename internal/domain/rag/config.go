package rag

// Config RAG 模块配置
type Config struct {
	// 向量维度（全局固定，text-embedding-ada-002 = 1536）
	VectorDim int `json:"vector_dim"`

	// 检索配置
	DefaultTopK  int     `json:"default_top_k"`
	VectorWeight float64 `json:"vector_weight"`
	TextWeight   float64 `json:"text_weight"`

	// Embedding
	EmbeddingModel string `json:"embedding_model"`

	// Chunker 配置（按字符计数）
	ChunkSize    int `json:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		VectorDim:      1536,
		DefaultTopK:    5,
		VectorWeight:   0.7,
		TextWeight:     0.3,
		EmbeddingModel: "text-embedding-ada-002",
		ChunkSize:      1000,
		ChunkOverlap:   200,
	}
}
