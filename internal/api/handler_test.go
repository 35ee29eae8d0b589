package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"docqa/internal/domain/chat"
	"docqa/internal/domain/rag"
)

type memStore struct {
	mu      sync.Mutex
	chunks  map[string]rag.Chunk
	healthy bool
}

func newMemStore() *memStore {
	return &memStore{chunks: make(map[string]rag.Chunk), healthy: true}
}

func (s *memStore) StoreChunk(_ context.Context, chunk *rag.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[chunk.Key()] = *chunk
	return nil
}

func (s *memStore) DocumentChunks(_ context.Context, docID string) ([]rag.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []rag.Chunk
	for _, c := range s.chunks {
		if c.DocID == docID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memStore) DeleteChunk(_ context.Context, docID, chunkID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, docID+":"+chunkID)
	return nil
}

func (s *memStore) DeleteDocumentMeta(_ context.Context, _ string) error { return nil }

func (s *memStore) DeleteDocumentData(_ context.Context, docID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, c := range s.chunks {
		if c.DocID == docID {
			delete(s.chunks, key)
			removed++
		}
	}
	return removed, nil
}

func (s *memStore) HealthCheck(_ context.Context) bool { return s.healthy }

type memMappings struct {
	mu       sync.Mutex
	mappings map[string]*rag.DriveMapping
}

func newMemMappings() *memMappings {
	return &memMappings{mappings: make(map[string]*rag.DriveMapping)}
}

func (m *memMappings) StoreDriveMapping(_ context.Context, dm *rag.DriveMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *dm
	m.mappings[dm.DriveID] = &cp
	return nil
}

func (m *memMappings) DriveMapping(_ context.Context, driveID string) (*rag.DriveMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mappings[driveID], nil
}

func (m *memMappings) DeleteDriveMapping(_ context.Context, driveID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.mappings, driveID)
	return nil
}

type stubVectorIndex struct{ hits []rag.ScoredChunk }

func (s *stubVectorIndex) VectorSearch(_ context.Context, _ []float32, topK int, _ map[string]string) ([]rag.ScoredChunk, error) {
	if topK < len(s.hits) {
		return s.hits[:topK], nil
	}
	return s.hits, nil
}

type stubTextIndex struct{ hits []rag.Chunk }

func (s *stubTextIndex) TextSearch(_ context.Context, _ string, _ int) ([]rag.Chunk, error) {
	return s.hits, nil
}

type stubEmbedder struct{ dims int }

func (s *stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return make([]float32, s.dims), nil
}

func (s *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, s.dims)
	}
	return out, nil
}

func (s *stubEmbedder) Dims() int { return s.dims }

type stubCompleter struct{ answer string }

func (s *stubCompleter) Complete(_ context.Context, _, _ string) (string, error) {
	return s.answer, nil
}

func testServer(store *memStore, mappings *memMappings, vec *stubVectorIndex, text *stubTextIndex) *Server {
	embedder := &stubEmbedder{dims: 4}
	retriever := rag.NewRetriever(vec, text, embedder, nil)
	var mappingStore rag.MappingStore
	if mappings != nil {
		mappingStore = mappings
	}
	indexer := rag.NewIndexer(store, mappingStore, embedder, nil)
	chatSvc := chat.NewService(retriever, &stubCompleter{answer: "test answer"})
	return NewServer(DefaultServerConfig(), store, retriever, indexer, chatSvc)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var data map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &data); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return data
}

// TestHealthEndpoint 健康检查反映存储可用性
func TestHealthEndpoint(t *testing.T) {
	store := newMemStore()
	h := testServer(store, nil, &stubVectorIndex{}, &stubTextIndex{}).Handler()

	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	store.healthy = false
	rec = doJSON(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when storage is down, got %d", rec.Code)
	}
	if decodeBody(t, rec)["error"] == "" {
		t.Error("error responses must carry an error message")
	}
}

// TestRetrieveEndpoint 检索接口返回分块与计数
func TestRetrieveEndpoint(t *testing.T) {
	vec := &stubVectorIndex{hits: []rag.ScoredChunk{
		{Chunk: rag.Chunk{DocID: "d1", ChunkID: "chunk_0", Text: "hello"}, Score: 0.9},
	}}
	h := testServer(newMemStore(), nil, vec, &stubTextIndex{}).Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/retrieve", map[string]interface{}{
		"query": "hello", "top_k": 5,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	data := decodeBody(t, rec)
	if data["count"] != float64(1) {
		t.Errorf("expected count=1, got %v", data["count"])
	}
}

// TestRetrieveEndpointValidation 缺少 query 拒绝请求
func TestRetrieveEndpointValidation(t *testing.T) {
	h := testServer(newMemStore(), nil, &stubVectorIndex{}, &stubTextIndex{}).Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/retrieve", map[string]interface{}{"top_k": 5})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

// TestQueryEndpoint 问答接口返回回答与来源
func TestQueryEndpoint(t *testing.T) {
	vec := &stubVectorIndex{hits: []rag.ScoredChunk{
		{Chunk: rag.Chunk{DocID: "d1", ChunkID: "chunk_0", Text: "context"}, Score: 0.9},
	}}
	h := testServer(newMemStore(), nil, vec, &stubTextIndex{}).Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/query", map[string]interface{}{
		"question": "what is this?",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	data := decodeBody(t, rec)
	if data["answer"] != "test answer" {
		t.Errorf("unexpected answer: %v", data["answer"])
	}
	if data["context_count"] != float64(1) {
		t.Errorf("expected context_count=1, got %v", data["context_count"])
	}
}

// TestDocumentLifecycle 入库、列出分块、删除的完整流程
func TestDocumentLifecycle(t *testing.T) {
	store := newMemStore()
	h := testServer(store, nil, &stubVectorIndex{}, &stubTextIndex{}).Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/documents/", map[string]interface{}{
		"content":  "some document content for indexing",
		"filename": "doc.txt",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	data := decodeBody(t, rec)
	docID, _ := data["doc_id"].(string)
	if docID == "" {
		t.Fatal("ingest must return a doc_id")
	}

	rec = doJSON(t, h, http.MethodGet, "/api/documents/"+docID+"/chunks", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data = decodeBody(t, rec)
	chunks, _ := data["chunks"].([]interface{})
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk listed")
	}
	first, _ := chunks[0].(map[string]interface{})
	if _, hasEmbedding := first["embedding"]; hasEmbedding {
		t.Error("chunk listing must not expose embeddings")
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/documents/"+docID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data = decodeBody(t, rec)
	if data["chunks_removed"] != float64(len(chunks)) {
		t.Errorf("expected %d chunks removed, got %v", len(chunks), data["chunks_removed"])
	}

	if remaining, _ := store.DocumentChunks(context.Background(), docID); len(remaining) != 0 {
		t.Errorf("expected store empty after delete, got %d chunks", len(remaining))
	}
}

// TestDeleteChunkEndpoint 删除单个分块后该文档只剩余其余分块
func TestDeleteChunkEndpoint(t *testing.T) {
	store := newMemStore()
	store.chunks["D1:chunk_0"] = rag.Chunk{DocID: "D1", ChunkID: "chunk_0", Text: "first"}
	store.chunks["D1:chunk_1"] = rag.Chunk{DocID: "D1", ChunkID: "chunk_1", Text: "second"}
	h := testServer(store, nil, &stubVectorIndex{}, &stubTextIndex{}).Handler()

	rec := doJSON(t, h, http.MethodDelete, "/api/documents/D1/chunks/chunk_0", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/api/documents/D1/chunks", nil)
	data := decodeBody(t, rec)
	chunks, _ := data["chunks"].([]interface{})
	if len(chunks) != 1 {
		t.Fatalf("expected exactly 1 chunk left, got %d", len(chunks))
	}
	remaining, _ := chunks[0].(map[string]interface{})
	if remaining["chunk_id"] != "chunk_1" {
		t.Errorf("expected chunk_1 to survive, got %v", remaining["chunk_id"])
	}
}

// TestDeleteDriveEndpoint 删除云盘文档连带清理映射
func TestDeleteDriveEndpoint(t *testing.T) {
	store := newMemStore()
	store.chunks["D1:chunk_0"] = rag.Chunk{DocID: "D1", ChunkID: "chunk_0", Text: "drive doc"}
	mappings := newMemMappings()
	mappings.StoreDriveMapping(context.Background(), &rag.DriveMapping{DriveID: "drive-1", DocID: "D1"})

	h := testServer(store, mappings, &stubVectorIndex{}, &stubTextIndex{}).Handler()

	rec := doJSON(t, h, http.MethodDelete, "/api/drive/drive-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	data := decodeBody(t, rec)
	if data["chunks_removed"] != float64(1) {
		t.Errorf("expected 1 chunk removed, got %v", data["chunks_removed"])
	}

	if m, _ := mappings.DriveMapping(context.Background(), "drive-1"); m != nil {
		t.Error("drive mapping must be removed with the document")
	}
	if remaining, _ := store.DocumentChunks(context.Background(), "D1"); len(remaining) != 0 {
		t.Errorf("expected document chunks removed, got %d", len(remaining))
	}
}

// TestIngestValidation 空正文拒绝入库
func TestIngestValidation(t *testing.T) {
	h := testServer(newMemStore(), nil, &stubVectorIndex{}, &stubTextIndex{}).Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/documents/", map[string]interface{}{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
