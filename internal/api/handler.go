package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"docqa/internal/domain/chat"
	"docqa/internal/domain/rag"
	applog "docqa/internal/platform/log"
)

// Handler 检索与文档管理 API
type Handler struct {
	store     rag.Store
	retriever *rag.Retriever
	indexer   *rag.Indexer
	chat      *chat.Service
}

// NewHandler 创建处理器
func NewHandler(store rag.Store, retriever *rag.Retriever, indexer *rag.Indexer, chatSvc *chat.Service) *Handler {
	return &Handler{
		store:     store,
		retriever: retriever,
		indexer:   indexer,
		chat:      chatSvc,
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/query", h.Query)
		r.Post("/retrieve", h.Retrieve)

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", h.IngestDocument)
			r.Get("/{docID}/chunks", h.ListChunks)
			r.Delete("/{docID}/chunks/{chunkID}", h.DeleteChunk)
			r.Delete("/{docID}", h.DeleteDocument)
		})

		r.Delete("/drive/{driveID}", h.DeleteDriveDocument)
	})
}

// --- 问答 ---

type queryRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
	Hybrid   *bool  `json:"hybrid,omitempty"`
}

func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	hybrid := true
	if req.Hybrid != nil {
		hybrid = *req.Hybrid
	}

	answer, err := h.chat.Ask(r.Context(), req.Question, req.TopK, hybrid)
	if err != nil {
		applog.Error("[API] Query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// --- 检索 ---

type retrieveRequest struct {
	Query  string `json:"query"`
	TopK   int    `json:"top_k,omitempty"`
	Hybrid bool   `json:"hybrid,omitempty"`
}

func (h *Handler) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	chunks, err := h.retriever.Retrieve(r.Context(), req.Query, req.TopK, req.Hybrid)
	if err != nil {
		applog.Error("[API] Retrieve failed", "error", err)
		writeError(w, http.StatusInternalServerError, "retrieval failed")
		return
	}
	writeJSON(w, http.StatusOK, retrieveResponse{
		Chunks: chunks,
		Count:  len(chunks),
	})
}

// --- 文档管理 ---

func (h *Handler) IngestDocument(w http.ResponseWriter, r *http.Request) {
	var req rag.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	result, err := h.indexer.Ingest(r.Context(), &req)
	if err != nil {
		applog.Error("[API] Ingest failed", "error", err)
		writeError(w, http.StatusInternalServerError, "ingest failed")
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) ListChunks(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")

	chunks, err := h.store.DocumentChunks(r.Context(), docID)
	if err != nil {
		applog.Error("[API] List chunks failed", "doc_id", docID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list chunks")
		return
	}

	// 正文之外的字段足够展示，向量不随响应返回
	for i := range chunks {
		chunks[i].Embedding = nil
	}
	writeJSON(w, http.StatusOK, chunkListResponse{
		DocID:  docID,
		Chunks: chunks,
		Count:  len(chunks),
	})
}

func (h *Handler) DeleteChunk(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	chunkID := chi.URLParam(r, "chunkID")

	if err := h.store.DeleteChunk(r.Context(), docID, chunkID); err != nil {
		applog.Error("[API] Delete chunk failed", "doc_id", docID, "chunk_id", chunkID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete chunk")
		return
	}
	writeJSON(w, http.StatusOK, deleteChunkResponse{
		DocID:   docID,
		ChunkID: chunkID,
	})
}

func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")

	removed, err := h.indexer.DeleteDocument(r.Context(), docID)
	if err != nil {
		applog.Error("[API] Delete document failed", "doc_id", docID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete document")
		return
	}
	writeJSON(w, http.StatusOK, deleteDocumentResponse{
		DocID:         docID,
		ChunksRemoved: removed,
	})
}

// DeleteDriveDocument 远端云盘文件被删除后，清理其映射的文档与映射记录
func (h *Handler) DeleteDriveDocument(w http.ResponseWriter, r *http.Request) {
	driveID := chi.URLParam(r, "driveID")

	removed, err := h.indexer.DeleteDriveDocument(r.Context(), driveID)
	if err != nil {
		applog.Error("[API] Delete drive document failed", "drive_id", driveID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete drive document")
		return
	}
	writeJSON(w, http.StatusOK, deleteDriveResponse{
		DriveID:       driveID,
		ChunksRemoved: removed,
	})
}
