package api

import (
	"encoding/json"
	"net/http"

	"docqa/internal/domain/rag"
)

// 响应体直接序列化业务负载，错误统一为 {"error": "..."}

type errorBody struct {
	Error string `json:"error"`
}

type healthBody struct {
	Status string `json:"status"`
}

type retrieveResponse struct {
	Chunks []rag.RetrievedChunk `json:"chunks"`
	Count  int                  `json:"count"`
}

type chunkListResponse struct {
	DocID  string      `json:"doc_id"`
	Chunks []rag.Chunk `json:"chunks"`
	Count  int         `json:"count"`
}

type deleteDocumentResponse struct {
	DocID         string `json:"doc_id"`
	ChunksRemoved int    `json:"chunks_removed"`
}

type deleteChunkResponse struct {
	DocID   string `json:"doc_id"`
	ChunkID string `json:"chunk_id"`
}

type deleteDriveResponse struct {
	DriveID       string `json:"drive_id"`
	ChunksRemoved int    `json:"chunks_removed"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}
