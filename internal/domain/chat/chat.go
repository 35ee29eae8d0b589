package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"docqa/internal/domain/rag"
	applog "docqa/internal/platform/log"
)

const systemPrompt = `You are a helpful AI assistant that answers questions based on the provided context from documents.

Rules:
1. Answer questions using ONLY the information provided in the context.
2. If the context doesn't contain enough information to answer the question, say so clearly.
3. Reference the source documents when possible.`

// Completer Chat Completion 协作方契约：上下文进，回答出
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Retriever 检索门面契约（由 rag.Retriever 实现）
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int, hybrid bool) ([]rag.RetrievedChunk, error)
}

// Service 问答编排：检索上下文 → 拼装提示词 → 调用补全
type Service struct {
	retriever Retriever
	llm       Completer
}

// NewService 创建问答服务
func NewService(retriever Retriever, llm Completer) *Service {
	return &Service{retriever: retriever, llm: llm}
}

// Source 回答引用的来源文档
type Source struct {
	DocID     string  `json:"doc_id"`
	Filename  string  `json:"filename,omitempty"`
	SourceURL string  `json:"source_url,omitempty"`
	Score     float64 `json:"score,omitempty"`
}

// Answer 问答结果
type Answer struct {
	ID           string   `json:"id"`
	Answer       string   `json:"answer"`
	Sources      []Source `json:"sources"`
	ContextCount int      `json:"context_count"`
	ElapsedMs    int64    `json:"elapsed_ms"`
}

// Ask 回答一个问题。检索失败降级为空上下文继续作答，
// 补全失败才作为错误上抛（用户可见的失败只来自补全层）。
func (s *Service) Ask(ctx context.Context, question string, topK int, hybrid bool) (*Answer, error) {
	start := time.Now()

	chunks, err := s.retriever.Retrieve(ctx, question, topK, hybrid)
	if err != nil {
		applog.Warn("[Chat] Retrieval failed, answering without context", "error", err)
		chunks = nil
	}

	userPrompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\nPlease provide a comprehensive answer based on the context provided above.",
		formatContext(chunks), question)

	answer, err := s.llm.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	return &Answer{
		ID:           uuid.New().String(),
		Answer:       answer,
		Sources:      collectSources(chunks),
		ContextCount: len(chunks),
		ElapsedMs:    time.Since(start).Milliseconds(),
	}, nil
}

// formatContext 将检索结果格式化为提示词中的上下文段
func formatContext(chunks []rag.RetrievedChunk) string {
	if len(chunks) == 0 {
		return "No relevant context found."
	}

	var sb strings.Builder
	for i, chunk := range chunks {
		sb.WriteString(fmt.Sprintf("[%d] ", i+1))
		if chunk.Filename != "" {
			sb.WriteString(chunk.Filename)
			sb.WriteString("\n")
		}
		sb.WriteString(chunk.Text)
		if chunk.SourceURL != "" {
			sb.WriteString(fmt.Sprintf("\n(source: %s)", chunk.SourceURL))
		}
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String())
}

// collectSources 按 doc_id 去重收集来源
func collectSources(chunks []rag.RetrievedChunk) []Source {
	seen := make(map[string]bool, len(chunks))
	var sources []Source
	for _, chunk := range chunks {
		if seen[chunk.DocID] {
			continue
		}
		seen[chunk.DocID] = true
		score := chunk.CombinedScore
		if score == 0 {
			score = chunk.Score
		}
		sources = append(sources, Source{
			DocID:     chunk.DocID,
			Filename:  chunk.Filename,
			SourceURL: chunk.SourceURL,
			Score:     score,
		})
	}
	return sources
}
