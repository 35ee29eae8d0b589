package redisdb

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	domainrag "docqa/internal/domain/rag"
)

// encodeVector 将向量编码为小端 FLOAT32 二进制串（RediSearch VECTOR 字段格式）
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeVector 解码小端 FLOAT32 二进制串
func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}

// chunkFields 将 Chunk 展开为哈希字段
func chunkFields(c *domainrag.Chunk) map[string]interface{} {
	return map[string]interface{}{
		"doc_id":        c.DocID,
		"chunk_id":      c.ChunkID,
		"text":          c.Text,
		"source_url":    c.SourceURL,
		"filename":      c.Filename,
		"last_modified": strconv.FormatFloat(c.LastModified, 'f', -1, 64),
		"embedding":     encodeVector(c.Embedding),
	}
}

// parseChunk 从哈希字段还原 Chunk。embedding 解码失败返回错误，由扫描方跳过。
func parseChunk(fields map[string]string) (*domainrag.Chunk, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty record")
	}

	chunk := &domainrag.Chunk{
		DocID:     fields["doc_id"],
		ChunkID:   fields["chunk_id"],
		Text:      fields["text"],
		SourceURL: fields["source_url"],
		Filename:  fields["filename"],
	}
	if chunk.DocID == "" || chunk.ChunkID == "" {
		return nil, fmt.Errorf("record missing doc_id or chunk_id")
	}

	if raw := fields["last_modified"]; raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			chunk.LastModified = v
		}
	}

	if raw, ok := fields["embedding"]; ok && raw != "" {
		vec, err := decodeVector([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("decode embedding: %w", err)
		}
		chunk.Embedding = vec
	}

	return chunk, nil
}

// chunkField 按索引字段名取值，用于回退路径的等值过滤
func chunkField(c *domainrag.Chunk, field string) string {
	switch field {
	case "doc_id":
		return c.DocID
	case "chunk_id":
		return c.ChunkID
	case "source_url":
		return c.SourceURL
	case "filename":
		return c.Filename
	default:
		return ""
	}
}

// cosineSimilarity 计算余弦相似度 dot(a,b)/(‖a‖·‖b‖)。
// 维度不一致或任一向量为零范数时 ok=false（未定义，按不匹配处理）。
func cosineSimilarity(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}

// queryReserved RediSearch 查询语法保留字符
const queryReserved = `,.<>{}[]"':;!@#$%^&*()-+=~/\|? `

// escapeQuery 转义用户输入中的引擎保留字符，避免查询语法注入
func escapeQuery(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if r < 128 && strings.ContainsRune(queryReserved, r) {
			if r == ' ' {
				// 空格保留为词项分隔
				sb.WriteRune(r)
				continue
			}
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
