package rag

import (
	"math"
	"testing"
)

func mkChunk(docID, chunkID, text string) Chunk {
	return Chunk{DocID: docID, ChunkID: chunkID, Text: text}
}

// TestFuseDualMatchScore 两路同时命中时组合得分等于两路贡献之和
func TestFuseDualMatchScore(t *testing.T) {
	vectorHits := []ScoredChunk{
		{Chunk: mkChunk("d1", "chunk_0", "alpha"), Score: 0.8},
	}
	textHits := []Chunk{
		mkChunk("d1", "chunk_0", "alpha"),
	}

	merged, err := Fuse(vectorHits, textHits, 5, 0.7, 0.3)
	if err != nil {
		t.Fatalf("fuse failed: %v", err)
	}
	if len(merged) != 1 {
		t.Fatalf("expected 1 result, got %d", len(merged))
	}

	want := 0.8*0.7 + 0.3
	if math.Abs(merged[0].CombinedScore-want) > 1e-9 {
		t.Errorf("expected combined score %v, got %v", want, merged[0].CombinedScore)
	}
	if !merged[0].TextMatch {
		t.Error("expected text_match to be set on dual match")
	}
}

// TestFuseSingleSideContributions 只命中一路的条目只获得该路贡献
func TestFuseSingleSideContributions(t *testing.T) {
	vectorHits := []ScoredChunk{
		{Chunk: mkChunk("d1", "chunk_0", "vector only"), Score: 0.5},
	}
	textHits := []Chunk{
		mkChunk("d2", "chunk_0", "text only"),
	}

	merged, err := Fuse(vectorHits, textHits, 5, 0.7, 0.3)
	if err != nil {
		t.Fatalf("fuse failed: %v", err)
	}
	if len(merged) != 2 {
		t.Fatalf("expected 2 results, got %d", len(merged))
	}

	byKey := map[string]RetrievedChunk{}
	for _, m := range merged {
		byKey[m.Key()] = m
	}

	v := byKey["d1:chunk_0"]
	if math.Abs(v.CombinedScore-0.35) > 1e-9 {
		t.Errorf("vector-only score: want 0.35, got %v", v.CombinedScore)
	}
	if v.TextMatch {
		t.Error("vector-only entry must not be marked text_match")
	}

	tx := byKey["d2:chunk_0"]
	if math.Abs(tx.CombinedScore-0.3) > 1e-9 {
		t.Errorf("text-only score: want 0.3, got %v", tx.CombinedScore)
	}
	if !tx.TextMatch {
		t.Error("text-only entry must be marked text_match")
	}
}

// TestFuseTopKTruncation 结果截断到 topK
func TestFuseTopKTruncation(t *testing.T) {
	var vectorHits []ScoredChunk
	for i, score := range []float64{0.9, 0.8, 0.7, 0.6} {
		vectorHits = append(vectorHits, ScoredChunk{
			Chunk: mkChunk("d1", "chunk_"+string(rune('0'+i)), "t"),
			Score: score,
		})
	}

	merged, err := Fuse(vectorHits, nil, 2, 0.7, 0.3)
	if err != nil {
		t.Fatalf("fuse failed: %v", err)
	}
	if len(merged) != 2 {
		t.Fatalf("expected 2 results after truncation, got %d", len(merged))
	}
	if merged[0].CombinedScore < merged[1].CombinedScore {
		t.Error("results not sorted descending")
	}
}

// TestFuseTieStability 等分条目保持插入顺序：向量种子在前
func TestFuseTieStability(t *testing.T) {
	vectorHits := []ScoredChunk{
		// 贡献 1.0*0.3 = 0.3，与纯词法贡献 0.3 并列
		{Chunk: mkChunk("d1", "chunk_0", "vec"), Score: 1.0},
	}
	textHits := []Chunk{
		mkChunk("d2", "chunk_0", "text"),
	}

	merged, err := Fuse(vectorHits, textHits, 5, 0.3, 0.3)
	if err != nil {
		t.Fatalf("fuse failed: %v", err)
	}
	if len(merged) != 2 {
		t.Fatalf("expected 2 results, got %d", len(merged))
	}
	if merged[0].DocID != "d1" {
		t.Errorf("expected vector-seeded entry first on tie, got %s", merged[0].DocID)
	}
}

// TestFuseNegativeWeights 负权重视为融合失败
func TestFuseNegativeWeights(t *testing.T) {
	if _, err := Fuse(nil, nil, 5, -0.1, 0.3); err == nil {
		t.Fatal("expected error for negative vector weight")
	}
	if _, err := Fuse(nil, nil, 5, 0.7, -1); err == nil {
		t.Fatal("expected error for negative text weight")
	}
}

// TestFuseEmptyInputs 空输入产生空输出
func TestFuseEmptyInputs(t *testing.T) {
	merged, err := Fuse(nil, nil, 5, 0.7, 0.3)
	if err != nil {
		t.Fatalf("fuse failed: %v", err)
	}
	if len(merged) != 0 {
		t.Fatalf("expected empty result, got %d entries", len(merged))
	}
}
