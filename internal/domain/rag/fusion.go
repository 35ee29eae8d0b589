package rag

import (
	"fmt"
	"sort"
)

// Fuse 将向量检索与词法检索的结果融合为一个排序列表。
// 约定：所有向量得分已归一化为 [0,1] 相似度（越大越近），贡献 = 相似度 × vectorWeight；
// 词法命中贡献 = textWeight（已存在的条目叠加并标记 TextMatch）。
// 权重必须非负，不要求和为 1。
func Fuse(vectorHits []ScoredChunk, textHits []Chunk, topK int, vectorWeight, textWeight float64) ([]RetrievedChunk, error) {
	if vectorWeight < 0 || textWeight < 0 {
		return nil, fmt.Errorf("negative fusion weight: vector=%v text=%v", vectorWeight, textWeight)
	}

	// 保持插入顺序：向量种子在前，纯词法命中在后，等分时序稳定
	index := make(map[string]int, len(vectorHits)+len(textHits))
	var entries []RetrievedChunk

	for _, hit := range vectorHits {
		key := hit.Key()
		if _, ok := index[key]; ok {
			continue
		}
		index[key] = len(entries)
		entries = append(entries, RetrievedChunk{
			Chunk:         hit.Chunk,
			Score:         hit.Score,
			CombinedScore: clamp01(hit.Score) * vectorWeight,
		})
	}

	for _, hit := range textHits {
		key := hit.Key()
		if i, ok := index[key]; ok {
			entries[i].CombinedScore += textWeight
			entries[i].TextMatch = true
			continue
		}
		index[key] = len(entries)
		entries = append(entries, RetrievedChunk{
			Chunk:         hit,
			CombinedScore: textWeight,
			TextMatch:     true,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CombinedScore > entries[j].CombinedScore
	})

	if topK > 0 && len(entries) > topK {
		entries = entries[:topK]
	}
	return entries, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
