package semantic

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

// entry 是索引中的一条向量记录。向量在插入时归一化，之后不再修改。
type entry struct {
	fingerprint string
	vector      []float64
	createdAt   time.Time
	expiresAt   time.Time
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// Match 是一次最近邻查询的结果。
type Match struct {
	Fingerprint string
	Similarity  float64
	CreatedAt   time.Time
}

// Index 是按类别分区的内存向量索引。
// 相似度度量为归一化向量的余弦相似度；条目规模为每类别数百到数千，
// 线性扫描足够，不需要图索引。
type Index struct {
	mu         sync.RWMutex
	categories map[string]map[string]*entry // category -> fingerprint -> entry
	logger     *zap.Logger
}

// NewIndex 创建向量索引。
func NewIndex(logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{
		categories: make(map[string]map[string]*entry),
		logger:     logger.With(zap.String("component", "semantic_index")),
	}
}

// Add 插入或覆盖一条向量记录（last write wins）。
// 零向量无法归一化，直接忽略。
func (idx *Index) Add(category, fingerprint string, vector []float64, createdAt time.Time, ttl time.Duration) {
	normalized, ok := Normalize(vector)
	if !ok {
		idx.logger.Warn("skipping zero-norm vector",
			zap.String("category", category),
			zap.String("fingerprint", fingerprint),
		)
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	bucket, exists := idx.categories[category]
	if !exists {
		bucket = make(map[string]*entry)
		idx.categories[category] = bucket
	}

	bucket[fingerprint] = &entry{
		fingerprint: fingerprint,
		vector:      normalized,
		createdAt:   createdAt,
		expiresAt:   createdAt.Add(ttl),
	}
}

// Nearest 在同一类别内查找相似度 ≥ threshold 的最近邻。
// 多个候选时返回相似度最高者；相似度相同时取最近创建的条目。
// 过期条目跳过并顺手清除。
func (idx *Index) Nearest(category string, vector []float64, threshold float64) (Match, bool) {
	normalized, ok := Normalize(vector)
	if !ok {
		return Match{}, false
	}

	now := time.Now()

	idx.mu.Lock()
	defer idx.mu.Unlock()

	bucket, exists := idx.categories[category]
	if !exists {
		return Match{}, false
	}

	var best *entry
	bestSim := 0.0

	for fp, e := range bucket {
		if e.expired(now) {
			delete(bucket, fp)
			continue
		}

		sim := dot(normalized, e.vector)
		if sim < threshold {
			continue
		}
		if best == nil || sim > bestSim || (sim == bestSim && e.createdAt.After(best.createdAt)) {
			best = e
			bestSim = sim
		}
	}

	if best == nil {
		return Match{}, false
	}

	return Match{
		Fingerprint: best.fingerprint,
		Similarity:  bestSim,
		CreatedAt:   best.createdAt,
	}, true
}

// Remove 删除一条记录。
func (idx *Index) Remove(category, fingerprint string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if bucket, exists := idx.categories[category]; exists {
		delete(bucket, fingerprint)
	}
}

// Size 返回类别内未过期条目数。
func (idx *Index) Size(category string) int {
	now := time.Now()

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	count := 0
	for _, e := range idx.categories[category] {
		if !e.expired(now) {
			count++
		}
	}
	return count
}

// Normalize 返回单位向量副本。零向量返回 false。
func Normalize(v []float64) ([]float64, bool) {
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 || len(v) == 0 {
		return nil, false
	}
	norm = math.Sqrt(norm)

	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out, true
}

// CosineSimilarity 计算两个向量的余弦相似度。
// 维度不一致或零向量返回 0。
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// dot 计算两个已归一化向量的点积（即余弦相似度）。
func dot(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
