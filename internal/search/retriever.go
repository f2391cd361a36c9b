package search

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/bowerhall/graphmem/internal/graph"
	"github.com/bowerhall/graphmem/internal/logger"
)

type Config struct {
	RRFK           int
	IDFFloor       float64
	MinSimilarity  float64
	MinHybridScore float64
	DefaultTopK    int
}

type Retriever struct {
	store *graph.Store
	cfg   Config
}

type Result struct {
	Document     *graph.Document
	Score        float64
	VectorScore  float64
	LexicalScore float64
}

type Response struct {
	Results []*Result
	// Degraded marks a lexical-only ranking taken because the embedding
	// provider was unavailable.
	Degraded bool
}

func NewRetriever(store *graph.Store, cfg Config) *Retriever {
	if cfg.RRFK == 0 {
		cfg.RRFK = 60
	}
	if cfg.DefaultTopK == 0 {
		cfg.DefaultTopK = 10
	}
	return &Retriever{store: store, cfg: cfg}
}

// Search ranks the owner's documents against the query by fusing vector
// similarity and lexical scoring with reciprocal-rank fusion.
func (r *Retriever) Search(ctx context.Context, ownerID, query string, topK int) (*Response, error) {
	if topK <= 0 {
		topK = r.cfg.DefaultTopK
	}

	docs, err := r.store.Documents(ownerID)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return &Response{}, nil
	}

	texts := make([]string, len(docs))
	index := make(map[int64]int, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
		index[d.ID] = i
	}

	c := buildCorpus(texts)
	queryTerms := Tokenize(query)
	terms := c.filterTerms(queryTerms, r.cfg.IDFFloor)

	vector := make([]float64, len(docs))
	hasVec := make([]bool, len(docs))
	degraded := false

	if r.store.HasEmbedder() {
		scored, err := r.store.SimilarDocuments(ctx, ownerID, query, len(docs))
		if err != nil {
			logger.Get().Warn("embedding provider unavailable, lexical-only search",
				zap.String("owner_id", ownerID), zap.Error(err))
			degraded = true
		} else {
			for _, sd := range scored {
				if i, ok := index[sd.Document.ID]; ok {
					vector[i] = sd.Similarity
					hasVec[i] = true
				}
			}
		}
	} else {
		degraded = true
	}

	if len(terms) == 0 && degraded {
		// a small corpus can floor every query term; with no vector signal
		// to fall back on, rank on raw term overlap instead
		terms = queryTerms
	}

	lexical := make([]float64, len(docs))
	for i := range docs {
		lexical[i] = c.score(i, terms)
	}

	results := r.fuse(docs, vector, lexical, hasVec, degraded, len(terms) > 0)

	if len(results) > topK {
		results = results[:topK]
	}

	return &Response{Results: results, Degraded: degraded}, nil
}

// fuse ranks candidates by each available signal and combines ranks with
// 1/(k+rank). The similarity floor is applied before fusion so keyword-only
// false positives cannot ride in on a lexical rank alone.
func (r *Retriever) fuse(docs []*graph.Document, vector, lexical []float64, hasVec []bool, degraded, hasTerms bool) []*Result {
	useVector := !degraded
	useLexical := hasTerms
	if !useVector && !useLexical {
		// no ranking signal at all, nothing to fuse
		return nil
	}

	var vecList, lexList []int
	for i := range docs {
		if useVector && hasVec[i] && vector[i] < r.cfg.MinSimilarity {
			// below the relevance floor the candidate is out entirely,
			// a lexical rank alone must not resurrect it. A document with
			// no vector row (embedding failed at insert) has no similarity
			// to floor and still ranks lexically.
			continue
		}

		if useVector && vector[i] > 0 {
			vecList = append(vecList, i)
		}
		if useLexical && lexical[i] > 0 {
			lexList = append(lexList, i)
		}
	}

	vecRank := rankBy(vecList, vector)
	lexRank := rankBy(lexList, lexical)

	k := float64(r.cfg.RRFK)
	seen := make(map[int]bool)
	var results []*Result

	for _, i := range append(append([]int{}, vecList...), lexList...) {
		if seen[i] {
			continue
		}
		seen[i] = true

		var score float64
		if rank, ok := vecRank[i]; ok {
			score += 1 / (k + float64(rank))
		}
		if rank, ok := lexRank[i]; ok {
			score += 1 / (k + float64(rank))
		}

		if score < r.cfg.MinHybridScore {
			continue
		}

		results = append(results, &Result{
			Document:     docs[i],
			Score:        score,
			VectorScore:  vector[i],
			LexicalScore: lexical[i],
		})
	}

	sort.Slice(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})

	return results
}

// rankBy assigns 1-based ranks to candidate indexes ordered by descending
// score.
func rankBy(candidates []int, scores []float64) map[int]int {
	ordered := make([]int, len(candidates))
	copy(ordered, candidates)

	sort.SliceStable(ordered, func(a, b int) bool {
		return scores[ordered[a]] > scores[ordered[b]]
	})

	ranks := make(map[int]int, len(ordered))
	for pos, i := range ordered {
		ranks[i] = pos + 1
	}

	return ranks
}
