package search

import "math"

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// corpus holds term statistics over one owner's full document set. Lexical
// scoring needs corpus-wide frequencies, so it is always built from every
// candidate, never a pre-truncated top-N.
type corpus struct {
	docTerms []map[string]int
	docLens  []int
	df       map[string]int
	avgLen   float64
}

func buildCorpus(texts []string) *corpus {
	c := &corpus{
		docTerms: make([]map[string]int, len(texts)),
		docLens:  make([]int, len(texts)),
		df:       make(map[string]int),
	}

	var total int
	for i, text := range texts {
		terms := Tokenize(text)
		counts := make(map[string]int, len(terms))
		for _, t := range terms {
			counts[t]++
		}

		c.docTerms[i] = counts
		c.docLens[i] = len(terms)
		total += len(terms)

		for t := range counts {
			c.df[t]++
		}
	}

	if len(texts) > 0 {
		c.avgLen = float64(total) / float64(len(texts))
	}

	return c
}

func (c *corpus) size() int {
	return len(c.docTerms)
}

func (c *corpus) idf(term string) float64 {
	n := float64(len(c.docTerms))
	df := float64(c.df[term])
	return math.Log((n-df+0.5)/(df+0.5) + 1)
}

// filterTerms drops query terms whose IDF falls below the floor. Terms that
// appear in nearly every document carry no signal and only add noise.
func (c *corpus) filterTerms(terms []string, idfFloor float64) []string {
	var kept []string
	for _, t := range terms {
		if c.idf(t) >= idfFloor {
			kept = append(kept, t)
		}
	}
	return kept
}

// score computes a BM25 score for one document: saturating term frequency
// normalized by document length relative to the corpus average.
func (c *corpus) score(docIdx int, terms []string) float64 {
	counts := c.docTerms[docIdx]
	docLen := float64(c.docLens[docIdx])

	var total float64
	for _, t := range terms {
		tf := float64(counts[t])
		if tf == 0 {
			continue
		}

		norm := bm25K1 * (1 - bm25B + bm25B*docLen/c.avgLen)
		total += c.idf(t) * tf * (bm25K1 + 1) / (tf + norm)
	}

	return total
}
