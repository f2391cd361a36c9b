package search

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bowerhall/graphmem/internal/graph"
)

func newTestStore(t *testing.T) *graph.Store {
	t.Helper()

	store, err := graph.Open(":memory:", graph.Options{Dimensions: 4})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func testConfig() Config {
	return Config{
		RRFK:           60,
		IDFFloor:       0.5,
		MinSimilarity:  0.3,
		MinHybridScore: 0.01,
		DefaultTopK:    10,
	}
}

type fixedEmbedder struct {
	vectors map[string][]float32
}

func (f *fixedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 0, 1}, nil
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("provider down")
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"i", "moved", "to", "springfield"}, Tokenize("I moved to Springfield!"))
	assert.Equal(t, []string{"it", "s", "2026"}, Tokenize("it's 2026"))
	assert.Empty(t, Tokenize("..."))
}

func TestEmptyCorpusReturnsEmptyResult(t *testing.T) {
	store := newTestStore(t)
	r := NewRetriever(store, testConfig())

	resp, err := r.Search(context.Background(), "alice", "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.False(t, resp.Degraded)
}

func TestSearchRoundTrip(t *testing.T) {
	store := newTestStore(t)
	store.SetEmbedder(&fixedEmbedder{vectors: map[string][]float32{
		"sarah works at acme corp": {1, 0, 0, 0},
		"the weather is nice":      {0, 1, 0, 0},
	}})
	r := NewRetriever(store, testConfig())
	ctx := context.Background()

	_, err := store.AddDocument(ctx, "alice", "sarah works at acme corp", nil)
	require.NoError(t, err)
	_, err = store.AddDocument(ctx, "alice", "the weather is nice", nil)
	require.NoError(t, err)

	resp, err := r.Search(ctx, "alice", "sarah works at acme corp", 5)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.False(t, resp.Degraded)
	assert.Equal(t, "sarah works at acme corp", resp.Results[0].Document.Text)
	assert.Greater(t, resp.Results[0].Score, testConfig().MinHybridScore)
}

func TestDegradedLexicalOnlyOnEmbedderFailure(t *testing.T) {
	store := newTestStore(t)
	store.SetEmbedder(failingEmbedder{})
	r := NewRetriever(store, testConfig())
	ctx := context.Background()

	_, err := store.AddDocument(ctx, "alice", "sarah moved to springfield", nil)
	require.NoError(t, err)
	_, err = store.AddDocument(ctx, "alice", "bob likes fishing", nil)
	require.NoError(t, err)

	resp, err := r.Search(ctx, "alice", "springfield", 5)
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "sarah moved to springfield", resp.Results[0].Document.Text)
}

func TestSmallCorpusLexicalFallback(t *testing.T) {
	store := newTestStore(t)
	r := NewRetriever(store, testConfig())
	ctx := context.Background()

	// with one document every term's IDF sits below the floor; without an
	// embedder the ranking falls back to unfloored term overlap instead of
	// returning nothing
	_, err := store.AddDocument(ctx, "alice", "sarah moved to springfield", nil)
	require.NoError(t, err)

	resp, err := r.Search(ctx, "alice", "sarah moved to springfield", 5)
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "sarah moved to springfield", resp.Results[0].Document.Text)
	assert.Greater(t, resp.Results[0].Score, testConfig().MinHybridScore)
}

type flakyEmbedder struct {
	fixedEmbedder
	fail map[string]bool
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.fail[text] {
		return nil, errors.New("provider hiccup")
	}
	return f.fixedEmbedder.Embed(ctx, text)
}

func TestDocumentWithoutVectorStillRanksLexically(t *testing.T) {
	store := newTestStore(t)
	store.SetEmbedder(&flakyEmbedder{
		fixedEmbedder: fixedEmbedder{vectors: map[string][]float32{
			"bob likes fishing": {0, 1, 0, 0},
			"springfield":       {1, 0, 0, 0},
		}},
		fail: map[string]bool{"sarah moved to springfield": true},
	})
	r := NewRetriever(store, testConfig())
	ctx := context.Background()

	_, err := store.AddDocument(ctx, "alice", "bob likes fishing", nil)
	require.NoError(t, err)

	// embedding fails at insert time, the document is stored without a
	// vector row but must remain reachable by keyword
	_, err = store.AddDocument(ctx, "alice", "sarah moved to springfield", nil)
	require.NoError(t, err)

	resp, err := r.Search(ctx, "alice", "springfield", 5)
	require.NoError(t, err)
	assert.False(t, resp.Degraded)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "sarah moved to springfield", resp.Results[0].Document.Text)
	assert.Zero(t, resp.Results[0].VectorScore)
	assert.Greater(t, resp.Results[0].LexicalScore, 0.0)
}

func TestIDFFloorFiltersCommonTerms(t *testing.T) {
	store := newTestStore(t)
	r := NewRetriever(store, testConfig())
	ctx := context.Background()

	// 26 documents, "today" appears in 16 of them plus once in a rare doc
	for i := 0; i < 15; i++ {
		_, err := store.AddDocument(ctx, "alice", fmt.Sprintf("today was day number %d", i), nil)
		require.NoError(t, err)
	}
	_, err := store.AddDocument(ctx, "alice", "today the eclipse happened", nil)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		_, err := store.AddDocument(ctx, "alice", fmt.Sprintf("note entry %d about nothing", i), nil)
		require.NoError(t, err)
	}

	c := buildCorpus(collectTexts(t, store, "alice"))
	require.Equal(t, 26, c.size())
	require.Equal(t, 16, c.df["today"])

	// df=16 of 26 falls below the floor, df=1 stays well above it
	assert.Less(t, c.idf("today"), 0.5)
	assert.Greater(t, c.idf("eclipse"), 0.5)

	assert.Empty(t, c.filterTerms([]string{"today"}, 0.5))
	assert.Equal(t, []string{"eclipse"}, c.filterTerms([]string{"eclipse"}, 0.5))

	// the full query keeps only the rare term, so only the eclipse doc matches
	resp, err := r.Search(ctx, "alice", "today eclipse", 5)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "today the eclipse happened", resp.Results[0].Document.Text)
}

func TestRareTermScoresHigh(t *testing.T) {
	texts := []string{
		"today the eclipse happened",
		"today was ordinary",
		"today was ordinary again",
	}
	c := buildCorpus(texts)

	// "eclipse" df=1 out of 3
	assert.Greater(t, c.score(0, []string{"eclipse"}), c.score(1, []string{"eclipse"}))
	assert.Greater(t, c.idf("eclipse"), c.idf("today"))
}

func TestSimilarityFloorAppliedBeforeFusion(t *testing.T) {
	store := newTestStore(t)
	store.SetEmbedder(&fixedEmbedder{vectors: map[string][]float32{
		"cats and more cats": {1, 0, 0, 0},
		"cats mentioned once in an unrelated rant": {0, 1, 0, 0},
		"tell me about cats":                       {1, 0, 0, 0},
	}})
	r := NewRetriever(store, testConfig())
	ctx := context.Background()

	_, err := store.AddDocument(ctx, "alice", "cats and more cats", nil)
	require.NoError(t, err)
	_, err = store.AddDocument(ctx, "alice", "cats mentioned once in an unrelated rant", nil)
	require.NoError(t, err)

	resp, err := r.Search(ctx, "alice", "tell me about cats", 5)
	require.NoError(t, err)

	// the orthogonal document shares the keyword but sits below the
	// similarity floor, so it never enters rank fusion
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "cats and more cats", resp.Results[0].Document.Text)
}

func TestVectorOnlyWhenAllTermsFloored(t *testing.T) {
	store := newTestStore(t)
	store.SetEmbedder(&fixedEmbedder{vectors: map[string][]float32{
		"note one":   {1, 0, 0, 0},
		"note two":   {0.9, 0.1, 0, 0},
		"note three": {0, 1, 0, 0},
		"note":       {1, 0, 0, 0},
	}})
	cfg := testConfig()
	cfg.IDFFloor = 10 // force every term out
	r := NewRetriever(store, cfg)
	ctx := context.Background()

	for _, text := range []string{"note one", "note two", "note three"} {
		_, err := store.AddDocument(ctx, "alice", text, nil)
		require.NoError(t, err)
	}

	resp, err := r.Search(ctx, "alice", "note", 5)
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "note one", resp.Results[0].Document.Text)
	assert.Zero(t, resp.Results[0].LexicalScore)
}

func collectTexts(t *testing.T, store *graph.Store, ownerID string) []string {
	t.Helper()

	docs, err := store.Documents(ownerID)
	require.NoError(t, err)

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	return texts
}
