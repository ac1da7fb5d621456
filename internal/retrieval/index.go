package retrieval

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/miradorstack/ids-eval/internal/models"
)

// TextIndex answers top-k note lookups for a traffic window.
type TextIndex interface {
	Retrieve(window models.WindowRecord, k int) ([]string, error)
}

// Hit is a scored corpus note.
type Hit struct {
	Position   int
	Text       string
	Similarity float64
}

// Index is an in-memory TF-IDF index over a small note corpus. The corpus is
// loaded on first use and never reloaded.
type Index struct {
	logger *slog.Logger
	load   func() ([]string, error)

	once    sync.Once
	loadErr error
	notes   []string
	vec     *Vectorizer
	docs    []SparseVector
}

// NewIndex returns an index backed by the corpus file at path.
func NewIndex(logger *slog.Logger, path string) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{logger: logger, load: func() ([]string, error) { return LoadCorpus(path) }}
}

// NewIndexFromNotes returns an index over an in-memory corpus.
func NewIndexFromNotes(notes []string) *Index {
	snapshot := append([]string(nil), notes...)
	return &Index{logger: slog.Default(), load: func() ([]string, error) { return snapshot, nil }}
}

func (ix *Index) build() error {
	ix.once.Do(func() {
		notes, err := ix.load()
		if err != nil {
			ix.loadErr = fmt.Errorf("load corpus: %w", err)
			return
		}
		ix.notes = notes
		ix.vec = FitVectorizer(notes)
		ix.docs = make([]SparseVector, len(notes))
		for i, n := range notes {
			ix.docs[i] = ix.vec.Transform(n)
		}
		ix.logger.Debug("retrieval index built", slog.Int("notes", len(notes)), slog.Int("terms", ix.vec.VocabularySize()))
	})
	return ix.loadErr
}

// Retrieve returns up to k notes most similar to the window's summary.
func (ix *Index) Retrieve(window models.WindowRecord, k int) ([]string, error) {
	hits, err := ix.Search(Query(window), k)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Text
	}
	return out, nil
}

// Search ranks notes by cosine similarity to query, descending, with ties
// kept in corpus order.
func (ix *Index) Search(query string, k int) ([]Hit, error) {
	if err := ix.build(); err != nil {
		return nil, err
	}
	if k <= 0 || len(ix.notes) == 0 {
		return nil, nil
	}

	q := ix.vec.Transform(query)
	hits := make([]Hit, len(ix.notes))
	for i, doc := range ix.docs {
		hits[i] = Hit{Position: i, Text: ix.notes[i], Similarity: q.Dot(doc)}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Query renders a window as the terse metric=value summary used for retrieval.
func Query(w models.WindowRecord) string {
	return fmt.Sprintf("%s=%.0f %s=%.0f %s=%.2f %s=%.3f",
		models.FeatureBytesPerSec, w.BytesPerSec,
		models.FeaturePktsPerSec, w.PktsPerSec,
		models.FeatureSynRate, w.SynRate,
		models.FeatureFailedConnRate, w.FailedConnRate,
	)
}
