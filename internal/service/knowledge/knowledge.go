// Package knowledge loads reference documents from disk and retrieves the
// passages most relevant to a question.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino-ext/components/document/transformer/splitter/recursive"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTopK         = 3
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 20

	MetaSource     = "source"
	MetaChunkIndex = "chunk_index"
)

// Options controls chunking and retrieval.
type Options struct {
	TopK         int
	ChunkSize    int
	ChunkOverlap int
	Logger       logrus.FieldLogger
}

func (o Options) withDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.ChunkOverlap < 0 {
		o.ChunkOverlap = DefaultChunkOverlap
	}
	if o.ChunkOverlap >= o.ChunkSize {
		o.ChunkOverlap = 0
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return o
}

// Base is an in-memory set of chunks. It implements retriever.Retriever.
type Base struct {
	chunks []*schema.Document
	terms  []map[string]int
	topK   int
}

var _ retriever.Retriever = (*Base)(nil)

// NewBase indexes documents that are already split.
func NewBase(chunks []*schema.Document, topK int) *Base {
	if topK <= 0 {
		topK = DefaultTopK
	}
	b := &Base{chunks: chunks, terms: make([]map[string]int, len(chunks)), topK: topK}
	for i, c := range chunks {
		b.terms[i] = termCounts(c.Content)
	}
	return b
}

// chunkSeparators are tried in order; "" falls back to single runes.
var chunkSeparators = []string{"\n\n", "\n", " ", ""}

// Load reads every regular file under dir through the eino file loader and
// splits the text into chunks of at most opts.ChunkSize runes. A missing or empty dir yields an empty Base.
func Load(ctx context.Context, dir string, opts Options) (*Base, error) {
	opts = opts.withDefaults()
	if strings.TrimSpace(dir) == "" {
		return NewBase(nil, opts.TopK), nil
	}
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			opts.Logger.WithField("dir", dir).Warn("knowledge directory missing, answering without context")
			return NewBase(nil, opts.TopK), nil
		}
		return nil, fmt.Errorf("stat knowledge dir: %w", err)
	}

	extParser, err := parser.NewExtParser(ctx, &parser.ExtParserConfig{
		FallbackParser: parser.TextParser{},
	})
	if err != nil {
		return nil, fmt.Errorf("init parser: %w", err)
	}
	loader, err := file.NewFileLoader(ctx, &file.FileLoaderConfig{
		UseNameAsID: true,
		Parser:      extParser,
	})
	if err != nil {
		return nil, fmt.Errorf("init file loader: %w", err)
	}
	splitter, err := recursive.NewSplitter(ctx, &recursive.Config{
		ChunkSize:   opts.ChunkSize,
		OverlapSize: opts.ChunkOverlap,
		Separators:  chunkSeparators,
		LenFunc:     utf8.RuneCountInString,
	})
	if err != nil {
		return nil, fmt.Errorf("init splitter: %w", err)
	}

	var chunks []*schema.Document
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		docs, err := loader.Load(ctx, document.Source{URI: path})
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			rel = d.Name()
		}
		var text strings.Builder
		for _, doc := range docs {
			if content := strings.TrimSpace(doc.Content); content != "" {
				text.WriteString(content)
				text.WriteString("\n\n")
			}
		}
		if strings.TrimSpace(text.String()) == "" {
			return nil
		}
		parts, err := splitter.Transform(ctx, []*schema.Document{{ID: rel, Content: text.String()}})
		if err != nil {
			return fmt.Errorf("split %s: %w", path, err)
		}
		i := 0
		for _, part := range parts {
			content := strings.TrimSpace(part.Content)
			if content == "" {
				continue
			}
			chunks = append(chunks, &schema.Document{
				ID:      fmt.Sprintf("%s#%d", rel, i),
				Content: content,
				MetaData: map[string]any{
					MetaSource:     rel,
					MetaChunkIndex: i,
				},
			})
			i++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	opts.Logger.WithFields(logrus.Fields{"dir": dir, "chunks": len(chunks)}).Info("knowledge base loaded")
	return NewBase(chunks, opts.TopK), nil
}

// Len reports the number of indexed chunks.
func (b *Base) Len() int { return len(b.chunks) }

// Retrieve returns up to top-k chunks sharing terms with query, best first.
// Chunks with equal scores keep their load order.
func (b *Base) Retrieve(_ context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	topK := b.topK
	options := retriever.GetCommonOptions(&retriever.Options{TopK: &topK}, opts...)
	if options.TopK != nil && *options.TopK > 0 {
		topK = *options.TopK
	}

	queryTerms := termCounts(query)
	if len(queryTerms) == 0 || len(b.chunks) == 0 {
		return nil, nil
	}

	type hit struct {
		idx   int
		score float64
	}
	hits := make([]hit, 0, len(b.chunks))
	for i, terms := range b.terms {
		var score float64
		for term := range queryTerms {
			score += float64(terms[term])
		}
		if score > 0 {
			hits = append(hits, hit{idx: i, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > topK {
		hits = hits[:topK]
	}

	out := make([]*schema.Document, 0, len(hits))
	for _, h := range hits {
		src := b.chunks[h.idx]
		doc := &schema.Document{ID: src.ID, Content: src.Content, MetaData: make(map[string]any, len(src.MetaData)+1)}
		for k, v := range src.MetaData {
			doc.MetaData[k] = v
		}
		out = append(out, doc.WithScore(h.score))
	}
	return out, nil
}

// FormatContext joins retrieved chunks into a prompt section.
func FormatContext(docs []*schema.Document) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		if d == nil || strings.TrimSpace(d.Content) == "" {
			continue
		}
		parts = append(parts, strings.TrimSpace(d.Content))
	}
	return strings.Join(parts, "\n\n")
}

func termCounts(text string) map[string]int {
	counts := make(map[string]int)
	for _, field := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(field)) < 3 || stopWords[field] {
			continue
		}
		counts[field]++
	}
	return counts
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "with": true, "that": true,
	"this": true, "what": true, "how": true, "can": true, "you": true, "have": true,
	"has": true, "was": true, "not": true, "but": true, "from": true, "about": true,
	"should": true, "would": true, "could": true, "does": true, "your": true,
}
