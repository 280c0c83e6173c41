package ingestion

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"github.com/Ryanakml/pdf-chatbots/config"
	"github.com/Ryanakml/pdf-chatbots/vectorstore"
)

const (
	defaultChunkSize        = 1000
	defaultChunkOverlap     = 200
	defaultMaxMetadataBytes = 36000
)

var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunk is one retrievable unit of a page. SourceHash doubles as the vector ID.
type Chunk struct {
	Text       string
	PageNumber int
	SourceHash string
	Metadata   vectorstore.Metadata
}

// Chunker splits page text recursively on paragraph, line, sentence and word
// boundaries. Sizes are measured in runes.
type Chunker struct {
	ChunkSize        int
	ChunkOverlap     int
	MaxMetadataBytes int
	MetadataMode     string
}

func NewChunker(cfg config.ChunkingConfig) Chunker {
	return Chunker{
		ChunkSize:        cfg.Size,
		ChunkOverlap:     cfg.Overlap,
		MaxMetadataBytes: cfg.MaxMetadataBytes,
		MetadataMode:     cfg.MetadataMode,
	}
}

func (c Chunker) normalized() Chunker {
	if c.ChunkSize <= 0 {
		c.ChunkSize = defaultChunkSize
		if c.ChunkOverlap == 0 {
			c.ChunkOverlap = defaultChunkOverlap
		}
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = 0
	}
	if c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = c.ChunkSize / 4
	}
	if c.MaxMetadataBytes <= 0 {
		c.MaxMetadataBytes = defaultMaxMetadataBytes
	}
	if c.MetadataMode == "" {
		c.MetadataMode = config.MetadataChunk
	}
	return c
}

// ChunkPage splits one page. Blank pages produce no chunks.
func (c Chunker) ChunkPage(page Page) []Chunk {
	c = c.normalized()
	if strings.TrimSpace(page.Text) == "" {
		return nil
	}

	pageMeta := ""
	if c.MetadataMode == config.MetadataPage {
		pageMeta = TruncateBytes(page.Text, c.MaxMetadataBytes)
	}

	texts := c.SplitText(page.Text)
	chunks := make([]Chunk, 0, len(texts))
	for _, text := range texts {
		meta := pageMeta
		if c.MetadataMode != config.MetadataPage {
			meta = TruncateBytes(text, c.MaxMetadataBytes)
		}
		chunks = append(chunks, Chunk{
			Text:       text,
			PageNumber: page.Number,
			SourceHash: SourceHash(text),
			Metadata:   vectorstore.Metadata{Text: meta, PageNumber: page.Number},
		})
	}
	return chunks
}

// ChunkPages splits every page in order.
func (c Chunker) ChunkPages(pages []Page) []Chunk {
	var chunks []Chunk
	for _, page := range pages {
		chunks = append(chunks, c.ChunkPage(page)...)
	}
	return chunks
}

// SplitText returns the trimmed, non-empty chunks of text.
func (c Chunker) SplitText(text string) []string {
	c = c.normalized()
	return c.split(text, defaultSeparators)
}

func (c Chunker) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var rest []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var (
		out  []string
		good []string
	)
	for _, piece := range splitKeepingSeparator(text, separator) {
		if utf8.RuneCountInString(piece) < c.ChunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			out = append(out, c.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			if trimmed := strings.TrimSpace(piece); trimmed != "" {
				out = append(out, trimmed)
			}
			continue
		}
		out = append(out, c.split(piece, rest)...)
	}
	if len(good) > 0 {
		out = append(out, c.merge(good)...)
	}
	return out
}

// merge packs pieces greedily up to ChunkSize, carrying at most ChunkOverlap
// trailing runes into the next chunk.
func (c Chunker) merge(pieces []string) []string {
	var (
		out     []string
		current []string
		total   int
	)
	for _, piece := range pieces {
		n := utf8.RuneCountInString(piece)
		if total+n > c.ChunkSize && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
				out = append(out, doc)
			}
			for total > c.ChunkOverlap || (total+n > c.ChunkSize && total > 0) {
				total -= utf8.RuneCountInString(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += n
	}
	if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
		out = append(out, doc)
	}
	return out
}

func splitKeepingSeparator(text, separator string) []string {
	var parts []string
	if separator == "" {
		parts = strings.Split(text, "")
	} else {
		parts = strings.SplitAfter(text, separator)
	}
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// TruncateBytes returns the longest prefix of s that fits in n bytes without
// splitting a UTF-8 sequence.
func TruncateBytes(s string, n int) string {
	if n < 0 {
		n = 0
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// SourceHash is the lowercase hex MD5 of text.
func SourceHash(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}
