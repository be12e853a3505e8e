// Package chunker splits raw documents into bounded, heading-aware chunks.
// Chunking is a pure function of (content, metadata, path, config): the same
// input always yields byte-identical chunk lists.
package chunker

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/VaultPilotAI/vaultpilot-mvp/engine/domain"
)

const (
	// DefaultMaxChunkSize is the target token budget per chunk.
	DefaultMaxChunkSize = 512
	// DefaultChunkOverlap is the number of tokens shared by consecutive
	// chunks split from one section.
	DefaultChunkOverlap = 50
	// IntroHeading is the implicit heading for content before the first
	// markdown heading.
	IntroHeading = "Introduction"
)

// Strategy selects how oversized sections are handled.
type Strategy string

const (
	// StrategySimple never splits inside a section.
	StrategySimple Strategy = "simple"
	// StrategyAdvanced splits oversized sections with a token sliding window.
	StrategyAdvanced Strategy = "advanced"
	// StrategyAuto picks simple or advanced per document from the
	// structure/complexity heuristic.
	StrategyAuto Strategy = "auto"
)

// Config tunes the chunker. The hybrid thresholds are calibration constants,
// not invariants; see DESIGN.md.
type Config struct {
	MaxChunkSize        int
	ChunkOverlap        int
	Strategy            Strategy
	StructureThreshold  float64
	ComplexityThreshold float64
	Tokenizer           Tokenizer
}

// DefaultConfig returns the standard chunker configuration.
func DefaultConfig() Config {
	return Config{
		MaxChunkSize:        DefaultMaxChunkSize,
		ChunkOverlap:        DefaultChunkOverlap,
		Strategy:            StrategyAuto,
		StructureThreshold:  0.15,
		ComplexityThreshold: 0.6,
		Tokenizer:           WordTokenizer{},
	}
}

// Chunker splits documents according to its Config. Safe for concurrent use:
// it holds no mutable state.
type Chunker struct {
	cfg Config
}

// New validates the config and returns a Chunker. ChunkOverlap must be
// strictly less than MaxChunkSize so the window start always advances.
func New(cfg Config) (*Chunker, error) {
	if cfg.MaxChunkSize <= 0 {
		return nil, fmt.Errorf("chunker: max chunk size must be positive, got %d", cfg.MaxChunkSize)
	}
	if cfg.ChunkOverlap < 0 {
		return nil, fmt.Errorf("chunker: overlap must be non-negative, got %d", cfg.ChunkOverlap)
	}
	if cfg.ChunkOverlap >= cfg.MaxChunkSize {
		return nil, fmt.Errorf("chunker: overlap %d must be less than max chunk size %d", cfg.ChunkOverlap, cfg.MaxChunkSize)
	}
	switch cfg.Strategy {
	case StrategySimple, StrategyAdvanced, StrategyAuto, "":
	default:
		return nil, fmt.Errorf("chunker: unknown strategy %q", cfg.Strategy)
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyAuto
	}
	if cfg.Tokenizer == nil {
		cfg.Tokenizer = WordTokenizer{}
	}
	return &Chunker{cfg: cfg}, nil
}

// section is a heading-delimited slice of the document.
type section struct {
	heading string
	body    string
}

// Chunk splits content into chunks, carrying meta onto each one. A document
// that cannot be chunked yields a *domain.ChunkingError.
func (c *Chunker) Chunk(content string, meta domain.Metadata, path string) ([]domain.Chunk, error) {
	if strings.TrimSpace(content) == "" {
		return nil, &domain.ChunkingError{Path: path, Err: fmt.Errorf("empty content")}
	}

	sections, hadHeadings := splitSections(content)
	if len(sections) == 0 {
		return nil, &domain.ChunkingError{Path: path, Err: fmt.Errorf("no non-empty sections")}
	}

	method, confidence := c.resolveMethod(content)

	var chunks []domain.Chunk
	index := 0
	emit := func(heading, body string) {
		body = strings.TrimSpace(body)
		if body == "" {
			return
		}
		chunks = append(chunks, domain.Chunk{
			SourcePath:       path,
			Index:            index,
			Content:          body,
			Heading:          heading,
			TokenCount:       c.cfg.Tokenizer.Count(body),
			WordCount:        len(strings.Fields(body)),
			CharCount:        len([]rune(body)),
			Method:           method,
			MethodConfidence: confidence,
			Meta:             meta,
		})
		index++
	}

	for _, sec := range sections {
		tokens := c.cfg.Tokenizer.Encode(sec.body)
		switch {
		case len(tokens) <= c.cfg.MaxChunkSize || method == domain.MethodSimple:
			emit(sec.heading, sec.body)
		case !hadHeadings:
			// Long unstructured text: pack whole sentences into windows
			// instead of cutting mid-sentence.
			for i, part := range c.packSentences(sec.body) {
				emit(fmt.Sprintf("%s (Part %d)", sec.heading, i+1), part)
			}
		default:
			for i, part := range c.slideWindow(tokens) {
				emit(fmt.Sprintf("%s (Part %d)", sec.heading, i+1), part)
			}
		}
	}

	if len(chunks) == 0 {
		return nil, &domain.ChunkingError{Path: path, Err: fmt.Errorf("no non-empty sections")}
	}
	return chunks, nil
}

// resolveMethod applies the configured strategy, running the hybrid heuristic
// only for StrategyAuto.
func (c *Chunker) resolveMethod(content string) (domain.ChunkingMethod, float64) {
	switch c.cfg.Strategy {
	case StrategySimple:
		return domain.MethodSimple, 1.0
	case StrategyAdvanced:
		return domain.MethodAdvanced, 1.0
	}
	return c.selectMethod(content)
}

// slideWindow cuts a token sequence into windows of MaxChunkSize with
// stride MaxChunkSize-ChunkOverlap. The final window may be shorter. The
// start index strictly advances each iteration (overlap < max is enforced in
// New), so this always terminates.
func (c *Chunker) slideWindow(tokens []string) []string {
	stride := c.cfg.MaxChunkSize - c.cfg.ChunkOverlap
	var parts []string
	for start := 0; start < len(tokens); start += stride {
		end := start + c.cfg.MaxChunkSize
		if end > len(tokens) {
			end = len(tokens)
		}
		parts = append(parts, c.cfg.Tokenizer.Decode(tokens[start:end]))
		if end == len(tokens) {
			break
		}
	}
	return parts
}

// packSentences greedily packs whole sentences into windows near
// MaxChunkSize, carrying ChunkOverlap tokens of trailing sentences into the
// next window. A single sentence that alone exceeds the window is
// token-split so no part breaks the size bound.
func (c *Chunker) packSentences(text string) []string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return []string{text}
	}

	var parts []string
	start := 0
	for start < len(sentences) {
		tokens := 0
		end := start
		for end < len(sentences) {
			n := c.cfg.Tokenizer.Count(sentences[end])
			if tokens+n > c.cfg.MaxChunkSize && tokens > 0 {
				break
			}
			tokens += n
			end++
		}
		if end == start+1 && tokens > c.cfg.MaxChunkSize {
			// A lone sentence over the window size: token-split it instead
			// of emitting an oversized part.
			parts = append(parts, c.slideWindow(c.cfg.Tokenizer.Encode(sentences[start]))...)
			start = end
			continue
		}
		parts = append(parts, strings.Join(sentences[start:end], " "))

		// Back up over trailing sentences until the overlap budget is met.
		overlap := 0
		next := end
		for next > start && overlap < c.cfg.ChunkOverlap {
			next--
			overlap += c.cfg.Tokenizer.Count(sentences[next])
		}
		if next == start {
			next = end // whole window fits inside the overlap; move on
		}
		start = next
	}
	return parts
}

// splitSections cuts content at markdown headings (levels 1-3). Content
// before the first heading becomes the implicit Introduction section. The
// second return reports whether any heading was seen.
func splitSections(content string) ([]section, bool) {
	var sections []section
	var body strings.Builder
	heading := IntroHeading
	hadHeadings := false

	flush := func() {
		if strings.TrimSpace(body.String()) != "" {
			sections = append(sections, section{heading: heading, body: strings.TrimSpace(body.String())})
		}
		body.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		if h, ok := headingText(line); ok {
			flush()
			heading = h
			hadHeadings = true
			continue
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	flush()
	return sections, hadHeadings
}

// headingText returns the text of a level 1-3 markdown heading line.
func headingText(line string) (string, bool) {
	trimmed := strings.TrimLeft(line, " \t")
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level < 1 || level > 3 {
		return "", false
	}
	rest := trimmed[level:]
	if rest != "" && !strings.HasPrefix(rest, " ") {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// splitSentences splits text on sentence terminators followed by whitespace
// or end of input.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if i == len(runes)-1 || unicode.IsSpace(runes[i+1]) {
				if s := strings.TrimSpace(current.String()); s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
			}
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
