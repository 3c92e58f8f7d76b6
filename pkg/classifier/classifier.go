// Package classifier assigns a category label to incoming files. It runs a
// two-tier strategy: a time-bounded LLM call refines the label when a model
// is configured, and a deterministic MIME/extension mapping always stands in
// when the model is absent, slow, or failing. Classify never returns an
// error; the caller always gets a usable, non-empty category.
package classifier

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/filevault/filevault/pkg/logging"
)

const (
	// DefaultTimeout bounds a single LLM call. Exceeding it is treated the
	// same as any other model failure.
	DefaultTimeout = 10 * time.Second

	// maxSampleBytes caps the content prefix handed to the model.
	maxSampleBytes = 512

	maxCategoryLength = 64
)

var textExtensions = extensionSet("txt", "md", "json", "xml", "yaml", "yml", "csv", "log")

// Classifier assigns categories to files.
type Classifier struct {
	llm     llms.Model
	timeout time.Duration
	logger  *logging.Logger
}

// New creates a Classifier around the given model. A nil model disables the
// LLM tier so only the heuristic mapping runs.
func New(llm llms.Model, timeout time.Duration, logger *logging.Logger) *Classifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Classifier{llm: llm, timeout: timeout, logger: logger}
}

// NewOllama creates a Classifier backed by a local Ollama model. An empty
// model name disables the LLM tier.
func NewOllama(model string, timeout time.Duration, logger *logging.Logger) (*Classifier, error) {
	if model == "" {
		return New(nil, timeout, logger), nil
	}
	llm, err := ollama.New(ollama.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	return New(llm, timeout, logger), nil
}

// Classify returns a category for the file. declaredMIME may be empty or
// untrustworthy; content may be nil.
func (c *Classifier) Classify(ctx context.Context, name, declaredMIME string, content []byte) string {
	mimeType := declaredMIME
	if mimeType == "" && len(content) > 0 {
		mimeType = mimetype.Detect(content).String()
	}

	detected := DetectKind(mimeType, name)
	if c.llm == nil {
		return detected
	}

	refined, err := c.refine(ctx, name, detected, sample(mimeType, name, content))
	if err != nil {
		c.logger.Warn("classification model unavailable, using heuristic category",
			"file", name, "category", detected, "error", err)
		return detected
	}
	return refined
}

func (c *Classifier) refine(ctx context.Context, name, detected, contentSample string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := buildPrompt(name, detected, contentSample)
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem,
			"You are a file categorization assistant. Respond with only the category name."),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	response, err := c.llm.GenerateContent(ctx, content)
	if err != nil {
		return "", err
	}
	if len(response.Choices) < 1 {
		return "", fmt.Errorf("empty response from model")
	}

	category := strings.TrimSpace(response.Choices[0].Content)
	if idx := strings.IndexByte(category, '\n'); idx >= 0 {
		category = strings.TrimSpace(category[:idx])
	}
	if category == "" || len(category) > maxCategoryLength {
		return "", fmt.Errorf("unusable category from model: %q", category)
	}
	return category, nil
}

func buildPrompt(name, detected, contentSample string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this file and provide a specific category for it.\n\n")
	fmt.Fprintf(&b, "File name: %s\n", name)
	fmt.Fprintf(&b, "Detected type: %s\n", detected)
	if contentSample != "" {
		fmt.Fprintf(&b, "File content (first %d bytes): %s\n", maxSampleBytes, contentSample)
	}
	b.WriteString(`
Return only the category name from the following options or a relevant custom category:
Images, Videos, Audio, Documents, Spreadsheets, Presentations, Archives,
Code, Configuration, Personal, Work, Education, Entertainment, Other.
`)
	return b.String()
}

// sample returns a bounded, valid-UTF-8 prefix of content for text-like
// files, or empty for binary types so the prompt never carries raw bytes.
func sample(mimeType, name string, content []byte) string {
	if len(content) == 0 {
		return ""
	}
	_, textExt := textExtensions[extension(name)]
	if !strings.HasPrefix(mimeType, "text/") && !textExt {
		return ""
	}

	if len(content) > maxSampleBytes {
		content = content[:maxSampleBytes]
	}
	for len(content) > 0 && !utf8.Valid(content) {
		content = content[:len(content)-1]
	}
	return string(content)
}
