// Package embedding provides the text embedders used by the vector
// storage backend. The local embedder is deterministic and needs no
// network; the REST providers call an Ollama or OpenAI-compatible
// endpoint.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode"
)

// Vector is a float32 embedding vector.
type Vector = []float32

// Embedder generates embedding vectors from text.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
	Dims() int
}

const localDims = 256

// LocalEmbedder hashes tokens into a fixed-width bag-of-words vector
// with FNV-1a. Deterministic, offline, and adequate for keyword-style
// retrieval; swap in a REST provider for semantic quality.
type LocalEmbedder struct {
	dims int
}

// NewLocalEmbedder creates a local hashing embedder. dims <= 0 selects
// the default width.
func NewLocalEmbedder(dims int) *LocalEmbedder {
	if dims <= 0 {
		dims = localDims
	}
	return &LocalEmbedder{dims: dims}
}

func (e *LocalEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	vec := make(Vector, e.dims)
	for _, tok := range tokenize(text) {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()
		i := int(sum % uint64(e.dims))
		// The top bit signs the contribution so unrelated tokens
		// landing in one bucket tend to cancel rather than pile up.
		if sum>>63 == 1 {
			vec[i]--
		} else {
			vec[i]++
		}
	}

	// Normalize to unit length so cosine distance is meaningful.
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

func (e *LocalEmbedder) Dims() int { return e.dims }

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// restClient is the shared HTTP plumbing for the remote providers.
type restClient struct {
	baseURL string
	headers map[string]string
	client  *http.Client
}

func newRESTClient(baseURL string) *restClient {
	return &restClient{
		baseURL: baseURL,
		headers: make(map[string]string),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *restClient) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("embedding endpoint returned %d: %s", resp.StatusCode, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// OllamaEmbedder calls a local Ollama instance.
type OllamaEmbedder struct {
	rest  *restClient
	model string
	dims  int
}

// NewOllamaEmbedder creates an Ollama-backed embedder. Known models:
// nomic-embed-text (768 dims), all-minilm (384 dims).
func NewOllamaEmbedder(model string) *OllamaEmbedder {
	baseURL := os.Getenv("OLLAMA_HOST")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	dims := 768
	if model == "all-minilm" {
		dims = 384
	}
	return &OllamaEmbedder{rest: newRESTClient(baseURL), model: model, dims: dims}
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	var out struct {
		Embedding Vector `json:"embedding"`
	}
	err := e.rest.postJSON(ctx, "/api/embeddings", map[string]string{
		"model":  e.model,
		"prompt": text,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	return out.Embedding, nil
}

func (e *OllamaEmbedder) Dims() int { return e.dims }

// OpenAIEmbedder calls any OpenAI-compatible embeddings API.
type OpenAIEmbedder struct {
	rest  *restClient
	model string
	dims  int
}

// NewOpenAIEmbedder creates an embedder for an OpenAI-compatible API.
func NewOpenAIEmbedder(baseURL, apiKey, model string, dims int) *OpenAIEmbedder {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	if dims == 0 {
		dims = 1536
	}
	rest := newRESTClient(baseURL)
	if apiKey != "" {
		rest.headers["Authorization"] = "Bearer " + apiKey
	}
	return &OpenAIEmbedder{rest: rest, model: model, dims: dims}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	var out struct {
		Data []struct {
			Embedding Vector `json:"embedding"`
		} `json:"data"`
	}
	err := e.rest.postJSON(ctx, "/embeddings", map[string]string{
		"input": text,
		"model": e.model,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("openai: no embedding returned")
	}
	return out.Data[0].Embedding, nil
}

func (e *OpenAIEmbedder) Dims() int { return e.dims }

// New constructs an embedder for the given provider. The empty provider
// and "local" select the offline hashing embedder; "none" disables
// embeddings and returns nil.
func New(provider, model string) (Embedder, error) {
	switch provider {
	case "", "local":
		return NewLocalEmbedder(0), nil
	case "none":
		return nil, nil
	case "ollama":
		if model == "" {
			model = "nomic-embed-text"
		}
		return NewOllamaEmbedder(model), nil
	case "openai":
		return NewOpenAIEmbedder(os.Getenv("OPENAI_BASE_URL"), os.Getenv("OPENAI_API_KEY"), model, 0), nil
	}
	return nil, fmt.Errorf("unknown embedding provider: %s", provider)
}
