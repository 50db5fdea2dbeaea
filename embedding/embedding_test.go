package embedding

import (
	"context"
	"math"
	"testing"
)

func cosine(a, b Vector) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestLocalEmbedderDeterministic(t *testing.T) {
	e := NewLocalEmbedder(0)
	ctx := context.Background()

	a, err := e.Embed(ctx, "the quarterly revenue report")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	b, err := e.Embed(ctx, "the quarterly revenue report")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}

	if len(a) != e.Dims() {
		t.Fatalf("got %d dims, want %d", len(a), e.Dims())
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d: %v != %v", i, a[i], b[i])
		}
	}
}

func TestLocalEmbedderUnitLength(t *testing.T) {
	e := NewLocalEmbedder(64)
	v, err := e.Embed(context.Background(), "standup is at nine thirty")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if math.Abs(norm-1.0) > 1e-5 {
		t.Fatalf("squared norm = %v, want 1.0", norm)
	}
}

func TestLocalEmbedderEmptyText(t *testing.T) {
	e := NewLocalEmbedder(32)
	v, err := e.Embed(context.Background(), "   ")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	for i, x := range v {
		if x != 0 {
			t.Fatalf("expected zero vector, got %v at %d", x, i)
		}
	}
}

func TestLocalEmbedderSimilarityOrdering(t *testing.T) {
	e := NewLocalEmbedder(0)
	ctx := context.Background()

	query, _ := e.Embed(ctx, "quarterly revenue report")
	overlap, _ := e.Embed(ctx, "revenue report for the third quarter")
	disjoint, _ := e.Embed(ctx, "grocery list milk eggs bread")

	if cosine(query, overlap) <= cosine(query, disjoint) {
		t.Fatalf("overlapping text scored %v, disjoint %v; want overlap higher",
			cosine(query, overlap), cosine(query, disjoint))
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Hello, World!", []string{"hello", "world"}},
		{"a_b c-d", []string{"a", "b", "c", "d"}},
		{"", nil},
		{"Déjà vu 42", []string{"déjà", "vu", "42"}},
	}
	for _, tt := range tests {
		got := tokenize(tt.in)
		if len(got) != len(tt.want) {
			t.Errorf("tokenize(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("tokenize(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}

func TestNewProviderSelection(t *testing.T) {
	if e, err := New("", ""); err != nil || e == nil {
		t.Fatalf("empty provider: got (%v, %v), want local embedder", e, err)
	}
	if e, err := New("local", ""); err != nil || e == nil {
		t.Fatalf("local provider: got (%v, %v)", e, err)
	}
	if e, err := New("none", ""); err != nil || e != nil {
		t.Fatalf("none provider: got (%v, %v), want nil embedder", e, err)
	}
	if _, err := New("carrier-pigeon", ""); err == nil {
		t.Fatal("unknown provider should error")
	}
}
