package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/shiya-bot/shiya/internal/shiya/llm"
)

// stubProvider is a test double for llm.Provider.
type stubProvider struct {
	reply    string
	err      error
	calls    int
	captured llm.Request
}

func (s *stubProvider) Complete(_ context.Context, req llm.Request) (string, error) {
	s.calls++
	s.captured = req
	return s.reply, s.err
}

var _ llm.Provider = (*stubProvider)(nil)

// seedShort records n exchanges (2n turns) for uid.
func seedShort(t *testing.T, store *Store, uid string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		store.AddExchange(context.Background(), uid, fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
	}
}

func TestMaybeSummarize_SkipsWhenReferencedUsers(t *testing.T) {
	store := newTestStore(0)
	seedShort(t, store, "1", 10)
	p := &stubProvider{reply: "likes tea"}
	s := &Summarizer{Memory: store, Provider: p}

	s.MaybeSummarize(context.Background(), "1", true)

	if p.calls != 0 {
		t.Errorf("extraction call attempted despite referenced users (%d calls)", p.calls)
	}
	if facts := store.GetFacts(context.Background(), "1"); len(facts) != 0 {
		t.Errorf("no facts should be stored, got %v", facts)
	}
}

func TestMaybeSummarize_SkipsShallowHistory(t *testing.T) {
	store := newTestStore(0)
	seedShort(t, store, "1", 3) // 6 turns < 8
	p := &stubProvider{reply: "likes tea"}
	s := &Summarizer{Memory: store, Provider: p}

	s.MaybeSummarize(context.Background(), "1", false)

	if p.calls != 0 {
		t.Errorf("extraction call attempted for shallow history (%d calls)", p.calls)
	}
}

func TestMaybeSummarize_StoresParsedFacts(t *testing.T) {
	store := newTestStore(0)
	seedShort(t, store, "1", 5) // 10 turns
	p := &stubProvider{reply: "- likes tea\n\n* lives in Tokyo\n  • answers late at night \n"}
	s := &Summarizer{Memory: store, Provider: p}
	ctx := context.Background()

	s.MaybeSummarize(ctx, "1", false)

	if p.calls != 1 {
		t.Fatalf("expected exactly one extraction call, got %d", p.calls)
	}

	want := []string{"likes tea", "lives in Tokyo", "answers late at night"}
	got := store.GetFacts(ctx, "1")
	if len(got) != len(want) {
		t.Fatalf("facts: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("facts[%d]: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMaybeSummarize_TranscriptContainsAllTurns(t *testing.T) {
	store := newTestStore(0)
	seedShort(t, store, "1", 4)
	p := &stubProvider{reply: ""}
	s := &Summarizer{Memory: store, Provider: p}

	s.MaybeSummarize(context.Background(), "1", false)

	if p.calls != 1 {
		t.Fatalf("expected one call, got %d", p.calls)
	}
	transcript := p.captured.Messages[len(p.captured.Messages)-1].Content
	if !strings.Contains(transcript, "user: q0") || !strings.Contains(transcript, "assistant: a3") {
		t.Errorf("transcript incomplete:\n%s", transcript)
	}
}

func TestMaybeSummarize_SwallowsProviderError(t *testing.T) {
	store := newTestStore(0)
	seedShort(t, store, "1", 5)
	p := &stubProvider{err: errors.New("upstream exploded")}
	s := &Summarizer{Memory: store, Provider: p}
	ctx := context.Background()

	// Must not panic or propagate.
	s.MaybeSummarize(ctx, "1", false)

	if facts := store.GetFacts(ctx, "1"); len(facts) != 0 {
		t.Errorf("failed extraction should store nothing, got %v", facts)
	}
}

func TestParseFactLines(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "empty", in: "", want: nil},
		{name: "whitespace only", in: "  \n \t \n", want: nil},
		{name: "plain lines", in: "a\nb", want: []string{"a", "b"}},
		{name: "dash markers", in: "- a\n- b", want: []string{"a", "b"}},
		{name: "mixed markers", in: "* a\n• b\n  - c  ", want: []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseFactLines(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("line %d: got %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
