package rag

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learnhub/internal/logger"
	"learnhub/internal/models"
)

var vocabulary = []string{"cell", "mitochondria", "energy", "river", "water", "delta", "tax", "budget"}

// bagOfWords embeds text as term counts over a tiny vocabulary plus a bias
// dimension so no vector is zero.
func bagOfWords(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, len(vocabulary)+1)
	v[len(vocabulary)] = 0.1
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,?!")
		for i, term := range vocabulary {
			if w == term {
				v[i]++
			}
		}
	}
	return v, nil
}

type fakeLLM struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	err     error
}

func (f *fakeLLM) Generate(_ context.Context, prompt string, _ []models.Media) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func newStore(t *testing.T, llm LLM, topK int) *Store {
	t.Helper()
	s, err := New(chromem.NewDB(), Config{ChunkSize: 1000, ChunkOverlap: 200, TopK: topK}, bagOfWords, llm, nil, logger.Nop())
	require.NoError(t, err)
	return s
}

func add(t *testing.T, s *Store, user string, public bool, name, text string) uuid.UUID {
	t.Helper()
	res, err := s.Add(context.Background(), Document{UserID: user, IsPublic: public, Filename: name, Text: text})
	require.NoError(t, err)
	return res.DocumentID
}

func TestAddSplitsIntoPassages(t *testing.T) {
	s := newStore(t, &fakeLLM{}, 5)
	text := strings.Repeat("The cell makes energy. ", 100)

	res, err := s.Add(context.Background(), Document{UserID: "u1", Filename: "bio.txt", Text: text})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, res.DocumentID)
	assert.Equal(t, 3, res.Chunks)
	assert.Equal(t, 3, s.Count())

	_, err = s.Add(context.Background(), Document{UserID: "u1", Filename: "empty.txt"})
	assert.Error(t, err)
}

func TestRetrieveHonoursVisibility(t *testing.T) {
	s := newStore(t, &fakeLLM{}, 5)
	own := add(t, s, "alice", false, "alice.txt", "The mitochondria is the energy source of the cell.")
	public := add(t, s, "bob", true, "bob.txt", "A cell needs energy.")
	add(t, s, "carol", false, "carol.txt", "The cell stores energy in mitochondria.")

	sources, err := s.Retrieve(context.Background(), "alice", "cell energy mitochondria")
	require.NoError(t, err)
	require.Len(t, sources, 2)

	ids := []string{sources[0].DocumentID, sources[1].DocumentID}
	assert.ElementsMatch(t, []string{own.String(), public.String()}, ids)
	assert.GreaterOrEqual(t, sources[0].Similarity, sources[1].Similarity)

	anonymous, err := s.Retrieve(context.Background(), "", "cell energy")
	require.NoError(t, err)
	require.Len(t, anonymous, 1)
	assert.Equal(t, "bob.txt", anonymous[0].Filename)
}

func TestRetrieveClampsToTopK(t *testing.T) {
	s := newStore(t, &fakeLLM{}, 2)
	add(t, s, "u", true, "a.txt", "river water")
	add(t, s, "u", true, "b.txt", "river delta")
	add(t, s, "u", true, "c.txt", "water delta river")

	sources, err := s.Retrieve(context.Background(), "u", "river water delta")
	require.NoError(t, err)
	assert.Len(t, sources, 2)
	assert.Equal(t, "c.txt", sources[0].Filename)
}

func TestRetrieveEmpty(t *testing.T) {
	s := newStore(t, &fakeLLM{}, 5)

	sources, err := s.Retrieve(context.Background(), "u", "anything")
	require.NoError(t, err)
	assert.Empty(t, sources)

	_, err = s.Retrieve(context.Background(), "u", "")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestQueryAnswersFromPassages(t *testing.T) {
	llm := &fakeLLM{reply: "Rivers end in a delta [1]."}
	s := newStore(t, llm, 3)
	add(t, s, "u", false, "geo.txt", "A river carries water to the delta.")
	add(t, s, "u", false, "money.txt", "The tax budget.")

	ans, err := s.Query(context.Background(), "u", "Where does a river end?")
	require.NoError(t, err)
	assert.Equal(t, "Rivers end in a delta [1].", ans.Answer)
	require.NotEmpty(t, ans.Sources)
	assert.Equal(t, "geo.txt", ans.Sources[0].Filename)

	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "[1] A river carries water to the delta.")
	assert.Contains(t, llm.prompts[0], "Question: Where does a river end?")
}

func TestQueryWithoutDocumentsSkipsLLM(t *testing.T) {
	llm := &fakeLLM{}
	s := newStore(t, llm, 3)

	ans, err := s.Query(context.Background(), "u", "anything?")
	require.NoError(t, err)
	assert.Empty(t, ans.Sources)
	assert.Empty(t, llm.prompts)
}

func TestQueryLLMError(t *testing.T) {
	s := newStore(t, &fakeLLM{err: errors.New("quota")}, 3)
	add(t, s, "u", true, "a.txt", "cell energy")

	_, err := s.Query(context.Background(), "u", "cell")
	assert.ErrorContains(t, err, "quota")
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(chromem.NewDB(), Config{ChunkSize: 100, ChunkOverlap: 200, TopK: 1}, bagOfWords, &fakeLLM{}, nil, logger.Nop())
	assert.Error(t, err)

	_, err = New(chromem.NewDB(), Config{ChunkSize: 1000, ChunkOverlap: 200}, bagOfWords, &fakeLLM{}, nil, logger.Nop())
	assert.Error(t, err)
}
