package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/rag"
)

type fakeAsker struct {
	answer    *rag.Answer
	err       error
	documents []string
}

func (f *fakeAsker) Ask(_ context.Context, _ string, documentID string) (*rag.Answer, error) {
	f.documents = append(f.documents, documentID)
	return f.answer, f.err
}

func sized(t *testing.T, m Model) Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model)
}

func enter(t *testing.T, m Model, line string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(line)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

func TestModel_LoadingUntilSized(t *testing.T) {
	m := New(context.Background(), Config{Asker: &fakeAsker{}, NoColor: true})

	assert.Equal(t, "Loading...", m.View())
	assert.Contains(t, sized(t, m).View(), "No messages yet.")
}

func TestModel_AskShowsAnswerWithSources(t *testing.T) {
	// Given: an asker that answers from one PDF fragment
	page := 2
	asker := &fakeAsker{answer: &rag.Answer{
		Answer: "Plants turn light into energy.",
		Sources: []rag.Source{{
			FragmentID: "bio_4",
			DocumentID: "bio",
			Source:     "biology.pdf",
			Page:       &page,
			Content:    "Photosynthesis converts sunlight into chemical energy.",
		}},
	}}
	m := sized(t, New(context.Background(), Config{Asker: asker, NoColor: true}))

	// When: a question is entered
	m, cmd := enter(t, m, "What does photosynthesis do?")

	// Then: the question is shown and the model waits for the answer
	require.NotNil(t, cmd)
	assert.True(t, m.pending)
	assert.Empty(t, m.input.Value())
	assert.Contains(t, m.View(), "Thinking...")

	// When: the answer arrives
	next, _ := m.Update(m.ask("What does photosynthesis do?")())
	m = next.(Model)

	// Then: the transcript holds both turns and the numbered source
	assert.False(t, m.pending)
	transcript := m.renderTranscript()
	assert.Contains(t, transcript, "What does photosynthesis do?")
	assert.Contains(t, transcript, "Plants turn light into energy.")
	assert.Contains(t, transcript, "[1] biology.pdf, page 3: Photosynthesis converts")
	assert.Equal(t, []string{""}, asker.documents)
}

func TestModel_DocCommandScopesQuestions(t *testing.T) {
	asker := &fakeAsker{answer: &rag.Answer{Answer: rag.NoContextAnswer}}
	m := sized(t, New(context.Background(), Config{Asker: asker, NoColor: true}))

	m, cmd := enter(t, m, "/doc 7f3a")
	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "(document 7f3a)")

	_ = m.ask("anything")()
	m, _ = enter(t, m, "/doc")
	_ = m.ask("anything")()

	assert.Equal(t, []string{"7f3a", ""}, asker.documents)
	assert.Contains(t, m.renderTranscript(), "Scope: active document")
}

func TestModel_ErrorIsShownInTranscript(t *testing.T) {
	asker := &fakeAsker{err: errors.New("generation backend unavailable")}
	m := sized(t, New(context.Background(), Config{Asker: asker, NoColor: true}))

	m, _ = enter(t, m, "hello there")
	next, _ := m.Update(m.ask("hello there")())
	m = next.(Model)

	assert.Contains(t, m.renderTranscript(), "Error: generation backend unavailable")
	assert.False(t, m.pending)
}

func TestModel_IgnoresInputWhilePending(t *testing.T) {
	m := sized(t, New(context.Background(), Config{Asker: &fakeAsker{answer: &rag.Answer{}}, NoColor: true}))

	m, _ = enter(t, m, "first")
	m, cmd := enter(t, m, "second")

	assert.Nil(t, cmd)
	assert.Len(t, m.turns, 1)
}

func TestModel_EmptyInputAndUnknownCommand(t *testing.T) {
	m := sized(t, New(context.Background(), Config{Asker: &fakeAsker{}, NoColor: true}))

	m, cmd := enter(t, m, "   ")
	assert.Nil(t, cmd)
	assert.Empty(t, m.turns)

	m, _ = enter(t, m, "/bogus")
	assert.Contains(t, m.renderTranscript(), "Unknown command /bogus")

	m, _ = enter(t, m, "/clear")
	assert.Empty(t, m.turns)
}

func TestModel_QuitKeys(t *testing.T) {
	m := sized(t, New(context.Background(), Config{Asker: &fakeAsker{}, NoColor: true}))

	for _, key := range []tea.KeyType{tea.KeyEsc, tea.KeyCtrlC} {
		_, cmd := m.Update(tea.KeyMsg{Type: key})
		require.NotNil(t, cmd)
		assert.IsType(t, tea.QuitMsg{}, cmd())
	}

	_, cmd := enter(t, m, "/quit")
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestDescribeError(t *testing.T) {
	assert.Equal(t, "request cancelled", describeError(context.Canceled))
	assert.Equal(t, "boom", describeError(errors.New("boom")))
}
