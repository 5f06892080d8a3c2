package session

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policychat-backend/models"
)

var testExts = []string{".txt", ".pdf", ".md"}

func TestSessionHistory(t *testing.T) {
	t.Run("Should record an exchange as ordered question and answer entries", func(t *testing.T) {
		s := newSession("s1", testExts)
		s.Lock()
		defer s.Unlock()

		s.AppendExchange("what is the dress code?", "business casual")
		s.AppendExchange("any exceptions?", "fridays")

		history := s.History()
		require.Len(t, history, 4)
		assert.Equal(t, models.HistoryEntry{Role: models.RoleQuestion, Text: "what is the dress code?"}, history[0])
		assert.Equal(t, models.HistoryEntry{Role: models.RoleAnswer, Text: "business casual"}, history[1])
		assert.Equal(t, models.RoleQuestion, history[2].Role)
		assert.Equal(t, models.RoleAnswer, history[3].Role)
	})

	t.Run("Should clear history without touching staged documents", func(t *testing.T) {
		s := newSession("s1", testExts)
		s.Lock()
		defer s.Unlock()

		store, err := s.EnsureScratch()
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Destroy() })
		_, err = store.Stage("doc.txt", []byte("content"))
		require.NoError(t, err)
		s.AppendExchange("q", "a")

		s.ClearHistory()

		assert.Empty(t, s.History())
		require.NotNil(t, s.Scratch())
		assert.Equal(t, 1, s.Scratch().Count())
	})
}

func TestSessionStorage(t *testing.T) {
	t.Run("Should tolerate clearing storage when none exists", func(t *testing.T) {
		s := newSession("s1", testExts)
		s.Lock()
		defer s.Unlock()

		require.NoError(t, s.ClearStorage())
		assert.Nil(t, s.Scratch())
	})

	t.Run("Should hand out a fresh store after clearing storage", func(t *testing.T) {
		s := newSession("s1", testExts)
		s.Lock()
		defer s.Unlock()

		first, err := s.EnsureScratch()
		require.NoError(t, err)
		firstDir := first.Dir()
		require.NoError(t, s.ClearStorage())

		second, err := s.EnsureScratch()
		require.NoError(t, err)
		t.Cleanup(func() { _ = second.Destroy() })

		assert.NotEqual(t, firstDir, second.Dir())
		assert.Equal(t, 0, second.Count())
	})
}

func TestManager(t *testing.T) {
	t.Run("Should return the same session for the same id", func(t *testing.T) {
		m := NewManager(testExts)
		a := m.GetOrCreate("abc")
		b := m.GetOrCreate("abc")
		assert.Same(t, a, b)
	})

	t.Run("Should remove the scratch directory on teardown", func(t *testing.T) {
		m := NewManager(testExts)
		s := m.GetOrCreate("abc")

		s.Lock()
		store, err := s.EnsureScratch()
		require.NoError(t, err)
		_, err = store.Stage("doc.txt", []byte("content"))
		require.NoError(t, err)
		dir := store.Dir()
		s.Unlock()

		require.NoError(t, m.Teardown("abc"))
		_, statErr := os.Stat(dir)
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("Should ignore teardown of an unknown session", func(t *testing.T) {
		m := NewManager(testExts)
		assert.NoError(t, m.Teardown("missing"))
	})
}
