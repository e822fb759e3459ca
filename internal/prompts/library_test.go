package prompts

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Library {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "data", "app_prompts.json"))
	require.NoError(t, err)
	// advance one second per stamp so orderings are deterministic
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	l.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return l
}

func ptr[T any](v T) *T { return &v }

func TestSaveMintsUniqueIDs(t *testing.T) {
	l := openTemp(t)
	a, err := l.Save(NewPrompt{Name: "Greeting", Prompt: "Hi"})
	require.NoError(t, err)
	b, err := l.Save(NewPrompt{Name: "Greeting", Prompt: "Hi"})
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, DefaultCategory, a.Category)
	assert.Equal(t, []string{}, a.Tags)
	assert.Zero(t, a.UseCount)
	assert.Nil(t, a.LastUsed)

	got, err := l.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, got)
	assert.Len(t, l.GetAll(), 2)
}

func TestPersistsAcrossOpen(t *testing.T) {
	l := openTemp(t)
	p, err := l.Save(NewPrompt{Name: "n", Prompt: "p", Tags: []string{"x"}})
	require.NoError(t, err)

	again, err := Open(l.Path())
	require.NoError(t, err)
	got, err := again.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)
	assert.Equal(t, []string{"x"}, got.Tags)
	assert.True(t, p.CreatedAt.Equal(got.CreatedAt))
}

func TestCorruptFileStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.json")
	require.NoError(t, os.WriteFile(path, []byte("[broken"), 0644))
	l, err := Open(path)
	require.NoError(t, err)
	assert.Empty(t, l.GetAll())
}

func TestUnknownID(t *testing.T) {
	l := openTemp(t)
	_, err := l.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = l.Update("nope", Patch{Name: ptr("x")})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = l.Delete("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = l.MarkUsed("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdate(t *testing.T) {
	l := openTemp(t)
	p, err := l.Save(NewPrompt{Name: "n", Prompt: "p", Description: "d"})
	require.NoError(t, err)
	_, err = l.MarkUsed(p.ID)
	require.NoError(t, err)

	up, err := l.Update(p.ID, Patch{Prompt: ptr("p2"), Tags: ptr([]string{"a"})})
	require.NoError(t, err)
	assert.Equal(t, "p2", up.Prompt)
	assert.Equal(t, "d", up.Description)
	assert.Equal(t, []string{"a"}, up.Tags)
	assert.Equal(t, p.ID, up.ID)
	assert.Equal(t, p.CreatedAt, up.CreatedAt)
	assert.Equal(t, 1, up.UseCount)
	require.NotNil(t, up.ModifiedAt)
}

func TestDelete(t *testing.T) {
	l := openTemp(t)
	p, err := l.Save(NewPrompt{Name: "n", Prompt: "p"})
	require.NoError(t, err)
	gone, err := l.Delete(p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, gone.ID)
	_, err = l.Get(p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkUsedMonotonic(t *testing.T) {
	l := openTemp(t)
	p, err := l.Save(NewPrompt{Name: "n", Prompt: "p"})
	require.NoError(t, err)

	var last time.Time
	for i := 1; i <= 3; i++ {
		got, err := l.MarkUsed(p.ID)
		require.NoError(t, err)
		assert.Equal(t, i, got.UseCount)
		require.NotNil(t, got.LastUsed)
		assert.True(t, got.LastUsed.After(last))
		last = *got.LastUsed
	}
}

func TestSearch(t *testing.T) {
	l := openTemp(t)
	algebra, _ := l.Save(NewPrompt{Name: "Algebra", Prompt: "Solve equations", Category: "math", Tags: []string{"school"}})
	geometry, _ := l.Save(NewPrompt{Name: "Geometry", Prompt: "Angles", Description: "shapes and ALGEBRA", Category: "math", Tags: []string{"shapes"}})
	poem, _ := l.Save(NewPrompt{Name: "Poem", Prompt: "Write verse", Category: "creative", Tags: []string{"school", "art"}})
	_, _ = l.Save(NewPrompt{Name: "Fresh", Prompt: "never used", Category: "math"})

	// one use each; the clock from openTemp puts algebra's use after geometry's
	g, _ := l.MarkUsed(geometry.ID)
	a, _ := l.MarkUsed(algebra.ID)
	require.True(t, a.LastUsed.After(*g.LastUsed))
	_, _ = l.MarkUsed(poem.ID)
	_, _ = l.MarkUsed(poem.ID)

	names := func(ps []Prompt) []string {
		out := []string{}
		for _, p := range ps {
			out = append(out, p.Name)
		}
		return out
	}

	assert.Equal(t, []string{"Poem", "Algebra", "Geometry", "Fresh"}, names(l.Search(Query{})))
	assert.Equal(t, []string{"Algebra", "Geometry"}, names(l.Search(Query{Text: "algebra"})))
	assert.Equal(t, []string{"Algebra", "Geometry", "Fresh"}, names(l.Search(Query{Category: "math"})))
	assert.Equal(t, []string{"Poem", "Algebra"}, names(l.Search(Query{Tags: []string{"school", "nope"}})))
	assert.Equal(t, []string{"Fresh"}, names(l.Search(Query{Text: "NEVER", Category: "math"})))
	assert.Empty(t, l.Search(Query{Category: "math", Tags: []string{"art"}}))
}

func TestCategoriesTagsStats(t *testing.T) {
	l := openTemp(t)
	assert.Equal(t, Stats{}, l.Stats())

	a, _ := l.Save(NewPrompt{Name: "a", Prompt: "x", Category: "math", Tags: []string{"z", "b"}})
	_, _ = l.Save(NewPrompt{Name: "b", Prompt: "y", Tags: []string{"b"}})
	assert.Equal(t, []string{"general", "math"}, l.Categories())
	assert.Equal(t, []string{"b", "z"}, l.Tags())

	st := l.Stats()
	assert.Equal(t, 2, st.TotalPrompts)
	assert.Nil(t, st.MostUsed)
	assert.Nil(t, st.RecentUsed)

	_, _ = l.MarkUsed(a.ID)
	st = l.Stats()
	assert.Equal(t, 1, st.TotalUses)
	require.NotNil(t, st.MostUsed)
	assert.Equal(t, "a", st.MostUsed.Name)
	require.NotNil(t, st.RecentUsed)
	assert.Equal(t, "a", st.RecentUsed.Name)
}

func TestExportImportRoundTrip(t *testing.T) {
	l := openTemp(t)
	_, _ = l.Save(NewPrompt{Name: "a", Prompt: "x", Category: "math"})
	_, _ = l.Save(NewPrompt{Name: "b", Prompt: "y"})

	var buf bytes.Buffer
	require.NoError(t, l.Export(&buf, ""))
	st, err := l.Import(&buf, false)
	require.NoError(t, err)
	assert.Equal(t, ImportStats{Total: 2, Skipped: 2, Errors: []string{}}, st)
	assert.Len(t, l.GetAll(), 2)

	doc := l.Snapshot("math")
	require.NotNil(t, doc.CategoryFilter)
	assert.Equal(t, "math", *doc.CategoryFilter)
	assert.Len(t, doc.Prompts, 1)
	assert.Equal(t, "ai-forge", doc.Source)
}

func TestImport(t *testing.T) {
	l := openTemp(t)
	orig, _ := l.Save(NewPrompt{Name: "a", Prompt: "old"})
	_, _ = l.MarkUsed(orig.ID)

	body := `{"prompts": {
		"1": {"id": "x", "name": "a", "prompt": "new", "use_count": 99},
		"2": {"name": "c", "prompt": "fresh", "tags": ["t"]},
		"3": {"prompt": "no name"},
		"4": {"name": "d"}
	}}`
	st, err := l.Import(bytes.NewBufferString(body), true)
	require.NoError(t, err)
	assert.Equal(t, 4, st.Total)
	assert.Equal(t, 2, st.Imported)
	assert.Equal(t, []string{
		"Error importing 'unknown': missing name",
		"Error importing 'd': missing prompt",
	}, st.Errors)

	got, err := l.Get(orig.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Prompt)
	assert.Equal(t, 1, got.UseCount)
	assert.Equal(t, orig.CreatedAt, got.CreatedAt)
	assert.Len(t, l.GetAll(), 2)

	_, err = l.Import(bytes.NewBufferString("nope"), false)
	assert.Error(t, err)
}

func TestImportOverwriteKeepsAbsentFields(t *testing.T) {
	l := openTemp(t)
	orig, _ := l.Save(NewPrompt{Name: "Greeting", Prompt: "Hi", Description: "keep me", Category: "chat", Tags: []string{"a"}})
	_, _ = l.MarkUsed(orig.ID)

	st, err := l.Import(bytes.NewBufferString(`{"prompts": {"1": {"name": "Greeting", "prompt": "Hello"}}}`), true)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Imported)

	got, err := l.Get(orig.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello", got.Prompt)
	assert.Equal(t, "keep me", got.Description)
	assert.Equal(t, "chat", got.Category)
	assert.Equal(t, []string{"a"}, got.Tags)
	assert.Equal(t, 1, got.UseCount)

	_, err = l.Import(bytes.NewBufferString(`{"prompts": {"1": {"name": "Greeting", "prompt": "Hello", "description": ""}}}`), true)
	require.NoError(t, err)
	got, _ = l.Get(orig.ID)
	assert.Empty(t, got.Description)
}

func TestFailedWriteLeavesStateUnchanged(t *testing.T) {
	l := openTemp(t)
	kept, err := l.Save(NewPrompt{Name: "kept", Prompt: "p", Description: "d"})
	require.NoError(t, err)

	// a directory in place of the file makes every write fail
	require.NoError(t, os.Remove(l.Path()))
	require.NoError(t, os.Mkdir(l.Path(), 0o755))

	_, err = l.Save(NewPrompt{Name: "lost", Prompt: "p"})
	require.Error(t, err)
	assert.Len(t, l.GetAll(), 1)

	_, err = l.Update(kept.ID, Patch{Description: ptr("changed")})
	require.Error(t, err)
	_, err = l.MarkUsed(kept.ID)
	require.Error(t, err)
	_, err = l.Delete(kept.ID)
	require.Error(t, err)

	got, err := l.Get(kept.ID)
	require.NoError(t, err)
	assert.Equal(t, kept, got)
}

func TestExportFile(t *testing.T) {
	l := openTemp(t)
	_, _ = l.Save(NewPrompt{Name: "a", Prompt: "x"})
	path := filepath.Join(t.TempDir(), "out", "export.json")
	require.NoError(t, l.ExportFile(path, ""))

	other, err := Open(filepath.Join(t.TempDir(), "other.json"))
	require.NoError(t, err)
	st, err := other.ImportFile(path, false)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Imported)
}
