package media

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRef() Reference {
	return Reference{
		MediaURL:         "https://cdn/a.png",
		OriginURL:        "https://cdn/a.png",
		StructuredPrompt: json.RawMessage(`{"short_description":"a cat"}`),
		MediaType:        Image,
	}
}

func galleries(t *testing.T) map[string]Gallery {
	t.Helper()
	sq, err := OpenSQLiteGallery(context.Background(), filepath.Join(t.TempDir(), "gallery.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Gallery{"memory": NewMemoryGallery(), "sqlite": sq}
}

func TestGallery_AddListGet(t *testing.T) {
	for name, g := range galleries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first := NewItem("s1", "generate_image", sampleRef())
			second := NewItem("s2", "remove_background", Reference{MediaURL: "data:image/png;base64,AA", MediaType: Image})
			require.NoError(t, g.Add(ctx, first))
			require.NoError(t, g.Add(ctx, second))

			all, err := g.List(ctx, "")
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, first.ID, all[0].ID)

			s1, err := g.List(ctx, "s1")
			require.NoError(t, err)
			require.Len(t, s1, 1)

			got, err := g.Get(ctx, second.ID)
			require.NoError(t, err)
			assert.Empty(t, got.ImageURL)
			assert.Nil(t, got.StructuredPrompt)

			_, err = g.Get(ctx, "nope")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

// A reader racing with Add sees either no item or a complete one.
func TestGallery_CommitIsAtomic(t *testing.T) {
	for name, g := range galleries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					_ = g.Add(ctx, NewItem("s", "generate_image", sampleRef()))
				}
			}()
			for i := 0; i < 50; i++ {
				items, err := g.List(ctx, "s")
				require.NoError(t, err)
				for _, it := range items {
					assert.Equal(t, "https://cdn/a.png", it.URL)
					assert.Equal(t, "https://cdn/a.png", it.ImageURL)
					assert.JSONEq(t, `{"short_description":"a cat"}`, string(it.StructuredPrompt))
				}
			}
			wg.Wait()

			items, err := g.List(ctx, "s")
			require.NoError(t, err)
			assert.Len(t, items, 50)
			assert.Equal(t, sampleRef(), items[0].Reference())
		})
	}
}
