package appstate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeStorage struct {
	docs map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{docs: make(map[string][]byte)}
}

func (s *fakeStorage) Load(key string) ([]byte, bool, error) {
	data, ok := s.docs[key]
	return data, ok, nil
}

func (s *fakeStorage) Save(key string, data []byte) error {
	s.docs[key] = append([]byte(nil), data...)
	return nil
}

func (s *fakeStorage) Delete(key string) error {
	delete(s.docs, key)
	return nil
}

func persistedFields(t *testing.T, storage *fakeStorage, key string) map[string]json.RawMessage {
	t.Helper()
	var payload struct {
		State map[string]json.RawMessage `json:"state"`
	}
	require.NoError(t, json.Unmarshal(storage.docs[key], &payload))
	return payload.State
}

func TestAuthSlicePersistsEverything(t *testing.T) {
	storage := newFakeStorage()
	stores := New(storage, nil)

	stores.Auth.Update(func(state *AuthState) {
		state.IsLoggedIn = true
		state.Session = "sess-1"
	})

	fields := persistedFields(t, storage, "store-auth")
	require.Contains(t, fields, "isLoggedIn")
	require.Contains(t, fields, "session")

	fresh := New(storage, nil)
	require.True(t, fresh.Auth.Get().IsLoggedIn)
	require.Equal(t, "sess-1", fresh.Auth.Get().Session)
}

func TestLibrarySlicePersistsOnlyBrowsePreferences(t *testing.T) {
	storage := newFakeStorage()
	stores := New(storage, nil)

	require.NoError(t, stores.Library.Set(map[string]any{
		"category": "fiction",
		"query":    "transient search",
		"page":     4,
	}))

	fields := persistedFields(t, storage, "store-library")
	require.Contains(t, fields, "category")
	require.NotContains(t, fields, "query")
	require.NotContains(t, fields, "page")

	fresh := New(storage, nil)
	require.Equal(t, "fiction", fresh.Library.Get().Category)
	require.Empty(t, fresh.Library.Get().Query)
	require.Equal(t, "title", fresh.Library.Get().Sort, "default survives")
}

func TestCartAndFormStayInMemory(t *testing.T) {
	storage := newFakeStorage()
	stores := New(storage, nil)

	stores.Cart.Update(func(state *CartState) {
		state.Items = append(state.Items, CartItem{ProductID: 7, Title: "Go"})
	})
	require.NoError(t, stores.Form.Set(map[string]any{
		"values": map[string]string{"email": "a@b.c"},
	}))

	require.NotContains(t, storage.docs, "store-cart")
	require.NotContains(t, storage.docs, "store-form")
}

func TestBookmarkSlicePersistsReadingLists(t *testing.T) {
	storage := newFakeStorage()
	stores := New(storage, nil)

	stores.Bookmark.Update(func(state *BookmarkState) {
		state.Bookmarks = []int64{1, 2}
		state.RecentlyViewed = []int64{3}
		state.LastPosition = "page-12"
	})

	fields := persistedFields(t, storage, "store-bookmark")
	require.Contains(t, fields, "bookmarks")
	require.Contains(t, fields, "recentlyViewed")
	require.NotContains(t, fields, "lastPosition")

	fresh := New(storage, nil)
	require.Equal(t, []int64{1, 2}, fresh.Bookmark.Get().Bookmarks)
	require.Empty(t, fresh.Bookmark.Get().LastPosition)
}

func TestThemeDefaults(t *testing.T) {
	stores := New(nil, nil)
	theme := stores.Theme.Get()
	require.Equal(t, "light", theme.Mode)
	require.Equal(t, 1.0, theme.FontScale)
}
