package session_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsantiera/adapters/session"
)

// mapStore 是測試用的行程內 IStore
type mapStore struct {
	data map[string]map[string]string
}

func newMapStore() *mapStore {
	return &mapStore{data: make(map[string]map[string]string)}
}

func (m *mapStore) Load(ctx context.Context, name string) (map[string]string, error) {
	copied := make(map[string]string, len(m.data[name]))
	for k, v := range m.data[name] {
		copied[k] = v
	}
	return copied, nil
}

func (m *mapStore) Save(ctx context.Context, name string, data map[string]string) error {
	m.data[name] = data
	return nil
}

func TestSessionLifecycle(t *testing.T) {
	store := newMapStore()
	s := session.NewSession(context.Background(), "s1", store)
	require.NoError(t, s.Load())

	s.Set("name", "Alice")
	require.NoError(t, s.Save())

	// 另一個實例要能讀回同樣的資料
	restored := session.NewSession(context.Background(), "s1", store)
	require.NoError(t, restored.Load())
	assert.Equal(t, "Alice", restored.Get("name"))

	restored.Delete("name")
	assert.Empty(t, restored.Get("name"))

	restored.Clear()
	require.NoError(t, restored.Save())
	assert.Empty(t, store.data["s1"])
}

func TestParticipantIdentity(t *testing.T) {
	store := newMapStore()
	s := session.NewSession(context.Background(), "s1", store)
	require.NoError(t, s.Load())

	_, ok := session.RecallParticipant(s, "a1")
	assert.False(t, ok)

	session.RememberParticipant(s, "a1", session.Identity{Name: "Alice", Email: "alice@example.com"})
	identity, ok := session.RecallParticipant(s, "a1")
	require.True(t, ok)
	assert.Equal(t, "Alice", identity.Name)
	assert.Equal(t, "alice@example.com", identity.Email)

	// 身份是依拍賣會記的
	_, ok = session.RecallParticipant(s, "a2")
	assert.False(t, ok)

	session.ForgetParticipant(s, "a1")
	_, ok = session.RecallParticipant(s, "a1")
	assert.False(t, ok)
}

func TestGinMiddlewareIssuesCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newMapStore()

	router := gin.New()
	router.Use(session.GinMiddleware(store))
	router.GET("/", func(c *gin.Context) {
		s, err := session.GetSession(c)
		require.NoError(t, err)
		s.Set("name", "Alice")
		require.NoError(t, s.Save())
		c.Status(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusNoContent, recorder.Code)
	cookies := recorder.Result().Cookies()
	require.NotEmpty(t, cookies)
	sessionID := cookies[0].Value
	require.NotEmpty(t, sessionID)
	assert.Equal(t, "Alice", store.data[sessionID]["name"])
}

func TestGinMiddlewareReusesExistingSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newMapStore()
	store.data["known-id"] = map[string]string{"name": "Alice"}

	router := gin.New()
	router.Use(session.GinMiddleware(store))
	router.GET("/", func(c *gin.Context) {
		s, err := session.GetSession(c)
		require.NoError(t, err)
		c.String(http.StatusOK, s.Get("name"))
	})

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.AddCookie(&http.Cookie{Name: "session", Value: "known-id"})
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	assert.Equal(t, "Alice", recorder.Body.String())
}
