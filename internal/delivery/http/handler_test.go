package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chatapp/infrastructure/cache"
	"chatapp/internal/entity"
	"chatapp/internal/repository"
	"chatapp/internal/store"
	"chatapp/internal/usecase"
	"chatapp/pkg/jwt"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCounter int

func (c staticCounter) GetClientCount() int {
	return int(c)
}

type brokenGateway struct{}

func (brokenGateway) WriteThrough(context.Context, entity.Message) error {
	return errors.New("connection refused")
}

func (brokenGateway) LoadAll(context.Context) ([]entity.Message, error) {
	return nil, nil
}

type testServer struct {
	router http.Handler
	tokens *jwt.JWTManager
}

func newTestServer(t *testing.T, gateway repository.MessageGateway, rateLimit int) *testServer {
	t.Helper()

	counters := cache.NewMemCache(0)
	t.Cleanup(counters.Close)

	tokens := jwt.NewJWTManager("test-secret", time.Minute)
	uc := usecase.NewMessageUsecase(store.NewMessageStore(gateway), nil, nil)

	r := chi.NewRouter()
	MapHttpRoutes(r,
		NewMessageHandler(uc, staticCounter(3), nil),
		nil,
		nil,
		NewAuthMiddleware(tokens),
		NewRateLimiter(counters, rateLimit, time.Minute, nil),
	)
	return &testServer{router: r, tokens: tokens}
}

func (s *testServer) token(t *testing.T, userId uuid.UUID) string {
	t.Helper()
	token, err := s.tokens.GenerateAccessToken(userId, "tester")
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func dataMap(t *testing.T, resp Response) map[string]any {
	t.Helper()
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is %T", resp.Data)
	return data
}

func TestPostAndReadBack(t *testing.T) {
	s := newTestServer(t, repository.NewMemoryGateway(), 0)
	author := uuid.New()
	conversation := uuid.New()
	token := s.token(t, author)

	rec, resp := s.do(t, http.MethodPost, "/messages", token, map[string]string{
		"conversationId": conversation.String(),
		"content":        "hello",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := dataMap(t, resp)
	assert.Equal(t, author.String(), created["authorId"])
	id := created["id"].(string)

	rec, resp = s.do(t, http.MethodPost, "/messages/"+id+"/replies", token, map[string]string{
		"content": "a reply",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	reply := dataMap(t, resp)
	assert.Equal(t, id, reply["parentMessageId"])
	assert.Equal(t, conversation.String(), reply["conversationId"])

	rec, resp = s.do(t, http.MethodGet, "/messages/"+id, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", dataMap(t, resp)["content"])

	rec, resp = s.do(t, http.MethodGet, "/messages/"+id+"/replies", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp.Data, 1)

	rec, resp = s.do(t, http.MethodGet, "/conversations/"+conversation.String()+"/messages", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp.Data, 1)

	rec, resp = s.do(t, http.MethodGet, "/authors/"+author.String()+"/messages", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp.Data, 2)

	rec, resp = s.do(t, http.MethodGet, "/messages", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp.Data, 2)

	rec, resp = s.do(t, http.MethodGet, "/messages/count", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, dataMap(t, resp)["count"])

	rec, resp = s.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, dataMap(t, resp)["count"])
	assert.EqualValues(t, 3, dataMap(t, resp)["clients"])
}

func TestEmptyQueriesReturnEmptyArrays(t *testing.T) {
	s := newTestServer(t, repository.NewMemoryGateway(), 0)

	for _, path := range []string{
		"/messages",
		"/conversations/" + uuid.NewString() + "/messages",
		"/authors/" + uuid.NewString() + "/messages",
	} {
		rec, resp := s.do(t, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, []any{}, resp.Data, path)
	}
}

func TestErrorStatuses(t *testing.T) {
	s := newTestServer(t, repository.NewMemoryGateway(), 0)
	token := s.token(t, uuid.New())

	rec, _ := s.do(t, http.MethodPost, "/messages", token, map[string]string{
		"conversationId": uuid.NewString(),
		"content":        "parent",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	_, resp := s.do(t, http.MethodGet, "/messages", "", nil)
	parentId := resp.Data.([]any)[0].(map[string]any)["id"].(string)

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		status int
	}{
		{"unknown message", http.MethodGet, "/messages/" + uuid.NewString(), "", nil, http.StatusNotFound},
		{"bad message id", http.MethodGet, "/messages/xyz", "", nil, http.StatusBadRequest},
		{"replies of unknown", http.MethodGet, "/messages/" + uuid.NewString() + "/replies", "", nil, http.StatusNotFound},
		{"bad conversation id", http.MethodGet, "/conversations/xyz/messages", "", nil, http.StatusBadRequest},
		{"no token", http.MethodPost, "/messages", "", map[string]string{"content": "x"}, http.StatusUnauthorized},
		{"bad token", http.MethodPost, "/messages", "garbage", map[string]string{"content": "x"}, http.StatusUnauthorized},
		{"empty content", http.MethodPost, "/messages", token, map[string]string{"conversationId": uuid.NewString()}, http.StatusBadRequest},
		{"reply to unknown", http.MethodPost, "/messages/" + uuid.NewString() + "/replies", token, map[string]string{"content": "x"}, http.StatusNotFound},
		{"conversation mismatch", http.MethodPost, "/messages/" + parentId + "/replies", token,
			map[string]string{"conversationId": uuid.NewString(), "content": "x"}, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, resp := s.do(t, tc.method, tc.path, tc.token, tc.body)
			assert.Equal(t, tc.status, rec.Code)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestPersistenceFailureIsServiceUnavailable(t *testing.T) {
	s := newTestServer(t, brokenGateway{}, 0)

	rec, _ := s.do(t, http.MethodPost, "/messages", s.token(t, uuid.New()), map[string]string{
		"conversationId": uuid.NewString(),
		"content":        "hello",
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	_, resp := s.do(t, http.MethodGet, "/messages/count", "", nil)
	assert.EqualValues(t, 0, dataMap(t, resp)["count"])
}

func TestRateLimitPerAuthor(t *testing.T) {
	s := newTestServer(t, repository.NewMemoryGateway(), 2)
	body := map[string]string{"conversationId": uuid.NewString(), "content": "spam"}

	first := s.token(t, uuid.New())
	for i := 0; i < 2; i++ {
		rec, _ := s.do(t, http.MethodPost, "/messages", first, body)
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	rec, _ := s.do(t, http.MethodPost, "/messages", first, body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec, _ = s.do(t, http.MethodPost, "/messages", s.token(t, uuid.New()), body)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	handler := CORS("http://example.com")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("preflight reached the handler")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/messages", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
