package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"github.com/inkwell-blog/apiserver/config"
	"github.com/inkwell-blog/apiserver/internal/logging"
	"github.com/inkwell-blog/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		ClientOrigin: "http://localhost:9000",
		Auth: config.AuthConfig{
			JWTSecret:  "server-test-secret",
			BcryptCost: 4,
		},
		Database: config.DatabaseConfig{Driver: "memory"},
		Storage: config.StorageConfig{
			Driver:     "local",
			AssetRoot:  t.TempDir(),
			UploadsDir: "uploads",
		},
	}
}

func TestNew_RequiresSecret(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Auth.JWTSecret = ""

	_, err := New(context.Background(), cfg, logging.Discard())
	assert.Error(t, err)
}

func TestNew_UnknownDrivers(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Database.Driver = "oracle"
	_, err := New(context.Background(), cfg, logging.Discard())
	assert.Error(t, err)

	cfg = memoryConfig(t)
	cfg.MQ.Driver = "kafka"
	_, err = New(context.Background(), cfg, logging.Discard())
	assert.Error(t, err)
}

func TestServer_CookieSessionFlow(t *testing.T) {
	srv, err := New(context.Background(), memoryConfig(t), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	post := func(path string, body any) *http.Response {
		data, _ := json.Marshal(body)
		resp, err := client.Post(ts.URL+path, "application/json", bytes.NewReader(data))
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	creds := map[string]string{"username": "alice", "password": "pw1"}
	require.Equal(t, http.StatusOK, post("/register", creds).StatusCode)
	require.Equal(t, http.StatusOK, post("/login", creds).StatusCode)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("title", "Hello"))
	fw, err := mw.CreateFormFile("file", "cover.png")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("png"))
	require.NoError(t, mw.Close())

	resp, err := client.Post(ts.URL+"/post", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var created types.Post
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, "Hello", created.Title)

	require.Equal(t, http.StatusOK, post("/logout", nil).StatusCode)

	resp, err = client.Get(ts.URL + "/profile")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_CORSAllowsCredentials(t *testing.T) {
	srv, err := New(context.Background(), memoryConfig(t), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	req := httptest.NewRequest(http.MethodOptions, "/post", nil)
	req.Header.Set("Origin", "http://localhost:9000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:9000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestSplitOrigins(t *testing.T) {
	assert.Equal(t, []string{"http://a", "http://b"}, splitOrigins(" http://a, ,http://b "))
	assert.Nil(t, splitOrigins(""))
}
