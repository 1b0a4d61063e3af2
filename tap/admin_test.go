package tap

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdminClientAddRepos(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	var gotPath, gotMethod string
	var gotBody struct {
		Dids []string `json:"dids"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewAdminClient(server.URL, nil, nil)
	err := c.AddRepos(context.Background(), []string{"did:plc:a", "did:plc:b"})
	require.NoError(err)
	require.Equal("/repos/add", gotPath)
	require.Equal(http.MethodPost, gotMethod)
	require.Equal([]string{"did:plc:a", "did:plc:b"}, gotBody.Dids)
}

func TestAdminClientStatsReturnsBody(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal("/stats/repo-count", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"count":42}`))
	}))
	defer server.Close()

	c := NewAdminClient(server.URL, nil, nil)
	body, err := c.Stats(context.Background(), StatRepoCount)
	require.NoError(err)
	require.JSONEq(`{"count":42}`, string(body))
}

func TestAdminClientNon2xxReturnsAdminError(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("not found"))
	}))
	defer server.Close()

	c := NewAdminClient(server.URL, nil, nil)
	_, err := c.RepoInfo(context.Background(), "did:plc:missing")
	require.Error(err)

	var adminErr *AdminError
	require.True(errors.As(err, &adminErr))
	require.Equal(http.StatusNotFound, adminErr.StatusCode)
	require.Equal("not found", string(adminErr.Body))
	require.True(errors.Is(err, ErrAdminHTTP))
}

func TestAdminClientHealth(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal("/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewAdminClient(server.URL, nil, nil)
	require.NoError(c.Health(context.Background()))
}

func TestAdminClientSendsBasicAuth(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	var gotUser, gotPass string
	var gotOK bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, gotOK = r.BasicAuth()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	password := "s3cret"
	c := NewAdminClient(server.URL, &password, nil)
	require.NoError(c.Health(context.Background()))

	require.True(gotOK)
	require.Equal("admin", gotUser)
	require.Equal(password, gotPass)
}

func TestAdminClientNoPasswordSendsNoAuth(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	var gotOK bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _, gotOK = r.BasicAuth()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewAdminClient(server.URL, nil, nil)
	require.NoError(c.Health(context.Background()))
	require.False(gotOK)
}
