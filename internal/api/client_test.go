package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientDoSubstitutesPathParams(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{
			"messagingTokenRequest": map[string]any{"clientId": "5"},
		})
	}))
	defer srv.Close()

	ep, ok := Lookup(RoleStudent, "JOIN_SESSION")
	require.True(t, ok)

	c := NewClient(srv.URL, "secret")
	resp, err := c.Do(context.Background(), ep, map[string]any{"sessionId": "42"})
	require.NoError(t, err)

	assert.Equal(t, "/student-session/42/join", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)

	tok := ExtractToken(resp, ep.TokenField)
	require.NotNil(t, tok)
	assert.Equal(t, "5", tok.(map[string]any)["clientId"])
}

func TestClientDoMissingPathParam(t *testing.T) {
	ep, _ := Lookup(RoleStudent, "JOIN_SESSION")
	c := NewClient("http://localhost:1", "")

	_, err := c.Do(context.Background(), ep, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sessionId")
}

func TestClientDoSendsBodyParams(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	ep, _ := Lookup(RoleWebhook, "PRESENCE_EVENT")
	c := NewClient(srv.URL, "")
	_, err := c.Do(context.Background(), ep, map[string]any{
		"items":  []any{"a", "b"},
		"extra":  "dropped",
		"ignore": nil,
	})
	require.NoError(t, err)

	assert.Equal(t, []any{"a", "b"}, gotBody["items"])
	_, present := gotBody["extra"]
	assert.False(t, present, "params outside bodyParams must not be sent")
}

func TestClientDoErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{"message": "token expired"})
	}))
	defer srv.Close()

	ep, _ := Lookup(RoleStudent, "JOIN_SESSION")
	c := NewClient(srv.URL, "")
	_, err := c.Do(context.Background(), ep, map[string]any{"sessionId": "42"})

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "token expired", apiErr.Message)
	assert.Equal(t, "Unauthorized - check your authentication token", Describe(err))
}

func TestClientDoNonJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("plain text"))
	}))
	defer srv.Close()

	ep, _ := Lookup(RoleVideo, "GET_HOST_TOKEN")
	c := NewClient(srv.URL, "")
	resp, err := c.Do(context.Background(), ep, nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text", resp["rawText"])
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Forbidden - you don't have permission", Describe(&Error{Status: 403}))
	assert.Equal(t, "Not found - check the parameters", Describe(&Error{Status: 404}))
	assert.Equal(t, "Server error (502)", Describe(&Error{Status: 502}))
	assert.Equal(t, "API error 422: bad input", Describe(&Error{Status: 422, Message: "bad input"}))
	assert.Equal(t, "boom", Describe(errors.New("boom")))
}

func TestExtractTokenDottedPath(t *testing.T) {
	resp := map[string]any{
		"data": map[string]any{"token": map[string]any{"clientId": "5"}},
	}
	tok := ExtractToken(resp, "data.token")
	require.NotNil(t, tok)
	assert.Equal(t, "5", tok.(map[string]any)["clientId"])

	assert.Nil(t, ExtractToken(resp, "data.missing"))
	assert.Nil(t, ExtractToken(resp, ""))
	assert.Nil(t, ExtractToken(nil, "data"))
}

func TestRegistryLookup(t *testing.T) {
	roles := Roles()
	assert.Contains(t, roles, RoleStudent)
	assert.Contains(t, roles, RoleManager)

	for _, role := range roles {
		for _, ep := range EndpointsFor(role) {
			assert.NotEmpty(t, ep.Method, ep.Name)
			assert.NotEmpty(t, ep.Path, ep.Name)
			found, ok := Lookup(role, ep.Name)
			assert.True(t, ok)
			assert.Equal(t, ep.Path, found.Path)
		}
	}

	_, ok := Lookup(RoleStudent, "NOPE")
	assert.False(t, ok)
}
