package internal

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pangalink/entity"
	"pangalink/services"
)

func TestCallbackPostLatin1(t *testing.T) {
	var body []byte
	var contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		contentType = r.Header.Get("Content-Type")
		w.Header().Set("X-Shop", "ok")
		_, _ = w.Write([]byte("thanks"))
	}))
	defer server.Close()

	response := NewCallbackClient().Send(context.Background(), &services.CallbackRequest{
		Method:  "POST",
		Url:     server.URL + "/return",
		Fields:  entity.Fields{{Key: "VK_SND_NAME", Value: "Tõõger"}, {Key: "VK_AUTO", Value: "Y"}},
		Charset: "ISO-8859-1",
	})

	assert.True(t, response.Status, response.Error)
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, "thanks", response.Body)
	assert.Equal(t, "ok", response.Headers.Get("X-Shop"))
	assert.Equal(t, "VK_SND_NAME=T%F5%F5ger&VK_AUTO=Y", string(body))
	assert.Equal(t, "application/x-www-form-urlencoded; charset=ISO-8859-1", contentType)
	assert.Equal(t, "POST", response.Method)
	assert.False(t, response.Time.IsZero())
}

func TestCallbackGet(t *testing.T) {
	var query string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	response := NewCallbackClient().Send(context.Background(), &services.CallbackRequest{
		Method: "GET",
		Url:    server.URL + "/return?SOLOPMT_RETURN_PAID=PEPM1",
	})
	assert.True(t, response.Status)
	assert.Equal(t, http.StatusNoContent, response.StatusCode)
	assert.Equal(t, "SOLOPMT_RETURN_PAID=PEPM1", query)
}

func TestCallbackGetCarriesFields(t *testing.T) {
	var query string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	response := NewCallbackClient().Send(context.Background(), &services.CallbackRequest{
		Method:  "GET",
		Url:     server.URL + "/return?order=15",
		Fields:  entity.Fields{{Key: "VK_SERVICE", Value: "1111"}, {Key: "VK_SND_NAME", Value: "Tõõger"}, {Key: "VK_AUTO", Value: "Y"}},
		Charset: "ISO-8859-1",
	})
	assert.True(t, response.Status, response.Error)
	assert.Equal(t, "order=15&VK_SERVICE=1111&VK_SND_NAME=T%F5%F5ger&VK_AUTO=Y", query)
}

func TestCallbackRedirectNotFollowed(t *testing.T) {
	followed := false
	mux := http.NewServeMux()
	mux.HandleFunc("/return", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	})
	mux.HandleFunc("/elsewhere", func(w http.ResponseWriter, r *http.Request) {
		followed = true
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	response := NewCallbackClient().Send(context.Background(), &services.CallbackRequest{
		Method:  "POST",
		Url:     server.URL + "/return",
		Charset: "UTF-8",
	})
	assert.True(t, response.Status)
	assert.Equal(t, http.StatusFound, response.StatusCode)
	assert.Equal(t, "/elsewhere", response.Headers.Get("Location"))
	assert.False(t, followed)
}

func TestCallbackServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "broken", http.StatusInternalServerError)
	}))
	defer server.Close()

	metrics := NewMetrics()
	client := NewCallbackClient()
	client.SetMetrics(metrics)
	client.SetLogger(NewTestLogger())
	response := client.Send(context.Background(), &services.CallbackRequest{
		Method:  "POST",
		Url:     server.URL,
		Charset: "UTF-8",
	})
	assert.False(t, response.Status)
	assert.Equal(t, http.StatusInternalServerError, response.StatusCode)
	assert.Contains(t, response.Error, "500")
	assert.Equal(t, "broken\n", response.Body)
}

func TestCallbackTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	response := NewCallbackClient().Send(context.Background(), &services.CallbackRequest{
		Method:  "GET",
		Url:     server.URL,
		Timeout: 50 * time.Millisecond,
	})
	assert.False(t, response.Status)
	assert.Zero(t, response.StatusCode)
	assert.NotEmpty(t, response.Error)
}

func TestCallbackUnknownCharset(t *testing.T) {
	response := NewCallbackClient().Send(context.Background(), &services.CallbackRequest{
		Method:  "POST",
		Url:     "http://127.0.0.1:1",
		Fields:  entity.Fields{{Key: "a", Value: "b"}},
		Charset: "KOI8-XX",
	})
	require.False(t, response.Status)
	assert.Contains(t, response.Error, "encode fields")
}
