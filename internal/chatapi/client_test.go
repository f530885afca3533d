// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigchat/internal/chatapi"
	"github.com/jeranaias/rigchat/internal/mockserver"
	"github.com/jeranaias/rigchat/internal/stream"
)

func newClient(t *testing.T, url string) *chatapi.Client {
	t.Helper()
	return chatapi.NewClient(&chatapi.ClientConfig{
		BaseURL:        url,
		ConnectTimeout: time.Second,
		MaxRetries:     1,
		RetryDelay:     10 * time.Millisecond,
	}, nil)
}

func collect(t *testing.T, c *chatapi.Client, msg string) ([]stream.RawEvent, error) {
	t.Helper()
	var events []stream.RawEvent
	err := c.Stream(context.Background(), chatapi.ChatRequest{Message: msg, SessionID: "s1"}, func(ev stream.RawEvent) error {
		events = append(events, ev)
		return nil
	})
	return events, err
}

func TestClient_CheckRunning(t *testing.T) {
	srv := httptest.NewServer(mockserver.New(mockserver.Config{}, nil).Router())
	defer srv.Close()

	require.NoError(t, newClient(t, srv.URL).CheckRunning(context.Background()))
}

func TestClient_CheckRunning_NotRunning(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := newClient(t, url).CheckRunning(context.Background())
	require.Error(t, err)
	assert.True(t, chatapi.IsNotRunning(err), "got %v", err)
}

func TestClient_StreamEcho(t *testing.T) {
	srv := httptest.NewServer(mockserver.New(mockserver.Config{FragmentRunes: 3}, nil).Router())
	defer srv.Close()

	events, err := collect(t, newClient(t, srv.URL), "line one\nline two")
	require.NoError(t, err)
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, stream.EventEnd, last.Kind)

	acc := chatapi.NewAccumulator()
	for _, ev := range events {
		acc.Add(ev)
	}
	assert.Greater(t, acc.Fragments(), 5)
	assert.NotContains(t, acc.Raw(), "\n", "newlines travel as sentinels")
	assert.Equal(t, mockserver.EchoReply("line one\nline two"), stream.DecodeNewlines(acc.Raw(), ""))
}

func TestClient_StreamErrorSignal(t *testing.T) {
	srv := httptest.NewServer(mockserver.New(mockserver.Config{}, nil).Router())
	defer srv.Close()

	events, err := collect(t, newClient(t, srv.URL), "!error out of memory")
	require.NoError(t, err)
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, stream.EventError, last.Kind)
	assert.Equal(t, "out of memory", last.Text)
}

func TestClient_StreamErrorAbortsDecoder(t *testing.T) {
	srv := httptest.NewServer(mockserver.New(mockserver.Config{}, nil).Router())
	defer srv.Close()

	dec := stream.NewDecoder()
	err := newClient(t, srv.URL).Stream(context.Background(), chatapi.ChatRequest{Message: "!error boom"}, func(ev stream.RawEvent) error {
		_, err := dec.Feed(ev)
		return err
	})
	require.Error(t, err)
	assert.True(t, stream.IsStreamError(err))
}

func TestClient_SkipsMalformedFrames(t *testing.T) {
	srv := httptest.NewServer(mockserver.New(mockserver.Config{Reply: "ok"}, nil).Router())
	defer srv.Close()

	c := newClient(t, srv.URL)
	var skipped []*chatapi.TransportError
	c.SetSkipHook(func(te *chatapi.TransportError) { skipped = append(skipped, te) })

	events, err := collect(t, c, "!garbage hi")
	require.NoError(t, err)
	require.Len(t, skipped, 1)

	acc := chatapi.NewAccumulator()
	for _, ev := range events {
		acc.Add(ev)
	}
	assert.Equal(t, "ok", acc.Raw())
}

func TestClient_TruncatedStreamEnds(t *testing.T) {
	srv := httptest.NewServer(mockserver.New(mockserver.Config{Reply: "partial"}, nil).Router())
	defer srv.Close()

	events, err := collect(t, newClient(t, srv.URL), "!truncate x")
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, stream.EventEnd, events[len(events)-1].Kind)
}

func TestClient_SendsRequestBody(t *testing.T) {
	var got chatapi.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: done\ndata: {}\n\n")
	}))
	defer srv.Close()

	c := chatapi.NewClient(&chatapi.ClientConfig{BaseURL: srv.URL + "/", Model: "qwen"}, nil)
	_, err := collect(t, c, "hello")
	require.NoError(t, err)

	assert.Equal(t, chatapi.ChatRequest{Message: "hello", SessionID: "s1", Model: "qwen"}, got)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "data: {\"chunk\":\"hi\"}\n\nevent: done\n\n")
	}))
	defer srv.Close()

	events, err := collect(t, newClient(t, srv.URL), "x")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []stream.RawEvent{stream.Text("hi"), stream.EndOfStream()}, events)
}

func TestClient_CancelDuringRetryWait(t *testing.T) {
	hit := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "warming up", http.StatusServiceUnavailable)
		select {
		case hit <- struct{}{}:
		default:
		}
	}))
	defer srv.Close()

	c := chatapi.NewClient(&chatapi.ClientConfig{
		BaseURL:        srv.URL,
		ConnectTimeout: time.Second,
		MaxRetries:     3,
		RetryDelay:     time.Minute,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-hit
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := c.Stream(ctx, chatapi.ChatRequest{Message: "x"}, func(stream.RawEvent) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, chatapi.IsNotRunning(err))
}

func TestClient_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := collect(t, newClient(t, srv.URL), "x")
	require.Error(t, err)
	assert.True(t, chatapi.IsInvalidResponse(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_CallbackErrorStops(t *testing.T) {
	srv := httptest.NewServer(mockserver.New(mockserver.Config{}, nil).Router())
	defer srv.Close()

	stop := errors.New("stop")
	n := 0
	err := newClient(t, srv.URL).Stream(context.Background(), chatapi.ChatRequest{Message: "hello"}, func(ev stream.RawEvent) error {
		n++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, n)
}

func TestClient_ContextCancel(t *testing.T) {
	srv := httptest.NewServer(mockserver.New(mockserver.Config{Delay: 50 * time.Millisecond}, nil).Router())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	err := newClient(t, srv.URL).Stream(ctx, chatapi.ChatRequest{Message: "a long message"}, func(ev stream.RawEvent) error {
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
