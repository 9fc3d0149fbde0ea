package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLimitUpstreamBody_WithinLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), maxBodyBytesKey{}, int64(1024)))

	resp := &http.Response{
		Request: req,
		Header:  http.Header{},
		Body:    io.NopCloser(strings.NewReader("hello")),
	}

	if err := limitUpstreamBody(resp); err != nil {
		t.Fatalf("limitUpstreamBody: %v", err)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != "hello" {
		t.Errorf("body = %q, want %q", body, "hello")
	}
	if resp.Header.Get("Content-Length") != "5" {
		t.Errorf("Content-Length = %q, want 5", resp.Header.Get("Content-Length"))
	}
}

func TestLimitUpstreamBody_TruncatesOversized(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), maxBodyBytesKey{}, int64(4)))

	resp := &http.Response{
		Request: req,
		Header:  http.Header{},
		Body:    io.NopCloser(strings.NewReader("too large a body")),
	}

	if err := limitUpstreamBody(resp); err != nil {
		t.Fatalf("limitUpstreamBody: %v", err)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if len(body) != 4 {
		t.Errorf("len(body) = %d, want 4", len(body))
	}
}

func TestLimitUpstreamBody_DefaultsWithoutContextValue(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	resp := &http.Response{
		Request: req,
		Header:  http.Header{},
		Body:    io.NopCloser(strings.NewReader("small body")),
	}

	if err := limitUpstreamBody(resp); err != nil {
		t.Fatalf("limitUpstreamBody: %v", err)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != "small body" {
		t.Errorf("body = %q", body)
	}
}
