package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPToolExecuteExtractsFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("order_id") != "A100" {
			t.Errorf("expected order_id query param A100, got %q", r.URL.Query().Get("order_id"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"order":{"status":"shipped","carrier":"ups"}}`))
	}))
	defer srv.Close()

	desc := CustomToolDescriptor{
		Name:        "lookup_order",
		Method:      http.MethodGet,
		URLTemplate: srv.URL + "/orders",
		QueryParams: []QueryParam{{Name: "order_id", FromLLM: true}},
		Assignments: []Assignment{
			{JSONPath: "order.status", Variable: "order_status"},
			{JSONPath: "order.carrier", Variable: "order_carrier"},
		},
	}
	e := New(Config{CustomToolsAllowed: true, CustomTools: []CustomToolDescriptor{desc}})
	store := newFakeStore()

	result, err := e.DispatchHTTP(context.Background(), "lookup_order", json.RawMessage(`{"order_id":"A100"}`), store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if store.vars["order_status"] != "shipped" || store.vars["order_carrier"] != "ups" {
		t.Fatalf("unexpected extracted variables: %+v", store.vars)
	}
}

func TestHTTPToolExecuteFailsOpenOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()

	desc := CustomToolDescriptor{
		Name:        "flaky_tool",
		Method:      http.MethodGet,
		URLTemplate: srv.URL + "/flaky",
	}
	e := New(Config{CustomToolsAllowed: true, CustomTools: []CustomToolDescriptor{desc}})

	result, err := e.DispatchHTTP(context.Background(), "flaky_tool", json.RawMessage(`{}`), newFakeStore())
	if err != nil {
		t.Fatalf("HTTP-level failures must not surface as a Go error, got: %v", err)
	}
	if result.Success {
		t.Fatal("expected success=false for a 500 response")
	}
	if result.Status != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", result.Status)
	}
}

func TestHTTPToolExecutePrunesConsumedFieldsFromBody(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	desc := CustomToolDescriptor{
		Name:        "update_order",
		Method:      http.MethodPost,
		URLTemplate: srv.URL + "/orders/{order_id}",
		PathParams:  []Param{{Name: "order_id"}},
		QueryParams: []QueryParam{
			{Name: "source", Const: "voicebridge"},
			{Name: "token", FromLLM: true},
		},
	}
	e := New(Config{CustomToolsAllowed: true, CustomTools: []CustomToolDescriptor{desc}})

	_, err := e.DispatchHTTP(context.Background(), "update_order", json.RawMessage(`{"order_id":"Z9","token":"t1","status":"shipped"}`), newFakeStore())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := gotBody["order_id"]; ok {
		t.Fatalf("expected order_id pruned from body, got %+v", gotBody)
	}
	if _, ok := gotBody["token"]; ok {
		t.Fatalf("expected token pruned from body, got %+v", gotBody)
	}
	if gotBody["status"] != "shipped" {
		t.Fatalf("expected status field to survive pruning, got %+v", gotBody)
	}
}

func TestHTTPToolExpandURLPathParam(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	desc := CustomToolDescriptor{
		Name:        "get_order",
		Method:      http.MethodGet,
		URLTemplate: srv.URL + "/orders/{order_id}",
		PathParams:  []Param{{Name: "order_id"}},
	}
	e := New(Config{CustomToolsAllowed: true, CustomTools: []CustomToolDescriptor{desc}})

	_, err := e.DispatchHTTP(context.Background(), "get_order", json.RawMessage(`{"order_id":"Z9"}`), newFakeStore())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/orders/Z9" {
		t.Fatalf("expected path /orders/Z9, got %q", gotPath)
	}
}
