package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCORSPreflightCoversCatalogRoutes(t *testing.T) {
	api := newTestAPI(t)

	testCases := []struct {
		name    string
		method  string
		path    string
		headers string
	}{
		{name: "content upload", method: http.MethodPut, path: "/content", headers: "Authorization, Content-Type"},
		{name: "video creation", method: http.MethodPost, path: "/videos", headers: "Authorization, Content-Type"},
		{name: "unfollow", method: http.MethodDelete, path: "/users/creator-principal/follow", headers: "Authorization"},
		{name: "event stream", method: http.MethodGet, path: "/events", headers: "Authorization, Accept"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodOptions, testCase.path, http.NoBody)
			request.Header.Set("Origin", "https://fans.example.com")
			request.Header.Set("Access-Control-Request-Method", testCase.method)
			request.Header.Set("Access-Control-Request-Headers", testCase.headers)

			recorder := httptest.NewRecorder()
			api.handler.ServeHTTP(recorder, request)

			if recorder.Code != http.StatusNoContent {
				t.Fatalf("expected status %d, got %d", http.StatusNoContent, recorder.Code)
			}
			if recorder.Header().Get("Access-Control-Allow-Origin") != "*" {
				t.Fatalf("expected any origin to be allowed, got %q", recorder.Header().Get("Access-Control-Allow-Origin"))
			}
			allowMethods := recorder.Header().Get("Access-Control-Allow-Methods")
			if !strings.Contains(allowMethods, testCase.method) {
				t.Fatalf("expected Access-Control-Allow-Methods to include %s, got %q", testCase.method, allowMethods)
			}
			allowHeaders := strings.ToLower(recorder.Header().Get("Access-Control-Allow-Headers"))
			for _, header := range strings.Split(testCase.headers, ",") {
				if !strings.Contains(allowHeaders, strings.ToLower(strings.TrimSpace(header))) {
					t.Fatalf("expected Access-Control-Allow-Headers to include %s, got %q", header, allowHeaders)
				}
			}
		})
	}
}

func TestCORSHeadersOnCatalogResponses(t *testing.T) {
	api := newTestAPI(t)

	request := httptest.NewRequest(http.MethodGet, "/videos", http.NoBody)
	request.Header.Set("Origin", "https://fans.example.com")
	recorder := httptest.NewRecorder()
	api.handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}
	if recorder.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected any origin on the listing, got %q", recorder.Header().Get("Access-Control-Allow-Origin"))
	}
	if exposed := recorder.Header().Get("Access-Control-Expose-Headers"); !strings.Contains(strings.ToLower(exposed), "content-length") {
		t.Fatalf("expected Content-Length to be exposed, got %q", exposed)
	}
}
