package resp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteOK(t *testing.T) {
	rr := httptest.NewRecorder()

	WriteOK(rr, map[string]string{"hello": "world"})

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json content type, got %q", ct)
	}

	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["hello"] != "world" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestWriteCreatedAddsLocation(t *testing.T) {
	rr := httptest.NewRecorder()

	WriteCreated(rr, "/u/alice/m/sunset/", map[string]int{"id": 7})

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	if rr.Header().Get("Location") != "/u/alice/m/sunset/" {
		t.Fatalf("expected Location header set")
	}

	var body map[string]int
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["id"] != 7 {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestWriteCreatedWithoutBody(t *testing.T) {
	rr := httptest.NewRecorder()

	WriteCreated(rr, "", nil)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	if rr.Header().Get("Location") != "" {
		t.Fatalf("expected no Location header")
	}
	if body := rr.Body.String(); body != "" {
		t.Fatalf("expected empty body, got %q", body)
	}
}

func TestWriteFieldErrors(t *testing.T) {
	rr := httptest.NewRecorder()

	WriteFieldErrors(rr, map[string][]string{"file": {"Sorry, I don't support that file type :("}})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	var body ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Error != "invalid_request" {
		t.Fatalf("unexpected error code %q", body.Error)
	}
	if len(body.Fields["file"]) != 1 {
		t.Fatalf("expected one file message, got %+v", body.Fields)
	}
	if body.Description != "" {
		t.Fatalf("expected no description, got %q", body.Description)
	}
}

func TestWriteErrorVariants(t *testing.T) {
	cases := []struct {
		name  string
		write func(http.ResponseWriter)
		code  int
		err   string
		desc  string
	}{
		{
			name:  "unauthorized",
			write: func(w http.ResponseWriter) { WriteUnauthorized(w, "need token") },
			code:  http.StatusUnauthorized, err: "unauthorized", desc: "need token",
		},
		{
			name:  "forbidden",
			write: func(w http.ResponseWriter) { WriteForbidden(w, "no access") },
			code:  http.StatusForbidden, err: "forbidden", desc: "no access",
		},
		{
			name:  "invalid",
			write: func(w http.ResponseWriter) { WriteInvalidRequest(w, "bad") },
			code:  http.StatusBadRequest, err: "invalid_request", desc: "bad",
		},
		{
			name:  "not found",
			write: func(w http.ResponseWriter) { WriteNotFound(w, "missing") },
			code:  http.StatusNotFound, err: "not_found", desc: "missing",
		},
		{
			name:  "unsupported media type",
			write: func(w http.ResponseWriter) { WriteUnsupportedMediaType(w, "multipart only") },
			code:  http.StatusUnsupportedMediaType, err: "unsupported_media_type", desc: "multipart only",
		},
		{
			name:  "rate limited",
			write: func(w http.ResponseWriter) { WriteTooManyRequests(w, "slow down") },
			code:  http.StatusTooManyRequests, err: "rate_limited", desc: "slow down",
		},
		{
			name:  "internal",
			write: func(w http.ResponseWriter) { WriteInternalServerError(w, "oops") },
			code:  http.StatusInternalServerError, err: "internal_server_error", desc: "oops",
		},
		{
			name:  "not implemented",
			write: func(w http.ResponseWriter) { WriteNotImplemented(w, "xml") },
			code:  http.StatusNotImplemented, err: "not_implemented", desc: "xml",
		},
		{
			name:  "unavailable",
			write: func(w http.ResponseWriter) { WriteServiceUnavailable(w, "ffprobe missing") },
			code:  http.StatusServiceUnavailable, err: "service_unavailable", desc: "ffprobe missing",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			tc.write(rr)

			if rr.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rr.Code)
			}

			var body ErrorResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body.Error != tc.err || body.Description != tc.desc {
				t.Fatalf("unexpected body %+v", body)
			}
		})
	}
}

func TestWriteUnauthorizedChallenges(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteUnauthorized(rr, "need token")

	if got := rr.Header().Get("WWW-Authenticate"); got != `Bearer realm="plume"` {
		t.Fatalf("unexpected challenge %q", got)
	}
}
