package http_handler

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/minhtran-dev/gridstore/internal/adapter/outbound/memdoc"
	"github.com/minhtran-dev/gridstore/internal/config"
	"github.com/minhtran-dev/gridstore/internal/service"
	"github.com/minhtran-dev/gridstore/pkg/idgen"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Store.ChunkSize = 4
	cfg.Store.WriteConcern = "acknowledged"

	store, err := service.New(cfg, memdoc.New(true))
	if err != nil {
		t.Fatalf("store init failed: %v", err)
	}

	idGen, err := idgen.New(1, nil)
	if err != nil {
		t.Fatalf("idgen init failed: %v", err)
	}

	return NewServer(cfg, store, idGen)
}

func uploadRequest(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("multipart setup failed: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("multipart write failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("multipart close failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/files", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestUploadDownloadRemoveRoundTrip(t *testing.T) {
	s := newTestServer(t)
	content := []byte("the quick brown fox jumps over the lazy dog")

	resp, err := s.App().Test(uploadRequest(t, "fox.txt", content))
	if err != nil {
		t.Fatalf("upload request failed: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload status = %d, want 201", resp.StatusCode)
	}

	var created struct {
		ID     string `json:"id"`
		Length int64  `json:"length"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	if created.Length != int64(len(content)) {
		t.Fatalf("length = %d, want %d", created.Length, len(content))
	}

	t.Run("download by id", func(t *testing.T) {
		resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/files?id="+created.ID, nil))
		if err != nil {
			t.Fatalf("download failed: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("download status = %d, want 200", resp.StatusCode)
		}
		body, _ := io.ReadAll(resp.Body)
		if !bytes.Equal(body, content) {
			t.Fatalf("downloaded %q, want %q", body, content)
		}
	})

	t.Run("metadata by filename", func(t *testing.T) {
		resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/files/metadata?filename=fox.txt", nil))
		if err != nil {
			t.Fatalf("metadata failed: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("metadata status = %d, want 200", resp.StatusCode)
		}
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			resp, err := s.App().Test(httptest.NewRequest(http.MethodDelete, "/files?id="+created.ID, nil))
			if err != nil {
				t.Fatalf("remove %d failed: %v", i, err)
			}
			if resp.StatusCode != http.StatusNoContent {
				t.Fatalf("remove %d status = %d, want 204", i, resp.StatusCode)
			}
		}
	})

	t.Run("download after remove", func(t *testing.T) {
		resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/files?id="+created.ID, nil))
		if err != nil {
			t.Fatalf("download failed: %v", err)
		}
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", resp.StatusCode)
		}
	})
}

func TestDownloadMissingSelector(t *testing.T) {
	s := newTestServer(t)
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/files", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}
