package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/oukeidos/ocap/internal/apperrors"
)

func TestGenerate_SendsRequestBody(t *testing.T) {
	var got generateBody
	var auth, ua string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/generate" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		ua = r.Header.Get("User-Agent")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		fmt.Fprint(w, `{"response":"  a cat on a sofa \n","done":true}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithTimeout(5*time.Second), WithToken("tok-123"))
	gen, err := client.Generate(context.Background(), GenerateRequest{
		Model:    "llava",
		Prompt:   "Describe the image.",
		Images:   [][]byte{[]byte("PNGDATA")},
		Hardware: HardwareGPU,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if gen.Text != "a cat on a sofa" {
		t.Errorf("Text = %q", gen.Text)
	}
	if got.Model != "llava" || got.Prompt != "Describe the image." || got.Stream {
		t.Errorf("unexpected body: %+v", got)
	}
	if got.Hardware != HardwareGPU {
		t.Errorf("Hardware = %q, want GPU", got.Hardware)
	}
	if len(got.Images) != 1 || got.Images[0] != base64.StdEncoding.EncodeToString([]byte("PNGDATA")) {
		t.Errorf("Images = %v", got.Images)
	}
	if auth != "Bearer tok-123" {
		t.Errorf("Authorization = %q", auth)
	}
	if !strings.HasPrefix(ua, "ocap/") {
		t.Errorf("User-Agent = %q", ua)
	}
}

func TestGenerate_DefaultsHardwareAndOmitsImages(t *testing.T) {
	var raw map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&raw)
		if r.Header.Get("Authorization") != "" {
			t.Errorf("unexpected Authorization header")
		}
		fmt.Fprint(w, `{"response":"tags","done":true}`)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	if _, err := client.Generate(context.Background(), GenerateRequest{Model: "m", Prompt: "p"}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if raw["hardware"] != "CPU" {
		t.Errorf("hardware = %v, want CPU", raw["hardware"])
	}
	if _, ok := raw["images"]; ok {
		t.Errorf("images should be omitted for text-only requests")
	}
	if raw["stream"] != false {
		t.Errorf("stream = %v, want false", raw["stream"])
	}
}

func TestGenerate_StatusErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind apperrors.Kind
		wantMsg  string
	}{
		{"401", http.StatusUnauthorized, `{"error":"bad token SECRET"}`, apperrors.KindAuth, "(401)"},
		{"403", http.StatusForbidden, `{"error":"SECRET"}`, apperrors.KindAuth, "(403)"},
		{"404 model", http.StatusNotFound, `{"error":"model 'x' not found"}`, apperrors.KindBadRequest, "not found"},
		{"400", http.StatusBadRequest, `{"error":"SECRET"}`, apperrors.KindBadRequest, "(400)"},
		{"500", http.StatusInternalServerError, "oom SECRET", apperrors.KindTransient, "(500)"},
		{"503", http.StatusServiceUnavailable, "", apperrors.KindTransient, "(503)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			_, err := NewClient(server.URL).Generate(context.Background(), GenerateRequest{Model: "x"})
			if err == nil {
				t.Fatal("expected error")
			}
			if kind, _ := apperrors.KindOf(err); kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", kind, tt.wantKind)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantMsg)
			}
			if strings.Contains(err.Error(), "SECRET") {
				t.Errorf("server body leaked into message: %q", err.Error())
			}
			if apperrors.IsReadTimeout(err) {
				t.Errorf("status error must not be a read timeout")
			}
		})
	}
}

func TestGenerate_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "not json")
	}))
	defer server.Close()

	_, err := NewClient(server.URL).Generate(context.Background(), GenerateRequest{Model: "m"})
	if err == nil || apperrors.IsReadTimeout(err) {
		t.Fatalf("expected non-timeout decode error, got %v", err)
	}
}

func TestGenerate_ReadTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(server.URL, WithTimeout(50*time.Millisecond))
	_, err := client.Generate(context.Background(), GenerateRequest{Model: "m"})
	if !apperrors.IsReadTimeout(err) {
		t.Fatalf("expected read timeout, got %v", err)
	}
}

func TestGenerate_ConnectionRefusedIsNotReadTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewClient(url, WithTimeout(time.Second)).Generate(context.Background(), GenerateRequest{Model: "m"})
	if err == nil {
		t.Fatal("expected error")
	}
	if apperrors.IsReadTimeout(err) {
		t.Errorf("connection refused classified as read timeout: %v", err)
	}
	if kind, _ := apperrors.KindOf(err); kind != apperrors.KindTransient {
		t.Errorf("kind = %q, want transient", kind)
	}
}

func TestGenerate_ContextCanceled(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	_, err := NewClient(server.URL).Generate(ctx, GenerateRequest{Model: "m"})
	if !apperrors.IsCanceled(err) {
		t.Fatalf("expected canceled, got %v", err)
	}
}

func TestListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tags" {
			t.Errorf("path = %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"models":[{"name":"llava:13b"},{"name":""},{"name":"moondream"}]}`)
	}))
	defer server.Close()

	got := NewClient(server.URL).ListModels(context.Background())
	if len(got) != 2 || got[0] != "llava:13b" || got[1] != "moondream" {
		t.Errorf("ListModels = %v", got)
	}
}

func TestListModels_FailureReturnsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	got := NewClient(server.URL).ListModels(context.Background())
	if got == nil || len(got) != 0 {
		t.Errorf("ListModels = %#v, want empty slice", got)
	}

	server.Close()
	if got := NewClient(server.URL).ListModels(context.Background()); len(got) != 0 {
		t.Errorf("ListModels on closed server = %v", got)
	}
}

func TestParseHardware(t *testing.T) {
	tests := []struct {
		in      string
		want    Hardware
		wantErr bool
	}{
		{"", HardwareCPU, false},
		{"cpu", HardwareCPU, false},
		{"GPU", HardwareGPU, false},
		{" gpu ", HardwareGPU, false},
		{"tpu", "", true},
	}
	for _, tt := range tests {
		got, err := ParseHardware(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseHardware(%q) = %q, %v", tt.in, got, err)
		}
	}
}
