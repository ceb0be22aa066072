package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/immport/internal/shared"
)

func newImmichServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestImmichClient(t *testing.T) {
	ctx := context.Background()

	t.Run("ExchangeToken", func(t *testing.T) {
		srv := newImmichServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/api/auth/login" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			var body immichLoginRequest
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("failed to decode login body: %v", err)
			}
			if body.Email != "me@example.com" || body.Password != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(immichLoginResponse{AccessToken: "tok-1", UserID: "u1"})
		})

		client := NewImmichClient(srv.URL+"/", Credential{}, srv.Client())
		token, err := client.ExchangeToken(ctx, "me@example.com", "secret")
		if err != nil {
			t.Fatalf("ExchangeToken() error = %v", err)
		}
		if token != "tok-1" {
			t.Errorf("expected token tok-1, got %s", token)
		}

		_, err = client.ExchangeToken(ctx, "me@example.com", "wrong")
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
		if shared.KindOf(err) != shared.KindAuth {
			t.Errorf("expected auth kind, got %v", shared.KindOf(err))
		}
	})

	t.Run("ExchangeToken Missing Credentials", func(t *testing.T) {
		client := NewImmichClient("http://127.0.0.1:1", Credential{}, nil)
		if _, err := client.ExchangeToken(ctx, "", ""); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("Identity With API Key", func(t *testing.T) {
		srv := newImmichServer(t, func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("x-api-key"); got != "key-1" {
				t.Errorf("expected x-api-key key-1, got %q", got)
			}
			if got := r.Header.Get("Authorization"); got != "" {
				t.Errorf("expected no Authorization header, got %q", got)
			}
			_ = json.NewEncoder(w).Encode(UserInfo{ID: "u1", Email: "me@example.com", Name: "Me"})
		})

		user, err := NewImmichClient(srv.URL, Credential{APIKey: "key-1"}, srv.Client()).Identity(ctx)
		if err != nil {
			t.Fatalf("Identity() error = %v", err)
		}
		if user.Email != "me@example.com" {
			t.Errorf("expected email me@example.com, got %s", user.Email)
		}
	})

	t.Run("Identity With Bearer Token", func(t *testing.T) {
		srv := newImmichServer(t, func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
				t.Errorf("expected bearer header, got %q", got)
			}
			_ = json.NewEncoder(w).Encode(UserInfo{ID: "u1"})
		})

		if _, err := NewImmichClient(srv.URL, Credential{AccessToken: "tok-1"}, srv.Client()).Identity(ctx); err != nil {
			t.Fatalf("Identity() error = %v", err)
		}
	})

	t.Run("Identity Unauthorized", func(t *testing.T) {
		srv := newImmichServer(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"message":"Invalid API key"}`, http.StatusUnauthorized)
		})

		_, err := NewImmichClient(srv.URL, Credential{APIKey: "bad"}, srv.Client()).Identity(ctx)
		if shared.KindOf(err) != shared.KindAuth {
			t.Errorf("expected auth kind, got %v (%v)", shared.KindOf(err), err)
		}
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
	})

	t.Run("FindOrCreateAlbum Existing", func(t *testing.T) {
		srv := newImmichServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				t.Errorf("expected only GET, got %s", r.Method)
			}
			_ = json.NewEncoder(w).Encode([]immichAlbum{{ID: "a1", AlbumName: "Other"}, {ID: "a2", AlbumName: "Trip"}})
		})

		id, err := NewImmichClient(srv.URL, Credential{APIKey: "k"}, srv.Client()).FindOrCreateAlbum(ctx, "Trip")
		if err != nil {
			t.Fatalf("FindOrCreateAlbum() error = %v", err)
		}
		if id != "a2" {
			t.Errorf("expected a2, got %s", id)
		}
	})

	t.Run("FindOrCreateAlbum Creates", func(t *testing.T) {
		var created string
		srv := newImmichServer(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				_ = json.NewEncoder(w).Encode([]immichAlbum{})
			case http.MethodPost:
				var body immichAlbum
				_ = json.NewDecoder(r.Body).Decode(&body)
				created = body.AlbumName
				w.WriteHeader(http.StatusCreated)
				_ = json.NewEncoder(w).Encode(immichAlbum{ID: "new", AlbumName: body.AlbumName})
			}
		})

		id, err := NewImmichClient(srv.URL, Credential{APIKey: "k"}, srv.Client()).FindOrCreateAlbum(ctx, "Trip")
		if err != nil {
			t.Fatalf("FindOrCreateAlbum() error = %v", err)
		}
		if id != "new" || created != "Trip" {
			t.Errorf("expected album new named Trip, got %s named %s", id, created)
		}
	})

	t.Run("UploadAsset", func(t *testing.T) {
		srv := newImmichServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/assets" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Fatalf("failed to parse multipart form: %v", err)
			}
			if got := r.FormValue("deviceAssetId"); got != "dev-1" {
				t.Errorf("expected deviceAssetId dev-1, got %s", got)
			}
			if got := r.FormValue("deviceId"); got != DefaultDeviceID {
				t.Errorf("expected deviceId %s, got %s", DefaultDeviceID, got)
			}
			if got := r.FormValue("fileCreatedAt"); got != "2024-05-01T10:00:00Z" {
				t.Errorf("unexpected fileCreatedAt %s", got)
			}
			file, header, err := r.FormFile("assetData")
			if err != nil {
				t.Fatalf("missing assetData: %v", err)
			}
			defer file.Close()
			data, _ := io.ReadAll(file)
			if string(data) != "image-bytes" || header.Filename != "a.jpg" {
				t.Errorf("unexpected file %s with %q", header.Filename, data)
			}
			if got := header.Header.Get("Content-Type"); got != "image/jpeg" {
				t.Errorf("expected part content type image/jpeg, got %s", got)
			}
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(immichAssetResponse{ID: "asset-1", Status: "created"})
		})

		id, err := NewImmichClient(srv.URL, Credential{APIKey: "k"}, srv.Client()).UploadAsset(ctx, Upload{
			Body:          strings.NewReader("image-bytes"),
			Filename:      "a.jpg",
			ContentType:   "image/jpeg",
			DeviceAssetID: "dev-1",
			CreatedAt:     time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		})
		if err != nil {
			t.Fatalf("UploadAsset() error = %v", err)
		}
		if id != "asset-1" {
			t.Errorf("expected asset-1, got %s", id)
		}
	})

	t.Run("UploadAsset Server Error", func(t *testing.T) {
		srv := newImmichServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.Copy(io.Discard, r.Body)
			w.WriteHeader(http.StatusBadGateway)
		})

		_, err := NewImmichClient(srv.URL, Credential{APIKey: "k"}, srv.Client()).UploadAsset(ctx, Upload{
			Body:     strings.NewReader("x"),
			Filename: "a.jpg",
		})
		if shared.KindOf(err) != shared.KindNetworkTransient {
			t.Errorf("expected transient kind, got %v (%v)", shared.KindOf(err), err)
		}
	})

	t.Run("UploadAsset Nil Body", func(t *testing.T) {
		_, err := NewImmichClient("http://127.0.0.1:1", Credential{APIKey: "k"}, nil).UploadAsset(ctx, Upload{})
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("LinkAssetToAlbum", func(t *testing.T) {
		srv := newImmichServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPut || r.URL.Path != "/api/albums/al-1/assets" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			var body map[string][]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			id := body["ids"][0]
			result := immichBulkResult{ID: id, Success: true}
			switch id {
			case "dup":
				result = immichBulkResult{ID: id, Error: "duplicate"}
			case "bad":
				result = immichBulkResult{ID: id, Error: "no_permission"}
			}
			_ = json.NewEncoder(w).Encode([]immichBulkResult{result})
		})

		client := NewImmichClient(srv.URL, Credential{APIKey: "k"}, srv.Client())
		if err := client.LinkAssetToAlbum(ctx, "asset-1", "al-1"); err != nil {
			t.Errorf("LinkAssetToAlbum() error = %v", err)
		}
		if err := client.LinkAssetToAlbum(ctx, "dup", "al-1"); err != nil {
			t.Errorf("expected duplicate link to succeed, got %v", err)
		}
		if err := client.LinkAssetToAlbum(ctx, "bad", "al-1"); err == nil {
			t.Error("expected error for rejected link")
		}
	})

	t.Run("Network Error Is Transient", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := NewImmichClient(url, Credential{APIKey: "k"}, nil).Identity(ctx)
		if shared.KindOf(err) != shared.KindNetworkTransient {
			t.Errorf("expected transient kind, got %v (%v)", shared.KindOf(err), err)
		}
	})

	t.Run("NewImmichTarget", func(t *testing.T) {
		factory := NewImmichTarget(nil)
		if _, ok := factory("http://immich.local", Credential{APIKey: "k"}).(*ImmichClient); !ok {
			t.Error("expected factory to build an *ImmichClient")
		}
	})
}
