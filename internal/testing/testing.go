// package testing contains shared testing utilities
package testing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/immport/internal/services"
	"github.com/desertthunder/immport/internal/shared"
)

// NewTestDB opens a migrated in-memory database closed at the end of the test.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// UploadRecord is one asset received by [FakeTarget].
type UploadRecord struct {
	AssetID       string
	Filename      string
	ContentType   string
	DeviceAssetID string
	Body          []byte
}

// FakeTarget is an in-memory [services.TargetClient].
//
// UploadErrs are returned by successive UploadAsset calls; a nil entry or an exhausted list succeeds.
// OnUpload runs before every upload with the 1-based call number.
type FakeTarget struct {
	Token      string
	LoginErr   error
	AlbumErr   error
	UploadErrs []error
	LinkErr    error
	OnUpload   func(call int, u services.Upload)

	mu         sync.Mutex
	albums     map[string]string
	creds      []services.Credential
	logins     int
	identities int
	lookups    int
	uploads    int
	links      int
	uploaded   []UploadRecord
	linked     map[string][]string
}

// NewFakeTarget returns a FakeTarget issuing token on login.
func NewFakeTarget(token string) *FakeTarget {
	return &FakeTarget{Token: token, albums: map[string]string{}, linked: map[string][]string{}}
}

// Factory returns a [services.TargetFactory] that records credentials and hands out f.
func (f *FakeTarget) Factory() services.TargetFactory {
	return func(baseURL string, cred services.Credential) services.TargetClient {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.creds = append(f.creds, cred)
		return f
	}
}

func (f *FakeTarget) ExchangeToken(ctx context.Context, email, password string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	if f.LoginErr != nil {
		return "", f.LoginErr
	}
	return f.Token, nil
}

func (f *FakeTarget) Identity(ctx context.Context) (*services.UserInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identities++
	return &services.UserInfo{ID: "user-1", Email: "user@example.com"}, nil
}

func (f *FakeTarget) FindOrCreateAlbum(ctx context.Context, title string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.AlbumErr != nil {
		return "", f.AlbumErr
	}
	if id, ok := f.albums[title]; ok {
		return id, nil
	}
	id := fmt.Sprintf("album-%d", len(f.albums)+1)
	f.albums[title] = id
	return id, nil
}

func (f *FakeTarget) UploadAsset(ctx context.Context, u services.Upload) (string, error) {
	f.mu.Lock()
	f.uploads++
	call := f.uploads
	var err error
	if call <= len(f.UploadErrs) {
		err = f.UploadErrs[call-1]
	}
	hook := f.OnUpload
	f.mu.Unlock()

	if hook != nil {
		hook(call, u)
	}
	if err != nil {
		return "", err
	}

	body, readErr := io.ReadAll(u.Body)
	if readErr != nil {
		return "", readErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("asset-%d", len(f.uploaded)+1)
	f.uploaded = append(f.uploaded, UploadRecord{
		AssetID:       id,
		Filename:      u.Filename,
		ContentType:   u.ContentType,
		DeviceAssetID: u.DeviceAssetID,
		Body:          body,
	})
	return id, nil
}

func (f *FakeTarget) LinkAssetToAlbum(ctx context.Context, assetID, albumID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links++
	if f.LinkErr != nil {
		return f.LinkErr
	}
	f.linked[albumID] = append(f.linked[albumID], assetID)
	return nil
}

// Calls returns the number of calls made to every method.
func (f *FakeTarget) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins + f.identities + f.lookups + f.uploads + f.links
}

// Logins returns the number of ExchangeToken calls.
func (f *FakeTarget) Logins() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

// UploadCalls returns the number of UploadAsset calls, failed ones included.
func (f *FakeTarget) UploadCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads
}

// Uploaded returns the successfully uploaded assets in order.
func (f *FakeTarget) Uploaded() []UploadRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]UploadRecord(nil), f.uploaded...)
}

// Linked returns the asset ids linked to albumID.
func (f *FakeTarget) Linked(albumID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.linked[albumID]...)
}

// Credentials returns every credential the factory was called with.
func (f *FakeTarget) Credentials() []services.Credential {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]services.Credential(nil), f.creds...)
}

// FakeCollector is an in-memory [services.SourceCollector] keyed by link.
type FakeCollector struct {
	Albums map[string]*services.AlbumSource
	Errs   map[string]error

	mu    sync.Mutex
	calls int
}

// NewFakeCollector returns an empty FakeCollector.
func NewFakeCollector() *FakeCollector {
	return &FakeCollector{Albums: map[string]*services.AlbumSource{}, Errs: map[string]error{}}
}

// Add registers an album at link whose items are mediaURLs.
func (c *FakeCollector) Add(link, title string, mediaURLs ...string) {
	src := &services.AlbumSource{Title: title}
	for _, u := range mediaURLs {
		src.Items = append(src.Items, services.MediaRef{MediaURL: u, FilenameHint: u[strings.LastIndex(u, "/")+1:]})
	}
	c.Albums[link] = src
}

func (c *FakeCollector) Extract(ctx context.Context, link string) (*services.AlbumSource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if err := c.Errs[link]; err != nil {
		return nil, err
	}
	src, ok := c.Albums[link]
	if !ok {
		return nil, fmt.Errorf("%w: unknown link %s", shared.ErrCollectorFailed, link)
	}
	return src, nil
}

// Calls returns the number of Extract calls.
func (c *FakeCollector) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// FakeFetcher serves in-memory content keyed by media URL.
//
// Failures[url] makes the first n fetches of url fail.
type FakeFetcher struct {
	Content  map[string][]byte
	Failures map[string]int

	mu    sync.Mutex
	calls map[string]int
}

// NewFakeFetcher returns an empty FakeFetcher.
func NewFakeFetcher() *FakeFetcher {
	return &FakeFetcher{Content: map[string][]byte{}, Failures: map[string]int{}, calls: map[string]int{}}
}

func (f *FakeFetcher) Fetch(ctx context.Context, mediaURL string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[mediaURL]++
	if f.calls[mediaURL] <= f.Failures[mediaURL] {
		return nil, shared.E(shared.KindNetworkTransient, "fetch", fmt.Errorf("attempt %d failed", f.calls[mediaURL]))
	}
	data, ok := f.Content[mediaURL]
	if !ok {
		return nil, shared.E(shared.KindNotFound, "fetch", fmt.Errorf("no content for %s", mediaURL))
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}

// CallsFor returns the number of fetches of mediaURL.
func (f *FakeFetcher) CallsFor(mediaURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[mediaURL]
}

// Calls returns the total number of fetches.
func (f *FakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper returns a fixed response or error for every request
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
