package services

import (
	"context"
	"io"
	"time"
)

// MediaRef is one media file discovered on a source album page.
type MediaRef struct {
	MediaURL     string
	FilenameHint string
}

// AlbumSource is the resolved content of a source album link.
type AlbumSource struct {
	Title string
	Items []MediaRef
}

// SourceCollector resolves a shared album link into its title and items.
type SourceCollector interface {
	Extract(ctx context.Context, link string) (*AlbumSource, error)
}

// Fetcher downloads the bytes behind a media URL. Callers close the returned body.
type Fetcher interface {
	Fetch(ctx context.Context, mediaURL string) (io.ReadCloser, error)
}

// Credential is the request identity used by a [TargetClient].
// Exactly one of APIKey or AccessToken is set for authenticated calls.
type Credential struct {
	APIKey      string
	AccessToken string
}

// UserInfo describes the account behind a credential.
type UserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Upload describes one asset upload. Body is read exactly once.
type Upload struct {
	Body          io.Reader
	Filename      string
	ContentType   string
	DeviceAssetID string
	CreatedAt     time.Time
	ModifiedAt    time.Time
}

// TargetClient is the target asset-management service.
type TargetClient interface {
	// ExchangeToken trades an email and password for a bearer token.
	ExchangeToken(ctx context.Context, email, password string) (string, error)

	// Identity returns the account behind the client's credential.
	Identity(ctx context.Context) (*UserInfo, error)

	// FindOrCreateAlbum returns the id of the album titled title, creating it when missing.
	FindOrCreateAlbum(ctx context.Context, title string) (string, error)

	// UploadAsset uploads one file and returns its asset id.
	UploadAsset(ctx context.Context, upload Upload) (string, error)

	// LinkAssetToAlbum adds an uploaded asset to an album.
	LinkAssetToAlbum(ctx context.Context, assetID, albumID string) error
}

// TargetFactory builds a [TargetClient] for a target base URL and credential.
type TargetFactory func(baseURL string, cred Credential) TargetClient
