package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/desertthunder/immport/internal/shared"
	"golang.org/x/oauth2"
)

// DefaultDeviceID identifies this importer as the uploading device.
const DefaultDeviceID = "immport"

// ImmichClient is a [TargetClient] for the Immich REST API.
type ImmichClient struct {
	baseURL    string
	apiKey     string
	deviceID   string
	httpClient *http.Client
}

type immichLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type immichLoginResponse struct {
	AccessToken string `json:"accessToken"`
	UserID      string `json:"userId"`
}

type immichAlbum struct {
	ID        string `json:"id"`
	AlbumName string `json:"albumName"`
}

type immichAssetResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"` // created or duplicate
}

type immichBulkResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// NewImmichClient creates a client for the Immich server at baseURL.
//
// An access token is attached as a bearer token through an [oauth2.StaticTokenSource] transport
// wrapping client. An API key is sent in the x-api-key header instead.
func NewImmichClient(baseURL string, cred Credential, client *http.Client) *ImmichClient {
	if client == nil {
		client = http.DefaultClient
	}

	if cred.APIKey == "" && cred.AccessToken != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cred.AccessToken, TokenType: "Bearer"})
		client = oauth2.NewClient(ctx, src)
	}

	return &ImmichClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cred.APIKey,
		deviceID:   DefaultDeviceID,
		httpClient: client,
	}
}

// NewImmichTarget returns a [TargetFactory] building [ImmichClient] values that share client.
func NewImmichTarget(client *http.Client) TargetFactory {
	return func(baseURL string, cred Credential) TargetClient {
		return NewImmichClient(baseURL, cred, client)
	}
}

// ExchangeToken logs in with email and password and returns the session access token.
func (c *ImmichClient) ExchangeToken(ctx context.Context, email, password string) (string, error) {
	if email == "" || password == "" {
		return "", shared.E(shared.KindAuth, "immich.login", shared.ErrMissingCredentials)
	}

	var resp immichLoginResponse
	err := c.doRequest(ctx, "immich.login", http.MethodPost, "/api/auth/login", immichLoginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		if shared.KindOf(err) == shared.KindAuth {
			return "", shared.E(shared.KindAuth, "immich.login", fmt.Errorf("%w: %v", shared.ErrInvalidCredentials, err))
		}
		return "", err
	}

	if resp.AccessToken == "" {
		return "", shared.E(shared.KindAuth, "immich.login", fmt.Errorf("%w: empty access token", shared.ErrAuthFailed))
	}
	return resp.AccessToken, nil
}

// Identity returns the user behind the client's credential.
func (c *ImmichClient) Identity(ctx context.Context) (*UserInfo, error) {
	var user UserInfo
	if err := c.doRequest(ctx, "immich.identity", http.MethodGet, "/api/users/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindOrCreateAlbum returns the first album named title, creating one when none exists.
func (c *ImmichClient) FindOrCreateAlbum(ctx context.Context, title string) (string, error) {
	var albums []immichAlbum
	if err := c.doRequest(ctx, "immich.albums", http.MethodGet, "/api/albums", nil, &albums); err != nil {
		return "", err
	}

	for _, a := range albums {
		if a.AlbumName == title {
			return a.ID, nil
		}
	}

	var created immichAlbum
	if err := c.doRequest(ctx, "immich.create_album", http.MethodPost, "/api/albums", immichAlbum{AlbumName: title}, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", shared.E(shared.KindInternal, "immich.create_album", fmt.Errorf("%w: no album id returned", shared.ErrAPIRequest))
	}
	return created.ID, nil
}

// UploadAsset streams upload as multipart/form-data to /api/assets.
// A duplicate reported by the server is not an error; its existing asset id is returned.
func (c *ImmichClient) UploadAsset(ctx context.Context, upload Upload) (string, error) {
	const op = "immich.upload"
	if upload.Body == nil {
		return "", shared.E(shared.KindValidation, op, fmt.Errorf("%w: upload body is nil", shared.ErrInvalidInput))
	}

	created := upload.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	modified := upload.ModifiedAt
	if modified.IsZero() {
		modified = created
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeAssetForm(mw, upload, c.deviceID, created, modified))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/assets", pr)
	if err != nil {
		pr.Close()
		return "", shared.E(shared.KindInternal, op, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	var asset immichAssetResponse
	if err := c.send(req, op, &asset); err != nil {
		pr.Close()
		return "", err
	}
	if asset.ID == "" {
		return "", shared.E(shared.KindInternal, op, fmt.Errorf("%w: no asset id returned", shared.ErrAPIRequest))
	}
	return asset.ID, nil
}

// LinkAssetToAlbum adds assetID to albumID. An asset already in the album counts as linked.
func (c *ImmichClient) LinkAssetToAlbum(ctx context.Context, assetID, albumID string) error {
	const op = "immich.link"
	var results []immichBulkResult
	body := map[string][]string{"ids": {assetID}}
	if err := c.doRequest(ctx, op, http.MethodPut, "/api/albums/"+albumID+"/assets", body, &results); err != nil {
		return err
	}

	for _, r := range results {
		if !r.Success && r.Error != "duplicate" {
			return shared.E(shared.KindValidation, op, fmt.Errorf("%w: asset %s: %s", shared.ErrAPIRequest, r.ID, r.Error))
		}
	}
	return nil
}

func writeAssetForm(mw *multipart.Writer, upload Upload, deviceID string, created, modified time.Time) error {
	fields := []struct{ name, value string }{
		{"deviceAssetId", upload.DeviceAssetID},
		{"deviceId", deviceID},
		{"fileCreatedAt", created.UTC().Format(time.RFC3339)},
		{"fileModifiedAt", modified.UTC().Format(time.RFC3339)},
	}
	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return err
		}
	}

	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="assetData"; filename=%q`, upload.Filename))
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, upload.Body); err != nil {
		return err
	}
	return mw.Close()
}

// doRequest performs a JSON request against the Immich API and decodes the response into result.
func (c *ImmichClient) doRequest(ctx context.Context, op, method, endpoint string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return shared.E(shared.KindInternal, op, fmt.Errorf("failed to encode request: %w", err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return shared.E(shared.KindInternal, op, fmt.Errorf("failed to create request: %w", err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	return c.send(req, op, result)
}

func (c *ImmichClient) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
}

func (c *ImmichClient) send(req *http.Request, op string, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return shared.E(shared.KindInternal, op, err)
		}
		return shared.E(shared.KindNetworkTransient, op, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return shared.E(
			shared.KindFromStatus(resp.StatusCode),
			op,
			fmt.Errorf("%w: status %d: %s", shared.ErrAPIRequest, resp.StatusCode, strings.TrimSpace(string(snippet))),
		)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return shared.E(shared.KindInternal, op, fmt.Errorf("failed to decode response: %w", err))
		}
	}
	return nil
}
