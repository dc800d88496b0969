package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"tradeproof/pkg/types"
)

// SupabaseStorage talks to the Supabase Storage REST API for one bucket.
type SupabaseStorage struct {
	baseURL    string
	apiKey     string
	bucketName string
	httpClient *http.Client
}

// NewSupabaseStorage creates a client for https://{projectID}.supabase.co.
func NewSupabaseStorage(projectID, apiKey, bucketName string) *SupabaseStorage {
	return NewSupabaseStorageWithURL(fmt.Sprintf("https://%s.supabase.co", projectID), apiKey, bucketName, &http.Client{})
}

func NewSupabaseStorageWithURL(baseURL, apiKey, bucketName string, httpClient *http.Client) *SupabaseStorage {
	return &SupabaseStorage{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		bucketName: bucketName,
		httpClient: httpClient,
	}
}

func (s *SupabaseStorage) objectURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucketName, path)
}

// Put uploads data. Returns the storage key (path) on success
func (s *SupabaseStorage) Put(ctx context.Context, path string, data []byte, opts PutOptions) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.objectURL(path), bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.apiKey))
	req.Header.Set("Content-Type", opts.ContentType)
	if opts.NoClobber {
		req.Header.Set("x-upsert", "false")
	} else {
		req.Header.Set("x-upsert", "true")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", types.StorageError("Failed to upload file", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		return path, nil
	}

	body, _ := io.ReadAll(resp.Body)
	if isSupabaseDuplicate(resp.StatusCode, body) {
		return "", types.ErrUploadConflict
	}

	return "", types.StorageError("Failed to upload file", fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(body)))
}

func (s *SupabaseStorage) Get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.objectURL(path), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.apiKey))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, types.StorageError("Failed to download file", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusNotFound || supabaseErrorStatus(body) == "404" {
			return nil, types.ErrObjectNotFound
		}
		return nil, types.StorageError("Failed to download file", fmt.Errorf("download failed with status %d: %s", resp.StatusCode, string(body)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.StorageError("Failed to download file", err)
	}

	return data, nil
}

// Delete removes objects in one batch request.
func (s *SupabaseStorage) Delete(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}

	payload, err := json.Marshal(map[string][]string{"prefixes": paths})
	if err != nil {
		return fmt.Errorf("failed to encode delete request: %w", err)
	}

	url := fmt.Sprintf("%s/storage/v1/object/%s", s.baseURL, s.bucketName)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.apiKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return types.StorageError("Failed to delete file", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return types.StorageError("Failed to delete file", fmt.Errorf("delete failed with status %d: %s", resp.StatusCode, string(body)))
	}

	return nil
}

// Supabase answers a clobbering upload with 409, or with 400 and an error
// body whose statusCode is "409" depending on the server version.
func isSupabaseDuplicate(status int, body []byte) bool {
	return status == http.StatusConflict || supabaseErrorStatus(body) == "409"
}

func supabaseErrorStatus(body []byte) string {
	var e struct {
		StatusCode string `json:"statusCode"`
	}
	if json.Unmarshal(body, &e) != nil {
		return ""
	}
	return e.StatusCode
}
