package api

import (
	"context"
	"net/http"
)

// InitializeFile registers a new file and returns its id.
func (c *Client) InitializeFile(ctx context.Context, req InitializeFileRequest) (string, error) {
	var resp InitializeFileResponse
	if err := c.do(ctx, http.MethodPost, c.endpoint("drive", "initialize_file"), req, &resp); err != nil {
		return "", err
	}
	return resp.FileID, nil
}

// UploadChunk stores one encrypted chunk.
func (c *Client) UploadChunk(ctx context.Context, req UploadChunkRequest) error {
	return c.do(ctx, http.MethodPost, c.endpoint("drive", "upload_chunk"), req, nil)
}

// FinalizeUpload reports the terminal state of an upload.
func (c *Client) FinalizeUpload(ctx context.Context, fileID string, state FinalizeState) error {
	return c.do(ctx, http.MethodPost, c.endpoint("drive", "finalize_upload", fileID, string(state)), nil, nil)
}

// AbortUpload tells the backend to discard a cancelled upload.
func (c *Client) AbortUpload(ctx context.Context, fileID string) error {
	return c.do(ctx, http.MethodPost, c.endpoint("drive", "abort_upload"), AbortUploadRequest{FileID: fileID}, nil)
}

// GetFile returns the wrapped key, sealed metadata and chunk list of a file.
func (c *Client) GetFile(ctx context.Context, fileID string) (*FileInfo, error) {
	var info FileInfo
	if err := c.do(ctx, http.MethodGet, c.endpoint("drive", "file", fileID), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// DownloadChunk fetches one encrypted chunk by its storage key.
func (c *Client) DownloadChunk(ctx context.Context, key string) (*ChunkData, error) {
	var chunk ChunkData
	if err := c.do(ctx, http.MethodGet, c.endpoint("drive", "download_chunk", key), nil, &chunk); err != nil {
		return nil, err
	}
	return &chunk, nil
}

// FolderSharedUsers lists the users a folder is shared with.
func (c *Client) FolderSharedUsers(ctx context.Context, folderID string) ([]SharedUser, error) {
	var resp sharedUsersResponse
	if err := c.do(ctx, http.MethodGet, c.endpoint("drive", "folder", folderID, "shared_users"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.SharedUsers, nil
}

// PropagateFileAccess grants every listed user access to a file.
func (c *Client) PropagateFileAccess(ctx context.Context, fileID string, keys []UserKey) error {
	req := PropagateFileAccessRequest{FileID: fileID, UserKeys: keys}
	return c.do(ctx, http.MethodPost, c.endpoint("drive", "propagate_file_access"), req, nil)
}

// PropagateFolderAccess grants every listed user access to a folder.
func (c *Client) PropagateFolderAccess(ctx context.Context, folderID string, keys []UserKey) error {
	req := PropagateFolderAccessRequest{FolderID: folderID, UserKeys: keys}
	return c.do(ctx, http.MethodPost, c.endpoint("drive", "propagate_folder_access"), req, nil)
}

// ShareFolderBatch grants one contact access to a folder tree in one call.
func (c *Client) ShareFolderBatch(ctx context.Context, req ShareFolderBatchRequest) error {
	return c.do(ctx, http.MethodPost, c.endpoint("drive", "share_folder_batch"), req, nil)
}

// ShareFile grants one user access to a file.
func (c *Client) ShareFile(ctx context.Context, fileID string, req ShareFileRequest) error {
	return c.do(ctx, http.MethodPost, c.endpoint("drive", "files", fileID, "share"), req, nil)
}

// FolderContents returns every folder and file below folderID, recursively.
func (c *Client) FolderContents(ctx context.Context, folderID string) (*FolderContents, error) {
	var contents FolderContents
	if err := c.do(ctx, http.MethodGet, c.endpoint("drive", "folder_contents", folderID), nil, &contents); err != nil {
		return nil, err
	}
	return &contents, nil
}

// GetFolder returns a single folder entry with the caller's wrapped key.
func (c *Client) GetFolder(ctx context.Context, folderID string) (*FolderItem, error) {
	var folder FolderItem
	if err := c.do(ctx, http.MethodGet, c.endpoint("drive", "get_folder", folderID), nil, &folder); err != nil {
		return nil, err
	}
	return &folder, nil
}

// CreateFolder registers a new folder and returns its id.
func (c *Client) CreateFolder(ctx context.Context, req CreateFolderRequest) (string, error) {
	var resp CreateFolderResponse
	if err := c.do(ctx, http.MethodPost, c.endpoint("drive", "create_folder"), req, &resp); err != nil {
		return "", err
	}
	return resp.FolderID, nil
}

// PublicKeyByEmail looks up a contact's public key.
func (c *Client) PublicKeyByEmail(ctx context.Context, email string) (*PublicKeyInfo, error) {
	var info PublicKeyInfo
	if err := c.do(ctx, http.MethodGet, c.endpoint("contacts", "get_public_key", email), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
