package api

import (
	"encoding/json"
	"fmt"
)

// RootFolderID is the pseudo folder id of a user's drive root.
const RootFolderID = "root"

// FinalizeState is the terminal state reported for an upload.
type FinalizeState string

const (
	FinalizeCompleted FinalizeState = "completed"
	FinalizeAborted   FinalizeState = "aborted"
)

// UserKey is a share grant: an object's DataKey wrapped for one user.
type UserKey struct {
	UserID       string `json:"user_id"`
	EncryptedKey string `json:"encrypted_key"`
	AccessLevel  string `json:"access_level"`
}

type InitializeFileRequest struct {
	EncryptedMetadata string `json:"encrypted_metadata"`
	EncryptedFileKey  string `json:"encrypted_file_key"`
	Size              int64  `json:"size"`
	MimeType          string `json:"mime_type"`
	FolderID          string `json:"folder_id"`
}

type InitializeFileResponse struct {
	FileID string `json:"file_id"`
}

type UploadChunkRequest struct {
	FileID    string `json:"file_id"`
	Index     int    `json:"index"`
	ChunkData string `json:"chunk_data"`
	IV        string `json:"iv"`
}

type AbortUploadRequest struct {
	FileID string `json:"file_id"`
}

// ChunkRef locates one stored chunk of a file.
type ChunkRef struct {
	Key   string `json:"s3_key"`
	Index int    `json:"index"`
}

// FileInfo is what the backend knows about a file: its wrapped key, sealed
// metadata and chunk locations.
type FileInfo struct {
	FileID            string     `json:"file_id"`
	EncryptedFileKey  string     `json:"encrypted_file_key"`
	EncryptedMetadata string     `json:"encrypted_metadata"`
	Chunks            []ChunkRef `json:"chunks"`
}

// ChunkData is one encrypted chunk as returned by the backend.
type ChunkData struct {
	Data string `json:"data"`
	IV   string `json:"iv"`
}

// SharedUser is a user with access to a folder, with their public key.
type SharedUser struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	PublicKey   string `json:"public_key"`
	AccessLevel string `json:"access_level"`
}

type sharedUsersResponse struct {
	SharedUsers []SharedUser `json:"shared_users"`
}

type PropagateFileAccessRequest struct {
	FileID   string    `json:"file_id"`
	UserKeys []UserKey `json:"user_keys"`
}

type PropagateFolderAccessRequest struct {
	FolderID string    `json:"folder_id"`
	UserKeys []UserKey `json:"user_keys"`
}

type FolderKey struct {
	FolderID           string `json:"folder_id"`
	EncryptedFolderKey string `json:"encrypted_folder_key"`
}

type FileKey struct {
	FileID           string `json:"file_id"`
	EncryptedFileKey string `json:"encrypted_file_key"`
}

type ShareFolderBatchRequest struct {
	FolderID    string      `json:"folder_id"`
	ContactID   string      `json:"contact_id"`
	AccessLevel string      `json:"access_level"`
	FolderKeys  []FolderKey `json:"folder_keys"`
	FileKeys    []FileKey   `json:"file_keys"`
}

type ShareFileRequest struct {
	RecipientUserID  string `json:"recipient_user_id"`
	EncryptedFileKey string `json:"encrypted_file_key"`
	AccessLevel      string `json:"access_level"`
}

// PublicKeyInfo is a contact's user id and public key PEM.
type PublicKeyInfo struct {
	UserID    string `json:"user_id"`
	PublicKey string `json:"public_key"`
}

type CreateFolderRequest struct {
	EncryptedMetadata  string `json:"encrypted_metadata"`
	EncryptedFolderKey string `json:"encrypted_folder_key"`
	ParentFolderID     string `json:"parent_folder_id"`
}

type CreateFolderResponse struct {
	FolderID string `json:"folder_id"`
}

// Item is a drive entry: either a *FileItem or a *FolderItem.
type Item interface {
	ID() string
	WrappedKey() string
	Metadata() string
	item()
}

// FileItem is a file entry in a folder listing.
type FileItem struct {
	FileID            string `json:"file_id"`
	EncryptedFileKey  string `json:"encrypted_file_key"`
	EncryptedMetadata string `json:"encrypted_metadata,omitempty"`
	FolderID          string `json:"folder_id,omitempty"`
}

func (f *FileItem) ID() string         { return f.FileID }
func (f *FileItem) WrappedKey() string { return f.EncryptedFileKey }
func (f *FileItem) Metadata() string   { return f.EncryptedMetadata }
func (*FileItem) item()                {}

func (f *FileItem) MarshalJSON() ([]byte, error) {
	type plain FileItem
	return json.Marshal(struct {
		Type string `json:"type"`
		*plain
	}{"file", (*plain)(f)})
}

// FolderItem is a folder entry in a folder listing.
type FolderItem struct {
	FolderID           string `json:"folder_id"`
	EncryptedFolderKey string `json:"encrypted_folder_key"`
	EncryptedMetadata  string `json:"encrypted_metadata,omitempty"`
	ParentFolderID     string `json:"parent_folder_id,omitempty"`
}

func (f *FolderItem) ID() string         { return f.FolderID }
func (f *FolderItem) WrappedKey() string { return f.EncryptedFolderKey }
func (f *FolderItem) Metadata() string   { return f.EncryptedMetadata }
func (*FolderItem) item()                {}

func (f *FolderItem) MarshalJSON() ([]byte, error) {
	type plain FolderItem
	return json.Marshal(struct {
		Type string `json:"type"`
		*plain
	}{"folder", (*plain)(f)})
}

// Items is a listing of drive entries decoded from {"type": ...} records.
type Items []Item

func (items *Items) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(Items, 0, len(raw))
	for i, r := range raw {
		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(r, &probe); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}

		switch probe.Type {
		case "file":
			var f FileItem
			if err := json.Unmarshal(r, &f); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			out = append(out, &f)
		case "folder":
			var f FolderItem
			if err := json.Unmarshal(r, &f); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			out = append(out, &f)
		default:
			return fmt.Errorf("item %d: unknown type %q", i, probe.Type)
		}
	}

	*items = out
	return nil
}

// Files returns the file entries of the listing.
func (items Items) Files() []*FileItem {
	var files []*FileItem
	for _, it := range items {
		if f, ok := it.(*FileItem); ok {
			files = append(files, f)
		}
	}
	return files
}

// Folders returns the folder entries of the listing.
func (items Items) Folders() []*FolderItem {
	var folders []*FolderItem
	for _, it := range items {
		if f, ok := it.(*FolderItem); ok {
			folders = append(folders, f)
		}
	}
	return folders
}

// FolderContents is the recursive listing below a folder.
type FolderContents struct {
	FolderID string `json:"folder_id"`
	Contents Items  `json:"contents"`
}
