package secrets

// FileMetadata is the plaintext description of a file, sealed under its DataKey.
type FileMetadata struct {
	Filename     string `json:"filename"`
	Size         int64  `json:"size"`
	MimeType     string `json:"mime_type"`
	LastModified int64  `json:"last_modified"` // Unix milliseconds.
}

// FolderMetadata is the plaintext description of a folder.
type FolderMetadata struct {
	FolderName string `json:"folder_name"`
}
