// Package apitest provides an in-memory drive backend for tests.
//
// The backend stores exactly what a real server would: wrapped keys, sealed
// metadata and encrypted chunks. It never sees plaintext, which lets tests
// assert that nothing readable crosses the wire.
package apitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PolarWolf314/cryptdrive/internal/api"

	"github.com/google/uuid"
)

// Upload states as stored by the backend.
const (
	StatePending   = "pending"
	StateCompleted = "completed"
	StateAborted   = "aborted"
)

// Hooks customise backend behaviour per request.
type Hooks struct {
	// Intercept runs before every request. A non-zero status is returned to
	// the client instead of handling the request.
	Intercept func(endpoint string, r *http.Request) int

	// Delay returns how long to stall a chunk request for the given index.
	Delay func(endpoint string, index int) time.Duration
}

// User is an account known to the backend.
type User struct {
	ID        string
	Email     string
	Username  string
	PublicKey string
	Token     string
}

type grant struct {
	wrappedKey  string
	accessLevel string
}

type file struct {
	id       string
	folderID string
	metadata string
	size     int64
	mimeType string
	state    string
	chunks   map[int]string
	access   map[string]grant
}

type folder struct {
	id       string
	parentID string
	metadata string
	access   map[string]grant
}

type chunk struct {
	data string
	iv   string
}

// Backend is a thread-safe in-memory drive server.
type Backend struct {
	Hooks Hooks

	mu        sync.Mutex
	users     map[string]*User
	tokens    map[string]*User
	files     map[string]*file
	folders   map[string]*folder
	chunks    map[string]chunk
	calls     map[string]int
	uploads   map[string][]int
	inFlight  int
	maxFlight int
	grants    []Grant
}

// Grant records one propagate or share call for inspection.
type Grant struct {
	Endpoint string
	ObjectID string
	UserKeys []api.UserKey
}

// NewBackend returns an empty backend.
func NewBackend() *Backend {
	return &Backend{
		users:   make(map[string]*User),
		tokens:  make(map[string]*User),
		files:   make(map[string]*file),
		folders: make(map[string]*folder),
		chunks:  make(map[string]chunk),
		calls:   make(map[string]int),
		uploads: make(map[string][]int),
	}
}

// NewServer starts an httptest server for b. It is closed with the test.
func NewServer(t interface{ Cleanup(func()) }, b *Backend) *httptest.Server {
	srv := httptest.NewServer(b.Handler())
	t.Cleanup(srv.Close)
	return srv
}

// AddUser registers an account and returns it with its bearer token.
func (b *Backend) AddUser(email, username, publicKeyPEM string) *User {
	b.mu.Lock()
	defer b.mu.Unlock()

	u := &User{
		ID:        uuid.NewString(),
		Email:     email,
		Username:  username,
		PublicKey: publicKeyPEM,
		Token:     uuid.NewString(),
	}
	b.users[email] = u
	b.tokens[u.Token] = u
	return u
}

// AddFolder creates a folder owned by owner with the given wrapped key.
func (b *Backend) AddFolder(owner *User, parentID, metadata, wrappedKey string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addFolderLocked(owner, parentID, metadata, wrappedKey)
}

func (b *Backend) addFolderLocked(owner *User, parentID, metadata, wrappedKey string) string {
	id := uuid.NewString()
	b.folders[id] = &folder{
		id:       id,
		parentID: parentID,
		metadata: metadata,
		access:   map[string]grant{owner.ID: {wrappedKey: wrappedKey, accessLevel: "owner"}},
	}
	return id
}

// ShareFolder grants u access to a folder with a pre-wrapped key.
func (b *Backend) ShareFolder(folderID string, u *User, wrappedKey, level string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if f, ok := b.folders[folderID]; ok {
		f.access[u.ID] = grant{wrappedKey: wrappedKey, accessLevel: level}
	}
}

// Calls returns how many requests hit endpoint.
func (b *Backend) Calls(endpoint string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[endpoint]
}

// UploadedIndices returns the chunk indices received for a file, sorted.
func (b *Backend) UploadedIndices(fileID string) []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := append([]int(nil), b.uploads[fileID]...)
	sort.Ints(out)
	return out
}

// ArrivalOrder returns the chunk indices of fileID in the order the backend
// stored them.
func (b *Backend) ArrivalOrder(fileID string) []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.uploads[fileID]...)
}

// MaxConcurrentChunks returns the highest number of chunk requests that
// were in flight at once.
func (b *Backend) MaxConcurrentChunks() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxFlight
}

// FileState returns the upload state of a file, or "" when unknown.
func (b *Backend) FileState(fileID string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if f, ok := b.files[fileID]; ok {
		return f.state
	}
	return ""
}

// FileIDs returns every file id known to the backend.
func (b *Backend) FileIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.files))
	for id := range b.files {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Grants returns every propagate and share call received.
func (b *Backend) Grants() []Grant {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Grant(nil), b.grants...)
}

// FileAccess returns the wrapped key stored for userID on a file.
func (b *Backend) FileAccess(fileID, userID string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.files[fileID]
	if !ok {
		return "", false
	}
	g, ok := f.access[userID]
	return g.wrappedKey, ok
}

// FolderAccess returns the wrapped key stored for userID on a folder.
func (b *Backend) FolderAccess(folderID, userID string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.folders[folderID]
	if !ok {
		return "", false
	}
	g, ok := f.access[userID]
	return g.wrappedKey, ok
}

// TamperChunk replaces the stored ciphertext of one chunk.
func (b *Backend) TamperChunk(fileID string, index int, data string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.files[fileID]
	if !ok {
		return
	}
	key := f.chunks[index]
	c := b.chunks[key]
	c.data = data
	b.chunks[key] = c
}

// DropChunk forgets one chunk of a file so its chunk list has a gap.
func (b *Backend) DropChunk(fileID string, index int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if f, ok := b.files[fileID]; ok {
		delete(f.chunks, index)
	}
}

// Handler returns the HTTP handler serving the backend's endpoints.
func (b *Backend) Handler() http.Handler {
	mux := http.NewServeMux()
	b.route(mux, "POST /drive/initialize_file", "initialize_file", b.initializeFile)
	b.route(mux, "POST /drive/upload_chunk", "upload_chunk", b.uploadChunk)
	b.route(mux, "POST /drive/finalize_upload/{id}/{state}", "finalize_upload", b.finalizeUpload)
	b.route(mux, "POST /drive/abort_upload", "abort_upload", b.abortUpload)
	b.route(mux, "GET /drive/file/{id}", "file", b.getFile)
	b.route(mux, "GET /drive/download_chunk/{key}", "download_chunk", b.downloadChunk)
	b.route(mux, "GET /drive/folder/{id}/shared_users", "shared_users", b.sharedUsers)
	b.route(mux, "POST /drive/propagate_file_access", "propagate_file_access", b.propagateFileAccess)
	b.route(mux, "POST /drive/propagate_folder_access", "propagate_folder_access", b.propagateFolderAccess)
	b.route(mux, "POST /drive/share_folder_batch", "share_folder_batch", b.shareFolderBatch)
	b.route(mux, "GET /drive/folder_contents/{id}", "folder_contents", b.folderContents)
	b.route(mux, "GET /drive/get_folder/{id}", "get_folder", b.getFolder)
	b.route(mux, "POST /drive/files/{id}/share", "share_file", b.shareFile)
	b.route(mux, "POST /drive/create_folder", "create_folder", b.createFolder)
	b.route(mux, "GET /contacts/get_public_key/{email}", "get_public_key", b.publicKey)
	return mux
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, u *User)

func (b *Backend) route(mux *http.ServeMux, pattern, endpoint string, h handlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.calls[endpoint]++
		u := b.tokens[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]
		b.mu.Unlock()

		if b.Hooks.Intercept != nil {
			if status := b.Hooks.Intercept(endpoint, r); status != 0 {
				writeError(w, status, "injected failure")
				return
			}
		}
		if u == nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		h(w, r, u)
	})
}

func (b *Backend) delay(r *http.Request, endpoint string, index int) {
	if b.Hooks.Delay == nil {
		return
	}
	d := b.Hooks.Delay(endpoint, index)
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-r.Context().Done():
	}
}

func (b *Backend) enterChunk() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inFlight++
	if b.inFlight > b.maxFlight {
		b.maxFlight = b.inFlight
	}
}

func (b *Backend) leaveChunk() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inFlight--
}

func (b *Backend) initializeFile(w http.ResponseWriter, r *http.Request, u *User) {
	var req api.InitializeFileRequest
	if !decode(w, r, &req) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if req.FolderID != api.RootFolderID {
		if _, ok := b.folders[req.FolderID]; !ok {
			writeError(w, http.StatusNotFound, "folder not found")
			return
		}
	}

	id := uuid.NewString()
	b.files[id] = &file{
		id:       id,
		folderID: req.FolderID,
		metadata: req.EncryptedMetadata,
		size:     req.Size,
		mimeType: req.MimeType,
		state:    StatePending,
		chunks:   make(map[int]string),
		access:   map[string]grant{u.ID: {wrappedKey: req.EncryptedFileKey, accessLevel: "owner"}},
	}
	writeJSON(w, api.InitializeFileResponse{FileID: id})
}

func (b *Backend) uploadChunk(w http.ResponseWriter, r *http.Request, u *User) {
	var req api.UploadChunkRequest
	if !decode(w, r, &req) {
		return
	}

	b.enterChunk()
	defer b.leaveChunk()
	b.delay(r, "upload_chunk", req.Index)
	if r.Context().Err() != nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.files[req.FileID]
	if !ok || f.state != StatePending {
		writeError(w, http.StatusNotFound, "upload not found")
		return
	}
	key := f.id + "/" + uuid.NewString()
	b.chunks[key] = chunk{data: req.ChunkData, iv: req.IV}
	f.chunks[req.Index] = key
	b.uploads[f.id] = append(b.uploads[f.id], req.Index)
	writeJSON(w, map[string]string{"s3_key": key})
}

func (b *Backend) finalizeUpload(w http.ResponseWriter, r *http.Request, u *User) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, ok := b.files[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	switch state := r.PathValue("state"); state {
	case StateCompleted, StateAborted:
		f.state = state
	default:
		writeError(w, http.StatusBadRequest, "invalid state")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) abortUpload(w http.ResponseWriter, r *http.Request, u *User) {
	var req api.AbortUploadRequest
	if !decode(w, r, &req) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if f, ok := b.files[req.FileID]; ok {
		f.state = StateAborted
	}
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) getFile(w http.ResponseWriter, r *http.Request, u *User) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, ok := b.files[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	g, ok := f.access[u.ID]
	if !ok {
		writeError(w, http.StatusForbidden, "access denied")
		return
	}

	info := api.FileInfo{
		FileID:            f.id,
		EncryptedFileKey:  g.wrappedKey,
		EncryptedMetadata: f.metadata,
		Chunks:            make([]api.ChunkRef, 0, len(f.chunks)),
	}
	for index, key := range f.chunks {
		info.Chunks = append(info.Chunks, api.ChunkRef{Key: key, Index: index})
	}
	writeJSON(w, info)
}

func (b *Backend) downloadChunk(w http.ResponseWriter, r *http.Request, u *User) {
	key := r.PathValue("key")

	b.mu.Lock()
	c, ok := b.chunks[key]
	index := -1
	if f, found := b.files[strings.SplitN(key, "/", 2)[0]]; found {
		for i, k := range f.chunks {
			if k == key {
				index = i
			}
		}
	}
	b.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "chunk not found")
		return
	}

	b.enterChunk()
	defer b.leaveChunk()
	b.delay(r, "download_chunk", index)
	writeJSON(w, api.ChunkData{Data: c.data, IV: c.iv})
}

func (b *Backend) sharedUsers(w http.ResponseWriter, r *http.Request, u *User) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, ok := b.folders[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "folder not found")
		return
	}

	users := []api.SharedUser{}
	for _, other := range b.users {
		g, ok := f.access[other.ID]
		if !ok || other.ID == u.ID {
			continue
		}
		users = append(users, api.SharedUser{
			UserID:      other.ID,
			Username:    other.Username,
			PublicKey:   other.PublicKey,
			AccessLevel: g.accessLevel,
		})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	writeJSON(w, map[string]any{"shared_users": users})
}

func (b *Backend) propagateFileAccess(w http.ResponseWriter, r *http.Request, u *User) {
	var req api.PropagateFileAccessRequest
	if !decode(w, r, &req) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.files[req.FileID]
	if !ok {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	for _, k := range req.UserKeys {
		f.access[k.UserID] = grant{wrappedKey: k.EncryptedKey, accessLevel: k.AccessLevel}
	}
	b.grants = append(b.grants, Grant{Endpoint: "propagate_file_access", ObjectID: req.FileID, UserKeys: req.UserKeys})
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) propagateFolderAccess(w http.ResponseWriter, r *http.Request, u *User) {
	var req api.PropagateFolderAccessRequest
	if !decode(w, r, &req) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.folders[req.FolderID]
	if !ok {
		writeError(w, http.StatusNotFound, "folder not found")
		return
	}
	for _, k := range req.UserKeys {
		f.access[k.UserID] = grant{wrappedKey: k.EncryptedKey, accessLevel: k.AccessLevel}
	}
	b.grants = append(b.grants, Grant{Endpoint: "propagate_folder_access", ObjectID: req.FolderID, UserKeys: req.UserKeys})
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) shareFolderBatch(w http.ResponseWriter, r *http.Request, u *User) {
	var req api.ShareFolderBatchRequest
	if !decode(w, r, &req) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	var keys []api.UserKey
	for _, fk := range req.FolderKeys {
		if f, ok := b.folders[fk.FolderID]; ok {
			f.access[req.ContactID] = grant{wrappedKey: fk.EncryptedFolderKey, accessLevel: req.AccessLevel}
		}
		keys = append(keys, api.UserKey{UserID: req.ContactID, EncryptedKey: fk.EncryptedFolderKey, AccessLevel: req.AccessLevel})
	}
	for _, fk := range req.FileKeys {
		if f, ok := b.files[fk.FileID]; ok {
			f.access[req.ContactID] = grant{wrappedKey: fk.EncryptedFileKey, accessLevel: req.AccessLevel}
		}
		keys = append(keys, api.UserKey{UserID: req.ContactID, EncryptedKey: fk.EncryptedFileKey, AccessLevel: req.AccessLevel})
	}
	b.grants = append(b.grants, Grant{Endpoint: "share_folder_batch", ObjectID: req.FolderID, UserKeys: keys})
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) shareFile(w http.ResponseWriter, r *http.Request, u *User) {
	var req api.ShareFileRequest
	if !decode(w, r, &req) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.files[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	f.access[req.RecipientUserID] = grant{wrappedKey: req.EncryptedFileKey, accessLevel: req.AccessLevel}
	b.grants = append(b.grants, Grant{
		Endpoint: "share_file",
		ObjectID: f.id,
		UserKeys: []api.UserKey{{UserID: req.RecipientUserID, EncryptedKey: req.EncryptedFileKey, AccessLevel: req.AccessLevel}},
	})
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) folderContents(w http.ResponseWriter, r *http.Request, u *User) {
	rootID := r.PathValue("id")

	b.mu.Lock()
	defer b.mu.Unlock()

	var items api.Items
	queue := []string{rootID}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]

		for _, id := range sortedKeys(b.folders) {
			f := b.folders[id]
			g, ok := f.access[u.ID]
			if f.parentID != parent || !ok {
				continue
			}
			items = append(items, &api.FolderItem{
				FolderID:           f.id,
				EncryptedFolderKey: g.wrappedKey,
				EncryptedMetadata:  f.metadata,
				ParentFolderID:     f.parentID,
			})
			queue = append(queue, f.id)
		}
		for _, id := range sortedKeys(b.files) {
			f := b.files[id]
			g, ok := f.access[u.ID]
			if f.folderID != parent || !ok || f.state != StateCompleted {
				continue
			}
			items = append(items, &api.FileItem{
				FileID:            f.id,
				EncryptedFileKey:  g.wrappedKey,
				EncryptedMetadata: f.metadata,
				FolderID:          f.folderID,
			})
		}
	}

	if items == nil {
		items = api.Items{}
	}
	writeJSON(w, api.FolderContents{FolderID: rootID, Contents: items})
}

func (b *Backend) getFolder(w http.ResponseWriter, r *http.Request, u *User) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, ok := b.folders[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "folder not found")
		return
	}
	g, ok := f.access[u.ID]
	if !ok {
		writeError(w, http.StatusForbidden, "access denied")
		return
	}
	writeJSON(w, &api.FolderItem{
		FolderID:           f.id,
		EncryptedFolderKey: g.wrappedKey,
		EncryptedMetadata:  f.metadata,
		ParentFolderID:     f.parentID,
	})
}

func (b *Backend) createFolder(w http.ResponseWriter, r *http.Request, u *User) {
	var req api.CreateFolderRequest
	if !decode(w, r, &req) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if req.ParentFolderID != api.RootFolderID {
		if _, ok := b.folders[req.ParentFolderID]; !ok {
			writeError(w, http.StatusNotFound, "parent folder not found")
			return
		}
	}
	id := b.addFolderLocked(u, req.ParentFolderID, req.EncryptedMetadata, req.EncryptedFolderKey)
	writeJSON(w, api.CreateFolderResponse{FolderID: id})
}

func (b *Backend) publicKey(w http.ResponseWriter, r *http.Request, u *User) {
	b.mu.Lock()
	other, ok := b.users[r.PathValue("email")]
	b.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, api.PublicKeyInfo{UserID: other.ID, PublicKey: other.PublicKey})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
