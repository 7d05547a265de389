package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/PolarWolf314/cryptdrive/internal/api"
	"github.com/PolarWolf314/cryptdrive/internal/codec"
	"github.com/PolarWolf314/cryptdrive/internal/secrets"

	"github.com/klauspost/compress/zip"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"
)

// FileError is a file that could not be added to a folder archive.
type FileError struct {
	FileID string
	Path   string
	Err    error
}

func (e FileError) Error() string {
	name := e.Path
	if name == "" {
		name = e.FileID
	}
	return fmt.Sprintf("%s: %v", name, e.Err)
}

func (e FileError) Unwrap() error { return e.Err }

// FolderResult summarises a folder download.
type FolderResult struct {
	// Files lists the archive paths that were written.
	Files    []string
	Failures []FileError
}

// Err joins the per-file failures.
func (r *FolderResult) Err() error {
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

type archiveEntry struct {
	fileID string
	dir    string
	tmp    string
	meta   *secrets.FileMetadata
	err    error
}

// DownloadFolder writes a zip archive of every file below folderID to w.
// Files are downloaded to temporary storage first with at most Simultaneous
// in flight, then added in listing order. Files that fail are left out and
// reported once the archive is closed.
func (m *Manager) DownloadFolder(ctx context.Context, folderID string, w io.Writer) (*FolderResult, error) {
	var contents *api.FolderContents
	err := m.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		contents, err = m.client.FolderContents(ctx, folderID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list folder %s: %w", folderID, err)
	}

	dirs := m.folderPaths(folderID, contents.Contents.Folders())

	tmpDir, err := os.MkdirTemp("", "cryptdrive-folder-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	files := contents.Contents.Files()
	entries := make([]*archiveEntry, len(files))

	var g errgroup.Group
	g.SetLimit(m.cfg.Simultaneous)
	for i, f := range files {
		entry := &archiveEntry{fileID: f.FileID, dir: dirs[f.FolderID]}
		entries[i] = entry
		g.Go(func() error {
			entry.tmp, entry.meta, entry.err = m.downloadToTemp(ctx, tmpDir, entry.fileID)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &FolderResult{}
	zw := zip.NewWriter(w)
	used := make(map[string]int)
	for _, e := range entries {
		if e.err != nil {
			result.Failures = append(result.Failures, FileError{FileID: e.fileID, Path: e.dir, Err: e.err})
			continue
		}
		name := uniqueName(used, path.Join(e.dir, SanitizeName(e.meta.Filename, e.fileID)))
		if err := addToArchive(zw, name, e.tmp, e.meta); err != nil {
			return result, fmt.Errorf("failed to write %s to archive: %w", name, err)
		}
		result.Files = append(result.Files, name)
	}
	if err := zw.Close(); err != nil {
		return result, fmt.Errorf("failed to finish archive: %w", err)
	}

	if len(result.Failures) > 0 {
		m.log.Warnf("%d of %d file(s) could not be downloaded", len(result.Failures), len(entries))
	}
	return result, result.Err()
}

func (m *Manager) downloadToTemp(ctx context.Context, dir, fileID string) (string, *secrets.FileMetadata, error) {
	f, err := os.CreateTemp(dir, "file-*")
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	_, meta, err := m.Download(ctx, fileID, f)
	if err != nil {
		return "", nil, err
	}
	return f.Name(), meta, nil
}

func addToArchive(zw *zip.Writer, name, tmp string, meta *secrets.FileMetadata) error {
	f, err := os.Open(tmp)
	if err != nil {
		return err
	}
	defer f.Close()

	hdr := &zip.FileHeader{Name: name, Method: zip.Deflate}
	if meta.LastModified > 0 {
		hdr.Modified = time.UnixMilli(meta.LastModified)
	}
	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, f)
	return err
}

// folderPaths maps every folder id below rootID to its archive path. The
// root itself maps to "". Folders whose name cannot be decrypted are named
// by id.
func (m *Manager) folderPaths(rootID string, folders []*api.FolderItem) map[string]string {
	byID := make(map[string]*api.FolderItem, len(folders))
	for _, f := range folders {
		byID[f.FolderID] = f
	}

	names := make(map[string]string, len(folders))
	for _, f := range folders {
		names[f.FolderID] = SanitizeName(m.folderName(f), f.FolderID)
	}

	paths := map[string]string{rootID: ""}
	var resolve func(id string, depth int) string
	resolve = func(id string, depth int) string {
		if p, ok := paths[id]; ok {
			return p
		}
		f, ok := byID[id]
		if !ok || depth > len(folders) {
			return ""
		}
		p := path.Join(resolve(f.ParentFolderID, depth+1), names[id])
		paths[id] = p
		return p
	}
	for _, f := range folders {
		resolve(f.FolderID, 0)
	}
	return paths
}

func (m *Manager) folderName(f *api.FolderItem) string {
	if f.EncryptedMetadata == "" {
		return ""
	}
	key, err := m.unwrapKey(f.EncryptedFolderKey)
	if err != nil {
		m.log.Debugf("Could not unwrap key of folder %s: %v", f.FolderID, err)
		return ""
	}
	defer key.Zero()

	blob, err := codec.DecodeBase64(f.EncryptedMetadata)
	if err != nil {
		return ""
	}
	var meta secrets.FolderMetadata
	if err := secrets.DecryptJSON(blob, key, &meta); err != nil {
		m.log.Debugf("Could not decrypt name of folder %s: %v", f.FolderID, err)
		return ""
	}
	return meta.FolderName
}

// SanitizeName turns a decrypted name into a single safe path element,
// returning fallback when nothing usable is left.
func SanitizeName(name, fallback string) string {
	name = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r < 0x20 {
			return '_'
		}
		return r
	}, strings.TrimSpace(norm.NFC.String(name)))
	if name == "" || name == "." || name == ".." {
		return fallback
	}
	return name
}

// uniqueName appends " (n)" before the extension of names already used.
func uniqueName(used map[string]int, name string) string {
	n := used[name]
	used[name] = n + 1
	if n == 0 {
		return name
	}
	ext := path.Ext(name)
	candidate := fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(name, ext), n, ext)
	return uniqueName(used, candidate)
}
