// Package sandbox provides filesystem operations confined to a root
// directory. The same executor runs on the remote agent and, in a local
// variant with write support, on the server.
package sandbox

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/brandonline/filebridge/internal/fault"
	"github.com/brandonline/filebridge/internal/protocol"
)

// Default size ceilings in bytes.
const (
	DefaultTextLimit   = 1 << 20       // 1MB, inline display
	DefaultBinaryLimit = 50 * (1 << 20) // 50MB, whole-file download
)

// textExtensions is the allow-list of extensions readable as text.
// Anything else is reported as binary without touching the file.
var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".json": true, ".py": true, ".js": true,
	".html": true, ".css": true, ".yaml": true, ".yml": true, ".xml": true,
	".csv": true, ".log": true, ".bat": true, ".sh": true, ".ps1": true,
	".ini": true, ".cfg": true, ".env": true, ".gitignore": true,
}

// Sandbox provides scoped filesystem access rooted at a single directory.
type Sandbox struct {
	root        string
	textLimit   int64
	binaryLimit int64
}

// StatInfo is the result of a Stat operation.
type StatInfo struct {
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	Path         string `json:"path"`
	Downloadable bool   `json:"downloadable"`
}

// FileData is the result of a ReadBinary operation.
type FileData struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	Bytes []byte `json:"bytes"`
}

// New creates a sandbox rooted at the given directory. Zero limits fall
// back to the defaults.
func New(root string, textLimit, binaryLimit int64) *Sandbox {
	// Resolve symlinks in root so path containment checks compare
	// canonical paths (e.g. on macOS /var -> /private/var).
	absRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		absRoot, _ = filepath.Abs(root)
	}
	if textLimit <= 0 {
		textLimit = DefaultTextLimit
	}
	if binaryLimit <= 0 {
		binaryLimit = DefaultBinaryLimit
	}
	return &Sandbox{root: absRoot, textLimit: textLimit, binaryLimit: binaryLimit}
}

// Root returns the canonical sandbox root.
func (s *Sandbox) Root() string {
	return s.root
}

// resolve safely resolves a caller-supplied path within the sandbox.
// Any path that would escape the root fails with AccessDenied before
// touching the filesystem.
func (s *Sandbox) resolve(path string) (string, error) {
	cleaned := strings.ReplaceAll(path, "\\", "/")
	cleaned = strings.Trim(cleaned, "/")
	if cleaned == "." {
		cleaned = ""
	}

	for _, seg := range strings.Split(cleaned, "/") {
		if seg == ".." {
			return "", fault.New(fault.AccessDenied, "access denied: %s", path)
		}
	}

	fullPath := filepath.Join(s.root, filepath.FromSlash(cleaned))

	// Resolve symlinks to prevent symlink-based escapes
	// (e.g. <root>/link -> /etc).
	resolved, err := filepath.EvalSymlinks(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Target doesn't exist yet; validate the nearest existing
			// ancestor instead so new files can still be created.
			parent := filepath.Dir(fullPath)
			base := filepath.Base(fullPath)

			resolvedParent, parentErr := filepath.EvalSymlinks(parent)
			if parentErr != nil {
				resolvedParent, parentErr = filepath.Abs(parent)
				if parentErr != nil {
					return "", fault.Wrap(fault.OperationFailed, parentErr)
				}
			}

			if !isPathWithin(resolvedParent, s.root) {
				return "", fault.New(fault.AccessDenied, "access denied: %s", path)
			}
			return filepath.Join(resolvedParent, base), nil
		}
		return "", fault.Wrap(fault.OperationFailed, err)
	}

	if !isPathWithin(resolved, s.root) {
		return "", fault.New(fault.AccessDenied, "access denied: %s", path)
	}
	return resolved, nil
}

// isPathWithin checks if path equals root or is nested under it. A plain
// prefix check would incorrectly match /data-evil as within /data.
func isPathWithin(path, root string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}

// List returns directory entries sorted folders first, then by
// case-insensitive name. Entries whose metadata cannot be read are skipped.
func (s *Sandbox) List(path string) ([]protocol.FileEntry, error) {
	resolved, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fault.New(fault.NotFound, "path not found: %s", path)
		}
		return nil, fault.Wrap(fault.OperationFailed, err)
	}
	if !info.IsDir() {
		return nil, fault.New(fault.NotADirectory, "not a directory: %s", path)
	}

	dirents, err := os.ReadDir(resolved)
	if err != nil {
		return nil, fault.Wrap(fault.OperationFailed, err)
	}

	items := make([]protocol.FileEntry, 0, len(dirents))
	for _, entry := range dirents {
		fi, err := entry.Info()
		if err != nil {
			continue
		}

		e := protocol.FileEntry{
			Name:     entry.Name(),
			Type:     protocol.EntryFolder,
			Modified: fi.ModTime(),
		}
		if !entry.IsDir() {
			e.Type = protocol.EntryFile
			size := fi.Size()
			e.Size = &size
			if ext := strings.ToLower(filepath.Ext(entry.Name())); ext != "" {
				e.Extension = &ext
			}
		}
		items = append(items, e)
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Type != items[j].Type {
			return items[i].Type == protocol.EntryFolder
		}
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})

	return items, nil
}

// ReadText returns the contents of a text file. Files over the text ceiling
// fail with TooLarge; unrecognized extensions and undecodable content fail
// with BinaryContent.
func (s *Sandbox) ReadText(path string) (string, error) {
	resolved, err := s.resolve(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fault.New(fault.NotFound, "file not found: %s", path)
		}
		return "", fault.Wrap(fault.OperationFailed, err)
	}
	if info.IsDir() {
		return "", fault.New(fault.NotAFile, "not a file: %s", path)
	}
	if info.Size() > s.textLimit {
		return "", fault.New(fault.TooLarge, "file too large (max %d bytes)", s.textLimit)
	}

	ext := strings.ToLower(filepath.Ext(resolved))
	if ext != "" && !textExtensions[ext] {
		return "", fault.New(fault.BinaryContent, "unsupported format: %s", ext)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fault.Wrap(fault.OperationFailed, err)
	}
	if !utf8.Valid(data) {
		return "", fault.New(fault.BinaryContent, "binary file")
	}
	return string(data), nil
}

// ReadBinary returns the raw contents of a file up to the binary ceiling.
func (s *Sandbox) ReadBinary(path string) (*FileData, error) {
	resolved, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fault.New(fault.NotFound, "file not found: %s", path)
		}
		return nil, fault.Wrap(fault.OperationFailed, err)
	}
	if info.IsDir() {
		return nil, fault.New(fault.NotAFile, "not a file: %s", path)
	}
	if info.Size() > s.binaryLimit {
		return nil, fault.New(fault.TooLarge, "file too large (max %d bytes)", s.binaryLimit)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fault.Wrap(fault.OperationFailed, err)
	}
	return &FileData{Name: info.Name(), Size: int64(len(data)), Bytes: data}, nil
}

// Stat returns metadata for a file or directory.
func (s *Sandbox) Stat(path string) (*StatInfo, error) {
	resolved, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fault.New(fault.NotFound, "path not found: %s", path)
		}
		return nil, fault.Wrap(fault.OperationFailed, err)
	}

	return &StatInfo{
		Name:         info.Name(),
		Size:         info.Size(),
		Path:         resolved,
		Downloadable: info.Mode().IsRegular(),
	}, nil
}

// WriteText writes content to a file, creating parent directories as needed.
func (s *Sandbox) WriteText(path, content string) error {
	resolved, err := s.resolve(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0755); err != nil {
		return fault.Wrap(fault.OperationFailed, err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0644); err != nil {
		return fault.Wrap(fault.OperationFailed, err)
	}
	return nil
}

// Mkdir creates a directory and any missing parents.
func (s *Sandbox) Mkdir(path string) error {
	resolved, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(resolved, 0755); err != nil {
		return fault.Wrap(fault.OperationFailed, err)
	}
	return nil
}

// Delete removes a file or an empty directory. The confirm flag must be set,
// and non-empty directories are refused with NotEmpty; there is no recursive
// delete through this surface.
func (s *Sandbox) Delete(path string, confirm bool) error {
	if !confirm {
		return fault.New(fault.OperationFailed, "delete requires confirmation")
	}

	resolved, err := s.resolve(path)
	if err != nil {
		return err
	}
	if resolved == s.root {
		return fault.New(fault.AccessDenied, "cannot delete sandbox root")
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return fault.New(fault.NotFound, "path not found: %s", path)
		}
		return fault.Wrap(fault.OperationFailed, err)
	}

	if info.IsDir() {
		entries, err := os.ReadDir(resolved)
		if err != nil {
			return fault.Wrap(fault.OperationFailed, err)
		}
		if len(entries) > 0 {
			return fault.New(fault.NotEmpty, "directory not empty: %s", path)
		}
	}

	if err := os.Remove(resolved); err != nil {
		return fault.Wrap(fault.OperationFailed, err)
	}
	return nil
}

// Parent returns the parent of a sandbox-relative path, or "" at the root.
func Parent(path string) string {
	cleaned := strings.Trim(strings.ReplaceAll(path, "\\", "/"), "/")
	if cleaned == "" || cleaned == "." {
		return ""
	}
	parent := filepath.ToSlash(filepath.Dir(cleaned))
	if parent == "." {
		return ""
	}
	return parent
}
