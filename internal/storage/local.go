package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/edvin/backhaul/internal/platform"
)

// LocalBackend stores artifacts in the canonical local backups directory.
// No credentials are involved.
type LocalBackend struct {
	dir string
}

func NewLocal(dir string) *LocalBackend {
	return &LocalBackend{dir: dir}
}

func (l *LocalBackend) Name() string { return "local" }

// Upload copies the artifact into the backups directory. Re-uploading the
// same remoteName overwrites the previous copy. When the builder already
// wrote the artifact into this directory the copy is skipped.
func (l *LocalBackend) Upload(ctx context.Context, localPath, remoteName string) (*UploadResult, error) {
	dest := filepath.Join(l.dir, filepath.Base(remoteName))

	if abs, err := filepath.Abs(localPath); err == nil {
		if destAbs, err := filepath.Abs(dest); err == nil && abs == destAbs {
			return &UploadResult{ID: filepath.Base(remoteName)}, nil
		}
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", localPath, err)
	}

	if err := os.RemoveAll(dest); err != nil {
		return nil, fmt.Errorf("replace %s: %w", dest, err)
	}

	if info.IsDir() {
		if err := os.MkdirAll(dest, 0o750); err != nil {
			return nil, fmt.Errorf("create %s: %w", dest, err)
		}
		if err := os.CopyFS(dest, os.DirFS(localPath)); err != nil {
			return nil, fmt.Errorf("copy %s: %w", localPath, err)
		}
	} else {
		if err := copyFile(localPath, dest); err != nil {
			return nil, err
		}
	}

	return &UploadResult{ID: filepath.Base(remoteName)}, nil
}

// List returns artifacts in the backups directory, newest first. Both zip
// and directory-shaped artifacts are reported.
func (l *LocalBackend) List(ctx context.Context, prefix string) ([]Object, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", l.dir, err)
	}

	var objects []Object
	for _, entry := range entries {
		name := entry.Name()
		if prefix != "" && !platform.IsArtifactName(name) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", name, err)
		}

		createdAt := platform.ArtifactTime(name)
		if createdAt.IsZero() {
			createdAt = info.ModTime().UTC()
		}

		size := info.Size()
		if entry.IsDir() {
			size, err = treeSize(filepath.Join(l.dir, name))
			if err != nil {
				return nil, err
			}
		}

		objects = append(objects, Object{
			ID:        name,
			Name:      name,
			SizeBytes: size,
			CreatedAt: createdAt,
		})
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].CreatedAt.After(objects[j].CreatedAt)
	})
	return objects, nil
}

func (l *LocalBackend) Delete(ctx context.Context, id, name string) error {
	if name == "" {
		name = id
	}
	// Artifact names never contain separators; refuse anything that would
	// escape the backups directory.
	if filepath.Base(name) != name {
		return fmt.Errorf("invalid artifact name %q", name)
	}
	if err := os.RemoveAll(filepath.Join(l.dir, name)); err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

func (l *LocalBackend) TestConnection(ctx context.Context) (*ConnectionInfo, error) {
	if err := os.MkdirAll(l.dir, 0o750); err != nil {
		return nil, fmt.Errorf("backups directory not writable: %w", err)
	}
	return &ConnectionInfo{Label: fmt.Sprintf("local directory %s", l.dir)}, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	return out.Close()
}

func treeSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("size %s: %w", root, err)
	}
	return total, nil
}
