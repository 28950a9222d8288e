package archive

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/backhaul/internal/platform"
)

const (
	dumpTimeout = 10 * time.Minute
	// databaseDumpName is the dump file inside the artifact root.
	databaseDumpName = "database.sql"
	uploadsDirName   = "uploads"
)

// BuildOptions selects what goes into the artifact.
type BuildOptions struct {
	IncludeDatabase bool
	IncludeUploads  bool
}

// Builder produces backup artifacts under the canonical backups directory.
type Builder struct {
	logger      zerolog.Logger
	backupDir   string
	uploadsDir  string
	databaseURL string
	pgDumpPath  string
	now         func() time.Time
}

func NewBuilder(logger zerolog.Logger, backupDir, uploadsDir, databaseURL, pgDumpPath string) *Builder {
	return &Builder{
		logger:      logger.With().Str("component", "archive-builder").Logger(),
		backupDir:   backupDir,
		uploadsDir:  uploadsDir,
		databaseURL: databaseURL,
		pgDumpPath:  pgDumpPath,
		now:         time.Now,
	}
}

// Build lays the selected content out under one timestamped root and
// packages it into a zip. If packaging fails the directory is kept and
// returned as a directory artifact. Dump and copy failures abort the build
// and remove the partial root so it is never mistaken for a valid artifact.
func (b *Builder) Build(ctx context.Context, opts BuildOptions) (*Artifact, error) {
	name := platform.ArtifactName(b.now())
	root := filepath.Join(b.backupDir, name)

	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}

	if opts.IncludeDatabase {
		if err := b.dumpDatabase(ctx, filepath.Join(root, databaseDumpName)); err != nil {
			os.RemoveAll(root)
			return nil, err
		}
	}

	if opts.IncludeUploads {
		if err := copyTree(b.uploadsDir, filepath.Join(root, uploadsDirName)); err != nil {
			os.RemoveAll(root)
			return nil, fmt.Errorf("%w: uploads: %v", ErrFileCopyFailed, err)
		}
	}

	zipPath := root + ".zip"
	if err := ZipDir(root, zipPath); err != nil {
		// Leave the directory as the artifact rather than failing the run.
		b.logger.Warn().Err(err).Str("artifact", name).Msg("zip packaging unavailable, keeping directory artifact")
		size, sizeErr := dirSize(root)
		if sizeErr != nil {
			return nil, fmt.Errorf("stat directory artifact: %w", sizeErr)
		}
		return &Artifact{Path: root, Directory: true, SizeBytes: size}, nil
	}

	if err := os.RemoveAll(root); err != nil {
		b.logger.Warn().Err(err).Str("path", root).Msg("could not remove staging directory")
	}

	info, err := os.Stat(zipPath)
	if err != nil {
		return nil, fmt.Errorf("stat artifact: %w", err)
	}

	b.logger.Info().Str("artifact", info.Name()).Int64("size_bytes", info.Size()).Msg("artifact built")
	return &Artifact{Path: zipPath, SizeBytes: info.Size()}, nil
}

func (b *Builder) dumpDatabase(ctx context.Context, dest string) error {
	ctx, cancel := context.WithTimeout(ctx, dumpTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, b.pgDumpPath, "--format=plain", "--no-owner", "--file", dest, b.databaseURL)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: %s: %v: %s", ErrDatabaseDumpFailed, b.pgDumpPath, err, out)
	}
	return nil
}

func copyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", src)
	}
	if err := os.MkdirAll(dst, 0o750); err != nil {
		return err
	}
	return os.CopyFS(dst, os.DirFS(src))
}

func dirSize(root string) (int64, error) {
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
	return total, err
}
