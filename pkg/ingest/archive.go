package ingest

import (
	"archive/zip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

type ExtractSummary struct {
	Extracted int `json:"extracted"`
	Skipped   int `json:"skipped"`
	Rejected  int `json:"rejected"`
}

// Extract unpacks the zip archive into dest. Files already present in dest
// are left untouched and entries resolving outside of dest are rejected.
func Extract(archivePath, dest string, logger *zap.Logger) (ExtractSummary, error) {
	var summary ExtractSummary
	if logger == nil {
		logger = zap.NewNop()
	}
	reader, err := zip.OpenReader(archivePath)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return summary, pkgerrors.Wrapf(err, "error opening archive %s", archivePath)
	}
	defer reader.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return summary, pkgerrors.Wrapf(err, "error creating %s", dest)
	}
	for _, file := range reader.File {
		target := filepath.Join(dest, filepath.FromSlash(file.Name))
		if !within(dest, target) {
			logger.Warn("Rejecting archive entry outside of destination",
				zap.String("entry", file.Name),
			)
			summary.Rejected++
			continue
		}
		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return summary, pkgerrors.Wrapf(err, "error creating %s", target)
			}
			continue
		}
		if _, err := os.Lstat(target); err == nil {
			summary.Skipped++
			continue
		} else if !os.IsNotExist(err) {
			return summary, pkgerrors.Wrapf(err, "error checking %s", target)
		}
		if err := extractFile(file, target); err != nil {
			return summary, err
		}
		summary.Extracted++
	}
	logger.Info("Unzip completed",
		zap.String("archive", archivePath),
		zap.Int("extracted", summary.Extracted),
		zap.Int("skipped", summary.Skipped),
		zap.Int("rejected", summary.Rejected),
	)
	return summary, nil
}

func extractFile(file *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return pkgerrors.Wrapf(err, "error creating %s", filepath.Dir(target))
	}
	src, err := file.Open()
	if err != nil {
		return pkgerrors.Wrapf(err, "error opening archive entry %s", file.Name)
	}
	defer src.Close()
	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return pkgerrors.Wrapf(err, "error creating %s", target)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return pkgerrors.Wrapf(err, "error extracting %s", file.Name)
	}
	return dst.Close()
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
