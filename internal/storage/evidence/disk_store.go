// Package evidence stores dispute evidence files on local disk, named by content hash and upload id.
package evidence

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/remit/internal/domain"
)

// DefaultDir default evidence location.
const DefaultDir = "./data/evidence"

// DiskStore writes each uploaded file under <dir>/<sha256>.<ref id>.
// Uploads are never shared, so removing one ref leaves every other dispute intact.
type DiskStore struct {
	dir string
}

// NewDiskStore creates the evidence directory when missing.
func NewDiskStore(dir string) (*DiskStore, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrap(err, "create evidence dir")
	}
	return &DiskStore{dir: dir}, nil
}

// Store validates and persists files, returning one reference per file in input order.
// Files written before a failure are removed.
func (s *DiskStore) Store(ctx context.Context, files []domain.EvidenceFile) ([]domain.FileRef, error) {
	if err := domain.ValidateEvidence(files); err != nil {
		return nil, err
	}

	refs := make([]domain.FileRef, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			_ = s.Remove(ctx, refs)
			return nil, err
		}

		sum := sha256.Sum256(f.Data)
		ref := domain.FileRef{
			ID:          uuid.New().String(),
			Name:        filepath.Base(f.Name),
			ContentType: domain.NormalizeMediaType(f.ContentType),
			Size:        f.Size(),
			SHA256:      hex.EncodeToString(sum[:]),
		}

		path := s.path(ref)
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, f.Data, 0o640); err != nil {
			_ = s.Remove(ctx, refs)
			return nil, errors.Wrap(err, "write evidence temp file")
		}
		if err := os.Rename(tmp, path); err != nil {
			_ = os.Remove(tmp)
			_ = s.Remove(ctx, refs)
			return nil, errors.Wrap(err, "persist evidence file")
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// Remove deletes the stored content of refs. Missing files are skipped.
func (s *DiskStore) Remove(_ context.Context, refs []domain.FileRef) error {
	var first error
	for _, ref := range refs {
		if err := checkRef(ref); err != nil {
			if first == nil {
				first = err
			}
			continue
		}
		if err := os.Remove(s.path(ref)); err != nil && !errors.Is(err, os.ErrNotExist) && first == nil {
			first = errors.Wrapf(err, "remove evidence %s", ref.ID)
		}
	}
	return first
}

// Open returns the stored content for a reference, checked against its digest.
func (s *DiskStore) Open(ref domain.FileRef) ([]byte, error) {
	if err := checkRef(ref); err != nil {
		return nil, err
	}
	payload, err := os.ReadFile(s.path(ref))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrNotFound.Newf("evidence %s", ref.ID)
		}
		return nil, errors.Wrap(err, "read evidence file")
	}
	sum := sha256.Sum256(payload)
	want, _ := hex.DecodeString(ref.SHA256)
	if !bytes.Equal(sum[:], want) {
		return nil, errors.Errorf("evidence %s is corrupted", ref.ID)
	}
	return payload, nil
}

func (s *DiskStore) path(ref domain.FileRef) string {
	return filepath.Join(s.dir, ref.SHA256+"."+ref.ID)
}

// checkRef keeps refs from escaping the evidence dir.
func checkRef(ref domain.FileRef) error {
	if _, err := hex.DecodeString(ref.SHA256); err != nil || len(ref.SHA256) != sha256.Size*2 {
		return domain.ErrValidation.Newf("invalid evidence digest %q", ref.SHA256)
	}
	if _, err := uuid.Parse(ref.ID); err != nil {
		return domain.ErrValidation.Newf("invalid evidence id %q", ref.ID)
	}
	return nil
}
