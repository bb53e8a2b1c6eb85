package service

import (
	"context"
	"fmt"

	"github.com/minhtran-dev/gridstore/internal/domain"
	"github.com/minhtran-dev/gridstore/internal/port"
)

// integrityService owns the server-side checksum round-trip.
type integrityService struct {
	core *Store
}

func newIntegrityService(core *Store) *integrityService {
	return &integrityService{core: core}
}

// validate asks the backend to recompute the content digest over the
// stored chunks and compares it to the file's declared checksum. The
// command targets the configured prefix, never a fixed namespace, so
// validation follows the store it runs against.
func (s *integrityService) validate(ctx context.Context, file *domain.File) error {
	res, err := s.core.db.RunCommand(ctx, port.Document{
		port.CmdFileMD5: file.Metadata.ID,
		port.CmdRoot:    s.core.prefix,
	})
	if err != nil {
		return fmt.Errorf("checksum command failed for file %s: %w", file.Metadata.ID, err)
	}

	actual, ok := port.AsString(res[port.FieldMD5])
	if !ok {
		return fmt.Errorf("checksum command returned no digest for file %s", file.Metadata.ID)
	}

	if expected := file.Metadata.MD5; actual != expected {
		return &port.InvalidFileError{
			FileID:   file.Metadata.ID,
			Expected: expected,
			Actual:   actual,
		}
	}
	return nil
}
