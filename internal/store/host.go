package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/fixtures/internal/access"
	"github.com/roach88/fixtures/internal/ir"
)

var _ access.Host = (*Store)(nil)

// Probe reports which bootstrap artifacts exist.
func (s *Store) Probe(ctx context.Context) (access.Probe, error) {
	return s.dialect.probe(ctx, s)
}

// CurrentIdentity returns the identity ordinary queries run as.
func (s *Store) CurrentIdentity(ctx context.Context) (string, error) {
	return s.dialect.currentIdentity(ctx, s.db)
}

// CaptureIdentity records the installing identity.
func (s *Store) CaptureIdentity(ctx context.Context) (string, error) {
	return s.dialect.captureIdentity(ctx, s)
}

// CreateNamespaces creates the owner identity and its namespaces.
func (s *Store) CreateNamespaces(ctx context.Context, caller string) error {
	return s.dialect.createNamespaces(ctx, s, caller)
}

// RunPrivilegedSetup creates engine tables and grants.
func (s *Store) RunPrivilegedSetup(ctx context.Context) error {
	return s.dialect.privilegedSetup(ctx, s)
}

// RecordInstall writes the install marker.
func (s *Store) RecordInstall(ctx context.Context, caller string) error {
	sess, err := s.Begin(ctx, ReadWrite)
	if err != nil {
		return err
	}
	defer sess.Rollback()

	if _, err := sess.exec(ctx, `
		INSERT INTO `+s.names.Install+` (id, layout_version, engine_version, installed_by, installed_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, ir.LayoutVersion, ir.EngineVersion, caller, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("record install: %w", err)
	}
	return sess.Commit()
}

// RemoveInstall deletes the install marker if the marker table exists.
func (s *Store) RemoveInstall(ctx context.Context) error {
	p, err := s.Probe(ctx)
	if err != nil {
		return err
	}
	if !p.Marker {
		return nil
	}

	sess, err := s.Begin(ctx, ReadWrite)
	if err != nil {
		return err
	}
	defer sess.Rollback()

	if _, err := sess.exec(ctx, `DELETE FROM `+s.names.Install); err != nil {
		return fmt.Errorf("remove install: %w", err)
	}
	return sess.Commit()
}

// DropNamespaces drops the engine namespaces and their contents.
func (s *Store) DropNamespaces(ctx context.Context) error {
	return s.dialect.dropNamespaces(ctx, s)
}

// DropOwner drops the owner identity and its grants.
func (s *Store) DropOwner(ctx context.Context) error {
	return s.dialect.dropOwner(ctx, s)
}

// Installation describes a recorded install.
type Installation struct {
	LayoutVersion string `json:"layout_version"`
	EngineVersion string `json:"engine_version"`
	InstalledBy   string `json:"installed_by"`
	InstalledAt   string `json:"installed_at"`
}

// Installation reads the install marker as the caller. The api namespace is
// readable without elevation.
func (s *Store) Installation(ctx context.Context) (Installation, error) {
	var in Installation
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`
		SELECT layout_version, engine_version, installed_by, installed_at
		FROM `+s.names.Install+` WHERE id = ?
	`), 1).Scan(&in.LayoutVersion, &in.EngineVersion, &in.InstalledBy, &in.InstalledAt)
	if err != nil {
		return Installation{}, fmt.Errorf("read installation: %w", s.classify(err))
	}
	return in, nil
}
