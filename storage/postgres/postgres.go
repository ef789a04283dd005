// Package postgres keeps device identity in PostgreSQL. Rows are scoped by
// the tenant of the owning engine.
package postgres

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	"github.com/xfyecn/sitewhere-master-sub001/device"
	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/pkg/retry"
)

// Config configures the database connection.
type Config struct {
	DSN string `json:"dsn" yaml:"dsn"`
	// MigrateSchema creates the tables on start when they do not exist.
	MigrateSchema bool  `json:"migrate_schema" yaml:"migrate_schema"`
	MaxConns      int32 `json:"max_conns" yaml:"max_conns"`
}

// dbtx is the query surface shared by *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pool struct {
	db    dbtx
	close func()
}

// DeviceStore is a device.Registry backed by PostgreSQL.
type DeviceStore struct {
	*component.Lifecycle
	component.TenantScope

	cfg  Config
	open func(ctx context.Context, cfg Config) (*pool, error)
	now  func() time.Time

	mu sync.RWMutex
	p  *pool
}

var _ device.Registry = (*DeviceStore)(nil)

// New creates a device store.
func New(deps component.Dependencies, cfg Config) *DeviceStore {
	s := &DeviceStore{cfg: cfg, open: open, now: time.Now}
	s.Lifecycle = component.NewLifecycle(s, component.TypeIdentityResolver, "postgres-devices", deps.LifecycleOptions()...)
	return s
}

func open(ctx context.Context, cfg Config) (*pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, retry.NonRetryable(err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	p, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, err
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return &pool{db: p, close: p.Close}, nil
}

func (s *DeviceStore) Start(ctx context.Context, _ component.Monitor) error {
	if s.cfg.DSN == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, s.Name(), "Start", "dsn")
	}
	p, err := retry.DoWithResult(ctx, retry.Connect(), func(ctx context.Context) (*pool, error) {
		return s.open(ctx, s.cfg)
	})
	if err != nil {
		return errors.WrapTransient(err, s.Name(), "Start", "connect")
	}
	if s.cfg.MigrateSchema {
		if _, err := p.db.Exec(ctx, schema); err != nil {
			p.close()
			return errors.WrapFatal(err, s.Name(), "Start", "migrate schema")
		}
	}

	s.mu.Lock()
	s.p = p
	s.mu.Unlock()
	return nil
}

func (s *DeviceStore) Stop(context.Context, component.Monitor) error {
	s.mu.Lock()
	p := s.p
	s.p = nil
	s.mu.Unlock()
	if p != nil && p.close != nil {
		p.close()
	}
	return nil
}

func (s *DeviceStore) db(method string) (dbtx, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.p == nil {
		return nil, errors.WrapTransient(errors.ErrNotStarted, s.Name(), method, "check started")
	}
	return s.p.db, nil
}

func (s *DeviceStore) GetDevice(ctx context.Context, hardwareID string) (*device.Device, error) {
	db, err := s.db("GetDevice")
	if err != nil {
		return nil, err
	}
	var (
		d        device.Device
		metadata []byte
	)
	err = db.QueryRow(ctx, selectDevice, component.TenantID(s), hardwareID).Scan(
		&d.HardwareID,
		&d.SpecificationToken,
		&d.SiteToken,
		&d.AssignmentToken,
		&d.ParentHardwareID,
		&metadata,
		&d.CreatedAt,
	)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, device.ErrDeviceNotFound
	}
	if err != nil {
		return nil, errors.WrapTransient(err, s.Name(), "GetDevice", "query device")
	}
	if d.Metadata, err = decodeMetadata(metadata); err != nil {
		return nil, errors.WrapInvalid(err, s.Name(), "GetDevice", "decode metadata")
	}
	return &d, nil
}

func (s *DeviceStore) GetSpecification(ctx context.Context, token string) (*device.Specification, error) {
	db, err := s.db("GetSpecification")
	if err != nil {
		return nil, err
	}
	var (
		spec     device.Specification
		metadata []byte
	)
	err = db.QueryRow(ctx, selectSpecification, component.TenantID(s), token).Scan(
		&spec.Token,
		&spec.Name,
		&spec.ContainerPolicy,
		&metadata,
	)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, device.ErrSpecificationNotFound
	}
	if err != nil {
		return nil, errors.WrapTransient(err, s.Name(), "GetSpecification", "query specification")
	}
	if spec.Metadata, err = decodeMetadata(metadata); err != nil {
		return nil, errors.WrapInvalid(err, s.Name(), "GetSpecification", "decode metadata")
	}
	return &spec, nil
}

// RegisterDevice inserts or replaces a device. CreatedAt defaults to now.
func (s *DeviceStore) RegisterDevice(ctx context.Context, d *device.Device) error {
	if d == nil || d.HardwareID == "" || d.SpecificationToken == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, s.Name(), "RegisterDevice", "device validation")
	}
	db, err := s.db("RegisterDevice")
	if err != nil {
		return err
	}
	metadata, err := encodeMetadata(d.Metadata)
	if err != nil {
		return errors.WrapInvalid(err, s.Name(), "RegisterDevice", "encode metadata")
	}
	created := d.CreatedAt
	if created.IsZero() {
		created = s.now().UTC()
	}
	_, err = db.Exec(ctx, upsertDevice,
		component.TenantID(s), d.HardwareID, d.SpecificationToken, d.SiteToken,
		d.AssignmentToken, d.ParentHardwareID, metadata, created)
	if err != nil {
		return errors.WrapTransient(err, s.Name(), "RegisterDevice", "upsert device")
	}
	return nil
}

// AddSpecification inserts or replaces a specification.
func (s *DeviceStore) AddSpecification(ctx context.Context, spec *device.Specification) error {
	if spec == nil || spec.Token == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, s.Name(), "AddSpecification", "specification validation")
	}
	db, err := s.db("AddSpecification")
	if err != nil {
		return err
	}
	metadata, err := encodeMetadata(spec.Metadata)
	if err != nil {
		return errors.WrapInvalid(err, s.Name(), "AddSpecification", "encode metadata")
	}
	_, err = db.Exec(ctx, upsertSpecification,
		component.TenantID(s), spec.Token, spec.Name, spec.ContainerPolicy, metadata)
	if err != nil {
		return errors.WrapTransient(err, s.Name(), "AddSpecification", "upsert specification")
	}
	return nil
}

func encodeMetadata(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}

func decodeMetadata(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
