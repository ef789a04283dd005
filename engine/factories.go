package engine

import (
	"context"
	"time"

	"github.com/xfyecn/sitewhere-master-sub001/config"
	"github.com/xfyecn/sitewhere-master-sub001/device"
	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/storage"
	"github.com/xfyecn/sitewhere-master-sub001/storage/influx"
	"github.com/xfyecn/sitewhere-master-sub001/storage/minio"
	"github.com/xfyecn/sitewhere-master-sub001/storage/objectstore"
	"github.com/xfyecn/sitewhere-master-sub001/storage/postgres"
	"github.com/xfyecn/sitewhere-master-sub001/store"
)

// DefaultRegistry returns a registry with every built-in factory.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	mustRegister(
		r.RegisterIdentity("memory", memoryIdentity),
		r.RegisterIdentity("postgres", postgresIdentity),

		r.RegisterEventStore("memory", memoryEvents),
		r.RegisterEventStore("influx", influxEvents),

		r.RegisterStreamStore("memory", memoryStreams),
		r.RegisterStreamStore("minio", minioStreams),
		r.RegisterStreamStore("objectstore", objectStoreStreams),
	)
	registerSourceFactories(r)
	registerProcessorFactories(r)
	return r
}

func mustRegister(errs ...error) {
	for _, err := range errs {
		if err != nil {
			panic(err)
		}
	}
}

type staticSpecification struct {
	Token    string            `yaml:"token"`
	Name     string            `yaml:"name"`
	Metadata map[string]string `yaml:"metadata"`
}

type staticDevice struct {
	HardwareID    string            `yaml:"hardware_id"`
	Specification string            `yaml:"specification"`
	Site          string            `yaml:"site"`
	Assignment    string            `yaml:"assignment"`
	Metadata      map[string]string `yaml:"metadata"`
}

type memoryIdentityParams struct {
	Specifications []staticSpecification `yaml:"specifications"`
	Devices        []staticDevice        `yaml:"devices"`
}

// memoryIdentity serves devices declared in config plus whatever registers
// at runtime.
func memoryIdentity(bc *Context, params config.Params) (Identity, error) {
	var p memoryIdentityParams
	if err := params.Decode(&p); err != nil {
		return Identity{}, err
	}

	reg := device.NewMemoryStore()
	for _, s := range p.Specifications {
		reg.AddSpecification(&device.Specification{Token: s.Token, Name: s.Name, Metadata: s.Metadata})
	}
	for _, d := range p.Devices {
		err := reg.RegisterDevice(context.Background(), &device.Device{
			HardwareID:         d.HardwareID,
			SpecificationToken: d.Specification,
			SiteToken:          d.Site,
			AssignmentToken:    d.Assignment,
			Metadata:           d.Metadata,
		})
		if err != nil {
			return Identity{}, err
		}
	}
	return Identity{Registry: reg}, nil
}

type postgresIdentityParams struct {
	postgres.Config `yaml:",inline"`
	CacheSize       int           `yaml:"cache_size"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
}

func postgresIdentity(bc *Context, params config.Params) (Identity, error) {
	p := postgresIdentityParams{
		Config: postgres.Config{
			DSN:           bc.Config.Postgres.DSN,
			MaxConns:      bc.Config.Postgres.MaxConns,
			MigrateSchema: bc.Config.Postgres.MigrateSchema,
		},
		CacheSize: 1000,
		CacheTTL:  time.Minute,
	}
	if err := params.Decode(&p); err != nil {
		return Identity{}, err
	}
	if p.DSN == "" {
		return Identity{}, errors.WrapInvalid(errors.ErrMissingConfig, "postgres-identity", "build", "dsn")
	}

	ds := postgres.New(bc.Deps, p.Config)
	bc.Manage(ds)

	id := Identity{Registry: ds}
	if p.CacheSize > 0 {
		cached, err := device.NewCachingResolver(ds, p.CacheSize, p.CacheTTL)
		if err != nil {
			return Identity{}, err
		}
		id.Resolver = cached
	}
	return id, nil
}

func memoryEvents(bc *Context, params config.Params) (store.EventStore, error) {
	if err := params.Decode(&struct{}{}); err != nil {
		return nil, err
	}
	return bc.Memory(), nil
}

func influxEvents(bc *Context, params config.Params) (store.EventStore, error) {
	cfg := influx.Config{
		URL:    bc.Config.Influx.URL,
		Token:  bc.Config.Influx.Token,
		Org:    bc.Config.Influx.Org,
		Bucket: bc.Config.Influx.Bucket,
	}
	if err := params.Decode(&cfg); err != nil {
		return nil, err
	}
	es := influx.New(bc.Deps, cfg)
	bc.Manage(es)
	return es, nil
}

func memoryStreams(bc *Context, params config.Params) (store.StreamStore, error) {
	if err := params.Decode(&struct{}{}); err != nil {
		return nil, err
	}
	return bc.Memory(), nil
}

type minioStreamParams struct {
	minio.Config `yaml:",inline"`
	Prefix       string `yaml:"prefix"`
}

func minioStreams(bc *Context, params config.Params) (store.StreamStore, error) {
	m := bc.Config.MinIO
	p := minioStreamParams{
		Config: minio.Config{
			Endpoint:  m.Endpoint,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			UseTLS:    m.UseTLS,
			Bucket:    m.Bucket,
			Region:    m.Region,
		},
		Prefix: tenantPrefix(bc),
	}
	if err := params.Decode(&p); err != nil {
		return nil, err
	}
	blobs := minio.New(bc.Deps, p.Config)
	bc.Manage(blobs)
	return storage.NewStreams(blobs, p.Prefix), nil
}

type objectStoreStreamParams struct {
	objectstore.Config `yaml:",inline"`
	Prefix             string `yaml:"prefix"`
}

func objectStoreStreams(bc *Context, params config.Params) (store.StreamStore, error) {
	if bc.Deps.NATSClient == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "objectstore-streams", "build", "nats connection")
	}
	p := objectStoreStreamParams{Config: objectstore.DefaultConfig(), Prefix: tenantPrefix(bc)}
	if err := params.Decode(&p); err != nil {
		return nil, err
	}
	blobs := objectstore.New(bc.Deps, p.Config)
	bc.Manage(blobs)
	return storage.NewStreams(blobs, p.Prefix), nil
}

// tenantPrefix keeps tenants sharing a bucket apart.
func tenantPrefix(bc *Context) string {
	return bc.Tenant.ID + "/" + storage.DefaultStreamPrefix
}
