package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/schedulegen/stackwire-go/internal/cloud"
	"github.com/schedulegen/stackwire-go/internal/cloud/awscloud"
	"github.com/schedulegen/stackwire-go/internal/cloud/memory"
	"github.com/schedulegen/stackwire-go/internal/cloud/minio"
	"github.com/schedulegen/stackwire-go/internal/config"
	"github.com/schedulegen/stackwire-go/internal/deploy"
	"github.com/schedulegen/stackwire-go/internal/state"
	memstate "github.com/schedulegen/stackwire-go/internal/state/memory"
	sqlstate "github.com/schedulegen/stackwire-go/internal/state/sql"
)

// provider opens the configured backend.
func (e *env) provider(ctx context.Context) (cloud.Provider, error) {
	switch e.cfg.Backend.Name {
	case config.BackendAWS:
		c, err := awscloud.New(ctx, awscloud.Options{
			Region:      e.cfg.AWS.Region,
			Profile:     e.cfg.AWS.Profile,
			RoleArn:     e.cfg.AWS.RoleArn,
			WaitTimeout: e.cfg.AWS.WaitTimeout,
			Logger:      e.log,
		})
		if err != nil {
			return cloud.Provider{}, err
		}
		e.log.Debug().Str("account", c.AccountID()).Str("region", c.Region()).Msg("using aws")
		return c.Provider(), nil

	case config.BackendMinio:
		store, err := minio.New(minio.Options{
			Endpoint:  e.cfg.Minio.Endpoint,
			AccessKey: e.cfg.Minio.AccessKey,
			SecretKey: e.cfg.Minio.SecretKey,
			Secure:    e.cfg.Minio.Secure,
			Region:    e.cfg.Minio.Region,
			Logger:    e.log,
		})
		if err != nil {
			return cloud.Provider{}, err
		}
		p := memory.NewAccount(nil, memory.WithRegion(e.cfg.Minio.Region)).Provider()
		p.Name = config.BackendMinio
		p.Buckets = store
		return p, nil

	default:
		return memory.NewAccount(nil).Provider(), nil
	}
}

// store opens the configured state store. The memory backend always gets a
// memory store: its resources do not outlive the process.
func (e *env) store() (state.Store, error) {
	if e.cfg.Backend.Name == config.BackendMemory || e.cfg.State.Driver == "memory" {
		return memstate.New(), nil
	}
	if e.cfg.State.Driver == "sqlite3" && e.cfg.State.DSN != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(e.cfg.State.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("creating state directory: %w", err)
		}
	}
	return sqlstate.New(e.cfg.State.Driver, e.cfg.State.DSN)
}

// deployer opens the backend and the state store. The returned store must be
// closed by the caller.
func (e *env) deployer(ctx context.Context) (*deploy.Deployer, state.Store, error) {
	p, err := e.provider(ctx)
	if err != nil {
		return nil, nil, err
	}
	st, err := e.store()
	if err != nil {
		return nil, nil, err
	}
	d, err := deploy.New(deploy.Options{
		Provider: p,
		Store:    st,
		Outdir:   e.cfg.Synth.Outdir,
		Logger:   e.log,
	})
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return d, st, nil
}
