package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Store 被测存储
type Store string

const (
	StorePostgres Store = "postgres"
	StoreRedis    Store = "redis"
	StoreSQLite   Store = "sqlite"
	StoreSQLite3  Store = "sqlite3"
)

// Relational 是否为关系库
func (s Store) Relational() bool {
	return s != StoreRedis
}

func (s Store) driver() string {
	switch s {
	case StorePostgres:
		return "pgx"
	case StoreSQLite, StoreSQLite3:
		return string(s)
	}
	return ""
}

func parseStore(v string) (Store, error) {
	switch s := Store(v); s {
	case StorePostgres, StoreRedis, StoreSQLite, StoreSQLite3:
		return s, nil
	}
	return "", fmt.Errorf("unknown store %q", v)
}

// Endpoint 已就绪服务的连接信息
type Endpoint struct {
	Store Store
	DSN   string
}

// Provisioner 启动和停止一个隔离的存储实例
//
// Start 返回时服务必须已经可以接受连接
type Provisioner interface {
	Start(ctx context.Context) (Endpoint, error)
	Stop(ctx context.Context) error
}

const (
	pgUser     = "username"
	pgPassword = "password"
	pgDatabase = "bench"
)

type postgresContainer struct {
	image     string
	container *tcpostgres.PostgresContainer
}

func (p *postgresContainer) Start(ctx context.Context) (Endpoint, error) {
	c, err := tcpostgres.RunContainer(ctx,
		testcontainers.WithImage(p.image),
		tcpostgres.WithDatabase(pgDatabase),
		tcpostgres.WithUsername(pgUser),
		tcpostgres.WithPassword(pgPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute)),
	)
	if err != nil {
		return Endpoint{}, fmt.Errorf("start postgres container, %w", err)
	}
	p.container = c

	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return Endpoint{}, fmt.Errorf("postgres connection string, %w", err)
	}
	return Endpoint{Store: StorePostgres, DSN: dsn}, nil
}

func (p *postgresContainer) Stop(ctx context.Context) error {
	if p.container == nil {
		return nil
	}
	err := p.container.Terminate(ctx)
	p.container = nil
	return err
}

type redisContainer struct {
	image     string
	container *tcredis.RedisContainer
}

func (r *redisContainer) Start(ctx context.Context) (Endpoint, error) {
	c, err := tcredis.RunContainer(ctx, testcontainers.WithImage(r.image))
	if err != nil {
		return Endpoint{}, fmt.Errorf("start redis container, %w", err)
	}
	r.container = c

	uri, err := c.ConnectionString(ctx)
	if err != nil {
		return Endpoint{}, fmt.Errorf("redis connection string, %w", err)
	}
	return Endpoint{Store: StoreRedis, DSN: uri}, nil
}

func (r *redisContainer) Stop(ctx context.Context) error {
	if r.container == nil {
		return nil
	}
	err := r.container.Terminate(ctx)
	r.container = nil
	return err
}

// externalProvisioner 使用已经在运行的服务, Start 只检查连通性
type externalProvisioner struct {
	store Store
	dsn   string
}

func (e *externalProvisioner) Start(ctx context.Context) (Endpoint, error) {
	ep := Endpoint{Store: e.store, DSN: e.dsn}

	if e.store == StoreRedis {
		kv, err := NewKV(ctx, e.dsn)
		if err != nil {
			return Endpoint{}, err
		}
		return ep, kv.Close()
	}

	db, err := NewDB(e.store.driver(), e.dsn, Pragma{})
	if err != nil {
		return Endpoint{}, fmt.Errorf("connect %s, %w", e.store, err)
	}
	return ep, db.Close()
}

func (e *externalProvisioner) Stop(context.Context) error {
	return nil
}

// sqliteProvisioner 临时目录下的数据库文件, Stop 时删除
type sqliteProvisioner struct {
	store Store
	dir   string
}

func (s *sqliteProvisioner) Start(context.Context) (Endpoint, error) {
	dir, file, err := sqliteTempFile()
	if err != nil {
		return Endpoint{}, err
	}
	s.dir = dir
	return Endpoint{Store: s.store, DSN: file}, nil
}

func (s *sqliteProvisioner) Stop(context.Context) error {
	if s.dir == "" {
		return nil
	}
	err := os.RemoveAll(s.dir)
	s.dir = ""
	return err
}

// newProvisioner 按配置为 store 选择启动方式
func newProvisioner(cfg Config, store Store) Provisioner {
	switch store {
	case StoreSQLite, StoreSQLite3:
		return &sqliteProvisioner{store: store}
	case StorePostgres:
		if cfg.Provision == ProvisionExternal {
			return &externalProvisioner{store: store, dsn: cfg.PostgresDSN}
		}
		return &postgresContainer{image: cfg.PostgresImage}
	case StoreRedis:
		if cfg.Provision == ProvisionExternal {
			return &externalProvisioner{store: store, dsn: cfg.RedisURL}
		}
		return &redisContainer{image: cfg.RedisImage}
	}
	panic(fmt.Errorf("unknown store %q", store))
}
