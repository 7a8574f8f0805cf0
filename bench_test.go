package main

import (
	"context"
	"os"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

func BenchmarkWriter(b *testing.B) {
	cases := []struct {
		Name   string
		Pragma Pragma
	}{
		{
			Name:   "default",
			Pragma: Pragma{ForeignKeys: true},
		},
		{
			Name: "withoutMutex&wal",
			Pragma: Pragma{
				BusyTimeout: 5000,
				ForeignKeys: true,
				JournalMode: "WAL",
			},
		},
		{
			Name:   "withoutMutex&wal&more",
			Pragma: defaultPragma,
		},
		{
			Name: "withMutex&wal",
			Pragma: Pragma{
				WithMutex:   true,
				ForeignKeys: true,
				JournalMode: "WAL",
			},
		},
	}

	for _, driver := range []string{"sqlite", "sqlite3"} {
		b.Run(driver, func(b *testing.B) {
			for _, v := range cases {
				b.Run(v.Name, func(b *testing.B) {
					path, db, err := newSQLiteDB(driver, v.Pragma)
					if err != nil {
						b.Fatalf("prepare database, %v", err)
					}
					defer func() {
						db.Close()
						os.RemoveAll(path)
					}()

					ctx := context.Background()
					if err := CreateSchema(ctx, db); err != nil {
						b.Fatalf("create schema, %v", err)
					}

					people := NewGenerator(1).Generate(b.N)
					var next atomic.Int64

					b.ResetTimer()
					b.RunParallel(func(pb *testing.PB) {
						for pb.Next() {
							i := next.Add(1) - 1
							if err := InsertRows(ctx, db, people[i:i+1]); err != nil {
								b.Fatalf("insert person, %v", err)
							}
						}
					})
				})
			}
		})
	}
}

// BenchmarkCases 容器里的 postgres 和 redis 需要 CRUDBENCH_DOCKER=1
func BenchmarkCases(b *testing.B) {
	stores := []Store{StoreSQLite, StoreSQLite3}
	if os.Getenv("CRUDBENCH_DOCKER") == "1" {
		stores = append(stores, StorePostgres, StoreRedis)
	}

	cfg := DefaultConfig()
	ctx := context.Background()

	for _, store := range stores {
		b.Run(string(store), func(b *testing.B) {
			for _, c := range Cases() {
				hooks := c.For(store)
				if hooks == nil {
					continue
				}

				for _, n := range []int{10, 100} {
					b.Run(c.Name+"/"+strconv.Itoa(n), func(b *testing.B) {
						session := NewSession(c.Name, hooks, store, n, SessionOptions{
							Provisioner: newProvisioner(cfg, store),
							Fixture:     testFixture,
							Pragma:      cfg.Pragma,
							SearchName:  cfg.SearchName,
							Concurrency: cfg.Concurrency,
						})
						defer session.Teardown(ctx)

						if err := session.GlobalSetup(ctx); err != nil {
							b.Skipf("global setup, %v", err)
						}

						// Prepare 和 Cleanup 不计时, 只累计 Measure
						b.StopTimer()
						b.ResetTimer()

						var total time.Duration
						for i := 0; i < b.N; i++ {
							elapsed, err := session.Iterate(ctx)
							if err != nil {
								b.Fatalf("iteration %d, %v", i, err)
							}
							total += elapsed
						}
						b.ReportMetric(float64(total.Nanoseconds())/float64(b.N), "ns/case")
					})
				}
			}
		})
	}
}
