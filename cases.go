package main

import (
	"context"
	"fmt"
)

const updatedFirstName = "Jacek"

// 关系库各阶段

func truncateRows(ctx context.Context, s *State) error {
	return Truncate(ctx, s.DB)
}

func loadRows(ctx context.Context, s *State) error {
	return BulkInsert(ctx, s.DB, s.People)
}

func indexAndLoadRows(ctx context.Context, s *State) error {
	if err := CreateIndexes(ctx, s.DB); err != nil {
		return fmt.Errorf("create indexes, %w", err)
	}
	return BulkInsert(ctx, s.DB, s.People)
}

func queryRows(query string, args ...any) Hook {
	return func(ctx context.Context, s *State) error {
		_, err := QueryCount(ctx, s.DB, query, args...)
		return err
	}
}

func queryRowsByName(query string) Hook {
	return func(ctx context.Context, s *State) error {
		_, err := QueryCount(ctx, s.DB, query, s.SearchName)
		return err
	}
}

func execRows(query string, args ...any) Hook {
	return func(ctx context.Context, s *State) error {
		_, err := s.DB.ExecContext(ctx, query, args...)
		return err
	}
}

// redis 各阶段

func execBatch(ctx context.Context, s *State) error {
	if s.Batch == nil {
		return fmt.Errorf("no batch prepared")
	}
	return execBatchNow(ctx, s.Batch)
}

func loadHashes(entities ...Entity) Hook {
	return func(ctx context.Context, s *State) error {
		return execBatchNow(ctx, s.KV.InsertBatch(ctx, s.People, entities...))
	}
}

func deleteHashes(entities ...Entity) Hook {
	return func(ctx context.Context, s *State) error {
		return execBatchNow(ctx, s.KV.DeleteBatch(ctx, s.N, entities...))
	}
}

func execBatchNow(ctx context.Context, b *Batch) error {
	if err := b.Exec(ctx); err != nil {
		return err
	}
	if b.Completed() != b.Queued() {
		return fmt.Errorf("batch completed %d of %d", b.Completed(), b.Queued())
	}
	return nil
}

func indexAndLoadHashes(indexes []Entity, entities ...Entity) Hook {
	return func(ctx context.Context, s *State) error {
		for _, e := range indexes {
			if err := rebuildIndex(ctx, s.KV, e); err != nil {
				return err
			}
		}
		if err := s.KV.UnlimitedSearchResults(ctx); err != nil {
			return err
		}
		return loadHashes(entities...)(ctx, s)
	}
}

// rebuildIndex 先删掉同名的旧索引, 不同用例的索引字段不一样
func rebuildIndex(ctx context.Context, kv *KV, e Entity, fields ...string) error {
	if err := kv.DropIndex(ctx, e); err != nil {
		return fmt.Errorf("drop index %s, %w", IndexName(e), err)
	}
	if err := kv.CreateIndex(ctx, e, fields...); err != nil {
		return fmt.Errorf("create index %s, %w", IndexName(e), err)
	}
	return nil
}

func searchHashes(e Entity, query func(s *State) string) Hook {
	return func(ctx context.Context, s *State) error {
		_, err := s.KV.Search(ctx, e, query(s), max(s.N, 1))
		return err
	}
}

func joinHashes(joins int, where bool) Hook {
	children := []Entity{EntityAddress, EntityJob, EntityEmergencyContact, EntitySocialMedia}[:joins]
	return func(ctx context.Context, s *State) error {
		query := "*"
		if where {
			query = "@FirstName:" + s.SearchName
		}
		_, err := s.KV.SelectJoins(ctx, query, children, max(s.N, 1), s.Concurrency)
		return err
	}
}

func byName(s *State) string { return "@FirstName:" + s.SearchName }

func joinCase(joins int, where bool) Case {
	name := fmt.Sprintf("select_join_%d", joins)
	cond := ""
	if where {
		name += "_where"
		cond = "p.first_name = ?"
	}

	children := []Entity{EntityAddress, EntityJob, EntityEmergencyContact, EntitySocialMedia}[:joins]
	indexes := append([]Entity{EntityPerson}, children...)

	measure := queryRows(JoinQuery(joins, cond))
	if where {
		measure = queryRowsByName(JoinQuery(joins, cond))
	}

	return Case{
		Name: name,
		Relational: &Hooks{
			Setup:   loadRows,
			Measure: measure,
		},
		KeyValue: &Hooks{
			Setup:   indexAndLoadHashes(indexes, indexes...),
			Measure: joinHashes(joins, where),
		},
	}
}

// indexedJoinCase 按名字过滤的 join, 关系库在 first_name 上有索引
func indexedJoinCase(joins int) Case {
	children := []Entity{EntityAddress, EntityJob, EntityEmergencyContact, EntitySocialMedia}[:joins]

	return Case{
		Name: fmt.Sprintf("select_with_index_join_%d", joins),
		Relational: &Hooks{
			Setup:   indexAndLoadRows,
			Measure: queryRowsByName(JoinQuery(joins, "p.first_name = ?")),
		},
		KeyValue: &Hooks{
			Setup: func(ctx context.Context, s *State) error {
				if err := rebuildIndex(ctx, s.KV, EntityPerson, "FirstName"); err != nil {
					return err
				}
				return indexAndLoadHashes(children, append([]Entity{EntityPerson}, children...)...)(ctx, s)
			},
			Measure: joinHashes(joins, true),
		},
	}
}

// Cases 固定的用例列表, 顺序即执行顺序
func Cases() []Case {
	cases := []Case{
		{
			Name: "insert",
			Relational: &Hooks{
				Measure: func(ctx context.Context, s *State) error {
					return InsertRows(ctx, s.DB, s.People)
				},
				Cleanup: truncateRows,
			},
			KeyValue: &Hooks{
				Measure: func(ctx context.Context, s *State) error {
					want := len(s.People) * len(Entities)
					done, err := s.KV.InsertConcurrent(ctx, s.People, s.Concurrency, Entities...)
					if err == nil && done != want {
						err = fmt.Errorf("inserted %d of %d hashes", done, want)
					}
					return err
				},
				Cleanup: deleteHashes(Entities...),
			},
		},
		{
			Name: "bulk_insert",
			Relational: &Hooks{
				Measure: loadRows,
				Cleanup: truncateRows,
			},
			KeyValue: &Hooks{
				Prepare: func(ctx context.Context, s *State) error {
					s.Batch = s.KV.InsertBatch(ctx, s.People, Entities...)
					return nil
				},
				Measure: execBatch,
				Cleanup: deleteHashes(Entities...),
			},
		},
		{
			Name: "select",
			Relational: &Hooks{
				Setup:   loadRows,
				Measure: queryRows(`SELECT * FROM person`),
			},
			KeyValue: &Hooks{
				Setup: loadHashes(EntityPerson),
				Prepare: func(ctx context.Context, s *State) error {
					s.Batch = s.KV.SelectBatch(ctx, s.N, EntityPerson)
					return nil
				},
				Measure: execBatch,
			},
		},
		{
			Name: "select_one_field",
			Relational: &Hooks{
				Setup:   loadRows,
				Measure: queryRows(`SELECT first_name FROM person`),
			},
			KeyValue: &Hooks{
				Setup: loadHashes(EntityPerson),
				Prepare: func(ctx context.Context, s *State) error {
					s.Batch = s.KV.SelectFieldBatch(ctx, s.N, EntityPerson, "FirstName")
					return nil
				},
				Measure: execBatch,
			},
		},
		{
			Name: "select_where",
			Relational: &Hooks{
				Setup:   loadRows,
				Measure: queryRowsByName(`SELECT * FROM person WHERE first_name = ?`),
			},
			KeyValue: &Hooks{
				Setup:   indexAndLoadHashes([]Entity{EntityPerson}, EntityPerson),
				Measure: searchHashes(EntityPerson, byName),
			},
		},
		{
			Name: "select_between",
			Relational: &Hooks{
				Setup:   loadRows,
				Measure: queryRows(`SELECT * FROM job WHERE salary BETWEEN 100 AND 300`),
			},
			KeyValue: &Hooks{
				Setup: indexAndLoadHashes([]Entity{EntityJob}, EntityJob),
				Measure: searchHashes(EntityJob, func(*State) string {
					return "@Salary:[100 300]"
				}),
			},
		},
	}

	for joins := 1; joins <= len(joinClauses); joins++ {
		cases = append(cases, joinCase(joins, false))
	}
	for joins := 1; joins <= len(joinClauses); joins++ {
		cases = append(cases, joinCase(joins, true))
	}

	cases = append(cases,
		Case{
			Name: "select_with_index",
			Relational: &Hooks{
				Setup:   indexAndLoadRows,
				Measure: queryRowsByName(`SELECT * FROM person WHERE first_name = ?`),
			},
			KeyValue: &Hooks{
				Setup: func(ctx context.Context, s *State) error {
					if err := rebuildIndex(ctx, s.KV, EntityPerson, "FirstName"); err != nil {
						return err
					}
					return loadHashes(EntityPerson)(ctx, s)
				},
				Measure: searchHashes(EntityPerson, byName),
			},
		},
	)

	for joins := 1; joins <= len(joinClauses); joins++ {
		cases = append(cases, indexedJoinCase(joins))
	}

	cases = append(cases,
		Case{
			Name: "update",
			Relational: &Hooks{
				Prepare: loadRows,
				Measure: execRows(`UPDATE person SET first_name = ?`, updatedFirstName),
				Cleanup: truncateRows,
			},
			KeyValue: &Hooks{
				Prepare: func(ctx context.Context, s *State) error {
					if err := loadHashes(EntityPerson)(ctx, s); err != nil {
						return err
					}
					s.Batch = s.KV.UpdateBatch(ctx, s.N, EntityPerson, "FirstName", updatedFirstName)
					return nil
				},
				Measure: execBatch,
				Cleanup: deleteHashes(EntityPerson),
			},
		},
		Case{
			Name: "delete",
			Relational: &Hooks{
				Prepare: loadRows,
				Measure: execRows(`DELETE FROM person`),
				Cleanup: truncateRows,
			},
			KeyValue: &Hooks{
				Prepare: func(ctx context.Context, s *State) error {
					if err := loadHashes(Entities...)(ctx, s); err != nil {
						return err
					}
					s.Batch = s.KV.DeleteBatch(ctx, s.N, Entities...)
					return nil
				},
				Measure: execBatch,
				Cleanup: func(ctx context.Context, s *State) error {
					return s.KV.Purge(ctx)
				},
			},
		},
		Case{
			Name: "concurrent_delete",
			KeyValue: &Hooks{
				Prepare: loadHashes(Entities...),
				Measure: func(ctx context.Context, s *State) error {
					want := s.N * len(Entities)
					done, err := s.KV.DeleteConcurrent(ctx, s.N, s.Concurrency, Entities...)
					if err == nil && done != want {
						err = fmt.Errorf("deleted %d of %d keys", done, want)
					}
					return err
				},
				Cleanup: func(ctx context.Context, s *State) error {
					return s.KV.Purge(ctx)
				},
			},
		},
		Case{
			Name: "truncate",
			Relational: &Hooks{
				Prepare: loadRows,
				Measure: truncateRows,
				Cleanup: truncateRows,
			},
		},
	)
	return cases
}

// CaseNames 所有用例名
func CaseNames() []string {
	cases := Cases()
	names := make([]string, 0, len(cases))
	for _, c := range cases {
		names = append(names, c.Name)
	}
	return names
}
