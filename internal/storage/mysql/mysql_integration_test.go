//go:build integration || !unit

package mysql_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"refuge_map/internal/app"
	"refuge_map/internal/domain"
	mysqlrepo "refuge_map/internal/storage/mysql"
)

// ---------- small helpers ----------
func pint(i int) *int           { return &i }
func pfloat(f float64) *float64 { return &f }

func migrationsDir(t *testing.T) string {
	t.Helper()
	if v := os.Getenv("MIGRATIONS_DIR"); v != "" {
		return v
	}
	return "migrations"
}

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	dir := migrationsDir(t)

	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir %s: %v", dir, err)
	}
	var files []string
	for _, e := range ents {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		t.Fatalf("no .sql files in %s", dir)
	}
	sort.Strings(files)

	for _, f := range files {
		sqlBytes, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if _, err := db.Exec(string(sqlBytes)); err != nil {
			t.Fatalf("exec %s: %v", f, err)
		}
	}
}

func startMySQL(t *testing.T) *sql.DB {
	t.Helper()
	// Start isolated MySQL; let Docker pick a free host port.
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("dockertest: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker unavailable: %v", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=refuges",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	dsn := fmt.Sprintf("root:root@tcp(127.0.0.1:%s)/refuges?parseTime=true&multiStatements=true&charset=utf8mb4,utf8&loc=UTC",
		resource.GetPort("3306/tcp"))

	var db *sql.DB
	if err := pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	applyMigrations(t, db)
	return db
}

// ---------- the test ----------
func TestRepo_MySQL_UpsertAndList(t *testing.T) {
	db := startMySQL(t)
	repo := mysqlrepo.New(db)
	ctx := context.Background()

	located := domain.Refuge{
		Key: "refugedugouter", Name: "Refuge du Goûter", Structure: "BK_STRUCTURE:85",
		Lat: pfloat(45.85), Lng: pfloat(6.83), AltitudeM: pint(3835), Places: pint(120),
		Gardien: "Jean", Description: "Au sommet", URLs: []string{"https://example.org/gouter"},
		Availability: domain.Availability{"2025-08-13": pint(3), "2025-08-14": nil, "not-a-date": pint(1)},
	}
	unlocated := domain.Refuge{
		Key: "refugeinconnu", Name: "Refuge Inconnu",
		Availability: domain.Availability{"2025-08-13": pint(0)},
	}
	for _, r := range []domain.Refuge{located, unlocated} {
		if err := repo.UpsertRefuge(ctx, r); err != nil {
			t.Fatalf("UpsertRefuge %s: %v", r.Key, err)
		}
	}

	// second upsert drops dates missing from the new snapshot
	located.Availability = domain.Availability{"2025-08-13": pint(2)}
	if err := repo.UpsertRefuge(ctx, located); err != nil {
		t.Fatalf("UpsertRefuge again: %v", err)
	}
	if err := repo.LogMiss(ctx, domain.JoinMiss{Key: "refugeinconnu", Name: "Refuge Inconnu", Reason: "availability_only"}); err != nil {
		t.Fatalf("LogMiss: %v", err)
	}
	if err := repo.LogMiss(ctx, domain.JoinMiss{Key: "refugeinconnu", Name: "Refuge Inconnu", Reason: "availability_only"}); err != nil {
		t.Fatalf("LogMiss twice: %v", err)
	}

	got, err := repo.ListRefuges(ctx)
	if err != nil {
		t.Fatalf("ListRefuges: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 refuges, got %d", len(got))
	}
	g := got[0]
	if g.Key != "refugedugouter" || g.Lat == nil || *g.Places != 120 || len(g.URLs) != 1 {
		t.Fatalf("unexpected refuge: %+v", g)
	}
	if len(g.Availability) != 1 || *g.Availability["2025-08-13"] != 2 {
		t.Fatalf("unexpected availability: %+v", g.Availability)
	}
	u := got[1]
	if u.Located() || u.AvailableOn("2025-08-13") == nil || *u.AvailableOn("2025-08-13") != 0 {
		t.Fatalf("unexpected unlocated refuge: %+v", u)
	}
}

func TestRepo_MySQL_PruneRemovesVanishedRefuges(t *testing.T) {
	db := startMySQL(t)
	repo := mysqlrepo.New(db)
	ctx := context.Background()

	for _, k := range []string{"refugea", "refugeb", "refugeb2"} {
		r := domain.Refuge{Key: k, Name: k, Availability: domain.Availability{"2025-08-13": pint(1)}}
		if err := repo.UpsertRefuge(ctx, r); err != nil {
			t.Fatalf("UpsertRefuge %s: %v", k, err)
		}
	}

	// second ingest only saw refugea
	n, err := repo.PruneRefuges(ctx, []string{"refugea"})
	if err != nil {
		t.Fatalf("PruneRefuges: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 pruned rows, got %d", n)
	}
	got, err := repo.ListRefuges(ctx)
	if err != nil {
		t.Fatalf("ListRefuges: %v", err)
	}
	if len(got) != 1 || got[0].Key != "refugea" {
		t.Fatalf("unexpected refuges after prune: %+v", got)
	}

	var orphans int
	if err := db.QueryRow(`SELECT COUNT(*) FROM refuge_availability WHERE refuge_key <> 'refugea'`).Scan(&orphans); err != nil {
		t.Fatalf("count availability: %v", err)
	}
	if orphans != 0 {
		t.Fatalf("availability of pruned refuges survived: %d rows", orphans)
	}

	if _, err := repo.PruneRefuges(ctx, nil); err == nil {
		t.Fatalf("expected an empty keep list to be refused")
	}
}

type datasetSource struct{ refuges []domain.Refuge }

func (s *datasetSource) Snapshot(ctx context.Context) (*domain.Dataset, error) {
	return app.BuildDataset(s.refuges, domain.JoinStats{Matched: len(s.refuges)}, nil, time.Now()), nil
}

func TestIngest_MySQL_SecondRunDropsVanishedRefuge(t *testing.T) {
	db := startMySQL(t)
	repo := mysqlrepo.New(db)
	ctx := context.Background()

	src := &datasetSource{refuges: []domain.Refuge{
		{Key: "refugea", Name: "Refuge A", Lat: pfloat(45.1), Lng: pfloat(6.1), Availability: domain.Availability{"2025-08-13": pint(3)}},
		{Key: "refugeb", Name: "Refuge B", Availability: domain.Availability{"2025-08-13": pint(0)}},
	}}
	ing := app.NewIngestionService(src, repo, 2)
	if rep, err := ing.Ingest(ctx); err != nil || rep.Upserted != 2 || rep.Pruned != 0 {
		t.Fatalf("first ingest: %+v %v", rep, err)
	}

	src.refuges = src.refuges[:1]
	rep, err := ing.Ingest(ctx)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if rep.Upserted != 1 || rep.Pruned != 1 {
		t.Fatalf("unexpected second report: %+v", rep)
	}
	got, err := repo.ListRefuges(ctx)
	if err != nil {
		t.Fatalf("ListRefuges: %v", err)
	}
	if len(got) != 1 || got[0].Key != "refugea" {
		t.Fatalf("refugeb should be gone: %+v", got)
	}
}
