//go:build integration
// +build integration

package integration

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/taskboard/taskboard/client"
	"github.com/taskboard/taskboard/client/queue"
	"github.com/taskboard/taskboard/client/replay"
	httpapi "github.com/taskboard/taskboard/internal/api/http"
	"github.com/taskboard/taskboard/internal/application/expiry"
	appLock "github.com/taskboard/taskboard/internal/application/lock"
	"github.com/taskboard/taskboard/internal/application/reorder"
	appTask "github.com/taskboard/taskboard/internal/application/task"
	"github.com/taskboard/taskboard/internal/infrastructure/postgres"
	"github.com/taskboard/taskboard/internal/infrastructure/sse"
)

func TestLockLifecycleIntegration(t *testing.T) {
	server, cleanup := newTestServer(t)
	defer cleanup()

	ctx := context.Background()
	c := client.New(server.URL, nil)

	task, err := c.CreateTask(ctx, "Contended card", "", "TODO")
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	alice := client.Holder{ID: uuid.New(), Name: "alice"}
	bob := client.Holder{ID: uuid.New(), Name: "bob"}

	grant, err := c.AcquireLock(ctx, task.TaskID, alice)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !grant.Granted {
		t.Fatal("expected grant for free lock")
	}

	// Re-acquire by the same holder is idempotent.
	grant, err = c.AcquireLock(ctx, task.TaskID, alice)
	if err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	if !grant.Granted {
		t.Fatal("expected idempotent re-acquire to succeed")
	}

	denied, err := c.AcquireLock(ctx, task.TaskID, bob)
	if err != nil {
		t.Fatalf("contended acquire: %v", err)
	}
	if denied.Granted {
		t.Fatal("expected denial while alice holds the lock")
	}
	if denied.LockedBy == nil || denied.LockedBy.Name != "alice" {
		t.Fatalf("expected denial to name alice, got %+v", denied.LockedBy)
	}

	// The content lock is independent.
	editGrant, err := c.AcquireEditLock(ctx, task.TaskID, bob)
	if err != nil {
		t.Fatalf("edit acquire: %v", err)
	}
	if !editGrant.Granted {
		t.Fatal("expected content lock grant while position lock is held")
	}

	if err := c.ReleaseLock(ctx, task.TaskID, alice); err != nil {
		t.Fatalf("release: %v", err)
	}
	grant, err = c.AcquireLock(ctx, task.TaskID, bob)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if !grant.Granted {
		t.Fatal("expected grant after release")
	}
}

func TestConcurrentAcquireSingleWinner(t *testing.T) {
	server, cleanup := newTestServer(t)
	defer cleanup()

	ctx := context.Background()
	c := client.New(server.URL, nil)

	task, err := c.CreateTask(ctx, "Hot card", "", "TODO")
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	const racers = 8
	holders := make([]client.Holder, racers)
	for i := range holders {
		holders[i] = client.Holder{ID: uuid.New(), Name: "racer"}
	}

	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		results = make([]*client.AcquireResult, racers)
		errs    = make([]error, racers)
	)
	for i := range holders {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = c.AcquireLock(ctx, task.TaskID, holders[i])
		}(i)
	}
	close(start)
	wg.Wait()

	winner := -1
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("racer %d: %v", i, errs[i])
		}
		if results[i].Granted {
			if winner != -1 {
				t.Fatalf("racers %d and %d both granted", winner, i)
			}
			winner = i
			continue
		}
		if results[i].LockedBy == nil {
			t.Fatalf("racer %d denied without a holder", i)
		}
	}
	if winner == -1 {
		t.Fatal("no racer was granted the lock")
	}

	// The losers' denials and the stored state all name the winner.
	held, err := c.AcquireLock(ctx, task.TaskID, client.Holder{ID: uuid.New(), Name: "late"})
	if err != nil {
		t.Fatalf("post-race acquire: %v", err)
	}
	if held.Granted || held.LockedBy == nil || held.LockedBy.ID != holders[winner].ID {
		t.Fatalf("expected lock held by racer %d, got %+v", winner, held)
	}
}

func TestReorderIntegration(t *testing.T) {
	server, cleanup := newTestServer(t)
	defer cleanup()

	ctx := context.Background()
	c := client.New(server.URL, nil)

	ids := make([]uuid.UUID, 3)
	for i, title := range []string{"first", "second", "third"} {
		task, err := c.CreateTask(ctx, title, "", "TODO")
		if err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
		ids[i] = task.TaskID
	}

	holder := client.Holder{ID: uuid.New(), Name: "carol"}

	// Reorder without the lock is rejected.
	reversed := []uuid.UUID{ids[2], ids[1], ids[0]}
	if _, err := c.Reorder(ctx, ids[2], holder, reversed); err == nil {
		t.Fatal("expected reorder without lock to fail")
	}

	grant, err := c.AcquireLock(ctx, ids[2], holder)
	if err != nil || !grant.Granted {
		t.Fatalf("acquire: granted=%v err=%v", grant != nil && grant.Granted, err)
	}

	positions, err := c.Reorder(ctx, ids[2], holder, reversed)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if len(positions) != 3 {
		t.Fatalf("expected 3 positions, got %d", len(positions))
	}
	for i, p := range positions {
		if p.TaskID != reversed[i] || p.OrderIndex != i+1 {
			t.Fatalf("position %d: got %+v", i, p)
		}
	}

	// The reorder released the lock; another holder can take it.
	grant, err = c.AcquireLock(ctx, ids[2], client.Holder{ID: uuid.New(), Name: "dave"})
	if err != nil || !grant.Granted {
		t.Fatalf("expected lock released after reorder: granted=%v err=%v", grant != nil && grant.Granted, err)
	}
}

func TestOfflineReplayIntegration(t *testing.T) {
	server, cleanup := newTestServer(t)
	defer cleanup()

	ctx := context.Background()
	c := client.New(server.URL, nil)

	existing, err := c.CreateTask(ctx, "Pre-existing", "", "TODO")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	store, err := queue.New(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	defer store.Close()

	temp := uuid.New()
	if _, err := store.Enqueue(ctx, queue.KindCreate, queue.CreatePayload{
		TempID: temp,
		Title:  "Drafted offline",
		Status: "TODO",
	}); err != nil {
		t.Fatalf("enqueue create: %v", err)
	}
	if _, err := store.Enqueue(ctx, queue.KindUpdatePosition, queue.UpdatePositionPayload{
		TaskID: existing.TaskID,
		Status: "DONE",
	}); err != nil {
		t.Fatalf("enqueue move: %v", err)
	}

	eng := replay.New(c, store, client.Holder{ID: uuid.New(), Name: "offline"}, zerolog.Nop())
	report, err := eng.Replay(ctx)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if report.Replayed != 2 || report.Dropped != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(report.Created) != 1 || report.Created[0].TempID != temp {
		t.Fatalf("expected created correlation for %s, got %+v", temp, report.Created)
	}

	moved, err := c.GetTask(ctx, existing.TaskID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if moved.Status != "DONE" {
		t.Fatalf("expected DONE after replay, got %s", moved.Status)
	}
}

func TestSSEBroadcastIntegration(t *testing.T) {
	server, cleanup := newTestServer(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/v1/events?client_id=test-client", nil)
	if err != nil {
		t.Fatalf("sse request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("sse connect: %v", err)
	}
	defer resp.Body.Close()

	c := client.New(server.URL, nil)
	if _, err := c.CreateTask(ctx, "Observed card", "", "TODO"); err != nil {
		t.Fatalf("create: %v", err)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") && strings.Contains(line, "task_created") {
			return
		}
	}
	t.Fatalf("never saw task_created event: %v", scanner.Err())
}

func newTestServer(t *testing.T) (*httptest.Server, func()) {
	t.Helper()
	dsn := testDatabaseURL(t)

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("db pool: %v", err)
	}

	root := repoRoot(t)
	if err := postgres.RunMigrations(ctx, pool, filepath.Join(root, "internal", "migrations")); err != nil {
		pool.Close()
		t.Fatalf("migrations: %v", err)
	}
	if err := resetDatabase(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("reset db: %v", err)
	}

	logger := zerolog.Nop()
	taskRepo := postgres.NewTaskRepository(pool)
	lockRepo := postgres.NewLockRepository(pool)

	sseHub := sse.NewHub()

	lockSvc := appLock.NewService(lockRepo, sseHub, logger)
	taskSvc := appTask.NewService(taskRepo, sseHub, logger)
	reorderSvc := reorder.NewCoordinator(taskRepo, lockSvc, sseHub, logger)

	sweeper := expiry.New(expiry.Config{
		Interval: 50 * time.Millisecond,
		TTL:      time.Hour,
	}, lockSvc, logger)
	sweeper.Start(ctx)

	apiServer := httpapi.NewServer(taskSvc, lockSvc, reorderSvc, sseHub)
	server := httptest.NewServer(apiServer.Router())

	cleanup := func() {
		sweeper.Stop()
		server.Close()
		sseHub.Stop()
		pool.Close()
	}

	return server, cleanup
}

func testDatabaseURL(t *testing.T) string {
	t.Helper()
	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		return dsn
	}
	t.Skip("TEST_DATABASE_URL not set; skipping integration tests")
	return ""
}

func repoRoot(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	return filepath.Clean(filepath.Join(wd, "..", ".."))
}

func resetDatabase(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		TRUNCATE TABLE
			task_locks,
			tasks
		RESTART IDENTITY CASCADE
	`)
	return err
}
