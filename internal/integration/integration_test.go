package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	pgloader "live-quiz-service/internal/infra/postgres"
	pgmigrations "live-quiz-service/internal/infra/postgres/migrations"
	infraredis "live-quiz-service/internal/infra/redis"
)

// events collects every broadcast so the test can assert on it.
type events struct {
	mu  sync.Mutex
	log []domain.Event
}

func (e *events) add(event domain.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, event)
}

func (e *events) ToRoom(_ string, event domain.Event) { e.add(event) }
func (e *events) ToConn(_ string, event domain.Event) { e.add(event) }
func (e *events) JoinRoom(string, string)             {}
func (e *events) CloseRoom(string)                    {}

func (e *events) last(typ string) (domain.Event, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.log) - 1; i >= 0; i-- {
		if e.log[i].Type == typ {
			return e.log[i], true
		}
	}
	return domain.Event{}, false
}

func TestGameAgainstPostgresAndRedis(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	quizID := seedQuiz(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	quizRepo := infraredis.NewQuizRepository(redisClient, pgloader.NewQuizLoader(pool), 5*time.Minute)
	sessionStore := infraredis.NewSessionStore(redisClient, 5*time.Minute)
	out := &events{}
	registry := app.NewRegistry(sessionStore, out)
	service := app.NewGameService(registry, quizRepo)
	defer service.Shutdown(ctx)

	pin, err := service.CreateGame(ctx, "host", domain.HostInfo{QuizID: domain.QuizRef(quizID)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if n, err := redisClient.Exists(ctx, "quiz:game:"+pin).Result(); err != nil || n != 1 {
		t.Fatalf("expected pin marker in redis, got %d %v", n, err)
	}
	for _, p := range []string{"alice", "bob"} {
		if err := service.JoinGame(ctx, p, pin, p); err != nil {
			t.Fatalf("join %s: %v", p, err)
		}
	}
	if err := service.StartGame(ctx, "host", pin); err != nil {
		t.Fatalf("start: %v", err)
	}
	shown, ok := out.last(domain.EventShowQuestion)
	if !ok || shown.Payload.(domain.QuestionView).QuestionText != "What is 2 + 2?" {
		t.Fatalf("unexpected first question: %+v", shown)
	}

	if err := service.SubmitAnswer(ctx, "bob", pin, 1); err != nil {
		t.Fatalf("submit bob: %v", err)
	}
	if err := service.SubmitAnswer(ctx, "alice", pin, 0); err != nil {
		t.Fatalf("submit alice: %v", err)
	}
	board, ok := out.last(domain.EventLeaderboard)
	if !ok {
		t.Fatalf("expected leaderboard once everyone answered")
	}
	entries := board.Payload.([]domain.LeaderboardEntry)
	if len(entries) != 2 || entries[0].Nickname != "bob" || entries[0].Score != 100 {
		t.Fatalf("expected bob leading, got %+v", entries)
	}

	if n, err := redisClient.Exists(ctx, "quiz:"+quizID+":content").Result(); err != nil || n != 1 {
		t.Fatalf("expected cached quiz content, got %d %v", n, err)
	}

	if err := service.EndGame(ctx, "host", pin); err != nil {
		t.Fatalf("end: %v", err)
	}
	if n, _ := redisClient.Exists(ctx, "quiz:game:"+pin).Result(); n != 0 {
		t.Fatalf("pin marker not released")
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

// seedQuiz migrates the schema and inserts a two question quiz, returning its id.
func seedQuiz(t *testing.T, ctx context.Context, dsn string) string {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	var quizID string
	if err := db.QueryRowContext(ctx, `INSERT INTO quizzes (title) VALUES (?) RETURNING id::text`, "Arithmetic").Scan(&quizID); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
	questions := []struct {
		text    string
		options string
		correct int
	}{
		{"What is 2 + 2?", `["3", "4", "5"]`, 1},
		{"What is 3 * 3?", `["6", "9"]`, 1},
	}
	for i, q := range questions {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO questions (quiz_id, question_text, options, correct_index, order_index) VALUES (?, ?, ?::jsonb, ?, ?)`,
			quizID, q.text, q.options, q.correct, i,
		); err != nil {
			t.Fatalf("insert question %d: %v", i, err)
		}
	}
	return quizID
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
