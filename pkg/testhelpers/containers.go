package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/database"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

const (
	// PostgresImage backs the service store and doubles as a POSTGRESQL datasource.
	PostgresImage = "postgres:16-alpine"
	// MySQLImage backs MYSQL datasource tests.
	MySQLImage = "mysql:8.0"

	testDatabase = "ekaya_query_test"
	testPassword = "test_password"

	// appRole is a non-superuser login so row level security applies.
	appRole     = "ekaya_app"
	appPassword = "app_password"
)

// TestDB is a shared PostgreSQL container with migrations applied.
//
// DB connects as the owning superuser, which bypasses row level security.
// AppDB connects as a plain role and sees only the bound tenant's rows.
type TestDB struct {
	Container testcontainers.Container
	DB        *database.DB
	AppDB     *database.DB
	ConnStr   string
	Host      string
	Port      int
}

// MySQLDB is a shared MySQL container usable as a tenant datasource.
type MySQLDB struct {
	Container testcontainers.Container
	SQL       *sql.DB
	Host      string
	Port      int
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error

	sharedMySQL     *MySQLDB
	sharedMySQLOnce sync.Once
	sharedMySQLErr  error
)

func skipShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}
}

// GetTestDB returns the shared PostgreSQL container for this test binary,
// starting it on first use.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()
	skipShort(t)

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB(context.Background())
	})
	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}
	return sharedTestDB
}

// GetMySQL returns the shared MySQL container, starting it on first use.
func GetMySQL(t *testing.T) *MySQLDB {
	t.Helper()
	skipShort(t)

	sharedMySQLOnce.Do(func() {
		sharedMySQL, sharedMySQLErr = setupMySQL(context.Background())
	})
	if sharedMySQLErr != nil {
		t.Fatalf("Failed to setup MySQL: %v", sharedMySQLErr)
	}
	return sharedMySQL
}

func startContainer(ctx context.Context, req testcontainers.ContainerRequest, port string) (testcontainers.Container, string, int, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", 0, fmt.Errorf("start %s: %w", req.Image, err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, "", 0, fmt.Errorf("container host: %w", err)
	}
	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		return nil, "", 0, fmt.Errorf("container port: %w", err)
	}
	return container, host, mapped.Int(), nil
}

func setupTestDB(ctx context.Context) (*TestDB, error) {
	container, host, port, err := startContainer(ctx, testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       testDatabase,
			"POSTGRES_USER":     "ekaya",
			"POSTGRES_PASSWORD": testPassword,
		},
		// The entrypoint restarts postgres once after initdb.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}, "5432")
	if err != nil {
		return nil, err
	}

	addr := host + ":" + strconv.Itoa(port)
	ownerURL := fmt.Sprintf("postgres://ekaya:%s@%s/%s?sslmode=disable", testPassword, addr, testDatabase)
	owner, err := database.NewConnection(ctx, &database.Config{URL: ownerURL, MaxConnections: 5})
	if err != nil {
		return nil, fmt.Errorf("connect as owner: %w", err)
	}

	if err := owner.Migrate(MigrationsPath(), zap.NewNop()); err != nil {
		owner.Close()
		return nil, err
	}

	grants := []string{
		fmt.Sprintf("CREATE ROLE %s LOGIN PASSWORD '%s'", appRole, appPassword),
		"GRANT USAGE ON SCHEMA public TO " + appRole,
		"GRANT SELECT, INSERT, UPDATE, DELETE ON ALL TABLES IN SCHEMA public TO " + appRole,
	}
	for _, stmt := range grants {
		if _, err := owner.Exec(ctx, stmt); err != nil {
			owner.Close()
			return nil, fmt.Errorf("provision app role: %w", err)
		}
	}

	appURL := fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", appRole, appPassword, addr, testDatabase)
	app, err := database.NewConnection(ctx, &database.Config{URL: appURL, MaxConnections: 5})
	if err != nil {
		owner.Close()
		return nil, fmt.Errorf("connect as app role: %w", err)
	}

	return &TestDB{
		Container: container,
		DB:        owner,
		AppDB:     app,
		ConnStr:   ownerURL,
		Host:      host,
		Port:      port,
	}, nil
}

func setupMySQL(ctx context.Context) (*MySQLDB, error) {
	container, host, port, err := startContainer(ctx, testcontainers.ContainerRequest{
		Image:        MySQLImage,
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": testPassword,
			"MYSQL_DATABASE":      testDatabase,
		},
		// The first "ready" line belongs to the temporary init server.
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("3306/tcp"),
			wait.ForLog("port: 3306  MySQL Community Server"),
		).WithStartupTimeout(120 * time.Second),
	}, "3306")
	if err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("root:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true", testPassword, host, port, testDatabase)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	return &MySQLDB{Container: container, SQL: db, Host: host, Port: port}, nil
}

// SQLConfig describes the container as a POSTGRESQL datasource.
func (tdb *TestDB) SQLConfig() *models.SQLConfig {
	return &models.SQLConfig{
		Host:     tdb.Host,
		Port:     tdb.Port,
		Database: testDatabase,
		Username: "ekaya",
		Password: testPassword,
		SSLMode:  "disable",
	}
}

// SQLConfig describes the container as a MYSQL datasource.
func (m *MySQLDB) SQLConfig() *models.SQLConfig {
	return &models.SQLConfig{
		Host:     m.Host,
		Port:     m.Port,
		Database: testDatabase,
		Username: "root",
		Password: testPassword,
		SSLMode:  "disable",
	}
}

// Seed runs setup statements against the MySQL container.
func (m *MySQLDB) Seed(t *testing.T, statements ...string) {
	t.Helper()
	for _, stmt := range statements {
		if _, err := m.SQL.ExecContext(context.Background(), stmt); err != nil {
			t.Fatalf("seed %q: %v", stmt, err)
		}
	}
}

// MigrationsPath returns the absolute path of the repository's migrations directory.
func MigrationsPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}

// TenantContext binds a fresh owner-role tenant scope, released when the test ends.
func (tdb *TestDB) TenantContext(t *testing.T, tenantID uuid.UUID) context.Context {
	t.Helper()
	return bindTenant(t, tdb.DB, tenantID)
}

// AppTenantContext is TenantContext on the restricted role, where row level
// security filters every read and write.
func (tdb *TestDB) AppTenantContext(t *testing.T, tenantID uuid.UUID) context.Context {
	t.Helper()
	return bindTenant(t, tdb.AppDB, tenantID)
}

func bindTenant(t *testing.T, db *database.DB, tenantID uuid.UUID) context.Context {
	t.Helper()
	ctx, cleanup, err := db.TenantContext(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("Failed to acquire tenant scope: %v", err)
	}
	t.Cleanup(cleanup)
	return ctx
}
