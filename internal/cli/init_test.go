package cli

import (
	"context"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"financeflow/internal/config"
	"financeflow/internal/events"
	"financeflow/internal/storage/memory"
)

func TestOpenStoreBackends(t *testing.T) {
	ctx := context.Background()

	store, err := OpenStore(ctx, &config.Config{DataBackend: config.BackendMemory})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("memory backend returned %T", store)
	}

	path := filepath.Join(t.TempDir(), "data", "ledger.db")
	store, err = OpenStore(ctx, &config.Config{DataBackend: config.BackendSQLite, SQLiteDBPath: path})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("sqlite ping: %v", err)
	}

	if _, err := OpenStore(ctx, &config.Config{DataBackend: "mongo"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestMigrateSQLite(t *testing.T) {
	cfg := &config.Config{DataBackend: config.BackendSQLite, SQLiteDBPath: filepath.Join(t.TempDir(), "ledger.db")}
	for i := 0; i < 2; i++ {
		v, err := Migrate(cfg)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if v != 2 {
			t.Fatalf("run %d: schema version = %d, want 2", i, v)
		}
	}
	if v, err := Migrate(&config.Config{DataBackend: config.BackendMemory}); err != nil || v != 0 {
		t.Fatalf("memory: %d, %v", v, err)
	}
}

func TestNewPublisherNone(t *testing.T) {
	pub, err := NewPublisher(&config.Config{EventBroker: config.BrokerNone})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := pub.(events.Nop); !ok {
		t.Fatalf("publisher = %T, want events.Nop", pub)
	}
	if _, err := NewPublisher(&config.Config{EventBroker: "nats"}); err == nil {
		t.Error("expected error for unknown broker")
	}
}

func TestNewConsumerRequiresBroker(t *testing.T) {
	if _, err := NewConsumer(&config.Config{EventBroker: config.BrokerNone}); err == nil {
		t.Error("expected error without a broker")
	}
}

func TestOpenMirrorDisabled(t *testing.T) {
	m, err := OpenMirror(context.Background(), &config.Config{})
	if err != nil || m != nil {
		t.Fatalf("OpenMirror = %v, %v; want nil, nil", m, err)
	}
}

func TestSeedAdmin(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	user, created, err := SeedAdmin(ctx, store, " Admin@FinanceFlow.com ", "s3cret")
	if err != nil {
		t.Fatal(err)
	}
	if !created || user.ID == 0 || user.Email != "admin@financeflow.com" {
		t.Fatalf("first seed = %+v created=%v", user, created)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("s3cret")); err != nil {
		t.Errorf("password hash does not verify: %v", err)
	}

	again, created, err := SeedAdmin(ctx, store, "admin@financeflow.com", "other")
	if err != nil {
		t.Fatal(err)
	}
	if created || again.ID != user.ID {
		t.Fatalf("second seed = %+v created=%v", again, created)
	}

	if _, _, err := SeedAdmin(ctx, store, "x@y.z", ""); err == nil {
		t.Error("expected error for empty password")
	}
}

func TestSetupLogger(t *testing.T) {
	logger := SetupLogger("debug")
	if logger.Component() != "app" {
		t.Errorf("component = %q", logger.Component())
	}
	if !logger.Enabled(context.Background(), -4) {
		t.Error("debug level not enabled")
	}
}
