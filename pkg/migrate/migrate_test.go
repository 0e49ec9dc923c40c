package migrate

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestValidateAcceptsEmbeddedMigrations(t *testing.T) {
	if err := Validate(Embedded()); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestEmbeddedMatchesDisk(t *testing.T) {
	embeddedFiles, err := fs.Glob(Embedded(), "*.sql")
	if err != nil {
		t.Fatalf("glob embedded: %v", err)
	}
	diskFiles, err := fs.Glob(Source("migrations"), "*.sql")
	if err != nil {
		t.Fatalf("glob disk: %v", err)
	}
	if len(embeddedFiles) == 0 || len(embeddedFiles) != len(diskFiles) {
		t.Fatalf("embedded %d files, disk %d", len(embeddedFiles), len(diskFiles))
	}
}

func TestValidateRejectsEmptyDir(t *testing.T) {
	if err := Validate(os.DirFS(t.TempDir())); err == nil {
		t.Fatalf("expected error for a directory without migrations")
	}
}

func TestValidateRejectsDownBeforeUp(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "20260101000000_swapped.sql"), "-- +goose Down\n-- +goose Up\n")
	if err := Validate(os.DirFS(dir)); err == nil || !strings.Contains(err.Error(), "Down before Up") {
		t.Fatalf("expected ordering error, got %v", err)
	}
}

func TestParseVersion(t *testing.T) {
	if v, err := parseVersion(" 20260301090800 "); err != nil || v != 20260301090800 {
		t.Fatalf("unexpected parse %d %v", v, err)
	}
	for _, bad := range []string{"", "42", "2026030109080x"} {
		if _, err := parseVersion(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestNewProviderRequiresDB(t *testing.T) {
	if _, err := newProvider(nil, Embedded()); err != errDBRequired {
		t.Fatalf("expected errDBRequired, got %v", err)
	}
}

func TestValidateRejectsBadFilename(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "orders.sql"), "-- +goose Up\n-- +goose Down\n")
	if err := Validate(os.DirFS(dir)); err == nil {
		t.Fatalf("expected filename error")
	}
}

func TestValidateRejectsUnbalancedStatements(t *testing.T) {
	dir := t.TempDir()
	body := "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\n"
	writeFile(t, filepath.Join(dir, "20260101000000_broken.sql"), body)
	if err := Validate(os.DirFS(dir)); err == nil || !strings.Contains(err.Error(), "StatementBegin") {
		t.Fatalf("expected statement balance error, got %v", err)
	}
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)
	path, err := createAt(dir, "Add Payout Notes!", now)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if filepath.Base(path) != "20260402083000_add_payout_notes.sql" {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := Validate(os.DirFS(dir)); err != nil {
		t.Fatalf("generated migration must validate: %v", err)
	}
	if _, err := createAt(dir, "add payout notes", now); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
	if _, err := createAt(dir, "!!!", now); err == nil {
		t.Fatalf("expected error for unusable name")
	}
}

func TestMigrationsEnforceLedgerConstraints(t *testing.T) {
	sql := readAllMigrations(t)
	required := []string{
		"CHECK (stock >= 0)",
		"CHECK (total = subtotal + shipping_fee - discount)",
		"CHECK (discount <= subtotal)",
		"CONSTRAINT payments_order_id_key UNIQUE (order_id)",
		"CONSTRAINT shipments_order_id_key UNIQUE (order_id)",
		"CONSTRAINT refunds_order_id_key UNIQUE (order_id)",
		"CONSTRAINT disputes_order_id_key UNIQUE (order_id)",
		"CONSTRAINT payout_idempotency_keys_shop_key_uniq UNIQUE (shop_id, idempotency_key)",
		"CHECK (usage_limit IS NULL OR used_count <= usage_limit)",
		"WHERE published_at IS NULL",
	}
	for _, fragment := range required {
		if !strings.Contains(sql, fragment) {
			t.Fatalf("migrations missing %q", fragment)
		}
	}
}

func TestMigrationsDeclareEveryOrderStatus(t *testing.T) {
	sql := readAllMigrations(t)
	for _, status := range []string{
		"'PENDING_PAYMENT'", "'PLACED'", "'CONFIRMED'", "'PACKING'", "'SHIPPED'", "'DELIVERED'",
		"'COMPLETED'", "'CANCEL_REQUESTED'", "'CANCELLED'", "'RETURN_REQUESTED'", "'RETURN_APPROVED'",
		"'RETURN_RECEIVED'", "'RETURN_REJECTED'", "'REFUND_REQUESTED'", "'REFUNDED'", "'DISPUTED'",
	} {
		if !strings.Contains(sql, status) {
			t.Fatalf("order_status enum missing %s", status)
		}
	}
}

func readAllMigrations(t *testing.T) string {
	t.Helper()
	fsys := Embedded()
	files, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(files) == 0 {
		t.Fatalf("no migrations found")
	}
	var b strings.Builder
	for _, f := range files {
		data, err := fs.ReadFile(fsys, f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		b.Write(data)
		b.WriteByte('\n')
	}
	return b.String()
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
