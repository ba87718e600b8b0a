package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet/internal/core"
	"wallet/internal/events"
	apphttp "wallet/internal/http"
	"wallet/internal/ledger"
	"wallet/internal/services"
	"wallet/internal/storage"
)

// useSQLite points every command at a fresh database in a temp dir.
func useSQLite(t *testing.T) string {
	t.Helper()
	for _, key := range []string{"WALLET_CONFIG", "AMQP_URL", "STORAGE_KEY", "ON_MALFORMED"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	dir := t.TempDir()
	t.Setenv("DATA_BACKEND", "sqlite")
	t.Setenv("SQLITE_DB_PATH", filepath.Join(dir, "wallet.db"))
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

// useDefaults clears every backend setting and runs in an empty directory,
// so commands see the stock configuration.
func useDefaults(t *testing.T) string {
	t.Helper()
	for _, key := range []string{"WALLET_CONFIG", "AMQP_URL", "STORAGE_KEY", "ON_MALFORMED",
		"DATA_BACKEND", "DATA_DIR", "SQLITE_DB_PATH"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Setenv("LOG_LEVEL", "error")
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()
	assert.Equal(t, "wallet", root.Use)
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "add", "list", "delete", "totals", "import"} {
		assert.Contains(t, names, want)
	}
}

func TestAddListTotalsDelete(t *testing.T) {
	useSQLite(t)

	out, err := run(t, "add", "--type", "income", "--date", "2024-01-01", "-d", "Salary", "--amount", "1000")
	require.NoError(t, err)
	assert.Equal(t, "added #0 income 2024-01-01 \"Salary\" 1000.00\n", out)

	_, err = run(t, "add", "--type", "expense", "--date", "2024-01-02", "-d", "Rent", "--amount", "400,50")
	require.NoError(t, err)
	_, err = run(t, "add", "--type", "expense", "--date", "2024-01-03", "-d", "Food", "--amount", "50")
	require.NoError(t, err)

	out, err = run(t, "list", "--type", "expense")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "Rent")
	assert.True(t, strings.HasPrefix(lines[2], "2 "), lines[2])

	out, err = run(t, "list", "-q", "SAL")
	require.NoError(t, err)
	assert.Contains(t, out, "Salary")
	assert.NotContains(t, out, "Rent")

	out, err = run(t, "totals")
	require.NoError(t, err)
	assert.Contains(t, out, "1000.00")
	assert.Contains(t, out, "450.50")
	assert.Contains(t, out, "549.50")

	out, err = run(t, "delete", "1")
	require.NoError(t, err)
	assert.Equal(t, "deleted #1, 2 left\n", out)

	out, err = run(t, "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "Rent")
	assert.Contains(t, out, "Food")
}

func TestAddRejectsInvalidInput(t *testing.T) {
	useSQLite(t)
	_, err := run(t, "add", "--type", "transfer", "-d", "x", "--amount", "1")
	assert.Error(t, err)
	_, err = run(t, "add", "--type", "expense", "-d", "x", "--amount", "-1")
	assert.Error(t, err)
	_, err = run(t, "list", "--type", "loans")
	assert.Error(t, err)
}

func TestDeleteOutOfRange(t *testing.T) {
	useSQLite(t)
	_, err := run(t, "delete", "0")
	assert.Error(t, err)
	_, err = run(t, "delete", "first")
	assert.Error(t, err)
}

func TestImportNotifiesServer(t *testing.T) {
	dir := useSQLite(t)

	var got map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/storage/imported", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	file := filepath.Join(dir, "backup.json")
	require.NoError(t, os.WriteFile(file,
		[]byte(`[{"type":"expense","date":"2024-05-01","description":"Imported","amount":9.99}]`), 0o644))

	out, err := run(t, "import", file, "--notify", ts.URL+"/")
	require.NoError(t, err)
	assert.Contains(t, out, "1 listeners notified")
	assert.Equal(t, map[string]string{"key": "transactions", "source": "backup.json"}, got)

	out, err = run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Imported")
	assert.Contains(t, out, "9.99")
}

func TestMalformedSlotHaltsCommands(t *testing.T) {
	dir := useSQLite(t)
	file := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"oops":true}`), 0o644))

	_, err := run(t, "import", file)
	require.NoError(t, err)

	_, err = run(t, "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed storage")
}

func TestImportNotifyFailure(t *testing.T) {
	dir := useSQLite(t)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusConflict)
	}))
	defer ts.Close()

	file := filepath.Join(dir, "backup.json")
	require.NoError(t, os.WriteFile(file, []byte(`[]`), 0o644))
	_, err := run(t, "import", file, "--notify", ts.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
}

func TestDefaultConfigKeepsDataBetweenRuns(t *testing.T) {
	dir := useDefaults(t)

	out, err := run(t, "add", "--type", "income", "--date", "2024-01-01", "-d", "Salary", "--amount", "1000")
	require.NoError(t, err)
	assert.Equal(t, "added #0 income 2024-01-01 \"Salary\" 1000.00\n", out)

	out, err = run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Salary")
	assert.FileExists(t, filepath.Join(dir, "data", "wallet.db"))
}

func TestMemoryBackendRefusesWrites(t *testing.T) {
	dir := useDefaults(t)
	t.Setenv("DATA_BACKEND", "memory")

	_, err := run(t, "add", "--type", "income", "-d", "Salary", "--amount", "1")
	assert.ErrorIs(t, err, errNotDurable)
	_, err = run(t, "delete", "0")
	assert.ErrorIs(t, err, errNotDurable)

	file := filepath.Join(dir, "backup.json")
	require.NoError(t, os.WriteFile(file, []byte(`[]`), 0o644))
	_, err = run(t, "import", file)
	assert.ErrorIs(t, err, errNotDurable)

	out, err := run(t, "list")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "\n"), out)
}

func TestAddAndDeleteNotifyServer(t *testing.T) {
	useSQLite(t)

	var sources []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		sources = append(sources, body["source"])
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	out, err := run(t, "add", "--type", "expense", "-d", "Rent", "--amount", "400", "--notify", ts.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "(1 listeners notified)")

	out, err = run(t, "delete", "0", "--notify", ts.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted #0, 0 left")

	assert.Equal(t, []string{"wallet add", "wallet delete"}, sources)
}

func TestAddNotifyFailureReportsSavedEntry(t *testing.T) {
	useSQLite(t)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	_, err := run(t, "add", "--type", "income", "-d", "Gift", "--amount", "5", "--notify", ts.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "saved, but")

	out, err := run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Gift")
}

// A server sharing the slot reloads after a CLI write, so its next mutation
// keeps the entry the CLI added.
func TestCLIWriteSurvivesServerMutation(t *testing.T) {
	dir := useSQLite(t)
	ctx := context.Background()

	repo, err := storage.NewSQLiteRepository(filepath.Join(dir, "wallet.db"))
	require.NoError(t, err)
	defer repo.Close()

	store := ledger.NewStore(repo)
	require.NoError(t, store.Load(ctx))
	bus := events.NewBus()
	store.OnExternalReplace(bus)
	srv := apphttp.NewServer(apphttp.Options{
		Service:   services.NewWalletService(store, nil, nil),
		Publisher: bus,
	})
	defer srv.Shutdown(ctx)
	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	_, err = run(t, "add", "--type", "income", "-d", "from cli", "--amount", "10", "--notify", ts.URL)
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())

	_, err = store.Add(ctx, core.Transaction{
		Type:        core.Expense,
		Date:        "2024-01-02",
		Description: "from server",
		Amount:      core.AmountFromCents(300),
	})
	require.NoError(t, err)

	out, err := run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "from cli")
	assert.Contains(t, out, "from server")
}
