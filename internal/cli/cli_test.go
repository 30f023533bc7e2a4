package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/refguard/config"
	"github.com/jacentio/refguard/dao"
	"github.com/jacentio/refguard/internal/backend"
	"github.com/jacentio/refguard/store"
	"github.com/jacentio/refguard/store/storetest"
)

type harness struct {
	t    *testing.T
	mem  *store.Memory
	open func(ctx context.Context, cfg config.Storage, logger *slog.Logger) (*backend.Backend, error)
}

func newHarness(t *testing.T) *harness {
	h := &harness{t: t, mem: store.NewMemory()}
	h.open = func(context.Context, config.Storage, *slog.Logger) (*backend.Backend, error) {
		return &backend.Backend{Adapter: h.mem, Driver: config.DriverMemory}, nil
	}
	return h
}

type result struct {
	stdout string
	stderr string
	code   int
}

func (h *harness) run(stdin string, args ...string) result {
	h.t.Helper()
	var stdout, stderr bytes.Buffer
	opts := &RootOptions{open: h.open}
	cmd := newRootCommand(opts)
	cmd.SetIn(strings.NewReader(stdin))
	code := execute(context.Background(), cmd, opts, args, &stdout, &stderr)
	return result{stdout: stdout.String(), stderr: stderr.String(), code: code}
}

type recordResponse struct {
	Status string        `json:"status"`
	Data   dao.RawRecord `json:"data"`
	Error  *ErrorBody    `json:"error"`
}

func decodeRecord(t *testing.T, out string) recordResponse {
	t.Helper()
	var resp recordResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func TestInsertGetLookup(t *testing.T) {
	h := newHarness(t)

	res := h.run("", "insert", "partner", `{"name":"Acme","email":"ops@acme.test"}`, "--format", "json")
	require.Equal(t, ExitSuccess, res.code, res.stdout+res.stderr)
	inserted := decodeRecord(t, res.stdout)
	assert.Equal(t, "ok", inserted.Status)
	require.NotEmpty(t, inserted.Data.ID)

	res = h.run("", "get", "partner", inserted.Data.ID, "--format", "json")
	require.Equal(t, ExitSuccess, res.code, res.stdout)
	got := decodeRecord(t, res.stdout)
	assert.Equal(t, inserted.Data.Version, got.Data.Version)
	assert.Contains(t, string(got.Data.Doc), `"name":"Acme"`)

	res = h.run("", "lookup", "partner", "  ACME ", "--format", "json")
	require.Equal(t, ExitSuccess, res.code, res.stdout)
	assert.Equal(t, inserted.Data.ID, decodeRecord(t, res.stdout).Data.ID)
}

func TestInsert_TextOutputAndStdin(t *testing.T) {
	h := newHarness(t)

	res := h.run(`{"code":"EUR","symbol":"€"}`, "insert", "currency", "-", "--id", "eur")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "currency eur (version ")
	assert.Contains(t, res.stdout, `"code": "EUR"`)
}

func TestInsert_DuplicateUnique(t *testing.T) {
	h := newHarness(t)

	require.Equal(t, ExitSuccess, h.run("", "insert", "partner", `{"name":"Acme"}`).code)

	res := h.run("", "insert", "partner", `{"name":"acme"}`, "--format", "json")
	assert.Equal(t, ExitConflict, res.code)
	resp := decodeRecord(t, res.stdout)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "duplicate_unique", resp.Error.Kind)
	assert.Equal(t, 409, resp.Error.Status)
}

func TestUpdate_IfVersion(t *testing.T) {
	h := newHarness(t)

	rec := decodeRecord(t, h.run("", "insert", "partner", `{"name":"Acme"}`, "--format", "json").stdout).Data

	stale := strconv.FormatUint(uint64(rec.Version)+1, 10)
	res := h.run("", "update", "partner", rec.ID, `{"name":"Acme Holdings"}`, "--if-version", stale, "--format", "json")
	assert.Equal(t, ExitConflict, res.code)
	assert.Contains(t, res.stdout, "version_conflict")

	res = h.run("", "update", "partner", rec.ID, `{"name":"Acme Holdings"}`,
		"--if-version", strconv.FormatUint(uint64(rec.Version), 10))
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "updated partner "+rec.ID)

	assert.Equal(t, ExitNotFound, h.run("", "lookup", "partner", "acme").code)
	assert.Equal(t, ExitSuccess, h.run("", "lookup", "partner", "acme holdings").code)
}

func TestUpdate_IfVersionZero(t *testing.T) {
	h := newHarness(t)

	rec := decodeRecord(t, h.run("", "insert", "partner", `{"name":"Acme"}`, "--format", "json").stdout).Data

	res := h.run("", "update", "partner", rec.ID, `{"name":"Globex"}`, "--if-version", "0")
	assert.Equal(t, ExitConflict, res.code)
	assert.Equal(t, ExitSuccess, h.run("", "lookup", "partner", "acme").code)
}

func TestSeparatorInIDRejected(t *testing.T) {
	h := newHarness(t)

	require.Equal(t, ExitSuccess, h.run("", "insert", "partner", `{"name":"Acme Corp"}`).code)

	assert.Equal(t, ExitNotFound, h.run("", "remove", "partner", "name::acmecorp").code)
	assert.Equal(t, ExitNotFound, h.run("", "update", "partner", "name::acmecorp", `{"name":"X"}`).code)

	res := h.run("", "insert", "partner", `{"name":"Globex"}`, "--id", "name::globex")
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stderr, "invalid entity id")

	assert.Len(t, h.mem.Keys("partner::name::"), 1)
	assert.Equal(t, ExitConflict, h.run("", "insert", "partner", `{"name":"ACME corp"}`).code)
}

func TestRemove(t *testing.T) {
	h := newHarness(t)

	rec := decodeRecord(t, h.run("", "insert", "partner", `{"name":"Acme"}`, "--format", "json").stdout).Data

	res := h.run("", "remove", "partner", rec.ID)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, "removed partner "+rec.ID+"\n", res.stdout)

	res = h.run("", "get", "partner", rec.ID)
	assert.Equal(t, ExitNotFound, res.code)
	assert.Contains(t, res.stderr, "Error [not_found]")

	// The name is free again.
	assert.Equal(t, ExitSuccess, h.run("", "insert", "partner", `{"name":"ACME"}`).code)
	assert.Len(t, h.mem.Keys("partner::name::"), 1)
}

func TestCommandErrors(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "unknown type", args: []string{"get", "spaceship", "1"}, want: "unknown entity type"},
		{name: "bad format", args: []string{"types", "--format", "xml"}, want: "invalid format"},
		{name: "missing args", args: []string{"insert", "partner"}, want: "usage: refguard insert"},
		{name: "bad flag", args: []string{"get", "--nope"}, want: "invalid flags"},
		{name: "lookup without unique field", args: []string{"lookup", "currency", "EUR"}, want: "no unique field"},
		{name: "missing env file", args: []string{"get", "partner", "1", "--env-file", "/nonexistent/.env"}, want: "env file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.run("", tt.args...)
			assert.Equal(t, ExitCommandError, res.code)
			assert.Contains(t, res.stderr, tt.want)
			assert.Contains(t, res.stderr, "Error [command]")
		})
	}
}

func TestInsert_MalformedJSON(t *testing.T) {
	h := newHarness(t)

	res := h.run("", "insert", "partner", `{"name":`, "--format", "json")
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stdout, `"kind":"internal"`)
	assert.Zero(t, h.mem.Len())
}

func TestStorageUnavailable(t *testing.T) {
	h := newHarness(t)
	faulty := storetest.NewFaulty(h.mem)
	faulty.Fail(storetest.OpInsert, storetest.AnyKey, store.Transient(storetest.ErrInjected))
	h.open = func(context.Context, config.Storage, *slog.Logger) (*backend.Backend, error) {
		return &backend.Backend{Adapter: faulty, Driver: config.DriverMemory}, nil
	}

	res := h.run("", "insert", "partner", `{"name":"Acme"}`)
	assert.Equal(t, ExitUnavailable, res.code)
	assert.Contains(t, res.stderr, "Error [transient]")
}

func TestTypes(t *testing.T) {
	h := newHarness(t)

	res := h.run("", "types")
	require.Equal(t, ExitSuccess, res.code)
	assert.Contains(t, res.stdout, "TYPE")
	assert.Regexp(t, `partner\s+name`, res.stdout)
	assert.Regexp(t, `currency\s+-`, res.stdout)

	res = h.run("", "types", "--format", "json")
	var resp struct {
		Data []typeInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	assert.Contains(t, resp.Data, typeInfo{Type: "partner", UniqueField: "name"})
}

func TestSeed(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- type: currency
  records:
    - id: eur
      code: EUR
      symbol: "€"
    - id: usd
      code: USD
      symbol: "$"
- type: partner
  records:
    - name: Acme
    - name: Globex
`), 0o600))

	res := h.run("", "seed", path)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "currency: 2 inserted, 0 skipped")
	assert.Contains(t, res.stdout, "partner: 2 inserted, 0 skipped")

	assert.Equal(t, ExitSuccess, h.run("", "get", "currency", "usd").code)

	res = h.run("", "seed", path)
	assert.Equal(t, ExitConflict, res.code)

	res = h.run("", "seed", path, "--skip-existing")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "currency: 0 inserted, 2 skipped")
	assert.Contains(t, res.stdout, "partner: 0 inserted, 2 skipped")
}

func TestMetricsFlag(t *testing.T) {
	h := newHarness(t)

	res := h.run("", "insert", "partner", `{"name":"Acme"}`, "--metrics")
	require.Equal(t, ExitSuccess, res.code)
	assert.Contains(t, res.stderr,
		`refguard_operations_total{entity_type="partner",op="insert",outcome="committed"} 1`)
	assert.Contains(t, res.stderr, `refguard_operation_duration_seconds_count{entity_type="partner",op="insert"} 1`)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad")))
	assert.Equal(t, ExitNotFound, GetExitCode(store.ErrNotFound))
	assert.Equal(t, ExitConflict, GetExitCode(store.ErrVersionConflict))
	assert.Equal(t, ExitUnavailable, GetExitCode(context.DeadlineExceeded))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
}
