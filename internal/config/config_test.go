package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"supersorting.ai/internal/grid"
	"supersorting.ai/internal/pathfinding"
)

const testKey = "6f1c2a9e-5b7d-4c1e-9a3f-2d8b7e4c1a90"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "operator.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func noEnv(string) string { return "" }

func TestLoad_File(t *testing.T) {
	p := writeConfig(t, `
port: 9090
auth:
  api_keys: ["`+strings.ToUpper(testKey)+`"]
pathfinding:
  width: 3
  height: 3
  adjacency: 8
  max_path_length: 10
  blocked: [[1, 1]]
expiry:
  agent_heartbeat: 2s
  route_hold: 1m30s
  default_hold: 45s
defrag:
  enabled: true
  home: [2, 2]
  max_moves: 2
index:
  backend: NONE
`)
	cfg, err := load(p, noEnv)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9090 || cfg.Host != "127.0.0.1" {
		t.Fatalf("addr=%s", cfg.Addr())
	}
	if cfg.Expiry.RouteHold.D() != 90*time.Second || cfg.Expiry.AgentHeartbeat.D() != 2*time.Second {
		t.Fatalf("expiry=%+v", cfg.Expiry)
	}
	if cfg.Index.Backend != "none" {
		t.Fatalf("backend=%q", cfg.Index.Backend)
	}
	pf := cfg.Pathfinding()
	if pf != (pathfinding.Config{Width: 3, Height: 3, Adjacency: grid.Eight, MaxLength: 10}) {
		t.Fatalf("pathfinding=%+v", pf)
	}
	fc := cfg.Facility()
	if len(fc.Blocked) != 1 || fc.Blocked[0] != (grid.Vec2{X: 1, Y: 1}) || fc.RouteTTL != 90*time.Second {
		t.Fatalf("facility=%+v", fc)
	}
	keys := cfg.APIKeys()
	if !keys[uuid.MustParse(testKey)] || len(keys) != 1 {
		t.Fatalf("keys=%v", keys)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	p := writeConfig(t, "auth:\n  api_keys: [\""+testKey+"\"]\n")
	other := "0b8e7f3c-1d2a-4e5f-8a9b-0c1d2e3f4a5b"
	env := map[string]string{
		"SSS_HOST":       "0.0.0.0",
		"SSS_PORT":       "7000",
		"SSS_API_KEYS":   testKey + ", " + other,
		"SSS_DATA_DIR":   "/var/lib/sss",
		"SSS_REDIS_ADDR": "redis:6379",
	}
	cfg, err := load(p, func(k string) string { return env[k] })
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr() != "0.0.0.0:7000" || cfg.DataDir != "/var/lib/sss" || cfg.Events.RedisAddr != "redis:6379" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if len(cfg.Auth.APIKeys) != 2 {
		t.Fatalf("keys=%v", cfg.Auth.APIKeys)
	}

	env["SSS_PORT"] = "eighty"
	if _, err := load(p, func(k string) string { return env[k] }); err == nil {
		t.Fatalf("expected bad SSS_PORT to fail")
	}
}

func TestLoad_Rejects(t *testing.T) {
	key := "auth:\n  api_keys: [\"" + testKey + "\"]\n"
	cases := map[string]string{
		"no keys":         "port: 8080\n",
		"bad key":         "auth:\n  api_keys: [\"not-a-uuid\"]\n",
		"zero duration":   key + "expiry:\n  route_hold: 0s\n",
		"bad duration":    key + "expiry:\n  route_hold: soon\n",
		"blocked outside": key + "pathfinding:\n  width: 2\n  height: 2\n  blocked: [[5, 5]]\n",
		"bad backend":     key + "index:\n  backend: postgres\n",
		"bad port":        key + "port: 70000\n",
		"home outside":    key + "pathfinding:\n  width: 2\n  height: 2\ndefrag:\n  enabled: true\n  home: [3, 3]\n",
	}
	for name, body := range cases {
		if _, err := load(writeConfig(t, body), noEnv); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := load(filepath.Join(t.TempDir(), "missing.yaml"), noEnv); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file: %v", err)
	}
}

// A loadable file can still carry a grid that pathfinding refuses.
func TestLoad_GridLeftToPathfindingVerify(t *testing.T) {
	p := writeConfig(t, "auth:\n  api_keys: [\""+testKey+"\"]\npathfinding:\n  width: 0\n  height: 4\n  adjacency: 6\n")
	cfg, err := load(p, noEnv)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := pathfinding.Verify(cfg.Pathfinding()); !errors.Is(err, pathfinding.ErrInvalidConfig) {
		t.Fatalf("verify: %v", err)
	}
}

func TestShippedConfigLoads(t *testing.T) {
	cfg, err := load(filepath.Join("..", "..", DefaultPath), noEnv)
	if err != nil {
		t.Fatalf("shipped config: %v", err)
	}
	if err := pathfinding.Verify(cfg.Pathfinding()); err != nil {
		t.Fatalf("shipped grid: %v", err)
	}
}
