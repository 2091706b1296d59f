package config

import "testing"

func noEnv(string) (string, bool) { return "", false }

func TestParsePropertiesFlattensNestedKeys(t *testing.T) {
	p, err := ParseProperties([]byte(`
queue:
  name: orders
  retries: 3
demo:
  audit:
    queue: demo.audit
hosts:
  - a
  - b
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.lookup = noEnv

	cases := map[string]string{
		"queue.name":       "orders",
		"queue.retries":    "3",
		"demo.audit.queue": "demo.audit",
		"hosts[0]":         "a",
		"hosts[1]":         "b",
	}
	for key, want := range cases {
		got, ok := p.Lookup(key)
		if !ok {
			t.Errorf("%s: expected key to exist", key)
			continue
		}
		if got != want {
			t.Errorf("%s: expected %q, got %q", key, want, got)
		}
	}

	if _, ok := p.Lookup("queue"); ok {
		t.Error("expected intermediate map key to be absent")
	}
}

func TestPropertiesEnvironmentOverridesFile(t *testing.T) {
	p := NewProperties(map[string]string{"queue.name": "orders"})
	p.lookup = func(k string) (string, bool) {
		if k == "QUEUE_NAME" {
			return "orders-override", true
		}
		return "", false
	}

	got, ok := p.Lookup("queue.name")
	if !ok || got != "orders-override" {
		t.Fatalf("expected env override, got %q (ok=%v)", got, ok)
	}
}

func TestPropertiesEnvOnlyKey(t *testing.T) {
	t.Setenv("DUPLEX_TEST_QUEUE", "from-env")

	p, err := LoadProperties("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := p.Lookup("duplex.test-queue")
	if !ok || got != "from-env" {
		t.Fatalf("expected from-env, got %q (ok=%v)", got, ok)
	}
}

func TestParsePropertiesInvalidYAML(t *testing.T) {
	if _, err := ParseProperties([]byte("queue: [unterminated")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestKeysSorted(t *testing.T) {
	p := NewProperties(map[string]string{"b": "2", "a": "1"})
	keys := p.Keys()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("unexpected keys %v", keys)
	}
}
