package keys

import (
	"errors"
	"testing"

	"golang-mq-duplex/internal/domain"
)

type queueNames struct {
	Orders string
}

type shard int

func (s shard) String() string { return "shard-" + string(rune('0'+int(s))) }

func newTestResolver() *Resolver {
	props := MapSource{
		"queue.name":   "orders",
		"queue.prefix": "svc",
		"env":          "prod",
		"queue.prod":   "orders-prod",
		"alias":        "${queue.name}",
		"loop.a":       "${loop.b}",
		"loop.b":       "${loop.a}",
		"self":         "${self}",
		"blank":        "   ",
		"expr":         "#{names.Orders}",
	}

	reg := NewRegistry()
	reg.Register("names", queueNames{Orders: "orders-from-registry"})
	reg.Register("region", "eu")
	reg.Register("shard", shard(3))
	reg.Register("replicas", 2)

	return New(props, reg)
}

func TestResolve(t *testing.T) {
	r := newTestResolver()

	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"static", "mytestqueue", "mytestqueue"},
		{"placeholder", "${queue.name}", "orders"},
		{"surrounding text", "${queue.prefix}.${queue.name}.v1", "svc.orders.v1"},
		{"default unused", "${queue.name:fallback}", "orders"},
		{"default used", "${missing:fallback}", "fallback"},
		{"empty default", "x${missing:}", "x"},
		{"nested default", "${missing:${queue.name}}", "orders"},
		{"nested key", "${queue.${env}}", "orders-prod"},
		{"value with placeholder", "${alias}", "orders"},
		{"expression literal", "#{'literal'}", "literal"},
		{"expression registry field", "#{names.Orders}", "orders-from-registry"},
		{"expression template", "jobs.#{region}.#{replicas + 1}", "jobs.eu.3"},
		{"expression stringer", "#{shard}", "shard-3"},
		{"placeholder then expression", "${expr}", "orders-from-registry"},
		{"expression with braces", "#{{'a': 'queue-a'}['a']}", "queue-a"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.Resolve(tc.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestResolveErrors(t *testing.T) {
	r := newTestResolver()

	cases := []struct {
		name string
		raw  string
		want error
	}{
		{"unknown key", "${nope}", domain.ErrUnresolvedKey},
		{"unterminated placeholder", "${queue.name", domain.ErrUnresolvedKey},
		{"circular", "${loop.a}", domain.ErrUnresolvedKey},
		{"self reference", "${self}", domain.ErrUnresolvedKey},
		{"blank result", "${blank}", domain.ErrUnresolvedKey},
		{"empty", "", domain.ErrUnresolvedKey},
		{"unknown component", "#{unknown}", domain.ErrInvalidExpression},
		{"syntax error", "#{names.}", domain.ErrInvalidExpression},
		{"empty expression", "#{ }", domain.ErrInvalidExpression},
		{"unterminated expression", "#{region", domain.ErrInvalidExpression},
		{"non scalar result", "#{names}", domain.ErrInvalidExpression},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.Resolve(tc.raw)
			if err == nil {
				t.Fatalf("expected error, got %q", got)
			}
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestResolveIsIdempotentForStaticNames(t *testing.T) {
	r := newTestResolver()

	first, err := r.Resolve("mytestqueue")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 10; i++ {
		got, err := r.Resolve("mytestqueue")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != first {
			t.Fatalf("call %d: expected %q, got %q", i, first, got)
		}
	}
}

func TestResolveIsNotCached(t *testing.T) {
	props := MapSource{"queue.name": "orders"}
	r := New(props, nil)

	if got, _ := r.Resolve("${queue.name}"); got != "orders" {
		t.Fatalf("expected orders, got %q", got)
	}

	props["queue.name"] = "invoices"
	if got, _ := r.Resolve("${queue.name}"); got != "invoices" {
		t.Fatalf("expected invoices after change, got %q", got)
	}
}

func TestEvaluateWithoutExpressionReturnsInput(t *testing.T) {
	r := New(nil, nil)

	got, err := r.Evaluate("plain.queue")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "plain.queue" {
		t.Errorf("expected plain.queue, got %q", got)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register("a", 1)

	if v, ok := reg.Lookup("a"); !ok || v != 1 {
		t.Fatalf("expected a=1, got %v (ok=%v)", v, ok)
	}

	env := reg.Env()
	env["b"] = 2
	if _, ok := reg.Lookup("b"); ok {
		t.Error("expected Env to return a copy")
	}
}
