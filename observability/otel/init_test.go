package otel

import (
	"context"
	"strings"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" api-key = abc ,broken, =skip,tenant=fund")
	if len(headers) != 2 {
		t.Fatalf("expected two headers, got %v", headers)
	}
	if headers["api-key"] != "abc" || headers["tenant"] != "fund" {
		t.Fatalf("unexpected headers: %v", headers)
	}
}

func TestInitRequiresServiceName(t *testing.T) {
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error without service name")
	}
}

func TestInitWithoutExportersInstallsPropagator(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "fundd"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSamplerDescription(t *testing.T) {
	if desc := Sampler(0).Description(); !strings.Contains(desc, "AlwaysOnSampler") {
		t.Fatalf("unexpected sampler: %s", desc)
	}
	if desc := Sampler(0.25).Description(); !strings.Contains(desc, "TraceIDRatioBased") {
		t.Fatalf("unexpected sampler: %s", desc)
	}
}
