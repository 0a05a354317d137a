package main

import "testing"

const testModule = "schemabridge/contexts/replication/event-processor"

func TestDomainImports(t *testing.T) {
	allowed := []string{
		"strings",
		"github.com/google/uuid",
		testModule + "/domain/entities",
		"schemabridge/internal/shared/events",
		"schemabridge/contracts/gen/events/v1",
	}
	for _, importPath := range allowed {
		if got := validateDomainImport("f.go", 1, importPath, testModule); len(got) != 0 {
			t.Fatalf("expected %s to be allowed, got %+v", importPath, got)
		}
	}

	forbidden := []string{
		testModule + "/adapters/kafka",
		"schemabridge/internal/platform/retry",
		"github.com/segmentio/kafka-go",
	}
	for _, importPath := range forbidden {
		if got := validateDomainImport("f.go", 1, importPath, testModule); len(got) == 0 {
			t.Fatalf("expected %s to be rejected", importPath)
		}
	}
}

func TestApplicationImports(t *testing.T) {
	allowed := []string{
		testModule + "/ports",
		"schemabridge/internal/platform/retry",
		"schemabridge/internal/shared/outbox",
	}
	for _, importPath := range allowed {
		if got := validateApplicationImport("f.go", 1, importPath, testModule); len(got) != 0 {
			t.Fatalf("expected %s to be allowed, got %+v", importPath, got)
		}
	}

	forbidden := []string{
		testModule + "/adapters/memory",
		"schemabridge/internal/platform/db",
		"gorm.io/gorm",
	}
	for _, importPath := range forbidden {
		if got := validateApplicationImport("f.go", 1, importPath, testModule); len(got) == 0 {
			t.Fatalf("expected %s to be rejected", importPath)
		}
	}
}

func TestIsStdlib(t *testing.T) {
	if !isStdlib("encoding/json") {
		t.Fatal("encoding/json is stdlib")
	}
	if isStdlib("schemabridge/internal/shared/events") || isStdlib("github.com/google/uuid") {
		t.Fatal("module and third-party paths are not stdlib")
	}
}
