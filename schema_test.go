package batchwriter

import (
	"errors"
	"testing"
)

// TestNewSchema 测试Schema创建
func TestNewSchema(t *testing.T) {
	columns := []string{"id", "name", "age"}
	schema := NewSchema("users", ConflictIgnore, columns...)

	if schema.Name != "users" {
		t.Errorf("Expected name 'users', got '%s'", schema.Name)
	}
	if schema.ConflictStrategy != ConflictIgnore {
		t.Errorf("Expected conflict strategy ConflictIgnore, got %v", schema.ConflictStrategy)
	}
	if len(schema.Columns) != len(columns) {
		t.Fatalf("Expected %d columns, got %d", len(columns), len(schema.Columns))
	}
	for i, col := range columns {
		if schema.Columns[i] != col {
			t.Errorf("Expected column '%s' at index %d, got '%s'", col, i, schema.Columns[i])
		}
	}
}

// TestSchemaValidation 测试Schema验证
func TestSchemaValidation(t *testing.T) {
	tests := []struct {
		name    string
		schema  *Schema
		wantErr bool
	}{
		{"valid", NewSchema("users", ConflictReplace, "id"), false},
		{"empty_name", NewSchema("", ConflictIgnore, "id"), true},
		{"no_columns", NewSchema("users", ConflictIgnore), true},
		{"unknown_strategy", NewSchema("users", ConflictStrategy(7), "id"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidSchema) {
				t.Errorf("expected ErrInvalidSchema, got %v", err)
			}
		})
	}
}

// TestSchemaClone 克隆后修改原 Schema 不影响副本
func TestSchemaClone(t *testing.T) {
	original := NewSchema("users", ConflictReplace, "id", "name").WithConflictColumns("id")
	cloned := original.clone()

	original.Columns[0] = "changed"
	original.ConflictColumns[0] = "changed"
	original.Name = "other"

	if cloned.Name != "users" || cloned.Columns[0] != "id" || cloned.ConflictColumns[0] != "id" {
		t.Errorf("clone shares state with original: %s", cloned)
	}
	if cloned.ConflictStrategy != ConflictReplace {
		t.Errorf("clone lost conflict strategy")
	}
}

func TestSchemaConflictTarget(t *testing.T) {
	s := NewSchema("users", ConflictReplace, "id", "name")
	if got := s.conflictTarget(); len(got) != 1 || got[0] != "id" {
		t.Errorf("default conflict target = %v, want [id]", got)
	}

	s.WithConflictColumns("name")
	if got := s.conflictTarget(); len(got) != 1 || got[0] != "name" {
		t.Errorf("conflict target = %v, want [name]", got)
	}
}
