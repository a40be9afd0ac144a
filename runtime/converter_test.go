package runtime

import (
	"reflect"
	"testing"
	"time"
)

// Test types for conversion
type SimpleStruct struct {
	Name  string `json:"name"`
	Age   int    `json:"age"`
	Email string `json:"email"`
}

type StructWithDuration struct {
	Timeout  time.Duration `json:"timeout"`
	Interval time.Duration `json:"interval"`
}

type NestedStruct struct {
	Title   string       `json:"title"`
	Details SimpleStruct `json:"details"`
	Count   int          `json:"count"`
}

func TestDecodeArgs_BasicTypes(t *testing.T) {
	input := map[string]any{
		"name":  "John Doe",
		"age":   30,
		"email": "john@example.com",
	}

	var result SimpleStruct
	if err := DecodeArgs(input, &result); err != nil {
		t.Fatalf("DecodeArgs failed: %v", err)
	}

	if result.Name != "John Doe" {
		t.Errorf("Expected name 'John Doe', got '%s'", result.Name)
	}
	if result.Age != 30 {
		t.Errorf("Expected age 30, got %d", result.Age)
	}
	if result.Email != "john@example.com" {
		t.Errorf("Expected email 'john@example.com', got '%s'", result.Email)
	}
}

func TestDecodeArgs_TypeCoercion(t *testing.T) {
	// Resolved template values often arrive as strings or float64; weak
	// typing coerces them into the declared field types.
	input := map[string]any{
		"name": "Jane",
		"age":  "42",
	}

	var result SimpleStruct
	if err := DecodeArgs(input, &result); err != nil {
		t.Fatalf("DecodeArgs failed: %v", err)
	}
	if result.Age != 42 {
		t.Errorf("Expected age 42, got %d", result.Age)
	}
}

func TestDecodeArgs_Duration(t *testing.T) {
	input := map[string]any{
		"timeout":  "30s",
		"interval": "5m",
	}

	var result StructWithDuration
	if err := DecodeArgs(input, &result); err != nil {
		t.Fatalf("DecodeArgs failed: %v", err)
	}
	if result.Timeout != 30*time.Second {
		t.Errorf("Expected timeout 30s, got %v", result.Timeout)
	}
	if result.Interval != 5*time.Minute {
		t.Errorf("Expected interval 5m, got %v", result.Interval)
	}
}

func TestDecodeArgs_NestedStruct(t *testing.T) {
	input := map[string]any{
		"title": "Report",
		"details": map[string]any{
			"name": "Nested",
			"age":  7,
		},
		"count": 2,
	}

	var result NestedStruct
	if err := DecodeArgs(input, &result); err != nil {
		t.Fatalf("DecodeArgs failed: %v", err)
	}
	if result.Title != "Report" || result.Details.Name != "Nested" || result.Details.Age != 7 {
		t.Errorf("Unexpected result: %+v", result)
	}
}

func TestEncodeResult_BasicTypes(t *testing.T) {
	input := SimpleStruct{Name: "John", Age: 30, Email: "john@example.com"}

	result, err := EncodeResult(input)
	if err != nil {
		t.Fatalf("EncodeResult failed: %v", err)
	}

	if result["name"] != "John" {
		t.Errorf("Expected name 'John', got %v", result["name"])
	}
	// JSON round-trip turns numbers into float64
	if result["age"] != float64(30) {
		t.Errorf("Expected age 30, got %v", result["age"])
	}
}

func TestEncodeResult_Nested(t *testing.T) {
	input := NestedStruct{
		Title:   "Report",
		Details: SimpleStruct{Name: "Nested"},
		Count:   1,
	}

	result, err := EncodeResult(input)
	if err != nil {
		t.Fatalf("EncodeResult failed: %v", err)
	}

	details, ok := result["details"].(map[string]any)
	if !ok {
		t.Fatalf("Expected nested map, got %T", result["details"])
	}
	if details["name"] != "Nested" {
		t.Errorf("Expected nested name, got %v", details["name"])
	}
}

func TestToStringValueMap(t *testing.T) {
	input := map[string]any{
		"str":   "plain",
		"num":   42,
		"flt":   1.5,
		"flag":  true,
		"empty": nil,
	}

	result := ToStringValueMap(input)
	expected := map[string]string{
		"str":   "plain",
		"num":   "42",
		"flt":   "1.5",
		"flag":  "true",
		"empty": "",
	}
	if !reflect.DeepEqual(result, expected) {
		t.Errorf("got %v, want %v", result, expected)
	}
}
