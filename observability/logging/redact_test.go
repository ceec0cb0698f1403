package logging

import "testing"

func TestMaskFieldRedactsUnknownKeys(t *testing.T) {
	attr := MaskField("authorization", "Bearer secret")
	if attr.Value.String() != RedactedValue {
		t.Fatalf("expected redaction, got %q", attr.Value.String())
	}
}

func TestMaskFieldAllowsOperationalKeys(t *testing.T) {
	attr := MaskField("operation", "borrow")
	if attr.Value.String() != "borrow" {
		t.Fatalf("allowlisted key masked: %q", attr.Value.String())
	}
}

func TestMaskFieldKeepsEmptyValues(t *testing.T) {
	attr := MaskField("caller", "")
	if attr.Value.String() != "" {
		t.Fatalf("empty value rewritten: %q", attr.Value.String())
	}
}

func TestAllowlistStaysTight(t *testing.T) {
	for _, key := range RedactionAllowlist() {
		switch key {
		case "caller", "address", "token", "authorization", "owner":
			t.Fatalf("sensitive key %q must not be allowlisted", key)
		}
	}
}
