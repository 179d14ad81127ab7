package perrs

import "testing"

func TestClassifiedErrorUnwrap(t *testing.T) {
	inner := New(Operational, "test", "denied")
	ce := Wrap(Operational, "test", inner)
	if ce.Unwrap() != inner {
		t.Fatalf("Unwrap did not return the wrapped error")
	}
	if ce.Kind.String() != "Operational" {
		t.Fatalf("unexpected kind string: %s", ce.Kind)
	}
}

func TestAssertPanicsWhenDebug(t *testing.T) {
	DebugAssertions = true
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	Assert("test", false, "should have panicked")
}

func TestAssertNoopWhenReleaseMode(t *testing.T) {
	DebugAssertions = false
	defer func() { DebugAssertions = true }()
	defer func() {
		if recover() != nil {
			t.Fatal("did not expect panic with DebugAssertions=false")
		}
	}()
	Assert("test", false, "tolerated in release")
}
