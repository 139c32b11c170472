package decimal

import "testing"

func TestStringRoundTrip(t *testing.T) {
	cases := []string{"50", "50.0000", "-12.3400", "0", "123456789012345.1234"}
	for _, c := range cases {
		a, err := NewFromString(c)
		if err != nil {
			t.Fatalf("NewFromString(%q): %v", c, err)
		}
		b, err := NewFromString(a.String())
		if err != nil {
			t.Fatalf("re-parse %q: %v", a.String(), err)
		}
		if !a.Equal(b) {
			t.Fatalf("round trip mismatch: %v != %v", a, b)
		}
	}
}

func TestIntegerAndRealFormsDecodeEqual(t *testing.T) {
	a := MustFromString("50")
	b := MustFromString("50.0000")
	if !a.Equal(b) {
		t.Fatalf("expected %v == %v", a, b)
	}
}

func TestAverageCostScenario(t *testing.T) {
	// spec §8.2 scenario 1: BUY 100 @ 10.00; BUY 50 @ 15.00; SELL 80 @ 20.00.
	qty := MustFromString("150")
	totalCost := MustFromString("100").Mul(MustFromString("10.00")).Add(MustFromString("50").Mul(MustFromString("15.00")))
	avg, err := totalCost.DivDefault(qty)
	if err != nil {
		t.Fatal(err)
	}
	sold := MustFromString("80")
	costBasis := avg.Mul(sold)
	proceeds := sold.Mul(MustFromString("20.00"))
	gain := proceeds.Sub(costBasis).Round(2)
	want := MustFromString("666.67")
	if !gain.Equal(want) {
		t.Fatalf("realized gain = %s, want %s", gain.String(), want.String())
	}
}

func TestDivisionByZero(t *testing.T) {
	_, err := MustFromString("10").Div(Zero, 10)
	if err == nil {
		t.Fatal("expected division by zero error")
	}
}

func TestReconcileToZero(t *testing.T) {
	residue := MustFromString("0.00000000001")
	if got := ReconcileToZero(residue, 10); !got.IsZero() {
		t.Fatalf("expected residue to reconcile to zero, got %s", got.String())
	}
	real := MustFromString("0.05")
	if got := ReconcileToZero(real, 10); got.IsZero() {
		t.Fatalf("expected real balance %s to survive reconciliation", real.String())
	}
}

func TestRoundBankersRounding(t *testing.T) {
	// 2.5 rounds to 2 (even), 3.5 rounds to 4 (even).
	if got := MustFromString("2.5").Round(0); !got.Equal(MustFromString("2")) {
		t.Fatalf("banker's rounding of 2.5 = %s, want 2", got.String())
	}
	if got := MustFromString("3.5").Round(0); !got.Equal(MustFromString("4")) {
		t.Fatalf("banker's rounding of 3.5 = %s, want 4", got.String())
	}
}

func TestPrecisionOverflow(t *testing.T) {
	_, err := NewFromString("1234567890123456") // 16 integer digits
	if err == nil {
		t.Fatal("expected overflow error for 16 integer digits")
	}
}
