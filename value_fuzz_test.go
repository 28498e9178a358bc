package loreline

import "testing"

// FuzzValueStringAndEqual fuzzes the string-kinded Value's String/Truthy/
// Equal surface against arbitrary byte sequences, grounded on the
// teacher's FuzzValueOperations (value_fuzz_test.go), generalized from
// pongo2's reflect-based AsValue(input) to loreline's closed Value union.
func FuzzValueStringAndEqual(f *testing.F) {
	f.Add("")
	f.Add(" ")
	f.Add("hello")
	f.Add("hello\nworld")
	f.Add("hello\x00world")
	f.Add("你好")
	f.Add("🎉🎊🎁")
	f.Add("﻿")
	f.Add(string([]byte{0xFF, 0xFE}))

	f.Fuzz(func(t *testing.T, input string) {
		v := StringValue(input)
		_ = v.Truthy()
		_ = v.String()
		if !v.Equal(v) {
			t.Fatalf("StringValue(%q) does not equal itself", input)
		}
		if v.Equal(Null) {
			t.Fatalf("StringValue(%q) should never equal Null", input)
		}
	})
}

// FuzzValueIntFloatEqual fuzzes the numeric cross-kind comparison rule
// (spec §4.5: 2 == 2.0) against arbitrary int/float pairs, checking only
// that Equal never panics and agrees with direct float comparison.
func FuzzValueIntFloatEqual(f *testing.F) {
	f.Add(int64(0), 0.0)
	f.Add(int64(1), 1.0)
	f.Add(int64(-1), -1.0)
	f.Add(int64(2), 2.5)
	f.Add(int64(1<<62), 1e300)

	f.Fuzz(func(t *testing.T, i int64, fl float64) {
		iv := IntValue(i)
		fv := FloatValue(fl)
		want := float64(i) == fl
		if got := iv.Equal(fv); got != want {
			t.Fatalf("IntValue(%d).Equal(FloatValue(%v)) = %v, want %v", i, fl, got, want)
		}
	})
}

// FuzzValueArrayEqual fuzzes array equality over randomly generated
// int slices, checking reflexivity and that any element change breaks
// equality.
func FuzzValueArrayEqual(f *testing.F) {
	f.Add(0, 0)
	f.Add(1, 1)
	f.Add(3, 7)

	f.Fuzz(func(t *testing.T, n int, seed int) {
		if n < 0 {
			n = -n
		}
		n %= 64
		elems := make([]Value, n)
		for i := range elems {
			elems[i] = IntValue(int64(seed + i))
		}
		a := ArrayValue(elems)
		b := ArrayValue(append([]Value(nil), elems...))
		if !a.Equal(b) {
			t.Fatalf("two arrays built from the same elements should be equal")
		}
		if n > 0 {
			mutated := append([]Value(nil), elems...)
			mutated[0] = IntValue(mutated[0].IntVal + 1)
			if a.Equal(ArrayValue(mutated)) {
				t.Fatalf("mutating one element should break array equality")
			}
		}
	})
}
