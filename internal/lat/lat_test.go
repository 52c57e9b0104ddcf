package lat

import "testing"

func mustSecret(t *testing.T) []byte {
	t.Helper()
	s, err := NewSecret()
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestIssueAndValidateOk(t *testing.T) {
	iss := NewIssuer("sess1", mustSecret(t))

	token, err := iss.Issue("f.txt", 1, 3, 0xDEADBEEF, 3, false)
	if err != nil {
		t.Fatal(err)
	}

	res, claims := iss.Validate(token, 3, func(start, end int) (uint32, error) {
		return 0xDEADBEEF, nil
	})
	if res != ResultOk {
		t.Fatalf("Validate = %v, want Ok", res)
	}
	if claims.Path != "f.txt" {
		t.Errorf("claims.Path = %q", claims.Path)
	}
}

func TestValidateStaleOnCRCMismatch(t *testing.T) {
	iss := NewIssuer("sess1", mustSecret(t))
	token, _ := iss.Issue("f.txt", 1, 3, 0x111, 3, false)

	res, _ := iss.Validate(token, 3, func(start, end int) (uint32, error) {
		return 0x222, nil
	})
	if res != ResultStale {
		t.Fatalf("Validate = %v, want Stale", res)
	}
}

func TestValidateWrongSession(t *testing.T) {
	a := NewIssuer("sess-a", mustSecret(t))
	b := NewIssuer("sess-b", mustSecret(t))

	token, _ := a.Issue("f.txt", 1, 3, 0x111, 3, false)

	res, _ := b.Validate(token, 3, func(start, end int) (uint32, error) { return 0x111, nil })
	if res != ResultWrongSession {
		t.Fatalf("Validate = %v, want WrongSession", res)
	}
}

func TestValidateMalformedOnForgedSignature(t *testing.T) {
	iss := NewIssuer("sess1", mustSecret(t))
	token, _ := iss.Issue("f.txt", 1, 3, 0x111, 3, false)

	forged := token + "tampered"
	res, _ := iss.Validate(forged, 3, func(start, end int) (uint32, error) { return 0x111, nil })
	if res != ResultMalformed {
		t.Fatalf("Validate(forged) = %v, want Malformed", res)
	}
}

func TestValidateMalformedGarbage(t *testing.T) {
	iss := NewIssuer("sess1", mustSecret(t))
	res, _ := iss.Validate("not-a-token", 3, nil)
	if res != ResultMalformed {
		t.Fatalf("Validate(garbage) = %v, want Malformed", res)
	}
}

func TestValidateOutOfBounds(t *testing.T) {
	iss := NewIssuer("sess1", mustSecret(t))
	token, _ := iss.Issue("f.txt", 1, 5, 0x111, 5, false)

	// File has shrunk to 2 lines since the token was issued.
	res, _ := iss.Validate(token, 2, func(start, end int) (uint32, error) { return 0x111, nil })
	if res != ResultOutOfBounds {
		t.Fatalf("Validate = %v, want OutOfBounds", res)
	}
}

func TestInfinityRangeSkipsBoundsAndCRC(t *testing.T) {
	iss := NewIssuer("sess1", mustSecret(t))
	token, _ := iss.Issue("new.txt", 1, 0, 0, 0, true)

	res, claims := iss.Validate(token, 0, nil)
	if res != ResultOk {
		t.Fatalf("Validate = %v, want Ok", res)
	}
	if !claims.InfinityRange {
		t.Error("expected InfinityRange claim")
	}
}

func TestAppendAtEndOfFileIsInBounds(t *testing.T) {
	iss := NewIssuer("sess1", mustSecret(t))
	// start = lineCount+1, end = lineCount represents an append point.
	token, _ := iss.Issue("f.txt", 4, 3, CRC32COfEmpty(), 3, false)

	res, _ := iss.Validate(token, 3, func(start, end int) (uint32, error) {
		return CRC32COfEmpty(), nil
	})
	if res != ResultOk {
		t.Fatalf("Validate = %v, want Ok", res)
	}
}

// CRC32COfEmpty is a test helper standing in for the CRC of an empty range.
func CRC32COfEmpty() uint32 { return 0 }
