package edit

import "testing"

func TestApplyHunksReplace(t *testing.T) {
	original := "line1\nline2\nline3\n"
	hunks := []Hunk{{Operation: OpReplace, StartLine: 2, EndLine: 2, Content: "replaced"}}

	got, err := ApplyHunks("f.txt", original, hunks, false)
	if err != nil {
		t.Fatal(err)
	}
	want := "line1\nreplaced\nline3\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestApplyHunksInsertBeforeAndAfterDescendingOrder(t *testing.T) {
	original := "a\nb\nc\n"
	hunks := []Hunk{
		{Operation: OpInsertBefore, StartLine: 1, Content: "before-a"},
		{Operation: OpInsertAfter, StartLine: 3, Content: "after-c"},
	}

	got, err := ApplyHunks("f.txt", original, hunks, false)
	if err != nil {
		t.Fatal(err)
	}
	want := "before-a\na\nb\nc\nafter-c\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestApplyHunksDelete(t *testing.T) {
	original := "a\nb\nc\n"
	hunks := []Hunk{{Operation: OpDelete, StartLine: 2, EndLine: 2}}

	got, err := ApplyHunks("f.txt", original, hunks, false)
	if err != nil {
		t.Fatal(err)
	}
	if got != "a\nc\n" {
		t.Fatalf("got %q, want a\\nc\\n", got)
	}
}

func TestApplyHunksOutOfBoundsFailsAddressingError(t *testing.T) {
	original := "a\nb\n"
	hunks := []Hunk{{Operation: OpReplace, StartLine: 10, EndLine: 10, Content: "x"}}

	_, err := ApplyHunks("f.txt", original, hunks, false)
	if e, ok := asNtsErr(err); !ok || e.Kind != "AddressingError" {
		t.Fatalf("err = %v, want AddressingError", err)
	}
}

func TestApplyHunksInfinityRangeBypassesBounds(t *testing.T) {
	original := ""
	hunks := []Hunk{{Operation: OpInsertBefore, StartLine: 1, Content: "first"}}

	got, err := ApplyHunks("new.txt", original, hunks, true)
	if err != nil {
		t.Fatal(err)
	}
	if got != "first" {
		t.Fatalf("got %q, want %q", got, "first")
	}
}

func TestApplyHunksContentMismatch(t *testing.T) {
	original := "a\nb\nc\n"
	hunks := []Hunk{{
		Operation:          OpReplace,
		StartLine:          2,
		EndLine:            2,
		Content:            "x",
		ExpectedContent:    "not-b",
		HasExpectedContent: true,
	}}

	_, err := ApplyHunks("f.txt", original, hunks, false)
	if e, ok := asNtsErr(err); !ok || e.Kind != "ContentMismatch" {
		t.Fatalf("err = %v, want ContentMismatch", err)
	}
}

func TestApplyHunksAutoIndent(t *testing.T) {
	original := "    func foo() {\n    }\n"
	hunks := []Hunk{{Operation: OpInsertAfter, StartLine: 1, Content: "x := 1\ny := 2"}}

	got, err := ApplyHunks("f.txt", original, hunks, false)
	if err != nil {
		t.Fatal(err)
	}
	want := "    func foo() {\n    x := 1\n    y := 2\n    }\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestApplyHunksContextAnchor(t *testing.T) {
	original := "package main\n\nfunc foo() {\n\treturn\n}\n"
	hunks := []Hunk{{
		Operation:           OpReplace,
		ContextStartPattern: `^func foo`,
		StartLine:           2,
		EndLine:             2,
		Content:              "\treturn 1",
	}}

	got, err := ApplyHunks("f.txt", original, hunks, false)
	if err != nil {
		t.Fatal(err)
	}
	want := "package main\n\nfunc foo() {\n\treturn 1\n}\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
