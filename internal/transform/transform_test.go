package transform

import (
	"testing"

	"civicpipe/internal/model"
)

func apply(typ model.TransformType, params map[string]any, value string) string {
	return Apply(model.FieldTransform{Type: typ, Params: params}, value, "https://example.gov/base/")
}

func TestTrimLowerUpper(t *testing.T) {
	if got := apply(model.TransformTrim, nil, "  hi  "); got != "hi" {
		t.Fatalf("trim: got %q", got)
	}
	if got := apply(model.TransformLowercase, nil, "HI"); got != "hi" {
		t.Fatalf("lowercase: got %q", got)
	}
	if got := apply(model.TransformUppercase, nil, "hi"); got != "HI" {
		t.Fatalf("uppercase: got %q", got)
	}
}

func TestStripHTML(t *testing.T) {
	got := apply(model.TransformStripHTML, nil, "<b>bold</b> and <i>italic</i>")
	if got != "bold and italic" {
		t.Fatalf("strip_html: got %q", got)
	}
}

func TestURLResolve(t *testing.T) {
	if got := apply(model.TransformURLResolve, nil, "https://other.example/x"); got != "https://other.example/x" {
		t.Fatalf("absolute url passthrough: got %q", got)
	}
	got := apply(model.TransformURLResolve, nil, "child.html")
	if got != "https://example.gov/base/child.html" {
		t.Fatalf("relative url resolve: got %q", got)
	}
}

func TestURLResolveInvalidURLFallsBack(t *testing.T) {
	got := apply(model.TransformURLResolve, nil, "://not a url")
	if got != "://not a url" {
		t.Fatalf("expected unchanged input on invalid url, got %q", got)
	}
}

func TestRegexReplace(t *testing.T) {
	params := map[string]any{"pattern": `\s+`, "replacement": " "}
	got := apply(model.TransformRegexReplace, params, "a   b    c")
	if got != "a b c" {
		t.Fatalf("regex_replace: got %q", got)
	}
}

func TestRegexReplaceCompileErrorFallsBack(t *testing.T) {
	params := map[string]any{"pattern": `(unclosed`}
	got := apply(model.TransformRegexReplace, params, "value")
	if got != "value" {
		t.Fatalf("expected unchanged input on compile error, got %q", got)
	}
}

func TestNameFormat(t *testing.T) {
	cases := map[string]string{
		"Doe, John": "John Doe",
		"Doe":       "Doe",
		"Mary  Jane": "Mary Jane",
	}
	for in, want := range cases {
		if got := apply(model.TransformNameFormat, nil, in); got != want {
			t.Fatalf("name_format(%q): got %q, want %q", in, got, want)
		}
	}
}

func TestDateParseAgreesAcrossFormats(t *testing.T) {
	forms := []string{"January 1, 2026", "1/1/2026", "1/1/26", "2026-01-01"}
	var want string
	for i, f := range forms {
		got := apply(model.TransformDateParse, nil, f)
		if i == 0 {
			want = got
			continue
		}
		if got != want {
			t.Fatalf("date_parse(%q) = %q, want %q (to match %q)", f, got, want, forms[0])
		}
	}
}

func TestDateParseFallback(t *testing.T) {
	got := apply(model.TransformDateParse, nil, "not a date")
	if got != "not a date" {
		t.Fatalf("expected unchanged input, got %q", got)
	}
}
