package fields

import (
	"errors"
	"reflect"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestEmail(t *testing.T) {
	r := NewResolver(Options{}, zap.NewNop())
	got, err := r.Email(map[string]string{"email": "  a@x.com "})
	if err != nil || got != "a@x.com" {
		t.Fatalf("Email=%q err=%v", got, err)
	}
	for _, v := range []map[string]string{{"email": "   "}, {"email": ""}, {}} {
		if _, err := r.Email(v); !errors.Is(err, ErrMissingEmail) {
			t.Fatalf("Email(%v): expected ErrMissingEmail, got %v", v, err)
		}
	}

	custom := NewResolver(Options{EmailColumn: "mail"}, zap.NewNop())
	if got, _ := custom.Email(map[string]string{"mail": "m@x.com", "email": "e@x.com"}); got != "m@x.com" {
		t.Fatalf("custom column Email=%q", got)
	}
}

func TestCustomFieldsPrecedence(t *testing.T) {
	r := NewResolver(Options{
		Ignore:          DefaultIgnore,
		ExtraFieldsJSON: `{"cf_region": "emea", "name": "from-json", "cf_choose_your_inquiry": "json-dispo", "cf_count": 2}`,
		Disposition:     "Information Shared - Resolved",
	}, zap.NewNop())

	row := map[string]string{
		"email":                  "a@x.com",
		"name":                   "Alice",
		"company":                "Acme",
		"company_id":             "17",
		"cf_plan":                "pro",
		"blank":                  " ",
		"cf_choose_your_inquiry": "row-dispo",
	}
	got := r.CustomFields(row)
	want := map[string]any{
		"name":                   "from-json",
		"cf_plan":                "pro",
		"cf_region":              "emea",
		"cf_count":               float64(2),
		"cf_choose_your_inquiry": "Information Shared - Resolved",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("CustomFields=%v; want %v", got, want)
	}

	again := r.CustomFields(row)
	if !reflect.DeepEqual(got, again) {
		t.Fatalf("merge is not deterministic: %v vs %v", got, again)
	}
}

func TestCustomFieldsWithoutOverrides(t *testing.T) {
	r := NewResolver(Options{EmailColumn: "mail"}, zap.NewNop())
	got := r.CustomFields(map[string]string{"mail": "a@x.com", "company": "Acme", "cf_choose_your_inquiry": "row"})
	want := map[string]any{"company": "Acme", "cf_choose_your_inquiry": "row"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("CustomFields=%v; want %v", got, want)
	}
}

func TestParseExtraInvalidIsIgnored(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logger := zap.New(core)

	for _, raw := range []string{`{"cf_a": `, `["not", "an", "object"]`, `null`, `42`} {
		if got := ParseExtra(raw, logger); got != nil {
			t.Fatalf("ParseExtra(%q)=%v; want nil", raw, got)
		}
	}
	if n := logs.FilterMessage("ignoring invalid extra custom fields JSON").Len(); n != 4 {
		t.Fatalf("warnings logged=%d; want 4", n)
	}

	if got := ParseExtra("   ", logger); got != nil {
		t.Fatalf("blank input should yield nil, got %v", got)
	}
	if logs.Len() != 4 {
		t.Fatalf("blank input must not warn")
	}

	r := NewResolver(Options{ExtraFieldsJSON: "{oops", Ignore: DefaultIgnore}, logger)
	got := r.CustomFields(map[string]string{"email": "a@x.com", "name": "Alice"})
	if !reflect.DeepEqual(got, map[string]any{"name": "Alice"}) {
		t.Fatalf("CustomFields with invalid JSON=%v", got)
	}
}
