package sso

import (
	"errors"
	"testing"
	"time"

	"walletauth.org/internal/autherr"
)

const tiedWallet = "stake_test1uzj6arxjut5r8qgjtyexk4pw3n0f87psptnjwafy3hhzk8glmxvkq"

var now = time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)

const rawRecord = `{
	"version": "0.1.0",
	"uniqueIdentifier": "LF-AUTH-010-2024",
	"issuer": "littlefishFoundation",
	"issuanceDate": "2024-01-01",
	"expirationDate": "2025-01-01T00:00:00Z",
	"isTransferable": 0,
	"tiedWallet": ["stake_test1uzj6arxjut5r8qgjtyexk4pw3n0",
		"f87psptnjwafy3hhzk8glmxvkq"],
	"isMaxUsageEnabled": 1,
	"maxUsage": "10",
	"isInactivityEnabled": 1,
	"inactivityPeriod": "30d",
	"role": ["admin", "editor"]
}`

func validMetadata(t *testing.T) Metadata {
	t.Helper()
	md, err := Parse([]byte(rawRecord))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return md
}

func validParams() Params {
	return Params{
		Issuer:        "littlefishFoundation",
		Identifiers:   []string{"OTHER", "LF-AUTH-010-2024"},
		UsageCount:    0,
		LastUsage:     now.AddDate(0, 0, -1),
		WalletAddress: tiedWallet,
	}
}

func expectKind(t *testing.T, err error, kind autherr.Kind) {
	t.Helper()
	if got := autherr.KindOf(err); got != kind {
		t.Fatalf("expected %s, got %v", kind, err)
	}
}

func TestParseCanonicalizesRecord(t *testing.T) {
	md := validMetadata(t)
	if md.Transferable || !md.MaxUsageEnabled || !md.InactivityEnabled {
		t.Fatalf("flags not canonicalized: %+v", md)
	}
	if md.MaxUsage != 10 {
		t.Fatalf("expected quoted maxUsage to parse, got %d", md.MaxUsage)
	}
	if md.TiedWallet != tiedWallet {
		t.Fatalf("chunked string not joined: %q", md.TiedWallet)
	}
	if md.InactivityPeriod != (Period{Value: 30, Unit: Day}) {
		t.Fatalf("unexpected period %v", md.InactivityPeriod)
	}
	if !md.IssuanceDate.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected issuance date %v", md.IssuanceDate)
	}
	if len(md.Roles) != 2 || md.Roles[0] != "admin" {
		t.Fatalf("unexpected roles %v", md.Roles)
	}

	single, err := Parse([]byte(`{"version":"0.1.0","expirationDate":"2030-01-01","role":"viewer","isTransferable":true}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(single.Roles) != 1 || single.Roles[0] != "viewer" || !single.Transferable {
		t.Fatalf("unexpected record %+v", single)
	}
}

func TestParseUnknownVersionKeepsOnlyVersion(t *testing.T) {
	md, err := Parse([]byte(`{"version":"0.2.0","expirationDate":"not a date","issuer":"x"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if md.Version != "0.2.0" || md.Issuer != "" || md.Supported() {
		t.Fatalf("unexpected record %+v", md)
	}
	_, err = Evaluate(md, validParams(), now)
	expectKind(t, err, autherr.UnsupportedVersion)
}

func TestParseRejectsMalformedRecords(t *testing.T) {
	cases := map[string]string{
		"not json":         `{`,
		"missing expiry":   `{"version":"0.1.0"}`,
		"bad expiry":       `{"version":"0.1.0","expirationDate":"tomorrow"}`,
		"bad flag":         `{"version":"0.1.0","expirationDate":"2030-01-01","isTransferable":2}`,
		"bad count":        `{"version":"0.1.0","expirationDate":"2030-01-01","maxUsage":-1}`,
		"bad period":       `{"version":"0.1.0","expirationDate":"2030-01-01","isInactivityEnabled":1,"inactivityPeriod":"3w"}`,
		"missing period":   `{"version":"0.1.0","expirationDate":"2030-01-01","isInactivityEnabled":1}`,
		"bad issuance":     `{"version":"0.1.0","expirationDate":"2030-01-01","issuanceDate":"soon"}`,
		"role wrong shape": `{"version":"0.1.0","expirationDate":"2030-01-01","role":{"a":1}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(raw)); !errors.Is(err, ErrInvalidMetadata) {
				t.Fatalf("expected ErrInvalidMetadata, got %v", err)
			}
		})
	}
}

func TestEvaluateSuccess(t *testing.T) {
	roles, err := Evaluate(validMetadata(t), validParams(), now)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(roles) != 2 || roles[1] != "editor" {
		t.Fatalf("unexpected roles %v", roles)
	}
}

func TestEvaluateExpiredPrecedesOtherChecks(t *testing.T) {
	md := validMetadata(t)
	md.ExpirationDate = now.Add(-time.Second)
	md.Issuer = "someone else"
	md.UniqueIdentifier = "unknown"
	md.TiedWallet = "stake_test1other"
	md.MaxUsage = 0

	_, err := Evaluate(md, validParams(), now)
	expectKind(t, err, autherr.Expired)

	md = validMetadata(t)
	md.ExpirationDate = now
	if _, err := Evaluate(md, validParams(), now); err != nil {
		t.Fatalf("expiring exactly now is still valid: %v", err)
	}
}

func TestEvaluateOrder(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Metadata, *Params)
		want   autherr.Kind
	}{
		{"issuer", func(m *Metadata, p *Params) {
			p.Issuer = "other"
			p.Identifiers = nil
		}, autherr.IssuerMismatch},
		{"identifier", func(m *Metadata, p *Params) {
			p.Identifiers = []string{"LF-AUTH-011-2024"}
			p.WalletAddress = "stake_test1other"
		}, autherr.IdentifierMismatch},
		{"empty identifier set", func(m *Metadata, p *Params) { p.Identifiers = nil }, autherr.IdentifierMismatch},
		{"tied wallet", func(m *Metadata, p *Params) {
			m.TiedWallet = "stake_test1other"
			p.UsageCount = 100
		}, autherr.OwnershipMismatch},
		{"missing tied wallet", func(m *Metadata, p *Params) {
			m.TiedWallet = ""
			p.WalletAddress = ""
		}, autherr.OwnershipMismatch},
		{"usage", func(m *Metadata, p *Params) {
			p.UsageCount = 10
			p.LastUsage = now.AddDate(-5, 0, 0)
		}, autherr.UsageExceeded},
		{"inactivity", func(m *Metadata, p *Params) { p.LastUsage = now.AddDate(0, 0, -31) }, autherr.InactivityExceeded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			md, p := validMetadata(t), validParams()
			tc.mutate(&md, &p)
			_, err := Evaluate(md, p, now)
			expectKind(t, err, tc.want)
		})
	}
}

func TestEvaluateTransferableSkipsBinding(t *testing.T) {
	md := validMetadata(t)
	md.Transferable = true
	md.TiedWallet = "stake_test1other"
	if _, err := Evaluate(md, validParams(), now); err != nil {
		t.Fatalf("transferable asset should ignore tied wallet: %v", err)
	}
}

func TestEvaluateUsageBoundary(t *testing.T) {
	md, p := validMetadata(t), validParams()
	p.UsageCount = 9
	if _, err := Evaluate(md, p, now); err != nil {
		t.Fatalf("usage below the cap should pass: %v", err)
	}
	md.MaxUsageEnabled = false
	p.UsageCount = 1000
	if _, err := Evaluate(md, p, now); err != nil {
		t.Fatalf("disabled cap should pass: %v", err)
	}
}

func TestEvaluateInactivityWindow(t *testing.T) {
	md, p := validMetadata(t), validParams()

	p.LastUsage = now.AddDate(0, 0, -29)
	if _, err := Evaluate(md, p, now); err != nil {
		t.Fatalf("29 days ago should pass: %v", err)
	}
	p.LastUsage = now.AddDate(0, 0, -30)
	if _, err := Evaluate(md, p, now); err != nil {
		t.Fatalf("exactly 30 days ago should pass: %v", err)
	}
	p.LastUsage = now.AddDate(0, 0, -31)
	_, err := Evaluate(md, p, now)
	expectKind(t, err, autherr.InactivityExceeded)

	p.LastUsage = time.Time{}
	if _, err := Evaluate(md, p, now); err != nil {
		t.Fatalf("never used should pass: %v", err)
	}

	md.InactivityEnabled = false
	p.LastUsage = now.AddDate(-10, 0, 0)
	if _, err := Evaluate(md, p, now); err != nil {
		t.Fatalf("disabled inactivity should pass: %v", err)
	}
}

func TestParsePeriod(t *testing.T) {
	cases := map[string]Period{
		"30d": {30, Day},
		"3m":  {3, Month},
		"1Y":  {1, Year},
		"14":  {14, Day},
		" 0d": {0, Day},
	}
	for in, want := range cases {
		got, err := ParsePeriod(in)
		if err != nil {
			t.Fatalf("ParsePeriod(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParsePeriod(%q) = %v, want %v", in, got, want)
		}
	}
	for _, bad := range []string{"", "d", "-1d", "3w", "1.5m"} {
		if _, err := ParsePeriod(bad); !errors.Is(err, ErrInvalidMetadata) {
			t.Fatalf("ParsePeriod(%q) expected ErrInvalidMetadata, got %v", bad, err)
		}
	}
}

func TestPeriodDeadlineIsCalendarAware(t *testing.T) {
	jan31 := time.Date(2024, time.January, 31, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		p    Period
		from time.Time
		want time.Time
	}{
		{Period{1, Month}, jan31, time.Date(2024, time.February, 29, 9, 0, 0, 0, time.UTC)},
		{Period{1, Month}, jan31.AddDate(1, 0, 0), time.Date(2025, time.February, 28, 9, 0, 0, 0, time.UTC)},
		{Period{3, Month}, time.Date(2024, time.November, 30, 0, 0, 0, 0, time.UTC), time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC)},
		{Period{1, Year}, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC)},
		{Period{30, Day}, jan31, time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		if got := tc.p.Deadline(tc.from); !got.Equal(tc.want) {
			t.Fatalf("%v from %v = %v, want %v", tc.p, tc.from, got, tc.want)
		}
	}

	// a three month window is not 90 days
	md, p := validMetadata(t), validParams()
	md.InactivityPeriod = Period{3, Month}
	p.LastUsage = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)
	if _, err := Evaluate(md, p, now); err != nil {
		t.Fatalf("92 days inside a 3 month window should pass: %v", err)
	}
}
