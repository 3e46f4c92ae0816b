package domain

import "testing"

func TestParsePriority(t *testing.T) {
	cases := []struct {
		raw  string
		want Priority
		ok   bool
	}{
		{"", PriorityNormal, true},
		{"normal", PriorityNormal, true},
		{"  Moderate ", PriorityModerate, true},
		{"CRITICAL", PriorityCritical, true},
		{"urgent", "", false},
	}
	for _, tc := range cases {
		got, ok := ParsePriority(tc.raw)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParsePriority(%q) = (%q, %v), want (%q, %v)", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}

func TestRedactForRole(t *testing.T) {
	record := RawRecord{
		FieldFarm:        "Green Acres",
		FieldFarmAddress: "12 Ridge Road",
		FieldPlot:        "A7",
	}

	redacted := RedactForRole(record, []string{RolePlanner})
	if _, ok := redacted[FieldFarmAddress]; ok {
		t.Fatalf("expected farm address removed for planner")
	}
	if _, ok := redacted[FieldPlot]; ok {
		t.Fatalf("expected plot removed for planner")
	}
	if redacted.Get(FieldFarm) != "Green Acres" {
		t.Fatalf("expected farm name kept")
	}
	// The original record is untouched.
	if record.Get(FieldFarmAddress) != "12 Ridge Road" {
		t.Fatalf("expected input record unchanged")
	}

	kept := RedactForRole(record, []string{"admin"})
	if kept.Get(FieldFarmAddress) != "12 Ridge Road" {
		t.Fatalf("expected unrestricted roles to keep farm columns")
	}
}

func TestIsAllowedTaskName(t *testing.T) {
	if !IsAllowedTaskName("Sowing") {
		t.Fatalf("expected Sowing allowed")
	}
	if IsAllowedTaskName("sowing") {
		t.Fatalf("matching is exact, lowercase must fail")
	}
	if IsAllowedTaskName("Digging") {
		t.Fatalf("expected Digging rejected")
	}
}
