package policy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/paxdriver/KriSYS/internal/model"
)

func TestMergeKeepsRequiredFields(t *testing.T) {
	got := Merge(DefaultSettings(), Overrides{RateLimit: intp(600)})
	if got.RateLimit != 600 {
		t.Fatalf("rate limit = %d, want 600", got.RateLimit)
	}
	if got.BlockInterval != 180 || got.SizeLimit != 5120 {
		t.Fatalf("defaults not inherited: %+v", got)
	}
	if len(got.Types) != 3 || len(got.PriorityLevels) != 4 {
		t.Fatalf("taxonomy not inherited: %+v", got)
	}
}

func TestMergeDoesNotAliasBase(t *testing.T) {
	base := DefaultSettings()
	got := Merge(base, Overrides{})
	got.PriorityLevels["extra"] = 9
	got.Types[0] = "changed"
	if _, ok := base.PriorityLevels["extra"]; ok {
		t.Fatalf("merge result shares priority map with base")
	}
	if base.Types[0] != "check_in" {
		t.Fatalf("merge result shares types slice with base")
	}
}

func TestCreateGeneratesUniqueSlugs(t *testing.T) {
	e := NewEngine(nil)
	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		id, err := e.Create("Flood Watch", "Org", "c@x", "d", Overrides{}, "")
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		ids = append(ids, id)
	}
	want := []string{"flood_watch", "flood_watch_1", "flood_watch_2"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
}

func TestCreateRejectsExistingExplicitID(t *testing.T) {
	e := NewEngine(nil)
	if _, err := e.Create("A", "", "", "", Overrides{}, "fixed"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := e.Create("B", "", "", "", Overrides{RateLimit: intp(1)}, "fixed")
	if !errors.Is(err, ErrPolicyExists) {
		t.Fatalf("expected ErrPolicyExists, got %v", err)
	}
	p, _ := e.Lookup("fixed")
	if p.Name != "A" || p.Settings.RateLimit != 180 {
		t.Fatalf("existing policy was mutated: %+v", p)
	}
}

func TestGetFallsBackObservably(t *testing.T) {
	e := NewEngine(nil)
	p := e.Get("no-such-policy")
	if p.ID != DefaultID {
		t.Fatalf("fallback id = %q, want %q", p.ID, DefaultID)
	}
	if _, ok := e.Lookup("no-such-policy"); ok {
		t.Fatalf("Lookup should not fall back")
	}
}

func TestActivateAndActive(t *testing.T) {
	e := NewEngine(nil)
	if e.Active().ID != DefaultID {
		t.Fatalf("fresh engine should have default active")
	}
	if err := e.Activate("missing"); !errors.Is(err, ErrUnknownPolicy) {
		t.Fatalf("expected ErrUnknownPolicy, got %v", err)
	}
	id, err := Bootstrap(e, "")
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if id != "Hurricane_Bobo" || e.Active().ID != id {
		t.Fatalf("active = %q, want Hurricane_Bobo", e.Active().ID)
	}
	if got := e.Active().Settings.SizeLimit; got != 10240 {
		t.Fatalf("size limit = %d", got)
	}
	if n := len(e.List()); n != 2 {
		t.Fatalf("List len = %d, want 2", n)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	e := NewEngine(nil)
	p := e.Get("")
	p.Settings.PriorityLevels["medical"] = 99
	if e.Get("").Settings.PriorityLevels["medical"] != 1 {
		t.Fatalf("caller mutation leaked into registry")
	}
}

func TestValidateRules(t *testing.T) {
	p := Default()
	fixed := func(n int) SizeFunc {
		return func(model.Transaction) (int, error) { return n, nil }
	}
	ok := model.Transaction{Kind: "check_in", Priority: 1}

	cases := []struct {
		name string
		tx   model.Transaction
		size SizeFunc
		rule string
	}{
		{"valid", ok, fixed(100), ""},
		{"bad type", model.Transaction{Kind: "metadata", Priority: 1}, fixed(100), RuleType},
		{"too large", ok, fixed(5121), RuleSize},
		{"at limit", ok, fixed(5120), ""},
		{"bad priority", model.Transaction{Kind: "alert", Priority: 7}, fixed(10), RulePriority},
		{"type checked before size", model.Transaction{Kind: "nope", Priority: 7}, fixed(999999), RuleType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.tx, p, tc.size)
			if tc.rule == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ve *ViolationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ViolationError, got %v", err)
			}
			if ve.Rule != tc.rule {
				t.Fatalf("rule = %q, want %q", ve.Rule, tc.rule)
			}
			if !errors.Is(err, ErrPolicyViolation) {
				t.Fatalf("errors.Is(ErrPolicyViolation) = false")
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.yaml")
	content := `active: quake
policies:
  - id: quake
    name: Quake Response
    organization: Relief Org
    contact: ops@relief.example
    settings:
      rate_limit: 30
      types: [check_in, alert]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	e := NewEngine(nil)
	id, err := Bootstrap(e, path)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if id != "quake" {
		t.Fatalf("active = %q, want quake", id)
	}
	s := e.Active().Settings
	if s.RateLimit != 30 || s.SizeLimit != 5120 || len(s.Types) != 2 {
		t.Fatalf("unexpected settings: %+v", s)
	}
	if s.PriorityLevels["medical"] != 1 {
		t.Fatalf("priority levels should inherit defaults: %+v", s.PriorityLevels)
	}
}

func TestPriorityLabelsOrderedByRank(t *testing.T) {
	s := Merge(DefaultSettings(), HurricaneDeployment().Settings)
	got := s.PriorityLabels()
	if got[0] != "evacuation" || got[len(got)-1] != "personal" {
		t.Fatalf("labels = %v", got)
	}
}
