package filters

import (
	"testing"

	"github.com/leadscan/lead-scan-bot/internal/core/domain"
)

func items(texts ...string) []domain.CandidateItem {
	out := make([]domain.CandidateItem, len(texts))
	for i, text := range texts {
		out[i] = domain.CandidateItem{ItemID: text, Text: text}
	}

	return out
}

func TestFilterer_Excluded(t *testing.T) {
	tests := []struct {
		name     string
		words    []string
		text     string
		expected bool
	}{
		{
			name:     "exclusion word lowercase",
			words:    []string{"аренда"},
			text:     "Сдаётся в аренда квартира в центре",
			expected: true,
		},
		{
			name:     "exclusion word different case",
			words:    []string{"аренда"},
			text:     "АРЕНДА двушки на месяц",
			expected: true,
		},
		{
			name:     "substring inside a longer word",
			words:    []string{"сдам"},
			text:     "Пересдам экзамен завтра",
			expected: true,
		},
		{
			name:     "no exclusion match",
			words:    []string{"аренда", "сниму"},
			text:     "Продам Toyota Corolla 2015 года",
			expected: false,
		},
		{
			name:     "empty word list",
			words:    nil,
			text:     "Продам квартиру",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.words)
			if got := f.Excluded(tt.text); got != tt.expected {
				t.Errorf("Excluded(%q) = %v, want %v", tt.text, got, tt.expected)
			}
		})
	}
}

func TestFilterer_Apply_Dedup(t *testing.T) {
	f := New(nil)

	survivors, drops := f.Apply(items("Selling car", "selling car", "Selling CAR", "House for rent"))

	if len(survivors) != 2 {
		t.Fatalf("survivors = %d, want 2", len(survivors))
	}

	if survivors[0].Text != "Selling car" {
		t.Errorf("first survivor = %q, want first-seen casing %q", survivors[0].Text, "Selling car")
	}

	if survivors[1].Text != "House for rent" {
		t.Errorf("second survivor = %q, want %q", survivors[1].Text, "House for rent")
	}

	if drops[ReasonDuplicate] != 2 {
		t.Errorf("duplicate drops = %d, want 2", drops[ReasonDuplicate])
	}
}

func TestFilterer_Apply_TrimmedDedup(t *testing.T) {
	f := New(nil)

	survivors, drops := f.Apply(items("Продам гараж", "  Продам гараж  "))

	if len(survivors) != 1 {
		t.Fatalf("survivors = %d, want 1", len(survivors))
	}

	if drops[ReasonDuplicate] != 1 {
		t.Errorf("duplicate drops = %d, want 1", drops[ReasonDuplicate])
	}
}

func TestFilterer_Apply_ExclusionBeforeDedup(t *testing.T) {
	f := New([]string{"аренда"})

	survivors, drops := f.Apply(items(
		"Аренда студии у моря",
		"Продам участок 6 соток",
		"аренда студии у моря",
	))

	if len(survivors) != 1 {
		t.Fatalf("survivors = %d, want 1", len(survivors))
	}

	if survivors[0].Text != "Продам участок 6 соток" {
		t.Errorf("survivor = %q", survivors[0].Text)
	}

	if drops[ReasonExcluded] != 2 {
		t.Errorf("excluded drops = %d, want 2", drops[ReasonExcluded])
	}

	if drops[ReasonDuplicate] != 0 {
		t.Errorf("duplicate drops = %d, want 0", drops[ReasonDuplicate])
	}
}

func TestFilterer_Apply_EmptyAndSymbolOnly(t *testing.T) {
	f := New(nil)

	survivors, drops := f.Apply(items("   ", "🔥🔥🔥", "Продам дом"))

	if len(survivors) != 1 {
		t.Fatalf("survivors = %d, want 1", len(survivors))
	}

	if drops[ReasonEmpty] != 2 {
		t.Errorf("empty drops = %d, want 2", drops[ReasonEmpty])
	}
}

func TestFilterer_Apply_PreservesOrder(t *testing.T) {
	f := New(nil)

	texts := []string{"один", "два", "три", "четыре"}

	survivors, _ := f.Apply(items(texts...))

	if len(survivors) != len(texts) {
		t.Fatalf("survivors = %d, want %d", len(survivors), len(texts))
	}

	for i, want := range texts {
		if survivors[i].Text != want {
			t.Errorf("survivors[%d] = %q, want %q", i, survivors[i].Text, want)
		}
	}
}
