package astrosite

import "testing"

func TestBuildURL(t *testing.T) {
	tests := []struct {
		base string
		segs []string
		want string
	}{
		{"https://stars.example", nil, "https://stars.example"},
		{"https://stars.example", []string{"news", "full-moon-1a2b3c4d"}, "https://stars.example/news/full-moon-1a2b3c4d/"},
		{"https://stars.example/site/", []string{"astrology"}, "https://stars.example/site/astrology/"},
	}
	for _, tt := range tests {
		if got := BuildURL(tt.base, tt.segs...); got != tt.want {
			t.Errorf("BuildURL(%q, %v) = %q, want %q", tt.base, tt.segs, got, tt.want)
		}
	}
}

func TestFilterEmpty(t *testing.T) {
	got := FilterEmpty([]string{" a ", "", "  ", "b"})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("FilterEmpty = %q", got)
	}
}
