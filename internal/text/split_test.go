package text

import (
	"reflect"
	"strings"
	"testing"
)

func TestRegexSplitter_GPT2(t *testing.T) {
	s, err := NewRegexSplitter("")
	if err != nil {
		t.Fatalf("NewRegexSplitter: %v", err)
	}

	tests := []struct {
		name  string
		input string
		want  []Word
	}{
		{
			name:  "contraction digits punctuation",
			input: "Hello world's 123!",
			want: []Word{
				{"Hello", 0}, {" world", 5}, {"'s", 11}, {" 123", 13}, {"!", 17},
			},
		},
		{
			name:  "multibyte offsets are in bytes",
			input: "héllo wörld",
			want:  []Word{{"héllo", 0}, {" wörld", 6}},
		},
		{
			name:  "trailing whitespace run",
			input: "a  b",
			want:  []Word{{"a", 0}, {" ", 1}, {" b", 2}},
		},
		{
			name:  "empty input",
			input: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Split(tt.input)
			if err != nil {
				t.Fatalf("Split: %v", err)
			}

			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Split(%q) = %v, want %v", tt.input, got, tt.want)
			}

			if strings.Join(Texts(got), "") != tt.input {
				t.Errorf("words do not cover input %q", tt.input)
			}
		})
	}
}

func TestRegexSplitter_KeepsGaps(t *testing.T) {
	s, err := NewRegexSplitter(`\d+`)
	if err != nil {
		t.Fatalf("NewRegexSplitter: %v", err)
	}

	got, err := s.Split("ab12cd")
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	want := []Word{{"ab", 0}, {"12", 2}, {"cd", 4}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Split = %v, want %v", got, want)
	}
}

func TestNewRegexSplitter_InvalidPattern(t *testing.T) {
	if _, err := NewRegexSplitter(`(`); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestWhitespaceSplitter(t *testing.T) {
	got, err := WhitespaceSplitter{}.Split("  a bc\td ")
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	want := []Word{{"a", 2}, {"bc", 4}, {"d", 7}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Split = %v, want %v", got, want)
	}
}

func TestNewSplitter(t *testing.T) {
	if s, err := NewSplitter("whitespace", ""); err != nil {
		t.Errorf("whitespace: %v", err)
	} else if _, ok := s.(WhitespaceSplitter); !ok {
		t.Errorf("whitespace: got %T", s)
	}

	if s, err := NewSplitter("", ""); err != nil {
		t.Errorf("default: %v", err)
	} else if _, ok := s.(*RegexSplitter); !ok {
		t.Errorf("default: got %T", s)
	}

	if _, err := NewSplitter("bytelevel", ""); err == nil {
		t.Error("expected error for unknown splitter")
	}
}

func TestStripMarkers(t *testing.T) {
	tests := []struct {
		in, prefix, suffix, want string
	}{
		{"h##e##llo", "##", "", "hello"},
		{"he</w>llo</w>", "", "</w>", "he llo"},
		{"plain", "", "", "plain"},
		{"a##b</w>c</w>", "##", "</w>", "ab c"},
	}

	for _, tt := range tests {
		if got := StripMarkers(tt.in, tt.prefix, tt.suffix); got != tt.want {
			t.Errorf("StripMarkers(%q, %q, %q) = %q, want %q", tt.in, tt.prefix, tt.suffix, got, tt.want)
		}
	}
}
