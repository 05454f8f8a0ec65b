package placeholder

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"rss_relay/internal/model"
)

func regexStep(search, flags, replacement string) model.PlaceholderStep {
	return model.PlaceholderStep{Type: model.StepRegex, RegexSearch: search, RegexFlags: flags, Replacement: replacement}
}

func TestApply(t *testing.T) {
	article := model.NewArticle(map[string]string{
		"title":  "Episode 42 release",
		"link":   "https://example.com/a?b=c",
		"author": "Jane Doe",
	})

	tests := []struct {
		name    string
		defs    []model.CustomPlaceholder
		want    map[string]string
		wantErr bool
	}{
		{
			name: "digits replaced",
			defs: []model.CustomPlaceholder{
				{ReferenceName: "ep", SourceField: "title", Steps: []model.PlaceholderStep{regexStep(`\d+`, "", "NUM")}},
			},
			want: map[string]string{"custom::ep": "Episode NUM release"},
		},
		{
			name: "steps thread output in order",
			defs: []model.CustomPlaceholder{
				{ReferenceName: "x", SourceField: "title", Steps: []model.PlaceholderStep{
					regexStep(`Episode`, "", "Ep"),
					regexStep(`Ep (\d+)`, "", "#$1"),
					{Type: model.StepUppercase},
				}},
			},
			want: map[string]string{"custom::x": "#42 RELEASE"},
		},
		{
			name: "replacement is global",
			defs: []model.CustomPlaceholder{
				{ReferenceName: "vowels", SourceField: "author", Steps: []model.PlaceholderStep{regexStep(`[aeiou]`, "", "_")}},
			},
			want: map[string]string{"custom::vowels": "J_n_ D__"},
		},
		{
			name: "case insensitive flag",
			defs: []model.CustomPlaceholder{
				{ReferenceName: "name", SourceField: "author", Steps: []model.PlaceholderStep{regexStep(`jane`, "gi", "John")}},
			},
			want: map[string]string{"custom::name": "John Doe"},
		},
		{
			name: "group reference followed by text",
			defs: []model.CustomPlaceholder{
				{ReferenceName: "g", SourceField: "author", Steps: []model.PlaceholderStep{regexStep(`(\w+) (\w+)`, "", "$2x$1")}},
			},
			want: map[string]string{"custom::g": "DoexJane"},
		},
		{
			name: "missing source field starts empty",
			defs: []model.CustomPlaceholder{
				{ReferenceName: "none", SourceField: "nope", Steps: []model.PlaceholderStep{regexStep(`^$`, "", "empty")}},
			},
			want: map[string]string{"custom::none": "empty"},
		},
		{
			name: "url encode and lowercase",
			defs: []model.CustomPlaceholder{
				{ReferenceName: "q", SourceField: "author", Steps: []model.PlaceholderStep{{Type: model.StepLowercase}, {Type: model.StepURLEncode}}},
			},
			want: map[string]string{"custom::q": "jane+doe"},
		},
		{
			name: "malformed pattern fails only its placeholder",
			defs: []model.CustomPlaceholder{
				{ReferenceName: "bad", SourceField: "title", Steps: []model.PlaceholderStep{regexStep(`[oops`, "", "x"), {Type: model.StepUppercase}}},
				{ReferenceName: "good", SourceField: "title", Steps: []model.PlaceholderStep{regexStep(`\d+`, "", "NUM")}},
			},
			want:    map[string]string{"custom::bad": "", "custom::good": "Episode NUM release"},
			wantErr: true,
		},
		{
			name: "unsupported flag fails the placeholder",
			defs: []model.CustomPlaceholder{
				{ReferenceName: "f", SourceField: "title", Steps: []model.PlaceholderStep{regexStep(`a`, "y", "b")}},
			},
			want:    map[string]string{"custom::f": ""},
			wantErr: true,
		},
		{
			name: "no steps copies the source",
			defs: []model.CustomPlaceholder{{ReferenceName: "raw", SourceField: "link"}},
			want: map[string]string{"custom::raw": "https://example.com/a?b=c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(article, tt.defs)
			if gotErr := err != nil; gotErr != tt.wantErr {
				t.Fatalf("Apply() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidStep) {
				t.Errorf("Apply() error = %v, want ErrInvalidStep", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Apply() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestApplyReplacementSyntax(t *testing.T) {
	article := model.NewArticle(map[string]string{"title": "price 42"})

	tests := []struct {
		name        string
		pattern     string
		replacement string
		want        string
	}{
		{name: "numbered group", pattern: `(\d+)`, replacement: "<$1>", want: "price <42>"},
		{name: "escaped dollar", pattern: `(\d+)`, replacement: "$$1", want: "price $1"},
		{name: "whole match", pattern: `\d+`, replacement: "[$&]", want: "price [42]"},
		{name: "two digits beyond group count", pattern: `(\d+)`, replacement: "$10", want: "price 420"},
		{name: "two digit group", pattern: `(p)(r)(i)(c)(e)()()()()( 42)`, replacement: "$10$1", want: " 42p"},
		{name: "missing group kept as text", pattern: `(\d+)`, replacement: "$2", want: "price $2"},
		{name: "zero is not a group", pattern: `(\d+)`, replacement: "$0", want: "price $0"},
		{name: "named group", pattern: `(?P<amount>\d+)`, replacement: "#$<amount>", want: "price #42"},
		{name: "angle bracket without named groups", pattern: `(\d+)`, replacement: "$<amount>", want: "price $<amount>"},
		{name: "trailing dollar", pattern: `\d+`, replacement: "42$", want: "price 42$"},
		{name: "dollar before text", pattern: `\d+`, replacement: "$x", want: "price $x"},
		{name: "braces stay literal", pattern: `\d+`, replacement: "${0}", want: "price ${0}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defs := []model.CustomPlaceholder{
				{ReferenceName: "v", SourceField: "title", Steps: []model.PlaceholderStep{regexStep(tt.pattern, "", tt.replacement)}},
			}
			got, err := Apply(article, defs)
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if diff := cmp.Diff(tt.want, got["custom::v"]); diff != "" {
				t.Errorf("replacement mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestInject(t *testing.T) {
	article := model.NewArticle(map[string]string{"title": "Episode 42 release"})
	defs := []model.CustomPlaceholder{
		{ReferenceName: "ep", SourceField: "title", Steps: []model.PlaceholderStep{regexStep(`\d+`, "", "NUM")}},
	}

	got, err := Inject(article, defs)
	if err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if diff := cmp.Diff("Episode NUM release", got.Value("custom::ep")); diff != "" {
		t.Errorf("custom value mismatch (-want +got):\n%s", diff)
	}
	if _, ok := article.Get("custom::ep"); ok {
		t.Error("Inject mutated the source article")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		def     model.CustomPlaceholder
		wantErr bool
	}{
		{name: "valid", def: model.CustomPlaceholder{ReferenceName: "a", Steps: []model.PlaceholderStep{regexStep(`\d`, "i", "")}}},
		{name: "empty name", def: model.CustomPlaceholder{}, wantErr: true},
		{name: "bad regex", def: model.CustomPlaceholder{ReferenceName: "a", Steps: []model.PlaceholderStep{regexStep(`(`, "", "")}}, wantErr: true},
		{name: "unknown step", def: model.CustomPlaceholder{ReferenceName: "a", Steps: []model.PlaceholderStep{{Type: "DATE_FORMAT"}}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.def)
			if diff := cmp.Diff(tt.wantErr, err != nil); diff != "" {
				t.Errorf("Validate() error mismatch (-want +got):\n%s\nerr: %v", diff, err)
			}
		})
	}
}
