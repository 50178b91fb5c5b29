package dub

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	type test struct {
		input string
		want  Command
	}
	tests := []test{
		{
			input: "A '1",
			want: Command{
				Name: Identifier("A"),
				Args: []Node{
					MatchExpr{
						matchers: []matchItem{
							{level: 0, matcher: listMatch{1}},
						},
					},
				},
			},
		},
		{
			input: "A '*/*",
			want: Command{
				Name: Identifier("A"),
				Args: []Node{
					MatchExpr{
						matchers: []matchItem{
							{level: 0, matcher: matchAll},
							{level: 1, matcher: matchAll},
						},
					},
				},
			},
		},
		{
			input: "A '*//3,4",
			want: Command{
				Name: Identifier("A"),
				Args: []Node{
					MatchExpr{
						matchers: []matchItem{
							{level: 0, matcher: matchAll},
							{level: 2, matcher: listMatch{3, 4}},
						},
					},
				},
			},
		},
		{
			input: "A '1,2//3:4",
			want: Command{
				Name: Identifier("A"),
				Args: []Node{
					MatchExpr{
						matchers: []matchItem{
							{level: 0, matcher: listMatch{1, 2}},
							{level: 2, matcher: rangeMatch{start: 3, end: 4}},
						},
					},
				},
			},
		},
		{
			input: `load "a/file.wav"`,
			want: Command{
				Name: Identifier("load"),
				Args: []Node{String("a/file.wav")},
			},
		},
		{
			input: `load ""`,
			want: Command{
				Name: Identifier("load"),
				Args: []Node{String("")},
			},
		},
	}
	for _, test := range tests {
		t.Log(test.input)
		got, err := Parse(test.input)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(test.want, got) {
			t.Errorf("\nwant: %+v\ngot:  %+v", test.want, got)
		}
	}
}

func TestParseLine(t *testing.T) {
	got, err := ParseLine(`tempo 90; pattern 1 "kick" '2,4 ;`)
	if err != nil {
		t.Fatal(err)
	}
	want := []Command{
		{Name: "tempo", Args: []Node{Int(90)}},
		{Name: "pattern", Args: []Node{
			Int(1),
			String("kick"),
			MatchExpr{matchers: []matchItem{{level: 0, matcher: listMatch{2, 4}}}},
		}},
	}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("\nwant: %+v\ngot:  %+v", want, got)
	}

	for _, blank := range []string{"", "   ", "# comment only", ";;"} {
		cmds, err := ParseLine(blank)
		if err != nil {
			t.Fatalf("%q: %v", blank, err)
		}
		if len(cmds) != 0 {
			t.Fatalf("%q: want no commands, got %v", blank, cmds)
		}
	}

	if _, err := Parse("play; stop"); err == nil {
		t.Fatal("want Parse to reject two commands")
	}
	if _, err := ParseLine("1 play"); err == nil {
		t.Fatal("want a command to start with a name")
	}
}

func TestHits(t *testing.T) {
	cmd, err := Parse("pattern '2,4/*")
	if err != nil {
		t.Fatal(err)
	}
	hits, err := Hits(cmd.Args[0].(MatchExpr), 4, 4, 16)
	if err != nil {
		t.Fatal(err)
	}
	if want := []int{4, 6, 12, 14}; !reflect.DeepEqual(want, hits) {
		t.Fatalf("want %v, got %v", want, hits)
	}
	if _, err := Hits(cmd.Args[0].(MatchExpr), 4, 0, 16); err == nil {
		t.Fatal("want invalid meter rejected")
	}
}
