package tts_test

import (
	"testing"

	"github.com/MrWong99/selene/pkg/provider/tts"
)

func TestNextSegment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		text             string
		wantSeg, wantRest string
	}{
		{
			name:     "too short stays buffered",
			text:     "abc, def.",
			wantSeg:  "",
			wantRest: "abc, def.",
		},
		{
			name:     "short cjk stays buffered",
			text:     "今天天气真不错，",
			wantSeg:  "",
			wantRest: "今天天气真不错，",
		},
		{
			name:     "whole string when it ends in punctuation",
			text:     "今天天气真不错，适合出去玩。",
			wantSeg:  "今天天气真不错，适合出去玩。",
			wantRest: "",
		},
		{
			name:     "longest punctuated prefix wins",
			text:     "今天天气真不错，适合出去玩。我们走吧",
			wantSeg:  "今天天气真不错，适合出去玩。",
			wantRest: "我们走吧",
		},
		{
			name:     "no punctuation keeps buffering",
			text:     "this is a long sentence without any stops",
			wantSeg:  "",
			wantRest: "this is a long sentence without any stops",
		},
		{
			name:     "prefix must exceed ten runes",
			text:     "今天天气真不错，然后呢",
			wantSeg:  "",
			wantRest: "今天天气真不错，然后呢",
		},
		{
			name:     "newline counts as punctuation",
			text:     "first line of text\nsecond",
			wantSeg:  "first line of text\n",
			wantRest: "second",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seg, rest := tts.NextSegment(tt.text)
			if seg != tt.wantSeg {
				t.Errorf("segment = %q, want %q", seg, tt.wantSeg)
			}
			if rest != tt.wantRest {
				t.Errorf("rest = %q, want %q", rest, tt.wantRest)
			}
		})
	}
}

func TestSegmenter_StreamingAccumulation(t *testing.T) {
	t.Parallel()

	var s tts.Segmenter

	// Tokens trickle in; nothing emits until a punctuated prefix is long enough.
	for _, tok := range []string{"今天", "天气", "真不", "错，"} {
		if seg, ok := s.Push(tok); ok {
			t.Fatalf("premature segment %q", seg)
		}
	}
	seg, ok := s.Push("适合出去玩。")
	if !ok {
		t.Fatal("expected a segment once past ten runes")
	}
	if seg != "今天天气真不错，适合出去玩。" {
		t.Errorf("segment = %q", seg)
	}

	// Residual text comes out on flush.
	if _, ok := s.Push("好的"); ok {
		t.Fatal("unexpected segment for residual text")
	}
	if got := s.Flush(); got != "好的" {
		t.Errorf("Flush = %q, want residual text", got)
	}
	if got := s.Flush(); got != "" {
		t.Errorf("second Flush = %q, want empty", got)
	}
}
