package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MrWong99/selene/pkg/provider/control"
	"github.com/MrWong99/selene/pkg/provider/tts"
)

func TestSynthesize_StreamsSegments(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		genTexts []string
		refSeen  bool
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
			return
		}
		var params requestParams
		if err := json.Unmarshal([]byte(r.FormValue("params")), &params); err != nil {
			t.Errorf("unmarshal params: %v", err)
			return
		}
		mu.Lock()
		genTexts = append(genTexts, params.GenText)
		if _, ok := r.MultipartForm.File["ref_audio"]; ok {
			refSeen = true
		}
		mu.Unlock()

		if !params.Stream || !params.TextFrontend || params.Dtype != "np.int16" {
			t.Errorf("fixed params wrong: %+v", params)
		}
		if params.SessionID != "sess1" || params.ResponseID == "" {
			t.Errorf("ids wrong: %+v", params)
		}
		if params.Voice != "child" || params.Speed != "fast" || params.Emotion != "happy" {
			t.Errorf("control hints wrong: %+v", params)
		}
		if params.RefText != "what I said" {
			t.Errorf("ref_text = %q", params.RefText)
		}

		w.Write(bytes.Repeat([]byte{0xAB}, 6000))
	}))
	defer srv.Close()

	c, err := New(srv.URL, "sess1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	text := make(chan string, 3)
	text <- "今天天气真不错，适合出去玩。"
	text <- "再见"
	close(text)

	ctrl := control.Bundle{Emotion: "happy", Speed: "fast", Timbre: "child"}
	ref := tts.Reference{Speech: []byte{1, 2, 3, 4}, Transcript: "what I said"}

	out, err := c.Synthesize(context.Background(), text, ctrl, ref)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	total := 0
	for chunk := range out {
		total += len(chunk)
	}

	mu.Lock()
	defer mu.Unlock()
	// One request for the punctuated sentence, one for the flushed residual.
	if len(genTexts) != 2 {
		t.Fatalf("requests = %d (%q), want 2", len(genTexts), genTexts)
	}
	if genTexts[0] != "今天天气真不错，适合出去玩。" || genTexts[1] != "再见" {
		t.Errorf("gen_texts = %q", genTexts)
	}
	if !refSeen {
		t.Error("ref_audio file missing")
	}
	if total != 12000 {
		t.Errorf("streamed bytes = %d, want 12000", total)
	}
}

func TestSynthesize_ForceDefault(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
			return
		}
		var params requestParams
		if err := json.Unmarshal([]byte(r.FormValue("params")), &params); err != nil {
			t.Errorf("unmarshal params: %v", err)
			return
		}
		if params.Voice != "default" || params.Speed != "default" || params.Emotion != "default" {
			t.Errorf("hints not pinned: %+v", params)
		}
		w.Write([]byte{0, 0})
	}))
	defer srv.Close()

	c, err := New(srv.URL, "sess2", WithForceDefault(true))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	text := make(chan string, 1)
	text <- "pin everything to defaults please."
	close(text)

	out, err := c.Synthesize(context.Background(), text, control.Bundle{Emotion: "angry", Speed: "slow", Timbre: "elder"}, tts.Reference{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	for range out {
	}
}
