package engine

import (
	"context"
	"strings"
	"sync"

	"github.com/SakenW/transhub/internal/ports"
)

// DefaultDebugTemplate is the reply shape of the debug engine. {text} and
// {lang} are substituted per item.
const DefaultDebugTemplate = "Translated({text}) to {lang}"

// Debug is a deterministic in-process engine for development and tests. It
// can inject per-item failures to exercise the worker's retry and
// dead-letter paths.
type Debug struct {
	Template string

	mu        sync.Mutex
	fail      *ports.EngineError
	failCount int // fail this many batches before succeeding; <0 means always
	batches   int
}

func NewDebug(template string) *Debug {
	if template == "" {
		template = DefaultDebugTemplate
	}
	return &Debug{Template: template}
}

func (d *Debug) Name() string { return "debug" }

// FailNext makes the next n batches return err for every item. n < 0 fails
// forever.
func (d *Debug) FailNext(n int, err ports.EngineError) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = &err
	d.failCount = n
}

// Batches reports how many batch calls the engine has served.
func (d *Debug) Batches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.batches
}

func (d *Debug) TranslateBatch(ctx context.Context, texts []string, srcLang, tgtLang string) ([]ports.EngineResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.batches++
	var inject *ports.EngineError
	if d.fail != nil && (d.failCount < 0 || d.failCount > 0) {
		e := *d.fail
		inject = &e
		if d.failCount > 0 {
			d.failCount--
		}
	}
	d.mu.Unlock()

	out := make([]ports.EngineResult, len(texts))
	for i, text := range texts {
		if inject != nil {
			out[i] = ports.EngineResult{Err: inject}
			continue
		}
		s := strings.ReplaceAll(d.Template, "{text}", text)
		s = strings.ReplaceAll(s, "{lang}", tgtLang)
		out[i] = ports.EngineResult{Text: s}
	}
	return out, nil
}
