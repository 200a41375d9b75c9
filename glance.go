package glance

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/chriskillpack/glance/describer"
	"github.com/chriskillpack/glance/internal/llama"
	"github.com/chriskillpack/glance/internal/openrouter"
)

type InitOptions struct {
	OpenRouter bool
	APIKey     string
	BaseURL    string // if empty uses the public OpenRouter API
	Model      string // if empty uses openrouter.DefaultModel
	Prompt     string
	RateLimit  int // requests per minute, 0 uses the default, <0 disables

	LlamaServer string
	LlamaSeed   int

	Delay      time.Duration
	LedgerPath string // if empty uses MemoryLedger

	HttpClient *http.Client // if nil uses http.DefaultClient
}

type Glance struct {
	describer.Describer

	Requester *Requester
	Ledger    *Ledger
}

func Init(ctx context.Context, gio InitOptions) (*Glance, error) {
	httpClient := gio.HttpClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	var n int
	if gio.OpenRouter {
		n++
	}
	if gio.LlamaServer != "" {
		n++
	}
	switch n {
	case 0:
		return nil, fmt.Errorf("no backend selected")
	case 1:
		// no-op
	default:
		return nil, fmt.Errorf("multiple backends selected, only one allowed")
	}

	g := &Glance{}
	if gio.OpenRouter {
		d, err := openrouter.Init(openrouter.Options{
			APIKey:     gio.APIKey,
			BaseURL:    gio.BaseURL,
			Model:      gio.Model,
			Prompt:     gio.Prompt,
			RateLimit:  gio.RateLimit,
			Referer:    "https://github.com/chriskillpack/glance",
			Title:      "glance",
			HttpClient: httpClient,
		})
		if err != nil {
			return nil, err
		}
		g.Describer = d
	} else {
		g.Describer = llama.Init(gio.LlamaServer, gio.LlamaSeed, httpClient)
	}

	ledgerPath := gio.LedgerPath
	if ledgerPath == "" {
		ledgerPath = MemoryLedger
	}
	ledger, err := NewLedger(ctx, ledgerPath)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	g.Ledger = ledger
	g.Requester = NewRequester(g.Describer, ledger, gio.Delay)

	return g, nil
}

func (g *Glance) Close() {
	g.Ledger.Close()
}
