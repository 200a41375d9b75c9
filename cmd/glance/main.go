package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chriskillpack/glance"
	"github.com/chriskillpack/glance/internal/openrouter"
	"github.com/chriskillpack/glance/internal/secrets"
)

var (
	secretsFile string
	envFile     string
	delay       time.Duration
	model       string
	baseURL     string
	rateLimit   int
	llamaServer string
	llamaSeed   int
	timeout     time.Duration

	port       string
	ledgerPath string
	maxUpload  int64

	rootCmd = &cobra.Command{
		Use:           "glance",
		Short:         "Describe images with a multimodal LLM",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the image upload page",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	describeCmd = &cobra.Command{
		Use:   "describe <image>",
		Short: "Describe a single PNG, JPEG or GIF file",
		Args:  cobra.ExactArgs(1),
		RunE:  runDescribe,
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&secretsFile, "secrets", ".streamlit/secrets.toml", "TOML file holding OPENROUTER_API_KEY")
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file holding OPENROUTER_API_KEY")
	pf.DurationVar(&delay, "delay", glance.DefaultDelay, "Pause before each request, 0 disables")
	pf.StringVar(&model, "model", openrouter.DefaultModel, "OpenRouter model identifier")
	pf.StringVar(&baseURL, "base-url", openrouter.DefaultBaseURL, "OpenAI compatible API base URL")
	pf.IntVar(&rateLimit, "rate-limit", 0, "Requests per minute to OpenRouter, 0 uses the free tier default, -1 disables")
	pf.StringVar(&llamaServer, "llama", "", "Address of running llama server instead of OpenRouter, typically http://localhost:8080")
	pf.IntVar(&llamaSeed, "seed", 385480504, "Random seed to llama")
	pf.DurationVar(&timeout, "timeout", 2*time.Minute, "HTTP timeout for a single describe request")

	serveCmd.Flags().StringVarP(&port, "port", "p", "8080", "Port to listen on")
	serveCmd.Flags().StringVar(&ledgerPath, "ledger", glance.MemoryLedger, "sqlite file for the analysis ledger, metadata only")
	serveCmd.Flags().Int64Var(&maxUpload, "max-upload", 32<<20, "Largest accepted request body in bytes")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(describeCmd)
}

// initGlance loads the credential and selects the backend. A missing
// credential is fatal for the OpenRouter backend.
func initGlance(ctx context.Context, ledger string) (*glance.Glance, error) {
	gio := glance.InitOptions{
		BaseURL:     baseURL,
		Model:       model,
		RateLimit:   rateLimit,
		LlamaServer: llamaServer,
		LlamaSeed:   llamaSeed,
		Delay:       delay,
		LedgerPath:  ledger,
		HttpClient: &http.Client{
			Timeout: timeout,
		},
	}

	if llamaServer == "" {
		s, err := secrets.Load(secrets.Sources{TOMLFile: secretsFile, EnvFile: envFile})
		if err != nil {
			return nil, err
		}
		log.Printf("credential loaded from %s\n", s.Source())
		gio.OpenRouter = true
		gio.APIKey = s.APIKey()
	}

	return glance.Init(ctx, gio)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	g, err := initGlance(ctx, ledgerPath)
	if err != nil {
		return err
	}
	defer g.Close()

	if !g.IsHealthy(ctx) {
		log.Printf("warning - %s is not responding, requests may fail\n", g.Name())
	}

	srv := NewServer(g, port, maxUpload)
	log.Printf("Using describer %s model %s, delay %s\n", g.Name(), g.Model(), delay)
	log.Printf("Listening on %s\n", srv.hs.Addr)

	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if err := srv.Start(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-egctx.Done()
		log.Println("Shutting down")
		shctx, cancel := context.WithTimeout(context.Background(), timeout+delay)
		defer cancel()
		return srv.Shutdown(shctx)
	})

	return eg.Wait()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
