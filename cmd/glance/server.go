package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/chriskillpack/glance"
)

var (
	//go:embed tmpl/*.html
	tmplFS embed.FS

	//go:embed static
	staticFS embed.FS

	indexTmpl   *template.Template
	historyTmpl *template.Template
)

// Form field carrying the uploaded file.
const imageField = "image"

type Server struct {
	hs        *http.Server
	g         *glance.Glance
	maxUpload int64
	logger    *log.Logger
}

func init() {
	funcs := template.FuncMap{"ms": func(d time.Duration) int64 { return d.Milliseconds() }}
	indexTmpl = template.Must(template.New("index.html").Funcs(funcs).ParseFS(tmplFS, "tmpl/index.html", "tmpl/_history.html"))
	historyTmpl = template.Must(template.New("_history.html").Funcs(funcs).ParseFS(tmplFS, "tmpl/_history.html"))
}

func NewServer(g *glance.Glance, port string, maxUpload int64) *Server {
	srv := &Server{
		g:         g,
		maxUpload: maxUpload,
		logger:    log.Default(),
	}

	srv.hs = &http.Server{
		Addr:              net.JoinHostPort("0.0.0.0", port),
		Handler:           srv.serveHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return srv
}

func (s *Server) Start() error {
	return s.hs.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.hs.Shutdown(ctx)
}

func (s *Server) serveHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /static/", http.FileServerFS(staticFS))
	mux.Handle("GET /healthz", s.serveHealth())
	mux.Handle("GET /history", s.serveHistory())
	mux.Handle("POST /analyze", s.serveAnalyze())
	mux.Handle("GET /{$}", s.serveRoot())

	return mux
}

type resultView struct {
	OK       bool
	Message  string
	ImageURL template.URL
	Filename string
	Elapsed  time.Duration
}

type pageData struct {
	Accept    string
	Describer string
	Model     string
	Delay     time.Duration

	UploadError string
	Result      *resultView
	History     []*glance.Analysis
}

func (s *Server) newPageData(ctx context.Context) *pageData {
	pd := &pageData{
		Accept:    strings.Join(glance.AcceptedExtensions(), ","),
		Describer: s.g.Name(),
		Model:     s.g.Model(),
		Delay:     s.g.Requester.Delay,
	}
	history, err := s.g.Ledger.Recent(ctx, 10)
	if err != nil {
		s.logger.Printf("ledger error - %s\n", err)
	}
	pd.History = history
	return pd
}

func (s *Server) render(w http.ResponseWriter, status int, pd *pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := indexTmpl.Execute(w, pd); err != nil {
		s.logger.Printf("template error - %s\n", err)
	}
}

func (s *Server) serveRoot() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		s.render(w, http.StatusOK, s.newPageData(req.Context()))
	}
}

func (s *Server) serveAnalyze() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		filename, img, err := s.readUpload(w, req)
		if err != nil {
			status := http.StatusBadRequest
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				status = http.StatusRequestEntityTooLarge
			}
			s.logger.Printf("upload rejected - %s\n", err)

			pd := s.newPageData(req.Context())
			pd.UploadError = err.Error()
			s.render(w, status, pd)
			return
		}

		s.logger.Printf("analyze - %q %s %d bytes\n", filename, img.MIMEType, len(img.Data))
		res := s.g.Requester.Analyze(req.Context(), img)
		if res.OK() {
			s.logger.Printf("analyze - %q done in %s\n", filename, res.Elapsed)
		} else {
			s.logger.Printf("analyze - %q failed - %s\n", filename, res.Err)
		}

		pd := s.newPageData(req.Context())
		pd.Result = &resultView{
			OK:      res.OK(),
			Message: res.Message(),
			// Built from an accepted image MIME type and base64 only.
			ImageURL: template.URL(res.DataURL),
			Filename: filename,
			Elapsed:  res.Elapsed,
		}
		s.render(w, http.StatusOK, pd)
	}
}

// readUpload streams the multipart body and returns the first file in the
// image field. Parts are read straight into memory; ParseMultipartForm is
// avoided because it spools large files to temporary files on disk.
func (s *Server) readUpload(w http.ResponseWriter, req *http.Request) (string, glance.Image, error) {
	if s.maxUpload > 0 {
		req.Body = http.MaxBytesReader(w, req.Body, s.maxUpload)
	}
	mr, err := req.MultipartReader()
	if err != nil {
		return "", glance.Image{}, fmt.Errorf("reading upload: %w", err)
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return "", glance.Image{}, glance.ErrNoFile
		}
		if err != nil {
			return "", glance.Image{}, fmt.Errorf("reading upload: %w", err)
		}
		if part.FormName() != imageField {
			part.Close()
			continue
		}

		// Reject on name and type before reading any of the payload.
		filename := part.FileName()
		mimeType, err := glance.ValidateUpload(filename, part.Header.Get("Content-Type"))
		if err != nil {
			part.Close()
			return filename, glance.Image{}, err
		}

		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return filename, glance.Image{}, fmt.Errorf("reading upload: %w", err)
		}
		if len(data) == 0 {
			return filename, glance.Image{}, glance.ErrNoFile
		}
		return filename, glance.Image{Data: data, MIMEType: mimeType}, nil
	}
}

func (s *Server) serveHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		history, err := s.g.Ledger.Recent(req.Context(), 10)
		if err != nil {
			s.logger.Printf("ledger error - %s\n", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		historyTmpl.Execute(w, struct{ History []*glance.Analysis }{history})
	}
}

func (s *Server) serveHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()

		if !s.g.IsHealthy(ctx) {
			http.Error(w, fmt.Sprintf("%s unavailable", s.g.Name()), http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintf(w, "ok %s %s\n", s.g.Name(), s.g.Model())
	}
}
