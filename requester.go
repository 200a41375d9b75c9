package glance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/chriskillpack/glance/describer"
)

// DefaultDelay is the pause before each request. It was introduced to give an
// uploaded image reference time to propagate; data URLs are inline so it may
// not be needed, hence it is configurable and zero disables it.
const DefaultDelay = 5 * time.Second

// RequestFailure wraps every error produced while asking a backend to
// describe an image: transport errors, HTTP errors and unexpected responses.
type RequestFailure struct {
	Backend string
	Err     error
}

func (e *RequestFailure) Error() string {
	return fmt.Sprintf("%s request failed: %s", e.Backend, e.Err)
}

func (e *RequestFailure) Unwrap() error { return e.Err }

// Result is the outcome of a single analysis. Exactly one of Description and
// Err is meaningful.
type Result struct {
	Description string
	Err         error

	DataURL   string // reused to redisplay the analyzed image
	Describer string
	Elapsed   time.Duration // request time, excluding the delay
}

func (r Result) OK() bool { return r.Err == nil }

// Message is the text shown to the user.
func (r Result) Message() string {
	if r.Err != nil {
		return "Error fetching image info: " + r.Err.Error()
	}
	return r.Description
}

// Requester turns an uploaded image into a description using a Describer.
type Requester struct {
	d      describer.Describer
	ledger *Ledger // optional

	// Delay is waited out before every request, see DefaultDelay.
	Delay time.Duration
	// Wait blocks for the given duration, defaults to time.Sleep.
	Wait func(time.Duration)

	logger *log.Logger
	now    func() time.Time
}

func NewRequester(d describer.Describer, ledger *Ledger, delay time.Duration) *Requester {
	return &Requester{
		d:      d,
		ledger: ledger,
		Delay:  delay,
		Wait:   time.Sleep,
		logger: log.Default(),
		now:    time.Now,
	}
}

// Analyze blocks for the configured delay and then issues exactly one
// describe request. Once started neither step is abandoned if ctx is
// cancelled; the backend's HTTP client timeout bounds the request instead.
func (r *Requester) Analyze(ctx context.Context, img Image) Result {
	res := Result{Describer: r.d.Name()}
	if img.MIMEType == "" {
		res.Err = fmt.Errorf("%w: empty MIME type", ErrUnsupportedType)
		return res
	}

	res.DataURL = img.DataURL()
	ctx = context.WithoutCancel(ctx)

	if r.Delay > 0 {
		r.Wait(r.Delay)
	}

	start := r.now()
	desc, err := r.d.DescribeImage(ctx, res.DataURL)
	res.Elapsed = r.now().Sub(start)
	if err != nil {
		res.Err = &RequestFailure{Backend: r.d.Name(), Err: err}
	} else {
		res.Description = desc
	}

	r.record(ctx, img, start, res)
	return res
}

func (r *Requester) record(ctx context.Context, img Image, at time.Time, res Result) {
	if r.ledger == nil {
		return
	}

	a := &Analysis{
		RequestedAt: at,
		MIMEType:    img.MIMEType,
		SizeBytes:   len(img.Data),
		Describer:   r.d.Name(),
		Model:       r.d.Model(),
		Succeeded:   res.OK(),
		Duration:    res.Elapsed,
	}
	var rf *RequestFailure
	if errors.As(res.Err, &rf) {
		a.Error = rf.Err.Error()
	}
	if err := r.ledger.Record(ctx, a); err != nil {
		// The ledger is informational, the result still stands.
		r.logger.Printf("ledger record error - %s\n", err)
	}
}
