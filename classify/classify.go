package classify

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goliatone/go-clientkit/core"
	goerrors "github.com/goliatone/go-errors"
)

const defaultResponseBodyLimit int64 = 10 << 20 // 10 MiB

type Outcome string

const (
	OutcomeDecoded              Outcome = "decoded"
	OutcomeUnauthorized         Outcome = "unauthorized"
	OutcomeNotFound             Outcome = "not_found"
	OutcomeRetryableUnavailable Outcome = "retryable_unavailable"
	OutcomeUnclassified         Outcome = "unclassified"
)

// Request describes the call a response belongs to.
type Request struct {
	URL     string
	Method  string
	Headers map[string]string
}

type Response struct {
	Status  int
	Headers map[string]string
	Body    io.ReadCloser
}

func ResponseFrom(res core.TransportResponse) Response {
	return Response{Status: res.StatusCode, Headers: res.Headers, Body: res.Body}
}

// APIError is the error envelope remote APIs return on failure.
type APIError struct {
	Error   string `json:"error"`
	Status  int    `json:"status"`
	Message string `json:"message"`
}

type Decoder interface {
	Decode(body []byte, target any) error
}

type JSONDecoder struct{}

func (JSONDecoder) Decode(body []byte, target any) error {
	return json.Unmarshal(body, target)
}

type Result struct {
	Outcome     Outcome
	Payload     any
	Status      int
	Body        []byte
	Diagnostics map[string]any
}

// Err maps the outcome to the error taxonomy. Decoded results without an
// API error envelope return nil.
func (r Result) Err() error {
	switch r.Outcome {
	case OutcomeDecoded:
		apiErr, ok := r.Payload.(*APIError)
		if !ok || apiErr == nil {
			return nil
		}
		message := strings.TrimSpace(apiErr.Message)
		if message == "" {
			message = strings.TrimSpace(apiErr.Error)
		}
		if message == "" {
			message = http.StatusText(r.Status)
		}
		return core.NewError("classify: "+message, goerrors.CategoryExternal, core.ErrorAPI, map[string]any{
			"status":  r.Status,
			"error":   apiErr.Error,
			"message": apiErr.Message,
		}).WithCode(r.Status)
	case OutcomeUnauthorized:
		return core.NewError("classify: unauthorized", goerrors.CategoryAuth, core.ErrorUnauthorized, r.Diagnostics).
			WithCode(http.StatusUnauthorized)
	case OutcomeNotFound:
		return core.NewError("classify: not found", goerrors.CategoryNotFound, core.ErrorNotFound, r.Diagnostics).
			WithCode(http.StatusNotFound)
	case OutcomeRetryableUnavailable:
		err := goerrors.NewRetryable("classify: service unavailable", goerrors.CategoryExternal).
			WithCode(http.StatusServiceUnavailable).
			WithTextCode(core.ErrorServiceUnavailable)
		if len(r.Diagnostics) > 0 {
			err.WithMetadata(r.Diagnostics)
		}
		return err
	case OutcomeUnclassified:
		metadata := cloneDiagnostics(r.Diagnostics)
		metadata["status"] = r.Status
		return core.NewError(fmt.Sprintf("classify: unclassified response with status %d", r.Status), goerrors.CategoryExternal, core.ErrorUnclassifiedResponse, metadata).
			WithCode(http.StatusBadGateway)
	default:
		return core.NewError("classify: unknown outcome", goerrors.CategoryInternal, core.ErrorInternal, map[string]any{
			"outcome": string(r.Outcome),
		})
	}
}

type Classifier struct {
	Decoder              Decoder
	MaxResponseBodyBytes int64
}

type Option func(*Classifier)

func WithDecoder(decoder Decoder) Option {
	return func(c *Classifier) {
		if decoder != nil {
			c.Decoder = decoder
		}
	}
}

func WithMaxResponseBodyBytes(limit int64) Option {
	return func(c *Classifier) {
		if limit > 0 {
			c.MaxResponseBodyBytes = limit
		}
	}
}

func New(opts ...Option) *Classifier {
	c := &Classifier{
		Decoder:              JSONDecoder{},
		MaxResponseBodyBytes: defaultResponseBodyLimit,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Classify consumes and closes the response body, then maps the status to an
// outcome. Successful bodies decode into target; other statuses decode into
// an APIError.
func (c *Classifier) Classify(req Request, res Response, target any) Result {
	body, readErr := c.readBody(res.Body)

	switch res.Status {
	case http.StatusUnauthorized:
		return Result{Outcome: OutcomeUnauthorized, Status: res.Status, Body: body, Diagnostics: diagnostics(req, body)}
	case http.StatusNotFound:
		return Result{Outcome: OutcomeNotFound, Status: res.Status, Body: body, Diagnostics: diagnostics(req, body)}
	case http.StatusServiceUnavailable:
		return Result{Outcome: OutcomeRetryableUnavailable, Status: res.Status, Body: body, Diagnostics: diagnostics(req, body)}
	}

	unclassified := Result{Outcome: OutcomeUnclassified, Status: res.Status, Body: body, Diagnostics: diagnostics(req, body)}
	if readErr != nil {
		unclassified.Diagnostics["readError"] = readErr.Error()
		return unclassified
	}

	if res.Status >= 200 && res.Status < 300 {
		if target == nil || len(body) == 0 {
			return Result{Outcome: OutcomeDecoded, Payload: target, Status: res.Status, Body: body}
		}
		if err := c.decoder().Decode(body, target); err != nil {
			return unclassified
		}
		return Result{Outcome: OutcomeDecoded, Payload: target, Status: res.Status, Body: body}
	}

	apiErr := &APIError{}
	if err := c.decoder().Decode(body, apiErr); err != nil {
		return unclassified
	}
	if apiErr.Status == 0 {
		apiErr.Status = res.Status
	}
	return Result{Outcome: OutcomeDecoded, Payload: apiErr, Status: res.Status, Body: body}
}

// Decode fills target from the body of a successful result. Handles call it
// after Dispatch returns, so a call abandoned on timeout never writes to
// caller memory. Other results are returned unchanged.
func (c *Classifier) Decode(req Request, result Result, target any) Result {
	if result.Outcome != OutcomeDecoded || result.Status < 200 || result.Status >= 300 || target == nil {
		return result
	}
	result.Payload = target
	if len(result.Body) == 0 {
		return result
	}
	if err := c.decoder().Decode(result.Body, target); err != nil {
		return Result{Outcome: OutcomeUnclassified, Status: result.Status, Body: result.Body, Diagnostics: diagnostics(req, result.Body)}
	}
	return result
}

func (c *Classifier) decoder() Decoder {
	if c != nil && c.Decoder != nil {
		return c.Decoder
	}
	return JSONDecoder{}
}

func (c *Classifier) readBody(body io.ReadCloser) ([]byte, error) {
	if body == nil {
		return []byte{}, nil
	}
	defer body.Close()
	limit := defaultResponseBodyLimit
	if c != nil && c.MaxResponseBodyBytes > 0 {
		limit = c.MaxResponseBodyBytes
	}
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return data, err
	}
	if int64(len(data)) > limit {
		return data[:limit], fmt.Errorf("classify: response body exceeds limit of %d bytes", limit)
	}
	return data, nil
}

func diagnostics(req Request, body []byte) map[string]any {
	return map[string]any{
		core.DiagnosticRequestURL:     req.URL,
		core.DiagnosticRequestMethod:  strings.ToUpper(strings.TrimSpace(req.Method)),
		core.DiagnosticRequestHeaders: core.RedactHeaders(req.Headers),
		core.DiagnosticResponseBody:   string(body),
	}
}

func cloneDiagnostics(input map[string]any) map[string]any {
	out := make(map[string]any, len(input)+1)
	for key, value := range input {
		out[key] = value
	}
	return out
}
