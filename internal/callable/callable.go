// Package callable implements the Firebase callable-function wire protocol on
// top of the relay handler.
package callable

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/cruxstack/form-mail-relay-go/internal/appcheck"
	"github.com/cruxstack/form-mail-relay-go/internal/relay"
	"github.com/cruxstack/form-mail-relay-go/internal/types"
)

// MaxBodyBytes bounds the accepted request body.
const MaxBodyBytes = 1 << 20

// Canonical status strings of the callable error envelope.
const (
	StatusInvalidArgument    = "INVALID_ARGUMENT"
	StatusFailedPrecondition = "FAILED_PRECONDITION"
	StatusInternal           = "INTERNAL"
	StatusUnknown            = "UNKNOWN"
)

// SubmissionHandler is satisfied by *relay.Relay.
type SubmissionHandler interface {
	Handle(ctx context.Context, s types.Submission, app *types.AppContext) (types.Acknowledgement, error)
}

type Request struct {
	Method  string
	Headers http.Header
	Body    []byte
}

type Response struct {
	StatusCode int
	Body       []byte
}

type requestEnvelope struct {
	Data *types.Submission `json:"data"`
}

type resultEnvelope struct {
	Result any `json:"result"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Handler struct {
	Relay    SubmissionHandler
	Verifier appcheck.Verifier
	Logger   *slog.Logger
}

func NewHandler(r SubmissionHandler, v appcheck.Verifier) *Handler {
	return &Handler{Relay: r, Verifier: v}
}

// Invoke decodes one callable request, verifies the App Check token and runs
// the relay. It always returns a well-formed callable response.
func (h *Handler) Invoke(ctx context.Context, req Request) Response {
	if req.Method != http.MethodPost {
		return errorResponse(http.StatusMethodNotAllowed, StatusInvalidArgument, "Bad Request")
	}

	if mt, _, err := mime.ParseMediaType(req.Headers.Get("Content-Type")); err != nil || mt != "application/json" {
		h.logger().WarnContext(ctx, "invalid content type", "content_type", req.Headers.Get("Content-Type"))
		return errorResponse(http.StatusBadRequest, StatusInvalidArgument, "Bad Request")
	}

	var env requestEnvelope
	if err := json.Unmarshal(req.Body, &env); err != nil || env.Data == nil {
		h.logger().WarnContext(ctx, "request body is missing data", "error", err)
		return errorResponse(http.StatusBadRequest, StatusInvalidArgument, "Bad Request")
	}

	app := h.verify(ctx, appcheck.TokenFromHeader(req.Headers))

	ack, err := h.Relay.Handle(ctx, *env.Data, app)
	if err != nil {
		return fromError(err)
	}

	body, err := json.Marshal(resultEnvelope{Result: ack})
	if err != nil {
		return errorResponse(http.StatusInternalServerError, StatusInternal, "INTERNAL")
	}
	return Response{StatusCode: http.StatusOK, Body: body}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	var resp Response
	if err != nil {
		resp = errorResponse(http.StatusBadRequest, StatusInvalidArgument, "Bad Request")
	} else {
		resp = h.Invoke(r.Context(), Request{Method: r.Method, Headers: r.Header, Body: body})
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

// verify returns nil when the token is missing or rejected; the relay turns
// that into failed-precondition.
func (h *Handler) verify(ctx context.Context, token string) *types.AppContext {
	if h.Verifier == nil || token == "" {
		return nil
	}
	app, err := h.Verifier.Verify(ctx, token)
	if err != nil {
		h.logger().WarnContext(ctx, "app check verification failed", "error", err)
		return nil
	}
	return app
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func fromError(err error) Response {
	re, ok := relay.AsError(err)
	if !ok {
		return errorResponse(http.StatusInternalServerError, StatusInternal, "INTERNAL")
	}
	switch re.Kind {
	case relay.KindFailedPrecondition:
		return errorResponse(http.StatusBadRequest, StatusFailedPrecondition, re.Message)
	case relay.KindUnknown:
		return errorResponse(http.StatusInternalServerError, StatusUnknown, re.Message)
	default:
		return errorResponse(http.StatusInternalServerError, StatusInternal, "INTERNAL")
	}
}

func errorResponse(code int, status, message string) Response {
	body, err := json.Marshal(errorEnvelope{Error: errorBody{Status: status, Message: message}})
	if err != nil {
		body = []byte(`{"error":{"status":"INTERNAL","message":"INTERNAL"}}`)
	}
	return Response{StatusCode: code, Body: body}
}

// ErrorStatus extracts the canonical status from a callable response body.
func ErrorStatus(body []byte) (string, string, error) {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", "", err
	}
	if env.Error.Status == "" {
		return "", "", errors.New("response has no error")
	}
	return env.Error.Status, env.Error.Message, nil
}
