package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	Fiber = iota
	NetHTTP
)

const formContentType = "application/x-www-form-urlencoded"

// Error types.
var ErrInvalidHandlerType = errors.New("invalid handler type")

// HTTPHandlerOption is a functional option which can be used to pass additional values into
// a new HTTPHandler.
type HTTPHandlerOption func(HTTPHandler) error

// WithHTTPWriterAndRequest is a HTTPHandlerOption which is used to attach a http.ResponseWriter and Request
// to a NetHTTPHandler.
func WithHTTPWriterAndRequest(w http.ResponseWriter, r *http.Request) HTTPHandlerOption {
	return func(h HTTPHandler) error {
		nh, ok := h.(*NetHTTPHandler)
		if !ok {
			return fmt.Errorf("expected NetHTTPHandler type, got %v", reflect.TypeOf(h))
		}

		nh.w = w
		nh.r = r
		return nil
	}
}

// WithFiberHandlerCtx is a HTTPHandlerOption which allows FiberHandler to access the request ctx by attaching
// the passed ctx to the FiberHandler fields.
func WithFiberHandlerCtx(c *fiber.Ctx) HTTPHandlerOption {
	return func(h HTTPHandler) error {
		fh, ok := h.(*FiberHandler)
		if !ok {
			return fmt.Errorf("expected FiberHandler type, got %v", reflect.TypeOf(h))
		}

		fh.ctx = c
		return nil
	}
}

// NewHTTPHandler creates a new HTTPHandler of the specified type, applying the passed options
// to the newly created handler.
func NewHTTPHandler(handlerType int, opts ...HTTPHandlerOption) (HTTPHandler, error) {
	switch handlerType {
	case Fiber:
		return NewFiberHandler(opts...)
	case NetHTTP:
		return NewNetHTTPHandler(opts...)
	default:
		return nil, fmt.Errorf("unable to create newHTTPHandler: %w", ErrInvalidHandlerType)
	}
}

// HTTPHandler is an interface used to abstract the functionality of different HTTP frameworks.
type HTTPHandler interface {
	// Method returns the HTTP method of the request.
	Method() string

	// FormValue returns the value for the given field in a http form if it exists.
	FormValue(string) string

	// Params returns the query parameters of the request together with
	// those of a URL encoded form body, if any.
	Params() (url.Values, error)

	// Header returns the value of the given request header.
	Header(string) string

	// Body returns the request body.
	Body() io.Reader

	// Respond sends a response with the given status code and plain text message.
	Respond(int, string) error

	// JSON sends a response with the given status code and v encoded as JSON.
	JSON(int, any) error

	// Context returns a context value which implements the context.Context interface.
	Context() context.Context
}

// FiberHandler is a fiber based implementation of the HTTPHandler interface.
type FiberHandler struct {
	ctx *fiber.Ctx
}

// NewFiberHandler creates a new FiberHandler with the given options.
func NewFiberHandler(opts ...HTTPHandlerOption) (HTTPHandler, error) {
	h := &FiberHandler{}

	// Apply options.
	for i, opt := range opts {
		err := opt(h)
		if err != nil {
			return nil, fmt.Errorf("error applying option %d: %w", i, err)
		}
	}

	if h.ctx == nil {
		return nil, errors.New("FiberHandler requires a fiber ctx")
	}
	return h, nil
}

// Method implements the HTTPHandler Method method.
func (h *FiberHandler) Method() string {
	return h.ctx.Method()
}

// FormValue implements the HTTPHandler FormValue method by calling the FormValue method
// of the attached *fiber.Ctx.
func (h *FiberHandler) FormValue(key string) string {
	return h.ctx.FormValue(key)
}

// Params implements the HTTPHandler Params method. Repeated keys keep
// all their values, unlike FormValue.
func (h *FiberHandler) Params() (url.Values, error) {
	params, err := url.ParseQuery(string(h.ctx.Request().URI().QueryString()))
	if err != nil {
		return nil, fmt.Errorf("could not parse query: %w", err)
	}
	if !strings.HasPrefix(h.ctx.Get(fiber.HeaderContentType), formContentType) {
		return params, nil
	}
	form, err := url.ParseQuery(string(h.ctx.Body()))
	if err != nil {
		return nil, fmt.Errorf("could not parse form: %w", err)
	}
	for k, vs := range form {
		params[k] = append(vs, params[k]...)
	}
	return params, nil
}

// Header implements the HTTPHandler Header method.
func (h *FiberHandler) Header(key string) string {
	return h.ctx.Get(key)
}

// Body implements the HTTPHandler Body method.
func (h *FiberHandler) Body() io.Reader {
	return bytes.NewReader(h.ctx.Body())
}

// Respond implements the HTTPHandler Respond method.
func (h *FiberHandler) Respond(status int, msg string) error {
	return h.ctx.Status(status).SendString(msg)
}

// JSON implements the HTTPHandler JSON method.
func (h *FiberHandler) JSON(status int, v any) error {
	return h.ctx.Status(status).JSON(v)
}

// Context implements the HTTPHandler Context method by calling the *fiber.Ctx.Context
// method.
func (h *FiberHandler) Context() context.Context {
	return h.ctx.Context()
}

// NetHTTPHandler is a net/http based implementation of the HTTPHandler interface.
type NetHTTPHandler struct {
	w http.ResponseWriter
	r *http.Request
}

// NewNetHTTPHandler creates a new NetHTTPHandler with the passed options.
func NewNetHTTPHandler(opts ...HTTPHandlerOption) (HTTPHandler, error) {
	h := &NetHTTPHandler{}

	// Apply options.
	for i, opt := range opts {
		err := opt(h)
		if err != nil {
			return nil, fmt.Errorf("error applying option %d: %w", i, err)
		}
	}

	if h.w == nil || h.r == nil {
		return nil, errors.New("NetHTTPHandler requires a writer and request")
	}
	return h, nil
}

// Method implements the HTTPHandler Method method.
func (h *NetHTTPHandler) Method() string {
	return h.r.Method
}

// FormValue implements the HTTPHandler FormValue method by calling the FormValue method
// of the attached *http.Request
func (h *NetHTTPHandler) FormValue(key string) string {
	return h.r.FormValue(key)
}

// Params implements the HTTPHandler Params method.
func (h *NetHTTPHandler) Params() (url.Values, error) {
	err := h.r.ParseForm()
	if err != nil {
		return nil, fmt.Errorf("could not parse form: %w", err)
	}
	return h.r.Form, nil
}

// Header implements the HTTPHandler Header method.
func (h *NetHTTPHandler) Header(key string) string {
	return h.r.Header.Get(key)
}

// Body implements the HTTPHandler Body method.
func (h *NetHTTPHandler) Body() io.Reader {
	return h.r.Body
}

// Respond implements the HTTPHandler Respond method.
func (h *NetHTTPHandler) Respond(status int, msg string) error {
	h.w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	h.w.WriteHeader(status)
	if status == http.StatusNoContent || msg == "" {
		return nil
	}
	_, err := io.WriteString(h.w, msg)
	return err
}

// JSON implements the HTTPHandler JSON method.
func (h *NetHTTPHandler) JSON(status int, v any) error {
	h.w.Header().Set("Content-Type", "application/json")
	h.w.WriteHeader(status)
	return json.NewEncoder(h.w).Encode(v)
}

// Context implements the HTTPHandler Context method by calling the *http.Request.Context
// method.
func (h *NetHTTPHandler) Context() context.Context {
	return h.r.Context()
}
