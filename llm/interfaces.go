package llm

import "context"

// Client sends a request to a chat model and returns the complete reply.
type Client interface {
	Synchronous(ctx context.Context, req *Request) (*Response, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req *Request) (*Response, error)

// Synchronous implements Client.
func (f ClientFunc) Synchronous(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Middleware decorates Client calls.
type Middleware interface {
	// BeforeRequest may rewrite the request or abort it with an error.
	BeforeRequest(ctx context.Context, req *Request) (*Request, error)
	// AfterResponse may rewrite the response or turn it into an error.
	AfterResponse(ctx context.Context, req *Request, resp *Response) (*Response, error)
	// OnError may replace the error. Returning nil keeps the original.
	OnError(ctx context.Context, req *Request, err error) error
}

// MiddlewareFunc builds a Middleware from optional hooks.
type MiddlewareFunc struct {
	BeforeRequestFunc func(ctx context.Context, req *Request) (*Request, error)
	AfterResponseFunc func(ctx context.Context, req *Request, resp *Response) (*Response, error)
	OnErrorFunc       func(ctx context.Context, req *Request, err error) error
}

// BeforeRequest calls BeforeRequestFunc if set.
func (f MiddlewareFunc) BeforeRequest(ctx context.Context, req *Request) (*Request, error) {
	if f.BeforeRequestFunc != nil {
		return f.BeforeRequestFunc(ctx, req)
	}
	return req, nil
}

// AfterResponse calls AfterResponseFunc if set.
func (f MiddlewareFunc) AfterResponse(ctx context.Context, req *Request, resp *Response) (*Response, error) {
	if f.AfterResponseFunc != nil {
		return f.AfterResponseFunc(ctx, req, resp)
	}
	return resp, nil
}

// OnError calls OnErrorFunc if set.
func (f MiddlewareFunc) OnError(ctx context.Context, req *Request, err error) error {
	if f.OnErrorFunc != nil {
		return f.OnErrorFunc(ctx, req, err)
	}
	return err
}

// WrapWithMiddleware returns a Client that runs middleware around client.
// BeforeRequest hooks run in order, AfterResponse hooks in reverse.
func WrapWithMiddleware(client Client, middleware ...Middleware) Client {
	if len(middleware) == 0 {
		return client
	}
	return &clientWithMiddleware{client: client, middleware: middleware}
}

type clientWithMiddleware struct {
	client     Client
	middleware []Middleware
}

func (c *clientWithMiddleware) Synchronous(ctx context.Context, req *Request) (*Response, error) {
	for _, mw := range c.middleware {
		var err error
		req, err = mw.BeforeRequest(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	resp, err := c.client.Synchronous(ctx, req)
	if err != nil {
		for _, mw := range c.middleware {
			if replaced := mw.OnError(ctx, req, err); replaced != nil {
				err = replaced
			}
		}
		return nil, err
	}

	for i := len(c.middleware) - 1; i >= 0; i-- {
		resp, err = c.middleware[i].AfterResponse(ctx, req, resp)
		if err != nil {
			return nil, err
		}
	}
	return resp, nil
}

var _ Client = (*clientWithMiddleware)(nil)
