// Package trace extends the httptrace.ClientTrace and adds request/response hooks.
// A ClientTrace factory can be registered in the client.Client by the AndTrace method,
// multiple factories are composed together.
package trace

import (
	"context"
	"net/http"
	"net/http/httptrace"
	"reflect"
)

// Factory creates ClientTrace hooks for a request.
// It is called once per client request, before the request is sent.
type Factory func(ctx context.Context, method, url string) (context.Context, *ClientTrace)

// ClientTrace is a set of hooks to run at various stages of an outgoing request.
type ClientTrace struct {
	httptrace.ClientTrace // native, low level trace
	// HTTPRequestStart is called when the request begins, after authentication. It includes redirects.
	HTTPRequestStart func(request *http.Request)
	// HTTPRequestDone is called when the response headers are received. It includes redirects.
	HTTPRequestDone func(response *http.Response, err error)
	// RequestProcessed is called when the response is classified, result is the client.Response value.
	RequestProcessed func(result any, err error)
}

// Compose modifies t such that it respects the previously-registered hooks in old.
// Hooks from old are called first.
func (t *ClientTrace) Compose(old *ClientTrace) {
	if old == nil {
		return
	}
	compose(reflect.ValueOf(t).Elem(), reflect.ValueOf(old).Elem())
}

// Chain composes two factories, hooks of the first factory are called first.
func Chain(first, second Factory) Factory {
	switch {
	case first == nil:
		return second
	case second == nil:
		return first
	}
	return func(ctx context.Context, method, url string) (context.Context, *ClientTrace) {
		ctx, old := first(ctx, method, url)
		ctx, t := second(ctx, method, url)
		if t == nil {
			return ctx, old
		}
		t.Compose(old)
		return ctx, t
	}
}

func compose(tv, ov reflect.Value) {
	structType := tv.Type()
	for i := 0; i < structType.NumField(); i++ {
		tf := tv.Field(i)
		of := ov.Field(i)

		// Embedded httptrace.ClientTrace
		if tf.Kind() == reflect.Struct {
			compose(tf, of)
			continue
		}

		hookType := tf.Type()
		if hookType.Kind() != reflect.Func || of.IsNil() {
			continue
		}
		if tf.IsNil() {
			tf.Set(of)
			continue
		}

		// Make a copy of tf for tf to call. (Otherwise it
		// creates a recursive call cycle and stack overflows)
		tfCopy := reflect.ValueOf(tf.Interface())
		ofCopy := reflect.ValueOf(of.Interface())
		tf.Set(reflect.MakeFunc(hookType, func(args []reflect.Value) []reflect.Value {
			ofCopy.Call(args)
			return tfCopy.Call(args)
		}))
	}
}
