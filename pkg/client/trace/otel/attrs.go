package otel

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/semconv/v1.18.0/httpconv"
)

const (
	maskedAttrValue = "****"
	maskedURLValue  = "...."
	attrTraceID     = attribute.Key("dotcloud.trace_id")
)

type attributes struct {
	config config
	// definitionURL is the redacted URL of the logical request
	definitionURL *url.URL
	// definition attributes for span and metrics
	definition []attribute.KeyValue
	// definitionExtra attributes for span only
	definitionExtra []attribute.KeyValue
	// httpURL is the redacted URL of the last HTTP request, it differs from definitionURL after a redirect
	httpURL *url.URL
	// httpRequest attributes for span and metrics
	httpRequest []attribute.KeyValue
	// httpRequestExtra attributes for span only
	httpRequestExtra []attribute.KeyValue
	// httpResponse attributes for span and metrics
	httpResponse []attribute.KeyValue
	// httpResponseExtra attributes for span only
	httpResponseExtra []attribute.KeyValue
	// httpResponseError attributes for span only
	httpResponseError []attribute.KeyValue
}

func newAttributes(cfg config, method, rawURL string) *attributes {
	out := &attributes{config: cfg}
	reqURL, err := url.Parse(rawURL)
	if err != nil {
		reqURL = &url.URL{Path: rawURL}
	}
	out.definitionURL = out.redactURL(reqURL)

	out.definition = append([]attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.url", mustURLPathUnescape(out.definitionURL.String())),
	}, urlAttributes(out.definitionURL)...)
	out.definitionExtra = out.queryAttributes(reqURL)
	return out
}

func (v *attributes) SetFromRequest(req *http.Request) {
	if req == nil {
		v.httpURL = nil
		v.httpRequest = nil
		v.httpRequestExtra = nil
		return
	}

	// Base, the URL is redacted
	redacted := *req
	redacted.URL = v.redactURL(req.URL)
	v.httpURL = redacted.URL
	v.httpRequest = httpconv.ClientRequest(&redacted)

	// Extra
	var attrs []attribute.KeyValue
	for key, values := range req.Header {
		key = strings.ToLower(key)
		if key == "user-agent" {
			// Skip, it is already present from httpconv
			continue
		}
		attrs = append(attrs, attribute.String("http.header."+key, v.headerValue(key, values)))
	}
	sortAttrs(attrs)
	attrs = append(urlAttributes(v.httpURL), attrs...)
	attrs = append(attrs, v.queryAttributes(req.URL)...)
	v.httpRequestExtra = attrs
}

func (v *attributes) SetFromResponse(res *http.Response, err error) {
	if res == nil {
		v.httpResponse = nil
		v.httpResponseExtra = nil
	} else {
		// Base
		v.httpResponse = httpconv.ClientResponse(res)

		// Extra
		var attrs []attribute.KeyValue
		for key, values := range res.Header {
			key = strings.ToLower(key)
			attrs = append(attrs, attribute.String("http.response.header."+key, v.headerValue(key, values)))
		}
		sortAttrs(attrs)
		v.httpResponseExtra = append([]attribute.KeyValue{attribute.Bool("http.is_redirection", isRedirection(res))}, attrs...)
		if traceID := res.Header.Get(v.config.traceIDHeader); traceID != "" {
			v.httpResponseExtra = append(v.httpResponseExtra, attrTraceID.String(traceID))
		}
	}

	// Error
	var netErr net.Error
	errors.As(err, &netErr)
	v.httpResponseError = []attribute.KeyValue{
		attribute.Bool("http.response.isSuccess", isSuccess(res, err)),
		attribute.Bool("http.response.error.has", err != nil),
		attribute.Bool("http.response.error.net", netErr != nil),
		attribute.Bool("http.response.error.timeout", netErr != nil && netErr.Timeout()),
		attribute.Bool("http.response.error.cancelled", errors.Is(err, context.Canceled)),
		attribute.Bool("http.response.error.deadline_exceeded", errors.Is(err, context.DeadlineExceeded)),
	}
}

func (v *attributes) headerValue(key string, values []string) string {
	key = strings.ToLower(key)
	if _, found := v.config.redactedHeaders[key]; found {
		return maskedAttrValue
	}
	value := strings.Join(values, ";")
	// Referer of a redirected request may contain redacted query parameters
	if key == "referer" || key == "location" {
		if u, err := url.Parse(value); err == nil {
			value = v.redactURL(u).String()
		}
	}
	return value
}

// redactURL returns a copy of the URL without user info, redacted query parameters are masked.
func (v *attributes) redactURL(in *url.URL) *url.URL {
	out := *in
	out.User = nil
	if in.RawQuery != "" {
		query := in.Query()
		for key := range query {
			if _, found := v.config.redactedQueryParams[strings.ToLower(key)]; found {
				query.Set(key, maskedURLValue)
			}
		}
		out.RawQuery = query.Encode()
	}
	return &out
}

func (v *attributes) queryAttributes(u *url.URL) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for key, values := range u.Query() {
		value := strings.Join(values, ";")
		if _, found := v.config.redactedQueryParams[strings.ToLower(key)]; found {
			value = maskedAttrValue
		}
		attrs = append(attrs, attribute.String("http.query."+key, value))
	}
	sortAttrs(attrs)
	return attrs
}

func urlAttributes(u *url.URL) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("http.url_details.scheme", u.Scheme),
		attribute.String("http.url_details.path", mustURLPathUnescape(u.Path)),
		attribute.String("http.url_details.host", u.Host),
	}
	if dotPos := strings.IndexByte(u.Host, '.'); dotPos > 0 {
		attrs = append(attrs,
			// Host prefix, e.g. "rest"
			attribute.String("http.url_details.host_prefix", u.Host[:dotPos]),
			// Host suffix, e.g. "dotcloud.com"
			attribute.String("http.url_details.host_suffix", strings.TrimLeft(u.Host[dotPos:], ".")),
		)
	}
	return attrs
}

func sortAttrs(attrs []attribute.KeyValue) {
	sort.SliceStable(attrs, func(i, j int) bool {
		return attrs[i].Key < attrs[j].Key
	})
}

func mustURLPathUnescape(in string) string {
	out, err := url.PathUnescape(in)
	if err != nil {
		return in
	}
	return out
}

func isSuccess(r *http.Response, err error) bool {
	if err != nil {
		return false
	}
	return r != nil && r.StatusCode < http.StatusBadRequest
}

func isRedirection(r *http.Response) bool {
	return r != nil && r.StatusCode >= http.StatusMultipleChoices && r.StatusCode < http.StatusBadRequest
}
