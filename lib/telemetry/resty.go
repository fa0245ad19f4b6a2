package telemetry

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentResty attaches a span to every request made by the client.
// Form bodies are recorded with credential fields redacted, since the
// scraper posts passwords to the portal.
func InstrumentResty(client *resty.Client, tracerName string) {
	tracer := otel.Tracer(tracerName)

	client.OnBeforeRequest(func(cli *resty.Client, req *resty.Request) error {
		ctx, _ := tracer.Start(req.Context(), fmt.Sprintf("http %s", req.Method))
		req.SetContext(ctx)
		return nil
	})
	client.OnAfterResponse(onAfterResponse)
	client.OnError(onError)
}

var redactedFormFields = []string{"password"}

func redactForm(form url.Values) string {
	if form == nil {
		return ""
	}
	clone := url.Values{}
	for k, vals := range form {
		clone[k] = vals
	}
	for _, field := range redactedFormFields {
		if clone.Has(field) {
			clone.Set(field, "[redacted]")
		}
	}
	return clone.Encode()
}

func requestAttributes(req *resty.Request) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("http.request.method", req.Method),
		attribute.String("url.full", req.URL),
	}
	if form := redactForm(req.FormData); form != "" {
		attrs = append(attrs, attribute.String("http.request.body", form))
	}
	return attrs
}

func responseAttributes(res *resty.Response) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int("http.response.status_code", res.StatusCode()),
	}
	if location := res.Header().Get("Location"); location != "" {
		attrs = append(attrs, attribute.String("http.response.location", location))
	}
	return attrs
}

func onAfterResponse(_ *resty.Client, res *resty.Response) error {
	span := trace.SpanFromContext(res.Request.Context())
	defer span.End()

	span.SetAttributes(requestAttributes(res.Request)...)
	span.SetAttributes(responseAttributes(res)...)

	if res.StatusCode() >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, res.Status())
	}
	return nil
}

func onError(req *resty.Request, err error) {
	span := trace.SpanFromContext(req.Context())
	defer span.End()

	span.SetAttributes(requestAttributes(req)...)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
