package observability

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/vibek01/ECOM-D1/internal/platform/requestctx"
)

const (
	cloudTraceHeader = "X-Cloud-Trace-Context"
	tracerName       = "github.com/vibek01/ECOM-D1/internal/platform/observability"
)

// TraceMiddleware starts a server span per request and stores trace metadata on the request context.
// A Cloud Trace header wins over W3C traceparent when both are present.
func TraceMiddleware(projectID string) func(http.Handler) http.Handler {
	tracer := otel.Tracer(tracerName)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			info, parent, ok := parseCloudTraceContext(r.Header.Get(cloudTraceHeader))
			if ok {
				ctx = trace.ContextWithRemoteSpanContext(ctx, parent)
			} else {
				ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(r.Header))
			}

			ctx, span := tracer.Start(ctx, r.Method+" "+requestPath(r),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(requestAttributes(r)...),
			)
			defer span.End()

			sc := span.SpanContext()
			info = requestctx.TraceInfo{
				TraceID:   sc.TraceID().String(),
				SpanID:    sc.SpanID().String(),
				Sampled:   sc.IsSampled(),
				ProjectID: projectID,
			}
			if header := formatCloudTraceHeader(info); header != "" {
				w.Header().Set(cloudTraceHeader, header)
			}
			next.ServeHTTP(w, r.WithContext(requestctx.WithTrace(ctx, info)))
		})
	}
}

// parseCloudTraceContext reads "TRACE_ID/SPAN_ID;o=OPTIONS".
func parseCloudTraceContext(header string) (requestctx.TraceInfo, trace.SpanContext, bool) {
	traceHex, rest, found := strings.Cut(strings.TrimSpace(header), "/")
	if !found || len(traceHex) != 32 {
		return requestctx.TraceInfo{}, trace.SpanContext{}, false
	}
	traceID, err := trace.TraceIDFromHex(traceHex)
	if err != nil {
		return requestctx.TraceInfo{}, trace.SpanContext{}, false
	}
	spanPart, options, _ := strings.Cut(rest, ";")
	spanID, ok := parseSpanID(spanPart)
	if !ok {
		return requestctx.TraceInfo{}, trace.SpanContext{}, false
	}

	sampled := sampledOption(options)
	var flags trace.TraceFlags
	if sampled {
		flags = trace.FlagsSampled
	}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: flags,
		Remote:     true,
	})
	return requestctx.TraceInfo{TraceID: traceID.String(), SpanID: spanID.String(), Sampled: sampled}, sc, true
}

// parseSpanID accepts up to 16 hex digits, or a decimal uint64 as older Cloud Trace agents send.
func parseSpanID(value string) (trace.SpanID, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return trace.SpanID{}, false
	}
	if len(value) <= 16 {
		padded := strings.Repeat("0", 16-len(value)) + value
		if raw, err := hex.DecodeString(padded); err == nil {
			var id trace.SpanID
			copy(id[:], raw)
			return id, id.IsValid()
		}
	}
	num, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return trace.SpanID{}, false
	}
	var id trace.SpanID
	binary.BigEndian.PutUint64(id[:], num)
	return id, id.IsValid()
}

func sampledOption(options string) bool {
	for _, segment := range strings.Split(options, ";") {
		if value, ok := strings.CutPrefix(strings.TrimSpace(segment), "o="); ok {
			return value == "1"
		}
	}
	return false
}

func formatCloudTraceHeader(info requestctx.TraceInfo) string {
	if info.TraceID == "" || info.SpanID == "" {
		return ""
	}
	option := 0
	if info.Sampled {
		option = 1
	}
	return fmt.Sprintf("%s/%s;o=%d", info.TraceID, info.SpanID, option)
}

func requestPath(r *http.Request) string {
	if r.URL == nil || r.URL.Path == "" {
		return "/"
	}
	return r.URL.Path
}

func requestAttributes(r *http.Request) []attribute.KeyValue {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	attrs := []attribute.KeyValue{
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.URLScheme(scheme),
		semconv.URLPath(requestPath(r)),
	}
	if r.Host != "" {
		attrs = append(attrs, semconv.ServerAddress(r.Host))
	}
	if ua := r.UserAgent(); ua != "" {
		attrs = append(attrs, semconv.UserAgentOriginal(ua))
	}
	return attrs
}
