// Package otel exports install traces over OTLP. Each command opens a root span
// and the installer hangs library, processor and mirror spans beneath it.
// Nothing is exported unless --otel is given.
package otel

import (
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/cloudloader/cloudinstaller/internal/version"
)

// Exporter protocols accepted by --otel-protocol.
const (
	ProtocolHTTP = "otlphttp"
	ProtocolGRPC = "otlpgrpc"
)

// Collector addresses used when neither --otel-endpoint nor
// OTEL_EXPORTER_OTLP_ENDPOINT names one.
const (
	defaultHTTPEndpoint = "http://localhost:4318"
	defaultGRPCEndpoint = "localhost:4317"
)

// Config selects the collector that receives install traces.
type Config struct {
	Enabled     bool
	Endpoint    string
	Protocol    string
	Insecure    bool // plaintext connection to the collector
	ServiceName string
	SampleRatio float64 // fraction of installs traced
}

// DefaultConfig traces every install once enabled.
func DefaultConfig() Config {
	return Config{
		Protocol:    ProtocolHTTP,
		ServiceName: version.Name,
		SampleRatio: 1.0,
	}
}

// Validate rejects an unknown protocol or a ratio outside [0, 1]. A disabled
// Config is not checked.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Protocol != ProtocolHTTP && c.Protocol != ProtocolGRPC {
		return fmt.Errorf("otel: unknown protocol %q (want %s or %s)", c.Protocol, ProtocolHTTP, ProtocolGRPC)
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("otel: sample ratio %v is outside [0, 1]", c.SampleRatio)
	}
	return nil
}

func (c Config) endpoint(getenv func(string) string) string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	if env := getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); env != "" {
		return env
	}
	if c.Protocol == ProtocolGRPC {
		return defaultGRPCEndpoint
	}
	return defaultHTTPEndpoint
}

func (c Config) sampler() sdktrace.Sampler {
	switch {
	case c.SampleRatio >= 1:
		return sdktrace.AlwaysSample()
	case c.SampleRatio <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.SampleRatio))
	}
}
