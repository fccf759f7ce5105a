package spawner

import (
	"github.com/viant/spawner/service/event"
	"github.com/viant/spawner/service/executor"
	emem "github.com/viant/spawner/service/executor/memory"
	"github.com/viant/spawner/service/registry"
	"github.com/viant/spawner/service/sandbox"
	"github.com/viant/spawner/tracing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option customises the Service.
type Option func(s *Service)

// WithConfig sets the engine configuration.
func WithConfig(config *Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithExecutor sets an external executor. The caller is responsible for
// delivering its terminal events to HandleCompletion.
func WithExecutor(executor executor.Executor) Option {
	return func(s *Service) {
		s.executor = executor
	}
}

// WithHandler builds the in-process executor around handler; its completions
// are routed to HandleCompletion automatically.
func WithHandler(handler emem.Handler) Option {
	return func(s *Service) {
		s.handler = handler
	}
}

// WithEventListener receives every task lifecycle event: spawned, rejected
// and completed.
func WithEventListener(listener func(*event.Event[any])) Option {
	return func(s *Service) {
		s.listener = listener
	}
}

// WithRegistry sets the task registry; by default an in-memory one is used.
func WithRegistry(registry registry.Registry) Option {
	return func(s *Service) {
		s.registry = registry
	}
}

// WithEvaluator sets the custom merge evaluator; by default a yaegi sandbox
// configured from Config.Merge is used.
func WithEvaluator(evaluator sandbox.Evaluator) Option {
	return func(s *Service) {
		s.evaluator = evaluator
	}
}

// WithTracing configures OpenTelemetry tracing. If outputFile is empty the
// stdout exporter is used; otherwise traces are written to the file.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		if err := tracing.Init(serviceName, serviceVersion, outputFile); err == nil {
			s.tracing = true
		}
	}
}

// WithTracingExporter configures OpenTelemetry tracing with a custom exporter.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		if err := tracing.InitWithExporter(serviceName, serviceVersion, exporter); err == nil {
			s.tracing = true
		}
	}
}
