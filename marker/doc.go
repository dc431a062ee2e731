// Package marker provides a Go library for marking student essays against a
// rubric using a large-language-model text-generation endpoint.
//
// The library builds a fixed feedback prompt for every essay, sends it to the
// configured model, persists each critique to disk and finally produces one
// class-level summary from all of the individual critiques.
//
// Features:
//   - Sequential batch marking with per-essay failure isolation
//   - Amazon Bedrock (Anthropic messages) and OpenAI-compatible backends
//   - Blocking and streaming generation behind one Generator interface
//   - Retry logic with exponential, constant or fibonacci backoff
//   - Circuit breaker pattern for resilience
//   - Prometheus metrics and OpenTelemetry spans
//   - File-based persistence of feedback under an output directory
//
// Basic usage:
//
//	cfg := marker.NewDefaultConfig()
//	gen, err := marker.NewGenerator(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	m := marker.NewMarker(gen, marker.NewFeedbackStore(afero.NewOsFs(), cfg.OutputDir), cfg)
//	run, err := m.Run(ctx, essays, &rubric, guidance)
package marker
