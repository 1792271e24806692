/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package telemetry configures OpenTelemetry tracing for the governance
// kernel's demo harness. The kernel components themselves never import
// this package — tracing is wrapped around PlanValidator.Validate and
// ExecutionProxy.Execute by the caller, so a blocked or escalated action
// is traceable end-to-end without the kernel taking on an otel
// dependency of its own.
//
// Custom span attributes use the `legator.` prefix.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "legator.io/governance"

// Tracer returns the package-level tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// InitTraceProvider initialises the OTel trace provider with an OTLP gRPC
// exporter. If endpoint is empty, tracing is disabled (noop provider is
// used). Returns a shutdown function that must be called on application
// exit.
func InitTraceProvider(ctx context.Context, endpoint string, version string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String("legator-governance"),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// --- Span helpers ---

// StartTaskSpan creates the parent span for one GovernedAgent.ExecuteTask
// call.
func StartTaskSpan(ctx context.Context, personaID, planID string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "governance.execute_task",
		trace.WithAttributes(
			attribute.String("legator.persona_id", personaID),
			attribute.String("legator.plan_id", planID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartValidateSpan creates a child span around PlanValidator.Validate.
func StartValidateSpan(ctx context.Context, planID, constraintHash string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "governance.validate",
		trace.WithAttributes(
			attribute.String("legator.plan_id", planID),
			attribute.String("legator.constraint_hash", constraintHash),
		),
	)
}

// EndValidateSpan enriches the validate span with the resulting outcome.
func EndValidateSpan(span trace.Span, outcome string, violationCount int) {
	span.SetAttributes(
		attribute.String("legator.outcome", outcome),
		attribute.Int("legator.violation_count", violationCount),
	)
	span.End()
}

// StartExecuteSpan creates a child span around one ExecutionProxy.Execute
// call.
func StartExecuteSpan(ctx context.Context, category, target string, stepIndex int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "governance.execute_action",
		trace.WithAttributes(
			attribute.String("legator.category", category),
			attribute.String("legator.target", target),
			attribute.Int("legator.step_index", stepIndex),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndExecuteSpan enriches the execute span with the resulting decision.
func EndExecuteSpan(span trace.Span, decision string, blocked bool, violationCodes []string) {
	span.SetAttributes(
		attribute.String("legator.decision", decision),
		attribute.Bool("legator.blocked", blocked),
	)
	if len(violationCodes) > 0 {
		span.SetAttributes(attribute.StringSlice("legator.violation_codes", violationCodes))
	}
	span.End()
}
