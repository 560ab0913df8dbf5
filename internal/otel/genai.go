package otel

import (
	"go.opentelemetry.io/otel/attribute"
)

// Reasoning-call attributes follow the OpenTelemetry GenAI conventions so
// spans line up with other LLM tooling.
const (
	GenAISystem               = attribute.Key("gen_ai.system")
	GenAIRequestModel         = attribute.Key("gen_ai.request.model")
	GenAIRequestTemperature   = attribute.Key("gen_ai.request.temperature")
	GenAIRequestMaxTokens     = attribute.Key("gen_ai.request.max_tokens")
	GenAIUsageInputTokens     = attribute.Key("gen_ai.usage.input_tokens")
	GenAIUsageOutputTokens    = attribute.Key("gen_ai.usage.output_tokens")
	GenAIResponseFinishReason = attribute.Key("gen_ai.response.finish_reason")
	GenAIResponseID           = attribute.Key("gen_ai.response.id")
)

// Pipeline attributes shared by the escalation, reasoning and notify packages.
const (
	RunID          = attribute.Key("safeops.run_id")
	FrameID        = attribute.Key("safeops.frame_id")
	ViolationType  = attribute.Key("safeops.violation_type")
	DetectionCount = attribute.Key("safeops.detection_count")
	ErrorKind      = attribute.Key("safeops.error_kind")
	Attempt        = attribute.Key("safeops.attempt")
)

// LLMRequestAttributes describes an outgoing completion request.
func LLMRequestAttributes(system, model string, temperature float64, maxTokens int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		GenAISystem.String(system),
		GenAIRequestModel.String(model),
		GenAIRequestTemperature.Float64(temperature),
	}
	if maxTokens > 0 {
		attrs = append(attrs, GenAIRequestMaxTokens.Int(maxTokens))
	}
	return attrs
}

// LLMUsageAttributes reports token usage.
func LLMUsageAttributes(inputTokens, outputTokens int) []attribute.KeyValue {
	return []attribute.KeyValue{
		GenAIUsageInputTokens.Int(inputTokens),
		GenAIUsageOutputTokens.Int(outputTokens),
	}
}

// LLMResponseAttributes identifies the completion; empty fields are omitted.
func LLMResponseAttributes(id, finishReason string) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if id != "" {
		attrs = append(attrs, GenAIResponseID.String(id))
	}
	if finishReason != "" {
		attrs = append(attrs, GenAIResponseFinishReason.String(finishReason))
	}
	return attrs
}
