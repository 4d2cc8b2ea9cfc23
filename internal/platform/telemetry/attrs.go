package telemetry

import (
	"strconv"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute helpers keep label keys consistent across instruments.

func backendAttr(backend string) attribute.KeyValue {
	return attribute.String("backend", backend)
}

func layerAttr(layer string) attribute.KeyValue {
	return attribute.String("layer", layer)
}

func methodAttr(method string) attribute.KeyValue {
	return attribute.String("method", method)
}

func pathAttr(path string) attribute.KeyValue {
	return attribute.String("path", path)
}

func resultAttr(result string) attribute.KeyValue {
	return attribute.String("result", result)
}

// status is labeled as a string so dashboards can group on exact codes.
func statusAttr(status int) attribute.KeyValue {
	return attribute.String("status", strconv.Itoa(status))
}
