package kserve

import (
	"fmt"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
)

// BackendLabel marks InferenceServices that host a QA backend. Its value is
// the answer backend kind ("llm", "search", "scrape").
const BackendLabel = "qa-environment.giantswarm.io/backend"

// Backend describes a discovered answer backend.
type Backend struct {
	Name        string `json:"name"`
	Kind        string `json:"kind,omitempty"`
	Ready       bool   `json:"ready"`
	EndpointURL string `json:"endpoint_url,omitempty"`
	ModelFormat string `json:"model_format,omitempty"`
	StorageURI  string `json:"storage_uri,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	Message     string `json:"message,omitempty"`
}

func backendFrom(isvc *InferenceService, namespace string) Backend {
	b := Backend{
		Name: isvc.Name,
		Kind: isvc.Labels[BackendLabel],
	}
	if !isvc.CreationTimestamp.IsZero() {
		b.CreatedAt = isvc.CreationTimestamp.UTC().Format(time.RFC3339)
	}
	if m := isvc.Spec.Predictor.Model; m != nil {
		b.ModelFormat = m.ModelFormat.Name
		if m.StorageURI != nil {
			b.StorageURI = *m.StorageURI
		}
	}

	if isvc.Status.IsReady() {
		b.Ready = true
		b.EndpointURL = isvc.Status.URL
		if b.EndpointURL == "" {
			b.EndpointURL = EndpointURL(isvc.Name, namespace)
		}
		return b
	}
	b.Message = "pending"
	if c := isvc.Status.readyCondition(); c != nil && c.Message != "" {
		b.Message = c.Message
	}
	return b
}

func fromUnstructured(obj *unstructured.Unstructured) (*InferenceService, error) {
	isvc := &InferenceService{}
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.Object, isvc); err != nil {
		return nil, fmt.Errorf("failed to convert unstructured to InferenceService: %w", err)
	}
	return isvc, nil
}

// sanitizeName maps a user supplied name onto a valid DNS label.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, c := range strings.ToLower(name) {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-':
			b.WriteRune(c)
		case c == '_', c == '.', c == '/', c == '@':
			b.WriteByte('-')
		}
	}
	result := b.String()
	if result != "" && (result[0] < 'a' || result[0] > 'z') {
		result = "m-" + result
	}
	if len(result) > 63 {
		result = result[:63]
	}
	return strings.TrimRight(result, "-")
}

// EndpointURL returns the in-cluster OpenAI-compatible URL of an
// InferenceService.
func EndpointURL(name, namespace string) string {
	return fmt.Sprintf("http://%s.%s.svc.cluster.local/v1", sanitizeName(name), namespace)
}
