package kserve

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// InferenceService is the subset of serving.kserve.io/v1beta1
// InferenceService read during backend discovery.
type InferenceService struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   InferenceServiceSpec   `json:"spec,omitempty"`
	Status InferenceServiceStatus `json:"status,omitempty"`
}

type InferenceServiceSpec struct {
	Predictor PredictorSpec `json:"predictor"`
}

type PredictorSpec struct {
	Model *PredictorModel `json:"model,omitempty"`
}

type PredictorModel struct {
	ModelFormat ModelFormat `json:"modelFormat"`
	Runtime     *string     `json:"runtime,omitempty"`
	StorageURI  *string     `json:"storageUri,omitempty"`
}

type ModelFormat struct {
	Name    string  `json:"name"`
	Version *string `json:"version,omitempty"`
}

type InferenceServiceStatus struct {
	Conditions []StatusCondition `json:"conditions,omitempty"`
	// URL is assigned by the controller once routing is set up.
	URL string `json:"url,omitempty"`
}

// StatusCondition follows the Knative condition schema.
type StatusCondition struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// IsReady reports whether the Ready condition is True.
func (s *InferenceServiceStatus) IsReady() bool {
	c := s.readyCondition()
	return c != nil && c.Status == "True"
}

func (s *InferenceServiceStatus) readyCondition() *StatusCondition {
	for i := range s.Conditions {
		if s.Conditions[i].Type == "Ready" {
			return &s.Conditions[i]
		}
	}
	return nil
}
