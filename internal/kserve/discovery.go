// Package kserve discovers QA answer backends served as KServe
// InferenceServices.
package kserve

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

var isvcGVR = schema.GroupVersionResource{
	Group:    "serving.kserve.io",
	Version:  "v1beta1",
	Resource: "inferenceservices",
}

// DefaultReadyTimeout bounds WaitForReady when no timeout is given.
const DefaultReadyTimeout = 10 * time.Minute

// Discovery lists and resolves backends in one namespace.
type Discovery struct {
	client    dynamic.Interface
	namespace string
}

// NewDiscovery builds a Discovery from kubeconfig or the in-cluster config.
func NewDiscovery(namespace, kubeconfig string, inCluster bool) (*Discovery, error) {
	var config *rest.Config
	var err error

	if inCluster {
		config, err = rest.InClusterConfig()
	} else {
		loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
		if kubeconfig != "" {
			loadingRules.ExplicitPath = kubeconfig
		}
		config, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			loadingRules, &clientcmd.ConfigOverrides{},
		).ClientConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes config: %w", err)
	}

	client, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}
	return NewDiscoveryWithClient(client, namespace), nil
}

// NewDiscoveryWithClient wraps an existing dynamic client.
func NewDiscoveryWithClient(client dynamic.Interface, namespace string) *Discovery {
	return &Discovery{client: client, namespace: namespace}
}

// CheckCRDAvailable verifies that the InferenceService CRD is installed.
func (d *Discovery) CheckCRDAvailable(ctx context.Context) error {
	_, err := d.resource().List(ctx, metav1.ListOptions{Limit: 1})
	if err != nil {
		return fmt.Errorf("KServe InferenceService CRD is not available in the cluster: %w", err)
	}
	return nil
}

// List returns the InferenceServices carrying BackendLabel. A non-empty kind
// restricts the result to that backend kind.
func (d *Discovery) List(ctx context.Context, kind string) ([]Backend, error) {
	selector := BackendLabel
	if kind != "" {
		selector = BackendLabel + "=" + kind
	}
	list, err := d.resource().List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, fmt.Errorf("failed to list InferenceServices: %w", err)
	}

	backends := make([]Backend, 0, len(list.Items))
	for i := range list.Items {
		isvc, err := fromUnstructured(&list.Items[i])
		if err != nil {
			slog.Warn("skipping InferenceService", "name", list.Items[i].GetName(), "error", err)
			continue
		}
		backends = append(backends, backendFrom(isvc, d.namespace))
	}
	return backends, nil
}

// Get returns one backend by name.
func (d *Discovery) Get(ctx context.Context, name string) (*Backend, error) {
	sanitized := sanitizeName(name)
	item, err := d.resource().Get(ctx, sanitized, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get InferenceService %s: %w", sanitized, err)
	}
	isvc, err := fromUnstructured(item)
	if err != nil {
		return nil, err
	}
	b := backendFrom(isvc, d.namespace)
	return &b, nil
}

// WaitForReady blocks until the named backend reports Ready and returns it.
func (d *Discovery) WaitForReady(ctx context.Context, name string, timeout time.Duration) (*Backend, error) {
	if b, err := d.Get(ctx, name); err == nil && b.Ready {
		return b, nil
	}

	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sanitized := sanitizeName(name)
	watcher, err := d.resource().Watch(ctx, metav1.ListOptions{
		FieldSelector: "metadata.name=" + sanitized,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to watch InferenceService: %w", err)
	}
	defer watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timeout waiting for InferenceService %s to become ready", sanitized)
		case event, ok := <-watcher.ResultChan():
			if !ok {
				return nil, fmt.Errorf("watch channel closed for InferenceService %s", sanitized)
			}
			if event.Type != watch.Added && event.Type != watch.Modified {
				continue
			}
			obj, ok := event.Object.(*unstructured.Unstructured)
			if !ok {
				continue
			}
			isvc, err := fromUnstructured(obj)
			if err != nil {
				slog.Warn("failed to convert watch event", "error", err)
				continue
			}
			if b := backendFrom(isvc, d.namespace); b.Ready {
				slog.Info("backend ready", "name", sanitized, "endpoint", b.EndpointURL)
				return &b, nil
			}
			slog.Debug("backend not ready yet", "name", sanitized)
		}
	}
}

func (d *Discovery) resource() dynamic.ResourceInterface {
	return d.client.Resource(isvcGVR).Namespace(d.namespace)
}
