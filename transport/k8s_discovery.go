package transport

import (
	"context"
	"fmt"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/gbasilveira/taskscheduler/scheduler"
)

// KubernetesDiscovery implements ServiceDiscovery by watching a labeled pod
// set and feeding engine up/down notifications into a scheduler.Scheduler.
// Grounded near-verbatim on orchestrator/transport/k8s_discovery.go's
// KubernetesDiscovery; the only behavioral change is in onChange's
// consumer (below), which now diffs the previous/current engine id sets
// and calls RegisterEngine/UnregisterEngine instead of updating a load
// balancer.
type KubernetesDiscovery struct {
	client        kubernetes.Interface
	namespace     string
	serviceName   string
	labelSelector string
	stopCh        chan struct{}
}

// NewKubernetesDiscovery creates a new Kubernetes service discovery.
func NewKubernetesDiscovery(namespace, serviceName, labelSelector string, inCluster bool) (*KubernetesDiscovery, error) {
	var config *rest.Config
	var err error

	if inCluster {
		config, err = rest.InClusterConfig()
	} else {
		config, err = clientcmd.BuildConfigFromFlags("", "")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create k8s config: %w", err)
	}

	client, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create k8s client: %w", err)
	}

	return &KubernetesDiscovery{
		client:        client,
		namespace:     namespace,
		serviceName:   serviceName,
		labelSelector: labelSelector,
		stopCh:        make(chan struct{}),
	}, nil
}

// Discover starts discovering engines and returns a channel of successive
// full snapshots.
func (kd *KubernetesDiscovery) Discover(ctx context.Context) (<-chan []*EngineInfo, error) {
	engineCh := make(chan []*EngineInfo, 10)

	go func() {
		defer close(engineCh)
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		engines, err := kd.discoverEngines()
		if err == nil {
			select {
			case engineCh <- engines:
			case <-ctx.Done():
				return
			case <-kd.stopCh:
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-kd.stopCh:
				return
			case <-ticker.C:
				engines, err := kd.discoverEngines()
				if err == nil {
					select {
					case engineCh <- engines:
					case <-ctx.Done():
						return
					case <-kd.stopCh:
						return
					}
				}
			}
		}
	}()

	return engineCh, nil
}

// Watch watches for engine changes using the Kubernetes watch API.
func (kd *KubernetesDiscovery) Watch(ctx context.Context, onChange func([]*EngineInfo)) error {
	selector, err := labels.Parse(kd.labelSelector)
	if err != nil {
		return fmt.Errorf("invalid label selector: %w", err)
	}

	watcher, err := kd.client.CoreV1().Pods(kd.namespace).Watch(ctx, metav1.ListOptions{
		LabelSelector: selector.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Stop()

	engines, err := kd.discoverEngines()
	if err == nil {
		onChange(engines)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-kd.stopCh:
			return nil
		case <-watcher.ResultChan():
			engines, err := kd.discoverEngines()
			if err == nil {
				onChange(engines)
			}
		}
	}
}

// Close stops discovery.
func (kd *KubernetesDiscovery) Close() error {
	close(kd.stopCh)
	return nil
}

// discoverEngines discovers engines from Kubernetes pods.
func (kd *KubernetesDiscovery) discoverEngines() ([]*EngineInfo, error) {
	selector, err := labels.Parse(kd.labelSelector)
	if err != nil {
		return nil, fmt.Errorf("invalid label selector: %w", err)
	}

	pods, err := kd.client.CoreV1().Pods(kd.namespace).List(context.Background(), metav1.ListOptions{
		LabelSelector: selector.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}

	engines := make([]*EngineInfo, 0, len(pods.Items))

	for _, pod := range pods.Items {
		if pod.Status.Phase != "Running" {
			continue
		}

		engineID := pod.Name
		if id, ok := pod.Labels["engine-id"]; ok {
			engineID = id
		}

		address := pod.Status.PodIP
		if address == "" {
			continue
		}

		port := 50051
		if portStr, ok := pod.Annotations["taskscheduler/port"]; ok {
			if parsedPort, err := fmt.Sscanf(portStr, "%d", &port); err != nil || parsedPort != 1 {
				port = 50051
			}
		}

		capacity := 10
		if capStr, ok := pod.Annotations["taskscheduler/capacity"]; ok {
			if parsedCap, err := fmt.Sscanf(capStr, "%d", &capacity); err != nil || parsedCap != 1 {
				capacity = 10
			}
		}

		metadata := make(map[string]string)
		for k, v := range pod.Labels {
			if k != "app" && k != "engine-id" {
				metadata[k] = v
			}
		}

		engines = append(engines, &EngineInfo{
			ID:       engineID,
			Address:  address,
			Port:     port,
			Capacity: capacity,
			Metadata: metadata,
			LastSeen: time.Now(),
		})
	}

	return engines, nil
}

// WatchScheduler is the consumer loop a cmd/scheduler main wires up: it
// calls KubernetesDiscovery.Watch with an onChange callback that diffs the
// previous engine id set against the current one, dials/hangs up the
// engine's gRPC connection on dialer, and reports up/down transitions to
// sched. The initial discovery pass issues a one-shot Bootstrap call
// before Watch's ongoing diffing takes over. Grounded on SPEC_FULL.md §4's
// restored connection-request bootstrap behavior (the original's
// dispatch_query_reply). dialer may be nil when no engine transport is in
// play (tests, in-process engines).
func WatchScheduler(ctx context.Context, kd *KubernetesDiscovery, sched *scheduler.Scheduler, dialer *EngineGRPCClient) error {
	seen := make(map[string]struct{})
	bootstrapped := false

	dial := func(e *EngineInfo) {
		if dialer == nil {
			return
		}
		addr := fmt.Sprintf("%s:%d", e.Address, e.Port)
		if err := dialer.Dial(ctx, e.ID, addr); err != nil {
			fmt.Printf("transport: dial %s at %s failed: %v\n", e.ID, addr, err)
		}
	}

	return kd.Watch(ctx, func(engines []*EngineInfo) {
		current := make(map[string]*EngineInfo, len(engines))
		for _, e := range engines {
			current[e.ID] = e
		}

		if !bootstrapped {
			ids := make([]scheduler.EngineID, 0, len(engines))
			for id, e := range current {
				dial(e)
				ids = append(ids, scheduler.EngineID(id))
			}
			if err := sched.Bootstrap(ctx, ids); err != nil {
				fmt.Printf("transport: bootstrap failed: %v\n", err)
			}
			seen = idSet(current)
			bootstrapped = true
			return
		}

		for id, e := range current {
			if _, ok := seen[id]; !ok {
				dial(e)
				if err := sched.RegisterEngine(ctx, scheduler.EngineID(id)); err != nil {
					fmt.Printf("transport: register %s failed: %v\n", id, err)
				}
			}
		}
		for id := range seen {
			if _, ok := current[id]; !ok {
				if err := sched.UnregisterEngine(ctx, scheduler.EngineID(id)); err != nil {
					fmt.Printf("transport: unregister %s failed: %v\n", id, err)
				}
				if dialer != nil {
					if err := dialer.CloseEngine(id); err != nil {
						fmt.Printf("transport: close %s failed: %v\n", id, err)
					}
				}
			}
		}
		seen = idSet(current)
	})
}

func idSet(engines map[string]*EngineInfo) map[string]struct{} {
	out := make(map[string]struct{}, len(engines))
	for id := range engines {
		out[id] = struct{}{}
	}
	return out
}
