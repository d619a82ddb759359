package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// KubeNodeOverlay marks cluster nodes offline when the same-named
// Kubernetes node is not Ready.
type KubeNodeOverlay struct {
	client kubernetes.Interface
	log    *slog.Logger
}

// NewKubeNodeOverlay returns an overlay reading nodes through client.
func NewKubeNodeOverlay(client kubernetes.Interface) *KubeNodeOverlay {
	return &KubeNodeOverlay{
		client: client,
		log:    slog.Default().With("component", "kube-overlay"),
	}
}

// Apply lists Kubernetes nodes and marks every matching cluster node
// whose Ready condition is not True as offline. Nodes Kubernetes does not
// know are left alone. It returns the number of nodes newly marked.
func (o *KubeNodeOverlay) Apply(ctx context.Context, c *Cluster) (int, error) {
	nodeList, err := o.client.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return 0, fmt.Errorf("listing kubernetes nodes: %w", err)
	}

	marked := 0
	for _, node := range nodeList.Items {
		if nodeReady(node) {
			continue
		}
		if c.SetOffline(node.Name) {
			o.log.Info("node not ready in kubernetes, treating as offline", "node", node.Name)
			marked++
		}
	}
	return marked, nil
}

func nodeReady(node corev1.Node) bool {
	for _, cond := range node.Status.Conditions {
		if cond.Type == corev1.NodeReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}

// KubeClientset builds a clientset from kubeconfig. With an empty path
// it tries the in-cluster config first, then $KUBECONFIG, then
// ~/.kube/config.
func KubeClientset(kubeconfig string) (kubernetes.Interface, error) {
	config, err := kubeConfig(kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("k8s config: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("k8s clientset: %w", err)
	}
	return clientset, nil
}

func kubeConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig != "" {
		return clientcmd.BuildConfigFromFlags("", kubeconfig)
	}

	if config, err := rest.InClusterConfig(); err == nil {
		return config, nil
	}

	kubeconfig = os.Getenv("KUBECONFIG")
	if kubeconfig == "" {
		home, _ := os.UserHomeDir()
		kubeconfig = filepath.Join(home, ".kube", "config")
	}
	return clientcmd.BuildConfigFromFlags("", kubeconfig)
}
