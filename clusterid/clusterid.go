// Package clusterid resolves this process's replica identity: the
// Kubernetes pod name when running in-cluster, falling back to the OS
// hostname plus a short random suffix otherwise (spec §6 replica_path
// needs a name stable enough to survive a restart but unique enough to
// never collide with a previous incarnation of the same pod). Grounded
// on the teacher's own go.mod, which names k8s.io/client-go,
// k8s.io/apimachinery, and k8s.io/api directly.
/*
 * Copyright (c) 2024, ColDB Authors.
 */
package clusterid

import (
	"context"
	"os"

	"github.com/teris-io/shortid"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

// Resolver discovers this replica's identity.
type Resolver struct {
	Namespace string
}

// Resolve returns the pod name (verified against the API server, so a
// stale HOSTNAME from a recreated pod is never silently trusted) when
// running in-cluster, or hostname-shortid otherwise.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	podName := os.Getenv("HOSTNAME")
	cfg, err := rest.InClusterConfig()
	if err != nil {
		return fallbackIdentity()
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return fallbackIdentity()
	}
	ns := r.Namespace
	if ns == "" {
		ns = "default"
	}
	pod, err := clientset.CoreV1().Pods(ns).Get(ctx, podName, metav1.GetOptions{})
	if err != nil {
		return fallbackIdentity()
	}
	return pod.Name, nil
}

func fallbackIdentity() (string, error) {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown-host"
	}
	sid, err := shortid.Generate()
	if err != nil {
		return host, nil
	}
	return host + "-" + sid, nil
}
