package etcd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	clientv3 "go.etcd.io/etcd/client/v3"

	"crucible/pkg/models"
)

const nodePrefix = "/crucible/nodes/"

// EtcdMembership implements cluster.Membership on top of etcd leases. Each
// worker holds a key under /crucible/nodes/ kept alive by periodic Register
// calls; when the heartbeats stop, the lease expires and the node drops out
// of the cluster view.
type EtcdMembership struct {
	client  *clientv3.Client
	localID models.NodeID
}

// NewEtcdMembership connects to etcd and mints this node's identity from the
// hostname plus a random suffix, so two workers on one host stay distinct.
func NewEtcdMembership(endpoints []string) (*EtcdMembership, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}
	id := models.NodeID(fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8]))

	return &EtcdMembership{client: cli, localID: id}, nil
}

func (m *EtcdMembership) LocalID() models.NodeID {
	return m.localID
}

// Register puts this node's key under a fresh short lease. The heartbeat loop
// calls it on every tick, so there is no long-lived KeepAlive channel to
// babysit: missing a few ticks simply lets the lease lapse.
func (m *EtcdMembership) Register(ctx context.Context, ttlSeconds int) error {
	lease, err := m.client.Grant(ctx, int64(ttlSeconds))
	if err != nil {
		return fmt.Errorf("failed to grant lease: %w", err)
	}

	key := nodePrefix + string(m.localID)
	if _, err := m.client.Put(ctx, key, "ONLINE", clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("failed to put node key: %w", err)
	}
	return nil
}

func (m *EtcdMembership) ActiveNodes(ctx context.Context) ([]models.NodeID, error) {
	resp, err := m.client.Get(ctx, nodePrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	nodes := make([]models.NodeID, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		id := strings.TrimPrefix(string(kv.Key), nodePrefix)
		if id != "" {
			nodes = append(nodes, models.NodeID(id))
		}
	}
	return nodes, nil
}

func (m *EtcdMembership) Close() error {
	return m.client.Close()
}
