package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/example/modashop/pkg/config"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.uber.org/zap"
)

const defaultTTL = 15

type ServiceDiscovery struct {
	client *clientv3.Client
	config *config.EtcdConfig
	logger *zap.Logger

	mu     sync.Mutex
	leases map[string]clientv3.LeaseID
}

type ServiceInstance struct {
	Name string
	Host string
	Port int
}

func (i *ServiceInstance) Addr() string {
	return net.JoinHostPort(i.Host, strconv.Itoa(i.Port))
}

func NewServiceDiscovery(cfg *config.EtcdConfig, logger *zap.Logger) (*ServiceDiscovery, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	return &ServiceDiscovery{
		client: cli,
		config: cfg,
		logger: logger,
		leases: make(map[string]clientv3.LeaseID),
	}, nil
}

func (sd *ServiceDiscovery) ttl() int64 {
	if sd.config.SessionTTL <= 0 {
		return defaultTTL
	}
	return int64(sd.config.SessionTTL)
}

func instanceKey(prefix string, instance *ServiceInstance) string {
	return fmt.Sprintf("%sservices/%s/%s", prefix, instance.Name, instance.Addr())
}

func electionKey(prefix, name string) string {
	return fmt.Sprintf("%selection/%s", prefix, name)
}

// Register announces the instance under a lease that is kept alive until ctx
// is done or Deregister is called.
func (sd *ServiceDiscovery) Register(ctx context.Context, instance *ServiceInstance) error {
	key := instanceKey(sd.config.Prefix, instance)

	lease, err := sd.client.Grant(ctx, sd.ttl())
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}

	if _, err = sd.client.Put(ctx, key, instance.Addr(), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	ch, err := sd.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return fmt.Errorf("failed to keep alive: %w", err)
	}

	sd.mu.Lock()
	sd.leases[key] = lease.ID
	sd.mu.Unlock()

	go func() {
		for range ch {
		}
		sd.logger.Info("Service lease keep-alive stopped", zap.String("key", key))
	}()

	sd.logger.Info("Service registered", zap.String("key", key), zap.Int64("ttl", sd.ttl()))
	return nil
}

func (sd *ServiceDiscovery) Discover(ctx context.Context, serviceName string) ([]*ServiceInstance, error) {
	prefix := fmt.Sprintf("%sservices/%s/", sd.config.Prefix, serviceName)

	resp, err := sd.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to discover service: %w", err)
	}

	instances := make([]*ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		instance, err := parseInstance(serviceName, string(kv.Value))
		if err != nil {
			sd.logger.Warn("Skipping malformed service entry", zap.String("key", string(kv.Key)), zap.Error(err))
			continue
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

func parseInstance(name, addr string) (*ServiceInstance, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return &ServiceInstance{Name: name, Host: host, Port: port}, nil
}

func (sd *ServiceDiscovery) Deregister(ctx context.Context, instance *ServiceInstance) error {
	key := instanceKey(sd.config.Prefix, instance)

	sd.mu.Lock()
	leaseID, ok := sd.leases[key]
	delete(sd.leases, key)
	sd.mu.Unlock()

	if ok {
		if _, err := sd.client.Revoke(ctx, leaseID); err != nil {
			return fmt.Errorf("failed to revoke lease: %w", err)
		}
		return nil
	}
	if _, err := sd.client.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to deregister service: %w", err)
	}
	return nil
}

// Leadership is held until Resign is called or the session expires.
type Leadership struct {
	session  *concurrency.Session
	election *concurrency.Election
}

// Done is closed when the session backing the leadership is lost.
func (l *Leadership) Done() <-chan struct{} {
	return l.session.Done()
}

func (l *Leadership) Resign(ctx context.Context) error {
	defer l.session.Close()
	if err := l.election.Resign(ctx); err != nil {
		return fmt.Errorf("failed to resign leadership: %w", err)
	}
	return nil
}

// Campaign blocks until this instance leads the named election or ctx is
// done.
func (sd *ServiceDiscovery) Campaign(ctx context.Context, name, value string) (*Leadership, error) {
	session, err := concurrency.NewSession(sd.client,
		concurrency.WithTTL(int(sd.ttl())),
		concurrency.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd session: %w", err)
	}

	election := concurrency.NewElection(session, electionKey(sd.config.Prefix, name))
	sd.logger.Info("Campaigning for leadership", zap.String("election", name), zap.String("value", value))
	if err := election.Campaign(ctx, value); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to campaign for %s: %w", name, err)
	}

	sd.logger.Info("Leadership acquired", zap.String("election", name), zap.String("value", value))
	return &Leadership{session: session, election: election}, nil
}

func (sd *ServiceDiscovery) Close() error {
	return sd.client.Close()
}
