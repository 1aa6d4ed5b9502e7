package main

import (
	"context"

	petname "github.com/dustinkirkland/golang-petname"
	log "github.com/sirupsen/logrus"

	"vnetns/network"
	"vnetns/registry"
)

// session is one holder's claim on a namespace.
type session struct {
	lock     *registry.Lock
	endpoint *network.Endpoint
}

// namespaceName returns the requested name or a fresh random one.
func namespaceName(name string) string {
	if name != "" {
		return name
	}
	return "vn-" + petname.Generate(2, "-")
}

// setupNamespace clears stale state, then joins the namespace if it exists
// or creates and connects it on a newly allocated subnet otherwise. The lock
// of pid is written before the namespace is created so that a concurrent
// reconciler never sees the new namespace unlocked.
func setupNamespace(ctx context.Context, name string, pid int, command []string) (*session, error) {
	summary, err := env.reconciler().Run(ctx)
	if err != nil {
		return nil, err
	}
	logSummary(summary)

	exists, err := network.Exists(ctx, env.namespaces, name)
	if err != nil {
		return nil, err
	}
	if exists {
		lock, err := env.registry.Acquire(name, pid, &registry.Info{
			Subnet:  subnetOf(name),
			Command: command,
		})
		if err != nil {
			return nil, err
		}
		log.WithField("namespace", name).Info("joined existing network namespace")
		return &session{lock: lock}, nil
	}

	block, err := network.AllocateSubnet(ctx, env.addrs)
	if err != nil {
		return nil, err
	}
	lock, err := env.registry.Acquire(name, pid, &registry.Info{
		Subnet:  block.HostCIDR(),
		Command: command,
	})
	if err != nil {
		return nil, err
	}
	if err := env.namespaces.Create(ctx, name); err != nil {
		_ = lock.Release()
		return nil, err
	}
	ep := network.NewEndpoint(name, block)
	if err := ep.Setup(ctx); err != nil {
		_ = lock.Release()
		if delErr := env.namespaces.Delete(ctx, name); delErr != nil {
			log.Warnf("cannot remove half-created namespace: %v", delErr)
		}
		return nil, err
	}
	return &session{lock: lock, endpoint: ep}, nil
}

// subnetOf returns the subnet recorded by another holder of namespace ns.
func subnetOf(ns string) string {
	pids, err := env.registry.Holders(ns)
	if err != nil {
		return ""
	}
	for _, pid := range pids {
		lock := env.registry.Lock(ns, pid)
		if subnet := lock.Info().Subnet; subnet != "" {
			return subnet
		}
	}
	return ""
}

// teardown releases the session's lock and deletes the namespace when no
// other holder remains.
func (s *session) teardown(ctx context.Context) error {
	ns := s.lock.Namespace
	if err := s.lock.Release(); err != nil {
		return err
	}
	holders, err := env.registry.Holders(ns)
	if err != nil {
		return err
	}
	if len(holders) > 0 {
		log.WithFields(log.Fields{"namespace": ns, "holders": holders}).Info("namespace still in use")
		return nil
	}
	if s.endpoint != nil {
		if err := s.endpoint.Teardown(ctx); err != nil {
			log.Warnf("cannot remove veth pair: %v", err)
		}
	}
	return env.namespaces.Delete(ctx, ns)
}
