package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"vnetns/config"
	"vnetns/network"
	"vnetns/privilege"
	"vnetns/reconcile"
	"vnetns/registry"
)

// environment is what every command works with, set up once before the
// command runs.
type environment struct {
	identity   *privilege.Identity
	config     *config.Config
	registry   *registry.Registry
	addrs      network.AddressSource
	namespaces network.NamespaceManager
}

var env *environment

// setupEnvironment bootstraps privileges, then loads the configuration of
// the invoking user and applies the global flag overrides.
func setupEnvironment(context *cli.Context) error {
	id, err := privilege.Bootstrap(os.Args)
	if err != nil {
		return err
	}

	path := context.GlobalString("config")
	if path == "" {
		path = config.DefaultPath(id)
	}
	cfg, err := config.Load(path, id)
	if err != nil {
		return err
	}
	if err := applyOverrides(cfg, context.GlobalString("backend"), context.GlobalString("registry")); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"user":     id.Name,
		"registry": cfg.RegistryRoot,
		"backend":  cfg.Backend,
	}).Debug("environment")

	env = newEnvironment(id, cfg)
	return nil
}

// applyOverrides puts non-empty command line values over the configuration
// and checks the result again.
func applyOverrides(cfg *config.Config, backend, registryRoot string) error {
	if backend != "" {
		cfg.Backend = backend
	}
	if registryRoot != "" {
		cfg.RegistryRoot = registryRoot
	}
	return cfg.Validate()
}

func newEnvironment(id *privilege.Identity, cfg *config.Config) *environment {
	e := &environment{
		identity: id,
		config:   cfg,
		registry: registry.New(cfg.RegistryRoot),
	}
	switch cfg.Backend {
	case config.BackendIPRoute2:
		e.addrs = network.IPRouteSource{}
		e.namespaces = network.IPRouteManager{}
	default:
		e.addrs = network.NetlinkSource{}
		e.namespaces = network.NetnsManager{}
	}
	return e
}

func (e *environment) reconciler() *reconcile.Reconciler {
	rec := reconcile.New(e.registry, e.namespaces)
	rec.Prefix = e.config.NamespacePrefix
	rec.Settle = e.config.SettleDelay
	return rec
}

// fixOwnership hands the vnetns config directory back to the invoking user.
// It only warns on failure, as the command itself succeeded.
func (e *environment) fixOwnership() {
	if err := privilege.FixOwnership(config.AppDir(e.identity), e.identity); err != nil {
		log.Warnf("cannot fix ownership: %v", err)
	}
}
