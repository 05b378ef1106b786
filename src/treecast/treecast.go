// Package treecast assembles a full broadcast node from its parts: transport,
// contact store, metrics, core node, and HTTP service.
package treecast

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/treecast/treecast/src/config"
	"github.com/treecast/treecast/src/metrics"
	"github.com/treecast/treecast/src/net"
	"github.com/treecast/treecast/src/node"
	"github.com/treecast/treecast/src/peers"
	"github.com/treecast/treecast/src/service"
)

// Treecast is the top-level engine of a broadcast node.
type Treecast struct {
	Config    *config.Config
	Node      *node.Node
	Transport net.Transport
	Contacts  []peers.Peer
	Registry  *prometheus.Registry
	Service   *service.Service

	logger *logrus.Entry
}

// NewTreecast returns an uninitialized engine for the given configuration.
func NewTreecast(conf *config.Config) *Treecast {
	engine := &Treecast{
		Config: conf,
	}

	return engine
}

func (t *Treecast) initTransport() error {
	transport, err := net.NewTCPTransport(
		t.Config.BindAddr,
		t.Config.AdvertiseAddr,
		t.Config.MaxPool,
		t.Config.TCPTimeout,
		t.logger,
	)

	if err != nil {
		return err
	}

	go transport.Listen()

	t.Transport = transport

	return nil
}

func (t *Treecast) initContacts() error {
	contactStore := peers.NewJSONContacts(t.Config.DataDir)

	contacts, err := contactStore.Contacts()
	if err != nil {
		if os.IsNotExist(err) {
			// First node of a new cluster.
			t.logger.Debug("No contacts file, starting a new cluster")
			return nil
		}
		return err
	}

	t.Contacts = contacts

	return nil
}

func (t *Treecast) initMetrics() error {
	t.Registry = prometheus.NewRegistry()
	return nil
}

func (t *Treecast) initNode() error {
	nodeConf := t.Config.NodeConfig
	nodeConf.Logger = t.Config.Logger()

	n, err := node.NewNode(
		&nodeConf,
		t.Transport,
		metrics.NewNodeMetrics(t.Registry),
	)
	if err != nil {
		return err
	}
	t.Node = n

	t.logger.WithFields(logrus.Fields{
		"addr":     t.Node.Addr(),
		"contacts": len(t.Contacts),
	}).Debug("Node created")

	return nil
}

func (t *Treecast) initService() error {
	if !t.Config.NoService {
		t.Service = service.NewService(t.Config.ServiceAddr, t.Node, t.Registry, t.logger)
	}
	return nil
}

// Init builds all the components. It must be called before Run.
func (t *Treecast) Init() error {
	t.logger = t.Config.Logger().WithField("prefix", "treecast")

	if err := t.initTransport(); err != nil {
		return err
	}

	if err := t.initContacts(); err != nil {
		return err
	}

	if err := t.initMetrics(); err != nil {
		return err
	}

	if err := t.initNode(); err != nil {
		return err
	}

	if err := t.initService(); err != nil {
		return err
	}

	return nil
}

// Run starts the HTTP service and the node's event loop, then joins the
// cluster through the configured contacts. It blocks until the node shuts
// down.
func (t *Treecast) Run() error {
	if t.Service != nil {
		go t.Service.Serve()
	}

	t.Node.RunAsync()

	if err := t.join(); err != nil {
		t.Node.Shutdown()
		return err
	}

	t.Node.Wait()

	return nil
}

// join contacts known cluster members in order until one accepts the Join
// message. A node with no contacts starts its own cluster.
func (t *Treecast) join() error {
	if len(t.Contacts) == 0 {
		return nil
	}

	for _, contact := range t.Contacts {
		if contact.NetAddr == t.Node.Addr() {
			continue
		}
		err := t.Node.JoinCluster(contact)
		if err == nil {
			t.logger.WithField("contact", contact.String()).Debug("Joined cluster")
			return nil
		}
		t.logger.WithFields(logrus.Fields{
			"contact": contact.String(),
			"err":     err.Error(),
		}).Warn("Contact unreachable")
	}

	return fmt.Errorf("could not reach any of the %d configured contacts", len(t.Contacts))
}

// Shutdown stops the node and closes the transport.
func (t *Treecast) Shutdown() {
	t.Node.Shutdown()
}
