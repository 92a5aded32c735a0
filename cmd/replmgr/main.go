// Command replmgr runs the replication-agreement manager: it loads the
// configured replicated areas and agreements, brings up a replication
// session per enabled agreement, and serves agreement health over the
// Prometheus listener.
package main

import (
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gitlab.com/dirsrv-org/replmgr/internal/agreement"
	"gitlab.com/dirsrv-org/replmgr/internal/config"
	"gitlab.com/dirsrv-org/replmgr/internal/consistency"
	"gitlab.com/dirsrv-org/replmgr/internal/entry"
	"gitlab.com/dirsrv-org/replmgr/internal/entrystore"
	"gitlab.com/dirsrv-org/replmgr/internal/log"
	"gitlab.com/dirsrv-org/replmgr/internal/replica"
)

var (
	flagConfig = flag.String("config", "", "Location for the config.toml")
	logger     = log.Default()

	errNoConfigFile = errors.New("the config flag must be passed")
)

const progname = "replmgr"

func main() {
	flag.Parse()

	conf, err := initConfig()
	if err != nil {
		printfErr("%s: configuration error: %v\n", progname, err)
		os.Exit(1)
	}

	log.Configure(conf.Logging.Format, conf.Logging.Level)

	logger.Info("Starting " + progname)

	if err := run(conf, prometheus.DefaultRegisterer); err != nil {
		logger.Fatalf("%v", err)
	}
}

func initConfig() (config.Config, error) {
	var conf config.Config

	if *flagConfig == "" {
		return conf, errNoConfigFile
	}

	conf, err := config.FromFile(*flagConfig)
	if err != nil {
		return conf, fmt.Errorf("error reading config file: %v", err)
	}

	if err := conf.Validate(); err != nil {
		return config.Config{}, err
	}

	return conf, nil
}

func run(conf config.Config, promreg prometheus.Registerer) error {
	entries := entrystore.NewMemory()
	replicas := replica.NewRegistry()

	for _, rc := range conf.Replicas {
		engine := replica.EngineBDB
		if rc.Engine == string(replica.EngineLMDB) {
			engine = replica.EngineLMDB
		}
		replicas.Add(replica.New(rc.Root, replica.ID(rc.ID), engine, logger))
	}

	if conf.DefaultExcludeSpec != "" {
		e := entry.New(agreement.DefaultConfigDN)
		e.Add(agreement.AttrReplicatedAttributeList, conf.DefaultExcludeSpec)
		if err := entries.Put(e); err != nil {
			return err
		}
	}

	markers := consistency.NewStore(entries, logger)
	registry := agreement.NewRegistry(markers, logger)
	promreg.MustRegister(agreement.NewCollector(registry))

	deps := agreement.Deps{
		Replicas:        replicas,
		Entries:         entries,
		Markers:         markers,
		Protocols:       newSession,
		LocalHost:       conf.LocalHost,
		LocalPort:       conf.LocalPort,
		LocalSecurePort: conf.LocalSecurePort,
		Log:             logger,
	}

	for _, ac := range conf.Agreements {
		e := agreementEntry(ac)
		if err := entries.Put(e); err != nil {
			return err
		}

		a, err := agreement.New(e, deps)
		if err != nil {
			// agreement.New already logged the cause.
			continue
		}
		if err := registry.Add(a); err != nil {
			return err
		}
		if err := a.Start(); err != nil {
			logger.WithError(err).WithField("agreement", a.DN()).Error("failed to start agreement")
		}
	}

	if conf.PrometheusListenAddr != "" {
		go func() {
			logger.WithField("address", conf.PrometheusListenAddr).Info("starting prometheus listener")
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(conf.PrometheusListenAddr, mux); err != nil {
				logger.WithError(err).Fatal("prometheus listener failed")
			}
		}()
	}

	term := make(chan os.Signal, 1)
	signal.Notify(term, syscall.SIGINT, syscall.SIGTERM)
	sig := <-term
	logger.WithField("signal", sig).Info("shutting down")

	for _, a := range registry.All() {
		if err := a.Stop(); err != nil {
			logger.WithError(err).WithField("agreement", a.DN()).Error("failed to stop agreement")
		}
		a.UpdateConsumerRUV()
	}
	for _, rc := range conf.Replicas {
		if err := registry.PersistMaxCSNs(rc.Root); err != nil {
			logger.WithError(err).WithField("area", rc.Root).Error("failed to persist consistency markers")
		}
	}

	return nil
}

// agreementEntry renders one configuration block as the stored agreement
// entry the manager operates on.
func agreementEntry(ac *config.Agreement) *entry.Entry {
	dn := fmt.Sprintf("cn=%s,cn=replica,cn=\"%s\",cn=mapping tree,cn=config", ac.Name, ac.Root)
	e := entry.New(dn)
	e.Add("objectclass", "top")
	e.Add("objectclass", "nsds5ReplicationAgreement")
	e.Add("cn", ac.Name)

	set := func(attr, value string) {
		if value != "" {
			e.Add(attr, value)
		}
	}
	setInt := func(attr string, value int64) {
		if value != 0 {
			e.Add(attr, strconv.FormatInt(value, 10))
		}
	}

	set(agreement.AttrRoot, ac.Root)
	set(agreement.AttrHost, ac.Host)
	setInt(agreement.AttrPort, ac.Port)
	set(agreement.AttrTransportInfo, ac.TransportInfo)
	set(agreement.AttrBindDN, ac.BindDN)
	set(agreement.AttrCredentials, ac.Credentials)
	set(agreement.AttrBindMethod, ac.BindMethod)
	set(agreement.AttrBootstrapBindDN, ac.BootstrapBindDN)
	set(agreement.AttrBootstrapCredentials, ac.BootstrapCredentials)
	set(agreement.AttrBootstrapBindMethod, ac.BootstrapBindMethod)
	set(agreement.AttrBootstrapTransportInfo, ac.BootstrapTransportInfo)
	set(agreement.AttrReplicatedAttributeList, ac.ReplicatedAttributeList)
	set(agreement.AttrReplicatedAttributeListTotal, ac.ReplicatedAttributeListTotal)
	set(agreement.AttrStripAttrs, ac.StripAttrs)
	for _, s := range ac.Schedule {
		e.Add(agreement.AttrUpdateSchedule, s)
	}
	setInt(agreement.AttrTimeout, ac.Timeout)
	setInt(agreement.AttrBusyWaitTime, ac.BusyWaitTime)
	setInt(agreement.AttrSessionPauseTime, ac.SessionPauseTime)
	setInt(agreement.AttrFlowControlWindow, ac.FlowControlWindow)
	setInt(agreement.AttrFlowControlPause, ac.FlowControlPause)
	setInt(agreement.AttrWaitForAsyncResults, ac.WaitForAsyncResults)
	setInt(agreement.AttrProtocolTimeout, ac.ProtocolTimeout)
	set(agreement.AttrIgnoreMissingChange, ac.IgnoreMissingChange)
	set(agreement.AttrEnabled, ac.Enabled)
	set(agreement.AttrBeginReplicaRefresh, ac.BeginRefresh)

	return e
}

func printfErr(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
}
