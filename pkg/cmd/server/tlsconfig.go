package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/echook/telemetry-manager-go/log"
	"github.com/echook/telemetry-manager-go/pkg/config"
	"github.com/echook/telemetry-manager-go/pkg/utils/certs/traefik"
)

// certProvider keeps the server certificate current while the server runs.
// The certificate files are watched, a change swaps the certificate without
// a restart.
type certProvider struct {
	ctx  context.Context
	log  *log.Logger
	mu   sync.RWMutex
	cert *tls.Certificate
}

// NewTlsConfigProvider loads the server certificate from the configured
// source (PEM pair or traefik acme.json) and returns a tls.Config serving
// it. Returns nil when no certificate could be loaded.
func NewTlsConfigProvider(ctx context.Context) *tls.Config {
	p := &certProvider{
		ctx: ctx,
		log: log.GetFromContext(ctx).Named("server.certs"),
	}
	p.reload()
	if p.current() == nil {
		return nil
	}
	tlsConfig := &tls.Config{
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			return p.current(), nil
		},
		MinVersion: tls.VersionTLS13,
	}
	if pool := loadClientCAs(p.log); pool != nil {
		tlsConfig.ClientCAs = pool
		tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
	}
	go p.watch()
	return tlsConfig
}

func (p *certProvider) current() *tls.Certificate {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cert
}

// reload reads the certificate from its source. The previous certificate
// stays active when the source cannot be read.
func (p *certProvider) reload() {
	var (
		cert tls.Certificate
		err  error
	)
	switch {
	case config.TraefikCerts != "" && config.TraefikCertDomain != "":
		p.log.Info("Looking up traefik certs",
			log.String("file", config.TraefikCerts),
			log.String("domain", config.TraefikCertDomain))
		cert, err = traefik.CertFromFile(config.TraefikCerts, config.TraefikCertDomain)
	case config.TLSCertFile != "" && config.TLSKeyFile != "":
		p.log.Info("Loading cert",
			log.String("cert", config.TLSCertFile),
			log.String("key", config.TLSKeyFile))
		cert, err = tls.LoadX509KeyPair(config.TLSCertFile, config.TLSKeyFile)
	default:
		return
	}
	if err != nil {
		p.log.Error("could not load certificate", log.ErrorField(err))
		return
	}
	p.mu.Lock()
	p.cert = &cert
	p.mu.Unlock()
}

// watch reloads the certificate whenever one of its files changes.
func (p *certProvider) watch() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		p.log.Error("could not create fsnotify watcher", log.ErrorField(err))
		return
	}
	defer watcher.Close()
	for _, file := range []string{
		config.TLSCertFile, config.TLSKeyFile, config.TraefikCerts,
	} {
		if file == "" {
			continue
		}
		if err := watcher.Add(file); err != nil {
			p.log.Error("could not watch file",
				log.String("file", file), log.ErrorField(err))
		}
	}
	for {
		select {
		case <-p.ctx.Done():
			p.log.Info("context done, stopping cert reload")
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Chmod) {
				p.log.Info("cert file changed, reloading cert",
					log.String("file", event.Name))
				p.reload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.log.Error("watcher error", log.ErrorField(err))
		}
	}
}

func loadClientCAs(l *log.Logger) *x509.CertPool {
	if config.TLSCAFile == "" {
		return nil
	}
	l.Info("Loading ca cert", log.String("file", config.TLSCAFile))
	caCert, err := os.ReadFile(config.TLSCAFile)
	if err != nil {
		l.Error("could not read TLS root CA", log.ErrorField(err))
		return nil
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		l.Error("could not append cert to pool")
		return nil
	}
	return pool
}
