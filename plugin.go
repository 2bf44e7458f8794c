package errorexplorer

import (
	"context"

	"github.com/roadrunner-server/endure/v2/dep"
	"github.com/roadrunner-server/errors"
	"go.uber.org/zap"
)

// PluginName is the configuration section the plugin reads.
const PluginName = "error_explorer"

// Configurer interface for the host's config plugin.
type Configurer interface {
	UnmarshalKey(name string, out interface{}) error
	Has(name string) bool
}

// Logger interface for the host's logger plugin.
type Logger interface {
	NamedLogger(name string) *zap.Logger
}

// ErrorReporter is the interface other plugins consume to report faults.
type ErrorReporter interface {
	Report(err error) string
	ReportMessage(message string, severity Severity) string
	AddBreadcrumb(b Breadcrumb)
}

// Plugin embeds the pipeline into a RoadRunner-style host. The host owns
// configuration and logging; the plugin owns one Client.
type Plugin struct {
	config *Config
	logger *zap.Logger
	client *Client

	stopCh chan struct{}
	doneCh chan struct{}
}

// Init initializes the plugin from the host configuration.
func (p *Plugin) Init(cfg Configurer, log Logger) error {
	const op = errors.Op("error_explorer_init")

	if !cfg.Has(PluginName) {
		return errors.E(op, errors.Disabled)
	}

	config := &Config{}
	if err := cfg.UnmarshalKey(PluginName, config); err != nil {
		return errors.E(op, err)
	}

	config.InitDefaults()
	if err := config.Validate(); err != nil {
		return errors.E(op, err)
	}

	p.config = config
	p.logger = log.NamedLogger(PluginName)
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})

	return nil
}

// Serve starts the pipeline.
func (p *Plugin) Serve() chan error {
	errCh := make(chan error, 1)

	if p.config == nil {
		errCh <- errors.E("error_explorer_serve", "plugin not initialized")
		return errCh
	}

	client, err := NewClient(p.config, p.logger)
	if err != nil {
		errCh <- errors.E("error_explorer_serve", err)
		return errCh
	}
	p.client = client

	go func() {
		defer close(p.doneCh)
		<-p.stopCh

		flushCtx, cancel := context.WithTimeout(context.Background(), p.config.Transport.Timeout)
		defer cancel()
		client.Flush(flushCtx)
		client.Close()
	}()

	return errCh
}

// Stop flushes pending events and shuts the pipeline down.
func (p *Plugin) Stop(ctx context.Context) error {
	if p.stopCh != nil {
		close(p.stopCh)
	}

	select {
	case <-p.doneCh:
		return nil
	case <-ctx.Done():
		p.logger.Warn("plugin stop timed out")
		return ctx.Err()
	}
}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return PluginName
}

// RPC exposes the event-submission surface to out-of-process hosts.
func (p *Plugin) RPC() interface{} {
	return NewRPC(p, p.logger)
}

// Provides declares the reporter binding for dependent plugins.
func (p *Plugin) Provides() []*dep.Out {
	return []*dep.Out{
		dep.Bind((*ErrorReporter)(nil), p.Reporter),
	}
}

// Reporter returns the reporting interface backed by this plugin's client.
func (p *Plugin) Reporter() ErrorReporter {
	return p
}

// Report implements ErrorReporter.
func (p *Plugin) Report(err error) string {
	if p.client == nil {
		return ""
	}
	return p.client.CaptureException(err)
}

// ReportMessage implements ErrorReporter.
func (p *Plugin) ReportMessage(message string, severity Severity) string {
	if p.client == nil {
		return ""
	}
	return p.client.CaptureMessage(message, severity)
}

// AddBreadcrumb implements ErrorReporter.
func (p *Plugin) AddBreadcrumb(b Breadcrumb) {
	if p.client == nil {
		return
	}
	p.client.AddBreadcrumb(b)
}
