package plugin

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/openfroyo/providerkit/pkg/diag"
	"github.com/openfroyo/providerkit/pkg/dynamic"
	"github.com/openfroyo/providerkit/pkg/provider"
	"github.com/openfroyo/providerkit/pkg/schema"
	"github.com/openfroyo/providerkit/pkg/telemetry"
	"github.com/openfroyo/providerkit/pkg/wire"
)

// ServeConfig configures the plugin serving loop.
type ServeConfig struct {
	// Lifecycle is the state machine all calls dispatch onto.
	Lifecycle *provider.Lifecycle

	// Telemetry instruments the served calls. Required.
	Telemetry *telemetry.Telemetry

	// Listener overrides the default loopback TCP listener. Used by
	// tests; leave nil in a real plugin.
	Listener net.Listener

	// Handshake is where the handshake line is written. Defaults to
	// os.Stdout, the stream the orchestrator reads.
	Handshake io.Writer

	// DisableTLS serves the channel in plaintext. Tests only.
	DisableTLS bool

	// SkipCookieCheck bypasses the magic cookie verification. Tests only.
	SkipCookieCheck bool
}

// Serve runs the full plugin lifecycle: cookie check, version negotiation,
// channel setup, handshake line, then the dispatch loop. It returns nil on
// an orderly stop and an error on handshake or transport failure; the
// caller turns that into the process exit code.
func Serve(ctx context.Context, cfg ServeConfig) error {
	if cfg.Lifecycle == nil {
		return diag.NewTransportError("serve config missing lifecycle", nil)
	}
	if cfg.Telemetry == nil {
		return diag.NewTransportError("serve config missing telemetry", nil)
	}
	log := cfg.Telemetry.Logger.NewComponentLogger("plugin")

	if !cfg.SkipCookieCheck {
		if err := CheckCookie(); err != nil {
			return err
		}
	}

	version, err := NegotiateVersion(os.Getenv(ProtocolVersionsEnv))
	if err != nil {
		return err
	}

	listener := cfg.Listener
	if listener == nil {
		listener, err = net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return diag.NewTransportError("failed to listen", err)
		}
	}
	defer listener.Close()

	var certDER []byte
	if !cfg.DisableTLS {
		tlsCfg, der, err := GenerateServerTLS()
		if err != nil {
			return err
		}
		certDER = der
		listener = tls.NewListener(listener, tlsCfg)
	}

	handshake := cfg.Handshake
	if handshake == nil {
		handshake = os.Stdout
	}
	line := HandshakeLine(version, listener.Addr().Network(), listener.Addr().String(), certDER)
	if _, err := fmt.Fprintln(handshake, line); err != nil {
		return diag.NewTransportError("failed to write handshake line", err).
			WithCode(diag.CodeHandshakeFailed)
	}
	log.WithProvider(cfg.Lifecycle.Name(), cfg.Lifecycle.Version()).
		Debugf("handshake written, listening on %s", listener.Addr())

	conn, err := listener.Accept()
	if err != nil {
		return diag.NewTransportError("failed to accept orchestrator connection", err)
	}
	defer conn.Close()

	d := NewDispatcher(cfg.Lifecycle, cfg.Telemetry, version)
	return d.Run(ctx, conn, conn)
}

// Dispatcher serves protocol frames over one channel. Each request is
// handled on its own goroutine; responses are serialized by the encoder.
// The schema surface is rendered exactly once and reused for every
// GetSchema call.
type Dispatcher struct {
	lc      *provider.Lifecycle
	tel     *telemetry.Telemetry
	log     *telemetry.Logger
	version string

	wg sync.WaitGroup

	schemaOnce sync.Once
	schemaResp *GetSchemaResponse
	schemaErr  error
}

// NewDispatcher creates a dispatcher bound to a lifecycle.
func NewDispatcher(lc *provider.Lifecycle, tel *telemetry.Telemetry, version string) *Dispatcher {
	return &Dispatcher{
		lc:      lc,
		tel:     tel,
		log:     tel.Logger.NewComponentLogger("dispatch"),
		version: version,
	}
}

// Run reads frames until Stop, EOF, or a transport error. Stop waits for
// every in-flight call to finish before acknowledging, so the orchestrator
// sees the stop reply only after the process is quiescent.
func (d *Dispatcher) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	enc := NewEncoder(w)
	dec := NewDecoder(r)

	for {
		frame, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			d.wg.Wait()
			return nil
		}
		if err != nil {
			if diag.ClassOf(err) == diag.ErrorClassCodec {
				// A malformed frame poisons the stream framing; there
				// is no safe way to resynchronize.
				d.log.WithError(err).Error("malformed frame, closing channel")
			}
			d.wg.Wait()
			return err
		}

		if frame.Method == MethodStop {
			d.wg.Wait()
			if err := enc.Reply(frame.ID, &StopResponse{}, nil); err != nil {
				return err
			}
			d.log.Info("stopped after draining in-flight calls")
			return nil
		}

		d.wg.Add(1)
		go func(f *Frame) {
			defer d.wg.Done()
			d.handle(ctx, enc, f)
		}(frame)
	}
}

// handle serves one request frame and writes the response.
func (d *Dispatcher) handle(ctx context.Context, enc *Encoder, f *Frame) {
	rid := uuid.NewString()
	log := d.log.WithMethod(string(f.Method)).WithRequestID(rid)

	d.tel.Metrics.RPCStarted()
	defer d.tel.Metrics.RPCFinished()
	timer := telemetry.NewTimer()

	spanCtx, span := d.tel.Tracer.StartRPCSpan(ctx, string(f.Method), rid)
	defer span.End()

	body, ds := d.dispatch(spanCtx, f)

	status := "ok"
	if ds.HasErrors() {
		status = "error"
		log.Warnf("%s returned error diagnostics", f.Method)
		for _, item := range ds {
			if item.Severity == diag.SeverityError {
				telemetry.RecordError(span, errors.New(item.Summary))
			}
		}
	} else {
		telemetry.RecordSuccess(span)
	}
	d.tel.Metrics.RecordRPC(string(f.Method), status, timer.Duration())

	if err := enc.Reply(f.ID, body, ds); err != nil {
		log.WithError(err).Error("failed to write response")
	}
}

// dispatch routes one frame to its lifecycle operation.
func (d *Dispatcher) dispatch(ctx context.Context, f *Frame) (any, diag.Diagnostics) {
	switch f.Method {
	case MethodGetSchema:
		return d.getSchema()
	case MethodValidateConfig:
		return d.validateConfig(ctx, f)
	case MethodConfigureProvider:
		return d.configureProvider(ctx, f)
	case MethodPlanResourceChange:
		return d.planResourceChange(ctx, f)
	case MethodApplyResourceChange:
		return d.applyResourceChange(ctx, f)
	case MethodReadResource:
		return d.readResource(ctx, f)
	case MethodReadDataSource:
		return d.readDataSource(ctx, f)
	case MethodImportResourceState:
		return d.importResourceState(ctx, f)
	default:
		return nil, d.errDiags(diag.NewCodecError(
			fmt.Sprintf("method %q has no handler", f.Method), nil).WithCode(diag.CodeBadFrame))
	}
}

func (d *Dispatcher) getSchema() (any, diag.Diagnostics) {
	d.schemaOnce.Do(func() {
		bundle := d.lc.SchemaBundle()
		prov, resources, dataSources, err := marshalSchemas(bundle)
		if err != nil {
			d.schemaErr = err
			return
		}
		d.schemaResp = &GetSchemaResponse{
			ProtocolVersion: d.version,
			ProviderName:    d.lc.Name(),
			ProviderVersion: d.lc.Version(),
			Provider:        prov,
			Resources:       resources,
			DataSources:     dataSources,
		}
	})
	if d.schemaErr != nil {
		return nil, d.errDiags(d.schemaErr)
	}
	return d.schemaResp, nil
}

func (d *Dispatcher) validateConfig(ctx context.Context, f *Frame) (any, diag.Diagnostics) {
	var req ValidateConfigRequest
	if err := ParseBody(f.Body, &req); err != nil {
		return nil, d.errDiags(err)
	}

	if req.TypeName == "" {
		config, err := wire.Decode(req.Config, d.lc.SchemaBundle().Provider)
		if err != nil {
			return nil, d.errDiags(err)
		}
		return &ValidateConfigResponse{}, d.lc.ValidateProviderConfig(ctx, config)
	}

	s, err := d.resourceSchema(req.TypeName)
	if err != nil {
		return nil, d.errDiags(err)
	}
	config, err := wire.Decode(req.Config, s)
	if err != nil {
		return nil, d.errDiags(err)
	}
	return &ValidateConfigResponse{}, d.lc.ValidateResourceConfig(ctx, req.TypeName, config)
}

func (d *Dispatcher) configureProvider(ctx context.Context, f *Frame) (any, diag.Diagnostics) {
	var req ConfigureProviderRequest
	if err := ParseBody(f.Body, &req); err != nil {
		return nil, d.errDiags(err)
	}
	config, err := wire.Decode(req.Config, d.lc.SchemaBundle().Provider)
	if err != nil {
		return nil, d.errDiags(err)
	}
	return &ConfigureProviderResponse{}, d.lc.Configure(ctx, config)
}

func (d *Dispatcher) planResourceChange(ctx context.Context, f *Frame) (any, diag.Diagnostics) {
	var req PlanResourceChangeRequest
	if err := ParseBody(f.Body, &req); err != nil {
		return nil, d.errDiags(err)
	}
	s, err := d.resourceSchema(req.TypeName)
	if err != nil {
		return nil, d.errDiags(err)
	}
	prior, err := wire.Decode(req.Prior, s)
	if err != nil {
		return nil, d.errDiags(err)
	}
	config, err := wire.Decode(req.Config, s)
	if err != nil {
		return nil, d.errDiags(err)
	}

	result, ds := d.lc.PlanResourceChange(ctx, req.TypeName, prior, config)
	if ds.HasErrors() {
		return nil, ds
	}

	planned, err := wire.Encode(result.Planned)
	if err != nil {
		return nil, d.errDiags(err)
	}
	d.tel.Metrics.RecordPlanAction(req.TypeName, string(result.Action))

	// The private blob is opaque to planning and passes through as-is.
	return &PlanResourceChangeResponse{
		Action:  result.Action,
		Planned: planned,
		Changes: result.Changes,
		Private: req.Private,
	}, ds
}

func (d *Dispatcher) applyResourceChange(ctx context.Context, f *Frame) (any, diag.Diagnostics) {
	var req ApplyResourceChangeRequest
	if err := ParseBody(f.Body, &req); err != nil {
		return nil, d.errDiags(err)
	}
	s, err := d.resourceSchema(req.TypeName)
	if err != nil {
		return nil, d.errDiags(err)
	}
	prior, err := wire.Decode(req.Prior, s)
	if err != nil {
		return nil, d.errDiags(err)
	}
	config, err := wire.Decode(req.Config, s)
	if err != nil {
		return nil, d.errDiags(err)
	}
	private, err := dynamic.DecodePrivateState(req.Private)
	if err != nil {
		return nil, d.errDiags(err)
	}

	action, state, newPrivate, ds := d.lc.ApplyResourceChange(ctx, req.TypeName, prior, config, private)
	if ds.HasErrors() && action != "" {
		d.tel.Metrics.RecordApplyFailure(req.TypeName, string(action))
	}

	resp := &ApplyResourceChangeResponse{}
	if encoded, encErr := wire.Encode(state); encErr == nil {
		resp.State = encoded
	} else {
		ds.AddError("failed to encode applied state", encErr.Error())
	}
	if newPrivate != nil {
		if encoded, encErr := newPrivate.Encode(); encErr == nil {
			resp.Private = encoded
		} else {
			ds.AddError("failed to encode private state", encErr.Error())
		}
	}
	return resp, ds
}

func (d *Dispatcher) readResource(ctx context.Context, f *Frame) (any, diag.Diagnostics) {
	var req ReadResourceRequest
	if err := ParseBody(f.Body, &req); err != nil {
		return nil, d.errDiags(err)
	}
	s, err := d.resourceSchema(req.TypeName)
	if err != nil {
		return nil, d.errDiags(err)
	}
	current, err := wire.Decode(req.Current, s)
	if err != nil {
		return nil, d.errDiags(err)
	}
	private, err := dynamic.DecodePrivateState(req.Private)
	if err != nil {
		return nil, d.errDiags(err)
	}

	state, newPrivate, ds := d.lc.ReadResource(ctx, req.TypeName, current, private)
	if !ds.HasErrors() {
		d.recordDrift(req.TypeName, current, state)
	}

	resp := &ReadResourceResponse{}
	if encoded, encErr := wire.Encode(state); encErr == nil {
		resp.State = encoded
	} else {
		ds.AddError("failed to encode refreshed state", encErr.Error())
	}
	if newPrivate != nil {
		if encoded, encErr := newPrivate.Encode(); encErr == nil {
			resp.Private = encoded
		} else {
			ds.AddError("failed to encode private state", encErr.Error())
		}
	}
	return resp, ds
}

func (d *Dispatcher) readDataSource(ctx context.Context, f *Frame) (any, diag.Diagnostics) {
	var req ReadDataSourceRequest
	if err := ParseBody(f.Body, &req); err != nil {
		return nil, d.errDiags(err)
	}
	s, ok := d.lc.SchemaBundle().DataSources[req.TypeName]
	if !ok {
		return nil, d.errDiags(diag.NewTypeError(
			fmt.Sprintf("unknown data source type %q", req.TypeName), nil).
			WithCode(diag.CodeUnknownResource))
	}
	config, err := wire.Decode(req.Config, s)
	if err != nil {
		return nil, d.errDiags(err)
	}

	state, ds := d.lc.ReadDataSource(ctx, req.TypeName, config)
	resp := &ReadDataSourceResponse{}
	if encoded, encErr := wire.Encode(state); encErr == nil {
		resp.State = encoded
	} else {
		ds.AddError("failed to encode data source state", encErr.Error())
	}
	return resp, ds
}

func (d *Dispatcher) importResourceState(ctx context.Context, f *Frame) (any, diag.Diagnostics) {
	var req ImportResourceStateRequest
	if err := ParseBody(f.Body, &req); err != nil {
		return nil, d.errDiags(err)
	}

	state, private, ds := d.lc.ImportResourceState(ctx, req.TypeName, req.ID)

	resp := &ImportResourceStateResponse{}
	if encoded, encErr := wire.Encode(state); encErr == nil {
		resp.State = encoded
	} else {
		ds.AddError("failed to encode imported state", encErr.Error())
	}
	if private != nil {
		if encoded, encErr := private.Encode(); encErr == nil {
			resp.Private = encoded
		} else {
			ds.AddError("failed to encode private state", encErr.Error())
		}
	}
	return resp, ds
}

// recordDrift compares recorded and refreshed state by codec hash.
func (d *Dispatcher) recordDrift(typeName string, current, refreshed dynamic.Value) {
	before, err := wire.Hash(current)
	if err != nil {
		return
	}
	after, err := wire.Hash(refreshed)
	if err != nil {
		return
	}
	status := "clean"
	if before != after {
		status = "drifted"
	}
	d.tel.Metrics.RecordDriftDetection(typeName, status)
}

func (d *Dispatcher) resourceSchema(typeName string) (schema.Schema, error) {
	s, ok := d.lc.SchemaBundle().Resources[typeName]
	if !ok {
		return schema.Schema{}, diag.NewTypeError(
			fmt.Sprintf("unknown resource type %q", typeName), nil).
			WithCode(diag.CodeUnknownResource)
	}
	return s, nil
}

// errDiags converts a classified error into response diagnostics and
// counts it by class and code.
func (d *Dispatcher) errDiags(err error) diag.Diagnostics {
	class := string(diag.ClassOf(err))
	if class == "" {
		class = "unknown"
	}
	d.tel.Metrics.RecordError(class, diag.CodeOf(err))
	return diag.Diagnostics{diag.FromError(err)}
}
