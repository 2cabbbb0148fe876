// Package plugin implements the protocol service adapter: the magic-cookie
// handshake, protocol version negotiation, the per-invocation TLS channel,
// and the concurrent dispatch of orchestrator calls onto the lifecycle
// state machine. Frames are newline-delimited JSON; Dynamic Value payloads
// inside frames use the deterministic wire codec.
package plugin

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/openfroyo/providerkit/pkg/diag"
	"github.com/openfroyo/providerkit/pkg/plan"
	"github.com/openfroyo/providerkit/pkg/provider"
)

// Method names the RPC surface exposed to the orchestrator.
type Method string

const (
	MethodGetSchema           Method = "GetSchema"
	MethodValidateConfig      Method = "ValidateConfig"
	MethodConfigureProvider   Method = "ConfigureProvider"
	MethodPlanResourceChange  Method = "PlanResourceChange"
	MethodApplyResourceChange Method = "ApplyResourceChange"
	MethodReadResource        Method = "ReadResource"
	MethodReadDataSource      Method = "ReadDataSource"
	MethodImportResourceState Method = "ImportResourceState"
	MethodStop                Method = "Stop"
)

// Validate checks that the method is part of the RPC surface.
func (m Method) Validate() error {
	switch m {
	case MethodGetSchema, MethodValidateConfig, MethodConfigureProvider,
		MethodPlanResourceChange, MethodApplyResourceChange, MethodReadResource,
		MethodReadDataSource, MethodImportResourceState, MethodStop:
		return nil
	}
	return diag.NewCodecError(fmt.Sprintf("unknown method %q", m), nil).WithCode(diag.CodeBadFrame)
}

// Frame is one protocol message. Requests carry Method and Body; responses
// echo the request ID and carry Body plus Diagnostics.
type Frame struct {
	// ID correlates a response with its request.
	ID string `json:"id"`

	// Method is set on requests only.
	Method Method `json:"method,omitempty"`

	// Body is the method-specific payload.
	Body json.RawMessage `json:"body,omitempty"`

	// Diagnostics is set on responses.
	Diagnostics diag.Diagnostics `json:"diagnostics,omitempty"`
}

// GetSchemaRequest asks for the published schema surface.
type GetSchemaRequest struct{}

// GetSchemaResponse carries the negotiated protocol version and every
// published schema.
type GetSchemaResponse struct {
	ProtocolVersion string                     `json:"protocol_version"`
	ProviderName    string                     `json:"provider_name"`
	ProviderVersion string                     `json:"provider_version"`
	Provider        json.RawMessage            `json:"provider"`
	Resources       map[string]json.RawMessage `json:"resources"`
	DataSources     map[string]json.RawMessage `json:"data_sources"`
}

// ValidateConfigRequest validates a configuration. An empty TypeName
// addresses the provider's own configuration.
type ValidateConfigRequest struct {
	TypeName string `json:"type_name,omitempty"`
	Config   []byte `json:"config,omitempty"`
}

// ValidateConfigResponse carries diagnostics only.
type ValidateConfigResponse struct{}

// ConfigureProviderRequest applies the provider configuration.
type ConfigureProviderRequest struct {
	Config []byte `json:"config,omitempty"`
}

// ConfigureProviderResponse acknowledges configuration.
type ConfigureProviderResponse struct{}

// PlanResourceChangeRequest plans one instance change.
type PlanResourceChangeRequest struct {
	TypeName string `json:"type_name"`
	Prior    []byte `json:"prior,omitempty"`
	Config   []byte `json:"config,omitempty"`
	Private  []byte `json:"private,omitempty"`
}

// PlanResourceChangeResponse carries the classified action, the planned
// state, and the changed attribute paths.
type PlanResourceChangeResponse struct {
	Action  plan.Action   `json:"action"`
	Planned []byte        `json:"planned,omitempty"`
	Changes []plan.Change `json:"changes,omitempty"`
	Private []byte        `json:"private,omitempty"`
}

// ApplyResourceChangeRequest applies one instance change.
type ApplyResourceChangeRequest struct {
	TypeName string `json:"type_name"`
	Prior    []byte `json:"prior,omitempty"`
	Config   []byte `json:"config,omitempty"`
	Private  []byte `json:"private,omitempty"`
}

// ApplyResourceChangeResponse carries the resulting state. On failure the
// state is the best-effort real state, never discarded.
type ApplyResourceChangeResponse struct {
	State   []byte `json:"state,omitempty"`
	Private []byte `json:"private,omitempty"`
}

// ReadResourceRequest refreshes one instance.
type ReadResourceRequest struct {
	TypeName string `json:"type_name"`
	Current  []byte `json:"current,omitempty"`
	Private  []byte `json:"private,omitempty"`
}

// ReadResourceResponse carries the refreshed state; empty state means the
// instance is gone from the backend.
type ReadResourceResponse struct {
	State   []byte `json:"state,omitempty"`
	Private []byte `json:"private,omitempty"`
}

// ReadDataSourceRequest resolves a data source.
type ReadDataSourceRequest struct {
	TypeName string `json:"type_name"`
	Config   []byte `json:"config,omitempty"`
}

// ReadDataSourceResponse carries the resolved state.
type ReadDataSourceResponse struct {
	State []byte `json:"state,omitempty"`
}

// ImportResourceStateRequest imports by external identifier.
type ImportResourceStateRequest struct {
	TypeName string `json:"type_name"`
	ID       string `json:"id"`
}

// ImportResourceStateResponse carries the constructed initial state.
type ImportResourceStateResponse struct {
	State   []byte `json:"state,omitempty"`
	Private []byte `json:"private,omitempty"`
}

// StopRequest asks the adapter to drain in-flight calls and exit.
type StopRequest struct{}

// StopResponse acknowledges the stop.
type StopResponse struct{}

// Encoder writes frames to the channel. It is safe for concurrent use:
// responses from parallel calls are serialized onto the stream.
type Encoder struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewEncoder creates a frame encoder.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// Encode writes one frame followed by a newline and flushes.
func (e *Encoder) Encode(f *Frame) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return diag.NewTransportError("failed to marshal frame", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(raw); err != nil {
		return diag.NewTransportError("failed to write frame", err)
	}
	if err := e.w.WriteByte('\n'); err != nil {
		return diag.NewTransportError("failed to write frame delimiter", err)
	}
	if err := e.w.Flush(); err != nil {
		return diag.NewTransportError("failed to flush frame", err)
	}
	return nil
}

// Reply encodes a response frame for the given request ID.
func (e *Encoder) Reply(id string, body any, ds diag.Diagnostics) error {
	var raw json.RawMessage
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return diag.NewTransportError("failed to marshal response body", err)
		}
		raw = b
	}
	return e.Encode(&Frame{ID: id, Body: raw, Diagnostics: ds})
}

// Decoder reads frames from the channel.
type Decoder struct {
	r *bufio.Scanner
}

// maxFrameSize bounds a single frame; state payloads can be large.
const maxFrameSize = 16 * 1024 * 1024

// NewDecoder creates a frame decoder. The scan buffer starts small and
// grows on demand; maxFrameSize is a ceiling, not an allocation.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)
	return &Decoder{r: scanner}
}

// Decode reads the next frame. io.EOF signals an orderly end of stream.
func (d *Decoder) Decode() (*Frame, error) {
	if !d.r.Scan() {
		if err := d.r.Err(); err != nil {
			return nil, diag.NewTransportError("frame scan failed", err)
		}
		return nil, io.EOF
	}
	line := d.r.Bytes()
	if len(line) == 0 {
		return nil, diag.NewCodecError("empty frame", nil).WithCode(diag.CodeBadFrame)
	}

	var f Frame
	if err := json.Unmarshal(line, &f); err != nil {
		return nil, diag.NewCodecError("malformed frame", err).WithCode(diag.CodeBadFrame)
	}
	if err := f.Method.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// ParseBody parses a frame body into a method-specific request type.
func ParseBody(body json.RawMessage, target any) error {
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, target); err != nil {
		return diag.NewCodecError("malformed request body", err).WithCode(diag.CodeBadFrame)
	}
	return nil
}

// marshalSchemas renders a schema bundle into raw JSON payloads.
func marshalSchemas(bundle provider.SchemaBundle) (json.RawMessage, map[string]json.RawMessage, map[string]json.RawMessage, error) {
	prov, err := json.Marshal(bundle.Provider)
	if err != nil {
		return nil, nil, nil, diag.NewTransportError("failed to marshal provider schema", err)
	}
	resources := make(map[string]json.RawMessage, len(bundle.Resources))
	for name, s := range bundle.Resources {
		raw, err := json.Marshal(s)
		if err != nil {
			return nil, nil, nil, diag.NewTransportError("failed to marshal resource schema", err)
		}
		resources[name] = raw
	}
	dataSources := make(map[string]json.RawMessage, len(bundle.DataSources))
	for name, s := range bundle.DataSources {
		raw, err := json.Marshal(s)
		if err != nil {
			return nil, nil, nil, diag.NewTransportError("failed to marshal data source schema", err)
		}
		dataSources[name] = raw
	}
	return prov, resources, dataSources, nil
}
