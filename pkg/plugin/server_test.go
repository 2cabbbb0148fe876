package plugin

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/openfroyo/providerkit/pkg/diag"
	"github.com/openfroyo/providerkit/pkg/dynamic"
	"github.com/openfroyo/providerkit/pkg/plan"
	"github.com/openfroyo/providerkit/pkg/provider"
	"github.com/openfroyo/providerkit/pkg/schema"
	"github.com/openfroyo/providerkit/pkg/telemetry"
	"github.com/openfroyo/providerkit/pkg/wire"
)

// echoResource is an in-memory machine used to exercise the dispatcher.
type echoResource struct{}

func (echoResource) Schema(ctx context.Context) schema.Schema {
	return schema.NewBuilder().
		Attribute(schema.NewAttribute("name", schema.StringType()).Required().Build()).
		Attribute(schema.NewAttribute("id", schema.StringType()).Computed().Build()).
		Build()
}

func (echoResource) ValidateConfig(ctx context.Context, req provider.ValidateRequest) provider.ValidateResponse {
	name, _ := req.Config.GetString(dynamic.PathTo("name"))
	if strings.TrimSpace(name) == "" {
		var ds diag.Diagnostics
		ds.AddAttributeError("name", "name must not be blank", "")
		return provider.ValidateResponse{Diagnostics: ds}
	}
	return provider.ValidateResponse{}
}

func (echoResource) Create(ctx context.Context, req provider.CreateRequest) provider.CreateResponse {
	return provider.CreateResponse{State: req.Planned.WithAttr("id", dynamic.String("m-1"))}
}

func (echoResource) Update(ctx context.Context, req provider.UpdateRequest) provider.UpdateResponse {
	return provider.UpdateResponse{State: req.Planned}
}

func (echoResource) Delete(ctx context.Context, req provider.DeleteRequest) provider.DeleteResponse {
	return provider.DeleteResponse{State: dynamic.Null()}
}

func (echoResource) Read(ctx context.Context, req provider.ReadRequest) provider.ReadResponse {
	return provider.ReadResponse{State: req.Current}
}

func (echoResource) Import(ctx context.Context, req provider.ImportRequest) provider.ImportResponse {
	return provider.ImportResponse{State: dynamic.Object(map[string]dynamic.Value{
		"name": dynamic.String("imported"),
		"id":   dynamic.String(req.ID),
	})}
}

var _ provider.Resource = echoResource{}

// boomResource fails every mutation.
type boomResource struct{ echoResource }

func (boomResource) Create(ctx context.Context, req provider.CreateRequest) provider.CreateResponse {
	var ds diag.Diagnostics
	ds.AddError("backend unavailable", "create refused")
	return provider.CreateResponse{State: dynamic.Null(), Diagnostics: ds}
}

func newTestLifecycle(t *testing.T) *provider.Lifecycle {
	t.Helper()
	reg := provider.NewRegistry()
	err := reg.RegisterResource(context.Background(), "echo_machine",
		func() provider.Resource { return echoResource{} }, plan.DeleteThenCreate)
	if err != nil {
		t.Fatalf("RegisterResource: %v", err)
	}
	err = reg.RegisterResource(context.Background(), "boom_machine",
		func() provider.Resource { return boomResource{} }, plan.DeleteThenCreate)
	if err != nil {
		t.Fatalf("RegisterResource: %v", err)
	}

	tel := newTestTelemetry(t)
	lc, err := provider.NewLifecycle(provider.Definition{
		Name:    "echo",
		Version: "0.0.1",
		Schema: schema.NewBuilder().
			Attribute(schema.NewAttribute("endpoint", schema.StringType()).Required().Build()).
			Build(),
		Configure: func(ctx context.Context, config dynamic.Value) (any, diag.Diagnostics) {
			return "configured", nil
		},
	}, reg, tel.Logger.Zerolog())
	if err != nil {
		t.Fatalf("NewLifecycle: %v", err)
	}
	return lc
}

func newTestTelemetry(t *testing.T) *telemetry.Telemetry {
	t.Helper()
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Level = "error"
	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("NewTelemetry: %v", err)
	}
	return tel
}

// testChannel runs a dispatcher over in-memory pipes and gives the test a
// client-side encoder/decoder pair.
type testChannel struct {
	enc  *Encoder
	dec  *Decoder
	reqW *io.PipeWriter
	tel  *telemetry.Telemetry
	done chan error
	next int
}

func newTestChannel(t *testing.T, lc *provider.Lifecycle) *testChannel {
	t.Helper()
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	tel := newTestTelemetry(t)
	d := NewDispatcher(lc, tel, ProtocolVersion)
	done := make(chan error, 1)
	go func() {
		done <- d.Run(context.Background(), reqR, respW)
		respW.Close()
	}()

	return &testChannel{
		enc:  NewEncoder(reqW),
		dec:  NewDecoder(respR),
		reqW: reqW,
		tel:  tel,
		done: done,
	}
}

// metricsText scrapes the channel's metrics endpoint.
func (c *testChannel) metricsText(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.tel.Metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}

// call sends one request and waits for its response frame.
func (c *testChannel) call(t *testing.T, method Method, body any) *Frame {
	t.Helper()
	c.next++
	id := fmt.Sprintf("req-%d", c.next)

	var raw json.RawMessage
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		raw = b
	}
	if err := c.enc.Encode(&Frame{ID: id, Method: method, Body: raw}); err != nil {
		t.Fatalf("send %s: %v", method, err)
	}

	resp, err := c.dec.Decode()
	if err != nil {
		t.Fatalf("receive %s response: %v", method, err)
	}
	if resp.ID != id {
		t.Fatalf("response id = %q, want %q", resp.ID, id)
	}
	return resp
}

func (c *testChannel) close(t *testing.T) error {
	t.Helper()
	c.reqW.Close()
	select {
	case err := <-c.done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not exit")
		return nil
	}
}

func parseResp(t *testing.T, f *Frame, target any) {
	t.Helper()
	if f.Diagnostics.HasErrors() {
		t.Fatalf("unexpected error diagnostics: %v", f.Diagnostics)
	}
	if err := json.Unmarshal(f.Body, target); err != nil {
		t.Fatalf("parse response body: %v", err)
	}
}

func encodeValue(t *testing.T, v dynamic.Value) []byte {
	t.Helper()
	raw, err := wire.Encode(v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return raw
}

func TestDispatcher_GetSchema(t *testing.T) {
	c := newTestChannel(t, newTestLifecycle(t))
	defer c.close(t)

	var resp GetSchemaResponse
	parseResp(t, c.call(t, MethodGetSchema, nil), &resp)

	if resp.ProtocolVersion != ProtocolVersion {
		t.Errorf("protocol version = %q", resp.ProtocolVersion)
	}
	if resp.ProviderName != "echo" || resp.ProviderVersion != "0.0.1" {
		t.Errorf("provider identity = %q %q", resp.ProviderName, resp.ProviderVersion)
	}
	if _, ok := resp.Resources["echo_machine"]; !ok {
		t.Error("published schemas must include echo_machine")
	}
	if len(resp.Provider) == 0 {
		t.Error("provider schema missing")
	}
}

func TestDispatcher_ValidateConfig(t *testing.T) {
	c := newTestChannel(t, newTestLifecycle(t))
	defer c.close(t)

	resp := c.call(t, MethodValidateConfig, &ValidateConfigRequest{
		Config: encodeValue(t, dynamic.Object(map[string]dynamic.Value{
			"endpoint": dynamic.String("https://virt.local"),
		})),
	})
	if resp.Diagnostics.HasErrors() {
		t.Errorf("valid provider config rejected: %v", resp.Diagnostics)
	}

	resp = c.call(t, MethodValidateConfig, &ValidateConfigRequest{
		TypeName: "echo_machine",
		Config: encodeValue(t, dynamic.Object(map[string]dynamic.Value{
			"name": dynamic.String("   "),
		})),
	})
	if !resp.Diagnostics.HasErrors() {
		t.Error("blank name must produce diagnostics")
	}

	resp = c.call(t, MethodValidateConfig, &ValidateConfigRequest{
		TypeName: "no_such_type",
		Config:   encodeValue(t, dynamic.Object(nil)),
	})
	if !resp.Diagnostics.HasErrors() {
		t.Error("unknown type must produce diagnostics")
	}
}

func TestDispatcher_PlanApplyFlow(t *testing.T) {
	c := newTestChannel(t, newTestLifecycle(t))
	defer c.close(t)

	configure := c.call(t, MethodConfigureProvider, &ConfigureProviderRequest{
		Config: encodeValue(t, dynamic.Object(map[string]dynamic.Value{
			"endpoint": dynamic.String("https://virt.local"),
		})),
	})
	if configure.Diagnostics.HasErrors() {
		t.Fatalf("configure: %v", configure.Diagnostics)
	}

	config := encodeValue(t, dynamic.Object(map[string]dynamic.Value{
		"name": dynamic.String("web"),
	}))

	var planResp PlanResourceChangeResponse
	parseResp(t, c.call(t, MethodPlanResourceChange, &PlanResourceChangeRequest{
		TypeName: "echo_machine",
		Config:   config,
		Private:  []byte(`{"k":"dmFsdWU="}`),
	}), &planResp)

	if planResp.Action != plan.ActionCreate {
		t.Fatalf("action = %s", planResp.Action)
	}
	if string(planResp.Private) != `{"k":"dmFsdWU="}` {
		t.Error("private blob must pass through planning untouched")
	}

	var applyResp ApplyResourceChangeResponse
	parseResp(t, c.call(t, MethodApplyResourceChange, &ApplyResourceChangeRequest{
		TypeName: "echo_machine",
		Config:   config,
	}), &applyResp)

	state, err := wire.Decode(applyResp.State, echoResource{}.Schema(context.Background()))
	if err != nil {
		t.Fatalf("decode applied state: %v", err)
	}
	if id, _ := state.GetString(dynamic.PathTo("id")); id != "m-1" {
		t.Errorf("id = %q", id)
	}

	// Re-planning the applied state with the same config is a no-op and the
	// planned payload round-trips bit for bit.
	var second PlanResourceChangeResponse
	parseResp(t, c.call(t, MethodPlanResourceChange, &PlanResourceChangeRequest{
		TypeName: "echo_machine",
		Prior:    applyResp.State,
		Config:   config,
	}), &second)

	if second.Action != plan.ActionNoOp {
		t.Errorf("action = %s, want %s", second.Action, plan.ActionNoOp)
	}
	if string(second.Planned) != string(applyResp.State) {
		t.Errorf("no-op planned payload differs from prior:\n%s\n%s", second.Planned, applyResp.State)
	}
	if len(second.Changes) != 0 {
		t.Errorf("no-op changes = %v", second.Changes)
	}
}

func TestDispatcher_ApplyBeforeConfigure(t *testing.T) {
	c := newTestChannel(t, newTestLifecycle(t))
	defer c.close(t)

	resp := c.call(t, MethodApplyResourceChange, &ApplyResourceChangeRequest{
		TypeName: "echo_machine",
		Config: encodeValue(t, dynamic.Object(map[string]dynamic.Value{
			"name": dynamic.String("web"),
		})),
	})
	if !resp.Diagnostics.HasErrors() {
		t.Error("apply before configuration must fail")
	}
}

func TestDispatcher_ImportResourceState(t *testing.T) {
	c := newTestChannel(t, newTestLifecycle(t))
	defer c.close(t)

	c.call(t, MethodConfigureProvider, &ConfigureProviderRequest{
		Config: encodeValue(t, dynamic.Object(map[string]dynamic.Value{
			"endpoint": dynamic.String("https://virt.local"),
		})),
	})

	var resp ImportResourceStateResponse
	parseResp(t, c.call(t, MethodImportResourceState, &ImportResourceStateRequest{
		TypeName: "echo_machine",
		ID:       "m-42",
	}), &resp)

	state, err := wire.Decode(resp.State, echoResource{}.Schema(context.Background()))
	if err != nil {
		t.Fatalf("decode imported state: %v", err)
	}
	if id, _ := state.GetString(dynamic.PathTo("id")); id != "m-42" {
		t.Errorf("id = %q", id)
	}
}

func TestDispatcher_UnknownResourceType(t *testing.T) {
	c := newTestChannel(t, newTestLifecycle(t))
	defer c.close(t)

	resp := c.call(t, MethodPlanResourceChange, &PlanResourceChangeRequest{
		TypeName: "no_such_type",
	})
	if !resp.Diagnostics.HasErrors() {
		t.Error("unknown resource type must produce diagnostics")
	}
}

func TestDispatcher_CountsClassifiedErrors(t *testing.T) {
	c := newTestChannel(t, newTestLifecycle(t))
	defer c.close(t)

	resp := c.call(t, MethodPlanResourceChange, &PlanResourceChangeRequest{
		TypeName: "no_such_type",
	})
	if !resp.Diagnostics.HasErrors() {
		t.Fatal("unknown resource type must produce diagnostics")
	}

	body := c.metricsText(t)
	if !strings.Contains(body, `providerkit_errors_by_class_total{class="type"} 1`) {
		t.Errorf("error class not counted:\n%s", body)
	}
	if !strings.Contains(body, `providerkit_errors_by_code_total{code="`+diag.CodeUnknownResource+`"} 1`) {
		t.Errorf("error code not counted:\n%s", body)
	}
}

func TestDispatcher_CountsApplyFailures(t *testing.T) {
	c := newTestChannel(t, newTestLifecycle(t))
	defer c.close(t)

	c.call(t, MethodConfigureProvider, &ConfigureProviderRequest{
		Config: encodeValue(t, dynamic.Object(map[string]dynamic.Value{
			"endpoint": dynamic.String("https://virt.local"),
		})),
	})

	resp := c.call(t, MethodApplyResourceChange, &ApplyResourceChangeRequest{
		TypeName: "boom_machine",
		Config: encodeValue(t, dynamic.Object(map[string]dynamic.Value{
			"name": dynamic.String("web"),
		})),
	})
	if !resp.Diagnostics.HasErrors() {
		t.Fatal("failing create must surface diagnostics")
	}

	body := c.metricsText(t)
	if !strings.Contains(body, `providerkit_apply_failures_total{action="create",type_name="boom_machine"} 1`) {
		t.Errorf("apply failure not counted:\n%s", body)
	}
}

func TestDispatcher_StopDrains(t *testing.T) {
	c := newTestChannel(t, newTestLifecycle(t))

	resp := c.call(t, MethodStop, &StopRequest{})
	if resp.Diagnostics.HasErrors() {
		t.Errorf("stop: %v", resp.Diagnostics)
	}

	select {
	case err := <-c.done:
		if err != nil {
			t.Errorf("Run after stop = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not exit after stop")
	}
}

func TestDispatcher_EOFExitsClean(t *testing.T) {
	c := newTestChannel(t, newTestLifecycle(t))
	if err := c.close(t); err != nil {
		t.Errorf("Run after EOF = %v, want nil", err)
	}
}

func TestDispatcher_MalformedFrameFatal(t *testing.T) {
	reqR, reqW := io.Pipe()
	_, respW := io.Pipe()

	d := NewDispatcher(newTestLifecycle(t), newTestTelemetry(t), ProtocolVersion)
	done := make(chan error, 1)
	go func() {
		done <- d.Run(context.Background(), reqR, respW)
	}()

	if _, err := reqW.Write([]byte("{this is not a frame\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("malformed frame must close the channel with an error")
		}
		if diag.ClassOf(err) != diag.ErrorClassCodec {
			t.Errorf("error class = %s, want %s", diag.ClassOf(err), diag.ErrorClassCodec)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not exit on malformed frame")
	}
}

func TestDecoder_RejectsUnknownMethod(t *testing.T) {
	dec := NewDecoder(strings.NewReader(`{"id":"1","method":"Explode"}` + "\n"))
	if _, err := dec.Decode(); err == nil {
		t.Error("unknown method must be rejected at the framing layer")
	}
}

func TestDecoder_GrowsForLargeFrames(t *testing.T) {
	big := `"` + strings.Repeat("x", 200*1024) + `"`

	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	if err := enc.Encode(&Frame{ID: "1", Method: MethodApplyResourceChange, Body: json.RawMessage(big)}); err != nil {
		t.Fatalf("encode: %v", err)
	}

	f, err := NewDecoder(&buf).Decode()
	if err != nil {
		t.Fatalf("decode frame beyond the initial buffer: %v", err)
	}
	if len(f.Body) != len(big) {
		t.Errorf("body length = %d, want %d", len(f.Body), len(big))
	}
}

func TestEncoderDecoder_RoundTrip(t *testing.T) {
	r, w := io.Pipe()
	enc := NewEncoder(w)
	dec := NewDecoder(r)

	go func() {
		enc.Encode(&Frame{ID: "a", Method: MethodGetSchema})
		enc.Encode(&Frame{ID: "b", Method: MethodStop})
	}()

	first, err := dec.Decode()
	if err != nil || first.ID != "a" || first.Method != MethodGetSchema {
		t.Fatalf("first frame = %+v, %v", first, err)
	}
	second, err := dec.Decode()
	if err != nil || second.ID != "b" || second.Method != MethodStop {
		t.Fatalf("second frame = %+v, %v", second, err)
	}
}

func TestNegotiateVersion(t *testing.T) {
	if v, err := NegotiateVersion(""); err != nil || v != ProtocolVersion {
		t.Errorf("legacy negotiation = %q, %v", v, err)
	}
	if v, err := NegotiateVersion("1.0"); err != nil || v != ProtocolVersion {
		t.Errorf("exact negotiation = %q, %v", v, err)
	}
	if v, err := NegotiateVersion("0.9, 1.0, 2.0"); err != nil || v != ProtocolVersion {
		t.Errorf("list negotiation = %q, %v", v, err)
	}
	if _, err := NegotiateVersion("2.0,3.0"); err == nil {
		t.Error("disjoint versions must fail negotiation")
	}
}

func TestCheckCookie(t *testing.T) {
	t.Setenv(CookieEnv, "")
	if err := CheckCookie(); err == nil {
		t.Error("missing cookie must fail")
	}
	t.Setenv(CookieEnv, CookieValue)
	if err := CheckCookie(); err != nil {
		t.Errorf("correct cookie rejected: %v", err)
	}
}

func TestHandshakeLine(t *testing.T) {
	line := HandshakeLine("1.0", "tcp", "127.0.0.1:4321", []byte{0xde, 0xad})
	parts := strings.Split(line, "|")
	if len(parts) != 6 {
		t.Fatalf("handshake line has %d fields: %q", len(parts), line)
	}
	if parts[0] != "1" || parts[1] != "1.0" || parts[2] != "tcp" || parts[3] != "127.0.0.1:4321" || parts[4] != "json" {
		t.Errorf("handshake line = %q", line)
	}
	der, err := base64.StdEncoding.DecodeString(parts[5])
	if err != nil || len(der) != 2 {
		t.Errorf("certificate field = %q, %v", parts[5], err)
	}
}

func TestServe_OverTCP(t *testing.T) {
	t.Setenv(ProtocolVersionsEnv, "1.0")

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	lc := newTestLifecycle(t)
	tel := newTestTelemetry(t)

	handshakeR, handshakeW := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- Serve(context.Background(), ServeConfig{
			Lifecycle:       lc,
			Telemetry:       tel,
			Listener:        listener,
			Handshake:       handshakeW,
			DisableTLS:      true,
			SkipCookieCheck: true,
		})
	}()

	var line string
	if _, err := fmt.Fscanln(handshakeR, &line); err != nil {
		t.Fatalf("read handshake line: %v", err)
	}
	parts := strings.Split(line, "|")
	if len(parts) != 6 || parts[1] != "1.0" {
		t.Fatalf("handshake line = %q", line)
	}

	conn, err := net.Dial(parts[2], parts[3])
	if err != nil {
		t.Fatalf("dial %s %s: %v", parts[2], parts[3], err)
	}
	defer conn.Close()

	enc := NewEncoder(conn)
	dec := NewDecoder(conn)
	if err := enc.Encode(&Frame{ID: "1", Method: MethodGetSchema}); err != nil {
		t.Fatalf("send: %v", err)
	}
	resp, err := dec.Decode()
	if err != nil || resp.ID != "1" {
		t.Fatalf("schema response = %+v, %v", resp, err)
	}

	if err := enc.Encode(&Frame{ID: "2", Method: MethodStop}); err != nil {
		t.Fatalf("send stop: %v", err)
	}
	if _, err := dec.Decode(); err != nil {
		t.Fatalf("stop response: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not exit after stop")
	}
}

func TestGenerateServerTLS(t *testing.T) {
	t.Setenv(ClientCertEnv, "")

	cfg, der, err := GenerateServerTLS()
	if err != nil {
		t.Fatalf("GenerateServerTLS: %v", err)
	}
	if len(cfg.Certificates) != 1 || len(der) == 0 {
		t.Error("missing generated certificate")
	}
	if cfg.ClientAuth != 0 {
		t.Error("mutual TLS must be off without a client certificate")
	}

	_, again, err := GenerateServerTLS()
	if err != nil {
		t.Fatalf("GenerateServerTLS: %v", err)
	}
	if string(der) == string(again) {
		t.Error("each invocation must mint a fresh certificate")
	}
}
