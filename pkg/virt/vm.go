package virt

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/openfroyo/providerkit/pkg/dynamic"
	"github.com/openfroyo/providerkit/pkg/provider"
	"github.com/openfroyo/providerkit/pkg/schema"
	"github.com/openfroyo/providerkit/pkg/telemetry"
)

// vmResource manages one virtual machine. Moving a machine between nodes
// or renaming it means destroying and recreating it, so both attributes
// require replacement. The address is assigned by the backend on the node
// the machine lands on; it is re-derived whenever the node changes.
type vmResource struct{}

func (r *vmResource) Schema(ctx context.Context) schema.Schema {
	return schema.NewBuilder().
		Version(1).
		Description("A virtual machine").
		Attribute(schema.NewAttribute("node", schema.StringType()).
			Description("Cluster node the machine runs on").
			Required().
			RequiresReplace().
			Build()).
		Attribute(schema.NewAttribute("name", schema.StringType()).
			Description("Machine name").
			Required().
			RequiresReplace().
			Build()).
		Attribute(schema.NewAttribute("cores", schema.NumberType()).
			Description("CPU core count").
			Optional().
			Build()).
		Attribute(schema.NewAttribute("memory", schema.NumberType()).
			Description("Memory in MiB").
			Optional().
			Build()).
		Attribute(schema.NewAttribute("id", schema.StringType()).
			Description("Backend machine identifier").
			Computed().
			Build()).
		Attribute(schema.NewAttribute("ip", schema.StringType()).
			Description("Assigned address").
			Computed().
			DependsOn("node").
			Build()).
		Build()
}

func (r *vmResource) ValidateConfig(ctx context.Context, req provider.ValidateRequest) provider.ValidateResponse {
	var resp provider.ValidateResponse
	if v, ok := req.Config.Attr("name"); ok && !v.IsNull() {
		name, _ := v.AsString()
		if strings.ContainsAny(name, " \t") {
			resp.Diagnostics.AddAttributeError("name", "invalid machine name", "machine names cannot contain whitespace")
		}
	}
	if v, ok := req.Config.Attr("cores"); ok && !v.IsNull() && v.IsKnown() {
		if cores, err := v.AsInt64(); err == nil && cores < 1 {
			resp.Diagnostics.AddAttributeError("cores", "invalid core count", "cores must be at least 1")
		}
	}
	return resp
}

// vmFromState reads the backend identity out of a state value.
func vmFromState(state dynamic.Value) (node string, vmid int64, err error) {
	node, err = state.GetString(dynamic.PathTo("node"))
	if err != nil {
		return "", 0, err
	}
	idStr, err := state.GetString(dynamic.PathTo("id"))
	if err != nil {
		return "", 0, err
	}
	vmid, err = strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed machine id %q: %w", idStr, err)
	}
	return node, vmid, nil
}

// vmSpec builds the backend request from a planned state.
func vmSpec(planned dynamic.Value) VM {
	vm := VM{}
	vm.Node, _ = planned.GetString(dynamic.PathTo("node"))
	vm.Name, _ = planned.GetString(dynamic.PathTo("name"))
	if v, ok := planned.Attr("cores"); ok && v.IsKnown() && !v.IsNull() {
		vm.Cores, _ = v.AsInt64()
	}
	if v, ok := planned.Attr("memory"); ok && v.IsKnown() && !v.IsNull() {
		vm.Memory, _ = v.AsInt64()
	}
	return vm
}

// vmState renders the backend's view into a state value, preserving the
// configured optional attributes from base.
func vmState(base dynamic.Value, vm VM) dynamic.Value {
	state := base.
		WithAttr("node", dynamic.String(vm.Node)).
		WithAttr("name", dynamic.String(vm.Name)).
		WithAttr("id", dynamic.String(strconv.FormatInt(vm.VMID, 10))).
		WithAttr("ip", dynamic.String(vm.IP))
	if vm.Cores > 0 {
		state = state.WithAttr("cores", dynamic.NumberInt(vm.Cores))
	}
	if vm.Memory > 0 {
		state = state.WithAttr("memory", dynamic.NumberInt(vm.Memory))
	}
	return state
}

func (r *vmResource) Create(ctx context.Context, req provider.CreateRequest) provider.CreateResponse {
	var resp provider.CreateResponse
	client, ds := clientFrom(req.ProviderData)
	if ds.HasErrors() {
		resp.State = dynamic.Null()
		resp.Diagnostics = ds
		return resp
	}

	var created VM
	err := telemetry.RecordResourceOperation(ctx, "virt_vm", "create", func(ctx context.Context) error {
		var err error
		created, err = client.CreateVM(ctx, vmSpec(req.Planned))
		return err
	})
	if err != nil {
		resp.State = dynamic.Null()
		resp.Diagnostics.AddError("failed to create machine", err.Error())
		return resp
	}

	resp.State = vmState(req.Planned, created)
	resp.Private = req.Private
	return resp
}

func (r *vmResource) Update(ctx context.Context, req provider.UpdateRequest) provider.UpdateResponse {
	var resp provider.UpdateResponse
	client, ds := clientFrom(req.ProviderData)
	if ds.HasErrors() {
		resp.State = req.Prior
		resp.Diagnostics = ds
		return resp
	}

	node, vmid, err := vmFromState(req.Prior)
	if err != nil {
		resp.State = req.Prior
		resp.Diagnostics.AddError("prior state missing machine identity", err.Error())
		return resp
	}

	spec := vmSpec(req.Planned)
	spec.Node = node
	spec.VMID = vmid
	var updated VM
	err = telemetry.RecordResourceOperation(ctx, "virt_vm", "update", func(ctx context.Context) error {
		var err error
		updated, err = client.UpdateVM(ctx, spec)
		return err
	})
	if err != nil {
		// The machine still exists as it was.
		resp.State = req.Prior
		resp.Diagnostics.AddError("failed to update machine", err.Error())
		return resp
	}

	resp.State = vmState(req.Planned, updated)
	resp.Private = req.Private
	return resp
}

func (r *vmResource) Delete(ctx context.Context, req provider.DeleteRequest) provider.DeleteResponse {
	var resp provider.DeleteResponse
	client, ds := clientFrom(req.ProviderData)
	if ds.HasErrors() {
		resp.State = req.Prior
		resp.Diagnostics = ds
		return resp
	}

	node, vmid, err := vmFromState(req.Prior)
	if err != nil {
		resp.State = req.Prior
		resp.Diagnostics.AddError("prior state missing machine identity", err.Error())
		return resp
	}

	err = telemetry.RecordResourceOperation(ctx, "virt_vm", "delete", func(ctx context.Context) error {
		return client.DeleteVM(ctx, node, vmid)
	})
	if err != nil {
		resp.State = req.Prior
		resp.Diagnostics.AddError("failed to delete machine", err.Error())
		return resp
	}

	resp.State = dynamic.Null()
	return resp
}

func (r *vmResource) Read(ctx context.Context, req provider.ReadRequest) provider.ReadResponse {
	var resp provider.ReadResponse
	client, ds := clientFrom(req.ProviderData)
	if ds.HasErrors() {
		resp.State = req.Current
		resp.Diagnostics = ds
		return resp
	}

	node, vmid, err := vmFromState(req.Current)
	if err != nil {
		resp.State = req.Current
		resp.Diagnostics.AddError("recorded state missing machine identity", err.Error())
		return resp
	}

	vm, exists, err := client.GetVM(ctx, node, vmid)
	if err != nil {
		resp.State = req.Current
		resp.Diagnostics.AddError("failed to read machine", err.Error())
		return resp
	}
	if !exists {
		resp.State = dynamic.Null()
		return resp
	}

	resp.State = vmState(req.Current, vm)
	resp.Private = req.Private
	return resp
}

// Import accepts "node/vmid" identifiers.
func (r *vmResource) Import(ctx context.Context, req provider.ImportRequest) provider.ImportResponse {
	var resp provider.ImportResponse
	client, ds := clientFrom(req.ProviderData)
	if ds.HasErrors() {
		resp.State = dynamic.Null()
		resp.Diagnostics = ds
		return resp
	}

	parts := strings.SplitN(req.ID, "/", 2)
	if len(parts) != 2 {
		resp.State = dynamic.Null()
		resp.Diagnostics.AddError("invalid import identifier", fmt.Sprintf("expected node/vmid, got %q", req.ID))
		return resp
	}
	vmid, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		resp.State = dynamic.Null()
		resp.Diagnostics.AddError("invalid import identifier", fmt.Sprintf("vmid %q is not a number", parts[1]))
		return resp
	}

	vm, exists, err := client.GetVM(ctx, parts[0], vmid)
	if err != nil {
		resp.State = dynamic.Null()
		resp.Diagnostics.AddError("failed to import machine", err.Error())
		return resp
	}
	if !exists {
		resp.State = dynamic.Null()
		resp.Diagnostics.AddError("machine not found", fmt.Sprintf("no machine %d on node %s", vmid, parts[0]))
		return resp
	}

	resp.State = vmState(dynamic.Object(map[string]dynamic.Value{
		"cores":  dynamic.Null(),
		"memory": dynamic.Null(),
	}), vm)
	return resp
}

var _ provider.Resource = (*vmResource)(nil)
