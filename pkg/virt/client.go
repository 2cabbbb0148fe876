// Package virt is an example backend integration: a provider for a
// Proxmox-style virtualization REST API, built entirely on the framework's
// public surface. It demonstrates the intended shape of a provider: a thin
// HTTP client, resource implementations that hold no state between calls,
// and a data source.
package virt

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a minimal JSON client for the virtualization API. All state a
// call needs travels in its arguments; the client itself is safe for
// concurrent use.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
}

// NewClient creates a client for the given endpoint. insecure disables
// certificate verification for lab backends with self-signed certificates.
func NewClient(endpoint, token string, insecure bool) (*Client, error) {
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("endpoint must start with http:// or https://")
	}

	transport := &http.Transport{}
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402
	}

	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    token,
		http: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
	}, nil
}

// VersionInfo is the backend version report.
type VersionInfo struct {
	Version string `json:"version"`
	Release string `json:"release"`
	RepoID  string `json:"repoid"`
}

// VM is the backend's view of a virtual machine.
type VM struct {
	Node   string `json:"node"`
	VMID   int64  `json:"vmid"`
	Name   string `json:"name"`
	Cores  int64  `json:"cores,omitempty"`
	Memory int64  `json:"memory,omitempty"`
	IP     string `json:"ip,omitempty"`
}

// Realm is an authentication realm.
type Realm struct {
	Realm     string `json:"realm"`
	Type      string `json:"type"`
	IssuerURL string `json:"issuer-url,omitempty"`
	ClientID  string `json:"client-id,omitempty"`
	ClientKey string `json:"client-key,omitempty"`
	Comment   string `json:"comment,omitempty"`
	Default   bool   `json:"default,omitempty"`
}

// apiResponse is the envelope every backend response uses.
type apiResponse struct {
	Data json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "PVEAPIToken="+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out == nil {
		return nil
	}
	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%s %s: malformed response: %w", method, path, err)
	}
	if len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("%s %s: malformed response data: %w", method, path, err)
	}
	return nil
}

var errNotFound = fmt.Errorf("not found")

// IsNotFound reports whether the error marks a missing backend object.
func IsNotFound(err error) bool {
	return err == errNotFound
}

// Version fetches the backend version.
func (c *Client) Version(ctx context.Context) (VersionInfo, error) {
	var v VersionInfo
	err := c.do(ctx, http.MethodGet, "/api2/json/version", nil, &v)
	return v, err
}

// CreateVM creates a virtual machine and returns the backend's view of it.
func (c *Client) CreateVM(ctx context.Context, vm VM) (VM, error) {
	path := fmt.Sprintf("/api2/json/nodes/%s/qemu", vm.Node)
	var created VM
	if err := c.do(ctx, http.MethodPost, path, vm, &created); err != nil {
		return VM{}, err
	}
	return created, nil
}

// GetVM fetches a virtual machine. The second result is false when the
// backend no longer has it.
func (c *Client) GetVM(ctx context.Context, node string, vmid int64) (VM, bool, error) {
	path := fmt.Sprintf("/api2/json/nodes/%s/qemu/%d", node, vmid)
	var vm VM
	if err := c.do(ctx, http.MethodGet, path, nil, &vm); err != nil {
		if IsNotFound(err) {
			return VM{}, false, nil
		}
		return VM{}, false, err
	}
	return vm, true, nil
}

// UpdateVM mutates a virtual machine in place.
func (c *Client) UpdateVM(ctx context.Context, vm VM) (VM, error) {
	path := fmt.Sprintf("/api2/json/nodes/%s/qemu/%d", vm.Node, vm.VMID)
	var updated VM
	if err := c.do(ctx, http.MethodPut, path, vm, &updated); err != nil {
		return VM{}, err
	}
	return updated, nil
}

// DeleteVM removes a virtual machine. Deleting a machine the backend no
// longer has is not an error.
func (c *Client) DeleteVM(ctx context.Context, node string, vmid int64) error {
	path := fmt.Sprintf("/api2/json/nodes/%s/qemu/%d", node, vmid)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil && !IsNotFound(err) {
		return err
	}
	return nil
}

// CreateRealm creates an authentication realm.
func (c *Client) CreateRealm(ctx context.Context, r Realm) error {
	return c.do(ctx, http.MethodPost, "/api2/json/access/domains", r, nil)
}

// GetRealm fetches a realm by name. The second result is false when the
// backend no longer has it.
func (c *Client) GetRealm(ctx context.Context, name string) (Realm, bool, error) {
	var r Realm
	if err := c.do(ctx, http.MethodGet, "/api2/json/access/domains/"+name, nil, &r); err != nil {
		if IsNotFound(err) {
			return Realm{}, false, nil
		}
		return Realm{}, false, err
	}
	return r, true, nil
}

// UpdateRealm mutates a realm in place.
func (c *Client) UpdateRealm(ctx context.Context, r Realm) error {
	return c.do(ctx, http.MethodPut, "/api2/json/access/domains/"+r.Realm, r, nil)
}

// DeleteRealm removes a realm.
func (c *Client) DeleteRealm(ctx context.Context, name string) error {
	if err := c.do(ctx, http.MethodDelete, "/api2/json/access/domains/"+name, nil, nil); err != nil && !IsNotFound(err) {
		return err
	}
	return nil
}
