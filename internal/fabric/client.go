// Copyright 2025 Flant JSC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package fabric is the REST client of the disaggregated-fabric controller.
package fabric

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/oauth2"

	"github.com/aleksandr-podmoskovniy/fabric-control-plane/internal/config"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/failure"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/ports"
	"github.com/aleksandr-podmoskovniy/fabric-control-plane/pkg/resource"
)

const (
	defaultTimeout = 30 * time.Second
	// poolSegment addresses the edit of the unassigned device pool.
	poolSegment = "pool"
	tenantParam = "tenant_uuid"
)

// ErrEmptyID is returned when a create call succeeds without an id.
var ErrEmptyID = errors.New("fabric returned an empty id")

// StatusError is a non-2xx answer of the fabric controller.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code == "" && e.Message == "" {
		return fmt.Sprintf("fabric returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("fabric returned HTTP %d, code %q: %s", e.StatusCode, e.Code, e.Message)
}

type Client struct {
	base   *url.URL
	tenant string
	http   *http.Client
	log    logr.Logger
}

var _ ports.Fabric = (*Client)(nil)

type Option func(*Client)

// WithHTTPClient replaces the token-aware client built from the config.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithLogger(log logr.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New builds a client for cfg. A non-empty token is sent as a bearer token.
func New(ctx context.Context, cfg config.FabricConfig, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.Endpoint))
	if err != nil {
		return nil, fmt.Errorf("parse fabric endpoint: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" || base.Host == "" {
		return nil, fmt.Errorf("fabric endpoint %q must be an absolute http or https URL", cfg.Endpoint)
	}

	c := &Client{
		base:   base,
		tenant: cfg.TenantID,
		http:   newHTTPClient(ctx, cfg.Token, cfg.Timeout),
		log:    logr.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func newHTTPClient(ctx context.Context, token string, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if token == "" {
		return &http.Client{Timeout: timeout}
	}
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
	hc.Timeout = timeout
	return hc
}

func (c *Client) DeviceStatuses(ctx context.Context) ([]ports.DeviceStatus, error) {
	items, err := list[deviceStatus](ctx, c, "list device statuses", nil, "devices", "status")
	if err != nil {
		return nil, err
	}
	out := make([]ports.DeviceStatus, 0, len(items))
	for _, it := range items {
		out = append(out, ports.DeviceStatus{ID: it.ID, Name: it.Name, State: it.State})
	}
	return out, nil
}

func (c *Client) DeviceInfo(ctx context.Context, t resource.GeneralType) ([]ports.DeviceInfo, error) {
	op := fmt.Sprintf("list %s device info", t)
	query := url.Values{"type": {strings.ToLower(string(t))}}
	items, err := list[deviceInfo](ctx, c, op, query, "devices")
	if err != nil {
		return nil, err
	}
	out := make([]ports.DeviceInfo, 0, len(items))
	for _, it := range items {
		info := ports.DeviceInfo{ID: it.ID, Type: t, Vendor: it.Vendor, Model: it.Model}
		if it.Type != "" {
			parsed, err := resource.ParseGeneralType(it.Type)
			if err != nil {
				return nil, failure.New(failure.DataInconsistency, op, fmt.Errorf("device %q: %w", it.ID, err))
			}
			if parsed != t {
				return nil, failure.Inconsistent(op, "device %q has type %s, requested %s", it.ID, parsed, t)
			}
		}
		out = append(out, info)
	}
	return out, nil
}

func (c *Client) Groups(ctx context.Context) ([]ports.GroupRecord, error) {
	items, err := list[group](ctx, c, "list groups", nil, "groups")
	if err != nil {
		return nil, err
	}
	out := make([]ports.GroupRecord, 0, len(items))
	for _, it := range items {
		out = append(out, ports.GroupRecord{ID: it.ID, Name: it.Name})
	}
	return out, nil
}

func (c *Client) Machines(ctx context.Context) ([]ports.MachineRecord, error) {
	items, err := list[machine](ctx, c, "list machines", nil, "machines")
	if err != nil {
		return nil, err
	}
	out := make([]ports.MachineRecord, 0, len(items))
	for _, it := range items {
		out = append(out, ports.MachineRecord{ID: it.ID, Name: it.Name, GroupID: it.GroupID, NodeName: it.NodeName})
	}
	return out, nil
}

func (c *Client) Relations(ctx context.Context) ([]ports.Relation, error) {
	items, err := list[relation](ctx, c, "list device relations", nil, "relations")
	if err != nil {
		return nil, err
	}
	out := make([]ports.Relation, 0, len(items))
	for _, it := range items {
		out = append(out, ports.Relation{DeviceID: it.DeviceID, GroupID: it.GroupID, MachineID: it.MachineID})
	}
	return out, nil
}

func groupSegment(id string) string {
	if id == "" {
		return poolSegment
	}
	return id
}

func (c *Client) BeginGroupEdit(ctx context.Context, groupID string) error {
	return c.do(ctx, "begin group edit", http.MethodPost, nil, nil, nil, "groups", groupSegment(groupID), "edit")
}

func (c *Client) CommitGroupEdit(ctx context.Context, groupID string) error {
	return c.do(ctx, "commit group edit", http.MethodPost, nil, nil, nil, "groups", groupSegment(groupID), "edit", "commit")
}

func (c *Client) CancelGroupEdit(ctx context.Context, groupID string) error {
	return c.do(ctx, "cancel group edit", http.MethodPost, nil, nil, nil, "groups", groupSegment(groupID), "edit", "cancel")
}

func (c *Client) BeginMachineEdit(ctx context.Context, machineID string) error {
	return c.do(ctx, "begin machine edit", http.MethodPost, nil, nil, nil, "machines", machineID, "edit")
}

func (c *Client) CommitMachineEdit(ctx context.Context, machineID string) error {
	return c.do(ctx, "commit machine edit", http.MethodPost, nil, nil, nil, "machines", machineID, "edit", "commit")
}

func (c *Client) CancelMachineEdit(ctx context.Context, machineID string) error {
	return c.do(ctx, "cancel machine edit", http.MethodPost, nil, nil, nil, "machines", machineID, "edit", "cancel")
}

func (c *Client) CreateGroup(ctx context.Context, name string) (string, error) {
	const op = "create group"
	var resp createdResponse
	if err := c.do(ctx, op, http.MethodPost, nil, createGroupRequest{Name: name}, &resp, "groups"); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", failure.New(failure.DataInconsistency, op, ErrEmptyID)
	}
	return resp.ID, nil
}

func (c *Client) DeleteGroup(ctx context.Context, groupID string) error {
	return c.do(ctx, "delete group", http.MethodDelete, nil, nil, nil, "groups", groupID)
}

func (c *Client) CreateMachine(ctx context.Context, groupID, name, computeDeviceID string) (string, error) {
	const op = "create machine"
	var resp createdResponse
	body := createMachineRequest{Name: name, ComputeDeviceID: computeDeviceID}
	if err := c.do(ctx, op, http.MethodPost, nil, body, &resp, "groups", groupID, "machines"); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", failure.New(failure.DataInconsistency, op, ErrEmptyID)
	}
	return resp.ID, nil
}

func (c *Client) DeleteMachine(ctx context.Context, machineID string) error {
	return c.do(ctx, "delete machine", http.MethodDelete, nil, nil, nil, "machines", machineID)
}

func (c *Client) AddDeviceToGroup(ctx context.Context, groupID, deviceID string) error {
	return c.do(ctx, "add device to group", http.MethodPut, nil, nil, nil, "groups", groupSegment(groupID), "devices", deviceID)
}

func (c *Client) RemoveDeviceFromGroup(ctx context.Context, groupID, deviceID string) error {
	return c.do(ctx, "remove device from group", http.MethodDelete, nil, nil, nil, "groups", groupSegment(groupID), "devices", deviceID)
}

func (c *Client) AddDeviceToMachine(ctx context.Context, machineID, deviceID string) error {
	return c.do(ctx, "add device to machine", http.MethodPut, nil, nil, nil, "machines", machineID, "devices", deviceID)
}

func (c *Client) RemoveDeviceFromMachine(ctx context.Context, machineID, deviceID string) error {
	return c.do(ctx, "remove device from machine", http.MethodDelete, nil, nil, nil, "machines", machineID, "devices", deviceID)
}

func list[T any](ctx context.Context, c *Client, op string, query url.Values, segments ...string) ([]T, error) {
	var resp listResponse[T]
	if err := c.do(ctx, op, http.MethodGet, query, nil, &resp, segments...); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// do sends one request. Transport failures and non-2xx answers are
// communication failures; an undecodable body is a data inconsistency.
func (c *Client) do(ctx context.Context, op, method string, query url.Values, in, out any, segments ...string) error {
	escaped := make([]string, 0, len(segments))
	for _, s := range segments {
		if s == "" {
			return failure.Internal(op, "empty path segment in %v", segments)
		}
		escaped = append(escaped, url.PathEscape(s))
	}
	u := c.base.JoinPath(escaped...)

	params := url.Values{}
	for k, v := range query {
		params[k] = v
	}
	if c.tenant != "" {
		params.Set(tenantParam, c.tenant)
	}
	u.RawQuery = params.Encode()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return failure.New(failure.InternalInvariantViolation, op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return failure.New(failure.InternalInvariantViolation, op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log.V(1).Info("fabric request", "op", op, "method", method, "path", u.Path)
	resp, err := c.http.Do(req)
	if err != nil {
		return failure.Comm(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure.Comm(op, fmt.Errorf("read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{StatusCode: resp.StatusCode}
		eb := errorBody{}
		if json.Unmarshal(data, &eb) == nil {
			statusErr.Code = eb.Code
			statusErr.Message = eb.Message
		}
		c.log.V(1).Info("fabric request failed", "op", op, "status", resp.StatusCode, "code", statusErr.Code)
		return failure.Comm(op, statusErr)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return failure.New(failure.DataInconsistency, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
