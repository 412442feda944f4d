// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

// Package script runs tenant-supplied provider scripts in per-request
// Lua sandboxes. A provider declares a class-like global table with a
// constructor `new`, reports its decision through the host-provided
// commit function and exposes results as instance properties.
package script

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/uitsmijter/uitsmijter/pkg/logger"
)

// Well-known provider class names.
const (
	ClassUserLoginProvider      = "UserLoginProvider"
	ClassUserValidationProvider = "UserValidationProvider"
)

// CommitLimit caps the committed-values list of one sandbox run.
const CommitLimit = 16

// DefaultTimeout bounds a single provider run.
const DefaultTimeout = 3 * time.Second

// Sentinel errors of the provider contract.
var (
	// ErrSyntax is returned when a script fails the static syntax check.
	ErrSyntax = errors.New("script syntax error")

	// ErrParser is returned on a runtime fault inside a script.
	ErrParser = errors.New("script parser error")

	// ErrTimeout is returned when a provider run exceeds its deadline.
	ErrTimeout = errors.New("script timeout")

	// ErrNoResults is returned when a provider finished without
	// committing anything.
	ErrNoResults = errors.New("script committed no results")

	// ErrNoSuchClass is returned when the requested provider class is
	// not declared by any of the tenant's scripts.
	ErrNoSuchClass = errors.New("provider class is not defined")
)

// Host creates sandboxes. One host serves the whole process; every
// request gets its own sandbox.
type Host struct {
	timeout time.Duration
	client  *http.Client
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithTimeout overrides the per-run deadline.
func WithTimeout(timeout time.Duration) HostOption {
	return func(h *Host) {
		h.timeout = timeout
	}
}

// WithHTTPClient overrides the client backing the fetch function.
func WithHTTPClient(client *http.Client) HostOption {
	return func(h *Host) {
		h.client = client
	}
}

// NewHost creates a sandbox factory.
func NewHost(opts ...HostOption) *Host {
	h := &Host{
		timeout: DefaultTimeout,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Sandbox is one isolated evaluation context. Sandboxes never share
// mutable state; each request holds exactly one, closed at request end.
type Sandbox struct {
	state   *lua.LState
	host    *Host
	commits []any
	// overflow is set when commit was called past CommitLimit.
	overflow bool
}

// NewSandbox loads the given scripts into a fresh sandbox. Every script
// passes a static syntax check before anything executes; a failing
// script aborts the whole sandbox with ErrSyntax.
func (h *Host) NewSandbox(scripts []string) (*Sandbox, error) {
	state := lua.NewState(lua.Options{SkipOpenLibs: true})

	// Only side-effect-free libraries are opened. os and io stay out.
	// The package lib must come first so the others can register.
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		state.Push(state.NewFunction(lib.open))
		state.Push(lua.LString(lib.name))
		state.Call(1, 0)
	}

	sb := &Sandbox{state: state, host: h}
	sb.installHostFunctions()

	compiled := make([]*lua.LFunction, 0, len(scripts))
	for i, src := range scripts {
		fn, err := state.LoadString(src)
		if err != nil {
			state.Close()
			return nil, fmt.Errorf("%w in script %d: %v", ErrSyntax, i, err)
		}
		compiled = append(compiled, fn)
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	state.SetContext(ctx)

	for i, fn := range compiled {
		state.Push(fn)
		if err := state.PCall(0, lua.MultRet, nil); err != nil {
			state.Close()
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w while loading script %d", ErrTimeout, i)
			}
			return nil, fmt.Errorf("%w in script %d: %v", ErrParser, i, err)
		}
	}

	return sb, nil
}

// installHostFunctions injects say, console, fetch, the digest helpers
// and commit into the sandbox globals.
func (sb *Sandbox) installHostFunctions() {
	state := sb.state

	state.SetGlobal("say", state.NewFunction(func(L *lua.LState) int {
		logger.Info(formatArgs(L))
		return 0
	}))

	console := state.NewTable()
	state.SetField(console, "log", state.NewFunction(func(L *lua.LState) int {
		logger.Info(formatArgs(L))
		return 0
	}))
	state.SetField(console, "error", state.NewFunction(func(L *lua.LState) int {
		logger.Error(formatArgs(L))
		return 0
	}))
	state.SetGlobal("console", console)

	state.SetGlobal("sha256", state.NewFunction(func(L *lua.LState) int {
		sum := sha256.Sum256([]byte(L.CheckString(1)))
		L.Push(lua.LString(hex.EncodeToString(sum[:])))
		return 1
	}))

	state.SetGlobal("md5", state.NewFunction(func(L *lua.LState) int {
		sum := md5.Sum([]byte(L.CheckString(1)))
		L.Push(lua.LString(hex.EncodeToString(sum[:])))
		return 1
	}))

	state.SetGlobal("fetch", state.NewFunction(sb.luaFetch))
	state.SetGlobal("commit", state.NewFunction(sb.luaCommit))
}

// luaCommit accumulates every argument of every invocation. Crossing
// CommitLimit aborts the run.
func (sb *Sandbox) luaCommit(L *lua.LState) int {
	top := L.GetTop()
	for i := 1; i <= top; i++ {
		if len(sb.commits) >= CommitLimit {
			sb.overflow = true
			L.RaiseError("commit limit of %d values exceeded", CommitLimit)
			return 0
		}
		sb.commits = append(sb.commits, luaToGo(L.Get(i)))
	}
	return 0
}

// luaFetch performs an HTTP request on behalf of the script and returns
// a table {code, body}. The request inherits the sandbox deadline.
func (sb *Sandbox) luaFetch(L *lua.LState) int {
	url := L.CheckString(1)
	method := http.MethodGet
	var body io.Reader
	headers := map[string]string{}

	if L.GetTop() >= 2 {
		opts := L.CheckTable(2)
		if m, ok := L.GetField(opts, "method").(lua.LString); ok {
			method = strings.ToUpper(string(m))
		}
		if b, ok := L.GetField(opts, "body").(lua.LString); ok {
			body = strings.NewReader(string(b))
		}
		if h, ok := L.GetField(opts, "headers").(*lua.LTable); ok {
			h.ForEach(func(k, v lua.LValue) {
				headers[k.String()] = v.String()
			})
		}
	}

	req, err := http.NewRequestWithContext(L.Context(), method, url, body)
	if err != nil {
		L.RaiseError("fetch: %v", err)
		return 0
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := sb.host.client.Do(req)
	if err != nil {
		L.RaiseError("fetch: %v", err)
		return 0
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		L.RaiseError("fetch: %v", err)
		return 0
	}

	result := L.NewTable()
	L.SetField(result, "code", lua.LNumber(res.StatusCode))
	L.SetField(result, "body", lua.LString(data))
	L.Push(result)
	return 1
}

// formatArgs renders all Lua call arguments into one log line.
func formatArgs(L *lua.LState) string {
	parts := make([]string, 0, L.GetTop())
	for i := 1; i <= L.GetTop(); i++ {
		parts = append(parts, L.Get(i).String())
	}
	return strings.Join(parts, " ")
}

// HasClass reports whether a provider class of the given name was
// declared by any loaded script.
func (sb *Sandbox) HasClass(name string) bool {
	_, ok := sb.state.GetGlobal(name).(*lua.LTable)
	return ok
}

// Run instantiates the named provider class with the structured
// argument and waits for it to finish, bounded by the host timeout.
func (sb *Sandbox) Run(ctx context.Context, class string, args map[string]any) (*Instance, error) {
	cls, ok := sb.state.GetGlobal(class).(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchClass, class)
	}
	ctor, ok := sb.state.GetField(cls, "new").(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no constructor", ErrNoSuchClass, class)
	}

	ctx, cancel := context.WithTimeout(ctx, sb.host.timeout)
	defer cancel()
	sb.state.SetContext(ctx)

	err := sb.state.CallByParam(lua.P{
		Fn:      ctor,
		NRet:    1,
		Protect: true,
	}, goToLua(sb.state, args))
	if err != nil {
		if ctx.Err() != nil && !sb.overflow {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, class)
		}
		return nil, fmt.Errorf("%w: %v", ErrParser, err)
	}

	ret := sb.state.Get(-1)
	sb.state.Pop(1)

	instance := &Instance{sandbox: sb}
	if tbl, ok := ret.(*lua.LTable); ok {
		instance.table = tbl
	}

	if len(sb.commits) == 0 {
		return instance, ErrNoResults
	}
	return instance, nil
}

// Close tears the sandbox down.
func (sb *Sandbox) Close() {
	sb.state.Close()
}

// Committed returns all committed values JSON-stringified, in arrival
// order.
func (sb *Sandbox) Committed() []string {
	out := make([]string, 0, len(sb.commits))
	for _, v := range sb.commits {
		data, err := json.Marshal(v)
		if err != nil {
			continue
		}
		out = append(out, string(data))
	}
	return out
}

// Decision interprets the first committed value as truthy or falsy.
func (sb *Sandbox) Decision() bool {
	if len(sb.commits) == 0 {
		return false
	}
	return truthy(sb.commits[0])
}

// CommittedSubject returns the subject override from committed extras,
// if any: the first committed object carrying a subject field wins.
func (sb *Sandbox) CommittedSubject() (string, bool) {
	for _, v := range sb.commits {
		obj, ok := v.(map[string]any)
		if !ok {
			continue
		}
		if sub, ok := obj["subject"].(string); ok && sub != "" {
			return sub, true
		}
	}
	return "", false
}

// CommittedScopes returns scopes proposed by committed extras. The
// caller still intersects them with the client whitelist.
func (sb *Sandbox) CommittedScopes() []string {
	for _, v := range sb.commits {
		obj, ok := v.(map[string]any)
		if !ok {
			continue
		}
		if raw, ok := obj["scopes"].(string); ok && raw != "" {
			return strings.Fields(raw)
		}
	}
	return nil
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case string:
		return val != "" && val != "false"
	default:
		return true
	}
}

// Instance wraps a constructed provider and exposes its properties as
// typed getters.
type Instance struct {
	sandbox *Sandbox
	table   *lua.LTable
}

func (i *Instance) field(name string) lua.LValue {
	if i.table == nil {
		return lua.LNil
	}
	return i.sandbox.state.GetField(i.table, name)
}

// Bool reads a boolean property.
func (i *Instance) Bool(name string) (bool, bool) {
	if v, ok := i.field(name).(lua.LBool); ok {
		return bool(v), true
	}
	return false, false
}

// String reads a string property.
func (i *Instance) String(name string) (string, bool) {
	if v, ok := i.field(name).(lua.LString); ok {
		return string(v), true
	}
	return "", false
}

// Number reads a numeric property.
func (i *Instance) Number(name string) (float64, bool) {
	if v, ok := i.field(name).(lua.LNumber); ok {
		return float64(v), true
	}
	return 0, false
}

// Object reads a table property decoded into a Go map.
func (i *Instance) Object(name string) (map[string]any, bool) {
	if v, ok := i.field(name).(*lua.LTable); ok {
		if obj, ok := luaToGo(v).(map[string]any); ok {
			return obj, true
		}
	}
	return nil, false
}
