// Package testutil provides an in-memory Copy API server for tests. Store
// speaks the real wire protocol (JSON-RPC envelopes, binary part bodies) and
// can be used directly as an rpc.Transport or mounted on an httptest server.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/tonimelisma/copy-go/internal/rpc"
	"github.com/tonimelisma/copy-go/pkg/fingerprint"
)

type partKey struct {
	share uint64
	fp    string
	size  uint64
}

type wirePartRef struct {
	ShareID     uint64 `json:"share_id"`
	Fingerprint string `json:"fingerprint"`
	Size        uint64 `json:"size"`
	Offset      uint64 `json:"offset"`
}

type wireStatus struct {
	Fingerprint string `json:"fingerprint"`
	Size        uint64 `json:"size"`
	Message     string `json:"message,omitempty"`
}

type wireObject struct {
	ObjectID  string         `json:"object_id"`
	Path      string         `json:"path"`
	Type      string         `json:"type"`
	ShareID   string         `json:"share_id"`
	Size      uint64         `json:"size"`
	Revisions []wireRevision `json:"revisions,omitempty"`
}

type wireRevision struct {
	Parts []wirePartRef `json:"parts"`
}

type wireMeta struct {
	Action     string        `json:"action"`
	Path       string        `json:"path"`
	ObjectType string        `json:"object_type"`
	NewPath    string        `json:"new_path"`
	Size       uint64        `json:"size"`
	Parts      []wirePartRef `json:"parts"`
}

type envelope struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// Store is a fake part store plus object tree. The zero value is not
// usable; call NewStore. Safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	parts   map[partKey][]byte
	objects map[string]*wireObject
	calls   map[string]int
	nextID  int

	// FailHas, FailSend and FailGet map a fingerprint to the message the
	// store reports for that part.
	FailHas  map[string]string
	FailSend map[string]string
	FailGet  map[string]string

	// GetHook, when set, rewrites every get_object_parts_v2 response.
	GetHook func(raw []byte) []byte
}

// NewStore returns an empty store with a root directory.
func NewStore() *Store {
	return &Store{
		parts:    make(map[partKey][]byte),
		objects:  map[string]*wireObject{"/": {ObjectID: "0", Path: "/", Type: "dir", ShareID: "0"}},
		calls:    make(map[string]int),
		FailHas:  make(map[string]string),
		FailSend: make(map[string]string),
		FailGet:  make(map[string]string),
	}
}

// Calls returns how many times method was invoked.
func (s *Store) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls[method]
}

// PartCount returns the number of distinct stored parts.
func (s *Store) PartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.parts)
}

// HasStored reports whether the part is held under share.
func (s *Store) HasStored(share uint64, fp string, size uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.parts[partKey{share, fp, size}]

	return ok
}

// PutPart stores data directly, bypassing the protocol.
func (s *Store) PutPart(share uint64, data []byte) string {
	fp := fingerprint.Sum(data)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.parts[partKey{share, fp, uint64(len(data))}] = bytes.Clone(data)

	return fp
}

// PutDir creates a directory object directly.
func (s *Store) PutDir(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.putLocked(&wireObject{Path: p, Type: "dir", ShareID: "0"})
}

// ServeHTTP serves the protocol over HTTP, so the store can back a real
// rpc.Client through httptest.
func (s *Store) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	header, _, _ := rpc.SplitBinary(body)

	var env envelope
	if err := json.Unmarshal(header, &env); err != nil {
		http.Error(w, "bad envelope", http.StatusBadRequest)
		return
	}

	if rpc.Endpoint(env.Method) != r.URL.Path {
		http.Error(w, "wrong endpoint for "+env.Method, http.StatusNotFound)
		return
	}

	resp, err := s.Call(r.Context(), env.Method, body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	_, _ = w.Write(resp)
}

// Call implements rpc.Transport.
func (s *Store) Call(_ context.Context, method string, body []byte) ([]byte, error) {
	header, data, _ := rpc.SplitBinary(body)

	var env envelope
	if err := json.Unmarshal(header, &env); err != nil {
		return errorEnvelope(-32700, "parse error"), nil
	}

	if env.Method != method {
		return errorEnvelope(-32600, "method mismatch"), nil
	}

	s.mu.Lock()
	s.calls[method]++
	s.mu.Unlock()

	switch method {
	case rpc.MethodHasParts:
		return s.hasParts(env.Params)
	case rpc.MethodSendParts:
		return s.sendParts(env.Params, data)
	case rpc.MethodGetParts:
		return s.getParts(env.Params)
	case rpc.MethodListObjects:
		return s.listObjects(env.Params)
	case rpc.MethodUpdateObject:
		return s.updateObjects(env.Params)
	default:
		return errorEnvelope(-32601, "unknown method "+method), nil
	}
}

func decodeRefs(params json.RawMessage) ([]wirePartRef, error) {
	var req struct {
		Parts []wirePartRef `json:"parts"`
	}

	if err := json.Unmarshal(params, &req); err != nil {
		return nil, err
	}

	return req.Parts, nil
}

func (s *Store) hasParts(params json.RawMessage) ([]byte, error) {
	refs, err := decodeRefs(params)
	if err != nil {
		return errorEnvelope(-32602, "bad params"), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	needed := []wireStatus{}

	for _, ref := range refs {
		if msg, ok := s.FailHas[ref.Fingerprint]; ok {
			needed = append(needed, wireStatus{Fingerprint: ref.Fingerprint, Size: ref.Size, Message: msg})
			continue
		}

		if _, ok := s.parts[partKey{ref.ShareID, ref.Fingerprint, ref.Size}]; !ok {
			needed = append(needed, wireStatus{Fingerprint: ref.Fingerprint, Size: ref.Size})
		}
	}

	return resultEnvelope(map[string]any{"needed_parts": needed})
}

func (s *Store) sendParts(params json.RawMessage, data []byte) ([]byte, error) {
	refs, err := decodeRefs(params)
	if err != nil || len(refs) != 1 {
		return errorEnvelope(-32602, "bad params"), nil
	}

	ref := refs[0]

	fail := func(msg string) ([]byte, error) {
		return resultEnvelope(map[string]any{
			"has_failed_parts": true,
			"failed_parts":     []wireStatus{{Fingerprint: ref.Fingerprint, Size: ref.Size, Message: msg}},
		})
	}

	if msg, ok := s.FailSend[ref.Fingerprint]; ok {
		return fail(msg)
	}

	if uint64(len(data)) != ref.Size {
		return fail(fmt.Sprintf("expected %d bytes, got %d", ref.Size, len(data)))
	}

	if fingerprint.Sum(data) != ref.Fingerprint {
		return fail("fingerprint mismatch")
	}

	s.mu.Lock()
	s.parts[partKey{ref.ShareID, ref.Fingerprint, ref.Size}] = bytes.Clone(data)
	s.mu.Unlock()

	return resultEnvelope(map[string]any{"has_failed_parts": false})
}

func (s *Store) getParts(params json.RawMessage) ([]byte, error) {
	refs, err := decodeRefs(params)
	if err != nil || len(refs) != 1 {
		return errorEnvelope(-32602, "bad params"), nil
	}

	ref := refs[0]
	status := wireStatus{Fingerprint: ref.Fingerprint, Size: ref.Size}

	s.mu.Lock()
	data, ok := s.parts[partKey{ref.ShareID, ref.Fingerprint, ref.Size}]
	hook := s.GetHook

	if msg, failing := s.FailGet[ref.Fingerprint]; failing {
		status.Message = msg
		data = nil
	} else if !ok {
		status.Message = "part not found"
	}
	s.mu.Unlock()

	header, err := resultEnvelope(map[string]any{"parts": []wireStatus{status}})
	if err != nil {
		return nil, err
	}

	raw := rpc.EncodeBinary(header, data)
	if hook != nil {
		raw = hook(raw)
	}

	return raw, nil
}

func (s *Store) listObjects(params json.RawMessage) ([]byte, error) {
	var req struct {
		Path         string `json:"path"`
		IncludeParts bool   `json:"include_parts"`
	}

	if err := json.Unmarshal(params, &req); err != nil {
		return errorEnvelope(-32602, "bad params"), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[req.Path]
	if !ok {
		return resultEnvelope(map[string]any{"object": nil, "children": []wireObject{}})
	}

	strip := func(o *wireObject) wireObject {
		c := *o
		if !req.IncludeParts {
			c.Revisions = nil
		}

		return c
	}

	var children []wireObject

	if obj.Type == "dir" {
		for p, child := range s.objects {
			if p != "/" && path.Dir(p) == req.Path {
				children = append(children, strip(child))
			}
		}

		sort.Slice(children, func(i, j int) bool { return children[i].Path < children[j].Path })
	}

	return resultEnvelope(map[string]any{"object": strip(obj), "children": children})
}

func (s *Store) updateObjects(params json.RawMessage) ([]byte, error) {
	var req struct {
		Meta []wireMeta `json:"meta"`
	}

	if err := json.Unmarshal(params, &req); err != nil || len(req.Meta) != 1 {
		return errorEnvelope(-32602, "bad params"), nil
	}

	m := req.Meta[0]

	s.mu.Lock()
	defer s.mu.Unlock()

	switch m.Action {
	case "create":
		obj := &wireObject{Path: m.Path, Type: m.ObjectType, ShareID: "0", Size: m.Size}

		if m.ObjectType == "file" {
			for _, p := range m.Parts {
				if _, ok := s.parts[partKey{p.ShareID, p.Fingerprint, p.Size}]; !ok && !s.anySharePart(p) {
					return errorEnvelope(1030, "unknown part "+p.Fingerprint), nil
				}
			}

			obj.Revisions = []wireRevision{{Parts: m.Parts}}
		}

		s.putLocked(obj)

		return resultEnvelope([]wireObject{*obj})

	case "remove":
		if _, ok := s.objects[m.Path]; !ok {
			return errorEnvelope(1021, "object not found: "+m.Path), nil
		}

		for p := range s.objects {
			if p == m.Path || strings.HasPrefix(p, m.Path+"/") {
				delete(s.objects, p)
			}
		}

		return resultEnvelope([]wireObject{})

	case "rename":
		obj, ok := s.objects[m.Path]
		if !ok {
			return errorEnvelope(1021, "object not found: "+m.Path), nil
		}

		delete(s.objects, m.Path)
		obj.Path = m.NewPath
		s.putLocked(obj)

		return resultEnvelope([]wireObject{*obj})

	default:
		return errorEnvelope(-32602, "unknown action "+m.Action), nil
	}
}

// anySharePart reports whether the part is stored under any share. Part
// refs in a create request carry no share.
func (s *Store) anySharePart(p wirePartRef) bool {
	for k := range s.parts {
		if k.fp == p.Fingerprint && k.size == p.Size {
			return true
		}
	}

	return false
}

// putLocked stores obj and creates missing parent directories.
func (s *Store) putLocked(obj *wireObject) {
	s.nextID++
	obj.ObjectID = fmt.Sprintf("%d", s.nextID)
	s.objects[obj.Path] = obj

	for dir := path.Dir(obj.Path); dir != "/"; dir = path.Dir(dir) {
		if _, ok := s.objects[dir]; ok {
			break
		}

		s.nextID++
		s.objects[dir] = &wireObject{ObjectID: fmt.Sprintf("%d", s.nextID), Path: dir, Type: "dir", ShareID: "0"}
	}
}

func resultEnvelope(result any) ([]byte, error) {
	return json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 0, "result": result})
}

func errorEnvelope(code int, msg string) []byte {
	b, _ := json.Marshal(map[string]any{ //nolint:errcheck // static shape always marshals
		"jsonrpc": "2.0", "id": 0,
		"error": map[string]any{"code": code, "message": msg},
	})

	return b
}
