// If you are AI: This file defines the discovery protocol messages: inbound
// requests from edge nodes and the outbound service-list response.
// The wire format is one flat JSON object per line, UTF-8, no nesting.

package lineproto

import (
	"encoding/json"
	"fmt"
)

// Protocol marker fields of outbound responses.
const (
	ProtocolMarker  = "PNSD"
	ProtocolVersion = 1
)

// Commands recognised from edge nodes.
const (
	CmdHelo = "helo" // Announce or refresh a service
	CmdBye  = "bye"  // Withdraw a service (or all with the given id)
	CmdList = "list" // Query the full service table
	CmdFind = "find" // Query services of one type
)

// Field bounds in bytes. Over-long values are truncated, matching the fixed
// field widths of the edge-side implementation.
const (
	MaxIDLen   = 63
	MaxSvcLen  = 31
	MaxIPLen   = 63
	MaxCapsLen = 127
)

// Request is an inbound discovery message. Unknown fields are tolerated;
// only the fields relevant to the command are consulted.
type Request struct {
	Cmd  string `json:"cmd"`
	ID   string `json:"id"`
	Svc  string `json:"svc"`
	Port int    `json:"port"`
	Data int    `json:"data"`
	Caps string `json:"caps"`
}

// ParseRequest decodes one line into a Request, clamping string fields to
// their wire bounds. Lines not starting with '{' are not JSON objects and
// are reported as such so the caller can ignore stray text.
func ParseRequest(line []byte) (Request, error) {
	if len(line) == 0 || line[0] != '{' {
		return Request{}, fmt.Errorf("not a JSON object")
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Request{}, fmt.Errorf("parse discovery message: %w", err)
	}

	req.ID = clamp(req.ID, MaxIDLen)
	req.Svc = clamp(req.Svc, MaxSvcLen)
	req.Caps = clamp(req.Caps, MaxCapsLen)
	return req, nil
}

// ServiceInfo is one entry of a LIST/FIND response.
type ServiceInfo struct {
	ID   string `json:"id"`
	Svc  string `json:"svc"`
	IP   string `json:"ip"`
	Port int    `json:"port"`
	Data int    `json:"data"`
	Caps string `json:"caps"`
}

// ListResponse is the outbound reply to LIST and FIND. The cmd field is
// always "list", for FIND as well; clients distinguish by what they asked.
type ListResponse struct {
	M        string        `json:"m"`
	V        int           `json:"v"`
	Cmd      string        `json:"cmd"`
	Services []ServiceInfo `json:"services"`
}

// EncodeListResponse renders a newline-terminated LIST response.
func EncodeListResponse(services []ServiceInfo) ([]byte, error) {
	if services == nil {
		services = []ServiceInfo{}
	}
	resp := ListResponse{
		M:        ProtocolMarker,
		V:        ProtocolVersion,
		Cmd:      CmdList,
		Services: services,
	}
	out, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode list response: %w", err)
	}
	return append(out, '\n'), nil
}

func clamp(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
