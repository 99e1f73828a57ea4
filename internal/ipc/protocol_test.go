package ipc

import (
	"encoding/json"
	"testing"
)

func TestParseRequest_RejectsMalformed(t *testing.T) {
	if _, err := ParseRequest([]byte("{not json\n")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestParseRequest_CarriesPayload(t *testing.T) {
	raw := []byte(`{"command":"MOVE","payload":{"window_id":42,"workspace":"web"}}` + "\n")
	req, err := ParseRequest(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.Command != CommandMove {
		t.Fatalf("command: %s", req.Command)
	}
	var p MovePayload
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if p.WindowID != 42 || p.Workspace != "web" {
		t.Fatalf("payload values: %+v", p)
	}
}

func TestResponses(t *testing.T) {
	resp, err := NewOKResponse(map[string]int{"n": 1})
	if err != nil {
		t.Fatalf("ok response: %v", err)
	}
	if resp.Status != "OK" || len(resp.Data) == 0 {
		t.Fatalf("ok response shape: %+v", resp)
	}

	errResp := NewErrorResponse("boom")
	data, err := errResp.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Response
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Status != "ERROR" || back.Error != "boom" {
		t.Fatalf("error response shape: %+v", back)
	}
}
