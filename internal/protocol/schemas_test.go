package protocol_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"supersorting.ai/internal/grid"
	"supersorting.ai/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	ok := map[string]string{
		protocol.SchemaRegister:          `{"agent_id":"A1","cell":[0,0]}`,
		protocol.SchemaAlert:             `{"description":"battery low"}`,
		protocol.SchemaAdvance:           `{"cell":[1,0]}`,
		protocol.SchemaOperationComplete: `{"operation_id":"OP000001"}`,
		protocol.SchemaPathfinding:       `{"goal":[2,2],"commit":true}`,
		protocol.SchemaHoldFree:          `{"ttl_ms":5000}`,
		protocol.SchemaStageItem:         `{"item_id":"I1","cell":[2,2],"dropoff":[0,2]}`,
		protocol.SchemaCreateHold:        `{"holder":"auto","cells":[[1,1],[1,2]],"ttl_ms":1000}`,
		protocol.SchemaCells:             `{"cells":[[3,4]]}`,
	}
	for name, body := range ok {
		if err := protocol.Validate(name, []byte(body)); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}

	bad := map[string]string{
		protocol.SchemaRegister:    `{"cell":[0]}`,
		protocol.SchemaAdvance:     `{"cell":[-1,0]}`,
		protocol.SchemaPathfinding: `{"goal":[1,1],"extra":1}`,
		protocol.SchemaCreateHold:  `{"holder":"auto"}`,
		protocol.SchemaCells:       `{"cells":"all"}`,
		protocol.SchemaStageItem:   `not json`,
	}
	for name, body := range bad {
		err := protocol.Validate(name, []byte(body))
		var ve *protocol.ValidationError
		if !errors.As(err, &ve) || ve.Schema != name {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}

	if err := protocol.Validate("nope", []byte(`{}`)); err == nil {
		t.Fatalf("expected unknown schema error")
	}
}

func TestDecodeValid(t *testing.T) {
	var req protocol.StageItemRequest
	if err := protocol.DecodeValid(protocol.SchemaStageItem, []byte(`{"cell":[2,1],"dropoff":[0,0],"holder":"auto"}`), &req); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.Cell != (grid.Vec2{X: 2, Y: 1}) || req.Dropoff == nil || *req.Dropoff != (grid.Vec2{}) || req.Holder != "auto" {
		t.Fatalf("req=%+v", req)
	}
}

func TestCBOR_Deterministic(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := map[string]any{"b": 2, "a": []grid.Vec2{{X: 1, Y: 2}}, "at": at}
	b := map[string]any{"at": at, "a": []grid.Vec2{{X: 1, Y: 2}}, "b": 2}
	ea, err := protocol.MarshalCBOR(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	eb, err := protocol.MarshalCBOR(b)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Equal(ea, eb) {
		t.Fatalf("encoding depends on map order")
	}

	info := protocol.HoldInfo{ID: "H000001", Holder: "auto", Kind: "CLAIM", Cells: []grid.Vec2{{X: 0, Y: 1}}, Expiry: at, CreatedAt: at}
	enc, err := protocol.MarshalCBOR(info)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got protocol.HoldInfo
	if err := protocol.UnmarshalCBOR(enc, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != info.ID || !got.Expiry.Equal(at) || len(got.Cells) != 1 || got.Cells[0] != info.Cells[0] {
		t.Fatalf("got=%+v", got)
	}
}
