package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

// maxRequestBody caps the request body size for both protobuf and JSON
// payloads. Reader messages are well under 512 bytes in either encoding.
const maxRequestBody = 4096

const protobufContentType = "application/x-protobuf"

// isProtobuf returns true if the request's Content-Type indicates a
// protobuf payload. Readers send "application/x-protobuf".
func isProtobuf(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return ct == protobufContentType ||
		ct == "application/protobuf" ||
		ct == "application/octet-stream"
}

func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
}

var errMalformedProto = errors.New("malformed protobuf message")

// Field numbers of ledgerwatch.v1.ScanRequest.
const (
	scanReqDeviceID      protowire.Number = 1
	scanReqCardUID       protowire.Number = 2
	scanReqEventType     protowire.Number = 3
	scanReqScanTimestamp protowire.Number = 4
)

// Field numbers of ledgerwatch.v1.HeartbeatRequest.
const (
	hbReqDeviceID        protowire.Number = 1
	hbReqFirmwareVersion protowire.Number = 2
	hbReqUptimeS         protowire.Number = 3
	hbReqRSSIDbm         protowire.Number = 4
	hbReqIP              protowire.Number = 5
)

// walkFields calls fn for every field in b. fn returns how many bytes of the
// value it consumed, or a negative number to have the field skipped.
func walkFields(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte) int) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", errMalformedProto, protowire.ParseError(n))
		}
		b = b[n:]

		m := fn(num, typ, b)
		if m < 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m < 0 {
			return fmt.Errorf("%w: field %d: %v", errMalformedProto, num, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}

func consumeString(typ protowire.Type, b []byte, dst *string) int {
	if typ != protowire.BytesType {
		return -1
	}
	v, n := protowire.ConsumeString(b)
	if n >= 0 {
		*dst = v
	}
	return n
}

func decodeScanRequest(b []byte) (types.ScanRequest, error) {
	var req types.ScanRequest
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte) int {
		switch num {
		case scanReqDeviceID:
			return consumeString(typ, v, &req.DeviceID)
		case scanReqCardUID:
			return consumeString(typ, v, &req.CardUID)
		case scanReqEventType:
			return consumeString(typ, v, &req.EventType)
		case scanReqScanTimestamp:
			return consumeString(typ, v, &req.ScanTimestamp)
		}
		return -1
	})
	return req, err
}

func decodeHeartbeatRequest(b []byte) (types.HeartbeatRequest, error) {
	var req types.HeartbeatRequest
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte) int {
		switch num {
		case hbReqDeviceID:
			return consumeString(typ, v, &req.DeviceID)
		case hbReqFirmwareVersion:
			return consumeString(typ, v, &req.FirmwareVersion)
		case hbReqIP:
			return consumeString(typ, v, &req.IP)
		case hbReqUptimeS:
			if typ != protowire.VarintType {
				return -1
			}
			x, n := protowire.ConsumeVarint(v)
			if n >= 0 {
				req.UptimeSeconds = x
			}
			return n
		case hbReqRSSIDbm:
			if typ != protowire.VarintType {
				return -1
			}
			x, n := protowire.ConsumeVarint(v)
			if n >= 0 {
				rssi := int(int32(x))
				req.RSSIDbm = &rssi
			}
			return n
		}
		return -1
	})
	return req, err
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

func encodeScanResponse(r types.ScanResponse) []byte {
	var b []byte
	b = appendBool(b, 1, r.OK)
	if r.SequenceID != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.SequenceID))
	}
	b = appendString(b, 3, r.HashChain)
	b = appendString(b, 4, r.Reason)
	b = appendString(b, 5, r.ServerTime)
	return b
}

func encodeHeartbeatResponse(r types.HeartbeatResponse) []byte {
	var b []byte
	b = appendBool(b, 1, r.OK)
	b = appendBool(b, 2, r.Known)
	b = appendString(b, 3, r.DeviceID)
	b = appendString(b, 4, r.Status)
	b = appendString(b, 5, r.ServerTime)
	return b
}

// writeProto writes an encoded message with the given HTTP status.
func writeProto(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", protobufContentType)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
