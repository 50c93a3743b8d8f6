package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/service"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
	"github.com/BrandonDHaskell/ledgerwatch/internal/metrics"
)

// decodeJSON decodes b into v, rejecting unknown fields.
func decodeJSON(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	useProto := isProtobuf(r)
	body, err := readBody(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_body", "could not read request body")
		return
	}

	var req types.HeartbeatRequest
	if useProto {
		req, err = decodeHeartbeatRequest(body)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_proto", "invalid protobuf body")
			return
		}
	} else if err := decodeJSON(body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	resp, err := s.d.Heartbeats.Record(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidDeviceID) {
			writeError(w, r, http.StatusBadRequest, "invalid_device_id", err.Error())
			return
		}
		s.internalError(w, r, "heartbeat", err)
		return
	}

	if useProto {
		writeProto(w, http.StatusOK, encodeHeartbeatResponse(resp))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	useProto := isProtobuf(r)
	body, err := readBody(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_body", "could not read request body")
		return
	}

	var req types.ScanRequest
	if useProto {
		req, err = decodeScanRequest(body)
		if err != nil {
			metrics.ScansTotal.WithLabelValues("invalid").Inc()
			writeError(w, r, http.StatusBadRequest, "bad_proto", "invalid protobuf body")
			return
		}
	} else if err := decodeJSON(body, &req); err != nil {
		metrics.ScansTotal.WithLabelValues("invalid").Inc()
		writeError(w, r, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	resp, err := s.d.Scans.Submit(r.Context(), req)
	status := http.StatusOK
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidDeviceID):
			metrics.ScansTotal.WithLabelValues("invalid").Inc()
			writeError(w, r, http.StatusBadRequest, "invalid_device_id", err.Error())
			return
		case errors.Is(err, service.ErrInvalidCardUID):
			metrics.ScansTotal.WithLabelValues("invalid").Inc()
			writeError(w, r, http.StatusBadRequest, "invalid_card_uid", err.Error())
			return
		case errors.Is(err, service.ErrInvalidEventType):
			metrics.ScansTotal.WithLabelValues("invalid").Inc()
			writeError(w, r, http.StatusBadRequest, "invalid_event_type", err.Error())
			return
		case errors.Is(err, service.ErrInvalidScanTimestamp):
			metrics.ScansTotal.WithLabelValues("invalid").Inc()
			writeError(w, r, http.StatusBadRequest, "invalid_scan_timestamp", err.Error())
			return
		case errors.Is(err, service.ErrUnknownDevice):
			// Unknown readers are blocked from the ledger.
			metrics.ScansTotal.WithLabelValues("unknown_device").Inc()
			status = http.StatusForbidden
		default:
			metrics.ScansTotal.WithLabelValues("error").Inc()
			s.internalError(w, r, "scan", err)
			return
		}
	} else {
		metrics.ScansTotal.WithLabelValues("accepted").Inc()
	}

	if useProto {
		writeProto(w, status, encodeScanResponse(resp))
		return
	}
	writeJSON(w, status, resp)
}
