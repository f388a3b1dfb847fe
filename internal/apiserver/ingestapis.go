package apiserver

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"

	"github.com/neverlinked/package-tracking/internal/detection"
)

const signatureHeader = "x-signature"

// DetectionBatch is the POST /detection payload.
type DetectionBatch struct {
	Events []json.RawMessage `json:"events"`
}

// DetectionAckView reports how many events of a batch were queued.
type DetectionAckView struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

func (e *DetectionAckView) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, http.StatusAccepted)
	return nil
}

func (s *ApiServer) apiDetectionRouter() chi.Router {
	r := chi.NewRouter()
	r.Post("/", s.apiDetectionPost)

	return r
}

// Sign returns the hex HMAC-SHA256 of body as expected in x-signature.
func Sign(secret string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)

	return hex.EncodeToString(h.Sum(nil))
}

func (s *ApiServer) apiDetectionAuthenticate(inputSig string, body []byte) bool {
	expectedSig := Sign(s.cfg.Secret, body)
	if !hmac.Equal([]byte(inputSig), []byte(expectedSig)) {
		s.logger.Warn("unexpected signature", "signature", inputSig)
		return false
	}

	return true
}

func (s *ApiServer) apiDetectionPost(w http.ResponseWriter, r *http.Request) {
	// get data
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Error("failed to read request body", "error", err)
		render.Render(w, r, s.httpErrUnexpected(err))
		return
	}

	// authenticate
	if s.cfg.Secret != "" {
		sig := r.Header.Get(signatureHeader)
		if !s.apiDetectionAuthenticate(sig, body) {
			err := fmt.Errorf("invalid signature")
			render.Render(w, r, s.httpErrUnauthorized(err))
			return
		}
	}

	// process data
	dataIn := DetectionBatch{}
	err = json.Unmarshal(body, &dataIn)
	if err != nil {
		s.logger.Warn("failed to parse detection batch", "error", err)
		render.Render(w, r, s.httpErrInvalidRequest(err))
		return
	}

	ack := &DetectionAckView{}
	events := make([]detection.Event, 0, len(dataIn.Events))
	for _, raw := range dataIn.Events {
		var ev detection.Event
		err := json.Unmarshal(raw, &ev)
		if err != nil {
			s.logger.Debug("failed to decode detection", "event", string(raw), "error", err)
			ack.Rejected++
			continue
		}
		events = append(events, ev)
	}

	err = s.ingest.Push(r.Context(), events...)
	if err != nil {
		s.logger.Error("failed to queue detections", "count", len(events), "error", err)
		render.Render(w, r, s.httpErrUnavailable(err))
		return
	}
	ack.Accepted = len(events)

	render.Render(w, r, ack)
	return
}
