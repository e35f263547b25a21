// Package httpapi is the read-only/write HTTP surface of spec.md §6 — an
// explicitly "interfaces only" external collaborator per spec.md §1,
// implemented with the standard library net/http, grounded on
// likme-CODEX's internal/httpapi writeJSON/writeErr/error-mapping idiom.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/buffquant/simrun/internal/apierr"
)

const stageToken = "S5_EXECUTION_SAFETY_BOUNDARIES"

// provenance is the error envelope's provenance sub-object (spec.md §6).
type provenance struct {
	RunID      string          `json:"run_id"`
	Strategy   provStrategy    `json:"strategy"`
	RiskLevel  *int            `json:"risk_level"`
	StageToken string          `json:"stage_token"`
}

type provStrategy struct {
	ID      *string `json:"id"`
	Version *string `json:"version"`
	Hash    *string `json:"hash"`
}

type errorEnvelope struct {
	ErrorCode          string      `json:"error_code"`
	HumanMessage       string      `json:"human_message"`
	RecoveryHint       string      `json:"recovery_hint"`
	ArtifactReference  *string     `json:"artifact_reference"`
	Provenance         provenance  `json:"provenance"`
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

// uniformError is the full four-shape envelope of spec.md §6.
type uniformError struct {
	Code          string         `json:"code"`
	Message       string         `json:"message"`
	Details       map[string]any `json:"details"`
	Error         errorBody      `json:"error"`
	ErrorEnvelope errorEnvelope  `json:"error_envelope"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError converts any error into the uniform envelope. *apierr.Error
// carries its own status/code; anything else is logged with a correlation
// id and mapped to INTERNAL/500, with no stack trace reaching the client.
func writeError(w http.ResponseWriter, err error) {
	ae, ok := err.(*apierr.Error)
	if !ok {
		corr := uuid.NewString()
		logServerError(corr, err)
		ae = apierr.Internal("an internal error occurred").WithDetail("correlation_id", corr)
	}

	body := uniformError{
		Code:    ae.Code,
		Message: ae.Message,
		Details: ae.Details,
		Error: errorBody{
			Code:    ae.Code,
			Message: ae.Message,
			Details: ae.Details,
		},
		ErrorEnvelope: errorEnvelope{
			ErrorCode:    ae.Code,
			HumanMessage: ae.Message,
			RecoveryHint: apierr.RecoveryHint(ae.Code),
			Provenance: provenance{
				StageToken: stageToken,
			},
		},
	}
	writeJSON(w, ae.Status, body)
}

// logServerError is a narrow seam so tests can intercept what would
// otherwise go to the server's structured logger.
var logServerError = func(correlationID string, err error) {
	// Plain stderr logging would go here in production; kept minimal since
	// the spec treats the HTTP/log surface as an external collaborator.
}
