package http

import (
	"net/http"

	"github.com/vladislavdragonenkov/dropship/internal/sweep"
)

type sweepStepResponse struct {
	OK        bool   `json:"ok"`
	Processed int    `json:"processed"`
	Error     string `json:"error,omitempty"`
}

type sweepResponse struct {
	Poll        sweepStepResponse `json:"poll"`
	Fulfillment sweepStepResponse `json:"fulfillment"`
	Refunds     sweepStepResponse `json:"refunds"`
}

// handleSweep запускает один проход sweep. Идемпотентен: повторный вызов
// не находит новых кандидатов.
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if s.sweepSecret == "" || !supplierAuthorized("", r.Header.Get("Authorization"), s.sweepSecret) {
		s.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	result := s.sweeper.Run()
	s.writeJSON(w, http.StatusOK, sweepResponse{
		Poll:        toStepResponse(result.Poll),
		Fulfillment: toStepResponse(result.Fulfillment),
		Refunds:     toStepResponse(result.Refunds),
	})
}

func toStepResponse(step sweep.StepResult) sweepStepResponse {
	out := sweepStepResponse{
		OK:        step.OK,
		Processed: step.Processed,
	}
	if step.Error != nil {
		out.Error = step.Error.Error()
	}
	return out
}
