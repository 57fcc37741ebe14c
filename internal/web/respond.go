package web

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/remit/internal/domain"
	"go.uber.org/zap"
)

const defaultBodyLimit = 1 << 20

var statusByKind = map[*domain.Error]int{
	domain.ErrValidation:             http.StatusBadRequest,
	domain.ErrInsufficientFunds:      http.StatusPaymentRequired,
	domain.ErrUserNotFound:           http.StatusNotFound,
	domain.ErrEvidenceValidation:     http.StatusUnprocessableEntity,
	domain.ErrInvalidStateTransition: http.StatusConflict,
	domain.ErrUnauthorizedActor:      http.StatusForbidden,
	domain.ErrNotFound:               http.StatusNotFound,
}

// statusFor maps an error kind to its HTTP status; unclassified errors are 500.
func statusFor(err error) int {
	if kind := domain.KindOf(err); kind != nil {
		return statusByKind[kind]
	}
	return http.StatusInternalServerError
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.l.Warn("failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	if kind == nil {
		s.l.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal_error", Message: "internal error"})
		return
	}

	s.l.Debug("request rejected",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("kind", kind.Code()),
		zap.Error(err),
	)
	s.writeJSON(w, statusByKind[kind], errorResponse{Error: kind.Code(), Message: err.Error()})
}

// decode reads a JSON body of at most limit bytes into dst and validates it.
// An oversized body is reported with the tooLarge kind.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, limit int64, tooLarge *domain.Error, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return bodyError(err, tooLarge)
	}
	return s.check(dst)
}

// bodyError classifies a failure to read a request body.
func bodyError(err error, tooLarge *domain.Error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return tooLarge.Newf("request body exceeds %d bytes", maxErr.Limit)
	}
	return domain.ErrValidation.Newf("malformed request body: %v", err)
}

// check runs the struct validator and lists the offending fields.
func (s *Server) check(dst any) error {
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+" ("+fe.Tag()+")")
			}
			return domain.ErrValidation.Newf("invalid fields: %s", strings.Join(fields, ", "))
		}
		return domain.ErrValidation.New(err.Error())
	}
	return nil
}

// actor returns the caller identity or fails with ErrUnauthorizedActor.
func actor(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(ActorHeader))
	if id == "" {
		return "", domain.ErrUnauthorizedActor.Newf("%s header is required", ActorHeader)
	}
	return id, nil
}
