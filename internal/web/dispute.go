package web

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/vadiminshakov/remit/internal/domain"
)

// disputeBodyLimit fits the largest legal dispute: every file at its size limit, base64 encoded.
const disputeBodyLimit = domain.MaxEvidenceFiles*(domain.MaxEvidenceFileSize*4/3+4) + defaultBodyLimit

// encodedFileLimit is the base64 length of a file at the size limit.
var encodedFileLimit = base64.StdEncoding.EncodedLen(domain.MaxEvidenceFileSize)

// decodeDispute streams a disputeRequest. Evidence is decoded one file at a time: the file
// count and each encoded size are checked as they arrive, so an oversized upload is refused
// without reading the rest of the body.
func (s *Server) decodeDispute(w http.ResponseWriter, r *http.Request) (string, []domain.EvidenceFile, error) {
	r.Body = http.MaxBytesReader(w, r.Body, disputeBodyLimit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := expectDelim(dec, '{'); err != nil {
		return "", nil, err
	}

	var (
		req   disputeRequest
		files []domain.EvidenceFile
	)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return "", nil, bodyError(err, domain.ErrEvidenceValidation)
		}
		switch tok {
		case "reason":
			if err := dec.Decode(&req.Reason); err != nil {
				return "", nil, bodyError(err, domain.ErrEvidenceValidation)
			}
		case "evidence":
			if files, err = s.decodeEvidence(dec); err != nil {
				return "", nil, err
			}
		default:
			return "", nil, domain.ErrValidation.Newf("malformed request body: unknown field %v", tok)
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return "", nil, err
	}

	if err := s.check(&req); err != nil {
		return "", nil, err
	}
	return req.Reason, files, nil
}

func (s *Server) decodeEvidence(dec *json.Decoder) ([]domain.EvidenceFile, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, bodyError(err, domain.ErrEvidenceValidation)
	}
	if tok == nil {
		return nil, nil
	}
	if tok != json.Delim('[') {
		return nil, domain.ErrValidation.New("malformed request body: evidence must be an array")
	}

	var files []domain.EvidenceFile
	for dec.More() {
		if len(files) == domain.MaxEvidenceFiles {
			return nil, domain.ErrEvidenceValidation.Newf("at most %d files allowed", domain.MaxEvidenceFiles)
		}

		var item evidenceDTO
		if err := dec.Decode(&item); err != nil {
			return nil, bodyError(err, domain.ErrEvidenceValidation)
		}
		if len(item.Data) > encodedFileLimit {
			return nil, domain.ErrEvidenceValidation.Newf("file %d (%q) exceeds %d bytes", len(files), item.Name, domain.MaxEvidenceFileSize)
		}
		if err := s.check(&item); err != nil {
			return nil, err
		}
		data, err := base64.StdEncoding.DecodeString(item.Data)
		if err != nil {
			return nil, domain.ErrValidation.Newf("evidence %q is not valid base64", item.Name)
		}
		files = append(files, domain.EvidenceFile{Name: item.Name, ContentType: item.ContentType, Data: data})
	}
	if _, err := dec.Token(); err != nil {
		return nil, bodyError(err, domain.ErrEvidenceValidation)
	}
	return files, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return bodyError(err, domain.ErrEvidenceValidation)
	}
	if tok != want {
		return domain.ErrValidation.Newf("malformed request body: expected %v", want)
	}
	return nil
}
