package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/MrWong99/werkit/internal/eval"
	"github.com/MrWong99/werkit/pkg/wer"
)

// input is one side of a comparison on the wire: a JSON string is raw text
// and an array of strings is a pre-tokenised sequence.
type input struct {
	wer.Input
}

// UnmarshalJSON implements [json.Unmarshaler].
func (in *input) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		in.Input = nil
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		in.Input = wer.Text(s)
		return nil
	case len(b) > 0 && b[0] == '[':
		var toks []string
		if err := json.Unmarshal(b, &toks); err != nil {
			return errors.New("must be a string or an array of strings")
		}
		if toks == nil {
			toks = []string{}
		}
		in.Input = wer.Tokens(toks)
		return nil
	}
	return errors.New("must be a string or an array of strings")
}

// overrides are the per-request replacements of the configured defaults.
type overrides struct {
	MergeLimit    *int  `json:"merge_limit,omitempty"`
	CaseSensitive *bool `json:"case_sensitive,omitempty"`
}

type pairRequest struct {
	Left  input `json:"left"`
	Right input `json:"right"`
	overrides
}

func (r *pairRequest) validate() error {
	var errs []error
	if r.Left.Input == nil {
		errs = append(errs, errors.New("left is required"))
	}
	if r.Right.Input == nil {
		errs = append(errs, errors.New("right is required"))
	}
	return errors.Join(errs...)
}

func (r *pairRequest) comparisons() [][2]wer.Input {
	return [][2]wer.Input{{r.Left.Input, r.Right.Input}}
}

type werRequest struct {
	Incoming input `json:"incoming"`
	Expected input `json:"expected"`
	overrides
}

func (r *werRequest) validate() error {
	var errs []error
	if r.Incoming.Input == nil {
		errs = append(errs, errors.New("incoming is required"))
	}
	if r.Expected.Input == nil {
		errs = append(errs, errors.New("expected is required"))
	}
	return errors.Join(errs...)
}

func (r *werRequest) comparisons() [][2]wer.Input {
	return [][2]wer.Input{{r.Incoming.Input, r.Expected.Input}}
}

type evaluateRequest struct {
	Items   []eval.Item `json:"items"`
	Workers *int        `json:"workers,omitempty"`

	// Save stores the report as a run under Label.
	Save  bool   `json:"save,omitempty"`
	Label string `json:"label,omitempty"`
	overrides
}

func (r *evaluateRequest) validate() error {
	if len(r.Items) == 0 {
		return eval.ErrEmptyManifest
	}
	if r.Workers != nil && *r.Workers < 0 {
		return fmt.Errorf("workers %d must not be negative", *r.Workers)
	}
	if r.Label != "" && !r.Save {
		return errors.New("label requires save")
	}
	return nil
}

func (r *evaluateRequest) comparisons() [][2]wer.Input {
	cmps := make([][2]wer.Input, len(r.Items))
	for i, it := range r.Items {
		cmps[i] = itemComparison(it)
	}
	return cmps
}

// streamRequest is one item sent over /v1/stream.
type streamRequest struct {
	eval.Item
	overrides
}

func (r *streamRequest) comparisons() [][2]wer.Input {
	return [][2]wer.Input{itemComparison(r.Item)}
}

func itemComparison(it eval.Item) [2]wer.Input {
	return [2]wer.Input{wer.Text(it.Reference), wer.Text(it.Hypothesis)}
}

// streamResponse answers one stream message. Seq counts scored items and
// CorpusWER covers every item scored on the connection so far.
type streamResponse struct {
	*eval.ItemResult
	Seq       int     `json:"seq,omitempty"`
	CorpusWER float64 `json:"corpus_wer"`
	Error     string  `json:"error,omitempty"`
}

type distanceResponse struct {
	Distance   int `json:"distance"`
	MergeLimit int `json:"merge_limit"`
}

type werResponse struct {
	WER      float64 `json:"wer"`
	Distance int     `json:"distance"`
}

type alignResponse struct {
	Pairs    []wer.Pair `json:"pairs"`
	Ops      []wer.Op   `json:"ops"`
	Distance int        `json:"distance"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// errTooLarge is reported when a body exceeds the configured limit.
var errTooLarge = errors.New("request body too large")

// decodeJSON reads a single JSON object from the body of r into v. The body
// is limited to limit bytes and unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) (status int, err error) {
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return http.StatusRequestEntityTooLarge, errTooLarge
		}
		return http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err)
	}
	if dec.More() {
		return http.StatusBadRequest, errors.New("invalid request body: trailing data after JSON object")
	}
	return http.StatusOK, nil
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
