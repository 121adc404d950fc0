package domain

import "encoding/json"

// Result is what one engine run hands back to its caller. It is returned on every
// path, including failures, so the attempt log is always available.
type Result struct {
	RunID        string            `json:"run_id"`
	ShareURL     string            `json:"share_url"`
	VideoID      string            `json:"video_id,omitempty"`
	Title        string            `json:"title"`
	CandidateURL string            `json:"candidate_url,omitempty"`
	SavedPath    string            `json:"-"`
	SavedFile    *SavedFile        `json:"saved_file,omitempty"`
	Status       VideoStatus       `json:"status"`
	Attempts     []DownloadAttempt `json:"attempts"`
	Error        string            `json:"error,omitempty"`
}

// Saved reports whether the run produced a file
func (r *Result) Saved() bool {
	return r.SavedPath != ""
}

// MarshalJSON writes saved_path as null when nothing was saved
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	var savedPath *string
	if r.SavedPath != "" {
		p := r.SavedPath
		savedPath = &p
	}
	attempts := r.Attempts
	if attempts == nil {
		attempts = []DownloadAttempt{}
	}
	r.Attempts = attempts
	return json.Marshal(struct {
		plain
		SavedPath *string `json:"saved_path"`
	}{plain: plain(r), SavedPath: savedPath})
}

// UnmarshalJSON reads the form written by MarshalJSON
func (r *Result) UnmarshalJSON(data []byte) error {
	type plain Result
	aux := struct {
		*plain
		SavedPath *string `json:"saved_path"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.SavedPath != nil {
		r.SavedPath = *aux.SavedPath
	}
	return nil
}

// NewResult builds the result for a reference
func NewResult(runID string, ref *VideoReference, attempts []DownloadAttempt, err error) *Result {
	res := &Result{
		RunID:        runID,
		ShareURL:     ref.ShareURL,
		VideoID:      ref.ExtractedID,
		Title:        ref.Title,
		CandidateURL: ref.CandidateMediaURL,
		Status:       ref.Status,
		Attempts:     attempts,
	}
	if ref.SavedFile != nil {
		res.SavedFile = ref.SavedFile
		res.SavedPath = ref.SavedFile.Path
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}
