package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fx006/diet-train-app/audit"
	"github.com/fx006/diet-train-app/export"
	"github.com/fx006/diet-train-app/horosafe"
	"github.com/fx006/diet-train-app/idgen"
	"github.com/fx006/diet-train-app/plan"
	"github.com/fx006/diet-train-app/planimport"
	"github.com/fx006/diet-train-app/shield"
	"github.com/fx006/diet-train-app/store"
	"github.com/fx006/diet-train-app/validate"
)

const (
	codeInvalidParameter = "INVALID_PARAMETER"
	codeInvalidDate      = "INVALID_DATE_FORMAT"
	codeInvalidRange     = "INVALID_DATE_RANGE"
	codeUnsupported      = "UNSUPPORTED_FORMAT"
	codeNotFound         = "NOT_FOUND"
)

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	}
	if err := s.store.DB().PingContext(r.Context()); err != nil {
		resp["status"] = "degraded"
		resp["database"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) supportedFormats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, planimport.SupportedFormats(s.importer.MaxFileSize()))
}

// --- Upload ---

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	log := shield.GetLogger(r.Context())

	opts := planimport.Options{}
	if v := r.URL.Query().Get("kind"); v != "" {
		kind, err := validate.ParseKind(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidParameter, "invalid parameter", err.Error())
			return
		}
		opts.Kind = kind
	}
	if v := r.URL.Query().Get("dry_run"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidParameter, "invalid parameter", "dry_run must be a boolean")
			return
		}
		opts.DryRun = b
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		title := planimport.CodeFileValidation.Title()
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusBadRequest, string(planimport.CodeFileValidation), title,
				fmt.Sprintf("file exceeds the size limit (%d bytes)", s.importer.MaxFileSize()))
			return
		}
		writeError(w, http.StatusBadRequest, string(planimport.CodeFileValidation), title, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	start := time.Now()
	rep, err := s.importer.ImportFile(r.Context(), header.Filename, file, opts)
	s.record(r, "upload", map[string]any{
		"filename": header.Filename,
		"size":     header.Size,
		"kind":     opts.Kind,
		"dry_run":  opts.DryRun,
	}, uploadSummary(rep), err, start)
	if err != nil {
		var ie *planimport.ImportError
		if !errors.As(err, &ie) {
			ie = &planimport.ImportError{Code: planimport.CodeInternal, Message: err.Error()}
		}
		status := http.StatusBadRequest
		if ie.Code == planimport.CodeInternal {
			status = http.StatusInternalServerError
			log.Error("upload failed", "error", err)
		}
		body := errorBody{Error: ie.Code.Title(), Message: ie.Message, Code: string(ie.Code)}
		if ie.Validation != nil {
			body.Errors = ie.Validation.Errors
			body.Report = rep
		}
		writeJSON(w, status, body)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": uploadMessage(rep),
		"report":  rep,
	})
}

// uploadSummary is the audited part of a report; meals and exercises are
// left out.
func uploadSummary(rep *planimport.Report) any {
	if rep == nil {
		return nil
	}
	return map[string]any{
		"import_id":    rep.ImportID,
		"deduplicated": rep.Deduplicated,
		"dry_run":      rep.DryRun,
		"sha256":       rep.FileInfo.SHA256,
		"parsed_rows":  rep.ParsedRows,
		"saved_data":   rep.Saved,
	}
}

func uploadMessage(rep *planimport.Report) string {
	switch {
	case rep.Deduplicated:
		return "file already imported"
	case rep.DryRun:
		return "file parsed and validated; nothing saved"
	default:
		return "file uploaded and parsed"
	}
}

// --- Export ---

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(chi.URLParam(r, "format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeUnsupported, "unsupported format", err.Error())
		return
	}
	rng, ok := dateRange(w, r)
	if !ok {
		return
	}

	start := time.Now()
	plans, err := s.store.ListPlans(r.Context(), rng)
	if err != nil {
		s.internal(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := export.Write(&buf, format, plans); err != nil {
		s.internal(w, r, err)
		return
	}
	s.record(r, "export", map[string]any{"format": format, "start_date": rng.From, "end_date": rng.To},
		map[string]int{"plans": len(plans), "bytes": buf.Len()}, nil, start)

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", "attachment; filename="+format.FileName())
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// dateRange reads start_date and end_date. It writes the 400 response and
// returns false when either is malformed or start_date is after end_date.
func dateRange(w http.ResponseWriter, r *http.Request) (store.Range, bool) {
	var rng store.Range
	for _, p := range []struct {
		key string
		dst *string
	}{{"start_date", &rng.From}, {"end_date", &rng.To}} {
		v := r.URL.Query().Get(p.key)
		if v == "" {
			continue
		}
		if !checkDate(w, p.key, v) {
			return rng, false
		}
		*p.dst = v
	}
	if rng.From != "" && rng.To != "" && rng.From > rng.To {
		writeError(w, http.StatusBadRequest, codeInvalidRange, "invalid date range",
			fmt.Sprintf("start_date %s is after end_date %s", rng.From, rng.To))
		return rng, false
	}
	return rng, true
}

// checkDate writes the 400 response and returns false unless v is a
// YYYY-MM-DD calendar date.
func checkDate(w http.ResponseWriter, key, v string) bool {
	if _, err := plan.ParseISODate(v); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidDate, "invalid date format",
			fmt.Sprintf("%s must be YYYY-MM-DD, got %q", key, v))
		return false
	}
	return true
}

// --- Plans ---

type dayPlans struct {
	Date      string       `json:"date"`
	Meals     []store.Plan `json:"meals"`
	Exercises []store.Plan `json:"exercises"`
}

func (s *Server) listPlans(w http.ResponseWriter, r *http.Request) {
	if date := r.URL.Query().Get("date"); date != "" {
		if !checkDate(w, "date", date) {
			return
		}
		plans, err := s.store.ListPlans(r.Context(), store.Range{From: date, To: date})
		if err != nil {
			s.internal(w, r, err)
			return
		}
		day := dayPlans{Date: date, Meals: []store.Plan{}, Exercises: []store.Plan{}}
		for _, p := range plans {
			if p.Type == store.TypeMeal {
				day.Meals = append(day.Meals, p)
			} else {
				day.Exercises = append(day.Exercises, p)
			}
		}
		writeJSON(w, http.StatusOK, day)
		return
	}

	rng, ok := dateRange(w, r)
	if !ok {
		return
	}
	plans, err := s.store.ListPlans(r.Context(), rng)
	if err != nil {
		s.internal(w, r, err)
		return
	}
	if plans == nil {
		plans = []store.Plan{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": plans, "count": len(plans)})
}

type updatePlanReq struct {
	Completed      bool     `json:"completed"`
	ActualDuration *float64 `json:"actual_duration"`
}

func (s *Server) updatePlan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := idgen.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidParameter, "invalid parameter", err.Error())
		return
	}
	body, err := horosafe.LimitedReadAll(r.Body, 4096)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidParameter, "invalid parameter", err.Error())
		return
	}
	var req updatePlanReq
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidParameter, "invalid parameter", "body must be JSON: "+err.Error())
		return
	}
	if d := req.ActualDuration; d != nil && (*d < 0 || *d > validate.MaxDuration) {
		writeError(w, http.StatusBadRequest, codeInvalidParameter, "invalid parameter",
			fmt.Sprintf("actual_duration must be within 0-%d", validate.MaxDuration))
		return
	}

	start := time.Now()
	found, err := s.store.SetCompletion(r.Context(), id, req.Completed, req.ActualDuration)
	s.record(r, "update_plan", map[string]any{"id": id, "completed": req.Completed, "actual_duration": req.ActualDuration},
		map[string]bool{"found": found}, err, start)
	if err != nil {
		s.internal(w, r, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, codeNotFound, "not found", "no plan with id "+id)
		return
	}
	p, err := s.store.GetPlan(r.Context(), id)
	if err != nil {
		s.internal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) deletePlan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := idgen.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidParameter, "invalid parameter", err.Error())
		return
	}

	start := time.Now()
	date, found, err := s.store.DeletePlan(r.Context(), id)
	s.record(r, "delete_plan", map[string]string{"id": id}, map[string]any{"found": found, "date": date}, err, start)
	if err != nil {
		s.internal(w, r, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, codeNotFound, "not found", "no plan with id "+id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"message":         "plan deleted",
		"deleted_plan_id": id,
		"date":            date,
	})
}

// --- Stats ---

func (s *Server) dayStats(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if !checkDate(w, "date", date) {
		return
	}
	plans, err := s.store.ListPlans(r.Context(), store.Range{From: date, To: date})
	if err != nil {
		s.internal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, store.ComputeDayStats(date, plans))
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	rng, ok := dateRange(w, r)
	if !ok {
		return
	}
	plans, err := s.store.ListPlans(r.Context(), rng)
	if err != nil {
		s.internal(w, r, err)
		return
	}
	dates := store.Dates(plans)
	writeJSON(w, http.StatusOK, map[string]any{
		"dates":      dates,
		"total_days": len(dates),
		"start_date": rng.From,
		"end_date":   rng.To,
	})
}

func (s *Server) historyStats(w http.ResponseWriter, r *http.Request) {
	rng, ok := dateRange(w, r)
	if !ok {
		return
	}
	plans, err := s.store.ListPlans(r.Context(), rng)
	if err != nil {
		s.internal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, store.ComputeHistoryStats(rng, plans))
}

// --- Imports ---

func (s *Server) getImport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := horosafe.ValidateIdentifier(id); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidParameter, "invalid parameter", err.Error())
		return
	}
	rec, err := s.store.GetImport(r.Context(), id)
	if err != nil {
		s.internal(w, r, err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, codeNotFound, "not found", "no import with id "+id)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// --- Audit ---

func (s *Server) listAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := audit.Filter{Action: q.Get("action"), Status: q.Get("status")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, codeInvalidParameter, "invalid parameter", "limit must be within 1-1000")
			return
		}
		f.Limit = n
	}
	entries, err := s.audit.Query(r.Context(), f)
	if err != nil {
		s.internal(w, r, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

func (s *Server) record(r *http.Request, action string, params, result any, err error, start time.Time) {
	if s.audit == nil {
		return
	}
	s.audit.Record(r.Context(), action, params, result, err, time.Since(start))
}

func (s *Server) internal(w http.ResponseWriter, r *http.Request, err error) {
	shield.GetLogger(r.Context()).Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, string(planimport.CodeInternal),
		planimport.CodeInternal.Title(), "unexpected failure while handling the request")
}
