package api

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odvcencio/gatepass/pkg/orchestrator"
	"github.com/odvcencio/gatepass/pkg/pool"
	"github.com/odvcencio/gatepass/pkg/solver"
	"github.com/odvcencio/gatepass/pkg/storage"
)

// challengeResponse mirrors the wire format clients scrape clearances from.
type challengeResponse struct {
	Success        bool              `json:"success"`
	RequestID      string            `json:"request_id"`
	CfClearance    string            `json:"cf_clearance"`
	Cookies        map[string]string `json:"cookies"`
	UserAgent      string            `json:"user_agent"`
	ElapsedSeconds float64           `json:"elapsed_seconds"`
	FromCache      bool              `json:"from_cache"`
	Attempts       int               `json:"attempts"`
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	target := strings.TrimSpace(r.URL.Query().Get("url"))
	if target == "" {
		respondError(w, http.StatusBadRequest, errors.New("url parameter is required"))
		return
	}
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = "https://" + target
	}

	proxyURL := strings.TrimSpace(r.URL.Query().Get("proxy"))
	if proxyURL == "" && s.rotator != nil && s.cfg.Proxies.Enabled {
		proxyURL = s.rotator.Next()
	}

	timeout := s.cfg.Solver.Timeout
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Errorf("invalid timeout %q", raw))
			return
		}
		timeout = time.Duration(secs) * time.Second
	}
	timeout = s.cfg.ClampTimeout(timeout)

	maxRetries := s.cfg.Solver.MaxRetries
	if raw := r.URL.Query().Get("max_retries"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, fmt.Errorf("invalid max_retries %q", raw))
			return
		}
		maxRetries = n
	}

	skipCache := false
	if raw := r.URL.Query().Get("skip_cache"); raw != "" {
		skipCache = raw == "1" || strings.EqualFold(raw, "true")
	}

	req := orchestrator.Request{
		ID:         uuid.NewString()[:8],
		URL:        target,
		Proxy:      proxyURL,
		Timeout:    timeout,
		MaxRetries: maxRetries,
		SkipCache:  skipCache,
	}

	result, err := s.solver.Solve(r.Context(), req)
	if err != nil {
		status, outcome := classifySolveError(err)
		s.recordRequest(&storage.RequestLog{
			RequestID: req.ID,
			TargetURL: target,
			Channel:   channelOf(proxyURL),
			Outcome:   outcome,
			Attempts:  attemptsOf(err),
			Error:     err.Error(),
		})
		respondError(w, status, err)
		return
	}

	cookies := make(map[string]string, len(result.Clearance.Cookies))
	for _, c := range result.Clearance.Cookies {
		cookies[c.Name] = c.Value
	}

	s.recordRequest(&storage.RequestLog{
		RequestID: result.RequestID,
		TargetURL: target,
		Channel:   channelOf(proxyURL),
		Outcome:   storage.OutcomeSolved,
		FromCache: result.FromCache,
		Attempts:  result.Attempts,
		ElapsedMs: result.Elapsed.Milliseconds(),
	})

	respondJSON(w, challengeResponse{
		Success:        true,
		RequestID:      result.RequestID,
		CfClearance:    result.Clearance.Token,
		Cookies:        cookies,
		UserAgent:      result.Clearance.UserAgent,
		ElapsedSeconds: math.Round(result.Elapsed.Seconds()*1000) / 1000,
		FromCache:      result.FromCache,
		Attempts:       result.Attempts,
	})
}

// classifySolveError maps orchestrator failures to HTTP statuses and
// request-log outcomes.
func classifySolveError(err error) (int, string) {
	switch {
	case errors.Is(err, solver.ErrManualChallenge):
		return http.StatusForbidden, storage.OutcomeManual
	case errors.Is(err, solver.ErrClearanceTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, storage.OutcomeTimeout
	case errors.Is(err, pool.ErrShutdown):
		return http.StatusServiceUnavailable, storage.OutcomeError
	default:
		return http.StatusInternalServerError, storage.OutcomeError
	}
}

func attemptsOf(err error) int {
	var exhausted *orchestrator.RetriesExhaustedError
	if errors.As(err, &exhausted) {
		return exhausted.Attempts
	}
	return 1
}

func channelOf(proxyURL string) string {
	if proxyURL == "" {
		return "direct"
	}
	return proxyURL
}

// recordRequest persists a request log, best effort.
func (s *Server) recordRequest(rec *storage.RequestLog) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveRequestLog(rec); err != nil {
		s.logger.Printf("failed to record request %s: %v", rec.RequestID, err)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.solver.Stats()

	successRate := 0.0
	if stats.Total > 0 {
		successRate = float64(stats.Success) / float64(stats.Total)
	}

	payload := map[string]any{
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"requests":       stats,
		"success_rate":   math.Round(successRate*1000) / 1000,
	}
	if s.cache != nil {
		payload["cache"] = s.cache.Stats()
	}
	if s.pool != nil {
		payload["pool"] = s.pool.Stats()
	}
	respondJSON(w, payload)
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	stats := s.solver.Stats()
	respondJSON(w, map[string]any{
		"waiting":        stats.QueueWaiting,
		"processing":     stats.Processing,
		"max_concurrent": s.cfg.Server.MaxConcurrent,
	})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	cleared := 0
	if s.cache != nil {
		cleared = s.cache.Clear()
	}
	respondJSON(w, map[string]any{"cleared": cleared})
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, errors.New("request history disabled"))
		return
	}
	limit := parseIntDefault(r.URL.Query().Get("limit"), 100)
	logs, err := s.store.ListRequestLogs(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if logs == nil {
		logs = []storage.RequestLog{}
	}
	respondJSON(w, map[string]any{"requests": logs})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	})
}
