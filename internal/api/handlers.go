package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"forex-smc-engine/internal/analyzer"
	"forex-smc-engine/internal/database"
	"forex-smc-engine/internal/market"
	"forex-smc-engine/internal/sequence"
)

// ScanRequest carries the candle series for one instrument scan. The
// caller owns the market data feed; the engine is feed-agnostic.
type ScanRequest struct {
	Instrument string          `json:"instrument" binding:"required"`
	H4Candles  []market.Candle `json:"h4_candles"`
	H1Candles  []market.Candle `json:"h1_candles"`
	M5Candles  []market.Candle `json:"m5_candles" binding:"required"`
}

// ScanResponse is the full scan outcome including cycle position and the
// calibrated confidence.
type ScanResponse struct {
	Analysis             *analyzer.Analysis `json:"analysis"`
	SequenceState        *sequence.State    `json:"sequence_state,omitempty"`
	AdjustedConfidence   int                `json:"adjusted_confidence"`
	CalibratedConfidence int                `json:"calibrated_confidence"`
}

func (s *Server) handleHealth(c *gin.Context) {
	status := gin.H{
		"status":     "ok",
		"time":       time.Now().UTC(),
		"ws_clients": s.hub.GetClientCount(),
	}
	if s.repo != nil {
		if err := s.repo.HealthCheck(c.Request.Context()); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		status["database"] = "ok"
	}
	if s.seqCache != nil {
		status["redis"] = s.seqCache.IsRedisAvailable()
	}
	c.JSON(http.StatusOK, status)
}

// handleScan runs the full pipeline: HTF bias, LTF signal, sequence
// update, confidence adjustment and calibration, then persists and
// broadcasts the result.
func (s *Server) handleScan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()

	htf := s.analyzer.AnalyzeHTF(req.H4Candles, req.H1Candles, req.Instrument)
	analysis := s.analyzer.AnalyzeLTF(req.M5Candles, htf, req.Instrument)

	var priorPhase sequence.Phase
	if prior := s.tracker.GetState(req.Instrument); prior != nil {
		priorPhase = prior.CurrentPhase
	}

	state, err := s.tracker.Update(ctx, req.Instrument, analysis, sequence.TechnicalFromAnalysis(analysis))
	if err != nil {
		s.logger.Error().Err(err).Str("instrument", req.Instrument).Msg("sequence update failed")
	}
	if state != nil && priorPhase != 0 && state.CurrentPhase != priorPhase {
		s.hub.BroadcastEvent("sequence_transition", gin.H{
			"instrument": req.Instrument,
			"old_phase":  priorPhase,
			"new_phase":  state.CurrentPhase,
			"phase_name": state.CurrentPhase.String(),
		})
	}

	adjusted := clampConfidence(analysis.Confidence + s.tracker.ConfidenceModifier(req.Instrument))
	calibrated := s.calibrator.Calibrate(adjusted)

	if s.seqCache != nil && state != nil {
		if err := s.seqCache.SaveState(ctx, state); err != nil {
			s.logger.Warn().Err(err).Msg("sequence cache write failed")
		}
	}

	if s.repo != nil {
		result := scanResultFrom(analysis, state, calibrated)
		if err := s.repo.SaveScanResult(ctx, result, analysis); err != nil {
			s.logger.Error().Err(err).Str("scan_id", analysis.ScanID).Msg("failed to persist scan result")
		}
	}

	resp := ScanResponse{
		Analysis:             analysis,
		SequenceState:        state,
		AdjustedConfidence:   adjusted,
		CalibratedConfidence: calibrated,
	}

	s.hub.BroadcastEvent("scan_result", resp)

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleScanHistory(c *gin.Context) {
	instrument := c.Param("instrument")
	limit := queryInt(c, "limit", 50)

	results, err := s.repo.GetScanResults(c.Request.Context(), instrument, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"instrument": instrument, "results": results})
}

func (s *Server) handleScanByID(c *gin.Context) {
	result, err := s.repo.GetScanResultByID(c.Request.Context(), c.Param("scan_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "scan not found"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleSequenceState(c *gin.Context) {
	instrument := c.Param("instrument")

	if state := s.tracker.GetState(instrument); state != nil {
		c.JSON(http.StatusOK, state)
		return
	}

	// Fall back to the cache for instruments not scanned since restart
	if s.seqCache != nil {
		state, err := s.seqCache.LoadState(c.Request.Context(), instrument)
		if err == nil && state != nil {
			c.JSON(http.StatusOK, state)
			return
		}
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "no sequence state for instrument"})
}

func (s *Server) handleSequenceTransitions(c *gin.Context) {
	instrument := c.Param("instrument")
	limit := queryInt(c, "limit", 50)

	transitions, err := s.seqRepo.GetTransitions(c.Request.Context(), instrument, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"instrument": instrument, "transitions": transitions})
}

func (s *Server) handleCalibrationStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.calibrator.Stats())
}

func (s *Server) handleCalibrationFit(c *gin.Context) {
	result, err := s.calibrator.Fit(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if result.Fitted {
		s.hub.BroadcastEvent("calibration_fitted", result)
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleCreateTrade(c *gin.Context) {
	var trade database.Trade
	if err := c.ShouldBindJSON(&trade); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if trade.EntryTime.IsZero() {
		trade.EntryTime = time.Now().UTC()
	}

	if err := s.repo.CreateTrade(c.Request.Context(), &trade); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, trade)
}

// CloseTradeRequest carries the exit details for a trade.
type CloseTradeRequest struct {
	ExitPrice float64 `json:"exit_price" binding:"required"`
	PnL       float64 `json:"pnl"`
}

func (s *Server) handleCloseTrade(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid trade id"})
		return
	}

	var req CloseTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	trade, err := s.repo.GetTradeByID(ctx, id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "trade not found"})
		return
	}

	now := time.Now().UTC()
	trade.ExitPrice = &req.ExitPrice
	trade.ExitTime = &now
	trade.PnL = &req.PnL

	if err := s.repo.CloseTrade(ctx, trade); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Refit opportunistically once enough new outcomes have accumulated
	if refit, err := s.calibrator.ShouldRefit(ctx); err == nil && refit {
		if result, err := s.calibrator.Fit(ctx); err != nil {
			s.logger.Error().Err(err).Msg("calibrator refit failed")
		} else if result.Fitted {
			s.hub.BroadcastEvent("calibration_fitted", result)
		}
	}

	c.JSON(http.StatusOK, trade)
}

func (s *Server) handleTradeHistory(c *gin.Context) {
	limit := queryInt(c, "limit", 100)
	offset := queryInt(c, "offset", 0)

	trades, err := s.repo.GetTradeHistory(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func scanResultFrom(analysis *analyzer.Analysis, state *sequence.State, calibrated int) *database.ScanResult {
	result := &database.ScanResult{
		ScanID:     analysis.ScanID,
		Timestamp:  analysis.Timestamp,
		Instrument: analysis.Instrument,
		SetupGrade: string(analysis.Grade),
		Confidence: analysis.Confidence,
	}
	result.CalibratedConfidence = &calibrated
	if analysis.Direction != analyzer.DirectionNone {
		dir := string(analysis.Direction)
		result.Direction = &dir
	}
	if analysis.CurrentPrice > 0 {
		price := analysis.CurrentPrice
		result.CurrentPrice = &price
	}
	if analysis.Targets != nil {
		sl, tp, rr := analysis.Targets.StopLoss, analysis.Targets.TakeProfit, analysis.Targets.RiskReward
		result.StopLoss = &sl
		result.TakeProfit = &tp
		result.RiskReward = &rr
	}
	if state != nil {
		phase := int(state.CurrentPhase)
		result.SequencePhase = &phase
	}
	return result
}

func clampConfidence(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func queryInt(c *gin.Context, key string, def int) int {
	if raw := c.Query(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return def
}
