package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"statuslink/internal/codec"
	"statuslink/internal/digest"
	"statuslink/internal/domain"
	"statuslink/internal/fragment"
	"statuslink/internal/history"
	"statuslink/internal/listid"
	"statuslink/internal/reassembly"
	"statuslink/internal/report"
	"statuslink/internal/splitter"
	"statuslink/internal/storage/sqlite"
	"statuslink/internal/tags"
	"statuslink/internal/weekly"
)

type payloadRequest struct {
	Payload   domain.StatusPayload `json:"payload"`
	Budget    int                  `json:"budget"`
	AssignIDs bool                 `json:"assignIds"`
	StripIDs  bool                 `json:"stripIds"`
}

type textRequest struct {
	Text      string   `json:"text"`
	Fragments []string `json:"fragments"`
	Origin    *string  `json:"origin"`
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// origin is the request's origin filter, defaulting to the configured one.
func (s *Server) origin(o *string) string {
	if o != nil {
		return *o
	}
	return s.cfg.Origin
}

func (s *Server) fragments(req textRequest) []string {
	if len(req.Fragments) > 0 {
		return req.Fragments
	}
	return fragment.Extract(req.Text, s.origin(req.Origin))
}

func (s *Server) handleEncode(c *gin.Context) {
	var req payloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.StripIDs {
		p, err := listid.StripPayload(req.Payload)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		req.Payload = p
	}
	if req.AssignIDs {
		p, err := listid.AssignPayload(req.Payload)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		req.Payload = p
	}
	frag, err := codec.Encode(req.Payload)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"fragment": frag,
		"link":     fragment.LinkFor(s.cfg.BaseURL, frag),
		"size":     len(frag),
	})
}

func (s *Server) handleDecode(c *gin.Context) {
	var req struct {
		Fragment string `json:"fragment"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Fragment == "" {
		badRequest(c, "fragment is required")
		return
	}
	frags := fragment.Extract(req.Fragment, "")
	if len(frags) == 0 {
		badRequest(c, "no status fragment found")
		return
	}
	decoded, ok := codec.Decode(frags[0])
	if !ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid status link"})
		return
	}
	var custom []domain.TagDef
	for _, p := range decoded.Payloads {
		custom = append(custom, tags.DecodeCustomTags(p.CustomTags)...)
	}
	c.JSON(http.StatusOK, gin.H{
		"payloads":   decoded.Payloads,
		"batch":      decoded.Batch,
		"customTags": custom,
	})
}

func (s *Server) handleSplit(c *gin.Context) {
	var req payloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	sp := s.splitter
	if req.Budget > 0 {
		sp = splitter.New(splitter.Options{Budget: req.Budget, Chunker: splitter.NewChunker(s.cfg.Chunker)})
	}
	res, err := sp.Split(req.Payload)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	links := make([]string, 0, len(res.Fragments))
	for _, f := range res.Fragments {
		links = append(links, fragment.LinkFor(s.cfg.BaseURL, f))
	}
	c.JSON(http.StatusOK, gin.H{
		"fragments": res.Fragments,
		"links":     links,
		"oversized": res.Oversized,
	})
}

func (s *Server) handleExtract(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"fragments":    nonNil(fragment.Extract(req.Text, s.origin(req.Origin))),
		"invalidLines": nonNil(fragment.InvalidLines(req.Text)),
	})
}

func (s *Server) handleReassemble(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	entries := reassembly.Reassemble(s.fragments(req))
	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"apps":    nonNil(reassembly.Apps(entries)),
	})
}

func (s *Server) handleMergeEdit(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	var (
		merged domain.StatusPayload
		err    error
	)
	if len(req.Fragments) > 0 {
		merged, err = reassembly.MergeForEditing(req.Fragments)
	} else {
		merged, err = reassembly.MergeTextForEditing(req.Text, s.origin(req.Origin))
	}
	switch {
	case errors.Is(err, reassembly.ErrNoPayloads):
		badRequest(c, err.Error())
		return
	case errors.Is(err, reassembly.ErrMixedIdentities):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"payload": merged})
}

func (s *Server) handleTeam(c *gin.Context) {
	var req struct {
		textRequest
		Mode     string `json:"mode"`
		App      string `json:"app"`
		ShowTags bool   `json:"showTags"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	entries := reassembly.Reassemble(s.fragments(req.textRequest))
	merged := report.RenderTeamHTML(entries, report.ParseMergeMode(req.Mode), req.App, req.ShowTags)
	text := report.PlainText(merged)
	if !req.ShowTags {
		text = report.RemoveStatusTags(text)
	}
	c.JSON(http.StatusOK, gin.H{
		"html":         merged,
		"text":         text,
		"apps":         nonNil(reassembly.Apps(entries)),
		"invalidLines": nonNil(fragment.InvalidLines(req.Text)),
	})
}

func (s *Server) handleWeekly(c *gin.Context) {
	var req struct {
		textRequest
		App      string `json:"app"`
		Name     string `json:"name"`
		From     string `json:"from"`
		To       string `json:"to"`
		ShowTags bool   `json:"showTags"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	var payloads []domain.StatusPayload
	if req.Text != "" || len(req.Fragments) > 0 {
		payloads = reassembly.ReassemblePayloads(s.fragments(req.textRequest))
	} else {
		if s.db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history store is not configured"})
			return
		}
		from, to := req.From, req.To
		if from == "" || to == "" {
			from, to = digest.ReportWeek(s.cfg, time.Now())
		}
		snaps, err := sqlite.GetSnapshotsByDateRange(s.db, from, to, req.Name)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		payloads = sqlite.Payloads(snaps)
	}

	configs, err := weekly.LoadCategoryConfigs(s.cfg.CategoriesPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	reports := []domain.CategorizedReport{}
	if req.App != "" {
		reports = weekly.GenerateWeeklyReport(payloads, req.App, configs)
	}
	c.JSON(http.StatusOK, gin.H{
		"app":           req.App,
		"apps":          nonNil(weekly.ExtractAppNames(payloads)),
		"availableTags": nonNil(weekly.ExtractAvailableTags(payloads, req.App)),
		"reports":       reports,
		"html":          report.RenderWeeklyHTML(reports, req.ShowTags),
		"markdown":      report.RenderWeeklyMarkdown(req.App, reports, req.ShowTags),
	})
}

func (s *Server) handleListTags(c *gin.Context) {
	all, err := s.tags.All()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": all})
}

func (s *Server) handleAddTag(c *gin.Context) {
	var req struct {
		Label string `json:"label"`
		Color string `json:"color"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	tag, err := s.tags.Add(req.Label, req.Color)
	switch {
	case errors.Is(err, tags.ErrEmptyLabel):
		badRequest(c, err.Error())
		return
	case errors.Is(err, tags.ErrLabelTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, tag)
}

func (s *Server) handleDeleteTag(c *gin.Context) {
	err := s.tags.Remove(c.Param("id"))
	if errors.Is(err, tags.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListSnapshots(c *gin.Context) {
	f := sqlite.SnapshotFilter{
		Search: c.Query("search"),
		Kind:   c.Query("kind"),
		Name:   c.Query("name"),
		From:   c.Query("from"),
		To:     c.Query("to"),
	}
	var err error
	if f.Limit, err = queryInt(c, "limit"); err != nil {
		badRequest(c, "limit must be a number")
		return
	}
	if f.Offset, err = queryInt(c, "offset"); err != nil {
		badRequest(c, "offset must be a number")
		return
	}
	snaps, err := sqlite.ListSnapshots(s.db, f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"snapshots": nonNil(snaps),
		"groups":    nonNil(history.GroupSnapshots(snaps)),
		"names":     nonNil(history.Names(snaps)),
	})
}

func (s *Server) handleSaveSnapshots(c *gin.Context) {
	var req struct {
		textRequest
		Kind string `json:"kind"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.Kind != "" && req.Kind != domain.KindIndividual && req.Kind != domain.KindTeam {
		badRequest(c, "kind must be individual or team")
		return
	}
	payloads := reassembly.ReassemblePayloads(s.fragments(req.textRequest))
	if len(payloads) == 0 {
		badRequest(c, reassembly.ErrNoPayloads.Error())
		return
	}
	saved := 0
	for _, p := range payloads {
		n, err := sqlite.SaveDailyStatus(s.db, p, req.Kind, "api")
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		saved += n
	}
	c.JSON(http.StatusCreated, gin.H{"payloads": len(payloads), "snapshots": saved})
}

func (s *Server) handleDeleteSnapshot(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "invalid snapshot id")
		return
	}
	err = sqlite.DeleteSnapshot(s.db, id)
	if errors.Is(err, sqlite.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleStats(c *gin.Context) {
	snaps, err := sqlite.ListSnapshots(s.db, sqlite.SnapshotFilter{
		Kind: domain.KindIndividual,
		Name: c.Query("name"),
		From: c.Query("from"),
		To:   c.Query("to"),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, history.ComputeStats(snaps))
}

func (s *Server) handleTimeline(c *gin.Context) {
	snaps, err := sqlite.ListSnapshots(s.db, sqlite.SnapshotFilter{Name: c.Query("name")})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "timeline": history.Timeline(snaps, c.Param("id"))})
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
