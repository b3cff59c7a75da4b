// Package server exposes the codec, splitter, reassembler and weekly report
// over a JSON HTTP API.
package server

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"

	"statuslink/internal/config"
	"statuslink/internal/splitter"
	"statuslink/internal/tags"
)

// maxBodyBytes bounds request bodies; a status link is a few kilobytes.
const maxBodyBytes = 4 << 20

type Server struct {
	cfg      config.Config
	db       *sql.DB
	tags     tags.TagLookup
	splitter *splitter.Splitter
	router   *gin.Engine
}

// New wires the routes. db may be nil, in which case the history and store
// backed endpoints answer 503.
func New(cfg config.Config, db *sql.DB, lookup tags.TagLookup) *Server {
	router := gin.Default()
	s := &Server{
		cfg:  cfg,
		db:   db,
		tags: lookup,
		splitter: splitter.New(splitter.Options{
			Budget:        cfg.FragmentBudget,
			ContentBudget: cfg.ContentBudget,
			Chunker:       splitter.NewChunker(cfg.Chunker),
		}),
		router: router,
	}

	router.Use(limitBody(maxBodyBytes))
	router.GET("/healthz", s.handleHealth)

	api := router.Group("/api")
	{
		api.POST("/encode", s.handleEncode)
		api.POST("/decode", s.handleDecode)
		api.POST("/split", s.handleSplit)
		api.POST("/extract", s.handleExtract)
		api.POST("/reassemble", s.handleReassemble)
		api.POST("/merge-edit", s.handleMergeEdit)
		api.POST("/team", s.handleTeam)
		api.POST("/weekly", s.handleWeekly)

		api.GET("/tags", s.handleListTags)
		api.POST("/tags", s.handleAddTag)
		api.DELETE("/tags/:id", s.handleDeleteTag)

		api.GET("/snapshots", s.requireDB, s.handleListSnapshots)
		api.POST("/snapshots", s.requireDB, s.handleSaveSnapshots)
		api.DELETE("/snapshots/:id", s.requireDB, s.handleDeleteSnapshot)
		api.GET("/history/stats", s.requireDB, s.handleStats)
		api.GET("/history/timeline/:id", s.requireDB, s.handleTimeline)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run() error {
	return s.router.Run(s.cfg.HTTPAddr)
}

func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}

func (s *Server) requireDB(c *gin.Context) {
	if s.db == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "history store is not configured"})
		return
	}
	c.Next()
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
