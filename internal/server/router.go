package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	mng "github.com/quayside/resman/internal/manager"
	"github.com/quayside/resman/internal/resource"
)

// Router provides embeddable HTTP handlers for managing resources.
// Endpoints:
//
//	POST {basePath}/resource/start    query: name=...
//	POST {basePath}/resource/stop     query: name=...&wait=1s (wait optional)
//	POST {basePath}/resource/restart  query: name=...&wait=1s (wait optional)
//	POST {basePath}/resource/config   body: {"resource_name": ..., "config": {partial}}
//	POST {basePath}/resource/rename   body: {"from": ..., "to": ...}
//	POST {basePath}/resource/delete   query: name=...
//	GET  {basePath}/status            query: name=... (single) or none (all)
//	GET  {basePath}/healthz
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	mgr      *mng.Manager
	basePath string
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/api" results in /api/resource/start etc.
func NewRouter(mgr *mng.Manager, basePath string) *Router {
	return &Router{mgr: mgr, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/resource/start", r.handleStart)
	group.POST("/resource/stop", r.handleStop)
	group.POST("/resource/restart", r.handleRestart)
	group.POST("/resource/config", r.handleSetConfig)
	group.POST("/resource/rename", r.handleRename)
	group.POST("/resource/delete", r.handleDelete)
	group.GET("/status", r.handleStatus)
	group.GET("/healthz", r.handleHealthz)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Call Close or Shutdown on the returned server to stop it.
func NewServer(addr, basePath string, mgr *mng.Manager) (*http.Server, error) {
	r := NewRouter(mgr, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) requireName(c *gin.Context) (string, bool) {
	name := c.Query("name")
	if name == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "name query param required"})
		return "", false
	}
	if !isSafeName(name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid name: allowed [A-Za-z0-9._-] and no '..' or path separators"})
		return "", false
	}
	return name, true
}

func waitParam(c *gin.Context) time.Duration {
	wait := 2 * time.Second
	if s := c.Query("wait"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			wait = d
		}
	}
	return wait
}

func (r *Router) handleStart(c *gin.Context) {
	name, ok := r.requireName(c)
	if !ok {
		return
	}
	if err := r.mgr.Start(name); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStop(c *gin.Context) {
	name, ok := r.requireName(c)
	if !ok {
		return
	}
	if err := r.mgr.Stop(name, waitParam(c)); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleRestart(c *gin.Context) {
	name, ok := r.requireName(c)
	if !ok {
		return
	}
	if err := r.mgr.Restart(name, waitParam(c)); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

type configRequest struct {
	ResourceName string               `json:"resource_name"`
	Config       resource.ConfigPatch `json:"config"`
}

func (r *Router) handleSetConfig(c *gin.Context) {
	var req configRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.ResourceName == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "resource_name required"})
		return
	}
	if err := r.mgr.SetConfig(req.ResourceName, req.Config); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

type renameRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (r *Router) handleRename(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.From == "" || req.To == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "from and to required"})
		return
	}
	if !isSafeName(req.To) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid to: allowed [A-Za-z0-9._-] and no '..' or path separators"})
		return
	}
	if err := r.mgr.Rename(req.From, req.To); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleDelete(c *gin.Context) {
	name, ok := r.requireName(c)
	if !ok {
		return
	}
	if err := r.mgr.Delete(name, waitParam(c)); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStatus(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		writeJSON(c, http.StatusOK, r.mgr.Statuses())
		return
	}
	st, err := r.mgr.Status(name)
	if err != nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
