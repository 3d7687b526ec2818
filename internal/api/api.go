// Package api wires the management HTTP endpoints onto gin, the same
// router library the host panel's handler package builds on, adapted from
// CRUD-over-gorm-models handlers to the deployment manager's state-machine
// operations.
package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/web-casa/shuttlectl/internal/apierr"
	"github.com/web-casa/shuttlectl/internal/authsvc"
	"github.com/web-casa/shuttlectl/internal/deployment"
)

// Server holds the dependencies the management endpoints need.
type Server struct {
	manager *deployment.Manager
	auth    *authsvc.Service
	limiter *RateLimiter
}

// New creates a Server and registers its routes on engine.
func New(engine *gin.Engine, manager *deployment.Manager, auth *authsvc.Service) *Server {
	s := &Server{
		manager: manager,
		auth:    auth,
		limiter: NewRateLimiter(30, 60),
	}
	s.routes(engine)
	return s
}

func (s *Server) routes(r *gin.Engine) {
	r.GET("/status", s.status)
	r.POST("/users/:username", s.createUser)

	authed := r.Group("/")
	authed.Use(s.authenticate)
	authed.POST("/projects", s.deploy)
	authed.GET("/projects/:name", s.getProject)
	authed.DELETE("/projects/:name", s.deleteProject)
	authed.GET("/deployments/:id", s.getDeployment)
	authed.DELETE("/deployments/:id", s.deleteDeployment)
}

// authenticate resolves the bearer token, rate-limits by caller identity
// before authorization is even known, and stashes the resolved username on
// the context for downstream handlers.
func (s *Server) authenticate(c *gin.Context) {
	token := bearerToken(c.GetHeader("Authorization"))

	key := token
	if key == "" {
		key = c.ClientIP()
	}
	if !s.limiter.Allow(key) {
		writeErr(c, apierr.Unauthorized("too many attempts"))
		c.Abort()
		return
	}

	username, err := s.auth.Authenticate(c.Request.Context(), token)
	if err != nil {
		writeErr(c, err)
		c.Abort()
		return
	}
	c.Set("username", username)
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return header
}

func (s *Server) status(c *gin.Context) {
	c.Status(http.StatusOK)
}

func (s *Server) createUser(c *gin.Context) {
	admin := bearerToken(c.GetHeader("Authorization"))
	if who, err := s.auth.Authenticate(c.Request.Context(), admin); err != nil || who != "admin" {
		writeErr(c, apierr.Unauthorized("admin token required"))
		return
	}

	key, err := s.auth.CreateUser(c.Request.Context(), c.Param("username"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"api_key": key})
}

func (s *Server) deploy(c *gin.Context) {
	project := c.GetHeader("X-Project-Name")
	if project == "" {
		writeErr(c, apierr.BadRequest("X-Project-Name header required"))
		return
	}

	username := c.GetString("username")
	if err := s.authorizeProject(c, username, project); err != nil {
		writeErr(c, err)
		return
	}

	archive, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeErr(c, apierr.BadRequest("could not read request body"))
		return
	}

	snap, err := s.manager.Deploy(project, archive)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// authorizeProject grants username access to project the first time they
// deploy it (matching the narrow access-control model of §6: a user's
// owned-project set grows by deploying, there is no separate grant flow
// exposed over the API), and otherwise defers to the stored grant.
func (s *Server) authorizeProject(c *gin.Context, username, project string) error {
	if err := s.auth.Authorize(c.Request.Context(), username, project); err == nil {
		return nil
	}
	if _, err := s.manager.GetActive(project); err == nil {
		return apierr.Unauthorized("not authorized for project")
	}
	return s.auth.Grant(c.Request.Context(), username, project)
}

func (s *Server) getProject(c *gin.Context) {
	project := c.Param("name")
	if err := s.auth.Authorize(c.Request.Context(), c.GetString("username"), project); err != nil {
		writeErr(c, apierr.NotFound("project not found"))
		return
	}
	snap, err := s.manager.GetActive(project)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) deleteProject(c *gin.Context) {
	project := c.Param("name")
	if err := s.auth.Authorize(c.Request.Context(), c.GetString("username"), project); err != nil {
		writeErr(c, apierr.NotFound("project not found"))
		return
	}
	snap, err := s.manager.KillActive(project)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) getDeployment(c *gin.Context) {
	snap, err := s.manager.GetByID(c.Param("id"))
	if err != nil {
		writeErr(c, err)
		return
	}
	if s.auth.Authorize(c.Request.Context(), c.GetString("username"), snap.Project) != nil {
		writeErr(c, apierr.NotFound("deployment not found"))
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) deleteDeployment(c *gin.Context) {
	id := c.Param("id")
	snap, err := s.manager.GetByID(id)
	if err != nil {
		writeErr(c, err)
		return
	}
	if s.auth.Authorize(c.Request.Context(), c.GetString("username"), snap.Project) != nil {
		writeErr(c, apierr.NotFound("deployment not found"))
		return
	}
	snap, err = s.manager.Kill(id)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func writeErr(c *gin.Context, err error) {
	if e, ok := apierr.As(err); ok {
		c.JSON(e.Status, gin.H{"error": e.Message})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
