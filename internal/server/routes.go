package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"uptime":    time.Since(s.appeared).String(),
			"component": s.cfg.Name,
			"version":   "0.0.1",
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":     true,
			"uptime":    time.Since(s.appeared).String(),
			"component": s.cfg.Name,
			"version":   "0.0.1",
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/anchors", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"anchors": s.svc.Anchors().IDs(),
		})
	})

	s.router.GET("/anchors/:id", func(c *gin.Context) {
		id := c.Param("id")
		a, ok := s.svc.Anchors().Lookup(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "anchor not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"id":       a.ID,
			"parent":   a.ParentID,
			"pose":     a.Pose,
			"children": s.svc.Anchors().Children(id),
		})
	})

	s.router.GET("/viewpoint", func(c *gin.Context) {
		target, moving := s.svc.Viewpoint().Target()
		c.JSON(http.StatusOK, gin.H{
			"pose":   s.svc.Viewpoint().Pose(),
			"state":  s.svc.Viewpoint().State().String(),
			"target": target,
			"moving": moving,
		})
	})

	s.router.GET("/floor", func(c *gin.Context) {
		floor := s.svc.Floors().Current()
		c.JSON(http.StatusOK, gin.H{
			"floor": floor.Slug(),
			"label": floor.String(),
			"busy":  s.svc.IsBusy(),
		})
	})

	s.router.GET("/panels", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"open": s.svc.Panels().Groups(),
		})
	})

	s.router.GET("/ui/states", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"states": s.svc.States().GetAll(),
		})
	})

	s.router.GET("/ui/states/:name", func(c *gin.Context) {
		st, ok := s.svc.States().GetState(c.Param("name"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "state not found"})
			return
		}
		c.JSON(http.StatusOK, st)
	})
}
