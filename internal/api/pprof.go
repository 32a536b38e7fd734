package api

import (
	hpprof "net/http/pprof"

	"github.com/gin-gonic/gin"
)

func mountPprof(g *gin.RouterGroup) {
	g.GET("/", gin.WrapF(hpprof.Index))
	g.GET("/:profile", func(c *gin.Context) {
		switch name := c.Param("profile"); name {
		case "cmdline":
			hpprof.Cmdline(c.Writer, c.Request)
		case "profile":
			hpprof.Profile(c.Writer, c.Request)
		case "symbol":
			hpprof.Symbol(c.Writer, c.Request)
		case "trace":
			hpprof.Trace(c.Writer, c.Request)
		default:
			hpprof.Handler(name).ServeHTTP(c.Writer, c.Request)
		}
	})
}
