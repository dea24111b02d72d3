package ports

import (
	"github.com/gin-gonic/gin"
)

type HTTPHandler interface {
	GetStatus(c *gin.Context)
	StartMonitoring(c *gin.Context)
	StopMonitoring(c *gin.Context)
	PauseMonitoring(c *gin.Context)
	ResumeMonitoring(c *gin.Context)
	RecalibrateHeadPose(c *gin.Context)
	ListSessions(c *gin.Context)
	GetSessionMetrics(c *gin.Context)
	ClearSessions(c *gin.Context)
}
