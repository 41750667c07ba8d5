package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battlife/pkg/config"
	"github.com/charlie0129/battlife/pkg/events"
	"github.com/charlie0129/battlife/pkg/powerinfo"
	"github.com/charlie0129/battlife/pkg/types"
	"github.com/charlie0129/battlife/pkg/version"
)

// refreshTimeout bounds a user-triggered acquisition. The report tool alone
// may take 30s.
const refreshTimeout = 90 * time.Second

var errNotReady = errors.New("battery record is not ready yet, try again in a few seconds")

func abort(c *gin.Context, code int, err error) {
	c.IndentedJSON(code, err.Error())
	_ = c.AbortWithError(code, err)
}

func (s *server) getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(s.conf)
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func (s *server) getRecord(c *gin.Context) {
	rec := s.poller.Current()
	if rec == nil {
		abort(c, http.StatusServiceUnavailable, errNotReady)
		return
	}
	c.IndentedJSON(http.StatusOK, rec)
}

func (s *server) getHealth(c *gin.Context) {
	rec := s.poller.Current()
	if rec == nil {
		abort(c, http.StatusServiceUnavailable, errNotReady)
		return
	}
	c.IndentedJSON(http.StatusOK, types.NewHealthResponse(rec))
}

func (s *server) getLifespan(c *gin.Context) {
	threshold := s.conf.PrimaryThreshold()
	if q := c.Query("threshold"); q != "" {
		t, err := strconv.ParseFloat(q, 64)
		if err != nil || t <= 0 || t > 100 {
			abort(c, http.StatusBadRequest, fmt.Errorf("threshold must be a number in (0, 100], got %q", q))
			return
		}
		threshold = t
	}

	rec := s.poller.Current()
	if rec == nil {
		abort(c, http.StatusServiceUnavailable, errNotReady)
		return
	}
	c.IndentedJSON(http.StatusOK, types.NewLifespanResponse(s.projector, rec, threshold))
}

func (s *server) getLive(c *gin.Context) {
	rec := s.poller.Current()
	if rec == nil {
		abort(c, http.StatusServiceUnavailable, errNotReady)
		return
	}
	c.IndentedJSON(http.StatusOK, types.NewLiveResponse(rec))
}

func (s *server) postRefresh(c *gin.Context) {
	force := false
	if q := c.Query("force"); q != "" {
		f, err := strconv.ParseBool(q)
		if err != nil {
			abort(c, http.StatusBadRequest, fmt.Errorf("force must be a boolean, got %q", q))
			return
		}
		force = f
	}

	rec, err := s.refresh(c.Request.Context(), force)
	if err != nil {
		logrus.Errorf("refresh failed: %v", err)
		abort(c, http.StatusInternalServerError, err)
		return
	}

	logrus.WithField("force", force).Info("record refreshed on request")
	c.IndentedJSON(http.StatusOK, rec)
}

func (s *server) getCycleCount(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.conf.CycleCountOverride())
}

func (s *server) setCycleCount(c *gin.Context) {
	var n int
	if err := c.BindJSON(&n); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if n < 0 {
		abort(c, http.StatusBadRequest, fmt.Errorf("cycle count must not be negative, got %d", n))
		return
	}

	s.conf.SetCycleCountOverride(&n)
	if err := s.conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abort(c, http.StatusInternalServerError, err)
		return
	}

	logrus.Infof("set cycle count override to %d", n)

	// Apply right away instead of waiting for the next scheduled refresh.
	if _, err := s.refresh(c.Request.Context(), false); err != nil {
		logrus.Warnf("failed to refresh after setting the cycle count: %v", err)
	}

	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("cycle count set to %d; it overrides every source until cleared", n))
}

func (s *server) clearCycleCount(c *gin.Context) {
	s.conf.SetCycleCountOverride(nil)
	if err := s.conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abort(c, http.StatusInternalServerError, err)
		return
	}

	logrus.Info("cleared cycle count override")

	if _, err := s.refresh(c.Request.Context(), false); err != nil {
		logrus.Warnf("failed to refresh after clearing the cycle count: %v", err)
	}

	c.IndentedJSON(http.StatusOK, "cycle count override cleared")
}

func (s *server) getStatus(c *gin.Context) {
	jobs, running := s.scheduler.Status()
	c.IndentedJSON(http.StatusOK, types.StatusResponse{
		Poller:    s.poller.State().String(),
		Scheduler: running,
		NextRuns:  jobs,
	})
}

func (s *server) getEvents(c *gin.Context) {
	ch := s.hub.Subscribe()
	defer s.hub.Unsubscribe(ch)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	// Send the current state first so a new subscriber does not wait a full
	// interval for its first update.
	if rec := s.poller.Current(); rec != nil {
		c.SSEvent(events.BatteryLive, events.LiveUpdate{
			Live:   rec.Live,
			Alerts: rec.Alerts,
			Ts:     rec.AcquiredAt.Unix(),
		})
		c.Writer.Flush()
	}

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, string(ev.Data))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}

func (s *server) refresh(ctx context.Context, force bool) (*powerinfo.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()
	return s.poller.Refresh(ctx, force)
}
