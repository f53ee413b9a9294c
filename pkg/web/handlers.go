package web

import (
	"bytes"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-lidarplot/pkg/hub"
	"github.com/teslashibe/go-lidarplot/pkg/scan"
	"github.com/teslashibe/go-lidarplot/pkg/snapshot"
)

const indexHTML = `<!DOCTYPE html>
<html>
<head><title>Lidar Scan</title></head>
<body style="margin:0;background:#222;color:#ddd;font-family:monospace">
<img id="frame" style="display:block;margin:1em auto;image-rendering:pixelated">
<pre id="status" style="margin:1em auto;width:500px"></pre>
<script>
const proto = location.protocol === "https:" ? "wss://" : "ws://";
const frames = new WebSocket(proto + location.host + "/ws/frames");
frames.binaryType = "blob";
frames.onmessage = (e) => {
  const img = document.getElementById("frame");
  const old = img.src;
  img.src = URL.createObjectURL(e.data);
  if (old) URL.revokeObjectURL(old);
};
const status = new WebSocket(proto + location.host + "/ws/status");
status.onmessage = (e) => {
  document.getElementById("status").textContent = JSON.stringify(JSON.parse(e.data), null, 2);
};
</script>
</body>
</html>
`

// handleIndex serves the viewer page
func (s *Server) handleIndex(c *fiber.Ctx) error {
	c.Type("html")
	return c.SendString(indexHTML)
}

// handleHealth reports liveness
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"viewers": s.framesHub.ClientCount(),
	})
}

// handleMetrics exposes node counters in Prometheus text format
func (s *Server) handleMetrics(c *fiber.Ctx) error {
	status := s.Status()
	st := status.Node
	var ranges scan.Summary
	if status.Ranges != nil {
		ranges = *status.Ranges
	}
	return c.SendString(fmt.Sprintf(`# HELP lidarplot_scans_received Total scans received
# TYPE lidarplot_scans_received counter
lidarplot_scans_received %d

# HELP lidarplot_frames_rendered Total frames rendered
# TYPE lidarplot_frames_rendered counter
lidarplot_frames_rendered %d

# HELP lidarplot_points_plotted Total readings drawn
# TYPE lidarplot_points_plotted counter
lidarplot_points_plotted %d

# HELP lidarplot_points_invalid Total readings outside range limits
# TYPE lidarplot_points_invalid counter
lidarplot_points_invalid %d

# HELP lidarplot_points_out_of_bounds Total readings outside the image
# TYPE lidarplot_points_out_of_bounds counter
lidarplot_points_out_of_bounds %d

# HELP lidarplot_sink_errors Total sink write failures
# TYPE lidarplot_sink_errors counter
lidarplot_sink_errors %d

# HELP lidarplot_viewers Connected frame viewers
# TYPE lidarplot_viewers gauge
lidarplot_viewers %d

# HELP lidarplot_last_scan_valid Valid readings in the last scan
# TYPE lidarplot_last_scan_valid gauge
lidarplot_last_scan_valid %d

# HELP lidarplot_last_scan_nearest_meters Nearest valid reading in the last scan
# TYPE lidarplot_last_scan_nearest_meters gauge
lidarplot_last_scan_nearest_meters %g

# HELP lidarplot_last_scan_mean_meters Mean valid reading in the last scan
# TYPE lidarplot_last_scan_mean_meters gauge
lidarplot_last_scan_mean_meters %g
`, st.ScansReceived, st.FramesRendered, st.PointsPlotted, st.PointsInvalid,
		st.OutOfBounds, st.SinkErrors, s.framesHub.ClientCount(),
		ranges.Valid, ranges.Min, ranges.Mean))
}

// handleStatus returns the node's current state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.Status())
}

// handleConfig returns the projection geometry
func (s *Server) handleConfig(c *fiber.Ctx) error {
	cfg := s.proj.Config()
	return c.JSON(fiber.Map{
		"projection":    cfg,
		"range_covered": cfg.RangeCovered(),
	})
}

// handleSnapshot renders the latest scan as a PNG chart
func (s *Server) handleSnapshot(c *fiber.Ctx) error {
	var buf bytes.Buffer
	if err := snapshot.WritePNG(&buf, s.proj, s.Latest(), snapshot.Size); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	c.Type("png")
	return c.Send(buf.Bytes())
}

// handleFramesWS streams JPEG frames to a viewer
func (s *Server) handleFramesWS(c *websocket.Conn) {
	hub.Serve(s.framesHub, c)
}

// handleStatusWS streams status updates, starting with the current status
func (s *Server) handleStatusWS(c *websocket.Conn) {
	initial, err := hub.EncodeJSON(s.Status())
	if err != nil {
		s.logger.Warn("failed to encode status", "error", err)
		hub.Serve(s.statusHub, c)
		return
	}
	hub.Serve(s.statusHub, c, initial)
}
