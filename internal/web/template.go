package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/aircon-guard/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"ms": func(v int64) string {
		return (time.Duration(v) * time.Millisecond).String()
	},
	"stateClass": func(s string) string {
		switch s {
		case "MONITORING", "SHUTDOWN_REQUESTED":
			return "active"
		case "":
			return "unknown"
		}
		return "idle"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Aircon Guard</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.active { color: #c60; font-weight: bold; }
.idle { color: #888; }
.unknown { color: orange; }
.connected, .ok { color: green; }
.disconnected, .missing { color: red; }
.display { background: #111; color: #9cf; padding: 4px 8px; }
</style>
</head>
<body>
<h1>Aircon Guard</h1>

<h2>State</h2>
<table>
<tr><th>Monitor</th><td class="{{stateClass (printf "%s" .State)}}">{{.State}}</td></tr>
{{if .Episode}}<tr><th>Episode</th><td>{{.Episode}}</td></tr>{{end}}
<tr><th>Display</th><td class="display">{{.Display}}</td></tr>
<tr><th>Off key</th><td class="{{if .KeyPresent}}ok{{else}}missing{{end}}">{{if .KeyPresent}}captured{{else}}none - press scan{{end}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}} {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Counts</h2>
<table>
<tr><th>Episodes</th><td>{{.Counts.Episodes}}</td></tr>
<tr><th>Shutdowns</th><td>{{.Counts.Shutdowns}}</td></tr>
<tr><th>Confirmed</th><td>{{.Counts.Confirmed}}</td></tr>
<tr><th>Retries</th><td>{{.Counts.Retries}}</td></tr>
<tr><th>Presumed off</th><td>{{.Counts.PresumedOff}}</td></tr>
<tr><th>Window exits</th><td>{{.Counts.WindowExits}}</td></tr>
<tr><th>Captures</th><td>{{.Counts.CapturesOK}} ok / {{.Counts.CapturesFailed}} failed</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Restricted window</th><td>{{.Config.Window}}</td></tr>
<tr><th>Secondary signal</th><td>{{.Config.Secondary}}</td></tr>
<tr><th>Motion run limit</th><td>{{ms .Config.MotionRunLimitMs}}</td></tr>
<tr><th>Secondary grace</th><td>{{ms .Config.SecondaryGraceMs}}</td></tr>
<tr><th>Max attempts</th><td>{{.Config.MaxAttempts}}{{if not .Config.Escalate}} (no restart){{end}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms / {{.Config.EpisodePollMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{ms .Config.HeartbeatMs}}{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
