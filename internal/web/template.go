package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/telemetry-bridge/internal/protocol"
	"github.com/sweeney/telemetry-bridge/internal/status"
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
	"num": protocol.FormatNumber,
	"ms": func(ms int64) string {
		return (time.Duration(ms) * time.Millisecond).Truncate(time.Second).String()
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Telemetry Bridge</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Telemetry Bridge<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>Telemetry</h2>
<table>
<tr><th>Temperature</th><td id="wert">{{with .Info.LastSample}}{{num .Wert}} &deg;C{{else}}none{{end}}</td></tr>
<tr><th>Sample</th><td id="sample">{{with .Info.LastSample}}{{.ID}}{{else}}-{{end}}</td></tr>
<tr><th>Threshold</th><td id="threshold">{{num .Info.Threshold}} &deg;C</td></tr>
</table>

<h2>Coordination</h2>
<table>
<tr><th>Config lock</th><td id="lock" class="{{if .Info.Lock.Held}}on{{else}}off{{end}}">{{if .Info.Lock.Held}}{{.Info.Lock.Holder}}{{if .Info.Lock.RemainingMs}} ({{ms .Info.Lock.RemainingMs}} left){{end}}{{else}}free{{end}}</td></tr>
<tr><th>Config mode</th><td id="config" class="{{if .Info.ConfigMode.Active}}on{{else}}off{{end}}">{{if .Info.ConfigMode.Active}}{{if .Info.ConfigMode.Ready}}ready{{else}}waiting for agent{{end}}{{else}}inactive{{end}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>Operators</th><td id="operators">{{.Info.Peers.Frontend}}</td></tr>
<tr><th>Agent</th><td id="agent" class="{{if .Info.Peers.Agent}}connected{{else}}disconnected{{end}}">{{if .Info.Peers.Agent}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .Config.Broker}}{{if .MQTTConnected}}connected{{else}}disconnected{{end}}{{else}}disabled{{end}}</td></tr>
{{if .Config.Broker}}<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Frontend</th><td>{{.Config.FrontendAddr}}</td></tr>
<tr><th>Agent listener</th><td>{{.Config.AgentAddr}}</td></tr>
<tr><th>Lock lease</th><td>{{ms .Config.LockLeaseMs}}</td></tr>
<tr><th>Ack timeout</th><td>{{ms .Config.AckTimeoutMs}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{ms .Config.HeartbeatMs}}{{end}}</td></tr>
{{if .Config.HistoryPath}}<tr><th>History</th><td>{{.Config.HistoryPath}}</td></tr>{{end}}
</table>

<p><a href="/index.json">JSON</a> &middot; <a href="/metrics">metrics</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function text(id, value) {
    document.getElementById(id).textContent = value;
  }

  function refresh() {
    fetch("/index.json", { cache: "no-store" }).then(function(r) {
      return r.json();
    }).then(function(msg) {
      var s = msg.status;
      setDot("ok", "live");
      if (s.last_sample) {
        text("wert", s.last_sample.wert + " °C");
        text("sample", s.last_sample.id);
      }
      text("threshold", s.threshold + " °C");
      text("lock", s.lock.held ? s.lock.holder : "free");
      text("config", s.config_mode.active ? (s.config_mode.ready ? "ready" : "waiting for agent") : "inactive");
      text("operators", s.peers.frontend);
      text("agent", s.peers.agent ? "connected" : "disconnected");
    }).catch(function() {
      setDot("err", "offline");
    });
  }

  setInterval(refresh, 5000);
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Info   status.StatusInner
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Info:     status.Describe(snap),
	}
	return indexTmpl.Execute(w, data)
}
